package sinks

import (
	"bytes"
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"nia-backend/internal/models"
)

func TestCSVWriterHeaderOnce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nia.csv")

	rec := &models.CycleRecord{
		Timestamp:  time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
		EEGMean:    8388608,
		Fingers:    models.FingerEnergies{1, 2, 3, 4, 5, 6},
		Bands:      models.BandAmplitudes{Delta: 0.5, Beta: 2},
		BrainState: "Concentration",
	}

	for i := 0; i < 2; i++ {
		w, err := NewCSVWriter(path)
		if err != nil {
			t.Fatalf("NewCSVWriter: %v", err)
		}
		if err := w.Write(rec); err != nil {
			t.Fatalf("Write: %v", err)
		}
		if err := w.Close(); err != nil {
			t.Fatalf("Close: %v", err)
		}
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("got %d rows, want header + 2", len(rows))
	}
	if strings.Join(rows[0], ",") != strings.Join(CSVHeader, ",") {
		t.Fatalf("header = %v", rows[0])
	}
	row := rows[1]
	if len(row) != len(CSVHeader) {
		t.Fatalf("row has %d columns", len(row))
	}
	if row[0] != "2024-01-02T03:04:05Z" || row[1] != "8.388608e+06" {
		t.Fatalf("row = %v", row)
	}
	if row[2] != "1" || row[7] != "6" || row[8] != "0.5" || row[11] != "2" || row[13] != "Concentration" {
		t.Fatalf("row = %v", row)
	}
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) Bytes() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]byte(nil), b.buf.Bytes()...)
}

func TestSerialSinkWritesTriplets(t *testing.T) {
	out := &syncBuffer{}
	s := NewSerialSink(out, "spectrogram", 100*time.Microsecond, zap.NewNop().Sugar())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Start(ctx)
		close(done)
	}()

	pixels := []byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	if !s.Submit(models.Frame{Kind: "spectrogram", Width: 3, Height: 1, Pixels: pixels}) {
		t.Fatal("frame rejected by idle sink")
	}

	deadline := time.Now().Add(2 * time.Second)
	for len(out.Bytes()) < 9 {
		if time.Now().After(deadline) {
			t.Fatalf("wrote %d bytes", len(out.Bytes()))
		}
		time.Sleep(time.Millisecond)
	}
	cancel()
	<-done

	// the trailing partial triplet is never sent
	if got := out.Bytes(); !bytes.Equal(got, pixels[:9]) {
		t.Fatalf("wrote %v", got)
	}
}

func TestSerialSinkRejectsOtherKinds(t *testing.T) {
	s := NewSerialSink(&syncBuffer{}, "fingers", 0, zap.NewNop().Sugar())
	if s.Submit(models.Frame{Kind: "waveform"}) {
		t.Fatal("accepted a waveform frame")
	}
	if !s.Submit(models.Frame{Kind: "fingers"}) {
		t.Fatal("rejected a fingers frame")
	}
	if s.Submit(models.Frame{Kind: "fingers"}) {
		t.Fatal("second frame should be dropped while the first is queued")
	}
}
