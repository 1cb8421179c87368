package aggregator

import (
	"bytes"
	"errors"
	"math/rand"
	"testing"
)

func TestDecodePacket_TwentyOneSamples(t *testing.T) {
	raw := make([]byte, PacketLength)
	rng := rand.New(rand.NewSource(21))
	for i := 0; i < 21*SampleStride; i++ {
		raw[i] = byte(rng.Intn(256))
	}
	raw[CountOffset] = 21

	samples, err := DecodePacket(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(samples) != 21 {
		t.Fatalf("expected 21 samples, got %d", len(samples))
	}
	for i, got := range samples {
		want := uint32(raw[i*3]) + uint32(raw[i*3+1])*256 + uint32(raw[i*3+2])*65536
		if got != want {
			t.Fatalf("sample %d: expected %d, got %d", i, want, got)
		}
	}
}

func TestDecodePacket_RoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for count := 0; count <= MaxSamplesPerPacket; count++ {
		raw := make([]byte, PacketLength)
		rng.Read(raw)
		raw[CountOffset] = byte(count)

		samples, err := DecodePacket(raw)
		if err != nil {
			t.Fatalf("count %d: unexpected error: %v", count, err)
		}

		out := make([]byte, PacketLength)
		if err := EncodeSamples(out, samples); err != nil {
			t.Fatalf("count %d: encode failed: %v", count, err)
		}
		n := count * SampleStride
		if !bytes.Equal(raw[:n], out[:n]) {
			t.Fatalf("count %d: sample bytes differ after round trip", count)
		}
		if out[CountOffset] != raw[CountOffset] {
			t.Fatalf("count %d: count byte %d, want %d", count, out[CountOffset], raw[CountOffset])
		}
	}
}

func TestDecodePacket_Rejects(t *testing.T) {
	tests := []struct {
		name string
		raw  []byte
	}{
		{"truncated", make([]byte, PacketLength-1)},
		{"empty", nil},
		{"count over capacity", func() []byte {
			b := make([]byte, PacketLength)
			b[CountOffset] = MaxSamplesPerPacket + 1
			return b
		}()},
		{"count max byte", func() []byte {
			b := make([]byte, PacketLength)
			b[CountOffset] = 0xff
			return b
		}()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			samples, err := DecodePacket(tt.raw)
			var decodeErr *DecodeError
			if !errors.As(err, &decodeErr) {
				t.Fatalf("expected DecodeError, got %v", err)
			}
			if samples != nil {
				t.Fatalf("expected no partial output, got %d samples", len(samples))
			}
		})
	}
}

func TestEncodeSamples_Bounds(t *testing.T) {
	if err := EncodeSamples(make([]byte, 10), []uint32{1}); err == nil {
		t.Fatalf("expected error for short buffer")
	}
	if err := EncodeSamples(make([]byte, PacketLength), make([]uint32, MaxSamplesPerPacket+1)); err == nil {
		t.Fatalf("expected error for too many samples")
	}
}

func TestMean(t *testing.T) {
	if got := Mean(nil); got != 0 {
		t.Fatalf("expected 0 for empty input, got %v", got)
	}
	if got := Mean([]uint32{2, 4, 9}); got != 5 {
		t.Fatalf("expected 5, got %v", got)
	}
}
