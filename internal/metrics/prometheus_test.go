package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"nia-backend/internal/models"
)

func TestObservePassAndCycle(t *testing.T) {
	m := New()

	m.ObservePass(&models.AcquisitionPass{Packets: 20, Dropped: 2, Timeouts: 3}, 4096)
	m.ObservePass(&models.AcquisitionPass{Packets: 5}, 4096)

	if got := testutil.ToFloat64(m.packets); got != 25 {
		t.Fatalf("packets = %v", got)
	}
	if got := testutil.ToFloat64(m.decodeErrors); got != 2 {
		t.Fatalf("decode errors = %v", got)
	}
	if got := testutil.ToFloat64(m.timeouts); got != 3 {
		t.Fatalf("timeouts = %v", got)
	}
	if got := testutil.ToFloat64(m.bufferLen); got != 4096 {
		t.Fatalf("buffer = %v", got)
	}

	rec := &models.CycleRecord{
		BrainState: "Calm",
		Bands:      models.BandAmplitudes{Alpha: 3},
		Fingers:    models.FingerEnergies{0, 0, 7},
	}
	m.ObserveCycle(rec, 0.002)

	if got := testutil.ToFloat64(m.cycles.WithLabelValues("Calm")); got != 1 {
		t.Fatalf("cycles{Calm} = %v", got)
	}
	if got := testutil.ToFloat64(m.bandAmp.WithLabelValues("alpha")); got != 3 {
		t.Fatalf("alpha = %v", got)
	}
	if got := testutil.ToFloat64(m.fingers.WithLabelValues("high_alpha")); got != 7 {
		t.Fatalf("high_alpha = %v", got)
	}
}

func TestHandlerExposesMetrics(t *testing.T) {
	m := New()
	m.FrameDropped()

	rr := httptest.NewRecorder()
	m.Handler().ServeHTTP(rr, httptest.NewRequest("GET", "/metrics", nil))

	body, _ := io.ReadAll(rr.Body)
	if !strings.Contains(string(body), "nia_serial_frames_dropped_total 1") {
		t.Fatalf("metrics output missing dropped frames:\n%s", body)
	}
}
