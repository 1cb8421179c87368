package api

import (
	"context"
	"encoding/json"
	"errors"
	"image/png"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"nia-backend/internal/classifier"
	"nia-backend/internal/database"
	"nia-backend/internal/models"
)

type fakeState struct {
	rec    *models.CycleRecord
	frames map[string]models.Frame
}

func (f *fakeState) Latest() (models.CycleRecord, bool) {
	if f.rec == nil {
		return models.CycleRecord{}, false
	}
	return *f.rec, true
}

func (f *fakeState) Fingers() models.FingerEnergies {
	if f.rec == nil {
		return models.FingerEnergies{}
	}
	return f.rec.Fingers
}

func (f *fakeState) Chakra() classifier.ChakraResult {
	return classifier.ChakraResult{Radius: 0.25}
}

func (f *fakeState) Frame(kind string) (models.Frame, bool) {
	fr, ok := f.frames[kind]
	return fr, ok
}

type fakeHistory struct {
	err error
}

func (h *fakeHistory) StateHistogram(_ context.Context, sessionID string) ([]database.StateCount, error) {
	if h.err != nil {
		return nil, h.err
	}
	return []database.StateCount{{BrainState: "Calm", Cycles: 3}}, nil
}

func newTestServer(cfg Config) *Server {
	if cfg.State == nil {
		cfg.State = &fakeState{}
	}
	return NewServer(cfg, zap.NewNop().Sugar())
}

func get(t *testing.T, s *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, httptest.NewRequest("GET", path, nil))
	return rr
}

func TestGetStepsBeforeFirstCycle(t *testing.T) {
	rr := get(t, newTestServer(Config{}), "/get_steps")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	if got := strings.TrimSpace(rr.Body.String()); got != `{"brain_fingers":[0,0,0,0,0,0]}` {
		t.Fatalf("body = %s", got)
	}
}

func TestGetSteps(t *testing.T) {
	state := &fakeState{rec: &models.CycleRecord{Fingers: models.FingerEnergies{1, 2, 3, 4, 5, 6.5}}}
	rr := get(t, newTestServer(Config{State: state}), "/get_steps")

	var body struct {
		BrainFingers []float64 `json:"brain_fingers"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(body.BrainFingers) != 6 || body.BrainFingers[5] != 6.5 {
		t.Fatalf("brain_fingers = %v", body.BrainFingers)
	}
}

func TestShutdownOnce(t *testing.T) {
	var calls int
	s := newTestServer(Config{Shutdown: func(string) { calls++ }})

	for i := 0; i < 2; i++ {
		if rr := get(t, s, "/shutdown"); rr.Code != http.StatusOK {
			t.Fatalf("status = %d", rr.Code)
		}
	}
	if calls != 1 {
		t.Fatalf("shutdown called %d times", calls)
	}
}

func TestShutdownUnavailable(t *testing.T) {
	if rr := get(t, newTestServer(Config{}), "/shutdown"); rr.Code != http.StatusNotImplemented {
		t.Fatalf("status = %d", rr.Code)
	}
}

func TestStateAndIndex(t *testing.T) {
	s := newTestServer(Config{SessionID: "abc"})
	if rr := get(t, s, "/api/state"); rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("state before first cycle: %d", rr.Code)
	}

	state := &fakeState{rec: &models.CycleRecord{SessionID: "abc", BrainState: "Concentration"}}
	s = newTestServer(Config{SessionID: "abc", State: state})

	rr := get(t, s, "/api/state")
	var rec models.CycleRecord
	if err := json.Unmarshal(rr.Body.Bytes(), &rec); err != nil || rec.BrainState != "Concentration" {
		t.Fatalf("state = %s (%v)", rr.Body.String(), err)
	}

	rr = get(t, s, "/")
	var idx indexResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &idx); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if idx.SessionID != "abc" || !idx.Cycles || idx.BrainState != "Concentration" {
		t.Fatalf("index = %+v", idx)
	}

	rr = get(t, s, "/api/chakra")
	if !strings.Contains(rr.Body.String(), `"radius":0.25`) {
		t.Fatalf("chakra = %s", rr.Body.String())
	}
}

func TestFramePNG(t *testing.T) {
	state := &fakeState{frames: map[string]models.Frame{
		"waveform": {Kind: "waveform", Width: 2, Height: 1, Pixels: []byte{255, 0, 0, 0, 0, 255}},
	}}
	s := newTestServer(Config{State: state})

	if rr := get(t, s, "/api/frames/fingers"); rr.Code != http.StatusNotFound {
		t.Fatalf("missing frame status = %d", rr.Code)
	}

	rr := get(t, s, "/api/frames/waveform")
	if ct := rr.Header().Get("Content-Type"); ct != "image/png" {
		t.Fatalf("content type = %q", ct)
	}
	img, err := png.Decode(rr.Body)
	if err != nil {
		t.Fatalf("png.Decode: %v", err)
	}
	r, g, b, _ := img.At(1, 0).RGBA()
	if r != 0 || g != 0 || b != 0xffff {
		t.Fatalf("pixel (1,0) = %d %d %d", r, g, b)
	}
}

func TestHistory(t *testing.T) {
	if rr := get(t, newTestServer(Config{}), "/api/history"); rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("disabled history status = %d", rr.Code)
	}

	s := newTestServer(Config{SessionID: "abc", History: &fakeHistory{}})
	rr := get(t, s, "/api/history")
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), `"brain_state":"Calm"`) {
		t.Fatalf("history = %d %s", rr.Code, rr.Body.String())
	}

	s = newTestServer(Config{History: &fakeHistory{err: errors.New("down")}})
	if rr := get(t, s, "/api/history?session_id=x"); rr.Code != http.StatusInternalServerError {
		t.Fatalf("failing history status = %d", rr.Code)
	}
}

func TestMetricsRoute(t *testing.T) {
	metrics := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("nia_up 1\n"))
	})
	rr := get(t, newTestServer(Config{Metrics: metrics}), "/metrics")
	if rr.Body.String() != "nia_up 1\n" {
		t.Fatalf("metrics = %q", rr.Body.String())
	}
}

func TestWebSocketStream(t *testing.T) {
	hub := NewHub()
	s := newTestServer(Config{Hub: hub})
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/ws", nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()

	// wait for the handler to subscribe
	deadline := time.Now().Add(2 * time.Second)
	for {
		hub.mu.RLock()
		n := len(hub.subscribers)
		hub.mu.RUnlock()
		if n == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("handler never subscribed")
		}
		time.Sleep(time.Millisecond)
	}

	hub.HandleCycle(context.Background(), &models.CycleRecord{BrainState: "Somnolence"})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var rec models.CycleRecord
	if err := conn.ReadJSON(&rec); err != nil {
		t.Fatalf("ReadJSON: %v", err)
	}
	if rec.BrainState != "Somnolence" {
		t.Fatalf("brain_state = %q", rec.BrainState)
	}
}

func TestHubDropsSlowSubscriber(t *testing.T) {
	hub := NewHub()
	ch := hub.Subscribe()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 50; i++ {
			hub.HandleCycle(context.Background(), &models.CycleRecord{})
		}
	}()
	wg.Wait()

	if len(ch) != cap(ch) {
		t.Fatalf("queued %d of %d", len(ch), cap(ch))
	}
	hub.Unsubscribe(ch)
	hub.Unsubscribe(ch)
	if _, ok := <-ch; !ok {
		t.Fatal("queued records lost on unsubscribe")
	}
}
