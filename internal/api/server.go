package api

import (
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/png"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"nia-backend/internal/classifier"
	"nia-backend/internal/database"
	"nia-backend/internal/models"
)

// StateReader is the read side of the latest-cycle store
type StateReader interface {
	Latest() (models.CycleRecord, bool)
	Fingers() models.FingerEnergies
	Chakra() classifier.ChakraResult
	Frame(kind string) (models.Frame, bool)
}

// HistoryReader answers per-session history queries
type HistoryReader interface {
	StateHistogram(ctx context.Context, sessionID string) ([]database.StateCount, error)
}

// Config holds the server's collaborators. Metrics, History and Shutdown may be nil.
type Config struct {
	Addr      string
	SessionID string
	State     StateReader
	Hub       *Hub
	History   HistoryReader
	Metrics   http.Handler
	Shutdown  func(reason string)
}

// Server serves the query, control and streaming endpoints
type Server struct {
	cfg      Config
	router   *mux.Router
	server   *http.Server
	upgrader websocket.Upgrader
	logger   *zap.SugaredLogger

	startedAt    time.Time
	shutdownOnce sync.Once
}

// NewServer creates the HTTP server and its routes
func NewServer(cfg Config, logger *zap.SugaredLogger) *Server {
	router := mux.NewRouter()

	s := &Server{
		cfg:    cfg,
		router: router,
		server: &http.Server{
			Addr:         cfg.Addr,
			Handler:      router,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		logger:    logger,
		startedAt: time.Now(),
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.HandleFunc("/", s.handleIndex).Methods("GET")
	s.router.HandleFunc("/get_steps", s.handleGetSteps).Methods("GET")
	s.router.HandleFunc("/shutdown", s.handleShutdown).Methods("GET", "POST")

	api := s.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/state", s.handleState).Methods("GET")
	api.HandleFunc("/chakra", s.handleChakra).Methods("GET")
	api.HandleFunc("/frames/{kind}", s.handleFrame).Methods("GET")
	api.HandleFunc("/history", s.handleHistory).Methods("GET")

	if s.cfg.Metrics != nil {
		s.router.Handle("/metrics", s.cfg.Metrics).Methods("GET")
	}

	s.router.HandleFunc("/ws", s.handleWebSocket)
}

// Handler exposes the router, for tests and embedding
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves until Stop is called. It returns nil after a graceful stop.
func (s *Server) Start() error {
	s.logger.Infof("API server: Listening on %s", s.server.Addr)
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop gracefully stops the server
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("API server: Stopping...")
	if s.cfg.Hub != nil {
		s.cfg.Hub.Close()
	}
	return s.server.Shutdown(ctx)
}

type indexResponse struct {
	Service    string    `json:"service"`
	SessionID  string    `json:"session_id"`
	StartedAt  time.Time `json:"started_at"`
	Cycles     bool      `json:"has_cycles"`
	BrainState string    `json:"brain_state,omitempty"`
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	resp := indexResponse{
		Service:   "nia-backend",
		SessionID: s.cfg.SessionID,
		StartedAt: s.startedAt,
	}
	if rec, ok := s.cfg.State.Latest(); ok {
		resp.Cycles = true
		resp.BrainState = rec.BrainState
	}
	respondJSON(w, http.StatusOK, resp)
}

type stepsResponse struct {
	BrainFingers models.FingerEnergies `json:"brain_fingers"`
}

// handleGetSteps returns the newest finger energies
func (s *Server) handleGetSteps(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, stepsResponse{BrainFingers: s.cfg.State.Fingers()})
}

func (s *Server) handleShutdown(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Shutdown == nil {
		respondError(w, http.StatusNotImplemented, "shutdown not available")
		return
	}
	s.shutdownOnce.Do(func() {
		s.logger.Infof("API server: Shutdown requested by %s", r.RemoteAddr)
		s.cfg.Shutdown("http " + r.RemoteAddr)
	})
	respondJSON(w, http.StatusOK, map[string]string{"status": "shutting down"})
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	rec, ok := s.cfg.State.Latest()
	if !ok {
		respondError(w, http.StatusServiceUnavailable, "no cycle processed yet")
		return
	}
	respondJSON(w, http.StatusOK, rec)
}

func (s *Server) handleChakra(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.cfg.State.Latest(); !ok {
		respondError(w, http.StatusServiceUnavailable, "no cycle processed yet")
		return
	}
	respondJSON(w, http.StatusOK, s.cfg.State.Chakra())
}

// handleFrame renders the newest frame of a kind as PNG
func (s *Server) handleFrame(w http.ResponseWriter, r *http.Request) {
	kind := mux.Vars(r)["kind"]
	f, ok := s.cfg.State.Frame(kind)
	if !ok {
		respondError(w, http.StatusNotFound, "no "+kind+" frame")
		return
	}

	w.Header().Set("Content-Type", "image/png")
	if err := png.Encode(w, frameImage(f)); err != nil {
		s.logger.Warnf("API server: Error encoding %s frame: %v", kind, err)
	}
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.cfg.History == nil {
		respondError(w, http.StatusServiceUnavailable, "history store disabled")
		return
	}

	session := r.URL.Query().Get("session_id")
	if session == "" {
		session = s.cfg.SessionID
	}
	counts, err := s.cfg.History.StateHistogram(r.Context(), session)
	if err != nil {
		s.logger.Errorf("API server: History query failed: %v", err)
		respondError(w, http.StatusInternalServerError, "history query failed")
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"session_id": session,
		"states":     counts,
	})
}

// handleWebSocket pushes every cycle record to the client as JSON
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Hub == nil {
		respondError(w, http.StatusServiceUnavailable, "streaming disabled")
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warnf("API server: WebSocket upgrade error: %v", err)
		return
	}
	defer conn.Close()

	updates := s.cfg.Hub.Subscribe()
	defer s.cfg.Hub.Unsubscribe(updates)

	// Reader goroutine notices the client going away
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					s.logger.Debugf("API server: WebSocket read error: %v", err)
				}
				return
			}
		}
	}()

	if rec, ok := s.cfg.State.Latest(); ok {
		if err := s.writeRecord(conn, &rec); err != nil {
			return
		}
	}

	for {
		select {
		case <-gone:
			return
		case rec, ok := <-updates:
			if !ok {
				conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "server stopping"))
				return
			}
			if err := s.writeRecord(conn, rec); err != nil {
				s.logger.Debugf("API server: WebSocket write error: %v", err)
				return
			}
		}
	}
}

func (s *Server) writeRecord(conn *websocket.Conn, rec *models.CycleRecord) error {
	conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return conn.WriteJSON(rec)
}

func frameImage(f models.Frame) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, f.Width, f.Height))
	for i, j := 0, 0; i+3 <= len(f.Pixels) && j+4 <= len(img.Pix); i, j = i+3, j+4 {
		img.Pix[j] = f.Pixels[i]
		img.Pix[j+1] = f.Pixels[i+1]
		img.Pix[j+2] = f.Pixels[i+2]
		img.Pix[j+3] = 0xff
	}
	return img
}

func respondJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, map[string]string{"error": msg})
}
