package api

import (
	"context"
	"sync"

	"nia-backend/internal/models"
)

// Hub fans cycle records out to WebSocket subscribers
type Hub struct {
	mu          sync.RWMutex
	subscribers map[chan *models.CycleRecord]bool
}

// NewHub creates a hub without subscribers
func NewHub() *Hub {
	return &Hub{subscribers: make(map[chan *models.CycleRecord]bool)}
}

// Subscribe adds a new subscriber for broadcast records
func (h *Hub) Subscribe() chan *models.CycleRecord {
	h.mu.Lock()
	defer h.mu.Unlock()

	ch := make(chan *models.CycleRecord, 10)
	h.subscribers[ch] = true
	return ch
}

// Unsubscribe removes a subscriber and closes its channel
func (h *Hub) Unsubscribe(ch chan *models.CycleRecord) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.subscribers[ch]; ok {
		delete(h.subscribers, ch)
		close(ch)
	}
}

// HandleCycle broadcasts rec, skipping subscribers whose channel is full
func (h *Hub) HandleCycle(_ context.Context, rec *models.CycleRecord) error {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for ch := range h.subscribers {
		select {
		case ch <- rec:
		default:
		}
	}
	return nil
}

// Close drops every subscriber
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for ch := range h.subscribers {
		close(ch)
	}
	h.subscribers = make(map[chan *models.CycleRecord]bool)
}
