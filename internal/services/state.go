package services

import (
	"sync"

	"nia-backend/internal/classifier"
	"nia-backend/internal/models"
)

// LatestStore holds the most recent cycle for readers outside the
// processing loop
type LatestStore struct {
	mu     sync.RWMutex
	record *models.CycleRecord
	chakra classifier.ChakraResult
	frames map[string]models.Frame
}

// NewLatestStore creates an empty store
func NewLatestStore() *LatestStore {
	return &LatestStore{frames: make(map[string]models.Frame)}
}

// Update replaces the stored cycle. The caller must not modify rec or the
// frames afterwards.
func (s *LatestStore) Update(rec *models.CycleRecord, chakra classifier.ChakraResult, frames ...models.Frame) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record = rec
	s.chakra = chakra
	for _, f := range frames {
		s.frames[f.Kind] = f
	}
}

// Latest returns a copy of the newest record
func (s *LatestStore) Latest() (models.CycleRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.record == nil {
		return models.CycleRecord{}, false
	}
	return *s.record, true
}

// Fingers returns the newest finger energies, zero before the first cycle
func (s *LatestStore) Fingers() models.FingerEnergies {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.record == nil {
		return models.FingerEnergies{}
	}
	return s.record.Fingers
}

// Chakra returns the newest chakra blend
func (s *LatestStore) Chakra() classifier.ChakraResult {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.chakra
}

// Frame returns the newest frame of the given kind
func (s *LatestStore) Frame(kind string) (models.Frame, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	f, ok := s.frames[kind]
	return f, ok
}
