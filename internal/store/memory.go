package store

import (
	"sync"

	"github.com/berfenger/energyhive2mqtt/internal/core/domain"
	"github.com/berfenger/energyhive2mqtt/internal/core/port"
)

type MemoryStore struct {
	mu          sync.RWMutex
	states      map[string]domain.MeterState
	credentials map[string]domain.DeviceCredential
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		states:      make(map[string]domain.MeterState),
		credentials: make(map[string]domain.DeviceCredential),
	}
}

func (s *MemoryStore) LoadMeterState(meterId string) (domain.MeterState, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	state, ok := s.states[meterId]
	return state, ok, nil
}

func (s *MemoryStore) SaveMeterState(meterId string, state domain.MeterState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[meterId] = state
	return nil
}

func (s *MemoryStore) LoadCredential(meterId string) (domain.DeviceCredential, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cred, ok := s.credentials[meterId]
	return cred, ok, nil
}

func (s *MemoryStore) SaveCredential(meterId string, credential domain.DeviceCredential) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.credentials[meterId] = credential
	return nil
}

// ensure interface compliance
var _ port.StateStore = (*MemoryStore)(nil)
