package hass

import (
	"context"
	"sync"
)

// StateStore is the host's entity state registry, read-only from the
// bridge core. Entities are registered under {domain, integration,
// uniqueID} and expose a current string state.
type StateStore interface {
	// EntityID resolves a registered entity. ok=false when the entity was
	// never registered.
	EntityID(domain, integration, uniqueID string) (entityID string, ok bool)
	// State returns the entity's current value. ok=false when the entity
	// has no state yet.
	State(entityID string) (value string, ok bool)
}

// ServiceCaller invokes host services ("switch.turn_on", ...) on entities
// owned by other integrations.
type ServiceCaller interface {
	CallService(ctx context.Context, domain, service, entityID string, value any) error
}

// MemoryStateStore is the in-process StateStore used by the bridge server
// and by tests. Writes come from the hosting layer only.
type MemoryStateStore struct {
	mu       sync.RWMutex
	registry map[entityKey]string
	states   map[string]string
}

type entityKey struct {
	domain      string
	integration string
	uniqueID    string
}

func NewMemoryStateStore() *MemoryStateStore {
	return &MemoryStateStore{
		registry: make(map[entityKey]string),
		states:   make(map[string]string),
	}
}

func (s *MemoryStateStore) Register(domain, integration, uniqueID, entityID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.registry[entityKey{domain, integration, uniqueID}] = entityID
}

func (s *MemoryStateStore) SetState(entityID, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[entityID] = value
}

func (s *MemoryStateStore) EntityID(domain, integration, uniqueID string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.registry[entityKey{domain, integration, uniqueID}]
	return id, ok
}

func (s *MemoryStateStore) State(entityID string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.states[entityID]
	return v, ok
}
