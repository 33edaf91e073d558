package state

import (
	"bytes"
	"sync"
	"time"
)

// TelemetryStore remembers the last payload published per topic so the
// link can skip republishing unchanged telemetry until the heartbeat
// interval elapses.
type TelemetryStore interface {
	GetLast(topic string) (payload []byte, sentAt time.Time, ok bool)
	Update(topic string, payload []byte)
	HasChanged(topic string, payload []byte) bool
	Clear()
}

type telemetryStore struct {
	store     map[string][]byte
	heartbeat map[string]time.Time
	mu        sync.RWMutex
}

func NewTelemetryStore() TelemetryStore {
	return &telemetryStore{
		store:     make(map[string][]byte),
		heartbeat: make(map[string]time.Time),
	}
}

func (s *telemetryStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.store = make(map[string][]byte)
	s.heartbeat = make(map[string]time.Time)
}

func (s *telemetryStore) GetLast(topic string) ([]byte, time.Time, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	payload, ok := s.store[topic]
	heartbeat, ok2 := s.heartbeat[topic]
	return payload, heartbeat, ok && ok2
}

func (s *telemetryStore) Update(topic string, payload []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.store[topic] = payload
	s.heartbeat[topic] = time.Now()
}

func (s *telemetryStore) HasChanged(topic string, payload []byte) bool {
	last, _, ok := s.GetLast(topic)
	if !ok {
		return true
	}
	return !bytes.Equal(last, payload)
}
