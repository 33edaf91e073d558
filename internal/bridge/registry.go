package bridge

import (
	"context"
	"fmt"
	"sync"

	"github.com/qilowatt/qwbridge/internal/logging"
)

// Registry holds the bridge clients keyed by inverter id. The composing
// layer owns it; nothing in here is process-global.
type Registry struct {
	mu      sync.RWMutex
	clients map[string]*Client
}

func NewRegistry() *Registry {
	return &Registry{clients: make(map[string]*Client)}
}

func (r *Registry) Register(inverterID string, c *Client) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.clients[inverterID]; exists {
		return fmt.Errorf("client already registered for inverter %s", inverterID)
	}
	r.clients[inverterID] = c
	return nil
}

func (r *Registry) Get(inverterID string) (*Client, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.clients[inverterID]
	return c, ok
}

func (r *Registry) Remove(inverterID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.clients, inverterID)
}

// StopAll stops every registered client; individual stop errors are
// logged, not propagated, so one bad link does not block teardown.
func (r *Registry) StopAll(ctx context.Context) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for id, c := range r.clients {
		if err := c.Stop(ctx); err != nil {
			logging.Error("client stop failed", "inverter", id, "error", err)
		}
	}
}
