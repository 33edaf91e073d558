package hass

import (
	"sync"

	"github.com/qilowatt/qwbridge/internal/logging"
)

// Dispatcher is the host's in-process notification bus. Signals are plain
// strings; the bridge namespaces them per inverter so instances do not
// collide. Send runs handlers synchronously on the calling goroutine, so
// callers route it through the Loop.
type Dispatcher struct {
	mu   sync.RWMutex
	next int
	subs map[string]map[int]func(payload any)
}

func NewDispatcher() *Dispatcher {
	return &Dispatcher{subs: make(map[string]map[int]func(payload any))}
}

// Connect registers fn for signal and returns a disconnect func.
func (d *Dispatcher) Connect(signal string, fn func(payload any)) func() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.subs[signal] == nil {
		d.subs[signal] = make(map[int]func(payload any))
	}
	id := d.next
	d.next++
	d.subs[signal][id] = fn
	return func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		delete(d.subs[signal], id)
	}
}

func (d *Dispatcher) Send(signal string, payload any) {
	d.mu.RLock()
	handlers := make([]func(payload any), 0, len(d.subs[signal]))
	for _, fn := range d.subs[signal] {
		handlers = append(handlers, fn)
	}
	d.mu.RUnlock()

	for _, fn := range handlers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					logging.Error("dispatcher handler panic", "signal", signal, "err", r)
				}
			}()
			fn(payload)
		}()
	}
}
