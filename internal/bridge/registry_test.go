package bridge

import (
	"context"
	"testing"
	"time"

	"gotest.tools/v3/assert"

	"github.com/qilowatt/qwbridge/internal/config"
	"github.com/qilowatt/qwbridge/internal/hass"
	"github.com/qilowatt/qwbridge/internal/qw"
)

func newRegistryClient(id string) (*Client, *fakeLink) {
	link := &fakeLink{}
	return NewClient(
		config.InverterConfig{InverterId: id, Model: "deye"},
		Options{
			Loop:         hass.NewLoop(8),
			States:       hass.NewMemoryStateStore(),
			Dispatcher:   hass.NewDispatcher(),
			Inverter:     newFakeInverter(),
			NewLink:      func() qw.Link { return link },
			PollInterval: time.Hour,
		}), link
}

func TestRegistryRejectsDuplicateInverter(t *testing.T) {
	r := NewRegistry()
	c1, _ := newRegistryClient("inv1")
	c2, _ := newRegistryClient("inv1")

	assert.NilError(t, r.Register("inv1", c1))
	assert.ErrorContains(t, r.Register("inv1", c2), "already registered")
}

func TestRegistryGetAndRemove(t *testing.T) {
	r := NewRegistry()
	c, _ := newRegistryClient("inv1")
	assert.NilError(t, r.Register("inv1", c))

	got, ok := r.Get("inv1")
	assert.Assert(t, ok)
	assert.Equal(t, got, c)

	r.Remove("inv1")
	_, ok = r.Get("inv1")
	assert.Assert(t, !ok)
}

func TestStopAllStopsStartedClients(t *testing.T) {
	r := NewRegistry()
	c1, l1 := newRegistryClient("inv1")
	c2, l2 := newRegistryClient("inv2")
	assert.NilError(t, r.Register("inv1", c1))
	assert.NilError(t, r.Register("inv2", c2))

	ctx := context.Background()
	assert.NilError(t, c1.Start(ctx))
	assert.NilError(t, c2.Start(ctx))

	r.StopAll(ctx)
	assert.Equal(t, l1.disconnects, 1)
	assert.Equal(t, l2.disconnects, 1)
}
