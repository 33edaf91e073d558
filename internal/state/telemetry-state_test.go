package state

import (
	"testing"

	"gotest.tools/v3/assert"
)

func TestHasChangedBeforeFirstUpdate(t *testing.T) {
	s := NewTelemetryStore()
	assert.Assert(t, s.HasChanged("Q/inv1/state/ENERGY", []byte(`{"a":1}`)))
}

func TestHasChangedTracksPayload(t *testing.T) {
	s := NewTelemetryStore()
	topic := "Q/inv1/state/ENERGY"

	s.Update(topic, []byte(`{"a":1}`))
	assert.Assert(t, !s.HasChanged(topic, []byte(`{"a":1}`)))
	assert.Assert(t, s.HasChanged(topic, []byte(`{"a":2}`)))

	// topics are independent
	assert.Assert(t, s.HasChanged("Q/inv2/state/ENERGY", []byte(`{"a":1}`)))
}

func TestClear(t *testing.T) {
	s := NewTelemetryStore()
	topic := "Q/inv1/state/METRICS"

	s.Update(topic, []byte(`{}`))
	_, _, ok := s.GetLast(topic)
	assert.Assert(t, ok)

	s.Clear()
	_, _, ok = s.GetLast(topic)
	assert.Assert(t, !ok)
	assert.Assert(t, s.HasChanged(topic, []byte(`{}`)))
}
