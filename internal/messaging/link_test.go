package messaging

import (
	"context"
	"encoding/json"
	"testing"

	"gotest.tools/v3/assert"

	"github.com/qilowatt/qwbridge/internal/qw"
)

func TestTopicLayout(t *testing.T) {
	l := NewQilowattLink(LinkConfig{InverterID: "inv1"})

	assert.Equal(t, l.Topic(workModeTopic), "Q/inv1/cmd/WORKMODE")
	assert.Equal(t, l.Topic(energyTopic), "Q/inv1/state/ENERGY")
	assert.Equal(t, l.Topic(metricsTopic), "Q/inv1/state/METRICS")
	assert.Equal(t, l.Topic(), "Q/inv1")
}

func TestWorkModeCommandDecoding(t *testing.T) {
	payload := []byte(`{"mode":"sell","_source":"fusebox","power_limit":5000,"discharge_current":60,"battery_soc":20,"timestamp":1756454400}`)

	var cmd qw.WorkModeCommand
	assert.NilError(t, json.Unmarshal(payload, &cmd))
	assert.Equal(t, cmd.Mode, "sell")
	assert.Equal(t, cmd.Source, "fusebox")
	assert.Equal(t, cmd.PowerLimit, float64(5000))
	assert.Equal(t, cmd.DischargeCurrent, float64(60))
	assert.Equal(t, cmd.BatterySoc, 20)
	assert.Equal(t, cmd.Timestamp, int64(1756454400))
}

func TestPublishWithoutClientErrors(t *testing.T) {
	l := NewQilowattLink(LinkConfig{InverterID: "inv1"})
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	err := l.publish(ctx, l.Topic(energyTopic), AtLeastOnce, false, []byte("{}"))
	assert.ErrorContains(t, err, "client not initialized")
	assert.Assert(t, !l.IsConnected())
}

func TestQosToByte(t *testing.T) {
	b, wait := qosToByte(AtLeastOnce)
	assert.Equal(t, b, byte(1))
	assert.Assert(t, wait)

	b, wait = qosToByte(AsyncNoWait)
	assert.Equal(t, b, byte(0))
	assert.Assert(t, !wait)
}
