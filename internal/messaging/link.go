package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/qilowatt/qwbridge/internal/logging"
	"github.com/qilowatt/qwbridge/internal/qw"
	"github.com/qilowatt/qwbridge/internal/state"
)

type LinkConfig struct {
	BrokerURL         string
	Username          string
	Password          string
	InverterID        string
	InverterModel     string
	ConnectTimeout    time.Duration
	PublishTimeout    time.Duration
	SubscribeTimeout  time.Duration
	HeartbeatInterval time.Duration
}

// QilowattLink is the MQTT implementation of qw.Link. The registered
// command callback is invoked on the paho client's goroutine; this layer
// never runs host-side logic itself.
type QilowattLink struct {
	config    LinkConfig
	client    mqtt.Client
	mu        sync.RWMutex
	callback  qw.CommandCallback
	telemetry state.TelemetryStore
}

func NewQilowattLink(cfg LinkConfig) *QilowattLink {
	return &QilowattLink{
		config:    cfg,
		telemetry: state.NewTelemetryStore(),
	}
}

func (l *QilowattLink) optionsFromConfig() *mqtt.ClientOptions {
	opts := mqtt.NewClientOptions().AddBroker(l.config.BrokerURL)
	// Unique client id per process so a restarted bridge does not fight
	// the broker over a stale session.
	opts.SetClientID("qwbridge-" + l.config.InverterID + "-" + uuid.NewString()[:8])
	opts.SetUsername(l.config.Username)
	opts.SetPassword(l.config.Password)
	opts.SetAutoReconnect(true)
	if l.config.ConnectTimeout > 0 {
		opts.SetConnectTimeout(l.config.ConnectTimeout)
	}
	opts.OnConnect = func(c mqtt.Client) {
		l.onConnect()
	}
	return opts
}

func (l *QilowattLink) Connect(ctx context.Context) error {
	if l.client == nil {
		l.client = mqtt.NewClient(l.optionsFromConfig())
	}
	if l.client.IsConnected() {
		return nil
	}

	t := l.client.Connect()
	done := make(chan struct{})
	go func() {
		t.Wait()
		close(done)
	}()

	select {
	case <-done:
		return t.Error()
	case <-ctx.Done():
		l.client.Disconnect(250)
		return ctx.Err()
	}
}

func (l *QilowattLink) Disconnect(ctx context.Context) error {
	if l.client == nil {
		return nil
	}
	l.telemetry.Clear()
	// Graceful disconnect with short timeout
	done := make(chan struct{})
	go func() {
		// 250 ms quiesce period
		l.client.Disconnect(250)
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l *QilowattLink) IsConnected() bool {
	if l.client == nil {
		return false
	}
	return l.client.IsConnected()
}

func (l *QilowattLink) SetCommandCallback(fn qw.CommandCallback) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.callback = fn
}

// onConnect runs on every (re)connect: subscribe the command topic and
// announce the inverter on the INFO topic.
func (l *QilowattLink) onConnect() {
	ctx, cancel := context.WithTimeout(context.Background(), l.subscribeTimeout())
	defer cancel()

	if err := l.subscribeWorkMode(ctx); err != nil {
		logging.Error("workmode subscribe failed", "inverter", l.config.InverterID, "error", err)
	}
	if err := l.publishInfo(ctx); err != nil {
		logging.Error("info publish failed", "inverter", l.config.InverterID, "error", err)
	}
}

func (l *QilowattLink) subscribeWorkMode(ctx context.Context) error {
	topic := l.Topic(workModeTopic)

	// wrapper that decodes the payload and shields the paho goroutine
	// from callback panics
	onMessage := func(_ mqtt.Client, msg mqtt.Message) {
		defer func() {
			if r := recover(); r != nil {
				logging.Error("workmode handler panic", "inverter", l.config.InverterID, "topic", msg.Topic(), "err", r)
			}
		}()
		var cmd qw.WorkModeCommand
		if err := json.Unmarshal(msg.Payload(), &cmd); err != nil {
			logging.Warn("workmode json", "inverter", l.config.InverterID, "error", err)
			return
		}
		l.mu.RLock()
		cb := l.callback
		l.mu.RUnlock()
		if cb == nil {
			logging.Warn("workmode command before callback registered", "inverter", l.config.InverterID)
			return
		}
		cb(cmd)
	}

	token := l.client.Subscribe(topic, byte(AtLeastOnce), onMessage)
	select {
	case <-token.Done():
		return token.Error()
	case <-ctx.Done():
		return fmt.Errorf("subscribe timeout for %s", topic)
	}
}

type inverterInfo struct {
	InverterID string `json:"inverterId"`
	Model      string `json:"model"`
	Bridge     string `json:"bridge"`
}

func (l *QilowattLink) publishInfo(ctx context.Context) error {
	info := inverterInfo{
		InverterID: l.config.InverterID,
		Model:      l.config.InverterModel,
		Bridge:     "qwbridge",
	}
	data, err := json.Marshal(info)
	if err != nil {
		return err
	}
	return l.publish(ctx, l.Topic(infoTopic), AtLeastOnce, true, data)
}

func (l *QilowattLink) PublishEnergy(ctx context.Context, data qw.EnergyData) error {
	return l.publishTelemetry(ctx, l.Topic(energyTopic), data)
}

func (l *QilowattLink) PublishMetrics(ctx context.Context, data qw.MetricsData) error {
	return l.publishTelemetry(ctx, l.Topic(metricsTopic), data)
}

// publishTelemetry skips the wire when the payload did not change since
// the last publish, unless the heartbeat interval elapsed.
func (l *QilowattLink) publishTelemetry(ctx context.Context, topic string, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}

	isChanged := l.telemetry.HasChanged(topic, payload)
	needsHeartbeat := false
	if !isChanged {
		_, lastSent, hasPrev := l.telemetry.GetLast(topic)
		if l.config.HeartbeatInterval > 0 {
			needsHeartbeat = !hasPrev || time.Since(lastSent) > l.config.HeartbeatInterval
		}
	}
	if !isChanged && !needsHeartbeat {
		return nil
	}

	logging.Debug("publishing telemetry", "inverter", l.config.InverterID, "topic", topic)
	if err := l.publish(ctx, topic, FireAndForget, true, payload); err != nil {
		return err
	}
	l.telemetry.Update(topic, payload)
	return nil
}

func (l *QilowattLink) publish(ctx context.Context, topic string, qos QoS, retain bool, payload []byte) error {
	if l.client == nil {
		return errors.New("client not initialized")
	}
	qosByte, wait := qosToByte(qos)
	token := l.client.Publish(topic, qosByte, retain, payload)
	if !wait {
		return nil
	}
	timeout := l.config.PublishTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	select {
	case <-token.Done():
		return token.Error()
	case <-time.After(timeout):
		return fmt.Errorf("publish timeout after %v", timeout)
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l *QilowattLink) subscribeTimeout() time.Duration {
	if l.config.SubscribeTimeout > 0 {
		return l.config.SubscribeTimeout
	}
	return 5 * time.Second
}

func (l *QilowattLink) Topic(parts ...string) string {
	topic := topicRoot + "/" + l.config.InverterID
	for _, p := range parts {
		topic += "/" + p
	}
	return topic
}
