package bridge

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/qilowatt/qwbridge/internal/authz"
	"github.com/qilowatt/qwbridge/internal/config"
	"github.com/qilowatt/qwbridge/internal/hass"
	"github.com/qilowatt/qwbridge/internal/logging"
	"github.com/qilowatt/qwbridge/internal/qw"
	"github.com/qilowatt/qwbridge/internal/telemetry"
)

// Domain is the integration id the bridge's entities are registered under.
const Domain = "qilowatt"

var ErrAlreadyStarted = errors.New("bridge client already started")

// WorkModeSignal is the dispatcher channel for raw WORKMODE commands,
// namespaced per inverter so multiple instances do not collide.
func WorkModeSignal(inverterID string) string {
	return Domain + "_workmode_update_" + inverterID
}

// ControlSelectUniqueID is the unique id of the "Inverter Control" select
// entity gating command sources.
func ControlSelectUniqueID(inverterID string) string {
	return inverterID + "_inverter_control"
}

// LinkFactory builds the messaging link on first Start.
type LinkFactory func() qw.Link

type Options struct {
	Loop         *hass.Loop
	States       hass.StateStore
	Dispatcher   *hass.Dispatcher
	Inverter     qw.Inverter
	NewLink      LinkFactory
	PollInterval time.Duration
}

// Client bridges one inverter to the Qilowatt control channel: it owns
// the link, hands inbound commands over to the host loop, gates them with
// the control-mode policy and runs the telemetry loop.
type Client struct {
	cfg  config.InverterConfig
	opts Options

	mu        sync.Mutex
	link      qw.Link
	telemetry *telemetry.Loop
	started   bool
}

func NewClient(cfg config.InverterConfig, opts Options) *Client {
	return &Client{cfg: cfg, opts: opts}
}

// Start lazily constructs the link, registers the command callback,
// connects and starts the telemetry loop. A second Start without Stop
// returns ErrAlreadyStarted; connect errors propagate to the caller.
func (c *Client) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.started {
		return ErrAlreadyStarted
	}
	if c.link == nil {
		logging.Debug("initializing qilowatt link", "inverter", c.cfg.InverterId)
		c.link = c.opts.NewLink()
	}
	c.link.SetCommandCallback(c.OnCommandReceived)
	if err := c.link.Connect(ctx); err != nil {
		return err
	}

	c.telemetry = telemetry.NewLoop(c.cfg.InverterId, c.opts.Inverter, c.link, c.opts.PollInterval)
	c.telemetry.Start(ctx)
	c.started = true
	logging.Info("bridge client started", "inverter", c.cfg.InverterId, "model", c.cfg.Model)
	return nil
}

// Stop cancels the telemetry loop, waits out an in-flight cycle and
// disconnects the link. The link instance is kept for a later Start.
func (c *Client) Stop(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.started {
		return nil
	}
	c.telemetry.Stop()
	c.telemetry = nil
	c.started = false
	logging.Info("bridge client stopped", "inverter", c.cfg.InverterId)
	return c.link.Disconnect(ctx)
}

// OnCommandReceived runs on the link's goroutine. It schedules the
// authorization+control path on the host loop and independently sends the
// raw command on the dispatcher, then returns without waiting for either.
func (c *Client) OnCommandReceived(cmd qw.WorkModeCommand) {
	logging.Debug("received WORKMODE command", "inverter", c.cfg.InverterId, "mode", cmd.Mode, "source", cmd.Source)

	if ok := c.opts.Loop.Submit(func(ctx context.Context) {
		c.handleInverterControl(ctx, cmd)
	}); !ok {
		logging.Error("host loop saturated, control task dropped", "inverter", c.cfg.InverterId)
	}

	signal := WorkModeSignal(c.cfg.InverterId)
	if ok := c.opts.Loop.Submit(func(ctx context.Context) {
		c.opts.Dispatcher.Send(signal, cmd)
	}); !ok {
		logging.Error("host loop saturated, workmode notification dropped", "inverter", c.cfg.InverterId)
	}
}

// handleInverterControl runs on the host loop: resolve the control-mode
// select entity, check the source against it, then drive the inverter.
func (c *Client) handleInverterControl(ctx context.Context, cmd qw.WorkModeCommand) {
	entityID, ok := c.opts.States.EntityID("select", Domain, ControlSelectUniqueID(c.cfg.InverterId))
	if !ok {
		logging.Error("inverter control select entity not found", "inverter", c.cfg.InverterId)
		return
	}
	settingValue, ok := c.opts.States.State(entityID)
	if !ok {
		logging.Error("inverter control select entity has no state", "inverter", c.cfg.InverterId, "entity", entityID)
		return
	}

	if !authz.IsAllowed(settingValue, cmd.Source) {
		logging.Info("command source not allowed by inverter control setting",
			"inverter", c.cfg.InverterId, "source", cmd.Source, "setting", settingValue)
		return
	}

	// SetMode may block on device I/O; run it off the loop goroutine so
	// queued tasks keep draining. Concurrent calls are the adapter's
	// concern, not serialized here.
	go func() {
		if err := c.opts.Inverter.SetMode(ctx, cmd); err != nil {
			logging.Error("inverter control failed", "inverter", c.cfg.InverterId, "mode", cmd.Mode, "error", err)
		}
	}()
}
