package telemetry

import (
	"context"
	"fmt"
	"time"

	"github.com/qilowatt/qwbridge/internal/hass"
	"github.com/qilowatt/qwbridge/internal/logging"
	"github.com/qilowatt/qwbridge/internal/qw"
)

type ZeroSignal struct{}

// Zero is the canonical value to send on signal channels.
var Zero ZeroSignal

// Loop periodically reads energy and metrics data from the inverter and
// hands them to the link. Cycles are strictly sequential: a tick that
// fires while a cycle is still running is dropped, never queued behind it.
// A failing cycle is logged and the next one is attempted at the same
// cadence; only cancellation stops the loop.
type Loop struct {
	inverterID string
	inverter   qw.Inverter
	link       qw.Link

	Period time.Duration

	pollCh chan ZeroSignal
	cancel context.CancelFunc
	done   chan ZeroSignal
}

func NewLoop(inverterID string, inverter qw.Inverter, link qw.Link, period time.Duration) *Loop {
	if period <= 0 {
		period = 10 * time.Second
	}
	return &Loop{
		inverterID: inverterID,
		inverter:   inverter,
		link:       link,
		Period:     period,
		pollCh:     make(chan ZeroSignal, 1),
	}
}

// Start spawns the ticker and the drain goroutine. Call at most once per
// Loop instance.
func (t *Loop) Start(ctx context.Context) {
	ctx, t.cancel = context.WithCancel(ctx)
	t.done = make(chan ZeroSignal)

	go func() {
		ticker := time.NewTicker(t.Period)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				select {
				case t.pollCh <- Zero: // send a signal; drop if one is queued
				default:
				}
			}
		}
	}()

	go t.drain(ctx)
	logging.Info("telemetry loop started", "inverter", t.inverterID, "period", t.Period)
}

// Stop cancels the loop and waits for an in-flight cycle to finish.
func (t *Loop) Stop() {
	if t.cancel == nil {
		return
	}
	t.cancel()
	<-t.done
	logging.Info("telemetry loop stopped", "inverter", t.inverterID)
}

func (t *Loop) drain(ctx context.Context) {
	defer close(t.done)
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.pollCh:
			if err := t.runCycle(ctx); err != nil {
				logging.Error("telemetry cycle failed", "inverter", t.inverterID, "error", err)
			}
		}
	}
}

// runCycle fetches one energy+metrics snapshot and publishes it. Device
// reads are I/O-bound, so they go through the worker offload.
func (t *Loop) runCycle(ctx context.Context) error {
	var (
		energy  qw.EnergyData
		metrics qw.MetricsData
	)
	err := hass.RunBlocking(func() error {
		var err error
		if energy, err = t.inverter.GetEnergyData(); err != nil {
			return fmt.Errorf("energy read: %w", err)
		}
		if metrics, err = t.inverter.GetMetricsData(); err != nil {
			return fmt.Errorf("metrics read: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	if err := t.link.PublishEnergy(ctx, energy); err != nil {
		return fmt.Errorf("energy publish: %w", err)
	}
	if err := t.link.PublishMetrics(ctx, metrics); err != nil {
		return fmt.Errorf("metrics publish: %w", err)
	}
	return nil
}
