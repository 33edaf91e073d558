package hass

import (
	"context"

	"github.com/qilowatt/qwbridge/internal/logging"
)

type Task func(ctx context.Context)

// Loop is the host's single-threaded cooperative scheduler. All host-state
// reads, entity dispatch and device control run on the loop goroutine, one
// task at a time, in submit order. Foreign goroutines (the MQTT client's
// callback goroutine, timers) hand work over with Submit and never touch
// host state directly.
type Loop struct {
	tasks chan Task
}

func NewLoop(bufferSize int) *Loop {
	if bufferSize <= 0 {
		bufferSize = 256
	}
	return &Loop{tasks: make(chan Task, bufferSize)}
}

// Submit enqueues fn to run on the loop goroutine. Safe to call from any
// goroutine and never blocks the caller; returns false when the queue is
// saturated and the task was dropped.
func (l *Loop) Submit(fn Task) bool {
	select {
	case l.tasks <- fn:
		return true
	default:
		return false
	}
}

// Run drains and executes tasks until ctx is cancelled. A panicking task
// is logged and must never take the loop down with it.
func (l *Loop) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			logging.Info("host loop ctx done")
			return
		case task := <-l.tasks:
			l.runTask(ctx, task)
		}
	}
}

func (l *Loop) runTask(ctx context.Context, task Task) {
	defer func() {
		if r := recover(); r != nil {
			logging.Error("host loop task panic", "err", r)
		}
	}()
	task(ctx)
}

// RunBlocking executes fn on a worker goroutine and waits for its result.
// The calling goroutine blocks for fn's full duration, so it must not be
// called from a task running on a Loop; it is for goroutines that own
// their own schedule, like the telemetry drain, keeping blocking device
// I/O off the loop by never being on the loop in the first place.
func RunBlocking(fn func() error) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- fn()
	}()
	return <-errCh
}
