package hass

import (
	"context"
	"sync"
	"testing"
	"time"

	"gotest.tools/v3/assert"
)

func TestSubmitRunsTasksInOrder(t *testing.T) {
	loop := NewLoop(16)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go loop.Run(ctx)

	var mu sync.Mutex
	var got []int
	done := make(chan struct{})
	for i := 0; i < 5; i++ {
		i := i
		loop.Submit(func(ctx context.Context) {
			mu.Lock()
			got = append(got, i)
			mu.Unlock()
			if i == 4 {
				close(done)
			}
		})
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("tasks did not run")
	}
	mu.Lock()
	defer mu.Unlock()
	assert.DeepEqual(t, got, []int{0, 1, 2, 3, 4})
}

func TestSubmitNeverBlocksCaller(t *testing.T) {
	loop := NewLoop(1)
	// Loop not running: the buffered slot fills, further submits must
	// return false immediately instead of blocking.
	assert.Assert(t, loop.Submit(func(ctx context.Context) {}))

	start := time.Now()
	ok := loop.Submit(func(ctx context.Context) {})
	assert.Assert(t, !ok)
	assert.Assert(t, time.Since(start) < 100*time.Millisecond)
}

func TestTaskPanicDoesNotKillLoop(t *testing.T) {
	loop := NewLoop(16)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go loop.Run(ctx)

	loop.Submit(func(ctx context.Context) { panic("boom") })

	done := make(chan struct{})
	loop.Submit(func(ctx context.Context) { close(done) })

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("loop died after task panic")
	}
}

func TestRunBlockingReturnsResult(t *testing.T) {
	err := RunBlocking(func() error { return nil })
	assert.NilError(t, err)

	wantErr := context.DeadlineExceeded
	err = RunBlocking(func() error { return wantErr })
	assert.Equal(t, err, wantErr)
}

// A slow device read offloaded from a drain goroutine must not stall
// tasks queued on the loop.
func TestRunBlockingDoesNotStallLoop(t *testing.T) {
	loop := NewLoop(16)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go loop.Run(ctx)

	readDone := make(chan struct{})
	go func() {
		defer close(readDone)
		_ = RunBlocking(func() error {
			time.Sleep(200 * time.Millisecond)
			return nil
		})
	}()

	taskRan := make(chan struct{})
	loop.Submit(func(ctx context.Context) { close(taskRan) })

	select {
	case <-taskRan:
	case <-readDone:
		t.Fatal("loop task did not run before the slow read finished")
	case <-time.After(2 * time.Second):
		t.Fatal("loop task never ran")
	}
	<-readDone
}
