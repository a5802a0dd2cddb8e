package engine

import (
	"context"
	"sync"
	"time"

	"adaptive-test-service/internal/domain"
)

// Clock is the part of the engine the timer drives.
type Clock interface {
	Tick() bool
	Status() domain.Status
	Done() <-chan struct{}
}

// Timer dispatches one Tick per interval while the attempt is in progress. Ticks are not
// dispatched during breaks or after completion; Stop cancels the loop.
type Timer struct {
	clock    Clock
	interval time.Duration

	mu     sync.Mutex
	cancel context.CancelFunc
	exited chan struct{}
}

func NewTimer(clock Clock, interval time.Duration) *Timer {
	if interval <= 0 {
		interval = time.Second
	}
	return &Timer{clock: clock, interval: interval}
}

// Start launches the tick loop. Calling Start on a running timer is a no-op.
func (t *Timer) Start(ctx context.Context) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	t.cancel = cancel
	t.exited = make(chan struct{})
	go t.run(ctx, t.exited)
}

// Stop cancels the loop and waits for it to exit.
func (t *Timer) Stop() {
	t.mu.Lock()
	cancel, exited := t.cancel, t.exited
	t.cancel = nil
	t.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-exited
}

func (t *Timer) run(ctx context.Context, exited chan struct{}) {
	defer close(exited)
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.clock.Done():
			return
		case <-ticker.C:
			if t.clock.Status() != domain.StatusInProgress {
				continue
			}
			t.clock.Tick()
		}
	}
}
