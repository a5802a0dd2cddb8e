package app

import (
	"context"
	"sync"

	"adaptive-test-service/internal/engine"
	"adaptive-test-service/internal/recovery"
)

// Attempt bundles a live engine with its timer, backup controller and subscribers.
type Attempt struct {
	userID string
	engine *engine.Engine
	timer  *engine.Timer
	backup *recovery.Controller
	cancel context.CancelFunc

	mu          sync.Mutex
	subscribers map[chan engine.Snapshot]struct{}

	finalizeOnce sync.Once
	finalized    chan struct{}
}

func newAttempt(userID string) *Attempt {
	return &Attempt{
		userID:      userID,
		subscribers: make(map[chan engine.Snapshot]struct{}),
		finalized:   make(chan struct{}),
	}
}

func (a *Attempt) SessionID() string {
	return a.engine.SessionID()
}

func (a *Attempt) UserID() string {
	return a.userID
}

func (a *Attempt) Engine() *engine.Engine {
	return a.engine
}

// Finalized is closed once the completed attempt has been handed to the sink.
func (a *Attempt) Finalized() <-chan struct{} {
	return a.finalized
}

// stop cancels the timer and auto-backup loops.
func (a *Attempt) stop() {
	if a.cancel != nil {
		a.cancel()
	}
}

func (a *Attempt) subscribe() (<-chan engine.Snapshot, func()) {
	ch := make(chan engine.Snapshot, 8)

	// Registered under the engine lock so the first snapshot precedes every broadcast.
	a.engine.SnapshotWith(func(snap engine.Snapshot) {
		a.mu.Lock()
		a.subscribers[ch] = struct{}{}
		ch <- snap
		a.mu.Unlock()
	})

	cancel := func() {
		a.mu.Lock()
		if _, ok := a.subscribers[ch]; ok {
			delete(a.subscribers, ch)
			close(ch)
		}
		a.mu.Unlock()
	}
	return ch, cancel
}

// broadcast fans snap out to subscribers, replacing the oldest queued update for slow ones.
func (a *Attempt) broadcast(snap engine.Snapshot) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for ch := range a.subscribers {
		select {
		case ch <- snap:
		default:
			select {
			case <-ch:
			default:
			}
			ch <- snap
		}
	}
}
