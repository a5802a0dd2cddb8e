package connectivity

import (
	"context"
	"sync"
	"time"

	"adaptive-test-service/internal/logger"
	"github.com/cenkalti/backoff/v4"
)

const (
	DefaultInterval    = 10 * time.Second
	DefaultBaseDelay   = time.Second
	DefaultMaxDelay    = 30 * time.Second
	DefaultMaxAttempts = 5
)

// Probe checks one backend. A nil error means reachable.
type Probe func(ctx context.Context) error

// Monitor probes backends periodically. After a failed probe it retries on an exponential
// schedule and gives up after maxAttempts, falling back to the regular interval.
type Monitor struct {
	probes      []Probe
	log         *logger.Logger
	interval    time.Duration
	baseDelay   time.Duration
	maxDelay    time.Duration
	maxAttempts int
	onChange    func(online bool)

	mu     sync.Mutex
	online bool
}

type Option func(*Monitor)

func WithInterval(d time.Duration) Option {
	return func(m *Monitor) {
		if d > 0 {
			m.interval = d
		}
	}
}

// WithBackoff overrides the reconnect schedule.
func WithBackoff(base, ceiling time.Duration, attempts int) Option {
	return func(m *Monitor) {
		if base > 0 {
			m.baseDelay = base
		}
		if ceiling > 0 {
			m.maxDelay = ceiling
		}
		if attempts > 0 {
			m.maxAttempts = attempts
		}
	}
}

// OnChange registers fn to be called on every online/offline transition.
func OnChange(fn func(online bool)) Option {
	return func(m *Monitor) { m.onChange = fn }
}

func NewMonitor(log *logger.Logger, probes []Probe, opts ...Option) *Monitor {
	if log == nil {
		log = logger.Nop()
	}
	m := &Monitor{
		probes:      probes,
		log:         log,
		interval:    DefaultInterval,
		baseDelay:   DefaultBaseDelay,
		maxDelay:    DefaultMaxDelay,
		maxAttempts: DefaultMaxAttempts,
		online:      true,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Monitor) Online() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

// Run probes until ctx is cancelled.
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.check(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.check(ctx)
		}
	}
}

func (m *Monitor) check(ctx context.Context) {
	err := m.probe(ctx)
	if err == nil {
		m.set(true)
		return
	}
	if ctx.Err() != nil {
		return
	}
	m.log.Warn("backend probe failed", "error", err)
	m.set(false)
	m.reconnect(ctx)
}

// reconnect retries the probes on the backoff schedule until one round succeeds,
// attempts run out, or ctx ends.
func (m *Monitor) reconnect(ctx context.Context) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = m.baseDelay
	b.MaxInterval = m.maxDelay
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0
	b.Reset()
	policy := backoff.WithMaxRetries(b, uint64(m.maxAttempts))

	for attempt := 1; ; attempt++ {
		wait := policy.NextBackOff()
		if wait == backoff.Stop {
			m.log.Warn("giving up reconnect", "attempts", m.maxAttempts)
			return
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
		if err := m.probe(ctx); err != nil {
			m.log.Debug("reconnect attempt failed", "attempt", attempt, "wait", wait.String(), "error", err)
			continue
		}
		m.set(true)
		return
	}
}

func (m *Monitor) probe(ctx context.Context) error {
	for _, p := range m.probes {
		if err := p(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (m *Monitor) set(online bool) {
	m.mu.Lock()
	changed := m.online != online
	m.online = online
	m.mu.Unlock()

	if !changed {
		return
	}
	if online {
		m.log.Info("backend reachable")
	} else {
		m.log.Warn("backend unreachable")
	}
	if m.onChange != nil {
		m.onChange(online)
	}
}
