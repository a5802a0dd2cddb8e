package recovery

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"adaptive-test-service/internal/domain"
	"adaptive-test-service/internal/logger"
)

const (
	DefaultInterval = 30 * time.Second
	DefaultMaxAge   = 24 * time.Hour
	DefaultKey      = "test_session_backup"
)

// Storage is a durable key/value byte store. A missing key is reported with ok=false,
// not an error.
type Storage interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
	Remove(ctx context.Context, key string) error
}

// Controller keeps at most one backup under its key. Every storage failure is logged and
// swallowed: losing the backup must never stop a test.
type Controller struct {
	store    Storage
	log      *logger.Logger
	key      string
	interval time.Duration
	maxAge   time.Duration
	now      func() time.Time

	mu         sync.Mutex
	lastBackup time.Time
}

type Option func(*Controller)

// WithKey scopes the backup record, e.g. per user.
func WithKey(key string) Option {
	return func(c *Controller) { c.key = key }
}

func WithInterval(d time.Duration) Option {
	return func(c *Controller) {
		if d > 0 {
			c.interval = d
		}
	}
}

func WithMaxAge(d time.Duration) Option {
	return func(c *Controller) {
		if d > 0 {
			c.maxAge = d
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(c *Controller) { c.now = now }
}

func NewController(store Storage, log *logger.Logger, opts ...Option) *Controller {
	if log == nil {
		log = logger.Nop()
	}
	c := &Controller{
		store:    store,
		log:      log,
		key:      DefaultKey,
		interval: DefaultInterval,
		maxAge:   DefaultMaxAge,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.log = c.log.With("backup_key", c.key)
	return c
}

// ShouldBackup reports whether more than the backup interval has passed since the last
// successful write.
func (c *Controller) ShouldBackup() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastBackup.IsZero() || c.now().Sub(c.lastBackup) > c.interval
}

func (c *Controller) LastBackup() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastBackup
}

// CreateBackup overwrites the backup record. It reports whether the write succeeded.
func (c *Controller) CreateBackup(ctx context.Context, testID string, session domain.Session, answers []domain.LedgerEntry, results []domain.ModuleResult) bool {
	now := c.now()
	record := domain.SessionBackup{
		Timestamp:     now,
		TestID:        testID,
		Session:       session,
		Answers:       answers,
		ModuleResults: results,
	}
	data, err := json.Marshal(record)
	if err != nil {
		c.log.Warn("encode session backup", "test_id", testID, "error", err)
		return false
	}
	if err := c.store.Set(ctx, c.key, data); err != nil {
		c.log.Warn("write session backup", "test_id", testID, "error", err)
		return false
	}

	c.mu.Lock()
	c.lastBackup = now
	c.mu.Unlock()
	c.log.Debug("session backup written", "test_id", testID, "session_id", session.SessionID)
	return true
}

// RestoreSession returns the stored backup unless it is missing, unreadable, or older
// than the max age. Unreadable and stale records are removed.
func (c *Controller) RestoreSession(ctx context.Context) (domain.SessionBackup, bool) {
	data, ok, err := c.store.Get(ctx, c.key)
	if err != nil {
		c.log.Warn("read session backup", "error", err)
		return domain.SessionBackup{}, false
	}
	if !ok {
		return domain.SessionBackup{}, false
	}

	var record domain.SessionBackup
	if err := json.Unmarshal(data, &record); err != nil {
		c.log.Warn("discarding unreadable session backup", "error", err)
		c.remove(ctx)
		return domain.SessionBackup{}, false
	}
	if age := c.now().Sub(record.Timestamp); age > c.maxAge {
		c.log.Info("discarding stale session backup", "test_id", record.TestID, "age", age.String())
		c.remove(ctx)
		return domain.SessionBackup{}, false
	}
	return record, true
}

// ClearBackup removes the backup when it belongs to testID, or unconditionally when
// testID is empty.
func (c *Controller) ClearBackup(ctx context.Context, testID string) {
	if testID != "" {
		data, ok, err := c.store.Get(ctx, c.key)
		if err != nil {
			c.log.Warn("read session backup", "error", err)
			return
		}
		if !ok {
			return
		}
		var record domain.SessionBackup
		if err := json.Unmarshal(data, &record); err == nil && record.TestID != testID {
			return
		}
	}
	c.remove(ctx)
}

func (c *Controller) remove(ctx context.Context) {
	if err := c.store.Remove(ctx, c.key); err != nil {
		c.log.Warn("remove session backup", "error", err)
		return
	}
	c.mu.Lock()
	c.lastBackup = time.Time{}
	c.mu.Unlock()
}
