package memory

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"adaptive-test-service/internal/domain"
	"golang.org/x/sync/singleflight"
)

// TestLoader fetches test definitions from a backing store (e.g., Postgres).
type TestLoader interface {
	LoadTest(ctx context.Context, testID string) (domain.TestDefinition, error)
}

// TestRepository caches definitions with TTL to avoid repeated DB hits.
type TestRepository struct {
	loader TestLoader
	ttl    time.Duration
	clock  func() time.Time
	sf     singleflight.Group
	rnd    *rand.Rand

	mu    sync.RWMutex
	cache map[string]cachedTest
}

type cachedTest struct {
	def       domain.TestDefinition
	expiresAt time.Time
}

func NewTestRepository(loader TestLoader, ttl time.Duration) *TestRepository {
	return &TestRepository{
		loader: loader,
		ttl:    ttl,
		clock:  time.Now,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
		cache:  make(map[string]cachedTest),
	}
}

func (r *TestRepository) GetTest(ctx context.Context, testID string) (domain.TestDefinition, error) {
	if def, ok := r.cached(testID); ok {
		return def, nil
	}

	result, err, _ := r.sf.Do(testID, func() (interface{}, error) {
		if def, ok := r.cached(testID); ok {
			return def, nil
		}

		def, err := r.loader.LoadTest(ctx, testID)
		if err != nil {
			return domain.TestDefinition{}, err
		}

		r.mu.Lock()
		r.cache[testID] = cachedTest{
			def:       def,
			expiresAt: r.clock().Add(r.ttlWithJitter()),
		}
		r.mu.Unlock()
		return def, nil
	})
	if err != nil {
		return domain.TestDefinition{}, err
	}
	return result.(domain.TestDefinition), nil
}

func (r *TestRepository) cached(testID string) (domain.TestDefinition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.cache[testID]
	if !ok || !entry.expiresAt.After(r.clock()) {
		return domain.TestDefinition{}, false
	}
	return entry.def, true
}

// ttlWithJitter adds up to 10% to spread expirations. Called with r.mu held.
func (r *TestRepository) ttlWithJitter() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	jitterMax := int64(r.ttl) / 10
	return r.ttl + time.Duration(r.rnd.Int63n(jitterMax+1))
}

// StaticTestLoader serves definitions from a map (tests and local runs).
type StaticTestLoader struct {
	tests map[string]domain.TestDefinition
}

func NewStaticTestLoader(tests map[string]domain.TestDefinition) *StaticTestLoader {
	return &StaticTestLoader{tests: tests}
}

func (l *StaticTestLoader) LoadTest(_ context.Context, testID string) (domain.TestDefinition, error) {
	if def, ok := l.tests[testID]; ok {
		return def, nil
	}
	return domain.TestDefinition{}, domain.ErrTestNotFound
}
