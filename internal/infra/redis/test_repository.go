package redis

import (
	"context"
	"encoding/json"
	"math/rand"
	"sync"
	"time"

	"adaptive-test-service/internal/domain"
	"adaptive-test-service/internal/logger"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

// TestLoader fetches test definitions from a backing store (e.g., Postgres).
type TestLoader interface {
	LoadTest(ctx context.Context, testID string) (domain.TestDefinition, error)
}

// TestRepository caches test definitions in Redis and falls back to a loader on cache miss.
// Definitions are stored as JSON: SET test:{testID}:definition {json} EX ttl
type TestRepository struct {
	client *redis.Client
	loader TestLoader
	ttl    time.Duration
	log    *logger.Logger
	sf     singleflight.Group

	rndMu sync.Mutex
	rnd   *rand.Rand
}

func NewTestRepository(client *redis.Client, loader TestLoader, ttl time.Duration, log *logger.Logger) *TestRepository {
	if log == nil {
		log = logger.Nop()
	}
	return &TestRepository{
		client: client,
		loader: loader,
		ttl:    ttl,
		log:    log,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (r *TestRepository) GetTest(ctx context.Context, testID string) (domain.TestDefinition, error) {
	if def, ok := r.cached(ctx, testID); ok {
		return def, nil
	}

	result, err, _ := r.sf.Do(testID, func() (interface{}, error) {
		// Re-check cache in case another goroutine filled it.
		if def, ok := r.cached(ctx, testID); ok {
			return def, nil
		}

		def, err := r.loader.LoadTest(ctx, testID)
		if err != nil {
			return domain.TestDefinition{}, err
		}

		data, err := json.Marshal(def)
		if err != nil {
			return def, nil
		}
		if err := r.client.Set(ctx, r.key(testID), data, r.ttlWithJitter()).Err(); err != nil {
			r.log.Warn("cache test definition", "test_id", testID, "error", err)
		}
		return def, nil
	})
	if err != nil {
		return domain.TestDefinition{}, err
	}
	return result.(domain.TestDefinition), nil
}

func (r *TestRepository) cached(ctx context.Context, testID string) (domain.TestDefinition, bool) {
	data, err := r.client.Get(ctx, r.key(testID)).Bytes()
	if err != nil {
		if err != redis.Nil {
			r.log.Warn("read cached test definition", "test_id", testID, "error", err)
		}
		return domain.TestDefinition{}, false
	}
	var def domain.TestDefinition
	if err := json.Unmarshal(data, &def); err != nil {
		r.log.Warn("discarding unreadable cached definition", "test_id", testID, "error", err)
		return domain.TestDefinition{}, false
	}
	return def, true
}

func (r *TestRepository) key(testID string) string {
	return "test:" + testID + ":definition"
}

func (r *TestRepository) ttlWithJitter() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	jitterMax := int64(r.ttl) / 10
	r.rndMu.Lock()
	defer r.rndMu.Unlock()
	return r.ttl + time.Duration(r.rnd.Int63n(jitterMax+1))
}
