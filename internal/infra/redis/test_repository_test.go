package redis

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"adaptive-test-service/internal/domain"
	"adaptive-test-service/internal/infra/memory"
	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestTestRepositoryCachesInRedis(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	client := newClient(mr)

	loader := &countingLoader{
		TestLoader: memory.NewStaticTestLoader(map[string]domain.TestDefinition{
			"sat-1": sampleTest(),
		}),
	}
	repo := NewTestRepository(client, loader, time.Minute, nil)

	def, err := repo.GetTest(context.Background(), "sat-1")
	if err != nil {
		t.Fatalf("get test: %v", err)
	}
	if loader.Calls() != 1 {
		t.Fatalf("expected loader called once, got %d", loader.Calls())
	}
	if !mr.Exists("test:sat-1:definition") {
		t.Fatalf("expected definition cached in redis")
	}
	if ttl := mr.TTL("test:sat-1:definition"); ttl < time.Minute || ttl > 66*time.Second {
		t.Fatalf("expected ttl with jitter, got %s", ttl)
	}

	// Second call should hit cache, loader not incremented.
	cached, err := repo.GetTest(context.Background(), "sat-1")
	if err != nil {
		t.Fatalf("get cached test: %v", err)
	}
	if loader.Calls() != 1 {
		t.Fatalf("expected cache hit, loader calls=%d", loader.Calls())
	}
	got := cached.Modules[0].Questions[0].CorrectAnswer
	if got.Text != def.Modules[0].Questions[0].CorrectAnswer.Text {
		t.Fatalf("cached definition lost correct answer: %+v", got)
	}
}

func TestTestRepositoryReloadsCorruptCache(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	if err := mr.Set("test:sat-1:definition", "{broken"); err != nil {
		t.Fatalf("seed: %v", err)
	}
	loader := &countingLoader{
		TestLoader: memory.NewStaticTestLoader(map[string]domain.TestDefinition{"sat-1": sampleTest()}),
	}
	repo := NewTestRepository(newClient(mr), loader, time.Minute, nil)

	if _, err := repo.GetTest(context.Background(), "sat-1"); err != nil {
		t.Fatalf("get test: %v", err)
	}
	if loader.Calls() != 1 {
		t.Fatalf("expected loader fallback, calls=%d", loader.Calls())
	}
}

func TestTestRepositoryNotFound(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	repo := NewTestRepository(newClient(mr), memory.NewStaticTestLoader(nil), time.Minute, nil)
	if _, err := repo.GetTest(context.Background(), "missing"); !errors.Is(err, domain.ErrTestNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if mr.Exists("test:missing:definition") {
		t.Fatalf("misses must not be cached")
	}
}

type countingLoader struct {
	TestLoader
	mu    sync.Mutex
	calls int
}

func (l *countingLoader) LoadTest(ctx context.Context, testID string) (domain.TestDefinition, error) {
	l.mu.Lock()
	l.calls++
	l.mu.Unlock()
	return l.TestLoader.LoadTest(ctx, testID)
}

func (l *countingLoader) Calls() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.calls
}

func sampleTest() domain.TestDefinition {
	return domain.TestDefinition{
		ID: "sat-1",
		Modules: []domain.Module{
			{
				Number:          1,
				Subject:         "Math",
				Difficulty:      domain.DifficultyMedium,
				DurationSeconds: 600,
				Questions: []domain.Question{
					{
						ID:            "q1",
						Type:          domain.QuestionMCQ,
						Prompt:        "What is 2 + 2?",
						Options:       []string{"3", "4"},
						CorrectAnswer: domain.TextAnswer("4"),
						Points:        1,
					},
				},
			},
		},
	}
}

func newClient(mr *miniredis.Miniredis) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})
}
