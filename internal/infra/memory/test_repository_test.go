package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"adaptive-test-service/internal/domain"
)

func TestTestRepositoryCaches(t *testing.T) {
	loader := &countingLoader{
		TestLoader: NewStaticTestLoader(map[string]domain.TestDefinition{
			"sat-1": sampleTest(),
		}),
	}
	repo := NewTestRepository(loader, time.Minute)

	if _, err := repo.GetTest(context.Background(), "sat-1"); err != nil {
		t.Fatalf("get test: %v", err)
	}
	if loader.Calls() != 1 {
		t.Fatalf("expected loader once, got %d", loader.Calls())
	}

	def, err := repo.GetTest(context.Background(), "sat-1")
	if err != nil {
		t.Fatalf("get test 2: %v", err)
	}
	if loader.Calls() != 1 {
		t.Fatalf("expected cache hit, loader calls %d", loader.Calls())
	}
	if len(def.Modules) != 1 || def.Modules[0].Questions[0].ID != "q1" {
		t.Fatalf("unexpected cached definition %+v", def)
	}
}

func TestTestRepositoryExpires(t *testing.T) {
	loader := &countingLoader{
		TestLoader: NewStaticTestLoader(map[string]domain.TestDefinition{"sat-1": sampleTest()}),
	}
	repo := NewTestRepository(loader, time.Minute)
	now := time.Now()
	repo.clock = func() time.Time { return now }

	if _, err := repo.GetTest(context.Background(), "sat-1"); err != nil {
		t.Fatalf("get test: %v", err)
	}
	now = now.Add(2 * time.Minute)
	if _, err := repo.GetTest(context.Background(), "sat-1"); err != nil {
		t.Fatalf("get test after expiry: %v", err)
	}
	if loader.Calls() != 2 {
		t.Fatalf("expected reload after ttl, loader calls %d", loader.Calls())
	}
}

func TestTestRepositoryNotFound(t *testing.T) {
	repo := NewTestRepository(NewStaticTestLoader(nil), time.Minute)
	if _, err := repo.GetTest(context.Background(), "missing"); !errors.Is(err, domain.ErrTestNotFound) {
		t.Fatalf("expected not found, got %v", err)
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
		ID:    "sat-1",
		Title: "Practice SAT",
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
