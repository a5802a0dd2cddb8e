package memory

import (
	"context"
	"sync"

	"adaptive-test-service/internal/domain"
)

// AttemptSink keeps submitted attempts in memory.
type AttemptSink struct {
	mu       sync.Mutex
	attempts []domain.AttemptSubmission
}

func NewAttemptSink() *AttemptSink {
	return &AttemptSink{}
}

func (s *AttemptSink) SubmitAttempt(_ context.Context, submission domain.AttemptSubmission) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attempts = append(s.attempts, submission)
	return nil
}

// Attempts returns a copy of everything submitted so far.
func (s *AttemptSink) Attempts() []domain.AttemptSubmission {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.AttemptSubmission(nil), s.attempts...)
}

// AttemptsForUser lists a user's submissions, newest first.
func (s *AttemptSink) AttemptsForUser(_ context.Context, userID string) ([]domain.AttemptSubmission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.AttemptSubmission, 0)
	for i := len(s.attempts) - 1; i >= 0; i-- {
		if s.attempts[i].UserID == userID {
			out = append(out, s.attempts[i])
		}
	}
	return out, nil
}

// PlanAccess grants tests to users by plan name. An empty required plan is open to everyone.
type PlanAccess struct {
	mu    sync.RWMutex
	plans map[string]map[string]struct{}
}

func NewPlanAccess() *PlanAccess {
	return &PlanAccess{plans: make(map[string]map[string]struct{})}
}

// Grant records that userID purchased plan.
func (a *PlanAccess) Grant(userID, plan string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.plans[userID] == nil {
		a.plans[userID] = make(map[string]struct{})
	}
	a.plans[userID][plan] = struct{}{}
}

func (a *PlanAccess) HasAccess(_ context.Context, userID, _ string, requiredPlan string) (bool, error) {
	if requiredPlan == "" {
		return true, nil
	}
	a.mu.RLock()
	defer a.mu.RUnlock()
	_, ok := a.plans[userID][requiredPlan]
	return ok, nil
}
