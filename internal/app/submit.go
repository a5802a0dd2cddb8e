package app

import (
	"context"
	"errors"
	"time"

	"adaptive-test-service/internal/domain"
	"adaptive-test-service/internal/logger"
	"github.com/cenkalti/backoff/v4"
)

// retryingSink retries transient submission failures with exponential backoff.
// Authorization failures are returned immediately.
type retryingSink struct {
	next      AttemptSink
	log       *logger.Logger
	attempts  int
	baseDelay time.Duration
	maxDelay  time.Duration
}

func newRetryingSink(next AttemptSink, log *logger.Logger, attempts int, baseDelay, maxDelay time.Duration) *retryingSink {
	if attempts <= 0 {
		attempts = 1
	}
	return &retryingSink{next: next, log: log, attempts: attempts, baseDelay: baseDelay, maxDelay: maxDelay}
}

func (r *retryingSink) SubmitAttempt(ctx context.Context, submission domain.AttemptSubmission) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.baseDelay
	b.MaxInterval = r.maxDelay
	b.Multiplier = 2
	b.MaxElapsedTime = 0

	op := func() error {
		err := r.next.SubmitAttempt(ctx, submission)
		if errors.Is(err, domain.ErrUnauthorized) {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, wait time.Duration) {
		r.log.Warn("attempt submission failed, retrying",
			"session_id", submission.SessionID, "error", err, "wait", wait.String())
	}
	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(r.attempts-1)), ctx)
	return backoff.RetryNotify(op, policy, notify)
}
