package postgres

import (
	"context"
	"fmt"
	"time"

	"adaptive-test-service/internal/domain"
	"github.com/uptrace/bun"
)

type attemptRow struct {
	bun.BaseModel `bun:"table:attempts"`

	SessionID        string               `bun:"session_id,pk"`
	UserID           string               `bun:"user_id,notnull"`
	TestID           string               `bun:"test_id,notnull"`
	FinalScore       int                  `bun:"final_score,notnull"`
	MaxScore         int                  `bun:"max_score,notnull"`
	Grade            string               `bun:"grade,notnull"`
	TimeSpentSeconds int                  `bun:"time_spent_seconds,notnull"`
	Answers          []domain.LedgerEntry `bun:"answers,type:jsonb"`
	Report           domain.AttemptReport `bun:"report,type:jsonb"`
	CompletedAt      time.Time            `bun:"completed_at,notnull"`
}

// AttemptSink records completed attempts. Resubmitting the same session is a no-op so
// retried submissions stay idempotent.
type AttemptSink struct {
	db *bun.DB
}

func NewAttemptSink(db *bun.DB) *AttemptSink {
	return &AttemptSink{db: db}
}

func (s *AttemptSink) SubmitAttempt(ctx context.Context, submission domain.AttemptSubmission) error {
	row := attemptRow{
		SessionID:        submission.SessionID,
		UserID:           submission.UserID,
		TestID:           submission.TestID,
		FinalScore:       submission.FinalScore,
		MaxScore:         submission.MaxScore,
		Grade:            submission.Report.Grade,
		TimeSpentSeconds: submission.TimeSpentSeconds,
		Answers:          submission.Answers,
		Report:           submission.Report,
		CompletedAt:      submission.CompletedAt,
	}
	if _, err := s.db.NewInsert().Model(&row).On("CONFLICT (session_id) DO NOTHING").Exec(ctx); err != nil {
		return fmt.Errorf("insert attempt: %w", err)
	}
	return nil
}

// AttemptsForUser lists a user's recorded attempts, newest first.
func (s *AttemptSink) AttemptsForUser(ctx context.Context, userID string) ([]domain.AttemptSubmission, error) {
	var rows []attemptRow
	err := s.db.NewSelect().Model(&rows).Where("user_id = ?", userID).Order("completed_at DESC").Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("select attempts: %w", err)
	}
	out := make([]domain.AttemptSubmission, 0, len(rows))
	for _, r := range rows {
		out = append(out, domain.AttemptSubmission{
			SessionID:        r.SessionID,
			UserID:           r.UserID,
			TestID:           r.TestID,
			FinalScore:       r.FinalScore,
			MaxScore:         r.MaxScore,
			TimeSpentSeconds: r.TimeSpentSeconds,
			Answers:          r.Answers,
			Report:           r.Report,
			CompletedAt:      r.CompletedAt,
		})
	}
	return out, nil
}
