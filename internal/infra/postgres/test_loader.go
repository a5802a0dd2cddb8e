package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"adaptive-test-service/internal/domain"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
)

// TestLoader loads test definition JSONB from Postgres.
type TestLoader struct {
	pool *pgxpool.Pool
}

func NewTestLoader(pool *pgxpool.Pool) *TestLoader {
	return &TestLoader{pool: pool}
}

func (l *TestLoader) LoadTest(ctx context.Context, testID string) (domain.TestDefinition, error) {
	var raw []byte
	err := l.pool.QueryRow(ctx, `SELECT data FROM tests WHERE id=$1`, testID).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.TestDefinition{}, domain.ErrTestNotFound
	}
	if err != nil {
		return domain.TestDefinition{}, fmt.Errorf("load test: %w", err)
	}
	var def domain.TestDefinition
	if err := json.Unmarshal(raw, &def); err != nil {
		return domain.TestDefinition{}, fmt.Errorf("unmarshal test: %w", err)
	}
	if def.ID == "" {
		def.ID = testID
	}
	return def, nil
}

// AccessAuthority answers plan checks from the purchases table.
type AccessAuthority struct {
	pool *pgxpool.Pool
}

func NewAccessAuthority(pool *pgxpool.Pool) *AccessAuthority {
	return &AccessAuthority{pool: pool}
}

func (a *AccessAuthority) HasAccess(ctx context.Context, userID, _ string, requiredPlan string) (bool, error) {
	if requiredPlan == "" {
		return true, nil
	}
	var ok bool
	err := a.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM purchases
			WHERE user_id = $1 AND plan = $2 AND (expires_at IS NULL OR expires_at > now())
		)`, userID, requiredPlan).Scan(&ok)
	if err != nil {
		return false, fmt.Errorf("query purchases: %w", err)
	}
	return ok, nil
}
