package recovery

import (
	"context"
	"time"

	"adaptive-test-service/internal/domain"
)

// Source yields the state to back up; ok=false skips the round (nothing live to save).
type Source func() (domain.SessionBackup, bool)

// AutoSave checks every checkEvery whether a backup is due and writes one if so. It runs
// until ctx is cancelled and never blocks the caller's event handling.
func (c *Controller) AutoSave(ctx context.Context, checkEvery time.Duration, source Source) {
	if checkEvery <= 0 {
		checkEvery = 5 * time.Second
	}
	ticker := time.NewTicker(checkEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !c.ShouldBackup() {
				continue
			}
			backup, ok := source()
			if !ok {
				continue
			}
			c.CreateBackup(ctx, backup.TestID, backup.Session, backup.Answers, backup.ModuleResults)
		}
	}
}
