package engine

import (
	"context"
	"testing"
	"time"

	"adaptive-test-service/internal/domain"
)

func TestTimerDrivesExpiry(t *testing.T) {
	def := twoModuleTest()
	def.Modules[0].DurationSeconds = 3
	e := newStarted(t, def)

	timer := NewTimer(e, 5*time.Millisecond)
	timer.Start(context.Background())
	defer timer.Stop()

	select {
	case <-e.Done():
	case <-time.After(2 * time.Second):
		t.Fatalf("timer did not expire the module")
	}
	if e.Status() != domain.StatusCompleted {
		t.Fatalf("expected completed, got %s", e.Status())
	}
	if got := e.Snapshot().Session.TimeRemainingSeconds; got != 0 {
		t.Fatalf("expected no time left, got %d", got)
	}
}

func TestTimerSuspendedDuringBreak(t *testing.T) {
	e := newStarted(t, twoModuleTest())
	accept(t, "complete module", e.CompleteModule())
	accept(t, "start break", e.StartBreak())
	frozen := e.Snapshot().Session.TimeRemainingSeconds

	timer := NewTimer(e, time.Millisecond)
	timer.Start(context.Background())
	time.Sleep(30 * time.Millisecond)
	timer.Stop()

	if got := e.Snapshot().Session.TimeRemainingSeconds; got != frozen {
		t.Fatalf("clock moved during break: %d -> %d", frozen, got)
	}
	if e.Status() != domain.StatusOnBreak {
		t.Fatalf("expected on-break, got %s", e.Status())
	}
}

func TestTimerStopCancelsTicks(t *testing.T) {
	e := newStarted(t, twoModuleTest())
	timer := NewTimer(e, time.Millisecond)
	timer.Start(context.Background())
	time.Sleep(10 * time.Millisecond)
	timer.Stop()

	after := e.Snapshot().Session.TimeRemainingSeconds
	time.Sleep(20 * time.Millisecond)
	if got := e.Snapshot().Session.TimeRemainingSeconds; got != after {
		t.Fatalf("ticks continued after stop: %d -> %d", after, got)
	}
	timer.Stop()
}
