package app

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"adaptive-test-service/internal/domain"
	"adaptive-test-service/internal/engine"
	"adaptive-test-service/internal/logger"
	"adaptive-test-service/internal/recovery"
)

// SessionRepository abstracts where live attempts are kept (in-memory, Redis-marked, etc).
type SessionRepository interface {
	Put(attempt *Attempt)
	Get(sessionID string) (*Attempt, bool)
	Delete(sessionID string)
}

// TestRepository loads test definitions (from cache/backing store).
type TestRepository interface {
	GetTest(ctx context.Context, testID string) (domain.TestDefinition, error)
}

// AttemptSink persists a completed attempt.
type AttemptSink interface {
	SubmitAttempt(ctx context.Context, submission domain.AttemptSubmission) error
}

// AccessAuthority decides whether a user's purchases cover a test.
type AccessAuthority interface {
	HasAccess(ctx context.Context, userID, testID, requiredPlan string) (bool, error)
}

// EventType names a student action forwarded to the engine.
type EventType string

const (
	EventAnswer         EventType = "answer"
	EventNavigate       EventType = "navigate"
	EventFlag           EventType = "flag"
	EventCompleteModule EventType = "completeModule"
	EventStartBreak     EventType = "startBreak"
	EventContinue       EventType = "continue"
	EventSubmit         EventType = "submit"
)

// ErrUnknownEvent is returned by Dispatch for unsupported event types.
var ErrUnknownEvent = errors.New("unknown session event")

type Event struct {
	Type   EventType     `json:"type"`
	Index  int           `json:"index"`
	Answer domain.Answer `json:"answer"`
}

// Config tunes timers and retry policy. Zero values fall back to defaults.
type Config struct {
	TickInterval    time.Duration
	BackupInterval  time.Duration
	BackupMaxAge    time.Duration
	AutoSaveEvery   time.Duration
	SubmitAttempts  int
	SubmitBaseDelay time.Duration
	SubmitMaxDelay  time.Duration
	SubmitTimeout   time.Duration
	BackupKeyPrefix string

	// FinishedRetention is how long a submitted attempt stays reachable for its final
	// state and report before it leaves the session repository.
	FinishedRetention time.Duration
}

func (c Config) withDefaults() Config {
	if c.TickInterval <= 0 {
		c.TickInterval = time.Second
	}
	if c.BackupInterval <= 0 {
		c.BackupInterval = recovery.DefaultInterval
	}
	if c.BackupMaxAge <= 0 {
		c.BackupMaxAge = recovery.DefaultMaxAge
	}
	if c.AutoSaveEvery <= 0 {
		c.AutoSaveEvery = 5 * time.Second
	}
	if c.SubmitAttempts <= 0 {
		c.SubmitAttempts = 5
	}
	if c.SubmitBaseDelay <= 0 {
		c.SubmitBaseDelay = time.Second
	}
	if c.SubmitMaxDelay <= 0 {
		c.SubmitMaxDelay = 30 * time.Second
	}
	if c.SubmitTimeout <= 0 {
		c.SubmitTimeout = 2 * time.Minute
	}
	if c.BackupKeyPrefix == "" {
		c.BackupKeyPrefix = recovery.DefaultKey
	}
	if c.FinishedRetention <= 0 {
		c.FinishedRetention = time.Minute
	}
	return c
}

// Dependencies are the collaborators a SessionService is wired with.
type Dependencies struct {
	Sessions SessionRepository
	Tests    TestRepository
	Access   AccessAuthority
	Sink     AttemptSink
	Backups  recovery.Storage
	Logger   *logger.Logger
	// Clock defaults to time.Now.
	Clock func() time.Time
}

// SessionService contains the test-taking use cases.
type SessionService struct {
	sessions SessionRepository
	tests    TestRepository
	access   AccessAuthority
	sink     AttemptSink
	backups  recovery.Storage
	log      *logger.Logger
	now      func() time.Time
	cfg      Config
	offline  atomic.Bool
}

func NewSessionService(deps Dependencies, cfg Config) *SessionService {
	cfg = cfg.withDefaults()
	log := deps.Logger
	if log == nil {
		log = logger.Nop()
	}
	now := deps.Clock
	if now == nil {
		now = time.Now
	}
	return &SessionService{
		sessions: deps.Sessions,
		tests:    deps.Tests,
		access:   deps.Access,
		sink:     newRetryingSink(deps.Sink, log, cfg.SubmitAttempts, cfg.SubmitBaseDelay, cfg.SubmitMaxDelay),
		backups:  deps.Backups,
		log:      log,
		now:      now,
		cfg:      cfg,
	}
}

// Start checks access, loads the test and begins a new attempt on its entry module.
func (s *SessionService) Start(ctx context.Context, userID, testID string) (engine.Snapshot, error) {
	def, err := s.loadAuthorized(ctx, userID, testID)
	if err != nil {
		return engine.Snapshot{}, err
	}

	attempt := newAttempt(userID)
	eng, err := engine.New(def, s.engineOptions(attempt, userID)...)
	if err != nil {
		return engine.Snapshot{}, err
	}
	attempt.engine = eng
	eng.Start()

	s.launch(attempt)
	snap := eng.Snapshot()
	attempt.backup.CreateBackup(ctx, testID, snap.Session, snap.Answers, snap.Results)
	s.log.Info("test session started", "session_id", snap.Session.SessionID, "user_id", userID, "test_id", testID)
	return snap, nil
}

// Resume restores the user's backed-up attempt, if one is fresh enough to continue.
func (s *SessionService) Resume(ctx context.Context, userID string) (engine.Snapshot, error) {
	ctrl := s.backupController(userID)
	backup, ok := ctrl.RestoreSession(ctx)
	if !ok {
		return engine.Snapshot{}, domain.ErrSessionNotFound
	}
	if live, ok := s.sessions.Get(backup.Session.SessionID); ok && live.userID == userID {
		return live.engine.Snapshot(), nil
	}

	def, err := s.loadAuthorized(ctx, userID, backup.TestID)
	if err != nil {
		return engine.Snapshot{}, err
	}

	attempt := newAttempt(userID)
	eng, err := engine.Restore(def, backup, s.engineOptions(attempt, userID)...)
	if err != nil {
		s.log.Warn("discarding unusable session backup", "user_id", userID, "test_id", backup.TestID, "error", err)
		ctrl.ClearBackup(ctx, "")
		return engine.Snapshot{}, err
	}
	attempt.engine = eng

	s.launch(attempt)
	snap := eng.Snapshot()
	s.log.Info("test session resumed", "session_id", snap.Session.SessionID, "user_id", userID, "status", snap.Session.Status)
	return snap, nil
}

// Dispatch applies one student event. accepted is false when the event does not apply in
// the current state; that is not an error.
func (s *SessionService) Dispatch(ctx context.Context, userID, sessionID string, ev Event) (engine.Snapshot, bool, error) {
	attempt, err := s.attempt(userID, sessionID)
	if err != nil {
		return engine.Snapshot{}, false, err
	}
	eng := attempt.engine

	var accepted bool
	switch ev.Type {
	case EventAnswer:
		accepted = eng.SubmitAnswer(ev.Index, ev.Answer)
	case EventNavigate:
		accepted = eng.Navigate(ev.Index)
	case EventFlag:
		accepted = eng.FlagQuestion(ev.Index)
	case EventCompleteModule:
		accepted = eng.CompleteModule()
	case EventStartBreak:
		accepted = eng.StartBreak()
	case EventContinue:
		accepted = eng.ContinueToNextModule()
	case EventSubmit:
		accepted = eng.SubmitTest()
	default:
		return engine.Snapshot{}, false, fmt.Errorf("%w: %q", ErrUnknownEvent, ev.Type)
	}

	snap := eng.Snapshot()
	if accepted && snap.Session.Status != domain.StatusCompleted && attempt.backup.ShouldBackup() {
		attempt.backup.CreateBackup(ctx, snap.Session.TestID, snap.Session, snap.Answers, snap.Results)
	}
	return snap, accepted, nil
}

func (s *SessionService) Snapshot(_ context.Context, userID, sessionID string) (engine.Snapshot, error) {
	attempt, err := s.attempt(userID, sessionID)
	if err != nil {
		return engine.Snapshot{}, err
	}
	return attempt.engine.Snapshot(), nil
}

// Report returns the attempt-level summary of the modules completed so far.
func (s *SessionService) Report(_ context.Context, userID, sessionID string) (domain.AttemptReport, error) {
	attempt, err := s.attempt(userID, sessionID)
	if err != nil {
		return domain.AttemptReport{}, err
	}
	return attempt.engine.Report(), nil
}

// Subscribe returns a channel of snapshots for an attempt.
// The caller must invoke the returned cancel function to avoid leaks.
func (s *SessionService) Subscribe(_ context.Context, userID, sessionID string) (<-chan engine.Snapshot, func(), error) {
	attempt, err := s.attempt(userID, sessionID)
	if err != nil {
		return nil, nil, err
	}
	ch, cancel := attempt.subscribe()
	return ch, cancel, nil
}

// Close detaches an attempt: timers stop and it leaves the repository. Its backup is kept
// so the student can resume later.
func (s *SessionService) Close(_ context.Context, userID, sessionID string) {
	attempt, err := s.attempt(userID, sessionID)
	if err != nil {
		return
	}
	attempt.stop()
	s.sessions.Delete(sessionID)
	s.log.Info("test session closed", "session_id", sessionID, "user_id", userID)
}

// Attempt looks up a live attempt regardless of owner.
func (s *SessionService) Attempt(sessionID string) (*Attempt, bool) {
	return s.sessions.Get(sessionID)
}

// SetOnline records backend reachability as reported by the connectivity monitor.
func (s *SessionService) SetOnline(online bool) {
	if s.offline.Swap(!online) == !online {
		return
	}
	if online {
		s.log.Info("backend reachable again")
	} else {
		s.log.Warn("backend unreachable, continuing from local state")
	}
}

func (s *SessionService) Offline() bool {
	return s.offline.Load()
}

func (s *SessionService) loadAuthorized(ctx context.Context, userID, testID string) (domain.TestDefinition, error) {
	def, err := s.tests.GetTest(ctx, testID)
	if err != nil {
		return domain.TestDefinition{}, err
	}
	if v, err := engine.Validate(def); err == nil {
		for _, r := range v.Dropped {
			s.log.Warn("ignoring malformed adaptive rule", "test_id", testID, "from", r.FromModule, "to", r.ToModule)
		}
	}
	ok, err := s.access.HasAccess(ctx, userID, testID, def.RequiredPlan)
	if err != nil {
		return domain.TestDefinition{}, fmt.Errorf("check access: %w", err)
	}
	if !ok {
		return domain.TestDefinition{}, domain.ErrAccessDenied
	}
	return def, nil
}

func (s *SessionService) engineOptions(attempt *Attempt, userID string) []engine.Option {
	return []engine.Option{
		engine.WithUserID(userID),
		engine.WithClock(s.now),
		engine.WithObserver(func(snap engine.Snapshot) {
			attempt.broadcast(snap)
			if snap.Session.Status == domain.StatusCompleted {
				go s.finalize(attempt, snap)
			}
		}),
	}
}

func (s *SessionService) backupController(userID string) *recovery.Controller {
	return recovery.NewController(s.backups, s.log,
		recovery.WithKey(s.cfg.BackupKeyPrefix+":"+userID),
		recovery.WithInterval(s.cfg.BackupInterval),
		recovery.WithMaxAge(s.cfg.BackupMaxAge),
		recovery.WithClock(s.now),
	)
}

// launch starts the tick and auto-backup loops and registers the attempt.
func (s *SessionService) launch(attempt *Attempt) {
	ctx, cancel := context.WithCancel(context.Background())
	attempt.cancel = cancel
	attempt.backup = s.backupController(attempt.userID)
	attempt.timer = engine.NewTimer(attempt.engine, s.cfg.TickInterval)
	attempt.timer.Start(ctx)

	eng := attempt.engine
	go attempt.backup.AutoSave(ctx, s.cfg.AutoSaveEvery, func() (domain.SessionBackup, bool) {
		if eng.Status() == domain.StatusCompleted {
			return domain.SessionBackup{}, false
		}
		return eng.Backup(s.now()), true
	})
	s.sessions.Put(attempt)
}

// finalize submits a completed attempt once and clears its backup on success. The attempt
// leaves the session repository after the retention window either way.
func (s *SessionService) finalize(attempt *Attempt, snap engine.Snapshot) {
	attempt.finalizeOnce.Do(func() {
		defer close(attempt.finalized)
		defer s.retire(attempt, snap.Session.SessionID)
		attempt.stop()

		report := attempt.engine.Report()
		completedAt := s.now()
		if snap.Session.EndTime != nil {
			completedAt = *snap.Session.EndTime
		}
		submission := domain.AttemptSubmission{
			SessionID:        snap.Session.SessionID,
			UserID:           attempt.userID,
			TestID:           snap.Session.TestID,
			FinalScore:       report.Score,
			MaxScore:         report.MaxScore,
			TimeSpentSeconds: report.TimeSpentSeconds,
			Answers:          snap.Answers,
			Report:           report,
			CompletedAt:      completedAt,
		}

		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.SubmitTimeout)
		defer cancel()
		log := s.log.With("session_id", submission.SessionID, "user_id", attempt.userID)
		if err := s.sink.SubmitAttempt(ctx, submission); err != nil {
			log.Error("attempt submission failed", "error", err)
			return
		}
		attempt.backup.ClearBackup(ctx, submission.TestID)
		log.Info("attempt submitted", "score", report.Score, "max_score", report.MaxScore, "grade", report.Grade)
	})
}

// retire drops a finished attempt once its retention window has passed, unless the slot has
// been taken by a newer attempt resumed under the same session id.
func (s *SessionService) retire(attempt *Attempt, sessionID string) {
	time.AfterFunc(s.cfg.FinishedRetention, func() {
		if live, ok := s.sessions.Get(sessionID); ok && live == attempt {
			s.sessions.Delete(sessionID)
			s.log.Debug("finished attempt released", "session_id", sessionID)
		}
	})
}

func (s *SessionService) attempt(userID, sessionID string) (*Attempt, error) {
	attempt, ok := s.sessions.Get(sessionID)
	if !ok || attempt.userID != userID {
		return nil, domain.ErrSessionNotFound
	}
	return attempt, nil
}
