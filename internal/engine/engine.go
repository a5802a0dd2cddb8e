package engine

import (
	"fmt"
	"sync"
	"time"

	"adaptive-test-service/internal/domain"
	"github.com/google/uuid"
)

// Snapshot is a consistent copy of an attempt's state.
type Snapshot struct {
	Session domain.Session        `json:"session"`
	Answers []domain.LedgerEntry  `json:"answers"`
	Results []domain.ModuleResult `json:"moduleResults"`
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock replaces time.Now; tests use it for deterministic timestamps.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func WithSessionID(id string) Option {
	return func(e *Engine) { e.session.SessionID = id }
}

func WithUserID(id string) Option {
	return func(e *Engine) { e.session.UserID = id }
}

// WithObserver registers fn to receive a snapshot after every accepted event.
// fn runs while the engine is locked and must not call back into it.
func WithObserver(fn func(Snapshot)) Option {
	return func(e *Engine) { e.observer = fn }
}

// Engine is the state machine for one attempt. Every event is applied under a single
// mutex so transitions never interleave, whether they come from the UI or the timer.
// Events that do not apply to the current state are ignored and report false.
type Engine struct {
	mu       sync.Mutex
	def      domain.TestDefinition
	modules  map[int]domain.Module
	rules    []domain.AdaptiveRule
	last     int
	now      func() time.Time
	observer func(Snapshot)

	session domain.Session
	ledger  *Ledger
	flags   FlagSet
	results []domain.ModuleResult
	done    chan struct{}
}

// New validates def and returns an engine in the not-started state.
func New(def domain.TestDefinition, opts ...Option) (*Engine, error) {
	v, err := Validate(def)
	if err != nil {
		return nil, err
	}
	e := &Engine{
		def:     def,
		modules: make(map[int]domain.Module, len(v.Modules)),
		rules:   v.Rules,
		last:    v.Modules[len(v.Modules)-1].Number,
		now:     time.Now,
		ledger:  NewLedger(),
		flags:   NewFlagSet(),
		done:    make(chan struct{}),
		session: domain.Session{
			SessionID: uuid.NewString(),
			TestID:    def.ID,
			Status:    domain.StatusNotStarted,
		},
	}
	for _, m := range v.Modules {
		e.modules[m.Number] = m
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Restore rebuilds an in-flight engine from a backup taken against def.
func Restore(def domain.TestDefinition, backup domain.SessionBackup, opts ...Option) (*Engine, error) {
	e, err := New(def, opts...)
	if err != nil {
		return nil, err
	}
	s := backup.Session
	if backup.TestID != def.ID || s.TestID != def.ID {
		return nil, fmt.Errorf("%w: backup for test %q, definition %q", domain.ErrCorruptBackup, backup.TestID, def.ID)
	}
	switch s.Status {
	case domain.StatusInProgress, domain.StatusModuleComplete, domain.StatusOnBreak:
	default:
		return nil, fmt.Errorf("%w: status %q cannot be resumed", domain.ErrCorruptBackup, s.Status)
	}
	module, ok := e.modules[s.CurrentModuleNumber]
	if !ok {
		return nil, fmt.Errorf("%w: unknown module %d", domain.ErrCorruptBackup, s.CurrentModuleNumber)
	}
	if s.Status != domain.StatusInProgress {
		if _, ok := e.modules[s.NextModuleNumber]; !ok {
			return nil, fmt.Errorf("%w: unknown next module %d", domain.ErrCorruptBackup, s.NextModuleNumber)
		}
	}
	if err := e.checkPresented(s); err != nil {
		return nil, err
	}

	if s.TimeRemainingSeconds < 0 {
		s.TimeRemainingSeconds = 0
	}
	if s.TimeRemainingSeconds > module.DurationSeconds {
		s.TimeRemainingSeconds = module.DurationSeconds
	}
	if s.QuestionSeconds == nil {
		s.QuestionSeconds = make(map[int]int)
	}
	s.CurrentQuestionIndex = clamp(s.CurrentQuestionIndex, s.ModuleOffset, s.ModuleOffset+len(module.Questions)-1)
	if s.UserID == "" {
		s.UserID = e.session.UserID
	}

	e.session = s
	e.ledger = LedgerFromEntries(backup.Answers)
	e.flags = NewFlagSet(s.FlaggedQuestions...)
	e.results = append([]domain.ModuleResult(nil), backup.ModuleResults...)
	return e, nil
}

// checkPresented verifies that the presented modules end with the current one and that the
// question offset equals the question count of the modules before it.
func (e *Engine) checkPresented(s domain.Session) error {
	n := len(s.PresentedModules)
	if n == 0 || s.PresentedModules[n-1] != s.CurrentModuleNumber {
		return fmt.Errorf("%w: presented modules %v do not end with module %d",
			domain.ErrCorruptBackup, s.PresentedModules, s.CurrentModuleNumber)
	}
	offset := 0
	for _, number := range s.PresentedModules[:n-1] {
		m, ok := e.modules[number]
		if !ok {
			return fmt.Errorf("%w: unknown presented module %d", domain.ErrCorruptBackup, number)
		}
		offset += len(m.Questions)
	}
	if s.ModuleOffset != offset {
		return fmt.Errorf("%w: module offset %d, expected %d", domain.ErrCorruptBackup, s.ModuleOffset, offset)
	}
	return nil
}

// apply runs fn under the lock and notifies the observer when fn accepted the event.
func (e *Engine) apply(fn func() bool) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	accepted := fn()
	if accepted && e.observer != nil {
		e.observer(e.snapshotLocked())
	}
	return accepted
}

// Start moves not-started to in-progress on the entry module with a fresh ledger.
func (e *Engine) Start() bool {
	return e.apply(func() bool {
		if e.session.Status != domain.StatusNotStarted {
			return false
		}
		entry := e.modules[e.firstModule()]
		e.ledger.Reset()
		e.flags = NewFlagSet()
		e.results = nil

		s := &e.session
		s.StartTime = e.now()
		s.EndTime = nil
		s.Status = domain.StatusInProgress
		s.CurrentModuleNumber = entry.Number
		s.CurrentDifficulty = entry.Difficulty
		s.NextModuleNumber = 0
		s.NextDifficulty = ""
		s.CurrentQuestionIndex = 0
		s.ModuleOffset = 0
		s.TimeRemainingSeconds = entry.DurationSeconds
		s.PresentedModules = []int{entry.Number}
		s.ModuleDifficulties = []domain.Difficulty{entry.Difficulty}
		s.SkippedModules = nil
		s.QuestionSeconds = make(map[int]int)
		return true
	})
}

// SubmitAnswer upserts the answer for a question of the running module.
func (e *Engine) SubmitAnswer(index int, answer domain.Answer) bool {
	return e.apply(func() bool {
		if e.session.Status != domain.StatusInProgress || !e.inCurrentModule(index) {
			return false
		}
		e.ledger.Upsert(index, answer)
		return true
	})
}

// Navigate moves to index, clamped to the running module's questions.
func (e *Engine) Navigate(index int) bool {
	return e.apply(func() bool {
		if e.session.Status != domain.StatusInProgress {
			return false
		}
		lo, hi := e.currentRange()
		e.session.CurrentQuestionIndex = clamp(index, lo, hi)
		return true
	})
}

// FlagQuestion toggles the flag on index in any started, non-terminal state.
func (e *Engine) FlagQuestion(index int) bool {
	return e.apply(func() bool {
		switch e.session.Status {
		case domain.StatusNotStarted, domain.StatusCompleted:
			return false
		}
		if index < 0 {
			return false
		}
		flagged := e.flags.Toggle(index)
		e.ledger.SetFlag(index, flagged)
		e.session.FlaggedQuestions = e.flags.Sorted()
		return true
	})
}

// CompleteModule scores the running module and resolves where to go next. Finishing the
// last module in the routed sequence completes the attempt directly.
func (e *Engine) CompleteModule() bool {
	return e.apply(func() bool {
		if e.session.Status != domain.StatusInProgress {
			return false
		}
		result := e.scoreCurrentLocked()
		route := ResolveNext(e.rules, result.ModuleNumber, result.Percentage, e.last)
		if route.Complete {
			e.finishLocked()
			return true
		}
		s := &e.session
		s.NextModuleNumber = route.NextModule
		s.NextDifficulty = route.Difficulty
		s.SkippedModules = append(s.SkippedModules, route.Skipped...)
		s.Status = domain.StatusModuleComplete
		return true
	})
}

// StartBreak enters the break that follows the completed module. Modules without a
// trailing break continue straight to the next module.
func (e *Engine) StartBreak() bool {
	return e.apply(func() bool {
		if e.session.Status != domain.StatusModuleComplete {
			return false
		}
		module := e.modules[e.session.CurrentModuleNumber]
		if !module.BreakAfter {
			e.continueLocked()
			return true
		}
		ends := e.now().Add(time.Duration(module.BreakDurationSeconds) * time.Second)
		e.session.BreakEndsAt = &ends
		e.session.Status = domain.StatusOnBreak
		return true
	})
}

// ContinueToNextModule advances into the next module from on-break, or from module-complete
// when the completed module has no trailing break.
func (e *Engine) ContinueToNextModule() bool {
	return e.apply(func() bool {
		switch e.session.Status {
		case domain.StatusOnBreak:
		case domain.StatusModuleComplete:
			if e.modules[e.session.CurrentModuleNumber].BreakAfter {
				return false
			}
		default:
			return false
		}
		e.continueLocked()
		return true
	})
}

// Tick counts one second down on the running module. Reaching zero submits the test.
func (e *Engine) Tick() bool {
	return e.apply(func() bool {
		if e.session.Status != domain.StatusInProgress {
			return false
		}
		s := &e.session
		if s.TimeRemainingSeconds > 0 {
			s.TimeRemainingSeconds--
			s.QuestionSeconds[s.CurrentQuestionIndex]++
		}
		if s.TimeRemainingSeconds == 0 {
			e.scoreCurrentLocked()
			e.finishLocked()
		}
		return true
	})
}

// SubmitTest ends the attempt, scoring the running module if it has not been scored yet.
func (e *Engine) SubmitTest() bool {
	return e.apply(func() bool {
		switch e.session.Status {
		case domain.StatusInProgress:
			e.scoreCurrentLocked()
		case domain.StatusModuleComplete, domain.StatusOnBreak:
		default:
			return false
		}
		e.finishLocked()
		return true
	})
}

// Done is closed once the attempt reaches completed.
func (e *Engine) Done() <-chan struct{} {
	return e.done
}

func (e *Engine) Status() domain.Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.session.Status
}

func (e *Engine) SessionID() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.session.SessionID
}

func (e *Engine) Definition() domain.TestDefinition {
	return e.def
}

// Answer returns the live answer at index.
func (e *Engine) Answer(index int) (domain.Answer, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ledger.Get(index)
}

// CurrentModule returns the module being taken (or just completed).
func (e *Engine) CurrentModule() domain.Module {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.modules[e.session.CurrentModuleNumber]
}

func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshotLocked()
}

// SnapshotWith hands fn the current snapshot while the engine is locked, so no observer
// notification can run until fn returns. fn must not call back into the engine.
func (e *Engine) SnapshotWith(fn func(Snapshot)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	fn(e.snapshotLocked())
}

// Backup packages the current state for the recovery controller.
func (e *Engine) Backup(at time.Time) domain.SessionBackup {
	snap := e.Snapshot()
	return domain.SessionBackup{
		Timestamp:     at,
		TestID:        snap.Session.TestID,
		Session:       snap.Session,
		Answers:       snap.Answers,
		ModuleResults: snap.Results,
	}
}

// Report aggregates the module results recorded so far.
func (e *Engine) Report() domain.AttemptReport {
	e.mu.Lock()
	defer e.mu.Unlock()
	return BuildReport(e.copySessionLocked(), e.results, e.rules)
}

func (e *Engine) snapshotLocked() Snapshot {
	return Snapshot{
		Session: e.copySessionLocked(),
		Answers: e.ledger.ToArray(),
		Results: append([]domain.ModuleResult(nil), e.results...),
	}
}

func (e *Engine) copySessionLocked() domain.Session {
	s := e.session
	s.FlaggedQuestions = e.flags.Sorted()
	s.PresentedModules = append([]int(nil), e.session.PresentedModules...)
	s.SkippedModules = append([]int(nil), e.session.SkippedModules...)
	s.ModuleDifficulties = append([]domain.Difficulty(nil), e.session.ModuleDifficulties...)
	if e.session.QuestionSeconds != nil {
		s.QuestionSeconds = make(map[int]int, len(e.session.QuestionSeconds))
		for k, v := range e.session.QuestionSeconds {
			s.QuestionSeconds[k] = v
		}
	}
	if e.session.EndTime != nil {
		end := *e.session.EndTime
		s.EndTime = &end
	}
	if e.session.BreakEndsAt != nil {
		ends := *e.session.BreakEndsAt
		s.BreakEndsAt = &ends
	}
	return s
}

func (e *Engine) scoreCurrentLocked() domain.ModuleResult {
	s := e.session
	module := e.modules[s.CurrentModuleNumber]
	spent := module.DurationSeconds - s.TimeRemainingSeconds
	if spent < 0 {
		spent = 0
	}
	result := ScoreModule(module, s.ModuleOffset, e.ledger, s.CurrentDifficulty, spent, e.now())
	e.results = append(e.results, result)
	return result
}

// continueLocked enters the next module. The question offset is the running total of
// question counts of the modules actually presented, so modules of any size line up.
func (e *Engine) continueLocked() {
	s := &e.session
	prev := e.modules[s.CurrentModuleNumber]
	next := e.modules[s.NextModuleNumber]

	s.ModuleOffset += len(prev.Questions)
	s.CurrentModuleNumber = next.Number
	s.CurrentDifficulty = next.Difficulty
	if s.NextDifficulty != "" {
		s.CurrentDifficulty = s.NextDifficulty
	}
	s.CurrentQuestionIndex = s.ModuleOffset
	s.TimeRemainingSeconds = next.DurationSeconds
	s.NextModuleNumber = 0
	s.NextDifficulty = ""
	s.BreakEndsAt = nil
	s.PresentedModules = append(s.PresentedModules, next.Number)
	s.ModuleDifficulties = append(s.ModuleDifficulties, s.CurrentDifficulty)
	s.Status = domain.StatusInProgress
}

func (e *Engine) finishLocked() {
	end := e.now()
	e.session.EndTime = &end
	e.session.Status = domain.StatusCompleted
	e.session.BreakEndsAt = nil
	e.session.NextModuleNumber = 0
	close(e.done)
}

func (e *Engine) firstModule() int {
	first := e.last
	for n := range e.modules {
		if n < first {
			first = n
		}
	}
	return first
}

func (e *Engine) currentRange() (int, int) {
	module := e.modules[e.session.CurrentModuleNumber]
	lo := e.session.ModuleOffset
	return lo, lo + len(module.Questions) - 1
}

func (e *Engine) inCurrentModule(index int) bool {
	lo, hi := e.currentRange()
	return index >= lo && index <= hi
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
