package domain

import (
	"encoding/json"
	"time"
)

// QuestionType enumerates how a question is answered and scored.
type QuestionType string

const (
	QuestionMCQ       QuestionType = "mcq"
	QuestionNumeric   QuestionType = "numeric"
	QuestionImage     QuestionType = "image"
	QuestionParagraph QuestionType = "paragraph"
)

// Difficulty is the tier tag attached to a module as presented to the student.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "Easy"
	DifficultyMedium Difficulty = "Medium"
	DifficultyHard   Difficulty = "Hard"
)

// Question is owned by the test definition and read-only during a session.
type Question struct {
	ID            string       `json:"id"`
	Type          QuestionType `json:"type"`
	Prompt        string       `json:"prompt"`
	Options       []string     `json:"options,omitempty"`
	CorrectAnswer Answer       `json:"correctAnswer"`
	Points        int          `json:"points"` // defaults to 1 if zero
	Explanation   string       `json:"explanation,omitempty"`
}

// Module is a timed block of questions. Numbers are dense starting at the entry module.
type Module struct {
	Number               int        `json:"number"`
	Subject              string     `json:"subject"`
	Difficulty           Difficulty `json:"difficulty"`
	Questions            []Question `json:"questions"`
	DurationSeconds      int        `json:"durationSeconds"`
	BreakAfter           bool       `json:"breakAfter"`
	BreakDurationSeconds int        `json:"breakDurationSeconds"`
	Entry                bool       `json:"entry,omitempty"`
}

// AdaptiveRule maps a completed module's percentage to the next module.
type AdaptiveRule struct {
	FromModule                int        `json:"fromModule"`
	ToModule                  int        `json:"toModule"`
	ScoreThreshold            int        `json:"scoreThreshold"`
	HighPerformanceDifficulty Difficulty `json:"highPerformanceDifficulty"`
	LowPerformanceDifficulty  Difficulty `json:"lowPerformanceDifficulty"`
	// SkipModules is display metadata only; routing derives skipped modules structurally.
	SkipModules []int `json:"skipModules,omitempty"`
}

// TestDefinition is the read-only input to a session.
type TestDefinition struct {
	ID           string         `json:"id"`
	Title        string         `json:"title"`
	RequiredPlan string         `json:"requiredPlan,omitempty"`
	Modules      []Module       `json:"modules"`
	Rules        []AdaptiveRule `json:"rules,omitempty"`
}

// Module returns the module with the given number.
func (d TestDefinition) Module(number int) (Module, bool) {
	for _, m := range d.Modules {
		if m.Number == number {
			return m, true
		}
	}
	return Module{}, false
}

// EntryModule returns the module flagged as entry, or the lowest numbered one.
func (d TestDefinition) EntryModule() (Module, bool) {
	if len(d.Modules) == 0 {
		return Module{}, false
	}
	lowest := d.Modules[0]
	for _, m := range d.Modules {
		if m.Entry {
			return m, true
		}
		if m.Number < lowest.Number {
			lowest = m
		}
	}
	return lowest, true
}

// LastModuleNumber is the highest module number in the definition.
func (d TestDefinition) LastModuleNumber() int {
	last := 0
	for _, m := range d.Modules {
		if m.Number > last {
			last = m.Number
		}
	}
	return last
}

// Answer holds either a single text response or a multi-select set.
// It marshals as a JSON string or a JSON array respectively.
type Answer struct {
	Text    string
	Choices []string
}

// TextAnswer builds a single-valued answer.
func TextAnswer(text string) Answer {
	return Answer{Text: text}
}

// ChoiceAnswer builds a multi-select answer.
func ChoiceAnswer(choices ...string) Answer {
	return Answer{Choices: choices}
}

// IsMulti reports whether the answer is a multi-select set.
func (a Answer) IsMulti() bool {
	return a.Choices != nil
}

// IsEmpty reports whether the answer represents a skipped question.
func (a Answer) IsEmpty() bool {
	return a.Text == "" && len(a.Choices) == 0
}

func (a Answer) MarshalJSON() ([]byte, error) {
	if a.IsMulti() {
		return json.Marshal(a.Choices)
	}
	return json.Marshal(a.Text)
}

func (a *Answer) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*a = Answer{}
		return nil
	}
	if len(data) > 0 && data[0] == '[' {
		var choices []string
		if err := json.Unmarshal(data, &choices); err != nil {
			return err
		}
		*a = Answer{Choices: choices}
		return nil
	}
	var text string
	if err := json.Unmarshal(data, &text); err != nil {
		return err
	}
	*a = Answer{Text: text}
	return nil
}

// Status is the lifecycle state of a session.
type Status string

const (
	StatusNotStarted     Status = "not-started"
	StatusInProgress     Status = "in-progress"
	StatusModuleComplete Status = "module-complete"
	StatusOnBreak        Status = "on-break"
	StatusCompleted      Status = "completed"
)

// Session is the mutable runtime state of one attempt.
type Session struct {
	SessionID            string       `json:"sessionId"`
	TestID               string       `json:"testId"`
	UserID               string       `json:"userId,omitempty"`
	StartTime            time.Time    `json:"startTime"`
	EndTime              *time.Time   `json:"endTime,omitempty"`
	Status               Status       `json:"status"`
	CurrentModuleNumber  int          `json:"currentModuleNumber"`
	CurrentDifficulty    Difficulty   `json:"currentDifficulty"`
	NextModuleNumber     int          `json:"nextModuleNumber"`
	NextDifficulty       Difficulty   `json:"nextDifficulty,omitempty"`
	CurrentQuestionIndex int          `json:"currentQuestionIndex"`
	ModuleOffset         int          `json:"moduleOffset"`
	TimeRemainingSeconds int          `json:"timeRemainingSeconds"`
	BreakEndsAt          *time.Time   `json:"breakEndsAt,omitempty"`
	FlaggedQuestions     []int        `json:"flaggedQuestions"`
	PresentedModules     []int        `json:"presentedModules"`
	SkippedModules       []int        `json:"skippedModules,omitempty"`
	ModuleDifficulties   []Difficulty `json:"moduleDifficulties"`
	QuestionSeconds      map[int]int  `json:"questionSeconds,omitempty"`
}

// LedgerEntry is the live response for one question index.
type LedgerEntry struct {
	Index     int    `json:"index"`
	Answer    Answer `json:"answer"`
	IsFlagged bool   `json:"isFlagged"`
}

// ModuleResult is the scored summary of one completed module.
type ModuleResult struct {
	ModuleNumber           int        `json:"moduleNumber"`
	Difficulty             Difficulty `json:"difficulty"`
	Score                  int        `json:"score"`
	MaxScore               int        `json:"maxScore"`
	Percentage             int        `json:"percentage"`
	TimeSpentSeconds       int        `json:"timeSpentSeconds"`
	QuestionsCorrect       int        `json:"questionsCorrect"`
	QuestionsIncorrect     int        `json:"questionsIncorrect"`
	QuestionsSkipped       int        `json:"questionsSkipped"`
	AverageTimePerQuestion float64    `json:"averageTimePerQuestion"`
	CompletedAt            time.Time  `json:"completedAt"`
}

// SessionBackup is the durable snapshot written by the recovery controller.
type SessionBackup struct {
	Timestamp     time.Time      `json:"timestamp"`
	TestID        string         `json:"testId"`
	Session       Session        `json:"session"`
	Answers       []LedgerEntry  `json:"answers"`
	ModuleResults []ModuleResult `json:"moduleResults"`
}

// DifficultyBreakdown aggregates module results sharing a difficulty tag.
type DifficultyBreakdown struct {
	Difficulty Difficulty `json:"difficulty"`
	Modules    int        `json:"modules"`
	Score      int        `json:"score"`
	MaxScore   int        `json:"maxScore"`
	Percentage int        `json:"percentage"`
}

// AttemptReport is the attempt-level aggregation over all module results.
type AttemptReport struct {
	SessionID              string                `json:"sessionId"`
	TestID                 string                `json:"testId"`
	Score                  int                   `json:"score"`
	MaxScore               int                   `json:"maxScore"`
	Percentage             int                   `json:"percentage"`
	Grade                  string                `json:"grade"`
	QuestionsCorrect       int                   `json:"questionsCorrect"`
	QuestionsIncorrect     int                   `json:"questionsIncorrect"`
	QuestionsSkipped       int                   `json:"questionsSkipped"`
	TimeSpentSeconds       int                   `json:"timeSpentSeconds"`
	AverageTimePerQuestion float64               `json:"averageTimePerQuestion"`
	SlowestQuestionIndex   int                   `json:"slowestQuestionIndex"`
	SlowestQuestionSeconds int                   `json:"slowestQuestionSeconds"`
	ByDifficulty           []DifficultyBreakdown `json:"byDifficulty"`
	PresentedModules       []int                 `json:"presentedModules"`
	SkippedModules         []int                 `json:"skippedModules,omitempty"`
	RuleSkipModules        []int                 `json:"ruleSkipModules,omitempty"`
	Modules                []ModuleResult        `json:"modules"`
}

// AttemptSubmission is handed to the persistence sink once per completed attempt.
type AttemptSubmission struct {
	SessionID        string        `json:"sessionId"`
	UserID           string        `json:"userId"`
	TestID           string        `json:"testId"`
	FinalScore       int           `json:"finalScore"`
	MaxScore         int           `json:"maxScore"`
	TimeSpentSeconds int           `json:"timeSpentSeconds"`
	Answers          []LedgerEntry `json:"answers"`
	Report           AttemptReport `json:"report"`
	CompletedAt      time.Time     `json:"completedAt"`
}
