package engine

import (
	"math"
	"sort"
	"time"

	"adaptive-test-service/internal/domain"
)

// gradeTable is ordered from the highest cutoff down.
var gradeTable = []struct {
	min   int
	grade string
}{
	{90, "A"},
	{80, "B"},
	{70, "C"},
	{60, "D"},
	{0, "F"},
}

// Grade maps a percentage to a letter.
func Grade(percentage int) string {
	for _, g := range gradeTable {
		if percentage >= g.min {
			return g.grade
		}
	}
	return "F"
}

// Percentage is round(100*score/maxScore); zero when maxScore is zero.
func Percentage(score, maxScore int) int {
	if maxScore <= 0 {
		return 0
	}
	return int(math.Round(100 * float64(score) / float64(maxScore)))
}

// IsCorrect compares an answer with the question's key. Single values must match exactly;
// multi-select answers are compared as sets.
func IsCorrect(q domain.Question, answer domain.Answer) bool {
	if answer.IsEmpty() {
		return false
	}
	if !q.CorrectAnswer.IsMulti() && !answer.IsMulti() {
		return answer.Text == q.CorrectAnswer.Text
	}
	return sameSet(answerSet(answer), answerSet(q.CorrectAnswer))
}

func answerSet(a domain.Answer) map[string]struct{} {
	set := make(map[string]struct{})
	if a.IsMulti() {
		for _, c := range a.Choices {
			set[c] = struct{}{}
		}
		return set
	}
	if a.Text != "" {
		set[a.Text] = struct{}{}
	}
	return set
}

func sameSet(a, b map[string]struct{}) bool {
	if len(a) != len(b) {
		return false
	}
	for k := range a {
		if _, ok := b[k]; !ok {
			return false
		}
	}
	return true
}

// ScoreModule converts the ledger entries of one module into a ModuleResult. The module's
// questions occupy ledger indices [offset, offset+len(questions)).
func ScoreModule(module domain.Module, offset int, ledger *Ledger, difficulty domain.Difficulty, timeSpent int, completedAt time.Time) domain.ModuleResult {
	result := domain.ModuleResult{
		ModuleNumber:     module.Number,
		Difficulty:       difficulty,
		TimeSpentSeconds: timeSpent,
		CompletedAt:      completedAt,
	}
	for i, q := range module.Questions {
		points := q.Points
		result.MaxScore += points

		answer, answered := ledger.Get(offset + i)
		switch {
		case !answered:
			result.QuestionsSkipped++
		case IsCorrect(q, answer):
			result.QuestionsCorrect++
			result.Score += points
		default:
			result.QuestionsIncorrect++
		}
	}
	result.Percentage = Percentage(result.Score, result.MaxScore)
	if n := len(module.Questions); n > 0 {
		result.AverageTimePerQuestion = float64(timeSpent) / float64(n)
	}
	return result
}

// BuildReport aggregates module results into the attempt-level report.
func BuildReport(session domain.Session, results []domain.ModuleResult, rules []domain.AdaptiveRule) domain.AttemptReport {
	report := domain.AttemptReport{
		SessionID:        session.SessionID,
		TestID:           session.TestID,
		PresentedModules: append([]int(nil), session.PresentedModules...),
		SkippedModules:   append([]int(nil), session.SkippedModules...),
		Modules:          append([]domain.ModuleResult(nil), results...),
	}

	byDifficulty := make(map[domain.Difficulty]*domain.DifficultyBreakdown)
	var order []domain.Difficulty
	totalQuestions := 0
	for _, r := range results {
		report.Score += r.Score
		report.MaxScore += r.MaxScore
		report.QuestionsCorrect += r.QuestionsCorrect
		report.QuestionsIncorrect += r.QuestionsIncorrect
		report.QuestionsSkipped += r.QuestionsSkipped
		report.TimeSpentSeconds += r.TimeSpentSeconds
		totalQuestions += r.QuestionsCorrect + r.QuestionsIncorrect + r.QuestionsSkipped

		b, ok := byDifficulty[r.Difficulty]
		if !ok {
			b = &domain.DifficultyBreakdown{Difficulty: r.Difficulty}
			byDifficulty[r.Difficulty] = b
			order = append(order, r.Difficulty)
		}
		b.Modules++
		b.Score += r.Score
		b.MaxScore += r.MaxScore
	}
	for _, d := range order {
		b := byDifficulty[d]
		b.Percentage = Percentage(b.Score, b.MaxScore)
		report.ByDifficulty = append(report.ByDifficulty, *b)
	}

	report.Percentage = Percentage(report.Score, report.MaxScore)
	report.Grade = Grade(report.Percentage)
	if totalQuestions > 0 {
		report.AverageTimePerQuestion = float64(report.TimeSpentSeconds) / float64(totalQuestions)
	}

	report.SlowestQuestionIndex = -1
	indices := make([]int, 0, len(session.QuestionSeconds))
	for idx := range session.QuestionSeconds {
		indices = append(indices, idx)
	}
	sort.Ints(indices)
	for _, idx := range indices {
		if secs := session.QuestionSeconds[idx]; secs > report.SlowestQuestionSeconds {
			report.SlowestQuestionIndex = idx
			report.SlowestQuestionSeconds = secs
		}
	}

	for _, m := range session.PresentedModules {
		for _, r := range rules {
			if r.FromModule == m {
				report.RuleSkipModules = append(report.RuleSkipModules, r.SkipModules...)
			}
		}
	}
	return report
}
