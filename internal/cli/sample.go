package cli

import "adaptive-test-service/internal/domain"

// sampleTests provides a small two-module adaptive test for running without Postgres.
func sampleTests() map[string]domain.TestDefinition {
	mcq := func(id, prompt, correct string, options ...string) domain.Question {
		return domain.Question{
			ID:            id,
			Type:          domain.QuestionMCQ,
			Prompt:        prompt,
			Options:       options,
			CorrectAnswer: domain.TextAnswer(correct),
			Points:        1,
		}
	}
	return map[string]domain.TestDefinition{
		"sample-sat": {
			ID:    "sample-sat",
			Title: "Sample adaptive math section",
			Modules: []domain.Module{
				{
					Number:               1,
					Subject:              "Math",
					Difficulty:           domain.DifficultyMedium,
					DurationSeconds:      600,
					BreakAfter:           true,
					BreakDurationSeconds: 120,
					Entry:                true,
					Questions: []domain.Question{
						mcq("m1q1", "What is 2 + 2?", "4", "3", "4", "5"),
						mcq("m1q2", "What is 12 / 3?", "4", "3", "4", "6"),
						{ID: "m1q3", Type: domain.QuestionNumeric, Prompt: "Solve 3x = 21", CorrectAnswer: domain.TextAnswer("7"), Points: 2},
					},
				},
				{
					Number:          2,
					Subject:         "Math",
					Difficulty:      domain.DifficultyMedium,
					DurationSeconds: 900,
					Questions: []domain.Question{
						mcq("m2q1", "What is 15% of 200?", "30", "20", "30", "40"),
						{
							ID:            "m2q2",
							Type:          domain.QuestionMCQ,
							Prompt:        "Select every prime number",
							Options:       []string{"2", "4", "7", "9"},
							CorrectAnswer: domain.ChoiceAnswer("2", "7"),
							Points:        2,
						},
					},
				},
			},
			Rules: []domain.AdaptiveRule{
				{
					FromModule:                1,
					ToModule:                  2,
					ScoreThreshold:            75,
					HighPerformanceDifficulty: domain.DifficultyHard,
					LowPerformanceDifficulty:  domain.DifficultyEasy,
				},
			},
		},
	}
}
