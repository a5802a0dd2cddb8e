package engine

import (
	"errors"
	"reflect"
	"testing"

	"adaptive-test-service/internal/domain"
)

func TestResolveNext(t *testing.T) {
	rules := []domain.AdaptiveRule{
		{FromModule: 1, ToModule: 3, ScoreThreshold: 75, HighPerformanceDifficulty: domain.DifficultyHard, LowPerformanceDifficulty: domain.DifficultyEasy},
		{FromModule: 3, ToModule: 6, ScoreThreshold: 50, HighPerformanceDifficulty: domain.DifficultyHard, LowPerformanceDifficulty: domain.DifficultyMedium},
		{FromModule: 4, ToModule: 2, ScoreThreshold: 10, HighPerformanceDifficulty: domain.DifficultyHard},
	}

	cases := []struct {
		name       string
		completed  int
		percentage int
		want       Route
	}{
		{"threshold equality is high", 1, 75, Route{NextModule: 3, Difficulty: domain.DifficultyHard, Skipped: []int{2}}},
		{"below threshold is sequential", 1, 74, Route{NextModule: 2, Difficulty: domain.DifficultyEasy}},
		{"no rule is sequential", 2, 100, Route{NextModule: 3}},
		{"target past last module completes", 3, 90, Route{Complete: true}},
		{"low path from rule continues", 3, 10, Route{NextModule: 4, Difficulty: domain.DifficultyMedium}},
		{"backward rule ignored", 4, 100, Route{NextModule: 5}},
		{"sequential past end completes", 5, 0, Route{Complete: true}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := ResolveNext(rules, tc.completed, tc.percentage, 5)
			got.Rule = nil
			if !reflect.DeepEqual(got, tc.want) {
				t.Fatalf("expected %+v, got %+v", tc.want, got)
			}
		})
	}
}

func TestValidateDropsMalformedRules(t *testing.T) {
	def := domain.TestDefinition{
		ID:      "t",
		Modules: []domain.Module{makeModule(1, 2, 60), makeModule(2, 2, 60)},
		Rules: []domain.AdaptiveRule{
			{FromModule: 1, ToModule: 2, ScoreThreshold: 60},
			{FromModule: 7, ToModule: 8, ScoreThreshold: 60},
			{FromModule: 2, ToModule: 1, ScoreThreshold: 60},
			{FromModule: 1, ToModule: 2, ScoreThreshold: 140},
			{FromModule: 2, ToModule: 9, ScoreThreshold: 60},
		},
	}
	v, err := Validate(def)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if len(v.Rules) != 2 || len(v.Dropped) != 3 {
		t.Fatalf("expected 2 kept and 3 dropped, got %d and %d", len(v.Rules), len(v.Dropped))
	}
}

func TestValidateRejectsBrokenModules(t *testing.T) {
	gap := domain.TestDefinition{ID: "gap", Modules: []domain.Module{makeModule(1, 1, 60), makeModule(3, 1, 60)}}
	twoEntries := domain.TestDefinition{ID: "entries", Modules: []domain.Module{makeModule(1, 1, 60), makeModule(2, 1, 60)}}
	twoEntries.Modules[0].Entry = true
	twoEntries.Modules[1].Entry = true
	lateEntry := domain.TestDefinition{ID: "late", Modules: []domain.Module{makeModule(1, 1, 60), makeModule(2, 1, 60)}}
	lateEntry.Modules[1].Entry = true
	empty := domain.TestDefinition{ID: "empty", Modules: []domain.Module{makeModule(1, 0, 60)}}
	untimed := domain.TestDefinition{ID: "untimed", Modules: []domain.Module{makeModule(1, 1, 0)}}
	zeroPoints := domain.TestDefinition{ID: "zero-points", Modules: []domain.Module{makeModule(1, 2, 60)}}
	zeroPoints.Modules[0].Questions[1].Points = 0
	negativePoints := domain.TestDefinition{ID: "negative-points", Modules: []domain.Module{makeModule(1, 1, 60)}}
	negativePoints.Modules[0].Questions[0].Points = -2

	for _, def := range []domain.TestDefinition{gap, twoEntries, lateEntry, empty, untimed, zeroPoints, negativePoints, {ID: "none"}} {
		if _, err := Validate(def); !errors.Is(err, domain.ErrInvalidDefinition) {
			t.Fatalf("%s: expected invalid definition, got %v", def.ID, err)
		}
	}
}
