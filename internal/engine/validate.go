package engine

import (
	"fmt"
	"sort"

	"adaptive-test-service/internal/domain"
)

// Validation is the usable view of a definition: its modules ordered by number and the
// rules that survived checking. Dropped rules fall back to sequential routing.
type Validation struct {
	Modules []domain.Module
	Rules   []domain.AdaptiveRule
	Dropped []domain.AdaptiveRule
}

// Validate checks module numbering and filters adaptive rules. Structural module problems
// are returned as errors wrapping domain.ErrInvalidDefinition.
func Validate(def domain.TestDefinition) (Validation, error) {
	if len(def.Modules) == 0 {
		return Validation{}, fmt.Errorf("%w: test %q has no modules", domain.ErrInvalidDefinition, def.ID)
	}

	modules := append([]domain.Module(nil), def.Modules...)
	sort.Slice(modules, func(i, j int) bool { return modules[i].Number < modules[j].Number })

	entries := 0
	for _, m := range modules {
		if m.Entry {
			entries++
		}
	}
	if entries > 1 {
		return Validation{}, fmt.Errorf("%w: %d entry modules", domain.ErrInvalidDefinition, entries)
	}
	entry, _ := def.EntryModule()
	if entry.Number != modules[0].Number {
		return Validation{}, fmt.Errorf("%w: entry module %d is not the first module", domain.ErrInvalidDefinition, entry.Number)
	}

	for i, m := range modules {
		if m.Number != modules[0].Number+i {
			return Validation{}, fmt.Errorf("%w: module numbers not dense at %d", domain.ErrInvalidDefinition, m.Number)
		}
		if len(m.Questions) == 0 {
			return Validation{}, fmt.Errorf("%w: module %d has no questions", domain.ErrInvalidDefinition, m.Number)
		}
		if m.DurationSeconds <= 0 {
			return Validation{}, fmt.Errorf("%w: module %d has no duration", domain.ErrInvalidDefinition, m.Number)
		}
		for _, q := range m.Questions {
			if q.Points <= 0 {
				return Validation{}, fmt.Errorf("%w: question %q in module %d has %d points",
					domain.ErrInvalidDefinition, q.ID, m.Number, q.Points)
			}
		}
	}

	first, last := modules[0].Number, modules[len(modules)-1].Number
	v := Validation{Modules: modules}
	for _, r := range def.Rules {
		// A target past the last module is kept: routing treats it as completion.
		if r.FromModule < first || r.FromModule > last || r.ToModule <= r.FromModule ||
			r.ScoreThreshold < 0 || r.ScoreThreshold > 100 {
			v.Dropped = append(v.Dropped, r)
			continue
		}
		v.Rules = append(v.Rules, r)
	}
	return v, nil
}
