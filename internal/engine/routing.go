package engine

import "adaptive-test-service/internal/domain"

// Route is the resolver's decision after a module completes.
type Route struct {
	Complete   bool
	NextModule int
	// Difficulty is empty when no rule matched; the next module's own tier applies then.
	Difficulty domain.Difficulty
	// Skipped lists modules strictly between the completed module and NextModule.
	Skipped []int
	Rule    *domain.AdaptiveRule
}

// ResolveNext picks the module that follows completed. A percentage equal to the
// threshold counts as high performance. Rules that point backwards are ignored.
func ResolveNext(rules []domain.AdaptiveRule, completed, percentage, lastModule int) Route {
	rule := matchRule(rules, completed)
	if rule == nil {
		return sequential(completed, lastModule, "")
	}

	if percentage < rule.ScoreThreshold {
		route := sequential(completed, lastModule, rule.LowPerformanceDifficulty)
		route.Rule = rule
		return route
	}

	if rule.ToModule > lastModule {
		return Route{Complete: true, Rule: rule}
	}
	route := Route{
		NextModule: rule.ToModule,
		Difficulty: rule.HighPerformanceDifficulty,
		Rule:       rule,
	}
	for m := completed + 1; m < rule.ToModule; m++ {
		route.Skipped = append(route.Skipped, m)
	}
	return route
}

func sequential(completed, lastModule int, difficulty domain.Difficulty) Route {
	next := completed + 1
	if next > lastModule {
		return Route{Complete: true}
	}
	return Route{NextModule: next, Difficulty: difficulty}
}

func matchRule(rules []domain.AdaptiveRule, completed int) *domain.AdaptiveRule {
	for i := range rules {
		if rules[i].FromModule == completed && rules[i].ToModule > completed {
			return &rules[i]
		}
	}
	return nil
}
