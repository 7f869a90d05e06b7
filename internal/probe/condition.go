package probe

import (
	"strings"

	"github.com/hamed0406/hostprobe/internal/domain"
)

// Eligibility is the outcome of evaluating a probe's dependency.
type Eligibility int

const (
	Eligible Eligibility = iota
	SkippedMissingDependency
	SkippedConditionUnmet
)

func (e Eligibility) String() string {
	switch e {
	case Eligible:
		return "eligible"
	case SkippedMissingDependency:
		return "missing_dependency"
	case SkippedConditionUnmet:
		return "condition_unmet"
	default:
		return "unknown"
	}
}

// Evaluate decides whether spec may run given the latest results. A probe
// without a dependency is always eligible. Otherwise the dependency's data
// must contain a line in which the pattern finds a match.
func Evaluate(spec domain.ProbeSpec, results map[string]domain.ProbeResult) Eligibility {
	dep := spec.Dependency
	if dep == nil {
		return Eligible
	}
	res, ok := results[dep.On]
	if !ok {
		return SkippedMissingDependency
	}

	for _, line := range strings.Split(res.Data, "\n") {
		if dep.Pattern.MatchString(strings.TrimSuffix(line, "\r")) {
			return Eligible
		}
	}
	return SkippedConditionUnmet
}
