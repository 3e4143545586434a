// Package policy defines treatment assignment rules learned from scores:
// threshold rules on an estimated effect and shallow decision trees fit by
// exhaustive search.
package policy

const (
	Control   = 0
	Treatment = 1
)

// ActionNames are the display names of the actions, indexed by action.
var ActionNames = []string{"Control", "Treatment"}

func ActionName(action int) string {
	if action >= 0 && action < len(ActionNames) {
		return ActionNames[action]
	}
	return "Unknown"
}

// Policy maps a covariate vector to an action.
type Policy interface {
	Predict(x []float64) int
}

// Assign applies p to every row of X and reports which units are treated.
func Assign(p Policy, X [][]float64) []bool {
	result := make([]bool, len(X))
	for i, x := range X {
		result[i] = p.Predict(x) == Treatment
	}
	return result
}

// Threshold treats a unit iff its estimated effect exceeds Cutoff.
type Threshold struct {
	Effect func(x []float64) float64
	Cutoff float64
}

func (t *Threshold) Predict(x []float64) int {
	if t.Effect(x) > t.Cutoff {
		return Treatment
	}
	return Control
}
