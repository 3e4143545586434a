// Package diagnostics summarizes a learned policy on evaluation data:
// subgroup effect tests, covariate balance across assigned arms and cost
// curve tables for plotting.
package diagnostics

import (
	"fmt"
	"sort"

	"github.com/pkg/errors"

	"github.com/timpalpant/policylearn/linear"
)

var ErrLengthMismatch = errors.New("inputs have different lengths")

// GroupEffect is an estimated quantity within one group of units, for
// example units sharing a policy assignment or a policy tree leaf.
type GroupEffect struct {
	Group  int
	N      int
	Effect float64
	StdErr float64
	P      float64
}

func (g GroupEffect) String() string {
	return fmt.Sprintf("group %d (n=%d): %.4f (%.4f), p=%.3g", g.Group, g.N, g.Effect, g.StdErr, g.P)
}

// Levels returns the distinct group labels in increasing order.
func Levels(groups []int) []int {
	seen := make(map[int]struct{})
	var result []int
	for _, g := range groups {
		if _, ok := seen[g]; !ok {
			seen[g] = struct{}{}
			result = append(result, g)
		}
	}
	sort.Ints(result)
	return result
}

func counts(groups []int) map[int]int {
	result := make(map[int]int)
	for _, g := range groups {
		result[g]++
	}
	return result
}

// ArmEffectsByGroup regresses y ~ 0 + C(g) + w:C(g) with HC2 standard
// errors and reports the treatment effect within each group, net of cost.
// Only valid when treatment was randomized.
func ArmEffectsByGroup(y, w []float64, groups []int, cost float64) ([]GroupEffect, error) {
	if len(y) != len(w) || len(y) != len(groups) {
		return nil, errors.Wrapf(ErrLengthMismatch, "len(y)=%d len(w)=%d len(groups)=%d", len(y), len(w), len(groups))
	}

	levels := Levels(groups)
	X := linear.InteractedIndicators(groups, levels, w)
	fit, err := linear.OLS(X, y, nil)
	if err != nil {
		return nil, errors.Wrap(err, "error fitting arm effects by group")
	}

	n := counts(groups)
	k := len(levels)
	result := make([]GroupEffect, k)
	for j, g := range levels {
		result[j] = GroupEffect{
			Group:  g,
			N:      n[g],
			Effect: fit.Coef[k+j] - cost,
			StdErr: fit.StdErr[k+j],
			P:      fit.P[k+j],
		}
	}
	return result, nil
}

// ScoreDiffByGroup regresses the AIPW score difference on group dummies,
// giving a doubly-robust treatment effect estimate within each group.
func ScoreDiffByGroup(diff []float64, groups []int) ([]GroupEffect, error) {
	if len(diff) != len(groups) {
		return nil, errors.Wrapf(ErrLengthMismatch, "len(diff)=%d len(groups)=%d", len(diff), len(groups))
	}

	levels := Levels(groups)
	fit, err := linear.OLS(linear.Indicators(groups, levels), diff, nil)
	if err != nil {
		return nil, errors.Wrap(err, "error fitting score differences by group")
	}

	n := counts(groups)
	result := make([]GroupEffect, len(levels))
	for j, g := range levels {
		result[j] = GroupEffect{
			Group:  g,
			N:      n[g],
			Effect: fit.Coef[j],
			StdErr: fit.StdErr[j],
			P:      fit.P[j],
		}
	}
	return result, nil
}
