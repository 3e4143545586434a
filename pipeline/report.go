package pipeline

import (
	"fmt"
	"io"
	"strings"

	"github.com/timpalpant/policylearn/budget"
	"github.com/timpalpant/policylearn/diagnostics"
	"github.com/timpalpant/policylearn/policy"
	"github.com/timpalpant/policylearn/scores"
	"github.com/timpalpant/policylearn/value"
)

// NamedEstimate is one value estimate of the learned policy. Err is set
// when the estimator is undefined on the evaluation data.
type NamedEstimate struct {
	Name     string
	Estimate value.Estimate
	Err      string `yaml:",omitempty"`
}

// Truth holds simulation ground truth on the evaluation units, net of
// treatment cost.
type Truth struct {
	Policy float64
	Oracle float64
}

type CurveSummary struct {
	Curve *budget.Curve
	Area  float64
}

type AllocationSummary struct {
	Budget     float64
	NumTreated int
	Spent      float64
	Value      value.Estimate
}

// Report collects the results of a pipeline run.
type Report struct {
	RunID    string
	Data     string
	NumTrain int
	NumTest  int
	Nuisance string
	Policy   string
	Cost     float64

	TreatedFraction float64
	Degenerate      bool
	Estimates       []NamedEstimate
	Truth           *Truth

	Tree *policy.Tree

	EffectsByArm     []diagnostics.GroupEffect
	ScoreDiffsByArm  []diagnostics.GroupEffect
	EffectsByLeaf    []diagnostics.GroupEffect
	ScoreDiffsByLeaf []diagnostics.GroupEffect
	Balance          *diagnostics.BalanceTable
	Curves           []CurveSummary
	Allocation       *AllocationSummary
	Warnings         []string

	evalScores scores.Pair
	assignment []bool
}

// Estimate returns the named estimate.
func (r *Report) Estimate(name string) (NamedEstimate, bool) {
	for _, e := range r.Estimates {
		if e.Name == name {
			return e, true
		}
	}
	return NamedEstimate{}, false
}

func (r *Report) warnf(format string, args ...interface{}) {
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
}

// WriteText renders the report as plain text.
func (r *Report) WriteText(w io.Writer) error {
	var sb strings.Builder
	fmt.Fprintf(&sb, "run %s\n", r.RunID)
	fmt.Fprintf(&sb, "data: %s\n", r.Data)
	fmt.Fprintf(&sb, "split: %d train, %d evaluation\n", r.NumTrain, r.NumTest)
	fmt.Fprintf(&sb, "nuisance: %s\n", r.Nuisance)
	fmt.Fprintf(&sb, "policy: %s (treated fraction %.3f)\n", r.Policy, r.TreatedFraction)
	fmt.Fprintf(&sb, "cost: %g\n", r.Cost)
	if r.Degenerate {
		sb.WriteString("policy assigns every unit to the same arm\n")
	}

	sb.WriteString("\nvalue estimates\n")
	for _, e := range r.Estimates {
		fmt.Fprintf(&sb, "  %-20s %s", e.Name, e.Estimate)
		if e.Err != "" {
			fmt.Fprintf(&sb, "  [%s]", e.Err)
		}
		sb.WriteString("\n")
	}
	if r.Truth != nil {
		fmt.Fprintf(&sb, "  %-20s %.4f\n", "true value", r.Truth.Policy)
		fmt.Fprintf(&sb, "  %-20s %.4f\n", "oracle value", r.Truth.Oracle)
	}

	if r.Tree != nil {
		sb.WriteString("\n")
		sb.WriteString(r.Tree.String())
	}

	writeGroupEffects(&sb, "treatment effect by assignment", r.EffectsByArm, policy.ActionName)
	writeGroupEffects(&sb, "score difference by assignment", r.ScoreDiffsByArm, policy.ActionName)
	writeGroupEffects(&sb, "treatment effect by leaf", r.EffectsByLeaf, leafName)
	writeGroupEffects(&sb, "score difference by leaf", r.ScoreDiffsByLeaf, leafName)

	if r.Balance != nil {
		sb.WriteString("\ncovariate balance\n")
		fmt.Fprintf(&sb, "  %-12s", "covariate")
		for _, g := range r.Balance.Groups {
			fmt.Fprintf(&sb, " %-16s", policy.ActionName(g))
		}
		sb.WriteString(" variation\n")
		for _, row := range r.Balance.Rows {
			fmt.Fprintf(&sb, "  %-12s", row.Covariate)
			for k := range r.Balance.Groups {
				cell := fmt.Sprintf("%.2f (%.2f)", row.Mean[k], row.StdErr[k])
				fmt.Fprintf(&sb, " %-16s", cell)
			}
			fmt.Fprintf(&sb, " %.4f\n", row.Variation)
		}
	}

	if len(r.Curves) > 0 {
		sb.WriteString("\ncost curves (area above diagonal)\n")
		for _, c := range r.Curves {
			fmt.Fprintf(&sb, "  %-20s %.4f\n", c.Curve.Name, c.Area)
		}
	}

	if a := r.Allocation; a != nil {
		sb.WriteString("\nbudget allocation\n")
		fmt.Fprintf(&sb, "  budget %g, treated %d, estimated spend %.4f, value %s\n",
			a.Budget, a.NumTreated, a.Spent, a.Value)
	}

	if len(r.Warnings) > 0 {
		sb.WriteString("\nwarnings\n")
		for _, msg := range r.Warnings {
			fmt.Fprintf(&sb, "  - %s\n", msg)
		}
	}

	_, err := io.WriteString(w, sb.String())
	return err
}

func leafName(id int) string {
	return fmt.Sprintf("leaf %d", id)
}

func writeGroupEffects(sb *strings.Builder, title string, effects []diagnostics.GroupEffect, name func(int) string) {
	if len(effects) == 0 {
		return
	}

	fmt.Fprintf(sb, "\n%s\n", title)
	for _, g := range effects {
		fmt.Fprintf(sb, "  %-12s n=%-6d %.4f (%.4f) p=%.3g\n", name(g.Group), g.N, g.Effect, g.StdErr, g.P)
	}
}
