// Package value estimates the expected outcome of a treatment policy on
// held-out data.
package value

import (
	"fmt"
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/stat"

	"github.com/timpalpant/policylearn/scores"
)

var (
	ErrEmpty          = errors.New("no units to evaluate")
	ErrLengthMismatch = errors.New("inputs have different lengths")
	// ErrEmptyStratum is returned when the policy assigns units to an arm
	// but none of those units were observed in that arm, so the arm's
	// conditional mean is undefined.
	ErrEmptyStratum = errors.New("no observed units in policy stratum")
)

// Estimate is a policy value estimate with its standard error.
type Estimate struct {
	Value  float64
	StdErr float64
}

func (e Estimate) String() string {
	return fmt.Sprintf("%.4f (%.4f)", e.Value, e.StdErr)
}

// CI returns the normal-approximation confidence interval with the given
// z multiplier (e.g. 1.96).
func (e Estimate) CI(z float64) (float64, float64) {
	return e.Value - z*e.StdErr, e.Value + z*e.StdErr
}

var nanEstimate = Estimate{Value: math.NaN(), StdErr: math.NaN()}

// SampleMean is the difference-in-means value estimator, valid only when
// treatment was randomized with a known constant propensity. Treated units
// pay a constant cost.
func SampleMean(y, w []float64, a []bool, cost float64) (Estimate, error) {
	return sampleMean(y, w, a, func(int) float64 { return cost })
}

// SampleMeanWithCosts is SampleMean with a per-unit treatment cost.
func SampleMeanWithCosts(y, w []float64, a []bool, cost []float64) (Estimate, error) {
	if len(cost) != len(y) {
		return nanEstimate, errors.Wrapf(ErrLengthMismatch, "%d costs for %d units", len(cost), len(y))
	}
	return sampleMean(y, w, a, func(i int) float64 { return cost[i] })
}

func sampleMean(y, w []float64, a []bool, cost func(int) float64) (Estimate, error) {
	if err := checkLengths(len(y), len(w), len(a)); err != nil {
		return nanEstimate, err
	}

	var y1, y0 []float64
	nAssigned := 0
	for i := range y {
		if a[i] {
			nAssigned++
			if w[i] == 1 {
				y1 = append(y1, y[i]-cost(i))
			}
		} else if w[i] == 0 {
			y0 = append(y0, y[i])
		}
	}

	fracTreat := float64(nAssigned) / float64(len(y))
	fracControl := 1 - fracTreat
	var result Estimate
	var variance float64
	if nAssigned > 0 {
		if len(y1) == 0 {
			return nanEstimate, errors.Wrap(ErrEmptyStratum, "policy treats units but none were observed treated")
		}
		result.Value += stat.Mean(y1, nil) * fracTreat
		variance += stat.PopVariance(y1, nil) / float64(len(y1)) * fracTreat * fracTreat
	}
	if nAssigned < len(y) {
		if len(y0) == 0 {
			return nanEstimate, errors.Wrap(ErrEmptyStratum, "policy withholds treatment but no such unit was observed untreated")
		}
		result.Value += stat.Mean(y0, nil) * fracControl
		variance += stat.PopVariance(y0, nil) / float64(len(y0)) * fracControl * fracControl
	}

	result.StdErr = math.Sqrt(variance)
	return result, nil
}

// AIPW is the doubly-robust value estimator: the mean of the score of the
// arm chosen by the policy for each unit. Valid under randomization or
// unconfoundedness with overlap.
func AIPW(pair scores.Pair, a []bool) (Estimate, error) {
	if err := checkLengths(pair.Len(), len(pair.Gamma0), len(a)); err != nil {
		return nanEstimate, err
	}

	gammaPi := make([]float64, len(a))
	for i, treat := range a {
		if treat {
			gammaPi[i] = pair.Gamma1[i]
		} else {
			gammaPi[i] = pair.Gamma0[i]
		}
	}

	return meanAndStdErr(gammaPi), nil
}

// SampleMeanDifference estimates the gain of the policy over treating no
// one, V(pi) - V(0), from the units the policy would treat:
//
//	(mean(Y | A, W=1) - cost - mean(Y | A, W=0)) * P[A].
//
// Valid only in randomized settings.
func SampleMeanDifference(y, w []float64, a []bool, cost float64) (Estimate, error) {
	if err := checkLengths(len(y), len(w), len(a)); err != nil {
		return nanEstimate, err
	}

	var y1, y0 []float64
	nAssigned := 0
	for i := range y {
		if !a[i] {
			continue
		}
		nAssigned++
		if w[i] == 1 {
			y1 = append(y1, y[i])
		} else {
			y0 = append(y0, y[i])
		}
	}

	if nAssigned == 0 {
		// Identical to the treat-none policy.
		return Estimate{}, nil
	}
	if len(y1) == 0 || len(y0) == 0 {
		return nanEstimate, errors.Wrapf(ErrEmptyStratum,
			"%d treated and %d control units among %d assigned", len(y1), len(y0), nAssigned)
	}

	frac := float64(nAssigned) / float64(len(y))
	variance := stat.PopVariance(y1, nil)/float64(len(y1))*frac*frac +
		stat.PopVariance(y0, nil)/float64(len(y0))*frac*frac
	return Estimate{
		Value:  (stat.Mean(y1, nil) - cost - stat.Mean(y0, nil)) * frac,
		StdErr: math.Sqrt(variance),
	}, nil
}

// AIPWDifference estimates V(pi) - V(0) as the mean of A (Gamma1 - Gamma0).
func AIPWDifference(pair scores.Pair, a []bool) (Estimate, error) {
	if err := checkLengths(pair.Len(), len(pair.Gamma0), len(a)); err != nil {
		return nanEstimate, err
	}

	diff := make([]float64, len(a))
	for i, treat := range a {
		if treat {
			diff[i] = pair.Gamma1[i] - pair.Gamma0[i]
		}
	}

	return meanAndStdErr(diff), nil
}

// TreatedFraction is the share of units assigned to treatment.
func TreatedFraction(a []bool) float64 {
	if len(a) == 0 {
		return math.NaN()
	}

	n := 0
	for _, treat := range a {
		if treat {
			n++
		}
	}
	return float64(n) / float64(len(a))
}

// Degenerate reports whether a assigns every unit to the same arm, in which
// case its value is a single-arm mean with no comparison.
func Degenerate(a []bool) bool {
	f := TreatedFraction(a)
	return f == 0 || f == 1
}

func meanAndStdErr(x []float64) Estimate {
	mean := stat.Mean(x, nil)
	sd := math.Sqrt(stat.PopVariance(x, nil))
	return Estimate{
		Value:  mean,
		StdErr: sd / math.Sqrt(float64(len(x))),
	}
}

func checkLengths(n int, others ...int) error {
	if n == 0 {
		return ErrEmpty
	}
	for _, m := range others {
		if m != n {
			return errors.Wrapf(ErrLengthMismatch, "expected %d, got %d", n, m)
		}
	}
	return nil
}
