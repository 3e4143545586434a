// Package scores computes doubly-robust (AIPW) pseudo-outcomes.
package scores

import (
	"math"

	"github.com/golang/glog"
	"github.com/pkg/errors"
)

// DefaultPropensityBound is the default eps used to keep estimated
// propensities inside [eps, 1-eps].
const DefaultPropensityBound = 0.01

var (
	ErrLengthMismatch   = errors.New("inputs have different lengths")
	ErrOverlapViolation = errors.New("propensity score not bounded away from 0 and 1")
	ErrInvalidInput     = errors.New("input contains NaN")
)

// Nuisance holds per-unit predictions of the outcome under treatment (Mu1)
// and control (Mu0), and the propensity score E = P[W=1 | X].
type Nuisance struct {
	Mu1 []float64
	Mu0 []float64
	E   []float64
}

func (n Nuisance) Len() int {
	return len(n.E)
}

// Pair holds the treatment-arm and control-arm AIPW scores of each unit.
type Pair struct {
	Gamma1 []float64
	Gamma0 []float64
}

func (p Pair) Len() int {
	return len(p.Gamma1)
}

// Diff returns Gamma1 - Gamma0, the per-unit doubly-robust effect score.
func (p Pair) Diff() []float64 {
	result := make([]float64, p.Len())
	for i := range result {
		result[i] = p.Gamma1[i] - p.Gamma0[i]
	}
	return result
}

// Subtract returns a copy of p with cost subtracted from every
// treatment-arm score.
func (p Pair) Subtract(cost float64) Pair {
	result := Pair{
		Gamma1: make([]float64, p.Len()),
		Gamma0: append([]float64(nil), p.Gamma0...),
	}
	for i, g := range p.Gamma1 {
		result.Gamma1[i] = g - cost
	}
	return result
}

// Matrix returns one row per unit with the control score in column 0 and
// the treatment score in column 1, so that row[action] is the reward of
// taking action.
func (p Pair) Matrix() [][]float64 {
	result := make([][]float64, p.Len())
	for i := range result {
		result[i] = []float64{p.Gamma0[i], p.Gamma1[i]}
	}
	return result
}

// OverlapMode controls what AIPW does with propensities outside
// [eps, 1-eps].
type OverlapMode int

const (
	// ClipPropensity moves offending propensities to the nearest bound.
	ClipPropensity OverlapMode = iota
	// StrictOverlap fails with ErrOverlapViolation.
	StrictOverlap
)

type Options struct {
	// Eps defaults to DefaultPropensityBound when zero.
	Eps  float64
	Mode OverlapMode
}

func (o Options) eps() float64 {
	if o.Eps <= 0 {
		return DefaultPropensityBound
	}
	return o.Eps
}

// Clip returns a copy of e with every value moved into [eps, 1-eps],
// and the number of values that were changed.
func Clip(e []float64, eps float64) ([]float64, int) {
	result := make([]float64, len(e))
	nClipped := 0
	for i, v := range e {
		switch {
		case v < eps:
			result[i] = eps
			nClipped++
		case v > 1-eps:
			result[i] = 1 - eps
			nClipped++
		default:
			result[i] = v
		}
	}
	return result, nClipped
}

// AIPW computes the augmented inverse-propensity weighted scores
//
//	Gamma1 = Mu1 + W / E * (Y - Mu1)
//	Gamma0 = Mu0 + (1 - W) / (1 - E) * (Y - Mu0)
func AIPW(y, w []float64, nuis Nuisance, opts Options) (Pair, error) {
	n := len(y)
	if len(w) != n || len(nuis.Mu1) != n || len(nuis.Mu0) != n || len(nuis.E) != n {
		return Pair{}, errors.Wrapf(ErrLengthMismatch,
			"len(y)=%d len(w)=%d len(mu1)=%d len(mu0)=%d len(e)=%d",
			n, len(w), len(nuis.Mu1), len(nuis.Mu0), len(nuis.E))
	}

	for i := 0; i < n; i++ {
		if math.IsNaN(y[i]) || math.IsNaN(w[i]) || math.IsNaN(nuis.Mu1[i]) ||
			math.IsNaN(nuis.Mu0[i]) || math.IsNaN(nuis.E[i]) {
			return Pair{}, errors.Wrapf(ErrInvalidInput, "unit %d", i)
		}
	}

	eps := opts.eps()
	e, nClipped := Clip(nuis.E, eps)
	if nClipped > 0 {
		if opts.Mode == StrictOverlap {
			return Pair{}, errors.Wrapf(ErrOverlapViolation,
				"%d of %d propensities outside [%v, %v]", nClipped, n, eps, 1-eps)
		}
		glog.Warningf("Clipped %d of %d propensity scores into [%v, %v]", nClipped, n, eps, 1-eps)
	}

	result := Pair{
		Gamma1: make([]float64, n),
		Gamma0: make([]float64, n),
	}
	for i := 0; i < n; i++ {
		result.Gamma1[i] = nuis.Mu1[i] + w[i]/e[i]*(y[i]-nuis.Mu1[i])
		result.Gamma0[i] = nuis.Mu0[i] + (1-w[i])/(1-e[i])*(y[i]-nuis.Mu0[i])
	}

	return result, nil
}

// FromResiduals recovers the arm-specific outcome models from the
// partially-linear decomposition fit by a DML causal forest,
//
//	E[Y|X,W=1] = E[Y|X] + (1 - e(X)) tau(X)
//	E[Y|X,W=0] = E[Y|X] - e(X) tau(X)
//
// where yHat = E[Y|X] and eHat = e(X).
func FromResiduals(yHat, eHat, tau []float64) (Nuisance, error) {
	n := len(tau)
	if len(yHat) != n || len(eHat) != n {
		return Nuisance{}, errors.Wrapf(ErrLengthMismatch,
			"len(yHat)=%d len(eHat)=%d len(tau)=%d", len(yHat), len(eHat), n)
	}

	nuis := Nuisance{
		Mu1: make([]float64, n),
		Mu0: make([]float64, n),
		E:   append([]float64(nil), eHat...),
	}
	for i := range tau {
		nuis.Mu1[i] = yHat[i] + (1-eHat[i])*tau[i]
		nuis.Mu0[i] = yHat[i] - eHat[i]*tau[i]
	}
	return nuis, nil
}

// Constant returns a propensity vector for a randomized design with known
// treatment probability e.
func Constant(n int, e float64) []float64 {
	result := make([]float64, n)
	for i := range result {
		result[i] = e
	}
	return result
}
