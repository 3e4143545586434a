package policylearn

import (
	"fmt"
	"math/rand"

	"github.com/pkg/errors"
	"github.com/timpalpant/go-cfr/sampling"
)

// SimParams configures the toy data generating process:
//
//	X ~ U(0, 1)^P, W ~ Bernoulli(E),
//	Y = E (X1 - E) + W (X2 - E) + Noise * N(0, 1).
type SimParams struct {
	N     int     `yaml:"n"`
	P     int     `yaml:"p"`
	E     float64 `yaml:"propensity"`
	Noise float64 `yaml:"noise"`
}

var DefaultSimParams = SimParams{
	N:     1000,
	P:     4,
	E:     0.5,
	Noise: 0.1,
}

func (sp SimParams) Validate() error {
	if sp.N <= 0 {
		return errors.Errorf("n must be positive, got %d", sp.N)
	}
	if sp.P < 2 {
		return errors.Errorf("need at least 2 covariates, got %d", sp.P)
	}
	if sp.E <= 0 || sp.E >= 1 {
		return errors.Errorf("propensity must be in (0, 1), got %v", sp.E)
	}
	if sp.Noise < 0 {
		return errors.Errorf("noise must be non-negative, got %v", sp.Noise)
	}
	return nil
}

// Baseline is E[Y | X=x, W=0].
func (sp SimParams) Baseline(x []float64) float64 {
	return sp.E * (x[0] - sp.E)
}

// Effect is the true conditional average treatment effect at x.
func (sp SimParams) Effect(x []float64) float64 {
	return x[1] - sp.E
}

func (sp SimParams) Mu(x []float64, w float64) float64 {
	return sp.Baseline(x) + w*sp.Effect(x)
}

// Simulate draws a Dataset from the data generating process.
func Simulate(sp SimParams, rng *rand.Rand) (*Dataset, error) {
	if err := sp.Validate(); err != nil {
		return nil, err
	}

	ds := &Dataset{
		Names: make([]string, sp.P),
		X:     make([][]float64, sp.N),
		W:     make([]float64, sp.N),
		Y:     make([]float64, sp.N),
	}
	for j := range ds.Names {
		ds.Names[j] = fmt.Sprintf("x_%d", j+1)
	}

	assignment := []float32{float32(1 - sp.E), float32(sp.E)}
	for i := range ds.X {
		x := make([]float64, sp.P)
		for j := range x {
			x[j] = rng.Float64()
		}
		ds.X[i] = x
		ds.W[i] = float64(sampling.SampleOne(assignment, rng.Float32()))
		ds.Y[i] = sp.Mu(x, ds.W[i]) + sp.Noise*rng.NormFloat64()
	}

	return ds, nil
}

// OracleAssignment treats exactly the units with a positive true effect.
func (sp SimParams) OracleAssignment(X [][]float64) []bool {
	result := make([]bool, len(X))
	for i, x := range X {
		result[i] = sp.Effect(x) > 0
	}
	return result
}

// TrueValue is the expected outcome of the assignment a on the units X,
// computed from the known data generating process.
func (sp SimParams) TrueValue(X [][]float64, a []bool) float64 {
	total := 0.0
	for i, x := range X {
		w := 0.0
		if a[i] {
			w = 1
		}
		total += sp.Mu(x, w)
	}
	return total / float64(len(X))
}

// PopulationOracleValue is the expected outcome of the oracle policy over
// the whole covariate distribution: E[E(X1-E)] + E[(X2-E)+].
func (sp SimParams) PopulationOracleValue() float64 {
	baseline := sp.E * (0.5 - sp.E)
	// X2 ~ U(0,1): E[max(X2-E, 0)] = (1-E)^2 / 2.
	return baseline + (1-sp.E)*(1-sp.E)/2
}

// CostKind selects how SimulateCost draws treatment costs.
type CostKind string

const (
	// A single U(0,1) draw shared by every treated unit.
	SharedUniformCost CostKind = "shared"
	// An independent U(0,1) draw for each treated unit.
	UniformCost CostKind = "uniform"
)

// SimulateCost attaches a cost column to ds. Control units cost nothing.
func SimulateCost(ds *Dataset, kind CostKind, rng *rand.Rand) error {
	ds.Cost = make([]float64, ds.Len())
	shared := rng.Float64()
	for i, w := range ds.W {
		if w != 1 {
			continue
		}

		switch kind {
		case SharedUniformCost:
			ds.Cost[i] = shared
		case UniformCost:
			ds.Cost[i] = rng.Float64()
		default:
			ds.Cost = nil
			return errors.Errorf("unknown cost kind %q", kind)
		}
	}

	return nil
}
