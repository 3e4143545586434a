package forest

import (
	"math"

	"github.com/pkg/errors"
)

// LocalRatio estimates the benefit-to-cost ratio of treatment at x,
//
//	rho(x) = sum_i alpha_i(x) (Y_i - m_i) (W_i - e_i) / sum_i alpha_i(x) (C_i - c_i) (W_i - e_i),
//
// the ratio of the local covariances of outcome and cost with treatment,
// where alpha(x) are the kernel weights of a causal forest for the outcome
// and m, e, c are out-of-bag nuisance estimates.
type LocalRatio struct {
	Params Params

	benefit *CausalDML
	cost    *Regression
	ry, rw  []float64
	rc      []float64
}

func NewLocalRatio(params Params) *LocalRatio {
	return &LocalRatio{Params: params}
}

func (lr *LocalRatio) Fit(X [][]float64, y, w, cost []float64) error {
	if len(cost) != len(y) {
		return errors.Errorf("%d costs for %d units", len(cost), len(y))
	}

	lr.benefit = NewCausalDML(lr.Params)
	if err := lr.benefit.Fit(X, y, w); err != nil {
		return err
	}
	lr.ry, lr.rw = lr.benefit.Residuals(y, w)

	costParams := lr.Params
	costParams.Seed += 4
	lr.cost = NewRegression(costParams)
	if err := lr.cost.Fit(X, cost, nil); err != nil {
		return errors.Wrap(err, "error fitting cost forest")
	}
	cHat := lr.cost.OOB()
	lr.rc = make([]float64, len(cost))
	for i := range cost {
		lr.rc[i] = cost[i] - cHat[i]
	}

	return nil
}

// Predict returns rho(x), or NaN when the local cost covariance is not
// positive.
func (lr *LocalRatio) Predict(x []float64) float64 {
	alpha := lr.benefit.EffectForest().Weights(x, -1, false)
	var num, den float64
	for i, a := range alpha {
		if a == 0 {
			continue
		}
		num += a * lr.ry[i] * lr.rw[i]
		den += a * lr.rc[i] * lr.rw[i]
	}

	if !(den > 0) {
		return math.NaN()
	}
	return num / den
}

func (lr *LocalRatio) PredictAll(X [][]float64) []float64 {
	result := make([]float64, len(X))
	for i, x := range X {
		result[i] = lr.Predict(x)
	}
	return result
}
