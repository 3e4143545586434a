package forest

import (
	"github.com/golang/glog"
	"github.com/pkg/errors"
)

// minResidualWeight drops units whose treatment residual is too small to
// carry information about the effect.
const minResidualWeight = 1e-8

// CausalDML estimates heterogeneous treatment effects by double machine
// learning: out-of-bag regression forests for m(x) = E[Y|X] and
// e(x) = E[W|X], then a final weighted forest of the pseudo-outcome
// (Y - m) / (W - e) with weights (W - e)^2, which minimizes the R-learner
// loss sum_i ((Y_i - m_i) - tau(X_i) (W_i - e_i))^2.
type CausalDML struct {
	Params Params
	// Tune selects min_leaf_size for the nuisance forests by OOB error.
	Tune bool

	outcome   *Regression
	treatment *Regression
	effect    *Regression

	YHat []float64
	EHat []float64
}

func NewCausalDML(params Params) *CausalDML {
	return &CausalDML{Params: params}
}

func (c *CausalDML) Fit(X [][]float64, y, w []float64) error {
	if len(y) != len(w) || len(X) != len(y) {
		return errors.Errorf("mismatched inputs: len(X)=%d len(y)=%d len(w)=%d", len(X), len(y), len(w))
	}

	outcomeParams, treatmentParams := c.Params, c.Params
	outcomeParams.Seed += 1
	treatmentParams.Seed += 2
	if c.Tune {
		var err error
		if outcomeParams, err = Tune(X, y, outcomeParams, DefaultTuneGrid); err != nil {
			return errors.Wrap(err, "error tuning outcome forest")
		}
		if treatmentParams, err = Tune(X, w, treatmentParams, DefaultTuneGrid); err != nil {
			return errors.Wrap(err, "error tuning treatment forest")
		}
	}

	c.outcome = NewRegression(outcomeParams)
	if err := c.outcome.Fit(X, y, nil); err != nil {
		return errors.Wrap(err, "error fitting outcome forest")
	}
	c.treatment = NewRegression(treatmentParams)
	if err := c.treatment.Fit(X, w, nil); err != nil {
		return errors.Wrap(err, "error fitting treatment forest")
	}
	c.YHat = c.outcome.OOB()
	c.EHat = c.treatment.OOB()

	pseudo := make([]float64, len(y))
	weights := make([]float64, len(y))
	nDropped := 0
	for i := range y {
		ry := y[i] - c.YHat[i]
		rw := w[i] - c.EHat[i]
		if rw*rw < minResidualWeight {
			nDropped++
			continue
		}
		pseudo[i] = ry / rw
		weights[i] = rw * rw
	}
	if nDropped > 0 {
		glog.Warningf("%d of %d units have negligible treatment residuals", nDropped, len(y))
	}

	effectParams := c.Params
	effectParams.Seed += 3
	c.effect = NewRegression(effectParams)
	if err := c.effect.Fit(X, pseudo, weights); err != nil {
		return errors.Wrap(err, "error fitting effect forest")
	}
	return nil
}

// Residuals returns Y - m(X) and W - e(X) with out-of-bag nuisances.
func (c *CausalDML) Residuals(y, w []float64) (ry, rw []float64) {
	ry = make([]float64, len(y))
	rw = make([]float64, len(w))
	for i := range y {
		ry[i] = y[i] - c.YHat[i]
		rw[i] = w[i] - c.EHat[i]
	}
	return ry, rw
}

// Effect predicts tau(x) for new units.
func (c *CausalDML) Effect(X [][]float64) []float64 {
	return c.effect.PredictAll(X)
}

// EffectOOB returns out-of-bag effect predictions for the training units.
func (c *CausalDML) EffectOOB() []float64 {
	return c.effect.OOB()
}

// EffectForest exposes the final-stage forest, whose kernel weights define
// the neighborhoods used by local estimators.
func (c *CausalDML) EffectForest() *Regression {
	return c.effect
}
