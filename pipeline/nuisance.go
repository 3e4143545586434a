package pipeline

import (
	"math"

	"github.com/golang/glog"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/stat"

	"github.com/timpalpant/policylearn"
	"github.com/timpalpant/policylearn/forest"
	"github.com/timpalpant/policylearn/linear"
	"github.com/timpalpant/policylearn/scores"
)

// effectModel is a conditional treatment effect model fit on the training
// units.
type effectModel interface {
	// Effect predicts tau(x). Returns NaN if x cannot be scored.
	Effect(x []float64) float64
	// TrainingNuisance returns nuisance estimates for the training units.
	TrainingNuisance() (scores.Nuisance, error)
	// EvaluationNuisance returns nuisance estimates for held-out units
	// without using any training outcome.
	EvaluationNuisance(test *policylearn.Dataset) (scores.Nuisance, error)
}

func fitEffectModel(cfg *Config, train *policylearn.Dataset) (effectModel, error) {
	switch cfg.Nuisance.Method {
	case NuisanceLasso:
		m := &lassoModel{
			df:         cfg.Nuisance.SplineDF,
			folds:      cfg.Nuisance.Folds,
			propensity: cfg.Propensity.Known,
		}
		return m, m.fit(train)
	case NuisanceForest:
		m := &forestModel{
			params:     cfg.Nuisance.Forest,
			tune:       cfg.Nuisance.Tune,
			propensity: cfg.Propensity.Known,
		}
		return m, m.fit(train)
	}

	return nil, errors.Errorf("unknown nuisance method %q", cfg.Nuisance.Method)
}

// lassoModel regresses the outcome on cubic splines of every covariate
// interacted with treatment, y ~ bs(x_1)*w + ... + bs(x_p)*w, with a
// cross-validated lasso penalty.
type lassoModel struct {
	df         int
	folds      int
	propensity float64

	design *linear.InteractionDesign
	lasso  *linear.LassoCV
	train  *policylearn.Dataset
}

func (m *lassoModel) fit(train *policylearn.Dataset) error {
	m.train = train
	if m.propensity == 0 {
		m.propensity = stat.Mean(train.W, nil)
		glog.V(1).Infof("Using constant propensity %.4f estimated from training units", m.propensity)
	}

	m.design = linear.NewInteractionDesign(m.df)
	if err := m.design.Fit(train.X, train.Names); err != nil {
		return errors.Wrap(err, "error fitting spline basis")
	}
	X, err := m.design.Matrix(train.X, train.W)
	if err != nil {
		return err
	}

	m.lasso = linear.NewLassoCV(m.folds)
	if err := m.lasso.Fit(X, train.Y); err != nil {
		return errors.Wrap(err, "error fitting lasso")
	}
	glog.Infof("Fit spline lasso with alpha=%.4g on %d units", m.lasso.Alpha, train.Len())
	return nil
}

// predict returns the fitted outcome of every unit in ds had it been
// assigned treatment w.
func (m *lassoModel) predict(ds *policylearn.Dataset, w float64) ([]float64, error) {
	cf := ds.WithTreatment(w)
	Xw, err := m.design.Matrix(cf.X, cf.W)
	if err != nil {
		return nil, err
	}
	return m.lasso.Predict(Xw), nil
}

func (m *lassoModel) Effect(x []float64) float64 {
	unit := &policylearn.Dataset{X: [][]float64{x}}
	mu1, err := m.predict(unit, 1)
	if err != nil {
		return math.NaN()
	}
	mu0, err := m.predict(unit, 0)
	if err != nil {
		return math.NaN()
	}
	return mu1[0] - mu0[0]
}

func (m *lassoModel) nuisance(ds *policylearn.Dataset) (scores.Nuisance, error) {
	mu1, err := m.predict(ds, 1)
	if err != nil {
		return scores.Nuisance{}, err
	}
	mu0, err := m.predict(ds, 0)
	if err != nil {
		return scores.Nuisance{}, err
	}

	return scores.Nuisance{
		Mu1: mu1,
		Mu0: mu0,
		E:   scores.Constant(len(ds.X), m.propensity),
	}, nil
}

func (m *lassoModel) TrainingNuisance() (scores.Nuisance, error) {
	return m.nuisance(m.train)
}

// EvaluationNuisance applies the frozen training fit to the held-out units.
func (m *lassoModel) EvaluationNuisance(test *policylearn.Dataset) (scores.Nuisance, error) {
	return m.nuisance(test)
}

// forestModel is a double machine learning causal forest.
type forestModel struct {
	params     forest.Params
	tune       bool
	propensity float64

	causal *forest.CausalDML
}

func (m *forestModel) fit(train *policylearn.Dataset) error {
	m.causal = m.newCausal()
	if err := m.causal.Fit(train.X, train.Y, train.W); err != nil {
		return errors.Wrap(err, "error fitting causal forest")
	}
	glog.Infof("Fit causal forest with %d trees on %d units", m.params.NumTrees, train.Len())
	return nil
}

func (m *forestModel) newCausal() *forest.CausalDML {
	c := forest.NewCausalDML(m.params)
	c.Tune = m.tune
	return c
}

func (m *forestModel) Effect(x []float64) float64 {
	return m.causal.Effect([][]float64{x})[0]
}

func (m *forestModel) TrainingNuisance() (scores.Nuisance, error) {
	return m.oobNuisance(m.causal)
}

func (m *forestModel) oobNuisance(c *forest.CausalDML) (scores.Nuisance, error) {
	eHat := c.EHat
	if m.propensity > 0 {
		eHat = scores.Constant(len(eHat), m.propensity)
	}
	return scores.FromResiduals(c.YHat, eHat, c.EffectOOB())
}

// EvaluationNuisance fits a separate forest on the held-out units and
// returns its out-of-bag estimates.
func (m *forestModel) EvaluationNuisance(test *policylearn.Dataset) (scores.Nuisance, error) {
	c := m.newCausal()
	if err := c.Fit(test.X, test.Y, test.W); err != nil {
		return scores.Nuisance{}, errors.Wrap(err, "error fitting evaluation forest")
	}
	return m.oobNuisance(c)
}
