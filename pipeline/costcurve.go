package pipeline

import (
	"math"

	"github.com/golang/glog"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/stat"

	"github.com/timpalpant/policylearn"
	"github.com/timpalpant/policylearn/budget"
	"github.com/timpalpant/policylearn/forest"
	"github.com/timpalpant/policylearn/value"
)

// Estimated treatment costs are clipped below at minEstimatedCost so that
// benefit-to-cost ratios stay finite.
const minEstimatedCost = 1e-6

const (
	CurveIgnoreCost = "ignore_cost"
	CurveRatio      = "ratio"
	CurveLocalRatio = "local_ratio"
)

// costCurves ranks the evaluation units three ways (by estimated effect
// alone, by the quotient of estimated effect and estimated cost, and by a
// directly estimated local benefit-to-cost ratio), traces the IPW cost
// curve of each ranking, and optionally allocates a budget greedily.
func costCurves(cfg *Config, train, test *policylearn.Dataset, report *Report) error {
	params := cfg.Nuisance.Forest

	benefitForest := forest.NewCausalDML(params)
	if err := benefitForest.Fit(train.X, train.Y, train.W); err != nil {
		return errors.Wrap(err, "error fitting benefit forest")
	}
	tauHat := benefitForest.Effect(test.X)

	// Control units cost nothing, so the effect on cost is E[C(1) | X].
	costForest := forest.NewCausalDML(params)
	if err := costForest.Fit(train.X, train.Cost, train.W); err != nil {
		return errors.Wrap(err, "error fitting cost forest")
	}
	gammaHat := costForest.Effect(test.X)
	nClipped := 0
	for i, g := range gammaHat {
		if !(g >= minEstimatedCost) {
			gammaHat[i] = minEstimatedCost
			nClipped++
		}
	}
	if nClipped > 0 {
		glog.Warningf("Clipped %d of %d estimated costs to %v", nClipped, len(gammaHat), minEstimatedCost)
	}

	ratioForest := forest.NewLocalRatio(params)
	if err := ratioForest.Fit(train.X, train.Y, train.W, train.Cost); err != nil {
		return errors.Wrap(err, "error fitting local ratio forest")
	}
	rhoHat := ratioForest.PredictAll(test.X)
	nUndefined := 0
	for _, rho := range rhoHat {
		if math.IsNaN(rho) {
			nUndefined++
		}
	}
	if nUndefined > 0 {
		report.warnf("local ratio undefined for %d of %d units, ranked last", nUndefined, len(rhoHat))
	}

	e := cfg.Propensity.Known
	if e == 0 {
		e = stat.Mean(test.W, nil)
	}
	valueContrib, costContrib, err := budget.IPWContributions(test.Y, test.W, test.Cost, e)
	if err != nil {
		return err
	}

	ratioOrder, err := budget.Rank(tauHat, gammaHat)
	if err != nil {
		return err
	}
	orders := []struct {
		name  string
		order []int
	}{
		{CurveIgnoreCost, budget.Order(tauHat)},
		{CurveRatio, ratioOrder},
		{CurveLocalRatio, budget.Order(rhoHat)},
	}
	for _, o := range orders {
		c, err := budget.NewCurve(o.name, o.order, valueContrib, costContrib)
		if err != nil {
			return errors.Wrapf(err, "error tracing %v cost curve", o.name)
		}
		report.Curves = append(report.Curves, CurveSummary{Curve: c, Area: c.Area()})
		glog.Infof("Cost curve %v: area %.4f", o.name, c.Area())
	}

	if cfg.Cost.Budget > 0 {
		alloc, err := budget.Allocate(tauHat, gammaHat, cfg.Cost.Budget)
		if err != nil {
			return err
		}
		est, err := value.SampleMeanWithCosts(test.Y, test.W, alloc.Treat, test.Cost)
		if err != nil {
			report.warnf("budget allocation value: %v", err)
		}
		report.Allocation = &AllocationSummary{
			Budget:     cfg.Cost.Budget,
			NumTreated: alloc.NumTreated,
			Spent:      alloc.Spent,
			Value:      est,
		}
	}

	return nil
}
