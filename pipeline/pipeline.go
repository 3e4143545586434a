package pipeline

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/golang/glog"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/timpalpant/policylearn"
	"github.com/timpalpant/policylearn/diagnostics"
	"github.com/timpalpant/policylearn/policy"
	"github.com/timpalpant/policylearn/scores"
	"github.com/timpalpant/policylearn/value"
)

// ErrLeakage is returned when a unit used to fit the policy is also used
// to evaluate it.
var ErrLeakage = errors.New("training and evaluation units overlap")

const (
	EstimateSampleMean     = "sample mean"
	EstimateAIPW           = "aipw"
	EstimateSampleMeanGain = "sample mean gain"
	EstimateAIPWGain       = "aipw gain"
)

// Run executes the pipeline described by cfg.
func Run(ctx context.Context, cfg *Config) (report *Report, err error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	start := time.Now()
	defer func() {
		status := "ok"
		if err != nil {
			status = "error"
		}
		RunsTotal.WithLabelValues(cfg.Nuisance.Method, cfg.Policy.Kind, status).Inc()
		RunDuration.Observe(time.Since(start).Seconds())
	}()

	rng := rand.New(rand.NewSource(cfg.Seed))
	ds, desc, err := loadData(ctx, cfg, rng)
	if err != nil {
		return nil, err
	}

	part, err := policylearn.Split(ds.Len(), cfg.TestFraction, rng)
	if err != nil {
		return nil, err
	}
	report, err = runSplit(cfg, ds, part)
	if err != nil {
		return nil, err
	}
	report.Data = desc

	if cfg.OutputURL != "" {
		if err := writeArtifacts(ctx, cfg.OutputURL, report); err != nil {
			return nil, err
		}
	}

	glog.Infof("Finished run %v (took %v)", report.RunID, time.Since(start))
	return report, nil
}

func loadData(ctx context.Context, cfg *Config, rng *rand.Rand) (*policylearn.Dataset, string, error) {
	if cfg.Data.URL != "" {
		ds, err := policylearn.LoadCSV(ctx, cfg.Data.URL, cfg.Data.CSV)
		if err != nil {
			return nil, "", err
		}
		return ds, cfg.Data.URL, nil
	}

	sp := *cfg.Data.Simulate
	ds, err := policylearn.Simulate(sp, rng)
	if err != nil {
		return nil, "", err
	}
	if cfg.Data.SimulatedCost != "" {
		if err := policylearn.SimulateCost(ds, cfg.Data.SimulatedCost, rng); err != nil {
			return nil, "", err
		}
	}

	desc := fmt.Sprintf("simulated (n=%d, p=%d, e=%g)", sp.N, sp.P, sp.E)
	return ds, desc, nil
}

// runSplit fits on part.Train and evaluates on part.Test.
func runSplit(cfg *Config, ds *policylearn.Dataset, part policylearn.Partition) (*Report, error) {
	if !part.Disjoint() {
		return nil, ErrLeakage
	}

	train, test := ds.Subset(part.Train), ds.Subset(part.Test)
	report := &Report{
		RunID:    uuid.NewString(),
		NumTrain: train.Len(),
		NumTest:  test.Len(),
		Nuisance: cfg.Nuisance.Method,
		Policy:   cfg.Policy.Kind,
		Cost:     cfg.Cost.Constant,
	}
	glog.Infof("Run %v: %d training units, %d evaluation units", report.RunID, train.Len(), test.Len())

	model, err := fitEffectModel(cfg, train)
	if err != nil {
		return nil, err
	}

	opts := scores.Options{Eps: cfg.Propensity.Bound}
	if cfg.Propensity.Strict {
		opts.Mode = scores.StrictOverlap
	}

	p, err := fitPolicy(cfg, model, train, opts, report)
	if err != nil {
		return nil, err
	}

	// Everything below uses only the evaluation units.
	evalNuisance, err := model.EvaluationNuisance(test)
	if err != nil {
		return nil, err
	}
	evalPair, err := scores.AIPW(test.Y, test.W, evalNuisance, opts)
	if err != nil {
		return nil, errors.Wrap(err, "error computing evaluation scores")
	}
	evalPair = evalPair.Subtract(cfg.Cost.Constant)

	a := policy.Assign(p, test.X)
	report.evalScores, report.assignment = evalPair, a
	evaluate(cfg, test, a, evalPair, report)
	diagnose(cfg, test, a, evalPair, report)

	if cfg.Cost.Curves {
		if !ds.HasCost() {
			report.warnf("cost curves requested but the data has no cost column")
		} else if err := costCurves(cfg, train, test, report); err != nil {
			return nil, err
		}
	}

	return report, nil
}

func fitPolicy(cfg *Config, model effectModel, train *policylearn.Dataset, opts scores.Options, report *Report) (policy.Policy, error) {
	switch cfg.Policy.Kind {
	case PolicyThreshold:
		return &policy.Threshold{Effect: model.Effect, Cutoff: cfg.Cost.Constant}, nil
	case PolicyTree:
		nuis, err := model.TrainingNuisance()
		if err != nil {
			return nil, err
		}
		pair, err := scores.AIPW(train.Y, train.W, nuis, opts)
		if err != nil {
			return nil, errors.Wrap(err, "error computing training scores")
		}
		pair = pair.Subtract(cfg.Cost.Constant)

		tree, err := policy.FitTree(train.X, pair.Matrix(), train.Names, cfg.Policy.Tree)
		if err != nil {
			return nil, err
		}
		report.Tree = tree
		return tree, nil
	}

	return nil, errors.Errorf("unknown policy kind %q", cfg.Policy.Kind)
}

func evaluate(cfg *Config, test *policylearn.Dataset, a []bool, pair scores.Pair, report *Report) {
	report.TreatedFraction = value.TreatedFraction(a)
	if value.Degenerate(a) {
		report.Degenerate = true
		DegeneratePoliciesTotal.Inc()
		glog.Warningf("Policy assigns all %d evaluation units to the same arm", len(a))
	}

	add := func(name string, est value.Estimate, err error) {
		ne := NamedEstimate{Name: name, Estimate: est}
		if err != nil {
			ne.Err = err.Error()
			report.warnf("%s: %v", name, err)
		}
		report.Estimates = append(report.Estimates, ne)
	}

	est, err := value.SampleMean(test.Y, test.W, a, cfg.Cost.Constant)
	add(EstimateSampleMean, est, err)
	est, err = value.AIPW(pair, a)
	add(EstimateAIPW, est, err)
	est, err = value.SampleMeanDifference(test.Y, test.W, a, cfg.Cost.Constant)
	add(EstimateSampleMeanGain, est, err)
	est, err = value.AIPWDifference(pair, a)
	add(EstimateAIPWGain, est, err)

	if cfg.Data.URL == "" && cfg.Data.Simulate != nil {
		sp := *cfg.Data.Simulate
		oracle := make([]bool, test.Len())
		for i, x := range test.X {
			oracle[i] = sp.Effect(x) > cfg.Cost.Constant
		}
		report.Truth = &Truth{
			Policy: netTrueValue(sp, test.X, a, cfg.Cost.Constant),
			Oracle: netTrueValue(sp, test.X, oracle, cfg.Cost.Constant),
		}
	}
}

func netTrueValue(sp policylearn.SimParams, X [][]float64, a []bool, cost float64) float64 {
	return sp.TrueValue(X, a) - cost*value.TreatedFraction(a)
}

func diagnose(cfg *Config, test *policylearn.Dataset, a []bool, pair scores.Pair, report *Report) {
	arms := make([]int, len(a))
	for i, treat := range a {
		if treat {
			arms[i] = policy.Treatment
		}
	}

	var err error
	if report.EffectsByArm, err = diagnostics.ArmEffectsByGroup(test.Y, test.W, arms, cfg.Cost.Constant); err != nil {
		report.warnf("effects by assignment: %v", err)
	}
	if report.ScoreDiffsByArm, err = diagnostics.ScoreDiffByGroup(pair.Diff(), arms); err != nil {
		report.warnf("score differences by assignment: %v", err)
	}
	if report.Degenerate {
		report.warnf("covariate balance is undefined for a policy with one arm")
	} else if report.Balance, err = diagnostics.Balance(test.X, test.Names, arms); err != nil {
		report.warnf("covariate balance: %v", err)
	}

	if report.Tree == nil {
		return
	}
	leaves := report.Tree.Apply(test.X)
	if report.EffectsByLeaf, err = diagnostics.ArmEffectsByGroup(test.Y, test.W, leaves, cfg.Cost.Constant); err != nil {
		report.warnf("effects by leaf: %v", err)
	}
	if report.ScoreDiffsByLeaf, err = diagnostics.ScoreDiffByGroup(pair.Diff(), leaves); err != nil {
		report.warnf("score differences by leaf: %v", err)
	}
}
