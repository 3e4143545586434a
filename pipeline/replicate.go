package pipeline

import (
	"context"
	"math/rand"
	"runtime"
	"sync"
	"time"

	"github.com/golang/glog"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/stat"

	"github.com/timpalpant/policylearn"
	"github.com/timpalpant/policylearn/scores"
	"github.com/timpalpant/policylearn/value"
)

// NuisanceOracle scores units with the true outcome model of the
// simulation.
const NuisanceOracle = "oracle"

// ReplicateConfig configures a Monte Carlo comparison of the sample-mean
// and AIPW value estimators of the oracle policy.
type ReplicateConfig struct {
	Sim        policylearn.SimParams `yaml:"simulate"`
	Reps       int                   `yaml:"reps"`
	Seed       int64                 `yaml:"seed"`
	Nuisance   string                `yaml:"nuisance"`
	Folds      int                   `yaml:"folds"`
	SplineDF   int                   `yaml:"spline_df"`
	NumWorkers int                   `yaml:"-"`
}

var DefaultReplicateConfig = ReplicateConfig{
	Sim:      policylearn.DefaultSimParams,
	Reps:     200,
	Seed:     42,
	Nuisance: NuisanceOracle,
	Folds:    10,
	SplineDF: 5,
}

type ReplicateSummary struct {
	Reps int
	// Mean of each estimator and of its standard error across replications.
	SampleMean, SampleMeanStdErr float64
	AIPW, AIPWStdErr             float64
	// TrueValue is the average true value of the oracle policy on the
	// evaluation units.
	TrueValue float64
	// AIPWSmaller counts replications where AIPW had the smaller standard
	// error.
	AIPWSmaller int
}

type replication struct {
	sampleMean value.Estimate
	aipw       value.Estimate
	trueValue  float64
}

// Replicate runs rc.Reps independent simulations in parallel.
func Replicate(ctx context.Context, rc ReplicateConfig) (*ReplicateSummary, error) {
	if rc.Reps <= 0 {
		return nil, errors.Errorf("reps must be positive, got %d", rc.Reps)
	}
	if err := rc.Sim.Validate(); err != nil {
		return nil, err
	}
	if rc.Nuisance != NuisanceOracle && rc.Nuisance != NuisanceLasso {
		return nil, errors.Errorf("unsupported nuisance %q for replication", rc.Nuisance)
	}

	nWorkers := rc.NumWorkers
	if nWorkers <= 0 {
		nWorkers = runtime.GOMAXPROCS(0)
	}

	start := time.Now()
	results := make([]replication, rc.Reps)
	var wg sync.WaitGroup
	var mu sync.Mutex
	var retErr error
	sem := make(chan struct{}, nWorkers)
	for rep := 0; rep < rc.Reps; rep++ {
		if ctx.Err() != nil {
			break
		}

		sem <- struct{}{}
		wg.Add(1)
		go func(rep int) {
			defer func() { <-sem }()
			defer wg.Done()

			result, err := replicateOnce(rc, rand.New(rand.NewSource(rc.Seed+int64(rep))))
			if err != nil {
				mu.Lock()
				defer mu.Unlock()
				if retErr == nil {
					retErr = errors.Wrapf(err, "replication %d", rep)
				}
				return
			}
			results[rep] = result
		}(rep)
	}
	wg.Wait()

	if retErr != nil {
		return nil, retErr
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	summary := summarize(results)
	glog.Infof("Finished %d replications (took %v)", rc.Reps, time.Since(start))
	return summary, nil
}

func replicateOnce(rc ReplicateConfig, rng *rand.Rand) (replication, error) {
	ds, err := policylearn.Simulate(rc.Sim, rng)
	if err != nil {
		return replication{}, err
	}
	part, err := policylearn.SplitAt(ds.Len(), ds.Len()/2)
	if err != nil {
		return replication{}, err
	}
	train, test := ds.Subset(part.Train), ds.Subset(part.Test)

	var nuis scores.Nuisance
	switch rc.Nuisance {
	case NuisanceOracle:
		nuis = scores.Nuisance{
			Mu1: make([]float64, test.Len()),
			Mu0: make([]float64, test.Len()),
			E:   scores.Constant(test.Len(), rc.Sim.E),
		}
		for i, x := range test.X {
			nuis.Mu1[i] = rc.Sim.Mu(x, 1)
			nuis.Mu0[i] = rc.Sim.Mu(x, 0)
		}
	case NuisanceLasso:
		m := &lassoModel{df: rc.SplineDF, folds: rc.Folds, propensity: rc.Sim.E}
		if err := m.fit(train); err != nil {
			return replication{}, err
		}
		if nuis, err = m.EvaluationNuisance(test); err != nil {
			return replication{}, err
		}
	}

	pair, err := scores.AIPW(test.Y, test.W, nuis, scores.Options{})
	if err != nil {
		return replication{}, err
	}

	a := rc.Sim.OracleAssignment(test.X)
	sm, err := value.SampleMean(test.Y, test.W, a, 0)
	if err != nil {
		return replication{}, err
	}
	aipw, err := value.AIPW(pair, a)
	if err != nil {
		return replication{}, err
	}

	return replication{
		sampleMean: sm,
		aipw:       aipw,
		trueValue:  rc.Sim.TrueValue(test.X, a),
	}, nil
}

func summarize(results []replication) *ReplicateSummary {
	n := len(results)
	sm := make([]float64, n)
	smSE := make([]float64, n)
	aipw := make([]float64, n)
	aipwSE := make([]float64, n)
	truth := make([]float64, n)
	summary := &ReplicateSummary{Reps: n}
	for i, r := range results {
		sm[i], smSE[i] = r.sampleMean.Value, r.sampleMean.StdErr
		aipw[i], aipwSE[i] = r.aipw.Value, r.aipw.StdErr
		truth[i] = r.trueValue
		if r.aipw.StdErr < r.sampleMean.StdErr {
			summary.AIPWSmaller++
		}
	}

	summary.SampleMean = stat.Mean(sm, nil)
	summary.SampleMeanStdErr = stat.Mean(smSE, nil)
	summary.AIPW = stat.Mean(aipw, nil)
	summary.AIPWStdErr = stat.Mean(aipwSE, nil)
	summary.TrueValue = stat.Mean(truth, nil)
	return summary
}
