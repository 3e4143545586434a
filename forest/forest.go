// Package forest implements random-forest estimators used for nuisance
// estimation and heterogeneous treatment effects: a weighted regression
// forest with out-of-bag predictions and kernel weights, a double machine
// learning causal forest, and a local benefit-to-cost ratio forest.
package forest

import (
	"expvar"
	"math"
	"math/rand"
	"runtime"
	"sync"
	"time"

	"github.com/golang/glog"
	"github.com/pkg/errors"
)

var treesGrown = expvar.NewInt("forest/trees_grown")

type Params struct {
	NumTrees    int `yaml:"num_trees"`
	MinLeafSize int `yaml:"min_leaf_size"`
	// MaxDepth <= 0 means unlimited.
	MaxDepth int `yaml:"max_depth"`
	// Mtry is the number of features tried per split; <= 0 means all.
	Mtry int `yaml:"mtry"`
	// SampleFraction of units drawn without replacement for each tree.
	SampleFraction float64 `yaml:"sample_fraction"`
	// Honest trees split on half of their sample and estimate leaf values
	// on the other half.
	Honest     bool  `yaml:"honest"`
	Seed       int64 `yaml:"seed"`
	NumWorkers int   `yaml:"-"`
}

var DefaultParams = Params{
	NumTrees:       200,
	MinLeafSize:    5,
	MaxDepth:       50,
	SampleFraction: 0.5,
	Honest:         true,
	Seed:           2,
}

func (p Params) Validate() error {
	if p.NumTrees <= 0 {
		return errors.Errorf("num_trees must be positive, got %d", p.NumTrees)
	}
	if p.MinLeafSize <= 0 {
		return errors.Errorf("min_leaf_size must be positive, got %d", p.MinLeafSize)
	}
	if p.SampleFraction <= 0 || p.SampleFraction > 1 {
		return errors.Errorf("sample_fraction must be in (0, 1], got %v", p.SampleFraction)
	}
	if p.Honest && p.SampleFraction == 1 {
		return errors.New("honest forests need sample_fraction < 1 to have out-of-bag units")
	}
	return nil
}

// Regression is a weighted regression forest.
type Regression struct {
	Params

	x       [][]float64
	n       int
	trees   []*tree
	inBag   [][]bool
	oob     []float64
	oobMask []bool
}

func NewRegression(params Params) *Regression {
	return &Regression{Params: params}
}

// Fit grows the forest on (X, y). weights may be nil.
func (f *Regression) Fit(X [][]float64, y, weights []float64) error {
	if err := f.Validate(); err != nil {
		return err
	}
	n := len(y)
	if n == 0 || len(X) != n {
		return errors.Errorf("forest needs matching non-empty X and y, got %d and %d rows", len(X), n)
	}
	if weights != nil && len(weights) != n {
		return errors.Errorf("%d weights for %d units", len(weights), n)
	}

	sampleSize := int(math.Round(f.SampleFraction * float64(n)))
	minSample := f.MinLeafSize
	if f.Honest {
		minSample *= 2
	}
	if sampleSize < minSample {
		return errors.Errorf("subsample of %d units is too small for min_leaf_size %d", sampleSize, f.MinLeafSize)
	}

	f.x = X
	f.n = n
	f.trees = make([]*tree, f.NumTrees)
	f.inBag = make([][]bool, f.NumTrees)
	params := treeParams{
		minLeafSize: f.MinLeafSize,
		maxDepth:    f.MaxDepth,
		mtry:        f.Mtry,
	}

	nWorkers := f.NumWorkers
	if nWorkers <= 0 {
		nWorkers = runtime.GOMAXPROCS(0)
	}

	start := time.Now()
	var wg sync.WaitGroup
	sem := make(chan struct{}, nWorkers)
	for b := 0; b < f.NumTrees; b++ {
		sem <- struct{}{}
		wg.Add(1)
		go func(b int) {
			defer func() { <-sem }()
			defer wg.Done()

			rng := rand.New(rand.NewSource(f.Seed + int64(b)*7919))
			sample := rng.Perm(n)[:sampleSize]
			structure, estimation := sample, sample
			if f.Honest {
				half := sampleSize / 2
				structure, estimation = sample[:half], sample[half:]
			}

			inBag := make([]bool, n)
			for _, i := range sample {
				inBag[i] = true
			}

			f.trees[b] = growTree(X, y, weights, structure, estimation, params, rng)
			f.inBag[b] = inBag
			treesGrown.Add(1)
		}(b)
	}
	wg.Wait()

	f.computeOOB()
	glog.V(1).Infof("Grew %d trees on %d units (took %v)", f.NumTrees, n, time.Since(start))
	return nil
}

func (f *Regression) computeOOB() {
	sum := make([]float64, f.n)
	count := make([]int, f.n)
	for b, t := range f.trees {
		for i := 0; i < f.n; i++ {
			if f.inBag[b][i] {
				continue
			}
			if v := t.predict(f.x[i]); !math.IsNaN(v) {
				sum[i] += v
				count[i]++
			}
		}
	}

	f.oob = make([]float64, f.n)
	f.oobMask = make([]bool, f.n)
	nMissing := 0
	for i := range f.oob {
		if count[i] > 0 {
			f.oob[i] = sum[i] / float64(count[i])
			f.oobMask[i] = true
		} else {
			f.oob[i] = f.Predict(f.x[i])
			nMissing++
		}
	}
	if nMissing > 0 {
		glog.Warningf("%d of %d units were never out of bag, using in-bag predictions", nMissing, f.n)
	}
}

// Predict averages the leaf values of every tree at x.
func (f *Regression) Predict(x []float64) float64 {
	sum, count := 0.0, 0
	for _, t := range f.trees {
		if v := t.predict(x); !math.IsNaN(v) {
			sum += v
			count++
		}
	}
	if count == 0 {
		return math.NaN()
	}
	return sum / float64(count)
}

func (f *Regression) PredictAll(X [][]float64) []float64 {
	result := make([]float64, len(X))
	for i, x := range X {
		result[i] = f.Predict(x)
	}
	return result
}

// OOB returns the out-of-bag prediction for every training unit: the
// average over trees whose subsample did not contain the unit.
func (f *Regression) OOB() []float64 {
	return f.oob
}

// Weights returns the forest kernel weights alpha_i(x) over the training
// units: the average over trees of 1/|L| for the estimation units i in the
// leaf L containing x. If excludeInBag is set, trees whose subsample
// contains unit `self` are skipped, giving out-of-bag weights for that unit.
func (f *Regression) Weights(x []float64, self int, excludeInBag bool) []float64 {
	alpha := make([]float64, f.n)
	nTrees := 0
	for b, t := range f.trees {
		if excludeInBag && self >= 0 && f.inBag[b][self] {
			continue
		}

		leaf := &t.nodes[t.leaf(x)]
		if len(leaf.Samples) == 0 {
			continue
		}
		nTrees++
		share := 1 / float64(len(leaf.Samples))
		for _, i := range leaf.Samples {
			alpha[i] += share
		}
	}

	if nTrees > 0 {
		for i := range alpha {
			alpha[i] /= float64(nTrees)
		}
	}
	return alpha
}

// MSE is the out-of-bag mean squared error against y.
func (f *Regression) MSE(y []float64) float64 {
	total := 0.0
	for i, v := range f.oob {
		total += (y[i] - v) * (y[i] - v)
	}
	return total / float64(len(y))
}
