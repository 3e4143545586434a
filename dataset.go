package policylearn

import (
	"math"
	"math/rand"

	"github.com/pkg/errors"
)

var (
	ErrEmptyDataset       = errors.New("dataset has no observations")
	ErrRaggedCovariates   = errors.New("covariate rows have different lengths")
	ErrNonBinaryTreatment = errors.New("treatment must be 0 or 1")
	ErrLengthMismatch     = errors.New("dataset columns have different lengths")
)

// Dataset holds i.i.d. observations of covariates, a binary treatment
// indicator and an outcome, and optionally a per-unit treatment cost.
type Dataset struct {
	// Names of the covariate columns, in the order they appear in X.
	Names []string
	// X[i] is the covariate vector of unit i.
	X [][]float64
	// W[i] is 1 if unit i was treated and 0 otherwise.
	W []float64
	Y []float64
	// Cost is nil if the dataset has no cost column.
	Cost []float64
}

func (ds *Dataset) Len() int {
	return len(ds.Y)
}

func (ds *Dataset) NumCovariates() int {
	if len(ds.X) == 0 {
		return len(ds.Names)
	}

	return len(ds.X[0])
}

func (ds *Dataset) HasCost() bool {
	return ds.Cost != nil
}

// Validate checks that the dataset is well formed.
func (ds *Dataset) Validate() error {
	n := ds.Len()
	if n == 0 {
		return ErrEmptyDataset
	}
	if len(ds.X) != n || len(ds.W) != n {
		return errors.Wrapf(ErrLengthMismatch, "len(X)=%d len(W)=%d len(Y)=%d", len(ds.X), len(ds.W), n)
	}
	if ds.Cost != nil && len(ds.Cost) != n {
		return errors.Wrapf(ErrLengthMismatch, "len(Cost)=%d len(Y)=%d", len(ds.Cost), n)
	}

	p := len(ds.X[0])
	if len(ds.Names) != 0 && len(ds.Names) != p {
		return errors.Wrapf(ErrRaggedCovariates, "%d names for %d covariates", len(ds.Names), p)
	}
	for i, row := range ds.X {
		if len(row) != p {
			return errors.Wrapf(ErrRaggedCovariates, "row %d has %d covariates, expected %d", i, len(row), p)
		}
		for j, v := range row {
			if math.IsNaN(v) {
				return errors.Errorf("covariate %d of row %d is NaN", j, i)
			}
		}
	}

	for i := range ds.W {
		if ds.W[i] != 0 && ds.W[i] != 1 {
			return errors.Wrapf(ErrNonBinaryTreatment, "row %d has w=%v", i, ds.W[i])
		}
		if math.IsNaN(ds.Y[i]) {
			return errors.Errorf("outcome of row %d is NaN", i)
		}
	}

	return nil
}

// Subset returns a new Dataset containing the given rows, in order.
// Covariate rows are shared with the receiver.
func (ds *Dataset) Subset(idx []int) *Dataset {
	result := &Dataset{
		Names: ds.Names,
		X:     make([][]float64, len(idx)),
		W:     make([]float64, len(idx)),
		Y:     make([]float64, len(idx)),
	}
	if ds.Cost != nil {
		result.Cost = make([]float64, len(idx))
	}

	for k, i := range idx {
		result.X[k] = ds.X[i]
		result.W[k] = ds.W[i]
		result.Y[k] = ds.Y[i]
		if ds.Cost != nil {
			result.Cost[k] = ds.Cost[i]
		}
	}

	return result
}

// WithTreatment returns a shallow copy of the dataset in which every unit
// has treatment w. Used to predict counterfactual outcomes, so Y may be
// empty.
func (ds *Dataset) WithTreatment(w float64) *Dataset {
	result := *ds
	result.W = make([]float64, len(ds.X))
	for i := range result.W {
		result.W[i] = w
	}
	return &result
}

// FlipTreatment swaps the treatment and control labels in place.
func (ds *Dataset) FlipTreatment() {
	for i, w := range ds.W {
		ds.W[i] = 1 - w
	}
}

// Partition identifies the training and evaluation rows of a Dataset.
// Policies are fit on Train and evaluated on Test; the two never overlap.
type Partition struct {
	Train []int
	Test  []int
}

// Split randomly assigns a testFraction share of the rows to the
// evaluation set.
func Split(n int, testFraction float64, rng *rand.Rand) (Partition, error) {
	if testFraction <= 0 || testFraction >= 1 {
		return Partition{}, errors.Errorf("test fraction must be in (0, 1), got %v", testFraction)
	}

	perm := rng.Perm(n)
	nTest := int(math.Ceil(testFraction * float64(n)))
	if nTest == 0 || nTest == n {
		return Partition{}, errors.Errorf("cannot split %d rows with test fraction %v", n, testFraction)
	}

	return Partition{Train: perm[nTest:], Test: perm[:nTest]}, nil
}

// SplitAt puts the first nTrain rows in the training set and the rest in
// the evaluation set.
func SplitAt(n, nTrain int) (Partition, error) {
	if nTrain <= 0 || nTrain >= n {
		return Partition{}, errors.Errorf("cannot split %d rows at %d", n, nTrain)
	}

	p := Partition{
		Train: make([]int, nTrain),
		Test:  make([]int, n-nTrain),
	}
	for i := range p.Train {
		p.Train[i] = i
	}
	for i := range p.Test {
		p.Test[i] = nTrain + i
	}
	return p, nil
}

// Disjoint reports whether no row appears in both halves of the partition.
func (p Partition) Disjoint() bool {
	seen := make(map[int]struct{}, len(p.Train))
	for _, i := range p.Train {
		seen[i] = struct{}{}
	}
	for _, i := range p.Test {
		if _, ok := seen[i]; ok {
			return false
		}
	}
	return true
}
