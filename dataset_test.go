package policylearn

import (
	"math/rand"
	"testing"

	"github.com/pkg/errors"
)

func testDataset() *Dataset {
	return &Dataset{
		Names: []string{"a", "b"},
		X:     [][]float64{{0, 1}, {1, 2}, {2, 3}, {3, 4}},
		W:     []float64{0, 1, 0, 1},
		Y:     []float64{1, 2, 3, 4},
		Cost:  []float64{0, 0.5, 0, 0.5},
	}
}

func TestValidate(t *testing.T) {
	ds := testDataset()
	if err := ds.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ds.W[2] = 0.5
	if err := ds.Validate(); errors.Cause(err) != ErrNonBinaryTreatment {
		t.Errorf("expected ErrNonBinaryTreatment, got %v", err)
	}

	ds = testDataset()
	ds.X[1] = []float64{1}
	if err := ds.Validate(); errors.Cause(err) != ErrRaggedCovariates {
		t.Errorf("expected ErrRaggedCovariates, got %v", err)
	}

	ds = testDataset()
	ds.Cost = ds.Cost[:2]
	if err := ds.Validate(); errors.Cause(err) != ErrLengthMismatch {
		t.Errorf("expected ErrLengthMismatch, got %v", err)
	}

	if err := (&Dataset{}).Validate(); err != ErrEmptyDataset {
		t.Errorf("expected ErrEmptyDataset, got %v", err)
	}
}

func TestSubset(t *testing.T) {
	ds := testDataset()
	sub := ds.Subset([]int{3, 1})
	if sub.Len() != 2 {
		t.Fatalf("expected 2 rows, got %d", sub.Len())
	}
	if sub.Y[0] != 4 || sub.Y[1] != 2 {
		t.Errorf("unexpected outcomes: %v", sub.Y)
	}
	if sub.Cost[0] != 0.5 || sub.W[1] != 1 {
		t.Errorf("unexpected subset: %+v", sub)
	}
}

func TestWithTreatment(t *testing.T) {
	ds := testDataset()
	treated := ds.WithTreatment(1)
	for i, w := range treated.W {
		if w != 1 {
			t.Errorf("row %d: expected w=1, got %v", i, w)
		}
	}
	if ds.W[0] != 0 {
		t.Error("WithTreatment modified the original dataset")
	}

	covariatesOnly := &Dataset{X: ds.X}
	if control := covariatesOnly.WithTreatment(0); len(control.W) != len(ds.X) {
		t.Errorf("expected %d treatments, got %d", len(ds.X), len(control.W))
	}

	ds.FlipTreatment()
	if ds.W[0] != 1 || ds.W[1] != 0 {
		t.Errorf("unexpected flipped treatment: %v", ds.W)
	}
}

func TestSplit(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	p, err := Split(100, 0.5, rng)
	if err != nil {
		t.Fatal(err)
	}
	if len(p.Train) != 50 || len(p.Test) != 50 {
		t.Errorf("expected 50/50 split, got %d/%d", len(p.Train), len(p.Test))
	}
	if !p.Disjoint() {
		t.Error("split is not disjoint")
	}

	if _, err := Split(100, 1, rng); err == nil {
		t.Error("expected error for test fraction 1")
	}
}

func TestSplitAt(t *testing.T) {
	p, err := SplitAt(10, 8)
	if err != nil {
		t.Fatal(err)
	}
	if len(p.Train) != 8 || p.Test[0] != 8 || p.Test[1] != 9 {
		t.Errorf("unexpected partition: %+v", p)
	}
	if !p.Disjoint() {
		t.Error("split is not disjoint")
	}

	p.Test = append(p.Test, 3)
	if p.Disjoint() {
		t.Error("expected overlapping partition to be reported")
	}
}
