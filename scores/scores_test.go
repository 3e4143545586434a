package scores

import (
	"math"
	"testing"

	"github.com/pkg/errors"
)

func TestAIPW(t *testing.T) {
	y := []float64{1, 2, 3, 4}
	w := []float64{1, 0, 1, 0}
	nuis := Nuisance{
		Mu1: []float64{0.5, 0.5, 0.5, 0.5},
		Mu0: []float64{1, 1, 1, 1},
		E:   Constant(4, 0.5),
	}

	pair, err := AIPW(y, w, nuis, Options{})
	if err != nil {
		t.Fatal(err)
	}

	expected1 := []float64{1.5, 0.5, 5.5, 0.5}
	expected0 := []float64{1, 3, 1, 7}
	for i := range y {
		if math.Abs(pair.Gamma1[i]-expected1[i]) > 1e-12 {
			t.Errorf("gamma1[%d] = %v, expected %v", i, pair.Gamma1[i], expected1[i])
		}
		if math.Abs(pair.Gamma0[i]-expected0[i]) > 1e-12 {
			t.Errorf("gamma0[%d] = %v, expected %v", i, pair.Gamma0[i], expected0[i])
		}
	}
}

// When the outcome model is exact, the scores equal the model predictions
// regardless of the propensity.
func TestAIPW_CorrectOutcomeModel(t *testing.T) {
	y := []float64{2, 5}
	w := []float64{1, 0}
	nuis := Nuisance{
		Mu1: []float64{2, 7},
		Mu0: []float64{-1, 5},
		E:   []float64{0.2, 0.9},
	}

	pair, err := AIPW(y, w, nuis, Options{})
	if err != nil {
		t.Fatal(err)
	}
	for i := range y {
		if pair.Gamma1[i] != nuis.Mu1[i] || pair.Gamma0[i] != nuis.Mu0[i] {
			t.Errorf("unit %d: got (%v, %v), expected (%v, %v)",
				i, pair.Gamma1[i], pair.Gamma0[i], nuis.Mu1[i], nuis.Mu0[i])
		}
	}
}

func TestAIPW_Overlap(t *testing.T) {
	y := []float64{1, 1}
	w := []float64{1, 0}
	nuis := Nuisance{
		Mu1: []float64{0, 0},
		Mu0: []float64{0, 0},
		E:   []float64{0.001, 0.5},
	}

	if _, err := AIPW(y, w, nuis, Options{Mode: StrictOverlap}); errors.Cause(err) != ErrOverlapViolation {
		t.Errorf("expected ErrOverlapViolation, got %v", err)
	}

	pair, err := AIPW(y, w, nuis, Options{Eps: 0.05})
	if err != nil {
		t.Fatal(err)
	}
	// 1 / 0.05 = 20.
	if math.Abs(pair.Gamma1[0]-20) > 1e-9 {
		t.Errorf("expected clipped score 20, got %v", pair.Gamma1[0])
	}
}

func TestAIPW_Errors(t *testing.T) {
	nuis := Nuisance{Mu1: []float64{0}, Mu0: []float64{0}, E: []float64{0.5}}
	if _, err := AIPW([]float64{1, 2}, []float64{1}, nuis, Options{}); errors.Cause(err) != ErrLengthMismatch {
		t.Errorf("expected ErrLengthMismatch, got %v", err)
	}
	if _, err := AIPW([]float64{math.NaN()}, []float64{1}, nuis, Options{}); errors.Cause(err) != ErrInvalidInput {
		t.Errorf("expected ErrInvalidInput, got %v", err)
	}
}

func TestClip(t *testing.T) {
	clipped, n := Clip([]float64{0, 0.5, 1, 0.995}, 0.01)
	expected := []float64{0.01, 0.5, 0.99, 0.99}
	if n != 3 {
		t.Errorf("expected 3 clipped values, got %d", n)
	}
	for i := range expected {
		if math.Abs(clipped[i]-expected[i]) > 1e-12 {
			t.Errorf("clipped[%d] = %v, expected %v", i, clipped[i], expected[i])
		}
	}
}

func TestFromResiduals(t *testing.T) {
	nuis, err := FromResiduals([]float64{1}, []float64{0.25}, []float64{2})
	if err != nil {
		t.Fatal(err)
	}
	if nuis.Mu1[0] != 2.5 || nuis.Mu0[0] != 0.5 {
		t.Errorf("got mu1=%v mu0=%v, expected 2.5, 0.5", nuis.Mu1[0], nuis.Mu0[0])
	}
	// The implied effect and mean are preserved.
	if nuis.Mu1[0]-nuis.Mu0[0] != 2 {
		t.Errorf("unexpected effect %v", nuis.Mu1[0]-nuis.Mu0[0])
	}
	if 0.25*nuis.Mu1[0]+0.75*nuis.Mu0[0] != 1 {
		t.Error("mixture of arms does not reproduce yHat")
	}
}

func TestPair(t *testing.T) {
	p := Pair{Gamma1: []float64{3, 4}, Gamma0: []float64{1, 5}}
	diff := p.Diff()
	if diff[0] != 2 || diff[1] != -1 {
		t.Errorf("unexpected diff %v", diff)
	}

	costly := p.Subtract(0.5)
	if costly.Gamma1[0] != 2.5 || p.Gamma1[0] != 3 {
		t.Errorf("unexpected subtract result %v (original %v)", costly.Gamma1, p.Gamma1)
	}

	m := p.Matrix()
	if m[1][0] != 5 || m[1][1] != 4 {
		t.Errorf("unexpected matrix row %v", m[1])
	}
}
