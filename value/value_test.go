package value

import (
	"math"
	"math/rand"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/stat"

	"github.com/timpalpant/policylearn"
	"github.com/timpalpant/policylearn/scores"
)

func TestSampleMean_TreatAll(t *testing.T) {
	y := []float64{1, 2, 3, 10, 20}
	w := []float64{1, 1, 1, 0, 0}
	a := []bool{true, true, true, true, true}

	est, err := SampleMean(y, w, a, 0)
	require.NoError(t, err)
	assert.InDelta(t, 2.0, est.Value, 1e-12)
	// Population variance of {1,2,3} is 2/3, over 3 units.
	assert.InDelta(t, math.Sqrt(2.0/9), est.StdErr, 1e-12)

	est, err = SampleMean(y, w, a, 0.5)
	require.NoError(t, err)
	assert.InDelta(t, 1.5, est.Value, 1e-12)
}

func TestSampleMean_Mixed(t *testing.T) {
	y := []float64{4, 6, 1, 3, 100, 100}
	w := []float64{1, 1, 0, 0, 0, 1}
	a := []bool{true, true, false, false, true, false}

	est, err := SampleMean(y, w, a, 0)
	require.NoError(t, err)
	// Treated arm mean 5 weighted by 1/2, control arm mean 2 weighted by 1/2.
	assert.InDelta(t, 3.5, est.Value, 1e-12)
	assert.InDelta(t, math.Sqrt(1.0/2*0.25+1.0/2*0.25), est.StdErr, 1e-12)
}

func TestSampleMean_EmptyStratum(t *testing.T) {
	y := []float64{1, 2, 3}
	w := []float64{0, 0, 1}
	a := []bool{true, true, false}

	est, err := SampleMean(y, w, a, 0)
	assert.Equal(t, ErrEmptyStratum, errors.Cause(err))
	assert.True(t, math.IsNaN(est.Value))
}

func TestSampleMean_Errors(t *testing.T) {
	_, err := SampleMean(nil, nil, nil, 0)
	assert.Equal(t, ErrEmpty, err)

	_, err = SampleMean([]float64{1}, []float64{1, 0}, []bool{true}, 0)
	assert.Equal(t, ErrLengthMismatch, errors.Cause(err))

	_, err = SampleMeanWithCosts([]float64{1}, []float64{1}, []bool{true}, nil)
	assert.Equal(t, ErrLengthMismatch, errors.Cause(err))
}

func TestSampleMeanWithCosts(t *testing.T) {
	y := []float64{4, 6, 1}
	w := []float64{1, 1, 0}
	a := []bool{true, true, false}
	est, err := SampleMeanWithCosts(y, w, a, []float64{1, 3, 0})
	require.NoError(t, err)
	// Treated: mean(3, 3) = 3 with weight 2/3; control: 1 with weight 1/3.
	assert.InDelta(t, 7.0/3, est.Value, 1e-12)
}

func TestAIPW_TreatNone(t *testing.T) {
	pair := scores.Pair{
		Gamma1: []float64{5, 6, 7, 8},
		Gamma0: []float64{1, 2, 3, 6},
	}
	a := make([]bool, 4)

	est, err := AIPW(pair, a)
	require.NoError(t, err)
	assert.InDelta(t, stat.Mean(pair.Gamma0, nil), est.Value, 1e-12)

	diff, err := AIPWDifference(pair, a)
	require.NoError(t, err)
	assert.Equal(t, 0.0, diff.Value)
}

func TestAIPW_Mixed(t *testing.T) {
	pair := scores.Pair{
		Gamma1: []float64{5, 6, 7, 8},
		Gamma0: []float64{1, 2, 3, 6},
	}
	a := []bool{true, false, true, false}

	est, err := AIPW(pair, a)
	require.NoError(t, err)
	assert.InDelta(t, (5+2+7+6)/4.0, est.Value, 1e-12)

	diff, err := AIPWDifference(pair, a)
	require.NoError(t, err)
	assert.InDelta(t, (4+4)/4.0, diff.Value, 1e-12)
	assert.InDelta(t, 2/math.Sqrt(4), diff.StdErr, 1e-12)
}

func TestSampleMeanDifference(t *testing.T) {
	y := []float64{4, 6, 1, 3, 100, 100}
	w := []float64{1, 1, 0, 0, 0, 1}
	a := []bool{true, true, true, true, false, false}

	est, err := SampleMeanDifference(y, w, a, 1)
	require.NoError(t, err)
	// (5 - 1 - 2) * 4/6.
	assert.InDelta(t, 4.0/3, est.Value, 1e-12)

	est, err = SampleMeanDifference(y, w, make([]bool, 6), 1)
	require.NoError(t, err)
	assert.Equal(t, Estimate{}, est)

	_, err = SampleMeanDifference(y, w, []bool{true, true, false, false, false, false}, 0)
	assert.Equal(t, ErrEmptyStratum, errors.Cause(err))
}

func TestDegenerate(t *testing.T) {
	assert.True(t, Degenerate([]bool{true, true}))
	assert.True(t, Degenerate([]bool{false, false}))
	assert.False(t, Degenerate([]bool{true, false}))
	assert.InDelta(t, 0.5, TreatedFraction([]bool{true, false}), 1e-12)
	assert.True(t, math.IsNaN(TreatedFraction(nil)))
}

func TestEstimate(t *testing.T) {
	est := Estimate{Value: 1, StdErr: 0.5}
	lo, hi := est.CI(2)
	assert.Equal(t, 0.0, lo)
	assert.Equal(t, 2.0, hi)
	assert.Equal(t, "1.0000 (0.5000)", est.String())
}

// With correctly specified nuisance models and good overlap, the AIPW
// estimator is more efficient than the difference in means.
func TestAIPW_StdErrBelowSampleMean(t *testing.T) {
	sp := policylearn.DefaultSimParams
	rng := rand.New(rand.NewSource(42))
	const nReps = 200

	var aipwSE, smSE float64
	for rep := 0; rep < nReps; rep++ {
		ds, err := policylearn.Simulate(sp, rng)
		require.NoError(t, err)

		nuis := scores.Nuisance{
			Mu1: make([]float64, ds.Len()),
			Mu0: make([]float64, ds.Len()),
			E:   scores.Constant(ds.Len(), sp.E),
		}
		for i, x := range ds.X {
			nuis.Mu1[i] = sp.Mu(x, 1)
			nuis.Mu0[i] = sp.Mu(x, 0)
		}
		pair, err := scores.AIPW(ds.Y, ds.W, nuis, scores.Options{})
		require.NoError(t, err)

		a := sp.OracleAssignment(ds.X)
		aipw, err := AIPW(pair, a)
		require.NoError(t, err)
		sm, err := SampleMean(ds.Y, ds.W, a, 0)
		require.NoError(t, err)

		aipwSE += aipw.StdErr / nReps
		smSE += sm.StdErr / nReps
	}

	t.Logf("mean AIPW stderr = %.5f, mean sample-mean stderr = %.5f", aipwSE, smSE)
	assert.LessOrEqual(t, aipwSE, smSE)
}
