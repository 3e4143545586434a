package forest

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/stat"
)

func testParams() Params {
	params := DefaultParams
	params.NumTrees = 50
	return params
}

func uniformX(rng *rand.Rand, n, p int) [][]float64 {
	X := make([][]float64, n)
	for i := range X {
		X[i] = make([]float64, p)
		for j := range X[i] {
			X[i][j] = rng.Float64()
		}
	}
	return X
}

func TestRegression_StepFunction(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	X := uniformX(rng, 500, 3)
	y := make([]float64, len(X))
	for i, x := range X {
		if x[0] > 0.5 {
			y[i] = 1
		}
		y[i] += 0.1 * rng.NormFloat64()
	}

	f := NewRegression(testParams())
	require.NoError(t, f.Fit(X, y, nil))

	assert.InDelta(t, 0.0, f.Predict([]float64{0.1, 0.5, 0.5}), 0.2)
	assert.InDelta(t, 1.0, f.Predict([]float64{0.9, 0.5, 0.5}), 0.2)
	assert.Len(t, f.OOB(), len(y))
	assert.Less(t, f.MSE(y), 0.1)
}

func TestRegression_Weights(t *testing.T) {
	rng := rand.New(rand.NewSource(2))
	X := uniformX(rng, 200, 2)
	y := make([]float64, len(X))
	for i, x := range X {
		y[i] = x[0] + x[1]
	}

	f := NewRegression(testParams())
	require.NoError(t, f.Fit(X, y, nil))

	for _, self := range []int{-1, 0, 17} {
		alpha := f.Weights(X[10], self, self >= 0)
		require.Len(t, alpha, len(X))
		sum := 0.0
		for _, a := range alpha {
			assert.True(t, a >= 0)
			sum += a
		}
		assert.InDelta(t, 1.0, sum, 1e-9)
		if self >= 0 {
			// Out-of-bag weights never put mass on the unit itself.
			assert.Equal(t, 0.0, alpha[self])
		}
	}
}

func TestRegression_Deterministic(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	X := uniformX(rng, 200, 2)
	y := make([]float64, len(X))
	for i := range y {
		y[i] = rng.NormFloat64()
	}

	params := testParams()
	params.NumWorkers = 4
	f1 := NewRegression(params)
	require.NoError(t, f1.Fit(X, y, nil))
	params.NumWorkers = 1
	f2 := NewRegression(params)
	require.NoError(t, f2.Fit(X, y, nil))

	assert.Equal(t, f1.OOB(), f2.OOB())
}

func TestRegression_InvalidParams(t *testing.T) {
	X := [][]float64{{0}, {1}}
	y := []float64{0, 1}

	params := testParams()
	params.NumTrees = 0
	assert.Error(t, NewRegression(params).Fit(X, y, nil))

	// Subsample too small for min_leaf_size.
	assert.Error(t, NewRegression(testParams()).Fit(X, y, nil))

	params = testParams()
	params.MinLeafSize = 1
	assert.Error(t, NewRegression(params).Fit(X, y, []float64{1}))
}

func simulateEffects(rng *rand.Rand, n int) (X [][]float64, y, w []float64) {
	X = uniformX(rng, n, 4)
	y = make([]float64, n)
	w = make([]float64, n)
	for i, x := range X {
		if rng.Float64() < 0.5 {
			w[i] = 1
		}
		y[i] = 0.5*(x[0]-0.5) + w[i]*(x[1]-0.5) + 0.1*rng.NormFloat64()
	}
	return X, y, w
}

func TestCausalDML_RecoversEffect(t *testing.T) {
	rng := rand.New(rand.NewSource(4))
	X, y, w := simulateEffects(rng, 1000)

	c := NewCausalDML(testParams())
	require.NoError(t, c.Fit(X, y, w))

	tauHat := c.EffectOOB()
	truth := make([]float64, len(X))
	for i, x := range X {
		truth[i] = x[1] - 0.5
	}
	assert.Greater(t, stat.Correlation(tauHat, truth, nil), 0.6)
	assert.InDelta(t, 0.0, stat.Mean(tauHat, nil), 0.1)

	ry, rw := c.Residuals(y, w)
	assert.Len(t, ry, len(y))
	for _, r := range rw {
		assert.True(t, math.Abs(r) <= 1)
	}

	pred := c.Effect([][]float64{{0.5, 0.9, 0.5, 0.5}, {0.5, 0.1, 0.5, 0.5}})
	assert.Greater(t, pred[0], pred[1])
}

func TestLocalRatio(t *testing.T) {
	rng := rand.New(rand.NewSource(5))
	X, y, w := simulateEffects(rng, 800)
	cost := make([]float64, len(y))
	for i, x := range X {
		// Treatment costs more for units with large x[2].
		cost[i] = w[i] * (0.5 + x[2])
	}

	lr := NewLocalRatio(testParams())
	require.NoError(t, lr.Fit(X, y, w, cost))

	high := lr.Predict([]float64{0.5, 0.9, 0.1, 0.5})
	low := lr.Predict([]float64{0.5, 0.1, 0.1, 0.5})
	require.False(t, math.IsNaN(high))
	require.False(t, math.IsNaN(low))
	assert.Greater(t, high, low)
	assert.Len(t, lr.PredictAll(X[:5]), 5)

	assert.Error(t, lr.Fit(X, y, w, cost[:10]))
}

func TestLocalRatio_NoCostVariation(t *testing.T) {
	rng := rand.New(rand.NewSource(6))
	X, y, w := simulateEffects(rng, 300)
	cost := make([]float64, len(y))

	lr := NewLocalRatio(testParams())
	require.NoError(t, lr.Fit(X, y, w, cost))
	assert.True(t, math.IsNaN(lr.Predict(X[0])))
}

func TestTune(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	X := uniformX(rng, 300, 2)
	y := make([]float64, len(X))
	for i, x := range X {
		y[i] = math.Sin(6*x[0]) + 0.1*rng.NormFloat64()
	}

	params, err := Tune(X, y, testParams(), DefaultTuneGrid)
	require.NoError(t, err)
	assert.Contains(t, DefaultTuneGrid, params.MinLeafSize)

	_, err = Tune(X, y, testParams(), nil)
	assert.Error(t, err)
}

func BenchmarkRegressionFit(b *testing.B) {
	rng := rand.New(rand.NewSource(8))
	X := uniformX(rng, 1000, 4)
	y := make([]float64, len(X))
	for i, x := range X {
		y[i] = x[0] + rng.NormFloat64()
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		f := NewRegression(testParams())
		if err := f.Fit(X, y, nil); err != nil {
			b.Fatal(err)
		}
	}
}
