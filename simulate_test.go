package policylearn

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSimulate(t *testing.T) {
	rng := rand.New(rand.NewSource(12))
	ds, err := Simulate(DefaultSimParams, rng)
	require.NoError(t, err)
	require.NoError(t, ds.Validate())
	assert.Equal(t, 1000, ds.Len())
	assert.Equal(t, 4, ds.NumCovariates())
	assert.Equal(t, []string{"x_1", "x_2", "x_3", "x_4"}, ds.Names)

	nTreated := 0.0
	for _, w := range ds.W {
		nTreated += w
	}
	// Binomial(1000, 0.5) has standard deviation ~16.
	assert.InDelta(t, 500, nTreated, 80)
}

func TestSimulate_InvalidParams(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	for _, sp := range []SimParams{
		{N: 0, P: 4, E: 0.5},
		{N: 10, P: 1, E: 0.5},
		{N: 10, P: 4, E: 1},
		{N: 10, P: 4, E: 0.5, Noise: -1},
	} {
		_, err := Simulate(sp, rng)
		assert.Error(t, err, "params %+v", sp)
	}
}

func TestOracleValue(t *testing.T) {
	sp := DefaultSimParams
	X := [][]float64{{0.5, 0.9}, {0.5, 0.1}}
	a := sp.OracleAssignment(X)
	assert.Equal(t, []bool{true, false}, a)
	assert.InDelta(t, 0.2, sp.TrueValue(X, a), 1e-12)
	assert.InDelta(t, 0.125, sp.PopulationOracleValue(), 1e-12)

	// Monte Carlo check of the closed form.
	rng := rand.New(rand.NewSource(3))
	ds, err := Simulate(SimParams{N: 200000, P: 2, E: 0.5}, rng)
	require.NoError(t, err)
	mc := sp.TrueValue(ds.X, sp.OracleAssignment(ds.X))
	assert.True(t, math.Abs(mc-sp.PopulationOracleValue()) < 0.005, "mc=%v", mc)
}

func TestSimulateCost(t *testing.T) {
	rng := rand.New(rand.NewSource(5))
	ds, err := Simulate(SimParams{N: 100, P: 2, E: 0.5}, rng)
	require.NoError(t, err)

	require.NoError(t, SimulateCost(ds, SharedUniformCost, rng))
	var shared float64
	for i, w := range ds.W {
		if w == 0 {
			assert.Equal(t, 0.0, ds.Cost[i])
		} else if shared == 0 {
			shared = ds.Cost[i]
		} else {
			assert.Equal(t, shared, ds.Cost[i])
		}
	}

	require.NoError(t, SimulateCost(ds, UniformCost, rng))
	for i, w := range ds.W {
		if w == 0 {
			assert.Equal(t, 0.0, ds.Cost[i])
		} else {
			assert.True(t, ds.Cost[i] >= 0 && ds.Cost[i] < 1)
		}
	}

	assert.Error(t, SimulateCost(ds, CostKind("bogus"), rng))
	assert.Nil(t, ds.Cost)
}
