package budget

import (
	"math"
	"math/rand"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOrder(t *testing.T) {
	assert.Equal(t, []int{2, 0, 3, 1}, Order([]float64{0.5, -1, 3, 0}))
	// Ties keep index order.
	assert.Equal(t, []int{1, 0, 2}, Order([]float64{1, 2, 1}))
	// NaN scores go last, in index order.
	assert.Equal(t, []int{2, 0, 1, 3}, Order([]float64{0, math.NaN(), 1, math.NaN()}))
}

func TestRank(t *testing.T) {
	benefit := []float64{1, 2, 3}
	cost := []float64{1, 4, 1}
	order, err := Rank(benefit, cost)
	require.NoError(t, err)
	assert.Equal(t, []int{2, 0, 1}, order)

	_, err = Rank(benefit, []float64{1, 0, 1})
	assert.Equal(t, ErrNonPositiveCost, errors.Cause(err))

	_, err = Rank(benefit, []float64{1})
	assert.Equal(t, ErrLengthMismatch, errors.Cause(err))
}

func TestRank_SwappedArmsReversesOrder(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	n := 50
	benefit := make([]float64, n)
	negated := make([]float64, n)
	cost := make([]float64, n)
	for i := range benefit {
		benefit[i] = rng.NormFloat64()
		negated[i] = -benefit[i]
		cost[i] = 0.1 + rng.Float64()
	}

	order, err := Rank(benefit, cost)
	require.NoError(t, err)
	swapped, err := Rank(negated, cost)
	require.NoError(t, err)

	for k := range order {
		assert.Equal(t, order[k], swapped[n-1-k])
	}
}

func TestAllocate(t *testing.T) {
	benefit := []float64{3, 1, -1, 4}
	cost := []float64{1, 1, 1, 2}

	alloc, err := Allocate(benefit, cost, 2.5)
	require.NoError(t, err)
	// Ratios: 3, 1, -1, 2. Unit 0 (cost 1) fits, unit 3 (cost 2) does not.
	assert.Equal(t, []bool{true, false, false, false}, alloc.Treat)
	assert.Equal(t, 1, alloc.NumTreated)
	assert.Equal(t, 1.0, alloc.Spent)

	alloc, err = Allocate(benefit, cost, 3)
	require.NoError(t, err)
	assert.Equal(t, []bool{true, false, false, true}, alloc.Treat)

	alloc, err = Allocate(benefit, cost, 0)
	require.NoError(t, err)
	assert.Equal(t, 0, alloc.NumTreated)

	_, err = Allocate(benefit, cost, -1)
	assert.Error(t, err)
}

func TestAllocate_UnlimitedBudgetTreatsPositiveEffects(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	n := 200
	benefit := make([]float64, n)
	cost := make([]float64, n)
	total := 0.0
	for i := range benefit {
		benefit[i] = rng.NormFloat64()
		cost[i] = 0.01 + rng.Float64()
		total += cost[i]
	}

	for _, budget := range []float64{total, math.Inf(1)} {
		alloc, err := Allocate(benefit, cost, budget)
		require.NoError(t, err)
		for i := range benefit {
			assert.Equal(t, benefit[i] > 0, alloc.Treat[i], "unit %d, benefit %v", i, benefit[i])
		}
	}
}

func TestIPWContributions(t *testing.T) {
	y := []float64{2, 4}
	w := []float64{1, 0}
	cost := []float64{0.5, 0}
	value, costs, err := IPWContributions(y, w, cost, 0.5)
	require.NoError(t, err)
	assert.InDelta(t, 2.0, value[0], 1e-12)
	assert.InDelta(t, -4.0, value[1], 1e-12)
	assert.InDelta(t, 0.5, costs[0], 1e-12)
	assert.Equal(t, 0.0, costs[1])

	_, _, err = IPWContributions(y, w, cost, 1)
	assert.Error(t, err)
}

func TestCurve(t *testing.T) {
	valueContrib := []float64{1, 3, 0}
	costContrib := []float64{1, 1, 2}
	c, err := NewCurve("test", []int{1, 0, 2}, valueContrib, costContrib)
	require.NoError(t, err)
	assert.Equal(t, []float64{0.75, 1, 1}, c.Value)
	assert.Equal(t, []float64{0.25, 0.5, 1}, c.Cost)
	// (1 - 0.5) * 0.25 + (1 - 1) * 0.5
	assert.InDelta(t, 0.125, c.Area(), 1e-12)

	_, err = NewCurve("zero", []int{0}, []float64{0}, []float64{1})
	assert.Error(t, err)
}
