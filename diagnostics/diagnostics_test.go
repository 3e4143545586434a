package diagnostics

import (
	"bytes"
	"math/rand"
	"strings"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/timpalpant/policylearn/budget"
	"github.com/timpalpant/policylearn/internal/npyio"
)

func TestLevels(t *testing.T) {
	assert.Equal(t, []int{1, 3, 4}, Levels([]int{4, 1, 4, 3, 1}))
	assert.Empty(t, Levels(nil))
}

func TestArmEffectsByGroup(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	n := 2000
	y := make([]float64, n)
	w := make([]float64, n)
	groups := make([]int, n)
	for i := range y {
		groups[i] = i % 2
		if rng.Float64() < 0.5 {
			w[i] = 1
		}
		effect := 1.0
		if groups[i] == 1 {
			effect = -1
		}
		y[i] = w[i]*effect + 0.5*rng.NormFloat64()
	}

	effects, err := ArmEffectsByGroup(y, w, groups, 0.25)
	require.NoError(t, err)
	require.Len(t, effects, 2)
	assert.Equal(t, 0, effects[0].Group)
	assert.Equal(t, 1000, effects[0].N)
	assert.InDelta(t, 0.75, effects[0].Effect, 0.1)
	assert.InDelta(t, -1.25, effects[1].Effect, 0.1)
	assert.Less(t, effects[0].P, 1e-6)

	_, err = ArmEffectsByGroup(y[:10], w, groups, 0)
	assert.Error(t, err)
}

func TestScoreDiffByGroup(t *testing.T) {
	diff := []float64{1, 2, 3, 10, 11, 12}
	groups := []int{5, 5, 5, 2, 2, 2}
	effects, err := ScoreDiffByGroup(diff, groups)
	require.NoError(t, err)
	require.Len(t, effects, 2)
	assert.Equal(t, 2, effects[0].Group)
	assert.InDelta(t, 11.0, effects[0].Effect, 1e-9)
	assert.InDelta(t, 2.0, effects[1].Effect, 1e-9)
	assert.True(t, strings.HasPrefix(effects[1].String(), "group 5 (n=3): 2.0000"))
}

func TestBalance(t *testing.T) {
	rng := rand.New(rand.NewSource(2))
	n := 500
	X := make([][]float64, n)
	groups := make([]int, n)
	for i := range X {
		groups[i] = rng.Intn(2)
		X[i] = []float64{rng.Float64() + float64(groups[i]), rng.Float64()}
	}

	table, err := Balance(X, []string{"shifted", "noise"}, groups)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1}, table.Groups)
	require.Len(t, table.Rows, 2)

	shifted := table.Rows[0]
	assert.InDelta(t, 0.5, shifted.Mean[0], 0.05)
	assert.InDelta(t, 1.5, shifted.Mean[1], 0.05)
	// With two groups the z-scores are exactly -1 and +1.
	assert.InDelta(t, 0.1587, shifted.Scaling[0], 1e-3)
	assert.InDelta(t, 0.8413, shifted.Scaling[1], 1e-3)
	assert.Greater(t, shifted.Variation, table.Rows[1].Variation)
	assert.Regexp(t, `^0\.\d\d\n\(0\.\d\d\)$`, shifted.Label(0))

	var buf bytes.Buffer
	require.NoError(t, WriteBalanceCSV(&buf, table, func(g int) string {
		return []string{"Control", "Treatment"}[g]
	}))
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	assert.Len(t, lines, 5)
	assert.True(t, strings.HasPrefix(lines[2], "shifted,Treatment,"), lines[2])
}

func testCurves() []*budget.Curve {
	return []*budget.Curve{
		{Name: "ignore_cost", Cost: []float64{0.5, 1}, Value: []float64{0.75, 1}},
		{Name: "ratio", Cost: []float64{0.25, 1}, Value: []float64{0.5, 1}},
	}
}

func TestWriteCurvesCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCurvesCSV(&buf, testCurves()))

	g := goldie.New(t)
	g.Assert(t, "curves", buf.Bytes())
}

func TestWriteNPZ(t *testing.T) {
	arrays := CurveArrays(testCurves())
	assert.Len(t, arrays, 4)

	var buf bytes.Buffer
	require.NoError(t, WriteNPZ(&buf, arrays))
	result, err := npyio.ReadNPZ(buf.Bytes())
	require.NoError(t, err)
	assert.Equal(t, []float64{0.25, 1}, result["ratio_cost"].Data)
}
