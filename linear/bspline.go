// Package linear fits the linear nuisance and subgroup models: cubic
// B-spline expansions, cross-validated lasso and OLS with heteroskedasticity
// robust standard errors.
package linear

import (
	"sort"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/stat"
)

const cubic = 3

// BSpline is a cubic B-spline basis without an intercept column, with
// interior knots at quantiles of the training data.
type BSpline struct {
	Knots  []float64
	Degree int
	DF     int
}

// FitBSpline places the knots of a basis with df columns on x.
func FitBSpline(x []float64, df int) (*BSpline, error) {
	if df < cubic {
		return nil, errors.Errorf("spline needs at least %d degrees of freedom, got %d", cubic, df)
	}
	if len(x) < 2 {
		return nil, errors.Errorf("need at least 2 points to place knots, got %d", len(x))
	}

	sorted := append([]float64(nil), x...)
	sort.Float64s(sorted)
	lo, hi := sorted[0], sorted[len(sorted)-1]
	if lo == hi {
		return nil, errors.Errorf("cannot fit spline to constant data (%v)", lo)
	}

	nInner := df - cubic
	knots := make([]float64, 0, 2*(cubic+1)+nInner)
	for i := 0; i <= cubic; i++ {
		knots = append(knots, lo)
	}
	for k := 1; k <= nInner; k++ {
		q := float64(k) / float64(nInner+1)
		knots = append(knots, stat.Quantile(q, stat.LinInterp, sorted, nil))
	}
	for i := 0; i <= cubic; i++ {
		knots = append(knots, hi)
	}

	return &BSpline{Knots: knots, Degree: cubic, DF: df}, nil
}

// Eval fills row with the DF basis functions at x. Points outside the
// training range are clamped to the boundary knots.
func (b *BSpline) Eval(x float64, row []float64) {
	t := b.Knots
	lo, hi := t[0], t[len(t)-1]
	if x < lo {
		x = lo
	} else if x > hi {
		x = hi
	}

	nIntervals := len(t) - 1
	n := allocFloatSlice(nIntervals)
	defer freeFloatSlice(n)
	for i := 0; i < nIntervals; i++ {
		if t[i] <= x && x < t[i+1] {
			n[i] = 1
		}
	}
	if x == hi {
		// Right-closed last non-empty interval.
		for i := nIntervals - 1; i >= 0; i-- {
			if t[i] < t[i+1] {
				n[i] = 1
				break
			}
		}
	}

	for d := 1; d <= b.Degree; d++ {
		for i := 0; i < nIntervals-d; i++ {
			var v float64
			if denom := t[i+d] - t[i]; denom > 0 {
				v += (x - t[i]) / denom * n[i]
			}
			if denom := t[i+d+1] - t[i+1]; denom > 0 {
				v += (t[i+d+1] - x) / denom * n[i+1]
			}
			n[i] = v
		}
	}

	// Drop the first basis function, which is collinear with the intercept.
	copy(row, n[1:1+b.DF])
}

// Transform evaluates the basis at every point of x.
func (b *BSpline) Transform(x []float64) [][]float64 {
	result := make([][]float64, len(x))
	for i, v := range x {
		result[i] = make([]float64, b.DF)
		b.Eval(v, result[i])
	}
	return result
}
