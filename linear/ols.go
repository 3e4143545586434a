package linear

import (
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
)

var ErrSingular = errors.New("design matrix is singular")

// OLSResult holds least squares coefficients with HC2
// heteroskedasticity-robust standard errors and normal-approximation
// p-values.
type OLSResult struct {
	Names  []string
	Coef   []float64
	StdErr []float64
	Z      []float64
	P      []float64
}

// OLS regresses y on the columns of X (no intercept is added).
func OLS(X *mat.Dense, y []float64, names []string) (*OLSResult, error) {
	n, p := X.Dims()
	if n != len(y) {
		return nil, errors.Errorf("X has %d rows but y has %d", n, len(y))
	}
	if n <= p {
		return nil, errors.Errorf("need more rows (%d) than columns (%d)", n, p)
	}

	var xtx mat.Dense
	xtx.Mul(X.T(), X)
	var bread mat.Dense
	if err := bread.Inverse(&xtx); err != nil {
		return nil, errors.Wrap(ErrSingular, err.Error())
	}

	yVec := mat.NewVecDense(n, y)
	var xty mat.VecDense
	xty.MulVec(X.T(), yVec)
	var beta mat.VecDense
	beta.MulVec(&bread, &xty)

	// meat = sum_i x_i x_i' e_i^2 / (1 - h_ii)
	meat := mat.NewSymDense(p, nil)
	xi := mat.NewVecDense(p, nil)
	var bx mat.VecDense
	for i := 0; i < n; i++ {
		xi.CopyVec(X.RowView(i))
		resid := y[i] - mat.Dot(xi, &beta)
		bx.MulVec(&bread, xi)
		h := mat.Dot(xi, &bx)
		if h >= 1 {
			return nil, errors.Errorf("observation %d has leverage %v", i, h)
		}
		meat.SymRankOne(meat, resid*resid/(1-h), xi)
	}

	var tmp, cov mat.Dense
	tmp.Mul(&bread, meat)
	cov.Mul(&tmp, &bread)

	result := &OLSResult{
		Names:  names,
		Coef:   make([]float64, p),
		StdErr: make([]float64, p),
		Z:      make([]float64, p),
		P:      make([]float64, p),
	}
	normal := distuv.UnitNormal
	for j := 0; j < p; j++ {
		result.Coef[j] = beta.AtVec(j)
		result.StdErr[j] = math.Sqrt(cov.At(j, j))
		result.Z[j] = result.Coef[j] / result.StdErr[j]
		result.P[j] = 2 * normal.Survival(math.Abs(result.Z[j]))
	}

	return result, nil
}

// Indicators builds a model matrix of group dummies, one column per
// distinct label in groups (the levels argument fixes their order).
func Indicators(groups []int, levels []int) *mat.Dense {
	col := make(map[int]int, len(levels))
	for j, g := range levels {
		col[g] = j
	}

	m := mat.NewDense(len(groups), len(levels), nil)
	for i, g := range groups {
		m.Set(i, col[g], 1)
	}
	return m
}

// InteractedIndicators builds the matrix of y ~ 0 + C(g) + w:C(g): group
// dummies followed by group dummies multiplied by w.
func InteractedIndicators(groups []int, levels []int, w []float64) *mat.Dense {
	col := make(map[int]int, len(levels))
	for j, g := range levels {
		col[g] = j
	}

	k := len(levels)
	m := mat.NewDense(len(groups), 2*k, nil)
	for i, g := range groups {
		m.Set(i, col[g], 1)
		m.Set(i, k+col[g], w[i])
	}
	return m
}
