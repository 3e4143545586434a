package linear

import (
	"math"

	"github.com/golang/glog"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// LassoCV fits an L1-penalized least squares model,
//
//	(1 / 2n) ||y - b0 - X b||^2 + alpha ||b||_1,
//
// choosing alpha from a log-spaced path by k-fold cross-validation and
// refitting on all data at the selected alpha.
type LassoCV struct {
	Folds     int
	NumAlphas int
	// Eps is the ratio of the smallest to the largest alpha on the path.
	Eps     float64
	MaxIter int
	Tol     float64

	Alpha     float64
	Intercept float64
	Coef      []float64
	// CVError[k] is the mean held-out squared error at Alphas[k].
	Alphas  []float64
	CVError []float64
}

func NewLassoCV(folds int) *LassoCV {
	return &LassoCV{
		Folds:     folds,
		NumAlphas: 100,
		Eps:       1e-3,
		MaxIter:   1000,
		Tol:       1e-4,
	}
}

func (l *LassoCV) Fit(X *mat.Dense, y []float64) error {
	n, p := X.Dims()
	if n != len(y) {
		return errors.Errorf("X has %d rows but y has %d", n, len(y))
	}
	if l.Folds < 2 || l.Folds > n {
		return errors.Errorf("cannot run %d-fold cross-validation on %d rows", l.Folds, n)
	}

	full := newLassoProblem(X, y, allRows(n))
	l.Alphas = alphaPath(full.maxAlpha(), l.Eps, l.NumAlphas)
	l.CVError = make([]float64, len(l.Alphas))
	for fold := 0; fold < l.Folds; fold++ {
		train, test := foldRows(n, l.Folds, fold)
		prob := newLassoProblem(X, y, train)
		coef := make([]float64, p)
		for k, alpha := range l.Alphas {
			prob.solve(alpha, coef, l.MaxIter, l.Tol)
			intercept := prob.intercept(coef)
			mse := 0.0
			for _, i := range test {
				r := y[i] - predictRow(X, i, intercept, coef)
				mse += r * r
			}
			l.CVError[k] += mse / float64(len(test)) / float64(l.Folds)
		}
	}

	best := 0
	for k, e := range l.CVError {
		if e < l.CVError[best] {
			best = k
		}
	}
	l.Alpha = l.Alphas[best]
	glog.V(1).Infof("Lasso selected alpha=%.5g (cv mse=%.5g) from %d candidates",
		l.Alpha, l.CVError[best], len(l.Alphas))

	// Refit along the path up to the selected alpha for warm starts.
	l.Coef = make([]float64, p)
	for _, alpha := range l.Alphas[:best+1] {
		full.solve(alpha, l.Coef, l.MaxIter, l.Tol)
	}
	l.Intercept = full.intercept(l.Coef)
	return nil
}

func (l *LassoCV) Predict(X *mat.Dense) []float64 {
	n, _ := X.Dims()
	result := make([]float64, n)
	for i := range result {
		result[i] = predictRow(X, i, l.Intercept, l.Coef)
	}
	return result
}

func predictRow(X *mat.Dense, i int, intercept float64, coef []float64) float64 {
	v := intercept
	for j, b := range coef {
		if b != 0 {
			v += X.At(i, j) * b
		}
	}
	return v
}

// lassoProblem holds the centered Gram matrix of a subset of rows so that
// coordinate descent updates cost O(p) each.
type lassoProblem struct {
	n     int
	xMean []float64
	yMean float64
	gram  *mat.SymDense
	xty   []float64
}

func newLassoProblem(X *mat.Dense, y []float64, rows []int) *lassoProblem {
	_, p := X.Dims()
	n := len(rows)
	prob := &lassoProblem{
		n:     n,
		xMean: make([]float64, p),
		xty:   make([]float64, p),
	}

	for _, i := range rows {
		prob.yMean += y[i] / float64(n)
		for j := 0; j < p; j++ {
			prob.xMean[j] += X.At(i, j) / float64(n)
		}
	}

	xc := mat.NewDense(n, p, nil)
	yc := make([]float64, n)
	for k, i := range rows {
		yc[k] = y[i] - prob.yMean
		for j := 0; j < p; j++ {
			xc.Set(k, j, X.At(i, j)-prob.xMean[j])
		}
	}

	prob.gram = mat.NewSymDense(p, nil)
	prob.gram.SymOuterK(1, xc.T())
	for j := 0; j < p; j++ {
		for k := 0; k < n; k++ {
			prob.xty[j] += xc.At(k, j) * yc[k]
		}
	}

	return prob
}

func (prob *lassoProblem) maxAlpha() float64 {
	result := 0.0
	for _, v := range prob.xty {
		result = math.Max(result, math.Abs(v))
	}
	return result / float64(prob.n)
}

// solve runs cyclic coordinate descent starting from coef, in place.
func (prob *lassoProblem) solve(alpha float64, coef []float64, maxIter int, tol float64) {
	p := len(coef)
	threshold := alpha * float64(prob.n)
	for iter := 0; iter < maxIter; iter++ {
		maxChange, maxCoef := 0.0, 0.0
		for j := 0; j < p; j++ {
			// Constant columns (such as an intercept) carry no signal once centered.
			gjj := prob.gram.At(j, j)
			if gjj <= 1e-12*float64(prob.n) {
				coef[j] = 0
				continue
			}

			rho := prob.xty[j]
			for k := 0; k < p; k++ {
				if k != j && coef[k] != 0 {
					rho -= prob.gram.At(j, k) * coef[k]
				}
			}

			updated := softThreshold(rho, threshold) / gjj
			maxChange = math.Max(maxChange, math.Abs(updated-coef[j]))
			maxCoef = math.Max(maxCoef, math.Abs(updated))
			coef[j] = updated
		}

		if maxCoef == 0 || maxChange/maxCoef < tol {
			return
		}
	}
}

func (prob *lassoProblem) intercept(coef []float64) float64 {
	b0 := prob.yMean
	for j, b := range coef {
		b0 -= prob.xMean[j] * b
	}
	return b0
}

func softThreshold(x, t float64) float64 {
	switch {
	case x > t:
		return x - t
	case x < -t:
		return x + t
	default:
		return 0
	}
}

// alphaPath returns n alphas log-spaced from max down to max*eps.
func alphaPath(max, eps float64, n int) []float64 {
	if max == 0 {
		return []float64{0}
	}

	result := make([]float64, n)
	logMax, logMin := math.Log(max), math.Log(max*eps)
	for k := range result {
		frac := 0.0
		if n > 1 {
			frac = float64(k) / float64(n-1)
		}
		result[k] = math.Exp(logMax + frac*(logMin-logMax))
	}
	return result
}

func allRows(n int) []int {
	result := make([]int, n)
	for i := range result {
		result[i] = i
	}
	return result
}

// foldRows splits 0..n-1 into contiguous folds and returns the rows
// outside and inside fold k.
func foldRows(n, nFolds, k int) (train, test []int) {
	start := k * n / nFolds
	end := (k + 1) * n / nFolds
	for i := 0; i < n; i++ {
		if i >= start && i < end {
			test = append(test, i)
		} else {
			train = append(train, i)
		}
	}
	return train, test
}
