package linear

import (
	"fmt"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// InteractionDesign expands covariates into the model matrix of
//
//	y ~ bs(x_1, df) * w + bs(x_2, df) * w + ...
//
// that is: an intercept, the spline columns of every covariate, the
// treatment indicator, and each spline column multiplied by the treatment.
// Knots are placed on the data passed to Fit and reused afterwards, so
// counterfactual copies of the data share the training basis.
type InteractionDesign struct {
	DF      int
	Splines []*BSpline
	Names   []string
}

func NewInteractionDesign(df int) *InteractionDesign {
	return &InteractionDesign{DF: df}
}

// Fit places the spline knots on X.
func (d *InteractionDesign) Fit(X [][]float64, names []string) error {
	if len(X) == 0 {
		return errors.New("cannot fit design to empty data")
	}

	p := len(X[0])
	d.Splines = make([]*BSpline, p)
	col := make([]float64, len(X))
	for j := 0; j < p; j++ {
		for i, row := range X {
			col[i] = row[j]
		}
		spline, err := FitBSpline(col, d.DF)
		if err != nil {
			return errors.Wrapf(err, "covariate %d", j)
		}
		d.Splines[j] = spline
	}

	d.Names = d.columnNames(names)
	return nil
}

func (d *InteractionDesign) NumColumns() int {
	return 2 + 2*len(d.Splines)*d.DF
}

func (d *InteractionDesign) columnNames(names []string) []string {
	covName := func(j int) string {
		if j < len(names) {
			return names[j]
		}
		return fmt.Sprintf("x%d", j)
	}

	result := []string{"Intercept"}
	for j := range d.Splines {
		for k := 0; k < d.DF; k++ {
			result = append(result, fmt.Sprintf("bs(%s)[%d]", covName(j), k))
		}
	}
	result = append(result, "w")
	for j := range d.Splines {
		for k := 0; k < d.DF; k++ {
			result = append(result, fmt.Sprintf("bs(%s)[%d]:w", covName(j), k))
		}
	}
	return result
}

// Matrix builds the model matrix for covariates X and treatment w.
func (d *InteractionDesign) Matrix(X [][]float64, w []float64) (*mat.Dense, error) {
	if d.Splines == nil {
		return nil, errors.New("design has not been fit")
	}
	if len(X) != len(w) {
		return nil, errors.Errorf("%d covariate rows but %d treatments", len(X), len(w))
	}

	p := len(d.Splines)
	nCols := d.NumColumns()
	wCol := 1 + p*d.DF
	m := mat.NewDense(len(X), nCols, nil)
	basis := make([]float64, d.DF)
	for i, x := range X {
		if len(x) != p {
			return nil, errors.Errorf("row %d has %d covariates, design has %d", i, len(x), p)
		}

		m.Set(i, 0, 1)
		m.Set(i, wCol, w[i])
		for j, spline := range d.Splines {
			spline.Eval(x[j], basis)
			for k, v := range basis {
				m.Set(i, 1+j*d.DF+k, v)
				m.Set(i, wCol+1+j*d.DF+k, v*w[i])
			}
		}
	}

	return m, nil
}
