package diagnostics

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"strconv"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/timpalpant/policylearn/linear"
)

// CovariateBalance is the average of one covariate within each group.
type CovariateBalance struct {
	Covariate string
	Mean      []float64
	StdErr    []float64
	// Scaling maps each group mean to (0, 1) through the normal CDF of its
	// z-score across groups, for shading a heatmap.
	Scaling []float64
	// Variation is the spread of the group means relative to the spread of
	// the covariate.
	Variation float64
}

// Label renders the mean and standard error of group j as "mean\n(se)".
func (cb *CovariateBalance) Label(j int) string {
	return fmt.Sprintf("%.2f\n(%.2f)", cb.Mean[j], cb.StdErr[j])
}

// BalanceTable compares covariate averages across groups.
type BalanceTable struct {
	Groups []int
	Rows   []CovariateBalance
}

// Balance regresses each covariate on group dummies (HC2) to compare its
// average across groups.
func Balance(X [][]float64, names []string, groups []int) (*BalanceTable, error) {
	if len(X) != len(groups) {
		return nil, errors.Wrapf(ErrLengthMismatch, "len(X)=%d len(groups)=%d", len(X), len(groups))
	}
	if len(X) == 0 {
		return nil, errors.New("no units to compare")
	}

	levels := Levels(groups)
	D := linear.Indicators(groups, levels)
	table := &BalanceTable{Groups: levels}
	normal := distuv.UnitNormal
	x := make([]float64, len(X))
	for j, name := range names {
		for i, row := range X {
			x[i] = row[j]
		}

		fit, err := linear.OLS(D, x, nil)
		if err != nil {
			return nil, errors.Wrapf(err, "error comparing %v across groups", name)
		}

		cb := CovariateBalance{
			Covariate: name,
			Mean:      fit.Coef,
			StdErr:    fit.StdErr,
			Scaling:   make([]float64, len(levels)),
		}
		sdMean := math.Sqrt(stat.PopVariance(cb.Mean, nil))
		avgMean := stat.Mean(cb.Mean, nil)
		for k, m := range cb.Mean {
			cb.Scaling[k] = normal.CDF((m - avgMean) / sdMean)
		}
		cb.Variation = sdMean / math.Sqrt(stat.PopVariance(x, nil))

		table.Rows = append(table.Rows, cb)
	}

	return table, nil
}

// WriteBalanceCSV writes one row per covariate and group with columns
// covariate, group, mean, stderr, scaling, variation.
func WriteBalanceCSV(w io.Writer, table *BalanceTable, groupName func(int) string) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"covariate", "group", "mean", "stderr", "scaling", "variation"}); err != nil {
		return err
	}

	for _, row := range table.Rows {
		for k, g := range table.Groups {
			record := []string{
				row.Covariate,
				groupName(g),
				formatFloat(row.Mean[k]),
				formatFloat(row.StdErr[k]),
				formatFloat(row.Scaling[k]),
				formatFloat(row.Variation),
			}
			if err := cw.Write(record); err != nil {
				return err
			}
		}
	}

	cw.Flush()
	return cw.Error()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', 6, 64)
}
