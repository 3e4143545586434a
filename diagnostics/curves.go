package diagnostics

import (
	"encoding/csv"
	"io"
	"strconv"

	"github.com/timpalpant/policylearn/budget"
	"github.com/timpalpant/policylearn/internal/npyio"
)

// WriteCurvesCSV writes cost curves in long format with columns
// policy, step, cost, value.
func WriteCurvesCSV(w io.Writer, curves []*budget.Curve) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"policy", "step", "cost", "value"}); err != nil {
		return err
	}

	for _, c := range curves {
		for k := range c.Cost {
			record := []string{c.Name, strconv.Itoa(k), formatFloat(c.Cost[k]), formatFloat(c.Value[k])}
			if err := cw.Write(record); err != nil {
				return err
			}
		}
	}

	cw.Flush()
	return cw.Error()
}

// CurveArrays returns each curve's cost and value as named arrays for
// npz export.
func CurveArrays(curves []*budget.Curve) []npyio.Array {
	var result []npyio.Array
	for _, c := range curves {
		result = append(result,
			npyio.Vector(c.Name+"_cost", c.Cost),
			npyio.Vector(c.Name+"_value", c.Value))
	}
	return result
}

// WriteNPZ writes arrays (scores, assignments, curves) as an npz archive.
func WriteNPZ(w io.Writer, arrays []npyio.Array) error {
	return npyio.WriteNPZ(w, arrays)
}
