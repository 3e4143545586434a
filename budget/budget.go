// Package budget allocates a costly treatment under a linear budget
// constraint by ranking units on estimated benefit per unit cost.
package budget

import (
	"math"
	"sort"

	"github.com/pkg/errors"
)

var (
	ErrLengthMismatch  = errors.New("inputs have different lengths")
	ErrNonPositiveCost = errors.New("treatment cost must be positive")
)

// Order returns the unit indices sorted by decreasing score.
// Ties are broken by index and NaN scores sort last.
func Order(score []float64) []int {
	order := make([]int, len(score))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(i, j int) bool {
		si, sj := score[order[i]], score[order[j]]
		if math.IsNaN(sj) {
			return !math.IsNaN(si)
		}
		return si > sj
	})
	return order
}

// Ratios returns benefit[i] / cost[i].
func Ratios(benefit, cost []float64) ([]float64, error) {
	if len(benefit) != len(cost) {
		return nil, errors.Wrapf(ErrLengthMismatch, "%d benefits, %d costs", len(benefit), len(cost))
	}

	ratio := make([]float64, len(benefit))
	for i, c := range cost {
		if !(c > 0) {
			return nil, errors.Wrapf(ErrNonPositiveCost, "unit %d has cost %v", i, c)
		}
		ratio[i] = benefit[i] / c
	}
	return ratio, nil
}

// Rank orders units by decreasing benefit-to-cost ratio.
func Rank(benefit, cost []float64) ([]int, error) {
	ratio, err := Ratios(benefit, cost)
	if err != nil {
		return nil, err
	}
	return Order(ratio), nil
}

// Allocation is the result of greedy budget-constrained assignment.
type Allocation struct {
	// Treat[i] is true if unit i is assigned to treatment.
	Treat []bool
	// Order is the ranking the allocation walked, best first.
	Order []int
	// NumTreated is the number of units at the head of Order that were treated.
	NumTreated int
	Spent      float64
}

// Allocate walks units in decreasing order of benefit per unit cost and
// treats them until the ratio is no longer positive or the next unit would
// exceed the budget. A budget of +Inf treats every unit with positive
// benefit.
func Allocate(benefit, cost []float64, budget float64) (*Allocation, error) {
	if budget < 0 || math.IsNaN(budget) {
		return nil, errors.Errorf("budget must be non-negative, got %v", budget)
	}

	ratio, err := Ratios(benefit, cost)
	if err != nil {
		return nil, err
	}

	result := &Allocation{
		Treat: make([]bool, len(benefit)),
		Order: Order(ratio),
	}
	for _, i := range result.Order {
		if !(ratio[i] > 0) || result.Spent+cost[i] > budget {
			break
		}

		result.Treat[i] = true
		result.Spent += cost[i]
		result.NumTreated++
	}

	return result, nil
}

// IPWContributions returns each unit's inverse-propensity weighted
// contribution to the total treatment value and to the total treatment
// cost of a randomized experiment with known propensity e:
//
//	value_i = (W/e - (1-W)/(1-e)) Y / n
//	cost_i  = W/e C / n
func IPWContributions(y, w, cost []float64, e float64) (value, costs []float64, err error) {
	n := len(y)
	if len(w) != n || len(cost) != n {
		return nil, nil, errors.Wrapf(ErrLengthMismatch, "len(y)=%d len(w)=%d len(cost)=%d", n, len(w), len(cost))
	}
	if e <= 0 || e >= 1 {
		return nil, nil, errors.Errorf("propensity must be in (0, 1), got %v", e)
	}

	value = make([]float64, n)
	costs = make([]float64, n)
	for i := range y {
		value[i] = (w[i]/e - (1-w[i])/(1-e)) * y[i] / float64(n)
		costs[i] = w[i] / e * cost[i] / float64(n)
	}
	return value, costs, nil
}

// Curve traces normalized cumulative cost against normalized cumulative
// value as units are treated in ranking order.
type Curve struct {
	Name  string
	Cost  []float64
	Value []float64
}

// NewCurve accumulates the contributions of units in the given order.
func NewCurve(name string, order []int, valueContrib, costContrib []float64) (*Curve, error) {
	if len(valueContrib) != len(costContrib) || len(order) != len(valueContrib) {
		return nil, errors.Wrapf(ErrLengthMismatch, "len(order)=%d len(value)=%d len(cost)=%d",
			len(order), len(valueContrib), len(costContrib))
	}

	var totalValue, totalCost float64
	for i := range valueContrib {
		totalValue += valueContrib[i]
		totalCost += costContrib[i]
	}
	if totalValue == 0 || totalCost == 0 {
		return nil, errors.Errorf("cannot normalize curve with total value %v and total cost %v", totalValue, totalCost)
	}

	c := &Curve{
		Name:  name,
		Cost:  make([]float64, len(order)),
		Value: make([]float64, len(order)),
	}
	var cumValue, cumCost float64
	for k, i := range order {
		cumValue += valueContrib[i]
		cumCost += costContrib[i]
		c.Value[k] = cumValue / totalValue
		c.Cost[k] = cumCost / totalCost
	}
	return c, nil
}

// Area is the area between the curve and the diagonal, summed over steps
// of cumulative cost. Larger is better; a random ranking scores about 0.
func (c *Curve) Area() float64 {
	area := 0.0
	for k := 1; k < len(c.Cost); k++ {
		area += (c.Value[k] - c.Cost[k]) * (c.Cost[k] - c.Cost[k-1])
	}
	return area
}
