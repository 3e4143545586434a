package forest

import (
	"github.com/golang/glog"
	"github.com/pkg/errors"
)

// DefaultTuneGrid is the set of min_leaf_size values tried by Tune.
var DefaultTuneGrid = []int{1, 5, 10, 20}

// Tune returns params with the min_leaf_size from grid that minimizes
// out-of-bag mean squared error of a regression forest on (X, y).
func Tune(X [][]float64, y []float64, params Params, grid []int) (Params, error) {
	if len(grid) == 0 {
		return params, errors.New("empty tuning grid")
	}

	best := params
	bestMSE := -1.0
	for _, minLeaf := range grid {
		candidate := params
		candidate.MinLeafSize = minLeaf
		f := NewRegression(candidate)
		if err := f.Fit(X, y, nil); err != nil {
			glog.V(1).Infof("Skipping min_leaf_size=%d: %v", minLeaf, err)
			continue
		}

		mse := f.MSE(y)
		glog.V(1).Infof("min_leaf_size=%d: oob mse=%.5g", minLeaf, mse)
		if bestMSE < 0 || mse < bestMSE {
			best, bestMSE = candidate, mse
		}
	}

	if bestMSE < 0 {
		return params, errors.New("no tuning candidate could be fit")
	}
	glog.Infof("Tuned min_leaf_size=%d (oob mse=%.5g)", best.MinLeafSize, bestMSE)
	return best, nil
}
