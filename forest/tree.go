package forest

import (
	"math"
	"math/rand"
	"sort"
)

type node struct {
	// Feature is -1 for leaves.
	Feature   int
	Threshold float64
	Left      int
	Right     int

	Value float64
	// Samples are the estimation units that fall in this leaf.
	Samples []int
}

func (n *node) isLeaf() bool {
	return n.Feature < 0
}

type tree struct {
	nodes []node
}

type treeParams struct {
	minLeafSize int
	maxDepth    int
	mtry        int
}

// growTree fits a weighted regression tree. Splits are chosen on the
// structure units, leaf values are estimated on the estimation units
// (which are the same set unless the forest is honest).
func growTree(X [][]float64, y, weights []float64, structure, estimation []int, params treeParams, rng *rand.Rand) *tree {
	t := &tree{}
	t.split(X, y, weights, structure, 0, params, rng)
	t.estimate(X, y, weights, estimation)
	return t
}

func (t *tree) split(X [][]float64, y, weights []float64, idx []int, depth int, params treeParams, rng *rand.Rand) int {
	nodeID := len(t.nodes)
	t.nodes = append(t.nodes, node{Feature: -1, Value: weightedMean(y, weights, idx)})
	if len(idx) < 2*params.minLeafSize || (params.maxDepth > 0 && depth >= params.maxDepth) {
		return nodeID
	}

	feature, threshold, ok := bestSplit(X, y, weights, idx, params, rng)
	if !ok {
		return nodeID
	}

	var left, right []int
	for _, i := range idx {
		if X[i][feature] <= threshold {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}

	leftID := t.split(X, y, weights, left, depth+1, params, rng)
	rightID := t.split(X, y, weights, right, depth+1, params, rng)
	t.nodes[nodeID].Feature = feature
	t.nodes[nodeID].Threshold = threshold
	t.nodes[nodeID].Left = leftID
	t.nodes[nodeID].Right = rightID
	return nodeID
}

// estimate replaces leaf values with the weighted mean of the estimation
// units in each leaf. Leaves without estimation units keep the value fit
// on the structure units.
func (t *tree) estimate(X [][]float64, y, weights []float64, estimation []int) {
	for _, i := range estimation {
		leaf := t.leaf(X[i])
		t.nodes[leaf].Samples = append(t.nodes[leaf].Samples, i)
	}

	for k := range t.nodes {
		n := &t.nodes[k]
		if n.isLeaf() && len(n.Samples) > 0 {
			if v := weightedMean(y, weights, n.Samples); !math.IsNaN(v) {
				n.Value = v
			}
		}
	}
}

func (t *tree) leaf(x []float64) int {
	k := 0
	for !t.nodes[k].isLeaf() {
		n := &t.nodes[k]
		if x[n.Feature] <= n.Threshold {
			k = n.Left
		} else {
			k = n.Right
		}
	}
	return k
}

func (t *tree) predict(x []float64) float64 {
	return t.nodes[t.leaf(x)].Value
}

// bestSplit searches mtry randomly chosen features for the split that
// most reduces the weighted sum of squared errors.
func bestSplit(X [][]float64, y, weights []float64, idx []int, params treeParams, rng *rand.Rand) (int, float64, bool) {
	p := len(X[idx[0]])
	features := rng.Perm(p)
	if params.mtry > 0 && params.mtry < p {
		features = features[:params.mtry]
	}

	var totalW, totalWY float64
	for _, i := range idx {
		wi := weight(weights, i)
		totalW += wi
		totalWY += wi * y[i]
	}
	if totalW <= 0 {
		return 0, 0, false
	}

	// Minimizing SSE is equivalent to maximizing sum_k (sum w y)_k^2 / (sum w)_k.
	baseline := totalWY * totalWY / totalW
	bestGain := 1e-12 * math.Max(1, math.Abs(baseline))
	bestFeature, bestThreshold, found := 0, 0.0, false
	sorted := make([]int, len(idx))
	for _, j := range features {
		copy(sorted, idx)
		sort.Slice(sorted, func(a, b int) bool {
			return X[sorted[a]][j] < X[sorted[b]][j]
		})

		var leftW, leftWY float64
		for k := 0; k < len(sorted)-1; k++ {
			i := sorted[k]
			wi := weight(weights, i)
			leftW += wi
			leftWY += wi * y[i]

			nLeft := k + 1
			if nLeft < params.minLeafSize || len(sorted)-nLeft < params.minLeafSize {
				continue
			}
			xk, xNext := X[i][j], X[sorted[k+1]][j]
			if xk == xNext {
				continue
			}

			rightW := totalW - leftW
			if leftW <= 0 || rightW <= 0 {
				continue
			}
			rightWY := totalWY - leftWY
			gain := leftWY*leftWY/leftW + rightWY*rightWY/rightW - baseline
			if gain > bestGain {
				bestGain = gain
				bestFeature = j
				bestThreshold = xk + (xNext-xk)/2
				found = true
			}
		}
	}

	return bestFeature, bestThreshold, found
}

func weight(weights []float64, i int) float64 {
	if weights == nil {
		return 1
	}
	return weights[i]
}

func weightedMean(y, weights []float64, idx []int) float64 {
	var sumW, sumWY float64
	for _, i := range idx {
		wi := weight(weights, i)
		sumW += wi
		sumWY += wi * y[i]
	}
	if sumW <= 0 {
		return math.NaN()
	}
	return sumWY / sumW
}
