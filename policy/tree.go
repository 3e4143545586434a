package policy

import (
	"expvar"
	"fmt"
	"math"
	"math/rand"
	"sort"
	"strings"
	"time"

	"github.com/golang/glog"
	"github.com/pkg/errors"
)

var splitsEvaluated = expvar.NewInt("policy/splits_evaluated")

var ErrEmptyScores = errors.New("no scored units to fit policy tree")

type TreeParams struct {
	Depth int `yaml:"depth"`
	// MinNodeSize is the smallest number of units allowed in a leaf.
	MinNodeSize int `yaml:"min_node_size"`
	// SplitStep evaluates only every SplitStep-th candidate split point.
	SplitStep int `yaml:"split_step"`
	// Honest trees choose splits on half of the units and leaf actions on
	// the other half.
	Honest bool  `yaml:"honest"`
	Seed   int64 `yaml:"seed"`
}

var DefaultTreeParams = TreeParams{
	Depth:       2,
	MinNodeSize: 1,
	SplitStep:   1,
}

func (p TreeParams) Validate() error {
	if p.Depth < 0 {
		return errors.Errorf("depth must be non-negative, got %d", p.Depth)
	}
	if p.MinNodeSize < 1 {
		return errors.Errorf("min_node_size must be positive, got %d", p.MinNodeSize)
	}
	if p.SplitStep < 1 {
		return errors.Errorf("split_step must be positive, got %d", p.SplitStep)
	}
	return nil
}

type TreeNode struct {
	// Feature is -1 for leaves.
	Feature   int
	Threshold float64
	Left      int
	Right     int
	// Action is the assignment of units reaching this leaf.
	Action int
	// Reward is the total score of Action over the fitting units in the node.
	Reward float64
	// NumSamples is the number of fitting units in the node.
	NumSamples int
}

func (n *TreeNode) IsLeaf() bool {
	return n.Feature < 0
}

// Tree is a depth-limited decision tree policy with axis-aligned splits.
// Units with x[Feature] <= Threshold go left.
type Tree struct {
	Nodes []TreeNode
	Names []string
	Depth int
}

// FitTree finds the tree of at most params.Depth levels that maximizes the
// sum over units of gamma[i][action(x_i)], searching every split point of
// every covariate. gamma has one row per unit and one column per action.
func FitTree(X [][]float64, gamma [][]float64, names []string, params TreeParams) (*Tree, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if len(gamma) == 0 {
		return nil, ErrEmptyScores
	}
	if len(X) != len(gamma) {
		return nil, errors.Errorf("%d covariate rows for %d score rows", len(X), len(gamma))
	}

	idx := make([]int, len(X))
	for i := range idx {
		idx[i] = i
	}
	structure, estimation := idx, idx
	if params.Honest {
		if len(idx) < 2 {
			return nil, errors.Errorf("honest tree needs at least 2 units, got %d", len(idx))
		}
		rng := rand.New(rand.NewSource(params.Seed))
		rng.Shuffle(len(idx), func(i, j int) {
			idx[i], idx[j] = idx[j], idx[i]
		})
		half := len(idx) / 2
		structure, estimation = idx[:half], idx[half:]
	}

	start := time.Now()
	s := &searcher{
		x:           X,
		gamma:       gamma,
		nActions:    len(gamma[0]),
		nFeatures:   len(X[0]),
		minNodeSize: params.MinNodeSize,
		splitStep:   params.SplitStep,
	}
	root := s.search(structure, params.Depth)

	t := &Tree{Names: names, Depth: params.Depth}
	t.flatten(root)
	if params.Honest {
		t.reestimate(X, gamma, estimation, s.nActions)
	}

	glog.V(1).Infof("Fit depth-%d policy tree on %d units, %d leaves (took %v)",
		params.Depth, len(structure), len(t.Leaves()), time.Since(start))
	return t, nil
}

type candidate struct {
	reward     float64
	feature    int
	threshold  float64
	action     int
	numSamples int
	left       *candidate
	right      *candidate
}

type searcher struct {
	x           [][]float64
	gamma       [][]float64
	nActions    int
	nFeatures   int
	minNodeSize int
	splitStep   int
}

func (s *searcher) leafFromSums(sums []float64, n int) *candidate {
	reward, action := argMax(sums)
	return &candidate{reward: reward, feature: -1, action: action, numSamples: n}
}

func (s *searcher) sums(idx []int) []float64 {
	sums := make([]float64, s.nActions)
	for _, i := range idx {
		for a, g := range s.gamma[i] {
			sums[a] += g
		}
	}
	return sums
}

// search returns the best subtree of at most depth levels over idx.
// idx is not modified.
func (s *searcher) search(idx []int, depth int) *candidate {
	total := s.sums(idx)
	best := s.leafFromSums(total, len(idx))
	if depth == 0 || len(idx) < 2*s.minNodeSize {
		return best
	}

	sorted := make([]int, len(idx))
	leftSums := make([]float64, s.nActions)
	rightSums := make([]float64, s.nActions)
	for j := 0; j < s.nFeatures; j++ {
		copy(sorted, idx)
		sort.SliceStable(sorted, func(a, b int) bool {
			return s.x[sorted[a]][j] < s.x[sorted[b]][j]
		})

		for a := range leftSums {
			leftSums[a] = 0
		}
		for k := 1; k < len(sorted); k++ {
			for a, g := range s.gamma[sorted[k-1]] {
				leftSums[a] += g
			}

			nLeft, nRight := k, len(sorted)-k
			if nLeft < s.minNodeSize || nRight < s.minNodeSize || (nLeft-s.minNodeSize)%s.splitStep != 0 {
				continue
			}
			lo, hi := s.x[sorted[k-1]][j], s.x[sorted[k]][j]
			if lo == hi {
				continue
			}
			splitsEvaluated.Add(1)

			var left, right *candidate
			if depth == 1 {
				for a := range rightSums {
					rightSums[a] = total[a] - leftSums[a]
				}
				left = s.leafFromSums(leftSums, nLeft)
				right = s.leafFromSums(rightSums, nRight)
			} else {
				left = s.search(sorted[:k], depth-1)
				right = s.search(sorted[k:], depth-1)
			}

			reward := left.reward + right.reward
			if reward > best.reward+1e-12*math.Max(1, math.Abs(best.reward)) {
				best = &candidate{
					reward:     reward,
					feature:    j,
					threshold:  lo,
					numSamples: len(idx),
					left:       left,
					right:      right,
				}
			}
		}
	}

	return best
}

func (t *Tree) flatten(c *candidate) int {
	id := len(t.Nodes)
	t.Nodes = append(t.Nodes, TreeNode{
		Feature:    c.feature,
		Threshold:  c.threshold,
		Action:     c.action,
		Reward:     c.reward,
		NumSamples: c.numSamples,
	})
	if c.feature < 0 {
		return id
	}

	left := t.flatten(c.left)
	right := t.flatten(c.right)
	t.Nodes[id].Left = left
	t.Nodes[id].Right = right
	return id
}

// reestimate sets each leaf's action from the estimation units that reach
// it. Leaves no estimation unit reaches keep their action.
func (t *Tree) reestimate(X [][]float64, gamma [][]float64, estimation []int, nActions int) {
	sums := make(map[int][]float64)
	counts := make(map[int]int)
	for _, i := range estimation {
		leaf := t.apply(X[i])
		if sums[leaf] == nil {
			sums[leaf] = make([]float64, nActions)
		}
		for a, g := range gamma[i] {
			sums[leaf][a] += g
		}
		counts[leaf]++
	}

	for leaf, s := range sums {
		t.Nodes[leaf].Reward, t.Nodes[leaf].Action = argMax(s)
		t.Nodes[leaf].NumSamples = counts[leaf]
	}
}

func (t *Tree) apply(x []float64) int {
	k := 0
	for !t.Nodes[k].IsLeaf() {
		n := &t.Nodes[k]
		if x[n.Feature] <= n.Threshold {
			k = n.Left
		} else {
			k = n.Right
		}
	}
	return k
}

func (t *Tree) Predict(x []float64) int {
	return t.Nodes[t.apply(x)].Action
}

// Apply returns the id of the leaf each row of X falls in.
func (t *Tree) Apply(X [][]float64) []int {
	result := make([]int, len(X))
	for i, x := range X {
		result[i] = t.apply(x)
	}
	return result
}

// Leaves returns the ids of the leaf nodes in depth-first order.
func (t *Tree) Leaves() []int {
	var result []int
	for id := range t.Nodes {
		if t.Nodes[id].IsLeaf() {
			result = append(result, id)
		}
	}
	return result
}

func (t *Tree) featureName(j int) string {
	if j < len(t.Names) {
		return t.Names[j]
	}
	return fmt.Sprintf("x_%d", j+1)
}

func (t *Tree) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "policy tree (depth %d, %d leaves)\n", t.Depth, len(t.Leaves()))
	t.write(&sb, 0, 0)
	return sb.String()
}

func (t *Tree) write(sb *strings.Builder, id, indent int) {
	n := &t.Nodes[id]
	prefix := strings.Repeat("  ", indent)
	if n.IsLeaf() {
		fmt.Fprintf(sb, "%s(%d) * action: %s (n=%d)\n", prefix, id, ActionName(n.Action), n.NumSamples)
		return
	}

	fmt.Fprintf(sb, "%s(%d) split: %s <= %.4g\n", prefix, id, t.featureName(n.Feature), n.Threshold)
	t.write(sb, n.Left, indent+1)
	t.write(sb, n.Right, indent+1)
}

// argMax returns the largest value and its index. Ties go to the lowest
// index, so equal rewards prefer Control.
func argMax(vs []float64) (float64, int) {
	best := math.Inf(-1)
	bestIdx := 0
	for i, v := range vs {
		if v > best {
			best = v
			bestIdx = i
		}
	}

	return best, bestIdx
}
