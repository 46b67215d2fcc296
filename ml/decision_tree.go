package ml

import (
	"errors"
	"fmt"
	"math/rand"
	"sort"
)

// DecisionTree is a CART classifier split on gini impurity. Nodes are stored in a flat
// slice; children are referenced by absolute index.
type DecisionTree struct {
	// MaxFeatures is the number of candidate features drawn per split. 0 means all.
	MaxFeatures int
	// MaxDepth limits the tree depth. 0 means grow until leaves are pure.
	MaxDepth int
	// ClassCount fixes the length of leaf distributions. 0 derives it from the labels.
	ClassCount int

	rng          *rand.Rand
	nodes        []TreeNode
	featureCount int
	importances  []float64
}

// TreeNode is a split or leaf in a flattened tree. Children index into the node slice.
type TreeNode struct {
	FeatureIdx   int       `json:"feature_idx"`
	Threshold    float64   `json:"threshold"`
	LeftChild    int       `json:"left_child"`
	RightChild   int       `json:"right_child"`
	ClassLabel   int       `json:"class_label"`
	IsLeaf       bool      `json:"is_leaf"`
	Distribution []float64 `json:"distribution,omitempty"`
}

// NewDecisionTree creates a tree drawing split candidates from rng. A nil rng is
// seeded with 1.
func NewDecisionTree(maxFeatures, maxDepth, classCount int, rng *rand.Rand) *DecisionTree {
	if rng == nil {
		rng = rand.New(rand.NewSource(1))
	}
	return &DecisionTree{
		MaxFeatures: maxFeatures,
		MaxDepth:    maxDepth,
		ClassCount:  classCount,
		rng:         rng,
	}
}

// Fit grows the tree on every row of features.
func (dt *DecisionTree) Fit(features [][]float64, labels []int) error {
	indices := make([]int, len(features))
	for i := range indices {
		indices[i] = i
	}
	return dt.fitIndices(features, labels, indices)
}

// fitIndices trains on the rows named by indices. Indices may repeat, which is how
// bootstrap samples are passed in.
func (dt *DecisionTree) fitIndices(features [][]float64, labels []int, indices []int) error {
	if len(features) == 0 || len(labels) == 0 {
		return errors.New("features or labels empty")
	}
	if len(features) != len(labels) {
		return errors.New("features and labels size mismatch")
	}
	if len(indices) == 0 {
		return errors.New("no training rows")
	}
	width := len(features[0])
	if width == 0 {
		return errors.New("feature vectors are empty")
	}
	for i, row := range features {
		if len(row) != width {
			return fmt.Errorf("%w: row %d has %d columns, expected %d", ErrEncodingMismatch, i, len(row), width)
		}
	}
	classCount := dt.ClassCount
	if classCount == 0 {
		classCount = classCountOf(labels)
	}
	for _, label := range labels {
		if label < 0 || label >= classCount {
			return fmt.Errorf("label %d outside [0, %d)", label, classCount)
		}
	}
	if dt.rng == nil {
		dt.rng = rand.New(rand.NewSource(1))
	}

	dt.ClassCount = classCount
	dt.featureCount = width
	dt.nodes = nil
	dt.importances = make([]float64, width)

	b := &treeBuilder{tree: dt, features: features, labels: labels}
	b.build(append([]int(nil), indices...), 0)

	total := 0.0
	for _, v := range dt.importances {
		total += v
	}
	if total > 0 {
		for i := range dt.importances {
			dt.importances[i] /= total
		}
	}
	return nil
}

// PredictProba returns the class distribution of the leaf reached by features.
func (dt *DecisionTree) PredictProba(features []float64) ([]float64, error) {
	if len(dt.nodes) == 0 {
		return nil, ErrNotTrained
	}
	if len(features) != dt.featureCount {
		return nil, fmt.Errorf("%w: got %d columns, model expects %d", ErrEncodingMismatch, len(features), dt.featureCount)
	}
	idx := 0
	for {
		node := dt.nodes[idx]
		if node.IsLeaf {
			return append([]float64(nil), node.Distribution...), nil
		}
		if features[node.FeatureIdx] <= node.Threshold {
			idx = node.LeftChild
		} else {
			idx = node.RightChild
		}
		if idx <= 0 || idx >= len(dt.nodes) {
			return nil, errors.New("invalid tree state")
		}
	}
}

func (dt *DecisionTree) Predict(features []float64) (int, error) {
	proba, err := dt.PredictProba(features)
	if err != nil {
		return 0, err
	}
	return argmax(proba), nil
}

// FeatureImportances returns the normalized total impurity decrease per feature.
func (dt *DecisionTree) FeatureImportances() []float64 {
	return append([]float64(nil), dt.importances...)
}

// Nodes exposes the fitted structure.
func (dt *DecisionTree) Nodes() []TreeNode {
	return dt.nodes
}

// Depth returns the number of edges on the longest root-to-leaf path.
func (dt *DecisionTree) Depth() int {
	if len(dt.nodes) == 0 {
		return 0
	}
	var walk func(idx int) int
	walk = func(idx int) int {
		node := dt.nodes[idx]
		if node.IsLeaf {
			return 0
		}
		left, right := walk(node.LeftChild), walk(node.RightChild)
		if left > right {
			return left + 1
		}
		return right + 1
	}
	return walk(0)
}

type treeBuilder struct {
	tree     *DecisionTree
	features [][]float64
	labels   []int
}

type split struct {
	feature   int
	threshold float64
	impurity  float64
	position  int
}

// build appends the subtree for indices and returns the index of its root.
func (b *treeBuilder) build(indices []int, depth int) int {
	dt := b.tree
	counts := b.classCounts(indices)
	distribution := make([]float64, len(counts))
	for i, c := range counts {
		distribution[i] = float64(c) / float64(len(indices))
	}

	nodeIdx := len(dt.nodes)
	dt.nodes = append(dt.nodes, TreeNode{
		FeatureIdx:   -1,
		LeftChild:    -1,
		RightChild:   -1,
		ClassLabel:   argmax(distribution),
		IsLeaf:       true,
		Distribution: distribution,
	})

	nodeGini := giniFromCounts(counts, len(indices))
	if nodeGini == 0 || len(indices) < 2 || (dt.MaxDepth > 0 && depth >= dt.MaxDepth) {
		return nodeIdx
	}

	best, ok := b.findBestSplit(indices)
	if !ok {
		return nodeIdx
	}

	sortByFeature(indices, b.features, best.feature)
	left := indices[:best.position]
	right := indices[best.position:]

	n := float64(len(indices))
	dt.importances[best.feature] += n*nodeGini - n*best.impurity

	leftIdx := b.build(left, depth+1)
	rightIdx := b.build(right, depth+1)

	node := &dt.nodes[nodeIdx]
	node.IsLeaf = false
	node.FeatureIdx = best.feature
	node.Threshold = best.threshold
	node.LeftChild = leftIdx
	node.RightChild = rightIdx
	return nodeIdx
}

// findBestSplit visits features in random order until MaxFeatures non-constant
// features have been evaluated.
func (b *treeBuilder) findBestSplit(indices []int) (split, bool) {
	dt := b.tree
	maxFeatures := dt.MaxFeatures
	if maxFeatures <= 0 || maxFeatures > dt.featureCount {
		maxFeatures = dt.featureCount
	}

	best := split{feature: -1}
	visited := 0
	for _, feature := range dt.rng.Perm(dt.featureCount) {
		if visited >= maxFeatures {
			break
		}
		candidate, ok := b.bestThreshold(indices, feature)
		if !ok {
			continue
		}
		visited++
		if best.feature == -1 || candidate.impurity < best.impurity {
			best = candidate
		}
	}
	return best, best.feature != -1
}

// bestThreshold scans midpoints between consecutive distinct values of feature.
// It reports false when the feature is constant over indices.
func (b *treeBuilder) bestThreshold(indices []int, feature int) (split, bool) {
	sorted := append([]int(nil), indices...)
	sortByFeature(sorted, b.features, feature)

	first := b.features[sorted[0]][feature]
	last := b.features[sorted[len(sorted)-1]][feature]
	if first == last {
		return split{}, false
	}

	total := b.classCounts(sorted)
	leftCounts := make([]int, len(total))
	rightCounts := append([]int(nil), total...)
	n := len(sorted)

	best := split{feature: feature, position: -1}
	for i := 0; i < n-1; i++ {
		label := b.labels[sorted[i]]
		leftCounts[label]++
		rightCounts[label]--

		current := b.features[sorted[i]][feature]
		next := b.features[sorted[i+1]][feature]
		if current == next {
			continue
		}
		nl, nr := i+1, n-i-1
		impurity := (float64(nl)*giniFromCounts(leftCounts, nl) + float64(nr)*giniFromCounts(rightCounts, nr)) / float64(n)
		if best.position == -1 || impurity < best.impurity {
			threshold := current + (next-current)/2
			if threshold >= next {
				threshold = current
			}
			best.impurity = impurity
			best.threshold = threshold
			best.position = nl
		}
	}
	return best, best.position != -1
}

func (b *treeBuilder) classCounts(indices []int) []int {
	counts := make([]int, b.tree.ClassCount)
	for _, idx := range indices {
		counts[b.labels[idx]]++
	}
	return counts
}

// sortByFeature orders indices by the feature value. Ties keep the index order so a
// fixed seed always yields the same tree.
func sortByFeature(indices []int, features [][]float64, feature int) {
	sort.SliceStable(indices, func(i, j int) bool {
		return features[indices[i]][feature] < features[indices[j]][feature]
	})
}

func giniFromCounts(counts []int, total int) float64 {
	if total == 0 {
		return 0
	}
	impurity := 1.0
	for _, count := range counts {
		p := float64(count) / float64(total)
		impurity -= p * p
	}
	return impurity
}
