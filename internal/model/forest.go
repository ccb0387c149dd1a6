package model

import (
	"errors"
	"math/rand"
	"sort"
)

// forestParams controls regression-forest fitting.
type forestParams struct {
	Trees       int
	MaxDepth    int
	MinLeafSize int
	Seed        int64
}

func defaultForestParams() forestParams {
	return forestParams{Trees: 100, MaxDepth: 10, MinLeafSize: 2, Seed: 42}
}

// ForestModel is a bagged ensemble of variance-splitting regression trees,
// the non-linear counterpart to LinearModel.
type ForestModel struct {
	Trees              []*treeNode `json:"trees"`
	FeatureImportances []float64   `json:"feature_importances"`
}

// treeNode is one node of a regression tree. Leaf nodes have Feature == -1
// and carry the mean target value of their training rows.
type treeNode struct {
	Feature   int       `json:"feature"`
	Threshold float64   `json:"threshold,omitempty"`
	Value     float64   `json:"value,omitempty"`
	Left      *treeNode `json:"left,omitempty"`
	Right     *treeNode `json:"right,omitempty"`
}

// Predict averages the per-tree predictions for the given feature vector.
func (m *ForestModel) Predict(features []float64) float64 {
	if len(m.Trees) == 0 {
		return 0
	}
	sum := 0.0
	for _, t := range m.Trees {
		sum += t.predict(features)
	}
	return sum / float64(len(m.Trees))
}

func (n *treeNode) predict(features []float64) float64 {
	for n.Feature >= 0 {
		if features[n.Feature] <= n.Threshold {
			n = n.Left
		} else {
			n = n.Right
		}
	}
	return n.Value
}

// fitForest trains a bagged forest: each tree is grown on a bootstrap sample
// with a random feature subset considered at every split. Importances are
// normalized variance reductions accumulated per feature.
func fitForest(X [][]float64, y []float64, params forestParams) (*ForestModel, error) {
	n := len(X)
	if n == 0 || n != len(y) {
		return nil, errors.New("empty or mismatched training data")
	}
	numFeatures := len(X[0])

	rng := rand.New(rand.NewSource(params.Seed))
	importances := make([]float64, numFeatures)

	model := &ForestModel{Trees: make([]*treeNode, 0, params.Trees)}
	idx := make([]int, n)
	for t := 0; t < params.Trees; t++ {
		for i := range idx {
			idx[i] = rng.Intn(n)
		}
		tree := growTree(X, y, idx, 0, params, rng, importances)
		model.Trees = append(model.Trees, tree)
	}

	total := 0.0
	for _, v := range importances {
		total += v
	}
	if total > 0 {
		for i := range importances {
			importances[i] /= total
		}
	}
	model.FeatureImportances = importances
	return model, nil
}

func growTree(X [][]float64, y []float64, idx []int, depth int, params forestParams, rng *rand.Rand, importances []float64) *treeNode {
	mean, variance := meanVariance(y, idx)
	if depth >= params.MaxDepth || len(idx) < 2*params.MinLeafSize || variance == 0 {
		return &treeNode{Feature: -1, Value: mean}
	}

	feature, threshold, gain := bestSplit(X, y, idx, variance, params, rng)
	if feature < 0 {
		return &treeNode{Feature: -1, Value: mean}
	}
	importances[feature] += gain * float64(len(idx))

	var left, right []int
	for _, i := range idx {
		if X[i][feature] <= threshold {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}

	return &treeNode{
		Feature:   feature,
		Threshold: threshold,
		Left:      growTree(X, y, left, depth+1, params, rng, importances),
		Right:     growTree(X, y, right, depth+1, params, rng, importances),
	}
}

// bestSplit searches a random subset of features (p/3, at least 2) for the
// threshold with the largest variance reduction.
func bestSplit(X [][]float64, y []float64, idx []int, parentVariance float64, params forestParams, rng *rand.Rand) (feature int, threshold, gain float64) {
	numFeatures := len(X[0])
	tryFeatures := numFeatures / 3
	if tryFeatures < 2 {
		tryFeatures = 2
	}
	if tryFeatures > numFeatures {
		tryFeatures = numFeatures
	}

	feature = -1
	for _, f := range rng.Perm(numFeatures)[:tryFeatures] {
		t, g := bestThreshold(X, y, idx, f, parentVariance, params.MinLeafSize)
		if g > gain {
			feature, threshold, gain = f, t, g
		}
	}
	return feature, threshold, gain
}

func bestThreshold(X [][]float64, y []float64, idx []int, feature int, parentVariance float64, minLeaf int) (threshold, gain float64) {
	// Candidate thresholds are midpoints between distinct sorted values.
	values := make([]float64, 0, len(idx))
	for _, i := range idx {
		values = append(values, X[i][feature])
	}
	sort.Float64s(values)

	n := float64(len(idx))
	for v := 1; v < len(values); v++ {
		if values[v] == values[v-1] {
			continue
		}
		t := (values[v] + values[v-1]) / 2

		var left, right []int
		for _, i := range idx {
			if X[i][feature] <= t {
				left = append(left, i)
			} else {
				right = append(right, i)
			}
		}
		if len(left) < minLeaf || len(right) < minLeaf {
			continue
		}

		_, lv := meanVariance(y, left)
		_, rv := meanVariance(y, right)
		g := parentVariance - (float64(len(left))*lv+float64(len(right))*rv)/n
		if g > gain {
			threshold, gain = t, g
		}
	}
	return threshold, gain
}

func meanVariance(y []float64, idx []int) (mean, variance float64) {
	if len(idx) == 0 {
		return 0, 0
	}
	for _, i := range idx {
		mean += y[i]
	}
	mean /= float64(len(idx))
	for _, i := range idx {
		d := y[i] - mean
		variance += d * d
	}
	variance /= float64(len(idx))
	return mean, variance
}
