package ml

import (
	"errors"
	"fmt"
)

// RegressionTree is a binary tree stored as a flat node array rooted at index 0.
type RegressionTree struct {
	Nodes []TreeNode `json:"nodes"`
}

type TreeNode struct {
	FeatureIdx int     `json:"feature_idx"`
	Threshold  float64 `json:"threshold"`
	LeftChild  int     `json:"left_child"`
	RightChild int     `json:"right_child"`
	Value      float64 `json:"value"`
	IsLeaf     bool    `json:"is_leaf"`
}

// Predict walks the tree: x[feature] <= threshold goes left.
func (t *RegressionTree) Predict(features []float64) (float64, error) {
	if len(t.Nodes) == 0 {
		return 0, errors.New("empty tree")
	}
	idx := 0
	// a well-formed tree reaches a leaf in fewer steps than it has nodes
	for steps := 0; steps <= len(t.Nodes); steps++ {
		node := t.Nodes[idx]
		if node.IsLeaf {
			return node.Value, nil
		}
		if node.FeatureIdx < 0 || node.FeatureIdx >= len(features) {
			return 0, errors.New("feature index out of range")
		}
		if features[node.FeatureIdx] <= node.Threshold {
			idx = node.LeftChild
		} else {
			idx = node.RightChild
		}
		if idx < 0 || idx >= len(t.Nodes) {
			return 0, errors.New("invalid tree state")
		}
	}
	return 0, errors.New("tree contains a cycle")
}

// validate checks child links and feature indices against nFeatures.
func (t *RegressionTree) validate(nFeatures int) error {
	if len(t.Nodes) == 0 {
		return errors.New("empty tree")
	}
	for i, node := range t.Nodes {
		if node.IsLeaf {
			continue
		}
		if node.FeatureIdx < 0 || node.FeatureIdx >= nFeatures {
			return fmt.Errorf("node %d: feature index %d out of range", i, node.FeatureIdx)
		}
		if node.LeftChild <= i || node.LeftChild >= len(t.Nodes) {
			return fmt.Errorf("node %d: invalid left child %d", i, node.LeftChild)
		}
		if node.RightChild <= i || node.RightChild >= len(t.Nodes) {
			return fmt.Errorf("node %d: invalid right child %d", i, node.RightChild)
		}
	}
	return nil
}

// Forest averages its trees.
type Forest struct {
	Trees []RegressionTree
}

func (f *Forest) Predict(features []float64) (float64, error) {
	if len(f.Trees) == 0 {
		return 0, errors.New("empty forest")
	}
	sum := 0.0
	for i := range f.Trees {
		v, err := f.Trees[i].Predict(features)
		if err != nil {
			return 0, fmt.Errorf("tree %d: %w", i, err)
		}
		sum += v
	}
	return sum / float64(len(f.Trees)), nil
}

// Boosting sums scaled tree outputs onto a base score.
type Boosting struct {
	BaseScore    float64
	LearningRate float64
	Trees        []RegressionTree
}

func (b *Boosting) Predict(features []float64) (float64, error) {
	out := b.BaseScore
	for i := range b.Trees {
		v, err := b.Trees[i].Predict(features)
		if err != nil {
			return 0, fmt.Errorf("tree %d: %w", i, err)
		}
		out += b.LearningRate * v
	}
	return out, nil
}

// Linear is intercept + coef·x.
type Linear struct {
	Intercept float64
	Coef      []float64
}

func (l *Linear) Predict(features []float64) (float64, error) {
	if len(features) != len(l.Coef) {
		return 0, fmt.Errorf("expected %d features, got %d", len(l.Coef), len(features))
	}
	out := l.Intercept
	for i, c := range l.Coef {
		out += c * features[i]
	}
	return out, nil
}

// sized rejects input vectors of the wrong width before delegating.
type sized struct {
	n    int
	next Predictor
}

func (s sized) Predict(features []float64) (float64, error) {
	if len(features) != s.n {
		return 0, fmt.Errorf("expected %d features, got %d", s.n, len(features))
	}
	return s.next.Predict(features)
}
