package ml

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
)

// Artifact is the on-disk JSON form of a predictor.
type Artifact struct {
	Type         string           `json:"type"`
	NFeatures    int              `json:"n_features"`
	FeatureNames []string         `json:"feature_names,omitempty"`
	Nodes        []TreeNode       `json:"nodes,omitempty"`
	Trees        []RegressionTree `json:"trees,omitempty"`
	BaseScore    float64          `json:"base_score,omitempty"`
	LearningRate float64          `json:"learning_rate,omitempty"`
	Intercept    float64          `json:"intercept,omitempty"`
	Coef         []float64        `json:"coef,omitempty"`
}

// LoadModel reads a predictor artifact. modelType may be empty to accept
// whatever type the artifact declares.
func LoadModel(modelType, path string) (Predictor, error) {
	payload, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var artifact Artifact
	if err := json.Unmarshal(payload, &artifact); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if modelType != "" && artifact.Type != "" && artifact.Type != modelType {
		return nil, fmt.Errorf("%s: artifact type %q, expected %q", path, artifact.Type, modelType)
	}
	if artifact.Type == "" {
		artifact.Type = modelType
	}
	predictor, err := BuildModel(artifact)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return predictor, nil
}

// BuildModel validates an artifact and returns its predictor.
func BuildModel(a Artifact) (Predictor, error) {
	if a.NFeatures == 0 {
		a.NFeatures = NumFeatures
	}
	if a.NFeatures != NumFeatures {
		return nil, fmt.Errorf("artifact expects %d features, service provides %d", a.NFeatures, NumFeatures)
	}
	if err := checkFeatureNames(a.FeatureNames); err != nil {
		return nil, err
	}

	var model Predictor
	switch a.Type {
	case "tree":
		tree := &RegressionTree{Nodes: a.Nodes}
		if err := tree.validate(a.NFeatures); err != nil {
			return nil, err
		}
		model = tree
	case "forest", "boosting":
		if len(a.Trees) == 0 {
			return nil, errors.New("ensemble has no trees")
		}
		for i := range a.Trees {
			if err := a.Trees[i].validate(a.NFeatures); err != nil {
				return nil, fmt.Errorf("tree %d: %w", i, err)
			}
		}
		if a.Type == "forest" {
			model = &Forest{Trees: a.Trees}
		} else {
			model = &Boosting{BaseScore: a.BaseScore, LearningRate: a.LearningRate, Trees: a.Trees}
		}
	case "linear":
		if len(a.Coef) != a.NFeatures {
			return nil, fmt.Errorf("linear model has %d coefficients, expected %d", len(a.Coef), a.NFeatures)
		}
		model = &Linear{Intercept: a.Intercept, Coef: a.Coef}
	default:
		return nil, fmt.Errorf("unsupported model type %q", a.Type)
	}
	return sized{n: a.NFeatures, next: model}, nil
}

// checkFeatureNames guards against artifacts trained on a different column order.
// Artifacts that omit the names are trusted.
func checkFeatureNames(names []string) error {
	if len(names) == 0 {
		return nil
	}
	want := FeatureNames()
	if len(names) != len(want) {
		return fmt.Errorf("artifact names %d features, service provides %d", len(names), len(want))
	}
	for i, name := range names {
		if name != want[i] {
			return fmt.Errorf("feature %d is %q in artifact, %q in service", i, name, want[i])
		}
	}
	return nil
}
