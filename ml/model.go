package ml

import "errors"

// NumFeatures is the width of every predictor input vector.
const NumFeatures = 7

// Predictor maps a feature vector to one scalar. Implementations are
// immutable after loading and safe for concurrent use.
type Predictor interface {
	Predict(features []float64) (float64, error)
}

// PredictorFunc adapts a function to Predictor.
type PredictorFunc func(features []float64) (float64, error)

func (f PredictorFunc) Predict(features []float64) (float64, error) { return f(features) }

// Family groups propellers by blade count for model and dataset selection.
type Family string

const (
	// FamilyA covers 2-blade propellers.
	FamilyA Family = "A"
	// FamilyB covers every other blade count.
	FamilyB Family = "B"
)

// FamilyFor selects the family for a blade count. Only 2 maps to FamilyA;
// 0, negatives and counts above 4 all fall to FamilyB.
func FamilyFor(blades int) Family {
	if blades == 2 {
		return FamilyA
	}
	return FamilyB
}

// ModelSet is the thrust, power and efficiency predictors of one family.
type ModelSet struct {
	Thrust     Predictor
	Power      Predictor
	Efficiency Predictor
}

func (m ModelSet) Validate() error {
	if m.Thrust == nil || m.Power == nil || m.Efficiency == nil {
		return errors.New("model set is incomplete")
	}
	return nil
}
