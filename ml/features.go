package ml

// Features is the model input: target geometry and advance ratio plus the
// derived area metrics of the matched reference row.
type Features struct {
	Diameter       float64
	Pitch          float64
	AdvanceRatio   float64
	BladeArea      float64
	DiscArea       float64
	TotalBladeArea float64
	Solidity       float64
}

// FeatureVector lays out f in training order. The order must not change.
func FeatureVector(f Features) []float64 {
	return []float64{
		f.Diameter,
		f.Pitch,
		f.AdvanceRatio,
		f.BladeArea,
		f.DiscArea,
		f.TotalBladeArea,
		f.Solidity,
	}
}

// FeatureNames lists the feature vector columns in order.
func FeatureNames() []string {
	return []string{
		"diameter",
		"pitch",
		"advance_ratio",
		"blade_area",
		"disc_area",
		"total_blade_area",
		"solidity",
	}
}
