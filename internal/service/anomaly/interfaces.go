package anomaly

// Attribution is one feature's approximate contribution to a method's score.
// These are model-native importances (reconstruction error shares, split
// frequencies, distance contributions), not Shapley values.
type Attribution struct {
	FeatureIndex int
	Contribution float64
}

// MethodAdapter exposes one fitted outlier model behind a uniform scoring
// contract. Adapters hold already-fitted artifacts; no training happens here.
type MethodAdapter interface {
	// Method returns the canonical method name
	Method() string
	// Available reports whether the fitted model loaded and can score
	Available() bool
	// Score evaluates one feature vector, returning an anomaly score in [0,1]
	// (higher = more anomalous) and per-feature attributions
	Score(features []float64) (float64, []Attribution, error)
}
