package risk

import (
	"time"

	"github.com/google/uuid"
)

// Anomaly ensemble method names.
const (
	MethodIsolationForest = "isolation_forest"
	MethodAutoencoder     = "autoencoder"
	MethodLOF             = "local_outlier_factor"
	MethodOneClassSVM     = "one_class_svm"
)

// MethodScore is one constituent model's contribution to the ensemble.
type MethodScore struct {
	Method    string  `json:"method"`
	Score     float64 `json:"score"`  // 0-1
	Weight    float64 `json:"weight"` // effective weight after redistribution
	Available bool    `json:"available"`
}

// FeatureContribution is an approximate, model-native attribution of one
// feature to the anomaly score. These are not Shapley values.
type FeatureContribution struct {
	Index        int     `json:"index"`
	Name         string  `json:"name"`
	Contribution float64 `json:"contribution"`
}

// AnomalyScore is the combined outlier assessment for one tender's feature
// vector.
type AnomalyScore struct {
	TenderID uuid.UUID     `json:"tender_id"`
	Combined float64       `json:"combined"` // 0-1
	Methods  []MethodScore `json:"methods"`
	// Agreement is 1 minus the normalized dispersion of the per-method
	// scores, in [0,1]. Methods agreeing closely score near 1 even when the
	// combined value is low.
	Agreement   float64               `json:"agreement"`
	TopFeatures []FeatureContribution `json:"top_features"`
}

// MarketBaseline holds aggregate statistics for one market segment, used to
// adapt indicator thresholds. Cached with a freshness window.
type MarketBaseline struct {
	SegmentKey string    `json:"segment_key"`
	SampleSize int       `json:"sample_size"`
	ComputedAt time.Time `json:"computed_at"`

	MeanBidderCount   float64 `json:"mean_bidder_count"`
	StdDevBidderCount float64 `json:"stddev_bidder_count"`
	// Price ratio is winning bid divided by the official estimate, which is
	// comparable across tenders of different sizes.
	MeanPriceRatio      float64 `json:"mean_price_ratio"`
	StdDevPriceRatio    float64 `json:"stddev_price_ratio"`
	MeanWindowDays      float64 `json:"mean_window_days"`
	NonCompetitiveShare float64 `json:"non_competitive_share"`
	MeanEstimatedValue  float64 `json:"mean_estimated_value"`
}

// Fresh reports whether the baseline is still usable given a TTL.
func (b *MarketBaseline) Fresh(ttl time.Duration, now time.Time) bool {
	return now.Sub(b.ComputedAt) < ttl
}
