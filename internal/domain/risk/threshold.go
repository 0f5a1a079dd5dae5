package risk

// ThresholdMode selects how a market baseline adapts an indicator's base
// threshold. Adjustment is always monotonic in the segment's mean bidder count
// and bounded to ±25% of the base threshold.
type ThresholdMode int

const (
	// AdjustNone keeps the base threshold as configured.
	AdjustNone ThresholdMode = iota
	// AdjustLowCompetition lowers the threshold in chronically
	// low-competition segments, so the same absolute signal is more
	// suspicious where bidders are normally plentiful elsewhere.
	AdjustLowCompetition
	// AdjustConcentrationTolerance raises the threshold in naturally
	// concentrated segments, so structural concentration is not read as
	// collusion on its own.
	AdjustConcentrationTolerance
)
