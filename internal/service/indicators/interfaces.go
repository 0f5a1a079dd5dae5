package indicators

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/procurewatch/risk-engine/internal/domain/risk"
	"github.com/procurewatch/risk-engine/internal/domain/tender"
)

// Indicator is one statistical test for a known fraud pattern. Indicators are
// pure functions of the tender snapshot and the market baseline in effect at
// calculation time; they perform no writes.
type Indicator interface {
	// Name returns the unique indicator name
	Name() string
	// Category returns the fraud pattern family this indicator tests
	Category() risk.Category
	// Weight returns the configured aggregation weight
	Weight() float64
	// BaseThreshold returns the unadapted trigger threshold on the 0-100 scale
	BaseThreshold() float64
	// Calculate evaluates the indicator for one tender. Missing or degenerate
	// data yields a non-triggered, low-confidence result, never an error; the
	// returned error is reserved for the tender itself being unresolvable.
	Calculate(ctx context.Context, tenderID uuid.UUID) (*risk.IndicatorResult, error)
}

// TenderReader is the read-only view of the procurement store the indicators
// consume. The ETL collaborator owns writes and snapshot isolation.
type TenderReader interface {
	// GetSnapshot loads a tender with its bids and amendments
	GetSnapshot(ctx context.Context, tenderID uuid.UUID) (*tender.Snapshot, error)
	// ListInstitutionSnapshots returns awarded tenders of an institution
	// within the trailing lookback window ending at until
	ListInstitutionSnapshots(ctx context.Context, institutionID uuid.UUID, until time.Time, lookback time.Duration) ([]*tender.Snapshot, error)
}

// BaselineProvider supplies per-segment aggregate statistics and adapts
// indicator thresholds against them.
type BaselineProvider interface {
	// GetBaseline returns the cached or freshly computed baseline for a segment
	GetBaseline(ctx context.Context, segmentKey string) (*risk.MarketBaseline, error)
	// EffectiveThreshold adapts a base threshold against a baseline. A nil or
	// thin-sample baseline leaves the base threshold untouched.
	EffectiveThreshold(base float64, baseline *risk.MarketBaseline, mode risk.ThresholdMode) float64
}
