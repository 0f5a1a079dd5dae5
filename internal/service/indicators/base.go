package indicators

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/procurewatch/risk-engine/internal/domain/risk"
	"github.com/procurewatch/risk-engine/internal/domain/tender"
)

// Settings overrides one indicator's configured weight and base threshold.
// Both are calibration constants exposed as configuration so future review
// feedback can replace them without code changes.
type Settings struct {
	Weight        float64 `koanf:"weight"`
	BaseThreshold float64 `koanf:"base_threshold"`
}

// CatalogConfig carries the tunables shared across the indicator catalog.
type CatalogConfig struct {
	// Overrides replaces the built-in weight/threshold defaults per indicator
	Overrides map[string]Settings `koanf:"overrides"`
	// LookbackWindow bounds institution history queries
	LookbackWindow time.Duration `koanf:"lookback_window"`
	// MinHistorySample is the smallest institution history an indicator will
	// draw conclusions from
	MinHistorySample int `koanf:"min_history_sample"`
	// StatutoryWindowDays is the minimum lawful submission window
	StatutoryWindowDays float64 `koanf:"statutory_window_days"`
	// ReferenceCoV is the bid dispersion below which clustering becomes
	// suspicious
	ReferenceCoV float64 `koanf:"reference_cov"`
	// CPVPrefixLen controls market segment granularity
	CPVPrefixLen int `koanf:"cpv_prefix_len"`
}

// DefaultCatalogConfig returns the uncalibrated defaults. The weights and
// thresholds are hand-tuned, not validated against labeled ground truth.
func DefaultCatalogConfig() CatalogConfig {
	return CatalogConfig{
		LookbackWindow:      3 * 365 * 24 * time.Hour,
		MinHistorySample:    5,
		StatutoryWindowDays: 30,
		ReferenceCoV:        0.15,
		CPVPrefixLen:        3,
	}
}

// Deps bundles what every indicator needs.
type Deps struct {
	Reader    TenderReader
	Baselines BaselineProvider
	Logger    *zap.Logger
}

// base carries the declarative half of the Indicator contract plus shared
// evaluation plumbing. Concrete indicators embed it and implement Calculate.
type base struct {
	name          string
	category      risk.Category
	weight        float64
	baseThreshold float64
	mode          risk.ThresholdMode
	deps          Deps
	cfg           CatalogConfig
}

func newBase(name string, cat risk.Category, weight, threshold float64, mode risk.ThresholdMode, deps Deps, cfg CatalogConfig) base {
	if s, ok := cfg.Overrides[name]; ok {
		if s.Weight > 0 {
			weight = s.Weight
		}
		if s.BaseThreshold > 0 {
			threshold = s.BaseThreshold
		}
	}
	return base{
		name:          name,
		category:      cat,
		weight:        weight,
		baseThreshold: threshold,
		mode:          mode,
		deps:          deps,
		cfg:           cfg,
	}
}

func (b *base) Name() string            { return b.name }
func (b *base) Category() risk.Category { return b.category }
func (b *base) Weight() float64         { return b.weight }
func (b *base) BaseThreshold() float64  { return b.baseThreshold }

// snapshot loads the tender snapshot; a missing tender is the one condition an
// indicator is allowed to surface as an error.
func (b *base) snapshot(ctx context.Context, tenderID uuid.UUID) (*tender.Snapshot, error) {
	return b.deps.Reader.GetSnapshot(ctx, tenderID)
}

// effectiveThreshold resolves the adaptive threshold for a tender's segment.
// Baseline lookup failures fall back to the base threshold; an indicator never
// fails because baseline statistics were unavailable.
func (b *base) effectiveThreshold(ctx context.Context, t *tender.Tender) (float64, *risk.MarketBaseline) {
	if b.mode == risk.AdjustNone || b.deps.Baselines == nil {
		return b.baseThreshold, nil
	}
	bl, err := b.deps.Baselines.GetBaseline(ctx, t.SegmentKey(b.cfg.CPVPrefixLen))
	if err != nil {
		b.deps.Logger.Debug("baseline unavailable, using base threshold",
			zap.String("indicator", b.name),
			zap.String("segment", t.SegmentKey(b.cfg.CPVPrefixLen)),
			zap.Error(err))
		return b.baseThreshold, nil
	}
	return b.deps.Baselines.EffectiveThreshold(b.baseThreshold, bl, b.mode), bl
}

// baseline fetches segment statistics without adjusting the threshold, for
// indicators that compare against baseline values directly.
func (b *base) baseline(ctx context.Context, t *tender.Tender) *risk.MarketBaseline {
	if b.deps.Baselines == nil {
		return nil
	}
	bl, err := b.deps.Baselines.GetBaseline(ctx, t.SegmentKey(b.cfg.CPVPrefixLen))
	if err != nil {
		return nil
	}
	return bl
}

// result builds a scored indicator result. Triggering is a plain threshold
// comparison and nothing else.
func (b *base) result(tenderID uuid.UUID, score, threshold float64, conf risk.Confidence, ev risk.Evidence, desc string) *risk.IndicatorResult {
	score = clampScore(score)
	return &risk.IndicatorResult{
		TenderID:           tenderID,
		Name:               b.name,
		Category:           b.category,
		Score:              score,
		Weight:             b.weight,
		EffectiveThreshold: threshold,
		Triggered:          score >= threshold,
		Confidence:         conf,
		Evidence:           ev,
		Description:        desc,
	}
}

// degenerate builds the non-triggered, low-confidence result used when the
// data the test needs is absent or mathematically unusable. Absence of
// evidence is not evidence of absence.
func (b *base) degenerate(tenderID uuid.UUID, threshold float64, reason string, ev risk.Evidence) *risk.IndicatorResult {
	return &risk.IndicatorResult{
		TenderID:           tenderID,
		Name:               b.name,
		Category:           b.category,
		Score:              0,
		Weight:             b.weight,
		EffectiveThreshold: threshold,
		Triggered:          false,
		Confidence:         risk.ConfidenceLow,
		Degenerate:         true,
		Evidence:           ev.With("degenerate_reason", reason),
		Description:        "insufficient data: " + reason,
	}
}

// confidenceFor grades data completeness by sample size against the
// configured minimum.
func (b *base) confidenceFor(sample int) risk.Confidence {
	switch {
	case sample >= b.cfg.MinHistorySample*3:
		return risk.ConfidenceHigh
	case sample >= b.cfg.MinHistorySample:
		return risk.ConfidenceMedium
	default:
		return risk.ConfidenceLow
	}
}
