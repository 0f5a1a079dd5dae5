package scoring

import (
	"math"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/procurewatch/risk-engine/internal/domain/risk"
)

// Config carries the aggregation tunables. Like the indicator weights these
// are hand-tuned constants awaiting calibration, so they live in
// configuration rather than code.
type Config struct {
	// BonusPerExtraCategory is added for every distinct triggered category
	// beyond the first
	BonusPerExtraCategory float64 `koanf:"bonus_per_extra_category"`
	// MaxBonus caps the multi-category bonus
	MaxBonus float64 `koanf:"max_bonus"`
}

// DefaultConfig returns the uncalibrated defaults.
func DefaultConfig() Config {
	return Config{
		BonusPerExtraCategory: 4,
		MaxBonus:              10,
	}
}

// Aggregator reduces a tender's indicator results into one Corruption Risk
// Index. It performs no I/O; it is a pure reduction over value objects.
type Aggregator struct {
	cfg    Config
	logger *zap.Logger
}

func NewAggregator(cfg Config, logger *zap.Logger) *Aggregator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Aggregator{cfg: cfg, logger: logger}
}

// Aggregate computes the composite CRI for one tender from the full indicator
// result set. The base score is the weighted average of triggered indicators'
// scores, normalized over the triggered weights only; non-triggered
// indicators contribute zero, not a penalty. Corroboration across distinct
// categories earns a bounded additive bonus. The composite never exceeds 100.
func (a *Aggregator) Aggregate(tenderID uuid.UUID, results []risk.IndicatorResult) *risk.CRIScore {
	var (
		triggered  []risk.IndicatorResult
		weightSum  float64
		weighted   float64
		evaluable  int
		categories = make(map[risk.Category]struct{})
	)

	for _, r := range results {
		if !r.Degenerate {
			evaluable++
		}
		if !r.Triggered {
			continue
		}
		triggered = append(triggered, r)
		weightSum += r.Weight
		weighted += r.Weight * r.Score
		categories[r.Category] = struct{}{}
	}

	score := &risk.CRIScore{
		TenderID:     tenderID,
		Contributing: triggered,
	}
	if len(results) > 0 {
		score.Confidence = float64(evaluable) / float64(len(results))
	}
	if len(triggered) == 0 || weightSum == 0 {
		return score
	}

	base := weighted / weightSum

	// Independent signals across categories corroborate each other in a way
	// many signals within one category do not.
	if extra := len(categories) - 1; extra > 0 {
		score.Bonus = math.Min(a.cfg.MaxBonus, float64(extra)*a.cfg.BonusPerExtraCategory)
	}
	score.Composite = math.Min(100, base+score.Bonus)

	a.logger.Debug("aggregated corruption risk index",
		zap.String("tender_id", tenderID.String()),
		zap.Float64("composite", score.Composite),
		zap.Int("triggered", len(triggered)),
		zap.Int("categories", len(categories)),
		zap.Float64("bonus", score.Bonus),
		zap.Float64("confidence", score.Confidence))

	return score
}
