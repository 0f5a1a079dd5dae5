package indicators

import (
	"context"
	"math"

	"github.com/google/uuid"

	"github.com/procurewatch/risk-engine/internal/domain/risk"
)

// WinningBidZScore measures how far the winning bid sits from the segment's
// bid distribution, on the scale-free winning-bid-to-estimate ratio.
type WinningBidZScore struct {
	base
}

func NewWinningBidZScore(deps Deps, cfg CatalogConfig) *WinningBidZScore {
	return &WinningBidZScore{
		base: newBase("winning_bid_zscore", risk.CategoryPrice, 1.2, 50, risk.AdjustNone, deps, cfg),
	}
}

func (i *WinningBidZScore) Calculate(ctx context.Context, tenderID uuid.UUID) (*risk.IndicatorResult, error) {
	snap, err := i.snapshot(ctx, tenderID)
	if err != nil {
		return nil, err
	}
	threshold := i.baseThreshold

	win := snap.WinningBid()
	if win == nil {
		return i.degenerate(tenderID, threshold, "no winning bid", risk.Evidence{}), nil
	}
	ratio, ok := win.Amount.RatioTo(snap.Tender.EstimatedValue)
	if !ok {
		return i.degenerate(tenderID, threshold, "official estimate is zero",
			risk.Evidence{}.With("winning_bid", win.Amount.Float64())), nil
	}
	bl := i.baseline(ctx, snap.Tender)
	if bl == nil || bl.StdDevPriceRatio <= 0 {
		return i.degenerate(tenderID, threshold, "segment price distribution unavailable",
			risk.Evidence{}.With("price_ratio", round3(ratio))), nil
	}

	z := (ratio - bl.MeanPriceRatio) / bl.StdDevPriceRatio
	// |z| of 4 standard deviations maps to the ceiling.
	score := math.Min(100, math.Abs(z)*25)

	ev := risk.Evidence{}.
		With("price_ratio", round3(ratio)).
		With("segment_mean_ratio", round3(bl.MeanPriceRatio)).
		With("segment_stddev_ratio", round3(bl.StdDevPriceRatio)).
		With("z_score", round3(z))
	return i.result(tenderID, score, threshold, risk.ConfidenceHigh, ev,
		"winning bid deviation from the segment's price distribution"), nil
}

// BidCoV flags abnormally tight clustering of bid amounts. Independent bidders
// disagree about costs; near-identical offers suggest coordination.
type BidCoV struct {
	base
}

func NewBidCoV(deps Deps, cfg CatalogConfig) *BidCoV {
	return &BidCoV{
		base: newBase("bid_cov_clustering", risk.CategoryPrice, 1.3, 60, risk.AdjustNone, deps, cfg),
	}
}

func (i *BidCoV) Calculate(ctx context.Context, tenderID uuid.UUID) (*risk.IndicatorResult, error) {
	snap, err := i.snapshot(ctx, tenderID)
	if err != nil {
		return nil, err
	}
	threshold := i.baseThreshold

	amounts := snap.AmountsAscending()
	if len(amounts) < 2 {
		return i.degenerate(tenderID, threshold, "coefficient of variation undefined below two bids",
			risk.Evidence{}.With("bid_count", len(amounts))), nil
	}
	cov, ok := coefficientOfVariation(amounts)
	if !ok {
		return i.degenerate(tenderID, threshold, "mean bid amount is zero",
			risk.Evidence{}.With("bid_count", len(amounts))), nil
	}

	// Identical bids (CoV 0) score 100; dispersion at or beyond the reference
	// CoV scores 0. Linear in between.
	score := clamp01(1-cov/i.cfg.ReferenceCoV) * 100

	conf := risk.ConfidenceMedium
	if len(amounts) >= 4 {
		conf = risk.ConfidenceHigh
	}
	ev := risk.Evidence{}.
		With("cov", round3(cov)).
		With("reference_cov", i.cfg.ReferenceCoV).
		With("bid_count", len(amounts))
	return i.result(tenderID, score, threshold, conf, ev,
		"tightness of bid amount clustering across competing offers"), nil
}

// SecondBidGapRatio tests for cover bidding: a credible low offer followed by
// an implausibly large jump to the second-lowest bid.
type SecondBidGapRatio struct {
	base
}

func NewSecondBidGapRatio(deps Deps, cfg CatalogConfig) *SecondBidGapRatio {
	return &SecondBidGapRatio{
		base: newBase("second_bid_gap", risk.CategoryPrice, 1.0, 50, risk.AdjustNone, deps, cfg),
	}
}

func (i *SecondBidGapRatio) Calculate(ctx context.Context, tenderID uuid.UUID) (*risk.IndicatorResult, error) {
	snap, err := i.snapshot(ctx, tenderID)
	if err != nil {
		return nil, err
	}
	threshold := i.baseThreshold

	amounts := snap.AmountsAscending()
	if len(amounts) < 2 {
		return i.degenerate(tenderID, threshold, "gap ratio undefined below two bids",
			risk.Evidence{}.With("bid_count", len(amounts))), nil
	}
	if amounts[0] <= 0 {
		return i.degenerate(tenderID, threshold, "lowest bid amount is zero",
			risk.Evidence{}.With("bid_count", len(amounts))), nil
	}

	gap := (amounts[1] - amounts[0]) / amounts[0]
	// A 50% jump to the second-lowest bid maps to the ceiling.
	score := math.Min(100, gap*200)

	ev := risk.Evidence{}.
		With("lowest_bid", amounts[0]).
		With("second_lowest_bid", amounts[1]).
		With("gap_ratio", round3(gap)).
		With("bid_count", len(amounts))
	return i.result(tenderID, score, threshold, risk.ConfidenceHigh, ev,
		"relative gap between the two lowest bids"), nil
}

// EstimateDeviation measures how far the winning bid strays from the official
// estimate in either direction. Deep underbidding suggests either a rigged
// estimate or a planned recovery through amendments.
type EstimateDeviation struct {
	base
}

func NewEstimateDeviation(deps Deps, cfg CatalogConfig) *EstimateDeviation {
	return &EstimateDeviation{
		base: newBase("estimate_deviation", risk.CategoryPrice, 1.1, 50, risk.AdjustNone, deps, cfg),
	}
}

func (i *EstimateDeviation) Calculate(ctx context.Context, tenderID uuid.UUID) (*risk.IndicatorResult, error) {
	snap, err := i.snapshot(ctx, tenderID)
	if err != nil {
		return nil, err
	}
	threshold := i.baseThreshold

	win := snap.WinningBid()
	if win == nil {
		return i.degenerate(tenderID, threshold, "no winning bid", risk.Evidence{}), nil
	}
	ratio, ok := win.Amount.RatioTo(snap.Tender.EstimatedValue)
	if !ok {
		return i.degenerate(tenderID, threshold, "official estimate is zero",
			risk.Evidence{}.With("winning_bid", win.Amount.Float64())), nil
	}

	dev := math.Abs(ratio - 1)
	// An 80% deviation from the estimate maps to the ceiling.
	score := math.Min(100, dev*125)

	ev := risk.Evidence{}.
		With("winning_bid", win.Amount.Float64()).
		With("estimated_value", snap.Tender.EstimatedValue.Float64()).
		With("deviation", round3(dev))
	return i.result(tenderID, score, threshold, risk.ConfidenceHigh, ev,
		"winning bid deviation from the official estimate"), nil
}
