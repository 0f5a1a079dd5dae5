package indicators

import (
	"context"

	"github.com/google/uuid"

	"github.com/procurewatch/risk-engine/internal/domain/risk"
)

// SingleBidder flags tenders where only one bidder remained in contention.
// Single-bidder awards are the strongest individual red flag for restricted
// competition.
type SingleBidder struct {
	base
}

func NewSingleBidder(deps Deps, cfg CatalogConfig) *SingleBidder {
	return &SingleBidder{
		base: newBase("single_bidder", risk.CategoryCompetition, 1.5, 50, risk.AdjustLowCompetition, deps, cfg),
	}
}

func (i *SingleBidder) Calculate(ctx context.Context, tenderID uuid.UUID) (*risk.IndicatorResult, error) {
	snap, err := i.snapshot(ctx, tenderID)
	if err != nil {
		return nil, err
	}
	threshold, _ := i.effectiveThreshold(ctx, snap.Tender)

	n := snap.BidderCount()
	if n == 0 {
		return i.degenerate(tenderID, threshold, "no bid records", risk.Evidence{}.With("bidder_count", 0)), nil
	}

	var score float64
	switch n {
	case 1:
		score = 100
	case 2:
		score = 30
	default:
		score = 0
	}

	ev := risk.Evidence{}.
		With("bidder_count", n).
		With("disqualified_count", snap.DisqualifiedCount())
	return i.result(tenderID, score, threshold, risk.ConfidenceHigh, ev,
		"number of bidders left in contention after disqualifications"), nil
}

// HHIConcentration measures supplier concentration at the procuring
// institution: the Herfindahl-Hirschman Index over each bidder's share of
// awarded contract value across the institution's recent awards.
type HHIConcentration struct {
	base
}

func NewHHIConcentration(deps Deps, cfg CatalogConfig) *HHIConcentration {
	return &HHIConcentration{
		base: newBase("hhi_concentration", risk.CategoryCompetition, 1.2, 45, risk.AdjustConcentrationTolerance, deps, cfg),
	}
}

func (i *HHIConcentration) Calculate(ctx context.Context, tenderID uuid.UUID) (*risk.IndicatorResult, error) {
	snap, err := i.snapshot(ctx, tenderID)
	if err != nil {
		return nil, err
	}
	threshold, _ := i.effectiveThreshold(ctx, snap.Tender)

	history, err := i.deps.Reader.ListInstitutionSnapshots(ctx, snap.Tender.InstitutionID, snap.Tender.PublishedAt, i.cfg.LookbackWindow)
	if err != nil || len(history) < i.cfg.MinHistorySample {
		return i.degenerate(tenderID, threshold, "institution award history too thin",
			risk.Evidence{}.With("history_sample", len(history))), nil
	}

	awardedByBidder := make(map[uuid.UUID]float64)
	for _, h := range history {
		win := h.WinningBid()
		if win == nil {
			continue
		}
		awardedByBidder[win.BidderID] += win.Amount.Float64()
	}
	if len(awardedByBidder) == 0 {
		return i.degenerate(tenderID, threshold, "no awarded winners in history",
			risk.Evidence{}.With("history_sample", len(history))), nil
	}

	values := make([]float64, 0, len(awardedByBidder))
	for _, v := range awardedByBidder {
		values = append(values, v)
	}
	hhi := herfindahl(values)
	// HHI 10000 (monopoly) maps to 100; the mapping is linear and monotone in
	// the sum of squared shares.
	score := hhi / 100

	ev := risk.Evidence{}.
		With("hhi", int(hhi)).
		With("distinct_winners", len(awardedByBidder)).
		With("history_sample", len(history))
	return i.result(tenderID, score, threshold, i.confidenceFor(len(history)), ev,
		"supplier concentration of awarded value at the procuring institution"), nil
}

// BidderEntropy measures how evenly participation is spread across bidder
// identities at the institution. Low entropy means a small clique supplies
// most offers.
type BidderEntropy struct {
	base
}

func NewBidderEntropy(deps Deps, cfg CatalogConfig) *BidderEntropy {
	return &BidderEntropy{
		base: newBase("bidder_entropy", risk.CategoryCompetition, 1.0, 60, risk.AdjustConcentrationTolerance, deps, cfg),
	}
}

func (i *BidderEntropy) Calculate(ctx context.Context, tenderID uuid.UUID) (*risk.IndicatorResult, error) {
	snap, err := i.snapshot(ctx, tenderID)
	if err != nil {
		return nil, err
	}
	threshold, _ := i.effectiveThreshold(ctx, snap.Tender)

	history, err := i.deps.Reader.ListInstitutionSnapshots(ctx, snap.Tender.InstitutionID, snap.Tender.PublishedAt, i.cfg.LookbackWindow)
	if err != nil || len(history) < i.cfg.MinHistorySample {
		return i.degenerate(tenderID, threshold, "institution participation history too thin",
			risk.Evidence{}.With("history_sample", len(history))), nil
	}

	participation := make(map[uuid.UUID]float64)
	for _, h := range history {
		for _, b := range h.ActiveBids() {
			participation[b.BidderID]++
		}
	}
	for _, b := range snap.ActiveBids() {
		participation[b.BidderID]++
	}
	if len(participation) < 2 {
		return i.degenerate(tenderID, threshold, "fewer than two distinct bidders ever participated",
			risk.Evidence{}.With("distinct_bidders", len(participation))), nil
	}

	counts := make([]float64, 0, len(participation))
	for _, c := range participation {
		counts = append(counts, c)
	}
	hNorm := shannonEntropyNorm(counts)
	score := (1 - hNorm) * 100

	ev := risk.Evidence{}.
		With("entropy_normalized", round3(hNorm)).
		With("distinct_bidders", len(participation)).
		With("history_sample", len(history))
	return i.result(tenderID, score, threshold, i.confidenceFor(len(history)), ev,
		"evenness of bidder participation at the procuring institution"), nil
}

// LowBidderCount compares this tender's bidder count against the adaptive
// market-segment average.
type LowBidderCount struct {
	base
}

func NewLowBidderCount(deps Deps, cfg CatalogConfig) *LowBidderCount {
	return &LowBidderCount{
		base: newBase("low_bidder_count", risk.CategoryCompetition, 1.0, 50, risk.AdjustLowCompetition, deps, cfg),
	}
}

func (i *LowBidderCount) Calculate(ctx context.Context, tenderID uuid.UUID) (*risk.IndicatorResult, error) {
	snap, err := i.snapshot(ctx, tenderID)
	if err != nil {
		return nil, err
	}
	threshold, bl := i.effectiveThreshold(ctx, snap.Tender)
	if bl == nil {
		bl = i.baseline(ctx, snap.Tender)
	}

	n := snap.BidderCount()
	if n == 0 {
		return i.degenerate(tenderID, threshold, "no bid records", risk.Evidence{}.With("bidder_count", 0)), nil
	}
	if bl == nil || bl.MeanBidderCount <= 0 {
		return i.degenerate(tenderID, threshold, "segment baseline unavailable",
			risk.Evidence{}.With("bidder_count", n)), nil
	}

	// Shortfall below the segment mean, linearly mapped: at or above the mean
	// scores 0, zero bidders would score 100.
	score := clamp01(1-float64(n)/bl.MeanBidderCount) * 100

	ev := risk.Evidence{}.
		With("bidder_count", n).
		With("segment_mean_bidder_count", round3(bl.MeanBidderCount)).
		With("segment", bl.SegmentKey).
		With("segment_sample", bl.SampleSize)
	return i.result(tenderID, score, threshold, risk.ConfidenceHigh, ev,
		"bidder count shortfall against the market segment average"), nil
}
