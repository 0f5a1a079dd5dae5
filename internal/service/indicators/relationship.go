package indicators

import (
	"context"

	"github.com/google/uuid"

	"github.com/procurewatch/risk-engine/internal/domain/risk"
)

// InstitutionWinRate measures how often the current winner has been winning at
// this institution over the trailing window. A supplier that wins most of what
// an institution awards points at a captured relationship.
type InstitutionWinRate struct {
	base
}

func NewInstitutionWinRate(deps Deps, cfg CatalogConfig) *InstitutionWinRate {
	return &InstitutionWinRate{
		base: newBase("institution_win_rate", risk.CategoryRelationship, 1.2, 60, risk.AdjustNone, deps, cfg),
	}
}

func (i *InstitutionWinRate) Calculate(ctx context.Context, tenderID uuid.UUID) (*risk.IndicatorResult, error) {
	snap, err := i.snapshot(ctx, tenderID)
	if err != nil {
		return nil, err
	}
	threshold := i.baseThreshold

	win := snap.WinningBid()
	if win == nil {
		return i.degenerate(tenderID, threshold, "no winning bid", risk.Evidence{}), nil
	}
	history, err := i.deps.Reader.ListInstitutionSnapshots(ctx, snap.Tender.InstitutionID, snap.Tender.PublishedAt, i.cfg.LookbackWindow)
	if err != nil || len(history) < i.cfg.MinHistorySample {
		return i.degenerate(tenderID, threshold, "institution award history too thin",
			risk.Evidence{}.With("history_sample", len(history))), nil
	}

	awarded, wins := 0, 0
	for _, h := range history {
		prior := h.WinningBid()
		if prior == nil {
			continue
		}
		awarded++
		if prior.BidderID == win.BidderID {
			wins++
		}
	}
	if awarded < i.cfg.MinHistorySample {
		return i.degenerate(tenderID, threshold, "too few awarded tenders in history",
			risk.Evidence{}.With("awarded_sample", awarded)), nil
	}

	rate := float64(wins) / float64(awarded)
	score := rate * 100

	ev := risk.Evidence{}.
		With("winner_id", win.BidderID.String()).
		With("wins", wins).
		With("awarded_sample", awarded).
		With("win_rate", round3(rate))
	return i.result(tenderID, score, threshold, i.confidenceFor(awarded), ev,
		"current winner's trailing win rate at the procuring institution"), nil
}

// RepeatCoBidding measures how similar this tender's bidder set is to the
// bidder sets of the institution's earlier tenders (Jaccard similarity). The
// same cartel showing up together again and again is a bid-rotation footprint.
type RepeatCoBidding struct {
	base
}

func NewRepeatCoBidding(deps Deps, cfg CatalogConfig) *RepeatCoBidding {
	return &RepeatCoBidding{
		base: newBase("repeat_co_bidding", risk.CategoryRelationship, 1.0, 65, risk.AdjustNone, deps, cfg),
	}
}

func (i *RepeatCoBidding) Calculate(ctx context.Context, tenderID uuid.UUID) (*risk.IndicatorResult, error) {
	snap, err := i.snapshot(ctx, tenderID)
	if err != nil {
		return nil, err
	}
	threshold := i.baseThreshold

	current := snap.BidderSet()
	if len(current) < 2 {
		return i.degenerate(tenderID, threshold, "co-bidding needs at least two bidders",
			risk.Evidence{}.With("bidder_count", len(current))), nil
	}
	history, err := i.deps.Reader.ListInstitutionSnapshots(ctx, snap.Tender.InstitutionID, snap.Tender.PublishedAt, i.cfg.LookbackWindow)
	if err != nil {
		return i.degenerate(tenderID, threshold, "institution history unavailable", risk.Evidence{}), nil
	}

	compared := 0
	similaritySum := 0.0
	for _, h := range history {
		prior := h.BidderSet()
		if len(prior) < 2 {
			continue
		}
		intersection := 0
		for id := range current {
			if _, ok := prior[id]; ok {
				intersection++
			}
		}
		union := len(current) + len(prior) - intersection
		similaritySum += jaccard(intersection, union)
		compared++
	}
	if compared < i.cfg.MinHistorySample {
		return i.degenerate(tenderID, threshold, "too few comparable multi-bidder tenders",
			risk.Evidence{}.With("compared_tenders", compared)), nil
	}

	meanSimilarity := similaritySum / float64(compared)
	score := meanSimilarity * 100

	ev := risk.Evidence{}.
		With("mean_jaccard", round3(meanSimilarity)).
		With("compared_tenders", compared).
		With("bidder_count", len(current))
	return i.result(tenderID, score, threshold, i.confidenceFor(compared), ev,
		"recurrence of the same bidder set across the institution's tenders"), nil
}
