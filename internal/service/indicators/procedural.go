package indicators

import (
	"context"
	"math"

	"github.com/google/uuid"

	"github.com/procurewatch/risk-engine/internal/domain/risk"
	"github.com/procurewatch/risk-engine/internal/domain/tender"
)

// NonCompetitiveProcedureRate compares how often the institution reaches for
// non-competitive procedures against the segment baseline.
type NonCompetitiveProcedureRate struct {
	base
}

func NewNonCompetitiveProcedureRate(deps Deps, cfg CatalogConfig) *NonCompetitiveProcedureRate {
	return &NonCompetitiveProcedureRate{
		base: newBase("non_competitive_rate", risk.CategoryProcedural, 1.1, 50, risk.AdjustNone, deps, cfg),
	}
}

func (i *NonCompetitiveProcedureRate) Calculate(ctx context.Context, tenderID uuid.UUID) (*risk.IndicatorResult, error) {
	snap, err := i.snapshot(ctx, tenderID)
	if err != nil {
		return nil, err
	}
	threshold := i.baseThreshold

	history, err := i.deps.Reader.ListInstitutionSnapshots(ctx, snap.Tender.InstitutionID, snap.Tender.PublishedAt, i.cfg.LookbackWindow)
	if err != nil || len(history) < i.cfg.MinHistorySample {
		return i.degenerate(tenderID, threshold, "institution procedure history too thin",
			risk.Evidence{}.With("history_sample", len(history))), nil
	}

	nonCompetitive := 0
	for _, h := range history {
		if !h.Tender.Procedure.IsCompetitive() {
			nonCompetitive++
		}
	}
	if !snap.Tender.Procedure.IsCompetitive() {
		nonCompetitive++
	}
	total := len(history) + 1
	instRate := float64(nonCompetitive) / float64(total)

	segRate := 0.05
	if bl := i.baseline(ctx, snap.Tender); bl != nil && bl.NonCompetitiveShare > segRate {
		segRate = bl.NonCompetitiveShare
	}

	// Four times the segment rate maps to the ceiling; monotone in the
	// institution's own rate.
	score := math.Min(100, instRate/segRate*25)

	ev := risk.Evidence{}.
		With("institution_rate", round3(instRate)).
		With("segment_rate", round3(segRate)).
		With("non_competitive_count", nonCompetitive).
		With("history_sample", total).
		With("current_procedure", snap.Tender.Procedure.String())
	return i.result(tenderID, score, threshold, i.confidenceFor(total), ev,
		"institution's non-competitive procedure rate against the segment baseline"), nil
}

// ContractModificationPattern scores post-award amendments: how many there
// were and how much contract value they added. Winning low and recovering the
// margin through modifications is a classic pattern.
type ContractModificationPattern struct {
	base
}

func NewContractModificationPattern(deps Deps, cfg CatalogConfig) *ContractModificationPattern {
	return &ContractModificationPattern{
		base: newBase("contract_modification", risk.CategoryProcedural, 1.0, 50, risk.AdjustNone, deps, cfg),
	}
}

func (i *ContractModificationPattern) Calculate(ctx context.Context, tenderID uuid.UUID) (*risk.IndicatorResult, error) {
	snap, err := i.snapshot(ctx, tenderID)
	if err != nil {
		return nil, err
	}
	threshold := i.baseThreshold

	if snap.Tender.Status != tender.StatusAwarded || len(snap.Amendments) == 0 {
		return i.degenerate(tenderID, threshold, "no post-award amendments recorded",
			risk.Evidence{}.With("amendment_count", len(snap.Amendments))), nil
	}

	valueChanges := 0
	relIncrease := 0.0
	for _, a := range snap.Amendments {
		if a.Kind != tender.AmendmentValueChange {
			continue
		}
		valueChanges++
		if a.OldValue.IsPositive() {
			if r, ok := a.NewValue.RatioTo(a.OldValue); ok && r > 1 {
				relIncrease += r - 1
			}
		}
	}

	// Each value amendment adds 20 points; a cumulative 50% value increase
	// alone reaches the ceiling.
	score := math.Min(100, float64(valueChanges)*20+relIncrease*200)

	ev := risk.Evidence{}.
		With("amendment_count", len(snap.Amendments)).
		With("value_change_count", valueChanges).
		With("cumulative_value_increase", round3(relIncrease))
	return i.result(tenderID, score, threshold, risk.ConfidenceHigh, ev,
		"count and magnitude of post-award contract value modifications"), nil
}

// DisqualificationRate measures how aggressively the institution disqualifies
// bids. Routinely clearing the field by disqualification leaves the preferred
// supplier alone in contention.
type DisqualificationRate struct {
	base
}

func NewDisqualificationRate(deps Deps, cfg CatalogConfig) *DisqualificationRate {
	return &DisqualificationRate{
		base: newBase("disqualification_rate", risk.CategoryProcedural, 0.9, 55, risk.AdjustNone, deps, cfg),
	}
}

func (i *DisqualificationRate) Calculate(ctx context.Context, tenderID uuid.UUID) (*risk.IndicatorResult, error) {
	snap, err := i.snapshot(ctx, tenderID)
	if err != nil {
		return nil, err
	}
	threshold := i.baseThreshold

	history, err := i.deps.Reader.ListInstitutionSnapshots(ctx, snap.Tender.InstitutionID, snap.Tender.PublishedAt, i.cfg.LookbackWindow)
	if err != nil {
		history = nil
	}

	totalBids := len(snap.Bids)
	disqualified := snap.DisqualifiedCount()
	for _, h := range history {
		totalBids += len(h.Bids)
		disqualified += h.DisqualifiedCount()
	}
	if totalBids < i.cfg.MinHistorySample {
		return i.degenerate(tenderID, threshold, "too few bids to judge disqualification practice",
			risk.Evidence{}.With("total_bids", totalBids)), nil
	}

	share := float64(disqualified) / float64(totalBids)
	// Half of all bids disqualified maps to the ceiling.
	score := math.Min(100, share*200)

	ev := risk.Evidence{}.
		With("disqualified_bids", disqualified).
		With("total_bids", totalBids).
		With("disqualification_share", round3(share))
	return i.result(tenderID, score, threshold, i.confidenceFor(totalBids), ev,
		"institution's bid disqualification share across recent tenders"), nil
}
