package indicators

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	domainerrors "github.com/procurewatch/risk-engine/internal/domain/errors"
	"github.com/procurewatch/risk-engine/internal/domain/risk"
	"github.com/procurewatch/risk-engine/internal/domain/tender"
	"github.com/procurewatch/risk-engine/internal/domain/values"
)

type fakeReader struct {
	snapshots  map[uuid.UUID]*tender.Snapshot
	history    []*tender.Snapshot
	historyErr error
}

func newFakeReader(snaps ...*tender.Snapshot) *fakeReader {
	r := &fakeReader{snapshots: make(map[uuid.UUID]*tender.Snapshot)}
	for _, s := range snaps {
		r.snapshots[s.Tender.ID] = s
	}
	return r
}

func (f *fakeReader) GetSnapshot(_ context.Context, tenderID uuid.UUID) (*tender.Snapshot, error) {
	s, ok := f.snapshots[tenderID]
	if !ok {
		return nil, domainerrors.ErrTenderNotFound
	}
	return s, nil
}

func (f *fakeReader) ListInstitutionSnapshots(_ context.Context, _ uuid.UUID, _ time.Time, _ time.Duration) ([]*tender.Snapshot, error) {
	return f.history, f.historyErr
}

type fakeBaselines struct {
	bl *risk.MarketBaseline
}

func (f *fakeBaselines) GetBaseline(_ context.Context, _ string) (*risk.MarketBaseline, error) {
	if f.bl == nil {
		return nil, domainerrors.ErrBaselineNotFound
	}
	return f.bl, nil
}

func (f *fakeBaselines) EffectiveThreshold(base float64, _ *risk.MarketBaseline, _ risk.ThresholdMode) float64 {
	return base
}

func testDeps(reader TenderReader, bl *risk.MarketBaseline) Deps {
	return Deps{
		Reader:    reader,
		Baselines: &fakeBaselines{bl: bl},
		Logger:    zap.NewNop(),
	}
}

func testCatalogConfig() CatalogConfig {
	cfg := DefaultCatalogConfig()
	cfg.MinHistorySample = 3
	return cfg
}

func eur(amount float64) values.Money {
	return values.MustNewMoneyFromFloat(amount, values.EUR)
}

// monday is a plain weekday outside any holiday stretch.
var monday = time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

func makeTender(estimated float64) *tender.Tender {
	return &tender.Tender{
		ID:             uuid.New(),
		InstitutionID:  uuid.New(),
		Title:          "Road maintenance services",
		CPVCode:        "45233141",
		EstimatedValue: eur(estimated),
		AwardedValue:   values.Zero(values.EUR),
		Procedure:      tender.ProcedureOpen,
		Status:         tender.StatusAwarded,
		PublishedAt:    monday.AddDate(0, 0, -40),
		ClosesAt:       monday.AddDate(0, 0, -5),
	}
}

func makeBid(t *tender.Tender, bidder uuid.UUID, amount float64, rank int) tender.Bid {
	return tender.Bid{
		ID:          uuid.New(),
		TenderID:    t.ID,
		BidderID:    bidder,
		Amount:      eur(amount),
		SubmittedAt: t.ClosesAt.Add(-24 * time.Hour),
		Rank:        rank,
	}
}

func snapFor(t *tender.Tender, bids ...tender.Bid) *tender.Snapshot {
	return &tender.Snapshot{Tender: t, Bids: bids}
}

// historyWon builds one awarded history snapshot where winner beat others.
func historyWon(institutionID, winner uuid.UUID, amount float64, others ...uuid.UUID) *tender.Snapshot {
	t := makeTender(amount * 1.1)
	t.InstitutionID = institutionID
	bids := []tender.Bid{makeBid(t, winner, amount, 1)}
	for i, o := range others {
		bids = append(bids, makeBid(t, o, amount*(1.05+0.05*float64(i)), i+2))
	}
	return snapFor(t, bids...)
}
