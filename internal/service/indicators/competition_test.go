package indicators

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/procurewatch/risk-engine/internal/domain/risk"
	"github.com/procurewatch/risk-engine/internal/domain/tender"
)

func TestSingleBidder(t *testing.T) {
	tests := []struct {
		name          string
		bidders       int
		wantScore     float64
		wantTriggered bool
	}{
		{"one bidder scores the ceiling", 1, 100, true},
		{"two bidders score below threshold", 2, 30, false},
		{"healthy competition scores zero", 5, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tn := makeTender(100000)
			snap := snapFor(tn)
			for i := 0; i < tt.bidders; i++ {
				snap.Bids = append(snap.Bids, makeBid(tn, uuid.New(), 90000+float64(i)*1000, i+1))
			}
			ind := NewSingleBidder(testDeps(newFakeReader(snap), nil), testCatalogConfig())

			res, err := ind.Calculate(context.Background(), tn.ID)
			require.NoError(t, err)
			assert.Equal(t, tt.wantScore, res.Score)
			assert.Equal(t, tt.wantTriggered, res.Triggered)
			assert.False(t, res.Degenerate)

			count, ok := res.Evidence.Get("bidder_count")
			require.True(t, ok)
			assert.Equal(t, tt.bidders, count)
		})
	}
}

func TestSingleBidderNoBidsIsDegenerate(t *testing.T) {
	tn := makeTender(100000)
	ind := NewSingleBidder(testDeps(newFakeReader(snapFor(tn)), nil), testCatalogConfig())

	res, err := ind.Calculate(context.Background(), tn.ID)
	require.NoError(t, err)
	assert.True(t, res.Degenerate)
	assert.False(t, res.Triggered)
	assert.Equal(t, 0.0, res.Score)
	assert.Equal(t, risk.ConfidenceLow, res.Confidence)
}

func TestSingleBidderDisqualificationsReduceContention(t *testing.T) {
	tn := makeTender(100000)
	survivor := uuid.New()
	snap := snapFor(tn,
		makeBid(tn, survivor, 95000, 1),
		makeBid(tn, uuid.New(), 90000, 0),
		makeBid(tn, uuid.New(), 91000, 0),
	)
	snap.Bids[1].Disqualified = true
	snap.Bids[2].Disqualified = true
	ind := NewSingleBidder(testDeps(newFakeReader(snap), nil), testCatalogConfig())

	res, err := ind.Calculate(context.Background(), tn.ID)
	require.NoError(t, err)
	assert.Equal(t, 100.0, res.Score)
	assert.True(t, res.Triggered)
}

func TestHHIConcentration(t *testing.T) {
	institution := uuid.New()
	dominant := uuid.New()

	tn := makeTender(100000)
	tn.InstitutionID = institution
	snap := snapFor(tn, makeBid(tn, dominant, 95000, 1))

	// Every past award went to the same supplier: HHI 10000, score 100.
	var history []*tender.Snapshot
	for i := 0; i < 5; i++ {
		history = append(history, historyWon(institution, dominant, 80000, uuid.New()))
	}
	reader := newFakeReader(snap)
	reader.history = history
	ind := NewHHIConcentration(testDeps(reader, nil), testCatalogConfig())

	res, err := ind.Calculate(context.Background(), tn.ID)
	require.NoError(t, err)
	assert.Equal(t, 100.0, res.Score)
	assert.True(t, res.Triggered)

	hhi, ok := res.Evidence.Get("hhi")
	require.True(t, ok)
	assert.Equal(t, 10000, hhi)
}

func TestHHIConcentrationThinHistoryIsDegenerate(t *testing.T) {
	tn := makeTender(100000)
	reader := newFakeReader(snapFor(tn, makeBid(tn, uuid.New(), 95000, 1)))
	reader.history = []*tender.Snapshot{historyWon(tn.InstitutionID, uuid.New(), 50000)}
	ind := NewHHIConcentration(testDeps(reader, nil), testCatalogConfig())

	res, err := ind.Calculate(context.Background(), tn.ID)
	require.NoError(t, err)
	assert.True(t, res.Degenerate)
	assert.False(t, res.Triggered)
}

func TestBidderEntropyCliqueScoresHigh(t *testing.T) {
	institution := uuid.New()
	clique := uuid.New()
	rival := uuid.New()

	tn := makeTender(100000)
	tn.InstitutionID = institution
	snap := snapFor(tn, makeBid(tn, clique, 95000, 1))

	// One bidder supplies nearly every offer in history.
	var history []*tender.Snapshot
	for i := 0; i < 6; i++ {
		history = append(history, historyWon(institution, clique, 80000))
	}
	history = append(history, historyWon(institution, rival, 70000))
	reader := newFakeReader(snap)
	reader.history = history
	ind := NewBidderEntropy(testDeps(reader, nil), testCatalogConfig())

	res, err := ind.Calculate(context.Background(), tn.ID)
	require.NoError(t, err)
	assert.Greater(t, res.Score, 40.0)
	assert.False(t, res.Degenerate)
}

func TestBidderEntropyEvenParticipationScoresLow(t *testing.T) {
	institution := uuid.New()
	tn := makeTender(100000)
	tn.InstitutionID = institution
	snap := snapFor(tn, makeBid(tn, uuid.New(), 95000, 1))

	var history []*tender.Snapshot
	for i := 0; i < 6; i++ {
		history = append(history, historyWon(institution, uuid.New(), 80000))
	}
	reader := newFakeReader(snap)
	reader.history = history
	ind := NewBidderEntropy(testDeps(reader, nil), testCatalogConfig())

	res, err := ind.Calculate(context.Background(), tn.ID)
	require.NoError(t, err)
	assert.Less(t, res.Score, 10.0)
	assert.False(t, res.Triggered)
}

func TestLowBidderCount(t *testing.T) {
	bl := &risk.MarketBaseline{
		SegmentKey:      "452",
		SampleSize:      100,
		MeanBidderCount: 6,
	}

	tests := []struct {
		name      string
		bidders   int
		wantScore float64
	}{
		{"well below the segment mean", 1, (1 - 1.0/6.0) * 100},
		{"half the segment mean", 3, 50},
		{"at the segment mean", 6, 0},
		{"above the segment mean", 9, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tn := makeTender(100000)
			snap := snapFor(tn)
			for i := 0; i < tt.bidders; i++ {
				snap.Bids = append(snap.Bids, makeBid(tn, uuid.New(), 90000+float64(i)*500, i+1))
			}
			ind := NewLowBidderCount(testDeps(newFakeReader(snap), bl), testCatalogConfig())

			res, err := ind.Calculate(context.Background(), tn.ID)
			require.NoError(t, err)
			assert.InDelta(t, tt.wantScore, res.Score, 0.001)
		})
	}
}

func TestLowBidderCountWithoutBaselineIsDegenerate(t *testing.T) {
	tn := makeTender(100000)
	snap := snapFor(tn, makeBid(tn, uuid.New(), 90000, 1))
	ind := NewLowBidderCount(testDeps(newFakeReader(snap), nil), testCatalogConfig())

	res, err := ind.Calculate(context.Background(), tn.ID)
	require.NoError(t, err)
	assert.True(t, res.Degenerate)
}

func TestCalculateIsReproducible(t *testing.T) {
	tn := makeTender(100000)
	snap := snapFor(tn, makeBid(tn, uuid.New(), 90000, 1))
	ind := NewSingleBidder(testDeps(newFakeReader(snap), nil), testCatalogConfig())

	first, err := ind.Calculate(context.Background(), tn.ID)
	require.NoError(t, err)
	second, err := ind.Calculate(context.Background(), tn.ID)
	require.NoError(t, err)

	// An unchanged snapshot yields an identical result, evidence included.
	assert.Equal(t, first, second)
}
