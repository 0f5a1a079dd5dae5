package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	domainerrors "github.com/procurewatch/risk-engine/internal/domain/errors"
	"github.com/procurewatch/risk-engine/internal/domain/risk"
	"github.com/procurewatch/risk-engine/internal/domain/tender"
	"github.com/procurewatch/risk-engine/internal/domain/values"
)

// TenderRepository is the read-only PostgreSQL view of the procurement store.
// It implements the snapshot, segment-statistics, and feature-vector reads the
// engine consumes; the ingest pipeline owns all writes.
type TenderRepository struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

func NewTenderRepository(pool *pgxpool.Pool, logger *zap.Logger) *TenderRepository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TenderRepository{pool: pool, logger: logger}
}

// GetSnapshot loads one tender with its bids and amendments.
func (r *TenderRepository) GetSnapshot(ctx context.Context, tenderID uuid.UUID) (*tender.Snapshot, error) {
	t, err := r.getTender(ctx, tenderID)
	if err != nil {
		return nil, err
	}
	bids, err := r.bidsFor(ctx, []uuid.UUID{tenderID})
	if err != nil {
		return nil, err
	}
	amendments, err := r.amendmentsFor(ctx, []uuid.UUID{tenderID})
	if err != nil {
		return nil, err
	}
	return &tender.Snapshot{
		Tender:     t,
		Bids:       bids[tenderID],
		Amendments: amendments[tenderID],
	}, nil
}

// ListInstitutionSnapshots returns the institution's awarded tenders in the
// trailing lookback window ending at until, each with bids and amendments.
func (r *TenderRepository) ListInstitutionSnapshots(ctx context.Context, institutionID uuid.UUID, until time.Time, lookback time.Duration) ([]*tender.Snapshot, error) {
	rows, err := r.pool.Query(ctx, tenderColumns+`
		FROM tenders
		WHERE institution_id = $1
		  AND status = 'awarded'
		  AND awarded_at > $2 AND awarded_at <= $3
		ORDER BY awarded_at`,
		institutionID, until.Add(-lookback), until)
	if err != nil {
		return nil, fmt.Errorf("querying institution tenders: %w", err)
	}
	defer rows.Close()

	var tenders []*tender.Tender
	for rows.Next() {
		t, err := scanTender(rows)
		if err != nil {
			return nil, err
		}
		tenders = append(tenders, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading institution tenders: %w", err)
	}
	if len(tenders) == 0 {
		return nil, nil
	}

	ids := make([]uuid.UUID, len(tenders))
	for i, t := range tenders {
		ids[i] = t.ID
	}
	bids, err := r.bidsFor(ctx, ids)
	if err != nil {
		return nil, err
	}
	amendments, err := r.amendmentsFor(ctx, ids)
	if err != nil {
		return nil, err
	}

	snapshots := make([]*tender.Snapshot, len(tenders))
	for i, t := range tenders {
		snapshots[i] = &tender.Snapshot{
			Tender:     t,
			Bids:       bids[t.ID],
			Amendments: amendments[t.ID],
		}
	}
	return snapshots, nil
}

// ComputeSegmentStats aggregates the market baseline inputs for one CPV
// segment over awarded tenders in the lookback window.
func (r *TenderRepository) ComputeSegmentStats(ctx context.Context, segmentKey string, lookback time.Duration) (*risk.MarketBaseline, error) {
	since := time.Now().Add(-lookback)

	row := r.pool.QueryRow(ctx, `
		WITH seg AS (
			SELECT t.estimated_value,
			       t.awarded_value / NULLIF(t.estimated_value, 0) AS price_ratio,
			       GREATEST(EXTRACT(EPOCH FROM (t.closes_at - t.published_at)) / 86400.0, 0) AS window_days,
			       CASE WHEN t.procedure IN ('negotiated_unpublished', 'direct_award') THEN 1.0 ELSE 0.0 END AS non_competitive,
			       (SELECT COUNT(DISTINCT b.bidder_id)
			          FROM bids b
			         WHERE b.tender_id = t.id AND NOT b.disqualified) AS bidder_count
			  FROM tenders t
			 WHERE left(t.cpv_code, char_length($1)) = $1
			   AND t.status = 'awarded'
			   AND t.awarded_at >= $2
		)
		SELECT COUNT(*),
		       COALESCE(AVG(bidder_count), 0),
		       COALESCE(STDDEV_SAMP(bidder_count), 0),
		       COALESCE(AVG(price_ratio), 0),
		       COALESCE(STDDEV_SAMP(price_ratio), 0),
		       COALESCE(AVG(window_days), 0),
		       COALESCE(AVG(non_competitive), 0),
		       COALESCE(AVG(estimated_value), 0)
		  FROM seg`,
		segmentKey, since)

	bl := &risk.MarketBaseline{SegmentKey: segmentKey}
	if err := row.Scan(
		&bl.SampleSize,
		&bl.MeanBidderCount,
		&bl.StdDevBidderCount,
		&bl.MeanPriceRatio,
		&bl.StdDevPriceRatio,
		&bl.MeanWindowDays,
		&bl.NonCompetitiveShare,
		&bl.MeanEstimatedValue,
	); err != nil {
		return nil, fmt.Errorf("aggregating segment %s: %w", segmentKey, err)
	}
	return bl, nil
}

// GetFeatureVector loads the precomputed feature vector the ingest pipeline
// stored for a tender.
func (r *TenderRepository) GetFeatureVector(ctx context.Context, tenderID uuid.UUID) ([]float64, error) {
	var features []float64
	err := r.pool.QueryRow(ctx,
		`SELECT features FROM tender_features WHERE tender_id = $1`,
		tenderID).Scan(&features)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domainerrors.ErrFeatureVector
	}
	if err != nil {
		return nil, fmt.Errorf("querying feature vector: %w", err)
	}
	return features, nil
}

const tenderColumns = `
	SELECT id, institution_id, title, cpv_code,
	       estimated_value, awarded_value, currency,
	       procedure, status, published_at, closes_at, awarded_at`

func (r *TenderRepository) getTender(ctx context.Context, tenderID uuid.UUID) (*tender.Tender, error) {
	rows, err := r.pool.Query(ctx, tenderColumns+` FROM tenders WHERE id = $1`, tenderID)
	if err != nil {
		return nil, fmt.Errorf("querying tender: %w", err)
	}
	defer rows.Close()
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("reading tender: %w", err)
		}
		return nil, domainerrors.ErrTenderNotFound
	}
	return scanTender(rows)
}

func scanTender(rows pgx.Rows) (*tender.Tender, error) {
	var (
		t              tender.Tender
		estimated      float64
		awarded        *float64
		currency       string
		procedure      string
		status         string
		awardedAt      *time.Time
	)
	if err := rows.Scan(
		&t.ID, &t.InstitutionID, &t.Title, &t.CPVCode,
		&estimated, &awarded, &currency,
		&procedure, &status, &t.PublishedAt, &t.ClosesAt, &awardedAt,
	); err != nil {
		return nil, fmt.Errorf("scanning tender: %w", err)
	}

	var err error
	if t.EstimatedValue, err = values.NewMoneyFromFloat(estimated, currency); err != nil {
		return nil, fmt.Errorf("tender %s estimated value: %w", t.ID, err)
	}
	if awarded != nil {
		if t.AwardedValue, err = values.NewMoneyFromFloat(*awarded, currency); err != nil {
			return nil, fmt.Errorf("tender %s awarded value: %w", t.ID, err)
		}
	} else {
		t.AwardedValue = values.Zero(currency)
	}
	t.Procedure = tender.ParseProcedure(procedure)
	t.Status = tender.ParseStatus(status)
	t.AwardedAt = awardedAt
	return &t, nil
}

func (r *TenderRepository) bidsFor(ctx context.Context, tenderIDs []uuid.UUID) (map[uuid.UUID][]tender.Bid, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, tender_id, bidder_id, amount, currency, submitted_at, rank, disqualified
		  FROM bids
		 WHERE tender_id = ANY($1)
		 ORDER BY tender_id, rank`,
		tenderIDs)
	if err != nil {
		return nil, fmt.Errorf("querying bids: %w", err)
	}
	defer rows.Close()

	byTender := make(map[uuid.UUID][]tender.Bid)
	for rows.Next() {
		var (
			b        tender.Bid
			amount   float64
			currency string
		)
		if err := rows.Scan(&b.ID, &b.TenderID, &b.BidderID, &amount, &currency,
			&b.SubmittedAt, &b.Rank, &b.Disqualified); err != nil {
			return nil, fmt.Errorf("scanning bid: %w", err)
		}
		if b.Amount, err = values.NewMoneyFromFloat(amount, currency); err != nil {
			return nil, fmt.Errorf("bid %s amount: %w", b.ID, err)
		}
		byTender[b.TenderID] = append(byTender[b.TenderID], b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading bids: %w", err)
	}
	return byTender, nil
}

func (r *TenderRepository) amendmentsFor(ctx context.Context, tenderIDs []uuid.UUID) (map[uuid.UUID][]tender.Amendment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, tender_id, kind, old_value, new_value, currency, modified_at
		  FROM amendments
		 WHERE tender_id = ANY($1)
		 ORDER BY tender_id, modified_at`,
		tenderIDs)
	if err != nil {
		return nil, fmt.Errorf("querying amendments: %w", err)
	}
	defer rows.Close()

	byTender := make(map[uuid.UUID][]tender.Amendment)
	for rows.Next() {
		var (
			a        tender.Amendment
			kind     string
			oldVal   float64
			newVal   float64
			currency string
		)
		if err := rows.Scan(&a.ID, &a.TenderID, &kind, &oldVal, &newVal, &currency, &a.ModifiedAt); err != nil {
			return nil, fmt.Errorf("scanning amendment: %w", err)
		}
		a.Kind = tender.AmendmentKind(kind)
		if a.OldValue, err = values.NewMoneyFromFloat(oldVal, currency); err != nil {
			return nil, fmt.Errorf("amendment %s old value: %w", a.ID, err)
		}
		if a.NewValue, err = values.NewMoneyFromFloat(newVal, currency); err != nil {
			return nil, fmt.Errorf("amendment %s new value: %w", a.ID, err)
		}
		byTender[a.TenderID] = append(byTender[a.TenderID], a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading amendments: %w", err)
	}
	return byTender, nil
}
