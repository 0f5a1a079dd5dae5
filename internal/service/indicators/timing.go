package indicators

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/procurewatch/risk-engine/internal/domain/risk"
)

// ShortSubmissionWindow flags tenders whose bid preparation window is squeezed
// below the statutory minimum, a classic way to keep outsiders from competing.
type ShortSubmissionWindow struct {
	base
}

func NewShortSubmissionWindow(deps Deps, cfg CatalogConfig) *ShortSubmissionWindow {
	return &ShortSubmissionWindow{
		base: newBase("short_submission_window", risk.CategoryTiming, 1.1, 40, risk.AdjustLowCompetition, deps, cfg),
	}
}

func (i *ShortSubmissionWindow) Calculate(ctx context.Context, tenderID uuid.UUID) (*risk.IndicatorResult, error) {
	snap, err := i.snapshot(ctx, tenderID)
	if err != nil {
		return nil, err
	}
	threshold, bl := i.effectiveThreshold(ctx, snap.Tender)

	days := snap.Tender.SubmissionWindowDays()
	if days <= 0 {
		return i.degenerate(tenderID, threshold, "publication or closing date missing", risk.Evidence{}), nil
	}

	// The floor is the statutory minimum, tightened toward the segment's own
	// typical window when that is longer.
	floor := i.cfg.StatutoryWindowDays
	if bl == nil {
		bl = i.baseline(ctx, snap.Tender)
	}
	if bl != nil && bl.MeanWindowDays > floor {
		floor = bl.MeanWindowDays
	}

	score := clamp01((floor-days)/floor) * 100

	ev := risk.Evidence{}.
		With("window_days", round3(days)).
		With("statutory_minimum_days", i.cfg.StatutoryWindowDays)
	if bl != nil {
		ev = ev.With("segment_mean_window_days", round3(bl.MeanWindowDays))
	}
	return i.result(tenderID, score, threshold, risk.ConfidenceHigh, ev,
		"submission window length against the statutory and segment minimum"), nil
}

// SubmissionClustering flags bids that arrive bunched inside a short window,
// a footprint of coordinated submission.
type SubmissionClustering struct {
	base

	window time.Duration
}

func NewSubmissionClustering(deps Deps, cfg CatalogConfig) *SubmissionClustering {
	return &SubmissionClustering{
		base:   newBase("submission_clustering", risk.CategoryTiming, 0.9, 75, risk.AdjustNone, deps, cfg),
		window: time.Hour,
	}
}

func (i *SubmissionClustering) Calculate(ctx context.Context, tenderID uuid.UUID) (*risk.IndicatorResult, error) {
	snap, err := i.snapshot(ctx, tenderID)
	if err != nil {
		return nil, err
	}
	threshold := i.baseThreshold

	active := snap.ActiveBids()
	if len(active) < 3 {
		return i.degenerate(tenderID, threshold, "clustering needs at least three timestamped bids",
			risk.Evidence{}.With("bid_count", len(active))), nil
	}
	times := make([]time.Time, 0, len(active))
	for _, b := range active {
		if !b.SubmittedAt.IsZero() {
			times = append(times, b.SubmittedAt)
		}
	}
	if len(times) < 3 {
		return i.degenerate(tenderID, threshold, "submission timestamps missing",
			risk.Evidence{}.With("timestamped_bids", len(times))), nil
	}
	sort.Slice(times, func(a, b int) bool { return times[a].Before(times[b]) })

	// Largest number of bids inside any sliding one-hour window.
	maxInWindow := 1
	lo := 0
	for hi := range times {
		for times[hi].Sub(times[lo]) > i.window {
			lo++
		}
		if n := hi - lo + 1; n > maxInWindow {
			maxInWindow = n
		}
	}
	score := float64(maxInWindow) / float64(len(times)) * 100

	ev := risk.Evidence{}.
		With("max_bids_in_window", maxInWindow).
		With("window_minutes", int(i.window.Minutes())).
		With("timestamped_bids", len(times))
	return i.result(tenderID, score, threshold, risk.ConfidenceHigh, ev,
		"share of bids submitted inside one short window"), nil
}

// QuietPeriodPublication flags notices published when nobody is watching:
// weekends and the end-of-year holiday stretch.
type QuietPeriodPublication struct {
	base
}

func NewQuietPeriodPublication(deps Deps, cfg CatalogConfig) *QuietPeriodPublication {
	return &QuietPeriodPublication{
		base: newBase("quiet_period_publication", risk.CategoryTiming, 0.8, 70, risk.AdjustNone, deps, cfg),
	}
}

func (i *QuietPeriodPublication) Calculate(ctx context.Context, tenderID uuid.UUID) (*risk.IndicatorResult, error) {
	snap, err := i.snapshot(ctx, tenderID)
	if err != nil {
		return nil, err
	}
	threshold := i.baseThreshold

	pub := snap.Tender.PublishedAt
	if pub.IsZero() {
		return i.degenerate(tenderID, threshold, "publication date missing", risk.Evidence{}), nil
	}

	weekend := pub.Weekday() == time.Saturday || pub.Weekday() == time.Sunday
	holiday := inHolidayStretch(pub)

	var score float64
	switch {
	case holiday:
		score = 90
	case weekend:
		score = 75
	}

	ev := risk.Evidence{}.
		With("published_at", pub.Format("2006-01-02")).
		With("weekday", pub.Weekday().String()).
		With("weekend", weekend).
		With("holiday_period", holiday)
	return i.result(tenderID, score, threshold, risk.ConfidenceHigh, ev,
		"publication timed into a low-attention period"), nil
}

// inHolidayStretch covers December 20 through January 5.
func inHolidayStretch(t time.Time) bool {
	switch t.Month() {
	case time.December:
		return t.Day() >= 20
	case time.January:
		return t.Day() <= 5
	default:
		return false
	}
}
