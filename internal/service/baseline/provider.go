package baseline

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"

	domainerrors "github.com/procurewatch/risk-engine/internal/domain/errors"
	"github.com/procurewatch/risk-engine/internal/domain/risk"
)

// SegmentStatsReader computes aggregate statistics over the tenders of one
// market segment. The repository implements it with aggregate queries.
type SegmentStatsReader interface {
	ComputeSegmentStats(ctx context.Context, segmentKey string, lookback time.Duration) (*risk.MarketBaseline, error)
}

// Cache is the slice of the cache client the provider needs.
type Cache interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
}

// Config carries the baseline freshness and adjustment tunables.
type Config struct {
	// TTL bounds how long a computed baseline is reused
	TTL time.Duration `koanf:"ttl"`
	// Lookback bounds the segment aggregation window
	Lookback time.Duration `koanf:"lookback"`
	// MinSample is the smallest segment sample adaptive thresholds will
	// trust; thinner segments fall back to the unadjusted base threshold
	MinSample int `koanf:"min_sample"`
	// ReferenceBidderCount anchors the adjustment: segments averaging this
	// many bidders get no adjustment
	ReferenceBidderCount float64 `koanf:"reference_bidder_count"`
	// MaxAdjustment bounds the threshold drift either way (0.25 = ±25%)
	MaxAdjustment float64 `koanf:"max_adjustment"`
}

// DefaultConfig returns the stock freshness and adjustment settings.
func DefaultConfig() Config {
	return Config{
		TTL:                  12 * time.Hour,
		Lookback:             3 * 365 * 24 * time.Hour,
		MinSample:            30,
		ReferenceBidderCount: 5,
		MaxAdjustment:        0.25,
	}
}

// Provider computes and caches per-segment market baselines and adapts
// indicator thresholds against them. The cache is read-mostly; a segment's
// recompute runs under a per-segment lock so it never races itself, while
// concurrent reads of a stale-but-present baseline stay safe.
type Provider struct {
	reader SegmentStatsReader
	cache  Cache
	cfg    Config
	logger *zap.Logger
	clock  func() time.Time

	mu       sync.Mutex
	segLocks map[string]*sync.Mutex

	onRecompute func()
}

// OnRecompute registers a callback fired after every successful segment
// recompute. Set it once during wiring, before the provider is shared.
func (p *Provider) OnRecompute(fn func()) {
	p.onRecompute = fn
}

func NewProvider(reader SegmentStatsReader, cache Cache, cfg Config, logger *zap.Logger) *Provider {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Provider{
		reader:   reader,
		cache:    cache,
		cfg:      cfg,
		logger:   logger,
		clock:    time.Now,
		segLocks: make(map[string]*sync.Mutex),
	}
}

// GetBaseline returns the segment baseline, reusing the cached copy while it
// is fresh and recomputing it under the segment's single-writer lock when not.
func (p *Provider) GetBaseline(ctx context.Context, segmentKey string) (*risk.MarketBaseline, error) {
	if bl := p.cached(ctx, segmentKey); bl != nil && bl.Fresh(p.cfg.TTL, p.clock()) {
		return bl, nil
	}

	lock := p.segmentLock(segmentKey)
	lock.Lock()
	defer lock.Unlock()

	// Another caller may have recomputed while we waited on the lock.
	if bl := p.cached(ctx, segmentKey); bl != nil && bl.Fresh(p.cfg.TTL, p.clock()) {
		return bl, nil
	}

	bl, err := p.reader.ComputeSegmentStats(ctx, segmentKey, p.cfg.Lookback)
	if err != nil {
		return nil, domainerrors.Wrap(err, "computing segment baseline")
	}
	if bl == nil {
		return nil, domainerrors.ErrBaselineNotFound
	}
	bl.SegmentKey = segmentKey
	bl.ComputedAt = p.clock()

	if p.cache != nil {
		payload, err := json.Marshal(bl)
		if err == nil {
			if err := p.cache.Set(ctx, cacheKey(segmentKey), payload, p.cfg.TTL); err != nil {
				p.logger.Warn("baseline cache write failed",
					zap.String("segment", segmentKey), zap.Error(err))
			}
		}
	}
	if p.onRecompute != nil {
		p.onRecompute()
	}
	p.logger.Debug("segment baseline recomputed",
		zap.String("segment", segmentKey),
		zap.Int("sample_size", bl.SampleSize),
		zap.Float64("mean_bidder_count", bl.MeanBidderCount))
	return bl, nil
}

// EffectiveThreshold adapts a base threshold against the baseline. The
// adjustment is monotonic in the segment's mean bidder count and bounded to
// ±MaxAdjustment of the base. A nil baseline or one built on too few
// observations leaves the base threshold untouched rather than fabricating
// statistics from thin data.
func (p *Provider) EffectiveThreshold(base float64, bl *risk.MarketBaseline, mode risk.ThresholdMode) float64 {
	if bl == nil || bl.SampleSize < p.cfg.MinSample || mode == risk.AdjustNone {
		return base
	}
	ratio := bl.MeanBidderCount / p.cfg.ReferenceBidderCount

	var factor float64
	switch mode {
	case risk.AdjustLowCompetition:
		// Fewer bidders than the reference lowers the threshold: the same
		// signal is more suspicious where competition is chronically thin.
		factor = ratio
	case risk.AdjustConcentrationTolerance:
		// Fewer bidders than the reference raises the threshold: structural
		// concentration is not collusion by itself.
		factor = 2 - ratio
	default:
		return base
	}

	lo, hi := 1-p.cfg.MaxAdjustment, 1+p.cfg.MaxAdjustment
	if factor < lo {
		factor = lo
	}
	if factor > hi {
		factor = hi
	}
	return base * factor
}

func (p *Provider) cached(ctx context.Context, segmentKey string) *risk.MarketBaseline {
	if p.cache == nil {
		return nil
	}
	raw, err := p.cache.Get(ctx, cacheKey(segmentKey))
	if err != nil {
		return nil
	}
	var bl risk.MarketBaseline
	if err := json.Unmarshal([]byte(raw), &bl); err != nil {
		p.logger.Warn("corrupt cached baseline discarded",
			zap.String("segment", segmentKey), zap.Error(err))
		return nil
	}
	return &bl
}

func (p *Provider) segmentLock(segmentKey string) *sync.Mutex {
	p.mu.Lock()
	defer p.mu.Unlock()
	lock, ok := p.segLocks[segmentKey]
	if !ok {
		lock = &sync.Mutex{}
		p.segLocks[segmentKey] = lock
	}
	return lock
}

func cacheKey(segmentKey string) string {
	return "baseline:" + segmentKey
}
