package baseline

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	domainerrors "github.com/procurewatch/risk-engine/internal/domain/errors"
	"github.com/procurewatch/risk-engine/internal/domain/risk"
)

type fakeStatsReader struct {
	mu    sync.Mutex
	calls int
	bl    *risk.MarketBaseline
	err   error
}

func (f *fakeStatsReader) ComputeSegmentStats(_ context.Context, segmentKey string, _ time.Duration) (*risk.MarketBaseline, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	bl := *f.bl
	bl.SegmentKey = segmentKey
	return &bl, nil
}

func (f *fakeStatsReader) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type mapCache struct {
	mu   sync.Mutex
	data map[string]string
}

func newMapCache() *mapCache {
	return &mapCache{data: make(map[string]string)}
}

func (m *mapCache) Get(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	if !ok {
		return "", domainerrors.NewNotFoundError("cache key")
	}
	return v, nil
}

func (m *mapCache) Set(_ context.Context, key string, value interface{}, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = string(value.([]byte))
	return nil
}

func testBaseline() *risk.MarketBaseline {
	return &risk.MarketBaseline{
		SampleSize:      80,
		MeanBidderCount: 5,
		MeanPriceRatio:  0.93,
	}
}

func TestGetBaselineComputesAndCaches(t *testing.T) {
	reader := &fakeStatsReader{bl: testBaseline()}
	provider := NewProvider(reader, newMapCache(), DefaultConfig(), zap.NewNop())

	bl, err := provider.GetBaseline(context.Background(), "452")
	require.NoError(t, err)
	assert.Equal(t, "452", bl.SegmentKey)
	assert.Equal(t, 80, bl.SampleSize)
	assert.False(t, bl.ComputedAt.IsZero())
	assert.Equal(t, 1, reader.callCount())

	// A second lookup is served from the cache.
	again, err := provider.GetBaseline(context.Background(), "452")
	require.NoError(t, err)
	assert.Equal(t, bl.MeanPriceRatio, again.MeanPriceRatio)
	assert.Equal(t, 1, reader.callCount())
}

func TestGetBaselineRecomputesWhenStale(t *testing.T) {
	reader := &fakeStatsReader{bl: testBaseline()}
	cfg := DefaultConfig()
	cfg.TTL = time.Hour
	provider := NewProvider(reader, newMapCache(), cfg, zap.NewNop())

	now := time.Now()
	provider.clock = func() time.Time { return now }
	_, err := provider.GetBaseline(context.Background(), "452")
	require.NoError(t, err)
	assert.Equal(t, 1, reader.callCount())

	// Within the TTL the cached copy is reused; past it the segment is
	// recomputed.
	provider.clock = func() time.Time { return now.Add(30 * time.Minute) }
	_, err = provider.GetBaseline(context.Background(), "452")
	require.NoError(t, err)
	assert.Equal(t, 1, reader.callCount())

	provider.clock = func() time.Time { return now.Add(2 * time.Hour) }
	_, err = provider.GetBaseline(context.Background(), "452")
	require.NoError(t, err)
	assert.Equal(t, 2, reader.callCount())
}

func TestGetBaselineWorksWithoutCache(t *testing.T) {
	reader := &fakeStatsReader{bl: testBaseline()}
	provider := NewProvider(reader, nil, DefaultConfig(), zap.NewNop())

	_, err := provider.GetBaseline(context.Background(), "452")
	require.NoError(t, err)
	_, err = provider.GetBaseline(context.Background(), "452")
	require.NoError(t, err)
	assert.Equal(t, 2, reader.callCount())
}

func TestGetBaselineReaderError(t *testing.T) {
	reader := &fakeStatsReader{err: domainerrors.NewInternalError("store down")}
	provider := NewProvider(reader, newMapCache(), DefaultConfig(), zap.NewNop())

	_, err := provider.GetBaseline(context.Background(), "452")
	require.Error(t, err)
}

func TestGetBaselineConcurrentLookupsSingleRecompute(t *testing.T) {
	reader := &fakeStatsReader{bl: testBaseline()}
	provider := NewProvider(reader, newMapCache(), DefaultConfig(), zap.NewNop())

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := provider.GetBaseline(context.Background(), "452")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, reader.callCount())
}

func TestEffectiveThreshold(t *testing.T) {
	provider := NewProvider(nil, nil, DefaultConfig(), zap.NewNop())

	healthy := &risk.MarketBaseline{SampleSize: 100, MeanBidderCount: 5}
	thin := &risk.MarketBaseline{SampleSize: 3, MeanBidderCount: 1}
	lowComp := &risk.MarketBaseline{SampleSize: 100, MeanBidderCount: 2.5}

	tests := []struct {
		name string
		bl   *risk.MarketBaseline
		mode risk.ThresholdMode
		want float64
	}{
		{"nil baseline leaves base", nil, risk.AdjustLowCompetition, 50},
		{"thin sample leaves base", thin, risk.AdjustLowCompetition, 50},
		{"no adjustment mode leaves base", healthy, risk.AdjustNone, 50},
		{"reference segment leaves base", healthy, risk.AdjustLowCompetition, 50},
		{"low competition lowers, bounded", lowComp, risk.AdjustLowCompetition, 37.5},
		{"concentration tolerance raises, bounded", lowComp, risk.AdjustConcentrationTolerance, 62.5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, provider.EffectiveThreshold(50, tt.bl, tt.mode), 0.001)
		})
	}
}

func TestEffectiveThresholdMonotonic(t *testing.T) {
	provider := NewProvider(nil, nil, DefaultConfig(), zap.NewNop())

	// Less competition must never raise a low-competition threshold.
	fewer := &risk.MarketBaseline{SampleSize: 100, MeanBidderCount: 4}
	more := &risk.MarketBaseline{SampleSize: 100, MeanBidderCount: 4.5}
	assert.Less(t,
		provider.EffectiveThreshold(50, fewer, risk.AdjustLowCompetition),
		provider.EffectiveThreshold(50, more, risk.AdjustLowCompetition))
}
