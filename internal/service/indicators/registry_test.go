package indicators

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	domainerrors "github.com/procurewatch/risk-engine/internal/domain/errors"
	"github.com/procurewatch/risk-engine/internal/domain/risk"
)

type stubIndicator struct {
	name     string
	category risk.Category
	weight   float64
	calc     func(ctx context.Context, tenderID uuid.UUID) (*risk.IndicatorResult, error)
}

func (s *stubIndicator) Name() string            { return s.name }
func (s *stubIndicator) Category() risk.Category { return s.category }
func (s *stubIndicator) Weight() float64         { return s.weight }
func (s *stubIndicator) BaseThreshold() float64  { return 50 }
func (s *stubIndicator) Calculate(ctx context.Context, tenderID uuid.UUID) (*risk.IndicatorResult, error) {
	return s.calc(ctx, tenderID)
}

func okStub(name string, cat risk.Category, score float64) *stubIndicator {
	return &stubIndicator{
		name:     name,
		category: cat,
		weight:   1,
		calc: func(_ context.Context, tenderID uuid.UUID) (*risk.IndicatorResult, error) {
			return &risk.IndicatorResult{
				TenderID: tenderID,
				Name:     name,
				Category: cat,
				Score:    score,
			}, nil
		},
	}
}

func TestRegistryRejectsDuplicates(t *testing.T) {
	r := NewRegistry(zap.NewNop())
	require.NoError(t, r.Register(okStub("a", risk.CategoryPrice, 10)))

	err := r.Register(okStub("a", risk.CategoryPrice, 20))
	require.Error(t, err)
	assert.True(t, domainerrors.IsType(err, domainerrors.ErrorTypeConfiguration))
}

func TestRegistryRejectsInvalidWeight(t *testing.T) {
	r := NewRegistry(zap.NewNop())
	bad := okStub("b", risk.CategoryPrice, 10)
	bad.weight = 0

	err := r.Register(bad)
	require.Error(t, err)
	assert.True(t, domainerrors.IsType(err, domainerrors.ErrorTypeConfiguration))
}

func TestRegistryRunAllEvaluatesEachOnce(t *testing.T) {
	r := NewRegistry(zap.NewNop())
	require.NoError(t, r.Register(okStub("a", risk.CategoryPrice, 10)))
	require.NoError(t, r.Register(okStub("b", risk.CategoryTiming, 20)))
	require.NoError(t, r.Register(okStub("c", risk.CategoryCompetition, 30)))

	results, err := r.RunAll(context.Background(), uuid.New())
	require.NoError(t, err)
	require.Len(t, results, 3)

	seen := make(map[string]int)
	for _, res := range results {
		seen[res.Name]++
	}
	assert.Equal(t, map[string]int{"a": 1, "b": 1, "c": 1}, seen)
}

func TestRegistryIsolatesFailures(t *testing.T) {
	r := NewRegistry(zap.NewNop())
	require.NoError(t, r.Register(okStub("healthy", risk.CategoryPrice, 42)))
	require.NoError(t, r.Register(&stubIndicator{
		name: "failing", category: risk.CategoryTiming, weight: 1,
		calc: func(_ context.Context, _ uuid.UUID) (*risk.IndicatorResult, error) {
			return nil, domainerrors.NewInternalError("store exploded")
		},
	}))
	require.NoError(t, r.Register(&stubIndicator{
		name: "panicking", category: risk.CategoryProcedural, weight: 1,
		calc: func(_ context.Context, _ uuid.UUID) (*risk.IndicatorResult, error) {
			panic("boom")
		},
	}))

	results, err := r.RunAll(context.Background(), uuid.New())
	require.NoError(t, err)
	require.Len(t, results, 3)

	byName := make(map[string]risk.IndicatorResult)
	for _, res := range results {
		byName[res.Name] = res
	}
	assert.Equal(t, 42.0, byName["healthy"].Score)
	assert.False(t, byName["healthy"].Degenerate)

	for _, name := range []string{"failing", "panicking"} {
		res := byName[name]
		assert.True(t, res.Degenerate, name)
		assert.False(t, res.Triggered, name)
		assert.Equal(t, risk.ConfidenceLow, res.Confidence, name)
	}
}

func TestRegistryTimeoutReturnsPartialResults(t *testing.T) {
	r := NewRegistry(zap.NewNop())
	require.NoError(t, r.Register(okStub("fast", risk.CategoryPrice, 10)))
	require.NoError(t, r.Register(&stubIndicator{
		name: "slow", category: risk.CategoryTiming, weight: 1,
		calc: func(_ context.Context, tenderID uuid.UUID) (*risk.IndicatorResult, error) {
			time.Sleep(5 * time.Second)
			return &risk.IndicatorResult{TenderID: tenderID, Name: "slow"}, nil
		},
	}))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	results, err := r.RunAll(ctx, uuid.New())
	require.Error(t, err)
	assert.True(t, domainerrors.IsType(err, domainerrors.ErrorTypeTimeout))

	// The fast indicator's result survives the cut.
	names := make([]string, 0, len(results))
	for _, res := range results {
		names = append(names, res.Name)
	}
	assert.Contains(t, names, "fast")
}

func TestRegistryRunCategory(t *testing.T) {
	r := NewRegistry(zap.NewNop())
	require.NoError(t, r.Register(okStub("p1", risk.CategoryPrice, 10)))
	require.NoError(t, r.Register(okStub("p2", risk.CategoryPrice, 20)))
	require.NoError(t, r.Register(okStub("t1", risk.CategoryTiming, 30)))

	results, err := r.RunCategory(context.Background(), uuid.New(), risk.CategoryPrice)
	require.NoError(t, err)
	require.Len(t, results, 2)
	for _, res := range results {
		assert.Equal(t, risk.CategoryPrice, res.Category)
	}
}

func TestRegistryRunSingleUnknownName(t *testing.T) {
	r := NewRegistry(zap.NewNop())
	_, err := r.RunSingle(context.Background(), "missing", uuid.New())
	require.Error(t, err)
	assert.True(t, domainerrors.IsType(err, domainerrors.ErrorTypeNotFound))
}

func TestNewDefaultRegistryHoldsFullCatalog(t *testing.T) {
	r, err := NewDefaultRegistry(testDeps(newFakeReader(), nil), DefaultCatalogConfig(), zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, 16, r.Len())

	// Every category is represented.
	byCat := make(map[risk.Category]bool)
	for _, name := range r.Names() {
		res, err := r.RunSingle(context.Background(), name, uuid.New())
		require.NoError(t, err)
		byCat[res.Category] = true
	}
	for _, cat := range risk.Categories() {
		assert.True(t, byCat[cat], string(cat))
	}
}

func TestCatalogOverridesApply(t *testing.T) {
	cfg := DefaultCatalogConfig()
	cfg.Overrides = map[string]Settings{
		"single_bidder": {Weight: 2.5, BaseThreshold: 80},
	}
	ind := NewSingleBidder(testDeps(newFakeReader(), nil), cfg)
	assert.Equal(t, 2.5, ind.Weight())
	assert.Equal(t, 80.0, ind.BaseThreshold())
}

func TestRegistryRunAllMissingTenderSurfacesNotFound(t *testing.T) {
	r, err := NewDefaultRegistry(testDeps(newFakeReader(), nil), testCatalogConfig(), zap.NewNop())
	require.NoError(t, err)

	results, err := r.RunAll(context.Background(), uuid.New())
	require.Error(t, err)
	assert.True(t, domainerrors.IsType(err, domainerrors.ErrorTypeNotFound))
	assert.Empty(t, results)
}

func TestRegistryRunSingleMissingTender(t *testing.T) {
	r, err := NewDefaultRegistry(testDeps(newFakeReader(), nil), testCatalogConfig(), zap.NewNop())
	require.NoError(t, err)

	_, err = r.RunSingle(context.Background(), "single_bidder", uuid.New())
	require.Error(t, err)
	assert.True(t, domainerrors.IsType(err, domainerrors.ErrorTypeNotFound))
}
