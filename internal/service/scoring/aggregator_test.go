package scoring

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/procurewatch/risk-engine/internal/domain/risk"
)

func result(name string, cat risk.Category, score, weight float64, triggered bool) risk.IndicatorResult {
	return risk.IndicatorResult{
		Name:      name,
		Category:  cat,
		Score:     score,
		Weight:    weight,
		Triggered: triggered,
	}
}

func degenerateResult(name string, cat risk.Category) risk.IndicatorResult {
	return risk.IndicatorResult{
		Name:       name,
		Category:   cat,
		Degenerate: true,
	}
}

func newTestAggregator() *Aggregator {
	return NewAggregator(DefaultConfig(), zap.NewNop())
}

func TestAggregateEmptyResultSet(t *testing.T) {
	cri := newTestAggregator().Aggregate(uuid.New(), nil)
	assert.Equal(t, 0.0, cri.Composite)
	assert.Equal(t, 0.0, cri.Confidence)
	assert.Empty(t, cri.Contributing)
}

func TestAggregateNothingTriggered(t *testing.T) {
	results := []risk.IndicatorResult{
		result("a", risk.CategoryPrice, 20, 1, false),
		result("b", risk.CategoryTiming, 30, 1, false),
	}
	cri := newTestAggregator().Aggregate(uuid.New(), results)
	assert.Equal(t, 0.0, cri.Composite)
	assert.Equal(t, 1.0, cri.Confidence)
	assert.Empty(t, cri.Contributing)
}

func TestAggregateWeightedAverage(t *testing.T) {
	results := []risk.IndicatorResult{
		result("a", risk.CategoryPrice, 80, 2, true),
		result("b", risk.CategoryPrice, 60, 1, true),
		// Non-triggered high score contributes nothing.
		result("c", risk.CategoryPrice, 90, 5, false),
	}
	cri := newTestAggregator().Aggregate(uuid.New(), results)

	// (2*80 + 1*60) / 3, single category, no bonus.
	assert.InDelta(t, 73.333, cri.Composite, 0.001)
	assert.Equal(t, 0.0, cri.Bonus)
	assert.Len(t, cri.Contributing, 2)
}

func TestAggregateMultiCategoryBonus(t *testing.T) {
	results := []risk.IndicatorResult{
		result("a", risk.CategoryPrice, 70, 1, true),
		result("b", risk.CategoryTiming, 70, 1, true),
		result("c", risk.CategoryCompetition, 70, 1, true),
	}
	cri := newTestAggregator().Aggregate(uuid.New(), results)

	// Two extra categories earn 8 bonus points.
	assert.Equal(t, 8.0, cri.Bonus)
	assert.InDelta(t, 78.0, cri.Composite, 0.001)
	assert.ElementsMatch(t,
		[]risk.Category{risk.CategoryPrice, risk.CategoryTiming, risk.CategoryCompetition},
		cri.TriggeredCategories())
}

func TestAggregateBonusIsCapped(t *testing.T) {
	var results []risk.IndicatorResult
	for _, cat := range risk.Categories() {
		results = append(results, result(string(cat), cat, 50, 1, true))
	}
	cri := newTestAggregator().Aggregate(uuid.New(), results)

	// Four extra categories would earn 16; the cap holds it at 10.
	assert.Equal(t, 10.0, cri.Bonus)
	assert.InDelta(t, 60.0, cri.Composite, 0.001)
}

func TestAggregateCompositeNeverExceeds100(t *testing.T) {
	results := []risk.IndicatorResult{
		result("a", risk.CategoryPrice, 100, 1, true),
		result("b", risk.CategoryTiming, 100, 1, true),
		result("c", risk.CategoryCompetition, 100, 1, true),
	}
	cri := newTestAggregator().Aggregate(uuid.New(), results)
	assert.Equal(t, 100.0, cri.Composite)
}

func TestAggregateConfidenceCountsEvaluableShare(t *testing.T) {
	results := []risk.IndicatorResult{
		result("a", risk.CategoryPrice, 80, 1, true),
		degenerateResult("b", risk.CategoryTiming),
		degenerateResult("c", risk.CategoryCompetition),
		result("d", risk.CategoryProcedural, 10, 1, false),
	}
	cri := newTestAggregator().Aggregate(uuid.New(), results)
	assert.InDelta(t, 0.5, cri.Confidence, 0.001)
}

func TestAggregateMonotoneInTriggeredScore(t *testing.T) {
	low := []risk.IndicatorResult{
		result("a", risk.CategoryPrice, 60, 1, true),
		result("b", risk.CategoryTiming, 40, 1, true),
	}
	high := []risk.IndicatorResult{
		result("a", risk.CategoryPrice, 90, 1, true),
		result("b", risk.CategoryTiming, 40, 1, true),
	}
	agg := newTestAggregator()
	assert.Greater(t,
		agg.Aggregate(uuid.New(), high).Composite,
		agg.Aggregate(uuid.New(), low).Composite)
}

// A single-bidder award at a fraction of the estimate must stand out: two
// triggered categories push the composite well past the review cutoff.
func TestAggregateSuspiciousTenderScenario(t *testing.T) {
	results := []risk.IndicatorResult{
		result("single_bidder", risk.CategoryCompetition, 100, 1.5, true),
		result("estimate_deviation", risk.CategoryPrice, 100, 1.1, true),
		result("bid_cov_clustering", risk.CategoryPrice, 0, 1.3, false),
		degenerateResult("repeat_co_bidding", risk.CategoryRelationship),
	}
	cri := newTestAggregator().Aggregate(uuid.New(), results)
	assert.Greater(t, cri.Composite, 70.0)
}

// A crowded, well-dispersed tender near its estimate must stay quiet.
func TestAggregateCleanTenderScenario(t *testing.T) {
	results := []risk.IndicatorResult{
		result("single_bidder", risk.CategoryCompetition, 0, 1.5, false),
		result("bid_cov_clustering", risk.CategoryPrice, 0, 1.3, false),
		result("estimate_deviation", risk.CategoryPrice, 6, 1.1, false),
		result("short_submission_window", risk.CategoryTiming, 0, 1.1, false),
	}
	cri := newTestAggregator().Aggregate(uuid.New(), results)
	assert.Equal(t, 0.0, cri.Composite)
	assert.Equal(t, 1.0, cri.Confidence)
}
