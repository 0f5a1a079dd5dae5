package risk

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvidenceWithAndGet(t *testing.T) {
	var e Evidence
	e = e.With("bidder_count", 1).With("window_days", 12.0)

	v, ok := e.Get("bidder_count")
	require.True(t, ok)
	assert.Equal(t, 1, v)

	_, ok = e.Get("absent")
	assert.False(t, ok)

	// Recording order is preserved.
	assert.Equal(t, "bidder_count", e[0].Key)
	assert.Equal(t, "window_days", e[1].Key)
}

func TestTriggeredCategoriesDedupes(t *testing.T) {
	score := &CRIScore{Contributing: []IndicatorResult{
		{Name: "a", Category: CategoryCompetition},
		{Name: "b", Category: CategoryCompetition},
		{Name: "c", Category: CategoryPrice},
	}}

	assert.Equal(t, []Category{CategoryCompetition, CategoryPrice}, score.TriggeredCategories())
}
