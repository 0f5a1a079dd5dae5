package risk

import (
	"fmt"

	"github.com/google/uuid"
)

// Category groups indicators by the fraud pattern family they test.
type Category string

const (
	CategoryCompetition  Category = "competition"
	CategoryPrice        Category = "price"
	CategoryTiming       Category = "timing"
	CategoryRelationship Category = "relationship"
	CategoryProcedural   Category = "procedural"
)

// Categories lists all indicator categories in presentation order.
func Categories() []Category {
	return []Category{
		CategoryCompetition,
		CategoryPrice,
		CategoryTiming,
		CategoryRelationship,
		CategoryProcedural,
	}
}

// Confidence labels how complete the data behind a result was.
type Confidence string

const (
	ConfidenceLow    Confidence = "low"
	ConfidenceMedium Confidence = "medium"
	ConfidenceHigh   Confidence = "high"
)

// Fact is one named piece of evidence supporting an indicator score.
type Fact struct {
	Key   string      `json:"key"`
	Value interface{} `json:"value"`
}

// Evidence is an ordered list of named facts. Order is the order the
// indicator recorded them, which is part of the audit trail.
type Evidence []Fact

// With appends a fact and returns the extended evidence.
func (e Evidence) With(key string, value interface{}) Evidence {
	return append(e, Fact{Key: key, Value: value})
}

// Get looks up a fact by key.
func (e Evidence) Get(key string) (interface{}, bool) {
	for _, f := range e {
		if f.Key == key {
			return f.Value, true
		}
	}
	return nil, false
}

func (e Evidence) String() string {
	s := "{"
	for i, f := range e {
		if i > 0 {
			s += ", "
		}
		s += fmt.Sprintf("%s: %v", f.Key, f.Value)
	}
	return s + "}"
}

// IndicatorResult is the immutable outcome of one indicator run against one
// tender. Created fresh on every calculation, never mutated.
type IndicatorResult struct {
	TenderID           uuid.UUID  `json:"tender_id"`
	Name               string     `json:"name"`
	Category           Category   `json:"category"`
	Score              float64    `json:"score"` // 0-100, higher = more suspicious
	Weight             float64    `json:"weight"`
	EffectiveThreshold float64    `json:"effective_threshold"`
	Triggered          bool       `json:"triggered"`
	Confidence         Confidence `json:"confidence"`
	// Degenerate marks results where the data the test needs was absent or
	// mathematically unusable (e.g. CoV of a single bid). Degenerate results
	// never trigger and carry an evidence note naming the reason.
	Degenerate  bool     `json:"degenerate"`
	Evidence    Evidence `json:"evidence"`
	Description string   `json:"description"`
}

// CRIScore is the composite Corruption Risk Index for one tender, derived from
// the triggered indicator results. Recomputed on demand, never the source of
// truth independent of its inputs.
type CRIScore struct {
	TenderID     uuid.UUID         `json:"tender_id"`
	Composite    float64           `json:"composite"` // 0-100
	Contributing []IndicatorResult `json:"contributing"`
	Bonus        float64           `json:"bonus"`
	// Confidence is the fraction of indicators evaluated on non-degenerate
	// data, in [0,1]. Reported alongside the score, never folded into it.
	Confidence float64 `json:"confidence"`
}

// TriggeredCategories returns the distinct categories among contributing
// results.
func (c *CRIScore) TriggeredCategories() []Category {
	seen := make(map[Category]struct{})
	var cats []Category
	for _, r := range c.Contributing {
		if _, ok := seen[r.Category]; !ok {
			seen[r.Category] = struct{}{}
			cats = append(cats, r.Category)
		}
	}
	return cats
}
