package anomaly

import (
	"fmt"
	"math"
	"sort"

	"github.com/google/uuid"
	"go.uber.org/zap"

	domainerrors "github.com/procurewatch/risk-engine/internal/domain/errors"
	"github.com/procurewatch/risk-engine/internal/domain/risk"
)

// Config carries the ensemble tunables. The method weights are hand-tuned and
// uncalibrated; they live in configuration so calibration can replace them
// without code changes. They must sum to 1.
type Config struct {
	Weights     map[string]float64 `koanf:"weights"`
	TopFeatures int                `koanf:"top_features"`
}

// DefaultConfig returns the stock ensemble weighting.
func DefaultConfig() Config {
	return Config{
		Weights: map[string]float64{
			risk.MethodIsolationForest: 0.25,
			risk.MethodAutoencoder:     0.30,
			risk.MethodLOF:             0.20,
			risk.MethodOneClassSVM:     0.25,
		},
		TopFeatures: 5,
	}
}

// Validate rejects malformed weight tables at startup.
func (c Config) Validate() error {
	sum := 0.0
	for method, w := range c.Weights {
		if w <= 0 {
			return domainerrors.NewConfigurationError("INVALID_METHOD_WEIGHT",
				fmt.Sprintf("method %q has non-positive weight %v", method, w))
		}
		sum += w
	}
	if math.Abs(sum-1.0) > 1e-6 {
		return domainerrors.NewConfigurationError("METHOD_WEIGHTS_SUM",
			fmt.Sprintf("method weights sum to %v, want 1.0", sum))
	}
	return nil
}

// HybridDetector combines four independently fitted outlier models into one
// anomaly assessment with agreement-based confidence.
type HybridDetector struct {
	adapters     []MethodAdapter
	cfg          Config
	featureNames []string
	logger       *zap.Logger
}

// NewHybridDetector wires the ensemble. featureNames maps feature-vector
// indices to stable names for the attribution output; its length and order
// must match the external extractor's vector layout.
func NewHybridDetector(adapters []MethodAdapter, cfg Config, featureNames []string, logger *zap.Logger) (*HybridDetector, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HybridDetector{
		adapters:     adapters,
		cfg:          cfg,
		featureNames: featureNames,
		logger:       logger,
	}, nil
}

// Detect scores one tender's feature vector. An unavailable or failing method
// does not fail the detection: its weight is redistributed proportionally
// across the remaining methods, which changes the combined score's meaning
// and is therefore recorded per method in the result. Detection fails only
// when no method can score.
func (d *HybridDetector) Detect(tenderID uuid.UUID, features []float64) (*risk.AnomalyScore, error) {
	type methodOutput struct {
		name         string
		score        float64
		attributions []Attribution
	}

	var (
		available    []methodOutput
		unavailable  []risk.MethodScore
		availableSum float64
	)

	for _, adapter := range d.adapters {
		name := adapter.Method()
		weight, ok := d.cfg.Weights[name]
		if !ok {
			d.logger.Warn("no configured weight for anomaly method, skipping",
				zap.String("method", name))
			continue
		}
		if !adapter.Available() {
			d.logger.Warn("anomaly method unavailable, redistributing weight",
				zap.String("method", name))
			unavailable = append(unavailable, risk.MethodScore{Method: name, Weight: 0, Available: false})
			continue
		}
		score, attrs, err := adapter.Score(features)
		if err != nil {
			d.logger.Warn("anomaly method failed, redistributing weight",
				zap.String("method", name), zap.Error(err))
			unavailable = append(unavailable, risk.MethodScore{Method: name, Weight: 0, Available: false})
			continue
		}
		available = append(available, methodOutput{name: name, score: clamp01(score), attributions: attrs})
		availableSum += weight
	}

	if len(available) == 0 || availableSum == 0 {
		return nil, domainerrors.NewModelUnavailableError("ensemble", "no anomaly method could score")
	}

	// Proportional weight redistribution: each surviving method keeps its
	// configured share of the surviving mass.
	combined := 0.0
	scores := make([]float64, 0, len(available))
	methods := make([]risk.MethodScore, 0, len(available)+len(unavailable))
	merged := make(map[int]float64)
	for _, m := range available {
		effWeight := d.cfg.Weights[m.name] / availableSum
		combined += effWeight * m.score
		scores = append(scores, m.score)
		methods = append(methods, risk.MethodScore{
			Method:    m.name,
			Score:     m.score,
			Weight:    effWeight,
			Available: true,
		})
		for _, a := range m.attributions {
			merged[a.FeatureIndex] += effWeight * a.Contribution
		}
	}
	methods = append(methods, unavailable...)

	return &risk.AnomalyScore{
		TenderID:    tenderID,
		Combined:    combined,
		Methods:     methods,
		Agreement:   agreement(scores),
		TopFeatures: d.topFeatures(merged),
	}, nil
}

// agreement is 1 minus the normalized dispersion of the per-method scores.
// The population standard deviation of values in [0,1] is at most 0.5, which
// normalizes dispersion into [0,1].
func agreement(scores []float64) float64 {
	if len(scores) < 2 {
		return 1
	}
	m := 0.0
	for _, s := range scores {
		m += s
	}
	m /= float64(len(scores))
	variance := 0.0
	for _, s := range scores {
		d := s - m
		variance += d * d
	}
	variance /= float64(len(scores))
	return clamp01(1 - math.Sqrt(variance)/0.5)
}

func (d *HybridDetector) topFeatures(merged map[int]float64) []risk.FeatureContribution {
	contributions := make([]risk.FeatureContribution, 0, len(merged))
	for idx, c := range merged {
		fc := risk.FeatureContribution{Index: idx, Contribution: c}
		if idx >= 0 && idx < len(d.featureNames) {
			fc.Name = d.featureNames[idx]
		} else {
			fc.Name = fmt.Sprintf("feature_%d", idx)
		}
		contributions = append(contributions, fc)
	}
	sort.Slice(contributions, func(a, b int) bool {
		if contributions[a].Contribution != contributions[b].Contribution {
			return contributions[a].Contribution > contributions[b].Contribution
		}
		return contributions[a].Index < contributions[b].Index
	})
	if d.cfg.TopFeatures > 0 && len(contributions) > d.cfg.TopFeatures {
		contributions = contributions[:d.cfg.TopFeatures]
	}
	return contributions
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
