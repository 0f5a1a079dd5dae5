package anomaly

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"sort"

	"github.com/procurewatch/risk-engine/internal/domain/risk"
)

// lofArtifact is the fitted state a Local Outlier Factor model needs at
// scoring time: the training points with their precomputed k-distances and
// local reachability densities.
type lofArtifact struct {
	K      int         `json:"k"`
	Points [][]float64 `json:"points"`
	// KDistance[i] is the distance from point i to its k-th neighbor
	KDistance []float64 `json:"k_distance"`
	// LRD[i] is the precomputed local reachability density of point i
	LRD []float64 `json:"lrd"`
	// LOFScale is the LOF value mapped to a full anomaly score (fitted as a
	// high training quantile)
	LOFScale float64 `json:"lof_scale"`
}

// LocalOutlierFactor scores by local density deviation against the fitted
// training neighborhood. Attribution is each feature's share of the squared
// distance to the query's nearest neighbors, a model-native approximation.
type LocalOutlierFactor struct {
	artifact  *lofArtifact
	available bool
}

// NewLocalOutlierFactor loads a serialized LOF artifact. A load failure
// yields an unavailable adapter and the error.
func NewLocalOutlierFactor(artifactPath string) (*LocalOutlierFactor, error) {
	data, err := os.ReadFile(artifactPath)
	if err != nil {
		return &LocalOutlierFactor{}, fmt.Errorf("reading lof artifact: %w", err)
	}
	var artifact lofArtifact
	if err := json.Unmarshal(data, &artifact); err != nil {
		return &LocalOutlierFactor{}, fmt.Errorf("decoding lof artifact: %w", err)
	}
	return newLOF(&artifact)
}

// newLocalOutlierFactorFromArtifact wires in-memory fitted state, used by
// tests.
func newLocalOutlierFactorFromArtifact(k int, points [][]float64, kDistance, lrd []float64, lofScale float64) (*LocalOutlierFactor, error) {
	return newLOF(&lofArtifact{K: k, Points: points, KDistance: kDistance, LRD: lrd, LOFScale: lofScale})
}

func newLOF(artifact *lofArtifact) (*LocalOutlierFactor, error) {
	if artifact.K < 1 || len(artifact.Points) <= artifact.K {
		return &LocalOutlierFactor{}, fmt.Errorf("lof artifact needs more than k=%d points, got %d", artifact.K, len(artifact.Points))
	}
	if len(artifact.KDistance) != len(artifact.Points) || len(artifact.LRD) != len(artifact.Points) {
		return &LocalOutlierFactor{}, fmt.Errorf("lof artifact arrays are inconsistent")
	}
	if artifact.LOFScale <= 1 {
		artifact.LOFScale = 3
	}
	return &LocalOutlierFactor{artifact: artifact, available: true}, nil
}

func (l *LocalOutlierFactor) Method() string  { return risk.MethodLOF }
func (l *LocalOutlierFactor) Available() bool { return l.available }

func (l *LocalOutlierFactor) Score(features []float64) (float64, []Attribution, error) {
	if !l.available {
		return 0, nil, fmt.Errorf("lof not loaded")
	}

	neighbors := make([]lofNeighbor, len(l.artifact.Points))
	for i, p := range l.artifact.Points {
		neighbors[i] = lofNeighbor{idx: i, dist: euclidean(features, p)}
	}
	sort.Slice(neighbors, func(a, b int) bool { return neighbors[a].dist < neighbors[b].dist })
	k := l.artifact.K
	nearest := neighbors[:k]

	// lrd(x) from reachability distances against the fitted k-distances.
	reachSum := 0.0
	lrdSum := 0.0
	for _, n := range nearest {
		reachSum += math.Max(l.artifact.KDistance[n.idx], n.dist)
		lrdSum += l.artifact.LRD[n.idx]
	}
	if reachSum == 0 {
		// The query coincides with dense training points: an inlier.
		return 0, l.distanceAttribution(features, nearest), nil
	}
	lrdX := float64(k) / reachSum
	lof := (lrdSum / float64(k)) / lrdX

	// LOF near 1 is an inlier; the fitted scale marks full anomaly.
	score := clamp01((lof - 1) / (l.artifact.LOFScale - 1))
	return score, l.distanceAttribution(features, nearest), nil
}

type lofNeighbor struct {
	idx  int
	dist float64
}

func (l *LocalOutlierFactor) distanceAttribution(features []float64, nearest []lofNeighbor) []Attribution {
	perFeature := make([]float64, len(features))
	total := 0.0
	for _, n := range nearest {
		p := l.artifact.Points[n.idx]
		for j := range features {
			if j >= len(p) {
				break
			}
			d := features[j] - p[j]
			perFeature[j] += d * d
			total += d * d
		}
	}
	attrs := make([]Attribution, 0, len(features))
	for j, v := range perFeature {
		c := 0.0
		if total > 0 {
			c = v / total
		}
		attrs = append(attrs, Attribution{FeatureIndex: j, Contribution: c})
	}
	return attrs
}

func euclidean(a, b []float64) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	sum := 0.0
	for i := 0; i < n; i++ {
		d := a[i] - b[i]
		sum += d * d
	}
	return math.Sqrt(sum)
}
