package anomaly

import (
	"encoding/json"
	"fmt"
	"math"
	"os"

	"github.com/procurewatch/risk-engine/internal/domain/risk"
)

// forestArtifact is the serialized form of a fitted isolation forest. Nodes
// are stored as flat arrays per tree; a leaf has Left == -1.
type forestArtifact struct {
	Trees      []forestTree `json:"trees"`
	SampleSize int          `json:"sample_size"`
}

type forestTree struct {
	Nodes []forestNode `json:"nodes"`
}

type forestNode struct {
	Feature   int     `json:"feature"`
	Threshold float64 `json:"threshold"`
	Left      int     `json:"left"`
	Right     int     `json:"right"`
	// Size is the number of training samples that reached the node; leaves
	// use it to estimate the remaining average path length.
	Size int `json:"size"`
}

// IsolationForest scores by average isolation depth across a fitted tree
// ensemble. Shallow isolation means anomalous. Attribution counts each
// feature's splits along the isolation path, weighted by how early the split
// came; this is approximate, model-native importance.
type IsolationForest struct {
	artifact  *forestArtifact
	available bool
}

// NewIsolationForest loads a serialized forest artifact. A load failure
// yields an unavailable adapter and the error; the ensemble redistributes the
// method's weight.
func NewIsolationForest(artifactPath string) (*IsolationForest, error) {
	data, err := os.ReadFile(artifactPath)
	if err != nil {
		return &IsolationForest{}, fmt.Errorf("reading isolation forest artifact: %w", err)
	}
	var artifact forestArtifact
	if err := json.Unmarshal(data, &artifact); err != nil {
		return &IsolationForest{}, fmt.Errorf("decoding isolation forest artifact: %w", err)
	}
	if len(artifact.Trees) == 0 || artifact.SampleSize < 2 {
		return &IsolationForest{}, fmt.Errorf("isolation forest artifact has no usable trees")
	}
	return &IsolationForest{artifact: &artifact, available: true}, nil
}

// newIsolationForestFromArtifact wires an in-memory forest, used by tests.
func newIsolationForestFromArtifact(trees []forestTree, sampleSize int) *IsolationForest {
	return &IsolationForest{
		artifact:  &forestArtifact{Trees: trees, SampleSize: sampleSize},
		available: true,
	}
}

func (f *IsolationForest) Method() string  { return risk.MethodIsolationForest }
func (f *IsolationForest) Available() bool { return f.available }

func (f *IsolationForest) Score(features []float64) (float64, []Attribution, error) {
	if !f.available {
		return 0, nil, fmt.Errorf("isolation forest not loaded")
	}

	splitWeight := make(map[int]float64)
	totalDepth := 0.0
	for _, tree := range f.artifact.Trees {
		depth := f.walk(tree, features, splitWeight)
		totalDepth += depth
	}
	avgDepth := totalDepth / float64(len(f.artifact.Trees))

	// Standard isolation forest anomaly score: s = 2^(-E[h]/c(n)).
	c := averagePathLength(float64(f.artifact.SampleSize))
	score := math.Pow(2, -avgDepth/c)

	attrs := normalizeAttributions(splitWeight)
	return score, attrs, nil
}

// walk descends one tree and returns the isolation depth, crediting each
// split feature with 1/(depth+1) so early splits count more.
func (f *IsolationForest) walk(tree forestTree, features []float64, splitWeight map[int]float64) float64 {
	idx := 0
	depth := 0.0
	for {
		if idx < 0 || idx >= len(tree.Nodes) {
			return depth
		}
		node := tree.Nodes[idx]
		if node.Left == -1 {
			// Unisolated leaf: add the expected remaining depth.
			if node.Size > 1 {
				depth += averagePathLength(float64(node.Size))
			}
			return depth
		}
		if node.Feature >= 0 && node.Feature < len(features) {
			splitWeight[node.Feature] += 1 / (depth + 1)
		}
		if node.Feature >= 0 && node.Feature < len(features) && features[node.Feature] < node.Threshold {
			idx = node.Left
		} else {
			idx = node.Right
		}
		depth++
	}
}

// averagePathLength is c(n), the average path length of an unsuccessful BST
// search over n samples.
func averagePathLength(n float64) float64 {
	if n <= 1 {
		return 0
	}
	return 2*(math.Log(n-1)+0.5772156649) - 2*(n-1)/n
}

func normalizeAttributions(weights map[int]float64) []Attribution {
	total := 0.0
	for _, w := range weights {
		total += w
	}
	attrs := make([]Attribution, 0, len(weights))
	for idx, w := range weights {
		c := w
		if total > 0 {
			c = w / total
		}
		attrs = append(attrs, Attribution{FeatureIndex: idx, Contribution: c})
	}
	return attrs
}
