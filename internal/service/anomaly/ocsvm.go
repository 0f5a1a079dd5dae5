package anomaly

import (
	"encoding/json"
	"fmt"
	"math"
	"os"

	"github.com/procurewatch/risk-engine/internal/domain/risk"
)

// ocsvmArtifact is the fitted state of an RBF one-class SVM: support vectors,
// dual coefficients, kernel width, offset, and the decision-value scale used
// to map margins onto [0,1].
type ocsvmArtifact struct {
	SupportVectors [][]float64 `json:"support_vectors"`
	DualCoefs      []float64   `json:"dual_coefs"`
	Gamma          float64     `json:"gamma"`
	Rho            float64     `json:"rho"`
	DecisionScale  float64     `json:"decision_scale"`
}

// OneClassSVM scores by the signed distance to the fitted decision boundary.
// Attribution approximates each feature's influence by the magnitude of the
// decision function's gradient, which is model-native and approximate.
type OneClassSVM struct {
	artifact  *ocsvmArtifact
	available bool
}

// NewOneClassSVM loads a serialized one-class SVM artifact. A load failure
// yields an unavailable adapter and the error.
func NewOneClassSVM(artifactPath string) (*OneClassSVM, error) {
	data, err := os.ReadFile(artifactPath)
	if err != nil {
		return &OneClassSVM{}, fmt.Errorf("reading ocsvm artifact: %w", err)
	}
	var artifact ocsvmArtifact
	if err := json.Unmarshal(data, &artifact); err != nil {
		return &OneClassSVM{}, fmt.Errorf("decoding ocsvm artifact: %w", err)
	}
	return newOCSVM(&artifact)
}

// newOneClassSVMFromArtifact wires in-memory fitted state, used by tests.
func newOneClassSVMFromArtifact(supportVectors [][]float64, dualCoefs []float64, gamma, rho, decisionScale float64) (*OneClassSVM, error) {
	return newOCSVM(&ocsvmArtifact{
		SupportVectors: supportVectors,
		DualCoefs:      dualCoefs,
		Gamma:          gamma,
		Rho:            rho,
		DecisionScale:  decisionScale,
	})
}

func newOCSVM(artifact *ocsvmArtifact) (*OneClassSVM, error) {
	if len(artifact.SupportVectors) == 0 || len(artifact.SupportVectors) != len(artifact.DualCoefs) {
		return &OneClassSVM{}, fmt.Errorf("ocsvm artifact support vectors and dual coefficients are inconsistent")
	}
	if artifact.Gamma <= 0 {
		return &OneClassSVM{}, fmt.Errorf("ocsvm artifact gamma must be positive")
	}
	if artifact.DecisionScale <= 0 {
		artifact.DecisionScale = 1
	}
	return &OneClassSVM{artifact: artifact, available: true}, nil
}

func (s *OneClassSVM) Method() string  { return risk.MethodOneClassSVM }
func (s *OneClassSVM) Available() bool { return s.available }

func (s *OneClassSVM) Score(features []float64) (float64, []Attribution, error) {
	if !s.available {
		return 0, nil, fmt.Errorf("ocsvm not loaded")
	}

	// f(x) = Σ α_i K(sv_i, x) − ρ with the RBF kernel. Negative f means the
	// point falls outside the learned support region.
	decision := -s.artifact.Rho
	gradient := make([]float64, len(features))
	for i, sv := range s.artifact.SupportVectors {
		d2 := 0.0
		n := len(features)
		if len(sv) < n {
			n = len(sv)
		}
		for j := 0; j < n; j++ {
			d := features[j] - sv[j]
			d2 += d * d
		}
		kernel := math.Exp(-s.artifact.Gamma * d2)
		decision += s.artifact.DualCoefs[i] * kernel
		for j := 0; j < n; j++ {
			gradient[j] += s.artifact.DualCoefs[i] * kernel * -2 * s.artifact.Gamma * (features[j] - sv[j])
		}
	}

	// Map the margin onto [0,1]: on the boundary scores 0.5, a margin of
	// decision_scale inside the support region scores 0, the same margin
	// outside scores 1.
	score := clamp01(0.5 - decision/(2*s.artifact.DecisionScale))

	total := 0.0
	for _, g := range gradient {
		total += math.Abs(g)
	}
	attrs := make([]Attribution, 0, len(features))
	for j, g := range gradient {
		c := 0.0
		if total > 0 {
			c = math.Abs(g) / total
		}
		attrs = append(attrs, Attribution{FeatureIndex: j, Contribution: c})
	}
	return score, attrs, nil
}
