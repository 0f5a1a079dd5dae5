package anomaly

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/procurewatch/risk-engine/internal/domain/risk"
)

// autoencoderMeta rides next to the ONNX model and carries the fitted scaling
// constants: the reconstruction error above which an input is fully anomalous
// (typically the p99 training error).
type autoencoderMeta struct {
	FeatureCount int     `json:"feature_count"`
	ErrorScale   float64 `json:"error_scale"`
}

// Autoencoder scores by reconstruction error from a fitted ONNX autoencoder.
// The score is the mean squared reconstruction error normalized by the fitted
// error scale; attribution is each feature's share of the squared error,
// which is approximate, model-native importance.
type Autoencoder struct {
	session *ort.AdvancedSession
	input   *ort.Tensor[float32]
	output  *ort.Tensor[float32]
	meta    autoencoderMeta

	// The session's tensors are reused across calls; Run is serialized.
	mu sync.Mutex

	available bool
}

// NewAutoencoder loads a fitted autoencoder bundle: model.onnx plus
// metadata.json in bundleDir. A load failure yields an unavailable adapter
// and the error; the ensemble redistributes the method's weight.
func NewAutoencoder(bundleDir string) (*Autoencoder, error) {
	if bundleDir == "" {
		return &Autoencoder{}, errors.New("autoencoder bundle dir is empty")
	}

	if lib := resolveONNXRuntimeLibrary(bundleDir); lib != "" {
		ort.SetSharedLibraryPath(lib)
	}
	if !ort.IsInitialized() {
		if err := ort.InitializeEnvironment(); err != nil {
			return &Autoencoder{}, fmt.Errorf("initialize onnxruntime: %w", err)
		}
	}

	metaData, err := os.ReadFile(filepath.Join(bundleDir, "metadata.json"))
	if err != nil {
		return &Autoencoder{}, fmt.Errorf("reading autoencoder metadata: %w", err)
	}
	var meta autoencoderMeta
	if err := json.Unmarshal(metaData, &meta); err != nil {
		return &Autoencoder{}, fmt.Errorf("decoding autoencoder metadata: %w", err)
	}
	if meta.FeatureCount <= 0 || meta.ErrorScale <= 0 {
		return &Autoencoder{}, errors.New("autoencoder metadata missing feature_count or error_scale")
	}

	shape := ort.NewShape(1, int64(meta.FeatureCount))
	input, err := ort.NewEmptyTensor[float32](shape)
	if err != nil {
		return &Autoencoder{}, fmt.Errorf("allocate input tensor: %w", err)
	}
	output, err := ort.NewEmptyTensor[float32](shape)
	if err != nil {
		return &Autoencoder{}, fmt.Errorf("allocate output tensor: %w", err)
	}

	session, err := ort.NewAdvancedSession(
		filepath.Join(bundleDir, "model.onnx"),
		[]string{"features"},
		[]string{"reconstruction"},
		[]ort.Value{input},
		[]ort.Value{output},
		nil,
	)
	if err != nil {
		return &Autoencoder{}, fmt.Errorf("create onnx session: %w", err)
	}

	return &Autoencoder{
		session:   session,
		input:     input,
		output:    output,
		meta:      meta,
		available: true,
	}, nil
}

func (a *Autoencoder) Method() string  { return risk.MethodAutoencoder }
func (a *Autoencoder) Available() bool { return a.available }

func (a *Autoencoder) Score(features []float64) (float64, []Attribution, error) {
	if !a.available {
		return 0, nil, errors.New("autoencoder not loaded")
	}
	if len(features) != a.meta.FeatureCount {
		return 0, nil, fmt.Errorf("feature vector length %d, model expects %d", len(features), a.meta.FeatureCount)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	in := a.input.GetData()
	for i, f := range features {
		in[i] = float32(f)
	}
	if err := a.session.Run(); err != nil {
		return 0, nil, fmt.Errorf("onnx run: %w", err)
	}
	reconstructed := a.output.GetData()

	totalErr := 0.0
	perFeature := make([]float64, len(features))
	for i, f := range features {
		d := f - float64(reconstructed[i])
		perFeature[i] = d * d
		totalErr += d * d
	}
	mse := totalErr / float64(len(features))
	score := clamp01(mse / a.meta.ErrorScale)

	attrs := make([]Attribution, 0, len(features))
	for i, e := range perFeature {
		c := 0.0
		if totalErr > 0 {
			c = e / totalErr
		}
		attrs = append(attrs, Attribution{FeatureIndex: i, Contribution: c})
	}
	return score, attrs, nil
}

// Close releases the ONNX session and tensors.
func (a *Autoencoder) Close() {
	if !a.available {
		return
	}
	a.session.Destroy()
	a.input.Destroy()
	a.output.Destroy()
	a.available = false
}

// resolveONNXRuntimeLibrary locates the onnxruntime shared library. An
// explicit ONNXRUNTIME_SHARED_LIBRARY_PATH wins; otherwise common names and
// locations are probed. An empty result leaves the library loader defaults.
func resolveONNXRuntimeLibrary(bundleDir string) string {
	if env := strings.TrimSpace(os.Getenv("ONNXRUNTIME_SHARED_LIBRARY_PATH")); env != "" {
		return env
	}
	names := []string{"libonnxruntime.so", "libonnxruntime.dylib", "onnxruntime.dll"}
	dirs := []string{bundleDir, filepath.Join(bundleDir, "lib"), "/usr/local/lib", "/usr/lib"}
	for _, dir := range dirs {
		for _, name := range names {
			candidate := filepath.Join(dir, name)
			if _, err := os.Stat(candidate); err == nil {
				return candidate
			}
		}
	}
	return ""
}
