package mlmodel

import (
	"context"
	"fmt"
	"math"
	"runtime"
	"sync"

	"github.com/vforex/quantpilot/internal/domain"
	ort "github.com/yalue/onnxruntime_go"
	"go.uber.org/zap"
)

// Estimator scores trade win probability. With a model file it runs ONNX
// inference; without one it serves the session heuristic, so the pipeline
// always has a probability gate.
type Estimator struct {
	logger *zap.Logger

	mu      sync.Mutex
	session *ort.AdvancedSession
	input   *ort.Tensor[float32]
	output  *ort.Tensor[float32]
}

// InitializeRuntime points onnxruntime at the platform's shared library and
// initializes the environment. Call once before loading a model.
func InitializeRuntime(libraryPath string) error {
	if libraryPath == "" {
		switch runtime.GOOS {
		case "windows":
			libraryPath = "onnxruntime.dll"
		case "darwin":
			libraryPath = "libonnxruntime.dylib"
		default:
			libraryPath = "/usr/lib/libonnxruntime.so"
		}
	}
	ort.SetSharedLibraryPath(libraryPath)
	return ort.InitializeEnvironment()
}

// NewEstimator loads the ONNX model at modelPath. An empty path skips model
// loading and the estimator answers with heuristic estimates only.
func NewEstimator(modelPath string, logger *zap.Logger) (*Estimator, error) {
	e := &Estimator{logger: logger}
	if modelPath == "" {
		logger.Info("no probability model configured, using session heuristic")
		return e, nil
	}

	inputShape := ort.NewShape(1, domain.FeatureCount)
	inputTensor, err := ort.NewTensor(inputShape, make([]float32, domain.FeatureCount))
	if err != nil {
		return nil, fmt.Errorf("creating input tensor: %w", err)
	}

	outputShape := ort.NewShape(1, 1)
	outputTensor, err := ort.NewEmptyTensor[float32](outputShape)
	if err != nil {
		inputTensor.Destroy()
		return nil, fmt.Errorf("creating output tensor: %w", err)
	}

	session, err := ort.NewAdvancedSession(modelPath,
		[]string{"input"}, []string{"output"},
		[]ort.Value{inputTensor}, []ort.Value{outputTensor}, nil)
	if err != nil {
		inputTensor.Destroy()
		outputTensor.Destroy()
		return nil, fmt.Errorf("loading model %s: %w", modelPath, err)
	}

	e.session = session
	e.input = inputTensor
	e.output = outputTensor
	logger.Info("probability model loaded", zap.String("path", modelPath))
	return e, nil
}

// Predict returns the win probability for the feature vector, clamped to
// [0.05, 0.95].
func (e *Estimator) Predict(ctx context.Context, symbol string, features []float64) (float64, error) {
	if len(features) != domain.FeatureCount {
		return 0, fmt.Errorf("feature vector has %d values, want %d", len(features), domain.FeatureCount)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.session == nil {
		return heuristicProbability(features), nil
	}

	data := e.input.GetData()
	for i, f := range features {
		data[i] = float32(f)
	}
	if err := e.session.Run(); err != nil {
		return 0, fmt.Errorf("inference for %s: %w", symbol, err)
	}

	out := e.output.GetData()
	if len(out) == 0 {
		return 0, fmt.Errorf("inference for %s returned no output", symbol)
	}
	return clamp(float64(out[0])), nil
}

// heuristicProbability is the estimate used before a model is trained: a
// neutral base shifted by session hours and volatility health.
func heuristicProbability(features []float64) float64 {
	prob := 0.5

	hour := features[domain.FeatureHour]
	if hour >= 8 && hour <= 18 {
		prob += 0.1
	}

	vol := features[domain.FeatureVolatility]
	if vol > 0.3 && vol < 3.0 {
		prob += 0.1
	} else if vol > 5.0 {
		prob -= 0.1
	}

	return clamp(prob)
}

func clamp(p float64) float64 {
	return math.Min(0.95, math.Max(0.05, p))
}

// Close releases the ONNX session. Safe on a heuristic-only estimator.
func (e *Estimator) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session != nil {
		e.session.Destroy()
		e.session = nil
	}
	if e.input != nil {
		e.input.Destroy()
		e.input = nil
	}
	if e.output != nil {
		e.output.Destroy()
		e.output = nil
	}
}
