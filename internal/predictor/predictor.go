package predictor

import (
	"fmt"
	"log"

	"BreakoutSentinel/internal/model"
)

// Model is a loaded reward-multiple predictor.
type Model interface {
	Predict(f model.FeatureVector) (float64, error)
	Name() string
	Close() error
}

// Load opens the configured backend. A missing or incompatible artifact is an error.
func Load(backend, path, libPath, inputName, outputName string) (Model, error) {
	switch backend {
	case "onnx", "":
		if err := InitializeORT(libPath); err != nil {
			return nil, fmt.Errorf("initialize onnxruntime: %w", err)
		}
		m, err := NewONNX(path, inputName, outputName)
		if err != nil {
			return nil, err
		}
		log.Printf("[INFO] onnx model loaded from %s", path)
		return m, nil
	case "linear":
		m, err := LoadLinear(path)
		if err != nil {
			return nil, err
		}
		log.Printf("[INFO] linear model loaded from %s (%d weights)", path, len(m.Weights))
		return m, nil
	default:
		return nil, fmt.Errorf("unknown model backend %q", backend)
	}
}
