package predictor

import (
	"fmt"
	"runtime"

	ort "github.com/yalue/onnxruntime_go"

	"BreakoutSentinel/internal/model"
)

// Default tensor names produced by skl2onnx for a regressor.
const (
	DefaultInputName  = "float_input"
	DefaultOutputName = "variable"
)

// ONNX runs the reward-multiple regressor through onnxruntime.
type ONNX struct {
	session *ort.AdvancedSession
	input   *ort.Tensor[float32]
	output  *ort.Tensor[float32]
}

// InitializeORT points onnxruntime at its shared library and initializes the environment.
func InitializeORT(libPath string) error {
	if libPath == "" {
		libPath = "/usr/lib/libonnxruntime.so"
		if runtime.GOOS == "windows" {
			libPath = "onnxruntime.dll"
		} else if runtime.GOOS == "darwin" {
			libPath = "libonnxruntime.dylib"
		}
	}
	ort.SetSharedLibraryPath(libPath)
	return ort.InitializeEnvironment()
}

// NewONNX opens the model at modelPath. The model takes a [1, 6] float tensor
// in model.FeatureNames order and returns a [1, 1] predicted R:R.
func NewONNX(modelPath, inputName, outputName string) (*ONNX, error) {
	if inputName == "" {
		inputName = DefaultInputName
	}
	if outputName == "" {
		outputName = DefaultOutputName
	}

	inputTensor, err := ort.NewTensor(ort.NewShape(1, int64(len(model.FeatureNames))), make([]float32, len(model.FeatureNames)))
	if err != nil {
		return nil, fmt.Errorf("create input tensor: %w", err)
	}
	outputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(1, 1))
	if err != nil {
		inputTensor.Destroy()
		return nil, fmt.Errorf("create output tensor: %w", err)
	}
	session, err := ort.NewAdvancedSession(modelPath,
		[]string{inputName}, []string{outputName},
		[]ort.Value{inputTensor}, []ort.Value{outputTensor}, nil)
	if err != nil {
		inputTensor.Destroy()
		outputTensor.Destroy()
		return nil, fmt.Errorf("create session for %s: %w", modelPath, err)
	}
	return &ONNX{session: session, input: inputTensor, output: outputTensor}, nil
}

func (m *ONNX) Predict(f model.FeatureVector) (float64, error) {
	data := m.input.GetData()
	for i, v := range f.Slice() {
		data[i] = float32(v)
	}
	if err := m.session.Run(); err != nil {
		return 0, fmt.Errorf("inference: %w", err)
	}
	return float64(m.output.GetData()[0]), nil
}

func (m *ONNX) Name() string { return "onnx" }

func (m *ONNX) Close() error {
	if m.session != nil {
		m.session.Destroy()
	}
	if m.input != nil {
		m.input.Destroy()
	}
	if m.output != nil {
		m.output.Destroy()
	}
	return ort.DestroyEnvironment()
}
