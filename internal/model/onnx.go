package model

import (
	"context"
	"errors"
	"fmt"
	"sync"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/Brownie44l1/leaf-doctor/internal/preprocess"
)

var envMu sync.Mutex

// ONNXOracle runs a model through ONNX Runtime. Every Predict call owns its
// own input and output tensors, so calls may overlap.
type ONNXOracle struct {
	session    *ort.DynamicAdvancedSession
	outputSize int
}

func openONNX(modelPath string, opts Options) (*ONNXOracle, error) {
	if err := initEnvironment(opts.SharedLibraryPath); err != nil {
		return nil, err
	}

	outputSize, err := inspectONNX(modelPath, opts)
	if err != nil {
		return nil, err
	}

	session, err := ort.NewDynamicAdvancedSession(modelPath,
		[]string{opts.InputName}, []string{opts.OutputName}, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create ONNX session: %w", err)
	}

	return &ONNXOracle{
		session:    session,
		outputSize: outputSize,
	}, nil
}

func initEnvironment(libPath string) error {
	envMu.Lock()
	defer envMu.Unlock()

	if ort.IsInitialized() {
		return nil
	}
	if libPath != "" {
		ort.SetSharedLibraryPath(libPath)
	}
	if err := ort.InitializeEnvironment(); err != nil {
		return fmt.Errorf("failed to initialize ONNX environment: %w", err)
	}
	return nil
}

// inspectONNX checks that the named input takes the preprocessed tensor
// layout and returns the class count of the named output. A dynamic class
// dimension falls back to opts.OutputSize.
func inspectONNX(modelPath string, opts Options) (int, error) {
	inputs, outputs, err := ort.GetInputOutputInfo(modelPath)
	if err != nil {
		return 0, fmt.Errorf("failed to inspect model: %w", err)
	}
	in, ok := findInfo(inputs, opts.InputName)
	if !ok {
		return 0, fmt.Errorf("model has no input named %q", opts.InputName)
	}
	if err := checkInputShape(in.Dimensions); err != nil {
		return 0, fmt.Errorf("input %q: %w", opts.InputName, err)
	}

	out, ok := findInfo(outputs, opts.OutputName)
	if !ok {
		return 0, fmt.Errorf("model has no output named %q", opts.OutputName)
	}
	return classCount(out.Dimensions, opts.OutputName, opts.OutputSize)
}

func findInfo(infos []ort.InputOutputInfo, name string) (ort.InputOutputInfo, bool) {
	for _, info := range infos {
		if info.Name == name {
			return info, true
		}
	}
	return ort.InputOutputInfo{}, false
}

// checkInputShape accepts preprocess.InputShape, with a dynamic batch
// dimension allowed.
func checkInputShape(dims []int64) error {
	want := preprocess.InputShape
	if len(dims) != len(want) {
		return fmt.Errorf("shape %v does not match %v", dims, want)
	}
	for i, d := range dims {
		if i == 0 && d <= 0 {
			continue
		}
		if d != int64(want[i]) {
			return fmt.Errorf("shape %v does not match %v", dims, want)
		}
	}
	return nil
}

func classCount(dims []int64, name string, fallback int) (int, error) {
	if len(dims) > 0 && dims[len(dims)-1] > 0 {
		return int(dims[len(dims)-1]), nil
	}
	if fallback > 0 {
		return fallback, nil
	}
	return 0, fmt.Errorf("output %q has no fixed class dimension (%v)", name, dims)
}

func (o *ONNXOracle) OutputSize() int { return o.outputSize }

func (o *ONNXOracle) Predict(ctx context.Context, t *preprocess.Tensor) (PredictionVector, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	inputTensor, err := ort.NewTensor(ort.NewShape(t.Shape64()...), t.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to create input tensor: %w", err)
	}
	defer inputTensor.Destroy()

	outputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(1, int64(o.outputSize)))
	if err != nil {
		return nil, fmt.Errorf("failed to create output tensor: %w", err)
	}
	defer outputTensor.Destroy()

	if err := o.session.Run([]ort.ArbitraryTensor{inputTensor}, []ort.ArbitraryTensor{outputTensor}); err != nil {
		return nil, fmt.Errorf("inference failed: %w", err)
	}

	out := make(PredictionVector, o.outputSize)
	copy(out, outputTensor.GetData())
	return out, nil
}

func (o *ONNXOracle) Close() error {
	var errs []error
	if o.session != nil {
		if err := o.session.Destroy(); err != nil {
			errs = append(errs, err)
		}
		o.session = nil
	}

	envMu.Lock()
	defer envMu.Unlock()
	if ort.IsInitialized() {
		if err := ort.DestroyEnvironment(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
