//go:build tflite
// +build tflite

package model

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"

	"github.com/mattn/go-tflite"

	"github.com/Brownie44l1/leaf-doctor/internal/preprocess"
)

// TFLiteOracle runs a TensorFlow Lite model. The interpreter owns its
// tensor buffers, so Predict calls are serialised.
type TFLiteOracle struct {
	mu          sync.Mutex
	model       *tflite.Model
	options     *tflite.InterpreterOptions
	interpreter *tflite.Interpreter
	outputSize  int
}

func openTFLite(modelPath string, opts Options) (Oracle, error) {
	m := tflite.NewModelFromFile(modelPath)
	if m == nil {
		return nil, fmt.Errorf("failed to load TFLite model %s", modelPath)
	}

	options := tflite.NewInterpreterOptions()
	options.SetNumThread(runtime.NumCPU())

	interpreter := tflite.NewInterpreter(m, options)
	if interpreter == nil {
		options.Delete()
		m.Delete()
		return nil, errors.New("failed to create TFLite interpreter")
	}

	o := &TFLiteOracle{model: m, options: options, interpreter: interpreter}
	if status := interpreter.AllocateTensors(); status != tflite.OK {
		o.Close()
		return nil, fmt.Errorf("failed to allocate TFLite tensors: status %v", status)
	}

	input := interpreter.GetInputTensor(0)
	if input == nil || input.NumDims() != 4 ||
		input.Dim(1) != preprocess.InputSize || input.Dim(2) != preprocess.InputSize || input.Dim(3) != preprocess.Channels {
		o.Close()
		return nil, fmt.Errorf("model input is not (1,%d,%d,%d)", preprocess.InputSize, preprocess.InputSize, preprocess.Channels)
	}

	output := interpreter.GetOutputTensor(0)
	if output == nil || output.NumDims() == 0 {
		o.Close()
		return nil, errors.New("model has no usable output tensor")
	}
	o.outputSize = output.Dim(output.NumDims() - 1)
	if opts.OutputSize > 0 && opts.OutputSize != o.outputSize {
		o.Close()
		return nil, fmt.Errorf("model emits %d classes, expected %d", o.outputSize, opts.OutputSize)
	}

	return o, nil
}

func (o *TFLiteOracle) OutputSize() int { return o.outputSize }

func (o *TFLiteOracle) Predict(ctx context.Context, t *preprocess.Tensor) (PredictionVector, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	copy(o.interpreter.GetInputTensor(0).Float32s(), t.Data)
	if status := o.interpreter.Invoke(); status != tflite.OK {
		return nil, fmt.Errorf("inference failed: status %v", status)
	}

	out := make(PredictionVector, o.outputSize)
	copy(out, o.interpreter.GetOutputTensor(0).Float32s())
	return out, nil
}

func (o *TFLiteOracle) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.interpreter != nil {
		o.interpreter.Delete()
		o.interpreter = nil
	}
	if o.options != nil {
		o.options.Delete()
		o.options = nil
	}
	if o.model != nil {
		o.model.Delete()
		o.model = nil
	}
	return nil
}
