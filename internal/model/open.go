package model

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Options configures how a model artifact is opened.
type Options struct {
	// SharedLibraryPath points at libonnxruntime; empty uses the default.
	SharedLibraryPath string
	InputName         string
	OutputName        string
	// OutputSize is the class count to use when the model leaves its class
	// dimension dynamic. A fixed dimension in the model always wins.
	OutputSize int
}

// Open loads the model at path, choosing the backend by file extension.
func Open(path string, opts Options) (Oracle, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("model artifact %s: %w", path, err)
	}
	if opts.InputName == "" {
		opts.InputName = "input"
	}
	if opts.OutputName == "" {
		opts.OutputName = "output"
	}

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".onnx":
		return openONNX(path, opts)
	case ".tflite":
		return openTFLite(path, opts)
	default:
		return nil, fmt.Errorf("unsupported model format %q (want .onnx or .tflite)", ext)
	}
}
