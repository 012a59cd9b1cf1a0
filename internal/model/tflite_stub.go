//go:build !tflite
// +build !tflite

package model

import "errors"

// openTFLite reports that the binary was built without TensorFlow Lite.
func openTFLite(string, Options) (Oracle, error) {
	return nil, errors.New("tflite build tag is not enabled")
}
