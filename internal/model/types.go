package model

import (
	"context"
	"errors"
	"math"

	"github.com/Brownie44l1/leaf-doctor/internal/preprocess"
)

// ErrEmptyPrediction is returned by Argmax on a vector with no usable entries.
var ErrEmptyPrediction = errors.New("prediction vector is empty")

// PredictionVector holds one probability per class, in label order.
type PredictionVector []float32

// Oracle is a loaded classifier. Implementations must be safe for
// concurrent Predict calls.
type Oracle interface {
	Predict(ctx context.Context, t *preprocess.Tensor) (PredictionVector, error)
	// OutputSize is the number of classes the model emits.
	OutputSize() int
	Close() error
}

// Argmax returns the index and value of the largest entry. Ties go to the
// lowest index and NaN entries never win.
func (v PredictionVector) Argmax() (int, float32, error) {
	idx := -1
	var best float32
	for i, p := range v {
		if math.IsNaN(float64(p)) {
			continue
		}
		if idx == -1 || p > best {
			idx, best = i, p
		}
	}
	if idx == -1 {
		return 0, 0, ErrEmptyPrediction
	}
	return idx, best, nil
}
