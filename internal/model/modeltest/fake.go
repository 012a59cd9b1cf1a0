// Package modeltest provides an in-memory classifier for tests.
package modeltest

import (
	"context"
	"sync/atomic"

	"github.com/Brownie44l1/leaf-doctor/internal/model"
	"github.com/Brownie44l1/leaf-doctor/internal/preprocess"
)

// Oracle returns Vector (or Err) from every Predict call and counts calls.
type Oracle struct {
	Vector model.PredictionVector
	Err    error
	// Size overrides OutputSize; zero means len(Vector).
	Size int
	// PanicWith makes Predict panic with the given value.
	PanicWith any

	calls  atomic.Int64
	closed atomic.Bool
}

func (o *Oracle) Predict(ctx context.Context, t *preprocess.Tensor) (model.PredictionVector, error) {
	o.calls.Add(1)
	if o.PanicWith != nil {
		panic(o.PanicWith)
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if o.Err != nil {
		return nil, o.Err
	}
	return append(model.PredictionVector(nil), o.Vector...), nil
}

func (o *Oracle) OutputSize() int {
	if o.Size > 0 {
		return o.Size
	}
	return len(o.Vector)
}

func (o *Oracle) Close() error {
	o.closed.Store(true)
	return nil
}

// Calls returns how many times Predict ran.
func (o *Oracle) Calls() int { return int(o.calls.Load()) }

// Closed reports whether Close was called.
func (o *Oracle) Closed() bool { return o.closed.Load() }

var _ model.Oracle = (*Oracle)(nil)
