package diagnosis

import (
	"errors"
	"fmt"
)

// ConfigurationError means the label catalog or the model could not be
// loaded. Diagnosis stays disabled until the process is restarted with a
// working setup.
type ConfigurationError struct {
	Reason string
	Cause  error
}

func (e *ConfigurationError) Error() string {
	if e.Cause == nil {
		return e.Reason
	}
	return fmt.Sprintf("%s: %v", e.Reason, e.Cause)
}

func (e *ConfigurationError) Unwrap() error { return e.Cause }

// InvalidImageError means the upload is not a decodable JPEG or PNG.
type InvalidImageError struct {
	Cause error
}

func (e *InvalidImageError) Error() string {
	return fmt.Sprintf("invalid image: %v", e.Cause)
}

func (e *InvalidImageError) Unwrap() error { return e.Cause }

// IndexMismatchError means the model predicted a class the label catalog
// does not have.
type IndexMismatchError struct {
	Index  int
	Labels int
}

func (e *IndexMismatchError) Error() string {
	return fmt.Sprintf("prediction index %d out of range for %d labels", e.Index, e.Labels)
}

// UnexpectedError wraps any other failure inside the pipeline.
type UnexpectedError struct {
	Cause error
}

func (e *UnexpectedError) Error() string {
	return fmt.Sprintf("unexpected diagnosis failure: %v", e.Cause)
}

func (e *UnexpectedError) Unwrap() error { return e.Cause }

const (
	KindConfiguration = "configuration"
	KindInvalidImage  = "invalid_image"
	KindIndexMismatch = "index_mismatch"
	KindUnexpected    = "unexpected"
)

// Kind classifies err for API clients.
func Kind(err error) string {
	var (
		cfg *ConfigurationError
		img *InvalidImageError
		idx *IndexMismatchError
	)
	switch {
	case errors.As(err, &cfg):
		return KindConfiguration
	case errors.As(err, &img):
		return KindInvalidImage
	case errors.As(err, &idx):
		return KindIndexMismatch
	default:
		return KindUnexpected
	}
}
