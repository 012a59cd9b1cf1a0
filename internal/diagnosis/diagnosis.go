package diagnosis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/mdobak/go-xerrors"

	"github.com/Brownie44l1/leaf-doctor/internal/advice"
	"github.com/Brownie44l1/leaf-doctor/internal/labels"
	"github.com/Brownie44l1/leaf-doctor/internal/logging"
	"github.com/Brownie44l1/leaf-doctor/internal/model"
	"github.com/Brownie44l1/leaf-doctor/internal/preprocess"
)

// LowConfidenceThreshold is the confidence below which a diagnosis is
// returned with a warning.
const LowConfidenceThreshold = 0.6

// LowConfidenceWarning is shown next to low-confidence results.
const LowConfidenceWarning = "The model is unsure. Please try a clearer image or different angle."

// Resources gives access to the process-wide catalog and classifier.
type Resources interface {
	Catalog(ctx context.Context) (*labels.Catalog, error)
	Oracle(ctx context.Context) (model.Oracle, error)
}

// Result is a single diagnosis.
type Result struct {
	Label         string
	Index         int
	Confidence    float32
	Tip           string
	LowConfidence bool
}

// ConfidencePercent formats the confidence with two decimals, e.g. "97.31%".
func (r *Result) ConfidencePercent() string {
	return fmt.Sprintf("%.2f%%", float64(r.Confidence)*100)
}

// Warning returns the low-confidence advisory, or "".
func (r *Result) Warning() string {
	if r.LowConfidence {
		return LowConfidenceWarning
	}
	return ""
}

type Service struct {
	resources Resources
	tips      *advice.Table
	logger    *slog.Logger
}

func NewService(resources Resources, tips *advice.Table, logger *slog.Logger) *Service {
	if tips == nil {
		tips = advice.Default()
	}
	if logger == nil {
		logger = logging.GetLogger()
	}
	return &Service{resources: resources, tips: tips, logger: logger}
}

// Diagnose classifies an uploaded leaf photo. Every failure comes back as
// one of the error types in this package; nothing panics past this call.
func (s *Service) Diagnose(ctx context.Context, imageBytes []byte) (res *Result, err error) {
	defer s.recoverPanic(ctx, &res, &err)

	set, err := s.labels(ctx)
	if err != nil {
		return nil, err
	}

	tensor, err := preprocess.Preprocess(imageBytes)
	if err != nil {
		s.logger.InfoContext(ctx, "rejected upload",
			slog.String("request_id", logging.RequestID(ctx)),
			slog.Int("bytes", len(imageBytes)),
			slog.String("reason", err.Error()),
		)
		return nil, &InvalidImageError{Cause: err}
	}

	return s.classify(ctx, set, tensor)
}

// DiagnoseTensor classifies an input that was already preprocessed by the
// caller. data must hold exactly preprocess.InputLen values in NHWC order.
func (s *Service) DiagnoseTensor(ctx context.Context, data []float32) (res *Result, err error) {
	defer s.recoverPanic(ctx, &res, &err)

	set, err := s.labels(ctx)
	if err != nil {
		return nil, err
	}

	tensor, err := preprocess.NewTensor(data)
	if err != nil {
		return nil, &InvalidImageError{Cause: err}
	}

	return s.classify(ctx, set, tensor)
}

func (s *Service) labels(ctx context.Context) (labels.LabelSet, error) {
	cat, err := s.resources.Catalog(ctx)
	if err != nil {
		return nil, &ConfigurationError{Reason: "label catalog unavailable", Cause: err}
	}
	if cat == nil || len(cat.Labels) == 0 {
		return nil, &ConfigurationError{Reason: "label catalog unavailable"}
	}
	return cat.Labels, nil
}

func (s *Service) classify(ctx context.Context, set labels.LabelSet, tensor *preprocess.Tensor) (*Result, error) {
	oracle, err := s.resources.Oracle(ctx)
	if err != nil {
		return nil, &ConfigurationError{Reason: "classifier unavailable", Cause: err}
	}

	vec, err := oracle.Predict(ctx, tensor)
	if err != nil {
		return nil, s.unexpected(ctx, err)
	}

	idx, confidence, err := vec.Argmax()
	if err != nil {
		return nil, s.unexpected(ctx, err)
	}

	label, ok := set.Get(idx)
	if !ok {
		mismatch := &IndexMismatchError{Index: idx, Labels: len(set)}
		s.logger.ErrorContext(ctx, "prediction outside label catalog",
			slog.String("request_id", logging.RequestID(ctx)),
			slog.Int("index", idx),
			slog.Int("labels", len(set)),
			slog.Int("outputs", len(vec)),
		)
		return nil, mismatch
	}

	res := &Result{
		Label:         label,
		Index:         idx,
		Confidence:    confidence,
		Tip:           s.tips.GetOrDefault(label),
		LowConfidence: confidence < LowConfidenceThreshold,
	}

	s.logger.InfoContext(ctx, "diagnosis complete",
		slog.String("request_id", logging.RequestID(ctx)),
		slog.String("label", res.Label),
		slog.String("confidence", res.ConfidencePercent()),
		slog.Bool("low_confidence", res.LowConfidence),
	)
	return res, nil
}

func (s *Service) unexpected(ctx context.Context, cause error) error {
	err := xerrors.New(cause)
	s.logger.ErrorContext(ctx, "diagnosis failed",
		slog.String("request_id", logging.RequestID(ctx)),
		slog.Any("error", err),
	)
	return &UnexpectedError{Cause: cause}
}

func (s *Service) recoverPanic(ctx context.Context, res **Result, err *error) {
	r := recover()
	if r == nil {
		return
	}
	cause, ok := r.(error)
	if !ok {
		cause = fmt.Errorf("panic: %v", r)
	}
	*res = nil
	*err = s.unexpected(ctx, cause)
}

// Status describes whether diagnosis can run.
type Status struct {
	Labels      int
	LabelSource labels.Source
	ModelLoaded bool
	Err         error
}

func (st Status) Ready() bool { return st.Err == nil }

// Status loads the catalog and the classifier if that has not happened yet
// and reports the outcome.
func (s *Service) Status(ctx context.Context) Status {
	var st Status

	cat, err := s.resources.Catalog(ctx)
	if cat != nil {
		st.Labels = len(cat.Labels)
		st.LabelSource = cat.Source
	}
	if err == nil && st.Labels == 0 {
		err = errors.New("no labels")
	}
	if err != nil {
		st.Err = &ConfigurationError{Reason: "label catalog unavailable", Cause: err}
		return st
	}

	if _, err := s.resources.Oracle(ctx); err != nil {
		st.Err = &ConfigurationError{Reason: "classifier unavailable", Cause: err}
		return st
	}
	st.ModelLoaded = true
	return st
}
