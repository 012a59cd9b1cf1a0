package handlers

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/Brownie44l1/leaf-doctor/internal/diagnosis"
	"github.com/Brownie44l1/leaf-doctor/internal/logging"
	"github.com/Brownie44l1/leaf-doctor/internal/preprocess"
	"github.com/Brownie44l1/leaf-doctor/internal/shell"
)

// PredictionRequest carries an already preprocessed NHWC tensor.
type PredictionRequest struct {
	Image []float32 `json:"image"`
}

// PredictionResponse is the JSON form of a diagnosis.
type PredictionResponse struct {
	Class             string  `json:"class"`
	Confidence        float32 `json:"confidence"`
	ConfidencePercent string  `json:"confidence_percent"`
	Tip               string  `json:"tip"`
	LowConfidence     bool    `json:"low_confidence"`
	Warning           string  `json:"warning,omitempty"`
	RequestID         string  `json:"request_id,omitempty"`
}

type errorResponse struct {
	Error     string `json:"error"`
	Kind      string `json:"kind"`
	RequestID string `json:"request_id,omitempty"`
}

var allowedExt = map[string]bool{".jpg": true, ".jpeg": true, ".png": true}

type Handler struct {
	svc       *diagnosis.Service
	shell     *shell.Shell
	maxUpload int64
	logger    *slog.Logger
}

func NewHandler(svc *diagnosis.Service, sh *shell.Shell, maxUpload int64, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = logging.GetLogger()
	}
	return &Handler{
		svc:       svc,
		shell:     sh,
		maxUpload: maxUpload,
		logger:    logger,
	}
}

func (h *Handler) Health(c *gin.Context) {
	st := h.svc.Status(c.Request.Context())
	body := gin.H{
		"status":       "healthy",
		"labels":       st.Labels,
		"label_source": st.LabelSource,
		"model_loaded": st.ModelLoaded,
	}
	code := http.StatusOK
	if !st.Ready() {
		body["status"] = "degraded"
		body["error"] = st.Err.Error()
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, body)
}

// Index renders the upload page.
func (h *Handler) Index(c *gin.Context) {
	page := h.shell.NewPage()
	page.StatusError = shell.StatusMessage(h.svc.Status(c.Request.Context()))
	if page.StatusError == "" {
		page.Info = shell.MsgUploadPrompt
	}
	c.HTML(http.StatusOK, shell.PageTemplate, page)
}

// Upload diagnoses the submitted leaf and renders the result into the page.
func (h *Handler) Upload(c *gin.Context) {
	ctx := c.Request.Context()
	page := h.shell.NewPage()

	if st := h.svc.Status(ctx); !st.Ready() {
		page.StatusError = shell.StatusMessage(st)
		c.HTML(http.StatusOK, shell.PageTemplate, page)
		return
	}

	data, err := h.readUpload(c)
	if err != nil {
		page.Error = shell.Describe(err)
		c.HTML(http.StatusOK, shell.PageTemplate, page)
		return
	}

	result, err := h.svc.Diagnose(ctx, data)
	if diagnosis.Kind(err) != diagnosis.KindInvalidImage {
		page.Preview = shell.DataURI(data)
	}
	if err != nil {
		page.Error = shell.Describe(err)
	} else {
		page.Result = result
	}
	c.HTML(http.StatusOK, shell.PageTemplate, page)
}

// Diagnose is the JSON variant of Upload.
func (h *Handler) Diagnose(c *gin.Context) {
	data, err := h.readUpload(c)
	if err != nil {
		h.writeError(c, err)
		return
	}

	result, err := h.svc.Diagnose(c.Request.Context(), data)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.response(c, result))
}

// maxTensorBody bounds a JSON-encoded input tensor.
const maxTensorBody = preprocess.InputLen * 20

// Predict accepts a raw preprocessed tensor.
func (h *Handler) Predict(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxTensorBody)

	var req PredictionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			h.writeError(c, &diagnosis.InvalidImageError{Cause: fmt.Errorf("request body exceeds %d bytes", maxTensorBody)})
			return
		}
		h.writeError(c, &diagnosis.InvalidImageError{Cause: fmt.Errorf("invalid JSON: %w", err)})
		return
	}

	result, err := h.svc.DiagnoseTensor(c.Request.Context(), req.Image)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.response(c, result))
}

func (h *Handler) readUpload(c *gin.Context) ([]byte, error) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUpload+(1<<20))

	header, err := c.FormFile("image")
	if err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			return nil, &diagnosis.InvalidImageError{Cause: fmt.Errorf("upload exceeds %d MB", h.maxUpload>>20)}
		}
		return nil, &diagnosis.InvalidImageError{Cause: errors.New("no image file provided, use 'image' as the form field name")}
	}

	if header.Size > h.maxUpload {
		return nil, &diagnosis.InvalidImageError{Cause: fmt.Errorf("upload exceeds %d MB", h.maxUpload>>20)}
	}
	if ext := strings.ToLower(filepath.Ext(header.Filename)); !allowedExt[ext] {
		return nil, &diagnosis.InvalidImageError{Cause: fmt.Errorf("unsupported file type %q", ext)}
	}

	file, err := header.Open()
	if err != nil {
		return nil, &diagnosis.InvalidImageError{Cause: fmt.Errorf("failed to open upload: %w", err)}
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, &diagnosis.InvalidImageError{Cause: fmt.Errorf("failed to read upload: %w", err)}
	}

	h.logger.InfoContext(c.Request.Context(), "Received file",
		slog.String("request_id", logging.RequestID(c.Request.Context())),
		slog.String("filename", header.Filename),
		slog.Int64("size", header.Size),
	)
	return data, nil
}

func (h *Handler) response(c *gin.Context, r *diagnosis.Result) PredictionResponse {
	return PredictionResponse{
		Class:             r.Label,
		Confidence:        r.Confidence,
		ConfidencePercent: r.ConfidencePercent(),
		Tip:               r.Tip,
		LowConfidence:     r.LowConfidence,
		Warning:           r.Warning(),
		RequestID:         logging.RequestID(c.Request.Context()),
	}
}

func (h *Handler) writeError(c *gin.Context, err error) {
	kind := diagnosis.Kind(err)
	code := http.StatusInternalServerError
	switch kind {
	case diagnosis.KindInvalidImage:
		code = http.StatusBadRequest
	case diagnosis.KindIndexMismatch:
		code = http.StatusUnprocessableEntity
	case diagnosis.KindConfiguration:
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, errorResponse{
		Error:     err.Error(),
		Kind:      kind,
		RequestID: logging.RequestID(c.Request.Context()),
	})
}
