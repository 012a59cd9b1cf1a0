package shell

import (
	"embed"
	"encoding/base64"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"os"

	"github.com/Brownie44l1/leaf-doctor/internal/diagnosis"
	"github.com/Brownie44l1/leaf-doctor/internal/labels"
)

//go:embed templates/*.html
var templateFS embed.FS

// PageTemplate is the name handlers render.
const PageTemplate = "page"

const (
	MsgUploadPrompt = "📩 Upload a leaf image to start diagnosis."
	MsgOutOfRange   = "🚫 Prediction index out of range. Please check your model and class names."
	MsgNoLabels     = "Could not find the training directory to fetch class names."
	MsgBadManifest  = "The label manifest next to the model is invalid. Regenerate it with cmd/labels."
	MsgNoModel      = "The classifier could not be loaded. Diagnosis is disabled."
)

// Page is everything the page template shows.
type Page struct {
	BackgroundCSS template.CSS
	StatusError   string
	Preview       template.URL
	Result        *diagnosis.Result
	Error         string
	Info          string
}

// Shell holds the parsed page template and the background image.
type Shell struct {
	tmpl       *template.Template
	background template.CSS
}

// New parses the embedded templates. backgroundPath may be empty; a
// missing background leaves the plain page colour.
func New(backgroundPath string) (*Shell, error) {
	tmpl, err := template.ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("failed to parse templates: %w", err)
	}

	s := &Shell{tmpl: tmpl}
	if backgroundPath == "" {
		return s, nil
	}
	css, err := backgroundCSS(backgroundPath)
	if err != nil {
		return s, err
	}
	s.background = css
	return s, nil
}

func (s *Shell) Template() *template.Template { return s.tmpl }

// NewPage returns a page with the shared chrome filled in.
func (s *Shell) NewPage() Page {
	return Page{BackgroundCSS: s.background}
}

// backgroundCSS reads the image once and inlines it as a data URI.
func backgroundCSS(path string) (template.CSS, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read background image: %w", err)
	}
	uri := DataURI(data)
	return template.CSS(fmt.Sprintf(".app { background-image: url(%q); }", string(uri))), nil
}

// DataURI inlines data with its sniffed content type.
func DataURI(data []byte) template.URL {
	mime := http.DetectContentType(data)
	return template.URL("data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(data))
}

// Describe turns a diagnosis failure into the message shown on the page.
func Describe(err error) string {
	switch diagnosis.Kind(err) {
	case diagnosis.KindConfiguration:
		return "⚠️ Diagnosis is unavailable: " + err.Error()
	case diagnosis.KindInvalidImage:
		return "⚠️ Could not read that file as a JPEG or PNG image. Please upload a different photo."
	case diagnosis.KindIndexMismatch:
		return MsgOutOfRange
	default:
		return fmt.Sprintf("⚠️ An error occurred during prediction: %v", err)
	}
}

// StatusMessage explains why diagnosis is disabled, or returns "".
func StatusMessage(st diagnosis.Status) string {
	if st.Ready() {
		return ""
	}
	if errors.Is(st.Err, labels.ErrInvalidManifest) {
		return MsgBadManifest
	}
	if st.Labels == 0 {
		return MsgNoLabels
	}
	return MsgNoModel
}
