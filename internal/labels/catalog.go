package labels

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/Brownie44l1/leaf-doctor/internal/preprocess"
)

// ManifestVersion is the only manifest layout this build understands.
const ManifestVersion = 1

var (
	// ErrUnavailable is returned when no label source can be read.
	ErrUnavailable = errors.New("label catalog unavailable")
	// ErrInvalidManifest marks a manifest that exists but cannot be used.
	ErrInvalidManifest = errors.New("invalid label manifest")
)

// LabelSet maps classifier output positions to class names.
type LabelSet []string

// Manifest freezes the index-to-label mapping next to the model artifact.
type Manifest struct {
	Version     int      `json:"version"`
	Classes     []string `json:"classes"`
	InputShape  []int64  `json:"input_shape"`
	OutputShape []int64  `json:"output_shape"`
	ImageSize   int      `json:"image_size"`
	Source      string   `json:"source,omitempty"`
	CreatedAt   string   `json:"created_at,omitempty"`
}

// NewManifest builds a manifest for labels listed from source.
func NewManifest(labels LabelSet, source string, imageSize int) Manifest {
	return Manifest{
		Version:     ManifestVersion,
		Classes:     append([]string(nil), labels...),
		InputShape:  []int64{1, int64(imageSize), int64(imageSize), 3},
		OutputShape: []int64{1, int64(len(labels))},
		ImageSize:   imageSize,
		Source:      source,
		CreatedAt:   time.Now().UTC().Format(time.RFC3339),
	}
}

// FromDirectory lists the immediate children of dir and sorts their names
// by byte order, the ordering the training pipeline used.
func FromDirectory(dir string) (LabelSet, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return LabelSet{}, fmt.Errorf("%w: training directory %s not found", ErrUnavailable, dir)
		}
		return LabelSet{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return LabelSet(names), nil
}

// LoadManifest reads and validates a manifest file.
func LoadManifest(path string) (*Manifest, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}

	var m Manifest
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("failed to parse manifest: %w", err)
	}
	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("manifest %s: %w", path, err)
	}
	return &m, nil
}

func (m *Manifest) Validate() error {
	if m.Version != ManifestVersion {
		return fmt.Errorf("unsupported manifest version %d (want %d)", m.Version, ManifestVersion)
	}
	if len(m.Classes) == 0 {
		return errors.New("manifest lists no classes")
	}
	seen := make(map[string]struct{}, len(m.Classes))
	for i, c := range m.Classes {
		if c == "" {
			return fmt.Errorf("class %d is empty", i)
		}
		if _, dup := seen[c]; dup {
			return fmt.Errorf("class %q listed twice", c)
		}
		seen[c] = struct{}{}
	}
	if n := len(m.OutputShape); n > 0 && m.OutputShape[n-1] != int64(len(m.Classes)) {
		return fmt.Errorf("output_shape %v does not match %d classes", m.OutputShape, len(m.Classes))
	}
	if m.ImageSize != preprocess.InputSize {
		return fmt.Errorf("image_size %d, images are resized to %d", m.ImageSize, preprocess.InputSize)
	}
	if len(m.InputShape) > 0 && !sameShape(m.InputShape, preprocess.InputShape) {
		return fmt.Errorf("input_shape %v does not match %v", m.InputShape, preprocess.InputShape)
	}
	return nil
}

func sameShape(got []int64, want [4]int) bool {
	if len(got) != len(want) {
		return false
	}
	for i := range got {
		if got[i] != int64(want[i]) {
			return false
		}
	}
	return true
}

// WriteManifest stores m at path, creating the parent directory.
func WriteManifest(path string, m Manifest) error {
	if err := m.Validate(); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create manifest directory: %w", err)
	}
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode manifest: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("failed to write manifest: %w", err)
	}
	return nil
}

// Source tells where a loaded catalog came from.
type Source string

const (
	SourceManifest  Source = "manifest"
	SourceDirectory Source = "directory"
	SourceNone      Source = "none"
)

// Catalog is a loaded label set together with its origin.
type Catalog struct {
	Labels   LabelSet
	Source   Source
	Manifest *Manifest
}

// Load prefers the manifest at manifestPath and falls back to listing
// datasetDir when the manifest does not exist. A manifest that exists but
// is broken is an error; silently switching sources could reorder indices.
func Load(manifestPath, datasetDir string) (*Catalog, error) {
	if manifestPath != "" {
		m, err := LoadManifest(manifestPath)
		switch {
		case err == nil:
			return &Catalog{Labels: LabelSet(m.Classes), Source: SourceManifest, Manifest: m}, nil
		case !errors.Is(err, fs.ErrNotExist):
			return &Catalog{Labels: LabelSet{}, Source: SourceNone}, fmt.Errorf("%w: %w: %v", ErrUnavailable, ErrInvalidManifest, err)
		}
	}

	set, err := FromDirectory(datasetDir)
	if err != nil {
		return &Catalog{Labels: LabelSet{}, Source: SourceNone}, err
	}
	if len(set) == 0 {
		return &Catalog{Labels: set, Source: SourceNone}, fmt.Errorf("%w: training directory %s is empty", ErrUnavailable, datasetDir)
	}
	return &Catalog{Labels: set, Source: SourceDirectory}, nil
}

// Get returns the label at index and whether it exists.
func (s LabelSet) Get(index int) (string, bool) {
	if index < 0 || index >= len(s) {
		return "", false
	}
	return s[index], true
}
