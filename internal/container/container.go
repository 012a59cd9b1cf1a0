package container

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/Brownie44l1/leaf-doctor/internal/advice"
	"github.com/Brownie44l1/leaf-doctor/internal/config"
	"github.com/Brownie44l1/leaf-doctor/internal/diagnosis"
	"github.com/Brownie44l1/leaf-doctor/internal/labels"
	"github.com/Brownie44l1/leaf-doctor/internal/logging"
	"github.com/Brownie44l1/leaf-doctor/internal/model"
)

// ErrCardinality is returned when the model and the label catalog disagree
// on the number of classes.
var ErrCardinality = errors.New("model output size does not match label catalog")

// OracleOpener loads a model artifact.
type OracleOpener func(path string, opts model.Options) (model.Oracle, error)

// Container owns the process-wide catalog and classifier. Both are loaded
// on first use and kept for the lifetime of the process, load errors
// included.
type Container struct {
	cfg    *config.Config
	open   OracleOpener
	logger *slog.Logger

	catalog func() (*labels.Catalog, error)
	oracle  func() (model.Oracle, error)

	mu     sync.Mutex
	loaded model.Oracle

	Diagnosis *diagnosis.Service
}

type Option func(*Container)

// WithOpener replaces model.Open, mainly for tests.
func WithOpener(open OracleOpener) Option {
	return func(c *Container) { c.open = open }
}

func New(cfg *config.Config, logger *slog.Logger, opts ...Option) *Container {
	if logger == nil {
		logger = logging.GetLogger()
	}
	c := &Container{cfg: cfg, open: model.Open, logger: logger}
	for _, opt := range opts {
		opt(c)
	}
	c.catalog = sync.OnceValues(c.loadCatalog)
	c.oracle = sync.OnceValues(c.loadOracle)
	c.Diagnosis = diagnosis.NewService(c, advice.Default(), logger)
	return c
}

// Catalog returns the label catalog, loading it on first call.
func (c *Container) Catalog(context.Context) (*labels.Catalog, error) {
	return c.catalog()
}

// Oracle returns the classifier, loading it on first call.
func (c *Container) Oracle(context.Context) (model.Oracle, error) {
	return c.oracle()
}

func (c *Container) loadCatalog() (*labels.Catalog, error) {
	cat, err := labels.Load(c.cfg.ManifestPath, c.cfg.DatasetDir)
	if err != nil {
		c.logger.Error("Could not load label catalog",
			slog.String("manifest", c.cfg.ManifestPath),
			slog.String("dataset_dir", c.cfg.DatasetDir),
			slog.Any("error", err),
		)
		return cat, err
	}

	if cat.Source == labels.SourceDirectory {
		c.logger.Warn("Label order recomputed from dataset directory; freeze it with cmd/labels",
			slog.String("dataset_dir", c.cfg.DatasetDir),
			slog.String("manifest", c.cfg.ManifestPath),
		)
	}
	c.logger.Info("Label catalog loaded",
		slog.String("source", string(cat.Source)),
		slog.Int("classes", len(cat.Labels)),
	)
	return cat, nil
}

func (c *Container) loadOracle() (model.Oracle, error) {
	cat, err := c.catalog()
	if err != nil {
		return nil, fmt.Errorf("cannot validate model without labels: %w", err)
	}

	c.logger.Info("Loading model", slog.String("path", c.cfg.ModelPath))
	oracle, err := c.open(c.cfg.ModelPath, model.Options{
		SharedLibraryPath: c.cfg.ONNXRuntimeLib,
		InputName:         c.cfg.InputName,
		OutputName:        c.cfg.OutputName,
		OutputSize:        manifestClasses(cat),
	})
	if err != nil {
		c.logger.Error("Could not load model", slog.String("path", c.cfg.ModelPath), slog.Any("error", err))
		return nil, err
	}

	if got, want := oracle.OutputSize(), len(cat.Labels); got != want {
		if cerr := oracle.Close(); cerr != nil {
			c.logger.Warn("Closing rejected model failed", slog.Any("error", cerr))
		}
		err := fmt.Errorf("%w: model emits %d classes, catalog has %d", ErrCardinality, got, want)
		c.logger.Error("Model rejected", slog.Any("error", err))
		return nil, err
	}

	c.mu.Lock()
	c.loaded = oracle
	c.mu.Unlock()

	c.logger.Info("Model loaded", slog.String("path", c.cfg.ModelPath), slog.Int("classes", oracle.OutputSize()))
	return oracle, nil
}

// manifestClasses returns the class dimension frozen in the manifest, or 0
// when the labels did not come from one.
func manifestClasses(cat *labels.Catalog) int {
	if cat.Manifest == nil {
		return 0
	}
	if n := len(cat.Manifest.OutputShape); n > 0 {
		return int(cat.Manifest.OutputShape[n-1])
	}
	return len(cat.Manifest.Classes)
}

// Close releases the classifier if it was loaded.
func (c *Container) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.loaded == nil {
		return nil
	}
	err := c.loaded.Close()
	c.loaded = nil
	return err
}
