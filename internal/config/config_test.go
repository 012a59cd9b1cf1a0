package config

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	for _, key := range []string{"PORT", "MODEL_PATH", "LABELS_MANIFEST", "DATASET_DIR", "BACKGROUND_IMAGE", "MAX_UPLOAD_MB", "CORS_ORIGINS"} {
		t.Setenv(key, "")
	}

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "8080", cfg.Port)
	require.Equal(t, int64(10<<20), cfg.MaxUploadBytes)
	require.Equal(t, []string{"*"}, cfg.CORSOrigins)
	require.Equal(t, filepath.Join(cfg.RootDir, "models", "best_model.onnx"), cfg.ModelPath)
	require.Equal(t, filepath.Join(cfg.RootDir, "models", "model_metadata.json"), cfg.ManifestPath)
	require.Equal(t, "input", cfg.InputName)
	require.Equal(t, "output", cfg.OutputName)
}

func TestLoad_Overrides(t *testing.T) {
	abs := filepath.Join(t.TempDir(), "leaf.onnx")
	t.Setenv("PORT", "9090")
	t.Setenv("MODEL_PATH", abs)
	t.Setenv("MAX_UPLOAD_MB", "2")
	t.Setenv("CORS_ORIGINS", "http://a.example, http://b.example")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "9090", cfg.Port)
	require.Equal(t, abs, cfg.ModelPath)
	require.Equal(t, int64(2<<20), cfg.MaxUploadBytes)
	require.Equal(t, []string{"http://a.example", "http://b.example"}, cfg.CORSOrigins)
}

func TestLoad_InvalidValues(t *testing.T) {
	t.Setenv("MAX_UPLOAD_MB", "lots")
	_, err := Load()
	require.Error(t, err)

	t.Setenv("MAX_UPLOAD_MB", "")
	t.Setenv("PORT", "http")
	_, err = Load()
	require.Error(t, err)
}
