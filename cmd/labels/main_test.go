package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Brownie44l1/leaf-doctor/internal/labels"
)

func TestRun_WritesManifest(t *testing.T) {
	root := t.TempDir()
	dataset := filepath.Join(root, "train")
	for _, c := range []string{"Grape___healthy", "Apple___healthy"} {
		require.NoError(t, os.MkdirAll(filepath.Join(dataset, c), 0o755))
	}
	out := filepath.Join(root, "models", "model_metadata.json")

	require.NoError(t, run(dataset, out, 224, false))

	m, err := labels.LoadManifest(out)
	require.NoError(t, err)
	require.Equal(t, []string{"Apple___healthy", "Grape___healthy"}, m.Classes)
	require.Equal(t, dataset, m.Source)

	require.Error(t, run(dataset, out, 224, false))
	require.NoError(t, run(dataset, out, 224, true))
}

func TestRun_RejectsEmptyOrMissingDataset(t *testing.T) {
	root := t.TempDir()
	out := filepath.Join(root, "m.json")

	require.Error(t, run(filepath.Join(root, "missing"), out, 224, false))

	empty := filepath.Join(root, "empty")
	require.NoError(t, os.Mkdir(empty, 0o755))
	require.Error(t, run(empty, out, 224, false))
}

func TestRun_RejectsOtherResolution(t *testing.T) {
	root := t.TempDir()
	dataset := filepath.Join(root, "train")
	require.NoError(t, os.MkdirAll(filepath.Join(dataset, "Apple___healthy"), 0o755))
	out := filepath.Join(root, "m.json")

	require.Error(t, run(dataset, out, 256, false))
	_, err := os.Stat(out)
	require.ErrorIs(t, err, os.ErrNotExist)
}
