package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestLoadConfigMissingFile verifies that a missing config file falls
// back to the defaults without an error.
func TestLoadConfigMissingFile(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

// TestLoadConfigOverrides verifies that a partial file overrides only
// the fields it names and keeps defaults elsewhere.
func TestLoadConfigOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := []byte("selection:\n  predictorCount: 64\nclip:\n  sigma: 3.5\n")
	require.NoError(t, os.WriteFile(path, body, 0644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 64, cfg.Selection.PredictorCount)
	assert.Equal(t, 3.5, cfg.Clip.Sigma)
	assert.Equal(t, "similar_brightness", cfg.Selection.PredictorMethod)
	assert.Equal(t, 0.01, cfg.Fit.Reg)
}

// TestSaveLoadRoundTrip verifies that a saved configuration loads back
// unchanged.
func TestSaveLoadRoundTrip(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Selection.ExclusionMethod = "cross"
	cfg.Fit.UseTrend = true
	cfg.Batch.Workers = 3

	path := filepath.Join(t.TempDir(), "sub", "config.yaml")
	require.NoError(t, SaveConfig(cfg, path))

	got, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, got)
}

// TestLoadConfigMalformed verifies that unparseable YAML surfaces as an
// error rather than silent defaults.
func TestLoadConfigMalformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("selection: [broken"), 0644))

	_, err := LoadConfig(path)
	require.Error(t, err)
}
