package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "config.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "default", cfg.CurrentProfile)
	profile, err := cfg.GetProfile("")
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8080", profile.ServerURL)
}

func TestSaveProfileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.SaveProfile("staging", "https://trailpoint.staging.internal", "analyst-1"))

	reloaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "staging", reloaded.CurrentProfile)

	profile, err := reloaded.GetProfile("staging")
	require.NoError(t, err)
	assert.Equal(t, "https://trailpoint.staging.internal", profile.ServerURL)
	assert.Equal(t, "analyst-1", profile.Actor)

	// The default profile survives alongside the new one.
	_, err = reloaded.GetProfile("default")
	assert.NoError(t, err)
}

func TestGetProfileUnknown(t *testing.T) {
	cfg := Default()
	_, err := cfg.GetProfile("nope")
	assert.Error(t, err)
}

func TestSaveCreatesParentDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "config.yaml")
	cfg, err := Load(path)
	require.NoError(t, err)

	require.NoError(t, cfg.Save())
	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
}
