package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// TestValidate checks required fields and format validations.
func TestValidate(t *testing.T) {
	t.Parallel()

	require.Error(t, Validate(nil))

	cfg := Default()
	require.NoError(t, Validate(cfg))

	cfg.BinaryName = ""
	require.ErrorIs(t, Validate(cfg), errFieldRequired)

	cfg = Default()
	cfg.Targets = nil
	require.ErrorIs(t, Validate(cfg), errNoTargets)

	cfg = Default()
	cfg.Targets = []string{"plan9/mips"}
	require.Error(t, Validate(cfg))

	cfg = Default()
	cfg.Fetch.BaseURL = "not a url"
	require.Error(t, Validate(cfg))

	cfg = Default()
	cfg.MarkerLifetime = 0
	cfg.Fetch.Timeout = 0
	require.NoError(t, Validate(cfg))
	require.Equal(t, DefaultMarkerLifetime, cfg.MarkerLifetime)
	require.Equal(t, DefaultFetchTimeout, cfg.Fetch.Timeout)
}

// TestSaveLoadRoundtrip ensures settings are persisted and loaded back correctly.
func TestSaveLoadRoundtrip(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "release.yaml")

	cfg := Default()
	cfg.BinaryName = "tool"
	cfg.Targets = []string{"linux/amd64", "windows/amd64"}
	cfg.FailOnPartialBuild = true
	cfg.MarkerLifetime = time.Minute

	require.NoError(t, Save(path, cfg))

	loaded, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, cfg.BinaryName, loaded.BinaryName)
	require.Equal(t, cfg.Targets, loaded.Targets)
	require.True(t, loaded.FailOnPartialBuild)
	require.Equal(t, time.Minute, loaded.MarkerLifetime)

	_, err = os.Stat(path)
	require.NoError(t, err)
}

// TestLoadPartialFileKeepsDefaults verifies unspecified keys fall back to defaults.
func TestLoadPartialFileKeepsDefaults(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "release.yaml")
	require.NoError(t, os.WriteFile(path, []byte("binary_name: custom\n"), 0o600))

	loaded, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "custom", loaded.BinaryName)
	require.Equal(t, Default().Targets, loaded.Targets)
	require.Equal(t, "ast_indexer", loaded.Rust.BinaryName)
}

// TestLoadMissingExplicitFile ensures an explicitly named missing file is an error.
func TestLoadMissingExplicitFile(t *testing.T) {
	t.Parallel()

	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.ErrorIs(t, err, os.ErrNotExist)
}
