package integration

import (
	"net"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/myprojectmanager/mpm-release/internal/config"
)

// reservePort returns a free localhost address.
func reservePort(t *testing.T) string {
	t.Helper()

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	addr := lis.Addr().String()
	require.NoError(t, lis.Close())

	return addr
}

// saveConfig writes cfg next to the test files and returns its path.
func saveConfig(t *testing.T, cfg *config.Config) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), config.DefaultConfigFilename)
	require.NoError(t, config.Save(path, cfg))

	return path
}

// writeFiles creates files under root.
func writeFiles(t *testing.T, root string, files map[string]string) {
	t.Helper()

	for name, body := range files {
		path := filepath.Join(root, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o750))
		require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	}
}
