//nolint:revive,nolintlint // Package name "common" is intentional for shared helpers.
package common

import (
	"bytes"
	"context"
	"crypto/sha512"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/require"
)

// TestFileChecksum matches the standard library digest.
func TestFileChecksum(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "bin")
	require.NoError(t, os.WriteFile(path, []byte("binary"), 0o600))

	sum, err := FileChecksum(path)
	require.NoError(t, err)

	want := sha512.Sum512([]byte("binary"))
	require.Equal(t, want[:], sum)

	_, err = FileChecksum(filepath.Join(t.TempDir(), "missing"))
	require.ErrorIs(t, err, os.ErrNotExist)
}

// TestFormatSize renders megabytes with one decimal.
func TestFormatSize(t *testing.T) {
	t.Parallel()

	require.Equal(t, "0.0 MB", FormatSize(0))
	require.Equal(t, "1.5 MB", FormatSize(3*1024*1024/2))
}

// TestInstall_NewAndReplace installs into a missing directory and replaces an existing file.
func TestInstall_NewAndReplace(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	src := filepath.Join(dir, "build", "ast_indexer")
	dst := filepath.Join(dir, "bin", "ast_indexer")

	require.NoError(t, os.MkdirAll(filepath.Dir(src), 0o750))
	require.NoError(t, os.WriteFile(src, []byte("v1"), 0o600))

	require.NoError(t, Install(context.Background(), src, dst, ExecutableFileMode))

	got, err := os.ReadFile(dst)
	require.NoError(t, err)
	require.Equal(t, []byte("v1"), got)

	if runtime.GOOS != "windows" {
		info, err := os.Stat(dst)
		require.NoError(t, err)
		require.Equal(t, ExecutableFileMode, info.Mode().Perm())
	}

	require.NoError(t, os.WriteFile(src, bytes.Repeat([]byte("v2"), 64), 0o600))
	require.NoError(t, Install(context.Background(), src, dst, ExecutableFileMode))

	got, err = os.ReadFile(dst)
	require.NoError(t, err)
	require.Equal(t, bytes.Repeat([]byte("v2"), 64), got)

	require.Error(t, Install(context.Background(), filepath.Join(dir, "missing"), dst, ExecutableFileMode))
}

// TestInstall_FailedApplyLeavesNoPlaceholder keeps a missing target missing
// and an existing target intact when verification fails.
func TestInstall_FailedApplyLeavesNoPlaceholder(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	dst := filepath.Join(dir, "bin", "mpm-go")
	wrong := sha512.Sum512([]byte("other"))

	err := apply(context.Background(), []byte("v1"), wrong[:], dst, ExecutableFileMode)
	require.Error(t, err)

	_, err = os.Stat(dst)
	require.ErrorIs(t, err, os.ErrNotExist)

	require.NoError(t, os.WriteFile(dst, []byte("v0"), 0o600))
	require.Error(t, apply(context.Background(), []byte("v1"), wrong[:], dst, ExecutableFileMode))

	got, err := os.ReadFile(dst)
	require.NoError(t, err)
	require.Equal(t, []byte("v0"), got)
}
