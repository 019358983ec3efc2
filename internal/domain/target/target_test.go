package target

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

// TestArtifactName verifies the naming convention across the whole matrix.
func TestArtifactName(t *testing.T) {
	t.Parallel()

	for _, tgt := range DefaultMatrix() {
		name := ArtifactName("mpm-go", tgt)

		want := "mpm-go-" + tgt.OS + "-" + tgt.Arch
		if tgt.OS == "windows" {
			want += ".exe"
		}

		require.Equal(t, want, name)
	}

	require.Equal(t, "ast_indexer.exe", ExecutableName("ast_indexer", "windows"))
	require.Equal(t, "ast_indexer", ExecutableName("ast_indexer", "darwin"))
}

// TestArchiveName picks zip for windows and tar.gz elsewhere.
func TestArchiveName(t *testing.T) {
	t.Parallel()

	require.Equal(t, "mpm-windows-arm64.zip", ArchiveName("mpm", Target{OS: "windows", Arch: "arm64"}))
	require.Equal(t, "mpm-linux-amd64.tar.gz", ArchiveName("mpm", Target{OS: "linux", Arch: "amd64"}))
	require.Equal(t, "mpm-darwin-arm64", ArchiveRoot("mpm", Target{OS: "darwin", Arch: "arm64"}))
}

// TestParse covers valid, malformed and unsupported inputs.
func TestParse(t *testing.T) {
	t.Parallel()

	tgt, err := Parse(" Linux/AMD64 ")
	require.NoError(t, err)
	require.Equal(t, Target{OS: "linux", Arch: "amd64"}, tgt)
	require.Equal(t, "linux/amd64", tgt.String())

	_, err = Parse("linux")
	require.ErrorIs(t, err, ErrMalformed)

	_, err = Parse("/amd64")
	require.ErrorIs(t, err, ErrMalformed)

	_, err = Parse("js/wasm")
	require.ErrorIs(t, err, ErrUnsupported)
}

// TestParseAll keeps order and rejects duplicates.
func TestParseAll(t *testing.T) {
	t.Parallel()

	targets, err := ParseAll([]string{"windows/amd64", "linux/arm64"})
	require.NoError(t, err)
	require.Equal(t, []string{"windows/amd64", "linux/arm64"}, Strings(targets))

	_, err = ParseAll([]string{"linux/amd64", "linux/amd64"})
	require.Error(t, err)
}

// TestDefaultMatrix checks the size and order of the full matrix.
func TestDefaultMatrix(t *testing.T) {
	t.Parallel()

	require.Equal(t, []string{
		"windows/amd64", "windows/arm64",
		"linux/amd64", "linux/arm64",
		"darwin/amd64", "darwin/arm64",
	}, Strings(DefaultMatrix()))
}

// TestSummary verifies success and failure bookkeeping.
func TestSummary(t *testing.T) {
	t.Parallel()

	var s Summary

	s.Add(&Result{Target: Target{OS: "linux", Arch: "amd64"}, Path: "x"})
	s.Add(&Result{Target: Target{OS: "windows", Arch: "amd64"}, Err: errors.New("boom")})

	require.Len(t, s.Succeeded(), 1)
	require.Len(t, s.Failed(), 1)
	require.Equal(t, []string{"windows/amd64"}, s.FailedTargets())
}
