//nolint:revive,nolintlint // Package name "common" is intentional for shared helpers.
package common

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// deadPID is far above any default pid_max, so no process owns it.
const deadPID = 1<<22 + 12345

// TestMarker_AcquireRelease covers the happy path.
func TestMarker_AcquireRelease(t *testing.T) {
	t.Parallel()

	dir := filepath.Join(t.TempDir(), "release")

	m, err := AcquireMarker(context.Background(), dir, time.Hour)
	require.NoError(t, err)

	contents, err := os.ReadFile(filepath.Join(dir, MarkerFilename))
	require.NoError(t, err)
	require.Equal(t, strconv.Itoa(os.Getpid()), string(contents))

	require.NoError(t, m.Release())
	require.NoFileExists(t, filepath.Join(dir, MarkerFilename))

	require.NoError(t, (*Marker)(nil).Release())
}

// TestMarker_HeldByLiveProcess refuses to start while the owner runs.
func TestMarker_HeldByLiveProcess(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, MarkerFilename)
	require.NoError(t, os.WriteFile(path, []byte(strconv.Itoa(os.Getppid())), 0o600))

	_, err := AcquireMarker(context.Background(), dir, time.Hour)
	require.ErrorIs(t, err, ErrRunInProgress)
}

// TestMarker_StaleMarkers takes over markers of dead, corrupt or expired runs.
func TestMarker_StaleMarkers(t *testing.T) {
	t.Parallel()

	for name, contents := range map[string]string{
		"dead owner": strconv.Itoa(deadPID),
		"corrupt":    "not-a-pid",
	} {
		dir := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(dir, MarkerFilename), []byte(contents), 0o600), name)

		m, err := AcquireMarker(context.Background(), dir, time.Hour)
		require.NoError(t, err, name)
		require.NoError(t, m.Release(), name)
	}

	dir := t.TempDir()
	path := filepath.Join(dir, MarkerFilename)
	require.NoError(t, os.WriteFile(path, []byte(strconv.Itoa(os.Getppid())), 0o600))

	old := time.Now().Add(-2 * time.Hour)
	require.NoError(t, os.Chtimes(path, old, old))

	m, err := AcquireMarker(context.Background(), dir, time.Hour)
	require.NoError(t, err)
	require.NoError(t, m.Release())
}

// TestMarker_ForeignOwnerIsNotOverwritten keeps a live owner's marker intact.
func TestMarker_ForeignOwnerIsNotOverwritten(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, MarkerFilename)
	owner := strconv.Itoa(os.Getppid())
	require.NoError(t, os.WriteFile(path, []byte(owner), 0o600))

	for range 2 {
		_, err := AcquireMarker(context.Background(), dir, time.Hour)
		require.ErrorIs(t, err, ErrRunInProgress)
	}

	contents, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, owner, string(contents))
}

// TestMarker_ConcurrentAcquire lets exactly one of many callers hold the marker.
func TestMarker_ConcurrentAcquire(t *testing.T) {
	t.Parallel()

	const callers = 8

	dir := t.TempDir()
	results := make(chan error, callers)
	markers := make(chan *Marker, callers)

	var wg sync.WaitGroup

	for range callers {
		wg.Add(1)

		go func() {
			defer wg.Done()

			m, err := AcquireMarker(context.Background(), dir, time.Hour)
			if err == nil {
				markers <- m
			}

			results <- err
		}()
	}

	wg.Wait()
	close(results)
	close(markers)

	acquired := 0

	for err := range results {
		if err == nil {
			acquired++
			continue
		}

		require.ErrorIs(t, err, ErrRunInProgress)
	}

	require.Equal(t, 1, acquired)

	for m := range markers {
		require.NoError(t, m.Release())
	}

	m, err := AcquireMarker(context.Background(), dir, time.Hour)
	require.NoError(t, err)
	require.NoError(t, m.Release())
}

// TestMarker_EmptyMarkerIsHeld waits for a marker still being written.
func TestMarker_EmptyMarkerIsHeld(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, MarkerFilename)
	require.NoError(t, os.WriteFile(path, nil, 0o600))

	_, err := AcquireMarker(context.Background(), dir, time.Hour)
	require.ErrorIs(t, err, ErrRunInProgress)

	old := time.Now().Add(-2 * time.Hour)
	require.NoError(t, os.Chtimes(path, old, old))

	m, err := AcquireMarker(context.Background(), dir, time.Hour)
	require.NoError(t, err)
	require.NoError(t, m.Release())
}
