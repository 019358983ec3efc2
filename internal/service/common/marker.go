//nolint:revive,nolintlint // Package name "common" is intentional for shared helpers.
package common

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/mitchellh/go-ps"

	"github.com/myprojectmanager/mpm-release/internal/logger"
)

// MarkerFilename marks a release directory as being written by a packager run.
const MarkerFilename = ".mpm-release.lock"

// markerFileMode keeps the marker private to the operator.
const markerFileMode os.FileMode = 0o600

// ErrRunInProgress is returned when another live run holds the marker.
var ErrRunInProgress = errors.New("another packager run is in progress")

// Marker is a held run marker.
type Marker struct {
	path string
}

// heldMarkers tracks marker paths acquired by this process.
var heldMarkers sync.Map

// AcquireMarker creates the run marker in dir. An existing marker blocks the
// run unless it is older than lifetime or its owning process no longer exists,
// in which case it is replaced once.
func AcquireMarker(ctx context.Context, dir string, lifetime time.Duration) (*Marker, error) {
	path := filepath.Clean(filepath.Join(dir, MarkerFilename))

	if err := os.MkdirAll(dir, DirectoryMode); err != nil {
		return nil, fmt.Errorf("create %s: %w", dir, err)
	}

	if _, loaded := heldMarkers.LoadOrStore(path, struct{}{}); loaded {
		return nil, fmt.Errorf("%s: %w", path, ErrRunInProgress)
	}

	if err := createMarker(ctx, path, lifetime); err != nil {
		heldMarkers.Delete(path)
		return nil, err
	}

	return &Marker{path: path}, nil
}

// createMarker writes the current PID to path with O_EXCL. A stale marker is
// removed and the create retried one time.
func createMarker(ctx context.Context, path string, lifetime time.Duration) error {
	pid := strconv.Itoa(os.Getpid())

	for attempt := 0; ; attempt++ {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, markerFileMode)
		if err == nil {
			_, err = f.WriteString(pid)
			if closeErr := f.Close(); err == nil {
				err = closeErr
			}

			if err != nil {
				_ = os.Remove(path)
				return fmt.Errorf("write run marker: %w", err)
			}

			logger.DebugKV(ctx, "Run marker acquired", "path", path, "pid", pid)

			return nil
		}

		if !errors.Is(err, os.ErrExist) {
			return fmt.Errorf("create run marker: %w", err)
		}

		if attempt > 0 {
			return fmt.Errorf("%s: %w", path, ErrRunInProgress)
		}

		stale, err := markerIsStale(ctx, path, lifetime)
		if err != nil {
			return err
		} else if !stale {
			return fmt.Errorf("%s: %w", path, ErrRunInProgress)
		}

		if err = os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("remove stale run marker: %w", err)
		}
	}
}

// Release removes the marker. It is safe to call on a nil Marker.
func (m *Marker) Release() error {
	if m == nil {
		return nil
	}

	defer heldMarkers.Delete(m.path)

	if err := os.Remove(m.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove run marker: %w", err)
	}

	return nil
}

// markerIsStale reports true when no marker exists or the existing one can be taken over.
func markerIsStale(ctx context.Context, path string, lifetime time.Duration) (bool, error) {
	info, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		return true, nil
	} else if err != nil {
		return false, fmt.Errorf("stat run marker: %w", err)
	}

	if lifetime > 0 && time.Since(info.ModTime()) > lifetime {
		logger.InfoKV(ctx, "Run marker is too old, taking it over", "path", path, "age", time.Since(info.ModTime()).String())
		return true, nil
	}

	contents, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return false, fmt.Errorf("read run marker: %w", err)
	}

	// An empty marker is still being written by the run that created it.
	if len(strings.TrimSpace(string(contents))) == 0 {
		logger.WarnKV(ctx, "Run marker is being created", "path", path)
		return false, nil
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(contents)))
	if err != nil {
		logger.InfoKV(ctx, "Run marker is unreadable, taking it over", "path", path)
		return true, nil //nolint:nilerr // A corrupt marker cannot belong to a live run.
	}

	if pid == os.Getpid() {
		return true, nil
	}

	process, err := ps.FindProcess(pid)
	if err != nil {
		return false, fmt.Errorf("look up process %d: %w", pid, err)
	}

	if process == nil {
		logger.InfoKV(ctx, "Run marker owner is gone, taking it over", "path", path, "pid", pid)
		return true, nil
	}

	logger.WarnKV(ctx, "Run marker is held", "pid", pid, "process", process.Executable())

	return false, nil
}
