package manifest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/myprojectmanager/mpm-release/internal/domain/release"
)

// manifestFileMode lets mirrors and download clients read the manifest.
const manifestFileMode os.FileMode = 0o644

// Repository defines persistence operations for a release manifest.
type Repository interface {
	Load(ctx context.Context) (*release.Manifest, error)
	Save(ctx context.Context, m *release.Manifest) error
}

// FileRepository persists the manifest as YAML in a release directory.
type FileRepository struct {
	// path is the filesystem location of the manifest.
	path string
	// mu serialises access to the manifest file.
	mu sync.Mutex
}

var (
	// ErrNotFound is returned when the manifest file does not exist.
	ErrNotFound = errors.New("manifest not found")
	// errNilManifest is returned when Save receives nil.
	errNilManifest = errors.New("manifest is nil")
)

// NewFileRepository creates a repository for the manifest inside releaseDir.
func NewFileRepository(releaseDir string) *FileRepository {
	return &FileRepository{
		path: filepath.Join(filepath.Clean(releaseDir), release.ManifestFilename),
	}
}

// Path returns the manifest location.
func (r *FileRepository) Path() string {
	return r.path
}

// Load reads the manifest from disk.
func (r *FileRepository) Load(_ context.Context) (*release.Manifest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	f, err := os.Open(r.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotFound
		}

		return nil, fmt.Errorf("open manifest: %w", err)
	}

	defer func() {
		_ = f.Close()
	}()

	return Decode(f)
}

// Save writes the manifest to disk.
func (r *FileRepository) Save(_ context.Context, m *release.Manifest) error {
	if m == nil {
		return errNilManifest
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	data, err := yaml.Marshal(m)
	if err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}

	if err = writeAtomic(r.path, data); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}

	return nil
}

// writeAtomic replaces path with data through a hidden temporary file in the
// same directory, so readers see either the old or the new manifest.
func writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}

	tmpPath := tmp.Name()

	defer func() {
		if err != nil {
			_ = os.Remove(tmpPath)
		}
	}()

	if _, err = tmp.Write(data); err != nil {
		_ = tmp.Close()
		return err
	}

	if err = tmp.Chmod(manifestFileMode); err != nil {
		_ = tmp.Close()
		return err
	}

	if err = tmp.Close(); err != nil {
		return err
	}

	err = os.Rename(tmpPath, path)

	return err
}

// Decode parses a manifest from r, for example an HTTP response body.
func Decode(r io.Reader) (*release.Manifest, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}

	var m release.Manifest
	if err = yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decode manifest: %w", err)
	}

	return &m, nil
}
