package release

import (
	"encoding/base64"
	"errors"
	"fmt"
	"maps"
	"slices"
)

// ManifestFilename is the manifest written next to the release artifacts.
const ManifestFilename = "mpm-manifest.yaml"

// defaultMapCapacity is the initial capacity for manifest maps.
const defaultMapCapacity = 8

// ErrNoChecksum is returned when the manifest has no entry for a file.
var ErrNoChecksum = errors.New("checksum missing for file")

// Manifest describes a published release directory.
type Manifest struct {
	// Version is the release version stamped into the binaries.
	Version string `yaml:"version"`
	// Commit is the source revision the release was built from.
	Commit string `yaml:"commit"`
	// BuildTime is the UTC timestamp of the packager run.
	BuildTime string `yaml:"build_time"`
	// Files maps artifact file names to base64-encoded SHA-512 checksums.
	Files map[string]string `yaml:"files"`
	// Targets maps os/arch to the artifact file name.
	Targets map[string]string `yaml:"targets"`
	// Archives maps os/arch to the downloadable archive wrapping the artifact.
	Archives map[string]string `yaml:"archives,omitempty"`
}

// NewManifest returns an empty manifest for version.
func NewManifest(version, commit, buildTime string) *Manifest {
	return &Manifest{
		Version:   version,
		Commit:    commit,
		BuildTime: buildTime,
		Files:     make(map[string]string, defaultMapCapacity),
		Targets:   make(map[string]string, defaultMapCapacity),
	}
}

// Add records an artifact built for target with its raw checksum.
func (m *Manifest) Add(target, fileName string, checksum []byte) {
	if m.Files == nil {
		m.Files = make(map[string]string, defaultMapCapacity)
	}

	if m.Targets == nil {
		m.Targets = make(map[string]string, defaultMapCapacity)
	}

	m.Files[fileName] = base64.StdEncoding.EncodeToString(checksum)

	if target != "" {
		m.Targets[target] = fileName
	}
}

// AddArchive records the archive published for target with its raw checksum.
func (m *Manifest) AddArchive(target, fileName string, checksum []byte) {
	if m.Files == nil {
		m.Files = make(map[string]string, defaultMapCapacity)
	}

	if m.Archives == nil {
		m.Archives = make(map[string]string, defaultMapCapacity)
	}

	m.Files[fileName] = base64.StdEncoding.EncodeToString(checksum)
	m.Archives[target] = fileName
}

// Checksum returns the decoded checksum recorded for fileName.
func (m *Manifest) Checksum(fileName string) ([]byte, error) {
	encoded, ok := m.Files[fileName]
	if !ok {
		return nil, fmt.Errorf("%s: %w", fileName, ErrNoChecksum)
	}

	checksum, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("decode checksum of %s: %w", fileName, err)
	}

	return checksum, nil
}

// FileNames returns the recorded file names in lexical order.
func (m *Manifest) FileNames() []string {
	return slices.Sorted(maps.Keys(m.Files))
}
