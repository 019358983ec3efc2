package fetcher

import (
	"fmt"

	"github.com/myprojectmanager/mpm-release/internal/domain/target"
)

const (
	// ZipExtension is used for windows archives.
	ZipExtension = target.ZipExtension
	// TarGzExtension is used for every other platform.
	TarGzExtension = target.TarGzExtension
)

// Platform is a release platform and its archive format.
type Platform struct {
	OS   string
	Arch string
	Ext  string
}

// DetectPlatform validates goos/goarch and picks the archive extension.
func DetectPlatform(goos, goarch string) (Platform, error) {
	t, err := target.New(goos, goarch)
	if err != nil {
		return Platform{}, fmt.Errorf("detect platform: %w", err)
	}

	return Platform{OS: t.OS, Arch: t.Arch, Ext: target.ArchiveExtension(t.OS)}, nil
}

// Target returns the platform as a build target.
func (p Platform) Target() target.Target {
	return target.Target{OS: p.OS, Arch: p.Arch}
}

// ArchiveName returns "<asset>-<os>-<arch><ext>".
func (p Platform) ArchiveName(asset string) string {
	return target.ArchiveRoot(asset, p.Target()) + p.Ext
}
