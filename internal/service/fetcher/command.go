package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"runtime"

	"github.com/myprojectmanager/mpm-release/internal/config"
	"github.com/myprojectmanager/mpm-release/internal/domain/release"
	"github.com/myprojectmanager/mpm-release/internal/domain/target"
	"github.com/myprojectmanager/mpm-release/internal/logger"
	"github.com/myprojectmanager/mpm-release/internal/repository/manifest"
	"github.com/myprojectmanager/mpm-release/internal/service/common"
)

// SignatureExtension is appended to the archive URL to find its detached signature.
const SignatureExtension = ".asc"

// Options are inputs accepted by the fetcher entry point.
// Non-empty fields override the fetch section of the settings file.
type Options struct {
	// ConfigPath is the optional path to settings YAML file.
	ConfigPath string
	// Version is the release to download ("latest" by default).
	Version string
	// InstallDir is where the release directory is created.
	InstallDir string
	// OS overrides the detected operating system.
	OS string
	// Arch overrides the detected architecture.
	Arch string
	// BaseURL overrides the release host.
	BaseURL string
	// Mirror is the gRPC address of an mpm-mirror to probe and take checksums from.
	Mirror string
	// PublicKey is a path to an armored OpenPGP key that signs the archives.
	PublicKey string
}

// fetcher holds one download-and-install execution.
// It is unexported; callers should use Run.
type fetcher struct {
	// settings is the fetch section after overrides.
	settings config.Fetch
	// platform selects the archive.
	platform Platform
	// client performs the downloads.
	client *http.Client
}

var (
	// ErrBadHTTPStatus is returned for non-200 download responses.
	ErrBadHTTPStatus = errors.New("unexpected http status")
	// ErrBinaryMissing is returned when the extracted release lacks its binary.
	ErrBinaryMissing = errors.New("release binary not found in archive")
)

// Run downloads, verifies and installs the release archive for this platform.
func Run(ctx context.Context, opts *Options) error {
	ctx = logger.WithName(ctx, "mpm-fetcher")

	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}

	f, err := newFetcher(cfg.Fetch, opts)
	if err != nil {
		return err
	}

	if err = f.Run(ctx); err != nil {
		logger.ErrorKV(ctx, "Fetch failed", "error", err)
		return err
	}

	return nil
}

// newFetcher applies command-line overrides and resolves the platform.
func newFetcher(settings config.Fetch, opts *Options) (*fetcher, error) {
	override := func(dst *string, value string) {
		if value != "" {
			*dst = value
		}
	}

	override(&settings.Version, opts.Version)
	override(&settings.InstallDir, opts.InstallDir)
	override(&settings.BaseURL, opts.BaseURL)
	override(&settings.Mirror, opts.Mirror)
	override(&settings.PublicKey, opts.PublicKey)

	goos, goarch := runtime.GOOS, runtime.GOARCH
	override(&goos, opts.OS)
	override(&goarch, opts.Arch)

	platform, err := DetectPlatform(goos, goarch)
	if err != nil {
		return nil, err
	}

	defaults := config.Default().Fetch
	override(&defaults.InstallDir, settings.InstallDir)
	override(&defaults.DirName, settings.DirName)
	override(&defaults.AssetName, settings.AssetName)
	settings.InstallDir = defaults.InstallDir
	settings.DirName = defaults.DirName
	settings.AssetName = defaults.AssetName

	if settings.Timeout <= 0 {
		settings.Timeout = config.DefaultFetchTimeout
	}

	return &fetcher{
		settings: settings,
		platform: platform,
		client:   &http.Client{Timeout: settings.Timeout},
	}, nil
}

// Run executes the fetch workflow:
// 1) Render the archive URL.
// 2) Probe the mirror, if any.
// 3) Download the archive and verify checksum and signature.
// 4) Extract, rename to the fixed directory and mark the binary executable.
func (f *fetcher) Run(ctx context.Context) error {
	data := NewURLData(f.settings.BaseURL, f.settings.Version, f.settings.AssetName, f.platform)

	assetURL, err := AssetURL(f.settings.URLTemplate, data)
	if err != nil {
		return err
	}

	logger.InfoKV(ctx, "Fetching release",
		"platform", f.platform.Target().String(),
		"version", data.Version,
		"url", assetURL)

	if f.settings.Mirror != "" {
		if err = f.probeMirror(ctx, data.Archive); err != nil {
			return err
		}
	}

	if err = os.MkdirAll(f.settings.InstallDir, common.DirectoryMode); err != nil {
		return fmt.Errorf("create install directory: %w", err)
	}

	archivePath := filepath.Join(f.settings.InstallDir, data.Archive)

	defer f.cleanup(ctx, archivePath, archivePath+SignatureExtension)

	if err = f.download(ctx, assetURL, archivePath); err != nil {
		return err
	}

	if err = f.verify(ctx, assetURL, archivePath); err != nil {
		return err
	}

	installed, err := f.install(ctx, archivePath)
	if err != nil {
		return err
	}

	logger.InfoKV(ctx, "Release installed", "path", installed)

	return nil
}

// probeMirror requires the mirror and the archive to be SERVING.
func (f *fetcher) probeMirror(ctx context.Context, archive string) error {
	client, err := common.Dial(ctx, f.settings.Mirror)
	if err != nil {
		return err
	}

	defer func() {
		_ = client.Close()
	}()

	for _, service := range []string{"", archive} {
		if err = client.CheckHealth(ctx, service); err != nil {
			return fmt.Errorf("mirror %s: %w", f.settings.Mirror, err)
		}
	}

	logger.InfoKV(ctx, "Mirror is serving", "address", f.settings.Mirror, "archive", archive)

	return nil
}

// get issues a GET bound to ctx and rejects non-200 responses.
func (f *fetcher) get(ctx context.Context, rawURL string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, http.NoBody)
	if err != nil {
		return nil, err
	}

	response, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download %s: %w", rawURL, err)
	}

	if response.StatusCode != http.StatusOK {
		_ = response.Body.Close()
		return nil, fmt.Errorf("%s, %s: %w", rawURL, response.Status, ErrBadHTTPStatus)
	}

	return response, nil
}

// download stores the body of rawURL at path.
func (f *fetcher) download(ctx context.Context, rawURL, path string) error {
	response, err := f.get(ctx, rawURL)
	if err != nil {
		return err
	}

	defer func() {
		_ = response.Body.Close()
	}()

	out, err := os.Create(filepath.Clean(path))
	if err != nil {
		return err
	}

	written, err := io.Copy(out, response.Body)
	if err != nil {
		_ = out.Close()
		return fmt.Errorf("download %s: %w", rawURL, err)
	}

	if err = out.Close(); err != nil {
		return err
	}

	logger.InfoKV(ctx, "Downloaded file", "path", path, "size", common.FormatSize(written))

	return nil
}

// verify checks the archive against the mirror manifest and the signing key
// when either is configured.
func (f *fetcher) verify(ctx context.Context, assetURL, archivePath string) error {
	if f.settings.Mirror != "" {
		m, err := f.fetchManifest(ctx, assetURL)
		if err != nil {
			return err
		}

		if err = VerifyChecksum(archivePath, m); err != nil {
			return err
		}

		logger.InfoKV(ctx, "Checksum verified", "archive", filepath.Base(archivePath), "release", m.Version)
	}

	if f.settings.PublicKey == "" {
		return nil
	}

	keyring, err := ReadKeyRing(f.settings.PublicKey)
	if err != nil {
		return err
	}

	signaturePath := archivePath + SignatureExtension
	if err = f.download(ctx, assetURL+SignatureExtension, signaturePath); err != nil {
		return err
	}

	signer, err := VerifySignature(keyring, archivePath, signaturePath)
	if err != nil {
		return err
	}

	logger.InfoKV(ctx, "Signature verified", "key", signer.PrimaryKey.KeyIdString())

	return nil
}

// fetchManifest downloads the release manifest published next to the archive.
func (f *fetcher) fetchManifest(ctx context.Context, assetURL string) (*release.Manifest, error) {
	manifestURL, err := siblingURL(assetURL, release.ManifestFilename)
	if err != nil {
		return nil, err
	}

	response, err := f.get(ctx, manifestURL)
	if err != nil {
		return nil, err
	}

	defer func() {
		_ = response.Body.Close()
	}()

	return manifest.Decode(response.Body)
}

// install extracts the archive and moves its root to <install>/<dir name>.
func (f *fetcher) install(ctx context.Context, archivePath string) (string, error) {
	staging, err := os.MkdirTemp(f.settings.InstallDir, ".mpm-fetch-")
	if err != nil {
		return "", err
	}

	defer func() {
		_ = os.RemoveAll(staging)
	}()

	if err = Extract(ctx, archivePath, staging); err != nil {
		return "", fmt.Errorf("extract %s: %w", filepath.Base(archivePath), err)
	}

	root, err := extractedRoot(staging)
	if err != nil {
		return "", err
	}

	// Archives without a single root directory are installed from a fresh staging copy.
	if root == staging {
		root, err = os.MkdirTemp(f.settings.InstallDir, ".mpm-root-")
		if err != nil {
			return "", err
		}

		if err = os.Remove(root); err != nil {
			return "", err
		}

		if err = os.Rename(staging, root); err != nil {
			return "", err
		}
	}

	final := filepath.Join(f.settings.InstallDir, f.settings.DirName)

	if err = os.RemoveAll(final); err != nil {
		return "", fmt.Errorf("remove previous release: %w", err)
	}

	if err = os.Rename(root, final); err != nil {
		return "", fmt.Errorf("rename %s: %w", filepath.Base(root), err)
	}

	if f.settings.BinaryName == "" {
		return final, nil
	}

	binary := filepath.Join(final, target.ExecutableName(f.settings.BinaryName, f.platform.OS))

	if _, err = os.Stat(binary); errors.Is(err, os.ErrNotExist) {
		return "", fmt.Errorf("%s: %w", filepath.Base(binary), ErrBinaryMissing)
	} else if err != nil {
		return "", err
	}

	if err = os.Chmod(binary, common.ExecutableFileMode); err != nil {
		return "", fmt.Errorf("chmod %s: %w", binary, err)
	}

	return final, nil
}

// cleanup removes downloaded files.
func (f *fetcher) cleanup(ctx context.Context, paths ...string) {
	for _, path := range paths {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			logger.WarnKV(ctx, "Unable to remove downloaded file", "path", path, "error", err)
		}
	}
}
