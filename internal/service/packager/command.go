package packager

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/myprojectmanager/mpm-release/internal/config"
	"github.com/myprojectmanager/mpm-release/internal/domain/release"
	"github.com/myprojectmanager/mpm-release/internal/domain/target"
	"github.com/myprojectmanager/mpm-release/internal/logger"
	"github.com/myprojectmanager/mpm-release/internal/repository/manifest"
	"github.com/myprojectmanager/mpm-release/internal/service/common"
	"github.com/myprojectmanager/mpm-release/internal/toolchain"
	"github.com/myprojectmanager/mpm-release/internal/vcs"
	"github.com/myprojectmanager/mpm-release/internal/version"
)

// Options contains inputs for the packager entry point.
type Options struct {
	// ConfigPath is an optional path to the release settings (defaults to mpm-release.yaml).
	ConfigPath string
	// WithRustHost enables the host-native cargo build after the matrix.
	WithRustHost bool
	// Strict turns per-target failures into an error.
	Strict bool
}

// packager runs the release build for one configuration.
// It is unexported; callers should use Run, which encapsulates setup.
type packager struct {
	// cfg holds the release settings.
	cfg *config.Config
	// targets is the parsed matrix in build order.
	targets []target.Target
	// opts are the command-line switches.
	opts *Options
	// runner executes toolchain commands.
	runner toolchain.Runner
	// lookPath checks that a tool is installed.
	lookPath func(string) error
	// manifests persists the release manifest.
	manifests manifest.Repository
	// hostOS names the platform cargo builds for.
	hostOS string
	// now is the clock used for build timestamps.
	now func() time.Time
}

var (
	// ErrPartialBuild is returned in strict mode when any target failed.
	ErrPartialBuild = errors.New("some targets failed to build")
	// ErrHostArtifactMissing is returned when cargo succeeded but left no binary.
	ErrHostArtifactMissing = errors.New("host build produced no artifact")
	// errMissingOutput is recorded for a target whose build left no file.
	errMissingOutput = errors.New("build produced no output file")
)

// Run executes the release workflow.
func Run(ctx context.Context, opts *Options) error {
	ctx = logger.WithName(ctx, "mpm-packager")
	ctx = logger.WithKV(ctx, "run_id", uuid.NewString())

	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}

	p, err := newPackager(cfg, opts, toolchain.ExecRunner{}, toolchain.LookPath)
	if err != nil {
		return fmt.Errorf("initialize packager: %w", err)
	}

	return p.Run(ctx)
}

// newPackager validates the matrix and wires the collaborators.
func newPackager(
	cfg *config.Config,
	opts *Options,
	runner toolchain.Runner,
	lookPath func(string) error,
) (*packager, error) {
	targets, err := target.ParseAll(cfg.Targets)
	if err != nil {
		return nil, err
	}

	return &packager{
		cfg:       cfg,
		targets:   targets,
		opts:      opts,
		runner:    runner,
		lookPath:  lookPath,
		manifests: manifest.NewFileRepository(cfg.ReleaseDir),
		hostOS:    runtime.GOOS,
		now:       time.Now,
	}, nil
}

// Run builds the matrix, writes the manifest, optionally builds the host
// binary and prints the summary.
func (p *packager) Run(ctx context.Context) error {
	if err := p.checkTools(); err != nil {
		return err
	}

	for _, dir := range []string{p.cfg.ReleaseDir, p.cfg.BinDir} {
		if err := os.MkdirAll(dir, common.DirectoryMode); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}

	marker, err := common.AcquireMarker(ctx, p.cfg.ReleaseDir, p.cfg.MarkerLifetime)
	if err != nil {
		return err
	}

	defer func() {
		if releaseErr := marker.Release(); releaseErr != nil {
			logger.WarnKV(ctx, "Unable to remove run marker", "error", releaseErr)
		}
	}()

	stamp := p.stamp(ctx)

	logger.InfoKV(ctx, "Building release matrix",
		"binary", p.cfg.BinaryName,
		"version", stamp.Version,
		"commit", stamp.Commit,
		"targets", len(p.targets))

	summary := p.buildMatrix(ctx, p.ldflags(stamp))

	if err = p.saveManifest(ctx, stamp, summary); err != nil {
		return err
	}

	var hostArtifact string

	if p.opts.WithRustHost {
		if hostArtifact, err = p.buildHost(ctx); err != nil {
			logger.ErrorKV(ctx, "Host build failed", "error", err)
			return err
		}
	}

	p.printSummary(ctx, summary, hostArtifact)

	if len(summary.Failed()) > 0 && p.strict() {
		return fmt.Errorf("%s: %w", strings.Join(summary.FailedTargets(), ", "), ErrPartialBuild)
	}

	return nil
}

// checkTools fails fast when a required compiler is missing.
func (p *packager) checkTools() error {
	tools := []string{toolchain.GoTool}
	if p.opts.WithRustHost {
		tools = append(tools, toolchain.CargoTool)
	}

	for _, tool := range tools {
		if err := p.lookPath(tool); err != nil {
			return err
		}
	}

	return nil
}

// strict reports whether partial failures are fatal.
func (p *packager) strict() bool {
	return p.opts.Strict || p.cfg.FailOnPartialBuild
}

// stamp collects the metadata injected into every binary.
func (p *packager) stamp(ctx context.Context) version.Stamp {
	stamp := version.Stamp{
		Version:   p.cfg.Version,
		Commit:    "none",
		BuildTime: p.now().UTC().Format(time.RFC3339),
	}

	sourceDir := p.cfg.ModuleDir
	if sourceDir == "" {
		sourceDir = "."
	}

	rev, err := vcs.Describe(sourceDir)
	if err != nil {
		logger.DebugKV(ctx, "Source revision unavailable", "dir", sourceDir, "error", err)
		return stamp
	}

	stamp.Commit = rev.Label()

	return stamp
}

// ldflags combines the configured linker flags with the version stamp.
func (p *packager) ldflags(stamp version.Stamp) string {
	return strings.TrimSpace(p.cfg.LDFlags + " " + stamp.LDFlags(p.cfg.VersionPackage))
}

// buildMatrix builds every target in order. Failures are recorded and never
// stop the remaining targets.
func (p *packager) buildMatrix(ctx context.Context, ldflags string) *target.Summary {
	summary := new(target.Summary)

	for i, t := range p.targets {
		result := p.buildTarget(ctx, t, ldflags)
		summary.Add(result)

		if result.OK() {
			logger.InfoKV(ctx, "Target built",
				"step", fmt.Sprintf("%d/%d", i+1, len(p.targets)),
				"target", t.String(),
				"artifact", result.Path,
				"archive", filepath.Base(result.Archive),
				"size", common.FormatSize(result.Size),
				"duration", result.Duration.Round(time.Millisecond).String())

			continue
		}

		logger.WarnKV(ctx, "Target failed, continuing",
			"step", fmt.Sprintf("%d/%d", i+1, len(p.targets)),
			"target", t.String(),
			"error", result.Err)
	}

	return summary
}

// buildTarget compiles one target, verifies its output and wraps it in the
// download archive. Outputs of an earlier run are removed first so a failed
// build never leaves a stale artifact behind.
func (p *packager) buildTarget(ctx context.Context, t target.Target, ldflags string) *target.Result {
	started := p.now()
	output := filepath.Join(p.cfg.ReleaseDir, target.ArtifactName(p.cfg.BinaryName, t))
	archive := filepath.Join(p.cfg.ReleaseDir, target.ArchiveName(p.assetName(), t))
	result := &target.Result{Target: t, Path: output}

	absOutput, err := filepath.Abs(output)
	if err != nil {
		result.Err = fmt.Errorf("resolve output path: %w", err)
		return result
	}

	if err = removeStale(output, archive); err != nil {
		result.Err = err
		return result
	}

	logger.DebugKV(ctx, "Building target", "target", t.String(), "output", absOutput)

	cmd := toolchain.GoBuild(t, p.cfg.ModuleDir, absOutput, p.cfg.GoPackage, ldflags)

	err = p.runner.Run(ctx, cmd)

	result.Duration = p.now().Sub(started)

	if err != nil {
		result.Err = err
		return result
	}

	info, err := os.Stat(output)

	switch {
	case errors.Is(err, os.ErrNotExist):
		result.Err = fmt.Errorf("%s: %w", output, errMissingOutput)
		return result
	case err != nil:
		result.Err = fmt.Errorf("stat %s: %w", output, err)
		return result
	}

	result.Size = info.Size()

	entry := target.ExecutableName(p.cfg.BinaryName, t.OS)
	if err = packArchive(output, archive, target.ArchiveRoot(p.assetName(), t), entry); err != nil {
		result.Err = fmt.Errorf("archive %s: %w", filepath.Base(archive), err)
		return result
	}

	result.Archive = archive
	result.Duration = p.now().Sub(started)

	return result
}

// assetName is the prefix of the download archives.
func (p *packager) assetName() string {
	if p.cfg.Fetch.AssetName != "" {
		return p.cfg.Fetch.AssetName
	}

	return p.cfg.BinaryName
}

// removeStale deletes artifacts left by a previous run.
func removeStale(paths ...string) error {
	for _, path := range paths {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("remove previous %s: %w", filepath.Base(path), err)
		}
	}

	return nil
}

// saveManifest records checksums of the successful artifacts and their archives.
func (p *packager) saveManifest(ctx context.Context, stamp version.Stamp, summary *target.Summary) error {
	m := release.NewManifest(stamp.Version, stamp.Commit, stamp.BuildTime)

	for _, result := range summary.Succeeded() {
		checksum, err := common.FileChecksum(result.Path)
		if err != nil {
			return fmt.Errorf("checksum %s: %w", result.Path, err)
		}

		m.Add(result.Target.String(), filepath.Base(result.Path), checksum)

		if result.Archive == "" {
			continue
		}

		if checksum, err = common.FileChecksum(result.Archive); err != nil {
			return fmt.Errorf("checksum %s: %w", result.Archive, err)
		}

		m.AddArchive(result.Target.String(), filepath.Base(result.Archive), checksum)
	}

	if err := p.manifests.Save(ctx, m); err != nil {
		return err
	}

	logger.InfoKV(ctx, "Release manifest written", "path", filepath.Join(p.cfg.ReleaseDir, release.ManifestFilename))

	return nil
}

// buildHost runs cargo for the host and installs the binary into the bin
// directory. Every failure here is fatal: there is a single host target.
func (p *packager) buildHost(ctx context.Context) (string, error) {
	crateDir := p.cfg.Rust.CrateDir

	logger.InfoKV(ctx, "Building host-native binary", "crate", crateDir, "os", p.hostOS)

	if err := p.runner.Run(ctx, toolchain.CargoBuild(crateDir)); err != nil {
		return "", fmt.Errorf("cargo build: %w", err)
	}

	artifact := toolchain.CargoArtifact(crateDir, p.cfg.Rust.BinaryName, p.hostOS)

	if _, err := os.Stat(artifact); errors.Is(err, os.ErrNotExist) {
		return "", fmt.Errorf("%s: %w", artifact, ErrHostArtifactMissing)
	} else if err != nil {
		return "", fmt.Errorf("stat %s: %w", artifact, err)
	}

	dst := filepath.Join(p.cfg.BinDir, target.ExecutableName(p.cfg.Rust.BinaryName, p.hostOS))
	if err := common.Install(ctx, artifact, dst, common.ExecutableFileMode); err != nil {
		return "", err
	}

	info, err := os.Stat(dst)
	if err != nil {
		return "", fmt.Errorf("stat %s: %w", dst, err)
	}

	logger.InfoKV(ctx, "Host binary installed", "path", dst, "size", common.FormatSize(info.Size()))

	return dst, nil
}

// printSummary logs the output locations and any failed targets.
func (p *packager) printSummary(ctx context.Context, summary *target.Summary, hostArtifact string) {
	var builder strings.Builder

	builder.WriteString("Release directory: ")
	builder.WriteString(p.cfg.ReleaseDir)

	for _, result := range summary.Succeeded() {
		builder.WriteString("\n  ")
		builder.WriteString(filepath.Base(result.Path))
		builder.WriteString(" (")
		builder.WriteString(common.FormatSize(result.Size))
		builder.WriteString(")")

		if result.Archive != "" {
			builder.WriteString(", ")
			builder.WriteString(filepath.Base(result.Archive))
		}
	}

	if hostArtifact != "" {
		builder.WriteString("\nBinaries directory: ")
		builder.WriteString(p.cfg.BinDir)
		builder.WriteString("\n  ")
		builder.WriteString(filepath.Base(hostArtifact))
	}

	logger.Info(ctx, builder.String())

	failed := summary.FailedTargets()
	if len(failed) == 0 {
		logger.InfoKV(ctx, "All targets built", "count", len(summary.Results))
		return
	}

	logger.WarnKV(ctx, "Some targets failed to build",
		"failed", strings.Join(failed, ", "),
		"built", len(summary.Succeeded()),
		"total", len(summary.Results))
}
