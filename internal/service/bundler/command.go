package bundler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/myprojectmanager/mpm-release/internal/config"
	"github.com/myprojectmanager/mpm-release/internal/logger"
	"github.com/myprojectmanager/mpm-release/internal/service/common"
)

// ScriptsDir is the bundle folder that receives the flattened build scripts.
const ScriptsDir = "scripts"

// Options are inputs accepted by the bundler entry point.
type Options struct {
	// ConfigPath is the optional path to settings YAML file.
	ConfigPath string
	// Root is the project checkout to bundle (defaults to the working directory).
	Root string
}

// Report lists what the bundle is missing. Missing items are warnings only.
type Report struct {
	// Dest is the assembled product directory.
	Dest string
	// Missing lists configured inputs that did not exist.
	Missing []string
	// MissingBinaries lists required binaries absent from the bundle.
	MissingBinaries []string
}

// Complete reports whether every required binary is present.
func (r *Report) Complete() bool {
	return len(r.MissingBinaries) == 0
}

// bundler assembles one bundle.
// It is unexported; callers should use Run.
type bundler struct {
	// root is the absolute project directory.
	root string
	// settings is the bundle section of the release settings.
	settings config.Bundle
	// releaseRoot is removed and recreated on every run.
	releaseRoot string
	// dest is releaseRoot/<product>.
	dest string
	// report collects warnings.
	report *Report
}

// errBadLayout is returned when the bundle would overwrite the project itself.
var errBadLayout = errors.New("release directory name and product are required")

// Run assembles the bundle under <root>/<release dir name>/<product>.
func Run(ctx context.Context, opts *Options) error {
	ctx = logger.WithName(ctx, "mpm-bundler")

	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}

	b, err := newBundler(opts.Root, cfg.Bundle)
	if err != nil {
		return err
	}

	report, err := b.Run(ctx)
	if err != nil {
		logger.ErrorKV(ctx, "Bundle failed", "error", err)
		return err
	}

	if !report.Complete() {
		logger.WarnKV(ctx, "Some binaries are missing, build the project first",
			"missing", strings.Join(report.MissingBinaries, ", "))

		return nil
	}

	logger.InfoKV(ctx, "Bundle ready, copy this folder to the target machine", "path", report.Dest)

	return nil
}

func newBundler(root string, settings config.Bundle) (*bundler, error) {
	if settings.ReleaseDirName == "" || settings.Product == "" {
		return nil, errBadLayout
	}

	if root == "" {
		root = "."
	}

	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve root: %w", err)
	}

	releaseRoot := filepath.Join(absRoot, settings.ReleaseDirName)
	if releaseRoot == absRoot || !strings.HasPrefix(releaseRoot, absRoot+string(filepath.Separator)) {
		return nil, fmt.Errorf("%s: %w", settings.ReleaseDirName, errBadLayout)
	}

	dest := filepath.Join(releaseRoot, settings.Product)

	return &bundler{
		root:        absRoot,
		settings:    settings,
		releaseRoot: releaseRoot,
		dest:        dest,
		report:      &Report{Dest: dest},
	}, nil
}

// Run executes the bundle steps in order and returns the warning report.
func (b *bundler) Run(ctx context.Context) (*Report, error) {
	if err := os.RemoveAll(b.releaseRoot); err != nil {
		return nil, fmt.Errorf("clean %s: %w", b.releaseRoot, err)
	}

	if err := os.MkdirAll(b.dest, common.DirectoryMode); err != nil {
		return nil, fmt.Errorf("create %s: %w", b.dest, err)
	}

	logger.InfoKV(ctx, "Packaging product", "root", b.root, "dest", b.dest)

	steps := []func(context.Context) error{
		b.copyDirs,
		b.copyManual,
		b.copyFiles,
		b.copyScripts,
	}

	for _, step := range steps {
		if err := step(ctx); err != nil {
			return nil, err
		}
	}

	b.verifyBinaries(ctx)

	return b.report, nil
}

// missing records and logs an absent input.
func (b *bundler) missing(ctx context.Context, kind, name string) {
	b.report.Missing = append(b.report.Missing, name)
	logger.WarnKV(ctx, "Input does not exist", "kind", kind, "name", name)
}

func (b *bundler) copyDirs(ctx context.Context) error {
	for _, dir := range b.settings.Dirs {
		src := filepath.Join(b.root, filepath.FromSlash(dir))

		if !isDir(src) {
			b.missing(ctx, "directory", dir)
			continue
		}

		logger.InfoKV(ctx, "Packaging module", "dir", dir)

		if err := b.copyTree(ctx, src, filepath.Join(b.dest, filepath.FromSlash(dir))); err != nil {
			return fmt.Errorf("copy %s: %w", dir, err)
		}
	}

	return nil
}

// copyManual keeps only the configured manual file of the manual directory.
func (b *bundler) copyManual(ctx context.Context) error {
	if b.settings.ManualDir == "" {
		return nil
	}

	srcDir := filepath.Join(b.root, b.settings.ManualDir)
	if !isDir(srcDir) {
		b.missing(ctx, "directory", b.settings.ManualDir)
		return nil
	}

	dstDir := filepath.Join(b.dest, b.settings.ManualDir)
	if err := os.MkdirAll(dstDir, common.DirectoryMode); err != nil {
		return err
	}

	src := filepath.Join(srcDir, b.settings.ManualFile)
	if !isFile(src) {
		b.missing(ctx, "manual", b.settings.ManualFile)
		return nil
	}

	if err := copyFile(src, filepath.Join(dstDir, b.settings.ManualFile)); err != nil {
		return err
	}

	logger.InfoKV(ctx, "Copied manual", "file", b.settings.ManualFile)

	return nil
}

func (b *bundler) copyFiles(ctx context.Context) error {
	for _, name := range b.settings.Files {
		src := filepath.Join(b.root, filepath.FromSlash(name))

		if !isFile(src) {
			b.missing(ctx, "file", name)
			continue
		}

		logger.InfoKV(ctx, "Packaging file", "file", name)

		if err := copyFile(src, filepath.Join(b.dest, filepath.FromSlash(name))); err != nil {
			return err
		}
	}

	return nil
}

// copyScripts flattens build scripts into the scripts folder.
func (b *bundler) copyScripts(ctx context.Context) error {
	dstDir := filepath.Join(b.dest, ScriptsDir)
	if err := os.MkdirAll(dstDir, common.DirectoryMode); err != nil {
		return err
	}

	for _, script := range b.settings.Scripts {
		src := filepath.Join(b.root, filepath.FromSlash(script))

		if !isFile(src) {
			b.missing(ctx, "script", script)
			continue
		}

		logger.InfoKV(ctx, "Packaging build script", "script", script)

		if err := copyFile(src, filepath.Join(dstDir, filepath.Base(src))); err != nil {
			return err
		}
	}

	return nil
}

// verifyBinaries reports the size of each required binary in the bundle.
func (b *bundler) verifyBinaries(ctx context.Context) {
	logger.Info(ctx, "Verifying binaries")

	for _, name := range b.settings.RequiredBinaries {
		info, err := os.Stat(filepath.Join(b.dest, filepath.FromSlash(name)))
		if err != nil {
			b.report.MissingBinaries = append(b.report.MissingBinaries, name)
			logger.WarnKV(ctx, "Binary missing, the bundle may be incomplete", "binary", name)

			continue
		}

		logger.InfoKV(ctx, "Binary present", "binary", name, "size", common.FormatSize(info.Size()))
	}
}

// ignored reports whether a base name matches an ignore pattern.
func (b *bundler) ignored(name string) bool {
	for _, pattern := range b.settings.Ignore {
		if ok, _ := filepath.Match(pattern, name); ok {
			return true
		}
	}

	return false
}

// copyTree copies src into dst, skipping ignored names at any depth.
func (b *bundler) copyTree(ctx context.Context, src, dst string) error {
	return filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if path != src && b.ignored(d.Name()) {
			if d.IsDir() {
				return filepath.SkipDir
			}

			return nil
		}

		// The bundle may live inside a copied directory.
		if d.IsDir() && path == b.releaseRoot {
			return filepath.SkipDir
		}

		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}

		target := filepath.Join(dst, rel)

		switch {
		case d.IsDir():
			return os.MkdirAll(target, common.DirectoryMode)
		case d.Type().IsRegular():
			return copyFile(path, target)
		default:
			logger.DebugKV(ctx, "Skipping non-regular file", "path", path)
			return nil
		}
	})
}

// copyFile copies src to dst keeping the permission bits and modification time.
func copyFile(src, dst string) error {
	info, err := os.Stat(src)
	if err != nil {
		return err
	}

	if err = os.MkdirAll(filepath.Dir(dst), common.DirectoryMode); err != nil {
		return err
	}

	in, err := os.Open(filepath.Clean(src))
	if err != nil {
		return err
	}

	defer func() {
		_ = in.Close()
	}()

	out, err := os.OpenFile(filepath.Clean(dst), os.O_CREATE|os.O_WRONLY|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return err
	}

	if _, err = io.Copy(out, in); err != nil {
		_ = out.Close()
		return fmt.Errorf("copy %s: %w", src, err)
	}

	if err = out.Close(); err != nil {
		return err
	}

	return os.Chtimes(dst, info.ModTime(), info.ModTime())
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

func isFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}
