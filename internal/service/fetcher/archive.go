package fetcher

import (
	"archive/tar"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zip"

	"github.com/myprojectmanager/mpm-release/internal/logger"
	"github.com/myprojectmanager/mpm-release/internal/service/common"
)

var (
	// ErrUnsafePath is returned for archive entries escaping the destination.
	ErrUnsafePath = errors.New("archive entry escapes destination")
	// ErrUnknownArchive is returned for archives that are neither zip nor tar.gz.
	ErrUnknownArchive = errors.New("unknown archive format")
)

// Extract unpacks archivePath into dest, choosing the format by extension.
func Extract(ctx context.Context, archivePath, dest string) error {
	switch {
	case strings.HasSuffix(archivePath, ZipExtension):
		return extractZip(ctx, archivePath, dest)
	case strings.HasSuffix(archivePath, TarGzExtension), strings.HasSuffix(archivePath, ".tgz"):
		return extractTarGz(ctx, archivePath, dest)
	default:
		return fmt.Errorf("%s: %w", filepath.Base(archivePath), ErrUnknownArchive)
	}
}

// safeJoin resolves an entry name inside dest.
func safeJoin(dest, name string) (string, error) {
	name = strings.ReplaceAll(name, `\`, "/")
	if filepath.IsAbs(name) || strings.HasPrefix(name, "/") {
		return "", fmt.Errorf("%s: %w", name, ErrUnsafePath)
	}

	joined := filepath.Join(dest, filepath.FromSlash(name))

	rel, err := filepath.Rel(dest, joined)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%s: %w", name, ErrUnsafePath)
	}

	return joined, nil
}

func extractZip(ctx context.Context, archivePath, dest string) error {
	reader, err := zip.OpenReader(archivePath)
	if err != nil {
		return fmt.Errorf("open zip: %w", err)
	}

	defer func() {
		_ = reader.Close()
	}()

	for _, file := range reader.File {
		if err = ctx.Err(); err != nil {
			return err
		}

		var path string

		path, err = safeJoin(dest, file.Name)
		if err != nil {
			return err
		}

		info := file.FileInfo()

		switch {
		case info.IsDir():
			err = os.MkdirAll(path, common.DirectoryMode)
		case info.Mode().IsRegular():
			err = writeZipEntry(file, path)
		default:
			logger.DebugKV(ctx, "Skipping archive entry", "name", file.Name, "mode", info.Mode().String())
		}

		if err != nil {
			return err
		}
	}

	return nil
}

func writeZipEntry(file *zip.File, path string) error {
	src, err := file.Open()
	if err != nil {
		return fmt.Errorf("open %s: %w", file.Name, err)
	}

	defer func() {
		_ = src.Close()
	}()

	return writeFile(src, path, file.Mode().Perm())
}

func extractTarGz(ctx context.Context, archivePath, dest string) error {
	f, err := os.Open(filepath.Clean(archivePath))
	if err != nil {
		return fmt.Errorf("open archive: %w", err)
	}

	defer func() {
		_ = f.Close()
	}()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return fmt.Errorf("open gzip: %w", err)
	}

	defer func() {
		_ = gz.Close()
	}()

	tr := tar.NewReader(gz)

	for {
		if err = ctx.Err(); err != nil {
			return err
		}

		var header *tar.Header

		header, err = tr.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}

		if err != nil {
			return fmt.Errorf("read tar: %w", err)
		}

		var path string

		path, err = safeJoin(dest, header.Name)
		if err != nil {
			return err
		}

		switch header.Typeflag {
		case tar.TypeDir:
			err = os.MkdirAll(path, common.DirectoryMode)
		case tar.TypeReg:
			err = writeFile(tr, path, os.FileMode(header.Mode).Perm()) //nolint:gosec // Mode is masked to permission bits.
		default:
			logger.DebugKV(ctx, "Skipping archive entry", "name", header.Name, "type", string(header.Typeflag))
		}

		if err != nil {
			return err
		}
	}
}

// writeFile copies r into path, creating parent directories.
func writeFile(r io.Reader, path string, perm os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(path), common.DirectoryMode); err != nil {
		return err
	}

	if perm == 0 {
		perm = 0o644
	}

	out, err := os.OpenFile(filepath.Clean(path), os.O_CREATE|os.O_WRONLY|os.O_TRUNC, perm)
	if err != nil {
		return err
	}

	if _, err = io.Copy(out, r); err != nil { //nolint:gosec // Archives come from a verified release.
		_ = out.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}

	return out.Close()
}

// extractedRoot returns the single top-level directory of dir, or dir itself
// when the archive had no common root.
func extractedRoot(dir string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", err
	}

	if len(entries) == 1 && entries[0].IsDir() {
		return filepath.Join(dir, entries[0].Name()), nil
	}

	return dir, nil
}
