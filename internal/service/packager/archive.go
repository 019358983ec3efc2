package packager

import (
	"archive/tar"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zip"

	"github.com/myprojectmanager/mpm-release/internal/domain/target"
	"github.com/myprojectmanager/mpm-release/internal/service/common"
)

// packArchive writes binaryPath into archivePath as <root>/<entry>. The format
// follows the archive extension: zip for windows, tar.gz elsewhere. The archive
// is written to a hidden file first and renamed into place.
func packArchive(binaryPath, archivePath, root, entry string) (err error) {
	src, err := os.Open(filepath.Clean(binaryPath))
	if err != nil {
		return err
	}

	defer func() {
		_ = src.Close()
	}()

	info, err := src.Stat()
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(archivePath), "."+filepath.Base(archivePath)+".*")
	if err != nil {
		return err
	}

	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()

	switch {
	case strings.HasSuffix(archivePath, target.ZipExtension):
		err = writeZip(tmp, src, info, root, entry)
	default:
		err = writeTarGz(tmp, src, info, root, entry)
	}

	if err != nil {
		return err
	}

	if err = tmp.Chmod(archiveFileMode); err != nil {
		return err
	}

	if err = tmp.Close(); err != nil {
		return err
	}

	return os.Rename(tmp.Name(), archivePath)
}

// archiveFileMode lets the mirror serve archives to anyone.
const archiveFileMode os.FileMode = 0o644

func writeTarGz(out io.Writer, src io.Reader, info os.FileInfo, root, entry string) error {
	gz := gzip.NewWriter(out)
	tw := tar.NewWriter(gz)

	headers := []*tar.Header{
		{
			Typeflag: tar.TypeDir,
			Name:     root + "/",
			Mode:     int64(common.DirectoryMode),
			ModTime:  info.ModTime(),
		},
		{
			Typeflag: tar.TypeReg,
			Name:     root + "/" + entry,
			Mode:     int64(common.ExecutableFileMode),
			Size:     info.Size(),
			ModTime:  info.ModTime(),
		},
	}

	for _, header := range headers {
		if err := tw.WriteHeader(header); err != nil {
			return fmt.Errorf("write tar header %s: %w", header.Name, err)
		}
	}

	if _, err := io.Copy(tw, src); err != nil {
		return fmt.Errorf("write tar entry %s: %w", entry, err)
	}

	if err := tw.Close(); err != nil {
		return err
	}

	return gz.Close()
}

func writeZip(out io.Writer, src io.Reader, info os.FileInfo, root, entry string) error {
	zw := zip.NewWriter(out)

	dir := &zip.FileHeader{Name: root + "/", Modified: info.ModTime()}
	dir.SetMode(os.ModeDir | common.DirectoryMode)

	if _, err := zw.CreateHeader(dir); err != nil {
		return fmt.Errorf("write zip header %s: %w", dir.Name, err)
	}

	file := &zip.FileHeader{Name: root + "/" + entry, Method: zip.Deflate, Modified: info.ModTime()}
	file.SetMode(common.ExecutableFileMode)

	w, err := zw.CreateHeader(file)
	if err != nil {
		return fmt.Errorf("write zip header %s: %w", file.Name, err)
	}

	if _, err = io.Copy(w, src); err != nil {
		return fmt.Errorf("write zip entry %s: %w", entry, err)
	}

	return zw.Close()
}
