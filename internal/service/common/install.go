//nolint:revive,nolintlint // Package name "common" is intentional for shared helpers.
package common

import (
	"bytes"
	"context"
	"crypto"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	goupdate "github.com/doitdistributed/go-update"

	"github.com/myprojectmanager/mpm-release/internal/logger"

	// Ensure SHA512 available for checksum calculation.
	_ "crypto/sha512"
)

const (
	// ExecutableFileMode is applied to installed binaries.
	ExecutableFileMode os.FileMode = 0o755

	// DirectoryMode is used for every directory the release tools create.
	DirectoryMode os.FileMode = 0o755

	// ChecksumFunction hashes artifacts for manifests and installs.
	ChecksumFunction crypto.Hash = crypto.SHA512

	bytesPerMegabyte = 1024 * 1024
)

var errHashUnavailable = errors.New("hash function unavailable")

// FileChecksum returns the ChecksumFunction digest of the file at path.
func FileChecksum(path string) ([]byte, error) {
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return nil, err
	}

	defer func() {
		_ = f.Close()
	}()

	return ReaderChecksum(f)
}

// ReaderChecksum returns the ChecksumFunction digest of everything read from r.
func ReaderChecksum(r io.Reader) ([]byte, error) {
	if !ChecksumFunction.Available() {
		return nil, fmt.Errorf("checksum calculation not possible: %w", errHashUnavailable)
	}

	hasher := ChecksumFunction.New()
	if _, err := io.Copy(hasher, r); err != nil {
		return nil, fmt.Errorf("calculate checksum: %w", err)
	}

	return hasher.Sum(nil), nil
}

// FormatSize renders a byte count in megabytes with one decimal.
func FormatSize(size int64) string {
	return fmt.Sprintf("%.1f MB", float64(size)/bytesPerMegabyte)
}

// Install copies src over dst atomically. The copy is verified against the
// checksum of src before it replaces dst, and any previous dst is removed.
func Install(ctx context.Context, src, dst string, mode os.FileMode) error {
	data, err := os.ReadFile(filepath.Clean(src))
	if err != nil {
		return fmt.Errorf("read %s: %w", src, err)
	}

	checksum, err := ReaderChecksum(bytes.NewReader(data))
	if err != nil {
		return err
	}

	return apply(ctx, data, checksum, dst, mode)
}

// apply moves data over dst with go-update after verifying it against checksum.
// A placeholder created for a missing dst is removed when the update fails.
func apply(ctx context.Context, data, checksum []byte, dst string, mode os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(dst), DirectoryMode); err != nil {
		return fmt.Errorf("create %s: %w", filepath.Dir(dst), err)
	}

	// go-update renames the current target aside before moving the new file
	// in, so the target has to exist.
	created := false

	if _, err := os.Stat(dst); errors.Is(err, os.ErrNotExist) {
		placeholder, err := os.Create(filepath.Clean(dst))
		if err != nil {
			return fmt.Errorf("create %s: %w", dst, err)
		}

		_ = placeholder.Close()
		created = true
	} else if err != nil {
		return fmt.Errorf("stat %s: %w", dst, err)
	}

	logger.DebugKV(ctx, "Applying binary", "target", dst, "size", FormatSize(int64(len(data))))

	options := goupdate.Options{
		TargetPath: dst,
		TargetMode: mode,
		Checksum:   checksum,
		Hash:       ChecksumFunction,
	}

	if err := goupdate.Apply(bytes.NewReader(data), options); err != nil {
		if created {
			_ = os.Remove(dst)
		}

		return fmt.Errorf("install %s: %w", dst, err)
	}

	oldFile := filepath.Join(filepath.Dir(dst), "."+filepath.Base(dst)+".old")
	if _, err := os.Stat(oldFile); err == nil {
		_ = os.Remove(oldFile)
	}

	return nil
}
