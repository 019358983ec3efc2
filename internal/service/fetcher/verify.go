package fetcher

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ProtonMail/go-crypto/openpgp"

	"github.com/myprojectmanager/mpm-release/internal/domain/release"
	"github.com/myprojectmanager/mpm-release/internal/service/common"
)

var (
	// ErrChecksumMismatch is returned when the archive differs from the manifest.
	ErrChecksumMismatch = errors.New("checksum mismatch")
	// ErrBadSignature is returned when the detached signature does not verify.
	ErrBadSignature = errors.New("signature verification failed")
	// errNoKeys is returned for a key file without public keys.
	errNoKeys = errors.New("no public keys found")
)

// VerifyChecksum compares the archive's SHA-512 with the manifest entry for its name.
func VerifyChecksum(archivePath string, m *release.Manifest) error {
	name := filepath.Base(archivePath)

	want, err := m.Checksum(name)
	if err != nil {
		return err
	}

	got, err := common.FileChecksum(archivePath)
	if err != nil {
		return fmt.Errorf("checksum %s: %w", name, err)
	}

	if !bytes.Equal(want, got) {
		return fmt.Errorf("%s: %w", name, ErrChecksumMismatch)
	}

	return nil
}

// ReadKeyRing loads an armored (or binary) OpenPGP public key file.
func ReadKeyRing(path string) (openpgp.EntityList, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("read public key: %w", err)
	}

	keyring, err := openpgp.ReadArmoredKeyRing(bytes.NewReader(data))
	if err != nil {
		keyring, err = openpgp.ReadKeyRing(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("parse public key: %w", err)
		}
	}

	if len(keyring) == 0 {
		return nil, fmt.Errorf("%s: %w", path, errNoKeys)
	}

	return keyring, nil
}

// VerifySignature checks an armored detached signature of archivePath.
func VerifySignature(keyring openpgp.EntityList, archivePath, signaturePath string) (*openpgp.Entity, error) {
	archive, err := os.Open(filepath.Clean(archivePath))
	if err != nil {
		return nil, err
	}

	defer func() {
		_ = archive.Close()
	}()

	signature, err := os.Open(filepath.Clean(signaturePath))
	if err != nil {
		return nil, err
	}

	defer func() {
		_ = signature.Close()
	}()

	signer, err := openpgp.CheckArmoredDetachedSignature(keyring, archive, signature, nil)
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %w", filepath.Base(archivePath), ErrBadSignature, err)
	}

	return signer, nil
}
