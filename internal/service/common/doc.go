// Package common holds helpers shared by the release services.
//
// It provides checksum-verified atomic installation of binaries, the run
// marker that keeps two packager runs out of the same release directory,
// and a small gRPC client for the mirror health service.
//
//nolint:revive,nolintlint // Package name "common" is intentional for shared helpers.
package common
