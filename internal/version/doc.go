// Package version exposes build metadata for the release binaries.
//
// Variables Version, Commit, and BuildTime are injected at build time via
// Go ldflags. Stamp renders those ldflags for binaries the packager builds.
package version
