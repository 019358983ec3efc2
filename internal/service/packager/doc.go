// Package packager builds the release matrix for the mpm server.
//
// Each configured os/arch target is cross-compiled with the Go toolchain into
// the release directory; a failed target is reported and skipped. A manifest
// with artifact checksums is written afterwards. With the host build enabled,
// cargo builds the native indexer, and any failure there aborts the run.
package packager
