// Package bundler assembles the distributable MyProjectManager folder from a
// project checkout: core directories, the concise manual, root files, build
// scripts and a final check that the compiled binaries are present.
package bundler
