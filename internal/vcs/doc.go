// Package vcs reads the git revision a release is built from, so the
// packager can stamp commit information into the binaries it produces.
package vcs
