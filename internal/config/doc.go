// Package config defines the release settings shared by the mpm release
// binaries and provides helpers to load, validate and save them as YAML.
//
// A missing settings file is not an error: the defaults describe the mpm
// repository layout.
package config
