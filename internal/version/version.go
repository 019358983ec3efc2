package version

import (
	"fmt"
	"strings"
)

var (
	// Version is the semantic version of the build. It can be overridden via ldflags.
	Version = "0.1.0"
	// Commit is the short git SHA embedded at build time (or "none").
	Commit = "none"
	// BuildTime is the UTC build timestamp embedded at build time.
	BuildTime = "unknown"
)

// Short returns only the semantic version string.
func Short() string {
	return Version
}

// Full returns a human-readable version string with commit and build time.
func Full() string {
	return fmt.Sprintf("version: %s, commit: %s, built at: %s", Version, Commit, BuildTime)
}

// Stamp is the build metadata injected into a binary through -X linker flags.
type Stamp struct {
	Version   string
	Commit    string
	BuildTime string
}

// LDFlags renders -X assignments for the Version, Commit and BuildTime
// variables of the package at pkgPath. Empty fields are skipped.
func (s Stamp) LDFlags(pkgPath string) string {
	if pkgPath == "" {
		return ""
	}

	parts := make([]string, 0, 3)

	for _, kv := range [][2]string{
		{"Version", s.Version},
		{"Commit", s.Commit},
		{"BuildTime", s.BuildTime},
	} {
		if kv[1] == "" {
			continue
		}

		parts = append(parts, "-X "+quoteFlag(fmt.Sprintf("%s.%s=%s", pkgPath, kv[0], kv[1])))
	}

	return strings.Join(parts, " ")
}

// quoteFlag wraps an assignment containing spaces or quotes so that
// `go build` keeps it as one -ldflags argument. The go command splits
// -ldflags on whitespace and honors single or double quotes without escapes.
func quoteFlag(s string) string {
	if !strings.ContainsAny(s, " \t\n\r'\"") {
		return s
	}

	if strings.Contains(s, "'") {
		return `"` + s + `"`
	}

	return "'" + s + "'"
}
