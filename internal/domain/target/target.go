package target

import (
	"errors"
	"fmt"
	"runtime"
	"slices"
	"strings"
	"time"
)

// Supported operating systems and architectures, in matrix order.
//
//nolint:gochecknoglobals // Fixed enumerations.
var (
	OperatingSystems = []string{"windows", "linux", "darwin"}
	Architectures    = []string{"amd64", "arm64"}
)

const windows = "windows"

const (
	// ZipExtension is used for windows archives.
	ZipExtension = ".zip"
	// TarGzExtension is used for every other platform.
	TarGzExtension = ".tar.gz"
)

var (
	// ErrUnsupported is returned for os/arch pairs outside the supported set.
	ErrUnsupported = errors.New("unsupported target")
	// ErrMalformed is returned when a target string is not in os/arch form.
	ErrMalformed = errors.New("malformed target, expected os/arch")
)

// Target is an operating system and architecture pair selecting a cross-compilation output.
type Target struct {
	OS   string
	Arch string
}

// New validates and returns a Target.
func New(goos, goarch string) (Target, error) {
	t := Target{OS: strings.ToLower(goos), Arch: strings.ToLower(goarch)}
	if !slices.Contains(OperatingSystems, t.OS) || !slices.Contains(Architectures, t.Arch) {
		return Target{}, fmt.Errorf("%s/%s: %w", goos, goarch, ErrUnsupported)
	}

	return t, nil
}

// Parse reads a target written as "os/arch".
func Parse(s string) (Target, error) {
	goos, goarch, ok := strings.Cut(strings.TrimSpace(s), "/")
	if !ok || goos == "" || goarch == "" {
		return Target{}, fmt.Errorf("%q: %w", s, ErrMalformed)
	}

	return New(goos, goarch)
}

// ParseAll parses every entry, keeping order. Duplicates are rejected.
func ParseAll(entries []string) ([]Target, error) {
	targets := make([]Target, 0, len(entries))

	for _, entry := range entries {
		t, err := Parse(entry)
		if err != nil {
			return nil, err
		}

		if slices.Contains(targets, t) {
			return nil, fmt.Errorf("duplicate target %s", t)
		}

		targets = append(targets, t)
	}

	return targets, nil
}

// DefaultMatrix returns every supported target in matrix order.
func DefaultMatrix() []Target {
	targets := make([]Target, 0, len(OperatingSystems)*len(Architectures))

	for _, goos := range OperatingSystems {
		for _, goarch := range Architectures {
			targets = append(targets, Target{OS: goos, Arch: goarch})
		}
	}

	return targets
}

// Host returns the target of the running process. It is not validated
// against the supported set.
func Host() Target {
	return Target{OS: runtime.GOOS, Arch: runtime.GOARCH}
}

// Strings formats targets as "os/arch".
func Strings(targets []Target) []string {
	out := make([]string, len(targets))
	for i, t := range targets {
		out[i] = t.String()
	}

	return out
}

// String returns "os/arch".
func (t Target) String() string {
	return t.OS + "/" + t.Arch
}

// IsWindows reports whether the target builds Windows executables.
func (t Target) IsWindows() bool {
	return t.OS == windows
}

// ExecutableExtension returns ".exe" for Windows and "" elsewhere.
func ExecutableExtension(goos string) string {
	if goos == windows {
		return ".exe"
	}

	return ""
}

// ExecutableName appends the platform executable extension to name.
func ExecutableName(name, goos string) string {
	return name + ExecutableExtension(goos)
}

// ArtifactName returns <name>-<os>-<arch>, with ".exe" if and only if the target OS is windows.
func ArtifactName(name string, t Target) string {
	return ExecutableName(name+"-"+t.OS+"-"+t.Arch, t.OS)
}

// ArchiveExtension returns ".zip" for Windows and ".tar.gz" elsewhere.
func ArchiveExtension(goos string) string {
	if goos == windows {
		return ZipExtension
	}

	return TarGzExtension
}

// ArchiveRoot returns <asset>-<os>-<arch>, the top directory inside a release archive.
func ArchiveRoot(asset string, t Target) string {
	return asset + "-" + t.OS + "-" + t.Arch
}

// ArchiveName returns <asset>-<os>-<arch> with the archive extension of the target OS.
func ArchiveName(asset string, t Target) string {
	return ArchiveRoot(asset, t) + ArchiveExtension(t.OS)
}

// Result is the outcome of building one Target.
type Result struct {
	Target   Target
	Path     string
	Archive  string
	Size     int64
	Duration time.Duration
	Err      error
}

// OK reports whether the build produced its artifact.
func (r *Result) OK() bool {
	return r.Err == nil
}

// Summary collects the results of a matrix run in build order.
type Summary struct {
	Results []*Result
}

// Add appends a result.
func (s *Summary) Add(r *Result) {
	s.Results = append(s.Results, r)
}

// Succeeded returns results with an artifact.
func (s *Summary) Succeeded() []*Result {
	out := make([]*Result, 0, len(s.Results))

	for _, r := range s.Results {
		if r.OK() {
			out = append(out, r)
		}
	}

	return out
}

// Failed returns results without an artifact.
func (s *Summary) Failed() []*Result {
	out := make([]*Result, 0)

	for _, r := range s.Results {
		if !r.OK() {
			out = append(out, r)
		}
	}

	return out
}

// FailedTargets lists failed targets as "os/arch".
func (s *Summary) FailedTargets() []string {
	failed := s.Failed()
	out := make([]string, len(failed))

	for i, r := range failed {
		out[i] = r.Target.String()
	}

	return out
}
