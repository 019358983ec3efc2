package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/myprojectmanager/mpm-release/internal/domain/target"
)

// Config holds the release settings shared by the mpm release binaries.
type Config struct {
	// BinaryName is the base name of the cross-compiled server binary.
	BinaryName string `yaml:"binary_name"`
	// ModuleDir is the directory `go build` runs in.
	ModuleDir string `yaml:"module_dir"`
	// GoPackage is the main package passed to `go build`, relative to ModuleDir.
	GoPackage string `yaml:"go_package"`
	// ReleaseDir receives the cross-compiled matrix.
	ReleaseDir string `yaml:"release_dir"`
	// BinDir receives host-native binaries.
	BinDir string `yaml:"bin_dir"`
	// Targets lists os/arch pairs in build order.
	Targets []string `yaml:"targets"`
	// LDFlags are passed to every `go build` before the version stamp.
	LDFlags string `yaml:"ldflags"`
	// VersionPackage is the import path whose Version/Commit/BuildTime get stamped.
	VersionPackage string `yaml:"version_package"`
	// Version is the release version written to the manifest and the stamp.
	Version string `yaml:"version"`
	// FailOnPartialBuild turns per-target failures into a non-zero exit.
	FailOnPartialBuild bool `yaml:"fail_on_partial_build"`
	// MarkerLifetime is the age after which a run marker is treated as stale.
	MarkerLifetime time.Duration `yaml:"marker_lifetime"`

	Rust   Rust   `yaml:"rust"`
	Fetch  Fetch  `yaml:"fetch"`
	Bundle Bundle `yaml:"bundle"`
	Mirror Mirror `yaml:"mirror"`
}

// Rust configures the optional host-native cargo build.
type Rust struct {
	// CrateDir is the cargo project directory.
	CrateDir string `yaml:"crate_dir"`
	// BinaryName is the cargo binary target name.
	BinaryName string `yaml:"binary_name"`
}

// Fetch configures the remote artifact download.
type Fetch struct {
	BaseURL     string        `yaml:"base_url"`
	URLTemplate string        `yaml:"url_template"`
	AssetName   string        `yaml:"asset_name"`
	Version     string        `yaml:"version"`
	InstallDir  string        `yaml:"install_dir"`
	DirName     string        `yaml:"dir_name"`
	BinaryName  string        `yaml:"binary_name"`
	PublicKey   string        `yaml:"public_key"`
	Mirror      string        `yaml:"mirror"`
	Timeout     time.Duration `yaml:"timeout"`
}

// Bundle configures the distribution bundle assembled by mpm-bundler.
type Bundle struct {
	ReleaseDirName   string   `yaml:"release_dir_name"`
	Product          string   `yaml:"product"`
	Dirs             []string `yaml:"dirs"`
	Files            []string `yaml:"files"`
	Scripts          []string `yaml:"scripts"`
	Ignore           []string `yaml:"ignore"`
	ManualDir        string   `yaml:"manual_dir"`
	ManualFile       string   `yaml:"manual_file"`
	RequiredBinaries []string `yaml:"required_binaries"`
}

// Mirror configures the release mirror listeners.
type Mirror struct {
	HTTPAddress string `yaml:"http_address"`
	GRPCAddress string `yaml:"grpc_address"`
}

const (
	// DefaultConfigFilename is the default filename for release settings.
	DefaultConfigFilename = "mpm-release.yaml"

	// DefaultMarkerLifetime bounds how long a run marker blocks other runs.
	DefaultMarkerLifetime = 2 * time.Hour

	// DefaultFetchTimeout bounds a single archive download.
	DefaultFetchTimeout = 5 * time.Minute

	// DefaultFilePermissions is the permission for written settings.
	DefaultFilePermissions = 0o600
)

var (
	// errConfigIsNotSet is returned when a nil configuration is provided.
	errConfigIsNotSet = errors.New("configuration is not set")
	// errFieldRequired is returned when a mandatory field is empty.
	errFieldRequired = errors.New("field is required")
	// errNoTargets is returned when the target matrix is empty.
	errNoTargets = errors.New("no build targets configured")
)

// Default returns the settings used for the mpm repository layout.
func Default() *Config {
	return &Config{
		BinaryName:     "mpm-go",
		ModuleDir:      "mcp-server-go",
		GoPackage:      "./cmd/server",
		ReleaseDir:     "release",
		BinDir:         filepath.Join("mcp-server-go", "bin"),
		Targets:        target.Strings(target.DefaultMatrix()),
		LDFlags:        "-s -w",
		Version:        "dev",
		MarkerLifetime: DefaultMarkerLifetime,
		Rust: Rust{
			CrateDir:   filepath.Join("mcp-server-go", "internal", "services", "ast_indexer_rust"),
			BinaryName: "ast_indexer",
		},
		Fetch: Fetch{
			BaseURL:    "https://github.com/myprojectmanager/mpm/releases",
			AssetName:  "mpm",
			Version:    "latest",
			InstallDir: ".",
			DirName:    "mpm",
			BinaryName: "mpm-go",
			Timeout:    DefaultFetchTimeout,
		},
		Bundle: Bundle{
			ReleaseDirName: "mpm-release",
			Product:        "MyProjectManager",
			Dirs:           []string{"mcp-server-go", "docs"},
			Files: []string{
				"README.md", "README_EN.md", "install.ps1", "QUICKSTART.md", "QUICKSTART_EN.md",
				"docs/images/mpm_logo.png",
			},
			Scripts: []string{
				"scripts/build-windows.ps1", "scripts/build-unix.sh", "scripts/build-cross-platform.sh",
			},
			Ignore: []string{
				"__pycache__", ".mcp-data", ".git", "*.pyc", ".vscode", ".idea", "target",
				"node_modules", "debug_*", "check_*", "*.pdb", "*.log",
			},
			ManualDir:  "user-manual",
			ManualFile: "COMPLETE-MANUAL-CONCISE.md",
			RequiredBinaries: []string{
				"mcp-server-go/bin/mpm-go.exe",
				"mcp-server-go/bin/ast_indexer.exe",
			},
		},
		Mirror: Mirror{
			HTTPAddress: ":8080",
			GRPCAddress: ":50051",
		},
	}
}

// Load reads configuration from path. A missing file at the default location
// yields Default(); any other read error is returned.
func Load(path string) (*Config, error) {
	explicit := path != ""
	if !explicit {
		path = DefaultConfigFilename
	}

	cfg := Default()

	contents, err := os.ReadFile(filepath.Clean(path))

	switch {
	case err == nil:
		if err = yaml.Unmarshal(contents, cfg); err != nil {
			return nil, fmt.Errorf("unmarshal settings: %w", err)
		}
	case errors.Is(err, os.ErrNotExist) && (!explicit || path == DefaultConfigFilename):
		// No settings file: run with defaults.
	default:
		return nil, fmt.Errorf("read settings: %w", err)
	}

	if err = Validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Save writes cfg to path as YAML.
func Save(path string, cfg *Config) error {
	if cfg == nil {
		return errConfigIsNotSet
	}

	if path == "" {
		path = DefaultConfigFilename
	}

	if err := Validate(cfg); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}

	if err := os.WriteFile(filepath.Clean(path), data, DefaultFilePermissions); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}

	return nil
}

// Validate checks required fields and fills zero durations with defaults.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errConfigIsNotSet
	}

	for name, value := range map[string]string{
		"binary_name": cfg.BinaryName,
		"release_dir": cfg.ReleaseDir,
		"bin_dir":     cfg.BinDir,
		"go_package":  cfg.GoPackage,
	} {
		if value == "" {
			return fmt.Errorf("%s: %w", name, errFieldRequired)
		}
	}

	if len(cfg.Targets) == 0 {
		return errNoTargets
	}

	if _, err := target.ParseAll(cfg.Targets); err != nil {
		return fmt.Errorf("targets: %w", err)
	}

	if cfg.MarkerLifetime <= 0 {
		cfg.MarkerLifetime = DefaultMarkerLifetime
	}

	if cfg.Fetch.Timeout <= 0 {
		cfg.Fetch.Timeout = DefaultFetchTimeout
	}

	if cfg.Fetch.BaseURL != "" {
		if _, err := url.ParseRequestURI(cfg.Fetch.BaseURL); err != nil {
			return fmt.Errorf("invalid fetch base URL: %w", err)
		}
	}

	return nil
}
