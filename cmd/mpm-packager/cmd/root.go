package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/myprojectmanager/mpm-release/internal/config"
	"github.com/myprojectmanager/mpm-release/internal/logger"
	"github.com/myprojectmanager/mpm-release/internal/service/packager"
	"github.com/myprojectmanager/mpm-release/internal/version"
)

var (
	// configPath to the configuration YAML file.
	configPath string
	// withRustHost enables the host-native cargo build.
	withRustHost bool
	// strict makes failed matrix targets fail the run.
	strict bool

	// rootCmd represents the base command for building the release matrix.
	rootCmd = &cobra.Command{
		Use:   "mpm-packager",
		Short: "Cross-compile the mpm server for every release target.",
		Long: `Builds the Go server for each configured os/arch target into the release
directory, writes a checksum manifest and prints a summary.

Failed targets are reported and skipped unless --strict is given.
With --with-rust-host the Rust indexer is also built for this machine and
installed into the binaries directory; any failure there stops the run.`,
		Args: cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			// Setup graceful shutdown handling.
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
			defer stop()

			options := &packager.Options{
				ConfigPath:   configPath,
				WithRustHost: withRustHost,
				Strict:       strict,
			}

			return packager.Run(ctx, options)
		},
	}
)

// Execute runs the mpm-packager CLI and exits with non-zero status on error.
func Execute() {
	version.AttachCobraVersionCommand(rootCmd)
	logger.AttachCobraLevelFlag(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	rootCmd.Flags().StringVarP(&configPath, "config", "c", config.DefaultConfigFilename, "path to configuration file")
	rootCmd.Flags().BoolVar(&withRustHost, "with-rust-host", false, "also build the Rust indexer for this machine")
	rootCmd.Flags().BoolVar(&strict, "strict", false, "exit non-zero when any target fails")
}
