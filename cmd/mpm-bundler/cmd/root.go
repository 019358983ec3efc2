package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/myprojectmanager/mpm-release/internal/config"
	"github.com/myprojectmanager/mpm-release/internal/logger"
	"github.com/myprojectmanager/mpm-release/internal/service/bundler"
	"github.com/myprojectmanager/mpm-release/internal/version"
)

var (
	// configPath to the configuration YAML file.
	configPath string

	// rootCmd represents the base command for assembling the distribution folder.
	rootCmd = &cobra.Command{
		Use:   "mpm-bundler [root]",
		Short: "Assemble the MyProjectManager distribution folder.",
		Long: `Recreates <root>/mpm-release/MyProjectManager from the project checkout at
root (the working directory by default) and checks that the compiled
binaries are present. Missing inputs are reported as warnings.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			// Setup graceful shutdown handling.
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
			defer stop()

			options := &bundler.Options{
				ConfigPath: configPath,
			}

			if len(args) > 0 {
				options.Root = args[0]
			}

			return bundler.Run(ctx, options)
		},
	}
)

// Execute runs the mpm-bundler CLI and exits with non-zero status on error.
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
}
