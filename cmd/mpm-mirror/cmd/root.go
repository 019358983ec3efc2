package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/myprojectmanager/mpm-release/internal/config"
	"github.com/myprojectmanager/mpm-release/internal/logger"
	"github.com/myprojectmanager/mpm-release/internal/service/mirror"
	"github.com/myprojectmanager/mpm-release/internal/version"
)

var (
	// configPath to the configuration YAML file.
	configPath string
	// releaseDir overrides the served directory.
	releaseDir string
	// grpcAddress overrides the health listener.
	grpcAddress string

	// rootCmd represents the base command for serving a release directory.
	rootCmd = &cobra.Command{
		Use:   "mpm-mirror [listen-address]",
		Short: "Serve a release directory over HTTP with gRPC health.",
		Long: `Serves the files of the release directory over HTTP and exposes
Prometheus metrics on /metrics.

A gRPC health service reports SERVING once the release manifest is
published; each file is also registered as a service named after it.
Only the port of the configured addresses is used for listening.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			// Setup graceful shutdown handling.
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
			defer stop()

			// Use listen address argument if provided, otherwise rely on config.
			var listenAddress string
			if len(args) > 0 {
				listenAddress = args[0]
			}

			options := &mirror.Options{
				ConfigPath:  configPath,
				ReleaseDir:  releaseDir,
				HTTPAddress: listenAddress,
				GRPCAddress: grpcAddress,
			}

			return mirror.Run(ctx, options)
		},
	}
)

// Execute runs the mpm-mirror CLI and exits with non-zero status on error.
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
	rootCmd.Flags().StringVarP(&releaseDir, "dir", "d", "", "release directory to serve")
	rootCmd.Flags().StringVar(&grpcAddress, "grpc-address", "", "gRPC health listen address")
}
