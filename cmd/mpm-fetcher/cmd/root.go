package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/myprojectmanager/mpm-release/internal/config"
	"github.com/myprojectmanager/mpm-release/internal/logger"
	"github.com/myprojectmanager/mpm-release/internal/service/fetcher"
	"github.com/myprojectmanager/mpm-release/internal/version"
)

var (
	// configPath to the configuration YAML file.
	configPath string
	// options collects the flag overrides.
	options fetcher.Options

	// rootCmd represents the base command for downloading a pre-built release.
	rootCmd = &cobra.Command{
		Use:   "mpm-fetcher [version]",
		Short: "Download and install a pre-built mpm release.",
		Long: `Downloads the release archive for this platform (zip on windows, tar.gz
elsewhere), verifies it, extracts it and renames the extracted folder to a
fixed name. The version defaults to "latest".

With --mirror the archive checksum is taken from the mirror's manifest after
a gRPC health probe. With --public-key the detached .asc signature is checked.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			// Setup graceful shutdown handling.
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
			defer stop()

			opts := options
			opts.ConfigPath = configPath

			if len(args) > 0 {
				opts.Version = args[0]
			}

			return fetcher.Run(ctx, &opts)
		},
	}
)

// Execute runs the mpm-fetcher CLI and exits with non-zero status on error.
func Execute() {
	version.AttachCobraVersionCommand(rootCmd)
	logger.AttachCobraLevelFlag(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	flags := rootCmd.Flags()
	flags.StringVarP(&configPath, "config", "c", config.DefaultConfigFilename, "path to configuration file")
	flags.StringVarP(&options.InstallDir, "dir", "d", "", "directory to install into")
	flags.StringVar(&options.OS, "os", "", "override the detected operating system")
	flags.StringVar(&options.Arch, "arch", "", "override the detected architecture")
	flags.StringVar(&options.BaseURL, "base-url", "", "release host base URL")
	flags.StringVar(&options.Mirror, "mirror", "", "gRPC address of an mpm-mirror to verify against")
	flags.StringVar(&options.PublicKey, "public-key", "", "armored OpenPGP key to verify the archive signature")
}
