package version

import (
	"fmt"

	"github.com/spf13/cobra"
)

// AttachCobraVersionCommand attaches a `version` subcommand to the provided root command.
func AttachCobraVersionCommand(root *cobra.Command) {
	var short bool

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information.",
		Long:  "Print the release tooling version together with the commit hash and build timestamp stamped in by the packager.",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			if short {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), Short())
				return
			}

			_, _ = fmt.Fprintln(cmd.OutOrStdout(), Full())
		},
	}

	cmd.Flags().BoolVar(&short, "short", false, "print only the semantic version")
	root.AddCommand(cmd)
}
