package logger

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

// errUnknownLevel is returned for an unrecognized --log-level value.
var errUnknownLevel = errors.New("unknown log level")

// AttachCobraLevelFlag adds a persistent `--log-level` flag to root and
// applies it to the global logger before any command runs.
func AttachCobraLevelFlag(root *cobra.Command) {
	var value string

	root.PersistentFlags().StringVar(&value, "log-level", "info", "log level: debug, info, warn or error")

	root.PersistentPreRunE = func(_ *cobra.Command, _ []string) error {
		level, ok := ParseLogLevel(value)
		if !ok {
			return fmt.Errorf("%q: %w", value, errUnknownLevel)
		}

		SetLevel(level)

		return nil
	}
}
