package logger

import (
	"bytes"
	"context"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

// TestParseLogLevel verifies mapping from strings to zapcore.Level and handling of unknown values.
func TestParseLogLevel(t *testing.T) {
	t.Parallel()

	cases := map[string]zapcore.Level{
		"debug":   zapcore.DebugLevel,
		"info":    zapcore.InfoLevel,
		"":        zapcore.InfoLevel,
		"WARN":    zapcore.WarnLevel,
		"warning": zapcore.WarnLevel,
		" error ": zapcore.ErrorLevel,
	}
	for s, lvl := range cases {
		got, ok := ParseLogLevel(s)
		require.True(t, ok, s)
		require.Equal(t, lvl, got)
	}

	_, ok := ParseLogLevel("verbose")
	require.False(t, ok)
}

// TestContextLogger ensures scoped loggers travel through the context.
func TestContextLogger(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer

	ctx := ToContext(context.Background(), New(zapcore.DebugLevel, &buf))
	ctx = WithName(ctx, "mpm-packager")
	ctx = WithKV(ctx, "run_id", "abc")

	InfoKV(ctx, "Building target", "target", "linux/amd64")

	out := buf.String()
	require.Contains(t, out, "mpm-packager")
	require.Contains(t, out, "Building target")
	require.Contains(t, out, "linux/amd64")
	require.Contains(t, out, "abc")
}

// TestFromContextFallsBackToGlobal checks that an empty context yields the global logger.
func TestFromContextFallsBackToGlobal(t *testing.T) {
	t.Parallel()

	require.Same(t, Logger(), FromContext(context.Background()))
}

// TestAttachCobraLevelFlag applies the flag before the command runs.
func TestAttachCobraLevelFlag(t *testing.T) {
	previous := Level()
	t.Cleanup(func() { SetLevel(previous) })

	var ran bool

	root := &cobra.Command{
		Use: "tool",
		RunE: func(*cobra.Command, []string) error {
			ran = true
			return nil
		},
	}

	AttachCobraLevelFlag(root)

	root.SetArgs([]string{"--log-level", "warn"})
	require.NoError(t, root.Execute())
	require.True(t, ran)
	require.Equal(t, zapcore.WarnLevel, Level())

	root.SetArgs([]string{"--log-level", "loud"})
	root.SilenceUsage = true
	root.SilenceErrors = true
	require.ErrorIs(t, root.Execute(), errUnknownLevel)
}
