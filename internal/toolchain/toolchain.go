package toolchain

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/myprojectmanager/mpm-release/internal/domain/target"
	"github.com/myprojectmanager/mpm-release/internal/logger"
)

// Tool names looked up on PATH.
const (
	GoTool    = "go"
	CargoTool = "cargo"
)

// stderrTailLines bounds the compiler output kept in a build error.
const stderrTailLines = 20

var (
	// ErrToolNotFound is returned when a required executable is not on PATH.
	ErrToolNotFound = errors.New("required tool not found on PATH")
	// ErrCommandFailed wraps a non-zero exit of an external toolchain.
	ErrCommandFailed = errors.New("command failed")
)

// Command is a single toolchain invocation.
type Command struct {
	// Name is the executable, resolved through PATH.
	Name string
	// Args are passed verbatim.
	Args []string
	// Env holds KEY=VALUE entries appended to the current environment.
	Env []string
	// Dir is the working directory; empty means the current one.
	Dir string
}

// String renders the command line for logs.
func (c Command) String() string {
	var b strings.Builder

	for _, kv := range c.Env {
		b.WriteString(kv)
		b.WriteByte(' ')
	}

	b.WriteString(c.Name)

	for _, arg := range c.Args {
		b.WriteByte(' ')
		b.WriteString(arg)
	}

	return b.String()
}

// Runner executes toolchain commands synchronously.
type Runner interface {
	Run(ctx context.Context, cmd Command) error
}

// ExecRunner runs commands as child processes.
type ExecRunner struct{}

// Run executes cmd and blocks until it exits. Output lines are logged at
// debug level; the tail of stderr is attached to the returned error.
func (ExecRunner) Run(ctx context.Context, cmd Command) error {
	//nolint:gosec // Commands are built from release settings, not user input.
	c := exec.CommandContext(ctx, cmd.Name, cmd.Args...)
	c.Dir = cmd.Dir
	c.Env = append(os.Environ(), cmd.Env...)

	var stderr bytes.Buffer

	stdout := newLineLogger(ctx)
	c.Stdout = stdout
	c.Stderr = io.MultiWriter(&stderr, newLineLogger(ctx))

	logger.DebugKV(ctx, "Running command", "command", cmd.String(), "dir", cmd.Dir)

	if err := c.Run(); err != nil {
		tail := lastLines(stderr.String(), stderrTailLines)
		if tail == "" {
			return fmt.Errorf("%s: %w: %w", cmd.Name, ErrCommandFailed, err)
		}

		return fmt.Errorf("%s: %w: %w\n%s", cmd.Name, ErrCommandFailed, err, tail)
	}

	return nil
}

// LookPath returns ErrToolNotFound naming the tool when it cannot be executed.
func LookPath(name string) error {
	if _, err := exec.LookPath(name); err != nil {
		return fmt.Errorf("%s: %w", name, ErrToolNotFound)
	}

	return nil
}

// GoBuild returns the `go build` invocation for t writing to output.
func GoBuild(t target.Target, dir, output, pkg, ldflags string) Command {
	args := []string{"build", "-trimpath"}
	if ldflags != "" {
		args = append(args, "-ldflags", ldflags)
	}

	args = append(args, "-o", output, pkg)

	return Command{
		Name: GoTool,
		Args: args,
		Env:  []string{"GOOS=" + t.OS, "GOARCH=" + t.Arch, "CGO_ENABLED=0"},
		Dir:  dir,
	}
}

// CargoBuild returns the host-native `cargo build --release` invocation.
func CargoBuild(crateDir string) Command {
	return Command{
		Name: CargoTool,
		Args: []string{"build", "--release"},
		Dir:  crateDir,
	}
}

// CargoArtifact is where cargo leaves the release binary for the host.
func CargoArtifact(crateDir, binary, goos string) string {
	return filepath.Join(crateDir, "target", "release", target.ExecutableName(binary, goos))
}

// lineLogger forwards complete output lines to the debug log.
type lineLogger struct {
	ctx context.Context //nolint:containedctx // Scoped to one command.
	buf []byte
}

func newLineLogger(ctx context.Context) *lineLogger {
	return &lineLogger{ctx: ctx}
}

func (l *lineLogger) Write(p []byte) (int, error) {
	l.buf = append(l.buf, p...)

	for {
		i := bytes.IndexByte(l.buf, '\n')
		if i < 0 {
			break
		}

		if line := strings.TrimRight(string(l.buf[:i]), "\r"); line != "" {
			logger.Debug(l.ctx, line)
		}

		l.buf = l.buf[i+1:]
	}

	return len(p), nil
}

func lastLines(s string, n int) string {
	lines := make([]string, 0, n)

	scanner := bufio.NewScanner(strings.NewReader(s))
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
		if len(lines) > n {
			lines = lines[1:]
		}
	}

	return strings.TrimSpace(strings.Join(lines, "\n"))
}
