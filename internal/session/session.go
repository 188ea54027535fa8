// Package session runs the child interpreter whose input the bridge feeds.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"time"
)

// DefaultCommand is the interpreter started when none is configured.
const DefaultCommand = "ghci"

// waitDelay bounds how long Wait waits for output copying after the
// interpreter exits or is killed.
const waitDelay = 2 * time.Second

// Options configures a Session.
type Options struct {
	// Command is the interpreter executable.
	Command string

	// Args are passed to Command.
	Args []string

	// Dir is the working directory. Empty means the current directory.
	Dir string

	// Stdout and Stderr receive the interpreter's output. Nil inherits the
	// bridge's own streams.
	Stdout io.Writer
	Stderr io.Writer

	Logger *slog.Logger
}

// Session supervises one interpreter process.
type Session struct {
	opts Options
}

// New creates a Session. The process is not started until Run.
func New(opts Options) *Session {
	if opts.Command == "" {
		opts.Command = DefaultCommand
	}

	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}

	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}

	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	return &Session{opts: opts}
}

// Run starts the interpreter with a piped stdin, hands the pipe over on
// handoff, and blocks until the process exits. It returns the process exit
// code. Cancelling ctx kills the process.
func (s *Session) Run(ctx context.Context, handoff chan<- io.WriteCloser) (int, error) {
	cmd := exec.CommandContext(ctx, s.opts.Command, s.opts.Args...) //nolint:gosec
	cmd.Dir = s.opts.Dir
	cmd.Stdout = s.opts.Stdout
	cmd.Stderr = s.opts.Stderr
	cmd.WaitDelay = waitDelay

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return 1, fmt.Errorf("creating interpreter stdin: %w", err)
	}

	if err := cmd.Start(); err != nil {
		_ = stdin.Close()
		return 1, fmt.Errorf("could not start %s: %w", s.opts.Command, err)
	}

	s.opts.Logger.Debug("interpreter started",
		slog.String("command", s.opts.Command),
		slog.Int("pid", cmd.Process.Pid),
	)

	select {
	case handoff <- stdin:
	case <-ctx.Done():
	}

	return exitStatus(cmd.Wait())
}

// exitStatus maps the result of Wait to a process exit code. A process
// killed by a signal reports 1.
func exitStatus(err error) (int, error) {
	if err == nil {
		return 0, nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if code := exitErr.ExitCode(); code >= 0 {
			return code, nil
		}

		return 1, nil
	}

	return 1, fmt.Errorf("waiting for interpreter: %w", err)
}
