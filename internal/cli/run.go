package cli

import (
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/muesli/cancelreader"
	"github.com/spf13/cobra"

	"github.com/hupe1980/replwatch/internal/bridge"
	"github.com/hupe1980/replwatch/internal/config"
	"github.com/hupe1980/replwatch/internal/logging"
	"github.com/hupe1980/replwatch/internal/session"
	"github.com/hupe1980/replwatch/internal/watch"
)

// runBridge starts the interpreter named by args (or the configured
// command) and bridges the console and watched files into it. The
// interpreter's non-zero exit status is returned as an ExitError.
func runBridge(cmd *cobra.Command, args []string) error {
	cfg := config.FromContext(cmd.Context())
	logger := logging.FromContext(cmd.Context())

	command, commandArgs := interpreterCommand(cfg, args)

	// Ctrl-C belongs to the interpreter, which shares the terminal's
	// process group. A caught signal is reset to default across exec.
	interrupts := make(chan os.Signal, 1)
	signal.Notify(interrupts, os.Interrupt)

	defer signal.Stop(interrupts)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGTERM)
	defer stop()

	watchOpts := watch.DefaultOptions()
	watchOpts.Backend = cfg.Backend
	watchOpts.Interval = cfg.PollInterval()
	watchOpts.Logger = logging.Component(logger, "notifier")

	notifier, err := watch.New(watchOpts)
	if err != nil {
		return &ExitError{Code: exitFatal, Err: err}
	}

	input, closeInput := consoleInput(cmd.InOrStdin(), logger)
	defer closeInput()

	sup := session.New(session.Options{
		Command: command,
		Args:    commandArgs,
		Stdout:  cmd.OutOrStdout(),
		Stderr:  cmd.ErrOrStderr(),
		Logger:  logging.Component(logger, "session"),
	})

	b, err := bridge.New(bridge.Options{
		Input:       input,
		Echo:        cmd.OutOrStdout(),
		Notifier:    notifier,
		Supervisor:  sup,
		InitialPath: cfg.WatchPath,
		Pace:        cfg.Pace,
		Logger:      logging.Component(logger, "bridge"),
	})
	if err != nil {
		_ = notifier.Close()
		return &ExitError{Code: exitFatal, Err: err}
	}

	logger.Debug("starting interpreter",
		slog.String("command", command),
		slog.Any("args", commandArgs),
		slog.String("watchPath", cfg.WatchPath),
	)

	status, err := b.Run(ctx)
	if err != nil {
		return &ExitError{Code: exitFatal, Err: err}
	}

	if status != 0 {
		return &ExitError{Code: status}
	}

	return nil
}

// interpreterCommand picks the interpreter to run. Positional arguments
// take precedence over the configured command and args.
func interpreterCommand(cfg *config.Config, args []string) (string, []string) {
	if len(args) > 0 {
		return args[0], args[1:]
	}

	return cfg.Command, cfg.Args
}

// consoleInput wraps in so that a blocked read can be cancelled when the
// bridge stops. Readers that cannot be wrapped are used as they are.
func consoleInput(in io.Reader, logger *slog.Logger) (io.Reader, func()) {
	f, ok := in.(*os.File)
	if !ok {
		return in, func() {}
	}

	cr, err := cancelreader.NewReader(f)
	if err != nil {
		logger.Debug("console input is not cancelable", slog.String("error", err.Error()))
		return in, func() {}
	}

	return cr, func() { _ = cr.Close() }
}

var _ bridge.Supervisor = (*session.Session)(nil)
