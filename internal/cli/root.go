// Package cli implements the cobra command tree for replwatch.
package cli

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/hupe1980/replwatch/internal/config"
	"github.com/hupe1980/replwatch/internal/logging"
)

// Exit codes used besides the interpreter's own status.
const (
	exitFatal = 1
	exitUsage = 2
)

// ExitError wraps an error with a specific process exit code.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return e.Err.Error()
	}

	return fmt.Sprintf("exit code %d", e.Code)
}

func (e *ExitError) Unwrap() error { return e.Err }

// Execute builds the command tree, runs it, and returns the exit code.
// Errors carrying a message are reported on stderr.
func Execute() int {
	cmd := NewRootCommand()

	err := cmd.Execute()
	if err == nil {
		return 0
	}

	code := exitFatal

	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		code = exitErr.Code

		if exitErr.Err == nil {
			return code
		}
	}

	fmt.Fprintf(os.Stderr, "replwatch: %v\n", err)

	return code
}

// NewRootCommand constructs the top-level cobra.Command with all
// subcommands attached. Running it without a subcommand starts the bridge.
func NewRootCommand() *cobra.Command {
	var cfgFile string

	cmd := &cobra.Command{
		Use:   "replwatch [flags] [-- interpreter [args...]]",
		Short: "Drive an interactive interpreter from your console and your editor",
		Long: `replwatch starts an interactive interpreter (ghci by default) and feeds it
two streams of input: whatever you type on the console, and the lines of a
watched source file that are marked with "-- run:".

Every time a watched file is saved, replwatch sends ":l <file>" followed by
each marked line, so the interpreter reloads the module and re-runs your
expressions. Typing ":l <file>" on the console starts watching that file;
":u <file>" stops watching it.`,
		Example: `  # Watch Main.hs and re-run its "-- run:" lines on every save
  replwatch -w Main.hs

  # Use a different interpreter
  replwatch -w src/Lib.hs -- stack repl`,
		Args:          cobra.ArbitraryArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cmd, cfgFile)
			if err != nil {
				return &ExitError{Code: exitUsage, Err: err}
			}

			logger := logging.Setup(cfg)

			ctx := cmd.Context()
			ctx = config.NewContext(ctx, cfg)
			ctx = logging.NewContext(ctx, logger)
			cmd.SetContext(ctx)

			logger.Debug("configuration loaded",
				slog.String("logLevel", cfg.LogLevel),
				slog.String("backend", cfg.Backend),
				slog.String("configFile", cfg.ConfigFile),
			)

			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBridge(cmd, args)
		},
	}

	pf := cmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "config file (default: .replwatch.yaml)")
	pf.String("log-level", config.LogLevelInfo, "log level: debug, info, warn, error")
	pf.String("log-format", config.LogFormatText, "log format: text, json")
	pf.BoolP("quiet", "q", false, "suppress non-essential output")

	addBridgeFlags(cmd)

	// Flag parsing errors return exit code 2.
	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return &ExitError{Code: exitUsage, Err: err}
	})

	cmd.AddCommand(
		newVersionCommand(),
		newConfigCommand(),
		newCompletionCommand(),
	)

	return cmd
}

// addBridgeFlags registers the flags that configure a bridge run. Their
// names match the config keys so that config.Load can bind them.
func addBridgeFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringP("watch-path", "w", "", "file to watch and reload at startup")
	f.IntP("interval", "i", config.DefaultIntervalMS, "notifier poll interval in milliseconds")
	f.Duration("pace", config.DefaultPace, "delay before each line sent on your behalf")
	f.String("backend", config.BackendPoll, "notifier backend: poll, fsnotify")
	f.Bool("require-watch-path", false, "fail when no watch path is given")
	f.String("command", config.DefaultCommand, "interpreter to start when no arguments are given")
}
