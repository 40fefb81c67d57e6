package cli

import (
	"io"
	"log/slog"
	"slices"

	"github.com/spf13/cobra"
)

// RootOptions holds global flags for all commands. After the root's
// PersistentPreRunE, the fields hold the merged configuration.
type RootOptions struct {
	ConfigFile string
	Verbose    bool
	Format     string // "json" | "text"
	DB         string
	MaxDepth   int

	Logger *slog.Logger
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the swizzle CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "swizzle",
		Short: "swizzle - method interception on a class dispatch table",
		Long: `swizzle compiles class hierarchies written in CUE, intercepts methods
by exchanging implementations in their dispatch tables, and records every
install, send, log and return as a replayable trace.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.load(cmd)
		},
	}

	cmd.PersistentFlags().StringVar(&opts.ConfigFile, "config", "", "config file (default: ./swizzle.yaml if present)")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.DB, "db", "", "path to the sqlite journal")
	cmd.PersistentFlags().IntVar(&opts.MaxDepth, "max-depth", 0, "call depth limit (default 64)")

	cmd.AddCommand(NewCompileCommand(opts))
	cmd.AddCommand(NewValidateCommand(opts))
	cmd.AddCommand(NewInspectCommand(opts))
	cmd.AddCommand(NewInvokeCommand(opts))
	cmd.AddCommand(NewTraceCommand(opts))
	cmd.AddCommand(NewTestCommand(opts))

	return cmd
}

// load merges defaults, the config file, SWIZZLE_* variables and flags into
// opts and sets up the logger.
func (opts *RootOptions) load(cmd *cobra.Command) error {
	cfg, used, err := LoadConfig(opts.ConfigFile, cmd.Root().PersistentFlags())
	if err != nil {
		return WrapExitError(ExitCommandError, "configuration", err)
	}

	opts.Format = cfg.Format
	opts.Verbose = cfg.Verbose
	opts.DB = cfg.DB
	opts.MaxDepth = cfg.MaxDepth
	opts.Logger = newLogger(cmd.ErrOrStderr(), cfg.Verbose)

	if used != "" {
		opts.Logger.Debug("using config file", "path", used)
	}
	return nil
}

// newLogger writes text logs to w: Info and above, Debug when verbose.
func newLogger(w io.Writer, verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// logger returns the configured logger, or a discarding one when the
// command runs without the root (as in unit tests of a single command).
func (opts *RootOptions) logger() *slog.Logger {
	if opts.Logger == nil {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return opts.Logger
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	return slices.Contains(ValidFormats, format)
}
