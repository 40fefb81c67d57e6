package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/swizzle/internal/harness"
	"github.com/roach88/swizzle/internal/ir"
)

// InvokeOptions holds flags for the invoke command.
type InvokeOptions struct {
	*RootOptions
	Args     string   // JSON array
	RunID    string   // journal run; generated when empty
	Installs []string // Class.original=wrapper, applied after boot
	NoBoot   bool
	Trace    bool
}

// InvokeResult is the output of the invoke command.
type InvokeResult struct {
	RunID       string                  `json:"run_id"`
	ProgramHash string                  `json:"program_hash"`
	Send        string                  `json:"send"`
	Args        ir.IRArray              `json:"args"`
	Result      ir.IRValue              `json:"result,omitempty"`
	Error       *CLIError               `json:"error,omitempty"`
	Records     []ir.InterceptionRecord `json:"records"`
	Trace       []ir.TraceEvent         `json:"trace,omitempty"`
}

// NewInvokeCommand creates the invoke command.
func NewInvokeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &InvokeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "invoke <specs> <Class.selector>",
		Short: "Boot a program and send one message",
		Long: `Boot a program and send one message to a new instance.

The declared intercepts are installed first, then any --install pairs, then
the message is sent. With --db the run is journaled and can be read back
with 'swizzle trace'.

Example:
  swizzle invoke ./specs Derived.greetWith --args '["Ada"]' --db runs.db`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInvoke(cmd.Context(), opts, args[0], args[1], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Args, "args", "[]", "message arguments as a JSON array")
	cmd.Flags().StringVar(&opts.RunID, "run", "", "run ID (default: generated UUIDv7)")
	cmd.Flags().StringArrayVar(&opts.Installs, "install", nil, "extra interception Class.original=wrapper (repeatable)")
	cmd.Flags().BoolVar(&opts.NoBoot, "no-boot", false, "do not install declared intercepts")
	cmd.Flags().BoolVar(&opts.Trace, "trace", false, "print the run's trace")

	return cmd
}

func runInvoke(ctx context.Context, opts *InvokeOptions, specs, target string, cmd *cobra.Command) error {
	if ctx == nil {
		ctx = context.Background()
	}
	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

	class, selector, ok := strings.Cut(target, ".")
	if !ok || class == "" || selector == "" {
		return outputCommandError(formatter, ErrCodeInvalidArgs,
			fmt.Errorf("target must be Class.selector, got %q", target))
	}
	args, err := parseArgs(opts.Args)
	if err != nil {
		return outputCommandError(formatter, ErrCodeInvalidArgs, err)
	}
	installs, err := parseInstalls(opts.Installs)
	if err != nil {
		return outputCommandError(formatter, ErrCodeInvalidArgs, err)
	}

	sess, err := openSession(ctx, opts.RootOptions, specs, opts.RunID, true)
	if err != nil {
		return outputLoadFailure(formatter, err)
	}
	defer sess.Close()
	eng := sess.engine
	formatter.VerboseLog("Run %s over %d file(s)", eng.RunID(), len(sess.files))

	if !opts.NoBoot {
		if err := eng.Boot(ctx); err != nil {
			return outputCommandError(formatter, ErrCodeBootFailed, err)
		}
	}
	for _, ic := range installs {
		if err := eng.Install(ctx, ic.Class, ic.Original, ic.Wrapper); err != nil {
			return outputCommandError(formatter, harness.ErrorCode(err), err)
		}
	}

	result := InvokeResult{
		RunID:       eng.RunID(),
		ProgramHash: eng.ProgramHash(),
		Send:        target,
		Args:        args,
	}
	v, sendErr := eng.Send(ctx, class, selector, args)
	if sendErr != nil {
		code := harness.ErrorCode(sendErr)
		if code == "" {
			code = ErrCodeSendFailed
		}
		result.Error = &CLIError{Code: code, Message: sendErr.Error()}
	} else {
		result.Result = v
	}
	result.Records = eng.Records()
	if opts.Trace || formatter.JSON() {
		result.Trace = eng.Trace()
	}

	if formatter.JSON() {
		if err := formatter.encode(CLIResponse{Status: status(sendErr), Data: result, RunID: result.RunID}); err != nil {
			return err
		}
	} else {
		printInvoke(formatter, result)
	}

	if sendErr != nil {
		return WrapExitError(ExitFailure, "send failed", sendErr)
	}
	return nil
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

func printInvoke(formatter *OutputFormatter, result InvokeResult) {
	w := formatter.Writer
	if len(result.Trace) > 0 {
		for _, ev := range result.Trace {
			fmt.Fprintf(w, "[%d] %s\n", ev.Seq, harness.DescribeEvent(ev))
		}
		fmt.Fprintln(w)
	}
	if result.Error != nil {
		fmt.Fprintf(w, "✗ %s %s: %s\n", result.Send, ir.Format(result.Args), result.Error.Code)
		fmt.Fprintf(w, "  %s\n", result.Error.Message)
	} else {
		fmt.Fprintf(w, "✓ %s %s = %s\n", result.Send, ir.Format(result.Args), ir.Format(result.Result))
	}
	fmt.Fprintf(w, "Run: %s\n", result.RunID)
}

// parseArgs decodes a JSON array of IR values.
func parseArgs(raw string) (ir.IRArray, error) {
	if strings.TrimSpace(raw) == "" {
		return ir.IRArray{}, nil
	}
	v, err := ir.UnmarshalIRValue([]byte(raw))
	if err != nil {
		return nil, fmt.Errorf("invalid --args: %w", err)
	}
	args, ok := v.(ir.IRArray)
	if !ok {
		return nil, fmt.Errorf("invalid --args: want a JSON array, got %s", ir.Format(v))
	}
	return args, nil
}

// parseInstalls decodes Class.original=wrapper pairs.
func parseInstalls(pairs []string) ([]ir.InterceptSpec, error) {
	out := make([]ir.InterceptSpec, 0, len(pairs))
	for _, p := range pairs {
		target, wrapper, ok := strings.Cut(p, "=")
		class, original, ok2 := strings.Cut(target, ".")
		if !ok || !ok2 || class == "" || original == "" || wrapper == "" {
			return nil, fmt.Errorf("invalid --install %q: want Class.original=wrapper", p)
		}
		out = append(out, ir.InterceptSpec{Class: class, Original: original, Wrapper: wrapper})
	}
	return out, nil
}
