package cli

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/swizzle/internal/harness"
	"github.com/roach88/swizzle/internal/ir"
	"github.com/roach88/swizzle/internal/store"
)

// TraceOptions holds flags for the trace command.
type TraceOptions struct {
	*RootOptions
	Kind     string // only events of this kind
	Receiver string // only events on this class
}

// TraceResult is the output of the trace command for one run.
type TraceResult struct {
	Run           store.Run               `json:"run"`
	Interceptions []ir.InterceptionRecord `json:"interceptions"`
	Events        []ir.TraceEvent         `json:"events"`
	Total         int                     `json:"total"` // events before filtering
}

// RunList is the output of the trace command without a run ID.
type RunList struct {
	Runs []store.Run `json:"runs"`
}

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TraceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "trace [run-id]",
		Short: "Read a run back from the journal",
		Long: `Read a journaled run: its applied interceptions and its trace events in
seq order, indented by call depth. Without a run ID, list the runs in the
journal.

Example:
  swizzle trace --db runs.db
  swizzle trace --db runs.db 0192f1c4-... --kind log`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			runID := ""
			if len(args) == 1 {
				runID = args[0]
			}
			return runTrace(cmd.Context(), opts, runID, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Kind, "kind", "", "filter by event kind (install|send|log|return)")
	cmd.Flags().StringVar(&opts.Receiver, "receiver", "", "filter by receiving class")

	return cmd
}

func runTrace(ctx context.Context, opts *TraceOptions, runID string, cmd *cobra.Command) error {
	if ctx == nil {
		ctx = context.Background()
	}
	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

	if opts.DB == "" {
		return outputCommandError(formatter, ErrCodeInvalidArgs, errors.New("--db is required"))
	}
	if _, err := os.Stat(opts.DB); err != nil {
		return outputCommandError(formatter, ErrCodeNotFound, fmt.Errorf("journal not found: %s", opts.DB))
	}
	if opts.Kind != "" && !validKind(opts.Kind) {
		return outputCommandError(formatter, ErrCodeInvalidArgs, fmt.Errorf("unknown event kind %q", opts.Kind))
	}

	st, err := store.Open(opts.DB)
	if err != nil {
		return outputCommandError(formatter, ErrCodeJournal, err)
	}
	defer st.Close()

	if runID == "" {
		runs, err := st.ListRuns(ctx)
		if err != nil {
			return outputCommandError(formatter, ErrCodeJournal, err)
		}
		return outputRunList(formatter, runs)
	}

	result, err := readTrace(ctx, st, runID)
	if err != nil {
		return outputCommandError(formatter, ErrCodeJournal, err)
	}
	result.Events = filterEvents(result.Events, ir.EventKind(opts.Kind), opts.Receiver)

	if formatter.JSON() {
		return formatter.encode(CLIResponse{Status: "ok", Data: result, RunID: runID})
	}
	return outputTraceText(formatter, result)
}

func readTrace(ctx context.Context, st *store.Store, runID string) (TraceResult, error) {
	run, err := st.ReadRun(ctx, runID)
	if err != nil {
		return TraceResult{}, err
	}
	records, err := st.ReadInterceptions(ctx, runID)
	if err != nil {
		return TraceResult{}, err
	}
	events, err := st.ReadTrace(ctx, runID)
	if err != nil {
		return TraceResult{}, err
	}
	return TraceResult{
		Run:           run,
		Interceptions: records,
		Events:        events,
		Total:         len(events),
	}, nil
}

func validKind(kind string) bool {
	switch ir.EventKind(kind) {
	case ir.EventInstall, ir.EventSend, ir.EventLog, ir.EventReturn:
		return true
	}
	return false
}

// filterEvents keeps events matching kind and receiver; empty matches all.
func filterEvents(events []ir.TraceEvent, kind ir.EventKind, receiver string) []ir.TraceEvent {
	if kind == "" && receiver == "" {
		return events
	}
	out := []ir.TraceEvent{}
	for _, ev := range events {
		if kind != "" && ev.Kind != kind {
			continue
		}
		if receiver != "" && ev.Receiver != receiver {
			continue
		}
		out = append(out, ev)
	}
	return out
}

func outputRunList(formatter *OutputFormatter, runs []store.Run) error {
	if formatter.JSON() {
		return formatter.Success(RunList{Runs: runs})
	}
	if len(runs) == 0 {
		fmt.Fprintln(formatter.Writer, "No runs in journal")
		return nil
	}
	tw := formatter.Table()
	fmt.Fprintln(tw, "RUN\tPROGRAM\tENGINE")
	for _, run := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", run.ID, shortHash(run.ProgramHash), run.EngineVersion)
	}
	return tw.Flush()
}

func outputTraceText(formatter *OutputFormatter, result TraceResult) error {
	w := formatter.Writer
	fmt.Fprintf(w, "Run: %s\n", result.Run.ID)
	fmt.Fprintf(w, "Program: %s (engine %s, ir %s)\n",
		result.Run.ProgramHash, result.Run.EngineVersion, result.Run.IRVersion)
	fmt.Fprintln(w)

	if len(result.Interceptions) > 0 {
		fmt.Fprintln(w, "Interceptions:")
		for _, rec := range result.Interceptions {
			fmt.Fprintf(w, "  %s.%s ↔ %s (%s)\n", rec.Target, rec.Original, rec.Wrapper, rec.Case)
		}
		fmt.Fprintln(w)
	}

	fmt.Fprintf(w, "Events (%d of %d):\n", len(result.Events), result.Total)
	for _, ev := range result.Events {
		fmt.Fprintf(w, "  [%d] %s\n", ev.Seq, harness.DescribeEvent(ev))
	}
	return nil
}

// shortHash trims a program hash for tables.
func shortHash(h string) string {
	if len(h) > 12 {
		return h[:12]
	}
	return h
}
