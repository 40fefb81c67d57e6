package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/swizzle/internal/dispatch"
	"github.com/roach88/swizzle/internal/harness"
)

// InspectOptions holds flags for the inspect command.
type InspectOptions struct {
	*RootOptions
	NoBoot bool
}

// ClassTable is one class's dispatch table before and after boot.
type ClassTable struct {
	Class   string     `json:"class"`
	Super   string     `json:"super,omitempty"`
	Entries []TableRow `json:"entries"`
}

// TableRow is one selector in a ClassTable.
type TableRow struct {
	Selector string `json:"selector"`
	Before   string `json:"before,omitempty"` // empty when the selector only appears after boot
	After    string `json:"after"`
	Owner    string `json:"owner"` // class holding the binding after boot
	Local    bool   `json:"local"`
	Changed  bool   `json:"changed"`
}

// InspectResult is the output of the inspect command.
type InspectResult struct {
	ProgramHash string       `json:"program_hash"`
	Booted      bool         `json:"booted"`
	Tables      []ClassTable `json:"tables"`
}

// NewInspectCommand creates the inspect command.
func NewInspectCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &InspectOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "inspect <specs> [class...]",
		Short: "Show dispatch tables before and after boot",
		Long: `Show the flattened dispatch table of each class.

Every selector visible from a class is listed with the implementation it
resolved to before the declared intercepts were installed and after. Rows
marked * changed. Inherited bindings show the class that owns them.`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInspect(cmd.Context(), opts, args[0], args[1:], cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.NoBoot, "no-boot", false, "do not install declared intercepts")

	return cmd
}

func runInspect(ctx context.Context, opts *InspectOptions, specs string, classes []string, cmd *cobra.Command) error {
	if ctx == nil {
		ctx = context.Background()
	}
	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

	sess, err := openSession(ctx, opts.RootOptions, specs, "", false)
	if err != nil {
		return outputLoadFailure(formatter, err)
	}
	defer sess.Close()
	eng := sess.engine

	if len(classes) == 0 {
		for _, c := range eng.Program().Classes {
			classes = append(classes, c.Name)
		}
	}

	before := make(map[string][]dispatch.Entry, len(classes))
	for _, name := range classes {
		entries, err := eng.Table(name)
		if err != nil {
			return outputCommandError(formatter, harness.ErrorCode(err), err)
		}
		before[name] = entries
	}

	if !opts.NoBoot {
		if err := eng.Boot(ctx); err != nil {
			_ = formatter.Error(ErrCodeBootFailed, err.Error(), harness.ErrorCode(err))
			return WrapExitError(ExitFailure, "boot failed", err)
		}
	}

	result := InspectResult{ProgramHash: eng.ProgramHash(), Booted: !opts.NoBoot}
	for _, name := range classes {
		after, err := eng.Table(name)
		if err != nil {
			return outputCommandError(formatter, harness.ErrorCode(err), err)
		}
		table := ClassTable{Class: name, Entries: diffTables(before[name], after)}
		if spec := eng.Program().Class(name); spec != nil {
			table.Super = spec.Super
		}
		result.Tables = append(result.Tables, table)
	}

	if formatter.JSON() {
		return formatter.Success(result)
	}
	return printTables(formatter, result)
}

// diffTables pairs the before and after bindings of each selector.
func diffTables(before, after []dispatch.Entry) []TableRow {
	prev := make(map[dispatch.Selector]string, len(before))
	for _, e := range before {
		prev[e.Selector] = e.Implementation
	}
	rows := make([]TableRow, 0, len(after))
	for _, e := range after {
		rows = append(rows, TableRow{
			Selector: string(e.Selector),
			Before:   prev[e.Selector],
			After:    e.Implementation,
			Owner:    e.Owner,
			Local:    e.Local,
			Changed:  prev[e.Selector] != e.Implementation,
		})
	}
	return rows
}

func printTables(formatter *OutputFormatter, result InspectResult) error {
	w := formatter.Writer
	for i, table := range result.Tables {
		if i > 0 {
			fmt.Fprintln(w)
		}
		super := table.Super
		if super == "" {
			super = "(root)"
		}
		fmt.Fprintf(w, "%s < %s\n", table.Class, super)

		tw := formatter.Table()
		fmt.Fprintln(tw, "  \tSELECTOR\tBEFORE\tAFTER\tOWNER")
		for _, row := range table.Entries {
			mark := " "
			if row.Changed {
				mark = "*"
			}
			owner := row.Owner
			if !row.Local {
				owner += " (inherited)"
			}
			before := row.Before
			if before == "" {
				before = "-"
			}
			fmt.Fprintf(tw, "  %s\t%s\t%s\t%s\t%s\n", mark, row.Selector, before, row.After, owner)
		}
		if err := tw.Flush(); err != nil {
			return err
		}
	}
	if !result.Booted {
		fmt.Fprintln(w, "\n(declared intercepts not installed)")
	}
	return nil
}

// outputLoadFailure reports a failure to load specs or open the journal.
func outputLoadFailure(formatter *OutputFormatter, err error) error {
	var loadErr *LoadError
	if errors.As(err, &loadErr) {
		_ = formatter.Error(loadErr.Code, loadErr.Message, nil)
		return WrapExitError(ExitCommandError, loadErr.Code, err)
	}
	_ = formatter.Error(ErrCodeGeneric, err.Error(), nil)
	return WrapExitError(ExitCommandError, ErrCodeGeneric, err)
}

// outputCommandError reports err under code, or E001 when it has none.
func outputCommandError(formatter *OutputFormatter, code string, err error) error {
	if code == "" {
		code = ErrCodeGeneric
	}
	_ = formatter.Error(code, err.Error(), nil)
	return WrapExitError(ExitCommandError, code, err)
}
