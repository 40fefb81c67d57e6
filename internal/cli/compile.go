package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/swizzle/internal/compiler"
	"github.com/roach88/swizzle/internal/ir"
)

// CompileOptions holds flags for the compile command.
type CompileOptions struct {
	*RootOptions
	Output string // output file path
}

// CompilationResult is the compiled program and its content hash.
type CompilationResult struct {
	ProgramHash string      `json:"program_hash"`
	Program     *ir.Program `json:"program"`
}

// CompilationStats holds summary statistics.
type CompilationStats struct {
	ClassCount     int
	MethodCount    int
	InterceptCount int
}

// NewCompileCommand creates the compile command.
func NewCompileCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CompileOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "compile <specs>",
		Short: "Compile CUE specs to canonical IR",
		Long: `Compile CUE class declarations and intercepts to IR.

<specs> is a directory of .cue files or a single .cue file. The program is
compiled, validated and printed with its content hash.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true, // Don't print usage on errors - we handle our own error output
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompile(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "output file path")

	return cmd
}

func runCompile(opts *CompileOptions, specs string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

	loadResult, err := LoadSpecs(specs)
	if err != nil {
		return outputCompileErrors(formatter, []error{err})
	}

	formatter.VerboseLog("Found %d CUE file(s) in %s", loadResult.FileCount, specs)
	for _, class := range loadResult.Program.Classes {
		formatter.VerboseLog("Compiled class: %s", class.Name)
	}

	if verrs := compiler.Validate(loadResult.Program); len(verrs) > 0 {
		errs := make([]error, len(verrs))
		for i, verr := range verrs {
			errs[i] = verr
		}
		return outputCompileErrors(formatter, errs)
	}

	hash, err := ir.ProgramHash(*loadResult.Program)
	if err != nil {
		return outputCompileError(formatter, ErrCodeGeneric, fmt.Sprintf("hashing program: %v", err), nil)
	}
	result := &CompilationResult{
		ProgramHash: hash,
		Program:     loadResult.Program,
	}

	if opts.Output != "" {
		if err := writeIRToFile(result, opts.Output); err != nil {
			return outputCompileError(formatter, ErrCodeWriteFailed, fmt.Sprintf("writing output file: %v", err), nil)
		}
	}

	return outputCompileSuccess(formatter, result, calculateStats(result.Program), opts.Output)
}

// calculateStats computes summary statistics for a program.
func calculateStats(prog *ir.Program) CompilationStats {
	stats := CompilationStats{
		ClassCount:     len(prog.Classes),
		InterceptCount: len(prog.Intercepts),
	}
	for _, class := range prog.Classes {
		stats.MethodCount += len(class.Methods)
	}
	return stats
}

// outputCompileSuccess outputs successful compilation results.
func outputCompileSuccess(formatter *OutputFormatter, result *CompilationResult, stats CompilationStats, outputFile string) error {
	if formatter.Format == "json" {
		return formatter.Success(result)
	}

	w := formatter.Writer
	fmt.Fprintf(w, "✓ Compiled %d class(es), %d method(s), %d intercept(s)\n\n",
		stats.ClassCount, stats.MethodCount, stats.InterceptCount)

	if len(result.Program.Classes) > 0 {
		fmt.Fprintln(w, "Classes:")
		for _, class := range result.Program.Classes {
			super := class.Super
			if super == "" {
				super = "(root)"
			}
			fmt.Fprintf(w, "  %s < %s: %d method(s)\n", class.Name, super, len(class.Methods))
		}
		fmt.Fprintln(w)
	}

	if len(result.Program.Intercepts) > 0 {
		fmt.Fprintln(w, "Intercepts:")
		for _, ic := range result.Program.Intercepts {
			fmt.Fprintf(w, "  %s.%s ↔ %s\n", ic.Class, ic.Original, ic.Wrapper)
		}
		fmt.Fprintln(w)
	}

	fmt.Fprintf(w, "Program hash: %s\n", result.ProgramHash)
	if outputFile != "" {
		fmt.Fprintf(w, "Wrote IR to %s\n", outputFile)
	}
	return nil
}

// outputCompileError outputs a single compilation error.
func outputCompileError(formatter *OutputFormatter, code, message string, details any) error {
	_ = formatter.Error(code, message, details)
	// Compilation errors are command-level errors (exit code 2)
	return WrapExitError(ExitCommandError, fmt.Sprintf("%s: %s", code, message), nil)
}

// outputCompileErrors outputs multiple compilation errors.
func outputCompileErrors(formatter *OutputFormatter, errs []error) error {
	if formatter.Format == "json" {
		cliErrors := make([]CLIError, len(errs))
		for i, err := range errs {
			code, message := parseCompileError(err)
			cliErrors[i] = CLIError{
				Code:    code,
				Message: message,
			}
		}

		if err := formatter.encode(CLIResponse{
			Status: "error",
			Error:  &cliErrors[0],
			Data:   cliErrors, // all errors
		}); err != nil {
			return err
		}

		return NewExitError(ExitCommandError, fmt.Sprintf("compilation failed with %d error(s)", len(errs)))
	}

	fmt.Fprintln(formatter.Writer, "✗ Compilation failed")
	fmt.Fprintln(formatter.Writer)

	for _, err := range errs {
		code, message := parseCompileError(err)
		var loadErr *LoadError
		if errors.As(err, &loadErr) && loadErr.Pos.IsValid() {
			fmt.Fprintf(formatter.Writer, "%s:%d:%d\n",
				loadErr.Pos.Filename(),
				loadErr.Pos.Line(),
				loadErr.Pos.Column())
		}
		fmt.Fprintf(formatter.Writer, "  %s: %s\n\n", code, message)
	}

	return NewExitError(ExitCommandError, fmt.Sprintf("compilation failed with %d error(s)", len(errs)))
}

// parseCompileError extracts error code and message from an error.
func parseCompileError(err error) (string, string) {
	var loadErr *LoadError
	if errors.As(err, &loadErr) {
		return loadErr.Code, loadErr.Message
	}
	var verr compiler.ValidationError
	if errors.As(err, &verr) {
		return verr.Code, fmt.Sprintf("%s: %s", verr.Field, verr.Message)
	}
	return ErrCodeGeneric, err.Error()
}

// writeIRToFile writes the compilation result as indented JSON.
// Canonical JSON is used only for hashing.
func writeIRToFile(result *CompilationResult, filename string) error {
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling IR: %w", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("writing file: %w", err)
	}

	return nil
}
