package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/swizzle/internal/compiler"
)

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid      bool                       `json:"valid"`
	Classes    int                        `json:"classes"`
	Intercepts int                        `json:"intercepts"`
	Errors     []compiler.ValidationError `json:"errors,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <specs>",
		Short: "Check specs without printing IR",
		Long: `Validate CUE class declarations and intercepts.

Checks syntax, step shape, the superclass graph and that every declared
intercept names a class and selectors that resolve through its hierarchy.
Exits 1 when the specs are invalid and 2 when they cannot be read.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, specs string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd.OutOrStdout(), cmd.ErrOrStderr())

	result, err := ValidateSpecs(specs)
	if err != nil {
		var loadErr *LoadError
		if errors.As(err, &loadErr) {
			return outputValidateError(formatter, loadErr.Code, loadErr.Message, nil)
		}
		return outputValidateError(formatter, ErrCodeGeneric, err.Error(), nil)
	}

	if !result.Valid {
		return outputValidationErrors(formatter, result)
	}

	formatter.VerboseLog("Validated %d class(es), %d intercept(s)", result.Classes, result.Intercepts)
	return outputValidateSuccess(formatter, result)
}

// ValidateSpecs loads and validates the specs at path.
//
// A spec that fails to compile is reported as an invalid result, not an
// error. The error is reserved for specs that cannot be read at all.
func ValidateSpecs(path string) (*ValidationResult, error) {
	loadResult, err := LoadSpecs(path)
	if err != nil {
		var loadErr *LoadError
		if errors.As(err, &loadErr) && isSpecError(loadErr.Code) {
			return &ValidationResult{Errors: []compiler.ValidationError{{
				Field:   "load",
				Message: loadErr.Message,
				Code:    loadErr.Code,
				Line:    lineOf(loadErr),
			}}}, nil
		}
		return nil, err
	}

	errs := compiler.Validate(loadResult.Program)
	return &ValidationResult{
		Valid:      len(errs) == 0,
		Classes:    len(loadResult.Program.Classes),
		Intercepts: len(loadResult.Program.Intercepts),
		Errors:     errs,
	}, nil
}

// isSpecError reports whether a load error code describes the specs'
// content rather than access to them.
func isSpecError(code string) bool {
	switch code {
	case ErrCodeNotFound, ErrCodeScanError, ErrCodeNoFiles, ErrCodeLoadFailed:
		return false
	}
	return true
}

func lineOf(e *LoadError) int {
	if e.Pos.IsValid() {
		return e.Pos.Line()
	}
	return 0
}

// outputValidateSuccess outputs successful validation results.
func outputValidateSuccess(formatter *OutputFormatter, result *ValidationResult) error {
	if formatter.JSON() {
		return formatter.Success(result)
	}

	fmt.Fprintf(formatter.Writer, "✓ All specs valid (%d class(es), %d intercept(s))\n",
		result.Classes, result.Intercepts)
	return nil
}

// outputValidateError outputs an error that prevented validation.
func outputValidateError(formatter *OutputFormatter, code, message string, details any) error {
	_ = formatter.Error(code, message, details)
	return NewExitError(ExitCommandError, fmt.Sprintf("%s: %s", code, message))
}

// outputValidationErrors outputs every validation error.
func outputValidationErrors(formatter *OutputFormatter, result *ValidationResult) error {
	errs := result.Errors
	if formatter.JSON() {
		if err := formatter.encode(CLIResponse{
			Status: "error",
			Data:   result,
			Error: &CLIError{
				Code:    errs[0].Code,
				Message: errs[0].Message,
			},
		}); err != nil {
			return err
		}
		return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(errs)))
	}

	fmt.Fprintln(formatter.Writer, "✗ Validation failed")
	fmt.Fprintln(formatter.Writer)

	for _, err := range errs {
		if err.Line > 0 {
			fmt.Fprintf(formatter.Writer, "line %d\n", err.Line)
		}
		fmt.Fprintf(formatter.Writer, "  %s: %s: %s\n\n", err.Code, err.Field, err.Message)
	}

	return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(errs)))
}
