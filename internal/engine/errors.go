package engine

import (
	"errors"
	"fmt"
)

// RuntimeError represents an error detected while interpreting a program.
//
// Runtime errors include:
//   - Recursion limit: call depth exceeded WithMaxDepth
//   - Bad step: a step could not be evaluated (unknown placeholder, no result)
//   - Missing class: Send named a class the program does not declare
//   - Program mismatch: a journaled run resumed with a different program
type RuntimeError struct {
	// Code identifies the error category.
	Code RuntimeErrorCode

	// Message is a human-readable description.
	Message string

	// Class is the receiver or defining class.
	Class string

	// Selector is the selector being sent or executed.
	Selector string

	// Details contains additional context.
	Details map[string]string
}

// RuntimeErrorCode categorizes runtime errors.
type RuntimeErrorCode string

const (
	// ErrCodeRecursionLimit indicates the call depth limit was reached.
	ErrCodeRecursionLimit RuntimeErrorCode = "RECURSION_LIMIT"

	// ErrCodeBadStep indicates a body step could not be evaluated.
	ErrCodeBadStep RuntimeErrorCode = "BAD_STEP"

	// ErrCodeMissingClass indicates an unknown class name.
	ErrCodeMissingClass RuntimeErrorCode = "MISSING_CLASS"

	// ErrCodeProgramMismatch indicates a journaled run was resumed with a
	// program whose hash differs from the one it was started with.
	ErrCodeProgramMismatch RuntimeErrorCode = "PROGRAM_MISMATCH"
)

// Error implements the error interface.
func (e *RuntimeError) Error() string {
	if e.Class != "" && e.Selector != "" {
		return fmt.Sprintf("%s: %s (class=%s, selector=%s)", e.Code, e.Message, e.Class, e.Selector)
	}
	if e.Class != "" {
		return fmt.Sprintf("%s: %s (class=%s)", e.Code, e.Message, e.Class)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// IsRecursionLimit returns true if the error is a depth limit error.
// Uses errors.As to handle wrapped errors.
func IsRecursionLimit(err error) bool {
	var re *RuntimeError
	if errors.As(err, &re) {
		return re.Code == ErrCodeRecursionLimit
	}
	return false
}

// IsBadStep returns true if a body step failed to evaluate.
func IsBadStep(err error) bool {
	var re *RuntimeError
	if errors.As(err, &re) {
		return re.Code == ErrCodeBadStep
	}
	return false
}

// IsMissingClass returns true if the error names an unknown class.
func IsMissingClass(err error) bool {
	var re *RuntimeError
	if errors.As(err, &re) {
		return re.Code == ErrCodeMissingClass
	}
	return false
}

// IsProgramMismatch returns true if a resumed run belongs to another program.
func IsProgramMismatch(err error) bool {
	var re *RuntimeError
	if errors.As(err, &re) {
		return re.Code == ErrCodeProgramMismatch
	}
	return false
}

// NewRecursionError creates a RuntimeError for an exceeded call depth.
func NewRecursionError(class, selector string, depth, maxDepth int) *RuntimeError {
	return &RuntimeError{
		Code:     ErrCodeRecursionLimit,
		Message:  fmt.Sprintf("call depth exceeded (%d >= %d)", depth, maxDepth),
		Class:    class,
		Selector: selector,
		Details: map[string]string{
			"depth":     fmt.Sprintf("%d", depth),
			"max_depth": fmt.Sprintf("%d", maxDepth),
		},
	}
}
