package intercept

import (
	"errors"
	"fmt"

	"github.com/roach88/swizzle/internal/dispatch"
)

// InstallError reports why an interception could not be installed.
// Errors are returned synchronously and never retried automatically.
type InstallError struct {
	// Code identifies the error category.
	Code InstallErrorCode

	// Message is a human-readable description.
	Message string

	// Class is the target class name, when known.
	Class string

	// Selector is the selector that caused the failure.
	Selector dispatch.Selector
}

// InstallErrorCode categorizes install errors.
type InstallErrorCode string

const (
	// ErrCodeUnresolvedMethod indicates the original or wrapper selector does
	// not resolve from the target class.
	ErrCodeUnresolvedMethod InstallErrorCode = "UNRESOLVED_METHOD"

	// ErrCodeInvalidTarget indicates a nil target or one from another runtime.
	ErrCodeInvalidTarget InstallErrorCode = "INVALID_TARGET"

	// ErrCodeAlreadyApplying indicates a nested install of a pair whose
	// install is still running on the same call path.
	ErrCodeAlreadyApplying InstallErrorCode = "ALREADY_APPLYING"

	// ErrCodeWrapperConflict indicates the pair is already intercepted by a
	// different wrapper, or the wrapper would end up calling itself.
	ErrCodeWrapperConflict InstallErrorCode = "WRAPPER_CONFLICT"
)

// Error implements the error interface.
func (e *InstallError) Error() string {
	switch {
	case e.Class != "" && e.Selector != "":
		return fmt.Sprintf("%s: %s (class=%s, selector=%s)", e.Code, e.Message, e.Class, e.Selector)
	case e.Class != "":
		return fmt.Sprintf("%s: %s (class=%s)", e.Code, e.Message, e.Class)
	default:
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
}

// IsUnresolvedMethod returns true if a selector did not resolve on the target.
// Uses errors.As to handle wrapped errors.
func IsUnresolvedMethod(err error) bool {
	return hasCode(err, ErrCodeUnresolvedMethod)
}

// IsInvalidTarget returns true if the target class was unusable.
func IsInvalidTarget(err error) bool {
	return hasCode(err, ErrCodeInvalidTarget)
}

// IsAlreadyApplying returns true for a re-entrant install of the same pair.
func IsAlreadyApplying(err error) bool {
	return hasCode(err, ErrCodeAlreadyApplying)
}

// IsWrapperConflict returns true if the install conflicts with an existing
// interception of the pair.
func IsWrapperConflict(err error) bool {
	return hasCode(err, ErrCodeWrapperConflict)
}

func hasCode(err error, code InstallErrorCode) bool {
	var ie *InstallError
	if errors.As(err, &ie) {
		return ie.Code == code
	}
	return false
}
