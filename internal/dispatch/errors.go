package dispatch

import (
	"errors"
	"fmt"
)

// DispatchError reports a failed lookup or table operation.
type DispatchError struct {
	// Code identifies the error category.
	Code DispatchErrorCode

	// Message is a human-readable description.
	Message string

	// Class is the class the operation ran against, if any.
	Class string

	// Selector is the selector involved, if any.
	Selector Selector
}

// DispatchErrorCode categorizes dispatch errors.
type DispatchErrorCode string

const (
	// ErrCodeUnrecognizedSelector indicates no class in the chain binds the selector.
	ErrCodeUnrecognizedSelector DispatchErrorCode = "UNRECOGNIZED_SELECTOR"

	// ErrCodeUnknownClass indicates a class name that was never defined.
	ErrCodeUnknownClass DispatchErrorCode = "UNKNOWN_CLASS"

	// ErrCodeDuplicateClass indicates a class name defined twice.
	ErrCodeDuplicateClass DispatchErrorCode = "DUPLICATE_CLASS"

	// ErrCodeDuplicateMethod indicates Define on a selector already bound locally.
	ErrCodeDuplicateMethod DispatchErrorCode = "DUPLICATE_METHOD"

	// ErrCodeNotLocal indicates an exchange on a selector the class only inherits.
	ErrCodeNotLocal DispatchErrorCode = "NOT_LOCAL"
)

// Error implements the error interface.
func (e *DispatchError) Error() string {
	switch {
	case e.Class != "" && e.Selector != "":
		return fmt.Sprintf("%s: %s (class=%s, selector=%s)", e.Code, e.Message, e.Class, e.Selector)
	case e.Class != "":
		return fmt.Sprintf("%s: %s (class=%s)", e.Code, e.Message, e.Class)
	default:
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
}

// IsUnrecognizedSelector returns true if the error is a failed method lookup.
// Uses errors.As to handle wrapped errors.
func IsUnrecognizedSelector(err error) bool {
	return hasCode(err, ErrCodeUnrecognizedSelector)
}

// IsUnknownClass returns true if the error names an undefined class.
func IsUnknownClass(err error) bool {
	return hasCode(err, ErrCodeUnknownClass)
}

// IsNotLocal returns true if the error is an exchange on an inherited selector.
func IsNotLocal(err error) bool {
	return hasCode(err, ErrCodeNotLocal)
}

func hasCode(err error, code DispatchErrorCode) bool {
	var de *DispatchError
	if errors.As(err, &de) {
		return de.Code == code
	}
	return false
}
