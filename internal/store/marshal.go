package store

import (
	"fmt"

	"github.com/roach88/swizzle/internal/ir"
)

// marshalArgs converts method arguments to canonical JSON TEXT.
// Absent arguments are stored as the empty string.
func marshalArgs(args ir.IRArray) (string, error) {
	if args == nil {
		return "", nil
	}
	data, err := ir.MarshalCanonical(args)
	if err != nil {
		return "", fmt.Errorf("marshal args: %w", err)
	}
	return string(data), nil
}

// marshalValue converts a single value to canonical JSON TEXT.
// A nil value is stored as the empty string.
func marshalValue(v ir.IRValue) (string, error) {
	if v == nil {
		return "", nil
	}
	data, err := ir.MarshalCanonical(v)
	if err != nil {
		return "", fmt.Errorf("marshal value: %w", err)
	}
	return string(data), nil
}

// unmarshalArgs parses canonical JSON TEXT back into arguments.
// Uses ir.UnmarshalIRValue which keeps large integers exact via json.Number.
func unmarshalArgs(data string) (ir.IRArray, error) {
	if data == "" {
		return nil, nil
	}
	v, err := ir.UnmarshalIRValue([]byte(data))
	if err != nil {
		return nil, fmt.Errorf("unmarshal args: %w", err)
	}
	arr, ok := v.(ir.IRArray)
	if !ok {
		return nil, fmt.Errorf("unmarshal args: expected array, got %T", v)
	}
	return arr, nil
}

// unmarshalValue parses canonical JSON TEXT back into a value.
func unmarshalValue(data string) (ir.IRValue, error) {
	if data == "" {
		return nil, nil
	}
	v, err := ir.UnmarshalIRValue([]byte(data))
	if err != nil {
		return nil, fmt.Errorf("unmarshal value: %w", err)
	}
	return v, nil
}
