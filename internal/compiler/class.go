package compiler

import (
	"fmt"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/roach88/swizzle/internal/ir"
)

// CompileClass parses a CUE value into a ClassSpec.
// Uses CUE SDK's Go API directly (not CLI subprocess).
//
// The CUE value should be the class struct itself, e.g.:
//
//	ctx := cuecontext.New()
//	v := ctx.CompileString(`class: Base: method: greet: body: [{return: "hi"}]`)
//	spec, err := CompileClass(v.LookupPath(cue.ParsePath("class.Base")))
func CompileClass(v cue.Value) (*ir.ClassSpec, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	spec := &ir.ClassSpec{}

	// Class name comes from the struct label
	labels := v.Path().Selectors()
	if len(labels) > 0 {
		spec.Name = labels[len(labels)-1].Unquoted()
	}

	superVal := v.LookupPath(cue.ParsePath("super"))
	if superVal.Exists() {
		super, err := superVal.String()
		if err != nil {
			return nil, &CompileError{
				Field:   "super",
				Message: "super must be a class name string",
				Pos:     superVal.Pos(),
			}
		}
		spec.Super = super
	}

	methods, err := parseMethods(v)
	if err != nil {
		return nil, err
	}
	spec.Methods = methods

	return spec, nil
}

// parseMethods extracts locally defined methods in declaration order.
// A class without methods only inherits.
func parseMethods(v cue.Value) ([]ir.MethodSpec, error) {
	methods := []ir.MethodSpec{}

	methodVal := v.LookupPath(cue.ParsePath("method"))
	if !methodVal.Exists() {
		return methods, nil
	}

	iter, err := methodVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}

	for iter.Next() {
		selector := iter.Selector().Unquoted()
		methodValue := iter.Value()

		bodyVal := methodValue.LookupPath(cue.ParsePath("body"))
		if !bodyVal.Exists() {
			return nil, &CompileError{
				Field:   fmt.Sprintf("method.%s.body", selector),
				Message: "method body is required",
				Pos:     methodValue.Pos(),
			}
		}

		body, err := parseBody(bodyVal, selector)
		if err != nil {
			return nil, err
		}

		methods = append(methods, ir.MethodSpec{
			Selector: selector,
			Body:     body,
		})
	}

	return methods, nil
}

// parseBody compiles a step list. Every body ends in a return step.
func parseBody(v cue.Value, selector string) ([]ir.Step, error) {
	iter, err := v.List()
	if err != nil {
		return nil, &CompileError{
			Field:   "body",
			Message: fmt.Sprintf("body of %q must be a list of steps", selector),
			Pos:     v.Pos(),
		}
	}

	var steps []ir.Step
	for iter.Next() {
		step, err := parseStep(iter.Value())
		if err != nil {
			return nil, err
		}
		steps = append(steps, step)
	}

	if len(steps) == 0 || steps[len(steps)-1].Op != ir.StepReturn {
		return nil, &CompileError{
			Field:   "body",
			Message: fmt.Sprintf("body of %q must end with a return step", selector),
			Pos:     v.Pos(),
		}
	}

	return steps, nil
}

// parseStep compiles one step struct. Exactly one op key is allowed; args is
// only meaningful on send and super.
func parseStep(v cue.Value) (ir.Step, error) {
	var step ir.Step

	iter, err := v.Fields()
	if err != nil {
		return step, &CompileError{
			Field:   "step",
			Message: "step must be a struct such as {log: \"...\"}",
			Pos:     v.Pos(),
		}
	}

	var argsVal cue.Value
	hasArgs := false

	for iter.Next() {
		label := iter.Selector().Unquoted()
		fieldVal := iter.Value()

		if label == "args" {
			argsVal = fieldVal
			hasArgs = true
			continue
		}

		op := ir.StepOp(label)
		if !ir.ValidStepOps[op] {
			return step, &CompileError{
				Field:   "step",
				Message: fmt.Sprintf("unknown step key %q", label),
				Pos:     fieldVal.Pos(),
			}
		}
		if step.Op != "" {
			return step, &CompileError{
				Field:   "step",
				Message: fmt.Sprintf("step has both %q and %q, exactly one op allowed", step.Op, op),
				Pos:     fieldVal.Pos(),
			}
		}
		step.Op = op

		switch op {
		case ir.StepLog:
			msg, err := fieldVal.String()
			if err != nil {
				return step, &CompileError{Field: "step", Message: "log message must be a string", Pos: fieldVal.Pos()}
			}
			step.Message = msg
		case ir.StepSend, ir.StepSuper:
			sel, err := fieldVal.String()
			if err != nil {
				return step, &CompileError{Field: "step", Message: fmt.Sprintf("%s target must be a selector string", op), Pos: fieldVal.Pos()}
			}
			step.Selector = sel
		case ir.StepReturn:
			val, err := cueToIR(fieldVal)
			if err != nil {
				return step, err
			}
			step.Value = val
		}
	}

	if step.Op == "" {
		return step, &CompileError{
			Field:   "step",
			Message: "step must name one of log, send, super, return",
			Pos:     v.Pos(),
		}
	}

	if hasArgs {
		if step.Op != ir.StepSend && step.Op != ir.StepSuper {
			return step, &CompileError{
				Field:   "step",
				Message: fmt.Sprintf("args are not allowed on %s steps", step.Op),
				Pos:     argsVal.Pos(),
			}
		}
		args, err := cueToIR(argsVal)
		if err != nil {
			return step, err
		}
		arr, ok := args.(ir.IRArray)
		if !ok {
			return step, &CompileError{Field: "step", Message: "args must be a list", Pos: argsVal.Pos()}
		}
		step.Args = arr
	}

	return step, nil
}

// cueToIR converts a concrete CUE value to an IRValue.
// Floats and null are forbidden.
func cueToIR(v cue.Value) (ir.IRValue, error) {
	switch v.Kind() {
	case cue.StringKind:
		s, err := v.String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		return ir.IRString(s), nil
	case cue.IntKind:
		n, err := v.Int64()
		if err != nil {
			return nil, &CompileError{Field: "type", Message: "integer out of int64 range", Pos: v.Pos()}
		}
		return ir.IRInt(n), nil
	case cue.BoolKind:
		b, err := v.Bool()
		if err != nil {
			return nil, formatCUEError(err)
		}
		return ir.IRBool(b), nil
	case cue.ListKind:
		iter, err := v.List()
		if err != nil {
			return nil, formatCUEError(err)
		}
		arr := ir.IRArray{}
		for iter.Next() {
			elem, err := cueToIR(iter.Value())
			if err != nil {
				return nil, err
			}
			arr = append(arr, elem)
		}
		return arr, nil
	case cue.StructKind:
		iter, err := v.Fields()
		if err != nil {
			return nil, formatCUEError(err)
		}
		obj := ir.IRObject{}
		for iter.Next() {
			elem, err := cueToIR(iter.Value())
			if err != nil {
				return nil, err
			}
			obj[iter.Selector().Unquoted()] = elem
		}
		return obj, nil
	case cue.FloatKind, cue.NumberKind:
		return nil, &CompileError{
			Field:   "type",
			Message: "float values are forbidden, use int instead",
			Pos:     v.Pos(),
		}
	case cue.NullKind:
		return nil, &CompileError{
			Field:   "type",
			Message: "null is forbidden",
			Pos:     v.Pos(),
		}
	default:
		return nil, &CompileError{
			Field:   "type",
			Message: fmt.Sprintf("value must be concrete, got %v", v.IncompleteKind()),
			Pos:     v.Pos(),
		}
	}
}

// CompileError represents a compilation error with source position.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	// CUE errors may contain multiple errors
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	// Return first error with position info
	firstErr := errs[0]
	positions := errors.Positions(firstErr)
	if len(positions) > 0 {
		return &CompileError{
			Field:   "cue",
			Message: firstErr.Error(),
			Pos:     positions[0],
		}
	}

	return err
}
