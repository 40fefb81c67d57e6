package compiler

import (
	"fmt"

	"cuelang.org/go/cue"

	"github.com/roach88/swizzle/internal/ir"
)

// CompileProgram compiles the top-level `class` struct and `intercept` list.
//
//	class: Base: method: greet: body: [{return: "Hello from Base"}]
//	class: Derived: super: "Base"
//	intercept: [{class: "Base", original: "greet", wrapper: "loggedGreet"}]
//
// Classes keep declaration order. Compilation stops at the first error; use
// Validate on the result for cross-class checks.
func CompileProgram(v cue.Value) (*ir.Program, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	prog := &ir.Program{
		Classes:    []ir.ClassSpec{},
		Intercepts: []ir.InterceptSpec{},
	}

	classVal := v.LookupPath(cue.ParsePath("class"))
	if classVal.Exists() {
		iter, err := classVal.Fields()
		if err != nil {
			return nil, formatCUEError(err)
		}
		for iter.Next() {
			spec, err := CompileClass(iter.Value())
			if err != nil {
				return nil, err
			}
			prog.Classes = append(prog.Classes, *spec)
		}
	}

	interceptVal := v.LookupPath(cue.ParsePath("intercept"))
	if interceptVal.Exists() {
		intercepts, err := CompileIntercepts(interceptVal)
		if err != nil {
			return nil, err
		}
		prog.Intercepts = intercepts
	}

	return prog, nil
}

// CompileIntercepts parses the intercept list. Each entry needs class,
// original and wrapper strings.
func CompileIntercepts(v cue.Value) ([]ir.InterceptSpec, error) {
	iter, err := v.List()
	if err != nil {
		return nil, &CompileError{
			Field:   "intercept",
			Message: "intercept must be a list",
			Pos:     v.Pos(),
		}
	}

	specs := []ir.InterceptSpec{}
	for i := 0; iter.Next(); i++ {
		entry := iter.Value()
		var spec ir.InterceptSpec
		for _, field := range []struct {
			name string
			dst  *string
		}{
			{"class", &spec.Class},
			{"original", &spec.Original},
			{"wrapper", &spec.Wrapper},
		} {
			fv := entry.LookupPath(cue.ParsePath(field.name))
			if !fv.Exists() {
				return nil, &CompileError{
					Field:   "intercept",
					Message: fmt.Sprintf("intercept[%d].%s is required", i, field.name),
					Pos:     entry.Pos(),
				}
			}
			s, err := fv.String()
			if err != nil {
				return nil, &CompileError{
					Field:   "intercept",
					Message: fmt.Sprintf("intercept[%d].%s must be a string", i, field.name),
					Pos:     fv.Pos(),
				}
			}
			*field.dst = s
		}
		specs = append(specs, spec)
	}

	return specs, nil
}
