package compiler

import (
	"fmt"
	"regexp"

	"github.com/roach88/swizzle/internal/ir"
)

// Validation error codes (E100-E199)
const (
	// General validation errors (E100)
	ErrUnsupportedIRType = "E100" // unsupported IR type for validation

	// ClassSpec errors (E101-E109)
	ErrInvalidName        = "E101" // class or selector is not an identifier
	ErrEmptyBody          = "E102" // method body has no steps
	ErrMissingReturn      = "E103" // body does not end with return
	ErrInvalidStep        = "E104" // unknown op or missing operand
	ErrDuplicateName      = "E105" // duplicate class or selector
	ErrFloatTypeForbidden = "E106" // float values not allowed

	// Hierarchy errors (E110-E111)
	ErrUnknownSuperclass = "E110" // super names an undeclared class
	ErrSuperclassCycle   = "E111" // superclass chain loops

	// Intercept errors (E112-E116)
	ErrUnknownInterceptClass = "E112" // intercept names an undeclared class
	ErrUnresolvedSelector    = "E113" // selector not reachable from class
	ErrSameSelector          = "E114" // original and wrapper are the same
	ErrConflictingIntercept  = "E115" // same pair declared with two wrappers
	ErrInvalidSuperSend      = "E116" // super step in a root class or unresolvable
)

// ValidationError represents a schema validation error.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
	Line    int    `json:"line,omitempty"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("[%s] line %d: %s: %s", e.Code, e.Line, e.Field, e.Message)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

// Validate validates compiled IR against schema rules.
// Returns all errors found (does not fail-fast).
// Supports Program and ClassSpec types.
func Validate(v any) []ValidationError {
	switch spec := v.(type) {
	case *ir.Program:
		return validateProgram(spec)
	case ir.Program:
		return validateProgram(&spec)
	case *ir.ClassSpec:
		return validateClass(spec, fmt.Sprintf("class.%s", spec.Name))
	case ir.ClassSpec:
		return validateClass(&spec, fmt.Sprintf("class.%s", spec.Name))
	default:
		return []ValidationError{{
			Field:   "type",
			Message: fmt.Sprintf("unsupported IR type: %T", v),
			Code:    ErrUnsupportedIRType,
		}}
	}
}

// identPattern matches class names and selectors.
var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_:]*$`)

// validateClass checks one class in isolation.
func validateClass(spec *ir.ClassSpec, field string) []ValidationError {
	var errs []ValidationError

	// E101: identifiers
	if !identPattern.MatchString(spec.Name) {
		errs = append(errs, ValidationError{
			Field:   field + ".name",
			Message: fmt.Sprintf("invalid class name %q", spec.Name),
			Code:    ErrInvalidName,
		})
	}

	selectors := make(map[string]bool)
	for i, m := range spec.Methods {
		mfield := fmt.Sprintf("%s.methods[%d]", field, i)

		if !identPattern.MatchString(m.Selector) {
			errs = append(errs, ValidationError{
				Field:   mfield + ".selector",
				Message: fmt.Sprintf("invalid selector %q", m.Selector),
				Code:    ErrInvalidName,
			})
		}

		// E105: duplicate selector
		if selectors[m.Selector] {
			errs = append(errs, ValidationError{
				Field:   mfield + ".selector",
				Message: fmt.Sprintf("duplicate selector: %q", m.Selector),
				Code:    ErrDuplicateName,
			})
		}
		selectors[m.Selector] = true

		errs = append(errs, validateBody(m, mfield)...)
	}

	return errs
}

// validateBody checks step shape. The compiler already enforces most of this
// for CUE input; hand-built IR goes through the same rules here.
func validateBody(m ir.MethodSpec, field string) []ValidationError {
	var errs []ValidationError

	// E102: at least one step
	if len(m.Body) == 0 {
		return []ValidationError{{
			Field:   field + ".body",
			Message: fmt.Sprintf("method %q has an empty body", m.Selector),
			Code:    ErrEmptyBody,
		}}
	}

	for j, step := range m.Body {
		sfield := fmt.Sprintf("%s.body[%d]", field, j)

		// E104: op and operands
		switch step.Op {
		case ir.StepSend, ir.StepSuper:
			if step.Selector == "" {
				errs = append(errs, ValidationError{
					Field:   sfield,
					Message: fmt.Sprintf("%s step requires a selector", step.Op),
					Code:    ErrInvalidStep,
				})
			}
		case ir.StepReturn:
			if step.Value == nil {
				errs = append(errs, ValidationError{
					Field:   sfield,
					Message: "return step requires a value",
					Code:    ErrInvalidStep,
				})
			}
		case ir.StepLog:
		default:
			errs = append(errs, ValidationError{
				Field:   sfield,
				Message: fmt.Sprintf("invalid step op %q", step.Op),
				Code:    ErrInvalidStep,
			})
		}
	}

	// E103: last step returns
	if m.Body[len(m.Body)-1].Op != ir.StepReturn {
		errs = append(errs, ValidationError{
			Field:   field + ".body",
			Message: fmt.Sprintf("method %q must end with a return step", m.Selector),
			Code:    ErrMissingReturn,
		})
	}

	return errs
}

// validateProgram checks every class plus cross-class rules.
func validateProgram(prog *ir.Program) []ValidationError {
	var errs []ValidationError

	classes := make(map[string]*ir.ClassSpec, len(prog.Classes))
	for i := range prog.Classes {
		c := &prog.Classes[i]
		field := fmt.Sprintf("classes[%d]", i)

		errs = append(errs, validateClass(c, field)...)

		// E105: duplicate class
		if _, dup := classes[c.Name]; dup {
			errs = append(errs, ValidationError{
				Field:   field + ".name",
				Message: fmt.Sprintf("duplicate class name: %q", c.Name),
				Code:    ErrDuplicateName,
			})
			continue
		}
		classes[c.Name] = c
	}

	// E110: unknown superclass
	for i, c := range prog.Classes {
		if c.Super != "" && classes[c.Super] == nil {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("classes[%d].super", i),
				Message: fmt.Sprintf("class %q extends unknown class %q", c.Name, c.Super),
				Code:    ErrUnknownSuperclass,
			})
		}
	}

	// E111: cycles
	cycles := InheritanceCycles(prog.Classes)
	for _, cyc := range cycles {
		errs = append(errs, ValidationError{
			Field:   "classes",
			Message: cyc.Message,
			Code:    ErrSuperclassCycle,
		})
	}
	if len(cycles) > 0 {
		// Resolution below would not terminate meaningfully.
		return errs
	}

	// E116: super steps need a superclass that resolves the selector
	for i, c := range prog.Classes {
		for j, m := range c.Methods {
			for k, step := range m.Body {
				if step.Op != ir.StepSuper {
					continue
				}
				field := fmt.Sprintf("classes[%d].methods[%d].body[%d]", i, j, k)
				if c.Super == "" {
					errs = append(errs, ValidationError{
						Field:   field,
						Message: fmt.Sprintf("class %q has no superclass for super %q", c.Name, step.Selector),
						Code:    ErrInvalidSuperSend,
					})
					continue
				}
				if !resolvable(classes, c.Super, step.Selector) {
					errs = append(errs, ValidationError{
						Field:   field,
						Message: fmt.Sprintf("super %q does not resolve from %q", step.Selector, c.Super),
						Code:    ErrInvalidSuperSend,
					})
				}
			}
		}
	}

	// Intercepts
	wrappers := make(map[[2]string]string)
	for i, ic := range prog.Intercepts {
		field := fmt.Sprintf("intercepts[%d]", i)

		// E112
		if classes[ic.Class] == nil {
			errs = append(errs, ValidationError{
				Field:   field + ".class",
				Message: fmt.Sprintf("unknown class %q", ic.Class),
				Code:    ErrUnknownInterceptClass,
			})
			continue
		}

		// E114
		if ic.Original == ic.Wrapper {
			errs = append(errs, ValidationError{
				Field:   field + ".wrapper",
				Message: fmt.Sprintf("wrapper must differ from original %q", ic.Original),
				Code:    ErrSameSelector,
			})
		}

		// E113
		for _, sel := range []struct{ name, value string }{{"original", ic.Original}, {"wrapper", ic.Wrapper}} {
			if !resolvable(classes, ic.Class, sel.value) {
				errs = append(errs, ValidationError{
					Field:   field + "." + sel.name,
					Message: fmt.Sprintf("selector %q does not resolve from class %q", sel.value, ic.Class),
					Code:    ErrUnresolvedSelector,
				})
			}
		}

		// E115
		key := [2]string{ic.Class, ic.Original}
		if prev, ok := wrappers[key]; ok && prev != ic.Wrapper {
			errs = append(errs, ValidationError{
				Field:   field + ".wrapper",
				Message: fmt.Sprintf("%s.%s is already intercepted by %q", ic.Class, ic.Original, prev),
				Code:    ErrConflictingIntercept,
			})
		}
		if _, ok := wrappers[key]; !ok {
			wrappers[key] = ic.Wrapper
		}
	}

	return errs
}

// resolvable walks the superclass chain from class looking for selector.
// Callers must have ruled out cycles.
func resolvable(classes map[string]*ir.ClassSpec, class, selector string) bool {
	for c := classes[class]; c != nil; c = classes[c.Super] {
		if c.Method(selector) != nil {
			return true
		}
	}
	return false
}
