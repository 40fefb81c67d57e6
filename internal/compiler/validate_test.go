package compiler

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/roach88/swizzle/internal/ir"
)

func ret(v string) ir.Step { return ir.Step{Op: ir.StepReturn, Value: ir.IRString(v)} }

func validProgram() ir.Program {
	return ir.Program{
		Classes: []ir.ClassSpec{
			{Name: "Base", Methods: []ir.MethodSpec{
				{Selector: "greet", Body: []ir.Step{ret("Hello from Base")}},
				{Selector: "loggedGreet", Body: []ir.Step{
					{Op: ir.StepLog, Message: "enter"},
					{Op: ir.StepSend, Selector: "loggedGreet"},
					ret("${result}"),
				}},
			}},
			{Name: "Derived", Super: "Base"},
			{Name: "Overriding", Super: "Base", Methods: []ir.MethodSpec{
				{Selector: "greet", Body: []ir.Step{{Op: ir.StepSuper, Selector: "greet"}, ret("${result}")}},
			}},
		},
		Intercepts: []ir.InterceptSpec{{Class: "Derived", Original: "greet", Wrapper: "loggedGreet"}},
	}
}

func codes(errs []ValidationError) []string {
	out := []string{}
	for _, e := range errs {
		out = append(out, e.Code)
	}
	return out
}

func TestValidateProgramValid(t *testing.T) {
	p := validProgram()
	assert.Empty(t, Validate(&p))
	assert.Empty(t, Validate(p))
}

func TestValidateProgramErrors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(p *ir.Program)
		code   string
	}{
		{"invalid class name", func(p *ir.Program) { p.Classes[1].Name = "1bad" }, ErrInvalidName},
		{"empty body", func(p *ir.Program) { p.Classes[0].Methods[0].Body = nil }, ErrEmptyBody},
		{"missing return", func(p *ir.Program) {
			p.Classes[0].Methods[0].Body = []ir.Step{{Op: ir.StepLog, Message: "x"}}
		}, ErrMissingReturn},
		{"send without selector", func(p *ir.Program) {
			p.Classes[0].Methods[1].Body[1].Selector = ""
		}, ErrInvalidStep},
		{"duplicate selector", func(p *ir.Program) {
			p.Classes[0].Methods = append(p.Classes[0].Methods, p.Classes[0].Methods[0])
		}, ErrDuplicateName},
		{"duplicate class", func(p *ir.Program) {
			p.Classes = append(p.Classes, ir.ClassSpec{Name: "Derived", Super: "Base"})
		}, ErrDuplicateName},
		{"unknown super", func(p *ir.Program) { p.Classes[1].Super = "Nope" }, ErrUnknownSuperclass},
		{"cycle", func(p *ir.Program) { p.Classes[0].Super = "Derived" }, ErrSuperclassCycle},
		{"super in root", func(p *ir.Program) {
			p.Classes[0].Methods[0].Body = []ir.Step{{Op: ir.StepSuper, Selector: "greet"}, ret("x")}
		}, ErrInvalidSuperSend},
		{"super unresolved", func(p *ir.Program) {
			p.Classes[2].Methods[0].Body[0].Selector = "wave"
		}, ErrInvalidSuperSend},
		{"intercept unknown class", func(p *ir.Program) { p.Intercepts[0].Class = "Ghost" }, ErrUnknownInterceptClass},
		{"intercept unresolved", func(p *ir.Program) { p.Intercepts[0].Wrapper = "shout" }, ErrUnresolvedSelector},
		{"intercept same selector", func(p *ir.Program) { p.Intercepts[0].Wrapper = "greet" }, ErrSameSelector},
		{"conflicting intercept", func(p *ir.Program) {
			p.Classes[0].Methods = append(p.Classes[0].Methods, ir.MethodSpec{Selector: "shout", Body: []ir.Step{ret("x")}})
			p.Intercepts = append(p.Intercepts, ir.InterceptSpec{Class: "Derived", Original: "greet", Wrapper: "shout"})
		}, ErrConflictingIntercept},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := validProgram()
			tt.mutate(&p)
			assert.Contains(t, codes(Validate(&p)), tt.code)
		})
	}
}

func TestValidateRepeatedInterceptAllowed(t *testing.T) {
	p := validProgram()
	p.Intercepts = append(p.Intercepts, p.Intercepts[0])
	assert.Empty(t, Validate(&p))
}

func TestValidateUnsupportedType(t *testing.T) {
	errs := Validate("nope")
	assert.Equal(t, []string{ErrUnsupportedIRType}, codes(errs))
}

func TestValidationErrorFormat(t *testing.T) {
	e := ValidationError{Field: "classes[0]", Message: "bad", Code: ErrInvalidName}
	assert.Equal(t, "[E101] classes[0]: bad", e.Error())
	e.Line = 3
	assert.Equal(t, "[E101] line 3: classes[0]: bad", e.Error())
}
