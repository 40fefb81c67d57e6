package engine

import (
	"context"
	"fmt"
	"regexp"
	"strconv"

	"github.com/roach88/swizzle/internal/dispatch"
	"github.com/roach88/swizzle/internal/ir"
)

// placeholder matches ${...} in step strings.
var placeholder = regexp.MustCompile(`\$\{([^}]*)\}`)

// frame is the state of one executing body.
type frame struct {
	owner     *dispatch.Class // class that defined the body; super starts above it
	impl      string
	selector  string
	self      *dispatch.Object
	args      ir.IRArray
	result    ir.IRValue
	hasResult bool
}

// compileMethod turns a method declaration into an implementation that
// interprets its body. The implementation keeps its name and its owner
// wherever an interception rebinds it.
func (e *Engine) compileMethod(owner *dispatch.Class, m ir.MethodSpec) *dispatch.Implementation {
	name := owner.Name() + "." + m.Selector
	body := m.Body
	selector := m.Selector
	return &dispatch.Implementation{
		Name: name,
		Fn: func(ctx context.Context, self *dispatch.Object, args ir.IRArray) (ir.IRValue, error) {
			f := &frame{
				owner:    owner,
				impl:     name,
				selector: selector,
				self:     self,
				args:     args,
			}
			return e.exec(ctx, f, body)
		},
	}
}

func (e *Engine) exec(ctx context.Context, f *frame, body []ir.Step) (ir.IRValue, error) {
	for _, step := range body {
		switch step.Op {
		case ir.StepLog:
			msg, err := f.expandText(step.Message)
			if err != nil {
				return nil, err
			}
			_, err = e.record(ctx, ir.TraceEvent{
				Kind:           ir.EventLog,
				Receiver:       f.self.Class().Name(),
				Implementation: f.impl,
				Depth:          depthFrom(ctx),
				Message:        msg,
			})
			if err != nil {
				return nil, err
			}

		case ir.StepSend, ir.StepSuper:
			args := f.args
			if step.Args != nil {
				expanded, err := f.expand(step.Args)
				if err != nil {
					return nil, err
				}
				args = expanded.(ir.IRArray)
			}

			start := f.self.Class()
			if step.Op == ir.StepSuper {
				start = f.owner.Super()
				if start == nil {
					return nil, &dispatch.DispatchError{
						Code:     dispatch.ErrCodeUnrecognizedSelector,
						Message:  "root class has no superclass",
						Class:    f.owner.Name(),
						Selector: dispatch.Selector(step.Selector),
					}
				}
			}

			res, err := e.send(ctx, f.self, start, dispatch.Selector(step.Selector), args)
			if err != nil {
				return nil, err
			}
			f.result = res
			f.hasResult = true

		case ir.StepReturn:
			return f.expand(step.Value)

		default:
			return nil, f.badStep(fmt.Sprintf("unknown step op %q", step.Op))
		}
	}
	return nil, f.badStep("body ended without return")
}

// send resolves sel from start and calls the implementation with obj as the
// receiver. The send event is recorded before the call and the return event
// after it, both at the caller's depth.
func (e *Engine) send(ctx context.Context, obj *dispatch.Object, start *dispatch.Class, sel dispatch.Selector, args ir.IRArray) (ir.IRValue, error) {
	receiver := obj.Class().Name()

	depth := depthFrom(ctx)
	if depth >= e.maxDepth {
		return nil, NewRecursionError(receiver, string(sel), depth, e.maxDepth)
	}

	imp, _, ok := e.rt.Resolve(start, sel)
	if !ok {
		return nil, &dispatch.DispatchError{
			Code:     dispatch.ErrCodeUnrecognizedSelector,
			Message:  "unrecognized selector sent to instance",
			Class:    receiver,
			Selector: sel,
		}
	}

	_, err := e.record(ctx, ir.TraceEvent{
		Kind:           ir.EventSend,
		Receiver:       receiver,
		Selector:       string(sel),
		Implementation: imp.Name,
		Depth:          depth,
		Args:           args,
	})
	if err != nil {
		return nil, err
	}

	result, err := imp.Call(withDepth(ctx, depth+1), obj, args)
	if err != nil {
		return nil, err
	}

	_, err = e.record(ctx, ir.TraceEvent{
		Kind:           ir.EventReturn,
		Receiver:       receiver,
		Selector:       string(sel),
		Implementation: imp.Name,
		Depth:          depth,
		Value:          result,
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// expand substitutes placeholders in every string inside v.
func (f *frame) expand(v ir.IRValue) (ir.IRValue, error) {
	switch val := v.(type) {
	case ir.IRString:
		return f.expandString(string(val))
	case ir.IRArray:
		out := make(ir.IRArray, len(val))
		for i, elem := range val {
			x, err := f.expand(elem)
			if err != nil {
				return nil, err
			}
			out[i] = x
		}
		return out, nil
	case ir.IRObject:
		out := make(ir.IRObject, len(val))
		for k, elem := range val {
			x, err := f.expand(elem)
			if err != nil {
				return nil, err
			}
			out[k] = x
		}
		return out, nil
	case nil:
		return nil, f.badStep("return has no value")
	default:
		return v, nil
	}
}

// expandString yields the raw value when s is exactly one placeholder.
func (f *frame) expandString(s string) (ir.IRValue, error) {
	if m := placeholder.FindStringSubmatchIndex(s); m != nil && m[0] == 0 && m[1] == len(s) {
		return f.lookup(s[m[2]:m[3]])
	}
	text, err := f.expandText(s)
	if err != nil {
		return nil, err
	}
	return ir.IRString(text), nil
}

func (f *frame) expandText(s string) (string, error) {
	var firstErr error
	out := placeholder.ReplaceAllStringFunc(s, func(match string) string {
		v, err := f.lookup(match[2 : len(match)-1])
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			return ""
		}
		return ir.Format(v)
	})
	if firstErr != nil {
		return "", firstErr
	}
	return out, nil
}

func (f *frame) lookup(name string) (ir.IRValue, error) {
	switch name {
	case "result":
		if !f.hasResult {
			return nil, f.badStep("${result} used before any send")
		}
		return f.result, nil
	case "class":
		return ir.IRString(f.self.Class().Name()), nil
	}

	n, err := strconv.Atoi(name)
	if err != nil || n < 0 {
		return nil, f.badStep(fmt.Sprintf("unknown placeholder ${%s}", name))
	}
	if n >= len(f.args) {
		return nil, f.badStep(fmt.Sprintf("${%d} out of range: %d argument(s)", n, len(f.args)))
	}
	return f.args[n], nil
}

func (f *frame) badStep(msg string) *RuntimeError {
	return &RuntimeError{
		Code:     ErrCodeBadStep,
		Message:  msg,
		Class:    f.owner.Name(),
		Selector: f.selector,
		Details:  map[string]string{"implementation": f.impl},
	}
}
