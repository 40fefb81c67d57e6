package dispatch

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/roach88/swizzle/internal/ir"
)

// Selector identifies an instance operation within a class's local table.
type Selector string

// Func is the code behind an implementation. self is the receiving object,
// which may be an instance of a descendant of the defining class.
type Func func(ctx context.Context, self *Object, args ir.IRArray) (ir.IRValue, error)

// Implementation is one piece of method code. Identity is pointer identity:
// interception moves the same *Implementation between selectors, it never
// copies one.
type Implementation struct {
	// Name labels the code by where it was first defined, as "Class.selector".
	Name string

	Fn Func
}

// Call invokes the implementation directly, bypassing dispatch.
func (imp *Implementation) Call(ctx context.Context, self *Object, args ir.IRArray) (ir.IRValue, error) {
	return imp.Fn(ctx, self, args)
}

// Runtime owns a set of classes and guards every method table they hold.
type Runtime struct {
	mu      sync.RWMutex
	classes map[string]*Class
	order   []*Class
}

// NewRuntime creates an empty runtime.
func NewRuntime() *Runtime {
	return &Runtime{classes: make(map[string]*Class)}
}

// Class is a named node in the hierarchy with a local method table.
type Class struct {
	rt      *Runtime
	name    string
	super   *Class
	methods map[Selector]*Implementation
}

// Name returns the class name.
func (c *Class) Name() string { return c.name }

// Super returns the superclass, or nil for a root class.
func (c *Class) Super() *Class { return c.super }

// Runtime returns the runtime that owns c.
func (c *Class) Runtime() *Runtime { return c.rt }

// IsSubclassOf reports whether c is other or descends from it.
func (c *Class) IsSubclassOf(other *Class) bool {
	for k := c; k != nil; k = k.super {
		if k == other {
			return true
		}
	}
	return false
}

// New creates an instance of c.
func (c *Class) New() *Object {
	return &Object{class: c}
}

// Define binds sel locally on c. It is meant for building classes before
// they are in use; rebinding an existing selector goes through Mutate.
func (c *Class) Define(sel Selector, imp *Implementation) error {
	c.rt.mu.Lock()
	defer c.rt.mu.Unlock()

	if _, ok := c.methods[sel]; ok {
		return &DispatchError{
			Code:     ErrCodeDuplicateMethod,
			Message:  "selector already defined locally",
			Class:    c.name,
			Selector: sel,
		}
	}
	c.methods[sel] = imp
	return nil
}

// Object is an instance of a class.
type Object struct {
	class *Class
}

// Class returns the object's class.
func (o *Object) Class() *Class { return o.class }

// DefineClass adds a class to the runtime. superName is empty for a root
// class and must name an already defined class otherwise.
func (rt *Runtime) DefineClass(name, superName string) (*Class, error) {
	rt.mu.Lock()
	defer rt.mu.Unlock()

	if _, ok := rt.classes[name]; ok {
		return nil, &DispatchError{Code: ErrCodeDuplicateClass, Message: "class already defined", Class: name}
	}

	var super *Class
	if superName != "" {
		s, ok := rt.classes[superName]
		if !ok {
			return nil, &DispatchError{
				Code:    ErrCodeUnknownClass,
				Message: fmt.Sprintf("superclass %q is not defined", superName),
				Class:   name,
			}
		}
		super = s
	}

	c := &Class{
		rt:      rt,
		name:    name,
		super:   super,
		methods: make(map[Selector]*Implementation),
	}
	rt.classes[name] = c
	rt.order = append(rt.order, c)
	return c, nil
}

// Lookup returns the class registered under name.
func (rt *Runtime) Lookup(name string) (*Class, bool) {
	rt.mu.RLock()
	defer rt.mu.RUnlock()
	c, ok := rt.classes[name]
	return c, ok
}

// MustLookup is Lookup returning an UNKNOWN_CLASS error.
func (rt *Runtime) MustLookup(name string) (*Class, error) {
	c, ok := rt.Lookup(name)
	if !ok {
		return nil, &DispatchError{Code: ErrCodeUnknownClass, Message: "class is not defined", Class: name}
	}
	return c, nil
}

// Classes returns every class in definition order.
func (rt *Runtime) Classes() []*Class {
	rt.mu.RLock()
	defer rt.mu.RUnlock()
	return slices.Clone(rt.order)
}

// Owns reports whether c was defined by rt.
func (rt *Runtime) Owns(c *Class) bool {
	return c != nil && c.rt == rt
}

// Resolve finds the implementation for sel starting at c and walking up
// through its ancestors. It also returns the class whose local table held the
// binding.
func (rt *Runtime) Resolve(c *Class, sel Selector) (*Implementation, *Class, bool) {
	rt.mu.RLock()
	defer rt.mu.RUnlock()
	return resolveLocked(c, sel)
}

// DefinesLocally reports whether c's own table binds sel.
func (rt *Runtime) DefinesLocally(c *Class, sel Selector) bool {
	rt.mu.RLock()
	defer rt.mu.RUnlock()
	_, ok := c.methods[sel]
	return ok
}

// LocalImplementation returns c's own binding for sel.
func (rt *Runtime) LocalImplementation(c *Class, sel Selector) (*Implementation, bool) {
	rt.mu.RLock()
	defer rt.mu.RUnlock()
	imp, ok := c.methods[sel]
	return imp, ok
}

// Send resolves sel against the receiver's class and calls the result.
// The lock is released before the call.
func (rt *Runtime) Send(ctx context.Context, obj *Object, sel Selector, args ir.IRArray) (ir.IRValue, error) {
	return rt.sendFrom(ctx, obj, obj.class, sel, args)
}

// SendSuper resolves sel starting at the superclass of from, the class that
// defined the calling code, and calls the result with obj as receiver.
func (rt *Runtime) SendSuper(ctx context.Context, obj *Object, from *Class, sel Selector, args ir.IRArray) (ir.IRValue, error) {
	if from.super == nil {
		return nil, &DispatchError{
			Code:     ErrCodeUnrecognizedSelector,
			Message:  "root class has no superclass",
			Class:    from.name,
			Selector: sel,
		}
	}
	return rt.sendFrom(ctx, obj, from.super, sel, args)
}

func (rt *Runtime) sendFrom(ctx context.Context, obj *Object, start *Class, sel Selector, args ir.IRArray) (ir.IRValue, error) {
	imp, _, ok := rt.Resolve(start, sel)
	if !ok {
		return nil, &DispatchError{
			Code:     ErrCodeUnrecognizedSelector,
			Message:  "unrecognized selector sent to instance",
			Class:    obj.class.name,
			Selector: sel,
		}
	}
	return imp.Fn(ctx, obj, args)
}

// Entry is one visible binding in a class's flattened table.
type Entry struct {
	Selector       Selector
	Implementation string
	Owner          string // class whose local table holds the binding
	Local          bool
}

// Table flattens every selector visible from c, sorted by selector.
func (rt *Runtime) Table(c *Class) []Entry {
	rt.mu.RLock()
	defer rt.mu.RUnlock()

	seen := make(map[Selector]bool)
	var entries []Entry
	for k := c; k != nil; k = k.super {
		for sel, imp := range k.methods {
			if seen[sel] {
				continue
			}
			seen[sel] = true
			entries = append(entries, Entry{
				Selector:       sel,
				Implementation: imp.Name,
				Owner:          k.name,
				Local:          k == c,
			})
		}
	}
	slices.SortFunc(entries, func(a, b Entry) int {
		switch {
		case a.Selector < b.Selector:
			return -1
		case a.Selector > b.Selector:
			return 1
		}
		return 0
	})
	return entries
}

func resolveLocked(c *Class, sel Selector) (*Implementation, *Class, bool) {
	for k := c; k != nil; k = k.super {
		if imp, ok := k.methods[sel]; ok {
			return imp, k, true
		}
	}
	return nil, nil, false
}
