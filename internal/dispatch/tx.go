package dispatch

// Tx is a write transaction over a runtime's method tables. It is only valid
// inside the Mutate callback that received it.
type Tx struct {
	rt   *Runtime
	undo []undoEntry
}

type undoEntry struct {
	class *Class
	sel   Selector
	prev  *Implementation // nil when the selector was not bound locally
}

// Mutate runs fn with the runtime write lock held. If fn returns an error
// every binding changed through the Tx is restored before Mutate returns.
func (rt *Runtime) Mutate(fn func(tx *Tx) error) (err error) {
	rt.mu.Lock()
	defer rt.mu.Unlock()

	tx := &Tx{rt: rt}
	defer func() {
		if r := recover(); r != nil {
			tx.rollback()
			panic(r)
		}
		if err != nil {
			tx.rollback()
		}
	}()
	return fn(tx)
}

// DefinesLocally reports whether c's own table binds sel.
func (tx *Tx) DefinesLocally(c *Class, sel Selector) bool {
	_, ok := c.methods[sel]
	return ok
}

// LocalImplementation returns c's own binding for sel.
func (tx *Tx) LocalImplementation(c *Class, sel Selector) (*Implementation, bool) {
	imp, ok := c.methods[sel]
	return imp, ok
}

// Resolve walks c and its ancestors for sel.
func (tx *Tx) Resolve(c *Class, sel Selector) (*Implementation, *Class, bool) {
	return resolveLocked(c, sel)
}

// AddMethod binds sel on c only if c has no local binding for it. It returns
// false, changing nothing, when the selector is already local. An inherited
// binding does not block the add.
func (tx *Tx) AddMethod(c *Class, sel Selector, imp *Implementation) bool {
	if _, ok := c.methods[sel]; ok {
		return false
	}
	tx.set(c, sel, imp)
	return true
}

// SetImplementation binds sel on c, adding or replacing the local binding.
// It returns the previous local implementation, or nil.
func (tx *Tx) SetImplementation(c *Class, sel Selector, imp *Implementation) *Implementation {
	return tx.set(c, sel, imp)
}

// ExchangeImplementations swaps c's local bindings for a and b. Both must be
// bound locally on c.
func (tx *Tx) ExchangeImplementations(c *Class, a, b Selector) error {
	ia, okA := c.methods[a]
	if !okA {
		return &DispatchError{Code: ErrCodeNotLocal, Message: "cannot exchange inherited selector", Class: c.name, Selector: a}
	}
	ib, okB := c.methods[b]
	if !okB {
		return &DispatchError{Code: ErrCodeNotLocal, Message: "cannot exchange inherited selector", Class: c.name, Selector: b}
	}
	tx.set(c, a, ib)
	tx.set(c, b, ia)
	return nil
}

func (tx *Tx) set(c *Class, sel Selector, imp *Implementation) *Implementation {
	prev := c.methods[sel]
	tx.undo = append(tx.undo, undoEntry{class: c, sel: sel, prev: prev})
	c.methods[sel] = imp
	return prev
}

func (tx *Tx) rollback() {
	for i := len(tx.undo) - 1; i >= 0; i-- {
		u := tx.undo[i]
		if u.prev == nil {
			delete(u.class.methods, u.sel)
			continue
		}
		u.class.methods[u.sel] = u.prev
	}
	tx.undo = nil
}
