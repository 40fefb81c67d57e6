package intercept

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/roach88/swizzle/internal/dispatch"
	"github.com/roach88/swizzle/internal/ir"
)

// Observer is notified after an interception is applied.
//
// Installed runs inside the latch, before concurrent callers for the same pair
// are released. ctx marks the pair as in flight: installing the same pair
// again with it fails with ALREADY_APPLYING. Returned errors are logged and
// do not undo the installation.
type Observer interface {
	Installed(ctx context.Context, rec ir.InterceptionRecord) error
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(ctx context.Context, rec ir.InterceptionRecord) error

// Installed implements Observer.
func (f ObserverFunc) Installed(ctx context.Context, rec ir.InterceptionRecord) error {
	return f(ctx, rec)
}

// Registry installs interceptions on the classes of one runtime and keeps
// exactly one record per (class, original selector) pair.
//
// Thread-safety: all methods are safe for concurrent use.
type Registry struct {
	rt        *dispatch.Runtime
	logger    *slog.Logger
	observers []Observer

	group singleflight.Group

	mu      sync.Mutex
	records map[string]*ir.InterceptionRecord
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(r *Registry) {
		r.logger = l
	}
}

// WithObserver adds an observer, called in registration order.
func WithObserver(o Observer) Option {
	return func(r *Registry) {
		r.observers = append(r.observers, o)
	}
}

// NewRegistry creates a registry for classes owned by rt.
func NewRegistry(rt *dispatch.Runtime, opts ...Option) *Registry {
	r := &Registry{
		rt:      rt,
		logger:  slog.Default(),
		records: make(map[string]*ir.InterceptionRecord),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Runtime returns the runtime whose classes this registry intercepts.
func (r *Registry) Runtime() *dispatch.Runtime {
	return r.rt
}

// InstallByName looks up className in the registry's runtime and installs.
// An unknown class is INVALID_TARGET.
func (r *Registry) InstallByName(ctx context.Context, className string, original, wrapper dispatch.Selector) error {
	target, ok := r.rt.Lookup(className)
	if !ok {
		return &InstallError{
			Code:    ErrCodeInvalidTarget,
			Message: "class is not defined",
			Class:   className,
		}
	}
	return r.Install(ctx, target, original, wrapper)
}

// Install redirects sends of original on target to the implementation wrapper
// resolves to, and rebinds wrapper on target to the code original resolved
// to before. After it returns nil, the wrapper code sending wrapper reaches
// the pre-interception original exactly once.
//
// Install is idempotent per (target, original): once applied, further calls
// with the same wrapper return nil without touching any table.
func (r *Registry) Install(ctx context.Context, target *dispatch.Class, original, wrapper dispatch.Selector) error {
	if target == nil {
		return &InstallError{Code: ErrCodeInvalidTarget, Message: "target class is nil"}
	}
	if !r.rt.Owns(target) {
		return &InstallError{
			Code:    ErrCodeInvalidTarget,
			Message: "target class belongs to a different runtime",
			Class:   target.Name(),
		}
	}
	if original == wrapper {
		return &InstallError{
			Code:     ErrCodeWrapperConflict,
			Message:  "wrapper selector must differ from the original",
			Class:    target.Name(),
			Selector: wrapper,
		}
	}

	key := pairKey(target.Name(), original)
	if isInFlight(ctx, key) {
		return &InstallError{
			Code:     ErrCodeAlreadyApplying,
			Message:  "interception of this pair is already being installed",
			Class:    target.Name(),
			Selector: original,
		}
	}

	if done, err := r.checkApplied(key, target, original, wrapper); done || err != nil {
		return err
	}

	// Flights are per wrapper: a caller never inherits a failure that names
	// someone else's wrapper. apply re-checks the pair under the table lock,
	// so two flights for one pair still apply at most one wrapper.
	_, err, shared := r.group.Do(flightKey(key, wrapper), func() (any, error) {
		return nil, r.apply(withInFlight(ctx, key), key, target, original, wrapper)
	})
	if shared && err != nil {
		r.logger.Debug("interception failure shared with concurrent callers",
			"class", target.Name(),
			"original", string(original),
			"wrapper", string(wrapper),
			"error", err)
	}
	return err
}

func (r *Registry) appliedWrapper(key string) (bool, string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[key]
	if !ok || !rec.Applied {
		return false, ""
	}
	return true, rec.Wrapper
}

// appliedOn reports whether class has an applied interception of original
// by wrapper.
func (r *Registry) appliedOn(class *dispatch.Class, original, wrapper dispatch.Selector) bool {
	applied, existing := r.appliedWrapper(pairKey(class.Name(), original))
	return applied && existing == string(wrapper)
}

func conflictError(target *dispatch.Class, original dispatch.Selector, existing string) error {
	return &InstallError{
		Code:     ErrCodeWrapperConflict,
		Message:  fmt.Sprintf("already intercepted by wrapper %q", existing),
		Class:    target.Name(),
		Selector: original,
	}
}

// checkApplied reports whether the pair is already applied. An applied pair
// with a different wrapper is a conflict.
func (r *Registry) checkApplied(key string, target *dispatch.Class, original, wrapper dispatch.Selector) (bool, error) {
	applied, existing := r.appliedWrapper(key)
	if !applied {
		return false, nil
	}
	if existing != string(wrapper) {
		return true, conflictError(target, original, existing)
	}
	r.logger.Debug("interception already applied",
		"class", target.Name(),
		"original", string(original),
		"wrapper", string(wrapper))
	return true, nil
}

// apply runs the install procedure. Callers hold the latch for the pair and
// wrapper. The record is marked applied inside the table transaction, so an
// install on a descendant never sees rebound tables without the record.
func (r *Registry) apply(ctx context.Context, key string, target *dispatch.Class, original, wrapper dispatch.Selector) error {
	r.record(key, target.Name(), original, wrapper)

	var (
		snapshot ir.InterceptionRecord
		changed  bool
	)
	err := r.rt.Mutate(func(tx *dispatch.Tx) error {
		// Another wrapper's flight may have won the pair.
		if done, err := r.checkApplied(key, target, original, wrapper); done || err != nil {
			return err
		}
		installCase, err := r.rebind(tx, target, original, wrapper)
		if err != nil {
			return err
		}
		snapshot = r.markApplied(key, wrapper, installCase)
		changed = true
		return nil
	})
	if err != nil {
		r.logger.Warn("interception failed",
			"class", target.Name(),
			"original", string(original),
			"wrapper", string(wrapper),
			"error", err)
		return err
	}
	if !changed {
		return nil
	}

	if snapshot.Case == ir.CaseAncestor {
		r.logger.Debug("interception inherited from an intercepted ancestor",
			"class", target.Name(),
			"original", string(original),
			"wrapper", string(wrapper))
	} else {
		r.logger.Info("interception installed",
			"class", target.Name(),
			"original", string(original),
			"wrapper", string(wrapper),
			"case", string(snapshot.Case))
	}

	for _, o := range r.observers {
		if err := o.Installed(ctx, snapshot); err != nil {
			r.logger.Warn("interception observer failed",
				"class", target.Name(),
				"original", string(original),
				"error", err)
		}
	}
	return nil
}

// rebind validates the pair and rewrites target's local table.
//
// A selector that resolves to an ancestor already intercepted with the same
// pair no longer names its pre-interception code: that ancestor's original
// now holds the wrapper code. When original itself comes from such an
// ancestor, target already runs the wrapper and nothing changes.
func (r *Registry) rebind(tx *dispatch.Tx, target *dispatch.Class, original, wrapper dispatch.Selector) (ir.InstallCase, error) {
	origImp, origOwner, ok := tx.Resolve(target, original)
	if !ok {
		return "", &InstallError{
			Code:     ErrCodeUnresolvedMethod,
			Message:  "original selector does not resolve",
			Class:    target.Name(),
			Selector: original,
		}
	}
	wrapImp, wrapOwner, ok := tx.Resolve(target, wrapper)
	if !ok {
		return "", &InstallError{
			Code:     ErrCodeUnresolvedMethod,
			Message:  "wrapper selector does not resolve",
			Class:    target.Name(),
			Selector: wrapper,
		}
	}

	if origOwner != target && r.appliedOn(origOwner, original, wrapper) {
		return ir.CaseAncestor, nil
	}
	if wrapOwner != target && r.appliedOn(wrapOwner, original, wrapper) {
		wrapImp, _ = tx.LocalImplementation(wrapOwner, original)
	}

	if origImp == wrapImp {
		return "", &InstallError{
			Code:     ErrCodeWrapperConflict,
			Message:  "original and wrapper resolve to the same implementation",
			Class:    target.Name(),
			Selector: wrapper,
		}
	}

	if tx.AddMethod(target, original, wrapImp) {
		tx.SetImplementation(target, wrapper, origImp)
		return ir.CaseInherited, nil
	}

	if tx.DefinesLocally(target, wrapper) {
		return ir.CaseLocal, tx.ExchangeImplementations(target, original, wrapper)
	}
	tx.SetImplementation(target, original, wrapImp)
	tx.SetImplementation(target, wrapper, origImp)
	return ir.CaseLocal, nil
}

func (r *Registry) markApplied(key string, wrapper dispatch.Selector, c ir.InstallCase) ir.InterceptionRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec := r.records[key]
	rec.Wrapper = string(wrapper)
	rec.Case = c
	rec.Applied = true
	return *rec
}

// record creates the pair's record unapplied on first use. An unapplied
// record takes the wrapper of the latest attempt.
func (r *Registry) record(key, class string, original, wrapper dispatch.Selector) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.records[key]
	if !ok {
		rec = &ir.InterceptionRecord{
			ID:       ir.RecordID(class, string(original)),
			Target:   class,
			Original: string(original),
		}
		r.records[key] = rec
	}
	if !rec.Applied {
		rec.Wrapper = string(wrapper)
	}
}

// Record returns a copy of the record for (class, original).
func (r *Registry) Record(class string, original dispatch.Selector) (ir.InterceptionRecord, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.records[pairKey(class, original)]
	if !ok {
		return ir.InterceptionRecord{}, false
	}
	return *rec, true
}

// Records returns a snapshot of every record, sorted by target then original.
func (r *Registry) Records() []ir.InterceptionRecord {
	r.mu.Lock()
	out := make([]ir.InterceptionRecord, 0, len(r.records))
	for _, rec := range r.records {
		out = append(out, *rec)
	}
	r.mu.Unlock()

	slices.SortFunc(out, func(a, b ir.InterceptionRecord) int {
		if c := strings.Compare(a.Target, b.Target); c != 0 {
			return c
		}
		return strings.Compare(a.Original, b.Original)
	})
	return out
}
