package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/roach88/swizzle/internal/compiler"
	"github.com/roach88/swizzle/internal/dispatch"
	"github.com/roach88/swizzle/internal/intercept"
	"github.com/roach88/swizzle/internal/ir"
	"github.com/roach88/swizzle/internal/store"
)

// DefaultMaxDepth is the default call depth limit.
// This stops bodies that send to themselves from exhausting the stack.
const DefaultMaxDepth = 64

// Engine runs one compiled program: a dispatch runtime whose implementations
// interpret method bodies, an interception registry over it, and the trace of
// everything that happened.
//
// Thread-safety model:
//   - Send, Install, Boot: safe from any goroutine
//   - Trace, Records, Table: safe from any goroutine, return copies
//
// INVARIANTS:
//   - Classes are defined superclass-first, exactly once
//   - Trace seq numbers are unique and strictly increasing in trace order
//   - An install event is recorded once per applied (class, original) pair
type Engine struct {
	program     *ir.Program
	programHash string

	rt       *dispatch.Runtime
	registry *intercept.Registry

	store    *store.Store
	clock    SeqClock
	runID    string
	runIDGen RunIDGenerator
	logger   *slog.Logger
	maxDepth int

	mu    sync.Mutex
	trace []ir.TraceEvent
}

// Option configures an Engine.
type Option func(*Engine)

// WithStore journals the run, its interceptions and its trace to s.
func WithStore(s *store.Store) Option {
	return func(e *Engine) {
		e.store = s
	}
}

// SeqClock hands out trace sequence numbers. Implemented by Clock and by
// testutil.DeterministicClock.
type SeqClock interface {
	Next() int64
	Current() int64
}

// WithClock sets the logical clock. Without it the engine starts at 0, or
// resumes after the last journaled seq of the run when a store is set.
func WithClock(c SeqClock) Option {
	return func(e *Engine) {
		e.clock = c
	}
}

// WithRunID fixes the run ID. Takes precedence over WithRunIDGenerator.
func WithRunID(id string) Option {
	return func(e *Engine) {
		e.runID = id
	}
}

// WithRunIDGenerator sets how a run ID is produced. Default: UUIDv7Generator.
func WithRunIDGenerator(g RunIDGenerator) Option {
	return func(e *Engine) {
		e.runIDGen = g
	}
}

// WithLogger sets the logger for the engine and its registry.
// Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = l
	}
}

// WithMaxDepth sets the call depth limit. Values < 1 are ignored.
func WithMaxDepth(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.maxDepth = n
		}
	}
}

// New validates program and builds its runtime.
//
// Classes are defined in hierarchy order and every method body is compiled
// into an implementation named "Class.selector". No interception is
// installed until Boot or Install is called.
func New(ctx context.Context, program *ir.Program, opts ...Option) (*Engine, error) {
	if program == nil {
		return nil, fmt.Errorf("engine: program is nil")
	}

	e := &Engine{
		program:  program,
		runIDGen: UUIDv7Generator{},
		logger:   slog.Default(),
		maxDepth: DefaultMaxDepth,
	}
	for _, opt := range opts {
		opt(e)
	}

	if errs := compiler.Validate(program); len(errs) > 0 {
		msgs := make([]string, len(errs))
		for i, verr := range errs {
			msgs[i] = verr.Error()
		}
		return nil, fmt.Errorf("engine: invalid program: %s", strings.Join(msgs, "; "))
	}

	hash, err := ir.ProgramHash(*program)
	if err != nil {
		return nil, fmt.Errorf("engine: %w", err)
	}
	e.programHash = hash

	if e.runID == "" {
		e.runID = e.runIDGen.Generate()
	}

	if err := e.buildRuntime(); err != nil {
		return nil, err
	}
	e.registry = intercept.NewRegistry(e.rt,
		intercept.WithLogger(e.logger),
		intercept.WithObserver(intercept.ObserverFunc(e.installed)),
	)

	if err := e.openRun(ctx); err != nil {
		return nil, err
	}

	e.logger.Debug("engine ready",
		"run_id", e.runID,
		"program_hash", e.programHash,
		"classes", len(program.Classes))
	return e, nil
}

func (e *Engine) buildRuntime() error {
	ordered, err := compiler.HierarchyOrder(e.program.Classes)
	if err != nil {
		return fmt.Errorf("engine: %w", err)
	}

	e.rt = dispatch.NewRuntime()
	for _, spec := range ordered {
		class, err := e.rt.DefineClass(spec.Name, spec.Super)
		if err != nil {
			return fmt.Errorf("engine: %w", err)
		}
		for _, m := range spec.Methods {
			if err := class.Define(dispatch.Selector(m.Selector), e.compileMethod(class, m)); err != nil {
				return fmt.Errorf("engine: %w", err)
			}
		}
	}
	return nil
}

// openRun registers the run and positions the clock.
func (e *Engine) openRun(ctx context.Context) error {
	if e.store == nil {
		if e.clock == nil {
			e.clock = NewClock()
		}
		return nil
	}

	prev, err := e.store.ReadRun(ctx, e.runID)
	switch {
	case err == nil && prev.ProgramHash != e.programHash:
		return &RuntimeError{
			Code:    ErrCodeProgramMismatch,
			Message: fmt.Sprintf("run %s was journaled by another program", e.runID),
			Details: map[string]string{
				"run_id":         e.runID,
				"journaled_hash": prev.ProgramHash,
				"program_hash":   e.programHash,
			},
		}
	case err != nil && !errors.Is(err, store.ErrRunNotFound):
		return fmt.Errorf("engine: %w", err)
	}

	err = e.store.WriteRun(ctx, store.Run{
		ID:            e.runID,
		ProgramHash:   e.programHash,
		EngineVersion: ir.EngineVersion,
		IRVersion:     ir.IRVersion,
	})
	if err != nil {
		return fmt.Errorf("engine: %w", err)
	}

	if e.clock == nil {
		last, err := e.store.LastSeq(ctx, e.runID)
		if err != nil {
			return fmt.Errorf("engine: %w", err)
		}
		e.clock = NewClockAt(last)
	}
	return nil
}

// Boot installs the program's declared interceptions in declaration order.
// It stops at the first failure. Already applied pairs are no-ops, so Boot
// may be called more than once.
func (e *Engine) Boot(ctx context.Context) error {
	for i, ic := range e.program.Intercepts {
		if err := e.Install(ctx, ic.Class, ic.Original, ic.Wrapper); err != nil {
			return fmt.Errorf("boot: intercept[%d] %s.%s: %w", i, ic.Class, ic.Original, err)
		}
	}
	e.logger.Info("engine booted",
		"run_id", e.runID,
		"intercepts", len(e.program.Intercepts))
	return nil
}

// Install intercepts original on className with wrapper.
// See intercept.Registry.Install for the semantics.
func (e *Engine) Install(ctx context.Context, className, original, wrapper string) error {
	return e.registry.InstallByName(ctx, className, dispatch.Selector(original), dispatch.Selector(wrapper))
}

// Send delivers selector with args to a new instance of className and
// returns the result.
func (e *Engine) Send(ctx context.Context, className, selector string, args ir.IRArray) (ir.IRValue, error) {
	class, ok := e.rt.Lookup(className)
	if !ok {
		return nil, &RuntimeError{
			Code:     ErrCodeMissingClass,
			Message:  "class is not defined",
			Class:    className,
			Selector: selector,
		}
	}
	if args == nil {
		args = ir.IRArray{}
	}
	obj := class.New()
	return e.send(ctx, obj, class, dispatch.Selector(selector), args)
}

// installed journals an applied interception. It runs inside the registry's
// latch, so the install event precedes any send that observes the new
// binding through this pair's callers.
func (e *Engine) installed(ctx context.Context, rec ir.InterceptionRecord) error {
	ev, err := e.record(ctx, ir.TraceEvent{
		Kind:           ir.EventInstall,
		Receiver:       rec.Target,
		Selector:       rec.Original,
		Implementation: rec.Wrapper,
		Depth:          depthFrom(ctx),
		Message:        string(rec.Case),
	})
	if err != nil {
		return err
	}
	if e.store == nil {
		return nil
	}
	return e.store.WriteInterception(ctx, e.runID, ev.Seq, rec)
}

// Table returns the flattened dispatch table of className.
func (e *Engine) Table(className string) ([]dispatch.Entry, error) {
	class, ok := e.rt.Lookup(className)
	if !ok {
		return nil, &RuntimeError{
			Code:    ErrCodeMissingClass,
			Message: "class is not defined",
			Class:   className,
		}
	}
	return e.rt.Table(class), nil
}

// Trace returns a copy of the events recorded so far, in seq order.
func (e *Engine) Trace() []ir.TraceEvent {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]ir.TraceEvent, len(e.trace))
	copy(out, e.trace)
	return out
}

// Records returns the registry's interception records.
func (e *Engine) Records() []ir.InterceptionRecord {
	return e.registry.Records()
}

// Runtime returns the engine's dispatch runtime.
func (e *Engine) Runtime() *dispatch.Runtime {
	return e.rt
}

// Registry returns the engine's interception registry.
func (e *Engine) Registry() *intercept.Registry {
	return e.registry
}

// Program returns the program the engine was built from.
func (e *Engine) Program() *ir.Program {
	return e.program
}

// RunID returns the run identifier.
func (e *Engine) RunID() string {
	return e.runID
}

// ProgramHash returns the content hash of the program.
func (e *Engine) ProgramHash() string {
	return e.programHash
}
