package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/roach88/swizzle/internal/compiler"
	"github.com/roach88/swizzle/internal/dispatch"
	"github.com/roach88/swizzle/internal/engine"
	"github.com/roach88/swizzle/internal/intercept"
	"github.com/roach88/swizzle/internal/ir"
	"github.com/roach88/swizzle/internal/store"
	"github.com/roach88/swizzle/internal/testutil"
)

// Harness executes one scenario against a real engine.
type Harness struct {
	store  *store.Store
	engine *engine.Engine
	logger *slog.Logger
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true if every expectation and assertion held.
	Pass bool `json:"pass"`

	// RunID is the run the trace was recorded under.
	RunID string `json:"run_id"`

	// Trace contains every install, send, log and return in seq order.
	Trace []ir.TraceEvent `json:"trace"`

	// Records are the applied interceptions.
	Records []ir.InterceptionRecord `json:"records"`

	// Outcomes holds one entry per flow step.
	Outcomes []Outcome `json:"outcomes"`

	// Errors contains failure messages. Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// Outcome is what one flow step returned.
type Outcome struct {
	Send   string     `json:"send"`
	Result ir.IRValue `json:"result,omitempty"`
	Error  string     `json:"error,omitempty"` // error code, or message for uncoded errors
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:     true,
		Trace:    []ir.TraceEvent{},
		Records:  []ir.InterceptionRecord{},
		Outcomes: []Outcome{},
		Errors:   []string{},
	}
}

// AddError adds a failure message and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// Run executes a scenario with a background context.
func Run(scenario *Scenario) (*Result, error) {
	return RunContext(context.Background(), scenario)
}

// RunContext executes a scenario and returns the result.
//
// Each scenario runs in a fresh in-memory journal with a deterministic clock
// and a fixed run ID, so the same scenario always yields the same trace.
//
// Execution flow:
// 1. Compile the scenario's CUE specs into a program
// 2. Build an engine over a fresh in-memory store
// 3. Boot (unless skip_boot), then run install steps
// 4. Send every flow step, checking expectations
// 5. Evaluate assertions against the trace, tables and journal
//
// The returned error is reserved for scenarios that cannot run at all;
// expectation and assertion failures are reported in Result.Errors.
func RunContext(ctx context.Context, scenario *Scenario) (*Result, error) {
	prog, err := compiler.CompileFiles(scenario.Specs...)
	if err != nil {
		return nil, fmt.Errorf("failed to compile specs: %w", err)
	}

	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	opts := []engine.Option{
		engine.WithStore(st),
		engine.WithClock(testutil.NewDeterministicClock()),
		engine.WithRunIDGenerator(testutil.NewFixedRunID(scenario.RunID)),
		engine.WithLogger(logger),
	}
	if scenario.MaxDepth > 0 {
		opts = append(opts, engine.WithMaxDepth(scenario.MaxDepth))
	}
	eng, err := engine.New(ctx, prog, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to build engine: %w", err)
	}

	h := &Harness{
		store:  st,
		engine: eng,
		logger: logger,
	}

	result := NewResult()
	result.RunID = eng.RunID()

	if !scenario.SkipBoot {
		if err := eng.Boot(ctx); err != nil {
			result.AddError(fmt.Sprintf("boot: %v", err))
		}
	}

	for i, step := range scenario.Install {
		if err := h.executeInstall(ctx, step); err != nil {
			result.AddError(fmt.Sprintf("install[%d] %s.%s: %v", i, step.Class, step.Original, err))
		}
	}

	for i, step := range scenario.Flow {
		h.executeSend(ctx, i, step, result)
	}

	result.Trace = eng.Trace()
	result.Records = eng.Records()

	actx := &AssertionContext{
		Store:  st,
		Engine: eng,
		Ctx:    ctx,
	}
	for _, msg := range EvaluateAssertions(result, scenario.Assertions, actx) {
		result.AddError(msg)
	}

	return result, nil
}

// executeInstall issues the step from Concurrency goroutines at once and
// checks every call against ExpectError.
func (h *Harness) executeInstall(ctx context.Context, step InstallStep) error {
	n := max(step.Concurrency, 1)

	var g errgroup.Group
	for i := 0; i < n; i++ {
		g.Go(func() error {
			err := h.engine.Install(ctx, step.Class, step.Original, step.Wrapper)
			return checkOutcome(err, step.ExpectError)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	h.logger.Info("install step completed",
		"class", step.Class,
		"original", step.Original,
		"wrapper", step.Wrapper,
		"concurrency", n)
	return nil
}

// executeSend runs one flow step and records its outcome.
func (h *Harness) executeSend(ctx context.Context, i int, step FlowStep, result *Result) {
	class, selector, _ := step.Target()

	args, err := ir.ArrayFromGo(step.Args)
	if err != nil {
		result.AddError(fmt.Sprintf("flow[%d] %s: args: %v", i, step.Send, err))
		return
	}

	v, err := h.engine.Send(ctx, class, selector, args)
	out := Outcome{Send: step.Send, Result: v}
	if err != nil {
		out.Error = ErrorCode(err)
		if out.Error == "" {
			out.Error = err.Error()
		}
	}
	result.Outcomes = append(result.Outcomes, out)

	h.logger.Info("flow step completed",
		"step", i,
		"send", step.Send,
		"error", out.Error)

	switch {
	case step.Expect != nil && step.Expect.Error != "":
		if err := checkOutcome(err, step.Expect.Error); err != nil {
			result.AddError(fmt.Sprintf("flow[%d] %s: %v", i, step.Send, err))
		}
	case err != nil:
		result.AddError(fmt.Sprintf("flow[%d] %s: unexpected error: %v", i, step.Send, err))
	case step.Expect != nil && step.Expect.Result != nil:
		want, convErr := ir.FromGo(step.Expect.Result)
		if convErr != nil {
			result.AddError(fmt.Sprintf("flow[%d] %s: expect.result: %v", i, step.Send, convErr))
			return
		}
		if !ir.Equal(want, v) {
			result.AddError(fmt.Sprintf("flow[%d] %s: expected result %s, got %s",
				i, step.Send, ir.Format(want), ir.Format(v)))
		}
	}
}

// checkOutcome compares err against an expected error code; "" expects
// success.
func checkOutcome(err error, want string) error {
	if want == "" {
		if err != nil {
			return fmt.Errorf("unexpected error: %w", err)
		}
		return nil
	}
	if err == nil {
		return fmt.Errorf("expected error %s, got success", want)
	}
	if code := ErrorCode(err); code != want {
		return fmt.Errorf("expected error %s, got %v", want, err)
	}
	return nil
}

// ErrorCode extracts the code of an install, dispatch or runtime error.
// Returns "" for other errors.
func ErrorCode(err error) string {
	var ie *intercept.InstallError
	if errors.As(err, &ie) {
		return string(ie.Code)
	}
	var de *dispatch.DispatchError
	if errors.As(err, &de) {
		return string(de.Code)
	}
	var re *engine.RuntimeError
	if errors.As(err, &re) {
		return string(re.Code)
	}
	return ""
}
