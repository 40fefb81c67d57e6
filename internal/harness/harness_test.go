package harness

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/swizzle/internal/dispatch"
	"github.com/roach88/swizzle/internal/engine"
	"github.com/roach88/swizzle/internal/intercept"
	"github.com/roach88/swizzle/internal/ir"
)

const greetingSpec = "../../testdata/specs/greeting.cue"

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// greetingScenario returns a scenario over the greeting program with the
// given flow. The caller adds assertions as needed.
func greetingScenario(name string, flow ...FlowStep) *Scenario {
	return &Scenario{
		Name:        name,
		Description: name,
		Specs:       []string{greetingSpec},
		RunID:       "run-" + name,
		Flow:        flow,
		Assertions: []Assertion{
			{Type: AssertTraceContains, EventPattern: EventPattern{Kind: "send"}},
		},
	}
}

func TestRun_MinimalScenario(t *testing.T) {
	s := greetingScenario("minimal", FlowStep{
		Send:   "Base.greet",
		Expect: &ExpectClause{Result: "Hello from Base"},
	})

	result, err := Run(s)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
	assert.Equal(t, "run-minimal", result.RunID)

	require.Len(t, result.Outcomes, 1)
	assert.Equal(t, Outcome{Send: "Base.greet", Result: ir.IRString("Hello from Base")}, result.Outcomes[0])

	require.Len(t, result.Trace, 2)
	assert.Equal(t, ir.EventSend, result.Trace[0].Kind)
	assert.Equal(t, ir.EventReturn, result.Trace[1].Kind)
	assert.Empty(t, result.Records)
}

func TestRun_InstallThenSend(t *testing.T) {
	s := greetingScenario("install_then_send", FlowStep{
		Send:   "Derived.greet",
		Expect: &ExpectClause{Result: "Hello from Base"},
	})
	s.Install = []InstallStep{{Class: "Derived", Original: "greet", Wrapper: "loggedGreet"}}
	s.Assertions = []Assertion{
		{Type: AssertLogCount, EventPattern: EventPattern{Message: "enter Derived"}, Count: 1},
		{Type: AssertDispatch, Class: "Derived", EventPattern: EventPattern{
			Selector: "loggedGreet", Implementation: "Base.greet"}},
	}

	result, err := Run(s)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)

	require.Len(t, result.Records, 1)
	assert.Equal(t, "Derived", result.Records[0].Target)
	assert.Equal(t, ir.CaseInherited, result.Records[0].Case)
	assert.True(t, result.Records[0].Applied)
}

func TestRun_BootInstallsDeclaredIntercepts(t *testing.T) {
	s := greetingScenario("boot", FlowStep{Send: "Base.greet"})
	s.Specs = append(s.Specs, "../../testdata/specs/boot.cue")
	s.Assertions = []Assertion{{Type: AssertLogCount, Count: 1}}

	result, err := Run(s)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
	require.Len(t, result.Records, 1)
	assert.Equal(t, ir.CaseLocal, result.Records[0].Case)

	t.Run("skip boot", func(t *testing.T) {
		s.SkipBoot = true
		s.Assertions = []Assertion{{Type: AssertLogCount, Count: 0}}

		result, err := Run(s)
		require.NoError(t, err)
		assert.True(t, result.Pass, "errors: %v", result.Errors)
		assert.Empty(t, result.Records)
	})
}

func TestRun_ConcurrentInstallAppliesOnce(t *testing.T) {
	s := greetingScenario("concurrent", FlowStep{Send: "Derived.greet"})
	s.Install = []InstallStep{{Class: "Derived", Original: "greet", Wrapper: "loggedGreet", Concurrency: 32}}
	s.Assertions = []Assertion{
		{Type: AssertTraceCount, EventPattern: EventPattern{Kind: "install"}, Count: 1},
		// Exchanged twice would bring back the original binding.
		{Type: AssertLogCount, Count: 1},
	}

	result, err := Run(s)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
}

func TestRun_ExpectedErrors(t *testing.T) {
	s := greetingScenario("expected_errors",
		FlowStep{Send: "Base.missing", Expect: &ExpectClause{Error: "UNRECOGNIZED_SELECTOR"}},
		FlowStep{Send: "Ghost.greet", Expect: &ExpectClause{Error: "MISSING_CLASS"}},
	)
	s.Install = []InstallStep{
		{Class: "Ghost", Original: "greet", Wrapper: "loggedGreet", ExpectError: "INVALID_TARGET"},
		{Class: "Base", Original: "greet", Wrapper: "nowhere", ExpectError: "UNRESOLVED_METHOD"},
	}
	s.Assertions = []Assertion{{Type: AssertTraceCount, EventPattern: EventPattern{Kind: "install"}, Count: 0}}

	result, err := Run(s)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)

	require.Len(t, result.Outcomes, 2)
	assert.Equal(t, "UNRECOGNIZED_SELECTOR", result.Outcomes[0].Error)
	assert.Nil(t, result.Outcomes[0].Result)
	assert.Equal(t, "MISSING_CLASS", result.Outcomes[1].Error)
}

func TestRun_FailedExpectations(t *testing.T) {
	tests := []struct {
		name    string
		install []InstallStep
		flow    FlowStep
		wantErr string
	}{
		{
			name:    "wrong result",
			flow:    FlowStep{Send: "Base.greet", Expect: &ExpectClause{Result: "Hi"}},
			wantErr: "expected result Hi, got Hello from Base",
		},
		{
			name:    "expected error but succeeded",
			flow:    FlowStep{Send: "Base.greet", Expect: &ExpectClause{Error: "UNRECOGNIZED_SELECTOR"}},
			wantErr: "expected error UNRECOGNIZED_SELECTOR, got success",
		},
		{
			name:    "wrong error code",
			flow:    FlowStep{Send: "Ghost.greet", Expect: &ExpectClause{Error: "UNRECOGNIZED_SELECTOR"}},
			wantErr: "expected error UNRECOGNIZED_SELECTOR, got MISSING_CLASS",
		},
		{
			name:    "unexpected error",
			flow:    FlowStep{Send: "Base.missing"},
			wantErr: "unexpected error: UNRECOGNIZED_SELECTOR",
		},
		{
			name:    "float argument",
			flow:    FlowStep{Send: "Base.greetWith", Args: []any{1.5}},
			wantErr: "floats are forbidden",
		},
		{
			name:    "install expected to fail",
			install: []InstallStep{{Class: "Base", Original: "greet", Wrapper: "loggedGreet", ExpectError: "WRAPPER_CONFLICT"}},
			flow:    FlowStep{Send: "Base.greet"},
			wantErr: "install[0] Base.greet: expected error WRAPPER_CONFLICT, got success",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := greetingScenario("failed", tt.flow)
			s.Install = tt.install

			result, err := Run(s)
			require.NoError(t, err)
			assert.False(t, result.Pass)
			require.NotEmpty(t, result.Errors)
			assert.Contains(t, result.Errors[0], tt.wantErr)
		})
	}
}

func TestRun_MaxDepth(t *testing.T) {
	// The intercepted greet nests one send: the wrapper at depth 0 forwards
	// to the original at depth 1.
	s :=greetingScenario("max_depth", FlowStep{
		Send:   "Base.greet",
		Expect: &ExpectClause{Result: "Hello from Base"},
	})
	s.MaxDepth = 2
	s.Install = []InstallStep{{Class: "Base", Original: "greet", Wrapper: "loggedGreet"}}
	s.Assertions = []Assertion{{Type: AssertTraceContains, EventPattern: EventPattern{Kind: "send", Depth: intPtr(1)}}}

	result, err := Run(s)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)

	t.Run("exceeded", func(t *testing.T) {
		s.MaxDepth = 1
		s.Flow[0].Expect = &ExpectClause{Error: string(engine.ErrCodeRecursionLimit)}

		result, err := Run(s)
		require.NoError(t, err)
		assert.True(t, result.Pass, "errors: %v", result.Errors)
	})
}

func TestRun_Deterministic(t *testing.T) {
	s := greetingScenario("deterministic", FlowStep{Send: "Derived.greet"}, FlowStep{Send: "Overriding.greet"})
	s.Install = []InstallStep{{Class: "Derived", Original: "greet", Wrapper: "loggedGreet", Concurrency: 8}}

	first, err := Run(s)
	require.NoError(t, err)
	second, err := Run(s)
	require.NoError(t, err)

	assert.Equal(t, first.Trace, second.Trace)
	assert.Equal(t, first.Outcomes, second.Outcomes)
}

func TestRun_FreshJournalPerRun(t *testing.T) {
	s := greetingScenario("fresh", FlowStep{Send: "Base.greet"})
	s.Assertions = []Assertion{{
		Type:   AssertFinalState,
		Table:  "runs",
		Expect: map[string]any{"id": "run-fresh"},
	}}

	// A shared journal would hold the first run's row and make the
	// unfiltered query ambiguous the second time.
	for i := 0; i < 2; i++ {
		result, err := Run(s)
		require.NoError(t, err)
		assert.True(t, result.Pass, "run %d errors: %v", i, result.Errors)
		assert.Equal(t, int64(1), result.Trace[0].Seq, "run %d starts the clock over", i)
	}
}

func TestRun_CompileError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.cue")
	require.NoError(t, os.WriteFile(path, []byte(`class: A: super: "Missing"`), 0o644))

	s := greetingScenario("broken", FlowStep{Send: "A.b"})
	s.Specs = []string{path}

	_, err := Run(s)
	require.Error(t, err)
}

func TestRunContext_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := greetingScenario("canceled", FlowStep{Send: "Base.greet"})
	_, err := RunContext(ctx, s)
	assert.Error(t, err, "opening the run against a canceled context fails")
}

func TestResult_AddError(t *testing.T) {
	r := NewResult()
	assert.True(t, r.Pass)

	r.AddError("first")
	r.AddError("second")
	assert.False(t, r.Pass)
	assert.Equal(t, []string{"first", "second"}, r.Errors)
}

func TestErrorCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"install", &intercept.InstallError{Code: intercept.ErrCodeWrapperConflict}, "WRAPPER_CONFLICT"},
		{"dispatch", &dispatch.DispatchError{Code: dispatch.ErrCodeUnrecognizedSelector}, "UNRECOGNIZED_SELECTOR"},
		{"runtime", &engine.RuntimeError{Code: engine.ErrCodeBadStep}, "BAD_STEP"},
		{"wrapped", errors.Join(errors.New("context"), &engine.RuntimeError{Code: engine.ErrCodeMissingClass}), "MISSING_CLASS"},
		{"plain", errors.New("boom"), ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ErrorCode(tt.err))
		})
	}
}
