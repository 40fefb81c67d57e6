package cli

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/swizzle/internal/ir"
	"github.com/roach88/swizzle/internal/store"
)

// journalRun invokes target with --db and a fixed run ID.
func journalRun(t *testing.T, db, runID, target string, extra ...string) {
	t.Helper()
	cmd := NewInvokeCommand(&RootOptions{Format: "json", DB: db})
	args := append([]string{specsDir, target, "--run", runID}, extra...)
	_, _, err := execute(t, cmd, args...)
	require.NoError(t, err)
}

func traceJSON(t *testing.T, db string, args ...string) TraceResult {
	t.Helper()
	cmd := NewTraceCommand(&RootOptions{Format: "json", DB: db})
	out, _, err := execute(t, cmd, args...)
	require.NoError(t, err)

	var resp struct {
		Status string      `json:"status"`
		RunID  string      `json:"run_id"`
		Data   TraceResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp), "output: %s", out)
	require.Equal(t, "ok", resp.Status)
	return resp.Data
}

func TestTrace_ReadsJournaledRun(t *testing.T) {
	db := filepath.Join(t.TempDir(), "runs.db")
	journalRun(t, db, "run-1", "Derived.greet")

	result := traceJSON(t, db, "run-1")

	assert.Equal(t, "run-1", result.Run.ID)
	assert.Equal(t, ir.EngineVersion, result.Run.EngineVersion)
	require.Len(t, result.Interceptions, 1)
	assert.Equal(t, ir.CaseLocal, result.Interceptions[0].Case)
	assert.True(t, result.Interceptions[0].Applied)

	require.Equal(t, result.Total, len(result.Events))
	kinds := make([]ir.EventKind, len(result.Events))
	for i, ev := range result.Events {
		kinds[i] = ev.Kind
		assert.Equal(t, int64(i+1), ev.Seq)
	}
	assert.Equal(t, []ir.EventKind{
		ir.EventInstall,
		ir.EventSend, ir.EventLog, ir.EventSend, ir.EventReturn, ir.EventReturn,
	}, kinds)
	assert.Equal(t, ir.IRString("Hello from Base"), result.Events[len(result.Events)-1].Value)
}

func TestTrace_ResumedRunContinuesSeq(t *testing.T) {
	db := filepath.Join(t.TempDir(), "runs.db")
	journalRun(t, db, "run-1", "Base.greetWith", "--args", `["Ada"]`)
	journalRun(t, db, "run-1", "Base.greetWith", "--args", `["Grace"]`)

	result := traceJSON(t, db, "run-1")
	require.NotEmpty(t, result.Events)
	for i := 1; i < len(result.Events); i++ {
		assert.Greater(t, result.Events[i].Seq, result.Events[i-1].Seq)
	}
	assert.Len(t, result.Interceptions, 1, "the same pair is journaled once per run")
}

func TestTrace_Filters(t *testing.T) {
	db := filepath.Join(t.TempDir(), "runs.db")
	journalRun(t, db, "run-1", "Chaining.greet")

	logs := traceJSON(t, db, "run-1", "--kind", "log")
	require.Len(t, logs.Events, 1)
	assert.Equal(t, "enter Chaining", logs.Events[0].Message)
	assert.Greater(t, logs.Total, 1)

	installs := traceJSON(t, db, "run-1", "--receiver", "Base")
	require.Len(t, installs.Events, 1)
	assert.Equal(t, ir.EventInstall, installs.Events[0].Kind)
}

func TestTrace_TextOutput(t *testing.T) {
	db := filepath.Join(t.TempDir(), "runs.db")
	journalRun(t, db, "run-1", "Derived.greet")

	cmd := NewTraceCommand(&RootOptions{Format: "text", DB: db})
	out, _, err := execute(t, cmd, "run-1")
	require.NoError(t, err)

	assert.Contains(t, out, "Run: run-1")
	assert.Contains(t, out, "Base.greet ↔ loggedGreet (local)")
	assert.Contains(t, out, "Events (6 of 6):")
	assert.Contains(t, out, "[2] send Derived.greet -> Base.loggedGreet []")
	assert.Contains(t, out, "[3]   log [Base.loggedGreet] enter Derived")
}

func TestTrace_ListRuns(t *testing.T) {
	db := filepath.Join(t.TempDir(), "runs.db")
	journalRun(t, db, "run-b", "Base.greet")
	journalRun(t, db, "run-a", "Derived.greet")

	cmd := NewTraceCommand(&RootOptions{Format: "json", DB: db})
	out, _, err := execute(t, cmd)
	require.NoError(t, err)

	var resp struct {
		Data RunList `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.Len(t, resp.Data.Runs, 2)
	assert.Equal(t, "run-a", resp.Data.Runs[0].ID)
	assert.Equal(t, resp.Data.Runs[0].ProgramHash, resp.Data.Runs[1].ProgramHash)

	cmd = NewTraceCommand(&RootOptions{Format: "text", DB: db})
	out, _, err = execute(t, cmd)
	require.NoError(t, err)
	assert.Contains(t, out, "RUN")
	assert.Contains(t, out, "run-b")
}

func TestTrace_Errors(t *testing.T) {
	db := filepath.Join(t.TempDir(), "runs.db")
	journalRun(t, db, "run-1", "Base.greet")

	tests := []struct {
		name     string
		db       string
		args     []string
		wantCode string
	}{
		{"missing_db_flag", "", []string{"run-1"}, ErrCodeInvalidArgs},
		{"db_not_found", filepath.Join(t.TempDir(), "nope.db"), []string{"run-1"}, ErrCodeNotFound},
		{"unknown_kind", db, []string{"run-1", "--kind", "jump"}, ErrCodeInvalidArgs},
		{"unknown_run", db, []string{"run-404"}, ErrCodeJournal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd := NewTraceCommand(&RootOptions{Format: "json", DB: tt.db})
			out, _, err := execute(t, cmd, tt.args...)
			require.Error(t, err)
			assert.Equal(t, ExitCommandError, GetExitCode(err))

			resp, _ := decode(t, out)
			require.NotNil(t, resp.Error)
			assert.Equal(t, tt.wantCode, resp.Error.Code)
		})
	}
}

func TestTrace_EmptyJournal(t *testing.T) {
	db := filepath.Join(t.TempDir(), "runs.db")
	st, err := store.Open(db)
	require.NoError(t, err)
	require.NoError(t, st.Close())

	cmd := NewTraceCommand(&RootOptions{Format: "text", DB: db})
	out, _, err := execute(t, cmd)
	require.NoError(t, err)
	assert.Contains(t, out, "No runs in journal")
}

func TestFilterEvents(t *testing.T) {
	events := []ir.TraceEvent{
		{Seq: 1, Kind: ir.EventInstall, Receiver: "Base"},
		{Seq: 2, Kind: ir.EventSend, Receiver: "Derived"},
		{Seq: 3, Kind: ir.EventLog, Receiver: "Derived"},
	}

	assert.Equal(t, events, filterEvents(events, "", ""))
	assert.Len(t, filterEvents(events, ir.EventLog, ""), 1)
	assert.Len(t, filterEvents(events, "", "Derived"), 2)
	assert.Empty(t, filterEvents(events, ir.EventReturn, "Base"))
}

func TestShortHash(t *testing.T) {
	assert.Equal(t, "0123456789ab", shortHash("0123456789abcdef"))
	assert.Equal(t, "abc", shortHash("abc"))
}
