package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/swizzle/internal/ir"
)

// createTestStore creates a new file-backed store in a temp dir.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// createTestRun registers a run with minimal fields.
func createTestRun(t *testing.T, s *Store, id string) {
	t.Helper()
	require.NoError(t, s.WriteRun(context.Background(), Run{
		ID:            id,
		ProgramHash:   "test-hash",
		EngineVersion: ir.EngineVersion,
		IRVersion:     ir.IRVersion,
	}))
}

// createTestEvent builds a trace event with its content-addressed ID.
func createTestEvent(runID string, seq int64, kind ir.EventKind) ir.TraceEvent {
	return ir.TraceEvent{
		ID:    ir.TraceEventID(runID, seq, kind),
		RunID: runID,
		Seq:   seq,
		Kind:  kind,
	}
}
