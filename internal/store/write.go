package store

import (
	"context"
	"fmt"

	"github.com/roach88/swizzle/internal/ir"
)

// Run identifies one engine run and the program it executed.
type Run struct {
	ID            string `json:"id"`
	ProgramHash   string `json:"program_hash"`
	EngineVersion string `json:"engine_version"`
	IRVersion     string `json:"ir_version"`
}

// WriteRun registers a run. Uses ON CONFLICT(id) DO NOTHING so resuming a
// run is a no-op.
func (s *Store) WriteRun(ctx context.Context, run Run) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (id, program_hash, engine_version, ir_version)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`, run.ID, run.ProgramHash, run.EngineVersion, run.IRVersion)
	if err != nil {
		return fmt.Errorf("write run: %w", err)
	}
	return nil
}

// WriteInterception journals an applied interception record for a run.
// Only applied records are journaled; the registry never un-applies one, so
// duplicates are silently ignored.
//
// Note: The run referenced by runID must exist (foreign key constraint).
func (s *Store) WriteInterception(ctx context.Context, runID string, seq int64, rec ir.InterceptionRecord) error {
	if !rec.Applied {
		return fmt.Errorf("write interception: record %s.%s is not applied", rec.Target, rec.Original)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO interceptions
		(run_id, record_id, class, original, wrapper, install_case, seq)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT DO NOTHING
	`,
		runID,
		rec.ID,
		rec.Target,
		rec.Original,
		rec.Wrapper,
		string(rec.Case),
		seq,
	)
	if err != nil {
		return fmt.Errorf("write interception: %w", err)
	}
	return nil
}

// WriteTraceEvent appends a trace event. Uses ON CONFLICT DO NOTHING for
// idempotency - the same (run, seq) is written at most once.
//
// Args and Value are serialized to canonical JSON per RFC 8785.
func (s *Store) WriteTraceEvent(ctx context.Context, ev ir.TraceEvent) error {
	argsJSON, err := marshalArgs(ev.Args)
	if err != nil {
		return fmt.Errorf("write trace event: %w", err)
	}
	valueJSON, err := marshalValue(ev.Value)
	if err != nil {
		return fmt.Errorf("write trace event: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO trace_events
		(id, run_id, seq, kind, receiver, selector, implementation, depth, args, value, message)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT DO NOTHING
	`,
		ev.ID,
		ev.RunID,
		ev.Seq,
		string(ev.Kind),
		ev.Receiver,
		ev.Selector,
		ev.Implementation,
		ev.Depth,
		argsJSON,
		valueJSON,
		ev.Message,
	)
	if err != nil {
		return fmt.Errorf("write trace event: %w", err)
	}
	return nil
}
