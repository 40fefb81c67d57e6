package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/swizzle/internal/ir"
)

// ReadTrace returns every trace event of a run.
// Results are ordered deterministically: ORDER BY seq ASC, id ASC COLLATE BINARY.
//
// Returns an empty slice (not nil) if the run has no events.
func (s *Store) ReadTrace(ctx context.Context, runID string) ([]ir.TraceEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, run_id, seq, kind, receiver, selector, implementation, depth, args, value, message
		FROM trace_events
		WHERE run_id = ?
		ORDER BY seq ASC, id COLLATE BINARY ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("query trace events: %w", err)
	}
	defer rows.Close()

	events := []ir.TraceEvent{}
	for rows.Next() {
		ev, err := scanTraceEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate trace events: %w", err)
	}
	return events, nil
}

func scanTraceEvent(rows *sql.Rows) (ir.TraceEvent, error) {
	var ev ir.TraceEvent
	var kind, argsJSON, valueJSON string

	err := rows.Scan(
		&ev.ID,
		&ev.RunID,
		&ev.Seq,
		&kind,
		&ev.Receiver,
		&ev.Selector,
		&ev.Implementation,
		&ev.Depth,
		&argsJSON,
		&valueJSON,
		&ev.Message,
	)
	if err != nil {
		return ev, fmt.Errorf("scan trace event: %w", err)
	}
	ev.Kind = ir.EventKind(kind)

	if ev.Args, err = unmarshalArgs(argsJSON); err != nil {
		return ev, err
	}
	if ev.Value, err = unmarshalValue(valueJSON); err != nil {
		return ev, err
	}
	return ev, nil
}

// ReadInterceptions returns the interception records journaled for a run,
// in the order they were applied.
func (s *Store) ReadInterceptions(ctx context.Context, runID string) ([]ir.InterceptionRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT record_id, class, original, wrapper, install_case
		FROM interceptions
		WHERE run_id = ?
		ORDER BY seq ASC, record_id COLLATE BINARY ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("query interceptions: %w", err)
	}
	defer rows.Close()

	records := []ir.InterceptionRecord{}
	for rows.Next() {
		var rec ir.InterceptionRecord
		var installCase string
		if err := rows.Scan(&rec.ID, &rec.Target, &rec.Original, &rec.Wrapper, &installCase); err != nil {
			return nil, fmt.Errorf("scan interception: %w", err)
		}
		rec.Case = ir.InstallCase(installCase)
		rec.Applied = true
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate interceptions: %w", err)
	}
	return records, nil
}

// ErrRunNotFound is returned by ReadRun for an unknown run ID. It wraps
// together with sql.ErrNoRows.
var ErrRunNotFound = errors.New("run not found")

// ReadRun returns one run, or an error matching ErrRunNotFound if absent.
func (s *Store) ReadRun(ctx context.Context, runID string) (Run, error) {
	var run Run
	err := s.db.QueryRowContext(ctx, `
		SELECT id, program_hash, engine_version, ir_version
		FROM runs WHERE id = ?
	`, runID).Scan(&run.ID, &run.ProgramHash, &run.EngineVersion, &run.IRVersion)
	if errors.Is(err, sql.ErrNoRows) {
		return run, fmt.Errorf("run %q: %w: %w", runID, ErrRunNotFound, err)
	}
	if err != nil {
		return run, fmt.Errorf("read run: %w", err)
	}
	return run, nil
}

// ListRuns returns every run ordered by id.
func (s *Store) ListRuns(ctx context.Context) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, program_hash, engine_version, ir_version
		FROM runs
		ORDER BY id COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	runs := []Run{}
	for rows.Next() {
		var run Run
		if err := rows.Scan(&run.ID, &run.ProgramHash, &run.EngineVersion, &run.IRVersion); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

// LastSeq returns the highest seq journaled for a run across events and
// interceptions, or 0 for an empty run. Used to resume a run's clock.
func (s *Store) LastSeq(ctx context.Context, runID string) (int64, error) {
	var seq int64
	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(MAX(seq), 0) FROM (
			SELECT seq FROM trace_events WHERE run_id = ?
			UNION ALL
			SELECT seq FROM interceptions WHERE run_id = ?
		)
	`, runID, runID).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("last seq: %w", err)
	}
	return seq, nil
}
