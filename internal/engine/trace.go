package engine

import (
	"context"
	"fmt"

	"github.com/roach88/swizzle/internal/ir"
)

type depthKey struct{}

func depthFrom(ctx context.Context) int {
	d, _ := ctx.Value(depthKey{}).(int)
	return d
}

func withDepth(ctx context.Context, d int) context.Context {
	return context.WithValue(ctx, depthKey{}, d)
}

// record stamps ev with the run ID, the next seq and its ID, appends it to
// the in-memory trace and journals it when a store is set.
//
// Seq assignment and append happen under one lock so the in-memory trace is
// always in seq order.
func (e *Engine) record(ctx context.Context, ev ir.TraceEvent) (ir.TraceEvent, error) {
	e.mu.Lock()
	ev.RunID = e.runID
	ev.Seq = e.clock.Next()
	ev.ID = ir.TraceEventID(e.runID, ev.Seq, ev.Kind)
	e.trace = append(e.trace, ev)
	e.mu.Unlock()

	if e.store != nil {
		if err := e.store.WriteTraceEvent(ctx, ev); err != nil {
			return ev, fmt.Errorf("journal %s event: %w", ev.Kind, err)
		}
	}
	return ev, nil
}
