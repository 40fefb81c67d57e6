package cli

import (
	"context"
	"fmt"

	"github.com/roach88/swizzle/internal/engine"
	"github.com/roach88/swizzle/internal/store"
)

// session is an engine built from specs, optionally journaling to --db.
type session struct {
	engine *engine.Engine
	store  *store.Store
	files  []string
}

// openSession loads specs and builds an engine for them. When journal is
// true and opts.DB is set, the run is written to that sqlite file.
func openSession(ctx context.Context, opts *RootOptions, specs, runID string, journal bool) (*session, error) {
	loadResult, err := LoadSpecs(specs)
	if err != nil {
		return nil, err
	}

	s := &session{files: loadResult.Files}
	engOpts := []engine.Option{
		engine.WithLogger(opts.logger()),
		engine.WithMaxDepth(opts.MaxDepth),
	}
	if runID != "" {
		engOpts = append(engOpts, engine.WithRunID(runID))
	}
	if journal && opts.DB != "" {
		st, err := store.Open(opts.DB)
		if err != nil {
			return nil, &LoadError{Code: ErrCodeJournal, Message: fmt.Sprintf("opening journal: %v", err)}
		}
		s.store = st
		engOpts = append(engOpts, engine.WithStore(st))
	}

	eng, err := engine.New(ctx, loadResult.Program, engOpts...)
	if err != nil {
		s.Close()
		if engine.IsProgramMismatch(err) {
			return nil, &LoadError{Code: ErrCodeRunMismatch, Message: err.Error()}
		}
		return nil, &LoadError{Code: ErrCodeBuildFailed, Message: err.Error()}
	}
	s.engine = eng
	return s, nil
}

// Close closes the journal, if any.
func (s *session) Close() error {
	if s.store == nil {
		return nil
	}
	return s.store.Close()
}
