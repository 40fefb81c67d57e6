package testutil

// DefaultRunID is used when a scenario does not name its run.
const DefaultRunID = "test-run-default"

// FixedRunID returns the same run ID on every call, so a scenario produces
// byte-identical trace event IDs across runs.
//
// Unlike engine.FixedGenerator, which hands out a sequence of IDs, FixedRunID
// never runs out.
type FixedRunID struct {
	id string
}

// NewFixedRunID creates a generator for id. An empty id yields DefaultRunID.
func NewFixedRunID(id string) *FixedRunID {
	if id == "" {
		id = DefaultRunID
	}
	return &FixedRunID{id: id}
}

// Generate implements engine.RunIDGenerator.
func (g *FixedRunID) Generate() string {
	return g.id
}
