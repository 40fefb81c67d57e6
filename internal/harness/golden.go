package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/swizzle/internal/ir"
)

// TraceSnapshot captures everything a scenario produced that must stay
// stable across runs. All fields use canonical JSON serialization for
// deterministic comparison.
type TraceSnapshot struct {
	ScenarioName  string
	RunID         string
	Trace         []ir.TraceEvent
	Interceptions []ir.InterceptionRecord
	Outcomes      []Outcome
}

// toCanonicalMap converts a TraceSnapshot to a map[string]any for canonical
// JSON serialization.
//
// Event IDs are left out: they are a hash of run_id, seq and kind, all of
// which are in the snapshot.
func (s *TraceSnapshot) toCanonicalMap() map[string]any {
	trace := make([]any, len(s.Trace))
	for i, ev := range s.Trace {
		m := map[string]any{
			"seq":   ev.Seq,
			"kind":  string(ev.Kind),
			"depth": ev.Depth,
		}
		putString(m, "receiver", ev.Receiver)
		putString(m, "selector", ev.Selector)
		putString(m, "implementation", ev.Implementation)
		putString(m, "message", ev.Message)
		if ev.Args != nil {
			m["args"] = ev.Args
		}
		if ev.Value != nil {
			m["value"] = ev.Value
		}
		trace[i] = m
	}

	records := make([]any, len(s.Interceptions))
	for i, rec := range s.Interceptions {
		records[i] = map[string]any{
			"target":   rec.Target,
			"original": rec.Original,
			"wrapper":  rec.Wrapper,
			"case":     string(rec.Case),
		}
	}

	outcomes := make([]any, len(s.Outcomes))
	for i, out := range s.Outcomes {
		m := map[string]any{"send": out.Send}
		putString(m, "error", out.Error)
		if out.Result != nil {
			m["result"] = out.Result
		}
		outcomes[i] = m
	}

	return map[string]any{
		"scenario_name": s.ScenarioName,
		"run_id":        s.RunID,
		"trace":         trace,
		"interceptions": records,
		"outcomes":      outcomes,
	}
}

func putString(m map[string]any, key, val string) {
	if val != "" {
		m[key] = val
	}
}

// snapshotOf builds the snapshot of a result.
func snapshotOf(name string, result *Result) TraceSnapshot {
	return TraceSnapshot{
		ScenarioName:  name,
		RunID:         result.RunID,
		Trace:         result.Trace,
		Interceptions: result.Records,
		Outcomes:      result.Outcomes,
	}
}

// MarshalSnapshot renders a result as the canonical JSON stored in golden
// files.
func MarshalSnapshot(name string, result *Result) ([]byte, error) {
	snapshot := snapshotOf(name, result)
	return ir.MarshalCanonical(snapshot.toCanonicalMap())
}

// RunWithGolden executes a scenario and compares its snapshot against a
// golden file stored in testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns error if scenario execution fails.
// Test failure (via goldie) occurs if the snapshot doesn't match.
func RunWithGolden(t *testing.T, scenario *Scenario) error {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return err
	}
	return AssertGolden(t, scenario.Name, result)
}

// AssertGolden compares an existing result against a golden file without
// re-running the scenario.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()

	data, err := MarshalSnapshot(scenarioName, result)
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, data)

	return nil
}
