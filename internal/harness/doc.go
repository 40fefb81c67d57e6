// Package harness runs interception scenarios against a real engine.
//
// # Scenario Format
//
// Scenarios are YAML files:
//
//	name: derived_inherits_interception
//	description: "What this scenario validates"
//	specs:
//	  - ../specs/greeting.cue
//	run_id: run-derived
//	install:
//	  - class: Derived
//	    original: greet
//	    wrapper: loggedGreet
//	    concurrency: 16
//	flow:
//	  - send: Derived.greet
//	    expect:
//	      result: "Hello from Base"
//	  - send: Derived.missing
//	    expect:
//	      error: UNRECOGNIZED_SELECTOR
//	assertions:
//	  - type: log_count
//	    count: 1
//	  - type: dispatch
//	    class: Derived
//	    selector: greet
//	    implementation: Base.loggedGreet
//	  - type: final_state
//	    table: interceptions
//	    where: { class: Derived, original: greet }
//	    expect: { install_case: inherited }
//
// The program's own intercepts are installed first (boot) unless skip_boot
// is set; install steps follow in order, each issued from `concurrency`
// goroutines at once.
//
// # Assertion Types
//
//   - trace_contains: some event matches the inline pattern
//     (kind, receiver, selector, implementation, message, depth, value)
//   - trace_order: the events list matches in order, gaps allowed
//   - trace_count: exactly count events match the inline pattern
//   - log_count: exactly count log events (optionally with message)
//   - dispatch: class's table binds selector to implementation (and local)
//   - final_state: one journal row (runs, interceptions, trace_events)
//     matches where and carries the expected columns
//
// # Deterministic Testing
//
// Every scenario runs against a fresh in-memory journal with
// testutil.DeterministicClock and testutil.FixedRunID, so the same scenario
// always produces the same trace. RunWithGolden snapshots the trace, the
// applied interceptions and the flow outcomes as canonical JSON.
package harness
