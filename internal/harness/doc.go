// Package harness runs declarative model scenarios against the real engine.
//
// # Scenario Format
//
// Scenarios are defined in YAML files with the following structure:
//
//	name: scenario_name
//	description: "What this scenario validates"
//	specs:
//	  - models/pricing.cue
//	source: |
//	  model: extra: property: n: 0
//	steps:
//	  - flush: true
//	  - set: { pricing.price: 3 }
//	  - digest: true
//	  - expect: { pricing.total: 6 }
//	  - configure: { pricing: { price: 10 } }
//	  - listen: pricing
//	  - destroy: pricing
//	  - set: { pricing.price: 1 }
//	    expect_error: MODEL_DESTROYED
//	assertions:
//	  - type: trace_count
//	    fn: pricing.total
//	    count: 2
//	  - type: final_state
//	    model: pricing
//	    expect: { total: 6 }
//
// # Assertion Types
//
//   - trace_count: a function was evaluated (or, with completions: true,
//     completed asynchronously) exactly N times
//   - trace_order: functions were first evaluated in the given order
//   - digest_count: exactly N digest passes were recorded
//   - final_state: a live model's values after the last step (subset match)
//   - notifications: the exact deltas delivered to a listened model
//
// # Deterministic Testing
//
// Every scenario gets a fresh engine whose deferred work runs on an
// engine.Loop drained only by flush steps, a fixed run id (run_id, default
// "test-run") and an in-memory SQLite trace store. The trace is read back
// from the store, so identical scenarios produce identical golden files.
//
// # Usage
//
//	scenario, err := harness.LoadScenario("testdata/scenarios/pricing.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	result, err := harness.Run(scenario)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if !result.Pass {
//	    for _, msg := range result.Errors {
//	        log.Println(msg)
//	    }
//	}
package harness
