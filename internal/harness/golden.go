package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/rxmodel/internal/ir"
)

// TraceSnapshot captures the trace and final state of a scenario execution.
// All fields use canonical JSON serialization for deterministic comparison.
type TraceSnapshot struct {
	ScenarioName string                    `json:"scenario_name"`
	RunID        string                    `json:"run_id,omitempty"`
	Trace        []TraceEvent              `json:"trace"`
	State        map[string]map[string]any `json:"state,omitempty"`
}

// toCanonicalMap converts a TraceSnapshot to a map[string]any for canonical JSON serialization.
// This is required because ir.MarshalCanonical only handles primitives, maps and slices.
func (s *TraceSnapshot) toCanonicalMap() map[string]any {
	traceList := make([]any, len(s.Trace))
	for i, event := range s.Trace {
		eventMap := map[string]any{
			"type": event.Type,
			"seq":  event.Seq,
		}
		switch event.Type {
		case TraceDigest:
			eventMap["trigger"] = event.Trigger
			eventMap["dirty"] = event.Dirty
			eventMap["evaluated"] = event.Evaluated
			if event.Error != "" {
				eventMap["error"] = event.Error
			}
		default:
			if event.Type == TraceEvaluation {
				eventMap["ordinal"] = event.Ordinal
			}
			eventMap["model"] = event.Model
			eventMap["fn"] = event.Func
			eventMap["mode"] = event.Mode
			if event.Output != "" {
				eventMap["output"] = event.Output
			}
			if event.Value != "" {
				eventMap["value"] = event.Value
			}
		}
		traceList[i] = eventMap
	}

	result := map[string]any{
		"scenario_name": s.ScenarioName,
		"trace":         traceList,
	}
	if s.RunID != "" {
		result["run_id"] = s.RunID
	}
	if len(s.State) > 0 {
		state := make(map[string]any, len(s.State))
		for model, props := range s.State {
			state[model] = props
		}
		result["state"] = state
	}
	return result
}

// Marshal renders the snapshot as canonical JSON.
func (s *TraceSnapshot) Marshal() ([]byte, error) {
	return ir.MarshalCanonical(s.toCanonicalMap())
}

// RunWithGolden executes a scenario and compares its trace and final state
// against a golden file stored in testdata/golden/{scenario.Name}.golden
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns error if scenario execution fails.
// Test failure (via goldie) occurs if the snapshot doesn't match.
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}

	data, err := Snapshot(scenario, result)
	if err != nil {
		return nil, err
	}

	newGoldie(t).Assert(t, scenario.Name, data)
	return result, nil
}

// Snapshot renders the golden file content for a scenario result: its
// run id, trace and final state as canonical JSON.
func Snapshot(scenario *Scenario, result *Result) ([]byte, error) {
	runID := scenario.RunID
	if runID == "" {
		runID = DefaultRunID
	}
	snapshot := TraceSnapshot{
		ScenarioName: scenario.Name,
		RunID:        runID,
		Trace:        result.Trace,
		State:        result.State,
	}
	return snapshot.Marshal()
}

// AssertGolden compares the given result's trace against a golden file.
// This is useful when you've already run a scenario and want to compare
// the result against a golden file without re-running.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()

	snapshot := TraceSnapshot{
		ScenarioName: scenarioName,
		Trace:        result.Trace,
	}
	data, err := snapshot.Marshal()
	if err != nil {
		return err
	}

	newGoldie(t).Assert(t, scenarioName, data)
	return nil
}

func newGoldie(t *testing.T) *goldie.Goldie {
	return goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
}
