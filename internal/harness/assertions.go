package harness

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/roach88/rxmodel/internal/ir"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for i, event := range e.Trace {
			switch event.Type {
			case TraceDigest:
				fmt.Fprintf(&buf, "  [%d] digest %d %s dirty=%d evaluated=%d\n",
					i+1, event.Seq, event.Trigger, event.Dirty, event.Evaluated)
			default:
				fmt.Fprintf(&buf, "  [%d] %s %s %s\n", i+1, event.Type, event.Ref(), event.Value)
			}
		}
	}

	return buf.String()
}

// assertTraceCount checks the function was evaluated (or completed) exactly
// the specified number of times.
func assertTraceCount(trace []TraceEvent, assertion Assertion) error {
	kind := TraceEvaluation
	if assertion.Completions {
		kind = TraceCompletion
	}

	count := 0
	for _, event := range trace {
		if event.Type == kind && event.Ref() == assertion.Func {
			count++
		}
	}

	if count != assertion.Count {
		return &AssertionError{
			Type:     AssertTraceCount,
			Expected: fmt.Sprintf("%d %ss of %s", assertion.Count, kind, assertion.Func),
			Actual:   fmt.Sprintf("%d %ss", count, kind),
			Trace:    trace,
		}
	}
	return nil
}

// assertTraceOrder checks functions were first evaluated in the specified
// order. Evaluations don't need to be consecutive.
func assertTraceOrder(trace []TraceEvent, assertion Assertion) error {
	// Step 1: Find first position of each expected function
	positions := make(map[string]int)
	for i, event := range trace {
		if event.Type != TraceEvaluation {
			continue
		}
		ref := event.Ref()
		if _, seen := positions[ref]; !seen {
			positions[ref] = i + 1 // 1-indexed for readability
		}
	}

	// Step 2: Verify all functions found
	for _, fn := range assertion.Funcs {
		if positions[fn] == 0 {
			return &AssertionError{
				Type:     AssertTraceOrder,
				Expected: fmt.Sprintf("all functions evaluated: %v", assertion.Funcs),
				Actual:   fmt.Sprintf("missing function: %s", fn),
				Trace:    trace,
			}
		}
	}

	// Step 3: Verify order
	for i := 1; i < len(assertion.Funcs); i++ {
		prev := assertion.Funcs[i-1]
		curr := assertion.Funcs[i]

		if positions[prev] >= positions[curr] {
			return &AssertionError{
				Type:     AssertTraceOrder,
				Expected: fmt.Sprintf("functions in order: %v", assertion.Funcs),
				Actual: fmt.Sprintf("%s (pos %d) should be before %s (pos %d)",
					prev, positions[prev], curr, positions[curr]),
				Trace: trace,
			}
		}
	}

	return nil
}

// assertDigestCount checks the number of recorded digest passes.
func assertDigestCount(result *Result, assertion Assertion) error {
	if n := len(result.Digests()); n != assertion.Count {
		return &AssertionError{
			Type:     AssertDigestCount,
			Expected: fmt.Sprintf("%d digest passes", assertion.Count),
			Actual:   fmt.Sprintf("%d digest passes", n),
			Trace:    result.Trace,
		}
	}
	return nil
}

// assertFinalState checks the model's final property values using subset
// semantics. A null expectation matches a property that is unassigned.
func assertFinalState(result *Result, assertion Assertion) error {
	state, ok := result.State[assertion.Model]
	if !ok {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("live model %s", assertion.Model),
			Actual:   "model not found or destroyed",
		}
	}

	for _, key := range ir.SortedKeys(assertion.Expect) {
		want := assertion.Expect[key]
		got, exists := state[key]
		if !exists {
			if want == nil {
				continue
			}
			return &AssertionError{
				Type:     AssertFinalState,
				Expected: fmt.Sprintf("%s.%s = %v", assertion.Model, key, want),
				Actual:   fmt.Sprintf("%s.%s is unassigned", assertion.Model, key),
			}
		}
		if !valuesEqual(got, want) {
			return &AssertionError{
				Type:     AssertFinalState,
				Expected: fmt.Sprintf("%s.%s = %v (type %T)", assertion.Model, key, want, want),
				Actual:   fmt.Sprintf("%s.%s = %v (type %T)", assertion.Model, key, got, got),
			}
		}
	}
	return nil
}

// assertNotifications checks the exact sequence of deltas a listened model
// received.
func assertNotifications(result *Result, assertion Assertion) error {
	got, ok := result.Notifications[assertion.Model]
	if !ok {
		return &AssertionError{
			Type:     AssertNotifications,
			Expected: fmt.Sprintf("listener on %s", assertion.Model),
			Actual:   "model was never listened to",
		}
	}

	want := assertion.Deltas
	if want == nil {
		want = []map[string]any{}
	}
	if len(got) != len(want) {
		return &AssertionError{
			Type:     AssertNotifications,
			Expected: fmt.Sprintf("%d notifications %v", len(want), want),
			Actual:   fmt.Sprintf("%d notifications %v", len(got), got),
		}
	}
	for i := range want {
		if !valuesEqual(normalizeMap(got[i]), normalizeMap(want[i])) {
			return &AssertionError{
				Type:     AssertNotifications,
				Expected: fmt.Sprintf("notification %d = %v", i+1, want[i]),
				Actual:   fmt.Sprintf("notification %d = %v", i+1, got[i]),
			}
		}
	}
	return nil
}

// normalizeMap treats a nil map as empty so `{}` in YAML matches an empty
// delta.
func normalizeMap(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}

// valuesEqual compares two values for equality.
// Handles nested maps and slices.
func valuesEqual(actual, expected any) bool {
	if actual == nil && expected == nil {
		return true
	}
	if actual == nil || expected == nil {
		return false
	}
	return reflect.DeepEqual(actual, expected)
}

// EvaluateAssertions evaluates all assertions against the result.
// Returns a slice of error messages for failed assertions.
func EvaluateAssertions(result *Result, assertions []Assertion) []string {
	var errors []string

	for i, assertion := range assertions {
		var err error

		switch assertion.Type {
		case AssertTraceCount:
			err = assertTraceCount(result.Trace, assertion)
		case AssertTraceOrder:
			err = assertTraceOrder(result.Trace, assertion)
		case AssertDigestCount:
			err = assertDigestCount(result, assertion)
		case AssertFinalState:
			err = assertFinalState(result, assertion)
		case AssertNotifications:
			err = assertNotifications(result, assertion)
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, assertion.Type)
		}

		if err != nil {
			errors = append(errors, err.Error())
		}
	}

	return errors
}
