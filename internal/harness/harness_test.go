package harness

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/rxmodel/internal/engine"
	"github.com/roach88/rxmodel/internal/funcs"
)

const sumSource = `
model: calc: {
	property: a: {default: 1, expose: true}
	property: b: {default: 2, expose: true}
	reactive: sum: {fn: "add", inputs: "a, b"}
}
`

func inline(name string, steps ...Step) *Scenario {
	return &Scenario{
		Name:        name,
		Description: name,
		Source:      sumSource,
		Steps:       steps,
	}
}

func TestRun_MinimalScenario(t *testing.T) {
	result, err := Run(inline("minimal", Step{Flush: true}))
	require.NoError(t, err)
	require.NotNil(t, result)

	assert.True(t, result.Pass)
	assert.Empty(t, result.Errors)

	require.Len(t, result.Trace, 2)
	assert.Equal(t, TraceEvaluation, result.Trace[0].Type)
	assert.Equal(t, "calc.sum", result.Trace[0].Ref())
	assert.Equal(t, "3", result.Trace[0].Value)
	assert.Equal(t, TraceDigest, result.Trace[1].Type)
	assert.Equal(t, "scheduled", result.Trace[1].Trigger)
	assert.Equal(t, 2, result.Trace[1].Dirty)

	assert.Equal(t, map[string]any{"a": 1, "b": 2, "sum": 3}, result.State["calc"])
}

func TestRun_NothingHappensWithoutFlush(t *testing.T) {
	result, err := Run(inline("no_flush", Step{Expect: map[string]any{"calc.a": 1}}))
	require.NoError(t, err)

	assert.True(t, result.Pass)
	assert.Empty(t, result.Trace)
	assert.Equal(t, map[string]any{"a": 1, "b": 2}, result.State["calc"])
}

func TestRun_SetThenDigest(t *testing.T) {
	result, err := Run(inline("set_digest",
		Step{Set: map[string]any{"calc.a": 10, "calc.b": 5}},
		Step{Digest: true},
		Step{Expect: map[string]any{"calc.sum": 15}},
		Step{Flush: true},
	))
	require.NoError(t, err)
	assert.True(t, result.Pass, result.Errors)

	digests := result.Digests()
	require.Len(t, digests, 1, "the scheduled task goes stale after the explicit digest")
	assert.Equal(t, "explicit", digests[0].Trigger)
}

func TestRun_ExpectMismatchFails(t *testing.T) {
	result, err := Run(inline("mismatch",
		Step{Flush: true},
		Step{Expect: map[string]any{"calc.sum": 4, "other.x": 1}},
	))
	require.NoError(t, err)

	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 2)
	assert.Contains(t, result.Errors[0], "calc.sum = 3")
	assert.Contains(t, result.Errors[1], `model "other" is not declared`)
}

func TestRun_ExpectError(t *testing.T) {
	t.Run("matched", func(t *testing.T) {
		result, err := Run(inline("unknown_prop",
			Step{Set: map[string]any{"calc.zzz": 1}, ExpectError: string(engine.ErrCodeUnknownProperty)},
			Step{Set: map[string]any{"nope.a": 1}, ExpectError: ErrCodeUnknownModel},
		))
		require.NoError(t, err)
		assert.True(t, result.Pass, result.Errors)
	})

	t.Run("missing", func(t *testing.T) {
		result, err := Run(inline("no_error",
			Step{Set: map[string]any{"calc.a": 1}, ExpectError: "MODEL_DESTROYED"},
		))
		require.NoError(t, err)
		assert.False(t, result.Pass)
		assert.Contains(t, result.Errors[0], "expected error MODEL_DESTROYED, got none")
	})

	t.Run("wrong code", func(t *testing.T) {
		result, err := Run(inline("wrong_code",
			Step{Set: map[string]any{"calc.zzz": 1}, ExpectError: "MODEL_DESTROYED"},
		))
		require.NoError(t, err)
		assert.False(t, result.Pass)
		assert.Contains(t, result.Errors[0], "got UNKNOWN_PROPERTY")
	})

	t.Run("unexpected", func(t *testing.T) {
		result, err := Run(inline("unexpected",
			Step{Set: map[string]any{"calc.zzz": 1}},
		))
		require.NoError(t, err)
		assert.False(t, result.Pass)
		assert.Contains(t, result.Errors[0], "unexpected error")
	})
}

func TestRun_CallbackFailure(t *testing.T) {
	lib := funcs.Default()
	require.NoError(t, lib.Register("boom", "always fails", engine.Sync(func(engine.Inputs) (any, error) {
		return nil, errors.New("boom")
	})))

	scenario := &Scenario{
		Name:        "failure",
		Description: "callback failure",
		Source:      `model: m: { property: a: 1, reactive: b: {fn: "boom", inputs: "a"} }`,
		Steps: []Step{
			{Flush: true, ExpectError: string(engine.ErrCodeCallbackFailed)},
			{Set: map[string]any{"m.a": 2}},
			{Digest: true, ExpectError: string(engine.ErrCodeCallbackFailed)},
		},
	}

	result, err := RunContext(context.Background(), scenario, lib)
	require.NoError(t, err)
	assert.True(t, result.Pass, result.Errors)

	digests := result.Digests()
	require.Len(t, digests, 2)
	assert.Contains(t, digests[0].Error, "boom")
	assert.Equal(t, "explicit", digests[1].Trigger)
}

func TestRun_Configure(t *testing.T) {
	result, err := Run(inline("configure",
		Step{Set: map[string]any{"calc.a": 7, "calc.b": 8}},
		Step{Configure: map[string]map[string]any{"calc": {"b": 5}}},
		Step{Flush: true},
		Step{Expect: map[string]any{"calc.a": 1, "calc.b": 5, "calc.sum": 6}},
		Step{Configure: map[string]map[string]any{"calc": {"sum": 1}}, ExpectError: string(engine.ErrCodeUnknownProperty)},
	))
	require.NoError(t, err)
	assert.True(t, result.Pass, result.Errors)
}

func TestRun_ListenAndDestroy(t *testing.T) {
	result, err := Run(inline("listen",
		Step{Flush: true},
		Step{Listen: "calc"},
		Step{Set: map[string]any{"calc.a": 5}},
		Step{Flush: true},
		Step{Destroy: "calc"},
		Step{Set: map[string]any{"calc.a": 1}, ExpectError: string(engine.ErrCodeModelDestroyed)},
		Step{Listen: "calc"},
	))
	require.NoError(t, err)

	assert.False(t, result.Pass, "listening on a destroyed model is an unexpected error")
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "steps[6] listen")

	assert.Equal(t, []map[string]any{{"a": 5}}, result.Notifications["calc"])
	assert.NotContains(t, result.State, "calc")
}

func TestRun_AsyncCompletionTrace(t *testing.T) {
	scenario := &Scenario{
		Name:        "async",
		Description: "async completion",
		Source:      `model: m: { property: a: 1, reactive: b: {fn: "identity_async", inputs: "a"} }`,
		Steps:       []Step{{Flush: true}, {Expect: map[string]any{"m.b": 1}}},
		Assertions: []Assertion{
			{Type: AssertTraceCount, Func: "m.b", Count: 1},
			{Type: AssertTraceCount, Func: "m.b", Completions: true, Count: 1},
		},
	}

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, result.Errors)

	types := make([]string, len(result.Trace))
	for i, ev := range result.Trace {
		types[i] = ev.Type
	}
	assert.Equal(t, []string{TraceEvaluation, TraceDigest, TraceCompletion, TraceDigest}, types)
	assert.Equal(t, int64(1), result.Trace[2].Seq)
	assert.Equal(t, "1", result.Trace[2].Value)
}

func TestRun_PassLimit(t *testing.T) {
	lib := funcs.Default()
	scenario := &Scenario{
		Name:        "limit",
		Description: "a listener that writes on every notification",
		Source:      `model: m: property: a: {default: 0, expose: true}`,
		MaxPasses:   3,
		Steps:       []Step{{Flush: true}},
	}

	// The listener is wired by hand: scenarios have no step that writes
	// from inside a listener.
	result, err := run(context.Background(), scenario, lib, func(h *Harness) {
		m := h.models["m"]
		n := 0
		m.On(func(map[string]any) {
			n++
			_ = m.Write("a", n)
		})
	})
	require.NoError(t, err)

	assert.False(t, result.Pass)
	assert.Contains(t, result.Errors[0], string(engine.ErrCodePassLimit))
}

func TestRun_SetupErrors(t *testing.T) {
	t.Run("compile", func(t *testing.T) {
		_, err := Run(&Scenario{Name: "x", Description: "x", Source: "model: {", Steps: []Step{{Flush: true}}})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to compile source")
	})

	t.Run("missing spec", func(t *testing.T) {
		_, err := Run(&Scenario{Name: "x", Description: "x", Specs: []string{"/does/not/exist.cue"}, Steps: []Step{{Flush: true}}})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to load specs")
	})

	t.Run("unknown function", func(t *testing.T) {
		_, err := Run(&Scenario{
			Name: "x", Description: "x",
			Source: `model: m: reactive: b: {fn: "nope", inputs: "a"}`,
			Steps:  []Step{{Flush: true}},
		})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "E111")
	})
}

func TestErrorCode(t *testing.T) {
	assert.Equal(t, "", ErrorCode(nil))
	assert.Equal(t, "", ErrorCode(errors.New("plain")))
	assert.Equal(t, ErrCodeUnknownModel, ErrorCode(&StepError{Code: ErrCodeUnknownModel}))
	assert.Equal(t, string(engine.ErrCodePassLimit), ErrorCode(&engine.PassLimitError{Limit: 1}))
	assert.Equal(t, string(engine.ErrCodeCallbackFailed), ErrorCode(&engine.DigestError{
		Err: &engine.RuntimeError{Code: engine.ErrCodeCallbackFailed},
	}))
}
