package engine

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/rxmodel/internal/ir"
)

func TestModel_PropertyAccessors(t *testing.T) {
	e, _ := newTestEngine(t)
	m := e.NewModel()

	p, err := m.DeclareProperty("x", 5, true)
	require.NoError(t, err)
	assert.Equal(t, "x", p.Name())
	assert.Equal(t, ir.PropertyNode(m.ID(), "x"), p.Node())
	assert.Equal(t, 5, p.Get())
	assert.Equal(t, 5, p.Default())
	assert.True(t, p.Exposed())
	assert.True(t, p.Assigned())
	assert.Same(t, m, p.Model())

	assert.Same(t, m, p.Set(20))
	assert.Equal(t, 20, p.Get())
	assert.Equal(t, 20, m.Get("x"))
	assert.True(t, e.Pending())
}

func TestModel_PropertyWithoutDefault(t *testing.T) {
	e, _ := newTestEngine(t)
	m := e.NewModel()

	p, err := m.DeclareProperty("x", ir.Undefined, false)
	require.NoError(t, err)
	assert.False(t, p.Assigned())
	assert.True(t, ir.IsUndefined(p.Get()))
	assert.False(t, e.Pending(), "no default, nothing to digest")

	m.Set("x", 3)
	assert.Equal(t, 3, p.Get())
}

func TestModel_ChainedSetters(t *testing.T) {
	e, _ := newTestEngine(t)
	m := e.NewModel().
		Property("x", 5).
		Property("y", 10).
		Set("x", 1).
		Set("y", 2)
	require.NoError(t, m.Err())

	assert.Equal(t, 1, m.Get("x"))
	assert.Equal(t, 2, m.Get("y"))
	assert.Equal(t, []string{"x", "y"}, m.PropertyNames())
}

func TestModel_Errors(t *testing.T) {
	e, _ := newTestEngine(t)

	t.Run("duplicate property", func(t *testing.T) {
		m := e.NewModel().Property("x", 1).Property("x", 2)
		assert.Equal(t, ErrCodeDuplicateProperty, ErrorCode(m.Err()))
		assert.Equal(t, 1, m.Get("x"))
	})

	t.Run("empty property name", func(t *testing.T) {
		_, err := e.NewModel().DeclareProperty("  ", 1, false)
		assert.Equal(t, ErrCodeInvalidBinding, ErrorCode(err))
	})

	t.Run("unknown property write", func(t *testing.T) {
		m := e.NewModel()
		err := m.Write("nope", 1)
		assert.Equal(t, ErrCodeUnknownProperty, ErrorCode(err))
		assert.True(t, ir.IsUndefined(m.Get("nope")))
	})

	t.Run("expose before declare", func(t *testing.T) {
		m := e.NewModel().Expose()
		assert.Equal(t, ErrCodeInvalidBinding, ErrorCode(m.Err()))
	})

	t.Run("zero callback", func(t *testing.T) {
		_, err := e.NewModel().DeclareReactiveFunction(Binding{Output: "b", Inputs: []string{"a"}})
		assert.Equal(t, ErrCodeInvalidBinding, ErrorCode(err))
	})

	t.Run("bad input spec", func(t *testing.T) {
		m := e.NewModel().Reactive("b", increment, 42)
		assert.Equal(t, ErrCodeInvalidBinding, ErrorCode(m.Err()))
	})
}

func TestModel_RedeclareImplicitOutput(t *testing.T) {
	e, _ := newTestEngine(t)
	m := e.NewModel().Reactive("b", increment, "a")
	require.NoError(t, m.Err())

	p, err := m.DeclareProperty("b", 0, true)
	require.NoError(t, err, "an implicit output may be declared explicitly later")
	assert.True(t, p.Exposed())
	assert.Equal(t, 0, p.Get())

	_, err = m.DeclareProperty("b", 1, false)
	assert.Equal(t, ErrCodeDuplicateProperty, ErrorCode(err))
}

func TestModel_DeclareSameBindingTwice(t *testing.T) {
	e, _ := newTestEngine(t)
	m := e.NewModel().Property("a", 1)

	r1, err := m.DeclareReactiveFunction(Binding{Output: "b", Inputs: []string{"a"}, Callback: increment})
	require.NoError(t, err)
	r2, err := m.DeclareReactiveFunction(Binding{Output: "b", Inputs: []string{"a"}, Callback: increment})
	require.NoError(t, err)
	assert.Equal(t, r1, r2)
	assert.Len(t, m.Functions(), 1)

	r3, err := m.DeclareReactiveFunction(Binding{Output: "b", Inputs: []string{"a"}, Callback: increment, Name: "other"})
	require.NoError(t, err)
	assert.NotEqual(t, r1.ID, r3.ID, "an explicit name is a distinct function")
	assert.Len(t, m.Functions(), 2)
	assert.Equal(t, "other", r3.Name)
}

func TestModel_LoopBuiltEffectsAreDistinct(t *testing.T) {
	e, _ := newTestEngine(t)
	m := e.NewModel().Property("a", 1)

	hits := make([]int, 3)
	for i := range hits {
		m.Effect(Sync(func(Inputs) (any, error) {
			hits[i]++
			return ir.Undefined, nil
		}), "a")
	}
	factory := func(n int) func(*Model) {
		return func(m *Model) {
			m.Reactive(fmt.Sprintf("out%d", n), Sync(func(in Inputs) (any, error) {
				return in.Int(0) + n, nil
			}), "a")
		}
	}
	m.Call(factory(10)).Call(factory(20))
	require.NoError(t, m.Err())
	assert.Len(t, m.Functions(), 5)

	require.NoError(t, e.Digest(context.Background()))
	assert.Equal(t, []int{1, 1, 1}, hits)
	assert.Equal(t, 11, m.Get("out10"))
	assert.Equal(t, 21, m.Get("out20"))
}

func TestModel_RecordShape(t *testing.T) {
	e, _ := newTestEngine(t)
	m := e.NewModel().Property("a", 1).Property("b", 2)

	rec, err := m.DeclareReactiveFunction(Binding{Output: "c", Inputs: []string{"a", "b"}, Callback: add, Name: "add"})
	require.NoError(t, err)
	assert.Equal(t, ir.FunctionNode(m.ID(), "add", []string{"a", "b"}, "c"), rec.ID)
	assert.Equal(t, m.ID(), rec.ModelID)
	assert.Equal(t, "c", rec.Output)
	assert.Equal(t, []string{"a", "b"}, rec.Inputs)
	assert.Equal(t, ir.ModeSync, rec.Mode)

	g := e.Graph()
	assert.True(t, g.HasEdge(ir.PropertyNode(m.ID(), "a"), rec.ID))
	assert.True(t, g.HasEdge(ir.PropertyNode(m.ID(), "b"), rec.ID))
	assert.True(t, g.HasEdge(rec.ID, ir.PropertyNode(m.ID(), "c")))
}

func TestModel_CycleRejectedAtDeclaration(t *testing.T) {
	e, _ := newTestEngine(t)
	m := e.NewModel().
		Property("a", 1).
		Reactive("b", increment, "a")
	require.NoError(t, m.Err())
	nodesBefore := e.Graph().Nodes()

	_, err := m.DeclareReactiveFunction(Binding{Output: "a", Inputs: []string{"b"}, Callback: increment})
	require.Error(t, err)
	assert.True(t, IsCycleError(err))

	var re *RuntimeError
	require.ErrorAs(t, err, &re)
	assert.Contains(t, re.Details["path"], ir.PropertyNode(m.ID(), "a"))
	assert.Equal(t, nodesBefore, e.Graph().Nodes(), "rejected binding leaves the graph unchanged")
	assert.Len(t, m.Functions(), 1)

	require.NoError(t, e.Digest(context.Background()))
	assert.Equal(t, 2, m.Get("b"))
}

func TestModel_SelfLoopRejected(t *testing.T) {
	e, _ := newTestEngine(t)
	m := e.NewModel().Reactive("q", increment, "q")
	assert.True(t, IsCycleError(m.Err()))

	_, ok := m.Lookup("q")
	assert.False(t, ok, "implicit output of a rejected binding is rolled back")
}

func TestModel_Call(t *testing.T) {
	scaled := func(factor int) func(*Model) {
		return func(m *Model) {
			m.Reactive("y", Sync(func(in Inputs) (any, error) {
				return in.Int(0) * factor, nil
			}), "x")
		}
	}
	e, _ := newTestEngine(t)

	plain := e.NewModel().Property("x", 5).Call(func(m *Model) {
		m.Reactive("y", increment, "x")
	})
	withArg := e.NewModel().Property("x", 5).Call(scaled(2))
	withTwoArgs := e.NewModel().Property("x", 5).Call(func(m *Model) {
		a, b := 2, 3
		m.Reactive("y", Sync(func(in Inputs) (any, error) {
			return in.Int(0)*a + b, nil
		}), "x")
	})

	require.NoError(t, e.Digest(context.Background()))
	assert.Equal(t, 6, plain.Get("y"))
	assert.Equal(t, 10, withArg.Get("y"))
	assert.Equal(t, 13, withTwoArgs.Get("y"))
}

func TestModel_Configuration(t *testing.T) {
	e, _ := newTestEngine(t)
	m := e.NewModel().
		Property("x", 5).Expose().
		Property("y", 10).Expose().
		Property("hidden", 1)

	assert.Empty(t, m.Configuration(), "defaults are omitted")

	m.Set("x", 20).Set("hidden", 2)
	assert.Equal(t, map[string]any{"x": 20}, m.Configuration())

	m.Set("x", 5)
	assert.Empty(t, m.Configuration(), "setting back to the default omits it again")
}

func TestModel_SetConfiguration(t *testing.T) {
	e, _ := newTestEngine(t)
	m := e.NewModel().
		Property("x", 5).Expose().
		Property("y", 10).Expose()

	require.NoError(t, m.SetConfiguration(map[string]any{"x": 20, "y": 50}))
	assert.Equal(t, 20, m.Get("x"))
	assert.Equal(t, 50, m.Get("y"))

	require.NoError(t, m.SetConfiguration(map[string]any{"x": 30}))
	assert.Equal(t, 30, m.Get("x"))
	assert.Equal(t, 10, m.Get("y"), "omitted properties reset to their default")

	require.NoError(t, m.SetConfiguration(map[string]any{}))
	assert.Equal(t, 5, m.Get("x"))

	err := m.SetConfiguration(map[string]any{"x": 1, "unknown": 2})
	assert.Equal(t, ErrCodeUnknownProperty, ErrorCode(err))
	assert.Equal(t, 5, m.Get("x"), "a rejected configuration writes nothing")
}

func TestModel_DestroyRemovesSyncFunctions(t *testing.T) {
	e, _ := newTestEngine(t)
	other := e.NewModel().Property("keep", 1)
	m := e.NewModel().
		Property("a", 5).
		Reactive("b", increment, "a")

	require.NoError(t, e.Digest(context.Background()))
	assert.Equal(t, 6, m.Get("b"))

	m.Destroy()
	m.Destroy() // idempotent

	for _, n := range e.Graph().Nodes() {
		id, _, err := ir.ParsePropertyNode(n)
		require.NoError(t, err, "only property nodes of the other model remain: %s", n)
		assert.Equal(t, other.ID(), id)
	}
	assert.True(t, m.Destroyed())
	_, live := e.Model(m.ID())
	assert.False(t, live)
	assert.Len(t, e.Models(), 1)

	assert.True(t, IsDestroyedError(m.Write("a", 10)))
	require.NoError(t, e.Digest(context.Background()))
	assert.Equal(t, 6, m.Get("b"), "no evaluation after destroy")

	_, err := m.DeclareProperty("c", 1, false)
	assert.True(t, IsDestroyedError(err))
	_, err = m.DeclareReactiveFunction(Binding{Output: "c", Inputs: []string{"a"}, Callback: increment})
	assert.True(t, IsDestroyedError(err))
}

func TestModel_DestroyDropsPendingAsyncCompletion(t *testing.T) {
	rec := &memRecorder{}
	e, d := newTestEngine(t, WithRecorder(rec))
	m := e.NewModel().Property("a", 5)
	m.Reactive("b", Async(func(in Inputs, done Done) error {
		v := in.Int(0) + 1
		e.Defer(func() { done(v) })
		return nil
	}), "a")

	require.True(t, d.Step(), "digest starts the async function")
	m.Destroy()

	d.Flush()
	assert.True(t, ir.IsUndefined(m.Get("b")))
	assert.Equal(t, 1, rec.digestCount(), "the dropped completion armed nothing")
	assert.Equal(t, StateIdle, e.State())
	assert.False(t, e.Pending())
}

func TestModel_DestroyKeepsValuesPushedToOtherModels(t *testing.T) {
	e, _ := newTestEngine(t)
	sink := e.NewModel().Property("copy", ir.Undefined)
	src := e.NewModel().
		Property("a", 7).
		Effect(Sync(func(in Inputs) (any, error) {
			sink.Set("copy", in.At(0))
			return nil, nil
		}), "a")

	require.NoError(t, e.Digest(context.Background()))
	src.Destroy()
	require.NoError(t, e.Digest(context.Background()))
	assert.Equal(t, 7, sink.Get("copy"))
}

func TestModel_IdsAreUniqueAndIncreasing(t *testing.T) {
	e, _ := newTestEngine(t)
	m1 := e.NewModel()
	m2 := e.NewModel()
	m1.Destroy()
	m3 := e.NewModel()

	assert.Less(t, m1.ID(), m2.ID())
	assert.Less(t, m2.ID(), m3.ID(), "ids are never reused")
}
