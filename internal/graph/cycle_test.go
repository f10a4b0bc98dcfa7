package graph

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFindCycles_Acyclic(t *testing.T) {
	g := New()
	g.AddEdge("a", "b")
	g.AddEdge("b", "c")
	g.AddEdge("a", "c")

	assert.Empty(t, g.FindCycles())
}

func TestFindCycles_SelfLoop(t *testing.T) {
	g := New()
	g.AddEdge("a", "a")

	assert.Equal(t, [][]string{{"a", "a"}}, g.FindCycles())
}

func TestFindCycles_TwoIndependentCycles(t *testing.T) {
	g := New()
	g.AddEdge("a", "b")
	g.AddEdge("b", "a")
	g.AddEdge("x", "y")
	g.AddEdge("y", "z")
	g.AddEdge("z", "x")
	g.AddEdge("b", "x") // bridge, not part of either cycle

	cycles := g.FindCycles()
	assert.Len(t, cycles, 2)
	assert.Contains(t, cycles, []string{"a", "b", "a"})
	assert.Contains(t, cycles, []string{"x", "y", "z", "x"})
}

func TestCycleThrough(t *testing.T) {
	g := New()
	g.AddEdge("a", "b")
	g.AddEdge("b", "c")
	g.AddEdge("c", "a")
	g.AddEdge("c", "d")

	assert.Equal(t, []string{"b", "c", "a", "b"}, g.CycleThrough("b"))
	assert.Nil(t, g.CycleThrough("d"))
	assert.Nil(t, g.CycleThrough("missing"))
}

func TestCycleThrough_OnlyCyclesContainingNode(t *testing.T) {
	g := New()
	g.AddEdge("a", "b")
	g.AddEdge("b", "c")
	g.AddEdge("c", "b")
	g.AddEdge("x", "x")

	assert.Nil(t, g.CycleThrough("a"), "a reaches a cycle but is not on it")
	assert.Equal(t, []string{"b", "c", "b"}, g.CycleThrough("b"))
	assert.Equal(t, []string{"x", "x"}, g.CycleThrough("x"))
}

func TestCycleThrough_LongChain(t *testing.T) {
	g := New()
	const n = 2000
	for i := 0; i < n; i++ {
		g.AddEdge(fmt.Sprintf("n%04d", i), fmt.Sprintf("n%04d", i+1))
		assert.Nil(t, g.CycleThrough(fmt.Sprintf("n%04d", i+1)))
	}
	g.AddEdge(fmt.Sprintf("n%04d", n), "n0000")
	path := g.CycleThrough("n0000")
	assert.Len(t, path, n+2)
	assert.Equal(t, "n0000", path[len(path)-1])
}

func TestCycleThrough_DeadEndInsideSCC(t *testing.T) {
	// a → b → a and a → c → a: greedy walk from a visits b, then must close.
	g := New()
	g.AddEdge("a", "b")
	g.AddEdge("b", "a")
	g.AddEdge("a", "c")
	g.AddEdge("c", "a")

	path := g.CycleThrough("a")
	assert.Equal(t, "a", path[0])
	assert.Equal(t, "a", path[len(path)-1])
	assert.GreaterOrEqual(t, len(path), 3)
}
