package store

import (
	"path/filepath"
	"testing"

	"github.com/roach88/rxmodel/internal/ir"
)

// createTestStore creates a new file-backed store for testing.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func createMemoryStore(t *testing.T) *Store {
	t.Helper()
	s, err := OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func testDigest(runID string, seq int64) ir.DigestRecord {
	return ir.DigestRecord{
		RunID:     runID,
		Seq:       seq,
		Trigger:   ir.TriggerScheduled,
		Dirty:     1,
		Evaluated: 1,
	}
}

func testEvaluation(runID string, seq int64, ordinal int, node string) ir.Evaluation {
	return ir.Evaluation{
		RunID:     runID,
		DigestSeq: seq,
		Ordinal:   ordinal,
		Node:      node,
		ModelID:   1,
		Output:    "b",
		Mode:      ir.ModeSync,
		Value:     "2",
	}
}
