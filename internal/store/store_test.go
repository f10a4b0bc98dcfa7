package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/roach88/rxmodel/internal/engine"
)

var _ engine.Recorder = (*Store)(nil)

func TestOpen_CreatesNewDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer s.Close()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Error("database file was not created")
	}
}

func TestOpen_OpensExistingDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	ctx := context.Background()

	s1, err := Open(path)
	if err != nil {
		t.Fatalf("first Open() failed: %v", err)
	}
	if err := s1.RecordDigest(ctx, testDigest("run", 1)); err != nil {
		t.Fatalf("RecordDigest() failed: %v", err)
	}
	s1.Close()

	s2, err := Open(path)
	if err != nil {
		t.Fatalf("second Open() failed: %v", err)
	}
	defer s2.Close()

	var count int
	if err := s2.db.QueryRow("SELECT COUNT(*) FROM digests").Scan(&count); err != nil {
		t.Fatalf("query failed: %v", err)
	}
	if count != 1 {
		t.Errorf("digests = %d, want 1", count)
	}
}

func TestOpen_ResumesPosition(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	ctx := context.Background()

	s1, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	_ = s1.RecordEvaluation(ctx, testEvaluation("run", 1, 1, "f"))
	_ = s1.RecordDigest(ctx, testDigest("run", 1))
	s1.Close()

	s2, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer s2.Close()

	if got := s2.pos.Load(); got != 2 {
		t.Errorf("position = %d, want 2", got)
	}
}

func TestOpen_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	for i := 0; i < 3; i++ {
		s, err := Open(path)
		if err != nil {
			t.Fatalf("Open() iteration %d failed: %v", i, err)
		}
		s.Close()
	}
}

func TestOpen_InvalidPath(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "missing", "dir", "test.db"))
	if err == nil {
		t.Error("Open() should fail for a path in a missing directory")
	}
}

func TestOpen_Memory(t *testing.T) {
	s := createMemoryStore(t)
	ctx := context.Background()

	if err := s.RecordDigest(ctx, testDigest("run", 1)); err != nil {
		t.Fatalf("RecordDigest() failed: %v", err)
	}
	digests, err := s.ReadDigests(ctx, "run")
	if err != nil {
		t.Fatalf("ReadDigests() failed: %v", err)
	}
	if len(digests) != 1 {
		t.Errorf("digests = %d, want 1 (all queries share one in-memory database)", len(digests))
	}
}

func TestOpen_NewerSchemaRejected(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	if _, err := s.db.Exec("PRAGMA user_version = 99"); err != nil {
		t.Fatalf("set user_version: %v", err)
	}
	s.Close()

	if _, err := Open(path); err == nil {
		t.Error("Open() should refuse a database from a newer schema")
	}
}

func TestClose_NilDB(t *testing.T) {
	s := &Store{}
	if err := s.Close(); err != nil {
		t.Errorf("Close() on nil db = %v, want nil", err)
	}
}

func TestDB_ReturnsUnderlyingConnection(t *testing.T) {
	s := createTestStore(t)
	if s.DB() == nil {
		t.Fatal("DB() returned nil")
	}
	if err := s.DB().Ping(); err != nil {
		t.Errorf("Ping() failed: %v", err)
	}
}

func TestPragma_JournalMode(t *testing.T) {
	s := createTestStore(t)
	if err := s.verifyPragma("journal_mode", "wal"); err != nil {
		t.Error(err)
	}
}

func TestPragma_Synchronous(t *testing.T) {
	s := createTestStore(t)
	// NORMAL = 1
	if err := s.verifyPragma("synchronous", "1"); err != nil {
		t.Error(err)
	}
}

func TestPragma_BusyTimeout(t *testing.T) {
	s := createTestStore(t)
	if err := s.verifyPragma("busy_timeout", "5000"); err != nil {
		t.Error(err)
	}
}

func TestSchema_Tables(t *testing.T) {
	s := createTestStore(t)

	tests := []struct {
		table string
		want  []string
	}{
		{"digests", []string{"id", "run_id", "seq", "trigger", "dirty", "evaluated", "error", "position"}},
		{"evaluations", []string{"id", "run_id", "digest_seq", "ordinal", "node", "model_id", "output", "mode", "completion", "value", "position"}},
	}
	for _, tt := range tests {
		t.Run(tt.table, func(t *testing.T) {
			cols := getTableColumns(t, s, tt.table)
			for _, c := range tt.want {
				if !contains(cols, c) {
					t.Errorf("%s missing column %q, have %v", tt.table, c, cols)
				}
			}
		})
	}
}

func TestSchema_Version(t *testing.T) {
	s := createTestStore(t)

	var version int
	if err := s.db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		t.Fatalf("failed to get user_version: %v", err)
	}
	if version != currentSchemaVersion {
		t.Errorf("user_version = %d, want %d", version, currentSchemaVersion)
	}
}

func getTableColumns(t *testing.T, s *Store, table string) []string {
	t.Helper()
	rows, err := s.db.Query("SELECT name FROM pragma_table_info(?)", table)
	if err != nil {
		t.Fatalf("table info %s: %v", table, err)
	}
	defer rows.Close()

	var cols []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			t.Fatalf("scan column: %v", err)
		}
		cols = append(cols, name)
	}
	return cols
}

func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}
