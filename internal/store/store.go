package store

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"sync/atomic"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// Schema version tracking:
// 1 - digests and evaluations tables with position ordering
const currentSchemaVersion = 1

// Memory is the path that opens a private in-memory trace store.
const Memory = ":memory:"

// Store is a SQLite-backed digest trace. It implements engine.Recorder.
type Store struct {
	db  *sql.DB
	pos atomic.Int64
}

// Open creates or opens a SQLite database at the given path. Pass Memory
// for a store that lives as long as the returned value.
//
// The database is configured with:
//   - WAL mode for file databases
//   - NORMAL synchronous mode
//   - 5-second busy timeout for lock contention
//
// This function is idempotent - safe to call multiple times on one file.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// One connection: SQLite has a single writer, and every connection to
	// :memory: would otherwise see its own empty database.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := applyPragmas(db, path == Memory); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}

	if err := applySchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	s := &Store{db: db}
	last, err := s.lastPosition(context.Background())
	if err != nil {
		db.Close()
		return nil, err
	}
	s.pos.Store(last)
	return s, nil
}

// OpenMemory opens an in-memory store.
func OpenMemory() (*Store, error) {
	return Open(Memory)
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// DB returns the underlying sql.DB for direct queries.
func (s *Store) DB() *sql.DB {
	return s.db
}

func (s *Store) nextPosition() int64 {
	return s.pos.Add(1)
}

func (s *Store) lastPosition(ctx context.Context) (int64, error) {
	var last int64
	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(MAX(position), 0) FROM (
			SELECT position FROM digests
			UNION ALL
			SELECT position FROM evaluations
		)
	`).Scan(&last)
	if err != nil {
		return 0, fmt.Errorf("read last position: %w", err)
	}
	return last, nil
}

func applyPragmas(db *sql.DB, memory bool) error {
	pragmas := []string{
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}
	if !memory {
		pragmas = append([]string{"PRAGMA journal_mode = WAL"}, pragmas...)
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}

	return nil
}

// applySchema creates tables if they don't exist and records the schema
// version. This function is idempotent.
func applySchema(db *sql.DB) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}

	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}
	if version > currentSchemaVersion {
		return fmt.Errorf("database schema version %d is newer than supported version %d", version, currentSchemaVersion)
	}
	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}

	return nil
}

// verifyPragma checks that a pragma is set to the expected value.
// Used for testing.
func (s *Store) verifyPragma(name, expected string) error {
	var value string
	query := fmt.Sprintf("PRAGMA %s", name)
	if err := s.db.QueryRow(query).Scan(&value); err != nil {
		return fmt.Errorf("failed to query %s: %w", name, err)
	}
	if value != expected {
		return fmt.Errorf("%s = %q, expected %q", name, value, expected)
	}
	return nil
}
