package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/rxmodel/internal/ir"
)

// ErrNotFound is returned by single-record reads that match nothing.
var ErrNotFound = errors.New("store: record not found")

// ReadDigests returns the digest records of a run ordered by seq.
// Returns an empty slice (not nil) when the run has no records.
func (s *Store) ReadDigests(ctx context.Context, runID string) ([]ir.DigestRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, seq, trigger, dirty, evaluated, error
		FROM digests
		WHERE run_id = ?
		ORDER BY seq ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("query digests: %w", err)
	}
	defer rows.Close()

	digests := []ir.DigestRecord{}
	for rows.Next() {
		d, err := scanDigest(rows)
		if err != nil {
			return nil, err
		}
		digests = append(digests, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate digests: %w", err)
	}
	return digests, nil
}

// ReadDigest retrieves one digest record. Returns ErrNotFound if absent.
func (s *Store) ReadDigest(ctx context.Context, runID string, seq int64) (ir.DigestRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT run_id, seq, trigger, dirty, evaluated, error
		FROM digests
		WHERE run_id = ? AND seq = ?
	`, runID, seq)

	d, err := scanDigest(row)
	if errors.Is(err, sql.ErrNoRows) {
		return d, fmt.Errorf("digest %s/%d: %w", runID, seq, ErrNotFound)
	}
	return d, err
}

// ReadEvaluations returns every evaluation of a run in the order it was
// recorded. Async completions sit where they were applied, after the pass
// that started them.
func (s *Store) ReadEvaluations(ctx context.Context, runID string) ([]ir.Evaluation, error) {
	return s.queryEvaluations(ctx, `
		SELECT run_id, digest_seq, ordinal, node, model_id, output, mode, completion, value
		FROM evaluations
		WHERE run_id = ?
		ORDER BY position ASC
	`, runID)
}

// ReadPassEvaluations returns the in-pass evaluations of one digest by
// ordinal. Completions are excluded.
func (s *Store) ReadPassEvaluations(ctx context.Context, runID string, seq int64) ([]ir.Evaluation, error) {
	return s.queryEvaluations(ctx, `
		SELECT run_id, digest_seq, ordinal, node, model_id, output, mode, completion, value
		FROM evaluations
		WHERE run_id = ? AND digest_seq = ? AND completion = 0
		ORDER BY ordinal ASC
	`, runID, seq)
}

// ReadNodeEvaluations returns every evaluation of one function node.
func (s *Store) ReadNodeEvaluations(ctx context.Context, runID, node string) ([]ir.Evaluation, error) {
	return s.queryEvaluations(ctx, `
		SELECT run_id, digest_seq, ordinal, node, model_id, output, mode, completion, value
		FROM evaluations
		WHERE run_id = ? AND node = ?
		ORDER BY position ASC
	`, runID, node)
}

func (s *Store) queryEvaluations(ctx context.Context, query string, args ...any) ([]ir.Evaluation, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query evaluations: %w", err)
	}
	defer rows.Close()

	evals := []ir.Evaluation{}
	for rows.Next() {
		ev, err := scanEvaluation(rows)
		if err != nil {
			return nil, err
		}
		evals = append(evals, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate evaluations: %w", err)
	}
	return evals, nil
}

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanDigest(row scanner) (ir.DigestRecord, error) {
	var (
		d       ir.DigestRecord
		trigger string
	)
	if err := row.Scan(&d.RunID, &d.Seq, &trigger, &d.Dirty, &d.Evaluated, &d.Error); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return d, err
		}
		return d, fmt.Errorf("scan digest: %w", err)
	}
	d.Trigger = ir.Trigger(trigger)
	return d, nil
}

func scanEvaluation(row scanner) (ir.Evaluation, error) {
	var (
		ev         ir.Evaluation
		mode       string
		completion int
	)
	err := row.Scan(&ev.RunID, &ev.DigestSeq, &ev.Ordinal, &ev.Node, &ev.ModelID,
		&ev.Output, &mode, &completion, &ev.Value)
	if err != nil {
		return ev, fmt.Errorf("scan evaluation: %w", err)
	}
	ev.Mode = ir.EvalMode(mode)
	ev.Completion = completion != 0
	return ev, nil
}
