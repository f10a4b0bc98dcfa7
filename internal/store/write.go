package store

import (
	"context"
	"fmt"

	"github.com/roach88/rxmodel/internal/ir"
)

// RecordDigest inserts a digest record. Uses ON CONFLICT(run_id, seq) DO
// NOTHING: a second record for the same pass is silently ignored.
func (s *Store) RecordDigest(ctx context.Context, d ir.DigestRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO digests
		(run_id, seq, trigger, dirty, evaluated, error, position)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id, seq) DO NOTHING
	`,
		d.RunID,
		d.Seq,
		string(d.Trigger),
		d.Dirty,
		d.Evaluated,
		d.Error,
		s.nextPosition(),
	)
	if err != nil {
		return fmt.Errorf("record digest: %w", err)
	}
	return nil
}

// RecordEvaluation appends one function evaluation or async completion.
func (s *Store) RecordEvaluation(ctx context.Context, ev ir.Evaluation) error {
	if ev.Node == "" {
		return fmt.Errorf("record evaluation: empty node id")
	}

	completion := 0
	if ev.Completion {
		completion = 1
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO evaluations
		(run_id, digest_seq, ordinal, node, model_id, output, mode, completion, value, position)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		ev.RunID,
		ev.DigestSeq,
		ev.Ordinal,
		ev.Node,
		ev.ModelID,
		ev.Output,
		string(ev.Mode),
		completion,
		ev.Value,
		s.nextPosition(),
	)
	if err != nil {
		return fmt.Errorf("record evaluation: %w", err)
	}
	return nil
}
