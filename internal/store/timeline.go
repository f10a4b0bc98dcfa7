package store

import (
	"cmp"
	"context"
	"fmt"
	"slices"

	"github.com/roach88/rxmodel/internal/ir"
)

// EventType distinguishes the records merged into a timeline.
type EventType int

const (
	EventEvaluation EventType = iota
	EventDigest
	EventCompletion
)

// String returns the event type as a string.
func (t EventType) String() string {
	switch t {
	case EventEvaluation:
		return "evaluation"
	case EventDigest:
		return "digest"
	case EventCompletion:
		return "completion"
	default:
		return "unknown"
	}
}

// Event is one entry of a run's timeline. Exactly one of Digest and
// Evaluation is set.
type Event struct {
	Type       EventType
	Seq        int64
	Position   int64
	Digest     *ir.DigestRecord
	Evaluation *ir.Evaluation
}

// Timeline returns every record of a run merged in the order it was written:
// a pass's evaluations, then its digest record, with async completions where
// they were applied.
func (s *Store) Timeline(ctx context.Context, runID string) ([]Event, error) {
	var events []Event

	drows, err := s.db.QueryContext(ctx, `
		SELECT run_id, seq, trigger, dirty, evaluated, error, position
		FROM digests
		WHERE run_id = ?
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("timeline: query digests: %w", err)
	}
	for drows.Next() {
		var (
			d       ir.DigestRecord
			trigger string
			pos     int64
		)
		if err := drows.Scan(&d.RunID, &d.Seq, &trigger, &d.Dirty, &d.Evaluated, &d.Error, &pos); err != nil {
			drows.Close()
			return nil, fmt.Errorf("timeline: scan digest: %w", err)
		}
		d.Trigger = ir.Trigger(trigger)
		events = append(events, Event{Type: EventDigest, Seq: d.Seq, Position: pos, Digest: &d})
	}
	if err := drows.Err(); err != nil {
		drows.Close()
		return nil, fmt.Errorf("timeline: iterate digests: %w", err)
	}
	drows.Close()

	erows, err := s.db.QueryContext(ctx, `
		SELECT run_id, digest_seq, ordinal, node, model_id, output, mode, completion, value, position
		FROM evaluations
		WHERE run_id = ?
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("timeline: query evaluations: %w", err)
	}
	defer erows.Close()
	for erows.Next() {
		var (
			ev         ir.Evaluation
			mode       string
			completion int
			pos        int64
		)
		err := erows.Scan(&ev.RunID, &ev.DigestSeq, &ev.Ordinal, &ev.Node, &ev.ModelID,
			&ev.Output, &mode, &completion, &ev.Value, &pos)
		if err != nil {
			return nil, fmt.Errorf("timeline: scan evaluation: %w", err)
		}
		ev.Mode = ir.EvalMode(mode)
		ev.Completion = completion != 0
		typ := EventEvaluation
		if ev.Completion {
			typ = EventCompletion
		}
		events = append(events, Event{Type: typ, Seq: ev.DigestSeq, Position: pos, Evaluation: &ev})
	}
	if err := erows.Err(); err != nil {
		return nil, fmt.Errorf("timeline: iterate evaluations: %w", err)
	}

	sortEvents(events)
	if events == nil {
		events = []Event{}
	}
	return events, nil
}

func sortEvents(events []Event) {
	slices.SortStableFunc(events, func(a, b Event) int {
		return cmp.Compare(a.Position, b.Position)
	})
}

// RunSummary aggregates the trace of one run.
type RunSummary struct {
	RunID       string
	Digests     int
	Failed      int
	Evaluations int
	Completions int
	LastSeq     int64
}

// Summarize returns counts for one run. A run with no records yields a
// zero summary carrying only the run id.
func (s *Store) Summarize(ctx context.Context, runID string) (RunSummary, error) {
	sum := RunSummary{RunID: runID}

	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(error != ''), 0), COALESCE(MAX(seq), 0)
		FROM digests WHERE run_id = ?
	`, runID).Scan(&sum.Digests, &sum.Failed, &sum.LastSeq)
	if err != nil {
		return sum, fmt.Errorf("summarize digests: %w", err)
	}

	err = s.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(completion = 0), 0), COALESCE(SUM(completion = 1), 0)
		FROM evaluations WHERE run_id = ?
	`, runID).Scan(&sum.Evaluations, &sum.Completions)
	if err != nil {
		return sum, fmt.Errorf("summarize evaluations: %w", err)
	}

	return sum, nil
}

// GetLastSeq returns the highest digest seq recorded for a run.
func (s *Store) GetLastSeq(ctx context.Context, runID string) (int64, error) {
	var maxSeq int64
	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(MAX(seq), 0) FROM digests WHERE run_id = ?
	`, runID).Scan(&maxSeq)
	if err != nil {
		return 0, fmt.Errorf("get last seq: %w", err)
	}
	return maxSeq, nil
}

// ListRuns returns every run id in the store in the order runs first
// appeared.
func (s *Store) ListRuns(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id FROM (
			SELECT run_id, MIN(position) AS first FROM digests GROUP BY run_id
			UNION ALL
			SELECT run_id, MIN(position) AS first FROM evaluations GROUP BY run_id
		)
		GROUP BY run_id
		ORDER BY MIN(first) ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	runs := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan run id: %w", err)
		}
		runs = append(runs, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}
