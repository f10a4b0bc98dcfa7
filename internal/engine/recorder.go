package engine

import (
	"context"
	"fmt"

	"github.com/roach88/rxmodel/internal/ir"
)

// Recorder receives the digest trace. The store package provides a SQLite
// implementation; the default discards everything.
//
// Recorder methods are called without the engine lock held. A recording
// failure is logged and never changes digest semantics.
type Recorder interface {
	RecordDigest(ctx context.Context, d ir.DigestRecord) error
	RecordEvaluation(ctx context.Context, ev ir.Evaluation) error
}

type nopRecorder struct{}

func (nopRecorder) RecordDigest(context.Context, ir.DigestRecord) error  { return nil }
func (nopRecorder) RecordEvaluation(context.Context, ir.Evaluation) error { return nil }

// traceValue renders a written value for the trace. Values the canonical
// encoder cannot represent are recorded as their quoted %v form.
func traceValue(v any) string {
	b, err := ir.MarshalCanonical(v)
	if err != nil {
		b = ir.MustMarshalCanonical(fmt.Sprintf("%v", v))
	}
	return string(b)
}
