package engine

import "fmt"

// DefaultMaxPasses is the default bound on consecutive scheduled digests
// that were re-armed by their own pass.
const DefaultMaxPasses = 1000

// passBudget counts scheduled digests that re-armed themselves.
//
// A listener or async callback that writes on every pass keeps the scheduler
// busy forever. The budget stops the chain after maxPasses and reports a
// PassLimitError. Any pass that does not re-arm resets the count.
type passBudget struct {
	maxPasses int
	current   int
}

func newPassBudget(maxPasses int) *passBudget {
	return &passBudget{maxPasses: maxPasses}
}

// Check counts one self-rearming pass. It returns PassLimitError once the
// count exceeds the limit, and resets itself so a later external write can
// start a new chain.
func (b *passBudget) Check(seq int64) error {
	b.current++
	if b.maxPasses > 0 && b.current > b.maxPasses {
		err := &PassLimitError{Seq: seq, Passes: b.current, Limit: b.maxPasses}
		b.current = 0
		return err
	}
	return nil
}

// Reset resets the counter to 0.
func (b *passBudget) Reset() {
	b.current = 0
}

// Current returns the current count.
func (b *passBudget) Current() int {
	return b.current
}

// PassLimitError is returned when scheduled digests keep re-arming past the
// configured limit. The engine stops scheduling; pending dirty properties
// stay pending until the next write or explicit Digest.
type PassLimitError struct {
	Seq    int64 // last pass that ran
	Passes int   // consecutive self-rearming passes
	Limit  int
}

// Error implements the error interface.
func (e *PassLimitError) Error() string {
	return fmt.Sprintf("%s: digest %d re-armed %d consecutive passes (limit %d)",
		ErrCodePassLimit, e.Seq, e.Passes, e.Limit)
}
