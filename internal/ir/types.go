package ir

// ModelSpec represents a compiled declarative model definition.
type ModelSpec struct {
	Name       string         `json:"name"`
	Properties []PropertySpec `json:"properties"`
	Bindings   []BindingSpec  `json:"bindings"`
}

// PropertySpec declares one property of a model.
// HasDefault distinguishes "no default" from an explicit null default.
type PropertySpec struct {
	Name       string `json:"name"`
	Default    any    `json:"default,omitempty"`
	HasDefault bool   `json:"has_default"`
	Expose     bool   `json:"expose"`
}

// BindingSpec declares one reactive function of a model by library name.
// Output is empty for side-effecting functions.
type BindingSpec struct {
	Label  string   `json:"label"`
	Output string   `json:"output,omitempty"`
	Func   string   `json:"fn"`
	Inputs []string `json:"inputs"`
}

// Property returns the named property spec, if declared.
func (s *ModelSpec) Property(name string) (PropertySpec, bool) {
	for _, p := range s.Properties {
		if p.Name == name {
			return p, true
		}
	}
	return PropertySpec{}, false
}

// Trigger identifies what started a digest pass.
type Trigger string

const (
	// TriggerExplicit is a digest run synchronously by Engine.Digest.
	TriggerExplicit Trigger = "explicit"

	// TriggerScheduled is a digest run by the coalescing deferred task.
	TriggerScheduled Trigger = "scheduled"
)

// DigestRecord summarizes one digest pass for the trace recorder.
// Seq is the engine's logical digest counter, never a wall-clock time.
type DigestRecord struct {
	RunID     string  `json:"run_id"`
	Seq       int64   `json:"seq"`
	Trigger   Trigger `json:"trigger"`
	Dirty     int     `json:"dirty"`
	Evaluated int     `json:"evaluated"`
	Error     string  `json:"error,omitempty"`
}

// EvalMode is the execution mode of a reactive function.
type EvalMode string

const (
	ModeSync  EvalMode = "sync"
	ModeAsync EvalMode = "async"
)

// Evaluation records one reactive function invocation inside a digest pass,
// or the application of an asynchronous completion (Completion=true) which
// happens between passes and carries the seq of the pass that started it.
type Evaluation struct {
	RunID      string   `json:"run_id"`
	DigestSeq  int64    `json:"digest_seq"`
	Ordinal    int      `json:"ordinal"`
	Node       string   `json:"node"`
	ModelID    int64    `json:"model_id"`
	Output     string   `json:"output,omitempty"`
	Mode       EvalMode `json:"mode"`
	Completion bool     `json:"completion"`
	Value      string   `json:"value,omitempty"` // canonical JSON of the written value
}
