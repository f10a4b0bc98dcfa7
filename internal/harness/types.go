package harness

// Trace event types.
const (
	TraceEvaluation = "evaluation"
	TraceCompletion = "completion"
	TraceDigest     = "digest"
)

// TraceEvent is one recorded evaluation, async completion or digest pass,
// with node ids resolved to model and binding names.
type TraceEvent struct {
	Type string `json:"type"`
	Seq  int64  `json:"seq"`

	// Evaluation and completion fields.
	Ordinal int    `json:"ordinal,omitempty"`
	Model   string `json:"model,omitempty"`
	Func    string `json:"fn,omitempty"` // binding label
	Output  string `json:"output,omitempty"`
	Mode    string `json:"mode,omitempty"`
	Value   string `json:"value,omitempty"` // canonical JSON of the written value

	// Digest fields.
	Trigger   string `json:"trigger,omitempty"`
	Dirty     int    `json:"dirty,omitempty"`
	Evaluated int    `json:"evaluated,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Ref returns "model.label" for evaluations and completions.
func (e TraceEvent) Ref() string {
	return e.Model + "." + e.Func
}

// Result is the outcome of a test scenario execution.
type Result struct {
	// Pass indicates overall test success.
	// True if every expect step and assertion matched.
	Pass bool `json:"pass"`

	// Trace contains every recorded event in write order.
	Trace []TraceEvent `json:"trace"`

	// Errors contains failure messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// State holds the assigned property values of every live model after
	// the last step, keyed by model name.
	State map[string]map[string]any `json:"state,omitempty"`

	// Notifications holds the listener deltas received per listened model.
	Notifications map[string][]map[string]any `json:"notifications,omitempty"`
}

// NewResult creates a new passing result.
// Used as the starting point for test execution.
func NewResult() *Result {
	return &Result{
		Pass:          true,
		Trace:         []TraceEvent{},
		Errors:        []string{},
		State:         make(map[string]map[string]any),
		Notifications: make(map[string][]map[string]any),
	}
}

// AddError adds a failure message and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// Digests returns the digest events of the trace.
func (r *Result) Digests() []TraceEvent {
	var out []TraceEvent
	for _, ev := range r.Trace {
		if ev.Type == TraceDigest {
			out = append(out, ev)
		}
	}
	return out
}
