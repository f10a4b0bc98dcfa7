package engine

import (
	"errors"
	"fmt"
	"strings"
)

// RuntimeError represents an error detected by the engine.
//
// Runtime errors include:
//   - Cycle detection: a binding would make a node depend on itself
//   - Callback failure: a reactive function returned an error or panicked
//   - Invalid binding: a binding or input spec has an unsupported shape
//   - Lifecycle misuse: declaring on a destroyed model, nested digests
//
// RuntimeError includes structured fields for diagnostics.
type RuntimeError struct {
	// Code identifies the error category.
	Code RuntimeErrorCode

	// Message is a human-readable description.
	Message string

	// Node is the graph node involved, if any.
	Node string

	// Model is the owning model id, if any.
	Model int64

	// Details contains additional context.
	Details map[string]string

	// Err is the underlying cause, if any.
	Err error
}

// RuntimeErrorCode categorizes runtime errors.
type RuntimeErrorCode string

const (
	// ErrCodeCycleDetected indicates a dependency cycle through a function node.
	ErrCodeCycleDetected RuntimeErrorCode = "CYCLE_DETECTED"

	// ErrCodeCallbackFailed indicates a reactive function returned an error or panicked.
	ErrCodeCallbackFailed RuntimeErrorCode = "CALLBACK_FAILED"

	// ErrCodeInvalidBinding indicates a binding or input spec is malformed.
	ErrCodeInvalidBinding RuntimeErrorCode = "INVALID_BINDING"

	// ErrCodeDuplicateProperty indicates a property name is already declared.
	ErrCodeDuplicateProperty RuntimeErrorCode = "DUPLICATE_PROPERTY"

	// ErrCodeUnknownProperty indicates a write to a property that was never declared.
	ErrCodeUnknownProperty RuntimeErrorCode = "UNKNOWN_PROPERTY"

	// ErrCodeModelDestroyed indicates an operation on a destroyed model.
	ErrCodeModelDestroyed RuntimeErrorCode = "MODEL_DESTROYED"

	// ErrCodeDigestRunning indicates Digest was called while a pass is running.
	ErrCodeDigestRunning RuntimeErrorCode = "DIGEST_RUNNING"

	// ErrCodePassLimit indicates scheduled digests kept re-arming themselves.
	ErrCodePassLimit RuntimeErrorCode = "PASS_LIMIT_EXCEEDED"
)

// Error implements the error interface.
func (e *RuntimeError) Error() string {
	if e.Node != "" {
		return fmt.Sprintf("%s: %s (node=%s)", e.Code, e.Message, e.Node)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *RuntimeError) Unwrap() error {
	return e.Err
}

// DigestError reports a digest pass aborted by a failing reactive function.
// Writes applied before the failing node are kept.
type DigestError struct {
	Seq    int64  // digest pass sequence number
	Node   string // failing function node
	Model  int64  // owning model id
	Output string // output property name, empty for side effects
	Err    error
}

// Error implements the error interface.
func (e *DigestError) Error() string {
	return fmt.Sprintf("digest %d: function %s (model=%d, output=%q): %v",
		e.Seq, e.Node, e.Model, e.Output, e.Err)
}

// Unwrap returns the underlying callback error.
func (e *DigestError) Unwrap() error {
	return e.Err
}

// IsCycleError returns true if the error is a cycle detection error.
// Uses errors.As to handle wrapped errors.
func IsCycleError(err error) bool {
	return hasCode(err, ErrCodeCycleDetected)
}

// IsCallbackError returns true if a reactive function failed.
func IsCallbackError(err error) bool {
	var de *DigestError
	if errors.As(err, &de) {
		return true
	}
	return hasCode(err, ErrCodeCallbackFailed)
}

// IsDestroyedError returns true if the operation targeted a destroyed model.
func IsDestroyedError(err error) bool {
	return hasCode(err, ErrCodeModelDestroyed)
}

// IsPassLimitError returns true if the scheduled digest budget was exhausted.
func IsPassLimitError(err error) bool {
	if hasCode(err, ErrCodePassLimit) {
		return true
	}
	var pe *PassLimitError
	return errors.As(err, &pe)
}

// ErrorCode extracts the RuntimeErrorCode from err, or "" if none.
func ErrorCode(err error) RuntimeErrorCode {
	var re *RuntimeError
	if errors.As(err, &re) {
		return re.Code
	}
	return ""
}

func hasCode(err error, code RuntimeErrorCode) bool {
	var re *RuntimeError
	if errors.As(err, &re) {
		return re.Code == code
	}
	return false
}

// NewCycleError creates a RuntimeError for a cycle through node.
func NewCycleError(node string, modelID int64, path []string) *RuntimeError {
	return &RuntimeError{
		Code:    ErrCodeCycleDetected,
		Message: "binding would create a dependency cycle",
		Node:    node,
		Model:   modelID,
		Details: map[string]string{
			"path": strings.Join(path, " -> "),
		},
	}
}

func newCallbackError(node string, modelID int64, cause error) *RuntimeError {
	return &RuntimeError{
		Code:    ErrCodeCallbackFailed,
		Message: cause.Error(),
		Node:    node,
		Model:   modelID,
		Err:     cause,
	}
}

func newDestroyedError(modelID int64, op string) *RuntimeError {
	return &RuntimeError{
		Code:    ErrCodeModelDestroyed,
		Message: fmt.Sprintf("%s on destroyed model", op),
		Model:   modelID,
	}
}
