package engine

import (
	"errors"
	"fmt"
)

// RuntimeError is a failure detected while a run executes.
//
// Evaluation failures keep the underlying *compiler.EvaluationError
// reachable through Unwrap, so compiler.IsEvaluationError still matches.
type RuntimeError struct {
	Code    RuntimeErrorCode
	Message string
	Round   int
	NodeID  int
	Err     error
}

// RuntimeErrorCode categorizes runtime errors.
type RuntimeErrorCode string

const (
	// ErrCodeInvalidSpec indicates the compiled spec cannot be run.
	ErrCodeInvalidSpec RuntimeErrorCode = "INVALID_SPEC"

	// ErrCodeEvaluation indicates a rule failed to evaluate.
	ErrCodeEvaluation RuntimeErrorCode = "EVALUATION_FAILED"

	// ErrCodeTopology indicates a topology returned an unknown neighbor.
	ErrCodeTopology RuntimeErrorCode = "INVALID_TOPOLOGY"
)

func (e *RuntimeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Code, e.Err)
	}
	if e.NodeID > 0 {
		return fmt.Sprintf("%s: %s (node=%d, round=%d)", e.Code, e.Message, e.NodeID, e.Round)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *RuntimeError) Unwrap() error {
	return e.Err
}

// IsRuntimeError returns true if err is or wraps a *RuntimeError.
func IsRuntimeError(err error) bool {
	var re *RuntimeError
	return errors.As(err, &re)
}

// IsInvalidSpecError returns true if err reports an unrunnable spec.
func IsInvalidSpecError(err error) bool {
	var re *RuntimeError
	if errors.As(err, &re) {
		return re.Code == ErrCodeInvalidSpec
	}
	return false
}

func invalidSpec(format string, args ...any) *RuntimeError {
	return &RuntimeError{
		Code:    ErrCodeInvalidSpec,
		Message: fmt.Sprintf(format, args...),
	}
}

func evaluationFailed(node, round int, err error) *RuntimeError {
	return &RuntimeError{
		Code:    ErrCodeEvaluation,
		Message: "rule evaluation failed",
		Round:   round,
		NodeID:  node,
		Err:     err,
	}
}
