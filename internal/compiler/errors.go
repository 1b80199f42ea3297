package compiler

import (
	"errors"
	"fmt"
)

// EvaluationError represents a failure while evaluating an update rule.
//
// Evaluation errors are fatal to the run in progress:
//   - Division by exactly zero
//   - A parameter missing from the bound parameters
//   - Aggregation over an empty value set
//   - is_leader without a leader role
//   - value_from naming a sender with no message this round
type EvaluationError struct {
	// Code identifies the error category.
	Code EvaluationErrorCode

	// Message is a human-readable description.
	Message string

	// NodeID is the evaluating process, 0 when not known.
	NodeID int

	// Round is the round being evaluated, 0 during initialization.
	Round int
}

// EvaluationErrorCode categorizes evaluation errors.
type EvaluationErrorCode string

const (
	ErrCodeDivisionByZero   EvaluationErrorCode = "DIVISION_BY_ZERO"
	ErrCodeMissingParameter EvaluationErrorCode = "MISSING_PARAMETER"
	ErrCodeEmptyAggregation EvaluationErrorCode = "EMPTY_AGGREGATION"
	ErrCodeMissingLeader    EvaluationErrorCode = "MISSING_LEADER"
	ErrCodeMissingMessage   EvaluationErrorCode = "MISSING_MESSAGE"
	ErrCodeMalformedRule    EvaluationErrorCode = "MALFORMED_RULE"
)

// Error implements the error interface.
func (e *EvaluationError) Error() string {
	if e.NodeID > 0 {
		return fmt.Sprintf("%s: %s (node=%d, round=%d)", e.Code, e.Message, e.NodeID, e.Round)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// IsEvaluationError returns true if err is or wraps an EvaluationError.
func IsEvaluationError(err error) bool {
	var ee *EvaluationError
	return errors.As(err, &ee)
}

// HasCode returns true if err wraps an EvaluationError with the given code.
func HasCode(err error, code EvaluationErrorCode) bool {
	var ee *EvaluationError
	if errors.As(err, &ee) {
		return ee.Code == code
	}
	return false
}

func (c *Context) fail(code EvaluationErrorCode, format string, args ...any) *EvaluationError {
	return &EvaluationError{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		NodeID:  c.NodeID,
		Round:   c.Round,
	}
}
