package runner

import (
	"errors"
	"fmt"

	"github.com/roach88/consim/internal/compiler"
	"github.com/roach88/consim/internal/parser"
)

// Stage names the step of RunProtocol that failed.
type Stage string

const (
	StageLoad     Stage = "load"
	StageParse    Stage = "parse"
	StageValidate Stage = "validate"
	StageCompile  Stage = "compile"
	StageSimulate Stage = "simulate"
)

// Error is the user-facing form of any RunProtocol failure. Line is the
// protocol source line when one is known, otherwise 0.
type Error struct {
	Stage   Stage
	Line    int
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("%s error at line %d: %s", e.Stage, e.Line, e.Message)
	}
	return fmt.Sprintf("%s error: %s", e.Stage, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// wrap converts err into a *Error unless debug asks for the raw error.
func wrap(stage Stage, err error, debug bool) error {
	if err == nil || debug {
		return err
	}
	e := &Error{Stage: stage, Message: err.Error(), Err: err}

	var pe *parser.ParseError
	var ee *compiler.EvaluationError
	switch {
	case errors.As(err, &pe):
		e.Line = pe.Line
		e.Message = pe.Message
	case errors.As(err, &ee) && ee.NodeID > 0:
		e.Message = fmt.Sprintf("%s in round %d at process %d: %s", ee.Code, ee.Round, ee.NodeID, ee.Message)
	case errors.As(err, &ee):
		e.Message = fmt.Sprintf("%s: %s", ee.Code, ee.Message)
	default:
		if verrs := compiler.ValidationErrors(err); len(verrs) > 0 {
			e.Message = verrs[0].Error()
			if len(verrs) > 1 {
				e.Message = fmt.Sprintf("%s (and %d more)", e.Message, len(verrs)-1)
			}
		}
	}
	return e
}
