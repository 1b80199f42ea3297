package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/roach88/consim/internal/compiler"
	"github.com/roach88/consim/internal/ir"
	"github.com/roach88/consim/internal/parser"
)

// LoadError represents a protocol file that could not be read, parsed or
// validated.
type LoadError struct {
	Code    string
	Message string
	Path    string
	Line    int // 0 when unknown
	Details []compiler.ValidationError
}

func (e *LoadError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("%s:%d: %s: %s", e.Path, e.Line, e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s: %s", e.Path, e.Code, e.Message)
}

// LoadedProtocol is a parsed protocol file.
type LoadedProtocol struct {
	Path   string
	Source string
	IR     *ir.ProtocolIR
}

// LoadProtocol reads and parses a protocol file. With validate set, the
// static checks must pass too.
func LoadProtocol(path string, validate bool) (*LoadedProtocol, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, &LoadError{Code: ErrCodeNotFound, Path: path, Message: "protocol file not found"}
	}
	if err != nil {
		return nil, &LoadError{Code: ErrCodeGeneric, Path: path, Message: err.Error()}
	}

	source := string(data)
	protocol, err := parser.Parse(source)
	if err != nil {
		var pe *parser.ParseError
		if errors.As(err, &pe) {
			return nil, &LoadError{Code: ErrCodeParse, Path: path, Line: pe.Line, Message: pe.Message}
		}
		return nil, &LoadError{Code: ErrCodeParse, Path: path, Message: err.Error()}
	}

	if validate {
		if err := compiler.Validate(protocol); err != nil {
			verrs := compiler.ValidationErrors(err)
			msg := err.Error()
			if len(verrs) > 0 {
				msg = verrs[0].Error()
				if len(verrs) > 1 {
					msg = fmt.Sprintf("%s (and %d more)", msg, len(verrs)-1)
				}
			}
			return nil, &LoadError{Code: ErrCodeValidation, Path: path, Message: msg, Details: verrs}
		}
	}
	return &LoadedProtocol{Path: path, Source: source, IR: protocol}, nil
}

// reportError prints an error in the configured format and returns an
// ExitError carrying exitCode. Commands report every failure through it so
// main only prints errors that never reached a formatter.
func reportError(f *OutputFormatter, exitCode int, code, message string, details any) error {
	if err := f.Error(code, message, details); err != nil {
		return err
	}
	return NewExitError(exitCode, message)
}

// reportLoadError reports a LoadError with its code; other errors are
// generic.
func reportLoadError(f *OutputFormatter, err error) error {
	var le *LoadError
	if !errors.As(err, &le) {
		return reportError(f, ExitCommandError, ErrCodeGeneric, err.Error(), nil)
	}
	exit := ExitFailure
	if le.Code == ErrCodeNotFound || le.Code == ErrCodeGeneric {
		exit = ExitCommandError
	}
	var details any
	if len(le.Details) > 0 {
		details = le.Details
	}
	return reportError(f, exit, le.Code, le.Error(), details)
}
