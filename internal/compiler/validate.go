package compiler

import (
	"errors"
	"fmt"

	"github.com/hashicorp/go-multierror"

	"github.com/roach88/consim/internal/delivery"
	"github.com/roach88/consim/internal/ir"
)

// Validation error codes (E200-E299)
const (
	ErrNoProcesses      = "E200" // num_processes must be positive
	ErrInitializer      = "E201" // exactly one initializer, sized to num_processes
	ErrUndefinedParam   = "E202" // parameter referenced but not defined
	ErrDuplicateEnd     = "E203" // more than one END phase
	ErrInvalidDelivery  = "E204" // malformed delivery model set
	ErrInvalidProcessID = "E205" // process id outside 1..num_processes
	ErrInvalidPhase     = "E206" // malformed phase
	ErrNoMetrics        = "E207" // metrics must be non-empty
	ErrStateVar         = "E208" // rule refers to a variable other than the state variable
	ErrInvalidLogical   = "E209" // wrong operand count for a logical operator
	ErrMissingNode      = "E210" // nil expression, predicate or rule
)

// ValidationError represents a static protocol check failure.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

// Validate checks a protocol before it is compiled.
// Returns all errors found (does not fail-fast) as a *multierror.Error,
// or nil when the protocol is valid.
func Validate(p *ir.ProtocolIR) error {
	v := &validator{p: p}
	v.run()
	return v.errs.ErrorOrNil()
}

// ValidationErrors unpacks the errors returned by Validate.
func ValidationErrors(err error) []ValidationError {
	var out []ValidationError
	var merr *multierror.Error
	if errors.As(err, &merr) {
		for _, e := range merr.Errors {
			if ve, ok := e.(ValidationError); ok {
				out = append(out, ve)
			}
		}
	}
	return out
}

type validator struct {
	p    *ir.ProtocolIR
	errs *multierror.Error
}

func (v *validator) add(code, field, format string, args ...any) {
	v.errs = multierror.Append(v.errs, ValidationError{
		Field:   field,
		Message: fmt.Sprintf(format, args...),
		Code:    code,
	})
}

func (v *validator) run() {
	p := v.p

	// E200: processes
	if p.NumProcesses < 1 {
		v.add(ErrNoProcesses, "num_processes", "must be positive, got %d", p.NumProcesses)
	}

	// E201: initializer
	switch {
	case p.InitValues != nil && p.InitRule != nil:
		v.add(ErrInitializer, "init", "init_values and init_rule are mutually exclusive")
	case p.InitValues == nil && p.InitRule == nil:
		v.add(ErrInitializer, "init", "one of init_values or init_rule is required")
	case p.InitValues != nil && len(p.InitValues) != p.NumProcesses:
		v.add(ErrInitializer, "init_values", "has %d values, num_processes is %d", len(p.InitValues), p.NumProcesses)
	case p.InitRule != nil:
		v.expr(p.InitRule, "init_rule", true)
	}

	// E207: metrics
	if len(p.Metrics) == 0 {
		v.add(ErrNoMetrics, "metrics", "at least one metric is required")
	}

	// E204: delivery models
	if _, err := delivery.NewPlan(p.DeliveryModels); err != nil {
		v.add(ErrInvalidDelivery, "delivery_models", "%v", err)
	}
	for i, spec := range p.DeliveryModels {
		if spec.ProcessID != nil {
			v.processID(*spec.ProcessID, fmt.Sprintf("delivery_models[%d].process_id", i))
		}
	}

	// Leader role must name a process.
	if leader, ok := p.Leader(); ok {
		v.processID(leader, "params.leader")
	}

	ends := 0
	for i, ph := range p.Phases {
		field := fmt.Sprintf("phases[%d]", i)
		switch ph.Kind {
		case ir.PhaseEnd:
			ends++
			if ends > 1 {
				v.add(ErrDuplicateEnd, field, "at most one END phase is allowed")
			}
		case ir.PhaseAfterRounds:
			if ph.After < 0 {
				v.add(ErrInvalidPhase, field+".after", "must be non-negative, got %d", ph.After)
			}
		case ir.PhaseEachRound, ir.PhaseFirstRound, ir.PhaseUntilConsensus:
		default:
			v.add(ErrInvalidPhase, field+".kind", "unknown phase kind %q", ph.Kind)
		}
		v.update(ph.Rule, field+".rule")
	}
}

func (v *validator) processID(id int, field string) {
	if id < 1 || id > v.p.NumProcesses {
		v.add(ErrInvalidProcessID, field, "process id %d outside 1..%d", id, v.p.NumProcesses)
	}
}

// param checks a parameter reference. "n" is always bound; "i" only inside
// the INITIAL rule.
func (v *validator) param(name, field string, initRule bool) {
	if _, ok := v.p.Params[name]; ok {
		return
	}
	if name == ir.ParamNumNodes || (initRule && name == ir.ParamIndex) {
		return
	}
	v.add(ErrUndefinedParam, field, "parameter %q is not defined", name)
}

func (v *validator) expr(e ir.Expr, field string, initRule bool) {
	switch n := e.(type) {
	case nil:
		v.add(ErrMissingNode, field, "missing expression")
	case ir.ParamRef:
		v.param(n.Name, field, initRule)
	case ir.BinaryOp:
		v.expr(n.Left, field+".left", initRule)
		v.expr(n.Right, field+".right", initRule)
	case ir.Aggregate:
		for _, id := range n.Senders {
			v.processID(id, field+".senders")
		}
	case ir.ValueFrom:
		v.processID(n.Sender, field+".sender")
	}
}

func (v *validator) predicate(p ir.Predicate, field string) {
	switch n := p.(type) {
	case nil:
		v.add(ErrMissingNode, field, "missing predicate")
	case ir.ReceivedDiff:
		if n.Var != v.p.StateVar {
			v.add(ErrStateVar, field, "received_diff(%s) does not name the state variable %q", n.Var, v.p.StateVar)
		}
	case ir.ReceivedFrom:
		v.processID(n.Sender, field+".sender")
	case ir.ReceivedAtLeast:
		if n.K < 0 {
			v.add(ErrInvalidPhase, field+".k", "must be non-negative, got %d", n.K)
		}
	case ir.Comparison:
		v.expr(n.Left, field+".left", false)
		v.expr(n.Right, field+".right", false)
	case ir.Logical:
		switch {
		case n.Op == ir.LogicNot && len(n.Operands) != 1:
			v.add(ErrInvalidLogical, field, "not takes exactly one operand, got %d", len(n.Operands))
		case n.Op != ir.LogicNot && len(n.Operands) < 2:
			v.add(ErrInvalidLogical, field, "%s takes at least two operands, got %d", n.Op, len(n.Operands))
		}
		for i, operand := range n.Operands {
			v.predicate(operand, fmt.Sprintf("%s.operands[%d]", field, i))
		}
	}
}

func (v *validator) update(u ir.Update, field string) {
	switch n := u.(type) {
	case nil:
		v.add(ErrMissingNode, field, "missing rule")
	case ir.Conditional:
		v.predicate(n.Cond, field+".cond")
		v.update(n.Then, field+".then")
		v.update(n.Else, field+".else")
	case ir.ConditionalNoElse:
		v.predicate(n.Cond, field+".cond")
		v.update(n.Then, field+".then")
	case ir.Assign:
		if n.Target != v.p.StateVar {
			v.add(ErrStateVar, field+".target", "assignment target %q is not the state variable %q", n.Target, v.p.StateVar)
		}
		v.expr(n.Value, field+".value", false)
	case ir.IfReceivedDiff:
		v.expr(n.Then, field+".then", false)
		v.expr(n.Else, field+".else", false)
	}
}
