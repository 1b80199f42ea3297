package ir

// Expr is a sealed interface for arithmetic expression nodes.
//
// Expr types:
//   - SelfValue: the evaluating process's current value
//   - ParamRef: a named protocol parameter
//   - Literal: a numeric constant
//   - BinaryOp: +, -, *, / over two sub-expressions
//   - Aggregate: sum/avg/min/max/count over inbox values
//   - ReceivedOther: a received value that differs from the process's own
//   - ValueFrom: the value received from one specific sender
type Expr interface {
	exprNode() // Marker method - seals interface to this package
}

// ArithOp is a binary arithmetic operator.
type ArithOp string

const (
	OpAdd ArithOp = "+"
	OpSub ArithOp = "-"
	OpMul ArithOp = "*"
	OpDiv ArithOp = "/"
)

// AggFunc is an aggregation function.
type AggFunc string

const (
	AggSum   AggFunc = "sum"
	AggAvg   AggFunc = "avg"
	AggMin   AggFunc = "min"
	AggMax   AggFunc = "max"
	AggCount AggFunc = "count"
)

// AggSource selects the value set an Aggregate ranges over.
type AggSource string

const (
	SourceInbox         AggSource = "inbox"
	SourceInboxWithSelf AggSource = "inbox_with_self"
	SourceFiltered      AggSource = "filtered"
)

// SelfValue refers to the evaluating process's value.
type SelfValue struct{}

func (SelfValue) exprNode() {}

// ParamRef refers to a named parameter.
type ParamRef struct {
	Name string
}

func (ParamRef) exprNode() {}

// Literal is a numeric constant.
type Literal struct {
	Value float64
}

func (Literal) exprNode() {}

// BinaryOp applies Op to Left and Right.
// Division by exactly zero is an evaluation error, never coerced.
type BinaryOp struct {
	Op    ArithOp
	Left  Expr
	Right Expr
}

func (BinaryOp) exprNode() {}

// Aggregate applies Func over a set of received values.
//
// For SourceFiltered only messages whose sender is in Senders are used;
// IncludeSelf adds the process's own value to the set.
type Aggregate struct {
	Func        AggFunc
	Source      AggSource
	Senders     []int
	IncludeSelf bool
}

func (Aggregate) exprNode() {}

// ReceivedOther yields the first inbox value (in sender order) that differs
// from the process's pre-round value, or the process's own value when none does.
type ReceivedOther struct{}

func (ReceivedOther) exprNode() {}

// ValueFrom yields the value received from Sender this round.
type ValueFrom struct {
	Sender int
}

func (ValueFrom) exprNode() {}
