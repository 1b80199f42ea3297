package ir

// Update is a sealed interface for update-rule nodes.
type Update interface {
	updateNode() // Marker method - seals interface to this package
}

// SimpleOpKind is a legacy one-word update rule.
type SimpleOpKind string

const (
	SimpleAverage  SimpleOpKind = "average"
	SimpleMin      SimpleOpKind = "min"
	SimpleMax      SimpleOpKind = "max"
	SimpleMidpoint SimpleOpKind = "midpoint"
)

// Conditional runs Then when Cond holds and Else otherwise.
type Conditional struct {
	Cond Predicate
	Then Update
	Else Update
}

func (Conditional) updateNode() {}

// ConditionalNoElse runs Then when Cond holds and leaves the value unchanged
// otherwise.
type ConditionalNoElse struct {
	Cond Predicate
	Then Update
}

func (ConditionalNoElse) updateNode() {}

// Assign sets the state variable Target to Value.
type Assign struct {
	Target string
	Value  Expr
}

func (Assign) updateNode() {}

// SimpleOp applies a legacy operation over the inbox plus the process's own
// value.
type SimpleOp struct {
	Op SimpleOpKind
}

func (SimpleOp) updateNode() {}

// IfReceivedDiff assigns Then when a differing value was received this round
// and Else otherwise.
type IfReceivedDiff struct {
	Then Expr
	Else Expr
}

func (IfReceivedDiff) updateNode() {}
