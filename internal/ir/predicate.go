package ir

// Predicate is a sealed interface for inbox predicate nodes.
type Predicate interface {
	predicateNode() // Marker method - seals interface to this package
}

// CompareOp is a comparison operator.
type CompareOp string

const (
	CmpGE CompareOp = ">="
	CmpLE CompareOp = "<="
	CmpNE CompareOp = "!="
	CmpEQ CompareOp = "=="
	CmpGT CompareOp = ">"
	CmpLT CompareOp = "<"
)

// CompareOps lists comparison operators longest first, the order in which
// the parser must try them.
var CompareOps = []CompareOp{CmpGE, CmpLE, CmpNE, CmpEQ, CmpGT, CmpLT}

// LogicOp is a logical connective.
type LogicOp string

const (
	LogicAnd LogicOp = "and"
	LogicOr  LogicOp = "or"
	LogicNot LogicOp = "not"
)

// ReceivedAny holds when at least one message arrived this round.
type ReceivedAny struct{}

func (ReceivedAny) predicateNode() {}

// ReceivedAll holds when a message arrived from every other process.
type ReceivedAll struct{}

func (ReceivedAll) predicateNode() {}

// ReceivedAtLeast holds when at least K messages arrived.
type ReceivedAtLeast struct {
	K int
}

func (ReceivedAtLeast) predicateNode() {}

// ReceivedMajority holds when the process together with its senders forms a
// strict majority of all processes.
type ReceivedMajority struct{}

func (ReceivedMajority) predicateNode() {}

// ReceivedDiff holds when some received value differs from the process's
// pre-round value of Var.
type ReceivedDiff struct {
	Var string
}

func (ReceivedDiff) predicateNode() {}

// ReceivedFrom holds when a message from Sender arrived.
type ReceivedFrom struct {
	Sender int
}

func (ReceivedFrom) predicateNode() {}

// IsLeader holds on the process named by the leader parameter.
type IsLeader struct{}

func (IsLeader) predicateNode() {}

// Comparison compares two expressions.
type Comparison struct {
	Op    CompareOp
	Left  Expr
	Right Expr
}

func (Comparison) predicateNode() {}

// Logical combines predicates. Not takes exactly one operand; And and Or
// take two or more and are evaluated left to right with short-circuiting.
type Logical struct {
	Op       LogicOp
	Operands []Predicate
}

func (Logical) predicateNode() {}
