package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/consim/internal/ir"
)

func testParser() *parser {
	return &parser{stateVar: "x", n: 4}
}

func TestExpr(t *testing.T) {
	y := ir.ParamRef{Name: "y"}
	tests := []struct {
		in   string
		want ir.Expr
	}{
		{"x", ir.SelfValue{}},
		{"x_i", ir.SelfValue{}},
		{"x[i]", ir.SelfValue{}},
		{fold("xᵢ"), ir.SelfValue{}},
		{"self", ir.SelfValue{}},
		{"y", y},
		{"0.25", ir.Literal{Value: 0.25}},
		{"1e-9", ir.Literal{Value: 1e-9}},
		{"-2", ir.Literal{Value: -2}},
		{"-y", ir.BinaryOp{Op: ir.OpSub, Left: ir.Literal{Value: 0}, Right: y}},
		{"1 - 2 - 3", ir.BinaryOp{
			Op:    ir.OpSub,
			Left:  ir.BinaryOp{Op: ir.OpSub, Left: ir.Literal{Value: 1}, Right: ir.Literal{Value: 2}},
			Right: ir.Literal{Value: 3},
		}},
		{"1 + 2 * y", ir.BinaryOp{
			Op:    ir.OpAdd,
			Left:  ir.Literal{Value: 1},
			Right: ir.BinaryOp{Op: ir.OpMul, Left: ir.Literal{Value: 2}, Right: y},
		}},
		{"(1 + 2) * y", ir.BinaryOp{
			Op:    ir.OpMul,
			Left:  ir.BinaryOp{Op: ir.OpAdd, Left: ir.Literal{Value: 1}, Right: ir.Literal{Value: 2}},
			Right: y,
		}},
		{"x * -1", ir.BinaryOp{Op: ir.OpMul, Left: ir.SelfValue{}, Right: ir.Literal{Value: -1}}},
		{"2e-1 + 1", ir.BinaryOp{Op: ir.OpAdd, Left: ir.Literal{Value: 0.2}, Right: ir.Literal{Value: 1}}},
		{"received_other(x)", ir.ReceivedOther{}},
		{"value_from(3)", ir.ValueFrom{Sender: 3}},
		{"avg(inbox)", ir.Aggregate{Func: ir.AggAvg, Source: ir.SourceInbox}},
		{"sum(inbox ∪ {x})", ir.Aggregate{Func: ir.AggSum, Source: ir.SourceInboxWithSelf}},
		{"max(inbox + self)", ir.Aggregate{Func: ir.AggMax, Source: ir.SourceInboxWithSelf}},
		{"min(all)", ir.Aggregate{Func: ir.AggMin, Source: ir.SourceInboxWithSelf}},
		{"count(inbox_with_self)", ir.Aggregate{Func: ir.AggCount, Source: ir.SourceInboxWithSelf}},
		{"avg(inbox[1, 3])", ir.Aggregate{Func: ir.AggAvg, Source: ir.SourceFiltered, Senders: []int{1, 3}}},
		{"avg(inbox[2] ∪ {x})", ir.Aggregate{Func: ir.AggAvg, Source: ir.SourceFiltered, Senders: []int{2}, IncludeSelf: true}},
		{"avg(inbox) / 2", ir.BinaryOp{
			Op:    ir.OpDiv,
			Left:  ir.Aggregate{Func: ir.AggAvg, Source: ir.SourceInbox},
			Right: ir.Literal{Value: 2},
		}},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := testParser().expr(tt.in, 1)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestExpr_Errors(t *testing.T) {
	tests := []struct {
		in      string
		message string
	}{
		{"", "expected expression"},
		{"1 +", "missing operand"},
		{"avg(outbox)", "unknown aggregation source"},
		{"avg(inbox[5])", "out of range"},
		{"value_from(0)", "out of range"},
		{"inbox", "must be aggregated"},
		{"median(inbox)", "unknown function"},
		{"(1 + 2", "unclosed"},
		{"1 + 2)", "unbalanced"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			_, err := testParser().expr(tt.in, 3)
			require.Error(t, err)
			var pe *ParseError
			require.ErrorAs(t, err, &pe)
			assert.Equal(t, 3, pe.Line)
			assert.Contains(t, pe.Message, tt.message)
		})
	}
}

func TestPredicate(t *testing.T) {
	tests := []struct {
		in   string
		want ir.Predicate
	}{
		{"received_any", ir.ReceivedAny{}},
		{"received_all", ir.ReceivedAll{}},
		{"received_majority", ir.ReceivedMajority{}},
		{"received_at_least(2)", ir.ReceivedAtLeast{K: 2}},
		{"received_diff", ir.ReceivedDiff{Var: "x"}},
		{"received_diff(x)", ir.ReceivedDiff{Var: "x"}},
		{"received_from(4)", ir.ReceivedFrom{Sender: 4}},
		{"self is leader", ir.IsLeader{}},
		{"is_leader", ir.IsLeader{}},
		{"x >= 0.5", ir.Comparison{Op: ir.CmpGE, Left: ir.SelfValue{}, Right: ir.Literal{Value: 0.5}}},
		{"x < y", ir.Comparison{Op: ir.CmpLT, Left: ir.SelfValue{}, Right: ir.ParamRef{Name: "y"}}},
		{"x != 1", ir.Comparison{Op: ir.CmpNE, Left: ir.SelfValue{}, Right: ir.Literal{Value: 1}}},
		{fold("x ≤ 1"), ir.Comparison{Op: ir.CmpLE, Left: ir.SelfValue{}, Right: ir.Literal{Value: 1}}},
		{"count(inbox) = 3", ir.Comparison{Op: ir.CmpEQ, Left: ir.Aggregate{Func: ir.AggCount, Source: ir.SourceInbox}, Right: ir.Literal{Value: 3}}},
		{"not received_any", ir.Logical{Op: ir.LogicNot, Operands: []ir.Predicate{ir.ReceivedAny{}}}},
		{"received_any and not is_leader", ir.Logical{Op: ir.LogicAnd, Operands: []ir.Predicate{
			ir.ReceivedAny{},
			ir.Logical{Op: ir.LogicNot, Operands: []ir.Predicate{ir.IsLeader{}}},
		}}},
		{"received_all or received_any and is_leader", ir.Logical{Op: ir.LogicOr, Operands: []ir.Predicate{
			ir.ReceivedAll{},
			ir.Logical{Op: ir.LogicAnd, Operands: []ir.Predicate{ir.ReceivedAny{}, ir.IsLeader{}}},
		}}},
		{"(received_all or received_any) and is_leader", ir.Logical{Op: ir.LogicAnd, Operands: []ir.Predicate{
			ir.Logical{Op: ir.LogicOr, Operands: []ir.Predicate{ir.ReceivedAll{}, ir.ReceivedAny{}}},
			ir.IsLeader{},
		}}},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := testParser().predicate(tt.in, 1)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRule_Inline(t *testing.T) {
	p := testParser()
	one := ir.Assign{Target: "x", Value: ir.Literal{Value: 1}}
	two := ir.Assign{Target: "x", Value: ir.Literal{Value: 2}}
	three := ir.Assign{Target: "x", Value: ir.Literal{Value: 3}}

	tests := []struct {
		in   string
		want ir.Update
	}{
		{"x ← 1", one},
		{"x <- 1", one},
		{"x := 1", one},
		{"x_i = 1", one},
		{"average", ir.SimpleOp{Op: ir.SimpleAverage}},
		{"if received_any then x ← 1", ir.ConditionalNoElse{Cond: ir.ReceivedAny{}, Then: one}},
		{"if received_any then x ← 1 else x ← 2", ir.Conditional{Cond: ir.ReceivedAny{}, Then: one, Else: two}},
		{"if received_any then if is_leader then x ← 1 else x ← 2 else x ← 3", ir.Conditional{
			Cond: ir.ReceivedAny{},
			Then: ir.Conditional{Cond: ir.IsLeader{}, Then: one, Else: two},
			Else: three,
		}},
		{"if received_diff then x ← 1 else x ← x", ir.IfReceivedDiff{Then: ir.Literal{Value: 1}, Else: ir.SelfValue{}}},
		{"if received_diff then midpoint else x ← x", ir.Conditional{
			Cond: ir.ReceivedDiff{Var: "x"},
			Then: ir.SimpleOp{Op: ir.SimpleMidpoint},
			Else: ir.Assign{Target: "x", Value: ir.SelfValue{}},
		}},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, rest, err := p.rule([]srcLine{{num: 1, text: tt.in}})
			require.NoError(t, err)
			assert.Empty(t, rest)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRule_Block(t *testing.T) {
	lines := []srcLine{
		{1, "if received_majority then"},
		{2, "if x > 0 then"},
		{3, "x ← avg(inbox)"},
		{4, "end"},
		{5, "else"},
		{6, "x ← x"},
		{7, "end"},
		{8, "trailing"},
	}
	got, rest, err := testParser().rule(lines)
	require.NoError(t, err)

	assert.Equal(t, ir.Conditional{
		Cond: ir.ReceivedMajority{},
		Then: ir.ConditionalNoElse{
			Cond: ir.Comparison{Op: ir.CmpGT, Left: ir.SelfValue{}, Right: ir.Literal{Value: 0}},
			Then: ir.Assign{Target: "x", Value: ir.Aggregate{Func: ir.AggAvg, Source: ir.SourceInbox}},
		},
		Else: ir.Assign{Target: "x", Value: ir.SelfValue{}},
	}, got)
	assert.Equal(t, []srcLine{{8, "trailing"}}, rest)
}

func TestCutAssignment(t *testing.T) {
	tests := []struct {
		in       string
		lhs, rhs string
		ok       bool
	}{
		{"x ← y", "x ", " y", true},
		{"x = y", "x ", " y", true},
		{"x == y", "", "", false},
		{"x <= y", "", "", false},
		{"x = y >= 1", "x ", " y >= 1", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			lhs, rhs, ok := cutAssignment(tt.in)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.lhs, lhs)
			assert.Equal(t, tt.rhs, rhs)
		})
	}
}
