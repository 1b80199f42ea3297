// Package parser turns protocol source text into an *ir.ProtocolIR.
//
// A protocol is a sequence of uppercase sections:
//
//	PROTOCOL AMP
//	PROCESSES: 2
//	STATE: x ∈ {0, 1}
//	INITIAL VALUES: [0, 1]
//	PARAMETERS: y = 0.5
//	CHANNEL: stochastic
//	UPDATE RULE:
//	  EACH ROUND: if received_diff then x ← y else x ← x
//	METRICS: discrepancy, consensus
//
// Sections must appear in this order. PARAMETERS, INITIAL VALUES and INITIAL
// may be given in any order relative to each other, as may CHANNEL and ROLES.
// MODEL, UPDATE RULE and METRICS are optional.
//
// Every failure is a *ParseError carrying the 1-based source line.
package parser
