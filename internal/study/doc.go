// Package study implements comparison conditions over Monte Carlo sweeps.
//
// A condition compares metrics of named protocols at every delivery
// probability that passes an optional p filter:
//
//	for p > 0.6: AMP.consensus > FV.consensus
//	for p >= 0.2 and p <= 0.8: AMP.discrepancy <= 0.25
//	AMP.messages == FV.messages
//
// The grammar is deliberately small and separate from the protocol DSL.
// Conditions only read montecarlo.Result values; they never run the engine.
//
// Operand and Bound are sealed interfaces so evaluators can switch over
// every case:
//
//	switch o := operand.(type) {
//	case Ref:
//	    // protocol metric
//	case Number:
//	    // literal
//	}
//
// Metrics:
//   - consensus: ConsensusProbability
//   - discrepancy: MeanDiscrepancy
//   - variance: VarDiscrepancy
//   - messages: MeanMessagesDelivered
package study
