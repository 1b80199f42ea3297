// Package engine runs one repetition of a compiled protocol.
//
// # Round structure
//
// A run is a fixed sequence of synchronous rounds over n processes:
//
//	Initialize      init values, initial flood, round-0 discrepancy
//	  for r := 1..rounds:
//	    Deliver       topology → faults → delivery plan
//	    Update        provisional value for every process, then commit
//	    Record        discrepancy of the committed state
//	END (optional)  one more update over the last round's inbox
//	Finalize        RunSummary
//
// Every process evaluates its rules against the state committed at the end of
// the previous round. No process observes another's new value within a round,
// so the outcome does not depend on the order processes are visited in.
//
// # Determinism
//
// The only source of randomness is the delivery RNG, seeded from the run
// seed and consumed in canonical slot order (sender ascending, then receiver
// ascending). Inboxes are sorted by sender. Equal seeds therefore give
// bit-identical summaries.
//
// # Collaborators
//
// Topology restricts who sends to whom; the default is the complete graph.
// FaultModel may drop or rewrite messages before the delivery model sees
// them. A TraceSink receives one record per round when tracing is wanted.
package engine
