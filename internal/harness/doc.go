// Package harness runs acceptance scenarios against the simulator.
//
// # Scenario Format
//
// Scenarios are YAML files:
//
//	name: amp_vs_fv
//	description: "AMP reaches consensus more often than FV at high p"
//	protocols:
//	  - path: ../protocols/amp.consim
//	  - name: FV
//	    source: |
//	      PROTOCOL FV
//	      ...
//	sweep:
//	  p_values: [0, 0.5, 1]
//	  rounds: 1
//	  repetitions: 200
//	  seed: 7
//	assertions:
//	  - type: consensus_probability
//	    protocol: AMP
//	    p: 1
//	    expect: 1
//	  - type: mean_discrepancy
//	    protocol: FV
//	    max: 1
//	  - type: trace_length
//	    protocol: AMP
//	    length: 2
//	  - type: condition
//	    condition: "for p > 0.6: AMP.consensus > FV.consensus"
//
// Protocol paths are relative to the scenario file. A protocol is referred
// to by its name field, or by the name in its PROTOCOL header.
//
// # Assertion Types
//
//   - mean_discrepancy: bounds MeanDiscrepancy (expect/tolerance, min, max)
//   - consensus_probability: bounds ConsensusProbability the same way
//   - trace_length: every MeanDiscrepancyByRound has the given length
//   - condition: a study condition holds over the sweep
//
// An assertion with p set checks only that delivery probability; otherwise
// every p in the sweep is checked.
//
// # Determinism
//
// Runs are seeded from the scenario, so results are reproducible and can
// be compared against golden files with RunWithGolden.
package harness
