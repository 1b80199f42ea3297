package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/roach88/consim/internal/study"
)

// Scenario defines an acceptance scenario: protocols to sweep, the sweep
// itself, and assertions over the results.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Protocols lists the protocols to run, each over the same sweep.
	Protocols []ProtocolRef `yaml:"protocols"`

	// Sweep is shared by every protocol.
	Sweep SweepSpec `yaml:"sweep"`

	// Assertions validate the results.
	Assertions []Assertion `yaml:"assertions"`
}

// ProtocolRef points at a protocol file or carries its source inline.
type ProtocolRef struct {
	// Name overrides the PROTOCOL header name in assertions.
	Name string `yaml:"name,omitempty"`

	// Path is relative to the scenario file. Exclusive with Source.
	Path string `yaml:"path,omitempty"`

	// Source is inline protocol text.
	Source string `yaml:"source,omitempty"`
}

// SweepSpec mirrors the experiment settings of a config file.
type SweepSpec struct {
	PValues      []float64  `yaml:"p_values"`
	Rounds       int        `yaml:"rounds"`
	Repetitions  int        `yaml:"repetitions"`
	Seed         int64      `yaml:"seed"`
	ConsensusEps *float64   `yaml:"consensus_eps,omitempty"`
	Topology     string     `yaml:"topology,omitempty"`
	Faults       *FaultSpec `yaml:"faults,omitempty"`
}

// FaultSpec selects a fault model.
type FaultSpec struct {
	Kind  string  `yaml:"kind"`
	Nodes []int   `yaml:"nodes"`
	From  int     `yaml:"from,omitempty"`
	Value float64 `yaml:"value,omitempty"`
}

// Assertion validates the results of a scenario.
type Assertion struct {
	// Type is one of mean_discrepancy, consensus_probability, trace_length
	// or condition.
	Type string `yaml:"type"`

	// Protocol names the checked protocol (all types except condition).
	Protocol string `yaml:"protocol,omitempty"`

	// P restricts the check to one delivery probability.
	P *float64 `yaml:"p,omitempty"`

	// Expect and Tolerance require |value - Expect| <= Tolerance.
	Expect    *float64 `yaml:"expect,omitempty"`
	Tolerance float64  `yaml:"tolerance,omitempty"`

	// Min and Max bound the value inclusively.
	Min *float64 `yaml:"min,omitempty"`
	Max *float64 `yaml:"max,omitempty"`

	// Length is the expected discrepancy trace length (trace_length).
	Length int `yaml:"length,omitempty"`

	// Condition is a study condition (condition).
	Condition string `yaml:"condition,omitempty"`
}

// Assertion type constants.
const (
	AssertMeanDiscrepancy      = "mean_discrepancy"
	AssertConsensusProbability = "consensus_probability"
	AssertTraceLength          = "trace_length"
	AssertCondition            = "condition"
)

// LoadScenario reads and parses a scenario YAML file. Protocol paths are
// resolved relative to the file's directory. Unknown fields are rejected.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data, filepath.Dir(path))
}

// ParseScenario parses scenario YAML, resolving relative protocol paths
// against baseDir.
func ParseScenario(data []byte, baseDir string) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // catches "assertion:" vs "assertions:"
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	for i, ref := range scenario.Protocols {
		if ref.Path != "" && !filepath.IsAbs(ref.Path) && baseDir != "" {
			scenario.Protocols[i].Path = filepath.Join(baseDir, ref.Path)
		}
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Protocols) == 0 {
		return fmt.Errorf("protocols list is required and must be non-empty")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	for i, ref := range s.Protocols {
		switch {
		case ref.Path == "" && ref.Source == "":
			return fmt.Errorf("protocols[%d]: path or source is required", i)
		case ref.Path != "" && ref.Source != "":
			return fmt.Errorf("protocols[%d]: path and source are exclusive", i)
		}
		if ref.Path != "" {
			if _, err := os.Stat(ref.Path); os.IsNotExist(err) {
				return fmt.Errorf("protocol file not found: %s", ref.Path)
			}
		}
	}

	if len(s.Sweep.PValues) == 0 {
		return fmt.Errorf("sweep.p_values is required and must be non-empty")
	}
	if s.Sweep.Repetitions < 1 {
		return fmt.Errorf("sweep.repetitions must be at least 1")
	}
	if s.Sweep.Rounds < 0 {
		return fmt.Errorf("sweep.rounds must not be negative")
	}

	for i := range s.Assertions {
		if err := validateAssertion(i, &s.Assertions[i]); err != nil {
			return err
		}
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertMeanDiscrepancy, AssertConsensusProbability:
		if a.Protocol == "" {
			return fmt.Errorf("assertions[%d]: protocol is required for %s", index, a.Type)
		}
		if a.Expect == nil && a.Min == nil && a.Max == nil {
			return fmt.Errorf("assertions[%d]: one of expect, min or max is required for %s", index, a.Type)
		}
		if a.Tolerance < 0 {
			return fmt.Errorf("assertions[%d]: tolerance must be non-negative", index)
		}
	case AssertTraceLength:
		if a.Protocol == "" {
			return fmt.Errorf("assertions[%d]: protocol is required for trace_length", index)
		}
		if a.Length < 1 {
			return fmt.Errorf("assertions[%d]: length must be at least 1 for trace_length", index)
		}
	case AssertCondition:
		if a.Condition == "" {
			return fmt.Errorf("assertions[%d]: condition is required", index)
		}
		if _, err := study.Parse(a.Condition); err != nil {
			return fmt.Errorf("assertions[%d]: %w", index, err)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
