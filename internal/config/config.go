// Package config loads experiment files written in CUE.
//
// An experiment file names a protocol and the sweep to run over it:
//
//	protocol:    "amp.proto"
//	p_values:    [0, 0.5, 1]
//	rounds:      3
//	repetitions: 500
//	topology:    "ring"
//	faults: {kind: "crash", nodes: [2], from: 2}
//
// The file is unified with the embedded #Experiment schema, so omitted
// fields take their defaults and unknown fields are rejected.
package config

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/roach88/consim/internal/engine"
	"github.com/roach88/consim/internal/runner"
)

//go:embed schema.cue
var schema string

// Experiment is a validated experiment file.
type Experiment struct {
	Protocol     string // absolute, or relative to the working directory
	PValues      []float64
	Rounds       int
	Repetitions  int
	Seed         int64
	ConsensusEps float64
	Workers      int
	Topology     string
	Faults       *Faults
}

// Faults selects a fault model for every run.
type Faults struct {
	Kind  string
	Nodes []int
	From  int
	Value float64
}

// ConfigError reports an invalid experiment file, with the CUE position when
// one is known.
type ConfigError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *ConfigError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Load reads and validates the experiment file at path. A relative protocol
// path is resolved against the file's directory.
func Load(path string) (*Experiment, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read experiment: %w", err)
	}
	exp, err := Parse(data, path)
	if err != nil {
		return nil, err
	}
	if !filepath.IsAbs(exp.Protocol) {
		exp.Protocol = filepath.Join(filepath.Dir(path), exp.Protocol)
	}
	return exp, nil
}

// Parse validates CUE source. filename is only used in error positions.
func Parse(data []byte, filename string) (*Experiment, error) {
	ctx := cuecontext.New()
	def := ctx.CompileString(schema, cue.Filename("schema.cue")).LookupPath(cue.ParsePath("#Experiment"))
	if err := def.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	file := ctx.CompileBytes(data, cue.Filename(filename))
	if err := file.Err(); err != nil {
		return nil, formatCUEError(err)
	}
	v := def.Unify(file)
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return nil, formatCUEError(err)
	}
	return decode(v)
}

func decode(v cue.Value) (*Experiment, error) {
	exp := &Experiment{}
	var err error
	if exp.Protocol, err = field(v, "protocol").String(); err != nil {
		return nil, formatCUEError(err)
	}
	if exp.PValues, err = floats(field(v, "p_values")); err != nil {
		return nil, err
	}
	if len(exp.PValues) == 0 {
		return nil, &ConfigError{Field: "p_values", Message: "at least one p value is required", Pos: field(v, "p_values").Pos()}
	}
	if exp.Rounds, err = intField(v, "rounds"); err != nil {
		return nil, err
	}
	if exp.Repetitions, err = intField(v, "repetitions"); err != nil {
		return nil, err
	}
	if exp.Workers, err = intField(v, "workers"); err != nil {
		return nil, err
	}
	if exp.Seed, err = field(v, "seed").Int64(); err != nil {
		return nil, formatCUEError(err)
	}
	if exp.ConsensusEps, err = field(v, "consensus_eps").Float64(); err != nil {
		return nil, formatCUEError(err)
	}
	if exp.Topology, err = field(v, "topology").String(); err != nil {
		return nil, formatCUEError(err)
	}

	fv := field(v, "faults")
	if !fv.IsNull() {
		f := &Faults{}
		if f.Kind, err = field(fv, "kind").String(); err != nil {
			return nil, formatCUEError(err)
		}
		if f.Nodes, err = ints(field(fv, "nodes")); err != nil {
			return nil, err
		}
		if f.From, err = intField(fv, "from"); err != nil {
			return nil, err
		}
		if f.Value, err = field(fv, "value").Float64(); err != nil {
			return nil, formatCUEError(err)
		}
		exp.Faults = f
	}
	return exp, nil
}

// field returns the named field of v with its default applied.
func field(v cue.Value, name string) cue.Value {
	f, _ := v.LookupPath(cue.ParsePath(name)).Default()
	return f
}

func intField(v cue.Value, name string) (int, error) {
	n, err := field(v, name).Int64()
	if err != nil {
		return 0, formatCUEError(err)
	}
	return int(n), nil
}

func floats(v cue.Value) ([]float64, error) {
	iter, err := v.List()
	if err != nil {
		return nil, formatCUEError(err)
	}
	var out []float64
	for iter.Next() {
		f, err := iter.Value().Float64()
		if err != nil {
			return nil, formatCUEError(err)
		}
		out = append(out, f)
	}
	return out, nil
}

func ints(v cue.Value) ([]int, error) {
	iter, err := v.List()
	if err != nil {
		return nil, formatCUEError(err)
	}
	var out []int
	for iter.Next() {
		n, err := iter.Value().Int64()
		if err != nil {
			return nil, formatCUEError(err)
		}
		out = append(out, int(n))
	}
	return out, nil
}

// formatCUEError keeps the first CUE error and its position.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}
	first := errs[0]
	if positions := errors.Positions(first); len(positions) > 0 {
		return &ConfigError{
			Field:   "cue",
			Message: first.Error(),
			Pos:     positions[0],
		}
	}
	return &ConfigError{Field: "cue", Message: first.Error()}
}

// TopologyModel resolves the topology name.
func (e *Experiment) TopologyModel() (engine.Topology, error) {
	t, err := engine.ParseTopology(e.Topology)
	if err != nil {
		return nil, &ConfigError{Field: "topology", Message: err.Error()}
	}
	return t, nil
}

// FaultModel returns the configured fault model, or nil.
func (e *Experiment) FaultModel() (engine.FaultModel, error) {
	if e.Faults == nil {
		return nil, nil
	}
	f, err := engine.NewFaultModel(e.Faults.Kind, e.Faults.Nodes, e.Faults.From, e.Faults.Value)
	if err != nil {
		return nil, &ConfigError{Field: "faults.kind", Message: err.Error()}
	}
	return f, nil
}

// Sweep converts the experiment into runner settings.
func (e *Experiment) Sweep() (runner.Sweep, error) {
	topology, err := e.TopologyModel()
	if err != nil {
		return runner.Sweep{}, err
	}
	faults, err := e.FaultModel()
	if err != nil {
		return runner.Sweep{}, err
	}
	return runner.Sweep{
		PValues:      e.PValues,
		Rounds:       e.Rounds,
		Repetitions:  e.Repetitions,
		Seed:         e.Seed,
		ConsensusEps: e.ConsensusEps,
		Workers:      e.Workers,
		Topology:     topology,
		Faults:       faults,
	}, nil
}
