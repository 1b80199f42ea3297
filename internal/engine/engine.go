package engine

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"slices"

	"github.com/roach88/consim/internal/compiler"
	"github.com/roach88/consim/internal/delivery"
	"github.com/roach88/consim/internal/metrics"
)

// Version identifies the engine semantics recorded with stored sweeps.
// Bump it whenever a change alters results for an unchanged seed.
const Version = "0.1.0"

// RunSummary is the outcome of one repetition.
//
// DiscrepancyByRound has rounds+1 entries (round 0 is the initial state),
// plus one more when the protocol has an END phase. MessagesPerRound has one
// entry per round; END delivers nothing.
type RunSummary struct {
	DiscrepancyFinal       float64   `json:"discrepancy_final"`
	ConsensusFinal         bool      `json:"consensus_final"`
	DiscrepancyByRound     []float64 `json:"discrepancy_by_round"`
	TotalMessagesDelivered int       `json:"total_messages_delivered"`
	MessagesPerRound       []int     `json:"messages_per_round"`
	FinalValues            []float64 `json:"final_values"`
}

// LocalState is one process's committed value.
type LocalState struct {
	ID int
	X  float64
}

// GlobalState holds every process, index id-1.
type GlobalState []LocalState

// Values returns the committed values, index id-1.
func (g GlobalState) Values() []float64 {
	out := make([]float64, len(g))
	for i, s := range g {
		out[i] = s.X
	}
	return out
}

// Option configures a run.
type Option func(*runConfig)

type runConfig struct {
	sink     TraceSink
	topology Topology
	faults   FaultModel
	logger   *slog.Logger
}

// WithTraceSink sends a RoundRecord to sink after every committed round.
func WithTraceSink(sink TraceSink) Option {
	return func(c *runConfig) {
		if sink != nil {
			c.sink = sink
		}
	}
}

// WithTopology restricts who sends to whom. The default is Complete.
func WithTopology(t Topology) Option {
	return func(c *runConfig) {
		if t != nil {
			c.topology = t
		}
	}
}

// WithFaults perturbs messages from faulty processes.
func WithFaults(f FaultModel) Option {
	return func(c *runConfig) {
		if f != nil {
			c.faults = f
		}
	}
}

// WithLogger sets the logger for run-level events. The default is
// slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(c *runConfig) {
		if l != nil {
			c.logger = l
		}
	}
}

// Run executes spec once with the delivery RNG seeded by seed.
func Run(spec *compiler.ExperimentSpec, seed int64, opts ...Option) (*RunSummary, error) {
	return RunContext(context.Background(), spec, seed, opts...)
}

// RunContext is Run with cancellation checked between rounds.
func RunContext(ctx context.Context, spec *compiler.ExperimentSpec, seed int64, opts ...Option) (*RunSummary, error) {
	cfg := runConfig{
		sink:     discardSink{},
		topology: Complete{},
		faults:   noFaults{},
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	r, err := newRun(spec, seed, cfg)
	if err != nil {
		return nil, err
	}

	r.initialize()
	for round := 1; round <= spec.Rounds; round++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		delivered := r.deliver(round)
		if err := r.update(round); err != nil {
			return nil, err
		}
		r.record(StageRound, round, delivered)
	}
	if spec.HasEnd() {
		if err := r.end(); err != nil {
			return nil, err
		}
	}
	return r.finalize(), nil
}

// run is the mutable state of one repetition.
type run struct {
	spec  *compiler.ExperimentSpec
	cfg   runConfig
	rng   *rand.Rand
	links [][]int
	seed  int64

	state    GlobalState
	outbound []compiler.Message
	inbox    [][]compiler.Message

	summary RunSummary
}

func newRun(spec *compiler.ExperimentSpec, seed int64, cfg runConfig) (*run, error) {
	if spec == nil {
		return nil, invalidSpec("nil experiment spec")
	}
	if spec.NumProcesses < 1 {
		return nil, invalidSpec("spec has %d processes", spec.NumProcesses)
	}
	if spec.Rounds < 0 {
		return nil, invalidSpec("negative round count %d", spec.Rounds)
	}
	if spec.Delivery == nil {
		return nil, invalidSpec("spec has no delivery plan")
	}
	initial := spec.InitialValues()
	if len(initial) != spec.NumProcesses {
		return nil, invalidSpec("%d initial values for %d processes", len(initial), spec.NumProcesses)
	}
	adjacency, err := links(cfg.topology, spec.NumProcesses)
	if err != nil {
		return nil, err
	}

	state := make(GlobalState, spec.NumProcesses)
	for i, x := range initial {
		state[i] = LocalState{ID: i + 1, X: x}
	}
	return &run{
		spec:  spec,
		cfg:   cfg,
		rng:   delivery.NewRand(seed),
		links: adjacency,
		seed:  seed,
		state: state,
		inbox: make([][]compiler.Message, spec.NumProcesses),
		summary: RunSummary{
			DiscrepancyByRound: make([]float64, 0, spec.Rounds+2),
			MessagesPerRound:   make([]int, 0, spec.Rounds),
		},
	}, nil
}

// initialize records round 0 and queues the initial flood, which is
// delivered in round 1.
func (r *run) initialize() {
	r.cfg.logger.Debug("run starting",
		"protocol", r.spec.Name,
		"processes", r.spec.NumProcesses,
		"p", r.spec.P,
		"rounds", r.spec.Rounds,
		"seed", r.seed,
		"topology", r.cfg.topology.String(),
	)
	r.outbound = r.flood()
	r.summary.DiscrepancyByRound = append(r.summary.DiscrepancyByRound, metrics.Discrepancy(r.state.Values()))
	r.cfg.sink.Record(RoundRecord{
		Stage:       StageInit,
		Round:       0,
		Values:      r.state.Values(),
		Discrepancy: r.summary.DiscrepancyByRound[0],
	})
}

// flood queues every process's committed value to each of its neighbors,
// in sender then receiver order.
func (r *run) flood() []compiler.Message {
	var out []compiler.Message
	for i, s := range r.state {
		for _, j := range r.links[i] {
			out = append(out, compiler.Message{Sender: s.ID, Receiver: j, Payload: s.X})
		}
	}
	return out
}

// deliver runs the outbound queue through the fault model and the delivery
// plan and fills the inboxes for round.
func (r *run) deliver(round int) []compiler.Message {
	sent := make([]compiler.Message, 0, len(r.outbound))
	for _, m := range r.outbound {
		if r.cfg.faults.IsFaulty(m.Sender, round) {
			mutated, ok := r.cfg.faults.MutateOrSuppress(m, round)
			if !ok {
				continue
			}
			m.Payload = mutated.Payload
		}
		sent = append(sent, m)
	}

	slots := make([]delivery.Slot, len(sent))
	for k, m := range sent {
		slots[k] = delivery.Slot{Sender: m.Sender, Receiver: m.Receiver}
	}
	arrived := r.spec.Delivery.Deliver(r.spec.P, slots, r.rng)

	for i := range r.inbox {
		r.inbox[i] = nil
	}
	var delivered []compiler.Message
	for k, m := range sent {
		if !arrived[k] {
			continue
		}
		r.inbox[m.Receiver-1] = append(r.inbox[m.Receiver-1], m)
		delivered = append(delivered, m)
	}
	r.outbound = nil
	return delivered
}

// update computes every process's provisional value from the committed
// state, then commits them all at once.
func (r *run) update(round int) error {
	discrepancy := r.summary.DiscrepancyByRound[len(r.summary.DiscrepancyByRound)-1]

	provisional := make([]float64, len(r.state))
	for i, s := range r.state {
		ctx := r.context(s, round)
		x, err := r.spec.Apply(ctx, discrepancy)
		if err != nil {
			return evaluationFailed(s.ID, round, err)
		}
		provisional[i] = x
	}
	r.commit(provisional)
	r.outbound = r.flood()
	return nil
}

// end runs the END phase over the inbox of the last round.
func (r *run) end() error {
	round := r.spec.Rounds + 1

	provisional := make([]float64, len(r.state))
	for i, s := range r.state {
		x, err := r.spec.ApplyEnd(r.context(s, round))
		if err != nil {
			return evaluationFailed(s.ID, round, err)
		}
		provisional[i] = x
	}
	r.commit(provisional)

	disc := metrics.Discrepancy(r.state.Values())
	r.summary.DiscrepancyByRound = append(r.summary.DiscrepancyByRound, disc)
	r.cfg.sink.Record(RoundRecord{
		Stage:       StageEnd,
		Round:       round,
		Values:      r.state.Values(),
		Discrepancy: disc,
	})
	return nil
}

func (r *run) context(s LocalState, round int) *compiler.Context {
	return &compiler.Context{
		XSelf:    s.X,
		Snapshot: s.X,
		Inbox:    r.inbox[s.ID-1],
		NumNodes: len(r.state),
		NodeID:   s.ID,
		Round:    round,
		Params:   r.spec.Params,
	}
}

func (r *run) commit(values []float64) {
	for i := range r.state {
		r.state[i].X = values[i]
	}
}

// record appends the committed round to the summary and the trace.
func (r *run) record(stage Stage, round int, delivered []compiler.Message) {
	values := r.state.Values()
	disc := metrics.Discrepancy(values)
	r.summary.DiscrepancyByRound = append(r.summary.DiscrepancyByRound, disc)
	r.summary.MessagesPerRound = append(r.summary.MessagesPerRound, len(delivered))
	r.summary.TotalMessagesDelivered += len(delivered)
	r.cfg.sink.Record(RoundRecord{
		Stage:       stage,
		Round:       round,
		Values:      values,
		Delivered:   slices.Clone(delivered),
		Discrepancy: disc,
	})
}

func (r *run) finalize() *RunSummary {
	values := r.state.Values()
	s := r.summary
	s.DiscrepancyFinal = s.DiscrepancyByRound[len(s.DiscrepancyByRound)-1]
	s.ConsensusFinal = metrics.Consensus(values, r.spec.ConsensusEps)
	s.FinalValues = values
	r.cfg.logger.Debug("run finished",
		"protocol", r.spec.Name,
		"seed", r.seed,
		"discrepancy", s.DiscrepancyFinal,
		"consensus", s.ConsensusFinal,
		"messages", s.TotalMessagesDelivered,
	)
	return &s
}
