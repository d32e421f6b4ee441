// Package agent drives exploration: it repeatedly asks the strategy for
// an untried (state, action) pair, re-establishes that state through the
// world's checkpoints, fires the action, observes what the systems under
// test became, and folds the outcome back into the graph, the hypergraph
// and the violation list until the strategy runs dry or a budget cuts
// the run short.
package agent

import (
	"io"
	"log/slog"

	"github.com/google/uuid"

	"github.com/probemap/probemap/internal/graph"
	"github.com/probemap/probemap/internal/hypergraph"
	"github.com/probemap/probemap/internal/state"
	"github.com/probemap/probemap/internal/strategy"
	"github.com/probemap/probemap/internal/world"
)

// DefaultMaxSteps bounds a run that never exhausts its strategy. Stateful
// APIs with cyclic actions produce unbounded frontiers; the budget is
// what guarantees termination.
const DefaultMaxSteps = 1000

// Labeler attaches a multi-dimensional label to an observed state.
// Implemented by dimension.Labeler; false means the state carries no
// label and stays out of the hypergraph.
type Labeler interface {
	Label(st state.State) (state.Hyperedge, bool)
}

// TeardownFunc runs when a run ends, regardless of outcome.
type TeardownFunc func()

// Agent owns one exploration run over one world.
type Agent struct {
	world *world.World
	graph *graph.Graph
	hg    *hypergraph.Hypergraph
	strat strategy.Strategy

	invariants      []Invariant
	labeler         Labeler
	knownDims       map[string][]string
	maxSteps        int
	workers         int
	stopOnViolation bool
	teardown        TeardownFunc
	runID           string
	logger          *slog.Logger
}

// Option configures an Agent at construction.
type Option func(*Agent)

// WithInvariants registers properties checked against every newly
// observed state.
func WithInvariants(invs ...Invariant) Option {
	return func(a *Agent) {
		a.invariants = append(a.invariants, invs...)
	}
}

// WithLabeler installs the hyperedge labeler. Without one, states stay
// unlabeled and dimension-aware strategies fall back to FIFO order.
func WithLabeler(l Labeler) Option {
	return func(a *Agent) {
		a.labeler = l
	}
}

// WithKnownDimensions supplies the full value enum per dimension, giving
// the coverage summary a denominator. Dimensions not listed report
// observed values only.
func WithKnownDimensions(known map[string][]string) Option {
	return func(a *Agent) {
		a.knownDims = known
	}
}

// WithMaxSteps sets the step budget. Zero or negative disables the
// budget entirely; the strategy alone decides when the run ends.
func WithMaxSteps(n int) Option {
	return func(a *Agent) {
		a.maxSteps = n
	}
}

// WithWorkers sets how many workers execute steps concurrently. World
// operations stay serialized behind the world's lock either way; extra
// workers overlap validation and invariant evaluation with the next
// step's I/O. Values below 1 mean 1.
func WithWorkers(n int) Option {
	return func(a *Agent) {
		if n < 1 {
			n = 1
		}
		a.workers = n
	}
}

// WithStopOnViolation makes the first recorded violation terminate the
// run instead of continuing exploration.
func WithStopOnViolation() Option {
	return func(a *Agent) {
		a.stopOnViolation = true
	}
}

// WithTeardown registers a hook that runs when the run ends, regardless
// of outcome, including fatal aborts.
func WithTeardown(fn TeardownFunc) Option {
	return func(a *Agent) {
		a.teardown = fn
	}
}

// WithLogger sets the structured logger. The default discards.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Agent) {
		a.logger = logger
	}
}

// WithRunID fixes the run id instead of generating a UUIDv7. Tests use
// this for deterministic results.
func WithRunID(id string) Option {
	return func(a *Agent) {
		a.runID = id
	}
}

// New creates an agent exploring w with the given graph and strategy.
// The graph carries the registered action set; the hypergraph may be nil
// when no labeler is configured.
func New(w *world.World, g *graph.Graph, hg *hypergraph.Hypergraph, strat strategy.Strategy, opts ...Option) *Agent {
	a := &Agent{
		world:    w,
		graph:    g,
		hg:       hg,
		strat:    strat,
		maxSteps: DefaultMaxSteps,
		workers:  1,
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.runID == "" {
		a.runID = uuid.Must(uuid.NewV7()).String()
	}
	if a.hg == nil {
		a.hg = hypergraph.New()
	}
	return a
}

// Graph returns the exploration graph the agent writes into.
func (a *Agent) Graph() *graph.Graph { return a.graph }

// Hypergraph returns the dimension index the agent writes into.
func (a *Agent) Hypergraph() *hypergraph.Hypergraph { return a.hg }

// RunID returns the id stamped on this run's result and archive rows.
func (a *Agent) RunID() string { return a.runID }

// label attaches the configured labeler's hyperedge to a state.
func (a *Agent) label(st state.State) state.State {
	if a.labeler == nil {
		return st
	}
	he, ok := a.labeler.Label(st)
	if !ok {
		return st
	}
	return st.WithHyperedge(he)
}
