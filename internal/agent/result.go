package agent

import (
	"time"

	"github.com/probemap/probemap/internal/graph"
	"github.com/probemap/probemap/internal/hypergraph"
)

// Outcome names the terminal condition an exploration run ended in.
type Outcome string

const (
	// OutcomeExhausted means the strategy ran out of reachable work.
	OutcomeExhausted Outcome = "exhausted"

	// OutcomeMaxSteps means the configured step budget cut the run short.
	OutcomeMaxSteps Outcome = "max_steps"

	// OutcomeViolationStop means a violation ended the run because
	// stop-on-violation was configured.
	OutcomeViolationStop Outcome = "violation_stop"

	// OutcomeCancelled means the context was cancelled between steps.
	OutcomeCancelled Outcome = "cancelled"

	// OutcomeAborted means a fatal condition (broken atomicity, action
	// contract violation) killed the run.
	OutcomeAborted Outcome = "aborted"
)

// ExplorationResult is what one run produces: the discovered graph, the
// recorded violations, the dimension coverage summary, and timing.
type ExplorationResult struct {
	RunID      string
	Graph      *graph.Graph
	Violations []Violation
	Outcome    Outcome

	// StepsTaken counts executed steps, including ones whose transition
	// was a duplicate and therefore not recorded.
	StepsTaken int

	StartedAt  time.Time
	FinishedAt time.Time

	DimensionCoverage hypergraph.DimensionCoverage
}

// Success reports whether the run recorded zero violations. Running out
// of budget or out of work are both non-failure terminal conditions.
func (r *ExplorationResult) Success() bool {
	return len(r.Violations) == 0
}

// TruncatedByMaxSteps distinguishes "ran out of budget" from "explored
// everything reachable".
func (r *ExplorationResult) TruncatedByMaxSteps() bool {
	return r.Outcome == OutcomeMaxSteps
}

// Duration returns the wall time of the run.
func (r *ExplorationResult) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// ActionCoveragePercent is the fraction of registered actions executed
// at least once. This is the meaningful coverage metric: its denominator
// is fixed at registration.
func (r *ExplorationResult) ActionCoveragePercent() float64 {
	return r.Graph.ActionCoveragePercent()
}

// CoveragePercent is the raw pair metric: explored (state, action) pairs
// over all pairs the discovered graph implies. The denominator grows
// with every newly found state, so this can approach but never reach
// 100 on a growing graph; prefer ActionCoveragePercent.
func (r *ExplorationResult) CoveragePercent() float64 {
	states := r.Graph.StateCount()
	actions := len(r.Graph.Actions())
	if states == 0 || actions == 0 {
		return 0
	}
	return float64(r.Graph.PairsExplored()) / float64(states*actions) * 100
}

// ExplorationEfficiency is unique states discovered per step taken: 1.0
// means every step landed somewhere new, lower means steps kept
// converging on already-known states.
func (r *ExplorationResult) ExplorationEfficiency() float64 {
	if r.StepsTaken == 0 {
		return 0
	}
	return float64(r.Graph.StateCount()) / float64(r.StepsTaken)
}

// UniqueViolations collapses the violation list to one entry per
// (invariant, action) pair with the shortest reproduction path.
func (r *ExplorationResult) UniqueViolations() []Violation {
	return UniqueViolations(r.Violations)
}
