package agent

import (
	"context"
	"sync"
	"time"

	"github.com/probemap/probemap/internal/action"
	"github.com/probemap/probemap/internal/graph"
	"github.com/probemap/probemap/internal/hypergraph"
	"github.com/probemap/probemap/internal/state"
	"github.com/probemap/probemap/internal/world"
)

// ResultValidationInvariant is the invariant name recorded when an
// action's configured result validation fails.
const ResultValidationInvariant = "result_validation"

// runState is the coordination shared by one Run's workers.
//
// mu is the scheduler lock: it guards the strategy (Pick and Notify are
// not thread-safe), the step budget, the in-flight count, the stop flag,
// and the violation list. worldMu serializes each worker's whole world
// phase (rollback, act, observe) so two paths can never interleave their
// mutations of the systems under test; the world's own lock only makes
// single operations atomic.
type runState struct {
	mu   sync.Mutex
	cond *sync.Cond

	steps      int
	inFlight   int
	stopped    bool
	outcome    Outcome
	fatal      error
	violations []Violation

	worldMu sync.Mutex
	current string // state id the world is positioned at
}

func (r *runState) stopLocked(outcome Outcome, fatal error) {
	if r.stopped {
		return
	}
	r.stopped = true
	r.outcome = outcome
	r.fatal = fatal
	r.cond.Broadcast()
}

func (r *runState) stop(outcome Outcome, fatal error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stopLocked(outcome, fatal)
}

// Run explores until the strategy runs out of work, the step budget is
// exhausted, the context is cancelled, or a fatal condition aborts the
// run. The returned result is valid in every case and describes what was
// discovered up to the terminal condition; the error is non-nil only for
// cancellation and fatal aborts. The configured teardown hook runs on
// every exit path.
func (a *Agent) Run(ctx context.Context) (*ExplorationResult, error) {
	if a.teardown != nil {
		defer a.teardown()
	}

	res := &ExplorationResult{
		RunID:     a.runID,
		Graph:     a.graph,
		StartedAt: time.Now(),
	}
	r := &runState{}
	r.cond = sync.NewCond(&r.mu)

	a.logger.Info("exploration starting",
		"run_id", a.runID,
		"systems", len(a.world.Systems()),
		"actions", len(a.graph.Actions()),
		"max_steps", a.maxSteps,
		"workers", a.workers)

	if err := a.seed(ctx, r); err != nil {
		res.Outcome = OutcomeAborted
		return a.finish(res, r), err
	}

	// A watcher turns context cancellation into a stop signal so workers
	// parked on the condition variable wake up.
	watchCtx, stopWatch := context.WithCancel(ctx)
	defer stopWatch()
	go func() {
		<-watchCtx.Done()
		if ctx.Err() != nil {
			r.stop(OutcomeCancelled, nil)
		}
	}()

	var wg sync.WaitGroup
	for i := 0; i < a.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			a.work(ctx, r)
		}()
	}
	wg.Wait()
	stopWatch()

	result := a.finish(res, r)
	var err error
	switch {
	case result.Outcome == OutcomeAborted:
		err = r.fatal
	case result.Outcome == OutcomeCancelled:
		err = ctx.Err()
	}
	return result, err
}

// finish stamps the result with everything runState accumulated.
func (a *Agent) finish(res *ExplorationResult, r *runState) *ExplorationResult {
	r.mu.Lock()
	res.Violations = r.violations
	if res.Outcome == "" {
		res.Outcome = r.outcome
	}
	res.StepsTaken = r.steps
	r.mu.Unlock()

	res.FinishedAt = time.Now()
	res.DimensionCoverage = hypergraph.ComputeCoverage(a.hg, a.knownDims)

	a.logger.Info("exploration finished",
		"run_id", a.runID,
		"outcome", res.Outcome,
		"steps", res.StepsTaken,
		"states", a.graph.StateCount(),
		"transitions", a.graph.TransitionCount(),
		"violations", len(res.Violations),
		"duration", res.Duration())
	return res
}

// seed establishes the initial state: observe and checkpoint the world
// as handed over, register the state, and hand its valid actions to the
// strategy.
func (a *Agent) seed(ctx context.Context, r *runState) error {
	st, err := a.world.ObserveAndCheckpoint(ctx, "initial")
	if err != nil {
		return &AbortError{Action: "initial-observe", Err: err}
	}

	canonical := a.graph.AddState(a.label(st))
	a.index(canonical)
	r.current = canonical.ID

	violations := a.checkInvariants(canonical, "")
	r.mu.Lock()
	r.violations = append(r.violations, violations...)
	if a.stopOnViolation && len(violations) > 0 {
		r.stopLocked(OutcomeViolationStop, nil)
	}
	r.mu.Unlock()

	a.notify(r, canonical)
	a.logger.Debug("initial state observed",
		"state", shortID(canonical.ID),
		"checkpoint", canonical.CheckpointID)
	return nil
}

// work is one worker's loop: reserve a pair, execute it, repeat.
func (a *Agent) work(ctx context.Context, r *runState) {
	for {
		pair, ok := a.next(r)
		if !ok {
			return
		}

		err := a.step(ctx, r, pair)

		r.mu.Lock()
		r.inFlight--
		if err != nil {
			if ctx.Err() != nil {
				r.stopLocked(OutcomeCancelled, nil)
			} else {
				r.stopLocked(OutcomeAborted, err)
			}
		}
		r.cond.Broadcast()
		r.mu.Unlock()
	}
}

// next blocks until there is a reservable pair, the run stops, or the
// frontier is provably empty (no work and nothing in flight that could
// produce more).
func (a *Agent) next(r *runState) (graph.Pair, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for {
		if r.stopped {
			return graph.Pair{}, false
		}
		if a.maxSteps > 0 && r.steps >= a.maxSteps {
			r.stopLocked(OutcomeMaxSteps, nil)
			return graph.Pair{}, false
		}

		pair, ok := a.strat.Pick(a.graph)
		if ok {
			// A transition recorded since the strategy queued this pair
			// may have claimed it; losing the reservation just means
			// asking the strategy again.
			if !a.graph.MarkExplored(pair.State.ID, pair.Action.Name()) {
				continue
			}
			r.steps++
			r.inFlight++
			return pair, true
		}

		if r.inFlight == 0 {
			r.stopLocked(OutcomeExhausted, nil)
			return graph.Pair{}, false
		}
		r.cond.Wait()
	}
}

// step executes one reserved (state, action) pair: re-establish the
// source state, fire the action, observe and checkpoint the outcome,
// record it, check invariants, and feed the strategy. A nil return
// covers both completed steps and abandoned branches; errors are fatal
// to the run.
func (a *Agent) step(ctx context.Context, r *runState, pair graph.Pair) error {
	actName := pair.Action.Name()

	// Re-fetch the canonical state: a checkpoint upgrade may have landed
	// since the strategy resolved the pair.
	if cur, ok := a.graph.State(pair.State.ID); ok {
		pair.State = cur
	}

	r.worldMu.Lock()

	if r.current != pair.State.ID {
		cp := pair.State.CheckpointID
		if cp == "" {
			r.worldMu.Unlock()
			a.logger.Warn("abandoning pair: source state has no checkpoint",
				"state", shortID(pair.State.ID),
				"action", actName)
			return nil
		}
		if err := a.world.Rollback(ctx, cp); err != nil {
			r.worldMu.Unlock()
			if world.IsUnknownCheckpoint(err) {
				// Fatal to this branch only: its position cannot be
				// re-established. Other branches keep exploring.
				a.logger.Error("abandoning branch: unknown checkpoint",
					"state", shortID(pair.State.ID),
					"action", actName,
					"checkpoint", cp)
				return nil
			}
			return &AbortError{StateID: pair.State.ID, Action: actName, CheckpointID: cp, Err: err}
		}
		r.current = pair.State.ID
	}

	res, err := a.world.Act(ctx, pair.Action)
	completed := err == nil
	if err != nil {
		if action.IsContractError(err) {
			r.worldMu.Unlock()
			return &AbortError{StateID: pair.State.ID, Action: actName, Err: err}
		}
		if ctx.Err() != nil {
			// A cancelled action is a failure, never a transition.
			r.worldMu.Unlock()
			return ctx.Err()
		}
		// Transport-level failure: a failed attempt the run absorbs. The
		// systems may have mutated anyway, so the step still observes.
		a.logger.Debug("action execution failed", "action", actName, "error", err)
		res = action.Failed(nil, err)
	}

	newSt, err := a.world.ObserveAndCheckpoint(ctx, actName)
	if err != nil {
		r.worldMu.Unlock()
		return &AbortError{StateID: pair.State.ID, Action: actName, Err: err}
	}
	r.current = newSt.ID
	r.worldMu.Unlock()

	canonical := a.graph.AddState(a.label(newSt))
	tr := state.NewTransition(pair.State.ID, actName, canonical.ID).WithDuration(res.Duration)
	recorded := a.graph.AddTransition(tr)
	a.index(canonical)

	a.logger.Debug("step executed",
		"action", actName,
		"from", shortID(pair.State.ID),
		"to", shortID(canonical.ID),
		"recorded", recorded,
		"success", res.Success)

	// Validation applies to completed results only; an execution that
	// never completed is a failed attempt, not a broken expectation.
	var violations []Violation
	if completed {
		if passed, msg := pair.Action.ValidateResult(res); !passed {
			path, _ := a.graph.PathTo(canonical.ID)
			violations = append(violations, Violation{
				Invariant: ResultValidationInvariant,
				Severity:  SeverityError,
				Action:    actName,
				StateID:   canonical.ID,
				Message:   msg,
				Path:      path,
			})
		}
	}
	violations = append(violations, a.checkInvariants(canonical, actName)...)

	if len(violations) > 0 {
		r.mu.Lock()
		r.violations = append(r.violations, violations...)
		if a.stopOnViolation {
			r.stopLocked(OutcomeViolationStop, nil)
		}
		r.mu.Unlock()
		for _, v := range violations {
			a.logger.Warn("invariant violated",
				"invariant", v.Invariant,
				"severity", string(v.Severity),
				"action", v.Action,
				"state", shortID(v.StateID),
				"path_len", len(v.Path))
		}
	}

	a.notify(r, canonical)
	return nil
}

// index adds a labeled state to the hypergraph.
func (a *Agent) index(st state.State) {
	if st.Hyperedge != nil {
		a.hg.Add(st.ID, *st.Hyperedge)
	}
}

// checkInvariants evaluates every registered invariant against st,
// producing violations with the current shortest reproduction path.
func (a *Agent) checkInvariants(st state.State, actName string) []Violation {
	var out []Violation
	var path []state.Transition
	havePath := false

	for _, inv := range a.invariants {
		if inv.Holds(st, a.world.Env()) {
			continue
		}
		if !havePath {
			path, _ = a.graph.PathTo(st.ID)
			havePath = true
		}
		out = append(out, Violation{
			Invariant: inv.Name(),
			Severity:  inv.Severity(),
			Action:    actName,
			StateID:   st.ID,
			Path:      path,
		})
	}
	return out
}

// notify hands the strategy the state's valid actions, evaluated against
// the live env and the actions already fired along the recorded path to
// the state. Already-known states are re-notified: a different path can
// satisfy different prior-action preconditions.
func (a *Agent) notify(r *runState, st state.State) {
	path, _ := a.graph.PathTo(st.ID)
	executed := make(map[string]bool, len(path))
	for _, tr := range path {
		executed[tr.Action] = true
	}
	valid := a.graph.ValidActions(st, a.world.Env(), executed)

	r.mu.Lock()
	a.strat.Notify(st, valid)
	r.cond.Broadcast()
	r.mu.Unlock()
}
