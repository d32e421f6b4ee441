package graph

import (
	"github.com/probemap/probemap/internal/action"
	"github.com/probemap/probemap/internal/env"
	"github.com/probemap/probemap/internal/state"
)

// Pair is one unit of exploration work: try Action from State.
type Pair struct {
	State  state.State
	Action *action.Action
}

// ValidActions filters the registered action set down to those eligible
// from st.
//
// The env and executed arguments refine the evaluation. Passing both nil
// gives the graph-shape view: preconditions that need live exploration
// data (required env keys, required prior actions) report eligible and
// the real gate is deferred to the caller holding the live world. Passing
// live values evaluates those preconditions strictly. This follows the
// three-mode contract of Action.Eligible; see that method for the
// nil/empty distinction.
func (g *Graph) ValidActions(st state.State, e *env.Env, executed map[string]bool) []*action.Action {
	g.mu.RLock()
	actions := make([]*action.Action, len(g.actions))
	copy(actions, g.actions)
	g.mu.RUnlock()

	var out []*action.Action
	for _, a := range actions {
		if a.Eligible(st, e, executed) {
			out = append(out, a)
		}
	}
	return out
}

// Unexplored returns every (state, action) pair whose preconditions hold
// against the bare state and which has not been reserved or recorded.
// Pairs are ordered by state discovery order, then by action declaration
// order, so strategies that break ties by encounter order behave
// deterministically.
func (g *Graph) Unexplored() []Pair {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var out []Pair
	for _, id := range g.stateOrder {
		st := g.states[id]
		for _, a := range g.actions {
			if g.explored[pairKey(id, a.Name())] {
				continue
			}
			if !a.Eligible(st, nil, nil) {
				continue
			}
			out = append(out, Pair{State: st, Action: a})
		}
	}
	return out
}
