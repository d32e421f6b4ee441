// Package strategy provides the pluggable policies that decide which
// untried (state, action) pair to explore next. All variants implement
// one Strategy interface; the agent feeds them freshly discovered work
// through Notify and drains them through Pick.
//
// Strategies are not safe for concurrent use on their own: the agent
// serializes Pick and Notify behind its scheduler lock, reserving each
// picked pair in the graph before releasing it.
package strategy

import (
	"github.com/probemap/probemap/internal/action"
	"github.com/probemap/probemap/internal/graph"
	"github.com/probemap/probemap/internal/state"
)

// Strategy decides exploration order.
type Strategy interface {
	// Pick returns the next (state, action) pair to try, or false when
	// the strategy has no more work. The graph is the source of truth
	// for what is already explored; strategies must skip pairs the graph
	// reports explored, because a concurrent worker or an external
	// seeder may have claimed them since Notify.
	Pick(g *graph.Graph) (graph.Pair, bool)

	// Notify informs the strategy of a state's valid actions, either
	// because the state was just discovered or because newly satisfied
	// preconditions made more actions eligible from it.
	Notify(st state.State, actions []*action.Action)
}

// pairRef is a queued unit of work. Queues hold references, not live
// Pair values: the canonical state is re-fetched from the graph at pick
// time so checkpoint upgrades since enqueueing are visible.
type pairRef struct {
	stateID string
	action  string
}

// resolve turns a reference back into a live pair against the graph.
// False when the state is gone (never happens today: states are never
// removed) or the action is no longer registered.
func resolve(g *graph.Graph, ref pairRef) (graph.Pair, bool) {
	st, ok := g.State(ref.stateID)
	if !ok {
		return graph.Pair{}, false
	}
	a, ok := g.Action(ref.action)
	if !ok {
		return graph.Pair{}, false
	}
	return graph.Pair{State: st, Action: a}, true
}
