package strategy

import (
	"github.com/probemap/probemap/internal/action"
	"github.com/probemap/probemap/internal/graph"
	"github.com/probemap/probemap/internal/state"
)

// CoverageGuided maximizes action diversity: every pick recomputes how
// often each action name appears across all recorded transitions and
// returns the unexplored pair whose action has been tried least overall.
// Where BFS deepens paths, this strategy spreads attempts across the
// action set, pulling rarely exercised operations forward regardless of
// where in the graph they are eligible.
type CoverageGuided struct{}

// NewCoverageGuided creates a coverage-guided strategy.
func NewCoverageGuided() *CoverageGuided {
	return &CoverageGuided{}
}

// Pick returns the unexplored pair with the globally least-used action,
// ties broken by encounter order (state discovery order, then action
// declaration order).
func (s *CoverageGuided) Pick(g *graph.Graph) (graph.Pair, bool) {
	pairs := g.Unexplored()
	if len(pairs) == 0 {
		return graph.Pair{}, false
	}

	usage := g.ActionUsage()
	best := pairs[0]
	bestUsed := usage[best.Action.Name()]
	for _, pair := range pairs[1:] {
		if used := usage[pair.Action.Name()]; used < bestUsed {
			best, bestUsed = pair, used
		}
	}
	return best, true
}

// Notify is a no-op: the strategy rescans the graph on every pick.
func (s *CoverageGuided) Notify(state.State, []*action.Action) {}
