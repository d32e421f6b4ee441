package strategy

import (
	"github.com/probemap/probemap/internal/action"
	"github.com/probemap/probemap/internal/graph"
	"github.com/probemap/probemap/internal/state"
)

// DFS explores depth-first: a LIFO stack of (state, action) pairs, so
// each newly discovered state is probed before its siblings. Actions are
// pushed in reverse declaration order, making the first-declared action
// of the newest state the next pop.
type DFS struct {
	stack []pairRef
}

// NewDFS creates an empty depth-first strategy.
func NewDFS() *DFS {
	return &DFS{}
}

// Pick pops the stack, skipping pairs the graph already explored, then
// falls back to scanning the graph's unexplored pairs like BFS.
func (s *DFS) Pick(g *graph.Graph) (graph.Pair, bool) {
	for len(s.stack) > 0 {
		ref := s.stack[len(s.stack)-1]
		s.stack = s.stack[:len(s.stack)-1]
		if g.Explored(ref.stateID, ref.action) {
			continue
		}
		if pair, ok := resolve(g, ref); ok {
			return pair, true
		}
	}

	if pairs := g.Unexplored(); len(pairs) > 0 {
		return pairs[0], true
	}
	return graph.Pair{}, false
}

// Notify pushes the state's valid actions in reverse, so the pop order
// restores declaration order.
func (s *DFS) Notify(st state.State, actions []*action.Action) {
	for i := len(actions) - 1; i >= 0; i-- {
		s.stack = append(s.stack, pairRef{stateID: st.ID, action: actions[i].Name()})
	}
}
