package strategy

import (
	"github.com/probemap/probemap/internal/action"
	"github.com/probemap/probemap/internal/graph"
	"github.com/probemap/probemap/internal/state"
)

// BFS explores in shortest-path-first order: a FIFO queue of
// (state, action) pairs, seeded from the initial state's valid actions
// and extended as Notify reports each newly discovered state. States
// close to the initial state are fully tried before deeper ones.
type BFS struct {
	queue []pairRef
}

// NewBFS creates an empty breadth-first strategy.
func NewBFS() *BFS {
	return &BFS{}
}

// Pick drains the queue front-first, skipping pairs the graph already
// explored. When the queue runs dry it falls back to scanning the
// graph's unexplored pairs, which covers work seeded into the graph
// from outside the Notify flow.
func (s *BFS) Pick(g *graph.Graph) (graph.Pair, bool) {
	for len(s.queue) > 0 {
		ref := s.queue[0]
		s.queue = s.queue[1:]
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

// Notify appends the state's valid actions in declaration order.
func (s *BFS) Notify(st state.State, actions []*action.Action) {
	for _, a := range actions {
		s.queue = append(s.queue, pairRef{stateID: st.ID, action: a.Name()})
	}
}
