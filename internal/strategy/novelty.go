package strategy

import (
	"github.com/probemap/probemap/internal/action"
	"github.com/probemap/probemap/internal/graph"
	"github.com/probemap/probemap/internal/hypergraph"
	"github.com/probemap/probemap/internal/state"
)

// DimensionNovelty steers exploration toward states whose dimension
// labels look least like what has already been seen. Each pick computes
// the hypergraph's centroid edge (per dimension, the most frequently
// observed value) and returns the unexplored pair whose state's
// hyperedge has the greatest Hamming distance from it, ties broken by
// encounter order.
//
// States whose labels violate a configured constraint (impossible
// dimension combinations, say an anonymous user holding a role) are
// excluded from novelty scoring: a label that cannot legitimately occur
// must not be rewarded as novel. With no hypergraph, an empty index, or
// no scorable candidate, the strategy degrades to plain FIFO order over
// notified work, which keeps exploration moving before the first labels
// arrive.
type DimensionNovelty struct {
	hg          *hypergraph.Hypergraph
	constraints []hypergraph.Constraint
	queue       []pairRef
}

// NewDimensionNovelty creates a novelty strategy over the given index.
// The constraint list may be nil.
func NewDimensionNovelty(hg *hypergraph.Hypergraph, constraints []hypergraph.Constraint) *DimensionNovelty {
	return &DimensionNovelty{hg: hg, constraints: constraints}
}

// Pick returns the unexplored pair most distant from the centroid, or
// the first pair in FIFO order when nothing can be scored.
func (s *DimensionNovelty) Pick(g *graph.Graph) (graph.Pair, bool) {
	pairs := g.Unexplored()
	if len(pairs) == 0 {
		return graph.Pair{}, false
	}

	if s.hg != nil {
		if centroid, ok := s.hg.Centroid(); ok {
			if pair, ok := s.mostNovel(pairs, centroid); ok {
				return pair, true
			}
		}
	}
	return s.pickFIFO(g, pairs)
}

// mostNovel scores each pair's state by Hamming distance from the
// centroid, skipping unlabeled states and labels that violate a
// constraint. False when no pair is scorable.
func (s *DimensionNovelty) mostNovel(pairs []graph.Pair, centroid state.Hyperedge) (graph.Pair, bool) {
	var (
		best     graph.Pair
		bestDist = -1
	)
	for _, pair := range pairs {
		he, ok := s.edgeFor(pair.State)
		if !ok {
			continue
		}
		if !hypergraph.Allowed(he, s.constraints) {
			continue
		}
		// Strictly greater keeps the earliest-encountered pair on ties.
		if d := he.Hamming(centroid); d > bestDist {
			best, bestDist = pair, d
		}
	}
	return best, bestDist >= 0
}

// edgeFor prefers the indexed edge, falling back to the label carried on
// the state itself for states observed but not yet indexed.
func (s *DimensionNovelty) edgeFor(st state.State) (state.Hyperedge, bool) {
	if s.hg != nil {
		if he, ok := s.hg.EdgeFor(st.ID); ok {
			return he, true
		}
	}
	if st.Hyperedge != nil {
		return *st.Hyperedge, true
	}
	return state.Hyperedge{}, false
}

func (s *DimensionNovelty) pickFIFO(g *graph.Graph, pairs []graph.Pair) (graph.Pair, bool) {
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
	return pairs[0], true
}

// Notify appends the state's valid actions to the FIFO fallback queue.
func (s *DimensionNovelty) Notify(st state.State, actions []*action.Action) {
	for _, a := range actions {
		s.queue = append(s.queue, pairRef{stateID: st.ID, action: a.Name()})
	}
}
