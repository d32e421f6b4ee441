package strategy

import (
	"math/rand"

	"github.com/probemap/probemap/internal/action"
	"github.com/probemap/probemap/internal/graph"
	"github.com/probemap/probemap/internal/state"
)

// Random samples uniformly from the graph's unexplored pairs. It keeps
// no queue of its own, so Notify is a no-op; the graph scan on every
// pick naturally includes externally seeded work.
type Random struct {
	rng *rand.Rand
}

// NewRandom creates a uniform random strategy. A nil source falls back
// to an unseeded one; tests pass rand.New(rand.NewSource(seed)) for
// reproducible picks.
func NewRandom(rng *rand.Rand) *Random {
	if rng == nil {
		rng = rand.New(rand.NewSource(rand.Int63()))
	}
	return &Random{rng: rng}
}

// Pick draws one unexplored pair uniformly.
func (s *Random) Pick(g *graph.Graph) (graph.Pair, bool) {
	pairs := g.Unexplored()
	if len(pairs) == 0 {
		return graph.Pair{}, false
	}
	return pairs[s.rng.Intn(len(pairs))], true
}

// Notify is a no-op: the strategy rescans the graph on every pick.
func (s *Random) Notify(state.State, []*action.Action) {}
