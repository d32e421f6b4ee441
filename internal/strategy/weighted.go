package strategy

import (
	"math/rand"

	"github.com/probemap/probemap/internal/action"
	"github.com/probemap/probemap/internal/graph"
	"github.com/probemap/probemap/internal/state"
)

// DefaultWeight is the sampling weight of actions without an explicit
// entry in the weight table.
const DefaultWeight = 1.0

// Weighted samples from the graph's unexplored pairs with per-action
// weights, biasing exploration toward interesting operations (say,
// weight 5 on "delete" to hammer cleanup paths) without starving the
// rest. Zero and negative weights exclude an action from weighted
// draws; when every candidate is excluded the draw degrades to uniform
// so the strategy never deadlocks on a misconfigured table.
type Weighted struct {
	weights map[string]float64
	rng     *rand.Rand
}

// NewWeighted creates a weighted strategy over a copy of the weight
// table. Actions absent from the table weigh DefaultWeight. A nil rng
// falls back to an unseeded one.
func NewWeighted(weights map[string]float64, rng *rand.Rand) *Weighted {
	w := make(map[string]float64, len(weights))
	for name, weight := range weights {
		w[name] = weight
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(rand.Int63()))
	}
	return &Weighted{weights: w, rng: rng}
}

// Pick draws one unexplored pair with probability proportional to its
// action's weight, falling back to a uniform draw when the total weight
// of all candidates is zero.
func (s *Weighted) Pick(g *graph.Graph) (graph.Pair, bool) {
	pairs := g.Unexplored()
	if len(pairs) == 0 {
		return graph.Pair{}, false
	}

	total := 0.0
	for _, pair := range pairs {
		total += s.weightOf(pair.Action.Name())
	}
	if total <= 0 {
		return pairs[s.rng.Intn(len(pairs))], true
	}

	target := s.rng.Float64() * total
	for _, pair := range pairs {
		target -= s.weightOf(pair.Action.Name())
		if target < 0 {
			return pair, true
		}
	}
	// Float accumulation can leave target at a hair above zero after the
	// last subtraction; the final candidate takes the draw.
	return pairs[len(pairs)-1], true
}

// Notify is a no-op: the strategy rescans the graph on every pick.
func (s *Weighted) Notify(state.State, []*action.Action) {}

func (s *Weighted) weightOf(name string) float64 {
	if w, ok := s.weights[name]; ok {
		if w < 0 {
			return 0
		}
		return w
	}
	return DefaultWeight
}
