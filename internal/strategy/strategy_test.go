package strategy

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/probemap/probemap/internal/action"
	"github.com/probemap/probemap/internal/graph"
	"github.com/probemap/probemap/internal/hypergraph"
	"github.com/probemap/probemap/internal/state"
)

func testState(t *testing.T, value any) state.State {
	t.Helper()
	return state.MustNew(state.NewObservation("api", map[string]any{"value": value}))
}

func namedActions(names ...string) []*action.Action {
	out := make([]*action.Action, 0, len(names))
	for _, name := range names {
		out = append(out, action.New(name, nil))
	}
	return out
}

func pickName(t *testing.T, s Strategy, g *graph.Graph) (string, string) {
	t.Helper()
	pair, ok := s.Pick(g)
	require.True(t, ok, "expected the strategy to have work")
	return pair.State.ID, pair.Action.Name()
}

func TestBFSPicksInNotifyOrder(t *testing.T) {
	g := graph.New(namedActions("a1", "a2")...)
	s0 := g.AddState(testState(t, "root"))
	s1 := g.AddState(testState(t, "child"))

	bfs := NewBFS()
	bfs.Notify(s0, g.Actions())
	bfs.Notify(s1, g.Actions())

	stID, act := pickName(t, bfs, g)
	assert.Equal(t, s0.ID, stID)
	assert.Equal(t, "a1", act)

	stID, act = pickName(t, bfs, g)
	assert.Equal(t, s0.ID, stID)
	assert.Equal(t, "a2", act, "the first state's actions drain before the second state's")

	stID, _ = pickName(t, bfs, g)
	assert.Equal(t, s1.ID, stID)
}

func TestBFSSkipsExploredPairs(t *testing.T) {
	g := graph.New(namedActions("a1", "a2")...)
	s0 := g.AddState(testState(t, "root"))

	bfs := NewBFS()
	bfs.Notify(s0, g.Actions())
	g.MarkExplored(s0.ID, "a1")

	_, act := pickName(t, bfs, g)
	assert.Equal(t, "a2", act, "a pair reserved since Notify is skipped")
}

func TestBFSFallsBackToGraphScan(t *testing.T) {
	g := graph.New(namedActions("a1")...)
	s0 := g.AddState(testState(t, "seeded"))

	// Never notified: the pair exists only in the graph.
	bfs := NewBFS()
	stID, act := pickName(t, bfs, g)
	assert.Equal(t, s0.ID, stID)
	assert.Equal(t, "a1", act)
}

func TestBFSExhausted(t *testing.T) {
	g := graph.New(namedActions("a1")...)
	s0 := g.AddState(testState(t, "root"))
	g.MarkExplored(s0.ID, "a1")

	bfs := NewBFS()
	bfs.Notify(s0, g.Actions())

	_, ok := bfs.Pick(g)
	assert.False(t, ok)
}

func TestDFSDivesIntoNewestState(t *testing.T) {
	g := graph.New(namedActions("a1", "a2")...)
	s0 := g.AddState(testState(t, "root"))
	dfs := NewDFS()
	dfs.Notify(s0, g.Actions())

	stID, act := pickName(t, dfs, g)
	assert.Equal(t, s0.ID, stID)
	assert.Equal(t, "a1", act, "actions pushed in reverse pop in declaration order")

	// Trying a1 discovered s1; its work lands on top of the stack.
	s1 := g.AddState(testState(t, "deeper"))
	dfs.Notify(s1, g.Actions())

	stID, act = pickName(t, dfs, g)
	assert.Equal(t, s1.ID, stID, "the newest state is probed before the root's remaining work")
	assert.Equal(t, "a1", act)

	stID, act = pickName(t, dfs, g)
	assert.Equal(t, s1.ID, stID)
	assert.Equal(t, "a2", act)

	stID, act = pickName(t, dfs, g)
	assert.Equal(t, s0.ID, stID)
	assert.Equal(t, "a2", act)
}

func TestRandomCoversAllPairs(t *testing.T) {
	g := graph.New(namedActions("a1", "a2")...)
	g.AddState(testState(t, "one"))
	g.AddState(testState(t, "two"))

	s := NewRandom(rand.New(rand.NewSource(7)))
	seen := make(map[string]bool)
	for i := 0; i < 200; i++ {
		pair, ok := s.Pick(g)
		require.True(t, ok)
		seen[pair.State.ID+"/"+pair.Action.Name()] = true
	}
	assert.Len(t, seen, 4, "uniform sampling reaches every unexplored pair")
}

func TestRandomExhausted(t *testing.T) {
	g := graph.New()
	g.AddState(testState(t, "one"))

	s := NewRandom(rand.New(rand.NewSource(1)))
	_, ok := s.Pick(g)
	assert.False(t, ok, "no registered actions means no pairs")
}

func TestWeightedPrefersHeavyActions(t *testing.T) {
	g := graph.New(namedActions("rare", "hot")...)
	g.AddState(testState(t, "s"))

	s := NewWeighted(map[string]float64{"hot": 9, "rare": 1}, rand.New(rand.NewSource(42)))
	counts := map[string]int{}
	for i := 0; i < 500; i++ {
		pair, ok := s.Pick(g)
		require.True(t, ok)
		counts[pair.Action.Name()]++
	}

	assert.Greater(t, counts["hot"], counts["rare"]*3, "a 9:1 weight ratio dominates the draw")
	assert.Greater(t, counts["rare"], 0, "light actions still get sampled")
}

func TestWeightedZeroTotalFallsBackToUniform(t *testing.T) {
	g := graph.New(namedActions("a", "b")...)
	g.AddState(testState(t, "s"))

	s := NewWeighted(map[string]float64{"a": 0, "b": 0}, rand.New(rand.NewSource(3)))
	counts := map[string]int{}
	for i := 0; i < 200; i++ {
		pair, ok := s.Pick(g)
		require.True(t, ok)
		counts[pair.Action.Name()]++
	}
	assert.Greater(t, counts["a"], 0)
	assert.Greater(t, counts["b"], 0, "an all-zero table degrades to a uniform draw instead of starving")
}

func TestWeightedUnlistedActionGetsDefaultWeight(t *testing.T) {
	g := graph.New(namedActions("listed", "unlisted")...)
	g.AddState(testState(t, "s"))

	// "listed" is excluded, so "unlisted" at the default weight should
	// win every draw.
	s := NewWeighted(map[string]float64{"listed": 0}, rand.New(rand.NewSource(5)))
	for i := 0; i < 50; i++ {
		pair, ok := s.Pick(g)
		require.True(t, ok)
		assert.Equal(t, "unlisted", pair.Action.Name())
	}
}

func TestCoverageGuidedPicksLeastUsedAction(t *testing.T) {
	g := graph.New(namedActions("common", "rare")...)
	s1 := g.AddState(testState(t, 1))
	s2 := g.AddState(testState(t, 2))

	// "common" has fired twice across the graph, "rare" never.
	g.AddTransition(state.NewTransition(s1.ID, "common", s2.ID))
	g.AddTransition(state.NewTransition(s2.ID, "common", s1.ID))

	s := NewCoverageGuided()
	stID, act := pickName(t, s, g)
	assert.Equal(t, "rare", act, "the globally least-used action wins")
	assert.Equal(t, s1.ID, stID, "ties on usage break by encounter order")
}

func TestCoverageGuidedTieBreaksByEncounterOrder(t *testing.T) {
	g := graph.New(namedActions("a1", "a2")...)
	s1 := g.AddState(testState(t, 1))
	g.AddState(testState(t, 2))

	s := NewCoverageGuided()
	stID, act := pickName(t, s, g)
	assert.Equal(t, s1.ID, stID)
	assert.Equal(t, "a1", act, "with no usage at all, the first encountered pair wins")
}

func TestDimensionNoveltyPrefersDistantState(t *testing.T) {
	g := graph.New(namedActions("probe")...)
	hg := hypergraph.New()

	typical1 := g.AddState(testState(t, "typical-1"))
	typical2 := g.AddState(testState(t, "typical-2"))
	outlier := g.AddState(testState(t, "outlier"))

	common := map[string]string{"auth": "user", "role": "member"}
	hg.Add(typical1.ID, state.NewHyperedge(common))
	hg.Add(typical2.ID, state.NewHyperedge(common))
	hg.Add(outlier.ID, state.NewHyperedge(map[string]string{"auth": "admin", "role": "root"}))

	s := NewDimensionNovelty(hg, nil)
	stID, _ := pickName(t, s, g)
	assert.Equal(t, outlier.ID, stID, "the state farthest from the centroid is picked first")
}

func TestDimensionNoveltyExcludesConstraintViolations(t *testing.T) {
	g := graph.New(namedActions("probe")...)
	hg := hypergraph.New()

	typical1 := g.AddState(testState(t, "typical-1"))
	typical2 := g.AddState(testState(t, "typical-2"))
	impossible := g.AddState(testState(t, "impossible"))
	novel := g.AddState(testState(t, "novel"))

	common := map[string]string{"auth": "user", "role": "member"}
	hg.Add(typical1.ID, state.NewHyperedge(common))
	hg.Add(typical2.ID, state.NewHyperedge(common))
	// Distance 2 from the centroid, but the combination is invalid.
	hg.Add(impossible.ID, state.NewHyperedge(map[string]string{"auth": "anonymous", "role": "root"}))
	hg.Add(novel.ID, state.NewHyperedge(map[string]string{"auth": "user", "role": "admin"}))

	constraints := []hypergraph.Constraint{{
		Name:    "anonymous users hold no role",
		When:    map[string]string{"auth": "anonymous"},
		Require: map[string]string{"role": "none"},
	}}

	s := NewDimensionNovelty(hg, constraints)
	stID, _ := pickName(t, s, g)
	assert.Equal(t, novel.ID, stID, "an invalid label combination is never rewarded as novel")
}

func TestDimensionNoveltyFallsBackToFIFO(t *testing.T) {
	g := graph.New(namedActions("a1", "a2")...)
	s0 := g.AddState(testState(t, "root"))

	s := NewDimensionNovelty(hypergraph.New(), nil)
	s.Notify(s0, g.Actions())

	stID, act := pickName(t, s, g)
	assert.Equal(t, s0.ID, stID)
	assert.Equal(t, "a1", act, "an empty index degrades to FIFO order")
}

func TestDimensionNoveltyNilHypergraph(t *testing.T) {
	g := graph.New(namedActions("a1")...)
	s0 := g.AddState(testState(t, "root"))

	s := NewDimensionNovelty(nil, nil)
	stID, act := pickName(t, s, g)
	assert.Equal(t, s0.ID, stID)
	assert.Equal(t, "a1", act, "no index at all still picks via the graph scan")
}

func TestDimensionNoveltyUsesStateLabelWhenUnindexed(t *testing.T) {
	g := graph.New(namedActions("probe")...)
	hg := hypergraph.New()

	typical := g.AddState(testState(t, "typical"))
	hg.Add(typical.ID, state.NewHyperedge(map[string]string{"auth": "user"}))

	// Observed and labeled, but not yet indexed.
	fresh := testState(t, "fresh").WithHyperedge(state.NewHyperedge(map[string]string{"auth": "admin"}))
	g.AddState(fresh)

	s := NewDimensionNovelty(hg, nil)
	stID, _ := pickName(t, s, g)
	assert.Equal(t, fresh.ID, stID, "the label carried on the state scores before indexing catches up")
}
