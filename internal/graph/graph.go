// Package graph is the single source of truth for discovered states and
// transitions during one exploration run. It deduplicates states by
// content identity, suppresses duplicate transitions by their
// (from, action, to) triple, and tracks which (state, action) pairs have
// been explored so strategies and concurrent workers never repeat work.
package graph

import (
	"sort"
	"sync"

	"github.com/probemap/probemap/internal/action"
	"github.com/probemap/probemap/internal/state"
)

// Graph owns all states and transitions of one run. All methods are safe
// for concurrent use: reservation (MarkExplored) and commit
// (AddTransition) are atomic with respect to each other, and AddState's
// dedup-or-insert is atomic so two workers can never create divergent
// canonical states for the same content hash.
type Graph struct {
	mu sync.RWMutex

	states      map[string]state.State
	stateOrder  []string
	transitions map[string]state.Transition
	transOrder  []string
	adjacency   map[string][]string
	explored    map[string]bool
	actionUsage map[string]int
	initialID   string

	actions       []*action.Action
	actionsByName map[string]*action.Action
}

// New creates an empty graph over the given registered action set. The
// action list is the denominator for action coverage and the candidate
// set for valid-action queries; its declared order is the encounter
// order used for deterministic tie-breaking.
func New(actions ...*action.Action) *Graph {
	g := &Graph{
		states:        make(map[string]state.State),
		transitions:   make(map[string]state.Transition),
		adjacency:     make(map[string][]string),
		explored:      make(map[string]bool),
		actionUsage:   make(map[string]int),
		actionsByName: make(map[string]*action.Action, len(actions)),
	}
	for _, a := range actions {
		if _, dup := g.actionsByName[a.Name()]; dup {
			continue
		}
		g.actions = append(g.actions, a)
		g.actionsByName[a.Name()] = a
	}
	return g
}

// AddState returns the canonical state for st's content identity. If the
// identity is new, st itself becomes canonical; the first state ever
// added becomes the initial state. If a state with the same identity
// already exists it is returned instead, upgraded with st's checkpoint
// id when the existing one has none. Existing fields are never mutated;
// the upgrade replaces the stored value with a copy.
func (g *Graph) AddState(st state.State) state.State {
	g.mu.Lock()
	defer g.mu.Unlock()

	existing, ok := g.states[st.ID]
	if !ok {
		g.states[st.ID] = st
		g.stateOrder = append(g.stateOrder, st.ID)
		if g.initialID == "" {
			g.initialID = st.ID
		}
		return st
	}

	if existing.CheckpointID == "" && st.CheckpointID != "" {
		existing = existing.WithCheckpointID(st.CheckpointID)
		g.states[st.ID] = existing
	}
	return existing
}

// AddTransition records a logical edge and marks its (from, action) pair
// explored. It returns false without side effects when the same
// (from, action, to) triple was already recorded, so revisiting an edge
// via a different path never inflates counts or action usage.
func (g *Graph) AddTransition(tr state.Transition) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, dup := g.transitions[tr.ID]; dup {
		return false
	}

	g.transitions[tr.ID] = tr
	g.transOrder = append(g.transOrder, tr.ID)
	g.adjacency[tr.From] = append(g.adjacency[tr.From], tr.ID)
	g.explored[pairKey(tr.From, tr.Action)] = true
	g.actionUsage[tr.Action]++
	return true
}

// MarkExplored reserves a (state, action) pair before its result exists,
// so a coordinator can dispatch the pair to a worker without another
// worker picking it up. It returns true when this call made the
// reservation and false when the pair was already reserved or explored.
func (g *Graph) MarkExplored(stateID, actionName string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	key := pairKey(stateID, actionName)
	if g.explored[key] {
		return false
	}
	g.explored[key] = true
	return true
}

// Explored reports whether a (state, action) pair has been reserved or
// recorded.
func (g *Graph) Explored(stateID, actionName string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.explored[pairKey(stateID, actionName)]
}

// State returns the canonical state for an id.
func (g *Graph) State(id string) (state.State, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	st, ok := g.states[id]
	return st, ok
}

// InitialState returns the first state ever added.
func (g *Graph) InitialState() (state.State, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if g.initialID == "" {
		return state.State{}, false
	}
	return g.states[g.initialID], true
}

// States returns all states in discovery order.
func (g *Graph) States() []state.State {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]state.State, 0, len(g.stateOrder))
	for _, id := range g.stateOrder {
		out = append(out, g.states[id])
	}
	return out
}

// Transitions returns all recorded transitions in record order.
func (g *Graph) Transitions() []state.Transition {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]state.Transition, 0, len(g.transOrder))
	for _, id := range g.transOrder {
		out = append(out, g.transitions[id])
	}
	return out
}

// StateCount returns the number of distinct states discovered.
func (g *Graph) StateCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.states)
}

// TransitionCount returns the number of distinct transitions recorded.
func (g *Graph) TransitionCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.transitions)
}

// PairsExplored returns the raw count of (state, action) pairs reserved
// or recorded. Its implied denominator grows with every newly discovered
// state, so it can never reach 100%; prefer ActionCoveragePercent for a
// meaningful metric.
func (g *Graph) PairsExplored() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.explored)
}

// Actions returns the registered action set in declared order.
func (g *Graph) Actions() []*action.Action {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]*action.Action, len(g.actions))
	copy(out, g.actions)
	return out
}

// Action returns a registered action by name.
func (g *Graph) Action(name string) (*action.Action, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	a, ok := g.actionsByName[name]
	return a, ok
}

// ActionUsage returns how many times each action name appears across all
// recorded transitions. Names never recorded are absent.
func (g *Graph) ActionUsage() map[string]int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make(map[string]int, len(g.actionUsage))
	for name, n := range g.actionUsage {
		out[name] = n
	}
	return out
}

// UsedActions returns the names of registered actions recorded at least
// once, sorted.
func (g *Graph) UsedActions() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]string, 0, len(g.actionUsage))
	for name := range g.actionUsage {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// ActionCoveragePercent returns the fraction of registered actions
// executed at least once, as a percentage. A graph with no registered
// actions reports 0.
func (g *Graph) ActionCoveragePercent() float64 {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if len(g.actions) == 0 {
		return 0
	}
	used := 0
	for _, a := range g.actions {
		if g.actionUsage[a.Name()] > 0 {
			used++
		}
	}
	return float64(used) / float64(len(g.actions)) * 100
}

// pairKey builds the explored-set key. State ids are fixed-width hex, so
// the separator cannot collide with id content.
func pairKey(stateID, actionName string) string {
	return stateID + ":" + actionName
}
