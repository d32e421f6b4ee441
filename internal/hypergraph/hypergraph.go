// Package hypergraph maintains a secondary index of explored states by
// their multi-dimensional labels. It never owns states: the exploration
// graph remains the source of truth, and this index only answers
// dimension queries (which states were observed as {auth: admin,
// resource: present}?), novelty queries (which label is farthest from
// the typical one?), and coverage queries (which value combinations were
// never co-observed?).
package hypergraph

import (
	"sort"
	"sync"

	"github.com/probemap/probemap/internal/state"
)

// Hypergraph indexes state ids by hyperedge and by individual dimension
// values. Entries are only ever added, never removed; repeat insertion
// of the same (state, edge) pair is a no-op.
type Hypergraph struct {
	mu sync.RWMutex

	edges       map[string]state.Hyperedge
	edgeStates  map[string]map[string]bool
	byDimension map[string]map[string]map[string]bool
	stateEdge   map[string]string
	stateOrder  []string
}

// New creates an empty hypergraph.
func New() *Hypergraph {
	return &Hypergraph{
		edges:       make(map[string]state.Hyperedge),
		edgeStates:  make(map[string]map[string]bool),
		byDimension: make(map[string]map[string]map[string]bool),
		stateEdge:   make(map[string]string),
	}
}

// Add indexes a state under its hyperedge, updating both the direct
// edge-to-states index and the per-dimension inverted index. Idempotent:
// re-adding the same state with the same edge changes nothing.
func (h *Hypergraph) Add(stateID string, he state.Hyperedge) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, seen := h.stateEdge[stateID]; !seen {
		h.stateOrder = append(h.stateOrder, stateID)
		h.stateEdge[stateID] = he.Key
	}

	if _, ok := h.edges[he.Key]; !ok {
		h.edges[he.Key] = he
	}

	states := h.edgeStates[he.Key]
	if states == nil {
		states = make(map[string]bool)
		h.edgeStates[he.Key] = states
	}
	if states[stateID] {
		return
	}
	states[stateID] = true

	for dim, value := range he.Dimensions {
		values := h.byDimension[dim]
		if values == nil {
			values = make(map[string]map[string]bool)
			h.byDimension[dim] = values
		}
		ids := values[value]
		if ids == nil {
			ids = make(map[string]bool)
			values[value] = ids
		}
		ids[stateID] = true
	}
}

// EdgeFor returns the hyperedge a state was first indexed under.
func (h *Hypergraph) EdgeFor(stateID string) (state.Hyperedge, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	key, ok := h.stateEdge[stateID]
	if !ok {
		return state.Hyperedge{}, false
	}
	return h.edges[key], true
}

// QueryByDimension returns the ids of all states matching every given
// dimension constraint, in state insertion order. An empty constraint
// map matches nothing.
func (h *Hypergraph) QueryByDimension(constraints map[string]string) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if len(constraints) == 0 {
		return nil
	}

	var matched map[string]bool
	for dim, value := range constraints {
		ids := h.byDimension[dim][value]
		if len(ids) == 0 {
			return nil
		}
		if matched == nil {
			matched = make(map[string]bool, len(ids))
			for id := range ids {
				matched[id] = true
			}
			continue
		}
		for id := range matched {
			if !ids[id] {
				delete(matched, id)
			}
		}
		if len(matched) == 0 {
			return nil
		}
	}

	var out []string
	for _, id := range h.stateOrder {
		if matched[id] {
			out = append(out, id)
		}
	}
	return out
}

// Dimensions returns all indexed dimension names, sorted.
func (h *Hypergraph) Dimensions() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]string, 0, len(h.byDimension))
	for dim := range h.byDimension {
		out = append(out, dim)
	}
	sort.Strings(out)
	return out
}

// ValuesFor returns all observed values of one dimension, sorted.
func (h *Hypergraph) ValuesFor(dimension string) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	values := h.byDimension[dimension]
	out := make([]string, 0, len(values))
	for v := range values {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

// UnexploredCombos returns the value combinations of two dimensions that
// were never co-observed on any single state: the Cartesian product of
// both dimensions' observed values minus the pairs some indexed state
// actually carries together. Combinations come out sorted by first then
// second value.
func (h *Hypergraph) UnexploredCombos(dimA, dimB string) [][2]string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	valuesA := sortedKeys(h.byDimension[dimA])
	valuesB := sortedKeys(h.byDimension[dimB])
	if len(valuesA) == 0 || len(valuesB) == 0 {
		return nil
	}

	seen := make(map[[2]string]bool)
	for _, he := range h.edges {
		va, okA := he.Dimensions[dimA]
		vb, okB := he.Dimensions[dimB]
		if okA && okB && len(h.edgeStates[he.Key]) > 0 {
			seen[[2]string{va, vb}] = true
		}
	}

	var out [][2]string
	for _, va := range valuesA {
		for _, vb := range valuesB {
			if !seen[[2]string{va, vb}] {
				out = append(out, [2]string{va, vb})
			}
		}
	}
	return out
}

// Centroid synthesizes the "typical" hyperedge: for every indexed
// dimension, the value observed on the most states, ties broken by the
// lexicographically smaller value. Returns false when nothing has been
// indexed. The centroid is the reference point for novelty scoring; it
// usually does not correspond to any actually observed edge.
func (h *Hypergraph) Centroid() (state.Hyperedge, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if len(h.byDimension) == 0 {
		return state.Hyperedge{}, false
	}

	dims := make(map[string]string, len(h.byDimension))
	for dim, values := range h.byDimension {
		best := ""
		bestCount := -1
		for _, value := range sortedKeys(values) {
			if n := len(values[value]); n > bestCount {
				best, bestCount = value, n
			}
		}
		dims[dim] = best
	}
	return state.NewHyperedge(dims), true
}

// StateCount returns the number of distinct states indexed.
func (h *Hypergraph) StateCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.stateEdge)
}

// EdgeCount returns the number of distinct hyperedges indexed.
func (h *Hypergraph) EdgeCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.edges)
}

func sortedKeys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
