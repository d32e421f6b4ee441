package graph

import "github.com/probemap/probemap/internal/state"

// PathTo returns the shortest sequence of transitions from the initial
// state to the state with the given id, found by breadth-first traversal
// of the transition adjacency. The initial state yields an empty path.
// A nil slice and false mean the state is unknown or unreachable from
// the initial state.
//
// Under deduplication several paths may reach the same state; BFS makes
// the returned one shortest, and among equal-length paths the one using
// earliest-recorded transitions wins, so reproduction paths are stable
// across runs with the same exploration order.
func (g *Graph) PathTo(stateID string) ([]state.Transition, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if g.initialID == "" {
		return nil, false
	}
	if _, known := g.states[stateID]; !known {
		return nil, false
	}
	if stateID == g.initialID {
		return []state.Transition{}, true
	}

	// prev maps a visited state id to the transition that first reached
	// it during the traversal.
	prev := make(map[string]state.Transition)
	visited := map[string]bool{g.initialID: true}
	queue := []string{g.initialID}

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]

		for _, trID := range g.adjacency[cur] {
			tr := g.transitions[trID]
			if visited[tr.To] {
				continue
			}
			visited[tr.To] = true
			prev[tr.To] = tr
			if tr.To == stateID {
				return g.assemblePath(prev, stateID), true
			}
			queue = append(queue, tr.To)
		}
	}
	return nil, false
}

func (g *Graph) assemblePath(prev map[string]state.Transition, stateID string) []state.Transition {
	var reversed []state.Transition
	for cur := stateID; cur != g.initialID; {
		tr := prev[cur]
		reversed = append(reversed, tr)
		cur = tr.From
	}

	path := make([]state.Transition, 0, len(reversed))
	for i := len(reversed) - 1; i >= 0; i-- {
		path = append(path, reversed[i])
	}
	return path
}
