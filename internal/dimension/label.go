package dimension

import (
	"github.com/probemap/probemap/internal/state"
)

// Labeler projects observed states onto the schema's dimensions.
type Labeler struct {
	schema *Schema
}

// Labeler returns the labeler for this schema.
func (s *Schema) Labeler() *Labeler {
	return &Labeler{schema: s}
}

// Label resolves every dimension against the state's observations and
// returns the resulting hyperedge. Dimensions whose system is absent,
// whose path does not resolve, or whose value cannot be mapped stay off
// the edge. A state resolving no dimension at all gets no label.
func (l *Labeler) Label(st state.State) (state.Hyperedge, bool) {
	dims := make(map[string]string, len(l.schema.Dimensions))
	for _, d := range l.schema.Dimensions {
		obs, ok := st.Observation(d.System)
		if !ok {
			continue
		}
		raw, ok := walk(obs.Data, d.Path)
		if !ok {
			continue
		}
		val, ok := d.resolve(raw)
		if !ok {
			continue
		}
		dims[d.Name] = val
	}
	if len(dims) == 0 {
		return state.Hyperedge{}, false
	}
	return state.NewHyperedge(dims), true
}

// walk follows a dot path through nested observation data.
func walk(data map[string]any, path []string) (any, bool) {
	var cur any = data
	for _, seg := range path {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[seg]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}
