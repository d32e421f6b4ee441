package state

// Hyperedge is a multi-dimensional categorical label attached to a state,
// e.g. {auth: "admin", resource: "present", count_class: "many"}.
// Equality is by dimension content: two hyperedges with the same
// dimension map share the same Key. Partial marks labels where some
// dimension could not be resolved; it does not participate in identity.
type Hyperedge struct {
	Key        string
	Dimensions map[string]string
	Partial    bool
}

// NewHyperedge builds a Hyperedge over a copy of the dimension map.
func NewHyperedge(dimensions map[string]string) Hyperedge {
	dims := make(map[string]string, len(dimensions))
	for k, v := range dimensions {
		dims[k] = v
	}
	return Hyperedge{
		Key:        HyperedgeKey(dims),
		Dimensions: dims,
	}
}

// NewPartialHyperedge is NewHyperedge with the partial flag set.
func NewPartialHyperedge(dimensions map[string]string) Hyperedge {
	he := NewHyperedge(dimensions)
	he.Partial = true
	return he
}

// Hamming returns the number of dimensions whose values differ between
// the two edges, over the union of their dimension names. A dimension
// present on one side and missing on the other counts as differing.
// This is the novelty metric used by dimension-aware strategies.
func (h Hyperedge) Hamming(other Hyperedge) int {
	distance := 0
	for name, v := range h.Dimensions {
		if ov, ok := other.Dimensions[name]; !ok || ov != v {
			distance++
		}
	}
	for name := range other.Dimensions {
		if _, ok := h.Dimensions[name]; !ok {
			distance++
		}
	}
	return distance
}

// Value returns the value for one dimension.
func (h Hyperedge) Value(dimension string) (string, bool) {
	v, ok := h.Dimensions[dimension]
	return v, ok
}
