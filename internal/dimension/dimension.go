// Package dimension compiles CUE dimension schemas into the labeler that
// attaches hyperedges to observed states, plus the constraint set marking
// dimension combinations that must not occur.
//
// A schema names the axes of the state space worth tracking: which system
// the axis reads from, the path into that system's observation data, and
// either an enumerated value set or numeric bands. The labeler projects
// every observed state onto those axes.
package dimension

import (
	"encoding/json"
	"slices"
	"strconv"

	"github.com/probemap/probemap/internal/hypergraph"
)

// Band maps a numeric range to one dimension value. Bands are declared in
// ascending Max order; a band without a max is the open-ended catch-all
// and must come last.
type Band struct {
	Label string
	Max   float64
	Open  bool
}

// Dimension is one labeled axis of the state space.
type Dimension struct {
	// Name is the dimension name as it appears on hyperedges.
	Name string

	// System names the observation the value is read from.
	System string

	// Path is the dot path into the observation data, already split.
	Path []string

	// Values is the optional enumerated value set. It feeds coverage
	// denominators; observed values outside it still label the state,
	// so surprises stay visible rather than silently dropped.
	Values []string

	// Bands optionally bucket a numeric value. Mutually exclusive with
	// Values.
	Bands []Band
}

// Schema is a compiled dimension schema: the axes plus the constraints
// over their combinations.
type Schema struct {
	Dimensions  []Dimension
	Constraints []hypergraph.Constraint
}

// KnownValues returns the full value enum per dimension, for coverage
// denominators. Banded dimensions enumerate their band labels; dimensions
// with neither values nor bands are absent because their value space is
// unknown.
func (s *Schema) KnownValues() map[string][]string {
	out := make(map[string][]string, len(s.Dimensions))
	for _, d := range s.Dimensions {
		switch {
		case len(d.Bands) > 0:
			labels := make([]string, 0, len(d.Bands))
			for _, b := range d.Bands {
				labels = append(labels, b.Label)
			}
			out[d.Name] = labels
		case len(d.Values) > 0:
			out[d.Name] = slices.Clone(d.Values)
		}
	}
	return out
}

// resolve maps a raw observation value onto this dimension's label.
func (d Dimension) resolve(raw any) (string, bool) {
	if len(d.Bands) > 0 {
		n, ok := asFloat(raw)
		if !ok {
			return "", false
		}
		for _, b := range d.Bands {
			if b.Open || n <= b.Max {
				return b.Label, true
			}
		}
		return "", false
	}
	return stringify(raw)
}

func asFloat(raw any) (float64, bool) {
	switch v := raw.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	}
	return 0, false
}

func stringify(raw any) (string, bool) {
	switch v := raw.(type) {
	case string:
		return v, true
	case bool:
		return strconv.FormatBool(v), true
	case int:
		return strconv.Itoa(v), true
	case int32:
		return strconv.FormatInt(int64(v), 10), true
	case int64:
		return strconv.FormatInt(v, 10), true
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), true
	case json.Number:
		return v.String(), true
	}
	return "", false
}
