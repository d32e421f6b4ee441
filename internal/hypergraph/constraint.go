package hypergraph

import "github.com/probemap/probemap/internal/state"

// Constraint marks a dimension combination as invalid: when every When
// pair matches a hyperedge, every Require pair must also hold. An edge
// matching When but failing Require violates the constraint. Edges the
// When clause does not apply to never violate it.
//
// Example: anonymous users cannot hold a role is
// {When: {"auth": "anonymous"}, Require: {"role": "none"}}.
type Constraint struct {
	Name    string
	When    map[string]string
	Require map[string]string
}

// Violates reports whether the hyperedge breaks this constraint.
// Dimensions missing from the edge never match a When pair and never
// satisfy a Require pair.
func (c Constraint) Violates(he state.Hyperedge) bool {
	for dim, want := range c.When {
		if got, ok := he.Dimensions[dim]; !ok || got != want {
			return false
		}
	}
	for dim, want := range c.Require {
		if got, ok := he.Dimensions[dim]; !ok || got != want {
			return true
		}
	}
	return false
}

// Allowed reports whether the hyperedge satisfies every constraint.
func Allowed(he state.Hyperedge, constraints []Constraint) bool {
	for _, c := range constraints {
		if c.Violates(he) {
			return false
		}
	}
	return true
}
