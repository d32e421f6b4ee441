package agent

import (
	"github.com/probemap/probemap/internal/env"
	"github.com/probemap/probemap/internal/state"
)

// Severity grades how bad an invariant violation is.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityError    Severity = "error"
	SeverityWarning  Severity = "warning"
	SeverityInfo     Severity = "info"
)

// Invariant is a property checked against every newly observed state.
// The env-aware and state-only forms are separate constructors so the
// signature is fixed at registration, never probed at runtime.
type Invariant struct {
	name       string
	severity   Severity
	checkState func(state.State) bool
	checkEnv   func(state.State, *env.Env) bool
}

// NewInvariant creates an invariant evaluated against the observed state
// alone.
func NewInvariant(name string, severity Severity, check func(state.State) bool) Invariant {
	return Invariant{name: name, severity: severity, checkState: check}
}

// NewEnvInvariant creates an invariant that also inspects the shared env
// (say, a captured resource id that must still resolve).
func NewEnvInvariant(name string, severity Severity, check func(state.State, *env.Env) bool) Invariant {
	return Invariant{name: name, severity: severity, checkEnv: check}
}

// Name returns the invariant's name.
func (inv Invariant) Name() string { return inv.name }

// Severity returns the configured severity.
func (inv Invariant) Severity() Severity { return inv.severity }

// Holds evaluates the invariant. An invariant with no check function
// holds vacuously.
func (inv Invariant) Holds(st state.State, e *env.Env) bool {
	switch {
	case inv.checkEnv != nil:
		return inv.checkEnv(st, e)
	case inv.checkState != nil:
		return inv.checkState(st)
	default:
		return true
	}
}

// Violation records one failed invariant check: which property broke,
// after which action, at which state, and a transition path that
// reproduces it from the initial state.
type Violation struct {
	Invariant string
	Severity  Severity
	Action    string
	StateID   string

	// Message carries detail for validation-shorthand failures; empty
	// for plain invariant breaks, where the name says it all.
	Message string

	// Path is the shortest recorded route from the initial state to the
	// violating state at the time the violation was observed.
	Path []state.Transition
}

// UniqueViolations collapses a violation list to one entry per
// (invariant, action) pair, keeping the one with the shortest
// reproduction path. The same property breaking after the same action
// in forty places is one bug, and the shortest witness is the one worth
// handing to a human.
func UniqueViolations(violations []Violation) []Violation {
	type key struct{ invariant, action string }

	best := make(map[key]int)
	var order []key
	for i, v := range violations {
		k := key{v.Invariant, v.Action}
		prev, seen := best[k]
		if !seen {
			best[k] = i
			order = append(order, k)
			continue
		}
		if len(v.Path) < len(violations[prev].Path) {
			best[k] = i
		}
	}

	out := make([]Violation, 0, len(order))
	for _, k := range order {
		out = append(out, violations[best[k]])
	}
	return out
}
