package action

import (
	"fmt"
	"strings"

	"github.com/probemap/probemap/internal/env"
	"github.com/probemap/probemap/internal/state"
)

// Precondition is a sealed interface over the three eligibility rule
// kinds. Only Guard, RequiresEnvKeys, and RequiresPriorActions implement
// it; callers dispatch by type switch.
//
// Guard evaluates against the state alone. The other two need live
// exploration data (the shared env, the set of actions already fired on
// the current path) that a bare State cannot carry; when that data is
// not supplied they report eligible and the real gate is applied by
// whoever holds the live data.
type Precondition interface {
	precondition()
	// Describe returns a short human-readable form for logs and reports.
	Describe() string
}

// Guard is a plain predicate over the observed state.
type Guard struct {
	Name string
	Fn   func(state.State) bool
}

func (Guard) precondition() {}

func (g Guard) Describe() string {
	if g.Name != "" {
		return g.Name
	}
	return "guard"
}

// RequiresEnvKeys gates an action on context keys being set (for example
// a captured resource id a later request interpolates into its path).
type RequiresEnvKeys struct {
	Keys []string
}

func (RequiresEnvKeys) precondition() {}

func (r RequiresEnvKeys) Describe() string {
	return fmt.Sprintf("requires env keys %s", strings.Join(r.Keys, ", "))
}

// RequiresPriorActions gates an action on other named actions having
// fired at least once along the current exploration path.
type RequiresPriorActions struct {
	Names []string
}

func (RequiresPriorActions) precondition() {}

func (r RequiresPriorActions) Describe() string {
	return fmt.Sprintf("requires prior actions %s", strings.Join(r.Names, ", "))
}

// Eligible reports whether the action's preconditions all hold for st.
//
// e and executed refine the evaluation: with a nil env, RequiresEnvKeys
// preconditions are treated as satisfied; with a nil executed set,
// RequiresPriorActions preconditions are treated as satisfied. Guards
// always evaluate. Pass live values for strict evaluation, nil for the
// permissive graph-shape view. Note the nil/empty distinction: a non-nil
// empty executed set means "supplied, nothing has fired" and evaluates
// strictly.
func (a *Action) Eligible(st state.State, e *env.Env, executed map[string]bool) bool {
	for _, pre := range a.preconditions {
		switch p := pre.(type) {
		case Guard:
			if p.Fn != nil && !p.Fn(st) {
				return false
			}
		case RequiresEnvKeys:
			if e != nil && !e.Has(p.Keys...) {
				return false
			}
		case RequiresPriorActions:
			if executed == nil {
				continue
			}
			for _, name := range p.Names {
				if !executed[name] {
					return false
				}
			}
		}
	}
	return true
}
