package state

import (
	"fmt"
	"time"
)

// State is the content-addressed aggregate of all systems' observations
// at one moment. Two States built from identical {system: data} content
// share the same ID and are the same state for exploration purposes.
//
// States are immutable value types: every With* method returns a copy.
// The one sanctioned evolution is the checkpoint upgrade performed by the
// graph, which replaces a checkpoint-less canonical state with a copy
// carrying one. A checkpoint id, once attached, is never cleared.
type State struct {
	// ID is the deterministic hash of {system: data} across all
	// observations, sorted by system name, excluding timestamps.
	ID string

	// Observations holds one snapshot per system, keyed by system name.
	Observations map[string]Observation

	// CheckpointID references the world checkpoint representing this
	// state, when one was taken. Empty means no checkpoint.
	CheckpointID string

	// ParentTransitionID references the transition that first produced
	// this state. Empty for the initial state.
	ParentTransitionID string

	// Hyperedge is the optional multi-dimensional label attached by a
	// labeler. Nil when the state has not been labeled.
	Hyperedge *Hyperedge

	// CreatedAt records discovery time. Never hashed.
	CreatedAt time.Time
}

// New assembles a State from observations and computes its identity.
// Duplicate system names are an error: one snapshot per system.
func New(observations ...Observation) (State, error) {
	byName := make(map[string]Observation, len(observations))
	for _, obs := range observations {
		if obs.System == "" {
			return State{}, fmt.Errorf("observation has empty system name")
		}
		if _, dup := byName[obs.System]; dup {
			return State{}, fmt.Errorf("duplicate observation for system %q", obs.System)
		}
		byName[obs.System] = obs
	}

	id, err := StateID(byName)
	if err != nil {
		return State{}, err
	}

	return State{
		ID:           id,
		Observations: byName,
		CreatedAt:    time.Now(),
	}, nil
}

// MustNew is like New but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustNew(observations ...Observation) State {
	st, err := New(observations...)
	if err != nil {
		panic(err)
	}
	return st
}

// WithCheckpointID returns a copy carrying the given checkpoint id.
func (s State) WithCheckpointID(id string) State {
	s.Observations = s.copyObservations()
	s.CheckpointID = id
	return s
}

// WithParentTransition returns a copy referencing the transition that
// produced this state.
func (s State) WithParentTransition(transitionID string) State {
	s.Observations = s.copyObservations()
	s.ParentTransitionID = transitionID
	return s
}

// WithHyperedge returns a copy carrying the given dimension label.
func (s State) WithHyperedge(he Hyperedge) State {
	s.Observations = s.copyObservations()
	s.Hyperedge = &he
	return s
}

// Observation returns the snapshot for one system.
func (s State) Observation(system string) (Observation, bool) {
	obs, ok := s.Observations[system]
	return obs, ok
}

// Systems returns the number of systems observed in this state.
func (s State) Systems() int {
	return len(s.Observations)
}

func (s State) copyObservations() map[string]Observation {
	out := make(map[string]Observation, len(s.Observations))
	for k, v := range s.Observations {
		out[k] = v
	}
	return out
}
