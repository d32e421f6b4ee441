package state

import (
	"fmt"

	"github.com/probemap/probemap/internal/canonical"
)

// Domain prefixes for content-addressed identity.
// Version suffix enables future algorithm migration.
const (
	DomainState      = "probemap/state/v1"
	DomainHyperedge  = "probemap/hyperedge/v1"
	DomainTransition = "probemap/transition/v1"
)

// StateID computes the content-addressed ID for a set of observations.
// The ID hashes only {system: data}, sorted by system name. Timestamps
// and metadata are excluded, so two states built from identical
// observation data always collapse to the same ID regardless of when or
// how they were observed. This is the dedup mechanism that bounds the
// explored graph.
func StateID(observations map[string]Observation) (string, error) {
	content := make(map[string]any, len(observations))
	for system, obs := range observations {
		content[system] = obs.Data
	}

	id, err := canonical.Hash(DomainState, content)
	if err != nil {
		return "", fmt.Errorf("state id: %w", err)
	}
	return id, nil
}

// HyperedgeKey computes the content-addressed key for a dimension map.
// Partial flags and anything else outside the dimension values are
// excluded: two hyperedges with equal dimension maps are the same edge.
func HyperedgeKey(dimensions map[string]string) string {
	return canonical.MustHash(DomainHyperedge, dimensions)
}

// TransitionID computes the content-addressed ID for a (from, action, to)
// triple. Timing and result metadata are excluded, so revisiting the same
// logical edge via a different path yields the same ID.
func TransitionID(fromStateID, actionName, toStateID string) string {
	return canonical.MustHash(DomainTransition, map[string]any{
		"from":   fromStateID,
		"action": actionName,
		"to":     toStateID,
	})
}
