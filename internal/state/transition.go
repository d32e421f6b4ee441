package state

import "time"

// Transition records one logical edge: executing Action from the state
// identified by From produced the state identified by To. Identity is the
// (from, action, to) triple; timing fields are informational so that
// revisiting the same edge via a different path never inflates counts.
type Transition struct {
	ID     string
	From   string
	Action string
	To     string

	// Duration is how long the action execution took. Never hashed.
	Duration time.Duration

	// RecordedAt is when the edge was first recorded. Never hashed.
	RecordedAt time.Time
}

// NewTransition builds a Transition and computes its triple identity.
func NewTransition(fromStateID, actionName, toStateID string) Transition {
	return Transition{
		ID:         TransitionID(fromStateID, actionName, toStateID),
		From:       fromStateID,
		Action:     actionName,
		To:         toStateID,
		RecordedAt: time.Now(),
	}
}

// WithDuration returns a copy carrying the action execution time.
func (t Transition) WithDuration(d time.Duration) Transition {
	t.Duration = d
	return t
}
