package agent

import (
	"errors"
	"fmt"
)

// AbortError wraps the fatal conditions that kill a whole run (broken
// cross-system atomicity, an action violating its execution contract),
// carrying enough context to reproduce: which state was being explored,
// which action fired, which checkpoint was involved.
type AbortError struct {
	StateID      string
	Action       string
	CheckpointID string
	Err          error
}

// Error implements the error interface.
func (e *AbortError) Error() string {
	return fmt.Sprintf("exploration aborted at state %s action %q (checkpoint=%s): %v",
		shortID(e.StateID), e.Action, e.CheckpointID, e.Err)
}

// Unwrap returns the underlying fatal condition.
func (e *AbortError) Unwrap() error {
	return e.Err
}

// IsAbort reports whether err is an AbortError.
// Uses errors.As to handle wrapped errors.
func IsAbort(err error) bool {
	var ae *AbortError
	return errors.As(err, &ae)
}

// shortID truncates a content hash for log and error readability.
func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}
