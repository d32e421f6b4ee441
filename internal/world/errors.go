package world

import (
	"errors"
	"fmt"
	"strings"
)

// Op names the world operation an AtomicityError occurred in.
type Op string

const (
	OpCheckpoint Op = "checkpoint"
	OpRollback   Op = "rollback"
)

// UnknownCheckpointError reports a rollback against a checkpoint id this
// world never issued. Fatal to the exploration path that requested it:
// the path's position cannot be re-established.
type UnknownCheckpointError struct {
	ID string
}

// Error implements the error interface.
func (e *UnknownCheckpointError) Error() string {
	return fmt.Sprintf("unknown checkpoint %q", e.ID)
}

// IsUnknownCheckpoint returns true if the error is an
// UnknownCheckpointError. Uses errors.As to handle wrapped errors.
func IsUnknownCheckpoint(err error) bool {
	var ue *UnknownCheckpointError
	return errors.As(err, &ue)
}

// AtomicityError reports a checkpoint or rollback that failed after some
// systems had already completed the operation. Once one system has
// diverged from the others the cross-system atomicity guarantee is gone,
// so this error is fatal to the whole run, not just the current path.
type AtomicityError struct {
	// Op is the operation that failed.
	Op Op

	// CheckpointID identifies the affected bundle.
	CheckpointID string

	// System is the system whose call failed.
	System string

	// Completed lists the systems that finished the operation before the
	// failure, in registration order. Empty means the first system
	// failed and nothing diverged.
	Completed []string

	// Err is the underlying system error.
	Err error
}

// Error implements the error interface.
func (e *AtomicityError) Error() string {
	done := "none"
	if len(e.Completed) > 0 {
		done = strings.Join(e.Completed, ", ")
	}
	return fmt.Sprintf("%s atomicity broken at system %q (checkpoint=%s, completed: %s): %v",
		e.Op, e.System, e.CheckpointID, done, e.Err)
}

// Unwrap returns the underlying system error.
func (e *AtomicityError) Unwrap() error {
	return e.Err
}

// IsAtomicityError returns true if the error is an AtomicityError.
// Uses errors.As to handle wrapped errors.
func IsAtomicityError(err error) bool {
	var ae *AtomicityError
	return errors.As(err, &ae)
}
