package action

import (
	"errors"
	"fmt"
	"time"
)

// Result captures one action execution against the system under test.
type Result struct {
	// Success is the transport-level outcome: the request completed and
	// was not rejected. Validation shorthand may still fail a successful
	// result (or require a failed one, for negative tests).
	Success bool

	// Status is the protocol status code when the transport has one
	// (HTTP status, SQL error class mapped by the adapter); 0 otherwise.
	Status int

	// Request describes what was sent, for reproduction.
	Request any

	// Response is the decoded response payload, when any.
	Response any

	// Err holds the transport error message for failed executions.
	Err string

	// Duration is the execution wall time. Invoke fills it when the
	// body leaves it zero.
	Duration time.Duration
}

// Failed builds a Result describing a failed execution attempt.
func Failed(request any, err error) *Result {
	r := &Result{Success: false, Request: request}
	if err != nil {
		r.Err = err.Error()
	}
	return r
}

// ContractError reports an action definition that violates the execution
// contract (no body, or a body returning neither result nor error). This
// is a programming error, fatal to the run, never a runtime condition to
// absorb.
type ContractError struct {
	Action string
	Reason string
}

func (e *ContractError) Error() string {
	return fmt.Sprintf("action %s violates execution contract: %s", e.Action, e.Reason)
}

// IsContractError reports whether err is a ContractError.
// Uses errors.As to handle wrapped errors.
func IsContractError(err error) bool {
	var ce *ContractError
	return errors.As(err, &ce)
}
