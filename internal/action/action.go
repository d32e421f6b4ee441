package action

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/probemap/probemap/internal/env"
)

// ExecFunc is the body of an action that does not touch the shared env.
// The client handle for the system under test is captured at
// construction time, so the body carries no further parameters.
type ExecFunc func(ctx context.Context) (*Result, error)

// EnvExecFunc is the body of an env-aware action: one that interpolates
// captured values into its request or stores response fields for later
// actions to use.
type EnvExecFunc func(ctx context.Context, e *env.Env) (*Result, error)

// Action is one named operation against the system under test, with
// eligibility rules and result validation. Identity and equality are by
// name. The env-aware and plain forms are separate constructors rather
// than a runtime arity probe, so the signature is fixed at registration.
type Action struct {
	name          string
	execPlain     ExecFunc
	execEnv       EnvExecFunc
	preconditions []Precondition

	expectedStatus []int
	expectFailure  bool
	validate       func(*Result) (bool, string)
}

// Option configures an Action at construction.
type Option func(*Action)

// New creates an action whose body needs no shared env.
func New(name string, exec ExecFunc, opts ...Option) *Action {
	a := &Action{name: name, execPlain: exec}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// NewWithEnv creates an action whose body reads or writes the shared env.
func NewWithEnv(name string, exec EnvExecFunc, opts ...Option) *Action {
	a := &Action{name: name, execEnv: exec}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// WithPreconditions appends eligibility rules.
func WithPreconditions(pres ...Precondition) Option {
	return func(a *Action) {
		a.preconditions = append(a.preconditions, pres...)
	}
}

// ExpectStatus configures validation shorthand: the result must carry one
// of the listed status codes.
func ExpectStatus(codes ...int) Option {
	return func(a *Action) {
		a.expectedStatus = append(a.expectedStatus, codes...)
	}
}

// ExpectFailure configures validation shorthand: the action is supposed
// to be rejected by the system under test, so a successful result is a
// validation failure.
func ExpectFailure() Option {
	return func(a *Action) {
		a.expectFailure = true
	}
}

// WithValidator installs a custom result assertion. It takes precedence
// over the shorthand options.
func WithValidator(fn func(*Result) (passed bool, message string)) Option {
	return func(a *Action) {
		a.validate = fn
	}
}

// Name returns the action's unique name.
func (a *Action) Name() string {
	return a.name
}

// Preconditions returns the action's eligibility rules.
func (a *Action) Preconditions() []Precondition {
	return a.preconditions
}

// Invoke executes the action body and stamps the result with the elapsed
// time. A body returning neither result nor error is a programming error
// in the action definition and surfaces as a ContractError.
func (a *Action) Invoke(ctx context.Context, e *env.Env) (*Result, error) {
	start := time.Now()

	var (
		res *Result
		err error
	)
	switch {
	case a.execEnv != nil:
		res, err = a.execEnv(ctx, e)
	case a.execPlain != nil:
		res, err = a.execPlain(ctx)
	default:
		return nil, &ContractError{Action: a.name, Reason: "no execute body registered"}
	}

	if err != nil {
		return nil, fmt.Errorf("invoke %s: %w", a.name, err)
	}
	if res == nil {
		return nil, &ContractError{Action: a.name, Reason: "execute returned no result"}
	}

	if res.Duration == 0 {
		res.Duration = time.Since(start)
	}
	return res, nil
}

// ValidateResult applies the configured assertion to an execution result.
// Precedence: custom validator, then expect-failure, then expected status
// codes. With nothing configured every result passes.
func (a *Action) ValidateResult(res *Result) (bool, string) {
	if a.validate != nil {
		return a.validate(res)
	}

	if a.expectFailure {
		if res.Success {
			return false, fmt.Sprintf("%s: expected failure but the action succeeded", a.name)
		}
		return true, ""
	}

	if len(a.expectedStatus) > 0 {
		if !slices.Contains(a.expectedStatus, res.Status) {
			return false, fmt.Sprintf("%s: status %d not in expected set %v", a.name, res.Status, a.expectedStatus)
		}
		return true, ""
	}

	return true, ""
}
