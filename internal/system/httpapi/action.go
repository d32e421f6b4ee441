package httpapi

import (
	"context"
	"strings"

	"github.com/probemap/probemap/internal/action"
	"github.com/probemap/probemap/internal/env"
)

// ActionSpec declares one HTTP action without writing Go: the request
// shape, the eligibility gates, the result expectation, and which
// response fields to capture into the env.
type ActionSpec struct {
	Name          string
	Method        string
	Path          string
	Body          string
	Headers       map[string]string
	ExpectStatus  []int
	ExpectFailure bool
	RequiresEnv   []string
	After         []string

	// Capture maps env keys to dot paths into the decoded response body,
	// stored after successful executions.
	Capture map[string]string
}

// BuildAction compiles the spec into an executable action bound to this
// client.
func (c *Client) BuildAction(spec ActionSpec) *action.Action {
	var opts []action.Option
	if len(spec.RequiresEnv) > 0 {
		opts = append(opts, action.WithPreconditions(action.RequiresEnvKeys{Keys: spec.RequiresEnv}))
	}
	if len(spec.After) > 0 {
		opts = append(opts, action.WithPreconditions(action.RequiresPriorActions{Names: spec.After}))
	}
	if spec.ExpectFailure {
		opts = append(opts, action.ExpectFailure())
	} else if len(spec.ExpectStatus) > 0 {
		opts = append(opts, action.ExpectStatus(spec.ExpectStatus...))
	}

	req := Request{Method: spec.Method, Path: spec.Path, Body: spec.Body, Headers: spec.Headers}
	return action.NewWithEnv(spec.Name, func(ctx context.Context, e *env.Env) (*action.Result, error) {
		res, err := c.Do(ctx, e, req)
		if err != nil {
			return nil, err
		}
		if res.Success {
			capture(e, res.Response, spec.Capture)
		}
		return res, nil
	}, opts...)
}

// capture stores response fields into the env. Paths that do not resolve
// are skipped: a capture is an offer, not an assertion.
func capture(e *env.Env, response any, captures map[string]string) {
	for key, path := range captures {
		if val, ok := walkJSON(response, strings.Split(path, ".")); ok {
			e.Set(key, val)
		}
	}
}

func walkJSON(cur any, path []string) (any, bool) {
	for _, seg := range path {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[seg]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}
