package action

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/probemap/probemap/internal/env"
	"github.com/probemap/probemap/internal/state"
)

func TestActionInvokePlain(t *testing.T) {
	a := New("ping", func(ctx context.Context) (*Result, error) {
		return &Result{Success: true, Status: 200}, nil
	})

	res, err := a.Invoke(context.Background(), env.New())
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Greater(t, res.Duration, time.Duration(0), "invoke stamps elapsed time")
}

func TestActionInvokeEnvAware(t *testing.T) {
	e := env.New()
	e.Set("cart_id", "c-7")

	a := NewWithEnv("checkout", func(ctx context.Context, e *env.Env) (*Result, error) {
		id, _ := e.GetString("cart_id")
		e.Set("order_id", "order-for-"+id)
		return &Result{Success: true, Status: 201}, nil
	})

	res, err := a.Invoke(context.Background(), e)
	require.NoError(t, err)
	assert.True(t, res.Success)

	got, ok := e.GetString("order_id")
	require.True(t, ok)
	assert.Equal(t, "order-for-c-7", got)
}

func TestActionInvokeNilResultIsContractViolation(t *testing.T) {
	a := New("broken", func(ctx context.Context) (*Result, error) {
		return nil, nil
	})

	_, err := a.Invoke(context.Background(), env.New())
	require.Error(t, err)
	assert.True(t, IsContractError(err), "nil result with nil error is a contract violation")
}

func TestActionInvokeExecutionErrorIsNotContractViolation(t *testing.T) {
	a := New("flaky", func(ctx context.Context) (*Result, error) {
		return nil, errors.New("connection refused")
	})

	_, err := a.Invoke(context.Background(), env.New())
	require.Error(t, err)
	assert.False(t, IsContractError(err))
	assert.Contains(t, err.Error(), "invoke flaky")
}

func TestActionValidateResultExpectedStatus(t *testing.T) {
	a := New("create", nil, ExpectStatus(200, 201))

	passed, _ := a.ValidateResult(&Result{Success: true, Status: 201})
	assert.True(t, passed)

	passed, msg := a.ValidateResult(&Result{Success: true, Status: 500})
	assert.False(t, passed)
	assert.Contains(t, msg, "500")
}

func TestActionValidateResultExpectFailure(t *testing.T) {
	a := New("overdraw", nil, ExpectFailure())

	passed, _ := a.ValidateResult(&Result{Success: false, Status: 422})
	assert.True(t, passed, "a rejected request is the expected outcome")

	passed, msg := a.ValidateResult(&Result{Success: true, Status: 200})
	assert.False(t, passed)
	assert.Contains(t, msg, "expected failure")
}

func TestActionValidateResultNoRulesAlwaysPasses(t *testing.T) {
	a := New("observe", nil)

	passed, msg := a.ValidateResult(&Result{Success: false, Status: 500})
	assert.True(t, passed)
	assert.Empty(t, msg)
}

func TestActionValidateResultCustomValidatorWins(t *testing.T) {
	a := New("create", nil,
		ExpectStatus(200),
		WithValidator(func(r *Result) (bool, string) {
			return r.Status == 418, "not a teapot"
		}),
	)

	passed, _ := a.ValidateResult(&Result{Status: 418})
	assert.True(t, passed, "custom validator takes precedence over shorthand")
}

func TestEligibleGuard(t *testing.T) {
	hasItems := Guard{Name: "cart has items", Fn: func(st state.State) bool {
		obs, ok := st.Observation("api")
		if !ok {
			return false
		}
		items, _ := obs.Data["items"].([]any)
		return len(items) > 0
	}}

	a := New("checkout", nil, WithPreconditions(hasItems))

	empty := state.MustNew(state.NewObservation("api", map[string]any{"items": []any{}}))
	full := state.MustNew(state.NewObservation("api", map[string]any{"items": []any{"A1"}}))

	assert.False(t, a.Eligible(empty, nil, nil))
	assert.True(t, a.Eligible(full, nil, nil))
}

func TestEligibleEnvKeysPermissiveWithoutEnv(t *testing.T) {
	a := New("pay", nil, WithPreconditions(RequiresEnvKeys{Keys: []string{"order_id"}}))
	st := state.MustNew(state.NewObservation("api", map[string]any{}))

	assert.True(t, a.Eligible(st, nil, nil),
		"without a live env the gate cannot be evaluated and reports eligible")

	e := env.New()
	assert.False(t, a.Eligible(st, e, nil), "live env without the key gates the action")

	e.Set("order_id", "o-1")
	assert.True(t, a.Eligible(st, e, nil))
}

func TestEligiblePriorActionsPermissiveWithoutHistory(t *testing.T) {
	a := New("cancel", nil, WithPreconditions(RequiresPriorActions{Names: []string{"create", "submit"}}))
	st := state.MustNew(state.NewObservation("api", map[string]any{}))

	assert.True(t, a.Eligible(st, nil, nil))

	assert.False(t, a.Eligible(st, nil, map[string]bool{}),
		"a supplied empty history evaluates strictly")
	assert.False(t, a.Eligible(st, nil, map[string]bool{"create": true}))
	assert.True(t, a.Eligible(st, nil, map[string]bool{"create": true, "submit": true}))
}

func TestPreconditionDescribe(t *testing.T) {
	assert.Equal(t, "cart has items", Guard{Name: "cart has items"}.Describe())
	assert.Equal(t, "guard", Guard{}.Describe())
	assert.Equal(t, "requires env keys a, b", RequiresEnvKeys{Keys: []string{"a", "b"}}.Describe())
	assert.Equal(t, "requires prior actions create", RequiresPriorActions{Names: []string{"create"}}.Describe())
}
