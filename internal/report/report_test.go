package report

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/probemap/probemap/internal/action"
	"github.com/probemap/probemap/internal/agent"
	"github.com/probemap/probemap/internal/graph"
	"github.com/probemap/probemap/internal/state"
)

func okAction(name string) *action.Action {
	return action.New(name, func(ctx context.Context) (*action.Result, error) {
		return &action.Result{Success: true}, nil
	})
}

func mustState(t *testing.T, value int) state.State {
	t.Helper()
	st, err := state.New(state.NewObservation("counter", map[string]any{"value": value}))
	require.NoError(t, err)
	return st
}

func buildResult(t *testing.T) *agent.ExplorationResult {
	t.Helper()

	g := graph.New(okAction("bump"), okAction("reset"))

	s0 := g.AddState(mustState(t, 0))
	s1 := g.AddState(mustState(t, 1))
	tr := state.NewTransition(s0.ID, "bump", s1.ID)
	require.True(t, g.AddTransition(tr))
	g.MarkExplored(s0.ID, "bump")

	started := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	return &agent.ExplorationResult{
		RunID:      "run-42",
		Graph:      g,
		Outcome:    agent.OutcomeExhausted,
		StepsTaken: 1,
		StartedAt:  started,
		FinishedAt: started.Add(2 * time.Second),
		Violations: []agent.Violation{
			{
				Invariant: "value_in_range",
				Severity:  agent.SeverityError,
				Action:    "bump",
				StateID:   s1.ID,
				Path:      []state.Transition{tr},
			},
			{
				// Same (invariant, action) pair with a longer path: dedup
				// keeps the short witness.
				Invariant: "value_in_range",
				Severity:  agent.SeverityError,
				Action:    "bump",
				StateID:   s1.ID,
				Path:      []state.Transition{tr, tr},
			},
		},
	}
}

func TestBuildFlattensResult(t *testing.T) {
	s := Build(buildResult(t))

	assert.Equal(t, "run-42", s.RunID)
	assert.Equal(t, "exhausted", s.Outcome)
	assert.Equal(t, 2*time.Second, s.Duration)
	assert.Equal(t, 1, s.Steps)
	assert.Equal(t, 2, s.States)
	assert.Equal(t, 1, s.Transitions)

	assert.Equal(t, 1, s.ActionsUsed)
	assert.Equal(t, 2, s.ActionsTotal)
	assert.InDelta(t, 50.0, s.ActionPercent, 0.001)
	assert.InDelta(t, 25.0, s.PairPercent, 0.001, "1 explored pair of 2 states x 2 actions")
	assert.InDelta(t, 2.0, s.Efficiency, 0.001, "two states in one step")

	require.Len(t, s.Actions, 2, "unused registered actions still get a row")
	assert.Equal(t, ActionUsage{Name: "bump", Uses: 1}, s.Actions[0])
	assert.Equal(t, ActionUsage{Name: "reset", Uses: 0}, s.Actions[1])

	require.Len(t, s.Violations, 1, "same invariant and action collapse to one entry")
	assert.Equal(t, 2, s.ViolationsRecorded)
	assert.Equal(t, "value_in_range", s.Violations[0].Invariant)
	assert.Equal(t, []string{"bump"}, s.Violations[0].Path, "dedup keeps the shortest witness")
}

func TestJSONIsCanonicalAndStable(t *testing.T) {
	s := Build(buildResult(t))

	first, err := JSON(s)
	require.NoError(t, err)
	second, err := JSON(s)
	require.NoError(t, err)
	assert.Equal(t, first, second, "rendering twice must produce identical bytes")

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(first, &decoded))
	assert.Equal(t, "run-42", decoded["run_id"])
	assert.Equal(t, "exhausted", decoded["outcome"])
	assert.Equal(t, float64(2000), decoded["duration_ms"])
	assert.Equal(t, float64(2), decoded["states"])

	actions, ok := decoded["actions"].([]any)
	require.True(t, ok)
	assert.Len(t, actions, 2)

	violations, ok := decoded["violations"].([]any)
	require.True(t, ok)
	require.Len(t, violations, 1)
	entry := violations[0].(map[string]any)
	assert.Equal(t, "value_in_range", entry["invariant"])
	_, hasMessage := entry["message"]
	assert.False(t, hasMessage, "empty messages stay out of the JSON")
}

func TestParseRestoresArchivedSummary(t *testing.T) {
	s := Build(buildResult(t))

	raw, err := JSON(s)
	require.NoError(t, err)

	got, err := Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, s.RunID, got.RunID)
	assert.Equal(t, s.Outcome, got.Outcome)
	assert.Equal(t, 2*time.Second, got.Duration, "wire carries milliseconds")
	assert.Equal(t, s.Steps, got.Steps)
	assert.Equal(t, s.Actions, got.Actions)
	assert.Equal(t, s.Violations, got.Violations)

	// A parsed summary renders the same canonical bytes again.
	again, err := JSON(got)
	require.NoError(t, err)
	assert.Equal(t, raw, again)
}

func TestParseRejectsGarbage(t *testing.T) {
	_, err := Parse([]byte("not json"))
	require.Error(t, err)
}

func TestShortIDBounds(t *testing.T) {
	assert.Equal(t, "abcdefghijkl", shortID("abcdefghijklmnop"))
	assert.Equal(t, "short", shortID("short"))
}
