package archive

import (
	"context"
	"database/sql"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/probemap/probemap/internal/action"
	"github.com/probemap/probemap/internal/agent"
	"github.com/probemap/probemap/internal/graph"
	"github.com/probemap/probemap/internal/state"
)

func openTestArchive(t *testing.T) *Archive {
	t.Helper()
	a, err := Open(filepath.Join(t.TempDir(), "archive.db"))
	require.NoError(t, err, "open archive in temp dir")
	t.Cleanup(func() { a.Close() })
	return a
}

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

// exploredRun builds a small finished run: two states, one transition,
// one invariant broken twice.
func exploredRun(t *testing.T, runID string, started time.Time) *agent.ExplorationResult {
	t.Helper()

	g := graph.New(okAction("bump"), okAction("reset"))

	s0 := mustState(t, 0)
	s1 := mustState(t, 1)
	edge := state.NewHyperedge(map[string]string{"parity": "odd"})
	s1.Hyperedge = &edge

	g.AddState(s0)
	g.AddState(s1)
	tr := state.NewTransition(s0.ID, "bump", s1.ID)
	require.True(t, g.AddTransition(tr))
	g.MarkExplored(s0.ID, "bump")

	return &agent.ExplorationResult{
		RunID:      runID,
		Graph:      g,
		Outcome:    agent.OutcomeExhausted,
		StepsTaken: 1,
		StartedAt:  started,
		FinishedAt: started.Add(3 * time.Second),
		Violations: []agent.Violation{
			{
				Invariant: "value_in_range",
				Severity:  agent.SeverityError,
				Action:    "bump",
				StateID:   s1.ID,
				Path:      []state.Transition{tr},
			},
			{
				Invariant: "value_in_range",
				Severity:  agent.SeverityError,
				Action:    "bump",
				StateID:   s1.ID,
				Path:      []state.Transition{tr, tr},
			},
		},
	}
}

func TestOpenAppliesPragmas(t *testing.T) {
	a := openTestArchive(t)

	assert.NoError(t, a.verifyPragma("journal_mode", "wal"))
	assert.NoError(t, a.verifyPragma("foreign_keys", "1"))

	var version int
	require.NoError(t, a.DB().QueryRow("PRAGMA user_version").Scan(&version))
	assert.Equal(t, currentSchemaVersion, version)
}

func TestOpenIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "archive.db")

	first, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, first.Close())

	second, err := Open(path)
	require.NoError(t, err, "reopening an existing archive must not fail on schema")
	defer second.Close()

	runs, states, transitions, violations, err := second.Counts(context.Background())
	require.NoError(t, err)
	assert.Zero(t, runs)
	assert.Zero(t, states)
	assert.Zero(t, transitions)
	assert.Zero(t, violations)
}

func TestArchiveRunRoundTrip(t *testing.T) {
	ctx := context.Background()
	a := openTestArchive(t)

	started := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	res := exploredRun(t, "run-a", started)

	stats, err := a.ArchiveRun(ctx, res)
	require.NoError(t, err)
	assert.Equal(t, Stats{Runs: 1, States: 2, Transitions: 1, Violations: 1}, stats,
		"two duplicate violations collapse to one archived row")

	rec, err := a.GetRun(ctx, "run-a")
	require.NoError(t, err)
	assert.Equal(t, "exhausted", rec.Outcome)
	assert.Equal(t, 1, rec.Steps)
	assert.Equal(t, 2, rec.States)
	assert.Equal(t, 1, rec.Transitions)
	assert.Equal(t, 1, rec.Violations)
	assert.True(t, rec.StartedAt.Equal(started), "timestamps must round-trip")
	assert.True(t, rec.FinishedAt.Equal(started.Add(3*time.Second)))

	var summary map[string]any
	require.NoError(t, json.Unmarshal([]byte(rec.Summary), &summary),
		"archived summary must be valid JSON")
	assert.Equal(t, "run-a", summary["run_id"])

	// The labeled state's hyperedge made it into its row.
	var edge sql.NullString
	require.NoError(t, a.DB().QueryRow(`
		SELECT hyperedge FROM states WHERE run_id = ? AND hyperedge IS NOT NULL
	`, "run-a").Scan(&edge))
	require.True(t, edge.Valid)
	assert.Contains(t, edge.String, "parity")
}

func TestArchiveRunIsIdempotent(t *testing.T) {
	ctx := context.Background()
	a := openTestArchive(t)

	started := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	res := exploredRun(t, "run-a", started)

	_, err := a.ArchiveRun(ctx, res)
	require.NoError(t, err)

	stats, err := a.ArchiveRun(ctx, res)
	require.NoError(t, err, "re-archiving the same run must not error")
	assert.Equal(t, Stats{}, stats, "every row already exists, nothing inserts")

	runs, states, transitions, violations, err := a.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, runs)
	assert.Equal(t, 2, states)
	assert.Equal(t, 1, transitions)
	assert.Equal(t, 1, violations)
}

func TestGetRunMissing(t *testing.T) {
	a := openTestArchive(t)

	_, err := a.GetRun(context.Background(), "no-such-run")
	require.ErrorIs(t, err, sql.ErrNoRows)
}

func TestListRunsNewestFirst(t *testing.T) {
	ctx := context.Background()
	a := openTestArchive(t)

	older := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	newer := older.Add(time.Hour)

	_, err := a.ArchiveRun(ctx, exploredRun(t, "run-old", older))
	require.NoError(t, err)
	_, err = a.ArchiveRun(ctx, exploredRun(t, "run-new", newer))
	require.NoError(t, err)

	records, err := a.ListRuns(ctx)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "run-new", records[0].ID)
	assert.Equal(t, "run-old", records[1].ID)

	latest, err := a.LatestRun(ctx)
	require.NoError(t, err)
	assert.Equal(t, "run-new", latest.ID)
}

func TestListRunsEmptyArchive(t *testing.T) {
	ctx := context.Background()
	a := openTestArchive(t)

	records, err := a.ListRuns(ctx)
	require.NoError(t, err)
	assert.NotNil(t, records, "empty archive lists an empty slice, not nil")
	assert.Empty(t, records)

	_, err = a.LatestRun(ctx)
	require.ErrorIs(t, err, sql.ErrNoRows)
}
