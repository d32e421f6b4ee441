package archive

import (
	"context"
	"fmt"
	"time"

	"github.com/probemap/probemap/internal/agent"
	"github.com/probemap/probemap/internal/canonical"
	"github.com/probemap/probemap/internal/report"
	"github.com/probemap/probemap/internal/state"
)

// Stats counts the rows one ArchiveRun call actually inserted.
// Re-archiving an already stored run reports zeros across the board.
type Stats struct {
	Runs        int
	States      int
	Transitions int
	Violations  int
}

// ArchiveRun persists a finished exploration run in one transaction:
// the run row with its canonical JSON summary, every discovered state
// and transition, and the deduplicated violations. Every insert uses
// ON CONFLICT DO NOTHING, so the call is idempotent.
func (a *Archive) ArchiveRun(ctx context.Context, res *agent.ExplorationResult) (Stats, error) {
	summary := report.Build(res)
	summaryJSON, err := report.JSON(summary)
	if err != nil {
		return Stats{}, fmt.Errorf("archive run: render summary: %w", err)
	}

	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return Stats{}, fmt.Errorf("archive run: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	var stats Stats

	result, err := tx.ExecContext(ctx, `
		INSERT INTO runs
		(id, outcome, steps, states, transitions, violations, started_at, finished_at, summary)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`,
		res.RunID,
		string(res.Outcome),
		res.StepsTaken,
		res.Graph.StateCount(),
		res.Graph.TransitionCount(),
		len(summary.Violations),
		res.StartedAt.UTC().Format(time.RFC3339Nano),
		res.FinishedAt.UTC().Format(time.RFC3339Nano),
		string(summaryJSON),
	)
	if err != nil {
		return Stats{}, fmt.Errorf("archive run: insert run: %w", err)
	}
	stats.Runs, err = rowsInserted(result.RowsAffected())
	if err != nil {
		return Stats{}, fmt.Errorf("archive run: %w", err)
	}

	for _, st := range res.Graph.States() {
		obsJSON, err := canonical.Marshal(observationMap(st))
		if err != nil {
			return Stats{}, fmt.Errorf("archive run: marshal state %s: %w", st.ID, err)
		}

		var hyperedge any
		if st.Hyperedge != nil {
			edgeJSON, err := canonical.Marshal(st.Hyperedge.Dimensions)
			if err != nil {
				return Stats{}, fmt.Errorf("archive run: marshal hyperedge for %s: %w", st.ID, err)
			}
			hyperedge = string(edgeJSON)
		}

		result, err := tx.ExecContext(ctx, `
			INSERT INTO states
			(id, run_id, observations, hyperedge)
			VALUES (?, ?, ?, ?)
			ON CONFLICT DO NOTHING
		`,
			st.ID,
			res.RunID,
			string(obsJSON),
			hyperedge,
		)
		if err != nil {
			return Stats{}, fmt.Errorf("archive run: insert state %s: %w", st.ID, err)
		}
		n, err := rowsInserted(result.RowsAffected())
		if err != nil {
			return Stats{}, fmt.Errorf("archive run: %w", err)
		}
		stats.States += n
	}

	for _, tr := range res.Graph.Transitions() {
		result, err := tx.ExecContext(ctx, `
			INSERT INTO transitions
			(id, run_id, from_state, action, to_state, duration_ms)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT DO NOTHING
		`,
			tr.ID,
			res.RunID,
			tr.From,
			tr.Action,
			tr.To,
			tr.Duration.Milliseconds(),
		)
		if err != nil {
			return Stats{}, fmt.Errorf("archive run: insert transition %s: %w", tr.ID, err)
		}
		n, err := rowsInserted(result.RowsAffected())
		if err != nil {
			return Stats{}, fmt.Errorf("archive run: %w", err)
		}
		stats.Transitions += n
	}

	for _, v := range summary.Violations {
		pathJSON, err := canonical.Marshal(v.Path)
		if err != nil {
			return Stats{}, fmt.Errorf("archive run: marshal violation path: %w", err)
		}

		result, err := tx.ExecContext(ctx, `
			INSERT INTO violations
			(run_id, invariant, severity, action, state_id, message, path)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT DO NOTHING
		`,
			res.RunID,
			v.Invariant,
			v.Severity,
			v.Action,
			v.StateID,
			v.Message,
			string(pathJSON),
		)
		if err != nil {
			return Stats{}, fmt.Errorf("archive run: insert violation %s: %w", v.Invariant, err)
		}
		n, err := rowsInserted(result.RowsAffected())
		if err != nil {
			return Stats{}, fmt.Errorf("archive run: %w", err)
		}
		stats.Violations += n
	}

	if err := tx.Commit(); err != nil {
		return Stats{}, fmt.Errorf("archive run: commit: %w", err)
	}

	return stats, nil
}

// observationMap lowers a state's observations to {system: data} for
// canonical serialization.
func observationMap(st state.State) map[string]any {
	out := make(map[string]any, len(st.Observations))
	for name, obs := range st.Observations {
		out[name] = obs.Data
	}
	return out
}

func rowsInserted(n int64, err error) (int, error) {
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return int(n), nil
}
