package archive

import (
	"context"
	"fmt"
	"time"
)

// RunRecord is one archived run's row.
type RunRecord struct {
	ID          string
	Outcome     string
	Steps       int
	States      int
	Transitions int
	Violations  int
	StartedAt   time.Time
	FinishedAt  time.Time

	// Summary is the canonical JSON report rendered when the run was
	// archived.
	Summary string
}

const runColumns = `id, outcome, steps, states, transitions, violations, started_at, finished_at, summary`

// ListRuns returns all archived runs, newest first.
// Returns an empty slice (not nil) when the archive is empty.
func (a *Archive) ListRuns(ctx context.Context) ([]RunRecord, error) {
	rows, err := a.db.QueryContext(ctx, `
		SELECT `+runColumns+`
		FROM runs
		ORDER BY started_at DESC, id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	records := []RunRecord{}
	for rows.Next() {
		rec, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}

	return records, nil
}

// GetRun retrieves a single run by ID.
// Returns sql.ErrNoRows if not found.
func (a *Archive) GetRun(ctx context.Context, id string) (RunRecord, error) {
	row := a.db.QueryRowContext(ctx, `
		SELECT `+runColumns+`
		FROM runs
		WHERE id = ?
	`, id)
	return scanRun(row)
}

// LatestRun retrieves the most recently started run.
// Returns sql.ErrNoRows when the archive is empty.
func (a *Archive) LatestRun(ctx context.Context) (RunRecord, error) {
	row := a.db.QueryRowContext(ctx, `
		SELECT `+runColumns+`
		FROM runs
		ORDER BY started_at DESC, id ASC
		LIMIT 1
	`)
	return scanRun(row)
}

// rowScanner covers *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (RunRecord, error) {
	var rec RunRecord
	var started, finished string

	err := row.Scan(
		&rec.ID,
		&rec.Outcome,
		&rec.Steps,
		&rec.States,
		&rec.Transitions,
		&rec.Violations,
		&started,
		&finished,
		&rec.Summary,
	)
	if err != nil {
		return RunRecord{}, err
	}

	rec.StartedAt, err = time.Parse(time.RFC3339Nano, started)
	if err != nil {
		return RunRecord{}, fmt.Errorf("parse started_at: %w", err)
	}
	rec.FinishedAt, err = time.Parse(time.RFC3339Nano, finished)
	if err != nil {
		return RunRecord{}, fmt.Errorf("parse finished_at: %w", err)
	}

	return rec, nil
}
