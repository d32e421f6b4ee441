// Package sqldb adapts a SQL database into a rollbackable system.
// Checkpoints dump the configured tables into memory and rollbacks
// delete-and-reinsert them, so exploration can jump between branches in
// any order. A savepoint stack cannot do that: it only rewinds backward
// and destroys any branch it already left. Observation runs configured
// SELECT queries into row maps.
//
// Placeholders use database/sql `?` syntax; the adapter is exercised
// against sqlite3. Live Postgres targets use the pgx flavor instead.
package sqldb

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/probemap/probemap/internal/state"
	"github.com/probemap/probemap/internal/world"
)

// Adapter watches one database.
type Adapter struct {
	mu        sync.Mutex
	name      string
	db        *sql.DB
	tables    []string
	queries   map[string]string
	saved     map[string]snapshot
	nextToken int
}

// tableDump holds one table's full contents.
type tableDump struct {
	columns []string
	rows    [][]any
}

type snapshot map[string]tableDump

// New creates an adapter. tables lists the tables whose contents
// checkpoints cover, in foreign-key-safe insert order (parents first).
// queries maps observation keys to SELECT statements.
func New(name string, db *sql.DB, tables []string, queries map[string]string) (*Adapter, error) {
	if len(tables) == 0 {
		return nil, fmt.Errorf("sqldb %s: at least one table is required", name)
	}
	return &Adapter{
		name:    name,
		db:      db,
		tables:  tables,
		queries: queries,
		saved:   make(map[string]snapshot),
	}, nil
}

// Name implements world.System.
func (a *Adapter) Name() string { return a.name }

// Observe implements world.System: each configured query's result set
// lands under its key as a list of row maps.
func (a *Adapter) Observe(ctx context.Context) (state.Observation, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	data := make(map[string]any, len(a.queries))
	for key, query := range a.queries {
		rows, err := a.queryMaps(ctx, query)
		if err != nil {
			return state.Observation{}, fmt.Errorf("observe %s.%s: %w", a.name, key, err)
		}
		data[key] = rows
	}
	return state.NewObservation(a.name, data), nil
}

// Checkpoint implements world.System by dumping every configured table.
func (a *Adapter) Checkpoint(ctx context.Context, name string) (world.Token, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	snap := make(snapshot, len(a.tables))
	for _, table := range a.tables {
		dump, err := a.dumpTable(ctx, table)
		if err != nil {
			return nil, fmt.Errorf("checkpoint %s: %w", a.name, err)
		}
		snap[table] = dump
	}

	a.nextToken++
	token := fmt.Sprintf("%s-cp-%d", a.name, a.nextToken)
	a.saved[token] = snap
	return token, nil
}

// Rollback implements world.System: delete the configured tables in
// reverse order, then reinsert the dumped rows in declared order, all in
// one transaction.
func (a *Adapter) Rollback(ctx context.Context, token world.Token) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	key, ok := token.(string)
	if !ok {
		return fmt.Errorf("rollback %s: foreign token %v", a.name, token)
	}
	snap, ok := a.saved[key]
	if !ok {
		return fmt.Errorf("rollback %s: unknown token %q", a.name, key)
	}

	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("rollback %s: begin: %w", a.name, err)
	}
	defer tx.Rollback()

	for i := len(a.tables) - 1; i >= 0; i-- {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+quoteIdent(a.tables[i])); err != nil {
			return fmt.Errorf("rollback %s: clear %s: %w", a.name, a.tables[i], err)
		}
	}
	for _, table := range a.tables {
		dump := snap[table]
		if len(dump.rows) == 0 {
			continue
		}
		insert := insertStatement(table, dump.columns)
		for _, row := range dump.rows {
			if _, err := tx.ExecContext(ctx, insert, row...); err != nil {
				return fmt.Errorf("rollback %s: restore %s: %w", a.name, table, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("rollback %s: commit: %w", a.name, err)
	}
	return nil
}

func (a *Adapter) dumpTable(ctx context.Context, table string) (tableDump, error) {
	rows, err := a.db.QueryContext(ctx, "SELECT * FROM "+quoteIdent(table))
	if err != nil {
		return tableDump{}, fmt.Errorf("dump %s: %w", table, err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return tableDump{}, fmt.Errorf("dump %s: %w", table, err)
	}

	dump := tableDump{columns: columns}
	for rows.Next() {
		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return tableDump{}, fmt.Errorf("dump %s: %w", table, err)
		}
		dump.rows = append(dump.rows, values)
	}
	if err := rows.Err(); err != nil {
		return tableDump{}, fmt.Errorf("dump %s: %w", table, err)
	}
	return dump, nil
}

// queryMaps runs one SELECT into a list of column-keyed row maps.
func (a *Adapter) queryMaps(ctx context.Context, query string) ([]any, error) {
	rows, err := a.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	out := []any{}
	for rows.Next() {
		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		row := make(map[string]any, len(columns))
		for i, col := range columns {
			row[col] = normalize(values[i])
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// normalize maps driver values onto the JSON-shaped types observations
// carry.
func normalize(v any) any {
	switch val := v.(type) {
	case []byte:
		return string(val)
	case time.Time:
		return val.UTC().Format(time.RFC3339Nano)
	default:
		return v
	}
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func insertStatement(table string, columns []string) string {
	quoted := make([]string, len(columns))
	marks := make([]string, len(columns))
	for i, col := range columns {
		quoted[i] = quoteIdent(col)
		marks[i] = "?"
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		quoteIdent(table), strings.Join(quoted, ", "), strings.Join(marks, ", "))
}
