// Package postgres adapts a live Postgres database into a rollbackable
// system via pgx. It shares the dump/restore checkpoint model with the
// sqldb adapter (checkpoints capture the configured tables in memory,
// rollbacks truncate and reinsert them, so exploration can revisit any
// branch) but speaks native pgx: bulk restore goes through COPY.
package postgres

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/probemap/probemap/internal/state"
	"github.com/probemap/probemap/internal/world"
)

// Adapter watches one Postgres database.
type Adapter struct {
	mu        sync.Mutex
	name      string
	pool      *pgxpool.Pool
	ownsPool  bool
	tables    []string
	queries   map[string]string
	saved     map[string]snapshot
	nextToken int
}

type tableDump struct {
	columns []string
	rows    [][]any
}

type snapshot map[string]tableDump

// New connects to dsn and wraps the resulting pool. tables lists the
// tables whose contents checkpoints cover, in foreign-key-safe insert
// order (parents first). queries maps observation keys to SELECT
// statements.
func New(ctx context.Context, name, dsn string, tables []string, queries map[string]string) (*Adapter, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("creating postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging postgres: %w", err)
	}
	adapter, err := NewWithPool(name, pool, tables, queries)
	if err != nil {
		pool.Close()
		return nil, err
	}
	adapter.ownsPool = true
	return adapter, nil
}

// NewWithPool wraps an existing pool. The caller keeps ownership.
func NewWithPool(name string, pool *pgxpool.Pool, tables []string, queries map[string]string) (*Adapter, error) {
	if len(tables) == 0 {
		return nil, fmt.Errorf("postgres %s: at least one table is required", name)
	}
	return &Adapter{
		name:    name,
		pool:    pool,
		tables:  tables,
		queries: queries,
		saved:   make(map[string]snapshot),
	}, nil
}

// Close releases the pool when the adapter created it.
func (a *Adapter) Close() {
	if a.ownsPool {
		a.pool.Close()
	}
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
// reverse order, then COPY the dumped rows back in declared order, all
// in one transaction.
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

	tx, err := a.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("rollback %s: begin: %w", a.name, err)
	}
	defer tx.Rollback(ctx)

	for i := len(a.tables) - 1; i >= 0; i-- {
		ident := pgx.Identifier{a.tables[i]}.Sanitize()
		if _, err := tx.Exec(ctx, "DELETE FROM "+ident); err != nil {
			return fmt.Errorf("rollback %s: clear %s: %w", a.name, a.tables[i], err)
		}
	}
	for _, table := range a.tables {
		dump := snap[table]
		if len(dump.rows) == 0 {
			continue
		}
		_, err := tx.CopyFrom(ctx, pgx.Identifier{table}, dump.columns, pgx.CopyFromRows(dump.rows))
		if err != nil {
			return fmt.Errorf("rollback %s: restore %s: %w", a.name, table, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("rollback %s: commit: %w", a.name, err)
	}
	return nil
}

func (a *Adapter) dumpTable(ctx context.Context, table string) (tableDump, error) {
	ident := pgx.Identifier{table}.Sanitize()
	rows, err := a.pool.Query(ctx, "SELECT * FROM "+ident)
	if err != nil {
		return tableDump{}, fmt.Errorf("dumping %s: %w", table, err)
	}
	defer rows.Close()

	dump := tableDump{}
	for _, field := range rows.FieldDescriptions() {
		dump.columns = append(dump.columns, field.Name)
	}
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return tableDump{}, fmt.Errorf("dumping %s: %w", table, err)
		}
		dump.rows = append(dump.rows, values)
	}
	if err := rows.Err(); err != nil {
		return tableDump{}, fmt.Errorf("dumping %s: %w", table, err)
	}
	return dump, nil
}

func (a *Adapter) queryMaps(ctx context.Context, query string) ([]any, error) {
	rows, err := a.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var columns []string
	for _, field := range rows.FieldDescriptions() {
		columns = append(columns, field.Name)
	}

	out := []any{}
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
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

// normalize maps pgx values onto the JSON-shaped types observations
// carry. Small integer widths widen to int64.
func normalize(v any) any {
	switch val := v.(type) {
	case []byte:
		return string(val)
	case time.Time:
		return val.UTC().Format(time.RFC3339Nano)
	case int8:
		return int64(val)
	case int16:
		return int64(val)
	case int32:
		return int64(val)
	case uint8:
		return int64(val)
	case uint16:
		return int64(val)
	case uint32:
		return int64(val)
	default:
		return v
	}
}
