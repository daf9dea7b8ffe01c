// Package store provides read-only access to the parliament votes dataset.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/frateto/gateway/domain"
	_ "github.com/mattn/go-sqlite3"
)

// Executor runs guard-approved queries against the read-only database. Every
// connection carries query_only, so the database handle itself refuses
// writes regardless of what slips past the guard.
type Executor struct {
	db *sql.DB
}

// NewExecutor opens the dataset. The query_only pragma is forced through the
// DSN so it applies to every pooled connection.
func NewExecutor(dsn string) (*Executor, error) {
	if !strings.Contains(dsn, "_query_only") {
		sep := "?"
		if strings.Contains(dsn, "?") {
			sep = "&"
		}
		dsn += sep + "_query_only=true"
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to reach database: %w", err)
	}
	return &Executor{db: db}, nil
}

// Close closes the database connection.
func (e *Executor) Close() error {
	return e.db.Close()
}

// Execute runs one read-only statement and returns column names and rows.
// The caller is expected to have passed the statement through the query
// guard first.
func (e *Executor) Execute(ctx context.Context, query string) ([]string, [][]interface{}, error) {
	rows, err := e.db.QueryContext(ctx, query)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, nil, err
	}

	var out [][]interface{}
	vals := make([]interface{}, len(columns))
	ptrs := make([]interface{}, len(columns))
	for rows.Next() {
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, nil, err
		}
		row := make([]interface{}, len(columns))
		for i, v := range vals {
			if b, ok := v.([]byte); ok {
				row[i] = string(b)
			} else {
				row[i] = v
			}
		}
		out = append(out, row)
	}
	return columns, out, rows.Err()
}

// Schema returns the table and column inventory of the dataset.
func (e *Executor) Schema(ctx context.Context) ([]domain.TableSchema, error) {
	rows, err := e.db.QueryContext(ctx,
		`SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var tables []domain.TableSchema
	for _, name := range names {
		cols, err := e.tableColumns(ctx, name)
		if err != nil {
			return nil, err
		}
		tables = append(tables, domain.TableSchema{Name: name, Columns: cols})
	}
	return tables, nil
}

func (e *Executor) tableColumns(ctx context.Context, table string) ([]string, error) {
	// table names come from sqlite_master, not from callers
	rows, err := e.db.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%q)", table))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cols []string
	for rows.Next() {
		var (
			cid       int
			name, typ string
			notNull   int
			dflt      sql.NullString
			pk        int
		)
		if err := rows.Scan(&cid, &name, &typ, &notNull, &dflt, &pk); err != nil {
			return nil, err
		}
		cols = append(cols, name)
	}
	return cols, rows.Err()
}
