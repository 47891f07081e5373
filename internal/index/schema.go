// Package index is the SQLite secondary index: one table per record type,
// one row per record id, rebuilt from the documents on demand.
package index

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"sync"

	_ "github.com/mattn/go-sqlite3"

	"github.com/starford/raido/internal/apperr"
)

// DefaultMaxConns is the pool size used when none is configured.
const DefaultMaxConns = 4

var identRe = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// Column declares one scalar index column.
type Column struct {
	Name string
	Decl string // SQLite type and constraints, e.g. "TEXT NOT NULL"
}

// Indexable is a record that projects itself onto an index row. The id
// column is owned by the index; IndexColumns lists the remaining columns and
// IndexValues returns their values in the same order.
type Indexable interface {
	ID() string
	IndexTable() string
	IndexColumns() []Column
	IndexValues() []any
	// ScanIndexRow reads a row selected as (id, columns...).
	ScanIndexRow(scan func(dest ...any) error) error
}

// DB wraps a sql.DB with index-specific operations.
type DB struct {
	conn   *sql.DB
	logger *slog.Logger

	mu     sync.RWMutex
	tables map[string][]Column
}

// Open opens (or creates) the index database. maxConns bounds the pool;
// callers wait for a free connection when it is exhausted.
func Open(dsn string, maxConns int, logger *slog.Logger) (*DB, error) {
	conn, err := sql.Open("sqlite3", dsn+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, apperr.Wrap(apperr.ErrDatabase, "index: open db", err)
	}
	if maxConns <= 0 {
		maxConns = DefaultMaxConns
	}
	conn.SetMaxOpenConns(maxConns)
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, apperr.Wrap(apperr.ErrDatabase, "index: ping", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &DB{conn: conn, logger: logger, tables: make(map[string][]Column)}, nil
}

// Close closes the underlying database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Register creates the table for rec's type. A table whose columns no longer
// match is dropped and recreated empty; reindexing repopulates it.
func (db *DB) Register(ctx context.Context, rec Indexable) error {
	const op = "index: register"
	table, cols := rec.IndexTable(), rec.IndexColumns()
	if err := validateSchema(table, cols); err != nil {
		return apperr.Wrap(apperr.ErrContract, op, err)
	}

	existing, err := db.tableColumns(ctx, table)
	if err != nil {
		return err
	}
	if len(existing) > 0 && !sameColumns(existing, cols) {
		db.logger.Warn("index: table schema changed, recreating", "table", table)
		if _, err := db.conn.ExecContext(ctx, `DROP TABLE `+table); err != nil {
			return apperr.Wrap(apperr.ErrDatabase, op, err)
		}
	}

	defs := []string{"id TEXT PRIMARY KEY"}
	for _, c := range cols {
		defs = append(defs, c.Name+" "+c.Decl)
	}
	stmt := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n\t%s\n)", table, strings.Join(defs, ",\n\t"))
	if _, err := db.conn.ExecContext(ctx, stmt); err != nil {
		return apperr.Wrap(apperr.ErrDatabase, op, err)
	}

	db.mu.Lock()
	db.tables[table] = cols
	db.mu.Unlock()
	return nil
}

// columns returns the registered columns of table.
func (db *DB) columns(table string) ([]Column, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	cols, ok := db.tables[table]
	if !ok {
		return nil, apperr.New(apperr.ErrContract, "index", "table %q is not registered", table)
	}
	return cols, nil
}

func (db *DB) tableColumns(ctx context.Context, table string) ([]string, error) {
	rows, err := db.conn.QueryContext(ctx, `SELECT name FROM pragma_table_info(?)`, table)
	if err != nil {
		return nil, apperr.Wrap(apperr.ErrDatabase, "index: table info", err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, apperr.Wrap(apperr.ErrDatabase, "index: table info", err)
		}
		out = append(out, name)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Wrap(apperr.ErrDatabase, "index: table info", err)
	}
	return out, nil
}

func sameColumns(existing []string, cols []Column) bool {
	if len(existing) != len(cols)+1 || existing[0] != "id" {
		return false
	}
	for i, c := range cols {
		if existing[i+1] != c.Name {
			return false
		}
	}
	return true
}

func validateSchema(table string, cols []Column) error {
	if !identRe.MatchString(table) {
		return fmt.Errorf("invalid table name %q", table)
	}
	seen := map[string]bool{"id": true}
	for _, c := range cols {
		if !identRe.MatchString(c.Name) {
			return fmt.Errorf("invalid column name %q", c.Name)
		}
		if seen[c.Name] {
			return fmt.Errorf("duplicate column %q", c.Name)
		}
		seen[c.Name] = true
	}
	return nil
}
