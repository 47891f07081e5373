package index

import (
	"context"
	"fmt"
	"strings"

	"github.com/starford/raido/internal/apperr"
)

// Upsert inserts rec or fully replaces the row with the same id.
func (db *DB) Upsert(ctx context.Context, rec Indexable) error {
	const op = "index: upsert"
	if rec.ID() == "" {
		return apperr.New(apperr.ErrContract, op, "record has no id")
	}
	table := rec.IndexTable()
	cols, err := db.columns(table)
	if err != nil {
		return err
	}
	values := rec.IndexValues()
	if len(values) != len(cols) {
		return apperr.New(apperr.ErrContract, op, "%s: %d values for %d columns", table, len(values), len(cols))
	}

	names := make([]string, 0, len(cols)+1)
	names = append(names, "id")
	for _, c := range cols {
		names = append(names, c.Name)
	}
	args := append([]any{rec.ID()}, values...)
	stmt := fmt.Sprintf("INSERT OR REPLACE INTO %s (%s) VALUES (%s)",
		table, strings.Join(names, ", "), placeholders(len(names)))
	if _, err := db.conn.ExecContext(ctx, stmt, args...); err != nil {
		return apperr.WrapPath(apperr.ErrDatabase, op, rec.ID(), err)
	}
	db.logger.Debug("index: upserted", "table", table, "id", rec.ID())
	return nil
}

// Delete removes the row with id from table. Deleting a missing row is not an error.
func (db *DB) Delete(ctx context.Context, table, id string) error {
	if _, err := db.columns(table); err != nil {
		return err
	}
	if _, err := db.conn.ExecContext(ctx, `DELETE FROM `+table+` WHERE id = ?`, id); err != nil {
		return apperr.WrapPath(apperr.ErrDatabase, "index: delete", id, err)
	}
	db.logger.Debug("index: deleted", "table", table, "id", id)
	return nil
}

// IDs returns every indexed id in table.
func (db *DB) IDs(ctx context.Context, table string) (map[string]struct{}, error) {
	if _, err := db.columns(table); err != nil {
		return nil, err
	}
	rows, err := db.conn.QueryContext(ctx, `SELECT id FROM `+table)
	if err != nil {
		return nil, apperr.Wrap(apperr.ErrDatabase, "index: ids", err)
	}
	defer rows.Close()
	out := make(map[string]struct{})
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, apperr.Wrap(apperr.ErrDatabase, "index: ids", err)
		}
		out[id] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Wrap(apperr.ErrDatabase, "index: ids", err)
	}
	return out, nil
}

// Query returns the records of T's table matching every condition, ordered by id.
// Field names are checked against the table's columns and values are bound
// as parameters.
func Query[T any, PT interface {
	*T
	Indexable
}](ctx context.Context, db *DB, conds ...Condition) ([]PT, error) {
	proto := PT(new(T))
	cols, err := db.columns(proto.IndexTable())
	if err != nil {
		return nil, err
	}
	where, args, err := Compile(cols, conds...)
	if err != nil {
		return nil, err
	}
	return selectRows[T, PT](ctx, db, proto, cols, where, args)
}

// QueryRaw returns the records matching a caller-supplied SQL predicate.
// The predicate is interpolated verbatim: never pass untrusted input.
// Use Query for anything reachable from outside the process.
func QueryRaw[T any, PT interface {
	*T
	Indexable
}](ctx context.Context, db *DB, where string, args ...any) ([]PT, error) {
	proto := PT(new(T))
	cols, err := db.columns(proto.IndexTable())
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(where) == "" {
		where = "1 = 1"
	}
	return selectRows[T, PT](ctx, db, proto, cols, where, args)
}

func selectRows[T any, PT interface {
	*T
	Indexable
}](ctx context.Context, db *DB, proto PT, cols []Column, where string, args []any) ([]PT, error) {
	const op = "index: query"
	names := []string{"id"}
	for _, c := range cols {
		names = append(names, c.Name)
	}
	stmt := fmt.Sprintf("SELECT %s FROM %s WHERE %s ORDER BY id",
		strings.Join(names, ", "), proto.IndexTable(), where)

	rows, err := db.conn.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, apperr.Wrap(apperr.ErrDatabase, op, err)
	}
	defer rows.Close()

	out := []PT{}
	for rows.Next() {
		rec := PT(new(T))
		if err := rec.ScanIndexRow(rows.Scan); err != nil {
			return nil, apperr.Wrap(apperr.ErrDatabase, op, err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Wrap(apperr.ErrDatabase, op, err)
	}
	return out, nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

// NullString maps the empty string to NULL.
func NullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
