package index

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"testing"

	"github.com/starford/raido/internal/apperr"
)

type row struct {
	id       string
	Title    string
	Status   string
	Assignee string
}

func (r *row) ID() string         { return r.id }
func (r *row) IndexTable() string { return "items" }
func (r *row) IndexValues() []any {
	return []any{r.Title, NullString(r.Status), NullString(r.Assignee)}
}

func (r *row) IndexColumns() []Column {
	return []Column{
		{Name: "title", Decl: "TEXT NOT NULL"},
		{Name: "status", Decl: "TEXT"},
		{Name: "assignee", Decl: "TEXT"},
	}
}

func (r *row) ScanIndexRow(scan func(dest ...any) error) error {
	var status, assignee sql.NullString
	if err := scan(&r.id, &r.Title, &status, &assignee); err != nil {
		return err
	}
	r.Status, r.Assignee = status.String, assignee.String
	return nil
}

func testDB(t *testing.T) *DB {
	t.Helper()
	f, err := os.CreateTemp("", "raido-index-*.db")
	if err != nil {
		t.Fatal(err)
	}
	f.Close()
	t.Cleanup(func() { os.Remove(f.Name()) })

	db, err := Open(f.Name(), 2, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := db.Register(context.Background(), &row{}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	return db
}

func seed(t *testing.T, db *DB, rows ...*row) {
	t.Helper()
	for _, r := range rows {
		if err := db.Upsert(context.Background(), r); err != nil {
			t.Fatalf("Upsert %s: %v", r.id, err)
		}
	}
}

func ids(rows []*row) []string {
	out := make([]string, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.id)
	}
	return out
}

func equal(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestUpsertReplacesWholeRow(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	seed(t, db, &row{id: "eng-1", Title: "Fix bug", Assignee: "ada@example.com"})
	seed(t, db, &row{id: "eng-1", Title: "Fix bug", Status: "Done"})

	got, err := Query[row](ctx, db, Eq("id", "eng-1"))
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("len = %d, want 1", len(got))
	}
	if got[0].Status != "Done" || got[0].Assignee != "" {
		t.Errorf("row not fully replaced: %+v", got[0])
	}
}

func TestUpsertWithoutIDIsContractViolation(t *testing.T) {
	db := testDB(t)
	err := db.Upsert(context.Background(), &row{Title: "no id"})
	if !errors.Is(err, apperr.ErrContract) {
		t.Fatalf("err = %v, want ErrContract", err)
	}
}

func TestQueryRaw(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	seed(t, db,
		&row{id: "eng-1", Title: "a"},
		&row{id: "eng-2", Title: "b"},
		&row{id: "ops-1", Title: "c"},
	)

	got, err := QueryRaw[row](ctx, db, "id LIKE 'eng-%'")
	if err != nil {
		t.Fatalf("QueryRaw: %v", err)
	}
	if !equal(ids(got), []string{"eng-1", "eng-2"}) {
		t.Errorf("ids = %v", ids(got))
	}

	got, err = QueryRaw[row](ctx, db, "title = ?", "zzz")
	if err != nil {
		t.Fatalf("QueryRaw: %v", err)
	}
	if got == nil || len(got) != 0 {
		t.Errorf("no match must be an empty list, got %v", got)
	}

	if _, err := QueryRaw[row](ctx, db, "no_such_column = 1"); !errors.Is(err, apperr.ErrDatabase) {
		t.Errorf("err = %v, want ErrDatabase", err)
	}
}

func TestQueryStructured(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	seed(t, db,
		&row{id: "eng-1", Title: "a"},
		&row{id: "eng-2", Title: "b", Status: "Todo", Assignee: "me@example.com"},
		&row{id: "eng-3", Title: "c", Status: "Done"},
		&row{id: "eng_x", Title: "d", Status: "Canceled"},
		&row{id: "ops-1", Title: "e", Status: "In Progress", Assignee: "me@example.com"},
	)

	cases := []struct {
		name  string
		conds []Condition
		want  []string
	}{
		{"all", nil, []string{"eng-1", "eng-2", "eng-3", "eng_x", "ops-1"}},
		{"prefix", []Condition{HasPrefix("id", "eng-")}, []string{"eng-1", "eng-2", "eng-3"}},
		{"prefix escapes wildcards", []Condition{HasPrefix("id", "eng_")}, []string{"eng_x"}},
		{"eq", []Condition{Eq("assignee", "me@example.com")}, []string{"eng-2", "ops-1"}},
		{"ne includes null", []Condition{Ne("status", "Done")}, []string{"eng-1", "eng-2", "eng_x", "ops-1"}},
		{"open group", []Condition{Or(IsNull("status"), In("status", "Todo", "In Progress"))}, []string{"eng-1", "eng-2", "ops-1"}},
		{"and", []Condition{HasPrefix("id", "eng-"), NotNull("status")}, []string{"eng-2", "eng-3"}},
		{"like", []Condition{Like("title", "%c%")}, []string{"eng-3"}},
		{"empty in", []Condition{In("status")}, []string{}},
		{"no match", []Condition{Eq("title", "zzz")}, []string{}},
		{"injection is a value", []Condition{Eq("title", "a' OR '1'='1")}, []string{}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Query[row](ctx, db, tc.conds...)
			if err != nil {
				t.Fatalf("Query: %v", err)
			}
			if !equal(ids(got), tc.want) {
				t.Errorf("ids = %v, want %v", ids(got), tc.want)
			}
		})
	}
}

func TestQueryUnknownField(t *testing.T) {
	db := testDB(t)
	_, err := Query[row](context.Background(), db, Eq("title; DROP TABLE items", "x"))
	if !errors.Is(err, apperr.ErrContract) {
		t.Fatalf("err = %v, want ErrContract", err)
	}
}

func TestDeleteAndIDs(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	seed(t, db, &row{id: "eng-1", Title: "a"}, &row{id: "eng-2", Title: "b"})

	if err := db.Delete(ctx, "items", "eng-1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := db.Delete(ctx, "items", "missing"); err != nil {
		t.Fatalf("Delete missing: %v", err)
	}
	all, err := db.IDs(ctx, "items")
	if err != nil {
		t.Fatalf("IDs: %v", err)
	}
	if _, ok := all["eng-2"]; !ok || len(all) != 1 {
		t.Errorf("ids = %v", all)
	}
}

func TestIDsFailureIsDatabaseError(t *testing.T) {
	db := testDB(t)
	seed(t, db, &row{id: "eng-1", Title: "a"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := db.IDs(ctx, "items")
	if !errors.Is(err, apperr.ErrDatabase) {
		t.Errorf("err = %v, want ErrDatabase", err)
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want the cause kept", err)
	}
}

func TestUnregisteredTable(t *testing.T) {
	db := testDB(t)
	if err := db.Delete(context.Background(), "nope", "x"); !errors.Is(err, apperr.ErrContract) {
		t.Errorf("err = %v, want ErrContract", err)
	}
}

type renamed struct{ row }

func (r *renamed) IndexColumns() []Column {
	return []Column{{Name: "title", Decl: "TEXT NOT NULL"}, {Name: "priority", Decl: "INTEGER"}, {Name: "assignee", Decl: "TEXT"}}
}

func TestRegisterRecreatesChangedTable(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	seed(t, db, &row{id: "eng-1", Title: "a"})

	if err := db.Register(ctx, &renamed{}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	all, err := db.IDs(ctx, "items")
	if err != nil {
		t.Fatalf("IDs: %v", err)
	}
	if len(all) != 0 {
		t.Errorf("recreated table should be empty, got %v", all)
	}
	cols, _ := db.tableColumns(ctx, "items")
	if !equal(cols, []string{"id", "title", "priority", "assignee"}) {
		t.Errorf("columns = %v", cols)
	}
}
