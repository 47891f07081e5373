package document

import (
	"errors"
	"testing"

	"github.com/starford/raido/internal/apperr"
	"github.com/starford/raido/internal/changestore"
	"github.com/starford/raido/internal/identity"
)

func newTestRepo(t *testing.T) *Repository {
	t.Helper()
	id, err := identity.Generate("Doc Tester", "docs@example.com")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	store, err := changestore.Init(t.TempDir(), changestore.WithIdentity(id))
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return NewRepository(store, nil)
}

func TestResolveIsPure(t *testing.T) {
	r := newTestRepo(t)
	h := r.Resolve("./eng/tasks/../tasks/eng-1.md")
	if h.Path() != "eng/tasks/eng-1.md" || h.ID() != "eng-1" || h.Name() != "eng-1.md" {
		t.Errorf("handle = %+v", h)
	}
	// Escaping paths resolve but fail on use.
	h = r.Resolve("../outside.md")
	if _, err := ReadTyped[note](r, h); !errors.Is(err, apperr.ErrInvalidPath) {
		t.Errorf("err = %v, want ErrInvalidPath", err)
	}
}

func TestWriteReadWithHistory(t *testing.T) {
	r := newTestRepo(t)
	h := r.Resolve("eng/tasks/eng-1.md")

	if err := r.Write(h, &note{Title: "Fix bug"}, true); err != nil {
		t.Fatalf("Write: %v", err)
	}
	v, err := ReadWithHistory[note](r, h)
	if err != nil {
		t.Fatalf("ReadWithHistory: %v", err)
	}
	if v.Doc.ID() != "eng-1" || v.Doc.Title != "Fix bug" {
		t.Errorf("doc = %+v", v.Doc)
	}
	if v.Created.Message != "Updated eng-1.md" {
		t.Errorf("created message = %q", v.Created.Message)
	}
	if v.Updated != nil {
		t.Errorf("single change must not report an update, got %+v", v.Updated)
	}

	// Rewriting identical content records nothing.
	if err := r.Write(h, &note{Title: "Fix bug"}, true); err != nil {
		t.Fatalf("Write (unchanged): %v", err)
	}
	if n := countHistory(t, r, h); n != 1 {
		t.Errorf("history length = %d, want 1", n)
	}

	if err := r.Write(h, &note{Title: "Fix bug", Status: "Done"}, true); err != nil {
		t.Fatalf("Write (update): %v", err)
	}
	v, err = ReadWithHistory[note](r, h)
	if err != nil {
		t.Fatalf("ReadWithHistory: %v", err)
	}
	if v.Updated == nil || v.Updated.Hash == v.Created.Hash {
		t.Fatalf("expected distinct updated change, got %+v", v.Updated)
	}
	if v.Doc.Status != "Done" {
		t.Errorf("status = %q", v.Doc.Status)
	}
	if n := countHistory(t, r, h); n != 2 {
		t.Errorf("history length = %d, want 2", n)
	}
}

func TestWriteWithoutCommitIsUntracked(t *testing.T) {
	r := newTestRepo(t)
	h := r.Resolve("eng/tasks/eng-1.md")
	if err := r.Write(h, &note{Title: "Draft"}, false); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if _, err := ReadWithHistory[note](r, h); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
	ok, err := r.Exists(h)
	if err != nil || !ok {
		t.Errorf("Exists = %v, %v", ok, err)
	}
}

func TestWriteCommitFailureIsRepoError(t *testing.T) {
	dir := t.TempDir()
	store, err := changestore.Init(dir)
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	r := NewRepository(store, nil)

	h := r.Resolve("eng/tasks/eng-1.md")
	err = r.Write(h, &note{Title: "No identity"}, true)
	if apperr.KindOf(err) != apperr.ErrRepo {
		t.Fatalf("err = %v, want ErrRepo", err)
	}
	// The file stays written and readable.
	got, err := ReadTyped[note](r, h)
	if err != nil || got.Title != "No identity" {
		t.Errorf("ReadTyped = %+v, %v", got, err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	// Recording again with an identity recovers the write.
	id, err := identity.Generate("Doc Tester", "docs@example.com")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	store, err = changestore.Open(dir, changestore.WithIdentity(id))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer store.Close()
	r = NewRepository(store, nil)

	hash, err := store.Record("Updated eng-1.md")
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
	if hash.IsZero() {
		t.Fatal("Record after a failed commit recorded nothing")
	}
	oldest, newest, err := store.FirstAndLastChange(h.Path())
	if err != nil {
		t.Fatalf("FirstAndLastChange: %v", err)
	}
	if oldest != hash || newest != hash {
		t.Errorf("changes = %s, %s, want %s", oldest, newest, hash)
	}
	v, err := ReadWithHistory[note](r, h)
	if err != nil {
		t.Fatalf("ReadWithHistory: %v", err)
	}
	if v.Doc.Title != "No identity" || v.Created.Hash != hash || v.Updated != nil {
		t.Errorf("versioned = %+v", v)
	}
}

func TestWriteRejectsInvalidRecord(t *testing.T) {
	r := newTestRepo(t)
	h := r.Resolve("eng/tasks/eng-1.md")

	err := r.Write(h, &note{Status: "Todo"}, true)
	if !errors.Is(err, apperr.ErrContract) {
		t.Fatalf("err = %v, want ErrContract", err)
	}
	if ok, err := r.Exists(h); err != nil || ok {
		t.Errorf("Exists = %v, %v, want no file", ok, err)
	}
	if _, seq, err := r.Store().Head(); err != nil || seq != 0 {
		t.Errorf("Head seq = %d, %v, want no change recorded", seq, err)
	}

	// The same path accepts a valid record afterwards.
	if err := r.Write(h, &note{Title: "Fixed"}, true); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if n := countHistory(t, r, h); n != 1 {
		t.Errorf("history length = %d, want 1", n)
	}
}

func TestList(t *testing.T) {
	r := newTestRepo(t)
	for _, p := range []string{"eng/tasks/eng-1.md", "eng/tasks/eng-2.md", "eng/tasks/sub/eng-3.md"} {
		if err := r.Write(r.Resolve(p), &note{Title: p}, false); err != nil {
			t.Fatalf("Write: %v", err)
		}
	}
	hs, err := r.List("eng/tasks")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(hs) != 2 || hs[0].ID() != "eng-1" || hs[1].ID() != "eng-2" {
		t.Errorf("handles = %v", hs)
	}
}

func countHistory(t *testing.T, r *Repository, h Handle) int {
	t.Helper()
	n := 0
	for _, err := range r.History(h) {
		if err != nil {
			t.Fatalf("History: %v", err)
		}
		n++
	}
	return n
}
