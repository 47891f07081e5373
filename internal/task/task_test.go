package task

import (
	"errors"
	"strings"
	"testing"

	"github.com/starford/raido/internal/apperr"
	"github.com/starford/raido/internal/document"
)

func TestEncodeMatchesDocumentFormat(t *testing.T) {
	data, err := document.Encode(New("hello"))
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if got := strings.TrimSpace(string(data)); got != "---\ntitle: hello\n\n---" {
		t.Errorf("encoded = %q", got)
	}

	tk := New("hello")
	tk.Description = "description"
	data, _ = document.Encode(tk)
	if got := strings.TrimSpace(string(data)); got != "---\ntitle: hello\n\n---\n\ndescription" {
		t.Errorf("encoded = %q", got)
	}
}

func TestDecode(t *testing.T) {
	tk, err := document.Decode[Task]([]byte("---\ntitle: hello\n---"), "eng/tasks/eng-1.md")
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if tk.Title != "hello" || tk.ID() != "eng-1" || tk.Description != "" {
		t.Errorf("task = %+v", tk)
	}

	tk, err = document.Decode[Task]([]byte("---\ntitle: hello\n---\n\ndescription"), "eng/tasks/eng-1.md")
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if tk.Description != "description" {
		t.Errorf("description = %q", tk.Description)
	}

	tk, err = document.Decode[Task]([]byte("---\ntitle: x\nstatus: Blocked\n---\n"), "eng/tasks/eng-1.md")
	if err != nil {
		t.Fatalf("unknown status should decode: %v", err)
	}
	if tk.Status != "Blocked" {
		t.Errorf("status = %q, want it kept verbatim", tk.Status)
	}

	_, err = document.Decode[Task]([]byte("---\nstatus: Todo\n---\n"), "eng/tasks/eng-1.md")
	if !errors.Is(err, apperr.ErrDeserialization) {
		t.Errorf("missing title: err = %v, want ErrDeserialization", err)
	}
}

func TestRoundTripCanonical(t *testing.T) {
	want := &Task{
		Title:       "Ship it",
		Status:      StatusInProgress,
		Assignee:    "ada@example.com",
		Labels:      []string{"A-backend", "B-p1"},
		Props:       map[string]any{"estimate": 3, "area": "core"},
		Description: "Details\n",
	}
	want.SetID("eng-7")
	data, err := document.Encode(want)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	got, err := document.Decode[Task](data, Path("eng", 7))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !got.Equal(want) {
		t.Errorf("round trip mismatch:\n got  %+v\n want %+v", got, want)
	}
}

func TestParseStatus(t *testing.T) {
	for in, want := range map[string]string{
		"todo":        StatusTodo,
		"DONE":        StatusDone,
		"in-progress": StatusInProgress,
		"In Progress": StatusInProgress,
		"in_progress": StatusInProgress,
		" canceled ":  StatusCanceled,
		"duplicate":   StatusDuplicate,
	} {
		got, err := ParseStatus(in)
		if err != nil || got != want {
			t.Errorf("ParseStatus(%q) = %q, %v; want %q", in, got, err, want)
		}
	}
	if _, err := ParseStatus("blocked"); !errors.Is(err, apperr.ErrContract) {
		t.Errorf("err = %v, want ErrContract", err)
	}
}

func TestGroupContains(t *testing.T) {
	cases := []struct {
		g      Group
		status string
		want   bool
	}{
		{GroupOpen, "", true},
		{GroupOpen, StatusTodo, true},
		{GroupOpen, StatusInProgress, true},
		{GroupOpen, StatusDone, false},
		{GroupInProgress, StatusInProgress, true},
		{GroupInProgress, StatusTodo, false},
		{GroupClosed, StatusDuplicate, true},
		{GroupClosed, "", false},
	}
	for _, tc := range cases {
		if got := tc.g.Contains(tc.status); got != tc.want {
			t.Errorf("%s.Contains(%q) = %v, want %v", tc.g, tc.status, got, tc.want)
		}
	}
	if _, err := ParseGroup("whatever"); err == nil {
		t.Error("expected error for unknown group")
	}
}

func TestPathsAndIDs(t *testing.T) {
	if got := Path("eng", 1); got != "eng/tasks/eng-1.md" {
		t.Errorf("Path = %q", got)
	}
	team, n, err := ParseID("eng-12")
	if err != nil || team != "eng" || n != 12 {
		t.Errorf("ParseID = %q, %d, %v", team, n, err)
	}
	for _, bad := range []string{"eng", "-1", "eng-x", "eng-0", "../etc-1", "Eng Team-1"} {
		if _, _, err := ParseID(bad); !errors.Is(err, apperr.ErrContract) {
			t.Errorf("ParseID(%q) err = %v, want ErrContract", bad, err)
		}
	}
	p, err := PathForID("ops-3")
	if err != nil || p != "ops/tasks/ops-3.md" {
		t.Errorf("PathForID = %q, %v", p, err)
	}
}
