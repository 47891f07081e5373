package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/starford/raido/internal/changestore"
	"github.com/starford/raido/internal/taskservice"
)

func TestPrintList(t *testing.T) {
	var buf bytes.Buffer
	printList(&buf, nil)
	if buf.String() != "no tasks found\n" {
		t.Errorf("empty list = %q", buf.String())
	}

	buf.Reset()
	printList(&buf, []taskservice.ListItem{
		{ID: "eng-1", Title: "Fix bug", Status: "Todo"},
		{ID: "eng-12", Title: "Ship", Status: "Done", Assignee: "a@example.com"},
	})
	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	if len(lines) != 3 {
		t.Fatalf("lines = %q", lines)
	}
	if !strings.HasPrefix(lines[2], "eng-12  Done") {
		t.Errorf("row = %q", lines[2])
	}
}

func TestPrintBulk(t *testing.T) {
	var buf bytes.Buffer
	printBulk(&buf, []taskservice.BulkResult{
		{ID: "eng-1", Changed: true},
		{ID: "eng-2"},
		{ID: "eng-3", Error: "boom"},
	}, true)
	out := buf.String()
	for _, want := range []string{"eng-1: would update", "eng-3: error: boom", "1 of 3 matching task(s) would update"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "eng-2") {
		t.Errorf("unchanged task listed:\n%s", out)
	}
}

func TestAuthors(t *testing.T) {
	c := changestore.ChangeInfo{
		Hash:      "abcdefghijkl",
		Timestamp: time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC),
		Authors: []changestore.Author{
			{Key: "k1", Name: "Ann", Email: "ann@example.com", Resolved: true},
			{Key: "0123456789abcdefXYZ"},
		},
	}
	if got := authors(c); got != "Ann <ann@example.com>, 0123456789ab" {
		t.Errorf("authors = %q", got)
	}
	if got := changeLine(c); !strings.HasPrefix(got, "abcdefgh by Ann") {
		t.Errorf("changeLine = %q", got)
	}
}
