package mcpserver

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/starford/raido/internal/changestore"
	"github.com/starford/raido/internal/taskservice"
	"github.com/starford/raido/internal/testutil"
)

func testServer(t *testing.T) *Server {
	t.Helper()
	return New(testutil.TestService(t), "test")
}

func callTool(t *testing.T, srv *Server, name string, args map[string]any) *mcp.CallToolResult {
	t.Helper()
	ctx := context.Background()
	req := mcp.CallToolRequest{}
	req.Method = "tools/call"
	req.Params.Name = name
	req.Params.Arguments = args

	var result *mcp.CallToolResult
	var err error

	switch name {
	case "list_tasks":
		result, err = srv.listTasks(ctx, req)
	case "show_task":
		result, err = srv.showTask(ctx, req)
	case "create_task":
		result, err = srv.createTask(ctx, req)
	case "edit_task":
		result, err = srv.editTask(ctx, req)
	case "task_history":
		result, err = srv.taskHistory(ctx, req)
	case "get_task_contract":
		result, err = srv.getTaskContract(ctx, req)
	default:
		t.Fatalf("unknown tool: %s", name)
	}

	if err != nil {
		t.Fatalf("tool %s error: %v", name, err)
	}
	return result
}

func resultText(r *mcp.CallToolResult) string {
	if len(r.Content) > 0 {
		if tc, ok := r.Content[0].(mcp.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}

func TestCreateAndShowTask(t *testing.T) {
	srv := testServer(t)

	r := callTool(t, srv, "create_task", map[string]any{
		"team":   "eng",
		"title":  "Fix bug",
		"status": "in-progress",
		"labels": []any{"A-core"},
	})
	if text := resultText(r); text != "created: eng-1 (eng/tasks/eng-1.md)" {
		t.Fatalf("create result = %q", text)
	}

	r = callTool(t, srv, "show_task", map[string]any{"id": "eng-1"})
	var d taskservice.Detail
	if err := json.Unmarshal([]byte(resultText(r)), &d); err != nil {
		t.Fatalf("show result: %v", err)
	}
	if d.Title != "Fix bug" || d.Status != "In Progress" || len(d.Labels) != 1 || d.Labels[0] != "A-core" {
		t.Errorf("task = %+v", d)
	}
}

func TestCreateTaskErrors(t *testing.T) {
	srv := testServer(t)
	for _, args := range []map[string]any{
		{"title": "no team"},
		{"team": "eng"},
		{"team": "eng", "title": "x", "status": "blocked"},
		{"team": "Eng Team", "title": "x"},
	} {
		if r := callTool(t, srv, "create_task", args); !r.IsError {
			t.Errorf("create_task(%v) should fail, got %q", args, resultText(r))
		}
	}
}

func TestEditTask(t *testing.T) {
	srv := testServer(t)
	callTool(t, srv, "create_task", map[string]any{"team": "eng", "title": "Fix bug", "assignee": "me"})

	r := callTool(t, srv, "edit_task", map[string]any{"id": "eng-1", "status": "done"})
	if text := resultText(r); text != "updated: eng-1" {
		t.Errorf("edit = %q", text)
	}
	r = callTool(t, srv, "edit_task", map[string]any{"id": "eng-1", "status": "Done"})
	if text := resultText(r); text != "unchanged: eng-1" {
		t.Errorf("repeat edit = %q", text)
	}

	r = callTool(t, srv, "edit_task", map[string]any{"id": "eng-1", "assignee": ""})
	if text := resultText(r); text != "updated: eng-1" {
		t.Errorf("clear assignee = %q", text)
	}
	r = callTool(t, srv, "show_task", map[string]any{"id": "eng-1"})
	if strings.Contains(resultText(r), "assignee") {
		t.Errorf("assignee not cleared: %s", resultText(r))
	}

	r = callTool(t, srv, "task_history", map[string]any{"id": "eng-1"})
	var changes []changestore.ChangeInfo
	if err := json.Unmarshal([]byte(resultText(r)), &changes); err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(changes) != 3 {
		t.Errorf("history len = %d, want 3", len(changes))
	}

	if r := callTool(t, srv, "edit_task", map[string]any{"id": "eng-7", "title": "x"}); !r.IsError {
		t.Error("expected error for missing task")
	}
}

func TestListTasks(t *testing.T) {
	srv := testServer(t)

	r := callTool(t, srv, "list_tasks", map[string]any{})
	if text := resultText(r); text != "no tasks found" {
		t.Errorf("empty list = %q", text)
	}

	callTool(t, srv, "create_task", map[string]any{"team": "eng", "title": "a"})
	callTool(t, srv, "create_task", map[string]any{"team": "eng", "title": "b", "status": "done"})
	callTool(t, srv, "create_task", map[string]any{"team": "ops", "title": "c"})

	r = callTool(t, srv, "list_tasks", map[string]any{"team": "eng", "status": "open"})
	var items []taskservice.ListItem
	if err := json.Unmarshal([]byte(resultText(r)), &items); err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(items) != 1 || items[0].ID != "eng-1" {
		t.Errorf("items = %+v", items)
	}

	if r := callTool(t, srv, "list_tasks", map[string]any{"status": "someday"}); !r.IsError {
		t.Error("expected error for unknown status group")
	}
}

func TestTaskContract(t *testing.T) {
	srv := testServer(t)
	r := callTool(t, srv, "get_task_contract", nil)
	if !strings.Contains(resultText(r), "<team>/tasks/<team>-<n>.md") {
		t.Error("contract missing path layout")
	}

	contents, err := srv.readTaskFormatResource(context.Background(), mcp.ReadResourceRequest{})
	if err != nil {
		t.Fatal(err)
	}
	tc, ok := contents[0].(mcp.TextResourceContents)
	if !ok || tc.URI != FormatURI || tc.Text != TaskFormatContract {
		t.Errorf("resource = %+v", contents[0])
	}
}
