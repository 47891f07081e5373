// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes raido task tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/raido/internal/task"
	"github.com/starford/raido/internal/taskservice"
)

// FormatURI is the resource URI of the task format contract.
const FormatURI = "raido://task-format"

// Server wraps the MCP server with raido tools.
type Server struct {
	mcp *server.MCPServer
	svc *taskservice.Service
}

// New creates a new MCP server with all raido tools registered.
func New(svc *taskservice.Service, version string) *Server {
	s := &Server{svc: svc}

	s.mcp = server.NewMCPServer(
		"Raido",
		version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("list_tasks",
		mcp.WithDescription("List tasks from the index, ordered by id."),
		mcp.WithString("team", mcp.Description("Team key, e.g. eng")),
		mcp.WithString("assignee", mcp.Description(`Assignee email, or "me" for the current identity`)),
		mcp.WithString("status", mcp.Description("Status group"), mcp.Enum("open", "in-progress", "closed")),
	), s.listTasks)

	s.mcp.AddTool(mcp.NewTool("show_task",
		mcp.WithDescription("Read a task with the changes that created and last updated it."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Task id, e.g. eng-3")),
	), s.showTask)

	s.mcp.AddTool(mcp.NewTool("create_task",
		mcp.WithDescription("Create a task as the next number of its team and record it as a signed change. "+
			"Read the contract first via get_task_contract or the "+FormatURI+" resource."),
		mcp.WithString("team", mcp.Required(), mcp.Description("Team key, e.g. eng")),
		mcp.WithString("title", mcp.Required(), mcp.Description("Task title")),
		mcp.WithString("status", mcp.Description("Initial status, e.g. Todo")),
		mcp.WithString("assignee", mcp.Description(`Assignee email, or "me"`)),
		mcp.WithString("description", mcp.Description("Markdown description")),
		mcp.WithArray("labels", mcp.Description("Labels"), mcp.WithStringItems()),
	), s.createTask)

	s.mcp.AddTool(mcp.NewTool("edit_task",
		mcp.WithDescription("Change fields of a task. Omitted fields are kept; an edit that changes nothing records nothing."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Task id, e.g. eng-3")),
		mcp.WithString("title", mcp.Description("New title")),
		mcp.WithString("status", mcp.Description("New status")),
		mcp.WithString("assignee", mcp.Description(`New assignee email, "me", or "" to clear`)),
		mcp.WithString("description", mcp.Description("New Markdown description")),
		mcp.WithArray("add_labels", mcp.Description("Labels to add"), mcp.WithStringItems()),
		mcp.WithArray("remove_labels", mcp.Description("Labels to remove"), mcp.WithStringItems()),
	), s.editTask)

	s.mcp.AddTool(mcp.NewTool("task_history",
		mcp.WithDescription("List every change touching a task, most recent first."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Task id, e.g. eng-3")),
	), s.taskHistory)

	s.mcp.AddTool(mcp.NewTool("get_task_contract",
		mcp.WithDescription("Returns the raido task format contract. "+
			"Call this before creating or editing tasks."),
	), s.getTaskContract)

	s.mcp.AddResource(
		mcp.NewResource(FormatURI, "Task Format Contract",
			mcp.WithResourceDescription("Task document format and tool conventions."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readTaskFormatResource,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(out)), nil
}

// has reports whether the caller passed key at all, so "" can clear a field.
func has(req mcp.CallToolRequest, key string) bool {
	_, ok := req.GetArguments()[key]
	return ok
}

func optional(req mcp.CallToolRequest, key string) *string {
	if !has(req, key) {
		return nil
	}
	v := req.GetString(key, "")
	return &v
}

func (s *Server) listTasks(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	opts := taskservice.ListOptions{
		Team:     req.GetString("team", ""),
		Assignee: req.GetString("assignee", ""),
	}
	if st := req.GetString("status", ""); st != "" {
		g, err := task.ParseGroup(st)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		opts.Group = g
	}
	items, err := s.svc.List(ctx, opts)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if len(items) == 0 {
		return mcp.NewToolResultText("no tasks found"), nil
	}
	return jsonResult(items)
}

func (s *Server) showTask(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	d, err := s.svc.Show(ctx, id)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(d)
}

func (s *Server) createTask(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	team, err := req.RequireString("team")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	title, err := req.RequireString("title")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	t := &task.Task{
		Title:       title,
		Assignee:    req.GetString("assignee", ""),
		Labels:      req.GetStringSlice("labels", nil),
		Description: req.GetString("description", ""),
	}
	if st := req.GetString("status", ""); st != "" {
		if t.Status, err = task.ParseStatus(st); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
	}
	d, err := s.svc.Create(ctx, team, t)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("created: %s (%s)", d.ID, d.Path)), nil
}

func (s *Server) editTask(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	e := taskservice.Edit{
		Title:       optional(req, "title"),
		Status:      optional(req, "status"),
		Assignee:    optional(req, "assignee"),
		Description: optional(req, "description"),
		AddLabels:   req.GetStringSlice("add_labels", nil),
		DelLabels:   req.GetStringSlice("remove_labels", nil),
	}
	_, changed, err := s.svc.Edit(ctx, id, e)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if !changed {
		return mcp.NewToolResultText(fmt.Sprintf("unchanged: %s", id)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("updated: %s", id)), nil
}

func (s *Server) taskHistory(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	changes, err := s.svc.History(ctx, id)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(changes)
}

func (s *Server) getTaskContract(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(TaskFormatContract), nil
}

func (s *Server) readTaskFormatResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      FormatURI,
			MIMEType: "text/markdown",
			Text:     TaskFormatContract,
		},
	}, nil
}
