package api

import (
	"github.com/starford/raido/internal/changestore"
	"github.com/starford/raido/internal/task"
	"github.com/starford/raido/internal/taskservice"
)

// CreateTaskRequest is the request body for creating a task.
type CreateTaskRequest struct {
	Team        string         `json:"team" example:"eng" validate:"required"`
	Title       string         `json:"title" example:"Fix bug" validate:"required"`
	Status      string         `json:"status,omitempty" example:"Todo"`
	Assignee    string         `json:"assignee,omitempty" example:"me"`
	Labels      []string       `json:"labels,omitempty"`
	Props       map[string]any `json:"props,omitempty"`
	Description string         `json:"description,omitempty"`
}

func (r CreateTaskRequest) task() (*task.Task, error) {
	t := &task.Task{
		Title:       r.Title,
		Assignee:    r.Assignee,
		Labels:      r.Labels,
		Props:       r.Props,
		Description: r.Description,
	}
	if r.Status != "" {
		st, err := task.ParseStatus(r.Status)
		if err != nil {
			return nil, err
		}
		t.Status = st
	}
	return t, nil
}

// EditTaskRequest lists the fields to change; omitted fields are kept.
type EditTaskRequest = taskservice.Edit

// BulkEditRequest selects tasks with the list filters and edits them.
type BulkEditRequest struct {
	Team     string          `json:"team,omitempty"`
	Assignee string          `json:"assignee,omitempty"`
	Status   string          `json:"status,omitempty" example:"open"`
	Edit     EditTaskRequest `json:"edit"`
	DryRun   bool            `json:"dry_run"`
}

// TaskDetail is the full task response type.
type TaskDetail = taskservice.Detail

// TaskListItem is a lightweight item in a list response.
type TaskListItem = taskservice.ListItem

// TaskListResponse wraps task listings.
type TaskListResponse struct {
	Tasks []TaskListItem `json:"tasks" validate:"required"`
	Total int            `json:"total" example:"42" validate:"required"`
}

// EditResponse is returned by PATCH /tasks/{id}.
type EditResponse struct {
	Task    *TaskDetail `json:"task"`
	Changed bool        `json:"changed"`
}

// HistoryResponse lists the changes touching a task, most recent first.
type HistoryResponse struct {
	ID      string                   `json:"id"`
	Changes []changestore.ChangeInfo `json:"changes"`
}

// BulkEditResponse reports a bulk edit.
type BulkEditResponse struct {
	Results []taskservice.BulkResult `json:"results"`
	DryRun  bool                     `json:"dry_run"`
}

// ReindexResponse reports how many rows were refreshed.
type ReindexResponse struct {
	Target  string `json:"target"`
	Indexed int    `json:"indexed"`
	Error   string `json:"error,omitempty"`
}
