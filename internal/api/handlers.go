package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/raido/internal/task"
	"github.com/starford/raido/internal/taskservice"
)

// Handler holds API route handlers.
type Handler struct {
	svc *taskservice.Service
}

// NewHandler creates a new Handler.
func NewHandler(svc *taskservice.Service) *Handler {
	return &Handler{svc: svc}
}

func listOptions(team, assignee, status string) (taskservice.ListOptions, error) {
	opts := taskservice.ListOptions{Team: team, Assignee: assignee}
	if status != "" {
		g, err := task.ParseGroup(status)
		if err != nil {
			return opts, err
		}
		opts.Group = g
	}
	return opts, nil
}

// ListTasks handles GET /api/tasks.
//
//	@Summary		List tasks from the index
//	@Tags			tasks
//	@Produce		json
//	@Param			team		query		string	false	"Team key"
//	@Param			assignee	query		string	false	"Assignee email or \"me\""
//	@Param			status		query		string	false	"Status group"	Enums(open, in-progress, closed)
//	@Success		200			{object}	TaskListResponse
//	@Security		BearerAuth
//	@Router			/tasks [get]
func (h *Handler) ListTasks(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	opts, err := listOptions(q.Get("team"), q.Get("assignee"), q.Get("status"))
	if err != nil {
		writeError(w, r, "list tasks", err)
		return
	}
	items, err := h.svc.List(r.Context(), opts)
	if err != nil {
		writeError(w, r, "list tasks", err)
		return
	}
	writeJSON(w, http.StatusOK, TaskListResponse{Tasks: items, Total: len(items)})
}

// GetTask handles GET /api/tasks/{id}.
//
//	@Summary		Get a task with its created and updated changes
//	@Tags			tasks
//	@Produce		json
//	@Param			id	path		string	true	"Task id"
//	@Success		200	{object}	TaskDetail
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/tasks/{id} [get]
func (h *Handler) GetTask(w http.ResponseWriter, r *http.Request) {
	d, err := h.svc.Show(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, "get task", err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// CreateTask handles POST /api/tasks.
//
//	@Summary		Create a task as the next number of its team
//	@Tags			tasks
//	@Accept			json
//	@Produce		json
//	@Param			body	body		CreateTaskRequest	true	"Task to create"
//	@Success		201		{object}	TaskDetail
//	@Failure		400		{object}	errResponse
//	@Failure		409		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/tasks [post]
func (h *Handler) CreateTask(w http.ResponseWriter, r *http.Request) {
	var req CreateTaskRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	t, err := req.task()
	if err != nil {
		writeError(w, r, "create task", err)
		return
	}
	d, err := h.svc.Create(r.Context(), req.Team, t)
	if err != nil {
		writeError(w, r, "create task", err)
		return
	}
	w.Header().Set("Location", "/api/tasks/"+d.ID)
	writeJSON(w, http.StatusCreated, d)
}

// EditTask handles PATCH /api/tasks/{id}.
//
//	@Summary		Edit task fields; unchanged edits record nothing
//	@Tags			tasks
//	@Accept			json
//	@Produce		json
//	@Param			id		path		string			true	"Task id"
//	@Param			body	body		EditTaskRequest	true	"Fields to change"
//	@Success		200		{object}	EditResponse
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/tasks/{id} [patch]
func (h *Handler) EditTask(w http.ResponseWriter, r *http.Request) {
	var req EditTaskRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	d, changed, err := h.svc.Edit(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		writeError(w, r, "edit task", err)
		return
	}
	writeJSON(w, http.StatusOK, EditResponse{Task: d, Changed: changed})
}

// BulkEdit handles POST /api/tasks/bulk-edit.
//
//	@Summary		Edit every task matching the filters
//	@Tags			tasks
//	@Accept			json
//	@Produce		json
//	@Param			body	body		BulkEditRequest	true	"Filters and edit"
//	@Success		200		{object}	BulkEditResponse
//	@Security		BearerAuth
//	@Router			/tasks/bulk-edit [post]
func (h *Handler) BulkEdit(w http.ResponseWriter, r *http.Request) {
	var req BulkEditRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	opts, err := listOptions(req.Team, req.Assignee, req.Status)
	if err != nil {
		writeError(w, r, "bulk edit", err)
		return
	}
	res, err := h.svc.BulkEdit(r.Context(), opts, req.Edit, req.DryRun)
	if res == nil {
		writeError(w, r, "bulk edit", err)
		return
	}
	// Per-task failures are reported inside the results.
	writeJSON(w, http.StatusOK, BulkEditResponse{Results: res, DryRun: req.DryRun})
}

// TaskHistory handles GET /api/tasks/{id}/history.
//
//	@Summary		List the changes touching a task
//	@Tags			tasks
//	@Produce		json
//	@Param			id	path		string	true	"Task id"
//	@Success		200	{object}	HistoryResponse
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/tasks/{id}/history [get]
func (h *Handler) TaskHistory(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	changes, err := h.svc.History(r.Context(), id)
	if err != nil {
		writeError(w, r, "task history", err)
		return
	}
	writeJSON(w, http.StatusOK, HistoryResponse{ID: id, Changes: changes})
}

// Reindex handles POST /api/reindex/{target}.
//
//	@Summary		Refresh index rows for a team or a single task
//	@Tags			index
//	@Produce		json
//	@Param			target	path		string	true	"Team key or task id"
//	@Success		200		{object}	ReindexResponse
//	@Security		BearerAuth
//	@Router			/reindex/{target} [post]
func (h *Handler) Reindex(w http.ResponseWriter, r *http.Request) {
	target := chi.URLParam(r, "target")
	n, err := h.svc.Reindex(r.Context(), target)
	if err != nil && n == 0 {
		writeError(w, r, "reindex", err)
		return
	}
	resp := ReindexResponse{Target: target, Indexed: n}
	if err != nil {
		resp.Error = err.Error()
	}
	writeJSON(w, http.StatusOK, resp)
}

// Sync handles POST /api/sync.
//
//	@Summary		Reindex every task and drop rows of deleted documents
//	@Tags			index
//	@Produce		json
//	@Success		200	{object}	taskservice.SyncResult
//	@Security		BearerAuth
//	@Router			/sync [post]
func (h *Handler) Sync(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.Sync(r.Context())
	if err != nil {
		writeError(w, r, "sync", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
