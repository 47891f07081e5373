// Package taskservice implements the task workflows shared by the CLI, the
// HTTP API and the MCP server.
package taskservice

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"strings"

	"github.com/starford/raido/internal/apperr"
	"github.com/starford/raido/internal/changestore"
	"github.com/starford/raido/internal/document"
	"github.com/starford/raido/internal/index"
	"github.com/starford/raido/internal/system"
	"github.com/starford/raido/internal/task"
)

// Event kinds passed to a Notifier.
const (
	EventCreated = "created"
	EventUpdated = "updated"
	EventDeleted = "deleted"
)

// Me is the assignee shorthand for the current identity.
const Me = "me"

// Notifier is called after a task document or its index row changes.
type Notifier func(kind, id string)

// Detail is the full representation of a task with its history bounds.
type Detail struct {
	ID          string                  `json:"id"`
	Path        string                  `json:"path"`
	Title       string                  `json:"title"`
	Status      string                  `json:"status,omitempty"`
	Assignee    string                  `json:"assignee,omitempty"`
	Labels      []string                `json:"labels"`
	Props       map[string]any          `json:"props,omitempty"`
	Description string                  `json:"description,omitempty"`
	Created     changestore.ChangeInfo  `json:"created"`
	Updated     *changestore.ChangeInfo `json:"updated,omitempty"`
}

// ListItem is a lightweight item in a list response, built from the index.
type ListItem struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Status   string `json:"status,omitempty"`
	Assignee string `json:"assignee,omitempty"`
}

// ListOptions narrows List. Zero values match everything.
type ListOptions struct {
	Team     string
	Assignee string
	Group    task.Group
}

// Service coordinates the task collection, identity and change history.
type Service struct {
	sys    *system.System
	tasks  *system.Collection[task.Task, *task.Task]
	logger *slog.Logger
	notify Notifier
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the service logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithNotifier registers a callback for task changes.
func WithNotifier(n Notifier) Option {
	return func(s *Service) { s.notify = n }
}

// New binds the task collection on sys.
func New(ctx context.Context, sys *system.System, opts ...Option) (*Service, error) {
	tasks, err := system.Bind[task.Task](ctx, sys)
	if err != nil {
		return nil, err
	}
	s := &Service{sys: sys, tasks: tasks, logger: slog.Default()}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

// System returns the underlying system.
func (s *Service) System() *system.System { return s.sys }

func (s *Service) emit(kind, id string) {
	if s.notify != nil {
		s.notify(kind, id)
	}
}

// Create stores t as the next task of team and returns it with its history.
func (s *Service) Create(ctx context.Context, team string, t *task.Task) (*Detail, error) {
	if err := task.ValidateTeam(team); err != nil {
		return nil, err
	}
	if t.Assignee == Me {
		who, err := s.me()
		if err != nil {
			return nil, err
		}
		t.Assignee = who
	}
	if t.Status != "" {
		st, err := task.ParseStatus(t.Status)
		if err != nil {
			return nil, err
		}
		t.Status = st
	}
	if err := t.Validate(); err != nil {
		return nil, apperr.Wrap(apperr.ErrContract, "taskservice: create", err)
	}
	n, err := s.sys.NextID(task.Dir(team))
	if err != nil {
		return nil, err
	}
	created, err := s.tasks.Create(ctx, task.Path(team, n), t)
	if err != nil {
		return nil, err
	}
	s.logger.Info("taskservice: created", "id", created.ID())
	s.emit(EventCreated, created.ID())
	return s.Show(ctx, created.ID())
}

// Show reads the task with its created and updated changes.
func (s *Service) Show(_ context.Context, id string) (*Detail, error) {
	p, err := task.PathForID(id)
	if err != nil {
		return nil, err
	}
	v, err := s.tasks.ReadWithHistory(p)
	if err != nil {
		return nil, err
	}
	return newDetail(p, v.Doc, v.Created, v.Updated), nil
}

// History returns every change touching the task, most recent first.
func (s *Service) History(_ context.Context, id string) ([]changestore.ChangeInfo, error) {
	p, err := task.PathForID(id)
	if err != nil {
		return nil, err
	}
	out := []changestore.ChangeInfo{}
	for info, err := range s.sys.History(p) {
		if err != nil {
			return nil, err
		}
		out = append(out, info)
	}
	return out, nil
}

// List returns indexed tasks matching opts, ordered by id.
func (s *Service) List(ctx context.Context, opts ListOptions) ([]ListItem, error) {
	conds, err := s.conditions(opts)
	if err != nil {
		return nil, err
	}
	rows, err := s.tasks.Query(ctx, conds...)
	if err != nil {
		return nil, err
	}
	items := make([]ListItem, len(rows))
	for i, t := range rows {
		items[i] = ListItem{ID: t.ID(), Title: t.Title, Status: t.Status, Assignee: t.Assignee}
	}
	return items, nil
}

func (s *Service) conditions(opts ListOptions) ([]index.Condition, error) {
	var conds []index.Condition
	if opts.Team != "" {
		if err := task.ValidateTeam(opts.Team); err != nil {
			return nil, err
		}
		conds = append(conds, task.TeamCondition(opts.Team))
	}
	if opts.Assignee != "" {
		who := opts.Assignee
		if who == Me {
			var err error
			if who, err = s.me(); err != nil {
				return nil, err
			}
		}
		conds = append(conds, task.AssigneeCondition(who))
	}
	if opts.Group != "" {
		conds = append(conds, opts.Group.Condition())
	}
	return conds, nil
}

// Edit applies e to the task. When nothing changes the document is left
// untouched and changed is false.
func (s *Service) Edit(ctx context.Context, id string, e Edit) (d *Detail, changed bool, err error) {
	p, err := task.PathForID(id)
	if err != nil {
		return nil, false, err
	}
	current, err := s.tasks.Read(p)
	if err != nil {
		return nil, false, err
	}
	next, changed, err := s.apply(current, e)
	if err != nil {
		return nil, false, err
	}
	if changed {
		if _, err := s.tasks.Update(ctx, p, next); err != nil {
			return nil, false, err
		}
		s.logger.Info("taskservice: edited", "id", id)
		s.emit(EventUpdated, id)
	}
	d, err = s.Show(ctx, id)
	return d, changed, err
}

// BulkResult reports the outcome of a bulk edit for one task.
type BulkResult struct {
	ID      string `json:"id"`
	Changed bool   `json:"changed"`
	Error   string `json:"error,omitempty"`
}

// BulkEdit applies e to every indexed task matching opts. With dryRun the
// documents are only read. Per-task failures are reported in the results and
// joined into the returned error.
func (s *Service) BulkEdit(ctx context.Context, opts ListOptions, e Edit, dryRun bool) ([]BulkResult, error) {
	items, err := s.List(ctx, opts)
	if err != nil {
		return nil, err
	}
	out := make([]BulkResult, 0, len(items))
	var errs []error
	for _, it := range items {
		r := BulkResult{ID: it.ID}
		if dryRun {
			r.Changed, err = s.wouldChange(it.ID, e)
		} else {
			_, r.Changed, err = s.Edit(ctx, it.ID, e)
		}
		if err != nil {
			r.Error = err.Error()
			errs = append(errs, err)
		}
		out = append(out, r)
	}
	return out, errors.Join(errs...)
}

func (s *Service) wouldChange(id string, e Edit) (bool, error) {
	p, err := task.PathForID(id)
	if err != nil {
		return false, err
	}
	current, err := s.tasks.Read(p)
	if err != nil {
		return false, err
	}
	_, changed, err := s.apply(current, e)
	return changed, err
}

// Reindex refreshes index rows from documents. target is a team ("eng") or
// a task id ("eng-3"). It returns the number of rows written.
func (s *Service) Reindex(ctx context.Context, target string) (int, error) {
	target = strings.TrimSpace(target)
	if strings.Contains(target, "-") {
		p, err := task.PathForID(target)
		if err != nil {
			return 0, err
		}
		if _, err := s.tasks.Reindex(ctx, p); err != nil {
			return 0, err
		}
		s.emit(EventUpdated, target)
		return 1, nil
	}
	if err := task.ValidateTeam(target); err != nil {
		return 0, err
	}
	n, err := s.tasks.ReindexDir(ctx, task.Dir(target), func(h document.Handle) bool {
		_, ok := taskID(h.Path())
		return ok
	})
	s.logger.Info("taskservice: reindexed team", "team", target, "count", n)
	return n, err
}

// SyncResult summarizes a full index sync.
type SyncResult struct {
	Indexed int `json:"indexed"`
	Removed int `json:"removed"`
	Failed  int `json:"failed"`
}

// Sync walks the repository, reindexes every task document and removes
// index rows whose documents no longer exist.
func (s *Service) Sync(ctx context.Context) (SyncResult, error) {
	var res SyncResult
	hs, err := s.sys.WalkDirectory("")
	if err != nil {
		return res, err
	}
	indexed, err := s.tasks.IDs(ctx)
	if err != nil {
		return res, err
	}

	disk := make(map[string]struct{}, len(hs))
	for _, h := range hs {
		id, ok := taskID(h.Path())
		if !ok {
			continue
		}
		disk[id] = struct{}{}
		if _, err := s.tasks.Reindex(ctx, h.Path()); err != nil {
			s.logger.Warn("sync: index failed", "path", h.Path(), "error", err)
			res.Failed++
			continue
		}
		res.Indexed++
	}

	stale := make([]string, 0)
	for id := range indexed {
		if _, ok := disk[id]; !ok {
			stale = append(stale, id)
		}
	}
	slices.Sort(stale)
	for _, id := range stale {
		if err := s.tasks.Delete(ctx, id); err != nil {
			s.logger.Warn("sync: delete failed", "id", id, "error", err)
			continue
		}
		s.logger.Debug("sync: removed stale", "id", id)
		s.emit(EventDeleted, id)
		res.Removed++
	}
	s.logger.Info("sync: done", "indexed", res.Indexed, "removed", res.Removed, "failed", res.Failed)
	return res, nil
}

// ReindexPath refreshes the row of the task document at p. Paths that are
// not task documents are ignored and reported as false.
func (s *Service) ReindexPath(ctx context.Context, p string) (string, bool, error) {
	id, ok := taskID(p)
	if !ok {
		return "", false, nil
	}
	if _, err := s.tasks.Reindex(ctx, p); err != nil {
		return id, false, err
	}
	return id, true, nil
}

// RemovePath deletes the row of the task document at p.
func (s *Service) RemovePath(ctx context.Context, p string) (string, bool, error) {
	id, ok := taskID(p)
	if !ok {
		return "", false, nil
	}
	if err := s.tasks.Delete(ctx, id); err != nil {
		return id, false, err
	}
	return id, true, nil
}

func taskID(p string) (string, bool) {
	h := strings.TrimPrefix(p, "./")
	i := strings.LastIndex(h, "/")
	id := strings.TrimSuffix(h[i+1:], ".md")
	want, err := task.PathForID(id)
	if err != nil || want != h {
		return "", false
	}
	return id, true
}

func (s *Service) me() (string, error) {
	id := s.sys.Identity()
	if id == nil {
		return "", apperr.New(apperr.ErrNotFound, "taskservice", "no current identity to resolve %q", Me)
	}
	return id.Email, nil
}

func newDetail(p string, t *task.Task, created changestore.ChangeInfo, updated *changestore.ChangeInfo) *Detail {
	labels := t.Labels
	if labels == nil {
		labels = []string{}
	}
	return &Detail{
		ID:          t.ID(),
		Path:        p,
		Title:       t.Title,
		Status:      t.Status,
		Assignee:    t.Assignee,
		Labels:      labels,
		Props:       t.Props,
		Description: t.Description,
		Created:     created,
		Updated:     updated,
	}
}
