package taskservice

import (
	"slices"

	"github.com/starford/raido/internal/apperr"
	"github.com/starford/raido/internal/task"
)

// Edit lists the fields to change. Nil fields are left as they are.
// An empty Assignee clears the assignee; "me" assigns the current identity.
type Edit struct {
	Title       *string  `json:"title,omitempty"`
	Status      *string  `json:"status,omitempty"`
	Assignee    *string  `json:"assignee,omitempty"`
	Description *string  `json:"description,omitempty"`
	AddLabels   []string `json:"add_labels,omitempty"`
	DelLabels   []string `json:"remove_labels,omitempty"`
}

// Empty reports whether e changes nothing.
func (e Edit) Empty() bool {
	return e.Title == nil && e.Status == nil && e.Assignee == nil &&
		e.Description == nil && len(e.AddLabels) == 0 && len(e.DelLabels) == 0
}

// apply returns a copy of t with e applied and whether it differs from t.
func (s *Service) apply(t *task.Task, e Edit) (*task.Task, bool, error) {
	if e.Empty() {
		return t, false, apperr.New(apperr.ErrContract, "taskservice: edit", "nothing to edit")
	}
	next := t.Clone()
	if e.Title != nil {
		next.Title = *e.Title
	}
	if e.Status != nil {
		st, err := task.ParseStatus(*e.Status)
		if err != nil {
			return t, false, err
		}
		next.Status = st
	}
	if e.Assignee != nil {
		who := *e.Assignee
		if who == Me {
			var err error
			if who, err = s.me(); err != nil {
				return t, false, err
			}
		}
		next.Assignee = who
	}
	if e.Description != nil {
		next.Description = *e.Description
	}
	for _, l := range e.AddLabels {
		if !slices.Contains(next.Labels, l) {
			next.Labels = append(next.Labels, l)
		}
	}
	if len(e.DelLabels) > 0 {
		next.Labels = slices.DeleteFunc(next.Labels, func(l string) bool {
			return slices.Contains(e.DelLabels, l)
		})
		if len(next.Labels) == 0 {
			next.Labels = nil
		}
	}
	if err := next.Validate(); err != nil {
		return t, false, apperr.Wrap(apperr.ErrContract, "taskservice: edit", err)
	}
	return next, !next.Equal(t), nil
}
