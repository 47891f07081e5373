// Package task defines the task record stored under <team>/tasks/<team>-<n>.md.
package task

import (
	"database/sql"
	"fmt"
	"maps"
	"path"
	"regexp"
	"slices"
	"strconv"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/raido/internal/apperr"
	"github.com/starford/raido/internal/document"
	"github.com/starford/raido/internal/index"
)

// Table is the index table holding tasks.
const Table = "tasks"

// Task is a unit of work. The id comes from the file name and is never serialized.
type Task struct {
	id          string
	Title       string         `yaml:"title" json:"title"`
	Status      string         `yaml:"status,omitempty" json:"status,omitempty"`
	Assignee    string         `yaml:"assignee,omitempty" json:"assignee,omitempty"`
	Labels      []string       `yaml:"labels,omitempty" json:"labels,omitempty"`
	Props       map[string]any `yaml:"props,omitempty" json:"props,omitempty"`
	Description string         `yaml:"-" json:"description,omitempty"`
}

var (
	_ document.Record    = (*Task)(nil)
	_ document.Validator = (*Task)(nil)
	_ index.Indexable    = (*Task)(nil)
)

// New returns a task with the given title.
func New(title string) *Task { return &Task{Title: title} }

func (t *Task) ID() string { return t.id }

func (t *Task) SetID(id string) { t.id = id }

// Body returns the description, stored as the markdown body.
func (t *Task) Body() string { return t.Description }

func (t *Task) SetBody(body string) { t.Description = body }

// Validate checks the front matter fields. Status is free text on disk so
// hand-edited values still read and index; ParseStatus guards new input.
func (t *Task) Validate() error {
	return validation.ValidateStruct(t,
		validation.Field(&t.Title, validation.Required),
		validation.Field(&t.Labels, validation.Each(validation.Required)),
	)
}

// Clone returns a deep copy.
func (t *Task) Clone() *Task {
	c := *t
	c.Labels = slices.Clone(t.Labels)
	c.Props = maps.Clone(t.Props)
	return &c
}

// Equal reports whether two tasks have the same id and content.
func (t *Task) Equal(o *Task) bool {
	if t.id != o.id || t.Title != o.Title || t.Status != o.Status ||
		t.Assignee != o.Assignee || t.Description != o.Description {
		return false
	}
	if !slices.Equal(t.Labels, o.Labels) || len(t.Props) != len(o.Props) {
		return false
	}
	for k, v := range t.Props {
		ov, ok := o.Props[k]
		if !ok || fmt.Sprint(v) != fmt.Sprint(ov) {
			return false
		}
	}
	return true
}

func (t *Task) IndexTable() string { return Table }

func (t *Task) IndexColumns() []index.Column {
	return []index.Column{
		{Name: "title", Decl: "TEXT NOT NULL"},
		{Name: "status", Decl: "TEXT"},
		{Name: "assignee", Decl: "TEXT"},
		{Name: "description", Decl: "TEXT"},
	}
}

func (t *Task) IndexValues() []any {
	return []any{t.Title, index.NullString(t.Status), index.NullString(t.Assignee), index.NullString(t.Description)}
}

func (t *Task) ScanIndexRow(scan func(dest ...any) error) error {
	var status, assignee, description sql.NullString
	if err := scan(&t.id, &t.Title, &status, &assignee, &description); err != nil {
		return err
	}
	t.Status, t.Assignee, t.Description = status.String, assignee.String, description.String
	return nil
}

var teamRe = regexp.MustCompile(`^[a-z][a-z0-9]*$`)

// ValidateTeam checks a team key: lowercase letters and digits, starting with a letter.
func ValidateTeam(team string) error {
	if !teamRe.MatchString(team) {
		return apperr.New(apperr.ErrContract, "task", "invalid team %q", team)
	}
	return nil
}

// Dir returns the directory holding a team's tasks.
func Dir(team string) string { return path.Join(team, "tasks") }

// Path returns the document path of task team-n.
func Path(team string, n int) string {
	return path.Join(Dir(team), fmt.Sprintf("%s-%d.md", team, n))
}

// PathForID returns the document path of an id like "eng-3".
func PathForID(id string) (string, error) {
	team, n, err := ParseID(id)
	if err != nil {
		return "", err
	}
	return Path(team, n), nil
}

// ParseID splits "eng-3" into its team and number.
func ParseID(id string) (team string, n int, err error) {
	i := strings.LastIndex(id, "-")
	if i <= 0 {
		return "", 0, apperr.New(apperr.ErrContract, "task: parse id", "invalid task id %q", id)
	}
	team = strings.ToLower(id[:i])
	if err := ValidateTeam(team); err != nil {
		return "", 0, apperr.New(apperr.ErrContract, "task: parse id", "invalid task id %q", id)
	}
	n, err = strconv.Atoi(id[i+1:])
	if err != nil || n <= 0 {
		return "", 0, apperr.New(apperr.ErrContract, "task: parse id", "invalid task id %q", id)
	}
	return team, n, nil
}

// TeamCondition selects the tasks of one team.
func TeamCondition(team string) index.Condition {
	return index.HasPrefix("id", team+"-")
}

// AssigneeCondition selects tasks assigned to who.
func AssigneeCondition(who string) index.Condition {
	return index.Eq("assignee", who)
}
