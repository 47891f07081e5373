package task

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/starford/raido/internal/apperr"
	"github.com/starford/raido/internal/index"
)

// Status values stored in front matter.
const (
	StatusTodo       = "Todo"
	StatusInProgress = "In Progress"
	StatusDone       = "Done"
	StatusCanceled   = "Canceled"
	StatusDuplicate  = "Duplicate"
)

// Statuses lists every known status in workflow order.
var Statuses = []string{StatusTodo, StatusInProgress, StatusDone, StatusCanceled, StatusDuplicate}

// ParseStatus normalizes user input such as "in-progress" or "DONE" to a known status.
func ParseStatus(s string) (string, error) {
	norm := strings.NewReplacer("-", " ", "_", " ").Replace(strings.TrimSpace(s))
	norm = cases.Title(language.English).String(strings.ToLower(norm))
	for _, st := range Statuses {
		if st == norm {
			return st, nil
		}
	}
	return "", apperr.New(apperr.ErrContract, "task: parse status", "unknown status %q (want one of %s)", s, strings.Join(Statuses, ", "))
}

// Group is a named set of statuses used for filtering.
type Group string

const (
	GroupOpen       Group = "open"
	GroupInProgress Group = "in-progress"
	GroupClosed     Group = "closed"
)

// ParseGroup accepts "open", "in-progress" or "closed".
func ParseGroup(s string) (Group, error) {
	switch g := Group(strings.ToLower(strings.TrimSpace(s))); g {
	case GroupOpen, GroupInProgress, GroupClosed:
		return g, nil
	case "in_progress", "inprogress":
		return GroupInProgress, nil
	}
	return "", apperr.New(apperr.ErrContract, "task: parse status group", "unknown status group %q", s)
}

// Condition returns the index filter selecting tasks in g. Tasks without a
// status count as open.
func (g Group) Condition() index.Condition {
	switch g {
	case GroupInProgress:
		return index.Eq("status", StatusInProgress)
	case GroupClosed:
		return index.In("status", StatusDone, StatusCanceled, StatusDuplicate)
	default:
		return index.Or(index.IsNull("status"), index.In("status", StatusTodo, StatusInProgress))
	}
}

// Contains reports whether status belongs to g.
func (g Group) Contains(status string) bool {
	switch g {
	case GroupInProgress:
		return status == StatusInProgress
	case GroupClosed:
		return status == StatusDone || status == StatusCanceled || status == StatusDuplicate
	default:
		return status == "" || status == StatusTodo || status == StatusInProgress
	}
}
