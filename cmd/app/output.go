package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/starford/raido/internal/changestore"
	"github.com/starford/raido/internal/taskservice"
)

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func authors(c changestore.ChangeInfo) string {
	names := make([]string, 0, len(c.Authors))
	for _, a := range c.Authors {
		switch {
		case a.Resolved && a.Email != "":
			names = append(names, fmt.Sprintf("%s <%s>", a.Name, a.Email))
		case len(a.Key) > 12:
			names = append(names, a.Key[:12])
		default:
			names = append(names, a.Key)
		}
	}
	return strings.Join(names, ", ")
}

func changeLine(c changestore.ChangeInfo) string {
	return fmt.Sprintf("%s by %s at %s", c.Hash.Short(), authors(c), c.Timestamp.Local().Format(time.DateTime))
}

func printDetail(w io.Writer, d *taskservice.Detail) {
	fmt.Fprintf(w, "%s  %s\n", d.ID, d.Title)
	fmt.Fprintf(w, "  path:     %s\n", d.Path)
	if d.Status != "" {
		fmt.Fprintf(w, "  status:   %s\n", d.Status)
	}
	if d.Assignee != "" {
		fmt.Fprintf(w, "  assignee: %s\n", d.Assignee)
	}
	if len(d.Labels) > 0 {
		fmt.Fprintf(w, "  labels:   %s\n", strings.Join(d.Labels, ", "))
	}
	fmt.Fprintf(w, "  created:  %s\n", changeLine(d.Created))
	if d.Updated != nil {
		fmt.Fprintf(w, "  updated:  %s\n", changeLine(*d.Updated))
	}
	if d.Description != "" {
		fmt.Fprintf(w, "\n%s\n", strings.TrimRight(d.Description, "\n"))
	}
}

func printList(w io.Writer, items []taskservice.ListItem) {
	if len(items) == 0 {
		fmt.Fprintln(w, "no tasks found")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTATUS\tASSIGNEE\tTITLE")
	for _, it := range items {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", it.ID, it.Status, it.Assignee, it.Title)
	}
	_ = tw.Flush()
}

func printBulk(w io.Writer, results []taskservice.BulkResult, dryRun bool) {
	verb := "updated"
	if dryRun {
		verb = "would update"
	}
	changed := 0
	for _, r := range results {
		switch {
		case r.Error != "":
			fmt.Fprintf(w, "%s: error: %s\n", r.ID, r.Error)
		case r.Changed:
			changed++
			fmt.Fprintf(w, "%s: %s\n", r.ID, verb)
		}
	}
	fmt.Fprintf(w, "%d of %d matching task(s) %s\n", changed, len(results), verb)
}

func printHistory(w io.Writer, changes []changestore.ChangeInfo) {
	for _, c := range changes {
		fmt.Fprintf(w, "%s  %s\n", changeLine(c), c.Message)
	}
}
