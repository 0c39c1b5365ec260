// Package cmdutils holds terminal output helpers shared by CLI commands.
package cmdutils

import (
	"fmt"
	"io"
	"strings"

	"github.com/cronboard/cronboard/internal/graph"
	"github.com/cronboard/cronboard/internal/schema"
	"github.com/cronboard/cronboard/internal/shared/stringutils"
)

const Logo = "⏱"

// Mark renders a check or a cross.
func Mark(ok bool) string {
	if ok {
		return "✓"
	}
	return "✗"
}

// Rule returns a horizontal separator of width n.
func Rule(n int) string { return strings.Repeat("-", n) }

// PrintGroups writes the group table.
func PrintGroups(w io.Writer, groups []schema.Group) {
	if len(groups) == 0 {
		fmt.Fprintln(w, "No groups.")
		return
	}
	fmt.Fprintf(w, "%-38s %s\n", "ID", "Name")
	fmt.Fprintln(w, Rule(60))
	for _, g := range groups {
		fmt.Fprintf(w, "%-38s %s\n", g.ID, g.Name)
	}
}

// PrintJobs writes the job table. statusOf may be nil, in which case the
// status column is omitted. Relations are read from the merged edge set.
func PrintJobs(w io.Writer, jobs []schema.Job, statusOf func(jobID string) schema.JobStatus) {
	if len(jobs) == 0 {
		fmt.Fprintln(w, "No jobs.")
		return
	}
	g := graph.FromJobs(jobs)
	if statusOf != nil {
		fmt.Fprintf(w, "%-8s %-20s %-10s %-25s %-25s\n", "ID", "Name", "Status", "Depends on", "Children")
		fmt.Fprintln(w, Rule(92))
	} else {
		fmt.Fprintf(w, "%-8s %-20s %-25s %-25s\n", "ID", "Name", "Depends on", "Children")
		fmt.Fprintln(w, Rule(81))
	}
	for _, j := range jobs {
		deps := stringutils.Truncate(stringutils.JoinOrDash(g.Dependencies(j.Name)), 21)
		children := stringutils.Truncate(stringutils.JoinOrDash(g.Children(j.Name)), 21)
		name := stringutils.Truncate(j.Name, 17)
		if statusOf != nil {
			fmt.Fprintf(w, "%-8s %-20s %-10s %-25s %-25s\n", j.ID, name, statusOf(j.ID).Status, deps, children)
			continue
		}
		fmt.Fprintf(w, "%-8s %-20s %-25s %-25s\n", j.ID, name, deps, children)
	}
}
