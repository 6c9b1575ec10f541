package view

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/tkc/ttrak/internal/domain"
)

const titleWidth = 50

// renderList は一覧を表形式で書き出す。cursor行に印を付ける
func renderList(w io.Writer, tasks []domain.Task, filter domain.TaskFilter, cursor int) {
	fmt.Fprintln(w, tabBar(filter.View))
	if filter.Query != "" {
		fmt.Fprintf(w, "search: %q\n", filter.Query)
	}
	fmt.Fprintln(w)

	if len(tasks) == 0 {
		fmt.Fprintln(w, "No tasks found")
		return
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, " \tSTATUS\tID\tTITLE\tPRIORITY\tSOURCE")
	fmt.Fprintln(tw, " \t------\t--\t-----\t--------\t------")
	for i, t := range tasks {
		mark := " "
		if i == cursor {
			mark = ">"
		}
		status := statusIcon(t.Status) + " " + string(t.Status)
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			mark, status, t.ID, truncate(t.Title, titleWidth), priorityLabel(t.Priority), sourceLabel(t))
	}
	tw.Flush()

	fmt.Fprintln(w)
	fmt.Fprintf(w, "Total: %d tasks\n", len(tasks))
}

func tabBar(current domain.View) string {
	parts := make([]string, 0, len(domain.Views))
	for i, v := range domain.Views {
		label := fmt.Sprintf("%d:%s", i+1, v)
		if v == current {
			label = "[" + label + "]"
		}
		parts = append(parts, label)
	}
	return strings.Join(parts, "  ")
}

// renderDetail はタスクの詳細を書き出す
func renderDetail(w io.Writer, t domain.Task) {
	fmt.Fprintf(w, "Task: %s\n", t.Title)
	fmt.Fprintf(w, "ID:       %s\n", t.ID)
	fmt.Fprintf(w, "Status:   %s %s\n", statusIcon(t.Status), t.Status)
	fmt.Fprintf(w, "Priority: %s\n", priorityLabel(t.Priority))
	fmt.Fprintf(w, "Source:   %s\n", sourceLabel(t))

	if t.Description != "" {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Description:")
		for _, line := range strings.Split(t.Description, "\n") {
			fmt.Fprintln(w, "  "+line)
		}
	}

	fmt.Fprintln(w)
	if len(t.Tags) > 0 {
		fmt.Fprintf(w, "Tags:     %s\n", strings.Join(t.Tags, ", "))
	}
	if t.DueDate != nil {
		fmt.Fprintf(w, "Due:      %s\n", t.DueDate.Format("2006-01-02"))
	}
	fmt.Fprintf(w, "Created:  %s\n", t.CreatedAt.Local().Format("2006-01-02 15:04:05"))
	fmt.Fprintf(w, "Updated:  %s\n", t.UpdatedAt.Local().Format("2006-01-02 15:04:05"))

	switch {
	case t.GitHub != nil:
		fmt.Fprintf(w, "\nGitHub %s #%d (%s): %s\n", t.GitHub.Type, t.GitHub.Number, t.GitHub.ExternalStatus, t.GitHub.URL)
	case t.Linear != nil:
		fmt.Fprintf(w, "\nLinear (%s): %s\n", t.Linear.ExternalStatus, t.Linear.URL)
	}
}

func statusIcon(s domain.Status) string {
	switch s {
	case domain.StatusTodo:
		return "○"
	case domain.StatusInProgress:
		return "◐"
	case domain.StatusDone:
		return "●"
	case domain.StatusCancelled:
		return "✗"
	default:
		return "?"
	}
}

func priorityLabel(p domain.Priority) string {
	switch p {
	case domain.PriorityUrgent:
		return "!!! urgent"
	case domain.PriorityHigh:
		return "!! high"
	case domain.PriorityMedium:
		return "! medium"
	case domain.PriorityLow:
		return "low"
	default:
		return "-"
	}
}

func sourceLabel(t domain.Task) string {
	if t.GitHub != nil && t.GitHub.Type == domain.GitHubPullRequest {
		return "github (PR)"
	}
	if t.Source == "" {
		return string(domain.SourceLocal)
	}
	return string(t.Source)
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-3]) + "..."
}
