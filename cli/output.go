package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/smallnest/taskhub/tasks"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// render writes v as JSON or YAML, or calls table for the default format.
func (o *rootOptions) render(cmd *cobra.Command, v interface{}, table func(w io.Writer)) error {
	out := cmd.OutOrStdout()
	switch o.output {
	case "json":
		data, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to encode output: %w", err)
		}
		_, err = fmt.Fprintln(out, string(data))
		return err
	case "yaml":
		// round-trip through JSON so keys follow the json tags
		raw, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("failed to encode output: %w", err)
		}
		var generic interface{}
		if err := json.Unmarshal(raw, &generic); err != nil {
			return fmt.Errorf("failed to encode output: %w", err)
		}
		data, err := yaml.Marshal(generic)
		if err != nil {
			return fmt.Errorf("failed to encode output: %w", err)
		}
		_, err = out.Write(data)
		return err
	default:
		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		table(w)
		return w.Flush()
	}
}

func printTaskTable(w io.Writer, items []tasks.Task) {
	fmt.Fprintln(w, "ID\tTITLE\tSTATUS\tPRIORITY\tASSIGNEE\tDUE\tFLAGS")
	for _, t := range items {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			t.ID, truncate(t.Title, 40), t.Status, t.Priority,
			orDash(t.AssigneeID), formatDate(t.DueDate), taskFlags(t))
	}
}

func printTaskDetail(w io.Writer, t *tasks.Task) {
	fmt.Fprintf(w, "ID:\t%s\n", t.ID)
	fmt.Fprintf(w, "Title:\t%s\n", t.Title)
	if t.Description != "" {
		fmt.Fprintf(w, "Description:\t%s\n", t.Description)
	}
	fmt.Fprintf(w, "Status:\t%s\n", t.Status)
	fmt.Fprintf(w, "Priority:\t%s\n", t.Priority)
	fmt.Fprintf(w, "Type:\t%s\n", t.IssueType)
	fmt.Fprintf(w, "Creator:\t%s\n", userLabel(t.CreatorID, t.Creator))
	fmt.Fprintf(w, "Assignee:\t%s\n", userLabel(deref(t.AssigneeID), t.Assignee))
	fmt.Fprintf(w, "Project:\t%s\n", orDash(t.ProjectID))
	fmt.Fprintf(w, "Due:\t%s\n", formatDate(t.DueDate))
	fmt.Fprintf(w, "Hours:\t%.2f / %.2f\n", t.ActualHours, t.EstimatedHours)
	fmt.Fprintf(w, "Story points:\t%d\n", t.StoryPoints)
	fmt.Fprintf(w, "Position:\t%d\n", t.Position)
	if t.IsBlocked {
		fmt.Fprintf(w, "Blocked:\t%s\n", t.BlockedReason)
	}
	if t.IsArchived {
		fmt.Fprintln(w, "Archived:\tyes")
	}
	if t.CompletedAt != nil {
		fmt.Fprintf(w, "Completed:\t%s\n", t.CompletedAt.Format(time.RFC3339))
	}
	fmt.Fprintf(w, "Updated:\t%s (v%d)\n", t.UpdatedAt.Format(time.RFC3339), t.Version)
}

func printPageFooter(w io.Writer, p tasks.Page) {
	fmt.Fprintf(w, "\nPage %d/%d, %d total\n", p.Page, max(p.TotalPages, 1), p.Total)
}

func taskFlags(t tasks.Task) string {
	var flags []string
	if t.IsBlocked {
		flags = append(flags, "blocked")
	}
	if t.IsArchived {
		flags = append(flags, "archived")
	}
	if len(flags) == 0 {
		return "-"
	}
	return strings.Join(flags, ",")
}

func userLabel(id string, ref *tasks.UserRef) string {
	if id == "" {
		return "-"
	}
	if ref != nil && ref.Name != "" {
		return fmt.Sprintf("%s (%s)", ref.Name, id)
	}
	return id
}

func formatDate(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.Format("2006-01-02 15:04")
}

func orDash(s *string) string {
	if s == nil || *s == "" {
		return "-"
	}
	return *s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }

// readCloser and writeCloser adapt cobra's streams for promptui.
func readCloser(r io.Reader) io.ReadCloser {
	if rc, ok := r.(io.ReadCloser); ok {
		return rc
	}
	return io.NopCloser(r)
}

func writeCloser(w io.Writer) io.WriteCloser {
	if wc, ok := w.(io.WriteCloser); ok {
		return wc
	}
	return nopWriteCloser{w}
}
