package cli

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/manifoldco/promptui"
	"github.com/smallnest/taskhub/tasks"
	"github.com/spf13/cobra"
)

// withPrincipal opens the app, resolves the acting user and runs fn.
func (o *rootOptions) withPrincipal(cmd *cobra.Command, fn func(ctx context.Context, a *app, p tasks.Principal) error) error {
	a, err := o.open(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := cmd.Context()
	p, err := a.principal(ctx, o.as, o.role)
	if err != nil {
		return err
	}
	return fn(ctx, a, p)
}

func (o *rootOptions) renderTask(cmd *cobra.Command, t *tasks.Task) error {
	return o.render(cmd, t, func(w io.Writer) { printTaskDetail(w, t) })
}

func (o *rootOptions) renderPage(cmd *cobra.Command, page tasks.Page) error {
	return o.render(cmd, page, func(w io.Writer) {
		printTaskTable(w, page.Items)
		printPageFooter(w, page)
	})
}

func newTaskCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "task",
		Aliases: []string{"tasks", "t"},
		Short:   "Create, query and change tasks",
	}
	cmd.AddCommand(
		newTaskCreateCmd(opts),
		newTaskGetCmd(opts),
		newTaskListCmd(opts),
		newTaskUpdateCmd(opts),
		newTaskDeleteCmd(opts),
		newTaskStatusCmd(opts),
		newTaskPriorityCmd(opts),
		newTaskAssignCmd(opts),
		newTaskUnassignCmd(opts),
		newTaskLogTimeCmd(opts),
		newTaskBlockCmd(opts),
		newTaskUnblockCmd(opts),
		newTaskArchiveCmd(opts, true),
		newTaskArchiveCmd(opts, false),
		newTaskBulkCmd(opts),
		newTaskStatsCmd(opts),
		newTaskOverdueCmd(opts),
		newProjectTasksCmd(opts, "project <project-id>"),
		newTaskActivityCmd(opts),
	)
	return cmd
}

func newTaskCreateCmd(opts *rootOptions) *cobra.Command {
	var (
		in       tasks.CreateTaskInput
		status   string
		priority string
		typ      string
		project  string
		assignee string
		parent   string
		due      string
		position int
		meta     map[string]string
	)
	cmd := &cobra.Command{
		Use:     "create",
		Aliases: []string{"add"},
		Short:   "Create a task",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			in.Status = tasks.Status(status)
			in.Priority = tasks.Priority(priority)
			in.IssueType = tasks.IssueType(typ)
			in.ProjectID = optional(project)
			in.AssigneeID = optional(assignee)
			in.ParentID = optional(parent)
			if cmd.Flags().Changed("position") {
				in.Position = &position
			}
			if due != "" {
				d, err := parseTime(due)
				if err != nil {
					return err
				}
				in.DueDate = &d
			}
			if len(meta) > 0 {
				in.Metadata = make(map[string]interface{}, len(meta))
				for k, v := range meta {
					in.Metadata[k] = v
				}
			}
			return opts.withPrincipal(cmd, func(ctx context.Context, a *app, p tasks.Principal) error {
				t, err := a.svc.Create(ctx, p, in)
				if err != nil {
					return err
				}
				return opts.renderTask(cmd, t)
			})
		},
	}
	f := cmd.Flags()
	f.StringVar(&in.Title, "title", "", "task title (required)")
	f.StringVar(&in.Description, "description", "", "task description")
	f.StringVar(&status, "status", "", "initial status (default todo)")
	f.StringVar(&priority, "priority", "", "priority: low, medium, high, urgent, critical")
	f.StringVar(&typ, "type", "", "issue type (default feature)")
	f.StringVar(&project, "project", "", "project id")
	f.StringVar(&assignee, "assignee", "", "assignee user id")
	f.StringVar(&parent, "parent", "", "parent task id")
	f.StringVar(&due, "due", "", "due date (2006-01-02 or RFC3339)")
	f.Float64Var(&in.EstimatedHours, "estimate", 0, "estimated hours")
	f.IntVar(&in.StoryPoints, "points", 0, "story points")
	f.IntVar(&position, "position", 0, "explicit board position")
	f.StringToStringVar(&meta, "meta", nil, "metadata key=value pairs")
	_ = cmd.MarkFlagRequired("title")
	return cmd
}

func newTaskGetCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "get <task-id>",
		Short: "Show a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withPrincipal(cmd, func(ctx context.Context, a *app, p tasks.Principal) error {
				t, err := a.svc.Get(ctx, p, args[0])
				if err != nil {
					return err
				}
				return opts.renderTask(cmd, t)
			})
		},
	}
}

// listFlags are shared by every listing command.
type listFlags struct {
	status     string
	priority   string
	typ        string
	assignee   string
	project    string
	creator    string
	dueFrom    string
	dueTo      string
	overdue    bool
	blocked    string
	archived   string
	search     string
	mine       bool
	unassigned bool

	page      int
	limit     int
	sortBy    string
	order     string
	relations bool
}

func (l *listFlags) bindPaging(cmd *cobra.Command) {
	f := cmd.Flags()
	f.IntVar(&l.page, "page", tasks.DefaultPage, "page number")
	f.IntVar(&l.limit, "limit", tasks.DefaultLimit, "page size (max 100)")
	f.StringVar(&l.sortBy, "sort", "", "sort field: created_at, updated_at, due_date, priority, status, title, position")
	f.StringVar(&l.order, "order", "", "sort order: asc or desc")
	f.BoolVar(&l.relations, "relations", false, "include creator, assignee and project")
}

func (l *listFlags) bindFilters(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringVar(&l.status, "status", "", "filter by status")
	f.StringVar(&l.priority, "priority", "", "filter by priority")
	f.StringVar(&l.typ, "type", "", "filter by issue type")
	f.StringVar(&l.assignee, "assignee", "", "filter by assignee id")
	f.StringVar(&l.project, "project", "", "filter by project id")
	f.StringVar(&l.creator, "creator", "", "filter by creator id")
	f.StringVar(&l.dueFrom, "due-from", "", "due on or after this date")
	f.StringVar(&l.dueTo, "due-to", "", "due on or before this date")
	f.BoolVar(&l.overdue, "overdue", false, "only overdue tasks")
	f.StringVar(&l.blocked, "blocked", "", "true or false")
	f.StringVar(&l.archived, "archived", "", "true or false")
	f.StringVar(&l.search, "search", "", "case-insensitive match on title and description")
	f.BoolVar(&l.mine, "mine", false, "only tasks assigned to me")
	f.BoolVar(&l.unassigned, "unassigned", false, "only unassigned tasks")
}

func (l *listFlags) filter() (tasks.Filter, error) {
	f := tasks.Filter{
		Status:     tasks.Status(l.status),
		Priority:   tasks.Priority(l.priority),
		IssueType:  tasks.IssueType(l.typ),
		AssigneeID: l.assignee,
		ProjectID:  l.project,
		CreatorID:  l.creator,
		Overdue:    l.overdue,
		Search:     l.search,
		MyTasks:    l.mine,
		Unassigned: l.unassigned,
	}
	var err error
	if f.DueFrom, err = optionalTime(l.dueFrom); err != nil {
		return f, err
	}
	if f.DueTo, err = optionalTime(l.dueTo); err != nil {
		return f, err
	}
	if f.Blocked, err = optionalBool("blocked", l.blocked); err != nil {
		return f, err
	}
	if f.Archived, err = optionalBool("archived", l.archived); err != nil {
		return f, err
	}
	return f, nil
}

func (l *listFlags) options() tasks.ListOptions {
	return tasks.ListOptions{
		Page:          l.page,
		Limit:         l.limit,
		SortBy:        tasks.SortField(l.sortBy),
		SortOrder:     tasks.SortOrder(l.order),
		WithRelations: l.relations,
	}
}

func newTaskListCmd(opts *rootOptions) *cobra.Command {
	var lf listFlags
	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List tasks you created or are assigned to",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			filter, err := lf.filter()
			if err != nil {
				return err
			}
			return opts.withPrincipal(cmd, func(ctx context.Context, a *app, p tasks.Principal) error {
				page, err := a.svc.List(ctx, p, filter, lf.options())
				if err != nil {
					return err
				}
				return opts.renderPage(cmd, page)
			})
		},
	}
	lf.bindFilters(cmd)
	lf.bindPaging(cmd)
	return cmd
}

func newTaskUpdateCmd(opts *rootOptions) *cobra.Command {
	var (
		title, description, status, priority, typ string
		assignee, project, parent, due            string
		clearDue                                  bool
		estimate                                  float64
		points, position                          int
		archived                                  bool
		meta                                      map[string]string
	)
	cmd := &cobra.Command{
		Use:   "update <task-id>",
		Short: "Change task fields; only the flags given are applied",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var in tasks.UpdateTaskInput
			changed := cmd.Flags().Changed
			if changed("title") {
				in.Title = &title
			}
			if changed("description") {
				in.Description = &description
			}
			if changed("status") {
				s := tasks.Status(status)
				in.Status = &s
			}
			if changed("priority") {
				pr := tasks.Priority(priority)
				in.Priority = &pr
			}
			if changed("type") {
				it := tasks.IssueType(typ)
				in.IssueType = &it
			}
			if changed("assignee") {
				in.AssigneeID = &assignee
			}
			if changed("project") {
				in.ProjectID = &project
			}
			if changed("parent") {
				in.ParentID = &parent
			}
			if changed("due") {
				d, err := parseTime(due)
				if err != nil {
					return err
				}
				in.DueDate = &d
			}
			in.ClearDueDate = clearDue
			if changed("estimate") {
				in.EstimatedHours = &estimate
			}
			if changed("points") {
				in.StoryPoints = &points
			}
			if changed("position") {
				in.Position = &position
			}
			if changed("archived") {
				in.IsArchived = &archived
			}
			if len(meta) > 0 {
				in.Metadata = make(map[string]interface{}, len(meta))
				for k, v := range meta {
					in.Metadata[k] = v
				}
			}
			return opts.withPrincipal(cmd, func(ctx context.Context, a *app, p tasks.Principal) error {
				t, err := a.svc.Update(ctx, p, args[0], in)
				if err != nil {
					return err
				}
				return opts.renderTask(cmd, t)
			})
		},
	}
	f := cmd.Flags()
	f.StringVar(&title, "title", "", "new title")
	f.StringVar(&description, "description", "", "new description")
	f.StringVar(&status, "status", "", "new status")
	f.StringVar(&priority, "priority", "", "new priority")
	f.StringVar(&typ, "type", "", "new issue type")
	f.StringVar(&assignee, "assignee", "", "assignee id; empty string unassigns")
	f.StringVar(&project, "project", "", "project id; empty string clears")
	f.StringVar(&parent, "parent", "", "parent task id; empty string clears")
	f.StringVar(&due, "due", "", "due date (2006-01-02 or RFC3339)")
	f.BoolVar(&clearDue, "clear-due", false, "remove the due date")
	f.Float64Var(&estimate, "estimate", 0, "estimated hours")
	f.IntVar(&points, "points", 0, "story points")
	f.IntVar(&position, "position", 0, "board position")
	f.BoolVar(&archived, "archived", false, "archive state")
	f.StringToStringVar(&meta, "meta", nil, "replace metadata with key=value pairs")
	return cmd
}

func newTaskDeleteCmd(opts *rootOptions) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:     "delete <task-id>",
		Aliases: []string{"rm"},
		Short:   "Soft-delete a task",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withPrincipal(cmd, func(ctx context.Context, a *app, p tasks.Principal) error {
				if !yes {
					t, err := a.svc.Get(ctx, p, args[0])
					if err != nil {
						return err
					}
					confirm := promptui.Prompt{
						Label:     fmt.Sprintf("Delete task '%s' (ID: %s)", t.Title, t.ID),
						IsConfirm: true,
						Stdin:     readCloser(cmd.InOrStdin()),
						Stdout:    writeCloser(cmd.OutOrStdout()),
					}
					if _, err := confirm.Run(); err != nil {
						if err == promptui.ErrAbort || err == promptui.ErrInterrupt {
							fmt.Fprintln(cmd.OutOrStdout(), "Deletion cancelled.")
							return nil
						}
						return fmt.Errorf("confirmation prompt failed: %w", err)
					}
				}
				if err := a.svc.Delete(ctx, p, args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Task %s deleted.\n", args[0])
				return nil
			})
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "skip the confirmation prompt")
	return cmd
}

func newTaskStatusCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status <task-id> <status>",
		Short: "Move a task to another status",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withPrincipal(cmd, func(ctx context.Context, a *app, p tasks.Principal) error {
				t, err := a.svc.UpdateStatus(ctx, p, args[0], tasks.Status(args[1]))
				if err != nil {
					return err
				}
				return opts.renderTask(cmd, t)
			})
		},
	}
}

func newTaskPriorityCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "priority <task-id> <priority>",
		Short: "Change a task's priority",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withPrincipal(cmd, func(ctx context.Context, a *app, p tasks.Principal) error {
				t, err := a.svc.UpdatePriority(ctx, p, args[0], tasks.Priority(args[1]))
				if err != nil {
					return err
				}
				return opts.renderTask(cmd, t)
			})
		},
	}
}

func newTaskAssignCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "assign <task-id> <user-id>",
		Short: "Assign a task",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withPrincipal(cmd, func(ctx context.Context, a *app, p tasks.Principal) error {
				t, err := a.svc.Assign(ctx, p, args[0], args[1])
				if err != nil {
					return err
				}
				return opts.renderTask(cmd, t)
			})
		},
	}
}

func newTaskUnassignCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "unassign <task-id>",
		Short: "Remove a task's assignee",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withPrincipal(cmd, func(ctx context.Context, a *app, p tasks.Principal) error {
				t, err := a.svc.Unassign(ctx, p, args[0])
				if err != nil {
					return err
				}
				return opts.renderTask(cmd, t)
			})
		},
	}
}

func newTaskLogTimeCmd(opts *rootOptions) *cobra.Command {
	var note string
	cmd := &cobra.Command{
		Use:   "log-time <task-id> <hours>",
		Short: "Add hours to a task",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			hours, err := strconv.ParseFloat(args[1], 64)
			if err != nil {
				return fmt.Errorf("invalid hours %q: %w", args[1], err)
			}
			return opts.withPrincipal(cmd, func(ctx context.Context, a *app, p tasks.Principal) error {
				t, err := a.svc.AddTimeEntry(ctx, p, args[0], tasks.TimeEntryInput{Hours: hours, Description: note})
				if err != nil {
					return err
				}
				return opts.renderTask(cmd, t)
			})
		},
	}
	cmd.Flags().StringVarP(&note, "note", "m", "", "what the time was spent on")
	return cmd
}

func newTaskBlockCmd(opts *rootOptions) *cobra.Command {
	var reason string
	cmd := &cobra.Command{
		Use:   "block <task-id>",
		Short: "Mark a task as blocked",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withPrincipal(cmd, func(ctx context.Context, a *app, p tasks.Principal) error {
				t, err := a.svc.Block(ctx, p, args[0], reason)
				if err != nil {
					return err
				}
				return opts.renderTask(cmd, t)
			})
		},
	}
	cmd.Flags().StringVarP(&reason, "reason", "r", "", "why the task is blocked (required)")
	_ = cmd.MarkFlagRequired("reason")
	return cmd
}

func newTaskUnblockCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "unblock <task-id>",
		Short: "Clear a task's blocked state",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withPrincipal(cmd, func(ctx context.Context, a *app, p tasks.Principal) error {
				t, err := a.svc.Unblock(ctx, p, args[0])
				if err != nil {
					return err
				}
				return opts.renderTask(cmd, t)
			})
		},
	}
}

func newTaskArchiveCmd(opts *rootOptions, archive bool) *cobra.Command {
	use, short := "archive <task-id>", "Archive a task"
	if !archive {
		use, short = "unarchive <task-id>", "Restore an archived task"
	}
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withPrincipal(cmd, func(ctx context.Context, a *app, p tasks.Principal) error {
				var (
					t   *tasks.Task
					err error
				)
				if archive {
					t, err = a.svc.Archive(ctx, p, args[0])
				} else {
					t, err = a.svc.Unarchive(ctx, p, args[0])
				}
				if err != nil {
					return err
				}
				return opts.renderTask(cmd, t)
			})
		},
	}
}

func newTaskBulkCmd(opts *rootOptions) *cobra.Command {
	var (
		ids                             []string
		status, priority, typ, assignee string
		archived                        bool
	)
	cmd := &cobra.Command{
		Use:   "bulk",
		Short: "Apply one change to many tasks, all or nothing",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			in := tasks.BulkUpdateInput{TaskIDs: ids}
			changed := cmd.Flags().Changed
			if changed("status") {
				s := tasks.Status(status)
				in.Status = &s
			}
			if changed("priority") {
				pr := tasks.Priority(priority)
				in.Priority = &pr
			}
			if changed("type") {
				it := tasks.IssueType(typ)
				in.IssueType = &it
			}
			if changed("assignee") {
				in.AssigneeID = &assignee
			}
			if changed("archived") {
				in.IsArchived = &archived
			}
			return opts.withPrincipal(cmd, func(ctx context.Context, a *app, p tasks.Principal) error {
				updated, err := a.svc.BulkUpdate(ctx, p, in)
				if err != nil {
					return err
				}
				return opts.render(cmd, updated, func(w io.Writer) {
					printTaskTable(w, updated)
					fmt.Fprintf(w, "\n%d task(s) processed\n", len(updated))
				})
			})
		},
	}
	f := cmd.Flags()
	f.StringSliceVar(&ids, "ids", nil, "comma separated task ids (required)")
	f.StringVar(&status, "status", "", "new status")
	f.StringVar(&priority, "priority", "", "new priority")
	f.StringVar(&typ, "type", "", "new issue type")
	f.StringVar(&assignee, "assignee", "", "assignee id; empty string unassigns")
	f.BoolVar(&archived, "archived", false, "archive state")
	_ = cmd.MarkFlagRequired("ids")
	return cmd
}

func newTaskStatsCmd(opts *rootOptions) *cobra.Command {
	var project string
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Summarize your tasks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withPrincipal(cmd, func(ctx context.Context, a *app, p tasks.Principal) error {
				st, err := a.svc.Stats(ctx, p, project)
				if err != nil {
					return err
				}
				return opts.render(cmd, st, func(w io.Writer) {
					fmt.Fprintf(w, "Total:\t%d\n", st.Total)
					fmt.Fprintf(w, "Completed:\t%d (%.1f%%)\n", st.Completed, st.CompletionRate)
					fmt.Fprintf(w, "In progress:\t%d\n", st.InProgress)
					fmt.Fprintf(w, "Overdue:\t%d\n", st.Overdue)
					fmt.Fprintf(w, "Blocked:\t%d\n", st.Blocked)
					fmt.Fprintln(w, "\nSTATUS\tCOUNT")
					for _, s := range tasks.AllStatuses {
						fmt.Fprintf(w, "%s\t%d\n", s, st.ByStatus[s])
					}
					fmt.Fprintln(w, "\nPRIORITY\tCOUNT")
					for _, pr := range tasks.AllPriorities {
						fmt.Fprintf(w, "%s\t%d\n", pr, st.ByPriority[pr])
					}
				})
			})
		},
	}
	cmd.Flags().StringVar(&project, "project", "", "limit to one project")
	return cmd
}

func newTaskOverdueCmd(opts *rootOptions) *cobra.Command {
	var lf listFlags
	cmd := &cobra.Command{
		Use:   "overdue",
		Short: "List your overdue tasks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withPrincipal(cmd, func(ctx context.Context, a *app, p tasks.Principal) error {
				page, err := a.svc.Overdue(ctx, p, lf.options())
				if err != nil {
					return err
				}
				return opts.renderPage(cmd, page)
			})
		},
	}
	lf.bindPaging(cmd)
	return cmd
}

func newTaskActivityCmd(opts *rootOptions) *cobra.Command {
	var count bool
	cmd := &cobra.Command{
		Use:     "activity <task-id>",
		Aliases: []string{"history", "log"},
		Short:   "Show a task's activity log, newest first",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withPrincipal(cmd, func(ctx context.Context, a *app, p tasks.Principal) error {
				if count {
					n, err := a.svc.ActivityCount(ctx, p, args[0])
					if err != nil {
						return err
					}
					result := map[string]interface{}{"task_id": args[0], "count": n}
					return opts.render(cmd, result, func(w io.Writer) {
						fmt.Fprintf(w, "%d\n", n)
					})
				}
				list, err := a.svc.Activities(ctx, p, args[0])
				if err != nil {
					return err
				}
				return opts.render(cmd, list, func(w io.Writer) {
					fmt.Fprintln(w, "WHEN\tUSER\tTYPE\tDESCRIPTION")
					for _, act := range list {
						fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
							act.CreatedAt.Format("2006-01-02 15:04:05"), act.UserID, act.Type, act.Description)
					}
				})
			})
		},
	}
	cmd.Flags().BoolVar(&count, "count", false, "print only the number of entries")
	return cmd
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func parseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04", "2006-01-02 15:04", "2006-01-02"} {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid date %q: use 2006-01-02 or RFC3339", s)
}

func optionalTime(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := parseTime(s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func optionalBool(name, s string) (*bool, error) {
	if s == "" {
		return nil, nil
	}
	b, err := strconv.ParseBool(s)
	if err != nil {
		return nil, fmt.Errorf("invalid --%s value %q: want true or false", name, s)
	}
	return &b, nil
}
