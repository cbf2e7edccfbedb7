package cli

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/smallnest/taskhub/tasks"
	"github.com/spf13/cobra"
)

// withApp opens the app without resolving an acting user.
func (o *rootOptions) withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app) error) error {
	a, err := o.open(cmd)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(cmd.Context(), a)
}

func newUserCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "user",
		Aliases: []string{"users"},
		Short:   "Manage users",
	}

	var (
		id    string
		email string
		role  string
	)
	add := &cobra.Command{
		Use:   "add <name>",
		Short: "Register a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd, func(ctx context.Context, a *app) error {
				u := &tasks.User{ID: id, Name: args[0], Email: email, Role: tasks.Role(role)}
				if err := a.store.Directory.CreateUser(ctx, u); err != nil {
					return err
				}
				return opts.render(cmd, u, func(w io.Writer) { printUsers(w, []tasks.User{*u}) })
			})
		},
	}
	add.Flags().StringVar(&id, "id", "", "user id (generated when empty)")
	add.Flags().StringVar(&email, "email", "", "email address")
	add.Flags().StringVar(&role, "role", string(tasks.RoleUser), "admin, project_manager, developer, client or user")

	get := &cobra.Command{
		Use:   "get <user-id>",
		Short: "Show a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd, func(ctx context.Context, a *app) error {
				u, err := a.store.Directory.GetUser(ctx, args[0])
				if err != nil {
					return err
				}
				return opts.render(cmd, u, func(w io.Writer) { printUsers(w, []tasks.User{*u}) })
			})
		},
	}

	list := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List users",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd, func(ctx context.Context, a *app) error {
				users, err := a.store.Directory.ListUsers(ctx)
				if err != nil {
					return err
				}
				return opts.render(cmd, users, func(w io.Writer) { printUsers(w, users) })
			})
		},
	}

	cmd.AddCommand(add, get, list)
	return cmd
}

func newProjectCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "project",
		Aliases: []string{"projects"},
		Short:   "Manage projects",
	}

	var (
		id          string
		description string
		owner       string
	)
	add := &cobra.Command{
		Use:   "add <name>",
		Short: "Create a project owned by --owner (default: the acting user)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd, func(ctx context.Context, a *app) error {
				ownerID := owner
				if ownerID == "" {
					ownerID = opts.as
				}
				if ownerID == "" {
					return fmt.Errorf("project owner is required: pass --owner or --as")
				}
				p := &tasks.Project{ID: id, Name: args[0], Description: description, OwnerID: ownerID}
				if err := a.store.Directory.CreateProject(ctx, p); err != nil {
					return err
				}
				return opts.render(cmd, p, func(w io.Writer) {
					fmt.Fprintln(w, "ID\tNAME\tOWNER\tCREATED")
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", p.ID, p.Name, p.OwnerID, p.CreatedAt.Format(time.RFC3339))
				})
			})
		},
	}
	add.Flags().StringVar(&id, "id", "", "project id (generated when empty)")
	add.Flags().StringVar(&description, "description", "", "project description")
	add.Flags().StringVar(&owner, "owner", "", "owner user id")

	cmd.AddCommand(add, newProjectTasksCmd(opts, "tasks <project-id>"))
	return cmd
}

// newProjectTasksCmd lists one project's tasks. Mounted as "project tasks"
// and "task project".
func newProjectTasksCmd(opts *rootOptions, use string) *cobra.Command {
	var lf listFlags
	cmd := &cobra.Command{
		Use:   use,
		Short: "List the tasks of a project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			filter, err := lf.filter()
			if err != nil {
				return err
			}
			return opts.withPrincipal(cmd, func(ctx context.Context, a *app, p tasks.Principal) error {
				page, err := a.svc.ProjectTasks(ctx, p, args[0], filter, lf.options())
				if err != nil {
					return err
				}
				return opts.renderPage(cmd, page)
			})
		},
	}
	lf.bindFilters(cmd)
	// the project comes from the argument
	_ = cmd.Flags().MarkHidden("project")
	lf.bindPaging(cmd)
	return cmd
}

func printUsers(w io.Writer, users []tasks.User) {
	fmt.Fprintln(w, "ID\tNAME\tEMAIL\tROLE")
	for _, u := range users {
		email := u.Email
		if email == "" {
			email = "-"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", u.ID, u.Name, email, u.Role)
	}
}
