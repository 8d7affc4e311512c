package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	cislinesdk "cisline/sdk/go"
	"cisline/sdk/go/view"
)

func taskCmd() *cobra.Command {
	task := &cobra.Command{
		Use:   "task",
		Short: "Manage tasks",
		Long:  "Tasks are compliance work items inside an organization: NOT_STARTED -> OPEN -> COMPLETED -> CLOSED. They link assigned profiles, evidence artifacts and CIS safeguards.",
	}
	task.AddCommand(taskListCmd())
	task.AddCommand(taskShowCmd())
	task.AddCommand(taskCreateCmd())
	task.AddCommand(taskUpdateCmd())
	task.AddCommand(taskDeleteCmd())
	task.AddCommand(taskLinkCmd("assign", "Assign a profile", "<task-id> <profile-id>", func(ctx context.Context, c *cislinesdk.Client, id int64, arg string) (cislinesdk.Task, error) {
		pid, err := parseID(arg)
		if err != nil {
			return cislinesdk.Task{}, err
		}
		return c.AssignProfile(ctx, id, pid)
	}))
	task.AddCommand(taskLinkCmd("unassign", "Unassign a profile", "<task-id> <profile-id>", func(ctx context.Context, c *cislinesdk.Client, id int64, arg string) (cislinesdk.Task, error) {
		pid, err := parseID(arg)
		if err != nil {
			return cislinesdk.Task{}, err
		}
		return c.UnassignProfile(ctx, id, pid)
	}))
	task.AddCommand(taskLinkCmd("link-artifact", "Attach an artifact", "<task-id> <artifact-id>", func(ctx context.Context, c *cislinesdk.Client, id int64, arg string) (cislinesdk.Task, error) {
		aid, err := parseID(arg)
		if err != nil {
			return cislinesdk.Task{}, err
		}
		return c.LinkArtifact(ctx, id, aid)
	}))
	task.AddCommand(taskLinkCmd("unlink-artifact", "Detach an artifact", "<task-id> <artifact-id>", func(ctx context.Context, c *cislinesdk.Client, id int64, arg string) (cislinesdk.Task, error) {
		aid, err := parseID(arg)
		if err != nil {
			return cislinesdk.Task{}, err
		}
		return c.UnlinkArtifact(ctx, id, aid)
	}))
	task.AddCommand(taskLinkCmd("link-safeguard", "Link a CIS safeguard", "<task-id> <safeguard-id>", func(ctx context.Context, c *cislinesdk.Client, id int64, arg string) (cislinesdk.Task, error) {
		return c.LinkSafeguard(ctx, id, arg)
	}))
	task.AddCommand(taskLinkCmd("unlink-safeguard", "Unlink a CIS safeguard", "<task-id> <safeguard-id>", func(ctx context.Context, c *cislinesdk.Client, id int64, arg string) (cislinesdk.Task, error) {
		return c.UnlinkSafeguard(ctx, id, arg)
	}))
	return task
}

func taskListCmd() *cobra.Command {
	var lf listFlags
	var q cislinesdk.TaskQuery
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			tasks, err := apiClient().ListTasks(cmd.Context(), q)
			if err != nil {
				return err
			}
			page, footer := paginate(tasks, lf, view.ListPageSize, view.TaskKeys)
			return printJSONOr(page, func() {
				tw := newTable("ID", "Name", "Org", "Status", "Window", "Profiles", "Safeguards")
				for _, t := range page {
					window := view.DateWindow(t.StartAt, t.EndAt, nowFunc())
					tw.AppendRow([]any{t.ID, t.Name, t.OrganizationID, badge(view.TaskStatusBadge(t.Status)), badge(view.WindowBadge(window)), len(t.TaskProfiles), strings.Join(t.Safeguards, " ")})
				}
				tw.AppendFooter([]any{"", footer})
				tw.Render()
			})
		},
	}
	lf.bind(cmd)
	cmd.Flags().Int64Var(&q.OrganizationID, "org", 0, "organization filter")
	cmd.Flags().StringVar(&q.Status, "status", "", "status filter")
	return cmd
}

func taskShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show a task with its links",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			t, err := apiClient().GetTask(cmd.Context(), id)
			if err != nil {
				return err
			}
			return printJSONOr(t, func() {
				fmt.Printf("Task %d: %s [%s]\n", t.ID, t.Name, view.TaskStatusBadge(t.Status).Label)
				fmt.Printf("Schedule: %s .. %s (%s)\n", deref(t.StartAt), deref(t.EndAt), view.DateWindow(t.StartAt, t.EndAt, nowFunc()))
				if t.Description != "" {
					fmt.Println(t.Description)
				}
				if t.ExpectedEvidence != "" {
					fmt.Println("Expected evidence:", t.ExpectedEvidence)
				}
				links := newTable("Kind", "ID", "Name")
				for _, tp := range t.TaskProfiles {
					name := ""
					if tp.Profile != nil {
						name = tp.Profile.Name
					}
					links.AppendRow([]any{"profile", tp.ProfileID, name})
				}
				for _, ta := range t.TaskArtifacts {
					name := ""
					if ta.Artifact != nil {
						name = ta.Artifact.Name
					}
					links.AppendRow([]any{"artifact", ta.ArtifactID, name})
				}
				for _, sg := range t.Safeguards {
					links.AppendRow([]any{"safeguard", sg, ""})
				}
				links.Render()
			})
		},
	}
}

func taskCreateCmd() *cobra.Command {
	var in cislinesdk.TaskCreate
	var start, end string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a task",
		RunE: func(cmd *cobra.Command, args []string) error {
			in.StartAt = optionalString(cmd, "start", start)
			in.EndAt = optionalString(cmd, "end", end)
			t, err := apiClient().CreateTask(cmd.Context(), in)
			if err != nil {
				return err
			}
			return printJSONOr(t, func() { fmt.Printf("created task %d\n", t.ID) })
		},
	}
	cmd.Flags().Int64Var(&in.OrganizationID, "org", 0, "organization id")
	cmd.Flags().StringVar(&in.Name, "name", "", "name")
	cmd.Flags().StringVar(&in.Description, "description", "", "description")
	cmd.Flags().StringVar(&in.ExpectedEvidence, "expected-evidence", "", "expected evidence")
	cmd.Flags().StringVar(&in.Status, "status", "", "initial status")
	cmd.Flags().StringVar(&start, "start", "", "start date (YYYY-MM-DD or RFC 3339)")
	cmd.Flags().StringVar(&end, "end", "", "end date (YYYY-MM-DD or RFC 3339)")
	cmd.Flags().StringArrayVar(&in.Safeguards, "safeguard", nil, "safeguard id (repeatable)")
	cmd.Flags().Int64SliceVar(&in.ProfileIDs, "profile", nil, "assigned profile id (repeatable)")
	_ = cmd.MarkFlagRequired("org")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func taskUpdateCmd() *cobra.Command {
	var name, desc, evidence, status, start, end string
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Update a task; an empty --start/--end clears the date",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			t, err := apiClient().UpdateTask(cmd.Context(), id, cislinesdk.TaskPatch{
				Name:             optionalString(cmd, "name", name),
				Description:      optionalString(cmd, "description", desc),
				ExpectedEvidence: optionalString(cmd, "expected-evidence", evidence),
				Status:           optionalString(cmd, "status", status),
				StartAt:          optionalString(cmd, "start", start),
				EndAt:            optionalString(cmd, "end", end),
			})
			if err != nil {
				return err
			}
			return printJSON(t)
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "name")
	cmd.Flags().StringVar(&desc, "description", "", "description")
	cmd.Flags().StringVar(&evidence, "expected-evidence", "", "expected evidence")
	cmd.Flags().StringVar(&status, "status", "", "status")
	cmd.Flags().StringVar(&start, "start", "", "start date")
	cmd.Flags().StringVar(&end, "end", "", "end date")
	return cmd
}

func taskDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return apiClient().DeleteTask(cmd.Context(), id)
		},
	}
}

type taskLinkFunc func(ctx context.Context, c *cislinesdk.Client, taskID int64, arg string) (cislinesdk.Task, error)

func taskLinkCmd(use, short, args string, fn taskLinkFunc) *cobra.Command {
	return &cobra.Command{
		Use:   use + " " + args,
		Short: short,
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, argv []string) error {
			id, err := parseID(argv[0])
			if err != nil {
				return err
			}
			t, err := fn(cmd.Context(), apiClient(), id, strings.TrimSpace(argv[1]))
			if err != nil {
				return err
			}
			return printJSONOr(t, func() {
				fmt.Printf("task %d: %d profiles, %d artifacts, safeguards [%s]\n", t.ID, len(t.TaskProfiles), len(t.TaskArtifacts), strings.Join(t.Safeguards, ","))
			})
		},
	}
}
