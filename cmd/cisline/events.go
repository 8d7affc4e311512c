package main

import (
	"fmt"

	"github.com/spf13/cobra"

	cislinesdk "cisline/sdk/go"
	"cisline/sdk/go/view"
)

func logCmd() *cobra.Command {
	var q cislinesdk.EventQuery
	log := &cobra.Command{
		Use:   "log",
		Short: "Show the audit trail, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			events, err := apiClient().Events(cmd.Context(), q)
			if err != nil {
				return err
			}
			return printJSONOr(events, func() {
				tw := newTable("ID", "When", "Importance", "Message", "Actor")
				for _, ev := range events {
					tw.AppendRow([]any{ev.ID, ago(ev.CreatedAt), badge(view.ImportanceBadge(ev.Importance)), ev.Message, ev.ActorID})
				}
				tw.Render()
				if n := len(events); n > 0 && n == q.Limit {
					fmt.Printf("more with --before %d\n", events[n-1].ID)
				}
			})
		},
	}
	log.Flags().Int64Var(&q.OrganizationID, "org", 0, "organization filter")
	log.Flags().Int64Var(&q.ProfileID, "profile", 0, "profile filter")
	log.Flags().Int64Var(&q.TaskID, "task", 0, "task filter")
	log.Flags().StringVar(&q.Importance, "importance", "", "LOW, MIDDLE or HIGH")
	log.Flags().Int64Var(&q.Before, "before", 0, "only events with a smaller id")
	log.Flags().IntVarP(&q.Limit, "limit", "n", 50, "number of events")
	log.AddCommand(logAppendCmd())
	return log
}

func logAppendCmd() *cobra.Command {
	var in cislinesdk.EventCreate
	var orgID, profileID, taskID int64
	cmd := &cobra.Command{
		Use:   "append <message>",
		Short: "Record a manual audit event",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in.Message = args[0]
			if cmd.Flags().Changed("org") {
				in.OrganizationID = &orgID
			}
			if cmd.Flags().Changed("profile") {
				in.ProfileID = &profileID
			}
			if cmd.Flags().Changed("task") {
				in.TaskID = &taskID
			}
			ev, err := apiClient().AppendEvent(cmd.Context(), in)
			if err != nil {
				return err
			}
			return printJSON(ev)
		},
	}
	cmd.Flags().StringVar(&in.Importance, "importance", "LOW", "LOW, MIDDLE or HIGH")
	cmd.Flags().Int64Var(&orgID, "org", 0, "organization")
	cmd.Flags().Int64Var(&profileID, "profile", 0, "profile")
	cmd.Flags().Int64Var(&taskID, "task", 0, "task")
	return cmd
}

func messageCmd() *cobra.Command {
	m := &cobra.Command{Use: "message", Short: "Task discussion messages"}

	list := &cobra.Command{
		Use:   "list <task-id>",
		Short: "List a task's messages",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			taskID, err := parseID(args[0])
			if err != nil {
				return err
			}
			msgs, err := apiClient().Messages(cmd.Context(), taskID)
			if err != nil {
				return err
			}
			return printJSONOr(msgs, func() {
				tw := newTable("ID", "When", "Sender", "Read", "Content")
				for _, msg := range msgs {
					read := ""
					if msg.IsRead {
						read = "yes"
					}
					tw.AppendRow([]any{msg.ID, ago(msg.CreatedAt), msg.Sender, read, msg.Content})
				}
				tw.Render()
			})
		},
	}

	post := &cobra.Command{
		Use:   "post <task-id> <content>",
		Short: "Post a message on a task",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			taskID, err := parseID(args[0])
			if err != nil {
				return err
			}
			msg, err := apiClient().PostMessage(cmd.Context(), taskID, args[1])
			if err != nil {
				return err
			}
			return printJSON(msg)
		},
	}

	edit := &cobra.Command{
		Use:   "edit <id> <content>",
		Short: "Edit one of your messages",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			msg, err := apiClient().EditMessage(cmd.Context(), id, args[1])
			if err != nil {
				return err
			}
			return printJSON(msg)
		},
	}

	read := &cobra.Command{
		Use:   "read <id>",
		Short: "Mark a message read",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			msg, err := apiClient().MarkMessageRead(cmd.Context(), id)
			if err != nil {
				return err
			}
			return printJSON(msg)
		},
	}

	del := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete one of your messages",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return apiClient().DeleteMessage(cmd.Context(), id)
		},
	}

	m.AddCommand(list, post, edit, read, del)
	return m
}
