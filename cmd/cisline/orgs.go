package main

import (
	"fmt"

	"github.com/spf13/cobra"

	cislinesdk "cisline/sdk/go"
	"cisline/sdk/go/view"
)

func orgCmd() *cobra.Command {
	org := &cobra.Command{
		Use:     "org",
		Aliases: []string{"organization"},
		Short:   "Manage organizations",
	}
	org.AddCommand(orgListCmd())
	org.AddCommand(orgShowCmd())
	org.AddCommand(orgCreateCmd())
	org.AddCommand(orgUpdateCmd())
	org.AddCommand(orgDeleteCmd())
	org.AddCommand(orgSettingsCmd())
	org.AddCommand(orgMemberCmd())
	return org
}

func orgListCmd() *cobra.Command {
	var lf listFlags
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List organizations",
		RunE: func(cmd *cobra.Command, args []string) error {
			orgs, err := apiClient().ListOrganizations(cmd.Context())
			if err != nil {
				return err
			}
			page, footer := paginate(orgs, lf, view.ListPageSize, view.OrganizationKeys)
			return printJSONOr(page, func() {
				tw := newTable("ID", "Name", "Profiles", "Tasks", "Updated")
				for _, o := range page {
					tw.AppendRow([]any{o.ID, o.Name, len(o.Profiles), len(o.Tasks), ago(o.UpdatedAt)})
				}
				tw.AppendFooter([]any{"", footer})
				tw.Render()
			})
		},
	}
	lf.bind(cmd)
	return cmd
}

func orgShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show an organization with its members and tasks",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			o, err := apiClient().GetOrganization(cmd.Context(), id)
			if err != nil {
				return err
			}
			return printJSONOr(o, func() {
				fmt.Printf("Organization %d: %s\n", o.ID, o.Name)
				if o.Description != "" {
					fmt.Println(o.Description)
				}
				if s := o.Settings; s != nil {
					fmt.Printf("Upload dir: %s\nDownload dir: %s\nArtifact dir: %s\n", s.UploadDirectory, s.DownloadDirectory, s.ArtifactDirectory)
				}
				members := newTable("Profile", "Name", "Email")
				for _, p := range o.Profiles {
					email := ""
					if p.User != nil {
						email = p.User.Email
					}
					members.AppendRow([]any{p.ID, p.Name, email})
				}
				members.Render()
				tasks := newTable("Task", "Name", "Status", "Window")
				for _, t := range o.Tasks {
					tasks.AppendRow([]any{t.ID, t.Name, badge(view.TaskStatusBadge(t.Status)), badge(view.WindowBadge(view.DateWindow(t.StartAt, t.EndAt, nowFunc())))})
				}
				tasks.Render()
			})
		},
	}
}

func orgCreateCmd() *cobra.Command {
	var name, desc string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an organization",
		RunE: func(cmd *cobra.Command, args []string) error {
			o, err := apiClient().CreateOrganization(cmd.Context(), name, desc)
			if err != nil {
				return err
			}
			return printJSONOr(o, func() { fmt.Printf("created organization %d\n", o.ID) })
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "name")
	cmd.Flags().StringVar(&desc, "description", "", "description")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func orgUpdateCmd() *cobra.Command {
	var name, desc string
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Update an organization",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			o, err := apiClient().UpdateOrganization(cmd.Context(), id, cislinesdk.OrganizationPatch{
				Name:        optionalString(cmd, "name", name),
				Description: optionalString(cmd, "description", desc),
			})
			if err != nil {
				return err
			}
			return printJSON(o)
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "name")
	cmd.Flags().StringVar(&desc, "description", "", "description")
	return cmd
}

func orgDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete an organization and its tasks",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return apiClient().DeleteOrganization(cmd.Context(), id)
		},
	}
}

func orgSettingsCmd() *cobra.Command {
	settings := &cobra.Command{Use: "settings", Short: "Manage organization directory settings"}

	var upload, download, artifact string
	set := &cobra.Command{
		Use:   "set <org-id>",
		Short: "Create or update settings",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			s, err := apiClient().PutSettings(cmd.Context(), id, cislinesdk.SettingsPatch{
				UploadDirectory:   optionalString(cmd, "upload-dir", upload),
				DownloadDirectory: optionalString(cmd, "download-dir", download),
				ArtifactDirectory: optionalString(cmd, "artifact-dir", artifact),
			})
			if err != nil {
				return err
			}
			return printJSON(s)
		},
	}
	set.Flags().StringVar(&upload, "upload-dir", "", "upload directory")
	set.Flags().StringVar(&download, "download-dir", "", "download directory")
	set.Flags().StringVar(&artifact, "artifact-dir", "", "artifact directory")

	clearCmd := &cobra.Command{
		Use:   "clear <org-id>",
		Short: "Remove settings",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return apiClient().DeleteSettings(cmd.Context(), id)
		},
	}
	settings.AddCommand(set, clearCmd)
	return settings
}

func orgMemberCmd() *cobra.Command {
	member := &cobra.Command{Use: "member", Short: "Add or remove organization members"}
	add := &cobra.Command{
		Use:   "add <org-id> <profile-id>",
		Short: "Add a profile to an organization",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return orgMembership(cmd, args, true)
		},
	}
	remove := &cobra.Command{
		Use:   "remove <org-id> <profile-id>",
		Short: "Remove a profile from an organization and its tasks",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return orgMembership(cmd, args, false)
		},
	}
	member.AddCommand(add, remove)
	return member
}

func orgMembership(cmd *cobra.Command, args []string, add bool) error {
	orgID, err := parseID(args[0])
	if err != nil {
		return err
	}
	profileID, err := parseID(args[1])
	if err != nil {
		return err
	}
	c := apiClient()
	var o cislinesdk.Organization
	if add {
		o, err = c.AddProfileToOrganization(cmd.Context(), orgID, profileID)
	} else {
		o, err = c.RemoveProfileFromOrganization(cmd.Context(), orgID, profileID)
	}
	if err != nil {
		return err
	}
	ids := make([]int64, len(o.Profiles))
	for i, p := range o.Profiles {
		ids[i] = p.ID
	}
	return printJSONOr(o, func() { fmt.Printf("organization %d members: [%s]\n", o.ID, idList(ids)) })
}
