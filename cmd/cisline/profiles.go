package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	cislinesdk "cisline/sdk/go"
	"cisline/sdk/go/state"
	"cisline/sdk/go/view"
)

func profileCmd() *cobra.Command {
	p := &cobra.Command{Use: "profile", Short: "Manage profiles and their user accounts"}
	p.AddCommand(profileListCmd())
	p.AddCommand(profileShowCmd())
	p.AddCommand(profileCreateCmd())
	p.AddCommand(profileUpdateCmd())
	p.AddCommand(profileDeleteCmd())
	return p
}

func profileListCmd() *cobra.Command {
	var lf listFlags
	var q cislinesdk.ProfileQuery
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List profiles",
		RunE: func(cmd *cobra.Command, args []string) error {
			profiles, err := apiClient().ListProfiles(cmd.Context(), q)
			if err != nil {
				return err
			}
			page, footer := paginate(profiles, lf, view.ListPageSize, view.ProfileKeys)
			return printJSONOr(page, func() {
				tw := newTable("ID", "Name", "Email", "Role", "Organization", "Tasks")
				for _, p := range page {
					var email, role string
					if p.User != nil {
						email, role = p.User.Email, p.User.Role
					}
					org := "-"
					if p.OrganizationID != nil {
						org = fmt.Sprint(*p.OrganizationID)
					}
					tw.AppendRow([]any{p.ID, p.Name, email, role, org, len(p.TaskProfiles)})
				}
				tw.AppendFooter([]any{"", footer})
				tw.Render()
			})
		},
	}
	lf.bind(cmd)
	cmd.Flags().Int64Var(&q.OrganizationID, "org", 0, "organization filter")
	cmd.Flags().BoolVar(&q.Unassigned, "unassigned", false, "only profiles without an organization")
	return cmd
}

func profileShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show a profile",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			p, err := apiClient().GetProfile(cmd.Context(), id)
			if err != nil {
				return err
			}
			return printJSON(p)
		},
	}
}

func profileCreateCmd() *cobra.Command {
	var in cislinesdk.ProfileCreate
	var orgID int64
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a profile with its user account",
		Long:  "Checks email availability and password strength first; the password is read from CISLINE_PASSWORD when --password is omitted.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if in.Password == "" {
				in.Password = os.Getenv("CISLINE_PASSWORD")
			}
			if cmd.Flags().Changed("org") {
				in.OrganizationID = &orgID
			}
			c := apiClient()
			gate := state.NewCredentialGate(c, 0)
			defer gate.Stop()
			gate.SetEmail(cmd.Context(), in.Email)
			gate.SetPassword(cmd.Context(), in.Password, in.Email, in.LoginName, in.Nickname)
			gate.Flush()
			if !gate.Ready() {
				return gateError(gate)
			}
			p, err := c.CreateProfile(cmd.Context(), in)
			if err != nil {
				return err
			}
			return printJSONOr(p, func() { fmt.Printf("created profile %d\n", p.ID) })
		},
	}
	cmd.Flags().StringVar(&in.Name, "name", "", "display name")
	cmd.Flags().StringVar(&in.Description, "description", "", "description")
	cmd.Flags().StringVar(&in.Email, "email", "", "login email")
	cmd.Flags().StringVar(&in.LoginName, "login-name", "", "login name (defaults to the email)")
	cmd.Flags().StringVar(&in.Nickname, "nickname", "", "nickname")
	cmd.Flags().StringVar(&in.Password, "password", "", "password")
	cmd.Flags().StringVar(&in.Role, "role", "", "role (ADMIN, MANAGER, AUDITOR or USER)")
	cmd.Flags().StringVar(&in.WorkFunction, "work-function", "", "work function")
	cmd.Flags().Int64Var(&orgID, "org", 0, "organization to join")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func gateError(g *state.CredentialGate) error {
	var errs []error
	if st, reason := g.Email(); st != state.CheckValid {
		errs = append(errs, fmt.Errorf("email rejected: %s", orUnknown(reason)))
	}
	if st, reason := g.Password(); st != state.CheckValid {
		errs = append(errs, fmt.Errorf("password rejected: %s", orUnknown(reason)))
	}
	return errors.Join(errs...)
}

func orUnknown(s string) string {
	if s == "" {
		return "missing"
	}
	return s
}

func profileUpdateCmd() *cobra.Command {
	var name, desc, nickname, role, fn string
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Update a profile",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			p, err := apiClient().UpdateProfile(cmd.Context(), id, cislinesdk.ProfilePatch{
				Name:         optionalString(cmd, "name", name),
				Description:  optionalString(cmd, "description", desc),
				Nickname:     optionalString(cmd, "nickname", nickname),
				Role:         optionalString(cmd, "role", role),
				WorkFunction: optionalString(cmd, "work-function", fn),
			})
			if err != nil {
				return err
			}
			return printJSON(p)
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "display name")
	cmd.Flags().StringVar(&desc, "description", "", "description")
	cmd.Flags().StringVar(&nickname, "nickname", "", "nickname")
	cmd.Flags().StringVar(&role, "role", "", "role (ADMIN, MANAGER, AUDITOR or USER)")
	cmd.Flags().StringVar(&fn, "work-function", "", "work function")
	return cmd
}

func profileDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a profile",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return apiClient().DeleteProfile(cmd.Context(), id)
		},
	}
}
