package main

import (
	"fmt"

	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	"cisline/sdk/go/view"
)

func safeguardCmd() *cobra.Command {
	var lf listFlags
	var taskID int64
	sg := &cobra.Command{
		Use:   "safeguard [query]",
		Short: "Search CIS Controls v8 safeguards",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			q := ""
			if len(args) == 1 {
				q = args[0]
			}
			items, err := apiClient().SearchSafeguards(cmd.Context(), q, taskID)
			if err != nil {
				return err
			}
			page, footer := paginate(items, lf, view.ListPageSize, view.SafeguardKeys)
			return printJSONOr(page, func() {
				tw := newTable("ID", "Title", "Asset", "Function", "IG")
				for _, s := range page {
					tw.AppendRow([]any{s.ID, text.WrapSoft(s.Title, 60), s.AssetType, s.SecurityFunction, s.ImplementationGroup})
				}
				tw.AppendFooter([]any{"", footer})
				tw.Render()
			})
		},
	}
	lf.bind(sg)
	sg.Flags().Int64Var(&taskID, "exclude-task", 0, "hide safeguards already linked to this task")
	sg.AddCommand(controlsCmd())
	return sg
}

func controlsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "controls",
		Short: "List the 18 CIS controls",
		RunE: func(cmd *cobra.Command, args []string) error {
			controls, err := apiClient().Controls(cmd.Context())
			if err != nil {
				return err
			}
			return printJSONOr(controls, func() {
				for _, c := range controls {
					fmt.Printf("%3s  %s (%d safeguards)\n", c.ID, c.Title, len(c.Safeguards))
				}
			})
		},
	}
}
