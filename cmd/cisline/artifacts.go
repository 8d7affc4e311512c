package main

import (
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	cislinesdk "cisline/sdk/go"
	"cisline/sdk/go/view"
)

func artifactCmd() *cobra.Command {
	a := &cobra.Command{Use: "artifact", Short: "Manage evidence artifacts"}
	a.AddCommand(artifactListCmd())
	a.AddCommand(artifactShowCmd())
	a.AddCommand(artifactCreateCmd())
	a.AddCommand(artifactUpdateCmd())
	a.AddCommand(artifactDeleteCmd())
	a.AddCommand(artifactUploadCmd())
	a.AddCommand(artifactDownloadCmd())
	return a
}

func artifactListCmd() *cobra.Command {
	var lf listFlags
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List artifacts",
		RunE: func(cmd *cobra.Command, args []string) error {
			items, err := apiClient().ListArtifacts(cmd.Context())
			if err != nil {
				return err
			}
			page, footer := paginate(items, lf, view.ListPageSize, view.ArtifactKeys)
			return printJSONOr(page, func() {
				tw := newTable("ID", "Name", "Type", "Size", "Created")
				for _, a := range page {
					size := "-"
					if a.ContentType != "" {
						size = humanize.IBytes(uint64(a.Size))
					}
					tw.AppendRow([]any{a.ID, a.Name, a.ContentType, size, ago(a.CreatedAt)})
				}
				tw.AppendFooter([]any{"", footer})
				tw.Render()
			})
		},
	}
	lf.bind(cmd)
	return cmd
}

func artifactShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show an artifact",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			a, err := apiClient().GetArtifact(cmd.Context(), id)
			if err != nil {
				return err
			}
			return printJSON(a)
		},
	}
}

func artifactCreateCmd() *cobra.Command {
	var in cislinesdk.ArtifactCreate
	var taskID int64
	var file string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an artifact, optionally uploading --file and linking --task",
		RunE: func(cmd *cobra.Command, args []string) error {
			if in.Name == "" && file != "" {
				in.Name = filepath.Base(file)
			}
			if cmd.Flags().Changed("task") {
				in.TaskID = &taskID
			}
			c := apiClient()
			a, err := c.CreateArtifact(cmd.Context(), in)
			if err != nil {
				return err
			}
			if file != "" {
				id := a.ID
				if a, err = uploadFile(cmd, c, id, file); err != nil {
					return fmt.Errorf("artifact %d created, upload failed: %w", id, err)
				}
			}
			return printJSONOr(a, func() { fmt.Printf("created artifact %d\n", a.ID) })
		},
	}
	cmd.Flags().StringVar(&in.Name, "name", "", "name (defaults to the file name)")
	cmd.Flags().StringVar(&in.Description, "description", "", "description")
	cmd.Flags().Int64Var(&taskID, "task", 0, "task to link")
	cmd.Flags().StringVar(&file, "file", "", "content to upload")
	return cmd
}

func artifactUpdateCmd() *cobra.Command {
	var name, desc string
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Rename or describe an artifact",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			a, err := apiClient().UpdateArtifact(cmd.Context(), id, cislinesdk.ArtifactPatch{
				Name:        optionalString(cmd, "name", name),
				Description: optionalString(cmd, "description", desc),
			})
			if err != nil {
				return err
			}
			return printJSON(a)
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "name")
	cmd.Flags().StringVar(&desc, "description", "", "description")
	return cmd
}

func artifactDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete an artifact",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return apiClient().DeleteArtifact(cmd.Context(), id)
		},
	}
}

func artifactUploadCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "upload <id> <file>",
		Short: "Replace an artifact's content",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			a, err := uploadFile(cmd, apiClient(), id, args[1])
			if err != nil {
				return err
			}
			return printJSONOr(a, func() {
				fmt.Printf("uploaded %s to artifact %d\n", humanize.IBytes(uint64(a.Size)), a.ID)
			})
		},
	}
}

func uploadFile(cmd *cobra.Command, c *cislinesdk.Client, id int64, path string) (cislinesdk.Artifact, error) {
	f, err := os.Open(path)
	if err != nil {
		return cislinesdk.Artifact{}, err
	}
	defer f.Close()
	return c.UploadArtifactContent(cmd.Context(), id, f, mime.TypeByExtension(filepath.Ext(path)))
}

func artifactDownloadCmd() *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "download <id>",
		Short: "Download an artifact's content (stdout unless --out)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			body, _, err := apiClient().DownloadArtifactContent(cmd.Context(), id)
			if err != nil {
				return err
			}
			defer body.Close()
			var w io.Writer = os.Stdout
			if out != "" {
				f, err := os.Create(out)
				if err != nil {
					return err
				}
				defer f.Close()
				w = f
			}
			n, err := io.Copy(w, body)
			if err != nil {
				return err
			}
			if out != "" {
				fmt.Fprintf(os.Stderr, "wrote %s to %s\n", humanize.IBytes(uint64(n)), out)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "output file")
	return cmd
}
