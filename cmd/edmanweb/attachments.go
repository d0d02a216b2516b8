package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"edmanweb/internal/api"
	"edmanweb/internal/config"
)

func newAttachCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	cmd := &cobra.Command{Use: "attach", Short: "Manage document attachments"}
	cmd.AddCommand(
		newAttachAddCmd(cfg, jsonOutput),
		newAttachListCmd(cfg, jsonOutput),
		newAttachGetCmd(cfg),
		newAttachRemoveCmd(cfg, jsonOutput),
	)
	return cmd
}

func newAttachAddCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	var (
		filename string
		compress bool
	)

	cmd := &cobra.Command{
		Use:   "add <collection> <document-id> <path>",
		Short: "Upload a file and attach it to a document",
		Args:  requireExactlyArgs(3, "collection, document id and path are required"),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[2]
			file, err := os.Open(path)
			if err != nil {
				return err
			}
			defer file.Close()

			name := chooseFirst(strings.TrimSpace(filename), filepath.Base(path))
			return withClient(cfg, func(client *api.Client) error {
				resp, err := client.UploadAttachment(cmd.Context(), args[0], args[1], name, file, compress)
				if err != nil {
					return err
				}
				if *jsonOutput {
					return writeJSON(resp)
				}
				return writePlain("%s %s (%s, %d bytes)\n", resp.BlobID, resp.Filename, resp.Compression, resp.SizeBytes)
			})
		},
	}

	cmd.Flags().StringVar(&filename, "filename", "", "stored filename (default: base name of path)")
	cmd.Flags().BoolVar(&compress, "compress", false, "gzip the content before storing it")
	return cmd
}

func newAttachListCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	return &cobra.Command{
		Use:   "ls <collection> <document-id>",
		Short: "List the files attached to a document",
		Args:  requireExactlyArgs(2, "collection and document id are required"),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cfg, func(client *api.Client) error {
				files, err := client.ListAttachments(cmd.Context(), args[0], args[1])
				if err != nil {
					return err
				}
				if *jsonOutput {
					return writeJSON(files)
				}
				return writeFileList(files)
			})
		},
	}
}

func newAttachGetCmd(cfg *config.Config) *cobra.Command {
	var (
		outPath string
		force   bool
	)

	cmd := &cobra.Command{
		Use:   "get <blob-id>",
		Short: "Download blob content",
		Args:  requireExactlyArgs(1, "blob id is required"),
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(outPath) == "" || outPath == "-" {
				return withClient(cfg, func(client *api.Client) error {
					_, err := client.DownloadBlob(cmd.Context(), args[0], os.Stdout)
					return err
				})
			}
			if !force {
				if _, err := os.Stat(outPath); err == nil {
					return fmt.Errorf("output file exists (use --force to overwrite)")
				}
			}

			return withClient(cfg, func(client *api.Client) error {
				f, err := os.OpenFile(outPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
				if err != nil {
					return err
				}
				defer f.Close()

				filename, err := client.DownloadBlob(cmd.Context(), args[0], f)
				if err != nil {
					return err
				}
				if filename != "" {
					return writePlain("%s (%s)\n", outPath, filename)
				}
				return writePlain("%s\n", outPath)
			})
		},
	}

	cmd.Flags().StringVarP(&outPath, "output", "o", "", "output path (default: stdout)")
	cmd.Flags().BoolVar(&force, "force", false, "overwrite output path if it exists")
	return cmd
}

func newAttachRemoveCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	return &cobra.Command{
		Use:   "rm <collection> <document-id> <blob-id>...",
		Short: "Detach blobs from a document and delete them",
		Args:  requireAtLeastArgs(3, "collection, document id and at least one blob id are required"),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cfg, func(client *api.Client) error {
				resp, err := client.DeleteAttachments(cmd.Context(), args[0], args[1], args[2:])
				if err != nil {
					return err
				}
				if *jsonOutput {
					return writeJSON(resp)
				}
				for _, id := range resp.Removed {
					if err := writePlain("removed %s\n", id); err != nil {
						return err
					}
				}
				return writePlain("%d attachment(s) remaining\n", len(resp.Remaining))
			})
		},
	}
}

func chooseFirst(values ...string) string {
	for _, value := range values {
		if value != "" {
			return value
		}
	}
	return ""
}
