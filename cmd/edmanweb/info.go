package main

import (
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"edmanweb/internal/api"
	"edmanweb/internal/config"
)

func newInfoCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "info",
		Short: "Show store and server info",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cfg, func(client *api.Client) error {
				resp, err := client.GetInfo(cmd.Context())
				if err != nil {
					return err
				}

				if *jsonOutput {
					return writeJSON(resp)
				}

				_ = writePlain("db_path: %s\n", cfg.DBPath)
				_ = writePlain("schema_version: %d\n", resp.SchemaVersion)
				_ = writePlain("blob_backend: %s\n", resp.BlobBackend)
				_ = writePlain("total_blobs: %d (%d compressed, %d bytes)\n", resp.TotalBlobs, resp.CompressedBlobs, resp.TotalBlobBytes)
				_ = writePlain("preview: %dx%d [%s]\n", resp.Previews.Width, resp.Previews.Height, strings.Join(resp.Previews.AllowedExtensions, ","))
				_ = writePlain("total_documents: %d\n", resp.TotalDocuments)

				collections := make([]string, 0, len(resp.DocumentCounts))
				for collection := range resp.DocumentCounts {
					collections = append(collections, collection)
				}
				sort.Strings(collections)
				for _, collection := range collections {
					_ = writePlain("  %s: %d\n", collection, resp.DocumentCounts[collection])
				}
				return nil
			})
		},
	}
	return cmd
}
