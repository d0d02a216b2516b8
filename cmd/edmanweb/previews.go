package main

import (
	"encoding/base64"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sort"

	"github.com/spf13/cobra"

	"edmanweb/internal/api"
	"edmanweb/internal/config"
)

func newPreviewsCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	var (
		mode   string
		ext    string
		width  int
		height int
		outDir string
	)

	cmd := &cobra.Command{
		Use:   "previews <collection> <document-id>",
		Short: "Render thumbnails or fetch images attached to a document",
		Args:  requireExactlyArgs(2, "collection and document id are required"),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := url.Values{}
			setIfNotEmpty(query, "mode", mode)
			setIfNotEmpty(query, "ext", ext)
			if width > 0 {
				query.Set("width", intToString(width))
			}
			if height > 0 {
				query.Set("height", intToString(height))
			}

			return withClient(cfg, func(client *api.Client) error {
				resp, err := client.Previews(cmd.Context(), args[0], args[1], query)
				if err != nil {
					return err
				}
				if outDir != "" {
					written, err := writePreviewFiles(outDir, resp.Items)
					if err != nil {
						return err
					}
					if !*jsonOutput {
						for _, path := range written {
							if err := writePlain("%s\n", path); err != nil {
								return err
							}
						}
						return nil
					}
				}
				if *jsonOutput {
					return writeJSON(resp)
				}
				return writePlain("%s: %d image(s)\n", resp.Mode, len(resp.Items))
			})
		},
	}

	cmd.Flags().StringVar(&mode, "mode", "", "thumbnail (default) or image")
	cmd.Flags().StringVar(&ext, "ext", "", "comma-separated file extensions to include (default: server setting)")
	cmd.Flags().IntVar(&width, "width", 0, "thumbnail bounding box width")
	cmd.Flags().IntVar(&height, "height", 0, "thumbnail bounding box height")
	cmd.Flags().StringVar(&outDir, "out-dir", "", "write decoded images to this directory")
	return cmd
}

// writePreviewFiles decodes each item into dir as <blob-id>.<ext> and
// returns the paths in blob id order.
func writePreviewFiles(dir string, items map[string]api.PreviewItem) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(items))
	for id := range items {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	paths := make([]string, 0, len(ids))
	for _, id := range ids {
		item := items[id]
		data, err := base64.StdEncoding.DecodeString(item.Data)
		if err != nil {
			return nil, fmt.Errorf("decode %s: %w", id, err)
		}
		name := filepath.Base(id)
		if item.Ext != "" {
			name += "." + item.Ext
		}
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return nil, err
		}
		paths = append(paths, path)
	}
	return paths, nil
}
