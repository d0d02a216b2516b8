package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"edmanweb/internal/api"
	"edmanweb/internal/config"
)

func newDocsCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	cmd := &cobra.Command{Use: "docs", Short: "Read and import documents"}
	cmd.AddCommand(
		newDocsGetCmd(cfg),
		newDocsImportCmd(cfg, jsonOutput),
	)
	return cmd
}

func newDocsGetCmd(cfg *config.Config) *cobra.Command {
	var (
		mode        string
		parentDepth int
		childDepth  int
		exclude     string
	)

	cmd := &cobra.Command{
		Use:   "get <collection> <document-id>",
		Short: "Fetch a document with its relatives",
		Long: "Fetch a document. --mode single returns the document alone, manual adds\n" +
			"--parent-depth ancestors and --child-depth levels of children, tree returns\n" +
			"the whole tree the document belongs to.",
		Args: requireExactlyArgs(2, "collection and document id are required"),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := url.Values{}
			setIfNotEmpty(query, "mode", mode)
			if parentDepth > 0 {
				query.Set("parent_depth", intToString(parentDepth))
			}
			if childDepth > 0 {
				query.Set("child_depth", intToString(childDepth))
			}
			if fields := splitCommaList(exclude); len(fields) > 0 {
				query.Set("exclude", strings.Join(fields, ","))
			}

			return withClient(cfg, func(client *api.Client) error {
				out, err := client.GetDocuments(cmd.Context(), args[0], args[1], query)
				if err != nil {
					return err
				}
				// Documents have no plain rendering.
				return writeJSON(out)
			})
		},
	}

	cmd.Flags().StringVar(&mode, "mode", "single", "selection mode: single, manual or tree")
	cmd.Flags().IntVar(&parentDepth, "parent-depth", 0, "ancestors to include (manual mode)")
	cmd.Flags().IntVar(&childDepth, "child-depth", 0, "child levels to include (manual mode)")
	cmd.Flags().StringVar(&exclude, "exclude", "", "comma-separated fields to leave out")
	return cmd
}

func newDocsImportCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	return &cobra.Command{
		Use:   "import <path>",
		Short: "Import a document tree from a JSON or YAML file",
		Args:  requireExactlyArgs(1, "path is required"),
		RunE: func(cmd *cobra.Command, args []string) error {
			tree, err := readTreeFile(args[0])
			if err != nil {
				return err
			}

			return withClient(cfg, func(client *api.Client) error {
				resp, err := client.ImportDocuments(cmd.Context(), tree)
				if err != nil {
					return err
				}
				if *jsonOutput {
					return writeJSON(resp)
				}
				if err := writePlain("created %d document(s)\n", resp.Created); err != nil {
					return err
				}
				for _, ref := range resp.Refs {
					if err := writePlain("  %s/%s\n", ref.Collection, ref.ID); err != nil {
						return err
					}
				}
				return nil
			})
		},
	}
}

// readTreeFile loads a tree in the whole-tree output format. Files ending in
// .yaml or .yml are read as YAML, everything else as JSON.
func readTreeFile(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var tree map[string]any
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &tree)
	default:
		err = json.Unmarshal(data, &tree)
	}
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if len(tree) == 0 {
		return nil, errors.New("document tree is empty")
	}
	return tree, nil
}
