package main

import (
	"github.com/spf13/cobra"

	"edmanweb/internal/api"
	"edmanweb/internal/config"
)

func newAdminCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "admin",
		Short: "Administrative commands",
	}

	cmd.AddCommand(newAdminGCBlobsCmd(cfg, jsonOutput))
	return cmd
}

func newAdminGCBlobsCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	var apply bool

	cmd := &cobra.Command{
		Use:   "gc-blobs",
		Short: "Garbage-collect blobs no document references",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cfg, func(client *api.Client) error {
				resp, err := client.BlobGC(cmd.Context(), apply)
				if err != nil {
					return err
				}
				if *jsonOutput {
					return writeJSON(resp)
				}
				mode := "dry run"
				if !resp.DryRun {
					mode = "applied"
				}
				if err := writePlain("%s: candidates=%d bytes=%d deleted=%d failed=%d\n", mode, resp.CandidateCount, resp.CandidateBytes, resp.DeletedCount, resp.FailedCount); err != nil {
					return err
				}
				for _, id := range resp.BlobIDs {
					if err := writePlain("  %s\n", id); err != nil {
						return err
					}
				}
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&apply, "apply", false, "delete unreferenced blobs (default is a dry run)")
	return cmd
}
