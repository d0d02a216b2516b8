package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"edmanweb/internal/config"
	"edmanweb/internal/format"
)

func newRootCmd(cfg *config.Config) *cobra.Command {
	var (
		jsonOutput bool
		outputName string
		logLevel   string
	)

	cmd := &cobra.Command{
		Use:           "edmanweb",
		Short:         "Edmanweb serves hierarchical documents and their attachments",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			warning, err := configureLoggerForCLI(logLevel, cfg.LogLevel)
			if err != nil {
				return err
			}
			if warning != "" {
				fmt.Fprintln(os.Stderr, warning)
			}
			if outputName != "" {
				formatter, err := format.ForName(outputName)
				if err != nil {
					return err
				}
				outputFormatter = formatter
				jsonOutput = true
			}
			return nil
		},
	}

	cmd.Version = version
	cmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output JSON")
	cmd.PersistentFlags().StringVar(&outputName, "output", "", "structured output format: json, json-pretty or yaml (implies --json)")
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")

	cmd.AddCommand(
		newSrvCmd(cfg),
		newDocsCmd(cfg, &jsonOutput),
		newAttachCmd(cfg, &jsonOutput),
		newPreviewsCmd(cfg, &jsonOutput),
		newAdminCmd(cfg, &jsonOutput),
		newInfoCmd(cfg, &jsonOutput),
		newMigrateCmd(cfg, &jsonOutput),
		newConfigCmd(cfg),
		newTokenCmd(),
	)

	return cmd
}
