package main

import (
	"github.com/spf13/cobra"

	"github.com/agenticlead/agenticlead/internal/pipeline"
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Regenerate the XLSX and CSV artifacts",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := initEnv(cmd.Context())
		if err != nil {
			return err
		}
		defer e.Close()

		summary, err := pipeline.NewExporter(e.store, cfg.Export).ExportAll(cmd.Context())
		if err != nil {
			return err
		}
		return printJSON(summary)
	},
}

func init() {
	rootCmd.AddCommand(exportCmd)
}
