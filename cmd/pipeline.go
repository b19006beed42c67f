package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
)

var pipelineCmd = &cobra.Command{
	Use:   "pipeline",
	Short: "Run the full pass: reconcile, extract, export",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := initEnv(cmd.Context())
		if err != nil {
			return err
		}
		defer e.Close()

		result := e.driver.Run(cmd.Context())
		if err := printJSON(result); err != nil {
			return err
		}
		if !result.Success {
			return eris.New(result.Message)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(pipelineCmd)
}
