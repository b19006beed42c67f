package main

import (
	"github.com/spf13/cobra"

	"github.com/agenticlead/agenticlead/internal/pipeline"
)

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Create pending placeholders for captures without structured records",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := initEnv(cmd.Context())
		if err != nil {
			return err
		}
		defer e.Close()

		result, err := pipeline.NewReconciler(e.store).Run(cmd.Context())
		if err != nil {
			return err
		}
		return printJSON(result)
	},
}

func init() {
	rootCmd.AddCommand(reconcileCmd)
}
