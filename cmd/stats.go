package main

import (
	"github.com/spf13/cobra"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show capture coverage and extraction status counts",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := initEnv(cmd.Context())
		if err != nil {
			return err
		}
		defer e.Close()

		stats, err := e.store.Stats(cmd.Context())
		if err != nil {
			return err
		}
		return printJSON(stats)
	},
}

func init() {
	rootCmd.AddCommand(statsCmd)
}
