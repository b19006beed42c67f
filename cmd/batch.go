package main

import (
	"github.com/spf13/cobra"

	"github.com/agenticlead/agenticlead/internal/pipeline"
)

var (
	batchLimit       int
	batchConcurrency int
)

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Extract a batch of pending records concurrently",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := initEnv(cmd.Context())
		if err != nil {
			return err
		}
		defer e.Close()

		o := pipeline.NewOrchestrator(e.store, e.extractor, cfg.Batch)
		result, err := o.RunBatch(cmd.Context(), batchLimit, batchConcurrency)
		if err != nil {
			return err
		}
		return printJSON(result)
	},
}

func init() {
	batchCmd.Flags().IntVar(&batchLimit, "limit", 0, "max records to claim (default from config)")
	batchCmd.Flags().IntVar(&batchConcurrency, "concurrency", 0, "max extractions in flight (default from config)")
	rootCmd.AddCommand(batchCmd)
}
