package main

import (
	"strconv"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
)

var (
	reviewThreshold float64
	reviewUnmark    bool
)

var reviewCmd = &cobra.Command{
	Use:   "review",
	Short: "Inspect and resolve low-confidence extractions",
}

var reviewListCmd = &cobra.Command{
	Use:   "list",
	Short: "List unreviewed records below the confidence threshold",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := initEnv(cmd.Context())
		if err != nil {
			return err
		}
		defer e.Close()

		queue, err := e.store.ListForReview(cmd.Context(), reviewThreshold)
		if err != nil {
			return err
		}
		return printJSON(queue)
	},
}

var reviewMarkCmd = &cobra.Command{
	Use:   "mark <id>",
	Short: "Mark a structured record as reviewed",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return eris.Errorf("invalid record id %q", args[0])
		}

		e, err := initEnv(cmd.Context())
		if err != nil {
			return err
		}
		defer e.Close()

		if err := e.store.SetReviewed(cmd.Context(), id, !reviewUnmark); err != nil {
			return err
		}
		return printJSON(map[string]any{"id": id, "reviewed": !reviewUnmark})
	},
}

func init() {
	reviewListCmd.Flags().Float64Var(&reviewThreshold, "threshold", 0.7, "confidence below which records need review")
	reviewMarkCmd.Flags().BoolVar(&reviewUnmark, "unmark", false, "clear the reviewed flag instead of setting it")
	reviewCmd.AddCommand(reviewListCmd)
	reviewCmd.AddCommand(reviewMarkCmd)
	rootCmd.AddCommand(reviewCmd)
}
