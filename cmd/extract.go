package main

import (
	"strconv"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/agenticlead/agenticlead/internal/model"
)

var extractCmd = &cobra.Command{
	Use:   "extract <raw_id>",
	Short: "Run extraction for a single raw capture",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rawID, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return eris.Errorf("invalid raw id %q", args[0])
		}

		e, err := initEnv(cmd.Context())
		if err != nil {
			return err
		}
		defer e.Close()

		ctx := cmd.Context()
		raw, err := e.store.GetRawCapture(ctx, rawID)
		if err != nil {
			return err
		}
		recID, _, err := e.store.CreatePlaceholder(ctx, rawID)
		if err != nil {
			return err
		}

		ref := raw.CapturedAt
		fields, meta, err := e.extractor.Extract(ctx, raw.Text, &ref)
		if err != nil {
			return err
		}

		status := model.StatusError
		switch meta.Status {
		case model.ExtractionSuccess:
			status = model.StatusCompleted
		case model.ExtractionValidationFailed:
			status = model.StatusValidationFailed
		}
		if err := e.store.ApplyExtraction(ctx, recID, fields, meta, status); err != nil {
			return err
		}
		if err := e.store.MarkProcessed(ctx, rawID); err != nil {
			return err
		}

		rec, err := e.store.GetStructured(ctx, recID)
		if err != nil {
			return err
		}
		return printJSON(rec)
	},
}

func init() {
	rootCmd.AddCommand(extractCmd)
}
