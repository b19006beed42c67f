package main

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	captureAgent string
	captureLat   float64
	captureLon   float64
	captureRef   int64
)

var captureCmd = &cobra.Command{
	Use:   "capture [text...]",
	Short: "Store one raw field report",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		text := strings.TrimSpace(strings.Join(args, " "))
		if text == "" {
			return eris.New("capture: text is empty")
		}

		e, err := initEnv(cmd.Context())
		if err != nil {
			return err
		}
		defer e.Close()

		var lat, lon *float64
		if cmd.Flags().Changed("lat") {
			lat = &captureLat
		}
		if cmd.Flags().Changed("lon") {
			lon = &captureLon
		}
		var ref *int64
		if cmd.Flags().Changed("message-ref") {
			ref = &captureRef
		}

		id, err := e.store.SaveRawCapture(cmd.Context(), captureAgent, text, ref, lat, lon)
		if err != nil {
			return err
		}

		zap.L().Info("capture stored", zap.Int64("raw_id", id))
		return printJSON(map[string]any{"id": id, "status": "stored"})
	},
}

func init() {
	captureCmd.Flags().StringVar(&captureAgent, "agent", "", "agent identifier")
	captureCmd.Flags().Float64Var(&captureLat, "lat", 0, "capture latitude")
	captureCmd.Flags().Float64Var(&captureLon, "lon", 0, "capture longitude")
	captureCmd.Flags().Int64Var(&captureRef, "message-ref", 0, "originating chat message id")
	rootCmd.AddCommand(captureCmd)
}
