package pipeline

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/agenticlead/agenticlead/internal/model"
)

// Driver runs the full pipeline: reconcile placeholders, extract a batch,
// regenerate exports. It always returns a result, never an error; failures
// below the step level are already contained, and step-level failures are
// reported through Success and Message.
type Driver struct {
	reconciler   *Reconciler
	orchestrator *Orchestrator
	exporter     *Exporter
}

func NewDriver(r *Reconciler, o *Orchestrator, e *Exporter) *Driver {
	return &Driver{reconciler: r, orchestrator: o, exporter: e}
}

// Run executes one full pipeline pass. The export step always runs, even
// when an earlier step failed, so artifacts stay as fresh as the data
// allows.
func (d *Driver) Run(ctx context.Context) *model.PipelineResult {
	start := time.Now()
	result := &model.PipelineResult{Success: true, Message: "pipeline completed"}

	rec, err := d.reconciler.Run(ctx)
	if err != nil {
		zap.L().Error("pipeline: reconcile step failed", zap.Error(err))
		result.Success = false
		result.Message = fmt.Sprintf("reconcile failed: %v", err)
	} else {
		result.Placeholders = model.StepSummary{Processed: rec.Created, Errors: rec.Errors}
	}

	if result.Success {
		batch, err := d.orchestrator.RunBatch(ctx, 0, 0)
		if err != nil {
			zap.L().Error("pipeline: extraction step failed", zap.Error(err))
			result.Success = false
			result.Message = fmt.Sprintf("extraction failed: %v", err)
		} else {
			result.Extraction = model.StepSummary{Processed: batch.Processed, Errors: batch.Errors}
		}
	}

	summary, err := d.exporter.ExportAll(ctx)
	if err != nil {
		// Export failures (including an empty dataset) do not fail the
		// run; the summary already says what was written.
		zap.L().Warn("pipeline: export step incomplete", zap.Error(err))
	}
	result.Export = summary

	result.TotalSeconds = time.Since(start).Seconds()
	zap.L().Info("pipeline: run finished",
		zap.Bool("success", result.Success),
		zap.Float64("total_s", result.TotalSeconds),
	)
	return result
}
