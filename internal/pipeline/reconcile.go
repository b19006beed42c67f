// Package pipeline wires capture, extraction and export into the three-step
// run: reconcile placeholders, extract pending records, regenerate exports.
package pipeline

import (
	"context"

	"go.uber.org/zap"

	"github.com/agenticlead/agenticlead/internal/model"
	"github.com/agenticlead/agenticlead/internal/store"
)

// Reconciler guarantees every raw capture has exactly one structured
// counterpart. It creates empty pending placeholders and flips the
// capture's processed flag; extraction is the orchestrator's job.
type Reconciler struct {
	store store.Store
}

func NewReconciler(s store.Store) *Reconciler {
	return &Reconciler{store: s}
}

// Run creates placeholders for captures that have none. Per-capture failures
// are counted and logged, never aborting the pass.
func (r *Reconciler) Run(ctx context.Context) (*model.ReconcileResult, error) {
	raws, err := r.store.ListUnprocessed(ctx)
	if err != nil {
		return nil, err
	}

	result := &model.ReconcileResult{}
	for _, raw := range raws {
		id, created, err := r.store.CreatePlaceholder(ctx, raw.ID)
		if err != nil {
			zap.L().Warn("reconcile: placeholder failed",
				zap.Int64("raw_id", raw.ID), zap.Error(err))
			result.Errors++
			continue
		}
		if created {
			result.Created++
			result.CreatedIDs = append(result.CreatedIDs, id)
		}
		// The flag flips as soon as the placeholder exists, whether or
		// not this pass created it.
		if err := r.store.MarkProcessed(ctx, raw.ID); err != nil {
			zap.L().Warn("reconcile: mark processed failed",
				zap.Int64("raw_id", raw.ID), zap.Error(err))
			result.Errors++
		}
	}

	zap.L().Info("reconcile: pass complete",
		zap.Int("scanned", len(raws)),
		zap.Int("created", result.Created),
		zap.Int("errors", result.Errors),
	)
	return result, nil
}
