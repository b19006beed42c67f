package pipeline

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/agenticlead/agenticlead/internal/config"
	"github.com/agenticlead/agenticlead/internal/model"
	"github.com/agenticlead/agenticlead/internal/store"
)

// FieldExtractor derives structured fields from one raw report. Satisfied by
// extract.Extractor; declared here so the orchestrator can be tested with a
// stub.
type FieldExtractor interface {
	Extract(ctx context.Context, rawText string, ref *time.Time) (model.ExtractedFields, *model.ExtractionMetadata, error)
}

// Orchestrator claims pending records and runs extraction over them with
// bounded concurrency. Item failures are contained: they surface as error
// statuses on the records, never as a batch error.
type Orchestrator struct {
	store     store.Store
	extractor FieldExtractor
	cfg       config.BatchConfig
}

func NewOrchestrator(s store.Store, e FieldExtractor, cfg config.BatchConfig) *Orchestrator {
	return &Orchestrator{store: s, extractor: e, cfg: cfg}
}

// RunBatch processes up to limit pending records with at most maxConcurrent
// extractions in flight. Zero or negative arguments fall back to configured
// defaults.
func (o *Orchestrator) RunBatch(ctx context.Context, limit, maxConcurrent int) (*model.BatchResult, error) {
	if limit <= 0 {
		limit = o.cfg.Size
	}
	if maxConcurrent <= 0 {
		maxConcurrent = o.cfg.MaxConcurrent
	}
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}

	// Return abandoned claims to the queue before claiming anew.
	claimTimeout := time.Duration(o.cfg.ClaimTimeoutMins) * time.Minute
	if claimTimeout <= 0 {
		claimTimeout = 15 * time.Minute
	}
	if released, err := o.store.ReleaseStaleClaims(ctx, claimTimeout); err != nil {
		zap.L().Warn("batch: stale claim sweep failed", zap.Error(err))
	} else if released > 0 {
		zap.L().Info("batch: released stale claims", zap.Int("count", released))
	}

	start := time.Now()
	items, err := o.store.ClaimPending(ctx, limit)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		zap.L().Info("batch: nothing pending")
		return &model.BatchResult{}, nil
	}

	zap.L().Info("batch: starting",
		zap.Int("claimed", len(items)),
		zap.Int("max_concurrent", maxConcurrent),
	)

	var mu sync.Mutex
	results := make([]model.ItemResult, 0, len(items))

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrent)
	for _, item := range items {
		item := item
		g.Go(func() error {
			res := o.processItem(gCtx, item)
			mu.Lock()
			results = append(results, res)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait() // workers never return errors; containment happens per item

	sort.Slice(results, func(i, j int) bool { return results[i].RawID < results[j].RawID })

	batch := &model.BatchResult{Items: results, TotalSeconds: time.Since(start).Seconds()}
	for _, r := range results {
		if r.Status == model.StatusError {
			batch.Errors++
		} else {
			batch.Processed++
		}
	}
	if n := len(results); n > 0 {
		batch.AvgSecondsItem = batch.TotalSeconds / float64(n)
	}

	zap.L().Info("batch: complete",
		zap.Int("processed", batch.Processed),
		zap.Int("errors", batch.Errors),
		zap.Float64("total_s", batch.TotalSeconds),
	)
	return batch, nil
}

// processItem runs one extraction and persists the outcome. Failures mark
// the record instead of propagating.
func (o *Orchestrator) processItem(ctx context.Context, item model.PendingItem) model.ItemResult {
	res := model.ItemResult{RawID: item.Raw.ID, StructuredID: item.Record.ID}

	ref := item.Raw.CapturedAt
	fields, meta, err := o.extractor.Extract(ctx, item.Raw.Text, &ref)
	if err != nil {
		zap.L().Warn("batch: extraction rejected input",
			zap.Int64("raw_id", item.Raw.ID), zap.Error(err))
		return o.failItem(ctx, res, err.Error())
	}

	status := recordStatus(meta)
	if err := o.store.ApplyExtraction(ctx, item.Record.ID, fields, meta, status); err != nil {
		zap.L().Error("batch: persist extraction failed",
			zap.Int64("structured_id", item.Record.ID), zap.Error(err))
		return o.failItem(ctx, res, err.Error())
	}
	if err := o.store.MarkProcessed(ctx, item.Raw.ID); err != nil {
		zap.L().Warn("batch: mark raw processed failed",
			zap.Int64("raw_id", item.Raw.ID), zap.Error(err))
	}

	res.Status = status
	if meta != nil {
		res.Seconds = meta.ProcessingSeconds
		if meta.Validation != nil {
			res.Confidence = meta.Validation.GlobalConfidence
		}
		res.Error = meta.ErrorMessage
	}
	return res
}

func (o *Orchestrator) failItem(ctx context.Context, res model.ItemResult, msg string) model.ItemResult {
	if err := o.store.MarkExtractionError(ctx, res.StructuredID, msg); err != nil {
		zap.L().Error("batch: mark extraction error failed",
			zap.Int64("structured_id", res.StructuredID), zap.Error(err))
	}
	res.Status = model.StatusError
	res.Error = msg
	return res
}

// recordStatus maps the per-attempt metadata status onto the record status.
func recordStatus(meta *model.ExtractionMetadata) model.ExtractionStatus {
	if meta == nil {
		return model.StatusError
	}
	switch meta.Status {
	case model.ExtractionSuccess:
		return model.StatusCompleted
	case model.ExtractionValidationFailed:
		return model.StatusValidationFailed
	default:
		return model.StatusError
	}
}
