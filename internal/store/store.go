package store

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/agenticlead/agenticlead/internal/model"
)

// ErrNotFound is returned when a capture or record does not exist.
var ErrNotFound = eris.New("store: not found")

// StructuredFilter specifies criteria for listing structured records.
type StructuredFilter struct {
	Reviewed *bool                  `json:"reviewed,omitempty"`
	Status   model.ExtractionStatus `json:"status,omitempty"`
	Limit    int                    `json:"limit,omitempty"`
	Offset   int                    `json:"offset,omitempty"`
}

// Store defines the persistence interface for the capture/extraction
// pipeline. Implementations never expose sessions or transactions.
type Store interface {
	// Raw captures (append-only; original text is immutable)
	SaveRawCapture(ctx context.Context, agentID, text string, messageRef *int64, lat, lon *float64) (int64, error)
	GetRawCapture(ctx context.Context, id int64) (*model.RawCapture, error)
	ListUnprocessed(ctx context.Context) ([]model.RawCapture, error)
	MarkProcessed(ctx context.Context, rawID int64) error

	// Structured records
	GetStructured(ctx context.Context, id int64) (*model.JoinedRecord, error)
	GetStructuredByRawID(ctx context.Context, rawID int64) (*model.StructuredRecord, error)
	ListStructured(ctx context.Context, filter StructuredFilter) ([]model.StructuredRecord, error)
	// CreatePlaceholder inserts the empty pending record for rawID.
	// raw_id carries a uniqueness constraint and the insert ignores
	// conflicts, so concurrent reconcilers cannot create duplicates;
	// created reports whether this call inserted the row.
	CreatePlaceholder(ctx context.Context, rawID int64) (id int64, created bool, err error)
	ApplyExtraction(ctx context.Context, id int64, fields model.ExtractedFields, meta *model.ExtractionMetadata, status model.ExtractionStatus) error
	MarkExtractionError(ctx context.Context, id int64, msg string) error
	SetReviewed(ctx context.Context, id int64, reviewed bool) error
	ListForReview(ctx context.Context, confidenceThreshold float64) ([]model.StructuredRecord, error)

	// Pending work. ClaimPending atomically flips up to limit
	// pending-predicate rows to in_progress (ordered by id) and returns
	// them joined to their raw captures. ReleaseStaleClaims returns rows
	// stuck in in_progress longer than olderThan to pending.
	ClaimPending(ctx context.Context, limit int) ([]model.PendingItem, error)
	ReleaseStaleClaims(ctx context.Context, olderThan time.Duration) (int, error)

	// Aggregates and export
	Stats(ctx context.Context) (*model.Stats, error)
	ListJoined(ctx context.Context, limit int) ([]model.JoinedRecord, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// pendingPredicate is the shared SQL fragment selecting records that still
// need extraction: explicit pending (or legacy NULL status), error rows
// awaiting retry, plus legacy placeholders that predate the status column
// (both nome and telefone null, no terminal status). Completed and
// validation_failed rows stay claimed even when extraction yielded null
// nome and telefone. in_progress rows are excluded; the stale-claim sweep
// returns abandoned ones to pending.
const pendingPredicate = `(
	s.extraction_status IS NULL
	OR s.extraction_status IN ('pending', 'error')
	OR (s.nome IS NULL AND s.telefone IS NULL
		AND s.extraction_status NOT IN ('in_progress', 'completed', 'validation_failed', 'error'))
)`
