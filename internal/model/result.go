package model

import "time"

// Extraction result statuses carried in metadata. Distinct from
// ExtractionStatus: these describe one extraction attempt, not the record.
const (
	ExtractionSuccess          = "success"
	ExtractionValidationFailed = "validation_failed"
	ExtractionError            = "error"
)

// MetadataSchemaVersion tags stored metadata blobs so future shapes can be
// parsed unambiguously.
const MetadataSchemaVersion = 1

// ValidationReport describes field-level quality of one extraction.
type ValidationReport struct {
	Valid            bool     `json:"valid"`
	Issues           []string `json:"issues"`
	GlobalConfidence float64  `json:"confianca_global"`
	FilledFields     int      `json:"campos_preenchidos"`
	TotalFields      int      `json:"total_campos"`
}

// ExtractionMetadata records how one extraction attempt went. Persisted as
// JSON on the structured record.
type ExtractionMetadata struct {
	SchemaVersion     int               `json:"schema_version"`
	Status            string            `json:"extraction_status"`
	ErrorMessage      string            `json:"error_message,omitempty"`
	ProcessingSeconds float64           `json:"processing_time_seconds"`
	Model             string            `json:"model_used"`
	PromptVersion     string            `json:"prompt_version"`
	UsedExamples      bool              `json:"use_examples"`
	Validation        *ValidationReport `json:"validation,omitempty"`
	InputLength       int               `json:"raw_text_length"`
	OutputLength      int               `json:"response_length"`
	CompletedAt       time.Time         `json:"timestamp"`
}

// ReconcileResult summarizes one reconciler pass.
type ReconcileResult struct {
	Created    int     `json:"created"`
	Errors     int     `json:"errors"`
	CreatedIDs []int64 `json:"created_ids"`
}

// ItemResult is the per-record outcome of a batch run.
type ItemResult struct {
	RawID        int64            `json:"raw_id"`
	StructuredID int64            `json:"structured_id"`
	Status       ExtractionStatus `json:"status"`
	Confidence   float64          `json:"confidence"`
	Seconds      float64          `json:"processing_time"`
	Error        string           `json:"error,omitempty"`
}

// BatchResult summarizes one orchestrator batch.
type BatchResult struct {
	Processed      int          `json:"processed"`
	Errors         int          `json:"errors"`
	Items          []ItemResult `json:"details"`
	TotalSeconds   float64      `json:"total_time"`
	AvgSecondsItem float64      `json:"avg_time_per_entry"`
}

// StepSummary is the per-step counts inside a pipeline result.
type StepSummary struct {
	Processed int `json:"processed"`
	Errors    int `json:"errors"`
}

// ExportSummary reports which export artifacts were regenerated.
type ExportSummary struct {
	XLSX bool `json:"xlsx"`
	CSV  bool `json:"csv"`
}

// PipelineResult is the caller-facing summary of one full pipeline run.
// Callers always get this, never a raw error, for pipeline-level failures
// contained below the reconcile/batch steps.
type PipelineResult struct {
	Success      bool          `json:"success"`
	Placeholders StepSummary   `json:"placeholders"`
	Extraction   StepSummary   `json:"llm_extraction"`
	Export       ExportSummary `json:"export"`
	TotalSeconds float64       `json:"total_time"`
	Message      string        `json:"message"`
}

// Stats is the system-wide coverage snapshot served by /stats.
type Stats struct {
	TotalRaw        int                      `json:"total_raw_entries"`
	TotalStructured int                      `json:"total_structured_entries"`
	Unprocessed     int                      `json:"unprocessed_entries"`
	Reviewed        int                      `json:"reviewed_entries"`
	CoveragePercent float64                  `json:"coverage_percent"`
	StatusCounts    map[ExtractionStatus]int `json:"status_counts,omitempty"`
	AvgConfidence   float64                  `json:"average_confidence"`
}

// PendingItem pairs a claimed structured record with its raw capture.
type PendingItem struct {
	Record StructuredRecord `json:"record"`
	Raw    RawCapture       `json:"raw"`
}

// JoinedRecord is one structured record with its raw capture, as served by
// the read API and consumed by the exporter.
type JoinedRecord struct {
	StructuredRecord
	Raw RawCapture `json:"raw_entry"`
}
