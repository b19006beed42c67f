package model

import "time"

// ExtractionStatus tracks a structured record through the pipeline.
type ExtractionStatus string

const (
	StatusPending          ExtractionStatus = "pending"
	StatusInProgress       ExtractionStatus = "in_progress"
	StatusCompleted        ExtractionStatus = "completed"
	StatusValidationFailed ExtractionStatus = "validation_failed"
	StatusError            ExtractionStatus = "error"
)

// SourceTypedText is the default source tag for chat-typed reports.
const SourceTypedText = "texto_digitado"

// ExtractedFields is the structured field set derived from one report.
// JSON keys are the wire format shared with the model prompt, so they stay
// in Portuguese; a missing value is null, never guessed.
type ExtractedFields struct {
	ContactDate      *string            `json:"data_contato"`
	ContactTime      *string            `json:"hora_contato"`
	Name             *string            `json:"nome"`
	Phone            *string            `json:"telefone"`
	Neighborhood     *string            `json:"bairro"`
	LocationRef      *string            `json:"referencia_local"`
	DemandType       *string            `json:"tipo_demanda"`
	ShortDescription *string            `json:"descricao_curta"`
	Priority         *string            `json:"prioridade_percebida"`
	Consent          *bool              `json:"consentimento_comunicacao"`
	FieldConfidence  map[string]float64 `json:"confianca_campos"`
}

// EmptyFields returns an all-null field set with an empty confidence map.
// Used for placeholders and as the degraded fallback after a failed repair.
func EmptyFields() ExtractedFields {
	return ExtractedFields{FieldConfidence: map[string]float64{}}
}

// StructuredRecord is the extracted counterpart of exactly one RawCapture.
type StructuredRecord struct {
	ID    int64 `json:"id"`
	RawID int64 `json:"raw_id"`

	ExtractedFields

	Source           string              `json:"fonte"`
	GlobalConfidence *float64            `json:"confianca_global"`
	Flags            []string            `json:"flags"`
	Reviewed         bool                `json:"reviewed"`
	Status           ExtractionStatus    `json:"extraction_status"`
	ErrorMsg         *string             `json:"error_msg,omitempty"`
	Metadata         *ExtractionMetadata `json:"metadata,omitempty"`
	Attempts         int                 `json:"attempts"`
	ProcessedAt      time.Time           `json:"processed_at"`
	ClaimToken       *string             `json:"-"`
	ClaimedAt        *time.Time          `json:"-"`
}

// RequiredFields is the fixed field set every extraction must cover.
// Authoritative for both the prompt rules and the validator.
var RequiredFields = []string{
	"data_contato", "hora_contato", "nome", "telefone", "bairro",
	"referencia_local", "tipo_demanda", "descricao_curta",
	"prioridade_percebida", "consentimento_comunicacao", "confianca_campos",
}

// DemandTypes enumerates valid tipo_demanda values.
var DemandTypes = []string{
	"ARVORE", "BUEIRO", "GRAMA", "ILUMINACAO", "LIMPEZA", "SEGURANCA", "OUTRO",
}

// Priorities enumerates valid prioridade_percebida values.
var Priorities = []string{"ALTA", "MEDIA", "BAIXA"}

// ValidDemandType reports whether s is a member of DemandTypes.
func ValidDemandType(s string) bool {
	for _, t := range DemandTypes {
		if s == t {
			return true
		}
	}
	return false
}

// ValidPriority reports whether s is a member of Priorities.
func ValidPriority(s string) bool {
	for _, p := range Priorities {
		if s == p {
			return true
		}
	}
	return false
}
