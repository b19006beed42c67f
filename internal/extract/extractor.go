// Package extract turns raw report text into structured fields via the
// model endpoint. Failures are contained here: everything except blank
// input is reported through extraction metadata, never as an error.
package extract

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/agenticlead/agenticlead/internal/config"
	"github.com/agenticlead/agenticlead/internal/model"
	"github.com/agenticlead/agenticlead/internal/prompt"
	"github.com/agenticlead/agenticlead/pkg/llm"
)

// ErrEmptyInput rejects blank text before any I/O happens.
var ErrEmptyInput = eris.New("extract: empty input text")

// Extractor calls the model endpoint and reconciles its output into a
// validated field set plus run metadata. At most two upstream calls happen
// per input: the extraction call and one JSON-repair call.
type Extractor struct {
	client llm.Client
	cfg    config.LLMConfig
}

// New creates an Extractor. The client is expected to be rate limited
// already (see llm.RateLimited).
func New(client llm.Client, cfg config.LLMConfig) *Extractor {
	return &Extractor{client: client, cfg: cfg}
}

// Extract derives structured fields from rawText. ref resolves relative
// date phrases; nil means "now". The returned error is non-nil only for
// blank input — transport failures, malformed output and validation
// problems are all reported via the metadata status.
func (e *Extractor) Extract(ctx context.Context, rawText string, ref *time.Time) (model.ExtractedFields, *model.ExtractionMetadata, error) {
	if strings.TrimSpace(rawText) == "" {
		return model.EmptyFields(), nil, ErrEmptyInput
	}

	start := time.Now()
	meta := &model.ExtractionMetadata{
		SchemaVersion: model.MetadataSchemaVersion,
		Model:         e.cfg.Model,
		PromptVersion: prompt.Version,
		UsedExamples:  e.cfg.UseExamples,
		InputLength:   len(rawText),
	}

	var userPrompt string
	if e.cfg.UseExamples {
		userPrompt = prompt.BuildWithExamples(rawText, ref)
	} else {
		userPrompt = prompt.Build(rawText, ref)
	}

	zap.L().Info("extract: calling model", zap.Int("text_len", len(rawText)))

	responseText, err := e.complete(ctx, prompt.System, userPrompt)
	if err != nil {
		zap.L().Error("extract: model call failed", zap.Error(err))
		meta.Status = model.ExtractionError
		meta.ErrorMessage = err.Error()
		e.finish(meta, start)
		return model.EmptyFields(), meta, nil
	}
	meta.OutputLength = len(responseText)

	data, parseErr := parseObject(responseText)
	if parseErr != nil {
		zap.L().Warn("extract: malformed model output, attempting repair", zap.Error(parseErr))
		data, parseErr = e.repair(ctx, rawText, responseText)
		if parseErr != nil {
			zap.L().Error("extract: repair failed, degrading to empty fields", zap.Error(parseErr))
			meta.Status = model.ExtractionError
			meta.ErrorMessage = "malformed model output after repair: " + parseErr.Error()
			e.finish(meta, start)
			return model.EmptyFields(), meta, nil
		}
	}

	report := Validate(data)
	if report.Valid {
		meta.Status = model.ExtractionSuccess
	} else {
		meta.Status = model.ExtractionValidationFailed
	}
	meta.Validation = report
	e.finish(meta, start)

	zap.L().Info("extract: done",
		zap.String("status", meta.Status),
		zap.Float64("elapsed_s", meta.ProcessingSeconds),
		zap.Float64("confidence", report.GlobalConfidence),
	)

	return fieldsFromMap(data), meta, nil
}

// complete runs one model call with the configured timeout, temperature 0
// and max output size.
func (e *Extractor) complete(ctx context.Context, system, user string) (string, error) {
	timeout := time.Duration(e.cfg.TimeoutSecs) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	resp, err := e.client.Complete(callCtx, llm.Request{
		Model:       e.cfg.Model,
		MaxTokens:   e.maxTokens(),
		System:      system,
		Messages:    []llm.Message{{Role: "user", Content: user}},
		Temperature: llm.Temperature(0),
	})
	if err != nil {
		return "", err
	}
	return resp.Text, nil
}

// repair issues the single correction call for malformed output.
func (e *Extractor) repair(ctx context.Context, rawText, invalid string) (map[string]any, error) {
	text, err := e.complete(ctx, prompt.RepairSystem, prompt.Repair(rawText, invalid))
	if err != nil {
		return nil, err
	}
	return parseObject(text)
}

func (e *Extractor) maxTokens() int64 {
	if e.cfg.MaxTokens > 0 {
		return e.cfg.MaxTokens
	}
	return 1000
}

func (e *Extractor) finish(meta *model.ExtractionMetadata, start time.Time) {
	meta.ProcessingSeconds = time.Since(start).Seconds()
	meta.CompletedAt = time.Now().UTC()
}

// parseObject extracts a JSON object from model output that may carry
// markdown fences or prose around it.
func parseObject(text string) (map[string]any, error) {
	cleaned := cleanJSON(text)
	var data map[string]any
	if err := json.Unmarshal([]byte(cleaned), &data); err != nil {
		return nil, eris.Wrap(err, "extract: parse model output")
	}
	return data, nil
}

// cleanJSON attempts to extract a JSON object from text that may contain
// markdown code fences or other wrapping.
func cleanJSON(text string) string {
	text = strings.TrimSpace(text)

	// Strip markdown code fences.
	if strings.HasPrefix(text, "```json") {
		text = strings.TrimPrefix(text, "```json")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	} else if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	}

	// Find first { and last }.
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start >= 0 && end > start {
		text = text[start : end+1]
	}

	return strings.TrimSpace(text)
}

// fieldsFromMap coerces a parsed extraction object into the typed field
// set, tolerating wrong-typed values by dropping them to null rather than
// failing the whole extraction.
func fieldsFromMap(data map[string]any) model.ExtractedFields {
	f := model.EmptyFields()
	f.ContactDate = strField(data, "data_contato")
	f.ContactTime = strField(data, "hora_contato")
	f.Name = strField(data, "nome")
	f.Phone = strField(data, "telefone")
	f.Neighborhood = strField(data, "bairro")
	f.LocationRef = strField(data, "referencia_local")
	f.DemandType = strField(data, "tipo_demanda")
	f.ShortDescription = strField(data, "descricao_curta")
	f.Priority = strField(data, "prioridade_percebida")
	if b, ok := data["consentimento_comunicacao"].(bool); ok {
		f.Consent = &b
	}
	if m := confidenceMap(data["confianca_campos"]); m != nil {
		f.FieldConfidence = m
	}
	return f
}

func strField(data map[string]any, key string) *string {
	if s, ok := data[key].(string); ok && s != "" {
		return &s
	}
	return nil
}
