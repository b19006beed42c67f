package extract

import (
	"fmt"
	"math"

	"github.com/agenticlead/agenticlead/internal/model"
)

// Validate checks a parsed extraction object for field-level
// well-formedness. Missing required fields and enum mismatches accumulate
// as issues; issues never stop the extraction from being recorded.
//
// The aggregate confidence is the arithmetic mean of the per-field
// confidence values. An empty map yields exactly 0.5: a neutral default,
// chosen so records the model returned without self-assessment sort
// between confident extractions and known-bad ones.
func Validate(data map[string]any) *model.ValidationReport {
	var issues []string

	for _, field := range model.RequiredFields {
		if _, ok := data[field]; !ok {
			issues = append(issues, fmt.Sprintf("Campo '%s' ausente", field))
		}
	}

	if v, ok := data["tipo_demanda"].(string); ok && v != "" && !model.ValidDemandType(v) {
		issues = append(issues, fmt.Sprintf("tipo_demanda inválido: %s", v))
	}
	if v, ok := data["prioridade_percebida"].(string); ok && v != "" && !model.ValidPriority(v) {
		issues = append(issues, fmt.Sprintf("prioridade_percebida inválida: %s", v))
	}

	confidences := confidenceMap(data["confianca_campos"])
	global := 0.5
	if len(confidences) > 0 {
		sum := 0.0
		for _, c := range confidences {
			sum += c
		}
		global = sum / float64(len(confidences))
	}

	filled := 0
	for _, v := range data {
		if v != nil {
			filled++
		}
	}

	return &model.ValidationReport{
		Valid:            len(issues) == 0,
		Issues:           issues,
		GlobalConfidence: round3(global),
		FilledFields:     filled,
		TotalFields:      len(model.RequiredFields),
	}
}

// confidenceMap coerces the raw confianca_campos value into a float map,
// dropping entries that are not numbers.
func confidenceMap(v any) map[string]float64 {
	raw, ok := v.(map[string]any)
	if !ok {
		return nil
	}
	out := make(map[string]float64, len(raw))
	for k, val := range raw {
		if f, fok := toFloat64(val); fok {
			out[k] = f
		}
	}
	return out
}

// toFloat64 attempts to convert an any value to float64.
func toFloat64(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

func round3(f float64) float64 {
	return math.Round(f*1000) / 1000
}
