// Package prompt builds model-ready instruction payloads for field
// extraction. Building is pure: no I/O, no side effects; identical inputs
// produce identical output except for the reference-timestamp substitution.
package prompt

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Version identifies the prompt revision recorded in extraction metadata.
const Version = "v1.0"

// System is the system prompt sent with every extraction call.
const System = `Você é um extrator de dados especializado em demandas públicas.

Recebe texto livre descrevendo contatos entre agentes públicos e cidadãos.
Extraia os campos solicitados e responda EXCLUSIVAMENTE com JSON válido UTF-8, sem comentários ou explicações.

IMPORTANTE: Se um campo não tiver evidência explícita no texto, use null.`

// RepairSystem is the system prompt for the single JSON-repair retry.
const RepairSystem = "Você corrige JSON inválido. Responda APENAS com JSON válido."

const rulesAndFormat = `REGRAS DE EXTRAÇÃO:
1. Se não houver evidência explícita de um campo, use null
2. Data/hora: Se mencionada ("hoje", "agora", "ontem") use referência %s
3. tipo_demanda: ARVORE, BUEIRO, GRAMA, ILUMINACAO, LIMPEZA, SEGURANCA, OUTRO
4. Telefone: extrair dígitos; se brasileiro sem DDI, prefixar +55
5. consentimento_comunicacao: true SOMENTE se texto indicar ("quer receber", "pode avisar")
6. prioridade_percebida: "ALTA" se urgência/risco, "MEDIA" se moderado, "BAIXA" caso contrário
7. descricao_curta: resumo objetivo máximo 120 caracteres

FORMATO DE SAÍDA JSON:
{
  "data_contato": "YYYY-MM-DD",
  "hora_contato": "HH:MM",
  "nome": "...",
  "telefone": "...",
  "bairro": "...",
  "referencia_local": "...",
  "tipo_demanda": "...",
  "descricao_curta": "...",
  "prioridade_percebida": "...",
  "consentimento_comunicacao": true/false,
  "confianca_campos": {
     "nome": 0.95,
     "telefone": 0.90,
     "bairro": 0.85,
     "tipo_demanda": 0.98
  }
}`

// Meta describes the prompt revision for metadata and dashboards.
type Meta struct {
	Version             string   `json:"version"`
	ExampleCount        int      `json:"few_shot_examples"`
	SupportedTypes      []string `json:"supported_types"`
	SupportedPriorities []string `json:"supported_priorities"`
}

// Metadata returns the current prompt revision descriptor.
func Metadata() Meta {
	return Meta{
		Version:      Version,
		ExampleCount: len(examples),
		SupportedTypes: []string{
			"ARVORE", "BUEIRO", "GRAMA", "ILUMINACAO", "LIMPEZA", "SEGURANCA", "OUTRO",
		},
		SupportedPriorities: []string{"ALTA", "MEDIA", "BAIXA"},
	}
}

// referenceOrNow resolves the optional reference timestamp used for
// relative date phrases ("hoje", "ontem").
func referenceOrNow(ref *time.Time) string {
	if ref == nil {
		return time.Now().UTC().Format(time.RFC3339)
	}
	return ref.UTC().Format(time.RFC3339)
}

// Build returns the plain extraction prompt: rules, output format and the
// caller's raw text, without worked examples.
func Build(rawText string, ref *time.Time) string {
	var b strings.Builder
	b.WriteString("Texto bruto:\n\"\"\"\n")
	b.WriteString(rawText)
	b.WriteString("\n\"\"\"\n\n")
	fmt.Fprintf(&b, rulesAndFormat, referenceOrNow(ref))
	return b.String()
}

// BuildWithExamples returns the extraction prompt preceded by the worked
// input→output examples.
func BuildWithExamples(rawText string, ref *time.Time) string {
	var b strings.Builder
	b.WriteString("Você deve extrair dados estruturados de relatos de demandas públicas.\n")

	for i, ex := range examples {
		out, _ := json.Marshal(ex.Output) // map keys marshal in sorted order, so output is stable
		fmt.Fprintf(&b, "\nEXEMPLO %d:\nEntrada: %q\nSaída: %s\n", i+1, ex.Input, out)
	}

	b.WriteString("\nAGORA EXTRAIA DOS DADOS ABAIXO:\n\nTexto bruto:\n\"\"\"\n")
	b.WriteString(rawText)
	b.WriteString("\n\"\"\"\n\n")
	fmt.Fprintf(&b, "Referência temporal: %s\n\n", referenceOrNow(ref))
	b.WriteString("Responda APENAS com JSON válido seguindo o mesmo formato dos exemplos:")
	return b.String()
}

// Repair returns the correction prompt sent after a malformed response. It
// carries the original text and the invalid output and asks only for
// corrected JSON.
func Repair(rawText, invalidOutput string) string {
	return fmt.Sprintf(`O JSON anterior está inválido. Corrija e retorne SOMENTE o JSON válido, sem explicações:

Texto original: %s

Resposta anterior com erro: %s

JSON corrigido:`, rawText, invalidOutput)
}
