package prompt

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuild_IsDeterministic(t *testing.T) {
	ref := time.Date(2026, 8, 30, 14, 0, 0, 0, time.UTC)
	a := Build("Bueiro entupido na rua A", &ref)
	b := Build("Bueiro entupido na rua A", &ref)
	assert.Equal(t, a, b)
}

func TestBuild_ContainsRawTextAndReference(t *testing.T) {
	ref := time.Date(2026, 8, 30, 14, 0, 0, 0, time.UTC)
	p := Build("Árvore caída na praça", &ref)

	assert.Contains(t, p, "Árvore caída na praça")
	assert.Contains(t, p, "2026-08-30T14:00:00Z")
	assert.Contains(t, p, "tipo_demanda")
	assert.Contains(t, p, "ARVORE, BUEIRO, GRAMA, ILUMINACAO, LIMPEZA, SEGURANCA, OUTRO")
	assert.Contains(t, p, "confianca_campos")
}

func TestBuild_NilReferenceUsesNow(t *testing.T) {
	p := Build("relato", nil)
	year := time.Now().UTC().Format("2006")
	assert.Contains(t, p, year)
}

func TestBuildWithExamples_RendersAllExamples(t *testing.T) {
	ref := time.Date(2026, 8, 30, 14, 0, 0, 0, time.UTC)
	p := BuildWithExamples("Poste queimado", &ref)

	for i := range Examples() {
		assert.Contains(t, p, "EXEMPLO "+string(rune('1'+i))+":")
	}
	assert.Contains(t, p, "Poste queimado")
	assert.True(t, strings.HasSuffix(p, "formato dos exemplos:"))

	// Deterministic: embedded example output must render identically.
	assert.Equal(t, p, BuildWithExamples("Poste queimado", &ref))
}

func TestRepair_CarriesOriginalAndInvalidOutput(t *testing.T) {
	p := Repair("texto original do relato", `{"nome": sem aspas}`)

	assert.Contains(t, p, "texto original do relato")
	assert.Contains(t, p, `{"nome": sem aspas}`)
	assert.Contains(t, p, "JSON corrigido:")
}

func TestExamples_Embedded(t *testing.T) {
	exs := Examples()
	require.Len(t, exs, 3)
	for _, ex := range exs {
		assert.NotEmpty(t, ex.Input)
		assert.Contains(t, ex.Output, "tipo_demanda")
		assert.Contains(t, ex.Output, "confianca_campos")
	}
}

func TestMetadata(t *testing.T) {
	m := Metadata()
	assert.Equal(t, Version, m.Version)
	assert.Equal(t, len(Examples()), m.ExampleCount)
	assert.Contains(t, m.SupportedTypes, "BUEIRO")
	assert.Contains(t, m.SupportedPriorities, "ALTA")
}
