package extract

import (
	"context"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agenticlead/agenticlead/internal/config"
	"github.com/agenticlead/agenticlead/internal/model"
	"github.com/agenticlead/agenticlead/pkg/llm"
)

// scriptedClient returns canned responses in order, failing the test if
// called more often than scripted.
type scriptedClient struct {
	t         *testing.T
	responses []string
	errs      []error
	calls     int
	requests  []llm.Request
}

func (c *scriptedClient) Complete(_ context.Context, req llm.Request) (*llm.Response, error) {
	require.Less(c.t, c.calls, len(c.responses), "unexpected model call")
	i := c.calls
	c.calls++
	c.requests = append(c.requests, req)
	if c.errs[i] != nil {
		return nil, c.errs[i]
	}
	return &llm.Response{Text: c.responses[i]}, nil
}

func newScripted(t *testing.T, pairs ...any) *scriptedClient {
	t.Helper()
	c := &scriptedClient{t: t}
	for _, p := range pairs {
		switch v := p.(type) {
		case string:
			c.responses = append(c.responses, v)
			c.errs = append(c.errs, nil)
		case error:
			c.responses = append(c.responses, "")
			c.errs = append(c.errs, v)
		}
	}
	return c
}

func testLLMConfig() config.LLMConfig {
	return config.LLMConfig{
		Model:       "claude-haiku-4-5-20251001",
		TimeoutSecs: 5,
		MaxTokens:   1000,
		UseExamples: true,
	}
}

const validOutput = `{
	"data_contato": "2026-08-30",
	"hora_contato": "10:00",
	"nome": "Maria",
	"telefone": "+5511988887777",
	"bairro": "Centro",
	"referencia_local": null,
	"tipo_demanda": "GRAMA",
	"descricao_curta": "Mato alto na praça",
	"prioridade_percebida": "MEDIA",
	"consentimento_comunicacao": false,
	"confianca_campos": {"nome": 0.9, "telefone": 0.95}
}`

func TestExtractor_Success(t *testing.T) {
	client := newScripted(t, validOutput)
	e := New(client, testLLMConfig())

	ref := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	fields, meta, err := e.Extract(context.Background(), "Maria reclama do mato alto na praça do Centro", &ref)
	require.NoError(t, err)
	require.NotNil(t, meta)

	assert.Equal(t, model.ExtractionSuccess, meta.Status)
	assert.Equal(t, "claude-haiku-4-5-20251001", meta.Model)
	assert.True(t, meta.UsedExamples)
	require.NotNil(t, meta.Validation)
	assert.True(t, meta.Validation.Valid)
	assert.InDelta(t, 0.925, meta.Validation.GlobalConfidence, 0.001)

	require.NotNil(t, fields.Name)
	assert.Equal(t, "Maria", *fields.Name)
	assert.Nil(t, fields.LocationRef)
	require.NotNil(t, fields.Consent)
	assert.False(t, *fields.Consent)
	assert.InDelta(t, 0.9, fields.FieldConfidence["nome"], 0.0001)

	assert.Equal(t, 1, client.calls)
	assert.NotNil(t, client.requests[0].Temperature)
	assert.Zero(t, *client.requests[0].Temperature)
}

func TestExtractor_FencedOutput(t *testing.T) {
	client := newScripted(t, "```json\n"+validOutput+"\n```")
	e := New(client, testLLMConfig())

	fields, meta, err := e.Extract(context.Background(), "relato qualquer", nil)
	require.NoError(t, err)
	assert.Equal(t, model.ExtractionSuccess, meta.Status)
	require.NotNil(t, fields.Name)
	assert.Equal(t, "Maria", *fields.Name)
}

func TestExtractor_RepairRecoversMalformedOutput(t *testing.T) {
	client := newScripted(t, "not json at all", validOutput)
	e := New(client, testLLMConfig())

	fields, meta, err := e.Extract(context.Background(), "relato", nil)
	require.NoError(t, err)
	assert.Equal(t, model.ExtractionSuccess, meta.Status)
	require.NotNil(t, fields.Name)

	// Second call must be the repair prompt carrying the bad output.
	require.Equal(t, 2, client.calls)
	assert.Contains(t, client.requests[1].Messages[0].Content, "not json at all")
	assert.Contains(t, client.requests[1].System, "corrige JSON")
}

func TestExtractor_RepairFailureDegradesToEmptyFields(t *testing.T) {
	client := newScripted(t, "garbage", "still garbage")
	e := New(client, testLLMConfig())

	fields, meta, err := e.Extract(context.Background(), "relato", nil)
	require.NoError(t, err)
	assert.Equal(t, model.ExtractionError, meta.Status)
	assert.Contains(t, meta.ErrorMessage, "malformed model output after repair")
	assert.Nil(t, meta.Validation)
	assert.Nil(t, fields.Name)
	assert.Empty(t, fields.FieldConfidence)
	assert.Equal(t, 2, client.calls)
}

func TestExtractor_TransportErrorReportedInMetadata(t *testing.T) {
	client := newScripted(t, eris.New("connection refused"))
	e := New(client, testLLMConfig())

	fields, meta, err := e.Extract(context.Background(), "relato", nil)
	require.NoError(t, err)
	assert.Equal(t, model.ExtractionError, meta.Status)
	assert.Contains(t, meta.ErrorMessage, "connection refused")
	assert.Nil(t, fields.Name)
}

func TestExtractor_ValidationFailure(t *testing.T) {
	client := newScripted(t, `{"nome": "Maria", "tipo_demanda": "POSTE"}`)
	e := New(client, testLLMConfig())

	fields, meta, err := e.Extract(context.Background(), "relato", nil)
	require.NoError(t, err)
	assert.Equal(t, model.ExtractionValidationFailed, meta.Status)
	require.NotNil(t, meta.Validation)
	assert.False(t, meta.Validation.Valid)
	assert.NotEmpty(t, meta.Validation.Issues)
	// Fields are still persisted-worthy even when validation fails.
	require.NotNil(t, fields.Name)
	assert.Equal(t, "Maria", *fields.Name)
}

func TestExtractor_EmptyInput(t *testing.T) {
	e := New(newScripted(t), testLLMConfig())

	_, _, err := e.Extract(context.Background(), "   \n\t", nil)
	assert.ErrorIs(t, err, ErrEmptyInput)
}

func TestCleanJSON(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"plain", `{"a":1}`, `{"a":1}`},
		{"json fence", "```json\n{\"a\":1}\n```", `{"a":1}`},
		{"bare fence", "```\n{\"a\":1}\n```", `{"a":1}`},
		{"surrounding prose", `Aqui está o JSON: {"a":1} espero que ajude`, `{"a":1}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, cleanJSON(tc.in))
		})
	}
}
