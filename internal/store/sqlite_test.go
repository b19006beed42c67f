package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agenticlead/agenticlead/internal/model"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	require.NoError(t, s.Migrate(context.Background()))
	return s
}

func TestSQLiteStore_MigrateIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Migrate(context.Background()))
	require.NoError(t, s.Migrate(context.Background()))
}

func TestSQLiteStore_SaveAndGetRawCapture(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	lat := -23.55
	lon := -46.63
	ref := int64(42)
	id, err := s.SaveRawCapture(ctx, "agente_07", "Bueiro entupido na rua das Flores", &ref, &lat, &lon)
	require.NoError(t, err)
	assert.Positive(t, id)

	got, err := s.GetRawCapture(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "agente_07", got.AgentID)
	assert.Equal(t, "Bueiro entupido na rua das Flores", got.Text)
	require.NotNil(t, got.Latitude)
	assert.InDelta(t, -23.55, *got.Latitude, 0.001)
	require.NotNil(t, got.MessageRef)
	assert.Equal(t, int64(42), *got.MessageRef)
	assert.False(t, got.Processed)
}

func TestSQLiteStore_GetRawCapture_NotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.GetRawCapture(context.Background(), 999)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLiteStore_CreatePlaceholder_Idempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	rawID, err := s.SaveRawCapture(ctx, "a1", "Poste apagado", nil, nil, nil)
	require.NoError(t, err)

	id1, created1, err := s.CreatePlaceholder(ctx, rawID)
	require.NoError(t, err)
	assert.True(t, created1)

	id2, created2, err := s.CreatePlaceholder(ctx, rawID)
	require.NoError(t, err)
	assert.False(t, created2)
	assert.Equal(t, id1, id2)

	rec, err := s.GetStructuredByRawID(ctx, rawID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusPending, rec.Status)
	assert.Equal(t, model.SourceTypedText, rec.Source)
	assert.Nil(t, rec.Name)
	assert.Empty(t, rec.FieldConfidence)
	assert.Empty(t, rec.Flags)
}

func TestSQLiteStore_ListUnprocessed_SkipsReconciled(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id1, err := s.SaveRawCapture(ctx, "a1", "texto um", nil, nil, nil)
	require.NoError(t, err)
	id2, err := s.SaveRawCapture(ctx, "a1", "texto dois", nil, nil, nil)
	require.NoError(t, err)

	_, _, err = s.CreatePlaceholder(ctx, id1)
	require.NoError(t, err)

	raws, err := s.ListUnprocessed(ctx)
	require.NoError(t, err)
	require.Len(t, raws, 1)
	assert.Equal(t, id2, raws[0].ID)
}

func TestSQLiteStore_ClaimPending(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	var recIDs []int64
	for i := 0; i < 3; i++ {
		rawID, err := s.SaveRawCapture(ctx, "a1", "relato", nil, nil, nil)
		require.NoError(t, err)
		id, _, err := s.CreatePlaceholder(ctx, rawID)
		require.NoError(t, err)
		recIDs = append(recIDs, id)
	}

	items, err := s.ClaimPending(ctx, 2)
	require.NoError(t, err)
	require.Len(t, items, 2)
	// Lowest ids first.
	assert.Equal(t, recIDs[0], items[0].Record.ID)
	assert.Equal(t, recIDs[1], items[1].Record.ID)
	assert.Equal(t, model.StatusInProgress, items[0].Record.Status)
	assert.NotNil(t, items[0].Record.ClaimToken)
	assert.Equal(t, "relato", items[0].Raw.Text)

	// A second claim must not hand out the in_progress rows again.
	items2, err := s.ClaimPending(ctx, 10)
	require.NoError(t, err)
	require.Len(t, items2, 1)
	assert.Equal(t, recIDs[2], items2[0].Record.ID)

	items3, err := s.ClaimPending(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, items3)
}

func TestSQLiteStore_ClaimPending_SkipsCompletedWithNullFields(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	rawID, err := s.SaveRawCapture(ctx, "a1", "relato sem nome nem telefone", nil, nil, nil)
	require.NoError(t, err)
	id, _, err := s.CreatePlaceholder(ctx, rawID)
	require.NoError(t, err)

	// Extraction legitimately found neither nome nor telefone.
	meta := &model.ExtractionMetadata{
		SchemaVersion: model.MetadataSchemaVersion,
		Status:        model.ExtractionSuccess,
		Validation:    &model.ValidationReport{Valid: true, GlobalConfidence: 0.8},
		CompletedAt:   time.Now().UTC(),
	}
	require.NoError(t, s.ApplyExtraction(ctx, id, model.EmptyFields(), meta, model.StatusCompleted))

	items, err := s.ClaimPending(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, items)

	rec, err := s.GetStructuredByRawID(ctx, rawID)
	require.NoError(t, err)
	assert.Equal(t, 1, rec.Attempts)
}

func TestSQLiteStore_ClaimPending_RetriesErrorRecords(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	rawID, err := s.SaveRawCapture(ctx, "a1", "relato", nil, nil, nil)
	require.NoError(t, err)
	id, _, err := s.CreatePlaceholder(ctx, rawID)
	require.NoError(t, err)

	require.NoError(t, s.MarkExtractionError(ctx, id, "timeout calling model"))

	items, err := s.ClaimPending(ctx, 10)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, id, items[0].Record.ID)
}

func TestSQLiteStore_ReleaseStaleClaims(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	rawID, err := s.SaveRawCapture(ctx, "a1", "relato", nil, nil, nil)
	require.NoError(t, err)
	_, _, err = s.CreatePlaceholder(ctx, rawID)
	require.NoError(t, err)

	items, err := s.ClaimPending(ctx, 1)
	require.NoError(t, err)
	require.Len(t, items, 1)

	// Fresh claim is not stale.
	n, err := s.ReleaseStaleClaims(ctx, time.Hour)
	require.NoError(t, err)
	assert.Zero(t, n)

	// Zero timeout makes every claim stale.
	n, err = s.ReleaseStaleClaims(ctx, -time.Second)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	items, err = s.ClaimPending(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, items, 1)
}

func TestSQLiteStore_ApplyExtraction(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	rawID, err := s.SaveRawCapture(ctx, "a1", "Maria, mato alto, Jardim Azul", nil, nil, nil)
	require.NoError(t, err)
	id, _, err := s.CreatePlaceholder(ctx, rawID)
	require.NoError(t, err)

	name := "Maria"
	demand := "GRAMA"
	fields := model.EmptyFields()
	fields.Name = &name
	fields.DemandType = &demand
	fields.FieldConfidence = map[string]float64{"nome": 0.9, "tipo_demanda": 0.95}

	meta := &model.ExtractionMetadata{
		SchemaVersion: model.MetadataSchemaVersion,
		Status:        model.ExtractionSuccess,
		Model:         "claude-haiku-4-5-20251001",
		Validation: &model.ValidationReport{
			Valid:            true,
			GlobalConfidence: 0.925,
			TotalFields:      len(model.RequiredFields),
		},
		CompletedAt: time.Now().UTC(),
	}

	require.NoError(t, s.ApplyExtraction(ctx, id, fields, meta, model.StatusCompleted))

	rec, err := s.GetStructuredByRawID(ctx, rawID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, rec.Status)
	require.NotNil(t, rec.Name)
	assert.Equal(t, "Maria", *rec.Name)
	require.NotNil(t, rec.GlobalConfidence)
	assert.InDelta(t, 0.925, *rec.GlobalConfidence, 0.0001)
	assert.Equal(t, 1, rec.Attempts)
	assert.Nil(t, rec.ClaimToken)
	require.NotNil(t, rec.Metadata)
	assert.Equal(t, model.ExtractionSuccess, rec.Metadata.Status)
	assert.Equal(t, model.MetadataSchemaVersion, rec.Metadata.SchemaVersion)
	assert.InDelta(t, 0.9, rec.FieldConfidence["nome"], 0.0001)
}

func TestSQLiteStore_MarkExtractionError(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	rawID, err := s.SaveRawCapture(ctx, "a1", "relato", nil, nil, nil)
	require.NoError(t, err)
	id, _, err := s.CreatePlaceholder(ctx, rawID)
	require.NoError(t, err)

	require.NoError(t, s.MarkExtractionError(ctx, id, "timeout calling model"))

	rec, err := s.GetStructuredByRawID(ctx, rawID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusError, rec.Status)
	require.NotNil(t, rec.ErrorMsg)
	assert.Equal(t, "timeout calling model", *rec.ErrorMsg)
	assert.Equal(t, 1, rec.Attempts)
	assert.Nil(t, rec.GlobalConfidence)
}

func TestSQLiteStore_ListStructuredFilters(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		rawID, err := s.SaveRawCapture(ctx, "a1", "relato", nil, nil, nil)
		require.NoError(t, err)
		_, _, err = s.CreatePlaceholder(ctx, rawID)
		require.NoError(t, err)
	}

	all, err := s.ListStructured(ctx, StructuredFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 3)

	require.NoError(t, s.SetReviewed(ctx, all[0].ID, true))

	reviewed := true
	got, err := s.ListStructured(ctx, StructuredFilter{Reviewed: &reviewed})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, all[0].ID, got[0].ID)

	pending, err := s.ListStructured(ctx, StructuredFilter{Status: model.StatusPending, Limit: 1})
	require.NoError(t, err)
	assert.Len(t, pending, 1)
}

func TestSQLiteStore_ListForReview(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	mkRecord := func(conf float64, status model.ExtractionStatus) int64 {
		rawID, err := s.SaveRawCapture(ctx, "a1", "relato", nil, nil, nil)
		require.NoError(t, err)
		id, _, err := s.CreatePlaceholder(ctx, rawID)
		require.NoError(t, err)
		meta := &model.ExtractionMetadata{
			Validation: &model.ValidationReport{GlobalConfidence: conf},
		}
		require.NoError(t, s.ApplyExtraction(ctx, id, model.EmptyFields(), meta, status))
		return id
	}

	low := mkRecord(0.3, model.StatusCompleted)
	mkRecord(0.95, model.StatusCompleted)
	failed := mkRecord(0.9, model.StatusValidationFailed)

	queue, err := s.ListForReview(ctx, 0.7)
	require.NoError(t, err)
	require.Len(t, queue, 2)
	assert.Equal(t, low, queue[0].ID)
	assert.Equal(t, failed, queue[1].ID)

	require.NoError(t, s.SetReviewed(ctx, low, true))
	queue, err = s.ListForReview(ctx, 0.7)
	require.NoError(t, err)
	require.Len(t, queue, 1)
	assert.Equal(t, failed, queue[0].ID)
}

func TestSQLiteStore_Stats(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		rawID, err := s.SaveRawCapture(ctx, "a1", "relato", nil, nil, nil)
		require.NoError(t, err)
		if i < 2 {
			id, _, err := s.CreatePlaceholder(ctx, rawID)
			require.NoError(t, err)
			meta := &model.ExtractionMetadata{
				Validation: &model.ValidationReport{GlobalConfidence: 0.8},
			}
			require.NoError(t, s.ApplyExtraction(ctx, id, model.EmptyFields(), meta, model.StatusCompleted))
		}
	}

	st, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, st.TotalRaw)
	assert.Equal(t, 2, st.TotalStructured)
	assert.Equal(t, 2, st.Unprocessed)
	assert.Zero(t, st.Reviewed)
	assert.InDelta(t, 50.0, st.CoveragePercent, 0.001)
	assert.Equal(t, 2, st.StatusCounts[model.StatusCompleted])
	assert.InDelta(t, 0.8, st.AvgConfidence, 0.0001)
}

func TestSQLiteStore_GetStructuredJoined(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	rawID, err := s.SaveRawCapture(ctx, "agente_03", "Árvore caída na praça", nil, nil, nil)
	require.NoError(t, err)
	id, _, err := s.CreatePlaceholder(ctx, rawID)
	require.NoError(t, err)

	j, err := s.GetStructured(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, rawID, j.Raw.ID)
	assert.Equal(t, "Árvore caída na praça", j.Raw.Text)
	assert.Equal(t, "agente_03", j.Raw.AgentID)

	_, err = s.GetStructured(ctx, id+100)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLiteStore_ListJoined(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		rawID, err := s.SaveRawCapture(ctx, "a1", "relato", nil, nil, nil)
		require.NoError(t, err)
		_, _, err = s.CreatePlaceholder(ctx, rawID)
		require.NoError(t, err)
	}

	all, err := s.ListJoined(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	limited, err := s.ListJoined(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}

func TestSQLiteStore_MarkProcessed(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	rawID, err := s.SaveRawCapture(ctx, "a1", "relato", nil, nil, nil)
	require.NoError(t, err)
	require.NoError(t, s.MarkProcessed(ctx, rawID))

	got, err := s.GetRawCapture(ctx, rawID)
	require.NoError(t, err)
	assert.True(t, got.Processed)

	assert.ErrorIs(t, s.MarkProcessed(ctx, rawID+99), ErrNotFound)
}
