package store

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agenticlead/agenticlead/internal/model"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock for unit testing.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	return NewPostgresWithPool(mock), mock
}

func TestPostgresStore_SaveRawCapture(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`INSERT INTO raw_captures`).
		WithArgs(pgxmock.AnyArg(), "agente_07", "Bueiro entupido", (*float64)(nil), (*float64)(nil), (*int64)(nil)).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(7)))

	id, err := s.SaveRawCapture(context.Background(), "agente_07", "Bueiro entupido", nil, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(7), id)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetRawCapture_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT id, captured_at, agent_id, original_text`).
		WithArgs(int64(99)).
		WillReturnError(pgx.ErrNoRows)

	_, err := s.GetRawCapture(context.Background(), 99)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_CreatePlaceholder_New(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`ON CONFLICT \(raw_id\) DO NOTHING`).
		WithArgs(int64(3), model.SourceTypedText, string(model.StatusPending), pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(11)))

	id, created, err := s.CreatePlaceholder(context.Background(), 3)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, int64(11), id)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_CreatePlaceholder_Existing(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`ON CONFLICT \(raw_id\) DO NOTHING`).
		WithArgs(int64(3), model.SourceTypedText, string(model.StatusPending), pgxmock.AnyArg()).
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectQuery(`SELECT id FROM structured_records WHERE raw_id = \$1`).
		WithArgs(int64(3)).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(11)))

	id, created, err := s.CreatePlaceholder(context.Background(), 3)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, int64(11), id)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_MarkProcessed_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE raw_captures SET processed = true`).
		WithArgs(int64(5)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := s.MarkProcessed(context.Background(), 5)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_MarkExtractionError(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE structured_records SET`).
		WithArgs(string(model.StatusError), "timeout calling model", pgxmock.AnyArg(), int64(8)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	err := s.MarkExtractionError(context.Background(), 8, "timeout calling model")
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ClaimPending_Empty(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`UPDATE structured_records SET extraction_status`).
		WithArgs(string(model.StatusInProgress), pgxmock.AnyArg(), pgxmock.AnyArg(), 4).
		WillReturnRows(pgxmock.NewRows([]string{"id"}))

	items, err := s.ClaimPending(context.Background(), 4)
	require.NoError(t, err)
	assert.Empty(t, items)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ReleaseStaleClaims(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE structured_records`).
		WithArgs(string(model.StatusPending), string(model.StatusInProgress), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 2))

	n, err := s.ReleaseStaleClaims(context.Background(), 15*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SetReviewed(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE structured_records SET revisado`).
		WithArgs(true, int64(12)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	require.NoError(t, s.SetReviewed(context.Background(), 12, true))
	assert.NoError(t, mock.ExpectationsWereMet())
}
