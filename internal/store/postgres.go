package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/agenticlead/agenticlead/internal/db"
	"github.com/agenticlead/agenticlead/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}
	pgxCfg.MaxConns = 10
	pgxCfg.MinConns = 2
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// NewPostgresWithPool wraps an existing pool. Used by tests to substitute
// pgxmock.
func NewPostgresWithPool(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

var postgresMigrations = []migration{
	{1, "initial_schema", `
CREATE TABLE raw_captures (
	id            BIGSERIAL PRIMARY KEY,
	captured_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	agent_id      TEXT NOT NULL DEFAULT '',
	original_text TEXT NOT NULL,
	latitude      DOUBLE PRECISION,
	longitude     DOUBLE PRECISION,
	message_ref   BIGINT,
	processed     BOOLEAN NOT NULL DEFAULT false
);

CREATE TABLE structured_records (
	id                        BIGSERIAL PRIMARY KEY,
	raw_id                    BIGINT NOT NULL UNIQUE REFERENCES raw_captures(id),
	data_contato              TEXT,
	hora_contato              TEXT,
	nome                      TEXT,
	telefone                  TEXT,
	bairro                    TEXT,
	referencia_local          TEXT,
	tipo_demanda              TEXT,
	descricao_curta           TEXT,
	prioridade_percebida      TEXT,
	consentimento_comunicacao BOOLEAN,
	fonte                     TEXT NOT NULL DEFAULT 'texto_digitado',
	confianca_global          DOUBLE PRECISION,
	flags                     JSONB NOT NULL DEFAULT '[]',
	confianca_campos          JSONB NOT NULL DEFAULT '{}',
	revisado                  BOOLEAN NOT NULL DEFAULT false,
	extraction_status         TEXT NOT NULL DEFAULT 'pending',
	error_msg                 TEXT,
	metadata                  JSONB,
	attempts                  INTEGER NOT NULL DEFAULT 0,
	processed_at              TIMESTAMPTZ NOT NULL DEFAULT now(),
	claim_token               TEXT,
	claimed_at                TIMESTAMPTZ
);

CREATE INDEX idx_raw_captures_processed ON raw_captures(processed);
CREATE INDEX idx_structured_status ON structured_records(extraction_status);
CREATE INDEX idx_structured_revisado ON structured_records(revisado);
`},
}

// Migrate applies pending schema migrations in version order, recording each
// in schema_migrations so reruns are no-ops.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS schema_migrations (
	version    INTEGER PRIMARY KEY,
	name       TEXT NOT NULL,
	applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`)
	if err != nil {
		return eris.Wrap(err, "postgres: create schema_migrations")
	}

	var current int
	if err := s.pool.QueryRow(ctx,
		`SELECT COALESCE(MAX(version), 0) FROM schema_migrations`,
	).Scan(&current); err != nil {
		return eris.Wrap(err, "postgres: read schema version")
	}

	for _, m := range postgresMigrations {
		if m.Version <= current {
			continue
		}
		if _, err := s.pool.Exec(ctx, m.SQL); err != nil {
			return eris.Wrapf(err, "postgres: apply migration %d (%s)", m.Version, m.Name)
		}
		if _, err := s.pool.Exec(ctx,
			`INSERT INTO schema_migrations (version, name) VALUES ($1, $2)`,
			m.Version, m.Name,
		); err != nil {
			return eris.Wrapf(err, "postgres: record migration %d", m.Version)
		}
	}
	return nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.pool.Ping(ctx), "postgres: ping")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) SaveRawCapture(ctx context.Context, agentID, text string, messageRef *int64, lat, lon *float64) (int64, error) {
	var id int64
	err := s.pool.QueryRow(ctx,
		`INSERT INTO raw_captures (captured_at, agent_id, original_text, latitude, longitude, message_ref)
		 VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`,
		time.Now().UTC(), agentID, text, lat, lon, messageRef,
	).Scan(&id)
	return id, eris.Wrap(err, "postgres: insert raw capture")
}

func (s *PostgresStore) GetRawCapture(ctx context.Context, id int64) (*model.RawCapture, error) {
	var r model.RawCapture
	err := s.pool.QueryRow(ctx,
		`SELECT id, captured_at, agent_id, original_text, latitude, longitude, message_ref, processed
		 FROM raw_captures WHERE id = $1`, id,
	).Scan(&r.ID, &r.CapturedAt, &r.AgentID, &r.Text, &r.Latitude, &r.Longitude, &r.MessageRef, &r.Processed)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get raw capture %d", id)
	}
	return &r, nil
}

func (s *PostgresStore) ListUnprocessed(ctx context.Context) ([]model.RawCapture, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT r.id, r.captured_at, r.agent_id, r.original_text, r.latitude, r.longitude, r.message_ref, r.processed
		 FROM raw_captures r
		 WHERE NOT EXISTS (SELECT 1 FROM structured_records s WHERE s.raw_id = r.id)
		 ORDER BY r.id`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list unprocessed")
	}
	defer rows.Close()

	var out []model.RawCapture
	for rows.Next() {
		var r model.RawCapture
		if err := rows.Scan(&r.ID, &r.CapturedAt, &r.AgentID, &r.Text, &r.Latitude, &r.Longitude, &r.MessageRef, &r.Processed); err != nil {
			return nil, eris.Wrap(err, "postgres: scan raw capture")
		}
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list unprocessed iterate")
}

func (s *PostgresStore) MarkProcessed(ctx context.Context, rawID int64) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE raw_captures SET processed = true WHERE id = $1`, rawID)
	if err != nil {
		return eris.Wrapf(err, "postgres: mark processed %d", rawID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "raw capture %d", rawID)
	}
	return nil
}

func (s *PostgresStore) scanRecordRow(row pgx.Row) (*model.StructuredRecord, error) {
	var rec model.StructuredRecord
	var flagsJSON, confJSON []byte
	var metaJSON []byte

	err := row.Scan(
		&rec.ID, &rec.RawID, &rec.ContactDate, &rec.ContactTime, &rec.Name, &rec.Phone,
		&rec.Neighborhood, &rec.LocationRef, &rec.DemandType, &rec.ShortDescription, &rec.Priority,
		&rec.Consent, &rec.Source, &rec.GlobalConfidence, &flagsJSON, &confJSON,
		&rec.Reviewed, &rec.Status, &rec.ErrorMsg, &metaJSON, &rec.Attempts, &rec.ProcessedAt,
		&rec.ClaimToken, &rec.ClaimedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: scan record")
	}
	if err := decodePgRecordJSON(&rec, flagsJSON, confJSON, metaJSON); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *PostgresStore) scanJoinedRow(row pgx.Row) (*model.JoinedRecord, error) {
	var j model.JoinedRecord
	var flagsJSON, confJSON []byte
	var metaJSON []byte

	err := row.Scan(
		&j.ID, &j.RawID, &j.ContactDate, &j.ContactTime, &j.Name, &j.Phone,
		&j.Neighborhood, &j.LocationRef, &j.DemandType, &j.ShortDescription, &j.Priority,
		&j.Consent, &j.Source, &j.GlobalConfidence, &flagsJSON, &confJSON,
		&j.Reviewed, &j.Status, &j.ErrorMsg, &metaJSON, &j.Attempts, &j.ProcessedAt,
		&j.ClaimToken, &j.ClaimedAt,
		&j.Raw.ID, &j.Raw.CapturedAt, &j.Raw.AgentID, &j.Raw.Text,
		&j.Raw.Latitude, &j.Raw.Longitude, &j.Raw.MessageRef, &j.Raw.Processed,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: scan joined record")
	}
	if err := decodePgRecordJSON(&j.StructuredRecord, flagsJSON, confJSON, metaJSON); err != nil {
		return nil, err
	}
	return &j, nil
}

func decodePgRecordJSON(rec *model.StructuredRecord, flagsJSON, confJSON, metaJSON []byte) error {
	if err := json.Unmarshal(flagsJSON, &rec.Flags); err != nil {
		return eris.Wrap(err, "postgres: unmarshal flags")
	}
	if err := json.Unmarshal(confJSON, &rec.FieldConfidence); err != nil {
		return eris.Wrap(err, "postgres: unmarshal field confidence")
	}
	if len(metaJSON) > 0 {
		rec.Metadata = &model.ExtractionMetadata{}
		if err := json.Unmarshal(metaJSON, rec.Metadata); err != nil {
			return eris.Wrap(err, "postgres: unmarshal metadata")
		}
	}
	return nil
}

func (s *PostgresStore) GetStructured(ctx context.Context, id int64) (*model.JoinedRecord, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+recordColumns+`, `+rawColumns+`
		 FROM structured_records s JOIN raw_captures r ON r.id = s.raw_id
		 WHERE s.id = $1`, id)
	return s.scanJoinedRow(row)
}

func (s *PostgresStore) GetStructuredByRawID(ctx context.Context, rawID int64) (*model.StructuredRecord, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+recordColumns+` FROM structured_records s WHERE s.raw_id = $1`, rawID)
	return s.scanRecordRow(row)
}

func (s *PostgresStore) ListStructured(ctx context.Context, filter StructuredFilter) ([]model.StructuredRecord, error) {
	query := `SELECT ` + recordColumns + ` FROM structured_records s WHERE true`
	args := []any{}
	argIdx := 1

	if filter.Reviewed != nil {
		query += fmt.Sprintf(` AND s.revisado = $%d`, argIdx)
		args = append(args, *filter.Reviewed)
		argIdx++
	}
	if filter.Status != "" {
		query += fmt.Sprintf(` AND s.extraction_status = $%d`, argIdx)
		args = append(args, string(filter.Status))
		argIdx++
	}
	query += ` ORDER BY s.id`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, limit)
	argIdx++

	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list structured")
	}
	defer rows.Close()

	var out []model.StructuredRecord
	for rows.Next() {
		rec, err := s.scanRecordRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list structured iterate")
}

func (s *PostgresStore) CreatePlaceholder(ctx context.Context, rawID int64) (int64, bool, error) {
	var id int64
	err := s.pool.QueryRow(ctx,
		`INSERT INTO structured_records (raw_id, fonte, extraction_status, processed_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (raw_id) DO NOTHING
		 RETURNING id`,
		rawID, model.SourceTypedText, string(model.StatusPending), time.Now().UTC(),
	).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		// Already reconciled; return the existing record id.
		err = s.pool.QueryRow(ctx,
			`SELECT id FROM structured_records WHERE raw_id = $1`, rawID).Scan(&id)
		if err != nil {
			return 0, false, eris.Wrapf(err, "postgres: lookup placeholder for raw %d", rawID)
		}
		return id, false, nil
	}
	if err != nil {
		return 0, false, eris.Wrapf(err, "postgres: create placeholder for raw %d", rawID)
	}
	return id, true, nil
}

func (s *PostgresStore) ApplyExtraction(ctx context.Context, id int64, fields model.ExtractedFields, meta *model.ExtractionMetadata, status model.ExtractionStatus) error {
	confJSON, metaJSON, globalConf, errMsg, err := encodeExtraction(fields, meta)
	if err != nil {
		return err
	}
	var metaArg any
	if metaJSON != "" {
		metaArg = []byte(metaJSON)
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE structured_records SET
			data_contato = $1, hora_contato = $2, nome = $3, telefone = $4, bairro = $5,
			referencia_local = $6, tipo_demanda = $7, descricao_curta = $8, prioridade_percebida = $9,
			consentimento_comunicacao = $10, confianca_global = $11, confianca_campos = $12,
			extraction_status = $13, error_msg = $14, metadata = $15,
			attempts = attempts + 1, processed_at = $16, claim_token = NULL, claimed_at = NULL
		 WHERE id = $17`,
		fields.ContactDate, fields.ContactTime, fields.Name, fields.Phone, fields.Neighborhood,
		fields.LocationRef, fields.DemandType, fields.ShortDescription, fields.Priority,
		fields.Consent, globalConf, []byte(confJSON),
		string(status), errMsg, metaArg,
		time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: apply extraction %d", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "structured record %d", id)
	}
	return nil
}

func (s *PostgresStore) MarkExtractionError(ctx context.Context, id int64, msg string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE structured_records SET
			extraction_status = $1, error_msg = $2,
			attempts = attempts + 1, processed_at = $3, claim_token = NULL, claimed_at = NULL
		 WHERE id = $4`,
		string(model.StatusError), msg, time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: mark extraction error %d", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "structured record %d", id)
	}
	return nil
}

func (s *PostgresStore) SetReviewed(ctx context.Context, id int64, reviewed bool) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE structured_records SET revisado = $1 WHERE id = $2`, reviewed, id)
	if err != nil {
		return eris.Wrapf(err, "postgres: set reviewed %d", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "structured record %d", id)
	}
	return nil
}

func (s *PostgresStore) ListForReview(ctx context.Context, confidenceThreshold float64) ([]model.StructuredRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+recordColumns+` FROM structured_records s
		 WHERE s.revisado = false
		   AND s.extraction_status IN ('completed', 'validation_failed')
		   AND (s.extraction_status = 'validation_failed' OR s.confianca_global IS NULL OR s.confianca_global < $1)
		 ORDER BY s.confianca_global NULLS FIRST, s.id`,
		confidenceThreshold,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list for review")
	}
	defer rows.Close()

	var out []model.StructuredRecord
	for rows.Next() {
		rec, err := s.scanRecordRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list for review iterate")
}

func (s *PostgresStore) ClaimPending(ctx context.Context, limit int) ([]model.PendingItem, error) {
	if limit <= 0 {
		limit = 10
	}
	token := uuid.New().String()

	rows, err := s.pool.Query(ctx,
		`UPDATE structured_records SET extraction_status = $1, claim_token = $2, claimed_at = $3
		 WHERE id IN (
			SELECT s.id FROM structured_records s
			WHERE `+pendingPredicate+`
			ORDER BY s.id LIMIT $4
			FOR UPDATE SKIP LOCKED
		 )
		 RETURNING id`,
		string(model.StatusInProgress), token, time.Now().UTC(), limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: claim pending")
	}
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, eris.Wrap(err, "postgres: scan claimed id")
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "postgres: claim pending iterate")
	}
	if len(ids) == 0 {
		return nil, nil
	}

	itemRows, err := s.pool.Query(ctx,
		`SELECT `+recordColumns+`, `+rawColumns+`
		 FROM structured_records s JOIN raw_captures r ON r.id = s.raw_id
		 WHERE s.id = ANY($1) ORDER BY s.id`, ids)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: load claimed items")
	}
	defer itemRows.Close()

	var items []model.PendingItem
	for itemRows.Next() {
		j, err := s.scanJoinedRow(itemRows)
		if err != nil {
			return nil, err
		}
		items = append(items, model.PendingItem{Record: j.StructuredRecord, Raw: j.Raw})
	}
	return items, eris.Wrap(itemRows.Err(), "postgres: load claimed items iterate")
}

func (s *PostgresStore) ReleaseStaleClaims(ctx context.Context, olderThan time.Duration) (int, error) {
	cutoff := time.Now().UTC().Add(-olderThan)
	tag, err := s.pool.Exec(ctx,
		`UPDATE structured_records
		 SET extraction_status = $1, claim_token = NULL, claimed_at = NULL
		 WHERE extraction_status = $2 AND claimed_at < $3`,
		string(model.StatusPending), string(model.StatusInProgress), cutoff,
	)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: release stale claims")
	}
	return int(tag.RowsAffected()), nil
}

func (s *PostgresStore) Stats(ctx context.Context) (*model.Stats, error) {
	st := &model.Stats{StatusCounts: map[model.ExtractionStatus]int{}}

	err := s.pool.QueryRow(ctx, `
		SELECT
			(SELECT COUNT(*) FROM raw_captures),
			(SELECT COUNT(*) FROM structured_records),
			(SELECT COUNT(*) FROM raw_captures r
			 WHERE NOT EXISTS (SELECT 1 FROM structured_records s WHERE s.raw_id = r.id)),
			(SELECT COUNT(*) FROM structured_records WHERE revisado = true),
			(SELECT COALESCE(AVG(confianca_global), 0) FROM structured_records WHERE confianca_global IS NOT NULL)
	`).Scan(&st.TotalRaw, &st.TotalStructured, &st.Unprocessed, &st.Reviewed, &st.AvgConfidence)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: stats")
	}

	rows, err := s.pool.Query(ctx,
		`SELECT extraction_status, COUNT(*) FROM structured_records GROUP BY extraction_status`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: status counts")
	}
	defer rows.Close()
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, eris.Wrap(err, "postgres: scan status count")
		}
		st.StatusCounts[model.ExtractionStatus(status)] = count
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "postgres: status counts iterate")
	}

	if st.TotalRaw > 0 {
		st.CoveragePercent = float64(st.TotalStructured) / float64(st.TotalRaw) * 100
	}
	return st, nil
}

func (s *PostgresStore) ListJoined(ctx context.Context, limit int) ([]model.JoinedRecord, error) {
	query := `SELECT ` + recordColumns + `, ` + rawColumns + `
		 FROM structured_records s JOIN raw_captures r ON r.id = s.raw_id
		 ORDER BY s.id`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT $1`
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list joined")
	}
	defer rows.Close()

	var out []model.JoinedRecord
	for rows.Next() {
		j, err := s.scanJoinedRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *j)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list joined iterate")
}
