package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/agenticlead/agenticlead/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

type migration struct {
	Version int
	Name    string
	SQL     string
}

var sqliteMigrations = []migration{
	{1, "initial_schema", `
CREATE TABLE raw_captures (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	captured_at   DATETIME NOT NULL DEFAULT (datetime('now')),
	agent_id      TEXT NOT NULL DEFAULT '',
	original_text TEXT NOT NULL,
	latitude      REAL,
	longitude     REAL,
	message_ref   INTEGER,
	processed     BOOLEAN NOT NULL DEFAULT 0
);

CREATE TABLE structured_records (
	id                        INTEGER PRIMARY KEY AUTOINCREMENT,
	raw_id                    INTEGER NOT NULL UNIQUE REFERENCES raw_captures(id),
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
	confianca_global          REAL,
	flags                     TEXT NOT NULL DEFAULT '[]',
	confianca_campos          TEXT NOT NULL DEFAULT '{}',
	revisado                  BOOLEAN NOT NULL DEFAULT 0,
	extraction_status         TEXT NOT NULL DEFAULT 'pending',
	error_msg                 TEXT,
	metadata                  TEXT,
	attempts                  INTEGER NOT NULL DEFAULT 0,
	processed_at              DATETIME NOT NULL DEFAULT (datetime('now')),
	claim_token               TEXT,
	claimed_at                DATETIME
);

CREATE INDEX idx_raw_captures_processed ON raw_captures(processed);
CREATE INDEX idx_structured_status ON structured_records(extraction_status);
CREATE INDEX idx_structured_revisado ON structured_records(revisado);
`},
}

// Migrate applies pending schema migrations in version order, recording each
// in schema_migrations so reruns are no-ops.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS schema_migrations (
	version    INTEGER PRIMARY KEY,
	name       TEXT NOT NULL,
	applied_at DATETIME NOT NULL DEFAULT (datetime('now'))
)`)
	if err != nil {
		return eris.Wrap(err, "sqlite: create schema_migrations")
	}

	var current int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(version), 0) FROM schema_migrations`,
	).Scan(&current); err != nil {
		return eris.Wrap(err, "sqlite: read schema version")
	}

	for _, m := range sqliteMigrations {
		if m.Version <= current {
			continue
		}
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return eris.Wrapf(err, "sqlite: begin migration %d", m.Version)
		}
		if _, err := tx.ExecContext(ctx, m.SQL); err != nil {
			tx.Rollback()
			return eris.Wrapf(err, "sqlite: apply migration %d (%s)", m.Version, m.Name)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO schema_migrations (version, name) VALUES (?, ?)`,
			m.Version, m.Name,
		); err != nil {
			tx.Rollback()
			return eris.Wrapf(err, "sqlite: record migration %d", m.Version)
		}
		if err := tx.Commit(); err != nil {
			return eris.Wrapf(err, "sqlite: commit migration %d", m.Version)
		}
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) SaveRawCapture(ctx context.Context, agentID, text string, messageRef *int64, lat, lon *float64) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO raw_captures (captured_at, agent_id, original_text, latitude, longitude, message_ref)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		time.Now().UTC(), agentID, text, lat, lon, messageRef,
	)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: insert raw capture")
	}
	id, err := res.LastInsertId()
	return id, eris.Wrap(err, "sqlite: raw capture id")
}

func (s *SQLiteStore) GetRawCapture(ctx context.Context, id int64) (*model.RawCapture, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, captured_at, agent_id, original_text, latitude, longitude, message_ref, processed
		 FROM raw_captures WHERE id = ?`, id)

	var r model.RawCapture
	err := row.Scan(&r.ID, &r.CapturedAt, &r.AgentID, &r.Text, &r.Latitude, &r.Longitude, &r.MessageRef, &r.Processed)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get raw capture %d", id)
	}
	return &r, nil
}

func (s *SQLiteStore) ListUnprocessed(ctx context.Context) ([]model.RawCapture, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT r.id, r.captured_at, r.agent_id, r.original_text, r.latitude, r.longitude, r.message_ref, r.processed
		 FROM raw_captures r
		 WHERE NOT EXISTS (SELECT 1 FROM structured_records s WHERE s.raw_id = r.id)
		 ORDER BY r.id`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list unprocessed")
	}
	defer rows.Close()

	var out []model.RawCapture
	for rows.Next() {
		var r model.RawCapture
		if err := rows.Scan(&r.ID, &r.CapturedAt, &r.AgentID, &r.Text, &r.Latitude, &r.Longitude, &r.MessageRef, &r.Processed); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan raw capture")
		}
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list unprocessed iterate")
}

func (s *SQLiteStore) MarkProcessed(ctx context.Context, rawID int64) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE raw_captures SET processed = 1 WHERE id = ?`, rawID)
	if err != nil {
		return eris.Wrapf(err, "sqlite: mark processed %d", rawID)
	}
	return checkRowsAffected(res, "raw capture", rawID)
}

// recordColumns is the structured_records column list shared by every query
// that scans a full record. Order must match scanRecord.
const recordColumns = `s.id, s.raw_id, s.data_contato, s.hora_contato, s.nome, s.telefone,
	s.bairro, s.referencia_local, s.tipo_demanda, s.descricao_curta, s.prioridade_percebida,
	s.consentimento_comunicacao, s.fonte, s.confianca_global, s.flags, s.confianca_campos,
	s.revisado, s.extraction_status, s.error_msg, s.metadata, s.attempts, s.processed_at,
	s.claim_token, s.claimed_at`

const rawColumns = `r.id, r.captured_at, r.agent_id, r.original_text, r.latitude, r.longitude, r.message_ref, r.processed`

type scannable interface {
	Scan(dest ...any) error
}

func scanRecord(row scannable) (*model.StructuredRecord, error) {
	var rec model.StructuredRecord
	var flagsJSON, confJSON string
	var metaJSON *string

	err := row.Scan(
		&rec.ID, &rec.RawID, &rec.ContactDate, &rec.ContactTime, &rec.Name, &rec.Phone,
		&rec.Neighborhood, &rec.LocationRef, &rec.DemandType, &rec.ShortDescription, &rec.Priority,
		&rec.Consent, &rec.Source, &rec.GlobalConfidence, &flagsJSON, &confJSON,
		&rec.Reviewed, &rec.Status, &rec.ErrorMsg, &metaJSON, &rec.Attempts, &rec.ProcessedAt,
		&rec.ClaimToken, &rec.ClaimedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan record")
	}
	if err := decodeRecordJSON(&rec, flagsJSON, confJSON, metaJSON); err != nil {
		return nil, err
	}
	return &rec, nil
}

func scanJoined(row scannable) (*model.JoinedRecord, error) {
	var j model.JoinedRecord
	var flagsJSON, confJSON string
	var metaJSON *string

	err := row.Scan(
		&j.ID, &j.RawID, &j.ContactDate, &j.ContactTime, &j.Name, &j.Phone,
		&j.Neighborhood, &j.LocationRef, &j.DemandType, &j.ShortDescription, &j.Priority,
		&j.Consent, &j.Source, &j.GlobalConfidence, &flagsJSON, &confJSON,
		&j.Reviewed, &j.Status, &j.ErrorMsg, &metaJSON, &j.Attempts, &j.ProcessedAt,
		&j.ClaimToken, &j.ClaimedAt,
		&j.Raw.ID, &j.Raw.CapturedAt, &j.Raw.AgentID, &j.Raw.Text,
		&j.Raw.Latitude, &j.Raw.Longitude, &j.Raw.MessageRef, &j.Raw.Processed,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan joined record")
	}
	if err := decodeRecordJSON(&j.StructuredRecord, flagsJSON, confJSON, metaJSON); err != nil {
		return nil, err
	}
	return &j, nil
}

func decodeRecordJSON(rec *model.StructuredRecord, flagsJSON, confJSON string, metaJSON *string) error {
	if err := json.Unmarshal([]byte(flagsJSON), &rec.Flags); err != nil {
		return eris.Wrap(err, "store: unmarshal flags")
	}
	if err := json.Unmarshal([]byte(confJSON), &rec.FieldConfidence); err != nil {
		return eris.Wrap(err, "store: unmarshal field confidence")
	}
	if metaJSON != nil && *metaJSON != "" {
		rec.Metadata = &model.ExtractionMetadata{}
		if err := json.Unmarshal([]byte(*metaJSON), rec.Metadata); err != nil {
			return eris.Wrap(err, "store: unmarshal metadata")
		}
	}
	return nil
}

func (s *SQLiteStore) GetStructured(ctx context.Context, id int64) (*model.JoinedRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+recordColumns+`, `+rawColumns+`
		 FROM structured_records s JOIN raw_captures r ON r.id = s.raw_id
		 WHERE s.id = ?`, id)
	return scanJoined(row)
}

func (s *SQLiteStore) GetStructuredByRawID(ctx context.Context, rawID int64) (*model.StructuredRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+recordColumns+` FROM structured_records s WHERE s.raw_id = ?`, rawID)
	return scanRecord(row)
}

func (s *SQLiteStore) ListStructured(ctx context.Context, filter StructuredFilter) ([]model.StructuredRecord, error) {
	query := `SELECT ` + recordColumns + ` FROM structured_records s WHERE 1=1`
	var args []any

	if filter.Reviewed != nil {
		query += ` AND s.revisado = ?`
		args = append(args, *filter.Reviewed)
	}
	if filter.Status != "" {
		query += ` AND s.extraction_status = ?`
		args = append(args, string(filter.Status))
	}
	query += ` ORDER BY s.id`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list structured")
	}
	defer rows.Close()

	var out []model.StructuredRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list structured iterate")
}

func (s *SQLiteStore) CreatePlaceholder(ctx context.Context, rawID int64) (int64, bool, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO structured_records (raw_id, fonte, extraction_status, processed_at)
		 VALUES (?, ?, ?, ?)`,
		rawID, model.SourceTypedText, string(model.StatusPending), time.Now().UTC(),
	)
	if err != nil {
		return 0, false, eris.Wrapf(err, "sqlite: create placeholder for raw %d", rawID)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, false, eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		// Already reconciled; return the existing record id.
		var id int64
		err := s.db.QueryRowContext(ctx,
			`SELECT id FROM structured_records WHERE raw_id = ?`, rawID).Scan(&id)
		if err != nil {
			return 0, false, eris.Wrapf(err, "sqlite: lookup placeholder for raw %d", rawID)
		}
		return id, false, nil
	}
	id, err := res.LastInsertId()
	return id, true, eris.Wrap(err, "sqlite: placeholder id")
}

func (s *SQLiteStore) ApplyExtraction(ctx context.Context, id int64, fields model.ExtractedFields, meta *model.ExtractionMetadata, status model.ExtractionStatus) error {
	confJSON, metaJSON, globalConf, errMsg, err := encodeExtraction(fields, meta)
	if err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE structured_records SET
			data_contato = ?, hora_contato = ?, nome = ?, telefone = ?, bairro = ?,
			referencia_local = ?, tipo_demanda = ?, descricao_curta = ?, prioridade_percebida = ?,
			consentimento_comunicacao = ?, confianca_global = ?, confianca_campos = ?,
			extraction_status = ?, error_msg = ?, metadata = ?,
			attempts = attempts + 1, processed_at = ?, claim_token = NULL, claimed_at = NULL
		 WHERE id = ?`,
		fields.ContactDate, fields.ContactTime, fields.Name, fields.Phone, fields.Neighborhood,
		fields.LocationRef, fields.DemandType, fields.ShortDescription, fields.Priority,
		fields.Consent, globalConf, confJSON,
		string(status), errMsg, metaJSON,
		time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: apply extraction %d", id)
	}
	return checkRowsAffected(res, "structured record", id)
}

func (s *SQLiteStore) MarkExtractionError(ctx context.Context, id int64, msg string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE structured_records SET
			extraction_status = ?, error_msg = ?,
			attempts = attempts + 1, processed_at = ?, claim_token = NULL, claimed_at = NULL
		 WHERE id = ?`,
		string(model.StatusError), msg, time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: mark extraction error %d", id)
	}
	return checkRowsAffected(res, "structured record", id)
}

func (s *SQLiteStore) SetReviewed(ctx context.Context, id int64, reviewed bool) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE structured_records SET revisado = ? WHERE id = ?`, reviewed, id)
	if err != nil {
		return eris.Wrapf(err, "sqlite: set reviewed %d", id)
	}
	return checkRowsAffected(res, "structured record", id)
}

func (s *SQLiteStore) ListForReview(ctx context.Context, confidenceThreshold float64) ([]model.StructuredRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+recordColumns+` FROM structured_records s
		 WHERE s.revisado = 0
		   AND s.extraction_status IN ('completed', 'validation_failed')
		   AND (s.extraction_status = 'validation_failed' OR s.confianca_global IS NULL OR s.confianca_global < ?)
		 ORDER BY s.confianca_global, s.id`,
		confidenceThreshold,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list for review")
	}
	defer rows.Close()

	var out []model.StructuredRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list for review iterate")
}

func (s *SQLiteStore) ClaimPending(ctx context.Context, limit int) ([]model.PendingItem, error) {
	if limit <= 0 {
		limit = 10
	}
	token := uuid.New().String()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: begin claim")
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx,
		`SELECT s.id FROM structured_records s
		 WHERE `+pendingPredicate+`
		 ORDER BY s.id LIMIT ?`, limit)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: select pending")
	}
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, eris.Wrap(err, "sqlite: scan pending id")
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "sqlite: select pending iterate")
	}
	if len(ids) == 0 {
		return nil, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := []any{string(model.StatusInProgress), token, time.Now().UTC()}
	for _, id := range ids {
		args = append(args, id)
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE structured_records SET extraction_status = ?, claim_token = ?, claimed_at = ?
		 WHERE id IN (`+placeholders+`)`, args...); err != nil {
		return nil, eris.Wrap(err, "sqlite: claim pending")
	}
	if err := tx.Commit(); err != nil {
		return nil, eris.Wrap(err, "sqlite: commit claim")
	}

	return s.pendingItems(ctx, ids)
}

func (s *SQLiteStore) pendingItems(ctx context.Context, ids []int64) ([]model.PendingItem, error) {
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+recordColumns+`, `+rawColumns+`
		 FROM structured_records s JOIN raw_captures r ON r.id = s.raw_id
		 WHERE s.id IN (`+placeholders+`) ORDER BY s.id`, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: load claimed items")
	}
	defer rows.Close()

	var items []model.PendingItem
	for rows.Next() {
		j, err := scanJoined(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, model.PendingItem{Record: j.StructuredRecord, Raw: j.Raw})
	}
	return items, eris.Wrap(rows.Err(), "sqlite: load claimed items iterate")
}

func (s *SQLiteStore) ReleaseStaleClaims(ctx context.Context, olderThan time.Duration) (int, error) {
	cutoff := time.Now().UTC().Add(-olderThan)
	res, err := s.db.ExecContext(ctx,
		`UPDATE structured_records
		 SET extraction_status = ?, claim_token = NULL, claimed_at = NULL
		 WHERE extraction_status = ? AND claimed_at < ?`,
		string(model.StatusPending), string(model.StatusInProgress), cutoff,
	)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: release stale claims")
	}
	n, err := res.RowsAffected()
	return int(n), eris.Wrap(err, "sqlite: rows affected")
}

func (s *SQLiteStore) Stats(ctx context.Context) (*model.Stats, error) {
	st := &model.Stats{StatusCounts: map[model.ExtractionStatus]int{}}

	err := s.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM raw_captures),
			(SELECT COUNT(*) FROM structured_records),
			(SELECT COUNT(*) FROM raw_captures r
			 WHERE NOT EXISTS (SELECT 1 FROM structured_records s WHERE s.raw_id = r.id)),
			(SELECT COUNT(*) FROM structured_records WHERE revisado = 1),
			(SELECT COALESCE(AVG(confianca_global), 0) FROM structured_records WHERE confianca_global IS NOT NULL)
	`).Scan(&st.TotalRaw, &st.TotalStructured, &st.Unprocessed, &st.Reviewed, &st.AvgConfidence)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: stats")
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT extraction_status, COUNT(*) FROM structured_records GROUP BY extraction_status`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: status counts")
	}
	defer rows.Close()
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan status count")
		}
		st.StatusCounts[model.ExtractionStatus(status)] = count
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "sqlite: status counts iterate")
	}

	if st.TotalRaw > 0 {
		st.CoveragePercent = float64(st.TotalStructured) / float64(st.TotalRaw) * 100
	}
	return st, nil
}

func (s *SQLiteStore) ListJoined(ctx context.Context, limit int) ([]model.JoinedRecord, error) {
	query := `SELECT ` + recordColumns + `, ` + rawColumns + `
		 FROM structured_records s JOIN raw_captures r ON r.id = s.raw_id
		 ORDER BY s.id`
	var args []any
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list joined")
	}
	defer rows.Close()

	var out []model.JoinedRecord
	for rows.Next() {
		j, err := scanJoined(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *j)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list joined iterate")
}

// helpers

func checkRowsAffected(res sql.Result, entity string, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrNotFound, "%s %d", entity, id)
	}
	return nil
}

// encodeExtraction prepares the serialized columns written by
// ApplyExtraction. The global confidence comes from the validation report
// when present; error-status extractions keep it null.
func encodeExtraction(fields model.ExtractedFields, meta *model.ExtractionMetadata) (confJSON, metaJSON string, globalConf *float64, errMsg *string, err error) {
	conf := fields.FieldConfidence
	if conf == nil {
		conf = map[string]float64{}
	}
	confBytes, err := json.Marshal(conf)
	if err != nil {
		return "", "", nil, nil, eris.Wrap(err, "store: marshal field confidence")
	}

	metaJSON = ""
	if meta != nil {
		metaBytes, merr := json.Marshal(meta)
		if merr != nil {
			return "", "", nil, nil, eris.Wrap(merr, "store: marshal metadata")
		}
		metaJSON = string(metaBytes)
		if meta.Validation != nil {
			c := meta.Validation.GlobalConfidence
			globalConf = &c
		}
		if meta.ErrorMessage != "" {
			m := meta.ErrorMessage
			errMsg = &m
		}
	}
	return string(confBytes), metaJSON, globalConf, errMsg, nil
}
