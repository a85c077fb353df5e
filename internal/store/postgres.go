package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/bhulekh-seva/ror-cli/internal/db"
	"github.com/bhulekh-seva/ror-cli/internal/model"
	"github.com/bhulekh-seva/ror-cli/internal/resolve"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements lists queries to prepare on each new connection for
// faster execution of the hot store operations.
var preparedStatements = map[string]string{
	"get_record_by_identity": `SELECT ` + recordColumns + ` FROM extraction_records WHERE district = $1 AND tehsil = $2 AND village = $3 AND khatiyan_number = $4`,
	"insert_extraction":      `INSERT INTO field_extractions (id, record_id, method, version, confidence, extraction_data, elapsed_ms, feedback, feedback_comment, created_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10) ON CONFLICT (record_id, method, version) DO NOTHING`,
	"append_audit":           `INSERT INTO location_match_audits (id, record_id, location_type, native_input, english_input, match_status, matched_id, strategy, resolved, resolved_by, resolution_notes, created_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
	"get_summary":            `SELECT id, record_id, model, prompt_version, content, created_at, expires_at FROM summaries WHERE record_id = $1 AND model = $2 AND prompt_version = $3 AND expires_at > now()`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

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

// Pool returns the underlying database pool for subsystems that need direct
// query access (e.g., bulk master-data import).
func (s *PostgresStore) Pool() db.Pool {
	return s.pool
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS districts (
	id           BIGSERIAL PRIMARY KEY,
	source_id    TEXT NOT NULL UNIQUE,
	native_name  TEXT NOT NULL DEFAULT '',
	english_name TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS tahasils (
	id           BIGSERIAL PRIMARY KEY,
	district_id  BIGINT NOT NULL REFERENCES districts(id),
	source_id    TEXT NOT NULL,
	native_name  TEXT NOT NULL DEFAULT '',
	english_name TEXT NOT NULL DEFAULT '',
	UNIQUE (district_id, source_id)
);

CREATE TABLE IF NOT EXISTS villages (
	id           BIGSERIAL PRIMARY KEY,
	district_id  BIGINT NOT NULL REFERENCES districts(id),
	tahasil_id   BIGINT NOT NULL REFERENCES tahasils(id),
	source_id    TEXT NOT NULL,
	native_name  TEXT NOT NULL DEFAULT '',
	english_name TEXT NOT NULL DEFAULT '',
	UNIQUE (tahasil_id, source_id)
);

CREATE INDEX IF NOT EXISTS idx_tahasils_district ON tahasils(district_id);
CREATE INDEX IF NOT EXISTS idx_villages_tahasil ON villages(district_id, tahasil_id);

CREATE TABLE IF NOT EXISTS extraction_records (
	id                 TEXT PRIMARY KEY,
	district           TEXT NOT NULL,
	tehsil             TEXT NOT NULL,
	village            TEXT NOT NULL,
	khatiyan_number    TEXT NOT NULL,
	native_district    TEXT NOT NULL DEFAULT '',
	native_tehsil      TEXT NOT NULL DEFAULT '',
	native_village     TEXT NOT NULL DEFAULT '',
	source_url         TEXT NOT NULL DEFAULT '',
	raw_html           TEXT NOT NULL,
	raw_text           TEXT NOT NULL DEFAULT '',
	district_id        BIGINT,
	tahasil_id         BIGINT,
	village_id         BIGINT,
	district_source_id TEXT NOT NULL DEFAULT '',
	tahasil_source_id  TEXT NOT NULL DEFAULT '',
	village_source_id  TEXT NOT NULL DEFAULT '',
	viewer_url         TEXT NOT NULL DEFAULT '',
	created_at         TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (district, tehsil, village, khatiyan_number)
);

CREATE TABLE IF NOT EXISTS field_extractions (
	id               TEXT PRIMARY KEY,
	record_id        TEXT NOT NULL REFERENCES extraction_records(id),
	method           TEXT NOT NULL CHECK (method IN ('html_parser', 'llm_fallback', 'llm_only')),
	version          TEXT NOT NULL,
	confidence       TEXT NOT NULL DEFAULT '' CHECK (confidence IN ('', 'high', 'medium', 'low')),
	extraction_data  JSONB NOT NULL,
	elapsed_ms       BIGINT NOT NULL DEFAULT 0,
	feedback         TEXT NOT NULL DEFAULT 'pending' CHECK (feedback IN ('pending', 'correct', 'wrong')),
	feedback_comment TEXT NOT NULL DEFAULT '',
	created_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (record_id, method, version)
);

CREATE INDEX IF NOT EXISTS idx_field_extractions_record ON field_extractions(record_id);

CREATE TABLE IF NOT EXISTS location_match_audits (
	id               TEXT PRIMARY KEY,
	record_id        TEXT NOT NULL REFERENCES extraction_records(id),
	location_type    TEXT NOT NULL CHECK (location_type IN ('district', 'tehsil', 'village')),
	native_input     TEXT NOT NULL DEFAULT '',
	english_input    TEXT NOT NULL DEFAULT '',
	match_status     TEXT NOT NULL CHECK (match_status IN ('success', 'failed')),
	matched_id       BIGINT,
	strategy         INTEGER NOT NULL DEFAULT 0,
	resolved         BOOLEAN NOT NULL DEFAULT false,
	resolved_by      TEXT NOT NULL DEFAULT '',
	resolution_notes TEXT NOT NULL DEFAULT '',
	created_at       TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_audits_record ON location_match_audits(record_id);
CREATE INDEX IF NOT EXISTS idx_audits_unresolved ON location_match_audits(resolved, created_at);

CREATE TABLE IF NOT EXISTS summaries (
	id             TEXT PRIMARY KEY,
	record_id      TEXT NOT NULL REFERENCES extraction_records(id),
	model          TEXT NOT NULL,
	prompt_version TEXT NOT NULL,
	content        TEXT NOT NULL,
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
	expires_at     TIMESTAMPTZ NOT NULL,
	UNIQUE (record_id, model, prompt_version)
);

CREATE INDEX IF NOT EXISTS idx_summaries_expires ON summaries(expires_at);
`

const recordColumns = `id, district, tehsil, village, khatiyan_number, native_district, native_tehsil, native_village, source_url, raw_html, raw_text, district_id, tahasil_id, village_id, district_source_id, tahasil_source_id, village_source_id, viewer_url, created_at`

func (s *PostgresStore) Ping(ctx context.Context) error {
	err := s.pool.Ping(ctx)
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) UpsertRecord(ctx context.Context, rec *model.ExtractionRecord) (*model.ExtractionRecord, bool, error) {
	rec.Identity = rec.Identity.Normalized()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	tag, err := s.pool.Exec(ctx,
		`INSERT INTO extraction_records (`+recordColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
		 ON CONFLICT (district, tehsil, village, khatiyan_number) DO NOTHING`,
		rec.ID, rec.Identity.District, rec.Identity.Tehsil, rec.Identity.Village, rec.Identity.KhatiyanNumber,
		rec.NativeDistrict, rec.NativeTehsil, rec.NativeVillage,
		rec.SourceURL, rec.RawHTML, rec.RawText,
		rec.DistrictID, rec.TehsilID, rec.VillageID,
		rec.DistrictSourceID, rec.TehsilSourceID, rec.VillageSourceID,
		rec.ViewerURL, rec.CreatedAt,
	)
	if err != nil {
		return nil, false, eris.Wrap(err, "postgres: upsert record")
	}
	if tag.RowsAffected() == 1 {
		return rec, true, nil
	}

	// Lost the race (or a duplicate submission); the stored row wins.
	stored, err := s.GetRecordByIdentity(ctx, rec.Identity)
	if err != nil {
		return nil, false, err
	}
	if stored == nil {
		return nil, false, eris.Errorf("postgres: record vanished after conflict: %s", rec.Identity.KhatiyanNumber)
	}
	return stored, false, nil
}

func (s *PostgresStore) GetRecord(ctx context.Context, id string) (*model.ExtractionRecord, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+recordColumns+` FROM extraction_records WHERE id = $1`, id)
	rec, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "postgres: get record %s", id)
	}
	return rec, nil
}

func (s *PostgresStore) GetRecordByIdentity(ctx context.Context, identity model.RecordIdentity) (*model.ExtractionRecord, error) {
	n := identity.Normalized()
	row := s.pool.QueryRow(ctx,
		`SELECT `+recordColumns+` FROM extraction_records WHERE district = $1 AND tehsil = $2 AND village = $3 AND khatiyan_number = $4`,
		n.District, n.Tehsil, n.Village, n.KhatiyanNumber,
	)
	rec, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrap(err, "postgres: get record by identity")
	}
	return rec, nil
}

func scanRecord(row pgx.Row) (*model.ExtractionRecord, error) {
	var r model.ExtractionRecord
	err := row.Scan(
		&r.ID, &r.Identity.District, &r.Identity.Tehsil, &r.Identity.Village, &r.Identity.KhatiyanNumber,
		&r.NativeDistrict, &r.NativeTehsil, &r.NativeVillage,
		&r.SourceURL, &r.RawHTML, &r.RawText,
		&r.DistrictID, &r.TehsilID, &r.VillageID,
		&r.DistrictSourceID, &r.TehsilSourceID, &r.VillageSourceID,
		&r.ViewerURL, &r.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *PostgresStore) InsertFieldExtraction(ctx context.Context, fe *model.FieldExtraction) error {
	if fe.CreatedAt.IsZero() {
		fe.CreatedAt = time.Now().UTC()
	}
	if fe.Feedback == "" {
		fe.Feedback = model.FeedbackPending
	}

	bundleJSON, err := json.Marshal(fe.Bundle)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal bundle")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO field_extractions (id, record_id, method, version, confidence, extraction_data, elapsed_ms, feedback, feedback_comment, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 ON CONFLICT (record_id, method, version) DO NOTHING`,
		fe.ID, fe.RecordID, string(fe.Method), fe.Version, string(fe.Confidence),
		bundleJSON, fe.ElapsedMS, string(fe.Feedback), fe.FeedbackComment, fe.CreatedAt,
	)
	return eris.Wrap(err, "postgres: insert field extraction")
}

func (s *PostgresStore) ListExtractions(ctx context.Context, recordID string) ([]model.FieldExtraction, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, record_id, method, version, confidence, extraction_data, elapsed_ms, feedback, feedback_comment, created_at
		 FROM field_extractions WHERE record_id = $1 ORDER BY created_at ASC`,
		recordID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list extractions")
	}
	defer rows.Close()

	var out []model.FieldExtraction
	for rows.Next() {
		var fe model.FieldExtraction
		var bundleJSON []byte
		if err := rows.Scan(&fe.ID, &fe.RecordID, &fe.Method, &fe.Version, &fe.Confidence,
			&bundleJSON, &fe.ElapsedMS, &fe.Feedback, &fe.FeedbackComment, &fe.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan extraction")
		}
		if err := json.Unmarshal(bundleJSON, &fe.Bundle); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal bundle")
		}
		out = append(out, fe)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list extractions iterate")
}

func (s *PostgresStore) UpdateExtractionFeedback(ctx context.Context, id string, fb model.Feedback, comment string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE field_extractions SET feedback = $1, feedback_comment = $2 WHERE id = $3`,
		string(fb), comment, id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update feedback %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("extraction not found: %s", id)
	}
	return nil
}

func (s *PostgresStore) AppendLocationAudit(ctx context.Context, a *model.LocationMatchAudit) error {
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO location_match_audits (id, record_id, location_type, native_input, english_input, match_status, matched_id, strategy, resolved, resolved_by, resolution_notes, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		a.ID, a.RecordID, string(a.LocationType), a.NativeInput, a.EnglishInput,
		string(a.Status), a.MatchedID, a.Strategy, a.Resolved, a.ResolvedBy, a.ResolutionNotes, a.CreatedAt,
	)
	return eris.Wrap(err, "postgres: append location audit")
}

func (s *PostgresStore) ListUnresolvedAudits(ctx context.Context, limit int) ([]model.LocationMatchAudit, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, record_id, location_type, native_input, english_input, match_status, matched_id, strategy, resolved, resolved_by, resolution_notes, created_at
		 FROM location_match_audits WHERE resolved = false ORDER BY created_at ASC LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list unresolved audits")
	}
	defer rows.Close()

	var out []model.LocationMatchAudit
	for rows.Next() {
		var a model.LocationMatchAudit
		if err := rows.Scan(&a.ID, &a.RecordID, &a.LocationType, &a.NativeInput, &a.EnglishInput,
			&a.Status, &a.MatchedID, &a.Strategy, &a.Resolved, &a.ResolvedBy, &a.ResolutionNotes, &a.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan audit")
		}
		out = append(out, a)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list unresolved audits iterate")
}

func (s *PostgresStore) ResolveAudit(ctx context.Context, id, resolvedBy, notes string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE location_match_audits SET resolved = true, resolved_by = $1, resolution_notes = $2 WHERE id = $3`,
		resolvedBy, notes, id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: resolve audit %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("audit not found: %s", id)
	}
	return nil
}

func (s *PostgresStore) GetSummary(ctx context.Context, recordID, modelID, promptVersion string) (*model.Summary, error) {
	var sm model.Summary
	err := s.pool.QueryRow(ctx,
		`SELECT id, record_id, model, prompt_version, content, created_at, expires_at
		 FROM summaries WHERE record_id = $1 AND model = $2 AND prompt_version = $3 AND expires_at > now()`,
		recordID, modelID, promptVersion,
	).Scan(&sm.ID, &sm.RecordID, &sm.Model, &sm.PromptVersion, &sm.Content, &sm.CreatedAt, &sm.ExpiresAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrap(err, "postgres: get summary")
	}
	return &sm, nil
}

func (s *PostgresStore) PutSummary(ctx context.Context, sm *model.Summary) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO summaries (id, record_id, model, prompt_version, content, created_at, expires_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (record_id, model, prompt_version) DO UPDATE SET content = $5, created_at = $6, expires_at = $7`,
		sm.ID, sm.RecordID, sm.Model, sm.PromptVersion, sm.Content, sm.CreatedAt, sm.ExpiresAt,
	)
	return eris.Wrap(err, "postgres: put summary")
}

func (s *PostgresStore) Districts(ctx context.Context) ([]resolve.District, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, source_id, native_name, english_name FROM districts ORDER BY id ASC`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list districts")
	}
	defer rows.Close()

	var out []resolve.District
	for rows.Next() {
		var d resolve.District
		if err := rows.Scan(&d.ID, &d.SourceID, &d.NativeName, &d.EnglishName); err != nil {
			return nil, eris.Wrap(err, "postgres: scan district")
		}
		out = append(out, d)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list districts iterate")
}

func (s *PostgresStore) TehsilsByDistrict(ctx context.Context, districtID int64) ([]resolve.Tehsil, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, district_id, source_id, native_name, english_name FROM tahasils WHERE district_id = $1 ORDER BY id ASC`,
		districtID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list tahasils")
	}
	defer rows.Close()

	var out []resolve.Tehsil
	for rows.Next() {
		var t resolve.Tehsil
		if err := rows.Scan(&t.ID, &t.DistrictID, &t.SourceID, &t.NativeName, &t.EnglishName); err != nil {
			return nil, eris.Wrap(err, "postgres: scan tahasil")
		}
		out = append(out, t)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list tahasils iterate")
}

func (s *PostgresStore) VillagesByTehsil(ctx context.Context, districtID, tehsilID int64) ([]resolve.Village, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, district_id, tahasil_id, source_id, native_name, english_name FROM villages WHERE district_id = $1 AND tahasil_id = $2 ORDER BY id ASC`,
		districtID, tehsilID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list villages")
	}
	defer rows.Close()

	var out []resolve.Village
	for rows.Next() {
		var v resolve.Village
		if err := rows.Scan(&v.ID, &v.DistrictID, &v.TehsilID, &v.SourceID, &v.NativeName, &v.EnglishName); err != nil {
			return nil, eris.Wrap(err, "postgres: scan village")
		}
		out = append(out, v)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list villages iterate")
}

// ImportMaster upserts a master-data payload keyed on source IDs. Districts
// and tahasils go row by row because their generated IDs feed the child
// level; villages go through the bulk upsert path since nothing hangs off
// them.
func (s *PostgresStore) ImportMaster(ctx context.Context, districts []model.MasterDistrict) (*model.MasterImportStats, error) {
	stats := &model.MasterImportStats{}

	for _, d := range districts {
		var districtID int64
		err := s.pool.QueryRow(ctx,
			`INSERT INTO districts (source_id, native_name, english_name) VALUES ($1, $2, $3)
			 ON CONFLICT (source_id) DO UPDATE SET native_name = $2, english_name = $3
			 RETURNING id`,
			d.SourceID, d.NativeName, d.EnglishName,
		).Scan(&districtID)
		if err != nil {
			return nil, eris.Wrapf(err, "postgres: import district %s", d.SourceID)
		}
		stats.Districts++

		var villageRows [][]any
		for _, t := range d.Tehsils {
			var tehsilID int64
			err := s.pool.QueryRow(ctx,
				`INSERT INTO tahasils (district_id, source_id, native_name, english_name) VALUES ($1, $2, $3, $4)
				 ON CONFLICT (district_id, source_id) DO UPDATE SET native_name = $3, english_name = $4
				 RETURNING id`,
				districtID, t.SourceID, t.NativeName, t.EnglishName,
			).Scan(&tehsilID)
			if err != nil {
				return nil, eris.Wrapf(err, "postgres: import tahasil %s", t.SourceID)
			}
			stats.Tehsils++

			for _, v := range t.Villages {
				villageRows = append(villageRows, []any{districtID, tehsilID, v.SourceID, v.NativeName, v.EnglishName})
			}
		}

		n, err := db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
			Table:        "villages",
			Columns:      []string{"district_id", "tahasil_id", "source_id", "native_name", "english_name"},
			ConflictKeys: []string{"tahasil_id", "source_id"},
		}, villageRows)
		if err != nil {
			return nil, eris.Wrapf(err, "postgres: import villages for district %s", d.SourceID)
		}
		stats.Villages += int(n)
	}

	return stats, nil
}
