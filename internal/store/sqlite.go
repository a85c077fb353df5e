package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/bhulekh-seva/ror-cli/internal/model"
	"github.com/bhulekh-seva/ror-cli/internal/resolve"
)

// SQLiteStore implements Store using modernc.org/sqlite. It is the default
// backend for single-operator CLI use; the schema mirrors the Postgres one.
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

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS districts (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	source_id    TEXT NOT NULL UNIQUE,
	native_name  TEXT NOT NULL DEFAULT '',
	english_name TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS tahasils (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	district_id  INTEGER NOT NULL REFERENCES districts(id),
	source_id    TEXT NOT NULL,
	native_name  TEXT NOT NULL DEFAULT '',
	english_name TEXT NOT NULL DEFAULT '',
	UNIQUE (district_id, source_id)
);

CREATE TABLE IF NOT EXISTS villages (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	district_id  INTEGER NOT NULL REFERENCES districts(id),
	tahasil_id   INTEGER NOT NULL REFERENCES tahasils(id),
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
	district_id        INTEGER,
	tahasil_id         INTEGER,
	village_id         INTEGER,
	district_source_id TEXT NOT NULL DEFAULT '',
	tahasil_source_id  TEXT NOT NULL DEFAULT '',
	village_source_id  TEXT NOT NULL DEFAULT '',
	viewer_url         TEXT NOT NULL DEFAULT '',
	created_at         DATETIME NOT NULL,
	UNIQUE (district, tehsil, village, khatiyan_number)
);

CREATE TABLE IF NOT EXISTS field_extractions (
	id               TEXT PRIMARY KEY,
	record_id        TEXT NOT NULL REFERENCES extraction_records(id),
	method           TEXT NOT NULL CHECK (method IN ('html_parser', 'llm_fallback', 'llm_only')),
	version          TEXT NOT NULL,
	confidence       TEXT NOT NULL DEFAULT '' CHECK (confidence IN ('', 'high', 'medium', 'low')),
	extraction_data  TEXT NOT NULL,
	elapsed_ms       INTEGER NOT NULL DEFAULT 0,
	feedback         TEXT NOT NULL DEFAULT 'pending' CHECK (feedback IN ('pending', 'correct', 'wrong')),
	feedback_comment TEXT NOT NULL DEFAULT '',
	created_at       DATETIME NOT NULL,
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
	matched_id       INTEGER,
	strategy         INTEGER NOT NULL DEFAULT 0,
	resolved         INTEGER NOT NULL DEFAULT 0,
	resolved_by      TEXT NOT NULL DEFAULT '',
	resolution_notes TEXT NOT NULL DEFAULT '',
	created_at       DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_audits_record ON location_match_audits(record_id);
CREATE INDEX IF NOT EXISTS idx_audits_unresolved ON location_match_audits(resolved, created_at);

CREATE TABLE IF NOT EXISTS summaries (
	id             TEXT PRIMARY KEY,
	record_id      TEXT NOT NULL REFERENCES extraction_records(id),
	model          TEXT NOT NULL,
	prompt_version TEXT NOT NULL,
	content        TEXT NOT NULL,
	created_at     DATETIME NOT NULL,
	expires_at     DATETIME NOT NULL,
	UNIQUE (record_id, model, prompt_version)
);

CREATE INDEX IF NOT EXISTS idx_summaries_expires ON summaries(expires_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) UpsertRecord(ctx context.Context, rec *model.ExtractionRecord) (*model.ExtractionRecord, bool, error) {
	rec.Identity = rec.Identity.Normalized()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO extraction_records (`+recordColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (district, tehsil, village, khatiyan_number) DO NOTHING`,
		rec.ID, rec.Identity.District, rec.Identity.Tehsil, rec.Identity.Village, rec.Identity.KhatiyanNumber,
		rec.NativeDistrict, rec.NativeTehsil, rec.NativeVillage,
		rec.SourceURL, rec.RawHTML, rec.RawText,
		rec.DistrictID, rec.TehsilID, rec.VillageID,
		rec.DistrictSourceID, rec.TehsilSourceID, rec.VillageSourceID,
		rec.ViewerURL, rec.CreatedAt,
	)
	if err != nil {
		return nil, false, eris.Wrap(err, "sqlite: upsert record")
	}
	if n, _ := res.RowsAffected(); n == 1 {
		return rec, true, nil
	}

	stored, err := s.GetRecordByIdentity(ctx, rec.Identity)
	if err != nil {
		return nil, false, err
	}
	if stored == nil {
		return nil, false, eris.Errorf("sqlite: record vanished after conflict: %s", rec.Identity.KhatiyanNumber)
	}
	return stored, false, nil
}

func (s *SQLiteStore) GetRecord(ctx context.Context, id string) (*model.ExtractionRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+recordColumns+` FROM extraction_records WHERE id = ?`, id)
	rec, err := scanSQLiteRecord(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "sqlite: get record %s", id)
	}
	return rec, nil
}

func (s *SQLiteStore) GetRecordByIdentity(ctx context.Context, identity model.RecordIdentity) (*model.ExtractionRecord, error) {
	n := identity.Normalized()
	row := s.db.QueryRowContext(ctx,
		`SELECT `+recordColumns+` FROM extraction_records WHERE district = ? AND tehsil = ? AND village = ? AND khatiyan_number = ?`,
		n.District, n.Tehsil, n.Village, n.KhatiyanNumber,
	)
	rec, err := scanSQLiteRecord(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrap(err, "sqlite: get record by identity")
	}
	return rec, nil
}

func scanSQLiteRecord(row *sql.Row) (*model.ExtractionRecord, error) {
	var r model.ExtractionRecord
	var districtID, tehsilID, villageID sql.NullInt64
	err := row.Scan(
		&r.ID, &r.Identity.District, &r.Identity.Tehsil, &r.Identity.Village, &r.Identity.KhatiyanNumber,
		&r.NativeDistrict, &r.NativeTehsil, &r.NativeVillage,
		&r.SourceURL, &r.RawHTML, &r.RawText,
		&districtID, &tehsilID, &villageID,
		&r.DistrictSourceID, &r.TehsilSourceID, &r.VillageSourceID,
		&r.ViewerURL, &r.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if districtID.Valid {
		r.DistrictID = &districtID.Int64
	}
	if tehsilID.Valid {
		r.TehsilID = &tehsilID.Int64
	}
	if villageID.Valid {
		r.VillageID = &villageID.Int64
	}
	return &r, nil
}

func (s *SQLiteStore) InsertFieldExtraction(ctx context.Context, fe *model.FieldExtraction) error {
	if fe.CreatedAt.IsZero() {
		fe.CreatedAt = time.Now().UTC()
	}
	if fe.Feedback == "" {
		fe.Feedback = model.FeedbackPending
	}

	bundleJSON, err := json.Marshal(fe.Bundle)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal bundle")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO field_extractions (id, record_id, method, version, confidence, extraction_data, elapsed_ms, feedback, feedback_comment, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (record_id, method, version) DO NOTHING`,
		fe.ID, fe.RecordID, string(fe.Method), fe.Version, string(fe.Confidence),
		string(bundleJSON), fe.ElapsedMS, string(fe.Feedback), fe.FeedbackComment, fe.CreatedAt,
	)
	return eris.Wrap(err, "sqlite: insert field extraction")
}

func (s *SQLiteStore) ListExtractions(ctx context.Context, recordID string) ([]model.FieldExtraction, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, record_id, method, version, confidence, extraction_data, elapsed_ms, feedback, feedback_comment, created_at
		 FROM field_extractions WHERE record_id = ? ORDER BY created_at ASC`,
		recordID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list extractions")
	}
	defer rows.Close()

	var out []model.FieldExtraction
	for rows.Next() {
		var fe model.FieldExtraction
		var bundleJSON string
		if err := rows.Scan(&fe.ID, &fe.RecordID, &fe.Method, &fe.Version, &fe.Confidence,
			&bundleJSON, &fe.ElapsedMS, &fe.Feedback, &fe.FeedbackComment, &fe.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan extraction")
		}
		if err := json.Unmarshal([]byte(bundleJSON), &fe.Bundle); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal bundle")
		}
		out = append(out, fe)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list extractions iterate")
}

func (s *SQLiteStore) UpdateExtractionFeedback(ctx context.Context, id string, fb model.Feedback, comment string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE field_extractions SET feedback = ?, feedback_comment = ? WHERE id = ?`,
		string(fb), comment, id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update feedback %s", id)
	}
	return checkRowsAffected(res, "extraction", id)
}

func (s *SQLiteStore) AppendLocationAudit(ctx context.Context, a *model.LocationMatchAudit) error {
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO location_match_audits (id, record_id, location_type, native_input, english_input, match_status, matched_id, strategy, resolved, resolved_by, resolution_notes, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.RecordID, string(a.LocationType), a.NativeInput, a.EnglishInput,
		string(a.Status), a.MatchedID, a.Strategy, a.Resolved, a.ResolvedBy, a.ResolutionNotes, a.CreatedAt,
	)
	return eris.Wrap(err, "sqlite: append location audit")
}

func (s *SQLiteStore) ListUnresolvedAudits(ctx context.Context, limit int) ([]model.LocationMatchAudit, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, record_id, location_type, native_input, english_input, match_status, matched_id, strategy, resolved, resolved_by, resolution_notes, created_at
		 FROM location_match_audits WHERE resolved = 0 ORDER BY created_at ASC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list unresolved audits")
	}
	defer rows.Close()

	var out []model.LocationMatchAudit
	for rows.Next() {
		var a model.LocationMatchAudit
		var matchedID sql.NullInt64
		if err := rows.Scan(&a.ID, &a.RecordID, &a.LocationType, &a.NativeInput, &a.EnglishInput,
			&a.Status, &matchedID, &a.Strategy, &a.Resolved, &a.ResolvedBy, &a.ResolutionNotes, &a.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan audit")
		}
		if matchedID.Valid {
			a.MatchedID = &matchedID.Int64
		}
		out = append(out, a)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list unresolved audits iterate")
}

func (s *SQLiteStore) ResolveAudit(ctx context.Context, id, resolvedBy, notes string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE location_match_audits SET resolved = 1, resolved_by = ?, resolution_notes = ? WHERE id = ?`,
		resolvedBy, notes, id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: resolve audit %s", id)
	}
	return checkRowsAffected(res, "audit", id)
}

func (s *SQLiteStore) GetSummary(ctx context.Context, recordID, modelID, promptVersion string) (*model.Summary, error) {
	var sm model.Summary
	err := s.db.QueryRowContext(ctx,
		`SELECT id, record_id, model, prompt_version, content, created_at, expires_at
		 FROM summaries WHERE record_id = ? AND model = ? AND prompt_version = ? AND expires_at > ?`,
		recordID, modelID, promptVersion, time.Now().UTC(),
	).Scan(&sm.ID, &sm.RecordID, &sm.Model, &sm.PromptVersion, &sm.Content, &sm.CreatedAt, &sm.ExpiresAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrap(err, "sqlite: get summary")
	}
	return &sm, nil
}

func (s *SQLiteStore) PutSummary(ctx context.Context, sm *model.Summary) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO summaries (id, record_id, model, prompt_version, content, created_at, expires_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (record_id, model, prompt_version) DO UPDATE SET content = excluded.content, created_at = excluded.created_at, expires_at = excluded.expires_at`,
		sm.ID, sm.RecordID, sm.Model, sm.PromptVersion, sm.Content, sm.CreatedAt, sm.ExpiresAt,
	)
	return eris.Wrap(err, "sqlite: put summary")
}

func (s *SQLiteStore) Districts(ctx context.Context) ([]resolve.District, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, source_id, native_name, english_name FROM districts ORDER BY id ASC`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list districts")
	}
	defer rows.Close()

	var out []resolve.District
	for rows.Next() {
		var d resolve.District
		if err := rows.Scan(&d.ID, &d.SourceID, &d.NativeName, &d.EnglishName); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan district")
		}
		out = append(out, d)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list districts iterate")
}

func (s *SQLiteStore) TehsilsByDistrict(ctx context.Context, districtID int64) ([]resolve.Tehsil, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, district_id, source_id, native_name, english_name FROM tahasils WHERE district_id = ? ORDER BY id ASC`,
		districtID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list tahasils")
	}
	defer rows.Close()

	var out []resolve.Tehsil
	for rows.Next() {
		var t resolve.Tehsil
		if err := rows.Scan(&t.ID, &t.DistrictID, &t.SourceID, &t.NativeName, &t.EnglishName); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan tahasil")
		}
		out = append(out, t)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list tahasils iterate")
}

func (s *SQLiteStore) VillagesByTehsil(ctx context.Context, districtID, tehsilID int64) ([]resolve.Village, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, district_id, tahasil_id, source_id, native_name, english_name FROM villages WHERE district_id = ? AND tahasil_id = ? ORDER BY id ASC`,
		districtID, tehsilID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list villages")
	}
	defer rows.Close()

	var out []resolve.Village
	for rows.Next() {
		var v resolve.Village
		if err := rows.Scan(&v.ID, &v.DistrictID, &v.TehsilID, &v.SourceID, &v.NativeName, &v.EnglishName); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan village")
		}
		out = append(out, v)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list villages iterate")
}

// ImportMaster upserts a master-data payload inside one transaction so a
// partial import never leaves a district without its subtree.
func (s *SQLiteStore) ImportMaster(ctx context.Context, districts []model.MasterDistrict) (*model.MasterImportStats, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: import master begin")
	}
	defer tx.Rollback()

	stats := &model.MasterImportStats{}
	for _, d := range districts {
		var districtID int64
		err := tx.QueryRowContext(ctx,
			`INSERT INTO districts (source_id, native_name, english_name) VALUES (?, ?, ?)
			 ON CONFLICT (source_id) DO UPDATE SET native_name = excluded.native_name, english_name = excluded.english_name
			 RETURNING id`,
			d.SourceID, d.NativeName, d.EnglishName,
		).Scan(&districtID)
		if err != nil {
			return nil, eris.Wrapf(err, "sqlite: import district %s", d.SourceID)
		}
		stats.Districts++

		for _, t := range d.Tehsils {
			var tehsilID int64
			err := tx.QueryRowContext(ctx,
				`INSERT INTO tahasils (district_id, source_id, native_name, english_name) VALUES (?, ?, ?, ?)
				 ON CONFLICT (district_id, source_id) DO UPDATE SET native_name = excluded.native_name, english_name = excluded.english_name
				 RETURNING id`,
				districtID, t.SourceID, t.NativeName, t.EnglishName,
			).Scan(&tehsilID)
			if err != nil {
				return nil, eris.Wrapf(err, "sqlite: import tahasil %s", t.SourceID)
			}
			stats.Tehsils++

			for _, v := range t.Villages {
				if _, err := tx.ExecContext(ctx,
					`INSERT INTO villages (district_id, tahasil_id, source_id, native_name, english_name) VALUES (?, ?, ?, ?, ?)
					 ON CONFLICT (tahasil_id, source_id) DO UPDATE SET native_name = excluded.native_name, english_name = excluded.english_name`,
					districtID, tehsilID, v.SourceID, v.NativeName, v.EnglishName,
				); err != nil {
					return nil, eris.Wrapf(err, "sqlite: import village %s", v.SourceID)
				}
				stats.Villages++
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, eris.Wrap(err, "sqlite: import master commit")
	}
	return stats, nil
}

func checkRowsAffected(res sql.Result, kind, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrapf(err, "sqlite: rows affected for %s %s", kind, id)
	}
	if n == 0 {
		return eris.Errorf("%s not found: %s", kind, id)
	}
	return nil
}
