// Package store persists extraction records, field extractions, location
// match audits, summaries and the master geographic dataset, with PostgreSQL
// and SQLite backends behind one interface.
package store

import (
	"context"

	"github.com/bhulekh-seva/ror-cli/internal/model"
	"github.com/bhulekh-seva/ror-cli/internal/resolve"
)

// Store defines the persistence interface for the extraction pipeline.
//
// Identity uniqueness is enforced here, not in callers: UpsertRecord is the
// only write path for records, and a concurrent duplicate insert always
// leaves exactly one row behind.
type Store interface {
	// Records. UpsertRecord inserts rec keyed on its normalized identity and
	// reports whether a new row was created; on conflict the already-stored
	// row is returned and rec is discarded. GetRecordByIdentity returns
	// (nil, nil) when no record exists.
	UpsertRecord(ctx context.Context, rec *model.ExtractionRecord) (*model.ExtractionRecord, bool, error)
	GetRecord(ctx context.Context, id string) (*model.ExtractionRecord, error)
	GetRecordByIdentity(ctx context.Context, identity model.RecordIdentity) (*model.ExtractionRecord, error)

	// Field extractions, unique per (record, method, version). Insert of a
	// duplicate key is a no-op; the stored row wins. Feedback is the only
	// mutable part of an extraction.
	InsertFieldExtraction(ctx context.Context, fe *model.FieldExtraction) error
	ListExtractions(ctx context.Context, recordID string) ([]model.FieldExtraction, error)
	UpdateExtractionFeedback(ctx context.Context, id string, fb model.Feedback, comment string) error

	// Location match audit trail, append-only.
	AppendLocationAudit(ctx context.Context, a *model.LocationMatchAudit) error
	ListUnresolvedAudits(ctx context.Context, limit int) ([]model.LocationMatchAudit, error)
	ResolveAudit(ctx context.Context, id, resolvedBy, notes string) error

	// Summaries, keyed by (record, model, prompt version). GetSummary only
	// returns rows that have not expired; (nil, nil) otherwise.
	GetSummary(ctx context.Context, recordID, modelID, promptVersion string) (*model.Summary, error)
	PutSummary(ctx context.Context, s *model.Summary) error

	// Master geographic dataset. The read side doubles as the resolver's
	// data source; ImportMaster upserts a whole payload keyed on source IDs.
	resolve.MasterGeo
	ImportMaster(ctx context.Context, districts []model.MasterDistrict) (*model.MasterImportStats, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
