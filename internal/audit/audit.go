// Package audit persists a review trail for location matching. Every
// attempted level of the hierarchy gets one row per resolution run; failed
// matches stay open until an operator resolves them.
package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/bhulekh-seva/ror-cli/internal/model"
	"github.com/bhulekh-seva/ror-cli/internal/resolve"
)

// Store is the persistence surface the auditor needs.
type Store interface {
	AppendLocationAudit(ctx context.Context, a *model.LocationMatchAudit) error
	ListUnresolvedAudits(ctx context.Context, limit int) ([]model.LocationMatchAudit, error)
	ResolveAudit(ctx context.Context, id, resolvedBy, notes string) error
}

// Auditor writes and reviews location match audit rows.
type Auditor struct {
	store Store
}

// NewAuditor creates an Auditor backed by the given store.
func NewAuditor(store Store) *Auditor {
	return &Auditor{store: store}
}

// RecordOutcomes appends one audit row per attempted resolution level.
// Successful matches are stored pre-resolved; failures stay open for review.
// Rows are append-only: a later re-resolution of the same record adds new
// rows rather than rewriting old ones.
func (a *Auditor) RecordOutcomes(ctx context.Context, recordID string, outcomes []resolve.LevelOutcome) error {
	for _, o := range outcomes {
		row := &model.LocationMatchAudit{
			ID:           uuid.NewString(),
			RecordID:     recordID,
			LocationType: o.Level,
			NativeInput:  o.NativeInput,
			EnglishInput: o.EnglishInput,
			Status:       o.Status,
			MatchedID:    o.MatchedID,
			Strategy:     o.Strategy,
			Resolved:     o.Status == model.MatchSuccess,
			CreatedAt:    time.Now().UTC(),
		}
		if err := a.store.AppendLocationAudit(ctx, row); err != nil {
			return eris.Wrapf(err, "audit: append %s row", o.Level)
		}
		if o.Status == model.MatchFailed {
			zap.L().Warn("audit: unmatched location recorded",
				zap.String("record_id", recordID),
				zap.String("level", string(o.Level)),
				zap.String("english_input", o.EnglishInput),
			)
		}
	}
	return nil
}

// ListPending returns open (failed, unresolved) audit rows for operator
// review, oldest first.
func (a *Auditor) ListPending(ctx context.Context, limit int) ([]model.LocationMatchAudit, error) {
	rows, err := a.store.ListUnresolvedAudits(ctx, limit)
	if err != nil {
		return nil, eris.Wrap(err, "audit: list pending")
	}
	return rows, nil
}

// MarkResolved closes an open audit row with the reviewer's identity and
// notes.
func (a *Auditor) MarkResolved(ctx context.Context, id, resolvedBy, notes string) error {
	if err := a.store.ResolveAudit(ctx, id, resolvedBy, notes); err != nil {
		return eris.Wrapf(err, "audit: resolve %s", id)
	}
	zap.L().Info("audit: row resolved",
		zap.String("audit_id", id),
		zap.String("resolved_by", resolvedBy),
	)
	return nil
}
