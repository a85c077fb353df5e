// Package pipeline wires extraction, location resolution, auditing and
// persistence into the end-to-end page processing flow.
package pipeline

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/bhulekh-seva/ror-cli/internal/audit"
	"github.com/bhulekh-seva/ror-cli/internal/extract"
	"github.com/bhulekh-seva/ror-cli/internal/model"
	"github.com/bhulekh-seva/ror-cli/internal/resolve"
	"github.com/bhulekh-seva/ror-cli/internal/store"
)

// ErrIncompleteIdentity is returned when an extraction yields no usable
// record identity, so the page cannot be keyed or stored.
var ErrIncompleteIdentity = eris.New("pipeline: incomplete record identity")

// PageInput is one submitted RoR page. Identity is optional; when complete it
// short-circuits processing for pages that were already ingested. LLMOnly
// skips the HTML parser, for layouts it does not understand (CRoR pages).
type PageInput struct {
	URL      string
	HTML     string
	Text     string
	Identity model.RecordIdentity
	LLMOnly  bool
}

// ProcessResult reports what Process did for one page.
type ProcessResult struct {
	Record     *model.ExtractionRecord
	Extraction *model.FieldExtraction
	Resolution *resolve.Resolution
	Created    bool // false when the identity already existed
}

// Processor runs the page processing flow.
type Processor struct {
	store    store.Store
	extract  *extract.Orchestrator
	resolver *resolve.Resolver
	auditor  *audit.Auditor
}

// NewProcessor creates a Processor with all dependencies.
func NewProcessor(st store.Store, orch *extract.Orchestrator, res *resolve.Resolver, aud *audit.Auditor) *Processor {
	return &Processor{store: st, extract: orch, resolver: res, auditor: aud}
}

// Process ingests one page: extract fields, resolve the location hierarchy,
// persist the record with its extraction, and append the audit trail.
// Re-submitting a page with a known identity is a no-op that returns the
// stored record.
func (p *Processor) Process(ctx context.Context, in PageInput) (*ProcessResult, error) {
	log := zap.L().With(zap.String("component", "pipeline"), zap.String("url", in.URL))

	if in.Identity.Complete() {
		existing, err := p.store.GetRecordByIdentity(ctx, in.Identity)
		if err != nil {
			return nil, eris.Wrap(err, "pipeline: dedupe lookup")
		}
		if existing != nil {
			log.Info("pipeline: identity already ingested, skipping extraction",
				zap.String("record_id", existing.ID))
			return &ProcessResult{Record: existing, Created: false}, nil
		}
	}

	var extRes *extract.Result
	var err error
	if in.LLMOnly {
		extRes, err = p.extract.ExtractLLMOnly(ctx, in.HTML, in.Text)
	} else {
		extRes, err = p.extract.Extract(ctx, in.HTML, in.Text)
	}
	if err != nil {
		return nil, err
	}

	identity := extRes.Bundle.Identity().Normalized()
	if !identity.Complete() {
		return nil, eris.Wrapf(ErrIncompleteIdentity, "method %s", extRes.Method)
	}

	// A second dedupe pass with the extracted identity; the first one only
	// fires when the caller already knew the key.
	existing, err := p.store.GetRecordByIdentity(ctx, identity)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: post-extract dedupe lookup")
	}
	if existing != nil {
		log.Info("pipeline: extracted identity already ingested",
			zap.String("record_id", existing.ID))
		return &ProcessResult{Record: existing, Created: false}, nil
	}

	resolution, err := p.resolver.Resolve(ctx, resolve.Input{
		District:       identity.District,
		NativeDistrict: extRes.Bundle.Location.NativeDistrict.Value,
		Tehsil:         identity.Tehsil,
		NativeTehsil:   extRes.Bundle.Location.NativeTehsil.Value,
		Village:        identity.Village,
		NativeVillage:  extRes.Bundle.Location.NativeVillage.Value,
		KhatiyanNumber: identity.KhatiyanNumber,
	})
	if err != nil {
		return nil, err
	}

	rec := &model.ExtractionRecord{
		ID:             uuid.NewString(),
		Identity:       identity,
		NativeDistrict: extRes.Bundle.Location.NativeDistrict.Value,
		NativeTehsil:   extRes.Bundle.Location.NativeTehsil.Value,
		NativeVillage:  extRes.Bundle.Location.NativeVillage.Value,
		SourceURL:      in.URL,
		RawHTML:        in.HTML,
		RawText:        in.Text,
		CreatedAt:      time.Now().UTC(),
	}
	// Per-level IDs are kept even on partial resolution so a null ID always
	// means that level itself is unresolved. The viewer URL needs all three
	// levels and stays empty otherwise.
	rec.DistrictID = resolution.DistrictID
	rec.TehsilID = resolution.TehsilID
	rec.VillageID = resolution.VillageID
	rec.DistrictSourceID = resolution.DistrictSourceID
	rec.TehsilSourceID = resolution.TehsilSourceID
	rec.VillageSourceID = resolution.VillageSourceID
	rec.ViewerURL = resolution.ViewerURL

	stored, created, err := p.store.UpsertRecord(ctx, rec)
	if err != nil {
		return nil, err
	}
	if !created {
		// Lost a concurrent race for the same identity; the winner's record
		// and audit trail stand.
		log.Info("pipeline: concurrent duplicate, using stored record",
			zap.String("record_id", stored.ID))
		return &ProcessResult{Record: stored, Created: false}, nil
	}

	if err := p.auditor.RecordOutcomes(ctx, stored.ID, resolution.Outcomes); err != nil {
		return nil, err
	}

	fe := &model.FieldExtraction{
		ID:         uuid.NewString(),
		RecordID:   stored.ID,
		Method:     extRes.Method,
		Version:    extRes.Version,
		Confidence: extRes.Confidence,
		Bundle:     extRes.Bundle,
		ElapsedMS:  extRes.ElapsedMS,
		Feedback:   model.FeedbackPending,
		CreatedAt:  time.Now().UTC(),
	}
	if err := p.store.InsertFieldExtraction(ctx, fe); err != nil {
		return nil, err
	}

	log.Info("pipeline: page processed",
		zap.String("record_id", stored.ID),
		zap.String("method", string(extRes.Method)),
		zap.Bool("resolved", resolution.FullyResolved()),
		zap.Int64("elapsed_ms", extRes.ElapsedMS),
	)
	return &ProcessResult{
		Record:     stored,
		Extraction: fe,
		Resolution: resolution,
		Created:    true,
	}, nil
}
