package model

import (
	"strings"
	"time"
)

// ExtractionMethod tags which path produced a field bundle.
type ExtractionMethod string

const (
	MethodHTMLParser  ExtractionMethod = "html_parser"
	MethodLLMFallback ExtractionMethod = "llm_fallback"
	MethodLLMOnly     ExtractionMethod = "llm_only"
)

// ConfidenceBucket classifies parser output completeness.
type ConfidenceBucket string

const (
	ConfidenceHigh   ConfidenceBucket = "high"
	ConfidenceMedium ConfidenceBucket = "medium"
	ConfidenceLow    ConfidenceBucket = "low"
)

// Feedback is the user-review state of a FieldExtraction.
type Feedback string

const (
	FeedbackPending Feedback = "pending"
	FeedbackCorrect Feedback = "correct"
	FeedbackWrong   Feedback = "wrong"
)

// LocationType identifies a level of the district → tehsil → village hierarchy.
type LocationType string

const (
	LocationDistrict LocationType = "district"
	LocationTehsil   LocationType = "tehsil"
	LocationVillage  LocationType = "village"
)

// MatchStatus is the outcome of one location resolution attempt.
type MatchStatus string

const (
	MatchSuccess MatchStatus = "success"
	MatchFailed  MatchStatus = "failed"
)

// RecordIdentity is the natural composite key of a land record, as submitted
// (pre-resolution text). Two submissions with the same identity refer to the
// same record.
type RecordIdentity struct {
	District       string `json:"district"`
	Tehsil         string `json:"tehsil"`
	Village        string `json:"village"`
	KhatiyanNumber string `json:"khatiyan_number"`
}

// Normalized returns the identity with surrounding whitespace trimmed on every
// component. Lookups and uniqueness use the normalized form.
func (id RecordIdentity) Normalized() RecordIdentity {
	return RecordIdentity{
		District:       strings.TrimSpace(id.District),
		Tehsil:         strings.TrimSpace(id.Tehsil),
		Village:        strings.TrimSpace(id.Village),
		KhatiyanNumber: strings.TrimSpace(id.KhatiyanNumber),
	}
}

// Complete reports whether all four identity components are non-empty.
func (id RecordIdentity) Complete() bool {
	n := id.Normalized()
	return n.District != "" && n.Tehsil != "" && n.Village != "" && n.KhatiyanNumber != ""
}

// ExtractionRecord is one land record page, identified by its natural key.
// Raw content is immutable after creation; geographic IDs are computed once at
// creation time and are populated only when the full three-level hierarchy
// resolved consistently.
type ExtractionRecord struct {
	ID       string         `json:"id"`
	Identity RecordIdentity `json:"identity"`

	NativeDistrict string `json:"native_district,omitempty"`
	NativeTehsil   string `json:"native_tehsil,omitempty"`
	NativeVillage  string `json:"native_village,omitempty"`

	SourceURL string `json:"source_url"`
	RawHTML   string `json:"raw_html"`
	RawText   string `json:"raw_text,omitempty"`

	DistrictID *int64 `json:"district_id,omitempty"`
	TehsilID   *int64 `json:"tehsil_id,omitempty"`
	VillageID  *int64 `json:"village_id,omitempty"`

	DistrictSourceID string `json:"district_source_id,omitempty"`
	TehsilSourceID   string `json:"tehsil_source_id,omitempty"`
	VillageSourceID  string `json:"village_source_id,omitempty"`

	ViewerURL string `json:"viewer_url,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// Resolved reports whether the full hierarchy resolved.
func (r *ExtractionRecord) Resolved() bool {
	return r.DistrictID != nil && r.TehsilID != nil && r.VillageID != nil
}

// FieldExtraction is one extraction attempt for a record, unique per
// (record, method, version). Feedback fields are the only mutable part.
type FieldExtraction struct {
	ID         string           `json:"id"`
	RecordID   string           `json:"record_id"`
	Method     ExtractionMethod `json:"method"`
	Version    string           `json:"version"`
	Confidence ConfidenceBucket `json:"confidence,omitempty"` // parser-only
	Bundle     FieldBundle      `json:"bundle"`
	ElapsedMS  int64            `json:"elapsed_ms"`

	Feedback        Feedback `json:"feedback"`
	FeedbackComment string   `json:"feedback_comment,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// LocationMatchAudit is one append-only log row per resolution attempt per
// hierarchy level. A resolved=false row may later be flipped to resolved=true
// by manual remediation, never automatically.
type LocationMatchAudit struct {
	ID           string       `json:"id"`
	RecordID     string       `json:"record_id"`
	LocationType LocationType `json:"location_type"`
	NativeInput  string       `json:"native_input,omitempty"`
	EnglishInput string       `json:"english_input,omitempty"`
	Status       MatchStatus  `json:"match_status"`
	MatchedID    *int64       `json:"matched_id,omitempty"`
	Strategy     int          `json:"strategy,omitempty"` // 1-4, 0 when failed

	Resolved        bool   `json:"resolved"`
	ResolvedBy      string `json:"resolved_by,omitempty"`
	ResolutionNotes string `json:"resolution_notes,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// Summary is a cached, TTL-bounded human-readable summary of a record, keyed
// by (record, model, prompt version). Regenerated whole when stale.
type Summary struct {
	ID            string    `json:"id"`
	RecordID      string    `json:"record_id"`
	Model         string    `json:"model"`
	PromptVersion string    `json:"prompt_version"`
	Content       string    `json:"content"`
	CreatedAt     time.Time `json:"created_at"`
	ExpiresAt     time.Time `json:"expires_at"`
}

// Expired reports whether the summary is past its TTL at the given instant.
func (s *Summary) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}
