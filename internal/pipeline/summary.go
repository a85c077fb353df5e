package pipeline

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/bhulekh-seva/ror-cli/internal/model"
	"github.com/bhulekh-seva/ror-cli/internal/prompts"
	"github.com/bhulekh-seva/ror-cli/internal/store"
	"github.com/bhulekh-seva/ror-cli/pkg/anthropic"
)

// summaryPromptName is the prompt-service key for the summary template.
const summaryPromptName = "ror_summary"

// defaultSummaryPrompt is the built-in summary template. %s receives the
// record and its latest extraction as JSON.
const defaultSummaryPrompt = `You are summarizing an Odisha Bhulekh Record of Rights (RoR) for a non-expert reader.

Record data:
%s

Write a short plain-language summary covering the owner, location, khatiyan
number, plots and total area, and anything notable in the special comments.
Do not invent values that are not in the data.`

// DefaultSummaryTTL bounds how long a generated summary is served from cache.
const DefaultSummaryTTL = 24 * time.Hour

// SummaryResult is a summary plus whether it came from cache.
type SummaryResult struct {
	Summary *model.Summary
	Cached  bool
}

// Summarizer generates and caches record summaries.
type Summarizer struct {
	store         store.Store
	client        anthropic.Client
	prompts       *prompts.Service
	model         string
	promptVersion string
	ttl           time.Duration
}

// NewSummarizer creates a Summarizer. A non-positive ttl falls back to
// DefaultSummaryTTL.
func NewSummarizer(st store.Store, client anthropic.Client, ps *prompts.Service, modelID, promptVersion string, ttl time.Duration) *Summarizer {
	if ttl <= 0 {
		ttl = DefaultSummaryTTL
	}
	return &Summarizer{
		store:         st,
		client:        client,
		prompts:       ps,
		model:         modelID,
		promptVersion: promptVersion,
		ttl:           ttl,
	}
}

// Summarize returns the cached summary for a record when one is fresh, and
// otherwise generates, stores and returns a new one. force bypasses the
// cache read but still writes the regenerated summary back.
func (s *Summarizer) Summarize(ctx context.Context, recordID string, force bool) (*SummaryResult, error) {
	rec, err := s.store.GetRecord(ctx, recordID)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, eris.Errorf("summarize: record not found: %s", recordID)
	}

	if !force {
		cached, err := s.store.GetSummary(ctx, recordID, s.model, s.promptVersion)
		if err != nil {
			return nil, err
		}
		if cached != nil {
			zap.L().Debug("summarize: cache hit", zap.String("record_id", recordID))
			return &SummaryResult{Summary: cached, Cached: true}, nil
		}
	}

	extractions, err := s.store.ListExtractions(ctx, recordID)
	if err != nil {
		return nil, err
	}
	if len(extractions) == 0 {
		return nil, eris.Errorf("summarize: record has no extractions: %s", recordID)
	}
	latest := extractions[len(extractions)-1]

	payload, err := json.MarshalIndent(map[string]any{
		"identity":   rec.Identity,
		"viewer_url": rec.ViewerURL,
		"extraction": latest.Bundle,
	}, "", "  ")
	if err != nil {
		return nil, eris.Wrap(err, "summarize: marshal payload")
	}

	template, err := s.prompts.Get(ctx, summaryPromptName, defaultSummaryPrompt)
	if err != nil {
		return nil, eris.Wrap(err, "summarize: resolve prompt")
	}
	prompt := strings.Replace(template, "%s", string(payload), 1)

	resp, err := s.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:     s.model,
		MaxTokens: 1024,
		Messages:  []anthropic.Message{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return nil, eris.Wrap(err, "summarize: create message")
	}

	content := strings.TrimSpace(resp.Text())
	if content == "" {
		return nil, eris.New("summarize: empty model reply")
	}

	now := time.Now().UTC()
	sm := &model.Summary{
		ID:            uuid.NewString(),
		RecordID:      recordID,
		Model:         s.model,
		PromptVersion: s.promptVersion,
		Content:       content,
		CreatedAt:     now,
		ExpiresAt:     now.Add(s.ttl),
	}
	if err := s.store.PutSummary(ctx, sm); err != nil {
		return nil, err
	}

	zap.L().Info("summarize: generated",
		zap.String("record_id", recordID),
		zap.String("model", s.model),
		zap.Int64("output_tokens", resp.Usage.OutputTokens),
	)
	return &SummaryResult{Summary: sm, Cached: false}, nil
}
