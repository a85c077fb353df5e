package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bhulekh-seva/ror-cli/internal/model"
	"github.com/bhulekh-seva/ror-cli/internal/prompts"
	"github.com/bhulekh-seva/ror-cli/pkg/anthropic"
)

type fakeAnthropic struct {
	calls      int
	reply      string
	err        error
	lastPrompt string
}

func (f *fakeAnthropic) CreateMessage(ctx context.Context, req anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
	f.calls++
	if len(req.Messages) > 0 {
		f.lastPrompt = req.Messages[0].Content
	}
	if f.err != nil {
		return nil, f.err
	}
	return &anthropic.MessageResponse{
		Content: []anthropic.ContentBlock{{Type: "text", Text: f.reply}},
		Usage:   anthropic.TokenUsage{InputTokens: 100, OutputTokens: 50},
	}, nil
}

func seedRecord(t *testing.T, st *memStore) *model.ExtractionRecord {
	t.Helper()
	p := newProcessor(st, nil)
	res, err := p.Process(context.Background(), PageInput{URL: "u", HTML: rorPage})
	require.NoError(t, err)
	return res.Record
}

func newSummarizer(st *memStore, client anthropic.Client) *Summarizer {
	ps := prompts.NewService("", time.Hour, "")
	return NewSummarizer(st, client, ps, "claude-sonnet-4-5-20250929", "summary-v1", time.Hour)
}

func TestSummarize_GeneratesAndCaches(t *testing.T) {
	st := newMemStore()
	rec := seedRecord(t, st)
	client := &fakeAnthropic{reply: "Anita Sahoo holds khatiyan 1245 in Badagada village."}
	s := newSummarizer(st, client)

	first, err := s.Summarize(context.Background(), rec.ID, false)
	require.NoError(t, err)
	assert.False(t, first.Cached)
	assert.Equal(t, "Anita Sahoo holds khatiyan 1245 in Badagada village.", first.Summary.Content)
	assert.Equal(t, rec.ID, first.Summary.RecordID)
	assert.True(t, first.Summary.ExpiresAt.After(first.Summary.CreatedAt))

	// The prompt carries the record payload, not the raw template placeholder.
	assert.Contains(t, client.lastPrompt, "Badagada")
	assert.NotContains(t, client.lastPrompt, "%s")

	second, err := s.Summarize(context.Background(), rec.ID, false)
	require.NoError(t, err)
	assert.True(t, second.Cached)
	assert.Equal(t, first.Summary.Content, second.Summary.Content)
	assert.Equal(t, 1, client.calls, "cache hit must not call the model")
}

func TestSummarize_ForceRegenerates(t *testing.T) {
	st := newMemStore()
	rec := seedRecord(t, st)
	client := &fakeAnthropic{reply: "summary text"}
	s := newSummarizer(st, client)

	_, err := s.Summarize(context.Background(), rec.ID, false)
	require.NoError(t, err)

	res, err := s.Summarize(context.Background(), rec.ID, true)
	require.NoError(t, err)
	assert.False(t, res.Cached)
	assert.Equal(t, 2, client.calls)
}

func TestSummarize_ExpiredCacheRegenerates(t *testing.T) {
	st := newMemStore()
	rec := seedRecord(t, st)
	client := &fakeAnthropic{reply: "fresh summary"}
	s := newSummarizer(st, client)

	stale := &model.Summary{
		ID:            "stale",
		RecordID:      rec.ID,
		Model:         "claude-sonnet-4-5-20250929",
		PromptVersion: "summary-v1",
		Content:       "stale summary",
		CreatedAt:     time.Now().UTC().Add(-2 * time.Hour),
		ExpiresAt:     time.Now().UTC().Add(-time.Hour),
	}
	require.NoError(t, st.PutSummary(context.Background(), stale))

	res, err := s.Summarize(context.Background(), rec.ID, false)
	require.NoError(t, err)
	assert.False(t, res.Cached)
	assert.Equal(t, "fresh summary", res.Summary.Content)
}

func TestSummarize_RecordNotFound(t *testing.T) {
	s := newSummarizer(newMemStore(), &fakeAnthropic{reply: "x"})

	_, err := s.Summarize(context.Background(), "missing", false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "record not found")
}

func TestSummarize_NoExtractions(t *testing.T) {
	st := newMemStore()
	rec := &model.ExtractionRecord{
		ID:       "rec-1",
		Identity: model.RecordIdentity{District: "Khordha", Tehsil: "Bhubaneswar", Village: "Badagada", KhatiyanNumber: "9"},
	}
	_, _, err := st.UpsertRecord(context.Background(), rec)
	require.NoError(t, err)

	s := newSummarizer(st, &fakeAnthropic{reply: "x"})
	_, err = s.Summarize(context.Background(), "rec-1", false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no extractions")
}

func TestSummarize_EmptyModelReply(t *testing.T) {
	st := newMemStore()
	rec := seedRecord(t, st)
	s := newSummarizer(st, &fakeAnthropic{reply: "   "})

	_, err := s.Summarize(context.Background(), rec.ID, false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty model reply")
}

func TestSummarize_ModelErrorPropagates(t *testing.T) {
	st := newMemStore()
	rec := seedRecord(t, st)
	s := newSummarizer(st, &fakeAnthropic{err: eris.New("rate limited")})

	_, err := s.Summarize(context.Background(), rec.ID, false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "create message")
}
