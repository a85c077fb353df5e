// Package prompts fetches prompt templates from a remote prompt API with a
// TTL-bounded in-memory cache and a local file fallback. Nothing is fetched
// at construction time; the first Get triggers the first network call.
package prompts

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// DefaultTTL is how long a fetched prompt stays fresh.
const DefaultTTL = time.Hour

// Service resolves prompt names to template text.
type Service struct {
	baseURL     string
	ttl         time.Duration
	fallbackDir string
	client      *http.Client

	mu    sync.Mutex
	cache map[string]cachedPrompt
}

type cachedPrompt struct {
	text      string
	fetchedAt time.Time
	source    string // "api" or "file"
}

// NewService creates a prompt service. baseURL may be empty, in which case
// only the file fallback is consulted.
func NewService(baseURL string, ttl time.Duration, fallbackDir string) *Service {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Service{
		baseURL:     strings.TrimRight(baseURL, "/"),
		ttl:         ttl,
		fallbackDir: fallbackDir,
		client:      &http.Client{Timeout: 10 * time.Second},
		cache:       make(map[string]cachedPrompt),
	}
}

// Get returns the prompt with the given name, trying cache, then the remote
// API, then the local fallback file <fallbackDir>/<name>.txt, then the
// supplied built-in default. It fails only when every source is exhausted.
func (s *Service) Get(ctx context.Context, name, builtin string) (string, error) {
	s.mu.Lock()
	if c, ok := s.cache[name]; ok && time.Since(c.fetchedAt) < s.ttl {
		s.mu.Unlock()
		return c.text, nil
	}
	s.mu.Unlock()

	if s.baseURL != "" {
		text, err := s.fetch(ctx, name)
		if err == nil {
			s.put(name, text, "api")
			return text, nil
		}
		zap.L().Warn("prompts: api fetch failed, trying fallback",
			zap.String("prompt", name),
			zap.Error(err),
		)
	}

	if s.fallbackDir != "" {
		data, err := os.ReadFile(filepath.Join(s.fallbackDir, name+".txt"))
		if err == nil {
			text := strings.TrimSpace(string(data))
			s.put(name, text, "file")
			return text, nil
		}
	}

	if builtin != "" {
		return builtin, nil
	}
	return "", eris.Errorf("prompts: no source available for %q", name)
}

// Invalidate drops a cached prompt so the next Get refetches it. An empty
// name clears the whole cache.
func (s *Service) Invalidate(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if name == "" {
		s.cache = make(map[string]cachedPrompt)
		return
	}
	delete(s.cache, name)
}

func (s *Service) put(name, text, source string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache[name] = cachedPrompt{text: text, fetchedAt: time.Now(), source: source}
}

func (s *Service) fetch(ctx context.Context, name string) (string, error) {
	u := s.baseURL + "/api/cmn/get_prompt?name=" + url.QueryEscape(name)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return "", eris.Wrap(err, "prompts: build request")
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return "", eris.Wrap(err, "prompts: fetch")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return "", eris.Errorf("prompts: api status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 256*1024))
	if err != nil {
		return "", eris.Wrap(err, "prompts: read body")
	}

	var payload struct {
		Prompt string `json:"prompt"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return "", eris.Wrap(err, "prompts: decode response")
	}
	if payload.Prompt == "" {
		return "", eris.New("prompts: api response missing prompt field")
	}
	return payload.Prompt, nil
}
