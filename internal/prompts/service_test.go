package prompts

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGet_FromAPI(t *testing.T) {
	var requests int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		assert.Equal(t, "/api/cmn/get_prompt", r.URL.Path)
		assert.Equal(t, "ror_extraction", r.URL.Query().Get("name"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"prompt": "remote template %s"}`))
	}))
	defer srv.Close()

	s := NewService(srv.URL, time.Hour, "")

	text, err := s.Get(context.Background(), "ror_extraction", "builtin")
	require.NoError(t, err)
	assert.Equal(t, "remote template %s", text)

	// Second Get within the TTL is served from cache.
	_, err = s.Get(context.Background(), "ror_extraction", "builtin")
	require.NoError(t, err)
	assert.Equal(t, 1, requests)
}

func TestGet_TTLExpiryRefetches(t *testing.T) {
	var requests int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		_, _ = w.Write([]byte(`{"prompt": "v"}`))
	}))
	defer srv.Close()

	s := NewService(srv.URL, time.Nanosecond, "")

	_, err := s.Get(context.Background(), "p", "")
	require.NoError(t, err)
	time.Sleep(time.Millisecond)
	_, err = s.Get(context.Background(), "p", "")
	require.NoError(t, err)
	assert.Equal(t, 2, requests)
}

func TestGet_FileFallback(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "ror_summary.txt"), []byte("file template\n"), 0o644))

	s := NewService(srv.URL, time.Hour, dir)

	text, err := s.Get(context.Background(), "ror_summary", "builtin")
	require.NoError(t, err)
	assert.Equal(t, "file template", text)
}

func TestGet_BuiltinFallback(t *testing.T) {
	s := NewService("", time.Hour, t.TempDir())

	text, err := s.Get(context.Background(), "absent", "builtin default")
	require.NoError(t, err)
	assert.Equal(t, "builtin default", text)
}

func TestGet_AllSourcesExhausted(t *testing.T) {
	s := NewService("", time.Hour, "")

	_, err := s.Get(context.Background(), "absent", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no source available")
}

func TestGet_MalformedAPIResponseFallsThrough(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`not json`))
	}))
	defer srv.Close()

	s := NewService(srv.URL, time.Hour, "")

	text, err := s.Get(context.Background(), "p", "builtin")
	require.NoError(t, err)
	assert.Equal(t, "builtin", text)
}

func TestInvalidate(t *testing.T) {
	var requests int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		_, _ = w.Write([]byte(`{"prompt": "v"}`))
	}))
	defer srv.Close()

	s := NewService(srv.URL, time.Hour, "")

	_, err := s.Get(context.Background(), "a", "")
	require.NoError(t, err)
	_, err = s.Get(context.Background(), "b", "")
	require.NoError(t, err)
	require.Equal(t, 2, requests)

	s.Invalidate("a")
	_, err = s.Get(context.Background(), "a", "")
	require.NoError(t, err)
	_, err = s.Get(context.Background(), "b", "")
	require.NoError(t, err)
	assert.Equal(t, 3, requests, "only the invalidated prompt refetches")

	s.Invalidate("")
	_, err = s.Get(context.Background(), "b", "")
	require.NoError(t, err)
	assert.Equal(t, 4, requests)
}
