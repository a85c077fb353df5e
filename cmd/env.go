package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/bhulekh-seva/ror-cli/internal/audit"
	"github.com/bhulekh-seva/ror-cli/internal/extract"
	"github.com/bhulekh-seva/ror-cli/internal/pipeline"
	"github.com/bhulekh-seva/ror-cli/internal/prompts"
	"github.com/bhulekh-seva/ror-cli/internal/resolve"
	"github.com/bhulekh-seva/ror-cli/internal/store"
	anthropicpkg "github.com/bhulekh-seva/ror-cli/pkg/anthropic"
)

// appEnv holds the initialized store and pipeline pieces shared by the
// extract/serve/geo commands.
type appEnv struct {
	Store      store.Store
	Processor  *pipeline.Processor
	Summarizer *pipeline.Summarizer
	Auditor    *audit.Auditor
}

// Close releases resources held by the environment.
func (e *appEnv) Close() {
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

// initStore opens the configured database backend.
func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, &store.PoolConfig{
			MaxConns: cfg.Store.MaxConns,
			MinConns: cfg.Store.MinConns,
		})
	case "sqlite", "":
		return store.NewSQLite(cfg.Store.DatabaseURL)
	default:
		return nil, eris.Errorf("unknown store driver: %s", cfg.Store.Driver)
	}
}

// initEnv sets up the store (running migrations), the Anthropic client, and
// the pipeline. Callers should defer env.Close().
func initEnv(ctx context.Context) (*appEnv, error) {
	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	client := anthropicpkg.NewClient(cfg.Anthropic.Key, cfg.Anthropic.RequestsPerSec)
	promptSvc := prompts.NewService(
		cfg.Prompts.BaseURL,
		time.Duration(cfg.Prompts.TTLMins)*time.Minute,
		cfg.Prompts.FallbackDir,
	)

	extractor := extract.NewAnthropicExtractor(client, promptSvc, cfg.Anthropic.Model, cfg.Anthropic.ExtractVersion)
	orch := extract.NewOrchestrator(extractor, time.Duration(cfg.Extract.LLMTimeoutSecs)*time.Second)

	resolver := resolve.NewResolver(st)
	auditor := audit.NewAuditor(st)

	return &appEnv{
		Store:      st,
		Processor:  pipeline.NewProcessor(st, orch, resolver, auditor),
		Summarizer: pipeline.NewSummarizer(st, client, promptSvc, cfg.Anthropic.Model, cfg.Anthropic.SummaryVersion, time.Duration(cfg.Summary.TTLHours)*time.Hour),
		Auditor:    auditor,
	}, nil
}
