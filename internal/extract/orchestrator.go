// Package extract decides between the deterministic HTML parser and the LLM
// fallback for each page, and tags every result with its method, confidence
// and timing.
package extract

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/bhulekh-seva/ror-cli/internal/model"
	"github.com/bhulekh-seva/ror-cli/internal/parser"
)

// ErrExtractionFailed is returned when the LLM fallback path errors or times
// out. Callers must treat the extraction as not completed; no partial bundle
// accompanies this error.
var ErrExtractionFailed = eris.New("extract: extraction failed")

// Result is a completed extraction: the accepted field bundle plus the
// metadata recorded alongside it on every path.
type Result struct {
	Bundle     model.FieldBundle
	Method     model.ExtractionMethod
	Confidence model.ConfidenceBucket // set only on the parser path
	Version    string                 // parser or prompt version
	ElapsedMS  int64
}

// LLMExtractor is the external LLM-based extractor. It returns a bundle of
// the same shape as the HTML parser.
type LLMExtractor interface {
	Extract(ctx context.Context, html, text string) (model.FieldBundle, error)
	Version() string
}

// Orchestrator runs the parser, scores its output and escalates to the LLM
// extractor when parser confidence is below high.
type Orchestrator struct {
	llm        LLMExtractor
	llmTimeout time.Duration
}

// NewOrchestrator creates an Orchestrator. llm may be nil, in which case
// escalation fails with ErrExtractionFailed. llmTimeout bounds each fallback
// call; zero means the caller's context is the only bound.
func NewOrchestrator(llm LLMExtractor, llmTimeout time.Duration) *Orchestrator {
	return &Orchestrator{llm: llm, llmTimeout: llmTimeout}
}

// Extract parses the HTML and either accepts the parser bundle (confidence
// high) or escalates to the LLM extractor. Parser and LLM fields are never
// mixed in one result, and the LLM call is never retried here.
func (o *Orchestrator) Extract(ctx context.Context, html, text string) (*Result, error) {
	start := time.Now()

	bundle := parser.Parse(html)
	score := parser.Score(bundle)
	bucket := parser.Bucket(score)

	if bucket == model.ConfidenceHigh {
		elapsed := time.Since(start).Milliseconds()
		zap.L().Info("extract: parser accepted",
			zap.Float64("score", score),
			zap.Int64("elapsed_ms", elapsed),
		)
		return &Result{
			Bundle:     bundle,
			Method:     model.MethodHTMLParser,
			Confidence: bucket,
			Version:    parser.Version,
			ElapsedMS:  elapsed,
		}, nil
	}

	zap.L().Info("extract: escalating to llm fallback",
		zap.Float64("score", score),
		zap.String("parser_confidence", string(bucket)),
	)
	return o.runLLM(ctx, start, html, text, model.MethodLLMFallback)
}

// ExtractLLMOnly skips the parser entirely. Used for pages known not to
// follow the RoR layout.
func (o *Orchestrator) ExtractLLMOnly(ctx context.Context, html, text string) (*Result, error) {
	return o.runLLM(ctx, time.Now(), html, text, model.MethodLLMOnly)
}

func (o *Orchestrator) runLLM(ctx context.Context, start time.Time, html, text string, method model.ExtractionMethod) (*Result, error) {
	if o.llm == nil {
		return nil, eris.Wrap(ErrExtractionFailed, "no llm extractor configured")
	}

	llmCtx := ctx
	if o.llmTimeout > 0 {
		var cancel context.CancelFunc
		llmCtx, cancel = context.WithTimeout(ctx, o.llmTimeout)
		defer cancel()
	}

	bundle, err := o.llm.Extract(llmCtx, html, text)
	if err != nil {
		// A cancelled invocation propagates as cancellation, not as a
		// completed-with-failure extraction.
		if ctx.Err() != nil {
			return nil, eris.Wrap(ctx.Err(), "extract: llm fallback abandoned")
		}
		zap.L().Error("extract: llm fallback failed", zap.Error(err))
		return nil, eris.Wrapf(ErrExtractionFailed, "llm extractor: %v", err)
	}

	return &Result{
		Bundle:    bundle,
		Method:    method,
		Version:   o.llm.Version(),
		ElapsedMS: time.Since(start).Milliseconds(),
	}, nil
}
