package main

import (
	"context"
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/bhulekh-seva/ror-cli/internal/pipeline"
)

var (
	extractURL      string
	extractTextFile string
	extractWorkers  int
	extractLLMOnly  bool
)

var extractCmd = &cobra.Command{
	Use:   "extract <html-file>...",
	Short: "Extract RoR pages from saved HTML files",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		if len(args) == 1 {
			return extractOne(ctx, env, args[0])
		}
		if extractURL != "" || extractTextFile != "" {
			return eris.New("--url and --text-file apply to a single html file only")
		}
		return extractMany(ctx, env, args)
	},
}

func extractOne(ctx context.Context, env *appEnv, path string) error {
	html, err := os.ReadFile(path)
	if err != nil {
		return eris.Wrapf(err, "read %s", path)
	}

	var text string
	if extractTextFile != "" {
		data, err := os.ReadFile(extractTextFile)
		if err != nil {
			return eris.Wrapf(err, "read %s", extractTextFile)
		}
		text = string(data)
	}

	result, err := env.Processor.Process(ctx, pipeline.PageInput{
		URL:     extractURL,
		HTML:    string(html),
		Text:    text,
		LLMOnly: extractLLMOnly,
	})
	if err != nil {
		return err
	}

	out := map[string]any{
		"record_id":  result.Record.ID,
		"created":    result.Created,
		"identity":   result.Record.Identity,
		"resolved":   result.Record.Resolved(),
		"viewer_url": result.Record.ViewerURL,
	}
	if result.Extraction != nil {
		out["method"] = result.Extraction.Method
		out["confidence"] = result.Extraction.Confidence
		out["elapsed_ms"] = result.Extraction.ElapsedMS
		out["bundle"] = result.Extraction.Bundle
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

// extractMany processes files concurrently. One bad page fails the batch; the
// store-level identity conflict handling makes partial reruns safe.
func extractMany(ctx context.Context, env *appEnv, paths []string) error {
	summaries := make([]map[string]any, len(paths))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(extractWorkers)
	for i, path := range paths {
		g.Go(func() error {
			html, err := os.ReadFile(path)
			if err != nil {
				return eris.Wrapf(err, "read %s", path)
			}
			result, err := env.Processor.Process(gctx, pipeline.PageInput{HTML: string(html), LLMOnly: extractLLMOnly})
			if err != nil {
				return eris.Wrapf(err, "process %s", path)
			}
			summaries[i] = map[string]any{
				"file":       path,
				"record_id":  result.Record.ID,
				"created":    result.Created,
				"resolved":   result.Record.Resolved(),
				"viewer_url": result.Record.ViewerURL,
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	zap.L().Info("extract: batch completed", zap.Int("pages", len(paths)))
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(summaries)
}

func init() {
	extractCmd.Flags().StringVar(&extractURL, "url", "", "source URL of the page")
	extractCmd.Flags().StringVar(&extractTextFile, "text-file", "", "optional plain-text rendering of the page")
	extractCmd.Flags().IntVar(&extractWorkers, "workers", 4, "concurrent pages when extracting multiple files")
	extractCmd.Flags().BoolVar(&extractLLMOnly, "llm-only", false, "skip the HTML parser (CRoR layouts)")
	rootCmd.AddCommand(extractCmd)
}
