package main

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"
)

var summarizeForce bool

var summarizeCmd = &cobra.Command{
	Use:   "summarize <record-id>",
	Short: "Generate or fetch the cached summary for a record",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		result, err := env.Summarizer.Summarize(ctx, args[0], summarizeForce)
		if err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(map[string]any{
			"record_id":  args[0],
			"summary":    result.Summary.Content,
			"cached":     result.Cached,
			"expires_at": result.Summary.ExpiresAt,
		})
	},
}

func init() {
	summarizeCmd.Flags().BoolVar(&summarizeForce, "force", false, "regenerate even when a fresh summary is cached")
	rootCmd.AddCommand(summarizeCmd)
}
