package main

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/bhulekh-seva/ror-cli/internal/geodata"
)

var geoCmd = &cobra.Command{
	Use:   "geo",
	Short: "Master geographic dataset management",
	Long:  "Import the district/tahasil/village master dataset and review location match audits.",
}

var geoImportCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Import a master dataset from an XLSX or YAML file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		if err := st.Migrate(ctx); err != nil {
			return err
		}

		districts, err := geodata.Load(args[0])
		if err != nil {
			return err
		}

		stats, err := st.ImportMaster(ctx, districts)
		if err != nil {
			return err
		}

		zap.L().Info("master dataset imported",
			zap.String("file", args[0]),
			zap.Int("districts", stats.Districts),
			zap.Int("tahasils", stats.Tehsils),
			zap.Int("villages", stats.Villages),
		)
		return nil
	},
}

var auditsLimit int

var geoAuditsCmd = &cobra.Command{
	Use:   "audits",
	Short: "List unresolved location match audits",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		rows, err := st.ListUnresolvedAudits(ctx, auditsLimit)
		if err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(rows)
	},
}

var (
	resolveBy    string
	resolveNotes string
)

var geoResolveCmd = &cobra.Command{
	Use:   "resolve <audit-id>",
	Short: "Mark a location match audit as resolved",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		if err := st.ResolveAudit(ctx, args[0], resolveBy, resolveNotes); err != nil {
			return err
		}
		zap.L().Info("audit resolved", zap.String("audit_id", args[0]), zap.String("by", resolveBy))
		return nil
	},
}

func init() {
	geoAuditsCmd.Flags().IntVar(&auditsLimit, "limit", 50, "maximum audits to list")
	geoResolveCmd.Flags().StringVar(&resolveBy, "by", "", "reviewer identity")
	geoResolveCmd.Flags().StringVar(&resolveNotes, "notes", "", "resolution notes")
	_ = geoResolveCmd.MarkFlagRequired("by")

	geoCmd.AddCommand(geoImportCmd, geoAuditsCmd, geoResolveCmd)
	rootCmd.AddCommand(geoCmd)
}
