package cli

import (
	"github.com/spf13/cobra"

	"moex-bond-screener/internal/app"
)

var (
	ingestSecIDs []string
	ingestDryRun bool
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Run one ingestion cycle now, optionally for selected bonds only",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Ingest(cmd.Context(), app.IngestOptions{
			SecIDs: ingestSecIDs,
			DryRun: ingestDryRun,
		})
	},
}

func init() {
	ingestCmd.Flags().StringSliceVar(&ingestSecIDs, "secid", nil, "Only ingest these securities (repeatable)")
	ingestCmd.Flags().BoolVar(&ingestDryRun, "dry-run", false, "Enrich and score without writing to the database")
}
