package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"moex-bond-screener/internal/app"
)

var (
	screenQuery queryFlags
	runsLimit   int
)

var screenCmd = &cobra.Command{
	Use:   "screen",
	Short: "List stored bonds matching the filters, best yield first",
	RunE: func(cmd *cobra.Command, args []string) error {
		a := getApp()
		q := screenQuery.apply(cmd, a.Config.Screening.Query())
		return a.Screen(cmd.Context(), app.ScreenOptions{Query: q})
	},
}

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Display recent ingestion runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		if runsLimit <= 0 {
			return fmt.Errorf("--limit must be greater than zero")
		}
		return getApp().Runs(cmd.Context(), app.RunsOptions{Limit: runsLimit})
	},
}

func init() {
	screenQuery.register(screenCmd, true)
	runsCmd.Flags().IntVar(&runsLimit, "limit", 20, "Number of runs to display")
}
