package cli

import (
	"time"

	"github.com/spf13/cobra"
)

var (
	runNow   bool
	runDelay time.Duration
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run scheduled ingestion cycles until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		a := getApp()
		if cmd.Flags().Changed("now") {
			a.Config.Scheduler.RunOnStart = runNow
		}
		if cmd.Flags().Changed("startup-delay") {
			a.Config.Scheduler.StartupDelay = runDelay
		}
		return a.Run(cmd.Context())
	},
}

func init() {
	runCmd.Flags().BoolVar(&runNow, "now", false, "Run one cycle immediately before waiting for the schedule")
	runCmd.Flags().DurationVar(&runDelay, "startup-delay", 0, "Wait this long before the first cycle")
}
