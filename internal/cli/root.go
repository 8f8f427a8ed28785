package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"moex-bond-screener/internal/app"
	"moex-bond-screener/internal/config"
	"moex-bond-screener/internal/logging"
	"moex-bond-screener/internal/version"
)

var (
	cfgFile   string
	logLevel  string
	appHandle *app.App
)

var rootCmd = &cobra.Command{
	Use:               "bondscreener",
	Short:             "Ingest MOEX bonds, score their net yield and screen them",
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: initApp,
}

// initApp builds the shared application handle once per process. The
// --log-level flag wins over the configured level and must name a real level.
func initApp(cmd *cobra.Command, _ []string) error {
	if appHandle != nil {
		return nil
	}
	if logLevel != "" && !logging.ValidLevel(logLevel) {
		return fmt.Errorf("unknown --log-level %q", logLevel)
	}

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}

	logger := logging.NewLogger(cfg.Logging)
	logger.Debug().
		Str("command", cmd.CommandPath()).
		Str("config", cfgFile).
		Str("level", logging.ParseLevel(cfg.Logging.Level).String()).
		Msg("configuration loaded")

	appHandle = app.NewApp(cfg, logger)
	appHandle.Out = cmd.OutOrStdout()
	return nil
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "bondscreener %s: %v\n", version.Version, err)
		os.Exit(1)
	}
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "Path to configuration file (defaults to ./config.yaml when present)")
	flags.StringVar(&logLevel, "log-level", "", "Override the configured log level (trace, debug, info, warn, error)")

	rootCmd.AddCommand(
		runCmd,
		ingestCmd,
		screenCmd,
		runsCmd,
		exportCmd,
		calcCmd,
		migrateCmd,
		versionCmd,
	)
}

func getApp() *app.App {
	if appHandle == nil {
		panic("application not initialized; PersistentPreRunE not executed")
	}
	return appHandle
}
