package app

import (
	"context"
	"errors"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"moex-bond-screener/internal/alerting"
	"moex-bond-screener/internal/config"
	"moex-bond-screener/internal/iss"
	"moex-bond-screener/internal/pipeline"
	"moex-bond-screener/internal/scheduler"
	"moex-bond-screener/internal/screening"
	"moex-bond-screener/internal/storage"
	"moex-bond-screener/internal/version"
	"moex-bond-screener/internal/yield"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
	Out    io.Writer
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{
		Config: cfg,
		Logger: logger.With().Str("component", "app").Logger(),
		Out:    os.Stdout,
	}
}

func (a *App) newSources() pipeline.Sources {
	ua := a.Config.ISS.UserAgent
	if ua == "" {
		ua = version.UserAgent()
	}
	client := iss.NewClient(iss.Options{
		BaseURL:   a.Config.ISS.BaseURL,
		Timeout:   a.Config.ISS.RequestTimeout,
		UserAgent: ua,
	}, a.Logger)

	return pipeline.Sources{
		Lister:      iss.NewLister(client),
		Descriptors: iss.NewDescriptionFetcher(client),
		Snapshots:   iss.NewMarketFetcher(client),
		Cashflows:   iss.NewBondizationFetcher(client, nil),
	}
}

func (a *App) newNotifier() alerting.Notifier {
	if a.Config.Alerting.Telegram.Enabled {
		cfg := a.Config.Alerting.Telegram
		return alerting.NewTelegramNotifier(cfg.BotToken, cfg.ChatID, cfg.APIBase, 10*time.Second, a.Logger)
	}
	return nil
}

func (a *App) yieldParams() *yield.Params {
	return &yield.Params{
		Commission: decimal.NewFromFloat(a.Config.Yield.Commission),
		Tax:        decimal.NewFromFloat(a.Config.Yield.Tax),
	}
}

func (a *App) pipelineOptions() pipeline.Options {
	return pipeline.Options{
		Concurrency:   a.Config.Pipeline.Concurrency,
		DropZeroPrice: a.Config.Pipeline.DropZeroPrice,
		LockKey:       a.Config.Scheduler.AdvisoryLockKey,
		Yield:         a.yieldParams(),
		AlertsEnabled: a.Config.Alerting.Enabled,
		ThresholdPct:  decimal.NewFromFloat(a.Config.Alerting.ThresholdPct),
		Channels:      a.Config.Alerting.Channels,
	}
}

func (a *App) openStore(ctx context.Context) (*storage.Store, func(), error) {
	if a.Config.Database.DSN == "" {
		return nil, nil, nil
	}

	if a.Config.Database.AutoMigrate {
		if err := a.migrateUp(); err != nil {
			return nil, nil, err
		}
	}

	pool, err := storage.NewPool(ctx, a.Config.Database)
	if err != nil {
		return nil, nil, err
	}

	store := storage.NewStore(pool)
	closer := func() {
		store.Close()
	}
	return store, closer, nil
}

// requireStore opens the store and fails when no DSN is configured.
func (a *App) requireStore(ctx context.Context, action string) (*storage.Store, func(), error) {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return nil, nil, err
	}
	if store == nil {
		return nil, nil, errors.New("database.dsn not configured; cannot " + action)
	}
	return store, closeStore, nil
}

// Run executes the long-running scheduled ingestion service.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		a.Logger.Warn().Msg("database.dsn not configured; persistence disabled")
	}
	if closeStore != nil {
		defer closeStore()
	}

	sched, err := scheduler.New(scheduler.Options{
		Spec:         a.Config.Scheduler.Cron,
		Location:     a.Config.Location(),
		StartupDelay: a.Config.Scheduler.StartupDelay,
		RunOnStart:   a.Config.Scheduler.RunOnStart,
	}, a.Logger)
	if err != nil {
		return err
	}

	var writer storage.BondWriter
	if store != nil {
		writer = store
	}

	orch := pipeline.New(a.pipelineOptions(), sched, a.newSources(), writer, a.newNotifier(), a.Logger)

	a.Logger.Info().Str("cron", a.Config.Scheduler.Cron).Str("timezone", a.Config.Scheduler.Timezone).Msg("starting ingestion service")
	err = orch.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("service terminated with error")
		return err
	}

	a.Logger.Info().Msg("ingestion service stopped")
	return nil
}

// ExportOptions hold parameters for exporting screening results.
type ExportOptions struct {
	Query    screening.Query
	PNGPath  string
	CSVPath  string
	XLSXPath string
	MaxRows  int
}

// ScreenOptions configure the screen command.
type ScreenOptions struct {
	Query screening.Query
}

// RunsOptions configure the runs command.
type RunsOptions struct {
	Limit int
}

// IngestOptions configure a one-off ingestion.
type IngestOptions struct {
	// SecIDs restricts the pass to the given bonds; empty means a full cycle.
	SecIDs []string
	DryRun bool
}

// CalcOptions configure the yield calculator. When SecID is set the inputs
// are fetched from the exchange instead.
type CalcOptions struct {
	SecID  string
	Inputs yield.Inputs
}
