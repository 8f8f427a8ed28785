package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/go-viper/mapstructure/v2"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"moex-bond-screener/internal/logging"
	"moex-bond-screener/internal/screening"
)

// Config materialises application configuration.
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Logging   logging.Config  `mapstructure:"logging"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	ISS       ISSConfig       `mapstructure:"iss"`
	Pipeline  PipelineConfig  `mapstructure:"pipeline"`
	Yield     YieldConfig     `mapstructure:"yield"`
	Screening ScreeningConfig `mapstructure:"screening"`
	Alerting  AlertingConfig  `mapstructure:"alerting"`
	Export    ExportConfig    `mapstructure:"export"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// DatabaseConfig encapsulates PostgreSQL connectivity.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
}

// SchedulerConfig governs when ingestion cycles run.
type SchedulerConfig struct {
	Cron            string        `mapstructure:"cron"`
	Timezone        string        `mapstructure:"timezone"`
	AdvisoryLockKey int64         `mapstructure:"advisory_lock_key"`
	StartupDelay    time.Duration `mapstructure:"startup_delay"`
	RunOnStart      bool          `mapstructure:"run_on_start"`
}

// ISSConfig covers Moscow Exchange ISS access.
type ISSConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	UserAgent      string        `mapstructure:"user_agent"`
}

// PipelineConfig tunes enrichment.
type PipelineConfig struct {
	Concurrency   int  `mapstructure:"concurrency"`
	DropZeroPrice bool `mapstructure:"drop_zero_price"`
}

// YieldConfig holds the trading cost model as fractions.
type YieldConfig struct {
	Commission float64 `mapstructure:"commission"`
	Tax        float64 `mapstructure:"tax"`
}

// ScreeningConfig is the default screener filter set.
type ScreeningConfig struct {
	Fields         []string `mapstructure:"fields"`
	YearPercentMin float64  `mapstructure:"year_percent_min"`
	YearPercentMax float64  `mapstructure:"year_percent_max"`
	ListLevelMin   int      `mapstructure:"list_level_min"`
	ListLevelMax   int      `mapstructure:"list_level_max"`
	DaysMin        int      `mapstructure:"days_min"`
	DaysMax        int      `mapstructure:"days_max"`
	Amortizing     bool     `mapstructure:"amortizing"`
	Floater        bool     `mapstructure:"floater"`
	MinSumCoupon   float64  `mapstructure:"min_sum_coupon"`
	OFZOnly        bool     `mapstructure:"ofz_only"`
	Limit          int      `mapstructure:"limit"`
}

// AlertingConfig defines cycle report thresholds and routing. ThresholdPct is
// the failed/listed ratio above which a report is sent; zero reports every cycle.
type AlertingConfig struct {
	Enabled      bool           `mapstructure:"enabled"`
	ThresholdPct float64        `mapstructure:"threshold_pct"`
	Channels     []string       `mapstructure:"channels"`
	Telegram     TelegramConfig `mapstructure:"telegram"`
}

// TelegramConfig describes the Telegram bot.
type TelegramConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	BotToken string `mapstructure:"bot_token"`
	ChatID   string `mapstructure:"chat_id"`
	APIBase  string `mapstructure:"api_base"`
}

// ExportConfig sets CLI export behaviour.
type ExportConfig struct {
	MaxRows     int `mapstructure:"max_rows"`
	ChartWidth  int `mapstructure:"chart_width"`
	ChartHeight int `mapstructure:"chart_height"`
}

// Load builds configuration from file, environment, and defaults. A .env file
// in the working directory is exported first without overriding the process
// environment.
func Load(path string) (*Config, error) {
	if err := loadDotEnv(".env"); err != nil {
		return nil, err
	}

	v := viper.New()
	v.SetEnvPrefix("BONDSCREENER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := readConfig(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func readConfig(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

func loadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "bondscreener")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")
	v.SetDefault("logging.time_format", "")
	v.SetDefault("logging.caller", false)
	v.SetDefault("logging.pretty", false)

	v.SetDefault("scheduler.cron", "0 7 * * 1-5")
	v.SetDefault("scheduler.timezone", "Europe/Moscow")
	v.SetDefault("scheduler.advisory_lock_key", int64(0x4d4f4558))
	v.SetDefault("scheduler.startup_delay", "0s")
	v.SetDefault("scheduler.run_on_start", false)

	v.SetDefault("iss.base_url", "https://iss.moex.com")
	v.SetDefault("iss.request_timeout", "15s")
	v.SetDefault("iss.user_agent", "")

	v.SetDefault("pipeline.concurrency", 16)
	v.SetDefault("pipeline.drop_zero_price", false)

	v.SetDefault("yield.commission", 0.003)
	v.SetDefault("yield.tax", 0.13)

	def := screening.DefaultQuery()
	v.SetDefault("screening.fields", def.Fields)
	v.SetDefault("screening.year_percent_min", def.YearPercent.Min)
	v.SetDefault("screening.year_percent_max", def.YearPercent.Max)
	v.SetDefault("screening.list_level_min", def.ListLevel.Min)
	v.SetDefault("screening.list_level_max", def.ListLevel.Max)
	v.SetDefault("screening.days_min", def.DaysToRedemption.Min)
	v.SetDefault("screening.days_max", def.DaysToRedemption.Max)
	v.SetDefault("screening.amortizing", def.Amortizing)
	v.SetDefault("screening.floater", def.Floater)
	v.SetDefault("screening.min_sum_coupon", def.MinSumCoupon)
	v.SetDefault("screening.ofz_only", false)
	v.SetDefault("screening.limit", def.Limit)

	v.SetDefault("alerting.enabled", false)
	v.SetDefault("alerting.threshold_pct", 0.0)
	v.SetDefault("alerting.channels", []string{"telegram"})
	v.SetDefault("alerting.telegram.enabled", false)
	v.SetDefault("alerting.telegram.bot_token", "")
	v.SetDefault("alerting.telegram.chat_id", "")
	v.SetDefault("alerting.telegram.api_base", "https://api.telegram.org")

	v.SetDefault("export.max_rows", screening.MaxLimit)
	v.SetDefault("export.chart_width", 1280)
	v.SetDefault("export.chart_height", 720)

	// env-only keys need a default to reach Unmarshal
	v.SetDefault("database.dsn", "")
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 2)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("database.auto_migrate", false)
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}

// Validate performs basic sanity checks on the configuration values.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Scheduler.Cron) == "" {
		return fmt.Errorf("scheduler.cron must be set")
	}
	if _, err := time.LoadLocation(c.Scheduler.Timezone); err != nil {
		return fmt.Errorf("scheduler.timezone: %w", err)
	}
	if c.Scheduler.AdvisoryLockKey != 0 && c.Database.MaxOpenConns == 1 {
		return fmt.Errorf("database.max_open_conns must be at least 2 while scheduler.advisory_lock_key holds a connection")
	}
	if c.ISS.RequestTimeout <= 0 {
		return fmt.Errorf("iss.request_timeout must be greater than zero")
	}
	if c.Pipeline.Concurrency <= 0 {
		return fmt.Errorf("pipeline.concurrency must be greater than zero")
	}
	if c.Yield.Commission < 0 || c.Yield.Commission >= 1 {
		return fmt.Errorf("yield.commission must be within [0, 1)")
	}
	if c.Yield.Tax < 0 || c.Yield.Tax >= 1 {
		return fmt.Errorf("yield.tax must be within [0, 1)")
	}
	if err := c.Screening.Query().Validate(); err != nil {
		return fmt.Errorf("screening: %w", err)
	}
	if c.Export.MaxRows <= 0 {
		return fmt.Errorf("export.max_rows must be greater than zero")
	}
	if c.Export.ChartWidth <= 0 || c.Export.ChartHeight <= 0 {
		return fmt.Errorf("export chart dimensions must be positive")
	}
	if c.Alerting.ThresholdPct < 0 {
		return fmt.Errorf("alerting.threshold_pct cannot be negative")
	}
	if c.Alerting.Telegram.Enabled {
		if c.Alerting.Telegram.BotToken == "" {
			return fmt.Errorf("alerting.telegram.bot_token must be set")
		}
		if c.Alerting.Telegram.ChatID == "" {
			return fmt.Errorf("alerting.telegram.chat_id must be set")
		}
	}
	return nil
}

// Location returns the scheduler time zone.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Scheduler.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Query converts the configured filter set into a screening query.
func (s ScreeningConfig) Query() screening.Query {
	q := screening.Query{
		Fields:           append([]string(nil), s.Fields...),
		YearPercent:      screening.Range{Min: s.YearPercentMin, Max: s.YearPercentMax},
		ListLevel:        screening.IntRange{Min: s.ListLevelMin, Max: s.ListLevelMax},
		DaysToRedemption: screening.IntRange{Min: s.DaysMin, Max: s.DaysMax},
		Amortizing:       s.Amortizing,
		Floater:          s.Floater,
		MinSumCoupon:     s.MinSumCoupon,
		Limit:            s.Limit,
	}
	if s.OFZOnly {
		q = q.OFZOnly()
	}
	return q
}

// ResolveMaxRows returns either the CLI override or config default.
func (c *Config) ResolveMaxRows(override int) int {
	if override > 0 {
		return override
	}
	return c.Export.MaxRows
}
