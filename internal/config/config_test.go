package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"moex-bond-screener/internal/screening"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load defaults: %v", err)
	}
	if cfg.Scheduler.Cron != "0 7 * * 1-5" {
		t.Fatalf("unexpected cron %q", cfg.Scheduler.Cron)
	}
	if cfg.Location().String() != "Europe/Moscow" {
		t.Fatalf("unexpected timezone %s", cfg.Location())
	}
	if cfg.Pipeline.Concurrency != 16 || cfg.Pipeline.DropZeroPrice {
		t.Fatalf("unexpected pipeline config %+v", cfg.Pipeline)
	}
	if cfg.Yield.Commission != 0.003 || cfg.Yield.Tax != 0.13 {
		t.Fatalf("unexpected yield config %+v", cfg.Yield)
	}
	if cfg.ISS.RequestTimeout != 15*time.Second {
		t.Fatalf("unexpected iss timeout %s", cfg.ISS.RequestTimeout)
	}

	q := cfg.Screening.Query()
	def := screening.DefaultQuery()
	if q.Limit != def.Limit || q.YearPercent != def.YearPercent || q.DaysToRedemption != def.DaysToRedemption {
		t.Fatalf("screening defaults drifted: %+v", q)
	}
	if len(q.Fields) != len(def.Fields) {
		t.Fatalf("default fields = %v", q.Fields)
	}
}

func TestLoadFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	body := []byte(`
scheduler:
  cron: "30 9 * * 1-5"
pipeline:
  concurrency: 4
screening:
  ofz_only: true
  fields: "secid,year_percent"
`)
	if err := os.WriteFile(path, body, 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("BONDSCREENER_PIPELINE_DROP_ZERO_PRICE", "true")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Scheduler.Cron != "30 9 * * 1-5" {
		t.Fatalf("cron = %q", cfg.Scheduler.Cron)
	}
	if cfg.Pipeline.Concurrency != 4 {
		t.Fatalf("concurrency = %d", cfg.Pipeline.Concurrency)
	}
	if !cfg.Pipeline.DropZeroPrice {
		t.Fatal("env override should enable drop_zero_price")
	}
	q := cfg.Screening.Query()
	if q.Type != screening.OFZType {
		t.Fatalf("type = %q", q.Type)
	}
	if len(q.Fields) != 2 || q.Fields[1] != "year_percent" {
		t.Fatalf("fields = %v", q.Fields)
	}
}

func TestValidate(t *testing.T) {
	base, err := Load("")
	if err != nil {
		t.Fatalf("load defaults: %v", err)
	}

	cases := map[string]func(*Config){
		"timezone":    func(c *Config) { c.Scheduler.Timezone = "Mars/Olympus" },
		"concurrency": func(c *Config) { c.Pipeline.Concurrency = 0 },
		"tax":         func(c *Config) { c.Yield.Tax = 1.5 },
		"screening":   func(c *Config) { c.Screening.Fields = []string{"nope"} },
		"telegram":    func(c *Config) { c.Alerting.Telegram.Enabled = true },
		"export":      func(c *Config) { c.Export.MaxRows = 0 },
		"lock conns":  func(c *Config) { c.Database.MaxOpenConns = 1 },
	}
	for name, mutate := range cases {
		cfg := *base
		cfg.Screening.Fields = append([]string(nil), base.Screening.Fields...)
		mutate(&cfg)
		if err := cfg.Validate(); err == nil {
			t.Fatalf("%s: expected validation error", name)
		}
	}
}

func TestValidateSingleConnectionWithoutLock(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load defaults: %v", err)
	}
	cfg.Database.MaxOpenConns = 1
	cfg.Scheduler.AdvisoryLockKey = 0
	if err := cfg.Validate(); err != nil {
		t.Fatalf("a single connection is enough without the advisory lock: %v", err)
	}
}

func TestLoadSecretsFromEnv(t *testing.T) {
	t.Setenv("BONDSCREENER_DATABASE_DSN", "postgres://screener:secret@db:5432/bonds")
	t.Setenv("BONDSCREENER_ALERTING_TELEGRAM_BOT_TOKEN", "123:abc")
	t.Setenv("BONDSCREENER_ALERTING_TELEGRAM_CHAT_ID", "-10042")
	t.Setenv("BONDSCREENER_LOGGING_CALLER", "true")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Database.DSN != "postgres://screener:secret@db:5432/bonds" {
		t.Fatalf("dsn = %q", cfg.Database.DSN)
	}
	if cfg.Alerting.Telegram.BotToken != "123:abc" || cfg.Alerting.Telegram.ChatID != "-10042" {
		t.Fatalf("unexpected telegram config %+v", cfg.Alerting.Telegram)
	}
	if !cfg.Logging.Caller {
		t.Fatal("logging.caller should come from the environment")
	}
}

func TestResolveMaxRows(t *testing.T) {
	cfg := &Config{Export: ExportConfig{MaxRows: 200}}
	if cfg.ResolveMaxRows(0) != 200 || cfg.ResolveMaxRows(10) != 10 {
		t.Fatal("override should win over config default")
	}
}

func TestLoadDotEnv(t *testing.T) {
	const key = "BONDSCREENER_PIPELINE_CONCURRENCY"
	t.Cleanup(func() { os.Unsetenv(key) })

	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte(key+"=3\n"), 0o600); err != nil {
		t.Fatalf("write .env: %v", err)
	}
	chdir(t, dir)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Pipeline.Concurrency != 3 {
		t.Fatalf("concurrency = %d, want 3 from .env", cfg.Pipeline.Concurrency)
	}
}

func TestLoadDotEnvMissingFile(t *testing.T) {
	if err := loadDotEnv(filepath.Join(t.TempDir(), ".env")); err != nil {
		t.Fatalf("missing .env should be ignored: %v", err)
	}
}

// chdir is the pre-Go 1.24 equivalent of t.Chdir.
func chdir(t *testing.T, dir string) {
	t.Helper()
	prev, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("chdir: %v", err)
	}
	t.Cleanup(func() { _ = os.Chdir(prev) })
}
