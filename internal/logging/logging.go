// Package logging builds the zerolog logger shared by every screener component.
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"moex-bond-screener/internal/version"
)

// DefaultLevel applies when the configured level is empty or unknown.
const DefaultLevel = zerolog.InfoLevel

// Config describes logger runtime configuration.
type Config struct {
	Level       string `mapstructure:"level"`
	Format      string `mapstructure:"format"`
	Output      string `mapstructure:"output"`
	TimeFormat  string `mapstructure:"time_format"`
	Caller      bool   `mapstructure:"caller"`
	PrettyPrint bool   `mapstructure:"pretty"`
}

// NewLogger constructs the root logger. Every entry carries the binary
// version so cycle logs from different deployments can be told apart.
func NewLogger(cfg Config) zerolog.Logger {
	return newLogger(cfg, output(cfg.Output))
}

func newLogger(cfg Config, out io.Writer) zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339
	if cfg.TimeFormat != "" {
		zerolog.TimeFieldFormat = cfg.TimeFormat
	}

	builder := zerolog.New(logWriter(cfg, out)).
		Level(ParseLevel(cfg.Level)).
		With().
		Timestamp().
		Str("version", version.Version)
	if cfg.Caller {
		builder = builder.Caller()
	}
	return builder.Logger()
}

// ParseLevel maps a level name to a zerolog level. Empty names, unknown names
// and the "no level" sentinel resolve to DefaultLevel.
func ParseLevel(name string) zerolog.Level {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return DefaultLevel
	}
	level, err := zerolog.ParseLevel(name)
	if err != nil || level == zerolog.NoLevel {
		return DefaultLevel
	}
	return level
}

// ValidLevel reports whether name selects a concrete level.
func ValidLevel(name string) bool {
	level, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(name)))
	return err == nil && level != zerolog.NoLevel
}

// output maps the configured sink name; anything but stderr goes to stdout.
func output(name string) io.Writer {
	if strings.EqualFold(strings.TrimSpace(name), "stderr") {
		return os.Stderr
	}
	return os.Stdout
}

func logWriter(cfg Config, out io.Writer) io.Writer {
	if !cfg.PrettyPrint && !strings.EqualFold(cfg.Format, "console") {
		return out
	}
	return zerolog.ConsoleWriter{
		Out:        out,
		TimeFormat: zerolog.TimeFieldFormat,
		NoColor:    out != os.Stdout,
	}
}
