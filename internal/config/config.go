// Package config loads filtergraph settings from a config file and the
// environment, and configures the process-wide logger.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. FILTERGRAPH_LOGLEVEL.
const EnvPrefix = "FILTERGRAPH"

// Config holds every tunable the CLI exposes.
type Config struct {
	LogLevel         string
	LogFile          string
	PollInterval     time.Duration
	QueueGrowth      int
	EventTimeout     time.Duration
	SchedulerMaxWait time.Duration
	MetricsAddr      string
	Database         string
	JournalSync      string
	JournalBusy      time.Duration
}

func setViperDefaults(v *viper.Viper) {
	v.SetDefault("loglevel", "info")
	v.SetDefault("logfile", "")
	v.SetDefault("pollinterval", 10*time.Millisecond)
	v.SetDefault("queuegrowth", 64)
	v.SetDefault("eventtimeout", 30*time.Second)
	v.SetDefault("schedulermaxwait", time.Second)
	v.SetDefault("metricsaddr", "")
	v.SetDefault("database", "")
	v.SetDefault("journalsync", "normal")
	v.SetDefault("journalbusy", 5*time.Second)
}

// Load reads path (if non-empty) over the defaults, then applies
// FILTERGRAPH_* environment overrides. A missing file is not an error.
func Load(path string) (Config, error) {
	v := viper.New()
	setViperDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if errors.As(err, &notFound) || errors.Is(err, os.ErrNotExist) {
				slog.Info("no config file found", "configFilePath", path)
			} else {
				return Config{}, fmt.Errorf("read config %s: %w", path, err)
			}
		}
	}

	cfg := fromViper(v)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Defaults returns the built-in settings, ignoring files and environment.
func Defaults() Config {
	v := viper.New()
	setViperDefaults(v)
	return fromViper(v)
}

func fromViper(v *viper.Viper) Config {
	return Config{
		LogLevel:         v.GetString("loglevel"),
		LogFile:          v.GetString("logfile"),
		PollInterval:     v.GetDuration("pollinterval"),
		QueueGrowth:      v.GetInt("queuegrowth"),
		EventTimeout:     v.GetDuration("eventtimeout"),
		SchedulerMaxWait: v.GetDuration("schedulermaxwait"),
		MetricsAddr:      v.GetString("metricsaddr"),
		Database:         v.GetString("database"),
		JournalSync:      strings.ToLower(v.GetString("journalsync")),
		JournalBusy:      v.GetDuration("journalbusy"),
	}
}

// Validate rejects settings the graph cannot run with.
func (c Config) Validate() error {
	if _, err := parseLevel(c.LogLevel); err != nil {
		return err
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("pollinterval must be positive, got %s", c.PollInterval)
	}
	if c.QueueGrowth < 2 {
		return fmt.Errorf("queuegrowth must be at least 2, got %d", c.QueueGrowth)
	}
	if c.SchedulerMaxWait <= 0 {
		return fmt.Errorf("schedulermaxwait must be positive, got %s", c.SchedulerMaxWait)
	}
	switch c.JournalSync {
	case "off", "normal", "full", "extra":
	default:
		return fmt.Errorf("journalsync must be off, normal, full or extra, got %q", c.JournalSync)
	}
	if c.JournalBusy < 0 {
		return fmt.Errorf("journalbusy must not be negative, got %s", c.JournalBusy)
	}
	return nil
}

// parseLevel maps a level name to a slog level. "none" maps to Info and is
// handled by the caller.
func parseLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "none":
		return 0, nil
	case "error":
		return slog.LevelError, nil
	case "warn":
		return slog.LevelWarn, nil
	case "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	}
	return 0, fmt.Errorf("unexpected log level %q", level)
}

// ConfigureDefaultLogger installs the process-wide slog logger.
//
// Level is one of none, error, warn, info or debug; "none" discards
// everything. With logFile empty, text logs go to w; otherwise JSON logs
// go to logFile, which is truncated, and the open file is returned for the
// caller to close.
func ConfigureDefaultLogger(level, logFile string, w io.Writer) (*os.File, error) {
	lvl, err := parseLevel(level)
	if err != nil {
		return nil, err
	}
	if strings.EqualFold(level, "none") {
		slog.SetDefault(slog.New(slog.NewTextHandler(io.Discard, nil)))
		return nil, nil
	}

	opts := &slog.HandlerOptions{Level: lvl}
	if logFile == "" {
		slog.SetDefault(slog.New(slog.NewTextHandler(w, opts)))
		return nil, nil
	}

	f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(f, opts)))
	return f, nil
}
