// Package config defines the newsdigest configuration file and its defaults.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/RobinCoderZhao/newsdigest/internal/newsdigest/enrich"
	"github.com/RobinCoderZhao/newsdigest/internal/newsdigest/publisher"
	"github.com/RobinCoderZhao/newsdigest/internal/newsdigest/seen"
	"github.com/RobinCoderZhao/newsdigest/internal/newsdigest/sources"
	pkgconfig "github.com/RobinCoderZhao/newsdigest/pkg/config"
	"github.com/RobinCoderZhao/newsdigest/pkg/llm"
)

// DefaultPath is the config file read when --config is not given.
const DefaultPath = "newsdigest.yaml"

// LogConfig selects the slog handler.
type LogConfig struct {
	Level  string `yaml:"level" env:"LOG_LEVEL"`   // debug, info, warn, error
	Format string `yaml:"format" env:"LOG_FORMAT"` // text, json
}

// Config is the whole newsdigest configuration. It is loaded once before a
// run and not modified while the run is in progress.
type Config struct {
	MaxItems    int    `yaml:"max_items" env:"MAX_STORIES"`
	Timezone    string `yaml:"timezone" env:"TIMEZONE"`
	Schedule    string `yaml:"schedule" env:"SCHEDULE"`
	MetricsAddr string `yaml:"metrics_addr" env:"METRICS_ADDR"`
	RunOnStart  bool   `yaml:"run_on_start" env:"RUN_ON_START"`
	// TriggerSecret signs tokens for POST /run in serve mode. Empty disables the route.
	TriggerSecret string           `yaml:"trigger_secret" env:"TRIGGER_SECRET"`
	Log           LogConfig        `yaml:"log"`
	Store         seen.Config      `yaml:"store"`
	Sources       sources.Config   `yaml:"sources"`
	Enrich        enrich.Config    `yaml:"enrich"`
	LLM           llm.Config       `yaml:"llm"`
	Delivery      publisher.Config `yaml:"delivery"`
}

// Default returns the configuration used for anything the file and the
// environment leave unset.
func Default() Config {
	return Config{
		MaxItems:    15,
		Timezone:    "UTC",
		Schedule:    "0 8 * * *",
		MetricsAddr: ":9090",
		Log:         LogConfig{Level: "info", Format: "text"},
		Store: seen.Config{
			Driver: seen.DriverSQLite,
			DSN:    "seen_articles.db",
		},
		Sources: sources.Config{
			FetchTimeout: 20 * time.Second,
			NewsAPI: sources.NewsAPIConfig{
				Enabled:  true,
				Query:    sources.DefaultNewsAPIQuery,
				PageSize: 50,
				Language: "en",
			},
			Feeds:      sources.FeedsConfig{Enabled: true},
			HackerNews: sources.HackerNewsConfig{MaxItems: 30},
		},
		Enrich: enrich.DefaultConfig(),
		LLM:    llm.DefaultConfig(),
		Delivery: publisher.Config{
			SubjectPrefix: publisher.DefaultSubjectPrefix,
		},
	}
}

// Load reads .env, then the YAML file at path over the defaults, then the
// environment overrides, and validates the result. A missing file is not
// an error.
func Load(path string) (Config, error) {
	if err := pkgconfig.LoadDotEnv(); err != nil {
		return Config{}, err
	}
	cfg := Default()
	if path == "" {
		path = DefaultPath
	}
	if err := pkgconfig.LoadOrDefault(path, &cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// Validate reports every invalid setting.
func (c Config) Validate() error {
	var errs []error
	if c.MaxItems < 1 {
		errs = append(errs, fmt.Errorf("max_items must be at least 1, got %d", c.MaxItems))
	}
	if _, err := c.Location(); err != nil {
		errs = append(errs, fmt.Errorf("timezone %q: %w", c.Timezone, err))
	}
	if c.Schedule != "" {
		if _, err := cron.ParseStandard(c.Schedule); err != nil {
			errs = append(errs, fmt.Errorf("schedule %q: %w", c.Schedule, err))
		}
	}
	switch seen.Driver(strings.ToLower(string(c.Store.Driver))) {
	case seen.DriverSQLite, seen.DriverPostgres, "":
		if c.Store.DSN == "" {
			errs = append(errs, fmt.Errorf("store.dsn is required for driver %q", c.Store.Driver))
		}
	case seen.DriverRedis:
		if c.Store.RedisAddr == "" {
			errs = append(errs, fmt.Errorf("store.redis_addr is required for the redis driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown store driver %q", c.Store.Driver))
	}
	if c.Enrich.Concurrency < 1 {
		errs = append(errs, fmt.Errorf("enrich.concurrency must be at least 1, got %d", c.Enrich.Concurrency))
	}
	if c.Enrich.RatePerSecond < 0 {
		errs = append(errs, fmt.Errorf("enrich.rate_per_second must not be negative"))
	}
	if _, err := c.Delivery.ParseChannels(); err != nil {
		errs = append(errs, err)
	}
	if _, err := ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Location resolves Timezone.
func (c Config) Location() (*time.Location, error) {
	return enrich.LoadLocation(c.Timezone)
}

// ClassifierEnabled reports whether an LLM is configured. Without one every
// item degrades to its title.
func (c Config) ClassifierEnabled() bool {
	return c.LLM.APIKey != "" || c.LLM.Provider == llm.Ollama
}

// ParseLevel maps a level name onto slog.
func ParseLevel(s string) (slog.Level, error) {
	var l slog.Level
	if s == "" {
		return slog.LevelInfo, nil
	}
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("log.level %q: %w", s, err)
	}
	return l, nil
}

// NewLogger builds the process logger from cfg.
func (c LogConfig) NewLogger() *slog.Logger {
	level, err := ParseLevel(c.Level)
	if err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	var h slog.Handler
	if strings.EqualFold(c.Format, "json") {
		h = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		h = slog.NewTextHandler(os.Stderr, opts)
	}
	return slog.New(h)
}
