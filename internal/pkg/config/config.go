package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/Vodeneev/dropalerts/internal/pkg/models"
)

type Config struct {
	HTTP     HTTPConfig     `yaml:"http"`
	Storage  StorageConfig  `yaml:"storage"`
	Pipeline PipelineConfig `yaml:"pipeline"`
	Tiers    TiersConfig    `yaml:"tiers"`
	Enricher EnricherConfig `yaml:"enricher"`
	Telegram TelegramConfig `yaml:"telegram"`
	Logging  LoggingConfig  `yaml:"logging"`
}

type HTTPConfig struct {
	Addr              string        `yaml:"addr"`
	ReadHeaderTimeout time.Duration `yaml:"read_header_timeout"`
	IngressTimeout    time.Duration `yaml:"ingress_timeout"` // critical-path budget for POST /public/drop
	IngressSecret     string        `yaml:"ingress_secret"`  // optional X-Drop-Secret value
	DashboardToken    string        `yaml:"dashboard_token"` // bearer token for /api writes; empty disables them
	CORSOrigins       []string      `yaml:"cors_origins"`
}

type StorageConfig struct {
	Driver       string `yaml:"driver"` // "postgres" or "sqlite"
	DSN          string `yaml:"dsn"`
	MaxOpenConns int    `yaml:"max_open_conns"`
}

type PipelineConfig struct {
	DedupeTTL           time.Duration `yaml:"dedupe_ttl"`
	DedupeSweep         bool          `yaml:"dedupe_sweep"`
	FanoutWorkers       int           `yaml:"fanout_workers"`
	EnrichmentTimeout   time.Duration `yaml:"enrichment_timeout"`
	SendTimeout         time.Duration `yaml:"send_timeout"`
	StorageRetryBackoff time.Duration `yaml:"storage_retry_backoff"`
	CandidatePageSize   int           `yaml:"candidate_page_size"`
	DefaultTimezone     string        `yaml:"default_timezone"`
}

type TiersConfig struct {
	Free FreeTierConfig `yaml:"free"`
}

// FreeTierConfig is overridden by the FREE_* environment variables, which win over YAML.
type FreeTierConfig struct {
	MaxArbPct       float64       `yaml:"max_arb_pct"`
	MaxAlertsPerDay int           `yaml:"max_alerts_per_day"`
	MinSpacing      time.Duration `yaml:"min_spacing"`
}

func (f FreeTierConfig) Caps() models.FreeCaps {
	return models.FreeCaps{
		MaxAlertsPerDay: f.MaxAlertsPerDay,
		MaxArbPct:       f.MaxArbPct,
		MinSpacing:      f.MinSpacing,
	}
}

type EnricherConfig struct {
	BaseURL   string        `yaml:"base_url"` // empty disables enrichment
	APIKey    string        `yaml:"api_key"`
	Regions   string        `yaml:"regions"`
	CacheTTL  time.Duration `yaml:"cache_ttl"`
	Cache     string        `yaml:"cache"` // "memory" or "redis"
	Redis     RedisConfig   `yaml:"redis"`
	RateLimit float64       `yaml:"rate_limit"` // requests per second
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type TelegramConfig struct {
	BotToken          string  `yaml:"bot_token"`
	MessagesPerSecond float64 `yaml:"messages_per_second"`
	EnableCallbacks   bool    `yaml:"enable_callbacks"`
}

type LoggingConfig struct {
	Level    string `yaml:"level"`
	JSONFile string `yaml:"json_file"` // optional path for a JSON copy of the log stream
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		HTTP: HTTPConfig{
			Addr:              ":8080",
			ReadHeaderTimeout: 5 * time.Second,
			IngressTimeout:    500 * time.Millisecond,
		},
		Storage: StorageConfig{
			Driver:       "postgres",
			MaxOpenConns: 10,
		},
		Pipeline: PipelineConfig{
			DedupeTTL:           10 * time.Minute,
			DedupeSweep:         true,
			FanoutWorkers:       16,
			EnrichmentTimeout:   5 * time.Second,
			SendTimeout:         10 * time.Second,
			StorageRetryBackoff: 200 * time.Millisecond,
			CandidatePageSize:   500,
			DefaultTimezone:     "UTC",
		},
		Tiers: TiersConfig{
			Free: FreeTierConfig{
				MaxArbPct:       2.5,
				MaxAlertsPerDay: 5,
				MinSpacing:      105 * time.Minute,
			},
		},
		Enricher: EnricherConfig{
			Regions:   "us,eu",
			CacheTTL:  5 * time.Minute,
			Cache:     "memory",
			RateLimit: 5,
		},
		Telegram: TelegramConfig{
			MessagesPerSecond: 25,
			EnableCallbacks:   true,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load reads configPath over the defaults and applies environment overrides.
// A missing config file or .env is not an error; a malformed one is.
func Load(configPath string) (*Config, error) {
	if err := loadDotEnv(); err != nil {
		return nil, err
	}

	cfg := Default()
	if configPath != "" {
		data, err := os.ReadFile(configPath)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config file: %w", err)
			}
		case errors.Is(err, os.ErrNotExist):
		default:
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	if err := cfg.ApplyEnv(os.Getenv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadDotEnv loads .env files (./.env by default) without overriding variables
// already set in the process environment.
func loadDotEnv(filenames ...string) error {
	if err := godotenv.Load(filenames...); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to load .env: %w", err)
	}
	return nil
}

// ApplyEnv overrides fields from the environment. getenv is injectable for tests.
func (c *Config) ApplyEnv(getenv func(string) string) error {
	var errs []error
	str := func(key string, dst *string) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			*dst = v
		}
	}
	integer := func(key string, dst *int) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = n
		}
	}
	float := func(key string, dst *float64) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = f
		}
	}
	dur := func(key string, dst *time.Duration, unit time.Duration) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = time.Duration(f * float64(unit))
		}
	}

	str("DROP_INGRESS_SECRET", &c.HTTP.IngressSecret)
	str("HTTP_ADDR", &c.HTTP.Addr)
	str("DASHBOARD_TOKEN", &c.HTTP.DashboardToken)
	dur("DROP_DEDUPE_TTL_MINUTES", &c.Pipeline.DedupeTTL, time.Minute)
	integer("FANOUT_WORKERS", &c.Pipeline.FanoutWorkers)
	dur("ENRICHMENT_TIMEOUT_SECONDS", &c.Pipeline.EnrichmentTimeout, time.Second)
	float("FREE_MAX_ARB_PCT", &c.Tiers.Free.MaxArbPct)
	integer("FREE_MAX_ALERTS_PER_DAY", &c.Tiers.Free.MaxAlertsPerDay)
	dur("FREE_MIN_SPACING_MINUTES", &c.Tiers.Free.MinSpacing, time.Minute)
	str("STORAGE_DRIVER", &c.Storage.Driver)
	str("POSTGRES_DSN", &c.Storage.DSN)
	str("TELEGRAM_BOT_TOKEN", &c.Telegram.BotToken)
	str("ODDS_API_URL", &c.Enricher.BaseURL)
	str("ODDS_API_KEY", &c.Enricher.APIKey)
	str("REDIS_ADDR", &c.Enricher.Redis.Addr)
	str("LOG_LEVEL", &c.Logging.Level)

	return errors.Join(errs...)
}

// Validate rejects settings the pipeline cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.Pipeline.FanoutWorkers <= 0 {
		errs = append(errs, fmt.Errorf("pipeline.fanout_workers must be positive, got %d", c.Pipeline.FanoutWorkers))
	}
	if c.Pipeline.DedupeTTL <= 0 {
		errs = append(errs, fmt.Errorf("pipeline.dedupe_ttl must be positive"))
	}
	if c.Pipeline.EnrichmentTimeout <= 0 {
		errs = append(errs, fmt.Errorf("pipeline.enrichment_timeout must be positive"))
	}
	if c.Pipeline.SendTimeout <= 0 {
		errs = append(errs, fmt.Errorf("pipeline.send_timeout must be positive"))
	}
	if c.Pipeline.CandidatePageSize <= 0 {
		errs = append(errs, fmt.Errorf("pipeline.candidate_page_size must be positive"))
	}
	if c.HTTP.IngressTimeout <= 0 {
		errs = append(errs, fmt.Errorf("http.ingress_timeout must be positive"))
	}
	if c.Tiers.Free.MaxAlertsPerDay < 0 || c.Tiers.Free.MaxArbPct < 0 || c.Tiers.Free.MinSpacing < 0 {
		errs = append(errs, fmt.Errorf("tiers.free caps must not be negative"))
	}
	switch c.Storage.Driver {
	case "postgres", "sqlite":
	default:
		errs = append(errs, fmt.Errorf("storage.driver must be postgres or sqlite, got %q", c.Storage.Driver))
	}
	switch c.Enricher.Cache {
	case "", "memory", "redis":
	default:
		errs = append(errs, fmt.Errorf("enricher.cache must be memory or redis, got %q", c.Enricher.Cache))
	}
	if _, err := time.LoadLocation(c.Pipeline.DefaultTimezone); err != nil {
		errs = append(errs, fmt.Errorf("pipeline.default_timezone: %w", err))
	}
	return errors.Join(errs...)
}
