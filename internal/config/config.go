package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Naver     NaverConfig     `yaml:"naver" mapstructure:"naver"`
	Anthropic AnthropicConfig `yaml:"anthropic" mapstructure:"anthropic"`
	Discovery DiscoveryConfig `yaml:"discovery" mapstructure:"discovery"`
	Fetch     FetchConfig     `yaml:"fetch" mapstructure:"fetch"`
	Extract   ExtractConfig   `yaml:"extract" mapstructure:"extract"`
	Collect   CollectConfig   `yaml:"collect" mapstructure:"collect"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// NaverConfig holds booking API settings.
type NaverConfig struct {
	BaseURL          string  `yaml:"base_url" mapstructure:"base_url"`
	RequestsPerSec   float64 `yaml:"requests_per_sec" mapstructure:"requests_per_sec"`
	Burst            int     `yaml:"burst" mapstructure:"burst"`
	BusinessTypeID   int     `yaml:"business_type_id" mapstructure:"business_type_id"`
	ScheduleDaysSpan int     `yaml:"schedule_days_span" mapstructure:"schedule_days_span"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	Key       string `yaml:"key" mapstructure:"key"`
	Model     string `yaml:"model" mapstructure:"model"`
	MaxTokens int64  `yaml:"max_tokens" mapstructure:"max_tokens"`
}

// DiscoveryConfig configures the headless-browser map search.
type DiscoveryConfig struct {
	Headless         bool     `yaml:"headless" mapstructure:"headless"`
	UserAgent        string   `yaml:"user_agent" mapstructure:"user_agent"`
	MaxPages         int      `yaml:"max_pages" mapstructure:"max_pages"`
	MaxRetries       int      `yaml:"max_retries" mapstructure:"max_retries"`
	NavTimeoutSecs   int      `yaml:"nav_timeout_secs" mapstructure:"nav_timeout_secs"`
	MinDelayMillis   int      `yaml:"min_delay_millis" mapstructure:"min_delay_millis"`
	MaxDelayMillis   int      `yaml:"max_delay_millis" mapstructure:"max_delay_millis"`
	SearchKeyword    string   `yaml:"search_keyword" mapstructure:"search_keyword"`
	RegionsFile      string   `yaml:"regions_file" mapstructure:"regions_file"`
	CategoryKeywords []string `yaml:"category_keywords" mapstructure:"category_keywords"`
}

// FetchConfig configures the venue detail fetch stage.
type FetchConfig struct {
	MaxRetries           int     `yaml:"max_retries" mapstructure:"max_retries"`
	InitialBackoffMillis int     `yaml:"initial_backoff_millis" mapstructure:"initial_backoff_millis"`
	MaxBackoffSecs       int     `yaml:"max_backoff_secs" mapstructure:"max_backoff_secs"`
	RateLimitMultiplier  float64 `yaml:"rate_limit_multiplier" mapstructure:"rate_limit_multiplier"`
	BreakerThreshold     int     `yaml:"breaker_threshold" mapstructure:"breaker_threshold"`
	BreakerResetSecs     int     `yaml:"breaker_reset_secs" mapstructure:"breaker_reset_secs"`
}

// ExtractConfig configures field extraction.
type ExtractConfig struct {
	Primary        string `yaml:"primary" mapstructure:"primary"` // "llm" or "pattern"
	MaxConcurrent  int    `yaml:"max_concurrent" mapstructure:"max_concurrent"`
	RoomsPerPrompt int    `yaml:"rooms_per_prompt" mapstructure:"rooms_per_prompt"`
}

// CollectConfig bounds run-level concurrency.
type CollectConfig struct {
	MaxConcurrentRegions int `yaml:"max_concurrent_regions" mapstructure:"max_concurrent_regions"`
	MaxConcurrentFetches int `yaml:"max_concurrent_fetches" mapstructure:"max_concurrent_fetches"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// RetryBackoff returns the fetch retry backoff bounds as durations.
func (f FetchConfig) RetryBackoff() (initial, max time.Duration) {
	return time.Duration(f.InitialBackoffMillis) * time.Millisecond,
		time.Duration(f.MaxBackoffSecs) * time.Second
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("ROOMSCOUT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "rooms.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("naver.base_url", "https://booking.naver.com/graphql")
	v.SetDefault("naver.requests_per_sec", 5)
	v.SetDefault("naver.burst", 5)
	v.SetDefault("naver.business_type_id", 10)
	v.SetDefault("naver.schedule_days_span", 7)
	v.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")
	v.SetDefault("anthropic.max_tokens", 2048)
	v.SetDefault("discovery.headless", true)
	v.SetDefault("discovery.max_pages", 5)
	v.SetDefault("discovery.max_retries", 3)
	v.SetDefault("discovery.nav_timeout_secs", 30)
	v.SetDefault("discovery.min_delay_millis", 800)
	v.SetDefault("discovery.max_delay_millis", 2500)
	v.SetDefault("discovery.search_keyword", "합주실")
	v.SetDefault("discovery.category_keywords", []string{"합주실", "연습실", "스튜디오"})
	v.SetDefault("fetch.max_retries", 3)
	v.SetDefault("fetch.initial_backoff_millis", 500)
	v.SetDefault("fetch.max_backoff_secs", 30)
	v.SetDefault("fetch.rate_limit_multiplier", 4.0)
	v.SetDefault("fetch.breaker_threshold", 5)
	v.SetDefault("fetch.breaker_reset_secs", 60)
	v.SetDefault("extract.primary", "llm")
	v.SetDefault("extract.max_concurrent", 4)
	v.SetDefault("extract.rooms_per_prompt", 5)
	v.SetDefault("collect.max_concurrent_regions", 3)
	v.SetDefault("collect.max_concurrent_fetches", 5)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
