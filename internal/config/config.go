// File: internal/config/config.go
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
)

const DefaultPath = "config.yaml"

type RuntimeConfig struct {
	Dev bool
}

type BotConfig struct {
	Token              string        `yaml:"token"`
	Mode               string        `yaml:"mode"` // webhook | polling
	WebhookURL         string        `yaml:"webhook_url"`
	WebhookPath        string        `yaml:"webhook_path"`
	WebhookSecret      string        `yaml:"webhook_secret"`
	Workers            int           `yaml:"workers"`    // update workers
	QueueSize          int           `yaml:"queue_size"` // pending updates before 503
	Language           string        `yaml:"language"`
	RateLimitPerMinute int           `yaml:"rate_limit_per_minute"`
	SerializeChats     bool          `yaml:"serialize_chats"`
	RequestTimeout     time.Duration `yaml:"request_timeout"`
}

type HTTPConfig struct {
	Port            int           `yaml:"port"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type LogConfig struct {
	Level    string `yaml:"level"`    // trace|debug|info|warn|error
	Format   string `yaml:"format"`   // json|console
	Sampling bool   `yaml:"sampling"` // enable sampling in prod
}

type AdminConfig struct {
	JWTSecret string        `yaml:"jwt_secret"`
	APIKey    string        `yaml:"api_key"`
	TokenTTL  time.Duration `yaml:"token_ttl"`
}

type DatabaseConfig struct {
	Driver       string        `yaml:"driver"` // postgres | sqlite | memory
	URL          string        `yaml:"url"`
	SQLitePath   string        `yaml:"sqlite_path"`
	MaxConns     int32         `yaml:"max_conns"`
	AutoMigrate  bool          `yaml:"auto_migrate"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

type RedisConfig struct {
	URL        string        `yaml:"url"`
	Password   string        `yaml:"password"`
	DB         int           `yaml:"db"`
	TTL        time.Duration `yaml:"ttl"`         // recent-window cache
	SummaryTTL time.Duration `yaml:"summary_ttl"` // summary cache
	DedupTTL   time.Duration `yaml:"dedup_ttl"`   // webhook update ids
}

type AIConfig struct {
	Provider        string            `yaml:"provider"` // openai | gemini | anthropic | echo
	OpenAIKey       string            `yaml:"openai_key"`
	OpenAIBaseURL   string            `yaml:"openai_base_url"`
	GeminiKey       string            `yaml:"gemini_key"`
	GeminiURL       string            `yaml:"gemini_url"`
	AnthropicKey    string            `yaml:"anthropic_key"`
	DefaultModel    string            `yaml:"default_model"`
	SummaryModel    string            `yaml:"summary_model"`
	ModelProviders  map[string]string `yaml:"model_providers"` // explicit model -> provider routes
	MaxTokens       int               `yaml:"max_tokens"`
	ConcurrentLimit int               `yaml:"concurrent_limit"` // max concurrent AI calls
	Timeout         time.Duration     `yaml:"timeout"`
}

type ContextConfig struct {
	MaxRecent          int           `yaml:"max_recent"`
	SummaryHorizon     *int          `yaml:"summary_horizon"`
	SummaryMaxTokens   int           `yaml:"summary_max_tokens"`
	SummaryTimeout     time.Duration `yaml:"summary_timeout"`
	SummaryPrompt      string        `yaml:"summary_prompt"`
	SummaryPrefix      string        `yaml:"summary_prefix"`
	SummaryUnavailable string        `yaml:"summary_unavailable"`
}

type StreamConfig struct {
	FlushMinChars   int           `yaml:"flush_min_chars"`
	FlushMarkers    string        `yaml:"flush_markers"`
	FlushInterval   time.Duration `yaml:"flush_interval"`
	Formats         []string      `yaml:"formats"`
	MaxMessageChars int           `yaml:"max_message_chars"`
}

type HistoryConfig struct {
	RetentionDays int           `yaml:"retention_days"`
	PruneInterval time.Duration `yaml:"prune_interval"`
}

type KeepAliveConfig struct {
	URL      string        `yaml:"url"`
	Interval time.Duration `yaml:"interval"`
}

type SecurityConfig struct {
	HistoryEncryptionKey string `yaml:"history_encryption_key"`
}

type Config struct {
	Bot       BotConfig       `yaml:"bot"`
	HTTP      HTTPConfig      `yaml:"http"`
	Log       LogConfig       `yaml:"log"`
	Admin     AdminConfig     `yaml:"admin"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	AI        AIConfig        `yaml:"ai"`
	Context   ContextConfig   `yaml:"context"`
	Stream    StreamConfig    `yaml:"stream"`
	History   HistoryConfig   `yaml:"history"`
	KeepAlive KeepAliveConfig `yaml:"keepalive"`
	Security  SecurityConfig  `yaml:"security"`

	Runtime RuntimeConfig `yaml:"-"`
}

// LoadConfig reads .env, the YAML file at path and the process environment,
// in that order of increasing precedence. A missing file is tolerated only
// for the default path so a container can run from environment alone.
func LoadConfig(path string, dev bool) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	var cfg Config
	if path == "" {
		path = DefaultPath
	}
	b, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	case errors.Is(err, os.ErrNotExist) && path == DefaultPath:
	default:
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := applyEnv(&cfg, os.LookupEnv); err != nil {
		return nil, err
	}
	applyDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.Runtime.Dev = dev
	return &cfg, nil
}

func applyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	str("TELEGRAM_BOT_TOKEN", &cfg.Bot.Token)
	str("BOT_MODE", &cfg.Bot.Mode)
	str("WEBHOOK_URL", &cfg.Bot.WebhookURL)
	str("WEBHOOK_SECRET", &cfg.Bot.WebhookSecret)
	str("OPENAI_API_KEY", &cfg.AI.OpenAIKey)
	str("OPENAI_BASE_URL", &cfg.AI.OpenAIBaseURL)
	str("GEMINI_API_KEY", &cfg.AI.GeminiKey)
	str("ANTHROPIC_API_KEY", &cfg.AI.AnthropicKey)
	str("AI_PROVIDER", &cfg.AI.Provider)
	str("DATABASE_URL", &cfg.Database.URL)
	str("REDIS_URL", &cfg.Redis.URL)
	str("RENDER_URL", &cfg.KeepAlive.URL)
	str("ADMIN_JWT_SECRET", &cfg.Admin.JWTSecret)
	str("ADMIN_API_KEY", &cfg.Admin.APIKey)
	str("HISTORY_ENCRYPTION_KEY", &cfg.Security.HistoryEncryptionKey)
	str("LOG_LEVEL", &cfg.Log.Level)

	if v, ok := lookup("PORT"); ok && v != "" {
		p, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("PORT: %w", err)
		}
		cfg.HTTP.Port = p
	}
	return nil
}

func applyDefaults(cfg *Config) {
	if cfg.Bot.Mode == "" {
		cfg.Bot.Mode = "webhook"
	}
	if cfg.Bot.WebhookPath == "" {
		cfg.Bot.WebhookPath = "/webhook"
	}
	if cfg.Bot.Workers <= 0 {
		cfg.Bot.Workers = 8
	}
	if cfg.Bot.QueueSize <= 0 {
		cfg.Bot.QueueSize = 256
	}
	if cfg.Bot.Language == "" {
		cfg.Bot.Language = "en"
	}
	if cfg.Bot.RequestTimeout <= 0 {
		cfg.Bot.RequestTimeout = 3 * time.Minute
	}
	if cfg.HTTP.Port <= 0 {
		cfg.HTTP.Port = 8000
	}
	if cfg.HTTP.ShutdownTimeout <= 0 {
		cfg.HTTP.ShutdownTimeout = 10 * time.Second
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	if cfg.Admin.TokenTTL <= 0 {
		cfg.Admin.TokenTTL = 12 * time.Hour
	}

	if cfg.Database.Driver == "" {
		if cfg.Database.URL != "" {
			cfg.Database.Driver = "postgres"
		} else {
			cfg.Database.Driver = "sqlite"
		}
	}
	if cfg.Database.SQLitePath == "" {
		cfg.Database.SQLitePath = "data/history.db"
	}
	if cfg.Database.MaxConns <= 0 {
		cfg.Database.MaxConns = 8
	}
	if cfg.Database.WriteTimeout <= 0 {
		cfg.Database.WriteTimeout = 5 * time.Second
	}

	cfg.Redis.TTL = normalizeTTL(cfg.Redis.TTL, 10*time.Minute)
	cfg.Redis.SummaryTTL = normalizeTTL(cfg.Redis.SummaryTTL, 24*time.Hour)
	cfg.Redis.DedupTTL = normalizeTTL(cfg.Redis.DedupTTL, time.Hour)

	if cfg.AI.Provider == "" {
		cfg.AI.Provider = "openai"
	}
	if cfg.AI.DefaultModel == "" {
		cfg.AI.DefaultModel = "gpt-3.5-turbo-16k"
	}
	if cfg.AI.SummaryModel == "" {
		cfg.AI.SummaryModel = cfg.AI.DefaultModel
	}
	if cfg.AI.ConcurrentLimit <= 0 {
		cfg.AI.ConcurrentLimit = 8
	}
	if cfg.AI.Timeout <= 0 {
		cfg.AI.Timeout = 2 * time.Minute
	}

	if cfg.Context.MaxRecent <= 0 {
		cfg.Context.MaxRecent = 10
	}
	if cfg.Context.SummaryHorizon == nil || *cfg.Context.SummaryHorizon < 0 {
		h := cfg.Context.MaxRecent
		cfg.Context.SummaryHorizon = &h
	}
	if cfg.Context.SummaryMaxTokens <= 0 {
		cfg.Context.SummaryMaxTokens = 200
	}
	if cfg.Context.SummaryTimeout <= 0 {
		cfg.Context.SummaryTimeout = 20 * time.Second
	}
	if cfg.Context.SummaryPrompt == "" {
		cfg.Context.SummaryPrompt = "You are a helpful assistant. Summarize the following conversation, " +
			"focusing on key details, user preferences, and important information to maintain consistent context:"
	}
	if cfg.Context.SummaryPrefix == "" {
		cfg.Context.SummaryPrefix = "Current conversation summary: "
	}
	if cfg.Context.SummaryUnavailable == "" {
		cfg.Context.SummaryUnavailable = "summary unavailable"
	}

	if cfg.Stream.FlushMinChars <= 0 {
		cfg.Stream.FlushMinChars = 50
	}
	if cfg.Stream.FlushMarkers == "" {
		cfg.Stream.FlushMarkers = ".!?\n"
	}
	if cfg.Stream.FlushInterval < 0 {
		cfg.Stream.FlushInterval = 0
	} else if cfg.Stream.FlushInterval == 0 {
		cfg.Stream.FlushInterval = 300 * time.Millisecond
	}
	if len(cfg.Stream.Formats) == 0 {
		cfg.Stream.Formats = []string{"html", "markdown", "plain"}
	}
	if cfg.Stream.MaxMessageChars <= 0 {
		cfg.Stream.MaxMessageChars = 4096
	}

	if cfg.History.PruneInterval <= 0 {
		cfg.History.PruneInterval = 6 * time.Hour
	}
	if cfg.KeepAlive.Interval <= 0 {
		cfg.KeepAlive.Interval = 5 * time.Minute
	}
}

// Validate checks the settings that have no usable default.
func (c *Config) Validate() error {
	if c.Bot.Token == "" {
		return errors.New("bot.token is required")
	}
	switch c.Bot.Mode {
	case "webhook":
		if c.Bot.WebhookURL == "" {
			return errors.New("bot.webhook_url is required in webhook mode")
		}
	case "polling":
	default:
		return fmt.Errorf("bot.mode %q is not supported", c.Bot.Mode)
	}
	switch c.Database.Driver {
	case "postgres":
		if c.Database.URL == "" {
			return errors.New("database.url is required for postgres")
		}
	case "sqlite", "memory":
	default:
		return fmt.Errorf("database.driver %q is not supported", c.Database.Driver)
	}
	for _, f := range c.Stream.Formats {
		switch strings.ToLower(f) {
		case "html", "markdown", "markdownv2", "plain":
		default:
			return fmt.Errorf("stream.formats: unknown format %q", f)
		}
	}
	switch c.AI.Provider {
	case "openai":
		if c.AI.OpenAIKey == "" {
			return errors.New("ai.openai_key is required for provider openai")
		}
	case "gemini":
		if c.AI.GeminiKey == "" {
			return errors.New("ai.gemini_key is required for provider gemini")
		}
	case "anthropic":
		if c.AI.AnthropicKey == "" {
			return errors.New("ai.anthropic_key is required for provider anthropic")
		}
	case "echo":
	default:
		return fmt.Errorf("ai.provider %q is not supported", c.AI.Provider)
	}
	return nil
}

func normalizeTTL(d, def time.Duration) time.Duration {
	if d <= 0 {
		return def
	}
	return d
}
