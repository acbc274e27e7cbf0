//go:build !integration

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func envOf(m map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}

func TestApplyDefaults(t *testing.T) {
	t.Run("should fill core defaults", func(t *testing.T) {
		var cfg Config
		applyDefaults(&cfg)

		if cfg.Context.MaxRecent != 10 {
			t.Errorf("max_recent = %d", cfg.Context.MaxRecent)
		}
		if cfg.Context.SummaryHorizon == nil || *cfg.Context.SummaryHorizon != 10 {
			t.Errorf("summary_horizon = %v", cfg.Context.SummaryHorizon)
		}
		if cfg.Context.SummaryMaxTokens != 200 {
			t.Errorf("summary_max_tokens = %d", cfg.Context.SummaryMaxTokens)
		}
		if cfg.Stream.FlushMinChars != 50 || cfg.Stream.FlushMarkers != ".!?\n" {
			t.Errorf("flush = %d %q", cfg.Stream.FlushMinChars, cfg.Stream.FlushMarkers)
		}
		if cfg.Stream.FlushInterval != 300*time.Millisecond {
			t.Errorf("flush_interval = %v", cfg.Stream.FlushInterval)
		}
		if len(cfg.Stream.Formats) != 3 || cfg.Stream.Formats[0] != "html" {
			t.Errorf("formats = %v", cfg.Stream.Formats)
		}
		if cfg.AI.DefaultModel != "gpt-3.5-turbo-16k" || cfg.AI.SummaryModel != cfg.AI.DefaultModel {
			t.Errorf("models = %q %q", cfg.AI.DefaultModel, cfg.AI.SummaryModel)
		}
		if cfg.Bot.Mode != "webhook" || cfg.Bot.WebhookPath != "/webhook" {
			t.Errorf("bot = %q %q", cfg.Bot.Mode, cfg.Bot.WebhookPath)
		}
		if cfg.HTTP.Port != 8000 || cfg.KeepAlive.Interval != 5*time.Minute {
			t.Errorf("port = %d keepalive = %v", cfg.HTTP.Port, cfg.KeepAlive.Interval)
		}
		if cfg.Database.Driver != "sqlite" {
			t.Errorf("driver = %q", cfg.Database.Driver)
		}
	})

	t.Run("should keep an explicit zero horizon", func(t *testing.T) {
		zero := 0
		cfg := Config{Context: ContextConfig{MaxRecent: 4, SummaryHorizon: &zero}}
		applyDefaults(&cfg)
		if *cfg.Context.SummaryHorizon != 0 {
			t.Errorf("summary_horizon = %d", *cfg.Context.SummaryHorizon)
		}
	})

	t.Run("should disable the flush pause on a negative interval", func(t *testing.T) {
		cfg := Config{Stream: StreamConfig{FlushInterval: -time.Second}}
		applyDefaults(&cfg)
		if cfg.Stream.FlushInterval != 0 {
			t.Errorf("flush_interval = %v", cfg.Stream.FlushInterval)
		}
	})

	t.Run("should pick postgres when a database url is set", func(t *testing.T) {
		cfg := Config{Database: DatabaseConfig{URL: "postgres://x"}}
		applyDefaults(&cfg)
		if cfg.Database.Driver != "postgres" {
			t.Errorf("driver = %q", cfg.Database.Driver)
		}
	})
}

func TestApplyEnv(t *testing.T) {
	t.Run("should override file values", func(t *testing.T) {
		cfg := Config{Bot: BotConfig{Token: "file"}}
		err := applyEnv(&cfg, envOf(map[string]string{
			"TELEGRAM_BOT_TOKEN": "env",
			"OPENAI_API_KEY":     "sk",
			"PORT":               "9090",
			"RENDER_URL":         "https://relay.example",
			"BOT_MODE":           "polling",
		}))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if cfg.Bot.Token != "env" || cfg.AI.OpenAIKey != "sk" || cfg.HTTP.Port != 9090 {
			t.Errorf("cfg = %+v", cfg)
		}
		if cfg.KeepAlive.URL != "https://relay.example" || cfg.Bot.Mode != "polling" {
			t.Errorf("keepalive = %q mode = %q", cfg.KeepAlive.URL, cfg.Bot.Mode)
		}
	})

	t.Run("should ignore empty values", func(t *testing.T) {
		cfg := Config{Bot: BotConfig{Token: "file"}}
		if err := applyEnv(&cfg, envOf(map[string]string{"TELEGRAM_BOT_TOKEN": ""})); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if cfg.Bot.Token != "file" {
			t.Errorf("token = %q", cfg.Bot.Token)
		}
	})

	t.Run("should reject a non numeric port", func(t *testing.T) {
		var cfg Config
		if err := applyEnv(&cfg, envOf(map[string]string{"PORT": "http"})); err == nil {
			t.Fatal("expected error")
		}
	})
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		cfg := Config{
			Bot: BotConfig{Token: "t", WebhookURL: "https://x/webhook"},
			AI:  AIConfig{OpenAIKey: "sk"},
		}
		applyDefaults(&cfg)
		return cfg
	}

	cases := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"should accept defaults with credentials", func(*Config) {}, false},
		{"should require a token", func(c *Config) { c.Bot.Token = "" }, true},
		{"should require a webhook url in webhook mode", func(c *Config) { c.Bot.WebhookURL = "" }, true},
		{"should not require a webhook url when polling", func(c *Config) { c.Bot.WebhookURL = ""; c.Bot.Mode = "polling" }, false},
		{"should reject an unknown mode", func(c *Config) { c.Bot.Mode = "push" }, true},
		{"should reject an unknown format", func(c *Config) { c.Stream.Formats = []string{"html", "bbcode"} }, true},
		{"should require a url for postgres", func(c *Config) { c.Database.Driver = "postgres" }, true},
		{"should require the provider key", func(c *Config) { c.AI.Provider = "gemini" }, true},
		{"should accept echo without keys", func(c *Config) { c.AI.Provider = "echo"; c.AI.OpenAIKey = "" }, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := valid()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if (err != nil) != tc.wantErr {
				t.Errorf("Validate() err = %v, wantErr %v", err, tc.wantErr)
			}
		})
	}
}

func TestLoadConfig(t *testing.T) {
	t.Run("should read yaml and let the environment win", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "relay.yaml")
		body := "bot:\n  token: from-file\n  mode: polling\nai:\n  provider: echo\ncontext:\n  max_recent: 6\n"
		if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
			t.Fatal(err)
		}
		t.Setenv("TELEGRAM_BOT_TOKEN", "from-env")

		cfg, err := LoadConfig(path, true)
		if err != nil {
			t.Fatalf("LoadConfig: %v", err)
		}
		if cfg.Bot.Token != "from-env" {
			t.Errorf("token = %q", cfg.Bot.Token)
		}
		if cfg.Context.MaxRecent != 6 || *cfg.Context.SummaryHorizon != 6 {
			t.Errorf("context = %d/%d", cfg.Context.MaxRecent, *cfg.Context.SummaryHorizon)
		}
		if !cfg.Runtime.Dev {
			t.Error("dev flag not recorded")
		}
	})

	t.Run("should fail on a missing explicit path", func(t *testing.T) {
		if _, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"), false); err == nil {
			t.Fatal("expected error")
		}
	})
}
