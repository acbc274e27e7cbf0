// File: cmd/migrate/main.go
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/pflag"

	"telegram-ai-relay/internal/config"
	pg "telegram-ai-relay/internal/infra/db/postgres"
	"telegram-ai-relay/internal/infra/db/sqlite"
	"telegram-ai-relay/internal/infra/logging"
	"telegram-ai-relay/internal/infra/security"
)

// migrate applies the history schema to the configured store and exits.
func main() {
	cfgPath := pflag.StringP("config", "c", config.DefaultPath, "path to YAML config file")
	timeout := pflag.Duration("timeout", 30*time.Second, "overall migration timeout")
	pflag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, false)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	logger := logging.New(cfg.Log, false)

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	switch cfg.Database.Driver {
	case "postgres":
		pool, err := pg.Connect(ctx, cfg.Database)
		if err != nil {
			logger.Fatal().Err(err).Msg("postgres connect")
		}
		defer pool.Close()
		if err := pg.EnsureSchema(ctx, pool); err != nil {
			logger.Fatal().Err(err).Msg("postgres schema")
		}
	case "sqlite":
		// Open creates the schema as a side effect.
		repo, err := sqlite.Open(ctx, cfg.Database.SQLitePath, security.Plain{})
		if err != nil {
			logger.Fatal().Err(err).Msg("sqlite open")
		}
		_ = repo.Close()
	default:
		logger.Info().Str("driver", cfg.Database.Driver).Msg("nothing to migrate")
		return
	}
	logger.Info().Str("driver", cfg.Database.Driver).Msg("schema applied")
}
