// File: cmd/app/main.go
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
	"github.com/spf13/pflag"

	"telegram-ai-relay/internal/application"
	"telegram-ai-relay/internal/config"
	"telegram-ai-relay/internal/domain/ports/adapter"
	"telegram-ai-relay/internal/domain/ports/repository"
	aiAdapters "telegram-ai-relay/internal/infra/adapters/ai"
	tele "telegram-ai-relay/internal/infra/adapters/telegram"
	"telegram-ai-relay/internal/infra/api"
	"telegram-ai-relay/internal/infra/db/memory"
	pg "telegram-ai-relay/internal/infra/db/postgres"
	"telegram-ai-relay/internal/infra/db/sqlite"
	"telegram-ai-relay/internal/infra/i18n"
	"telegram-ai-relay/internal/infra/logging"
	"telegram-ai-relay/internal/infra/metrics"
	red "telegram-ai-relay/internal/infra/redis"
	"telegram-ai-relay/internal/infra/sched"
	"telegram-ai-relay/internal/infra/security"
	"telegram-ai-relay/internal/infra/tokenizer"
	"telegram-ai-relay/internal/infra/worker"
	"telegram-ai-relay/internal/usecase"
)

// Set via -ldflags at build time.
var (
	version = "dev"
	commit  = "none"
)

// noopToken selects the log-only transport in --dev runs.
const noopToken = "noop"

func main() {
	cfgPath := pflag.StringP("config", "c", config.DefaultPath, "path to YAML config file")
	devMode := pflag.Bool("dev", false, "developer mode: console logs, noop transport when bot.token is \"noop\"")
	mode := pflag.String("mode", "", "update delivery: webhook | polling (overrides bot.mode)")
	pflag.Parse()

	if *mode != "" {
		_ = os.Setenv("BOT_MODE", *mode)
	}
	cfg, err := config.LoadConfig(*cfgPath, *devMode)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.Log, cfg.Runtime.Dev)
	if err := run(cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("app stopped with error")
	}
}

func run(cfg *config.Config, logger *zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics.MustRegister()
	metrics.SetBuildInfo(version, commit)
	logger.Info().Str("version", version).Str("mode", cfg.Bot.Mode).Bool("dev", cfg.Runtime.Dev).Msg("starting")

	// ---- History store ----
	sealer, err := security.NewSealer(cfg.Security.HistoryEncryptionKey)
	if err != nil {
		return fmt.Errorf("encryption: %w", err)
	}
	store, closeStore, err := openStore(ctx, cfg, sealer, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	// ---- Redis (optional) ----
	var (
		history      = store
		summaryCache repository.SummaryCache
		limiter      application.RateLimiter
		locker       application.ChatLocker
		dedup        api.Deduper
	)
	if cfg.Redis.URL != "" {
		rc, err := red.NewClient(ctx, &cfg.Redis)
		if err != nil {
			return fmt.Errorf("redis: %w", err)
		}
		defer rc.Close()
		history = red.NewHistoryCacheDecorator(store, rc, sealer, cfg.Redis.TTL, logger)
		summaryCache = red.NewSummaryCache(rc, cfg.Redis.SummaryTTL)
		limiter = red.NewRateLimiter(rc)
		locker = red.NewLocker(rc)
		dedup = red.NewUpdateDedup(rc, cfg.Redis.DedupTTL)
		logger.Info().Msg("redis enabled: history cache, summary cache, rate limit, dedup")
	}

	// ---- AI ----
	ai, err := buildAI(ctx, cfg, logger)
	if err != nil {
		return err
	}

	catalog, err := i18n.NewCatalog(i18n.LocalesFS, cfg.Bot.Language)
	if err != nil {
		return fmt.Errorf("locales: %w", err)
	}

	// ---- Telegram transport ----
	var (
		display adapter.TelegramBotAdapter
		bot     *tele.RealTelegramBotAdapter
	)
	if cfg.Runtime.Dev && cfg.Bot.Token == noopToken {
		display = tele.NewNoopBotAdapter(logger)
		logger.Warn().Msg("using noop telegram transport")
	} else {
		bot, err = tele.NewRealTelegramBotAdapter(&cfg.Bot, cfg.Stream.MaxMessageChars, logger)
		if err != nil {
			return err
		}
		display = bot
	}

	// ---- Use cases ----
	summarizer := usecase.NewSummarizer(ai, summaryCache, usecase.SummarizerConfig{
		Model:       cfg.AI.SummaryModel,
		MaxTokens:   cfg.Context.SummaryMaxTokens,
		Timeout:     cfg.Context.SummaryTimeout,
		Instruction: cfg.Context.SummaryPrompt,
		Unavailable: cfg.Context.SummaryUnavailable,
	}, logger)
	assembler := usecase.NewContextAssembler(history, summarizer, usecase.AssemblerConfig{
		MaxRecent:     cfg.Context.MaxRecent,
		Horizon:       *cfg.Context.SummaryHorizon,
		SummaryPrefix: cfg.Context.SummaryPrefix,
	}, logger)
	renderer := usecase.NewStreamRenderer(display, usecase.RenderConfig{
		FlushMinChars: cfg.Stream.FlushMinChars,
		FlushMarkers:  cfg.Stream.FlushMarkers,
		FlushInterval: cfg.Stream.FlushInterval,
		Formats:       formats(cfg.Stream.Formats),
	}, logger)
	writer := usecase.NewHistoryWriter(history, logger)
	chatUC := usecase.NewChatUseCase(assembler, renderer, writer, history, ai, display, tokenizer.New(logger),
		usecase.ChatConfig{
			Model:        cfg.AI.DefaultModel,
			MaxTokens:    cfg.AI.MaxTokens,
			WriteTimeout: cfg.Database.WriteTimeout,
		}, logger)

	facade := application.NewBotFacade(chatUC, catalog, limiter, locker, display, application.FacadeConfig{
		RateLimitPerMinute: cfg.Bot.RateLimitPerMinute,
		SerializeChats:     cfg.Bot.SerializeChats,
		LockTTL:            cfg.Bot.RequestTimeout,
	}, logger)
	router := tele.NewUpdateRouter(facade, display, cfg.Bot.Language, logger).WithDev(cfg.Runtime.Dev)

	// ---- Workers ----
	pool := worker.NewPool(cfg.Bot.Workers, cfg.Bot.QueueSize, logger)
	pool.Start(ctx)
	dispatch := api.DispatchFunc(func(up tgbotapi.Update) error {
		return pool.Submit(func(ctx context.Context) error {
			tctx, cancel := context.WithTimeout(ctx, cfg.Bot.RequestTimeout)
			defer cancel()
			return router.HandleUpdate(tctx, up)
		})
	})

	// ---- HTTP ----
	srv := api.NewServer(cfg, dispatch, dedup, chatUC, logger)
	httpErr := make(chan error, 1)
	go func() { httpErr <- srv.Start() }()

	// ---- Update delivery ----
	if bot != nil {
		switch cfg.Bot.Mode {
		case "polling":
			go func() {
				err := bot.StartPolling(ctx, func(up tgbotapi.Update) {
					if err := dispatch.Dispatch(up); err != nil {
						logger.Warn().Err(err).Int("update_id", up.UpdateID).Msg("update dropped")
					}
				})
				if err != nil {
					logger.Error().Err(err).Msg("polling stopped")
				}
			}()
		default:
			if err := bot.SetWebhook(ctx); err != nil {
				return err
			}
		}
	}

	// ---- Background jobs ----
	if cfg.KeepAlive.URL != "" {
		go func() { _ = sched.NewKeepAlive(cfg.KeepAlive.URL, cfg.KeepAlive.Interval, logger).Run(ctx) }()
	}
	if cfg.History.RetentionDays > 0 {
		rw := sched.NewRetentionWorker(cfg.History.PruneInterval, cfg.History.RetentionDays, history, logger)
		go func() { _ = rw.Run(ctx) }()
	}

	select {
	case <-ctx.Done():
		logger.Info().Msg("shutdown requested")
	case err := <-httpErr:
		if err != nil {
			logger.Error().Err(err).Msg("http server failed")
		}
		stop()
	}

	// ---- Graceful shutdown ----
	shCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	if bot != nil && cfg.Bot.Mode == "webhook" {
		if err := bot.DeleteWebhook(shCtx); err != nil {
			logger.Warn().Err(err).Msg("webhook not deleted")
		}
	}
	if err := srv.Shutdown(shCtx); err != nil {
		logger.Warn().Err(err).Msg("http shutdown")
	}
	// queued updates were already acknowledged; give them one request budget to finish
	drainCtx, cancelDrain := context.WithTimeout(context.Background(), cfg.Bot.RequestTimeout)
	defer cancelDrain()
	if err := pool.Shutdown(drainCtx); err != nil {
		logger.Warn().Err(err).Msg("worker drain cut short")
	}
	logger.Info().Msg("bye")
	return nil
}

// openStore selects the history backend from database.driver.
func openStore(ctx context.Context, cfg *config.Config, sealer security.Sealer, logger *zerolog.Logger) (repository.HistoryRepository, func(), error) {
	switch cfg.Database.Driver {
	case "postgres":
		pool, err := pg.Connect(ctx, cfg.Database)
		if err != nil {
			return nil, nil, fmt.Errorf("postgres: %w", err)
		}
		if cfg.Database.AutoMigrate {
			if err := pg.EnsureSchema(ctx, pool); err != nil {
				pool.Close()
				return nil, nil, fmt.Errorf("postgres schema: %w", err)
			}
		}
		go pg.ReportPoolStats(ctx, pool, 30*time.Second, logger)
		logger.Info().Msg("history store: postgres")
		return pg.NewHistoryRepo(pool, sealer), pool.Close, nil
	case "sqlite":
		repo, err := sqlite.Open(ctx, cfg.Database.SQLitePath, sealer)
		if err != nil {
			return nil, nil, fmt.Errorf("sqlite: %w", err)
		}
		logger.Info().Str("path", cfg.Database.SQLitePath).Msg("history store: sqlite")
		return repo, func() { _ = repo.Close() }, nil
	default:
		logger.Warn().Msg("history store: memory, history is lost on restart")
		return memory.NewHistoryRepo(), func() {}, nil
	}
}

// buildAI registers every provider with a key and routes by model name.
func buildAI(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) (adapter.AIServiceAdapter, error) {
	providers := map[string]adapter.AIServiceAdapter{}
	defModel := func(p string) string {
		if cfg.AI.Provider == p {
			return cfg.AI.DefaultModel
		}
		return ""
	}

	if cfg.AI.OpenAIKey != "" {
		a, err := aiAdapters.NewOpenAIAdapter(cfg.AI.OpenAIKey, cfg.AI.OpenAIBaseURL, defModel("openai"), cfg.AI.Timeout)
		if err != nil {
			return nil, fmt.Errorf("openai adapter: %w", err)
		}
		providers["openai"] = a
	}
	if cfg.AI.GeminiKey != "" {
		a, err := aiAdapters.NewGeminiAdapter(ctx, cfg.AI.GeminiKey, cfg.AI.GeminiURL, defModel("gemini"))
		if err != nil {
			return nil, fmt.Errorf("gemini adapter: %w", err)
		}
		providers["gemini"] = a
	}
	if cfg.AI.AnthropicKey != "" {
		a, err := aiAdapters.NewAnthropicAdapter(cfg.AI.AnthropicKey, defModel("anthropic"))
		if err != nil {
			return nil, fmt.Errorf("anthropic adapter: %w", err)
		}
		providers["anthropic"] = a
	}
	if cfg.AI.Provider == "echo" {
		providers["echo"] = aiAdapters.NewEchoAIAdapter(40 * time.Millisecond)
	}

	names := make([]string, 0, len(providers))
	for n := range providers {
		names = append(names, n)
	}
	logger.Info().Strs("providers", names).Str("default", cfg.AI.Provider).Str("model", cfg.AI.DefaultModel).Msg("AI adapters ready")

	multi := aiAdapters.NewMultiAIAdapter(cfg.AI.Provider, providers, cfg.AI.ModelProviders)
	return aiAdapters.NewLimitedAI(multi, cfg.AI.ConcurrentLimit), nil
}

func formats(names []string) []adapter.Format {
	out := make([]adapter.Format, 0, len(names))
	for _, n := range names {
		if f := adapter.Format(strings.ToLower(n)); f.Valid() {
			out = append(out, f)
		}
	}
	return out
}
