package application

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"telegram-ai-relay/internal/domain"
	"telegram-ai-relay/internal/infra/logging"
	"telegram-ai-relay/internal/infra/metrics"
	red "telegram-ai-relay/internal/infra/redis"
	"telegram-ai-relay/internal/usecase"
)

type FacadeConfig struct {
	RateLimitPerMinute int // 0 disables
	SerializeChats     bool
	LockTTL            time.Duration
}

// BotFacade puts the host guards (flood limit, per-chat lock, typing action,
// localized notices) in front of the chat pipeline. Facade methods return the
// text the Telegram adapter should send; an empty string means nothing to send.
type BotFacade struct {
	ChatUC usecase.ChatUseCase

	tr      Translator
	limiter RateLimiter
	locker  ChatLocker
	typer   Typer
	cfg     FacadeConfig
	log     *zerolog.Logger
}

// NewBotFacade wires the facade. limiter, locker and typer may be nil.
func NewBotFacade(
	chatUC usecase.ChatUseCase,
	tr Translator,
	limiter RateLimiter,
	locker ChatLocker,
	typer Typer,
	cfg FacadeConfig,
	logger *zerolog.Logger,
) *BotFacade {
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 3 * time.Minute
	}
	l := logger.With().Str("component", "bot_facade").Logger()
	return &BotFacade{
		ChatUC:  chatUC,
		tr:      tr,
		limiter: limiter,
		locker:  locker,
		typer:   typer,
		cfg:     cfg,
		log:     &l,
	}
}

func (b *BotFacade) HandleStart(lang string) string { return b.tr.T(lang, "welcome") }

func (b *BotFacade) HandleHelp(lang string) string { return b.tr.T(lang, "help") }

func (b *BotFacade) HandleUnsupported(lang string) string { return b.tr.T(lang, "unsupported") }

// HandleReset forgets the chat's history.
func (b *BotFacade) HandleReset(ctx context.Context, chatID int64, lang string) string {
	if err := b.ChatUC.ResetHistory(ctx, chatID); err != nil {
		logging.With(logging.WithChatID(ctx, chatID), b.log).Error().Err(err).Msg("reset failed")
		return b.tr.T(lang, "reset_failed")
	}
	return b.tr.T(lang, "reset_done")
}

// HandleChatMessage relays text to the chat pipeline. The answer itself is
// streamed into the chat by the pipeline; the returned string is a guard
// notice (rate limited, busy) or empty.
func (b *BotFacade) HandleChatMessage(ctx context.Context, chatID int64, lang, text string) (string, error) {
	ctx = logging.WithChatID(ctx, chatID)
	log := logging.With(ctx, b.log)

	if b.limiter != nil && b.cfg.RateLimitPerMinute > 0 {
		ok, err := b.limiter.Allow(ctx, red.ChatMessageKey(chatID), b.cfg.RateLimitPerMinute, time.Minute)
		switch {
		case err != nil:
			log.Warn().Err(err).Msg("rate limiter unavailable, allowing message")
		case !ok:
			metrics.IncRateLimitTriggered()
			return b.tr.T(lang, "rate_limited"), domain.ErrRateLimited
		}
	}

	if b.locker != nil && b.cfg.SerializeChats {
		key := red.ChatLockKey(chatID)
		token, err := b.locker.TryLock(ctx, key, b.cfg.LockTTL)
		switch {
		case errors.Is(err, domain.ErrChatBusy):
			metrics.IncChatBusy()
			return b.tr.T(lang, "busy"), err
		case err != nil:
			log.Warn().Err(err).Msg("chat lock unavailable, continuing unserialized")
		default:
			defer func() {
				uctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
				defer cancel()
				if err := b.locker.Unlock(uctx, key, token); err != nil {
					log.Warn().Err(err).Msg("chat unlock failed")
				}
			}()
		}
	}

	if b.typer != nil {
		if err := b.typer.SendTyping(ctx, chatID); err != nil {
			log.Debug().Err(err).Msg("typing action failed")
		}
	}

	out, err := b.ChatUC.HandleMessage(ctx, usecase.IncomingMessage{
		ChatID: chatID,
		Text:   text,
		Notices: usecase.Notices{
			Apology:  b.tr.T(lang, "apology"),
			NoAnswer: b.tr.T(lang, "no_answer"),
		},
	})
	if err != nil {
		return "", err
	}
	log.Debug().
		Bool("summarized", out.Summarized).
		Bool("persisted", out.Persisted).
		Bool("interrupted", out.Interrupted).
		Int("answer_len", len(out.Answer)).
		Msg("message handled")
	return "", nil
}
