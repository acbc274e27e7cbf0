package telegram

import (
	"context"
	"errors"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"telegram-ai-relay/internal/domain"
	"telegram-ai-relay/internal/infra/logging"
	"telegram-ai-relay/internal/infra/metrics"
)

// Facade is what the router needs from application.BotFacade.
type Facade interface {
	HandleStart(lang string) string
	HandleHelp(lang string) string
	HandleUnsupported(lang string) string
	HandleReset(ctx context.Context, chatID int64, lang string) string
	HandleChatMessage(ctx context.Context, chatID int64, lang, text string) (string, error)
}

// Sender delivers command replies and guard notices.
type Sender interface {
	SendMessage(ctx context.Context, chatID int64, text string) error
}

// UpdateRouter dispatches Telegram updates: text goes to the chat pipeline,
// commands to commandRoutes, everything else is counted and dropped.
type UpdateRouter struct {
	facade      Facade
	sender      Sender
	defaultLang string
	dev         bool
	log         *zerolog.Logger
}

func NewUpdateRouter(facade Facade, sender Sender, defaultLang string, logger *zerolog.Logger) *UpdateRouter {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	l := logger.With().Str("component", "update_router").Logger()
	return &UpdateRouter{facade: facade, sender: sender, defaultLang: defaultLang, log: &l}
}

// WithDev makes debug logs carry full message text instead of a redacted preview.
func (r *UpdateRouter) WithDev(dev bool) *UpdateRouter {
	r.dev = dev
	return r
}

func (r *UpdateRouter) HandleUpdate(ctx context.Context, update tgbotapi.Update) error {
	ctx = logging.WithUpdateID(ctx, update.UpdateID)

	msg := update.Message
	if msg == nil {
		kind := "other"
		if update.EditedMessage != nil {
			kind = "edited"
		}
		metrics.IncUpdate(kind)
		return nil
	}
	if msg.Chat == nil {
		metrics.IncUpdate("other")
		return nil
	}
	chatID := msg.Chat.ID
	ctx = logging.WithChatID(ctx, chatID)
	lang := r.langOf(msg)

	if msg.IsCommand() {
		metrics.IncUpdate("command")
		return r.handleCommand(ctx, msg, lang)
	}
	if strings.TrimSpace(msg.Text) == "" {
		metrics.IncUpdate("non_text")
		return nil
	}

	metrics.IncUpdate("text")
	logging.With(ctx, r.log).Debug().Str("text", logging.Redact(msg.Text, r.dev)).Msg("text message")
	notice, err := r.facade.HandleChatMessage(ctx, chatID, lang, msg.Text)
	if notice != "" {
		if serr := r.sender.SendMessage(ctx, chatID, notice); serr != nil {
			logging.With(ctx, r.log).Warn().Err(serr).Msg("notice not delivered")
		}
	}
	switch {
	case err == nil, errors.Is(err, domain.ErrRateLimited), errors.Is(err, domain.ErrChatBusy):
		return nil
	case errors.Is(err, context.Canceled):
		logging.With(ctx, r.log).Info().Msg("request canceled")
		return nil
	}
	return err
}

func (r *UpdateRouter) langOf(msg *tgbotapi.Message) string {
	if msg.From != nil && msg.From.LanguageCode != "" {
		return msg.From.LanguageCode
	}
	return r.defaultLang
}
