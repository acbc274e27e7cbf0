package telegram

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"telegram-ai-relay/internal/config"
	"telegram-ai-relay/internal/domain"
	"telegram-ai-relay/internal/domain/ports/adapter"
	"telegram-ai-relay/internal/infra/markup"
)

var _ adapter.TelegramBotAdapter = (*RealTelegramBotAdapter)(nil)

const placeholderText = "…"

// botAPI is the part of *tgbotapi.BotAPI the adapter draws with.
type botAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

// RealTelegramBotAdapter implements adapter.TelegramBotAdapter with tgbotapi.
type RealTelegramBotAdapter struct {
	api      botAPI
	bot      *tgbotapi.BotAPI
	cfg      *config.BotConfig
	maxChars int
	log      *zerolog.Logger
}

func NewRealTelegramBotAdapter(cfg *config.BotConfig, maxChars int, logger *zerolog.Logger) (*RealTelegramBotAdapter, error) {
	if cfg == nil {
		return nil, errors.New("bot config is nil")
	}
	bot, err := tgbotapi.NewBotAPI(cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("telegram login: %w", err)
	}
	a := newAdapter(bot, cfg, maxChars, logger)
	a.bot = bot
	a.log.Info().Str("bot", bot.Self.UserName).Msg("telegram bot authorized")
	return a, nil
}

func newAdapter(api botAPI, cfg *config.BotConfig, maxChars int, logger *zerolog.Logger) *RealTelegramBotAdapter {
	if maxChars <= 0 {
		maxChars = 4096
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	l := logger.With().Str("component", "telegram").Logger()
	return &RealTelegramBotAdapter{api: api, cfg: cfg, maxChars: maxChars, log: &l}
}

// SendPlaceholder posts the message later edits will grow into.
func (r *RealTelegramBotAdapter) SendPlaceholder(ctx context.Context, chatID int64) (*adapter.MessageHandle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	msg, err := r.api.Send(tgbotapi.NewMessage(chatID, placeholderText))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrTransportFailure, err)
	}
	return &adapter.MessageHandle{ChatID: chatID, MessageID: msg.MessageID}, nil
}

// EditDisplayed replaces the placeholder text. Rejections are reported as
// *adapter.EditRejection so the renderer can fall back to the next tier.
func (r *RealTelegramBotAdapter) EditDisplayed(ctx context.Context, h *adapter.MessageHandle, text string, format adapter.Format) error {
	if h == nil {
		return &adapter.EditRejection{Reason: adapter.ReasonTransport, Format: format, Err: errors.New("nil message handle")}
	}
	if err := ctx.Err(); err != nil {
		return &adapter.EditRejection{Reason: adapter.ReasonTransport, Format: format, Err: err}
	}

	body, mode := render(text, format)
	edit := tgbotapi.NewEditMessageText(h.ChatID, h.MessageID, r.truncate(body))
	edit.ParseMode = mode
	edit.DisableWebPagePreview = true

	if _, err := r.api.Request(edit); err != nil {
		return &adapter.EditRejection{Reason: classify(err), Format: format, Err: err}
	}
	return nil
}

// SendPlain sends text as a new message without any parse mode.
func (r *RealTelegramBotAdapter) SendPlain(ctx context.Context, chatID int64, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := tgbotapi.NewMessage(chatID, r.truncate(text))
	msg.DisableWebPagePreview = true
	if _, err := r.api.Send(msg); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrTransportFailure, err)
	}
	return nil
}

func (r *RealTelegramBotAdapter) SendMessage(ctx context.Context, chatID int64, text string) error {
	return r.SendPlain(ctx, chatID, text)
}

func (r *RealTelegramBotAdapter) SendTyping(ctx context.Context, chatID int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := r.api.Request(tgbotapi.NewChatAction(chatID, tgbotapi.ChatTyping))
	return err
}

// render maps a display tier to the text and parse mode Telegram expects.
func render(text string, format adapter.Format) (string, string) {
	switch format {
	case adapter.FormatHTML:
		return markup.ToTelegramHTML(text), tgbotapi.ModeHTML
	case adapter.FormatMarkdown:
		return text, tgbotapi.ModeMarkdown
	case adapter.FormatMarkdownV2:
		return text, tgbotapi.ModeMarkdownV2
	default:
		return text, ""
	}
}

// classify sorts Bot API errors into the rejection reasons the renderer acts on.
func classify(err error) adapter.RejectReason {
	if err == nil {
		return adapter.ReasonNone
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "message is not modified"):
		return adapter.ReasonNotModified
	case strings.Contains(msg, "can't parse entities"),
		strings.Contains(msg, "unsupported start tag"),
		strings.Contains(msg, "can't find end"),
		strings.Contains(msg, "unclosed start tag"),
		strings.Contains(msg, "message text is empty"):
		return adapter.ReasonMalformed
	}
	return adapter.ReasonTransport
}

// truncate keeps text within Telegram's message limit, cutting on a rune boundary.
func (r *RealTelegramBotAdapter) truncate(text string) string {
	if utf8.RuneCountInString(text) <= r.maxChars {
		return text
	}
	runes := []rune(text)
	return string(runes[:r.maxChars-1]) + "…"
}
