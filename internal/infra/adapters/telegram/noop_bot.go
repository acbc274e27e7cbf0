package telegram

import (
	"context"
	"sync/atomic"

	"github.com/rs/zerolog"

	"telegram-ai-relay/internal/domain/ports/adapter"
)

var _ adapter.TelegramBotAdapter = (*NoopBotAdapter)(nil)

// NoopBotAdapter implements adapter.TelegramBotAdapter for local/dev runs.
// It logs what would be displayed instead of calling Telegram.
type NoopBotAdapter struct {
	nextID atomic.Int64
	log    *zerolog.Logger
}

func NewNoopBotAdapter(logger *zerolog.Logger) *NoopBotAdapter {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	l := logger.With().Str("component", "noop_telegram").Logger()
	return &NoopBotAdapter{log: &l}
}

func (b *NoopBotAdapter) SendPlaceholder(ctx context.Context, chatID int64) (*adapter.MessageHandle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	id := int(b.nextID.Add(1))
	b.log.Info().Int64("chat_id", chatID).Int("message_id", id).Msg("placeholder")
	return &adapter.MessageHandle{ChatID: chatID, MessageID: id}, nil
}

func (b *NoopBotAdapter) EditDisplayed(ctx context.Context, h *adapter.MessageHandle, text string, format adapter.Format) error {
	if err := ctx.Err(); err != nil {
		return &adapter.EditRejection{Reason: adapter.ReasonTransport, Format: format, Err: err}
	}
	b.log.Info().Int64("chat_id", h.ChatID).Int("message_id", h.MessageID).Str("format", string(format)).Msg(text)
	return nil
}

func (b *NoopBotAdapter) SendPlain(ctx context.Context, chatID int64, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.log.Info().Int64("chat_id", chatID).Msg(text)
	return nil
}

func (b *NoopBotAdapter) SendMessage(ctx context.Context, chatID int64, text string) error {
	return b.SendPlain(ctx, chatID, text)
}

func (b *NoopBotAdapter) SendTyping(ctx context.Context, chatID int64) error {
	b.log.Debug().Int64("chat_id", chatID).Msg("typing")
	return nil
}
