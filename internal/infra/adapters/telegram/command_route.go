package telegram

import (
	"context"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"telegram-ai-relay/internal/infra/metrics"
)

type commandHandler func(ctx context.Context, message *tgbotapi.Message, lang string) error

// commandRoutes defines all available bot commands and their handlers.
func (r *UpdateRouter) commandRoutes() map[string]commandHandler {
	return map[string]commandHandler{
		"start": r.handleStartCommand,
		"help":  r.handleHelpCommand,
		"reset": r.handleResetCommand,
	}
}

func (r *UpdateRouter) handleCommand(ctx context.Context, message *tgbotapi.Message, lang string) error {
	cmd := message.Command()
	handler, ok := r.commandRoutes()[cmd]
	if !ok {
		metrics.IncTelegramCommand("unknown")
		return r.sender.SendMessage(ctx, message.Chat.ID, r.facade.HandleUnsupported(lang))
	}
	metrics.IncTelegramCommand(cmd)
	return handler(ctx, message, lang)
}

func (r *UpdateRouter) handleStartCommand(ctx context.Context, message *tgbotapi.Message, lang string) error {
	return r.sender.SendMessage(ctx, message.Chat.ID, r.facade.HandleStart(lang))
}

func (r *UpdateRouter) handleHelpCommand(ctx context.Context, message *tgbotapi.Message, lang string) error {
	return r.sender.SendMessage(ctx, message.Chat.ID, r.facade.HandleHelp(lang))
}

// handleResetCommand clears the chat's stored history.
func (r *UpdateRouter) handleResetCommand(ctx context.Context, message *tgbotapi.Message, lang string) error {
	return r.sender.SendMessage(ctx, message.Chat.ID, r.facade.HandleReset(ctx, message.Chat.ID, lang))
}
