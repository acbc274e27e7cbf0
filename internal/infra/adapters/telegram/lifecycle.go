package telegram

import (
	"context"
	"errors"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// StartPolling removes any webhook, then hands every update to handle until
// ctx is canceled.
func (r *RealTelegramBotAdapter) StartPolling(ctx context.Context, handle func(tgbotapi.Update)) error {
	if r.bot == nil {
		return errors.New("polling requires an authorized bot")
	}
	if err := r.DeleteWebhook(ctx); err != nil {
		r.log.Warn().Err(err).Msg("could not delete webhook before polling")
	}

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := r.bot.GetUpdatesChan(u)
	r.log.Info().Msg("polling started")

	for {
		select {
		case <-ctx.Done():
			r.bot.StopReceivingUpdates()
			r.log.Info().Msg("polling stopped")
			return nil
		case up, ok := <-updates:
			if !ok {
				return nil
			}
			handle(up)
		}
	}
}

// SetWebhook points Telegram at bot.webhook_url, with the secret token when
// one is configured.
func (r *RealTelegramBotAdapter) SetWebhook(ctx context.Context) error {
	if r.bot == nil {
		return errors.New("webhook requires an authorized bot")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	params := tgbotapi.Params{"url": r.cfg.WebhookURL}
	params.AddNonEmpty("secret_token", r.cfg.WebhookSecret)
	if _, err := r.bot.MakeRequest("setWebhook", params); err != nil {
		return fmt.Errorf("set webhook: %w", err)
	}
	r.log.Info().Str("url", r.cfg.WebhookURL).Msg("webhook set")
	return nil
}

func (r *RealTelegramBotAdapter) DeleteWebhook(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := r.api.Request(tgbotapi.DeleteWebhookConfig{}); err != nil {
		return fmt.Errorf("delete webhook: %w", err)
	}
	r.log.Info().Msg("webhook deleted")
	return nil
}
