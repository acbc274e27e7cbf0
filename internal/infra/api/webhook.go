package api

import (
	"crypto/subtle"
	"encoding/json"
	"io"
	"net/http"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"telegram-ai-relay/internal/infra/logging"
	"telegram-ai-relay/internal/infra/metrics"
)

const (
	secretHeader   = "X-Telegram-Bot-Api-Secret-Token"
	maxUpdateBytes = 1 << 20
)

// handleWebhook acknowledges an update as soon as it is queued. The reply is
// streamed into the chat by the worker that picks it up.
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	log := logging.With(r.Context(), s.log)

	if secret := s.cfg.Bot.WebhookSecret; secret != "" {
		got := r.Header.Get(secretHeader)
		if subtle.ConstantTimeCompare([]byte(got), []byte(secret)) != 1 {
			log.Warn().Msg("webhook secret mismatch")
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
	}

	var update tgbotapi.Update
	if err := json.NewDecoder(io.LimitReader(r.Body, maxUpdateBytes)).Decode(&update); err != nil {
		log.Warn().Err(err).Msg("bad webhook payload")
		writeError(w, http.StatusBadRequest, "invalid update")
		return
	}

	if s.dedup != nil {
		first, err := s.dedup.FirstSeen(r.Context(), update.UpdateID)
		switch {
		case err != nil:
			log.Warn().Err(err).Int("update_id", update.UpdateID).Msg("dedup unavailable, processing update")
		case !first:
			metrics.IncUpdate("duplicate")
			writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
			return
		}
	}

	if err := s.dispatcher.Dispatch(update); err != nil {
		log.Warn().Err(err).Int("update_id", update.UpdateID).Msg("update not queued")
		if s.dedup != nil {
			if ferr := s.dedup.Forget(r.Context(), update.UpdateID); ferr != nil {
				log.Warn().Err(ferr).Int("update_id", update.UpdateID).Msg("dedup release failed")
			}
		}
		writeError(w, http.StatusServiceUnavailable, "busy")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
