package api

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"telegram-ai-relay/internal/domain"
	"telegram-ai-relay/internal/infra/logging"
)

const maxTurnsLimit = 500

type turnDTO struct {
	ID        string    `json:"id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// handleLogin exchanges the static operator key for a short-lived JWT.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	key := r.Header.Get("X-Admin-Key")
	want := s.cfg.Admin.APIKey
	if want == "" || subtle.ConstantTimeCompare([]byte(key), []byte(want)) != 1 {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	token, exp, err := s.auth.Mint()
	if err != nil {
		logging.With(r.Context(), s.log).Error().Err(err).Msg("token mint failed")
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"token": token, "expires_at": exp.UTC()})
}

func (s *Server) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, err := s.auth.ParseFromRequest(r); err != nil {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleListTurns(w http.ResponseWriter, r *http.Request) {
	chatID, ok := chatIDParam(w, r)
	if !ok {
		return
	}
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = min(n, maxTurnsLimit)
	}

	turns, err := s.turns.RecentTurns(r.Context(), chatID, limit)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	items := make([]turnDTO, 0, len(turns))
	for _, t := range turns {
		items = append(items, turnDTO{ID: t.ID, Role: string(t.Role), Content: t.Content, CreatedAt: t.CreatedAt.UTC()})
	}
	writeJSON(w, http.StatusOK, map[string]any{"chat_id": chatID, "items": items})
}

func (s *Server) handleClearTurns(w http.ResponseWriter, r *http.Request) {
	chatID, ok := chatIDParam(w, r)
	if !ok {
		return
	}
	if err := s.turns.ResetHistory(r.Context(), chatID); err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func chatIDParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "chatID"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid chat id")
		return 0, false
	}
	return id, true
}

func (s *Server) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, domain.ErrInvalidArgument):
		writeError(w, http.StatusBadRequest, "invalid argument")
	default:
		logging.With(r.Context(), s.log).Error().Err(err).Msg("admin request failed")
		writeError(w, http.StatusServiceUnavailable, "store unavailable")
	}
}
