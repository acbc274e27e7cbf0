package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"telegram-ai-relay/internal/config"
	"telegram-ai-relay/internal/domain/model"
	"telegram-ai-relay/internal/infra/metrics"
)

// Dispatcher queues one update for processing. It must not block; a
// saturated queue is reported as an error so Telegram retries later.
type Dispatcher interface {
	Dispatch(update tgbotapi.Update) error
}

// DispatchFunc adapts a function to Dispatcher.
type DispatchFunc func(update tgbotapi.Update) error

func (f DispatchFunc) Dispatch(update tgbotapi.Update) error { return f(update) }

// Deduper reports whether an update id is seen for the first time. Forget
// releases an id whose update could not be queued so a redelivery is processed.
type Deduper interface {
	FirstSeen(ctx context.Context, updateID int) (bool, error)
	Forget(ctx context.Context, updateID int) error
}

// TurnsAdmin is the history surface exposed to operators.
type TurnsAdmin interface {
	RecentTurns(ctx context.Context, chatID int64, limit int) ([]model.Turn, error)
	ResetHistory(ctx context.Context, chatID int64) error
}

// Server serves the webhook, status endpoints and the operator API.
type Server struct {
	cfg        *config.Config
	dispatcher Dispatcher
	dedup      Deduper
	turns      TurnsAdmin
	auth       *AuthManager
	started    time.Time
	log        *zerolog.Logger

	server *http.Server
}

// NewServer wires the HTTP layer. dedup and turns may be nil; the operator
// API is only mounted when turns is set and admin.jwt_secret is configured.
func NewServer(cfg *config.Config, dispatcher Dispatcher, dedup Deduper, turns TurnsAdmin, logger *zerolog.Logger) *Server {
	l := logger.With().Str("component", "http").Logger()
	s := &Server{
		cfg:        cfg,
		dispatcher: dispatcher,
		dedup:      dedup,
		turns:      turns,
		started:    time.Now(),
		log:        &l,
	}
	if cfg.Admin.JWTSecret != "" && turns != nil {
		s.auth = NewAuthManager(cfg.Admin.JWTSecret, cfg.Admin.TokenTTL)
	}
	return s
}

// Router builds the chi router with the middleware chain.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(
		Recover(s.log),
		TraceID(s.log),
		RequestLog(s.log),
		Timeout(30*time.Second),
	)

	r.Get("/", s.handleIndex)
	r.Get("/health", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())
	r.Post(s.cfg.Bot.WebhookPath, s.handleWebhook)

	if s.auth != nil {
		r.Route("/admin", func(ar chi.Router) {
			ar.Post("/login", s.handleLogin)
			ar.Group(func(pr chi.Router) {
				pr.Use(s.requireAdmin)
				pr.Get("/chats/{chatID}/turns", s.handleListTurns)
				pr.Delete("/chats/{chatID}/turns", s.handleClearTurns)
			})
		})
	}
	return r
}

// Start blocks serving HTTP until Shutdown is called.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.cfg.HTTP.Port),
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.log.Info().Int("port", s.cfg.HTTP.Port).Msg("HTTP server listening")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *Server) handleIndex(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"message": "Telegram bot webhook is running."})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	now := time.Now()
	writeJSON(w, http.StatusOK, map[string]any{
		"status":         "healthy",
		"timestamp":      now.UTC().Format(time.RFC3339),
		"uptime_seconds": int64(now.Sub(s.started).Seconds()),
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"status": "error", "error": msg})
}
