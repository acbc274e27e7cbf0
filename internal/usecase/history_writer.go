// File: internal/usecase/history_writer.go
package usecase

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"telegram-ai-relay/internal/domain"
	"telegram-ai-relay/internal/domain/model"
	"telegram-ai-relay/internal/domain/ports/repository"
	"telegram-ai-relay/internal/infra/logging"
	"telegram-ai-relay/internal/infra/metrics"
)

// HistoryWriter commits a finished exchange to the history store.
type HistoryWriter struct {
	history repository.HistoryRepository
	now     func() time.Time
	log     *zerolog.Logger
}

func NewHistoryWriter(history repository.HistoryRepository, logger *zerolog.Logger) *HistoryWriter {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	l := logger.With().Str("component", "history_writer").Logger()
	return &HistoryWriter{history: history, now: time.Now, log: &l}
}

// Commit appends the user input and the answer as one batch, in that order.
// A blank answer writes nothing and returns domain.ErrEmptyAnswer. Store
// failures are logged and returned wrapped in domain.ErrPersistenceFailure.
func (w *HistoryWriter) Commit(ctx context.Context, chatID int64, input, answer string, receivedAt time.Time) error {
	if strings.TrimSpace(answer) == "" {
		metrics.IncHistoryWrite("empty")
		return domain.ErrEmptyAnswer
	}

	if receivedAt.IsZero() {
		receivedAt = w.now()
	}
	answeredAt := w.now()
	// Postgres keeps microseconds; the answer must sort after the input.
	if !answeredAt.Truncate(time.Microsecond).After(receivedAt.Truncate(time.Microsecond)) {
		answeredAt = receivedAt.Truncate(time.Microsecond).Add(time.Microsecond)
	}

	user := model.NewTurn(chatID, model.RoleUser, input, receivedAt)
	user.ID = ulid.Make().String()
	assistant := model.NewTurn(chatID, model.RoleAssistant, answer, answeredAt)
	assistant.ID = ulid.Make().String()

	if err := w.history.AppendBatch(ctx, chatID, []model.Turn{user, assistant}); err != nil {
		logging.With(ctx, w.log).Error().Err(err).Msg("exchange not persisted")
		metrics.IncHistoryWrite("error")
		metrics.IncHistoryStoreError("append")
		return fmt.Errorf("%w: %w", domain.ErrPersistenceFailure, err)
	}
	metrics.IncHistoryWrite("ok")
	return nil
}
