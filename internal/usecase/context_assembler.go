// File: internal/usecase/context_assembler.go
package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"telegram-ai-relay/internal/domain"
	"telegram-ai-relay/internal/domain/model"
	"telegram-ai-relay/internal/domain/ports/repository"
	"telegram-ai-relay/internal/infra/logging"
	"telegram-ai-relay/internal/infra/metrics"
)

// AssemblerConfig sizes the rolling window.
//
// MaxRecent bounds the turns sent verbatim, new input included. Horizon is
// how many turns older than that are read so they can be folded into the
// summary; 0 reads exactly MaxRecent.
type AssemblerConfig struct {
	MaxRecent     int
	Horizon       int
	SummaryPrefix string
}

type ContextAssembler struct {
	history    repository.HistoryRepository
	summarizer TurnSummarizer
	cfg        AssemblerConfig
	now        func() time.Time
	log        *zerolog.Logger
}

func NewContextAssembler(history repository.HistoryRepository, summarizer TurnSummarizer, cfg AssemblerConfig, logger *zerolog.Logger) *ContextAssembler {
	if cfg.MaxRecent <= 0 {
		cfg.MaxRecent = 10
	}
	if cfg.Horizon < 0 {
		cfg.Horizon = 0
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	l := logger.With().Str("component", "context_assembler").Logger()
	return &ContextAssembler{
		history:    history,
		summarizer: summarizer,
		cfg:        cfg,
		now:        time.Now,
		log:        &l,
	}
}

// FetchLimit is the number of stored turns read per request.
func (a *ContextAssembler) FetchLimit() int { return a.cfg.MaxRecent + a.cfg.Horizon }

// Assemble builds the window for a new input. The returned window owns its
// slices; nothing else holds a reference to them.
func (a *ContextAssembler) Assemble(ctx context.Context, chatID int64, text string) (*model.ContextWindow, error) {
	log := logging.With(ctx, a.log)

	limit := a.FetchLimit()
	stored, err := a.history.FetchRecent(ctx, chatID, limit)
	if err != nil {
		metrics.IncHistoryStoreError("fetch")
		return nil, fmt.Errorf("%w: %w", domain.ErrStoreUnavailable, err)
	}
	if len(stored) > limit {
		stored = stored[len(stored)-limit:]
	}

	all := make([]model.Turn, 0, len(stored)+1)
	all = append(all, stored...)
	all = append(all, model.NewTurn(chatID, model.RoleUser, text, a.now()))

	window := &model.ContextWindow{}
	overflow := len(all) - a.cfg.MaxRecent
	if overflow <= 0 {
		window.Turns = all
		metrics.IncContextWindow(false)
		return window, nil
	}

	older := make([]model.Turn, overflow)
	copy(older, all[:overflow])
	synopsis := a.summarizer.Summarize(ctx, older)

	retained := make([]model.Turn, len(all)-overflow)
	copy(retained, all[overflow:])

	window.Summary = &model.Turn{
		ChatID:    chatID,
		Role:      model.RoleSystem,
		Content:   a.cfg.SummaryPrefix + synopsis,
		CreatedAt: older[len(older)-1].CreatedAt,
	}
	window.Turns = retained

	log.Debug().
		Int("overflow", overflow).
		Int("retained", len(retained)).
		Msg("older turns folded into summary")
	metrics.IncContextWindow(true)
	return window, nil
}
