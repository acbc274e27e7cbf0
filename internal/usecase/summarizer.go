// File: internal/usecase/summarizer.go
package usecase

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"telegram-ai-relay/internal/domain/model"
	"telegram-ai-relay/internal/domain/ports/adapter"
	"telegram-ai-relay/internal/domain/ports/repository"
	"telegram-ai-relay/internal/infra/logging"
	"telegram-ai-relay/internal/infra/metrics"
)

// SummarizerConfig controls the synopsis request.
type SummarizerConfig struct {
	Model       string
	MaxTokens   int
	Timeout     time.Duration
	Instruction string
	// Unavailable is returned instead of an error when no synopsis could be produced.
	Unavailable string
}

// TurnSummarizer compresses an ordered batch of turns into one synopsis.
type TurnSummarizer interface {
	Summarize(ctx context.Context, turns []model.Turn) string
}

var _ TurnSummarizer = (*Summarizer)(nil)

type Summarizer struct {
	ai    adapter.AIServiceAdapter
	cache repository.SummaryCache
	cfg   SummarizerConfig
	log   *zerolog.Logger
}

// NewSummarizer builds a summarizer. cache may be nil.
func NewSummarizer(ai adapter.AIServiceAdapter, cache repository.SummaryCache, cfg SummarizerConfig, logger *zerolog.Logger) *Summarizer {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	l := logger.With().Str("component", "summarizer").Logger()
	return &Summarizer{ai: ai, cache: cache, cfg: cfg, log: &l}
}

// Transcript renders turns as "role: content" lines, oldest first.
func Transcript(turns []model.Turn) string {
	var sb strings.Builder
	for i, t := range turns {
		if i > 0 {
			sb.WriteByte('\n')
		}
		sb.WriteString(string(t.Role))
		sb.WriteString(": ")
		sb.WriteString(t.Content)
	}
	return sb.String()
}

// Summarize never fails: a failed or empty completion yields cfg.Unavailable.
// An empty input yields an empty synopsis.
func (s *Summarizer) Summarize(ctx context.Context, turns []model.Turn) string {
	if len(turns) == 0 {
		return ""
	}
	log := logging.With(ctx, s.log)
	defer logging.TraceDuration(log, "Summarizer.Summarize")()

	transcript := Transcript(turns)
	if s.cache != nil {
		cached, ok, err := s.cache.GetSummary(ctx, s.cfg.Model, transcript)
		if err != nil {
			log.Warn().Err(err).Msg("summary cache lookup failed")
		} else if ok {
			metrics.IncSummary("cached")
			return cached
		}
	}

	cctx := ctx
	if s.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		cctx, cancel = context.WithTimeout(ctx, s.cfg.Timeout)
		defer cancel()
	}

	prompt := s.cfg.Instruction + "\n\n" + transcript
	text, _, err := s.ai.Chat(cctx, adapter.ChatRequest{
		Model:     s.cfg.Model,
		Messages:  []adapter.Message{{Role: string(model.RoleSystem), Content: prompt}},
		MaxTokens: s.cfg.MaxTokens,
	})
	if err != nil {
		log.Warn().Err(err).Int("turns", len(turns)).Msg("summary request failed")
		metrics.IncSummary("unavailable")
		return s.cfg.Unavailable
	}
	if strings.TrimSpace(text) == "" {
		log.Warn().Int("turns", len(turns)).Msg("summary request returned no text")
		metrics.IncSummary("unavailable")
		return s.cfg.Unavailable
	}

	if s.cache != nil {
		if err := s.cache.SetSummary(ctx, s.cfg.Model, transcript, text); err != nil {
			log.Warn().Err(err).Msg("summary cache store failed")
		}
	}
	metrics.IncSummary("ok")
	return text
}
