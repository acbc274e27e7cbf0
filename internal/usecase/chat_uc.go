// File: internal/usecase/chat_uc.go
package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"telegram-ai-relay/internal/domain"
	"telegram-ai-relay/internal/domain/model"
	"telegram-ai-relay/internal/domain/ports/adapter"
	"telegram-ai-relay/internal/domain/ports/repository"
	"telegram-ai-relay/internal/infra/logging"
	"telegram-ai-relay/internal/infra/metrics"
)

// Compile-time check
var _ ChatUseCase = (*chatUC)(nil)

// ChatUseCase relays one inbound message to the completion service and
// streams the answer back into the chat.
type ChatUseCase interface {
	HandleMessage(ctx context.Context, msg IncomingMessage) (*ChatOutcome, error)
	ResetHistory(ctx context.Context, chatID int64) error
	RecentTurns(ctx context.Context, chatID int64, limit int) ([]model.Turn, error)
}

// Notices are the localized texts shown when no answer is streamed.
type Notices struct {
	Apology  string
	NoAnswer string
}

type IncomingMessage struct {
	ChatID  int64
	Text    string
	Notices Notices
}

// ChatOutcome reports what the user ended up seeing.
type ChatOutcome struct {
	Answer      string
	Summarized  bool
	NoAnswer    bool
	Apologized  bool
	Interrupted bool
	Persisted   bool
}

// TokenCounter estimates the prompt size of a message list.
type TokenCounter interface {
	CountMessages(model string, messages []adapter.Message) int
}

type ChatConfig struct {
	Model        string
	MaxTokens    int
	WriteTimeout time.Duration
}

type chatUC struct {
	assembler *ContextAssembler
	renderer  *StreamRenderer
	writer    *HistoryWriter
	history   repository.HistoryRepository
	ai        adapter.AIServiceAdapter
	display   adapter.Displayer
	tokens    TokenCounter
	cfg       ChatConfig
	log       *zerolog.Logger
}

// NewChatUseCase wires the request pipeline. tokens may be nil.
func NewChatUseCase(
	assembler *ContextAssembler,
	renderer *StreamRenderer,
	writer *HistoryWriter,
	history repository.HistoryRepository,
	ai adapter.AIServiceAdapter,
	display adapter.Displayer,
	tokens TokenCounter,
	cfg ChatConfig,
	logger *zerolog.Logger,
) *chatUC {
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 5 * time.Second
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	l := logger.With().Str("component", "chat_uc").Logger()
	return &chatUC{
		assembler: assembler,
		renderer:  renderer,
		writer:    writer,
		history:   history,
		ai:        ai,
		display:   display,
		tokens:    tokens,
		cfg:       cfg,
		log:       &l,
	}
}

// HandleMessage runs assemble, stream, render and persist for one message.
// Only a store outage and a failed main completion are reported to the user,
// each with exactly one apology.
func (c *chatUC) HandleMessage(ctx context.Context, msg IncomingMessage) (*ChatOutcome, error) {
	if strings.TrimSpace(msg.Text) == "" {
		return nil, domain.ErrInvalidArgument
	}
	ctx = logging.WithChatID(ctx, msg.ChatID)
	log := logging.With(ctx, c.log)
	defer logging.TraceDuration(log, "ChatUseCase.HandleMessage")()

	out := &ChatOutcome{}

	window, err := c.assembler.Assemble(ctx, msg.ChatID, msg.Text)
	if err != nil {
		log.Error().Err(err).Msg("context assembly failed")
		out.Apologized = c.notify(ctx, msg.ChatID, nil, msg.Notices.Apology)
		return out, err
	}
	out.Summarized = window.Summarized()

	messages := window.Messages()
	if c.tokens != nil {
		n := c.tokens.CountMessages(c.cfg.Model, messages)
		metrics.ObservePromptTokens(c.cfg.Model, n)
		log.Debug().Int("prompt_tokens", n).Int("turns", window.Len()).Msg("context assembled")
	}

	handle, err := c.display.SendPlaceholder(ctx, msg.ChatID)
	if err != nil {
		log.Warn().Err(err).Msg("placeholder not sent, answer will arrive as one message")
		handle = nil
	}

	stream, err := c.ai.ChatStream(ctx, adapter.ChatRequest{
		Model:     c.cfg.Model,
		Messages:  messages,
		MaxTokens: c.cfg.MaxTokens,
	})
	if err != nil {
		err = fmt.Errorf("%w: %w", domain.ErrCompletionFailure, err)
		log.Error().Err(err).Msg("completion stream not opened")
		out.Apologized = c.notify(ctx, msg.ChatID, handle, msg.Notices.Apology)
		return out, err
	}

	res := c.renderer.Render(ctx, RenderTarget{ChatID: msg.ChatID, Handle: handle}, stream)
	out.Interrupted = res.Interrupted
	if res.Err != nil {
		log.Error().Err(res.Err).Int("partial_chars", len(res.Text)).Msg("completion failed mid-stream")
		out.Apologized = c.notify(ctx, msg.ChatID, handle, msg.Notices.Apology)
		return out, res.Err
	}

	wctx := ctx
	if res.Interrupted {
		var cancel context.CancelFunc
		wctx, cancel = context.WithTimeout(context.WithoutCancel(ctx), c.cfg.WriteTimeout)
		defer cancel()
	}
	err = c.writer.Commit(wctx, msg.ChatID, msg.Text, res.Text, window.Input().CreatedAt)
	switch {
	case errors.Is(err, domain.ErrEmptyAnswer):
		out.NoAnswer = true
		if !res.Interrupted {
			c.notify(ctx, msg.ChatID, handle, msg.Notices.NoAnswer)
		}
		return out, nil
	case err != nil:
		// already logged by the writer; the user has the answer
	default:
		out.Persisted = true
	}

	out.Answer = res.Text
	return out, nil
}

// notify delivers one notice, replacing the placeholder when there is one.
func (c *chatUC) notify(ctx context.Context, chatID int64, h *adapter.MessageHandle, text string) bool {
	if text == "" {
		return false
	}
	nctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.cfg.WriteTimeout)
	defer cancel()

	if h != nil {
		err := c.display.EditDisplayed(nctx, h, text, adapter.FormatPlain)
		switch adapter.ReasonOf(err) {
		case adapter.ReasonNone, adapter.ReasonNotModified:
			return true
		}
		logging.With(ctx, c.log).Warn().Err(err).Msg("placeholder edit failed, sending notice instead")
	}
	if err := c.display.SendPlain(nctx, chatID, text); err != nil {
		logging.With(ctx, c.log).Error().Err(err).Msg("notice not delivered")
		return false
	}
	return true
}

// ResetHistory forgets every stored turn of the chat.
func (c *chatUC) ResetHistory(ctx context.Context, chatID int64) error {
	if err := c.history.Clear(ctx, chatID); err != nil {
		metrics.IncHistoryStoreError("clear")
		return fmt.Errorf("%w: %w", domain.ErrStoreUnavailable, err)
	}
	return nil
}

// RecentTurns returns up to limit stored turns, oldest first.
func (c *chatUC) RecentTurns(ctx context.Context, chatID int64, limit int) ([]model.Turn, error) {
	if limit <= 0 {
		limit = c.assembler.FetchLimit()
	}
	turns, err := c.history.FetchRecent(ctx, chatID, limit)
	if err != nil {
		metrics.IncHistoryStoreError("fetch")
		return nil, fmt.Errorf("%w: %w", domain.ErrStoreUnavailable, err)
	}
	return turns, nil
}
