package ai

import (
	"context"
	"strings"
	"time"

	"telegram-ai-relay/internal/domain/ports/adapter"
)

var _ adapter.AIServiceAdapter = (*EchoAIAdapter)(nil)

// EchoAIAdapter answers with the latest user message for local/dev runs.
// Streams go out word by word so the renderer path gets exercised.
type EchoAIAdapter struct {
	delay time.Duration
}

func NewEchoAIAdapter(delay time.Duration) *EchoAIAdapter {
	return &EchoAIAdapter{delay: delay}
}

func (a *EchoAIAdapter) Name() string { return "echo" }

func (a *EchoAIAdapter) reply(req adapter.ChatRequest) string {
	for i := len(req.Messages) - 1; i >= 0; i-- {
		m := req.Messages[i]
		if m.Role == "user" || (i == 0 && m.Role == "system") {
			return "echo: " + m.Content
		}
	}
	return "echo"
}

func (a *EchoAIAdapter) Chat(ctx context.Context, req adapter.ChatRequest) (string, adapter.Usage, error) {
	select {
	case <-time.After(a.delay):
	case <-ctx.Done():
		return "", adapter.Usage{}, ctx.Err()
	}
	out := a.reply(req)
	return out, adapter.Usage{CompletionTokens: len(strings.Fields(out))}, nil
}

func (a *EchoAIAdapter) ChatStream(ctx context.Context, req adapter.ChatRequest) (<-chan adapter.StreamChunk, error) {
	words := strings.SplitAfter(a.reply(req), " ")
	out := make(chan adapter.StreamChunk, 4)
	go func() {
		defer close(out)
		for _, w := range words {
			if a.delay > 0 {
				select {
				case <-time.After(a.delay):
				case <-ctx.Done():
					return
				}
			}
			if !emit(ctx, out, adapter.StreamChunk{Delta: w}) {
				return
			}
		}
		emit(ctx, out, adapter.StreamChunk{Done: true})
	}()
	return out, nil
}
