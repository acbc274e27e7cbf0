package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/liushuangls/go-anthropic/v2"

	"telegram-ai-relay/internal/domain/ports/adapter"
)

var _ adapter.AIServiceAdapter = (*AnthropicAdapter)(nil)

const anthropicDefaultMaxTokens = 1024

// AnthropicAdapter talks to the Messages API. System turns travel in the
// request's system blocks.
type AnthropicAdapter struct {
	client       *anthropic.Client
	defaultModel string
}

func NewAnthropicAdapter(apiKey, defaultModel string) (*AnthropicAdapter, error) {
	if apiKey == "" {
		return nil, errors.New("anthropic: empty api key")
	}
	if defaultModel == "" {
		defaultModel = string(anthropic.ModelClaude3Haiku20240307)
	}
	return &AnthropicAdapter{client: anthropic.NewClient(apiKey), defaultModel: defaultModel}, nil
}

func (a *AnthropicAdapter) Name() string { return "anthropic" }

func (a *AnthropicAdapter) request(req adapter.ChatRequest) (anthropic.MessagesRequest, error) {
	if len(req.Messages) == 0 {
		return anthropic.MessagesRequest{}, errors.New("anthropic: no messages")
	}
	var system []anthropic.MessageSystemPart
	msgs := make([]anthropic.Message, 0, len(req.Messages))
	for _, m := range req.Messages {
		switch strings.ToLower(m.Role) {
		case "system":
			system = append(system, anthropic.MessageSystemPart{Type: "text", Text: m.Content})
		case "assistant":
			msgs = append(msgs, anthropic.Message{
				Role:    anthropic.RoleAssistant,
				Content: []anthropic.MessageContent{anthropic.NewTextMessageContent(m.Content)},
			})
		default:
			msgs = append(msgs, anthropic.Message{
				Role:    anthropic.RoleUser,
				Content: []anthropic.MessageContent{anthropic.NewTextMessageContent(m.Content)},
			})
		}
	}
	if len(msgs) == 0 {
		// The Messages API wants at least one user turn.
		msgs = append(msgs, anthropic.Message{
			Role:    anthropic.RoleUser,
			Content: []anthropic.MessageContent{anthropic.NewTextMessageContent("Go ahead.")},
		})
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = anthropicDefaultMaxTokens
	}
	out := anthropic.MessagesRequest{
		Model:     anthropic.Model(modelOrDefault(req.Model, a.defaultModel)),
		Messages:  msgs,
		MaxTokens: maxTokens,
	}
	if len(system) > 0 {
		out.MultiSystem = system
	}
	return out, nil
}

func (a *AnthropicAdapter) Chat(ctx context.Context, req adapter.ChatRequest) (string, adapter.Usage, error) {
	r, err := a.request(req)
	if err != nil {
		return "", adapter.Usage{}, err
	}
	resp, err := a.client.CreateMessages(ctx, r)
	if err != nil {
		return "", adapter.Usage{}, err
	}
	var sb strings.Builder
	for _, block := range resp.Content {
		if block.Type == anthropic.MessagesContentTypeText && block.Text != nil {
			sb.WriteString(*block.Text)
		}
	}
	u := adapter.Usage{
		PromptTokens:     resp.Usage.InputTokens,
		CompletionTokens: resp.Usage.OutputTokens,
		TotalTokens:      resp.Usage.InputTokens + resp.Usage.OutputTokens,
	}
	return sb.String(), u, nil
}

func (a *AnthropicAdapter) ChatStream(ctx context.Context, req adapter.ChatRequest) (<-chan adapter.StreamChunk, error) {
	r, err := a.request(req)
	if err != nil {
		return nil, err
	}
	out := make(chan adapter.StreamChunk, 16)
	go func() {
		defer close(out)

		var streamErr error
		sr := anthropic.MessagesStreamRequest{MessagesRequest: r}
		sr.OnError = func(e anthropic.ErrorResponse) {
			msg := "unknown"
			if e.Error != nil {
				msg = e.Error.Message
			}
			streamErr = fmt.Errorf("anthropic stream: %s", msg)
		}
		sr.OnContentBlockDelta = func(d anthropic.MessagesEventContentBlockDeltaData) {
			if d.Delta.Type == "text_delta" && d.Delta.Text != nil && *d.Delta.Text != "" {
				emit(ctx, out, adapter.StreamChunk{Delta: *d.Delta.Text})
			}
		}

		if _, err := a.client.CreateMessagesStream(ctx, sr); err != nil {
			emit(ctx, out, adapter.StreamChunk{Err: err})
			return
		}
		if streamErr != nil {
			emit(ctx, out, adapter.StreamChunk{Err: streamErr})
			return
		}
		emit(ctx, out, adapter.StreamChunk{Done: true})
	}()
	return out, nil
}
