// File: internal/infra/adapters/ai/gemini_adapter.go
package ai

import (
	"context"
	"errors"
	"strings"

	"google.golang.org/genai"

	"telegram-ai-relay/internal/domain/ports/adapter"
)

var _ adapter.AIServiceAdapter = (*GeminiAdapter)(nil)

type GeminiAdapter struct {
	client       *genai.Client
	defaultModel string
}

// NewGeminiAdapter creates a Gemini adapter using the official SDK.
func NewGeminiAdapter(ctx context.Context, apiKey, baseURL, defaultModel string) (*GeminiAdapter, error) {
	if apiKey == "" {
		return nil, errors.New("gemini: empty api key")
	}
	c, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
		HTTPOptions: genai.HTTPOptions{
			BaseURL: baseURL,
		},
	})
	if err != nil {
		return nil, err
	}
	return &GeminiAdapter{client: c, defaultModel: defaultModel}, nil
}

func (g *GeminiAdapter) Name() string { return "gemini" }

func (g *GeminiAdapter) Chat(ctx context.Context, req adapter.ChatRequest) (string, adapter.Usage, error) {
	contents, cfg, err := g.prepare(req)
	if err != nil {
		return "", adapter.Usage{}, err
	}
	resp, err := g.client.Models.GenerateContent(ctx, modelOrDefault(req.Model, g.defaultModel), contents, cfg)
	if err != nil {
		return "", adapter.Usage{}, err
	}
	return responseText(resp), usageOf(resp), nil
}

func (g *GeminiAdapter) ChatStream(ctx context.Context, req adapter.ChatRequest) (<-chan adapter.StreamChunk, error) {
	contents, cfg, err := g.prepare(req)
	if err != nil {
		return nil, err
	}
	seq := g.client.Models.GenerateContentStream(ctx, modelOrDefault(req.Model, g.defaultModel), contents, cfg)

	out := make(chan adapter.StreamChunk, 16)
	go func() {
		defer close(out)
		for resp, err := range seq {
			if err != nil {
				emit(ctx, out, adapter.StreamChunk{Err: err})
				return
			}
			if text := responseText(resp); text != "" {
				if !emit(ctx, out, adapter.StreamChunk{Delta: text}) {
					return
				}
			}
		}
		emit(ctx, out, adapter.StreamChunk{Done: true})
	}()
	return out, nil
}

// prepare moves system turns into the system instruction; Gemini history
// only knows user and model roles.
func (g *GeminiAdapter) prepare(req adapter.ChatRequest) ([]*genai.Content, *genai.GenerateContentConfig, error) {
	if len(req.Messages) == 0 {
		return nil, nil, errors.New("gemini: no messages")
	}
	var system []string
	rest := make([]adapter.Message, 0, len(req.Messages))
	for _, m := range req.Messages {
		if strings.ToLower(m.Role) == "system" {
			system = append(system, m.Content)
			continue
		}
		rest = append(rest, m)
	}

	cfg := &genai.GenerateContentConfig{}
	if req.MaxTokens > 0 {
		cfg.MaxOutputTokens = int32(req.MaxTokens)
	}
	if len(system) > 0 {
		cfg.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: strings.Join(system, "\n\n")}}}
	}
	if len(rest) == 0 {
		// a summary request carries only a system prompt
		rest = []adapter.Message{{Role: "user", Content: strings.Join(system, "\n\n")}}
		cfg.SystemInstruction = nil
	}
	return toGenAIHistory(rest), cfg, nil
}

func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var sb strings.Builder
	for _, p := range resp.Candidates[0].Content.Parts {
		if p == nil || p.Thought {
			continue
		}
		sb.WriteString(p.Text)
	}
	return sb.String()
}

func usageOf(resp *genai.GenerateContentResponse) adapter.Usage {
	u := adapter.Usage{}
	if resp != nil && resp.UsageMetadata != nil {
		u.PromptTokens = int(resp.UsageMetadata.PromptTokenCount)
		u.CompletionTokens = int(resp.UsageMetadata.CandidatesTokenCount)
		u.TotalTokens = int(resp.UsageMetadata.TotalTokenCount)
	}
	return u
}

func toGenAIHistory(msgs []adapter.Message) []*genai.Content {
	out := make([]*genai.Content, 0, len(msgs))
	for _, m := range msgs {
		role := genai.RoleUser
		if r := strings.ToLower(m.Role); r == "assistant" || r == "model" {
			role = genai.RoleModel
		}
		out = append(out, &genai.Content{
			Role:  role,
			Parts: []*genai.Part{{Text: m.Content}},
		})
	}
	return out
}
