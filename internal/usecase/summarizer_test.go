//go:build !integration

package usecase

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"telegram-ai-relay/internal/domain/model"
)

type memSummaryCache struct {
	mu   sync.Mutex
	data map[string]string
	sets int
}

func (m *memSummaryCache) GetSummary(ctx context.Context, mdl, transcript string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[mdl+"|"+transcript]
	return v, ok, nil
}

func (m *memSummaryCache) SetSummary(ctx context.Context, mdl, transcript, summary string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.data == nil {
		m.data = map[string]string{}
	}
	m.data[mdl+"|"+transcript] = summary
	m.sets++
	return nil
}

func testSummarizerConfig() SummarizerConfig {
	return SummarizerConfig{
		Model:       "gpt-test",
		MaxTokens:   200,
		Timeout:     time.Second,
		Instruction: "Summarize:",
		Unavailable: "summary unavailable",
	}
}

func sampleTurns() []model.Turn {
	return []model.Turn{
		{Role: model.RoleUser, Content: "I am vegan"},
		{Role: model.RoleAssistant, Content: "Noted."},
	}
}

func TestSummarize_BuildsTranscriptPrompt(t *testing.T) {
	ai := &fakeAI{chatReply: "User is vegan."}
	s := NewSummarizer(ai, nil, testSummarizerConfig(), newTestLogger())

	got := s.Summarize(context.Background(), sampleTurns())
	if got != "User is vegan." {
		t.Fatalf("summary = %q", got)
	}
	if len(ai.chatReqs) != 1 {
		t.Fatalf("chat calls = %d", len(ai.chatReqs))
	}
	req := ai.chatReqs[0]
	if req.MaxTokens != 200 || req.Model != "gpt-test" {
		t.Fatalf("request = %+v", req)
	}
	if len(req.Messages) != 1 || req.Messages[0].Role != "system" {
		t.Fatalf("want one system message, got %+v", req.Messages)
	}
	want := "Summarize:\n\nuser: I am vegan\nassistant: Noted."
	if req.Messages[0].Content != want {
		t.Fatalf("prompt = %q, want %q", req.Messages[0].Content, want)
	}
}

func TestSummarize_ReturnsTextVerbatim(t *testing.T) {
	reply := "  A long synopsis with trailing space.  "
	ai := &fakeAI{chatReply: reply}
	s := NewSummarizer(ai, nil, testSummarizerConfig(), newTestLogger())
	if got := s.Summarize(context.Background(), sampleTurns()); got != reply {
		t.Fatalf("summary = %q, want verbatim %q", got, reply)
	}
}

func TestSummarize_FailureDegradesToSentinel(t *testing.T) {
	t.Run("should return sentinel on error", func(t *testing.T) {
		ai := &fakeAI{chatErr: errors.New("timeout")}
		s := NewSummarizer(ai, nil, testSummarizerConfig(), newTestLogger())
		if got := s.Summarize(context.Background(), sampleTurns()); got != "summary unavailable" {
			t.Fatalf("got %q", got)
		}
	})
	t.Run("should return sentinel on empty output", func(t *testing.T) {
		ai := &fakeAI{chatReply: "   "}
		s := NewSummarizer(ai, nil, testSummarizerConfig(), newTestLogger())
		if got := s.Summarize(context.Background(), sampleTurns()); got != "summary unavailable" {
			t.Fatalf("got %q", got)
		}
	})
	t.Run("should skip the call for no turns", func(t *testing.T) {
		ai := &fakeAI{chatReply: "x"}
		s := NewSummarizer(ai, nil, testSummarizerConfig(), newTestLogger())
		if got := s.Summarize(context.Background(), nil); got != "" {
			t.Fatalf("got %q", got)
		}
		if len(ai.chatReqs) != 0 {
			t.Fatalf("unexpected chat call")
		}
	})
}

func TestSummarize_UsesCache(t *testing.T) {
	ai := &fakeAI{chatReply: "cached synopsis"}
	cache := &memSummaryCache{}
	s := NewSummarizer(ai, cache, testSummarizerConfig(), newTestLogger())

	first := s.Summarize(context.Background(), sampleTurns())
	second := s.Summarize(context.Background(), sampleTurns())
	if first != second || first != "cached synopsis" {
		t.Fatalf("first=%q second=%q", first, second)
	}
	if len(ai.chatReqs) != 1 {
		t.Fatalf("chat calls = %d, want 1", len(ai.chatReqs))
	}

	ai.chatErr = errors.New("down")
	other := []model.Turn{{Role: model.RoleUser, Content: "different"}}
	if got := s.Summarize(context.Background(), other); got != "summary unavailable" {
		t.Fatalf("got %q", got)
	}
	if cache.sets != 1 {
		t.Fatalf("sentinel must not be cached, sets = %d", cache.sets)
	}
}

func TestTranscript(t *testing.T) {
	got := Transcript(sampleTurns())
	if strings.Count(got, "\n") != 1 || !strings.HasPrefix(got, "user: ") {
		t.Fatalf("transcript = %q", got)
	}
}
