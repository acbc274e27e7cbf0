// File: internal/usecase/mocks_test.go
package usecase

import (
	"context"
	"errors"
	"io"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"telegram-ai-relay/internal/domain/model"
	"telegram-ai-relay/internal/domain/ports/adapter"
)

// newTestLogger creates a silent zerolog.Logger for use in tests.
func newTestLogger() *zerolog.Logger {
	logger := zerolog.New(io.Discard)
	return &logger
}

// ---- history store ----

type memHistory struct {
	mu        sync.Mutex
	byChat    map[int64][]model.Turn
	fetchErr  error
	appendErr error
	fetches   []int // limits requested
	appends   int
}

func newMemHistory() *memHistory {
	return &memHistory{byChat: make(map[int64][]model.Turn)}
}

func (m *memHistory) seed(chatID int64, n int) []model.Turn {
	m.mu.Lock()
	defer m.mu.Unlock()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	out := make([]model.Turn, 0, n)
	for i := 0; i < n; i++ {
		role := model.RoleUser
		if i%2 == 1 {
			role = model.RoleAssistant
		}
		t := model.NewTurn(chatID, role, "turn-"+strconv.Itoa(i), base.Add(time.Duration(i)*time.Second))
		out = append(out, t)
	}
	m.byChat[chatID] = append(m.byChat[chatID], out...)
	return out
}

func (m *memHistory) FetchRecent(ctx context.Context, chatID int64, limit int) ([]model.Turn, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fetches = append(m.fetches, limit)
	if m.fetchErr != nil {
		return nil, m.fetchErr
	}
	all := m.byChat[chatID]
	if limit > 0 && len(all) > limit {
		all = all[len(all)-limit:]
	}
	out := make([]model.Turn, len(all))
	copy(out, all)
	return out, nil
}

func (m *memHistory) AppendBatch(ctx context.Context, chatID int64, turns []model.Turn) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.appends++
	if m.appendErr != nil {
		return m.appendErr
	}
	m.byChat[chatID] = append(m.byChat[chatID], turns...)
	sort.SliceStable(m.byChat[chatID], func(i, j int) bool {
		return m.byChat[chatID][i].CreatedAt.Before(m.byChat[chatID][j].CreatedAt)
	})
	return nil
}

func (m *memHistory) Clear(ctx context.Context, chatID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.byChat, chatID)
	return nil
}

func (m *memHistory) PruneBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	return 0, nil
}

func (m *memHistory) turns(chatID int64) []model.Turn {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.Turn, len(m.byChat[chatID]))
	copy(out, m.byChat[chatID])
	return out
}

// ---- summarizer ----

type fakeSummarizer struct {
	mu    sync.Mutex
	calls [][]model.Turn
	text  string
}

func (f *fakeSummarizer) Summarize(ctx context.Context, turns []model.Turn) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, turns)
	return f.text
}

// ---- completion service ----

type fakeAI struct {
	mu        sync.Mutex
	chatReply string
	chatErr   error
	chatReqs  []adapter.ChatRequest

	streamChunks []adapter.StreamChunk
	streamErr    error
	streamReqs   []adapter.ChatRequest
}

func (f *fakeAI) Name() string { return "fake" }

func (f *fakeAI) Chat(ctx context.Context, req adapter.ChatRequest) (string, adapter.Usage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.chatReqs = append(f.chatReqs, req)
	if f.chatErr != nil {
		return "", adapter.Usage{}, f.chatErr
	}
	return f.chatReply, adapter.Usage{PromptTokens: 1, CompletionTokens: 1, TotalTokens: 2}, nil
}

func (f *fakeAI) ChatStream(ctx context.Context, req adapter.ChatRequest) (<-chan adapter.StreamChunk, error) {
	f.mu.Lock()
	f.streamReqs = append(f.streamReqs, req)
	chunks := append([]adapter.StreamChunk(nil), f.streamChunks...)
	err := f.streamErr
	f.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return chunkStream(chunks...), nil
}

// chunkStream returns a closed, fully buffered stream.
func chunkStream(chunks ...adapter.StreamChunk) <-chan adapter.StreamChunk {
	ch := make(chan adapter.StreamChunk, len(chunks))
	for _, c := range chunks {
		ch <- c
	}
	close(ch)
	return ch
}

func deltas(parts ...string) []adapter.StreamChunk {
	out := make([]adapter.StreamChunk, 0, len(parts)+1)
	for _, p := range parts {
		out = append(out, adapter.StreamChunk{Delta: p})
	}
	return append(out, adapter.StreamChunk{Done: true})
}

// ---- transport ----

type editCall struct {
	Text   string
	Format adapter.Format
}

type fakeDisplay struct {
	mu sync.Mutex

	placeholderErr error
	// reject decides the outcome of an edit; nil means success.
	reject  func(text string, format adapter.Format) error
	sendErr error

	placeholders int
	edits        []editCall
	sends        []string
	shown        string
}

func (f *fakeDisplay) SendPlaceholder(ctx context.Context, chatID int64) (*adapter.MessageHandle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.placeholders++
	if f.placeholderErr != nil {
		return nil, f.placeholderErr
	}
	f.shown = "…"
	return &adapter.MessageHandle{ChatID: chatID, MessageID: 100}, nil
}

func (f *fakeDisplay) EditDisplayed(ctx context.Context, h *adapter.MessageHandle, text string, format adapter.Format) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.edits = append(f.edits, editCall{Text: text, Format: format})
	if f.reject != nil {
		if err := f.reject(text, format); err != nil {
			return err
		}
	}
	if text == f.shown {
		return &adapter.EditRejection{Reason: adapter.ReasonNotModified, Format: format, Err: errors.New("message is not modified")}
	}
	f.shown = text
	return nil
}

func (f *fakeDisplay) SendPlain(ctx context.Context, chatID int64, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sends = append(f.sends, text)
	return nil
}

func (f *fakeDisplay) editTexts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.edits))
	for _, e := range f.edits {
		out = append(out, e.Text)
	}
	return out
}

func rejectFormats(formats ...adapter.Format) func(string, adapter.Format) error {
	return func(_ string, f adapter.Format) error {
		for _, r := range formats {
			if r == f {
				return &adapter.EditRejection{Reason: adapter.ReasonMalformed, Format: f, Err: errors.New("can't parse entities")}
			}
		}
		return nil
	}
}
