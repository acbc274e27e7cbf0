//go:build !integration

package usecase

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"

	"telegram-ai-relay/internal/domain"
	"telegram-ai-relay/internal/domain/model"
	"telegram-ai-relay/internal/domain/ports/adapter"
)

var testNotices = Notices{Apology: "Sorry, something went wrong.", NoAnswer: "No answer."}

type chatFixture struct {
	history *memHistory
	ai      *fakeAI
	display *fakeDisplay
	summ    *fakeSummarizer
	uc      *chatUC
}

type countingTokens struct{ calls int }

func (c *countingTokens) CountMessages(_ string, msgs []adapter.Message) int {
	c.calls++
	return len(msgs) * 10
}

func newChatFixture() *chatFixture {
	f := &chatFixture{
		history: newMemHistory(),
		ai:      &fakeAI{},
		display: &fakeDisplay{},
		summ:    &fakeSummarizer{text: "earlier talk"},
	}
	log := newTestLogger()
	assembler := NewContextAssembler(f.history, f.summ, AssemblerConfig{MaxRecent: 10, Horizon: 10, SummaryPrefix: "Summary: "}, log)
	renderer := NewStreamRenderer(f.display, RenderConfig{FlushMinChars: 50, FlushMarkers: ".!?\n", Formats: defaultChain}, log)
	writer := NewHistoryWriter(f.history, log)
	f.uc = NewChatUseCase(assembler, renderer, writer, f.history, f.ai, f.display, &countingTokens{}, ChatConfig{Model: "gpt-test"}, log)
	return f
}

func (f *chatFixture) apologies() int {
	n := 0
	for _, e := range f.display.edits {
		if e.Text == testNotices.Apology {
			n++
		}
	}
	for _, s := range f.display.sends {
		if s == testNotices.Apology {
			n++
		}
	}
	return n
}

func TestHandleMessage_ShortHistoryStreamsAndPersists(t *testing.T) {
	f := newChatFixture()
	f.ai.streamChunks = deltas("hi there")

	out, err := f.uc.HandleMessage(context.Background(), IncomingMessage{ChatID: 1, Text: "hello", Notices: testNotices})
	if err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}

	req := f.ai.streamReqs[0]
	if !reflect.DeepEqual(req.Messages, []adapter.Message{{Role: "user", Content: "hello"}}) {
		t.Fatalf("window = %+v", req.Messages)
	}
	if req.Model != "gpt-test" {
		t.Fatalf("model = %q", req.Model)
	}

	got := f.history.turns(1)
	if len(got) != 2 ||
		got[0].Role != model.RoleUser || got[0].Content != "hello" ||
		got[1].Role != model.RoleAssistant || got[1].Content != "hi there" {
		t.Fatalf("persisted = %+v", got)
	}
	if out.Answer != "hi there" || !out.Persisted || out.Apologized {
		t.Fatalf("outcome = %+v", out)
	}
	if f.display.placeholders != 1 || f.display.shown != "hi there" {
		t.Fatalf("display placeholders=%d shown=%q", f.display.placeholders, f.display.shown)
	}
}

func TestHandleMessage_OverflowSummaryLeadsWindow(t *testing.T) {
	f := newChatFixture()
	f.history.seed(1, 11)
	f.ai.streamChunks = deltas("ok")

	out, err := f.uc.HandleMessage(context.Background(), IncomingMessage{ChatID: 1, Text: "next", Notices: testNotices})
	if err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}
	if !out.Summarized {
		t.Fatalf("expected summarized window")
	}
	msgs := f.ai.streamReqs[0].Messages
	if len(msgs) != 11 || msgs[0].Role != "system" || msgs[0].Content != "Summary: earlier talk" {
		t.Fatalf("messages = %+v", msgs)
	}
	if msgs[len(msgs)-1].Content != "next" {
		t.Fatalf("last message = %+v", msgs[len(msgs)-1])
	}
	if len(f.summ.calls) != 1 || len(f.summ.calls[0]) != 2 {
		t.Fatalf("summarizer calls = %+v", f.summ.calls)
	}
}

func TestHandleMessage_FailureBeforeFirstChunk(t *testing.T) {
	t.Run("should apologize once when the stream errors", func(t *testing.T) {
		f := newChatFixture()
		f.ai.streamChunks = []adapter.StreamChunk{{Err: errors.New("500 from provider")}}

		out, err := f.uc.HandleMessage(context.Background(), IncomingMessage{ChatID: 1, Text: "hello", Notices: testNotices})
		if !errors.Is(err, domain.ErrCompletionFailure) {
			t.Fatalf("err = %v", err)
		}
		if n := f.apologies(); n != 1 || !out.Apologized {
			t.Fatalf("apologies = %d, outcome = %+v", n, out)
		}
		if f.history.appends != 0 {
			t.Fatalf("history writes = %d, want 0", f.history.appends)
		}
	})

	t.Run("should apologize once when the stream cannot open", func(t *testing.T) {
		f := newChatFixture()
		f.ai.streamErr = errors.New("dial tcp: refused")

		_, err := f.uc.HandleMessage(context.Background(), IncomingMessage{ChatID: 1, Text: "hello", Notices: testNotices})
		if !errors.Is(err, domain.ErrCompletionFailure) {
			t.Fatalf("err = %v", err)
		}
		if n := f.apologies(); n != 1 {
			t.Fatalf("apologies = %d", n)
		}
		if f.history.appends != 0 {
			t.Fatalf("history writes = %d", f.history.appends)
		}
	})

	t.Run("should send the apology when the placeholder is gone", func(t *testing.T) {
		f := newChatFixture()
		f.ai.streamChunks = []adapter.StreamChunk{{Err: errors.New("boom")}}
		f.display.reject = func(text string, fm adapter.Format) error {
			return &adapter.EditRejection{Reason: adapter.ReasonTransport, Format: fm, Err: errors.New("message to edit not found")}
		}

		_, _ = f.uc.HandleMessage(context.Background(), IncomingMessage{ChatID: 1, Text: "hello", Notices: testNotices})
		if len(f.display.sends) != 1 || f.display.sends[0] != testNotices.Apology {
			t.Fatalf("sends = %q", f.display.sends)
		}
	})
}

func TestHandleMessage_StoreUnavailable(t *testing.T) {
	f := newChatFixture()
	f.history.fetchErr = errors.New("connection reset")
	f.ai.streamChunks = deltas("never")

	_, err := f.uc.HandleMessage(context.Background(), IncomingMessage{ChatID: 1, Text: "hello", Notices: testNotices})
	if !errors.Is(err, domain.ErrStoreUnavailable) {
		t.Fatalf("err = %v", err)
	}
	if len(f.ai.streamReqs) != 0 || len(f.ai.chatReqs) != 0 {
		t.Fatalf("completion must not be called")
	}
	if f.display.placeholders != 0 {
		t.Fatalf("placeholder must not be sent")
	}
	if !reflect.DeepEqual(f.display.sends, []string{testNotices.Apology}) {
		t.Fatalf("sends = %q", f.display.sends)
	}
}

func TestHandleMessage_EmptyAnswerShowsNotice(t *testing.T) {
	f := newChatFixture()
	f.ai.streamChunks = deltas("  ")

	out, err := f.uc.HandleMessage(context.Background(), IncomingMessage{ChatID: 1, Text: "hello", Notices: testNotices})
	if err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}
	if !out.NoAnswer || out.Persisted {
		t.Fatalf("outcome = %+v", out)
	}
	if f.display.shown != testNotices.NoAnswer {
		t.Fatalf("shown = %q", f.display.shown)
	}
	if f.history.appends != 0 {
		t.Fatalf("history writes = %d", f.history.appends)
	}
}

func TestHandleMessage_PersistenceFailureIsNotSurfaced(t *testing.T) {
	f := newChatFixture()
	f.history.appendErr = errors.New("read-only replica")
	f.ai.streamChunks = deltas("answer")

	out, err := f.uc.HandleMessage(context.Background(), IncomingMessage{ChatID: 1, Text: "q", Notices: testNotices})
	if err != nil {
		t.Fatalf("persistence failure must not be returned: %v", err)
	}
	if out.Persisted || out.Answer != "answer" || f.apologies() != 0 {
		t.Fatalf("outcome = %+v apologies=%d", out, f.apologies())
	}
}

func TestHandleMessage_InterruptedStillPersists(t *testing.T) {
	f := newChatFixture()
	ctx, cancel := context.WithCancel(context.Background())

	ch := make(chan adapter.StreamChunk)
	go func() {
		ch <- adapter.StreamChunk{Delta: "partial answer"}
		cancel()
	}()
	f.uc.ai = &streamOnce{ch: ch}

	out, err := f.uc.HandleMessage(ctx, IncomingMessage{ChatID: 1, Text: "q", Notices: testNotices})
	if err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}
	if !out.Interrupted || !out.Persisted {
		t.Fatalf("outcome = %+v", out)
	}
	got := f.history.turns(1)
	if len(got) != 2 || got[1].Content != "partial answer" {
		t.Fatalf("persisted = %+v", got)
	}
}

func TestHandleMessage_RejectsBlankInput(t *testing.T) {
	f := newChatFixture()
	if _, err := f.uc.HandleMessage(context.Background(), IncomingMessage{ChatID: 1, Text: "  "}); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Fatalf("err = %v", err)
	}
}

func TestResetHistory(t *testing.T) {
	f := newChatFixture()
	f.history.seed(3, 4)
	if err := f.uc.ResetHistory(context.Background(), 3); err != nil {
		t.Fatalf("ResetHistory: %v", err)
	}
	turns, err := f.uc.RecentTurns(context.Background(), 3, 0)
	if err != nil || len(turns) != 0 {
		t.Fatalf("turns=%v err=%v", turns, err)
	}
}

func TestHandleMessage_LongAnswerStreamsInSeveralEdits(t *testing.T) {
	f := newChatFixture()
	f.ai.streamChunks = deltas("First sentence. ", "Second sentence. ", strings.Repeat("x", 60))

	out, err := f.uc.HandleMessage(context.Background(), IncomingMessage{ChatID: 1, Text: "go", Notices: testNotices})
	if err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}
	if len(f.display.edits) < 3 {
		t.Fatalf("edits = %d, want incremental updates", len(f.display.edits))
	}
	if f.display.shown != out.Answer {
		t.Fatalf("final display %q != answer %q", f.display.shown, out.Answer)
	}
}

// streamOnce hands out one prepared channel.
type streamOnce struct {
	fakeAI
	ch chan adapter.StreamChunk
}

func (s *streamOnce) ChatStream(ctx context.Context, req adapter.ChatRequest) (<-chan adapter.StreamChunk, error) {
	return s.ch, nil
}
