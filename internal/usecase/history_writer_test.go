//go:build !integration

package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"telegram-ai-relay/internal/domain"
	"telegram-ai-relay/internal/domain/model"
)

func TestCommit_RoundTrip(t *testing.T) {
	h := newMemHistory()
	w := NewHistoryWriter(h, newTestLogger())
	received := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	w.now = func() time.Time { return received } // same instant on purpose

	if err := w.Commit(context.Background(), 9, "exact input ", "exact *answer*", received); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	got := h.turns(9)
	if len(got) != 2 {
		t.Fatalf("turns = %d, want 2", len(got))
	}
	if got[0].Role != model.RoleUser || got[0].Content != "exact input " {
		t.Fatalf("first turn = %+v", got[0])
	}
	if got[1].Role != model.RoleAssistant || got[1].Content != "exact *answer*" {
		t.Fatalf("second turn = %+v", got[1])
	}
	if !got[1].CreatedAt.After(got[0].CreatedAt) {
		t.Fatalf("assistant turn must sort after the user turn: %v <= %v", got[1].CreatedAt, got[0].CreatedAt)
	}
	if got[0].ID == "" || got[1].ID == "" || got[0].ID == got[1].ID {
		t.Fatalf("ids = %q, %q", got[0].ID, got[1].ID)
	}
	if h.appends != 1 {
		t.Fatalf("batches = %d, want 1", h.appends)
	}
}

func TestCommit_EmptyAnswerWritesNothing(t *testing.T) {
	h := newMemHistory()
	w := NewHistoryWriter(h, newTestLogger())

	for _, answer := range []string{"", "   ", "\n\t"} {
		err := w.Commit(context.Background(), 1, "hi", answer, time.Now())
		if !errors.Is(err, domain.ErrEmptyAnswer) {
			t.Fatalf("answer %q: err = %v", answer, err)
		}
	}
	if h.appends != 0 {
		t.Fatalf("store touched %d times", h.appends)
	}
}

func TestCommit_StoreFailureIsWrapped(t *testing.T) {
	h := newMemHistory()
	h.appendErr = errors.New("disk full")
	w := NewHistoryWriter(h, newTestLogger())

	err := w.Commit(context.Background(), 1, "hi", "there", time.Now())
	if !errors.Is(err, domain.ErrPersistenceFailure) {
		t.Fatalf("err = %v", err)
	}
}
