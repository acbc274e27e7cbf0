//go:build !integration

package memory

import (
	"context"
	"testing"
	"time"

	"telegram-ai-relay/internal/domain/model"
)

func TestHistoryRepo(t *testing.T) {
	ctx := context.Background()
	r := NewHistoryRepo()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	batch := []model.Turn{
		model.NewTurn(1, model.RoleUser, "q1", base),
		model.NewTurn(1, model.RoleAssistant, "a1", base.Add(time.Second)),
		model.NewTurn(1, model.RoleUser, "q2", base.Add(2*time.Second)),
	}
	if err := r.AppendBatch(ctx, 1, batch); err != nil {
		t.Fatal(err)
	}

	got, _ := r.FetchRecent(ctx, 1, 2)
	if len(got) != 2 || got[0].Content != "a1" || got[1].Content != "q2" {
		t.Fatalf("unexpected tail: %+v", got)
	}
	got[0].Content = "mutated"
	again, _ := r.FetchRecent(ctx, 1, 2)
	if again[0].Content != "a1" {
		t.Fatalf("caller mutation leaked into the store")
	}

	n, _ := r.PruneBefore(ctx, base.Add(time.Second))
	if n != 1 {
		t.Fatalf("expected 1 pruned, got %d", n)
	}
	_ = r.Clear(ctx, 1)
	if got, _ := r.FetchRecent(ctx, 1, 10); len(got) != 0 {
		t.Fatalf("expected empty after Clear")
	}
}
