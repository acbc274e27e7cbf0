//go:build !integration

package sqlite

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"telegram-ai-relay/internal/domain/model"
	"telegram-ai-relay/internal/infra/security"
)

func openTestRepo(t *testing.T, sealer security.Sealer) *HistoryRepo {
	t.Helper()
	repo, err := Open(context.Background(), ":memory:", sealer)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

func seedTurns(chatID int64, n int, base time.Time) []model.Turn {
	out := make([]model.Turn, 0, n)
	for i := 0; i < n; i++ {
		role := model.RoleUser
		if i%2 == 1 {
			role = model.RoleAssistant
		}
		out = append(out, model.NewTurn(chatID, role, fmt.Sprintf("m%d", i), base.Add(time.Duration(i)*time.Millisecond)))
	}
	return out
}

func TestHistoryRepo_FetchRecentOrdering(t *testing.T) {
	ctx := context.Background()
	repo := openTestRepo(t, nil)
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	if err := repo.AppendBatch(ctx, 42, seedTurns(42, 12, base)); err != nil {
		t.Fatalf("AppendBatch: %v", err)
	}
	if err := repo.AppendBatch(ctx, 7, seedTurns(7, 3, base)); err != nil {
		t.Fatalf("AppendBatch: %v", err)
	}

	got, err := repo.FetchRecent(ctx, 42, 5)
	if err != nil {
		t.Fatalf("FetchRecent: %v", err)
	}
	if len(got) != 5 {
		t.Fatalf("expected 5, got %d", len(got))
	}
	for i, turn := range got {
		if want := fmt.Sprintf("m%d", 7+i); turn.Content != want {
			t.Errorf("turn %d: want %s, got %s", i, want, turn.Content)
		}
		if turn.ID == "" || turn.ChatID != 42 {
			t.Errorf("turn %d identity: %+v", i, turn)
		}
	}
	if !got[0].CreatedAt.Equal(base.Add(7 * time.Millisecond)) {
		t.Errorf("timestamp not preserved: %v", got[0].CreatedAt)
	}

	if got, _ := repo.FetchRecent(ctx, 42, 0); len(got) != 0 {
		t.Errorf("limit 0 must return nothing")
	}
	if got, _ := repo.FetchRecent(ctx, 999, 10); len(got) != 0 {
		t.Errorf("unknown chat must return nothing")
	}
}

func TestHistoryRepo_AppendIsAtomic(t *testing.T) {
	ctx := context.Background()
	repo := openTestRepo(t, nil)
	base := time.Now()

	dup := model.NewTurn(3, model.RoleUser, "x", base)
	dup.ID = "fixed"
	if err := repo.AppendBatch(ctx, 3, []model.Turn{dup, dup}); err == nil {
		t.Fatalf("expected a duplicate id error")
	}
	if got, _ := repo.FetchRecent(ctx, 3, 10); len(got) != 0 {
		t.Fatalf("partial batch persisted: %d turns", len(got))
	}
}

func TestHistoryRepo_ClearAndPrune(t *testing.T) {
	ctx := context.Background()
	repo := openTestRepo(t, nil)
	base := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

	_ = repo.AppendBatch(ctx, 1, seedTurns(1, 4, base))
	_ = repo.AppendBatch(ctx, 2, seedTurns(2, 4, base))

	if err := repo.Clear(ctx, 1); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if got, _ := repo.FetchRecent(ctx, 1, 10); len(got) != 0 {
		t.Fatalf("chat 1 should be empty")
	}
	n, err := repo.PruneBefore(ctx, base.Add(2*time.Millisecond))
	if err != nil {
		t.Fatalf("PruneBefore: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 pruned, got %d", n)
	}
	if got, _ := repo.FetchRecent(ctx, 2, 10); len(got) != 2 || got[0].Content != "m2" {
		t.Fatalf("unexpected survivors: %+v", got)
	}
}

func TestHistoryRepo_EncryptedFile(t *testing.T) {
	ctx := context.Background()
	enc, err := security.NewEncryptionService("secret")
	if err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(t.TempDir(), "nested", "history.db")
	repo, err := Open(ctx, path, enc)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer repo.Close()

	if err := repo.AppendBatch(ctx, 5, []model.Turn{model.NewTurn(5, model.RoleUser, "I am vegan", time.Now())}); err != nil {
		t.Fatalf("AppendBatch: %v", err)
	}
	var raw string
	if err := repo.db.QueryRowContext(ctx, `SELECT content FROM chat_history WHERE chat_id = 5`).Scan(&raw); err != nil {
		t.Fatal(err)
	}
	if raw == "I am vegan" {
		t.Fatalf("content stored in clear")
	}
	got, err := repo.FetchRecent(ctx, 5, 1)
	if err != nil || len(got) != 1 || got[0].Content != "I am vegan" {
		t.Fatalf("round trip: %+v %v", got, err)
	}
}
