package repository

import (
	"context"
	"time"

	"telegram-ai-relay/internal/domain/model"
)

// HistoryRepository is the ordered, per-chat append-only log of turns.
// Implementations must be safe for concurrent use across chats.
type HistoryRepository interface {
	// FetchRecent returns up to limit of the newest turns, oldest first.
	FetchRecent(ctx context.Context, chatID int64, limit int) ([]model.Turn, error)
	// AppendBatch stores turns in the given order as one unit.
	AppendBatch(ctx context.Context, chatID int64, turns []model.Turn) error
	// Clear removes every turn of a chat.
	Clear(ctx context.Context, chatID int64) error
	// PruneBefore removes turns created before cutoff across all chats.
	PruneBefore(ctx context.Context, cutoff time.Time) (int64, error)
}
