// Package memory is a process-local history store for development and tests.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"telegram-ai-relay/internal/domain/model"
	"telegram-ai-relay/internal/domain/ports/repository"
)

var _ repository.HistoryRepository = (*HistoryRepo)(nil)

type HistoryRepo struct {
	mu     sync.RWMutex
	byChat map[int64][]model.Turn
}

func NewHistoryRepo() *HistoryRepo {
	return &HistoryRepo{byChat: map[int64][]model.Turn{}}
}

func (r *HistoryRepo) FetchRecent(_ context.Context, chatID int64, limit int) ([]model.Turn, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	all := r.byChat[chatID]
	if limit <= 0 || len(all) == 0 {
		return []model.Turn{}, nil
	}
	if len(all) > limit {
		all = all[len(all)-limit:]
	}
	out := make([]model.Turn, len(all))
	copy(out, all)
	return out, nil
}

func (r *HistoryRepo) AppendBatch(_ context.Context, chatID int64, turns []model.Turn) error {
	if len(turns) == 0 {
		return nil
	}
	now := time.Now().UTC()
	r.mu.Lock()
	defer r.mu.Unlock()
	list := r.byChat[chatID]
	for _, t := range turns {
		t.ChatID = chatID
		if t.ID == "" {
			t.ID = ulid.Make().String()
		}
		if t.CreatedAt.IsZero() {
			t.CreatedAt = now
		}
		list = append(list, t)
	}
	// stable keeps batch order for equal timestamps
	sort.SliceStable(list, func(i, j int) bool { return list[i].CreatedAt.Before(list[j].CreatedAt) })
	r.byChat[chatID] = list
	return nil
}

func (r *HistoryRepo) Clear(_ context.Context, chatID int64) error {
	r.mu.Lock()
	delete(r.byChat, chatID)
	r.mu.Unlock()
	return nil
}

func (r *HistoryRepo) PruneBefore(_ context.Context, cutoff time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for chatID, list := range r.byChat {
		kept := list[:0]
		for _, t := range list {
			if t.CreatedAt.Before(cutoff) {
				n++
				continue
			}
			kept = append(kept, t)
		}
		if len(kept) == 0 {
			delete(r.byChat, chatID)
			continue
		}
		r.byChat[chatID] = kept
	}
	return n, nil
}
