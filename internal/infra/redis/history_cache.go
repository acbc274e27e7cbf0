package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"telegram-ai-relay/internal/domain/model"
	"telegram-ai-relay/internal/domain/ports/repository"
	"telegram-ai-relay/internal/infra/metrics"
	"telegram-ai-relay/internal/infra/security"
)

var _ repository.HistoryRepository = (*historyCacheDecorator)(nil)

const historyEpochKey = "history_epoch"

// historyCacheDecorator keeps each chat's most recent fetch in Redis. Every
// entry carries the stamp (global epoch + per-chat generation) read before the
// store was queried; writes and clears bump the generation and prunes bump the
// epoch, so a fill that raced a write is never served. Cache errors fall
// through to the store. Content is sealed with the store's Sealer.
type historyCacheDecorator struct {
	inner  repository.HistoryRepository
	cache  RedisClient
	sealer security.Sealer
	ttl    time.Duration
	logger *zerolog.Logger
}

type cachedWindow struct {
	Stamp string       `json:"stamp"`
	Limit int          `json:"limit"`
	Turns []cachedTurn `json:"turns"`
}

type cachedTurn struct {
	ID        string    `json:"id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

func NewHistoryCacheDecorator(inner repository.HistoryRepository, cache RedisClient, sealer security.Sealer, ttl time.Duration, logger *zerolog.Logger) repository.HistoryRepository {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	if sealer == nil {
		sealer = security.Plain{}
	}
	l := logger.With().Str("component", "history_cache").Logger()
	return &historyCacheDecorator{inner: inner, cache: cache, sealer: sealer, ttl: ttl, logger: &l}
}

func historyKey(chatID int64) string    { return fmt.Sprintf("history:%d", chatID) }
func historyGenKey(chatID int64) string { return fmt.Sprintf("history_gen:%d", chatID) }

func (d *historyCacheDecorator) FetchRecent(ctx context.Context, chatID int64, limit int) ([]model.Turn, error) {
	key := historyKey(chatID)
	stamp, serr := d.stamp(ctx, chatID)
	if serr != nil {
		d.logger.Warn().Err(serr).Int64("chat_id", chatID).Msg("history cache stamp read failed")
	} else if turns, ok := d.lookup(ctx, chatID, key, stamp, limit); ok {
		metrics.IncCacheRequest("history", "hit")
		return turns, nil
	}

	metrics.IncCacheRequest("history", "miss")
	turns, err := d.inner.FetchRecent(ctx, chatID, limit)
	if err != nil {
		return nil, err
	}
	if serr == nil {
		d.fill(ctx, chatID, key, stamp, limit, turns)
	}
	return turns, nil
}

func (d *historyCacheDecorator) lookup(ctx context.Context, chatID int64, key, stamp string, limit int) ([]model.Turn, bool) {
	val, err := d.cache.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, Nil) {
			d.logger.Warn().Err(err).Int64("chat_id", chatID).Msg("history cache read failed")
		}
		return nil, false
	}
	var w cachedWindow
	if json.Unmarshal([]byte(val), &w) != nil || w.Stamp != stamp {
		return nil, false
	}
	// an entry fetched with a smaller limit cannot answer a larger one,
	// unless it already held the whole chat
	if w.Limit < limit && len(w.Turns) >= w.Limit {
		return nil, false
	}
	turns, err := d.open(chatID, w.Turns)
	if err != nil {
		d.logger.Warn().Err(err).Int64("chat_id", chatID).Msg("history cache entry unreadable")
		return nil, false
	}
	return tail(turns, limit), true
}

func (d *historyCacheDecorator) fill(ctx context.Context, chatID int64, key, stamp string, limit int, turns []model.Turn) {
	cached, err := d.seal(turns)
	if err != nil {
		d.logger.Warn().Err(err).Int64("chat_id", chatID).Msg("history cache seal failed")
		return
	}
	bytes, err := json.Marshal(cachedWindow{Stamp: stamp, Limit: limit, Turns: cached})
	if err != nil {
		return
	}
	if err := d.cache.Set(ctx, key, bytes, d.ttl); err != nil {
		d.logger.Warn().Err(err).Int64("chat_id", chatID).Msg("history cache write failed")
	}
}

func (d *historyCacheDecorator) AppendBatch(ctx context.Context, chatID int64, turns []model.Turn) error {
	if err := d.inner.AppendBatch(ctx, chatID, turns); err != nil {
		return err
	}
	d.invalidate(ctx, chatID)
	return nil
}

func (d *historyCacheDecorator) Clear(ctx context.Context, chatID int64) error {
	if err := d.inner.Clear(ctx, chatID); err != nil {
		return err
	}
	d.invalidate(ctx, chatID)
	return nil
}

// PruneBefore bumps the epoch when rows were removed, which retires every
// cached window at once.
func (d *historyCacheDecorator) PruneBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	n, err := d.inner.PruneBefore(ctx, cutoff)
	if err != nil || n == 0 {
		return n, err
	}
	if _, ierr := d.cache.Incr(ctx, historyEpochKey); ierr != nil {
		d.logger.Warn().Err(ierr).Msg("history cache epoch bump failed")
	}
	return n, nil
}

func (d *historyCacheDecorator) invalidate(ctx context.Context, chatID int64) {
	if _, err := d.cache.Incr(ctx, historyGenKey(chatID)); err != nil {
		d.logger.Warn().Err(err).Int64("chat_id", chatID).Msg("history cache generation bump failed")
	}
	if err := d.cache.Del(ctx, historyKey(chatID)); err != nil {
		d.logger.Warn().Err(err).Int64("chat_id", chatID).Msg("history cache invalidation failed")
	}
}

func (d *historyCacheDecorator) stamp(ctx context.Context, chatID int64) (string, error) {
	epoch, err := d.counter(ctx, historyEpochKey)
	if err != nil {
		return "", err
	}
	gen, err := d.counter(ctx, historyGenKey(chatID))
	if err != nil {
		return "", err
	}
	return epoch + "." + gen, nil
}

func (d *historyCacheDecorator) counter(ctx context.Context, key string) (string, error) {
	v, err := d.cache.Get(ctx, key)
	if errors.Is(err, Nil) {
		return "0", nil
	}
	return v, err
}

func (d *historyCacheDecorator) seal(ts []model.Turn) ([]cachedTurn, error) {
	out := fromTurns(ts)
	for i := range out {
		c, err := d.sealer.Seal(out[i].Content)
		if err != nil {
			return nil, err
		}
		out[i].Content = c
	}
	return out, nil
}

func (d *historyCacheDecorator) open(chatID int64, cs []cachedTurn) ([]model.Turn, error) {
	out := toTurns(chatID, cs)
	for i := range out {
		c, err := d.sealer.Open(out[i].Content)
		if err != nil {
			return nil, err
		}
		out[i].Content = c
	}
	return out, nil
}

func fromTurns(ts []model.Turn) []cachedTurn {
	out := make([]cachedTurn, len(ts))
	for i, t := range ts {
		out[i] = cachedTurn{ID: t.ID, Role: string(t.Role), Content: t.Content, CreatedAt: t.CreatedAt}
	}
	return out
}

func toTurns(chatID int64, cs []cachedTurn) []model.Turn {
	out := make([]model.Turn, len(cs))
	for i, c := range cs {
		out[i] = model.Turn{ID: c.ID, ChatID: chatID, Role: model.Role(c.Role), Content: c.Content, CreatedAt: c.CreatedAt}
	}
	return out
}

func tail(ts []model.Turn, limit int) []model.Turn {
	if limit <= 0 {
		return []model.Turn{}
	}
	if len(ts) > limit {
		return ts[len(ts)-limit:]
	}
	return ts
}
