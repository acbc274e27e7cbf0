package redis

import (
	"context"
	"encoding/hex"
	"errors"
	"time"

	"github.com/zeebo/blake3"

	"telegram-ai-relay/internal/domain/ports/repository"
	"telegram-ai-relay/internal/infra/metrics"
)

var _ repository.SummaryCache = (*SummaryCache)(nil)

// SummaryCache stores synopses keyed by a BLAKE3 digest of model and transcript.
type SummaryCache struct {
	client RedisClient
	ttl    time.Duration
}

func NewSummaryCache(client RedisClient, ttl time.Duration) *SummaryCache {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &SummaryCache{client: client, ttl: ttl}
}

func summaryKey(model, transcript string) string {
	h := blake3.New()
	_, _ = h.Write([]byte(model))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte(transcript))
	return "summary:" + hex.EncodeToString(h.Sum(nil))
}

func (c *SummaryCache) GetSummary(ctx context.Context, model, transcript string) (string, bool, error) {
	val, err := c.client.Get(ctx, summaryKey(model, transcript))
	switch {
	case err == nil:
		metrics.IncCacheRequest("summary", "hit")
		return val, true, nil
	case errors.Is(err, Nil):
		metrics.IncCacheRequest("summary", "miss")
		return "", false, nil
	default:
		metrics.IncCacheRequest("summary", "error")
		return "", false, err
	}
}

func (c *SummaryCache) SetSummary(ctx context.Context, model, transcript, summary string) error {
	return c.client.Set(ctx, summaryKey(model, transcript), summary, c.ttl)
}
