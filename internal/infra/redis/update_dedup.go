package redis

import (
	"context"
	"fmt"
	"time"
)

// UpdateDedup remembers Telegram update ids so webhook retries are
// acknowledged without being processed twice.
type UpdateDedup struct {
	client RedisClient
	ttl    time.Duration
}

func NewUpdateDedup(client RedisClient, ttl time.Duration) *UpdateDedup {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &UpdateDedup{client: client, ttl: ttl}
}

func updateKey(updateID int) string { return fmt.Sprintf("tg_update:%d", updateID) }

// FirstSeen reports true the first time updateID is offered.
func (d *UpdateDedup) FirstSeen(ctx context.Context, updateID int) (bool, error) {
	return d.client.SetNX(ctx, updateKey(updateID), 1, d.ttl)
}

// Forget drops updateID so the next delivery counts as first seen.
func (d *UpdateDedup) Forget(ctx context.Context, updateID int) error {
	return d.client.Del(ctx, updateKey(updateID))
}
