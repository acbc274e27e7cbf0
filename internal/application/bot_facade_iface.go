package application

import (
	"context"
	"time"
)

// ---- small interfaces to decouple the facade from concrete infra ----
// These describe the minimal surface that the facade needs. Using interfaces
// enables tests to pass in light-weight mocks.

type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

type ChatLocker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (token string, err error)
	Unlock(ctx context.Context, key, token string) error
}

// Typer shows the "typing…" chat action.
type Typer interface {
	SendTyping(ctx context.Context, chatID int64) error
}

// Translator resolves localized texts by language code.
type Translator interface {
	T(lang, key string, args ...interface{}) string
}
