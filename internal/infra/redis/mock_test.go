//go:build !integration

package redis

import (
	"context"
	"strconv"
	"sync"
	"time"

	"telegram-ai-relay/internal/domain/model"
)

// mockRedisClient is an in-memory stand-in; any Func field overrides the map.
type mockRedisClient struct {
	mu   sync.Mutex
	data map[string]string

	GetFunc   func(ctx context.Context, key string) (string, error)
	SetFunc   func(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	SetNXFunc func(ctx context.Context, key string, value interface{}, expiration time.Duration) (bool, error)
	DelFunc   func(ctx context.Context, keys ...string) error
	IncrFunc  func(ctx context.Context, key string) (int64, error)

	expires  map[string]time.Duration
	counters map[string]int64
}

var _ RedisClient = (*mockRedisClient)(nil)

func newMockRedis() *mockRedisClient {
	return &mockRedisClient{data: map[string]string{}, expires: map[string]time.Duration{}, counters: map[string]int64{}}
}

func toString(v interface{}) string {
	switch x := v.(type) {
	case string:
		return x
	case []byte:
		return string(x)
	case int:
		return "1"
	default:
		return ""
	}
}

func (m *mockRedisClient) Ping(ctx context.Context) error { return nil }

func (m *mockRedisClient) Get(ctx context.Context, key string) (string, error) {
	if m.GetFunc != nil {
		return m.GetFunc(ctx, key)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	if !ok {
		return "", Nil
	}
	return v, nil
}

func (m *mockRedisClient) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	if m.SetFunc != nil {
		return m.SetFunc(ctx, key, value, expiration)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = toString(value)
	m.expires[key] = expiration
	return nil
}

func (m *mockRedisClient) SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) (bool, error) {
	if m.SetNXFunc != nil {
		return m.SetNXFunc(ctx, key, value, expiration)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.data[key]; ok {
		return false, nil
	}
	m.data[key] = toString(value)
	m.expires[key] = expiration
	return true, nil
}

func (m *mockRedisClient) Incr(ctx context.Context, key string) (int64, error) {
	if m.IncrFunc != nil {
		return m.IncrFunc(ctx, key)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counters[key]++
	m.data[key] = strconv.FormatInt(m.counters[key], 10)
	return m.counters[key], nil
}

func (m *mockRedisClient) Expire(ctx context.Context, key string, expiration time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.expires[key] = expiration
	return nil
}

func (m *mockRedisClient) Del(ctx context.Context, keys ...string) error {
	if m.DelFunc != nil {
		return m.DelFunc(ctx, keys...)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.data, k)
	}
	return nil
}

func (m *mockRedisClient) DelIfEquals(ctx context.Context, key, value string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.data[key] != value {
		return false, nil
	}
	delete(m.data, key)
	return true, nil
}

func (m *mockRedisClient) Close() error { return nil }

// countingRepo records how often the store is hit.
type countingRepo struct {
	turns   []model.Turn
	fetches int
	appends int
	clears  int
	pruned  int64

	// afterFetch runs once the snapshot is taken, before it is returned.
	afterFetch func()
}

func (r *countingRepo) FetchRecent(ctx context.Context, chatID int64, limit int) ([]model.Turn, error) {
	r.fetches++
	out := tail(append([]model.Turn(nil), r.turns...), limit)
	if r.afterFetch != nil {
		r.afterFetch()
	}
	return out, nil
}

func (r *countingRepo) AppendBatch(ctx context.Context, chatID int64, turns []model.Turn) error {
	r.appends++
	r.turns = append(r.turns, turns...)
	return nil
}

func (r *countingRepo) Clear(ctx context.Context, chatID int64) error {
	r.clears++
	r.turns = nil
	return nil
}

func (r *countingRepo) PruneBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	return r.pruned, nil
}
