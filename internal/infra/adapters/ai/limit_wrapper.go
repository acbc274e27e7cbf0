package ai

import (
	"context"
	"sync"
	"time"

	"telegram-ai-relay/internal/domain/ports/adapter"
	"telegram-ai-relay/internal/infra/metrics"
)

// Compile-time check
var _ adapter.AIServiceAdapter = (*limitedAI)(nil)

// limitedAI caps in-flight provider calls and records call metrics. A stream
// keeps its slot until the provider channel is drained.
type limitedAI struct {
	inner adapter.AIServiceAdapter
	sem   chan struct{}
}

func NewLimitedAI(inner adapter.AIServiceAdapter, maxConcurrent int) adapter.AIServiceAdapter {
	l := &limitedAI{inner: inner}
	if maxConcurrent > 0 {
		l.sem = make(chan struct{}, maxConcurrent)
	}
	return l
}

func (l *limitedAI) Name() string { return l.inner.Name() }

func (l *limitedAI) acquire(ctx context.Context) (func(), error) {
	if l.sem == nil {
		return func() {}, nil
	}
	select {
	case l.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	var once sync.Once
	return func() { once.Do(func() { <-l.sem }) }, nil
}

func (l *limitedAI) Chat(ctx context.Context, req adapter.ChatRequest) (string, adapter.Usage, error) {
	release, err := l.acquire(ctx)
	if err != nil {
		return "", adapter.Usage{}, err
	}
	defer release()

	start := time.Now()
	out, u, err := l.inner.Chat(ctx, req)
	metrics.ObserveChatUsage(l.inner.Name(), req.Model, "chat", u.PromptTokens, u.CompletionTokens,
		time.Since(start).Milliseconds(), err == nil)
	return out, u, err
}

func (l *limitedAI) ChatStream(ctx context.Context, req adapter.ChatRequest) (<-chan adapter.StreamChunk, error) {
	release, err := l.acquire(ctx)
	if err != nil {
		return nil, err
	}
	start := time.Now()
	in, err := l.inner.ChatStream(ctx, req)
	if err != nil {
		release()
		metrics.ObserveChatUsage(l.inner.Name(), req.Model, "stream", 0, 0, time.Since(start).Milliseconds(), false)
		metrics.IncStream(l.inner.Name(), "error")
		return nil, err
	}

	out := make(chan adapter.StreamChunk, cap(in))
	go func() {
		defer close(out)
		defer release()

		outcome := "canceled"
		defer func() {
			metrics.ObserveChatUsage(l.inner.Name(), req.Model, "stream", 0, 0,
				time.Since(start).Milliseconds(), outcome == "done")
			metrics.IncStream(l.inner.Name(), outcome)
		}()

		for c := range in {
			switch {
			case c.Err != nil:
				outcome = "error"
			case c.Done:
				outcome = "done"
			}
			select {
			case out <- c:
			case <-ctx.Done():
				// drain so the provider goroutine can exit
				for range in {
				}
				return
			}
		}
	}()
	return out, nil
}
