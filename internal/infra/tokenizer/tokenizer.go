// Package tokenizer estimates prompt sizes for logging and metrics.
package tokenizer

import (
	"sync"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"
	"github.com/rs/zerolog"

	"telegram-ai-relay/internal/domain/ports/adapter"
)

// perMessageOverhead approximates the role and separator tokens of the chat format.
const perMessageOverhead = 4

// Counter uses the model's BPE encoding when tiktoken knows it, cl100k_base
// for unknown models, and a rune/4 estimate when no encoding can be loaded.
type Counter struct {
	mu     sync.Mutex
	cache  map[string]*tiktoken.Tiktoken
	failed map[string]bool
	encFor func(model string) (*tiktoken.Tiktoken, error)
	logger *zerolog.Logger
}

func New(logger *zerolog.Logger) *Counter {
	l := logger.With().Str("component", "tokenizer").Logger()
	return &Counter{
		cache:  map[string]*tiktoken.Tiktoken{},
		failed: map[string]bool{},
		encFor: loadEncoding,
		logger: &l,
	}
}

func loadEncoding(model string) (*tiktoken.Tiktoken, error) {
	if enc, err := tiktoken.EncodingForModel(model); err == nil {
		return enc, nil
	}
	return tiktoken.GetEncoding("cl100k_base")
}

func (c *Counter) encoding(model string) *tiktoken.Tiktoken {
	c.mu.Lock()
	defer c.mu.Unlock()
	if enc, ok := c.cache[model]; ok {
		return enc
	}
	if c.failed[model] {
		return nil
	}
	enc, err := c.encFor(model)
	if err != nil {
		c.failed[model] = true
		c.logger.Debug().Err(err).Str("model", model).Msg("no tokenizer encoding, estimating")
		return nil
	}
	c.cache[model] = enc
	return enc
}

// Count returns the token count of a single text.
func (c *Counter) Count(model, text string) int {
	if enc := c.encoding(model); enc != nil {
		return len(enc.Encode(text, nil, nil))
	}
	return estimate(text)
}

func (c *Counter) CountMessages(model string, msgs []adapter.Message) int {
	total := 0
	for _, m := range msgs {
		total += c.Count(model, m.Content) + perMessageOverhead
	}
	return total
}

func estimate(text string) int {
	n := utf8.RuneCountInString(text)
	if n == 0 {
		return 0
	}
	return (n + 3) / 4
}
