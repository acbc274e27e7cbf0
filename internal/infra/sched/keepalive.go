package sched

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// KeepAlive pings the service's public health endpoint so free hosting
// tiers do not put it to sleep.
type KeepAlive struct {
	url      string
	interval time.Duration
	client   *http.Client
	log      *zerolog.Logger
}

func NewKeepAlive(baseURL string, interval time.Duration, logger *zerolog.Logger) *KeepAlive {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	l := logger.With().Str("component", "KeepAlive").Logger()
	return &KeepAlive{
		url:      strings.TrimRight(baseURL, "/") + "/health",
		interval: interval,
		client:   &http.Client{Timeout: 10 * time.Second},
		log:      &l,
	}
}

func (k *KeepAlive) Run(ctx context.Context) error {
	k.log.Info().Str("url", k.url).Dur("interval", k.interval).Msg("Starting keep-alive")
	ticker := time.NewTicker(k.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			k.log.Info().Msg("Stopping keep-alive")
			return ctx.Err()
		case <-ticker.C:
			if err := k.Ping(ctx); err != nil {
				k.log.Warn().Err(err).Msg("keep-alive ping failed")
			}
		}
	}
}

// Ping performs one health request.
func (k *KeepAlive) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, k.url, nil)
	if err != nil {
		return err
	}
	resp, err := k.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode >= 300 {
		return fmt.Errorf("keep-alive: status %d", resp.StatusCode)
	}
	k.log.Debug().Int("status", resp.StatusCode).Msg("keep-alive ok")
	return nil
}
