// File: internal/usecase/stream_renderer.go
package usecase

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"telegram-ai-relay/internal/domain"
	"telegram-ai-relay/internal/domain/model"
	"telegram-ai-relay/internal/domain/ports/adapter"
	"telegram-ai-relay/internal/infra/logging"
	"telegram-ai-relay/internal/infra/metrics"
)

// RenderConfig controls batching of streamed text into display updates.
type RenderConfig struct {
	// FlushMinChars triggers a flush once the unflushed tail reaches this many characters.
	FlushMinChars int
	// FlushMarkers triggers a flush when the unflushed tail contains any of these runes.
	FlushMarkers string
	// FlushInterval is the pause after each flush. Zero disables it.
	FlushInterval time.Duration
	// Formats is the fallback chain, most preferred first.
	Formats []adapter.Format
	// FinalTimeout bounds the last flush when the request context is already gone.
	FinalTimeout time.Duration
}

// RenderTarget is where one response is drawn. Handle is nil when the
// placeholder could not be sent; the final text is then sent as a new message.
type RenderTarget struct {
	ChatID int64
	Handle *adapter.MessageHandle
}

// RenderResult describes a finished render.
type RenderResult struct {
	Text        string
	Displayed   int
	Interrupted bool
	Err         error
}

type flushOutcome string

const (
	flushDisplayed  flushOutcome = "displayed"
	flushNoop       flushOutcome = "noop"
	flushSuppressed flushOutcome = "suppressed"
	flushSkipped    flushOutcome = "skipped"
)

type StreamRenderer struct {
	display adapter.Displayer
	cfg     RenderConfig
	log     *zerolog.Logger
	pause   func(ctx context.Context, d time.Duration)
}

func NewStreamRenderer(display adapter.Displayer, cfg RenderConfig, logger *zerolog.Logger) *StreamRenderer {
	if cfg.FlushMinChars <= 0 {
		cfg.FlushMinChars = 50
	}
	if len(cfg.Formats) == 0 {
		cfg.Formats = []adapter.Format{adapter.FormatPlain}
	}
	if cfg.FinalTimeout <= 0 {
		cfg.FinalTimeout = 5 * time.Second
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	l := logger.With().Str("component", "stream_renderer").Logger()
	return &StreamRenderer{display: display, cfg: cfg, log: &l, pause: sleepCtx}
}

func sleepCtx(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

// Render consumes chunks until the stream ends, fails or ctx is cancelled.
// Flushes happen one at a time on the calling goroutine.
func (r *StreamRenderer) Render(ctx context.Context, target RenderTarget, chunks <-chan adapter.StreamChunk) RenderResult {
	st := &model.StreamState{Phase: model.PhaseAccumulating}
	res := RenderResult{}

loop:
	for {
		select {
		case <-ctx.Done():
			res.Interrupted = true
			break loop
		case ch, ok := <-chunks:
			if !ok {
				break loop
			}
			if ch.Err != nil {
				// the provider reports our own cancellation as a stream error
				if ctx.Err() != nil {
					res.Interrupted = true
					break loop
				}
				st.Phase = model.PhaseDone
				metrics.IncFlush("aborted")
				res.Text = st.FullText
				res.Err = fmt.Errorf("%w: %w", domain.ErrCompletionFailure, ch.Err)
				return res
			}
			if ch.Delta != "" {
				st.Append(ch.Delta)
			}
			if ch.Done {
				break loop
			}
			if r.shouldFlush(st) {
				if r.flush(ctx, target, st, false) == flushDisplayed {
					res.Displayed++
				}
				st.Phase = model.PhaseAccumulating
				r.pause(ctx, r.cfg.FlushInterval)
			}
		}
	}

	st.Phase = model.PhaseFinalizing
	fctx := ctx
	if ctx.Err() != nil {
		var cancel context.CancelFunc
		fctx, cancel = context.WithTimeout(context.WithoutCancel(ctx), r.cfg.FinalTimeout)
		defer cancel()
	}
	if r.flush(fctx, target, st, true) == flushDisplayed {
		res.Displayed++
	}
	st.Phase = model.PhaseDone

	res.Text = st.FullText
	return res
}

func (r *StreamRenderer) shouldFlush(st *model.StreamState) bool {
	if st.Pending == "" {
		return false
	}
	if st.PendingRunes() >= r.cfg.FlushMinChars {
		return true
	}
	return r.cfg.FlushMarkers != "" && strings.ContainsAny(st.Pending, r.cfg.FlushMarkers)
}

// flush pushes FullText through the format chain. Tiers are walked in order
// and never revisited within one call.
func (r *StreamRenderer) flush(ctx context.Context, target RenderTarget, st *model.StreamState, final bool) flushOutcome {
	if !final {
		st.Phase = model.PhaseFlushing
	}
	log := logging.With(ctx, r.log)

	if !st.NeedsDisplay() {
		st.Skip()
		metrics.IncFlush(string(flushSuppressed))
		return flushSuppressed
	}

	if target.Handle == nil {
		if !final {
			st.Skip()
			metrics.IncFlush(string(flushSkipped))
			return flushSkipped
		}
		if err := r.display.SendPlain(ctx, target.ChatID, st.FullText); err != nil {
			log.Warn().Err(err).Msg("final text could not be sent")
			metrics.IncFlush(string(flushSkipped))
			return flushSkipped
		}
		st.MarkDisplayed(string(adapter.FormatPlain))
		metrics.IncFlush(string(flushDisplayed))
		return flushDisplayed
	}

	for _, format := range r.cfg.Formats {
		err := r.display.EditDisplayed(ctx, target.Handle, st.FullText, format)
		switch adapter.ReasonOf(err) {
		case adapter.ReasonNone:
			metrics.IncFormatAttempt(string(format), "ok")
			st.MarkDisplayed(string(format))
			metrics.IncFlush(string(flushDisplayed))
			return flushDisplayed
		case adapter.ReasonNotModified:
			metrics.IncFormatAttempt(string(format), "not_modified")
			st.MarkDisplayed("")
			metrics.IncFlush(string(flushNoop))
			return flushNoop
		case adapter.ReasonMalformed:
			metrics.IncFormatAttempt(string(format), "rejected")
			log.Debug().Err(err).Str("format", string(format)).Msg("format rejected, trying next tier")
		default:
			metrics.IncFormatAttempt(string(format), "failed")
			log.Warn().Err(err).Str("format", string(format)).Bool("final", final).Msg("display update skipped")
			st.Skip()
			metrics.IncFlush(string(flushSkipped))
			return flushSkipped
		}
	}

	log.Warn().Bool("final", final).Msg("every format tier rejected the update")
	st.Skip()
	metrics.IncFlush(string(flushSkipped))
	return flushSkipped
}
