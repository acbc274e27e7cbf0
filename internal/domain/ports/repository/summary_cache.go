package repository

import "context"

// SummaryCache remembers synopses of overflow transcripts. Implementations
// derive their own keys from model and transcript.
type SummaryCache interface {
	GetSummary(ctx context.Context, model, transcript string) (string, bool, error)
	SetSummary(ctx context.Context, model, transcript, summary string) error
}
