// File: internal/domain/ports/adapter/telegram.go
package adapter

import (
	"context"
	"errors"
	"fmt"

	"telegram-ai-relay/internal/domain"
)

// Format is a display tier understood by the transport.
type Format string

const (
	FormatHTML       Format = "html"
	FormatMarkdown   Format = "markdown"
	FormatMarkdownV2 Format = "markdownv2"
	FormatPlain      Format = "plain"
)

func (f Format) Valid() bool {
	switch f {
	case FormatHTML, FormatMarkdown, FormatMarkdownV2, FormatPlain:
		return true
	}
	return false
}

// MessageHandle addresses a message that can be edited later.
type MessageHandle struct {
	ChatID    int64
	MessageID int
}

// RejectReason classifies why an edit did not apply.
type RejectReason int

const (
	// ReasonNone means the edit applied.
	ReasonNone RejectReason = iota
	// ReasonNotModified means the content is already displayed.
	ReasonNotModified
	// ReasonMalformed means the text is not valid for the requested format.
	ReasonMalformed
	// ReasonTransport covers every other failure.
	ReasonTransport
)

func (r RejectReason) String() string {
	switch r {
	case ReasonNone:
		return "none"
	case ReasonNotModified:
		return "not_modified"
	case ReasonMalformed:
		return "malformed"
	case ReasonTransport:
		return "transport"
	}
	return "unknown"
}

// EditRejection is returned by Displayer implementations when an edit fails.
type EditRejection struct {
	Reason RejectReason
	Format Format
	Err    error
}

func (e *EditRejection) Error() string {
	return fmt.Sprintf("edit rejected (%s, %s): %v", e.Reason, e.Format, e.Err)
}

func (e *EditRejection) Unwrap() error { return e.Err }

// Is lets callers match the rejection against the domain sentinels.
func (e *EditRejection) Is(target error) bool {
	switch target {
	case domain.ErrRenderRejected:
		return e.Reason == ReasonMalformed || e.Reason == ReasonNotModified
	case domain.ErrTransportFailure:
		return e.Reason == ReasonTransport
	}
	return false
}

// ReasonOf extracts the rejection reason. Errors that are not an
// EditRejection count as transport failures.
func ReasonOf(err error) RejectReason {
	if err == nil {
		return ReasonNone
	}
	var rej *EditRejection
	if errors.As(err, &rej) {
		return rej.Reason
	}
	return ReasonTransport
}

// Displayer is the set of primitives the streaming renderer draws with.
type Displayer interface {
	SendPlaceholder(ctx context.Context, chatID int64) (*MessageHandle, error)
	EditDisplayed(ctx context.Context, h *MessageHandle, text string, format Format) error
	SendPlain(ctx context.Context, chatID int64, text string) error
}

// TelegramBotAdapter is the transport used by the application layer.
type TelegramBotAdapter interface {
	Displayer
	SendMessage(ctx context.Context, chatID int64, text string) error
	SendTyping(ctx context.Context, chatID int64) error
}
