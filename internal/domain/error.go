package domain

import "errors"

var (
	// Common domain errors
	ErrNotFound           = errors.New("entity not found")
	ErrInvalidArgument    = errors.New("invalid argument")
	ErrInvalidExecContext = errors.New("invalid execution context")

	// Request pipeline errors
	ErrStoreUnavailable   = errors.New("history store unavailable")
	ErrCompletionFailure  = errors.New("completion failed")
	ErrRenderRejected     = errors.New("render rejected by transport")
	ErrTransportFailure   = errors.New("transport failure")
	ErrPersistenceFailure = errors.New("persisting turns failed")
	ErrEmptyAnswer        = errors.New("completion produced no answer")

	// Host guards
	ErrRateLimited = errors.New("too many messages")
	ErrChatBusy    = errors.New("a reply for this chat is still in progress")
)
