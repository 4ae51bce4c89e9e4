package event

import (
	"context"
	"fmt"
	"strings"
)

// StateStore persists per-message handler-state transitions and results.
// The dispatcher writes through the store after every terminal transition;
// store errors are logged by the dispatcher and never fail a message.
// Implementations must be safe for concurrent use.
type StateStore interface {
	// InitMessage records a fresh message with every named handler
	// pending. Idempotent: re-initializing an existing message resets it.
	InitMessage(ctx context.Context, messageID string, handlerNames []string) error

	// SaveHandlerResult records a handler's terminal result and attempt
	// count, and caches the result for dependents.
	SaveHandlerResult(ctx context.Context, messageID, name string, result any, attempts int, status HandlerStatus) error

	// MarkHandlerFailed records a handler failure with its serialized
	// error.
	MarkHandlerFailed(ctx context.Context, messageID, name string, handlerErr error) error

	// LoadMessageState returns the stored state for a message, or
	// ErrUnknownMessage if the store has never seen it.
	LoadMessageState(ctx context.Context, messageID string) (*MessageState, error)

	// SetOverallStatus records the message's final dispatch outcome.
	SetOverallStatus(ctx context.Context, messageID string, status OverallStatus) error

	// Close releases store resources.
	Close() error
}

// serializeError converts a handler error into its stored form. The type
// field carries the dynamic Go type name, the closest analogue of an
// exception class.
func serializeError(err error) *HandlerError {
	if err == nil {
		return nil
	}
	return &HandlerError{
		Type:    strings.TrimLeft(fmt.Sprintf("%T", err), "*"),
		Message: err.Error(),
	}
}
