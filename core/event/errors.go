package event

import "errors"

var (
	// ErrUnknownDependency is returned when a handler depends on a name
	// that is not registered for the same event type.
	ErrUnknownDependency = errors.New("handler depends on unknown handler")

	// ErrCycleDetected is returned when a registration would close a
	// dependency cycle.
	ErrCycleDetected = errors.New("circular dependency detected")

	// ErrDuplicateHandler is returned when a handler name is already
	// registered for the event type.
	ErrDuplicateHandler = errors.New("handler name already registered")

	// ErrNilHandler is returned when a nil handler is registered.
	ErrNilHandler = errors.New("handler cannot be nil")

	// ErrNoHandlers describes an event type with no registered handlers.
	// No function in this package returns it; Dispatch treats such an
	// event as handled.
	ErrNoHandlers = errors.New("no handlers registered for event type")

	// ErrHandlerTimeout is recorded when a handler attempt exceeds its
	// per-attempt timeout.
	ErrHandlerTimeout = errors.New("handler attempt timed out")

	// ErrDependencyResolution is recorded when an injected dependency
	// resolver fails; the failure counts as an attempt failure.
	ErrDependencyResolution = errors.New("failed to resolve handler dependency")

	// ErrUnknownMessage is returned when loading state for a message the
	// store has never seen.
	ErrUnknownMessage = errors.New("unknown message")
)
