package consumer

import "errors"

var (
	// ErrNotRunning is returned when stopping a consumer that was never
	// started.
	ErrNotRunning = errors.New("consumer not running")

	// ErrAlreadyRunning is returned when starting a consumer twice.
	ErrAlreadyRunning = errors.New("consumer already running")

	// ErrStartFailed wraps failures while starting a consumer.
	ErrStartFailed = errors.New("failed to start consumer")

	// ErrStopFailed wraps failures while stopping a consumer.
	ErrStopFailed = errors.New("failed to stop consumer")

	// ErrNotImplemented is returned for consumer types the factory does
	// not know.
	ErrNotImplemented = errors.New("consumer type not implemented")

	// ErrNotSubscribed is returned when dispatching without a dispatcher
	// or subscribers configured.
	ErrNotSubscribed = errors.New("no subscribers registered")

	// ErrAckFailed wraps transport acknowledgment failures.
	ErrAckFailed = errors.New("failed to ack message")

	// ErrNackFailed wraps transport negative-acknowledgment failures.
	ErrNackFailed = errors.New("failed to nack message")

	// ErrProcessingFailed marks a message whose dispatch did not permit an
	// ack.
	ErrProcessingFailed = errors.New("message processing failed")

	// ErrDeserializationFailed wraps inbound payloads that could not be
	// decoded into a Message.
	ErrDeserializationFailed = errors.New("failed to deserialize message")

	// ErrRetryableSubscriber wraps a subscriber failure that the retry
	// middleware should handle.
	ErrRetryableSubscriber = errors.New("retryable subscriber failure")

	// ErrCriticalSubscriber short-circuits the middleware chain and forces
	// the transport to nack with requeue.
	ErrCriticalSubscriber = errors.New("critical subscriber failure")

	// ErrInvalidConfig is returned by config validation.
	ErrInvalidConfig = errors.New("invalid consumer config")

	// ErrShuttingDown marks operations refused during shutdown.
	ErrShuttingDown = errors.New("consumer shutting down")
)
