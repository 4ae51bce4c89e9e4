package bus

import "errors"

var (
	// ErrTransportNotImplemented is returned for transport kinds no
	// factory entry exists for.
	ErrTransportNotImplemented = errors.New("transport type not implemented")

	// ErrConsumerNotConfigured is returned by consumer operations on a
	// bus built without one.
	ErrConsumerNotConfigured = errors.New("consumer not configured")

	// ErrProducerNotConfigured is returned by Publish on a bus built
	// without a producer.
	ErrProducerNotConfigured = errors.New("producer not configured")

	// ErrAlreadyRunning is returned when starting a running bus.
	ErrAlreadyRunning = errors.New("bus already running")

	// ErrNotRunning is returned when stopping a stopped bus.
	ErrNotRunning = errors.New("bus not running")

	// ErrUnknownConsumer is returned by named-consumer lookup misses.
	ErrUnknownConsumer = errors.New("unknown consumer")
)
