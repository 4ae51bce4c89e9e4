package consumer

import (
	"context"

	"github.com/dmitrymomot/eventbus/core/event"
)

// Dispatcher executes the handler graph for one decoded message and
// reports whether the outcome permits acking it. core/event.Dispatcher is
// the canonical implementation; core/bus provides a subscriber-based one.
type Dispatcher interface {
	Dispatch(ctx context.Context, messageID string, evt event.Event, ackHandle string, transport event.VisibilityExtender) bool
}

// Consumer is a running message transport.
type Consumer interface {
	// Start begins consuming. Blocking for pull transports; push
	// transports return once their endpoints are wired.
	Start(ctx context.Context) error

	// Stop shuts the consumer down, waiting for in-flight messages to
	// finish their current dispatch attempt.
	Stop() error

	// Ack acknowledges a fully processed message.
	Ack(ctx context.Context, msg event.Message) error

	// Nack negatively acknowledges a message. With requeue the transport
	// redelivers or dead-letters it.
	Nack(ctx context.Context, msg event.Message, requeue bool) error
}
