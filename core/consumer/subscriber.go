package consumer

import (
	"context"

	"github.com/dmitrymomot/eventbus/core/event"
)

// Subscriber handles one delivered message in the bus flavor of the
// consumer API. Returning ErrCriticalSubscriber (wrapped or bare)
// short-circuits the middleware chain and forces the transport to nack
// with requeue.
type Subscriber func(ctx context.Context, msg event.Message) error

// Middleware wraps a Subscriber and produces another Subscriber.
type Middleware func(Subscriber) Subscriber

// Chain composes middlewares outer-to-inner: Chain(sub, m1, m2, m3)
// yields the call order m1 -> m2 -> m3 -> sub.
func Chain(sub Subscriber, middlewares ...Middleware) Subscriber {
	for i := len(middlewares) - 1; i >= 0; i-- {
		sub = middlewares[i](sub)
	}
	return sub
}
