package bus

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"

	"github.com/dmitrymomot/eventbus/core/consumer"
	"github.com/dmitrymomot/eventbus/core/event"
	"github.com/dmitrymomot/eventbus/core/logger"
)

// SubscriberDispatcher adapts plain subscribers to the dispatcher contract
// the transports drive. Every subscriber for an event type runs
// concurrently; the message is ackable when at least one subscriber
// succeeded and none raised a critical error.
type SubscriberDispatcher struct {
	mu   sync.RWMutex
	subs map[string][]consumer.Subscriber
	log  *slog.Logger
}

// NewSubscriberDispatcher creates an empty subscriber registry.
func NewSubscriberDispatcher(log *slog.Logger) *SubscriberDispatcher {
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &SubscriberDispatcher{
		subs: make(map[string][]consumer.Subscriber),
		log:  log,
	}
}

// Subscribe registers a subscriber for an event type, composing its
// middleware chain outer-to-inner at registration time.
func (d *SubscriberDispatcher) Subscribe(eventType string, sub consumer.Subscriber, middlewares ...consumer.Middleware) {
	chained := consumer.Chain(sub, middlewares...)

	d.mu.Lock()
	defer d.mu.Unlock()
	d.subs[eventType] = append(d.subs[eventType], chained)
}

// Dispatch runs every subscriber registered for the event's type.
func (d *SubscriberDispatcher) Dispatch(ctx context.Context, messageID string, evt event.Event, ackHandle string, _ event.VisibilityExtender) bool {
	if evt.Type == "" {
		d.log.WarnContext(ctx, "event missing type, treating as handled",
			logger.MessageID(messageID))
		return true
	}

	d.mu.RLock()
	subs := d.subs[evt.Type]
	d.mu.RUnlock()

	if len(subs) == 0 {
		d.log.WarnContext(ctx, "no subscribers registered for event type",
			logger.MessageID(messageID),
			logger.EventType(evt.Type))
		return true
	}

	msg := event.Message{
		ID:        messageID,
		Body:      evt.Data,
		AckHandle: ackHandle,
		Metadata:  evt.Metadata,
	}

	errs := make([]error, len(subs))
	var wg sync.WaitGroup
	for i, sub := range subs {
		wg.Add(1)
		go func(i int, sub consumer.Subscriber) {
			defer wg.Done()
			errs[i] = sub(ctx, msg)
		}(i, sub)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		if errors.Is(err, consumer.ErrCriticalSubscriber) {
			d.log.ErrorContext(ctx, "critical subscriber failure",
				logger.MessageID(messageID),
				logger.EventType(evt.Type),
				logger.Error(err))
			return false
		}
		d.log.ErrorContext(ctx, "subscriber failed",
			logger.MessageID(messageID),
			logger.EventType(evt.Type),
			logger.Error(err))
	}

	if succeeded == 0 {
		d.log.ErrorContext(ctx, "all subscribers failed",
			logger.MessageID(messageID),
			logger.EventType(evt.Type))
		return false
	}
	return true
}
