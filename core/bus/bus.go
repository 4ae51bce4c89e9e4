package bus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"

	"github.com/dmitrymomot/eventbus/core/consumer"
	"github.com/dmitrymomot/eventbus/core/logger"
	"github.com/dmitrymomot/eventbus/core/producer"
)

// Bus owns one producer and/or one consumer and exposes the event system's
// top-level API: Subscribe, Publish, Start, Stop.
type Bus struct {
	cfg        Config
	producer   producer.Producer
	consumer   consumer.Consumer
	dispatcher consumer.Dispatcher
	subs       *SubscriberDispatcher
	log        *slog.Logger

	mu      sync.Mutex
	running bool
	startCh chan error
}

// Option configures a Bus.
type Option func(*Bus)

// WithLogger configures structured logging for the bus and the transports
// it constructs.
func WithLogger(log *slog.Logger) Option {
	return func(b *Bus) {
		if log != nil {
			b.log = log
		}
	}
}

// WithDispatcher substitutes the handler-graph dispatcher (or any other
// implementation) for the default subscriber dispatcher.
func WithDispatcher(dispatcher consumer.Dispatcher) Option {
	return func(b *Bus) {
		if dispatcher != nil {
			b.dispatcher = dispatcher
		}
	}
}

// New assembles a Bus from the config: the producer and consumer named by
// the type tags are constructed eagerly so misconfiguration fails fast.
func New(cfg Config, opts ...Option) (*Bus, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	b := &Bus{
		cfg: cfg,
		log: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	for _, opt := range opts {
		opt(b)
	}

	if b.dispatcher == nil {
		b.subs = NewSubscriberDispatcher(b.log)
		b.dispatcher = b.subs
	}

	ctx := context.Background()

	if cfg.Producer != nil {
		prod, err := newProducer(ctx, *cfg.Producer, b.log)
		if err != nil {
			return nil, err
		}
		b.producer = prod
	}

	if cfg.Consumer != nil {
		cons, err := newConsumer(*cfg.Consumer, b.dispatcher, b.log)
		if err != nil {
			return nil, err
		}
		b.consumer = cons
	}

	return b, nil
}

// Subscribe registers a subscriber for an event type with its middleware
// chain. Only valid for buses using the default subscriber dispatcher;
// buses built with WithDispatcher register handlers on their router
// instead.
func (b *Bus) Subscribe(eventType string, sub consumer.Subscriber, middlewares ...consumer.Middleware) error {
	if b.consumer == nil {
		return ErrConsumerNotConfigured
	}
	if b.subs == nil {
		return fmt.Errorf("%w: bus uses an external dispatcher", consumer.ErrNotSubscribed)
	}

	b.subs.Subscribe(eventType, sub, middlewares...)
	b.log.Debug("subscriber registered", logger.EventType(eventType))
	return nil
}

// ConsumerHandler returns the consumer as an http.Handler when the
// configured transport is push-based (webhook, websocket), so the caller
// can mount it on their mux.
func (b *Bus) ConsumerHandler() (http.Handler, bool) {
	if b.consumer == nil {
		return nil, false
	}
	h, ok := b.consumer.(http.Handler)
	return h, ok
}

// Publish marshals the payload to JSON and publishes it through the
// configured producer.
func (b *Bus) Publish(ctx context.Context, payload any, opts ...producer.PublishOption) error {
	if b.producer == nil {
		return ErrProducerNotConfigured
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("%w: encode payload: %w", producer.ErrPublishFailed, err)
	}

	return b.producer.Publish(ctx, body, opts...)
}

// Start launches the consumer. Pull consumers run their poll loop in the
// background; Err() surfaces a loop that stopped on its own.
func (b *Bus) Start(ctx context.Context) error {
	if b.consumer == nil {
		return ErrConsumerNotConfigured
	}

	b.mu.Lock()
	if b.running {
		b.mu.Unlock()
		return ErrAlreadyRunning
	}
	b.running = true
	b.startCh = make(chan error, 1)
	startCh := b.startCh
	b.mu.Unlock()

	go func() {
		err := b.consumer.Start(ctx)
		if err != nil && !errors.Is(err, context.Canceled) {
			b.log.Error("consumer stopped with error", logger.Error(err))
		}
		startCh <- err
	}()

	b.log.Info("event bus started")
	return nil
}

// Err returns the channel carrying the consumer's exit error. It yields
// once after the consumer loop returns.
func (b *Bus) Err() <-chan error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.startCh
}

// Stop shuts down the consumer and closes the producer.
func (b *Bus) Stop() error {
	b.mu.Lock()
	if !b.running {
		b.mu.Unlock()
		return ErrNotRunning
	}
	b.running = false
	b.mu.Unlock()

	var errs []error

	if b.consumer != nil {
		if err := b.consumer.Stop(); err != nil && !errors.Is(err, consumer.ErrNotRunning) {
			errs = append(errs, err)
		}
	}
	if b.producer != nil {
		if err := b.producer.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	b.log.Info("event bus stopped")
	return errors.Join(errs...)
}
