package bus

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dmitrymomot/eventbus/core/consumer"
	"github.com/dmitrymomot/eventbus/core/producer"
	intredis "github.com/dmitrymomot/eventbus/integration/database/redis"
)

// newConsumer maps a consumer config's type tag to its constructor.
func newConsumer(cfg ConsumerConfig, dispatcher consumer.Dispatcher, log *slog.Logger) (consumer.Consumer, error) {
	switch cfg.Type {
	case consumer.TypeSQS:
		return consumer.NewSQSConsumer(*cfg.SQS, dispatcher, consumer.WithSQSLogger(log))
	case consumer.TypeWebhook:
		return consumer.NewWebhookConsumer(*cfg.Webhook, dispatcher, consumer.WithWebhookLogger(log))
	case consumer.TypeWebsocket:
		return consumer.NewWebsocketConsumer(*cfg.Websocket, dispatcher, consumer.WithWebsocketLogger(log))
	default:
		return nil, fmt.Errorf("%w: %w: %q", ErrTransportNotImplemented, consumer.ErrNotImplemented, cfg.Type)
	}
}

// newProducer maps a producer config's type tag to its constructor.
func newProducer(ctx context.Context, cfg ProducerConfig, log *slog.Logger) (producer.Producer, error) {
	switch cfg.Type {
	case producer.TypeSQS:
		if cfg.SQS == nil {
			return nil, fmt.Errorf("%w: missing sqs producer config", producer.ErrInvalidConfig)
		}
		return producer.NewSQSProducer(ctx, *cfg.SQS, producer.WithSQSProducerLogger(log))
	case producer.TypeRedis:
		if cfg.Redis == nil {
			return nil, fmt.Errorf("%w: missing redis producer config", producer.ErrInvalidConfig)
		}
		client, err := intredis.Connect(ctx, intredis.Config{ConnectionURL: cfg.RedisURL})
		if err != nil {
			return nil, fmt.Errorf("connect redis producer: %w", err)
		}
		return producer.NewRedisProducer(client, *cfg.Redis, producer.WithRedisProducerLogger(log))
	default:
		return nil, fmt.Errorf("%w: %w: %q", ErrTransportNotImplemented, producer.ErrNotImplemented, cfg.Type)
	}
}
