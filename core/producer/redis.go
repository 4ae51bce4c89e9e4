package producer

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/dmitrymomot/eventbus/core/logger"
)

// RedisProducerConfig configures the Redis pub/sub producer.
type RedisProducerConfig struct {
	Channel string `env:"EVENTBUS_PRODUCER_CHANNEL,required"`
}

// Validate checks the config invariants.
func (c RedisProducerConfig) Validate() error {
	if c.Channel == "" {
		return fmt.Errorf("%w: channel is required", ErrInvalidConfig)
	}
	return nil
}

// RedisProducer publishes messages to a Redis pub/sub channel.
type RedisProducer struct {
	cfg    RedisProducerConfig
	client redis.UniversalClient
	log    *slog.Logger
}

// RedisProducerOption configures a RedisProducer.
type RedisProducerOption func(*RedisProducer)

// WithRedisProducerLogger configures structured logging.
func WithRedisProducerLogger(log *slog.Logger) RedisProducerOption {
	return func(p *RedisProducer) {
		if log != nil {
			p.log = log
		}
	}
}

// NewRedisProducer creates a producer over an existing Redis client.
func NewRedisProducer(client redis.UniversalClient, cfg RedisProducerConfig, opts ...RedisProducerOption) (*RedisProducer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if client == nil {
		return nil, fmt.Errorf("%w: nil redis client", ErrInvalidConfig)
	}

	p := &RedisProducer{
		cfg:    cfg,
		client: client,
		log:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	for _, opt := range opts {
		opt(p)
	}

	return p, nil
}

// Publish sends one message to the channel. Group and dedup hints do not
// apply to pub/sub and are ignored.
func (p *RedisProducer) Publish(ctx context.Context, body []byte, _ ...PublishOption) error {
	if err := p.client.Publish(ctx, p.cfg.Channel, body).Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrPublishFailed, err)
	}

	p.log.DebugContext(ctx, "message published",
		logger.Key("channel", p.cfg.Channel))
	return nil
}

// Close releases the underlying client.
func (p *RedisProducer) Close() error {
	return p.client.Close()
}
