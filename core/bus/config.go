package bus

import (
	"fmt"

	"github.com/dmitrymomot/eventbus/core/consumer"
	"github.com/dmitrymomot/eventbus/core/event"
	"github.com/dmitrymomot/eventbus/core/producer"
)

// ConsumerConfig is a tagged consumer variant: Type selects the transport
// and the matching field carries its config.
type ConsumerConfig struct {
	Type      string
	SQS       *consumer.SQSConfig
	Webhook   *consumer.WebhookConfig
	Websocket *consumer.WebsocketConfig
}

// ProducerConfig is a tagged producer variant.
type ProducerConfig struct {
	Type  string
	SQS   *producer.SQSProducerConfig
	Redis *producer.RedisProducerConfig

	// RedisURL is the connection string the factory dials for the redis
	// producer.
	RedisURL string `env:"EVENTBUS_REDIS_URL"`
}

// Config assembles a Bus: at most one consumer, one producer, and the
// dispatch defaults. The defaults are checked by Validate; New does not
// pass them to any dispatcher.
type Config struct {
	Consumer *ConsumerConfig
	Producer *ProducerConfig

	// Consumers maps names to consumer configs for multi-queue setups;
	// lookup is by name or by transport type.
	Consumers map[string]ConsumerConfig

	DefaultFailurePolicy  string `env:"EVENTBUS_DEFAULT_FAILURE_POLICY" envDefault:"abort"`
	DefaultTimeoutSeconds int    `env:"EVENTBUS_DEFAULT_TIMEOUT_SECONDS" envDefault:"30"`
	DefaultRetryPolicy    string `env:"EVENTBUS_DEFAULT_RETRY_POLICY" envDefault:"exponential_backoff"`
}

// Retry policy tags accepted by DefaultRetryPolicy.
const (
	RetryPolicyNone        = "no_retry"
	RetryPolicyExponential = "exponential_backoff"
)

// Validate checks the config invariants. The per-attempt timeout default
// is bounded to [0, 30] seconds.
func (c Config) Validate() error {
	if policy := event.FailurePolicy(c.DefaultFailurePolicy); c.DefaultFailurePolicy != "" && !policy.Valid() {
		return fmt.Errorf("invalid default failure policy %q", c.DefaultFailurePolicy)
	}
	if c.DefaultTimeoutSeconds < 0 || c.DefaultTimeoutSeconds > 30 {
		return fmt.Errorf("default timeout seconds must be in [0, 30], got %d", c.DefaultTimeoutSeconds)
	}
	switch c.DefaultRetryPolicy {
	case "", RetryPolicyNone, RetryPolicyExponential:
	default:
		return fmt.Errorf("invalid default retry policy %q", c.DefaultRetryPolicy)
	}

	if c.Consumer != nil {
		if err := c.Consumer.validate(); err != nil {
			return err
		}
	}
	for name, cc := range c.Consumers {
		if err := cc.validate(); err != nil {
			return fmt.Errorf("consumer %q: %w", name, err)
		}
	}
	return nil
}

func (c ConsumerConfig) validate() error {
	switch c.Type {
	case consumer.TypeSQS:
		if c.SQS == nil {
			return fmt.Errorf("%w: missing sqs config", consumer.ErrInvalidConfig)
		}
		return c.SQS.Validate()
	case consumer.TypeWebhook:
		if c.Webhook == nil {
			return fmt.Errorf("%w: missing webhook config", consumer.ErrInvalidConfig)
		}
		return c.Webhook.Validate()
	case consumer.TypeWebsocket:
		if c.Websocket == nil {
			return fmt.Errorf("%w: missing websocket config", consumer.ErrInvalidConfig)
		}
		return c.Websocket.Validate()
	default:
		return fmt.Errorf("%w: %q", ErrTransportNotImplemented, c.Type)
	}
}

// LookupConsumer resolves a named consumer config by name first, then by
// transport type.
func (c Config) LookupConsumer(nameOrType string) (ConsumerConfig, error) {
	if cc, ok := c.Consumers[nameOrType]; ok {
		return cc, nil
	}
	for _, cc := range c.Consumers {
		if cc.Type == nameOrType {
			return cc, nil
		}
	}
	if c.Consumer != nil && c.Consumer.Type == nameOrType {
		return *c.Consumer, nil
	}
	return ConsumerConfig{}, fmt.Errorf("%w: %q", ErrUnknownConsumer, nameOrType)
}
