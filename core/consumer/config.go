package consumer

import (
	"fmt"
	"time"
)

// Transport kind tags used by config records and the bus factory.
const (
	TypeSQS       = "sqs"
	TypeWebhook   = "webhook"
	TypeWebsocket = "websocket"
)

// SQSConfig configures the pull consumer.
type SQSConfig struct {
	QueueURL string `env:"EVENTBUS_QUEUE_URL,required"`
	DLQURL   string `env:"EVENTBUS_DLQ_URI"`

	// VisibilityTimeout hides received messages from other consumers;
	// it must exceed WaitTime or the long poll itself could let the queue
	// redeliver mid-receive.
	VisibilityTimeout int `env:"EVENTBUS_VISIBILITY_TIMEOUT" envDefault:"30"`
	WaitTime          int `env:"EVENTBUS_WAIT_TIME" envDefault:"20"`

	MaxMessages           int           `env:"EVENTBUS_MAX_MESSAGES" envDefault:"10"`
	PollInterval          time.Duration `env:"EVENTBUS_POLL_INTERVAL" envDefault:"1s"`
	MaxConcurrentMessages int           `env:"EVENTBUS_MAX_CONCURRENT_MESSAGES" envDefault:"10"`

	// MaxRetries bounds consecutive receive failures before the consumer
	// stops itself.
	MaxRetries int `env:"EVENTBUS_MAX_RETRIES" envDefault:"3"`

	ShutdownTimeout time.Duration `env:"EVENTBUS_SHUTDOWN_TIMEOUT" envDefault:"30s"`

	// AWS connection overrides, used for local development against
	// SQS-compatible endpoints.
	Region          string `env:"EVENTBUS_AWS_REGION"`
	Endpoint        string `env:"EVENTBUS_AWS_ENDPOINT"`
	AccessKeyID     string `env:"EVENTBUS_AWS_ACCESS_KEY_ID"`
	SecretAccessKey string `env:"EVENTBUS_AWS_SECRET_ACCESS_KEY"`
}

// Validate checks the config invariants.
func (c SQSConfig) Validate() error {
	if c.QueueURL == "" {
		return fmt.Errorf("%w: queue url is required", ErrInvalidConfig)
	}
	if c.WaitTime < 0 || c.WaitTime > 20 {
		return fmt.Errorf("%w: wait time must be in [0, 20], got %d", ErrInvalidConfig, c.WaitTime)
	}
	if c.VisibilityTimeout <= c.WaitTime {
		return fmt.Errorf("%w: visibility timeout (%d) must exceed wait time (%d)",
			ErrInvalidConfig, c.VisibilityTimeout, c.WaitTime)
	}
	if c.MaxMessages < 1 || c.MaxMessages > 10 {
		return fmt.Errorf("%w: max messages must be in [1, 10], got %d", ErrInvalidConfig, c.MaxMessages)
	}
	if c.MaxConcurrentMessages < 1 {
		return fmt.Errorf("%w: max concurrent messages must be at least 1", ErrInvalidConfig)
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("%w: max retries must not be negative", ErrInvalidConfig)
	}
	return nil
}

// DefaultSQSConfig returns the defaults used without environment loading.
func DefaultSQSConfig(queueURL string) SQSConfig {
	return SQSConfig{
		QueueURL:              queueURL,
		VisibilityTimeout:     30,
		WaitTime:              20,
		MaxMessages:           10,
		PollInterval:          time.Second,
		MaxConcurrentMessages: 10,
		MaxRetries:            3,
		ShutdownTimeout:       30 * time.Second,
	}
}

// WebhookConfig configures the HTTP push consumer.
type WebhookConfig struct {
	Endpoint string `env:"EVENTBUS_WEBHOOK_ENDPOINT" envDefault:"/events"`

	// Secret enables HMAC-SHA256 signature verification of the raw body
	// against the X-Webhook-Signature header. Empty disables verification.
	Secret string `env:"EVENTBUS_WEBHOOK_SECRET"`

	// MaxBodyBytes bounds inbound payload size.
	MaxBodyBytes int64 `env:"EVENTBUS_WEBHOOK_MAX_BODY_BYTES" envDefault:"1048576"`
}

// Validate checks the config invariants.
func (c WebhookConfig) Validate() error {
	if c.Endpoint == "" {
		return fmt.Errorf("%w: webhook endpoint is required", ErrInvalidConfig)
	}
	if c.MaxBodyBytes < 1 {
		return fmt.Errorf("%w: max body bytes must be positive", ErrInvalidConfig)
	}
	return nil
}

// DefaultWebhookConfig returns the defaults used without environment loading.
func DefaultWebhookConfig() WebhookConfig {
	return WebhookConfig{
		Endpoint:     "/events",
		MaxBodyBytes: 1 << 20,
	}
}

// WebsocketConfig configures the WebSocket push consumer.
type WebsocketConfig struct {
	Endpoint        string `env:"EVENTBUS_WS_ENDPOINT" envDefault:"/events/ws"`
	ReadBufferSize  int    `env:"EVENTBUS_WS_READ_BUFFER" envDefault:"1024"`
	WriteBufferSize int    `env:"EVENTBUS_WS_WRITE_BUFFER" envDefault:"1024"`
}

// Validate checks the config invariants.
func (c WebsocketConfig) Validate() error {
	if c.Endpoint == "" {
		return fmt.Errorf("%w: websocket endpoint is required", ErrInvalidConfig)
	}
	return nil
}

// DefaultWebsocketConfig returns the defaults used without environment loading.
func DefaultWebsocketConfig() WebsocketConfig {
	return WebsocketConfig{
		Endpoint:        "/events/ws",
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
	}
}
