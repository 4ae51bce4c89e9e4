package producer

import (
	"context"
	"errors"
)

var (
	// ErrPublishFailed wraps transport-level publish failures.
	ErrPublishFailed = errors.New("failed to publish message")

	// ErrNotImplemented is returned for producer types the factory does
	// not know.
	ErrNotImplemented = errors.New("producer type not implemented")

	// ErrInvalidConfig is returned by config validation.
	ErrInvalidConfig = errors.New("invalid producer config")
)

// Transport kind tags used by config records and the bus factory.
const (
	TypeSQS   = "sqs"
	TypeRedis = "redis"
)

// Producer publishes an outbound message to its transport.
type Producer interface {
	// Publish delivers one encoded payload. Options carry
	// transport-specific hints and are ignored by transports that do not
	// support them.
	Publish(ctx context.Context, body []byte, opts ...PublishOption) error

	// Close releases transport resources.
	Close() error
}

// PublishOption carries per-message delivery hints.
type PublishOption func(*publishOptions)

type publishOptions struct {
	groupID string
	dedupID string
}

// WithGroupID sets the ordering group for FIFO queues.
func WithGroupID(groupID string) PublishOption {
	return func(o *publishOptions) {
		o.groupID = groupID
	}
}

// WithDedupID sets the deduplication ID for FIFO queues.
func WithDedupID(dedupID string) PublishOption {
	return func(o *publishOptions) {
		o.dedupID = dedupID
	}
}

func applyPublishOptions(opts []PublishOption) publishOptions {
	var options publishOptions
	for _, opt := range opts {
		opt(&options)
	}
	return options
}
