package producer

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"github.com/dmitrymomot/eventbus/core/logger"
)

// SQSProducerConfig configures the SQS producer.
type SQSProducerConfig struct {
	QueueURL string `env:"EVENTBUS_PRODUCER_QUEUE_URL,required"`

	// AWS connection overrides for local development.
	Region          string `env:"EVENTBUS_AWS_REGION"`
	Endpoint        string `env:"EVENTBUS_AWS_ENDPOINT"`
	AccessKeyID     string `env:"EVENTBUS_AWS_ACCESS_KEY_ID"`
	SecretAccessKey string `env:"EVENTBUS_AWS_SECRET_ACCESS_KEY"`
}

// Validate checks the config invariants.
func (c SQSProducerConfig) Validate() error {
	if c.QueueURL == "" {
		return fmt.Errorf("%w: queue url is required", ErrInvalidConfig)
	}
	return nil
}

// SQSSender is the subset of the SQS API the producer uses.
type SQSSender interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// SQSProducer publishes messages to an SQS queue.
type SQSProducer struct {
	cfg    SQSProducerConfig
	client SQSSender
	log    *slog.Logger
}

// SQSProducerOption configures an SQSProducer.
type SQSProducerOption func(*SQSProducer)

// WithSQSSender substitutes the SQS client, mainly for tests.
func WithSQSSender(client SQSSender) SQSProducerOption {
	return func(p *SQSProducer) {
		if client != nil {
			p.client = client
		}
	}
}

// WithSQSProducerLogger configures structured logging.
func WithSQSProducerLogger(log *slog.Logger) SQSProducerOption {
	return func(p *SQSProducer) {
		if log != nil {
			p.log = log
		}
	}
}

// NewSQSProducer creates a producer for the configured queue.
func NewSQSProducer(ctx context.Context, cfg SQSProducerConfig, opts ...SQSProducerOption) (*SQSProducer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	p := &SQSProducer{
		cfg: cfg,
		log: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	for _, opt := range opts {
		opt(p)
	}

	if p.client == nil {
		var loadOpts []func(*awsconfig.LoadOptions) error
		if cfg.Region != "" {
			loadOpts = append(loadOpts, awsconfig.WithRegion(cfg.Region))
		}
		if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
			loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
				credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")))
		}

		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
		if err != nil {
			return nil, fmt.Errorf("load aws config: %w", err)
		}

		p.client = sqs.NewFromConfig(awsCfg, func(o *sqs.Options) {
			if cfg.Endpoint != "" {
				o.BaseEndpoint = aws.String(cfg.Endpoint)
			}
		})
	}

	return p, nil
}

// Publish sends one message to the queue.
func (p *SQSProducer) Publish(ctx context.Context, body []byte, opts ...PublishOption) error {
	options := applyPublishOptions(opts)

	input := &sqs.SendMessageInput{
		QueueUrl:    aws.String(p.cfg.QueueURL),
		MessageBody: aws.String(string(body)),
	}
	if options.groupID != "" {
		input.MessageGroupId = aws.String(options.groupID)
	}
	if options.dedupID != "" {
		input.MessageDeduplicationId = aws.String(options.dedupID)
	}

	out, err := p.client.SendMessage(ctx, input)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrPublishFailed, err)
	}

	p.log.DebugContext(ctx, "message published",
		logger.MessageID(aws.ToString(out.MessageId)),
		logger.Key("queue_url", p.cfg.QueueURL))
	return nil
}

// Close is a no-op: the SQS client holds no persistent connection.
func (p *SQSProducer) Close() error { return nil }
