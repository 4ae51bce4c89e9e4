package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/aws/smithy-go"
	"github.com/google/uuid"

	"github.com/dmitrymomot/eventbus/core/event"
	"github.com/dmitrymomot/eventbus/core/logger"
)

// deleteBatchSize is the SQS limit on entries per batch delete call.
const deleteBatchSize = 10

// SQSClient is the subset of the SQS API the consumer uses. The concrete
// *sqs.Client satisfies it; tests substitute fakes.
type SQSClient interface {
	ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
	DeleteMessageBatch(ctx context.Context, params *sqs.DeleteMessageBatchInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageBatchOutput, error)
	ChangeMessageVisibility(ctx context.Context, params *sqs.ChangeMessageVisibilityInput, optFns ...func(*sqs.Options)) (*sqs.ChangeMessageVisibilityOutput, error)
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// SQSConsumer long-polls an SQS queue and drives the dispatcher for every
// received message. In-flight messages are bounded by the configured
// concurrency; ack and nack are mutually exclusive per message.
type SQSConsumer struct {
	cfg        SQSConfig
	client     SQSClient
	dispatcher Dispatcher
	consumerID uuid.UUID

	sem chan struct{}
	wg  sync.WaitGroup
	mu  sync.RWMutex

	log *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	// Observability metrics
	messagesReceived atomic.Int64
	messagesAcked    atomic.Int64
	messagesNacked   atomic.Int64
	activeMessages   atomic.Int32
}

// SQSConsumerStats provides observability metrics for monitoring and debugging.
type SQSConsumerStats struct {
	MessagesReceived int64
	MessagesAcked    int64
	MessagesNacked   int64
	ActiveMessages   int32
	IsRunning        bool
}

// SQSOption configures an SQSConsumer.
type SQSOption func(*SQSConsumer)

// WithSQSClient substitutes the SQS client, mainly for tests and
// SQS-compatible local endpoints.
func WithSQSClient(client SQSClient) SQSOption {
	return func(c *SQSConsumer) {
		if client != nil {
			c.client = client
		}
	}
}

// WithSQSLogger configures structured logging for consumer operations.
// Use slog.New(slog.NewTextHandler(io.Discard, nil)) to disable logging.
func WithSQSLogger(log *slog.Logger) SQSOption {
	return func(c *SQSConsumer) {
		if log != nil {
			c.log = log
		}
	}
}

// NewSQSConsumer creates a pull consumer for the configured queue.
func NewSQSConsumer(cfg SQSConfig, dispatcher Dispatcher, opts ...SQSOption) (*SQSConsumer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if dispatcher == nil {
		return nil, fmt.Errorf("%w: nil dispatcher", ErrInvalidConfig)
	}

	c := &SQSConsumer{
		cfg:        cfg,
		dispatcher: dispatcher,
		consumerID: uuid.New(),
		sem:        make(chan struct{}, cfg.MaxConcurrentMessages),
		log:        slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c, nil
}

// Start opens the queue connection and runs the poll loop until the
// context is cancelled, Stop is called, or the receive retry budget is
// exhausted.
func (c *SQSConsumer) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.cancel != nil {
		c.mu.Unlock()
		return ErrAlreadyRunning
	}

	if c.client == nil {
		client, err := newSQSClient(ctx, c.cfg)
		if err != nil {
			c.mu.Unlock()
			return errors.Join(ErrStartFailed, err)
		}
		c.client = client
	}

	c.ctx, c.cancel = context.WithCancel(ctx)
	c.mu.Unlock()

	c.log.InfoContext(c.ctx, "sqs consumer started",
		logger.Consumer(c.consumerID.String()),
		logger.Key("queue_url", c.cfg.QueueURL),
		logger.Count("max_concurrent", c.cfg.MaxConcurrentMessages))

	return c.pollLoop()
}

// Stop cancels the poll loop and waits for in-flight messages to finish
// their current dispatch attempt, bounded by the shutdown timeout.
func (c *SQSConsumer) Stop() error {
	c.mu.Lock()
	if c.cancel == nil {
		c.mu.Unlock()
		return ErrNotRunning
	}
	cancel := c.cancel
	c.cancel = nil
	c.mu.Unlock()

	cancel()

	c.log.Info("sqs consumer stopping, waiting for in-flight messages",
		logger.Consumer(c.consumerID.String()),
		logger.Duration(c.cfg.ShutdownTimeout))

	ctx, ctxCancel := context.WithTimeout(context.Background(), c.cfg.ShutdownTimeout)
	defer ctxCancel()

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		c.log.Info("sqs consumer stopped cleanly", logger.Consumer(c.consumerID.String()))
		return nil
	case <-ctx.Done():
		c.log.Warn("sqs consumer shutdown timeout exceeded - some messages may be abandoned",
			logger.Consumer(c.consumerID.String()),
			logger.Duration(c.cfg.ShutdownTimeout))
		return fmt.Errorf("%w: shutdown timeout exceeded after %s", ErrStopFailed, c.cfg.ShutdownTimeout)
	}
}

// Run provides errgroup compatibility for coordinated lifecycle management.
func (c *SQSConsumer) Run(ctx context.Context) func() error {
	return func() error {
		errCh := make(chan error, 1)
		go func() {
			errCh <- c.Start(ctx)
		}()

		select {
		case <-ctx.Done():
			_ = c.Stop()
			<-errCh
			return nil
		case err := <-errCh:
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil
			}
			return err
		}
	}
}

func (c *SQSConsumer) pollLoop() error {
	receiveFailures := 0

	for {
		if err := c.ctx.Err(); err != nil {
			c.log.Info("sqs consumer poll loop exiting", logger.Consumer(c.consumerID.String()))
			return err
		}

		// The long poll blocks up to WaitTime; cancelling c.ctx aborts it,
		// so shutdown wins the race against a quiet queue.
		out, err := c.client.ReceiveMessage(c.ctx, &sqs.ReceiveMessageInput{
			QueueUrl:              aws.String(c.cfg.QueueURL),
			MaxNumberOfMessages:   int32(c.cfg.MaxMessages),
			VisibilityTimeout:     int32(c.cfg.VisibilityTimeout),
			WaitTimeSeconds:       int32(c.cfg.WaitTime),
			AttributeNames:        []types.QueueAttributeName{types.QueueAttributeNameAll},
			MessageAttributeNames: []string{"All"},
		})
		if err != nil {
			if c.ctx.Err() != nil {
				return c.ctx.Err()
			}

			receiveFailures++
			attrs := []any{
				logger.Consumer(c.consumerID.String()),
				logger.Attempt(receiveFailures),
				logger.Count("max_retries", c.cfg.MaxRetries),
				logger.Error(err),
			}
			var apiErr smithy.APIError
			if errors.As(err, &apiErr) {
				attrs = append(attrs, slog.String("error_code", apiErr.ErrorCode()))
			}
			c.log.ErrorContext(c.ctx, "failed to receive messages", attrs...)

			if receiveFailures > c.cfg.MaxRetries {
				c.log.ErrorContext(c.ctx, "receive retry budget exhausted, stopping consumer",
					logger.Consumer(c.consumerID.String()))
				c.shutdownSelf()
				return fmt.Errorf("%w: receive retries exhausted: %w", ErrProcessingFailed, err)
			}

			// Back off from the poll interval, doubling per consecutive
			// failure until the delay reaches a minute.
			delay := c.cfg.PollInterval
			for i := 1; i < receiveFailures && delay < time.Minute; i++ {
				delay *= 2
			}
			if !c.sleep(delay) {
				return c.ctx.Err()
			}
			continue
		}
		receiveFailures = 0

		if len(out.Messages) == 0 {
			if !c.sleep(c.cfg.PollInterval) {
				return c.ctx.Err()
			}
			continue
		}

		c.log.DebugContext(c.ctx, "received message batch",
			logger.Consumer(c.consumerID.String()),
			logger.Count("messages", len(out.Messages)))

		for _, raw := range out.Messages {
			select {
			case c.sem <- struct{}{}:
			case <-c.ctx.Done():
				return c.ctx.Err()
			}

			c.wg.Add(1)
			c.messagesReceived.Add(1)

			go func(raw types.Message) {
				defer c.wg.Done()
				defer func() { <-c.sem }()
				c.processMessage(raw)
			}(raw)
		}
	}
}

// shutdownSelf transitions the consumer to stopped after a fatal poll
// error, mirroring an external Stop call.
func (c *SQSConsumer) shutdownSelf() {
	c.mu.Lock()
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	c.mu.Unlock()
	c.wg.Wait()
}

// sleep waits the given duration or until shutdown; it reports false when
// shutdown interrupted the wait.
func (c *SQSConsumer) sleep(d time.Duration) bool {
	select {
	case <-time.After(d):
		return true
	case <-c.ctx.Done():
		return false
	}
}

func (c *SQSConsumer) processMessage(raw types.Message) {
	c.activeMessages.Add(1)
	defer c.activeMessages.Add(-1)

	msg := decodeSQSMessage(raw)

	// Panic recovery ensures one poisoned message cannot take down the
	// poll loop; the message is nacked for redelivery or DLQ routing.
	defer func() {
		if r := recover(); r != nil {
			c.log.ErrorContext(c.ctx, "message processing panicked",
				logger.Consumer(c.consumerID.String()),
				logger.MessageID(msg.ID),
				logger.Key("panic", r))
			if err := c.Nack(c.ctx, msg, true); err != nil {
				c.log.ErrorContext(c.ctx, "failed to nack after panic",
					logger.MessageID(msg.ID), logger.Error(err))
			}
		}
	}()

	evt := event.EventFromMessage(msg)
	start := time.Now()

	ok := c.dispatcher.Dispatch(c.ctx, msg.ID, evt, msg.AckHandle, c)

	if ok {
		if err := c.Ack(c.ctx, msg); err != nil {
			c.log.ErrorContext(c.ctx, "failed to ack message",
				logger.Consumer(c.consumerID.String()),
				logger.MessageID(msg.ID),
				logger.Error(err))
			return
		}
		c.log.InfoContext(c.ctx, "message processed",
			logger.Consumer(c.consumerID.String()),
			logger.MessageID(msg.ID),
			logger.EventType(evt.Type),
			logger.Elapsed(start))
		return
	}

	if err := c.Nack(c.ctx, msg, true); err != nil {
		c.log.ErrorContext(c.ctx, "failed to nack message",
			logger.Consumer(c.consumerID.String()),
			logger.MessageID(msg.ID),
			logger.Error(err))
		return
	}
	c.log.WarnContext(c.ctx, "message processing failed, nacked",
		logger.Consumer(c.consumerID.String()),
		logger.MessageID(msg.ID),
		logger.EventType(evt.Type),
		logger.Elapsed(start))
}

// decodeSQSMessage converts a raw SQS message into the transport-neutral
// form: JSON bodies pass through, opaque strings are wrapped, and the
// SentTimestamp attribute becomes the message timestamp.
func decodeSQSMessage(raw types.Message) event.Message {
	msg := event.Message{
		Source:     TypeSQS,
		Metadata:   make(map[string]string, len(raw.Attributes)+len(raw.MessageAttributes)),
		ReceivedAt: time.Now(),
	}

	if raw.MessageId != nil {
		msg.ID = *raw.MessageId
	}
	if raw.ReceiptHandle != nil {
		msg.AckHandle = *raw.ReceiptHandle
	}
	if raw.Body != nil {
		msg.Body = event.EncodeBody([]byte(*raw.Body))
	}

	for k, v := range raw.Attributes {
		msg.Metadata[k] = v
	}
	for k, v := range raw.MessageAttributes {
		if v.StringValue != nil {
			msg.Metadata[k] = *v.StringValue
		}
	}

	if ts, ok := raw.Attributes["SentTimestamp"]; ok {
		if millis, err := strconv.ParseInt(ts, 10, 64); err == nil {
			t := time.UnixMilli(millis)
			msg.Timestamp = &t
		}
	}

	return msg
}

// Ack deletes the message from the source queue.
func (c *SQSConsumer) Ack(ctx context.Context, msg event.Message) error {
	_, err := c.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(c.cfg.QueueURL),
		ReceiptHandle: aws.String(msg.AckHandle),
	})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrAckFailed, err)
	}

	c.messagesAcked.Add(1)
	c.log.DebugContext(ctx, "message acked", logger.MessageID(msg.ID))
	return nil
}

// AckBatch deletes many receipts, chunked into groups of ten as the queue
// API requires. Deletion is idempotent on the SQS side.
func (c *SQSConsumer) AckBatch(ctx context.Context, ackHandles []string) error {
	for start := 0; start < len(ackHandles); start += deleteBatchSize {
		end := min(start+deleteBatchSize, len(ackHandles))

		entries := make([]types.DeleteMessageBatchRequestEntry, 0, end-start)
		for i, handle := range ackHandles[start:end] {
			entries = append(entries, types.DeleteMessageBatchRequestEntry{
				Id:            aws.String(strconv.Itoa(start + i)),
				ReceiptHandle: aws.String(handle),
			})
		}

		if _, err := c.client.DeleteMessageBatch(ctx, &sqs.DeleteMessageBatchInput{
			QueueUrl: aws.String(c.cfg.QueueURL),
			Entries:  entries,
		}); err != nil {
			return fmt.Errorf("%w: batch delete: %w", ErrAckFailed, err)
		}
	}
	return nil
}

// Nack negatively acknowledges a message.
//
// With requeue and a configured DLQ the message is forwarded there and
// deleted from the source queue. Otherwise the visibility timeout is reset
// to zero so the source queue redelivers immediately; if the source queue
// carries its own redrive policy, repeated nacks let SQS move the message
// after maxReceiveCount.
func (c *SQSConsumer) Nack(ctx context.Context, msg event.Message, requeue bool) error {
	if requeue && c.cfg.DLQURL != "" {
		body, err := json.Marshal(msg)
		if err != nil {
			return fmt.Errorf("%w: encode message for dlq: %w", ErrNackFailed, err)
		}

		input := &sqs.SendMessageInput{
			QueueUrl:    aws.String(c.cfg.DLQURL),
			MessageBody: aws.String(string(body)),
		}
		// FIFO attributes are only legal on FIFO queues; forward them only
		// when the original message carried them.
		if groupID, ok := msg.Metadata["MessageGroupId"]; ok {
			input.MessageGroupId = aws.String(groupID)
			input.MessageDeduplicationId = aws.String(msg.ID)
		}

		if _, err := c.client.SendMessage(ctx, input); err != nil {
			return fmt.Errorf("%w: forward to dlq: %w", ErrNackFailed, err)
		}

		if err := c.Ack(ctx, msg); err != nil {
			return fmt.Errorf("%w: delete after dlq forward: %w", ErrNackFailed, err)
		}

		c.messagesNacked.Add(1)
		c.log.DebugContext(ctx, "message forwarded to dlq", logger.MessageID(msg.ID))
		return nil
	}

	if _, err := c.client.ChangeMessageVisibility(ctx, &sqs.ChangeMessageVisibilityInput{
		QueueUrl:          aws.String(c.cfg.QueueURL),
		ReceiptHandle:     aws.String(msg.AckHandle),
		VisibilityTimeout: 0,
	}); err != nil {
		return fmt.Errorf("%w: reset visibility: %w", ErrNackFailed, err)
	}

	c.messagesNacked.Add(1)
	c.log.DebugContext(ctx, "message visibility reset", logger.MessageID(msg.ID))
	return nil
}

// ChangeVisibility implements event.VisibilityExtender so the dispatcher
// can keep a message hidden while a handler retries.
func (c *SQSConsumer) ChangeVisibility(ctx context.Context, ackHandle string, timeout time.Duration) error {
	_, err := c.client.ChangeMessageVisibility(ctx, &sqs.ChangeMessageVisibilityInput{
		QueueUrl:          aws.String(c.cfg.QueueURL),
		ReceiptHandle:     aws.String(ackHandle),
		VisibilityTimeout: int32(timeout / time.Second),
	})
	return err
}

// Stats returns current consumer statistics for observability and monitoring.
func (c *SQSConsumer) Stats() SQSConsumerStats {
	c.mu.RLock()
	isRunning := c.cancel != nil
	c.mu.RUnlock()

	return SQSConsumerStats{
		MessagesReceived: c.messagesReceived.Load(),
		MessagesAcked:    c.messagesAcked.Load(),
		MessagesNacked:   c.messagesNacked.Load(),
		ActiveMessages:   c.activeMessages.Load(),
		IsRunning:        isRunning,
	}
}

// Healthcheck validates that the consumer is operational.
func (c *SQSConsumer) Healthcheck(ctx context.Context) error {
	if !c.Stats().IsRunning {
		return ErrNotRunning
	}
	return nil
}

// newSQSClient builds an SQS client from the consumer config, honoring
// region, static credentials, and endpoint overrides for local setups.
func newSQSClient(ctx context.Context, cfg SQSConfig) (*sqs.Client, error) {
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

	return sqs.NewFromConfig(awsCfg, func(o *sqs.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	}), nil
}
