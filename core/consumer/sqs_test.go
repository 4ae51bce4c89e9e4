package consumer_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/eventbus/core/consumer"
	"github.com/dmitrymomot/eventbus/core/event"
)

// fakeSQS is a scripted SQS client: receives serve queued batches once,
// then empty batches; all mutations are recorded.
type fakeSQS struct {
	mu sync.Mutex

	batches    [][]types.Message
	receiveErr error
	failures   int // receive errors to serve before succeeding

	deleted      []string
	batchDeletes [][]string
	visibility   map[string][]int32
	sent         []sqs.SendMessageInput
}

func newFakeSQS(batches ...[]types.Message) *fakeSQS {
	return &fakeSQS{
		batches:    batches,
		visibility: make(map[string][]int32),
	}
}

func (f *fakeSQS) ReceiveMessage(ctx context.Context, in *sqs.ReceiveMessageInput, _ ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.failures > 0 {
		f.failures--
		return nil, f.receiveErr
	}

	if len(f.batches) == 0 {
		return &sqs.ReceiveMessageOutput{}, nil
	}

	batch := f.batches[0]
	f.batches = f.batches[1:]
	return &sqs.ReceiveMessageOutput{Messages: batch}, nil
}

func (f *fakeSQS) DeleteMessage(_ context.Context, in *sqs.DeleteMessageInput, _ ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, aws.ToString(in.ReceiptHandle))
	return &sqs.DeleteMessageOutput{}, nil
}

func (f *fakeSQS) DeleteMessageBatch(_ context.Context, in *sqs.DeleteMessageBatchInput, _ ...func(*sqs.Options)) (*sqs.DeleteMessageBatchOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	handles := make([]string, 0, len(in.Entries))
	for _, e := range in.Entries {
		handles = append(handles, aws.ToString(e.ReceiptHandle))
	}
	f.batchDeletes = append(f.batchDeletes, handles)
	return &sqs.DeleteMessageBatchOutput{}, nil
}

func (f *fakeSQS) ChangeMessageVisibility(_ context.Context, in *sqs.ChangeMessageVisibilityInput, _ ...func(*sqs.Options)) (*sqs.ChangeMessageVisibilityOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	handle := aws.ToString(in.ReceiptHandle)
	f.visibility[handle] = append(f.visibility[handle], in.VisibilityTimeout)
	return &sqs.ChangeMessageVisibilityOutput{}, nil
}

func (f *fakeSQS) SendMessage(_ context.Context, in *sqs.SendMessageInput, _ ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, *in)
	return &sqs.SendMessageOutput{}, nil
}

func (f *fakeSQS) snapshot() fakeSQS {
	f.mu.Lock()
	defer f.mu.Unlock()
	return fakeSQS{
		deleted:      append([]string{}, f.deleted...),
		batchDeletes: append([][]string{}, f.batchDeletes...),
		sent:         append([]sqs.SendMessageInput{}, f.sent...),
	}
}

// recordingDispatcher returns scripted results and records calls.
type recordingDispatcher struct {
	mu     sync.Mutex
	result bool
	calls  []string
}

func (d *recordingDispatcher) Dispatch(_ context.Context, messageID string, _ event.Event, _ string, _ event.VisibilityExtender) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = append(d.calls, messageID)
	return d.result
}

func (d *recordingDispatcher) callCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.calls)
}

func sqsMessage(id, body, handle string) types.Message {
	return types.Message{
		MessageId:     aws.String(id),
		Body:          aws.String(body),
		ReceiptHandle: aws.String(handle),
		Attributes:    map[string]string{"SentTimestamp": "1700000000000"},
	}
}

func testConfig() consumer.SQSConfig {
	cfg := consumer.DefaultSQSConfig("https://sqs.us-east-1.amazonaws.com/1/q")
	cfg.WaitTime = 0
	cfg.VisibilityTimeout = 5
	cfg.PollInterval = 5 * time.Millisecond
	return cfg
}

func startConsumer(t *testing.T, c *consumer.SQSConsumer) {
	t.Helper()

	go func() { _ = c.Start(context.Background()) }()
	require.Eventually(t, func() bool { return c.Stats().IsRunning }, time.Second, 5*time.Millisecond)
	t.Cleanup(func() { _ = c.Stop() })
}

func TestSQSConsumer_AckOnSuccess(t *testing.T) {
	t.Parallel()

	client := newFakeSQS([]types.Message{
		sqsMessage("m1", `{"type":"order:created","n":1}`, "rh-1"),
	})
	dispatcher := &recordingDispatcher{result: true}

	c, err := consumer.NewSQSConsumer(testConfig(), dispatcher, consumer.WithSQSClient(client))
	require.NoError(t, err)
	startConsumer(t, c)

	require.Eventually(t, func() bool {
		return c.Stats().MessagesAcked == 1
	}, 2*time.Second, 10*time.Millisecond)

	assert.Equal(t, 1, dispatcher.callCount())

	snap := client.snapshot()
	assert.Equal(t, []string{"rh-1"}, snap.deleted)
	assert.Empty(t, snap.sent)

	stats := c.Stats()
	assert.Equal(t, int64(1), stats.MessagesReceived)
	assert.Equal(t, int64(0), stats.MessagesNacked)
}

func TestSQSConsumer_NackResetsVisibility(t *testing.T) {
	t.Parallel()

	client := newFakeSQS([]types.Message{
		sqsMessage("m1", `{"type":"order:created"}`, "rh-1"),
	})
	dispatcher := &recordingDispatcher{result: false}

	c, err := consumer.NewSQSConsumer(testConfig(), dispatcher, consumer.WithSQSClient(client))
	require.NoError(t, err)
	startConsumer(t, c)

	require.Eventually(t, func() bool {
		return c.Stats().MessagesNacked == 1
	}, 2*time.Second, 10*time.Millisecond)

	client.mu.Lock()
	resets := client.visibility["rh-1"]
	client.mu.Unlock()
	require.Len(t, resets, 1)
	assert.Equal(t, int32(0), resets[0])

	// Ack and nack are mutually exclusive.
	assert.Empty(t, client.snapshot().deleted)
}

func TestSQSConsumer_DLQForwardOnNack(t *testing.T) {
	t.Parallel()

	client := newFakeSQS([]types.Message{
		sqsMessage("m1", `{"type":"order:created","amount":10}`, "rh-1"),
	})
	dispatcher := &recordingDispatcher{result: false}

	cfg := testConfig()
	cfg.DLQURL = "https://sqs.us-east-1.amazonaws.com/1/q-dlq"

	c, err := consumer.NewSQSConsumer(cfg, dispatcher, consumer.WithSQSClient(client))
	require.NoError(t, err)
	startConsumer(t, c)

	require.Eventually(t, func() bool {
		return c.Stats().MessagesNacked == 1
	}, 2*time.Second, 10*time.Millisecond)

	snap := client.snapshot()

	// One send to the DLQ carrying the original body, one delete on the
	// source queue; no visibility reset, so no redelivery.
	require.Len(t, snap.sent, 1)
	assert.Equal(t, cfg.DLQURL, aws.ToString(snap.sent[0].QueueUrl))
	assert.Contains(t, aws.ToString(snap.sent[0].MessageBody), `"amount":10`)
	assert.Equal(t, []string{"rh-1"}, snap.deleted)

	client.mu.Lock()
	defer client.mu.Unlock()
	assert.Empty(t, client.visibility["rh-1"])
}

func TestSQSConsumer_ReceiveRetryBudgetExhausted(t *testing.T) {
	t.Parallel()

	client := newFakeSQS()
	client.receiveErr = errors.New("throttled")
	client.failures = 100

	dispatcher := &recordingDispatcher{result: true}

	cfg := testConfig()
	cfg.MaxRetries = 2

	c, err := consumer.NewSQSConsumer(cfg, dispatcher, consumer.WithSQSClient(client))
	require.NoError(t, err)

	errCh := make(chan error, 1)
	go func() { errCh <- c.Start(context.Background()) }()

	select {
	case startErr := <-errCh:
		require.Error(t, startErr)
		assert.ErrorIs(t, startErr, consumer.ErrProcessingFailed)
	case <-time.After(2 * time.Second):
		t.Fatal("consumer did not stop after exhausting receive retries")
	}

	assert.False(t, c.Stats().IsRunning)
	assert.Zero(t, dispatcher.callCount())
}

func TestSQSConsumer_TransientReceiveErrorRecovers(t *testing.T) {
	t.Parallel()

	client := newFakeSQS([]types.Message{
		sqsMessage("m1", `{"type":"order:created"}`, "rh-1"),
	})
	client.receiveErr = errors.New("blip")
	client.failures = 2

	dispatcher := &recordingDispatcher{result: true}

	cfg := testConfig()
	cfg.MaxRetries = 3

	c, err := consumer.NewSQSConsumer(cfg, dispatcher, consumer.WithSQSClient(client))
	require.NoError(t, err)
	startConsumer(t, c)

	require.Eventually(t, func() bool {
		return c.Stats().MessagesAcked == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestSQSConsumer_StartStopLifecycle(t *testing.T) {
	t.Parallel()

	client := newFakeSQS()
	dispatcher := &recordingDispatcher{result: true}

	c, err := consumer.NewSQSConsumer(testConfig(), dispatcher, consumer.WithSQSClient(client))
	require.NoError(t, err)

	assert.ErrorIs(t, c.Stop(), consumer.ErrNotRunning)

	startConsumer(t, c)

	// Second start is refused while running.
	assert.ErrorIs(t, c.Start(context.Background()), consumer.ErrAlreadyRunning)

	require.NoError(t, c.Stop())
	assert.False(t, c.Stats().IsRunning)
	assert.ErrorIs(t, c.Healthcheck(context.Background()), consumer.ErrNotRunning)
}

func TestSQSConsumer_AckBatchChunksByTen(t *testing.T) {
	t.Parallel()

	client := newFakeSQS()
	dispatcher := &recordingDispatcher{result: true}

	c, err := consumer.NewSQSConsumer(testConfig(), dispatcher, consumer.WithSQSClient(client))
	require.NoError(t, err)

	handles := make([]string, 23)
	for i := range handles {
		handles[i] = string(rune('a' + i))
	}

	require.NoError(t, c.AckBatch(context.Background(), handles))

	snap := client.snapshot()
	require.Len(t, snap.batchDeletes, 3)
	assert.Len(t, snap.batchDeletes[0], 10)
	assert.Len(t, snap.batchDeletes[1], 10)
	assert.Len(t, snap.batchDeletes[2], 3)
}

func TestSQSConsumer_ChangeVisibility(t *testing.T) {
	t.Parallel()

	client := newFakeSQS()
	dispatcher := &recordingDispatcher{result: true}

	c, err := consumer.NewSQSConsumer(testConfig(), dispatcher, consumer.WithSQSClient(client))
	require.NoError(t, err)

	require.NoError(t, c.ChangeVisibility(context.Background(), "rh-9", 30*time.Second))

	client.mu.Lock()
	defer client.mu.Unlock()
	require.Len(t, client.visibility["rh-9"], 1)
	assert.Equal(t, int32(30), client.visibility["rh-9"][0])
}

func TestSQSConfig_Validate(t *testing.T) {
	t.Parallel()

	t.Run("valid default", func(t *testing.T) {
		t.Parallel()
		assert.NoError(t, consumer.DefaultSQSConfig("https://example/q").Validate())
	})

	t.Run("requires queue url", func(t *testing.T) {
		t.Parallel()
		cfg := consumer.DefaultSQSConfig("")
		assert.ErrorIs(t, cfg.Validate(), consumer.ErrInvalidConfig)
	})

	t.Run("visibility timeout must exceed wait time", func(t *testing.T) {
		t.Parallel()
		cfg := consumer.DefaultSQSConfig("https://example/q")
		cfg.VisibilityTimeout = 20
		cfg.WaitTime = 20
		assert.ErrorIs(t, cfg.Validate(), consumer.ErrInvalidConfig)
	})

	t.Run("bounds batch size", func(t *testing.T) {
		t.Parallel()
		cfg := consumer.DefaultSQSConfig("https://example/q")
		cfg.MaxMessages = 11
		assert.ErrorIs(t, cfg.Validate(), consumer.ErrInvalidConfig)
	})
}
