// Package consumer implements the message transports of the event bus:
// a pull consumer that long-polls an SQS queue, and push consumers that
// accept events over HTTP webhooks or WebSocket frames. All transports
// decode inbound payloads into core/event.Message values and hand them to
// a dispatcher, then translate the dispatch outcome into transport-level
// acknowledgment.
//
// # Pull (SQS)
//
//	consumer, err := consumer.NewSQSConsumer(cfg, dispatcher)
//	go consumer.Start(ctx)
//	defer consumer.Stop()
//
// The poll loop races the long-poll receive against shutdown, fans a batch
// out to bounded worker goroutines, and acks (deletes) or nacks each
// message depending on the dispatch result. Nack with a configured DLQ
// forwards the message and deletes the original; without one it resets the
// visibility timeout so the queue redelivers.
//
// # Push (webhook, WebSocket)
//
//	hook, err := consumer.NewWebhookConsumer(cfg, dispatcher)
//	mux.Handle(cfg.Endpoint, hook)
//
// Push transports have no queue to ack against: the caller owns retries.
// Parse failures map to 400 responses; dispatch refusals to 422.
//
// # Subscriber middleware
//
// The bus flavor wraps plain subscribers with composable middleware
// (logging, grouping, retry). A subscriber returning
// ErrCriticalSubscriber short-circuits its chain and forces a nack with
// requeue.
package consumer
