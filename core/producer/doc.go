// Package producer implements outbound message publishing for the event
// bus. A Producer takes an encoded payload and delivers it to the
// configured transport: SQS (queue send) or Redis (pub/sub channel).
//
//	prod, err := producer.NewSQSProducer(ctx, producer.SQSProducerConfig{
//		QueueURL: queueURL,
//	})
//	defer prod.Close()
//
//	err = prod.Publish(ctx, payload)
//
// FIFO queues take ordering and deduplication hints per publish:
//
//	err = prod.Publish(ctx, payload,
//		producer.WithGroupID("orders"),
//		producer.WithDedupID(orderID),
//	)
package producer
