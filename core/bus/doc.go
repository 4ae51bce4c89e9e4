// Package bus provides the event bus facade: one producer and/or one
// consumer owned by a Bus value, wired from a tagged config record.
//
//	cfg := bus.Config{
//		Consumer: &bus.ConsumerConfig{
//			Type: consumer.TypeSQS,
//			SQS:  &sqsCfg,
//		},
//		Producer: &bus.ProducerConfig{
//			Type: producer.TypeSQS,
//			SQS:  &sqsProducerCfg,
//		},
//	}
//
//	b, err := bus.New(cfg)
//	b.Subscribe("order:created", handleOrder,
//		consumer.LoggingMiddleware(log),
//		consumer.RetryMiddleware(3, time.Second, time.Minute),
//	)
//
//	err = b.Start(ctx)
//	defer b.Stop()
//
//	err = b.Publish(ctx, map[string]any{"type": "order:created", "id": 1})
//
// Subscribers registered on the bus are composed with their middleware at
// registration time and executed through a SubscriberDispatcher, which
// satisfies the same dispatcher contract the handler-graph dispatcher
// does; a Bus can run either flavor via WithDispatcher.
//
// Named consumers register a mapping of name to consumer config; lookup
// works by name or by transport type.
package bus
