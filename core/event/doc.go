// Package event implements the handler-graph execution core of the event
// bus: the data model for messages and events, a router that registers
// handlers per event type with explicit dependencies, and a dispatcher that
// executes the resulting DAG for each message under a concurrency cap with
// per-handler retries, timeouts, and failure policies.
//
// # Registration
//
// Handlers are registered on a Router per event type. Each handler may
// declare dependencies on other handlers of the same event type; the router
// validates the graph (unknown dependencies, duplicate names, cycles) on
// every registration and rolls the registration back on failure:
//
//	router := event.NewRouter()
//
//	err := router.Route("checkout:complete", validate, event.WithName("validate"))
//	err = router.Route("checkout:complete", charge,
//		event.WithName("charge"),
//		event.WithDependsOn("validate"),
//		event.WithRetryPolicy(retry.NewExponential(3)),
//		event.WithBackoff(backoff.NewExponential()),
//	)
//
// # Dispatch
//
// A Dispatcher executes all handlers registered for an event's type,
// respecting dependency order. Independent handlers run concurrently up to
// the configured limit. A handler only starts once every declared
// dependency has reached a terminal state, and it can read its
// dependencies' return values from the HandlerContext:
//
//	dispatcher := event.NewDispatcher(router, event.NewMemoryStore(),
//		event.WithConcurrencyLimit(4),
//	)
//
//	ok := dispatcher.Dispatch(ctx, msg.ID, evt, msg.AckHandle, transport)
//
// The boolean result tells the transport whether to ack (delete) or nack
// (redeliver / dead-letter) the message. Handler state transitions are
// written through a StateStore after every terminal transition; store
// failures are logged and never fail the message.
//
// # Failure policies
//
// Each handler carries a failure policy. Under the default
// FailurePolicyAbort a failed handler marks all transitive dependents
// skipped and fails the message; FailurePolicyContinue lets dependents run
// and does not fail the message by itself. FailurePolicyCompensate is
// scheduled like continue and is reserved for pairing with a user-supplied
// compensating handler.
package event
