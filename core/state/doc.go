// Package state provides remote StateStore implementations for the event
// dispatcher: a Redis-backed store for ephemeral per-message state with
// TTL, and a Postgres-backed store for durable state.
//
// # Redis
//
// Each message is one Redis hash keyed "message:{id}" with fields
// "handler_states", "results" (JSON-encoded maps), and "overall_status".
// An optional TTL expires processed messages automatically:
//
//	store := state.NewRedisStore(client, state.WithTTL(24*time.Hour))
//	dispatcher := event.NewDispatcher(router, store)
//
// # Postgres
//
// Each message is one row with JSONB state columns. Each handler
// transition is a single UPDATE that sets one key with jsonb_set, so
// concurrent handler completions for the same message do not lose updates.
// The store opens no transaction of its own; its statements join a caller
// transaction attached to the context with pg.WithTx:
//
//	store, err := state.NewPostgresStore(ctx, pool)
//
// Both stores satisfy core/event.StateStore. Store failures are logged by
// the dispatcher and never fail a message.
package state
