// Package logger provides slog attribute helpers shared across the event
// bus packages.
//
// Helpers use the empty Attr pattern for nil safety: a nil error or empty
// identifier yields an empty attribute that slog drops, so call sites never
// need explicit nil checks:
//
//	log.Error("dispatch failed",
//		logger.MessageID(msg.ID),
//		logger.EventType(event.Type),
//		logger.Error(err),
//	)
//
// Domain attributes (MessageID, EventType, Handler, Attempt, Consumer)
// keep field names consistent across consumers, the dispatcher, and
// producers so log pipelines can correlate one message's lifecycle.
package logger
