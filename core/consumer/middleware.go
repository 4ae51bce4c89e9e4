package consumer

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/dmitrymomot/eventbus/core/event"
	"github.com/dmitrymomot/eventbus/core/logger"
)

// LoggingMiddleware emits a structured log around every delivery.
func LoggingMiddleware(log *slog.Logger) Middleware {
	return func(next Subscriber) Subscriber {
		return func(ctx context.Context, msg event.Message) error {
			start := time.Now()
			log.InfoContext(ctx, "subscriber started",
				logger.MessageID(msg.ID),
				logger.Source(msg.Source))

			err := next(ctx, msg)
			if err != nil {
				log.ErrorContext(ctx, "subscriber failed",
					logger.MessageID(msg.ID),
					logger.Source(msg.Source),
					logger.Elapsed(start),
					logger.Error(err))
				return err
			}

			log.InfoContext(ctx, "subscriber completed",
				logger.MessageID(msg.ID),
				logger.Source(msg.Source),
				logger.Elapsed(start))
			return nil
		}
	}
}

// GroupMiddleware composes child middlewares into one unit so a prepared
// stack can be registered as a single middleware. A critical error from
// any child propagates unchanged and short-circuits the outer chain.
func GroupMiddleware(middlewares ...Middleware) Middleware {
	return func(next Subscriber) Subscriber {
		return Chain(next, middlewares...)
	}
}

// RetryMiddleware retries the wrapped subscriber with capped exponential
// backoff. Only errors matching one of retryOn (all errors when empty)
// are retried; ErrCriticalSubscriber always short-circuits.
func RetryMiddleware(maxAttempts int, base, maxDelay time.Duration, retryOn ...error) Middleware {
	if maxAttempts < 1 {
		maxAttempts = 3
	}
	if base <= 0 {
		base = 100 * time.Millisecond
	}

	return func(next Subscriber) Subscriber {
		return func(ctx context.Context, msg event.Message) error {
			backoff := retry.NewExponential(base)
			if maxDelay > 0 {
				backoff = retry.WithCappedDuration(maxDelay, backoff)
			}
			backoff = retry.WithMaxRetries(uint64(maxAttempts-1), backoff)

			return retry.Do(ctx, backoff, func(ctx context.Context) error {
				err := next(ctx, msg)
				if err == nil {
					return nil
				}
				if errors.Is(err, ErrCriticalSubscriber) {
					return err
				}
				if retryable(err, retryOn) {
					return retry.RetryableError(err)
				}
				return err
			})
		}
	}
}

func retryable(err error, retryOn []error) bool {
	if len(retryOn) == 0 {
		return true
	}
	for _, target := range retryOn {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
