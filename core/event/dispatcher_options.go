package event

import (
	"log/slog"
	"time"
)

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithConcurrencyLimit bounds how many handlers of one message run
// simultaneously. Default is 10.
func WithConcurrencyLimit(limit int) DispatcherOption {
	return func(d *Dispatcher) {
		if limit > 0 {
			d.concurrency = limit
		}
	}
}

// WithDefaultFailurePolicy sets the policy applied to specs registered
// without one. Default is FailurePolicyAbort.
func WithDefaultFailurePolicy(policy FailurePolicy) DispatcherOption {
	return func(d *Dispatcher) {
		if policy.Valid() {
			d.defaultPolicy = policy
		}
	}
}

// WithVisibilityExtension sets the visibility extension requested from the
// transport before each retry sleep. Default is 30s.
func WithVisibilityExtension(extension time.Duration) DispatcherOption {
	return func(d *Dispatcher) {
		if extension > 0 {
			d.visibilityExtension = extension
		}
	}
}

// WithResumeFromStore makes redeliveries short-circuit handlers the state
// store already recorded as succeeded, seeding their cached results for
// dependents. Default is off: every delivery re-runs all handlers.
func WithResumeFromStore(resume bool) DispatcherOption {
	return func(d *Dispatcher) {
		d.resumeFromStore = resume
	}
}

// WithDispatcherLogger configures structured logging for dispatch
// operations. Use slog.New(slog.NewTextHandler(io.Discard, nil)) to
// disable logging.
func WithDispatcherLogger(log *slog.Logger) DispatcherOption {
	return func(d *Dispatcher) {
		if log != nil {
			d.log = log
		}
	}
}
