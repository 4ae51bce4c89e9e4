// Package backoff provides delay strategies for retry loops.
//
// A Strategy maps a 1-based attempt number to the delay that should pass
// before the next attempt. Strategies are pure values: they hold no state
// and are safe for concurrent use.
//
// # Basic Usage
//
//	strategy := backoff.NewExponential(
//		backoff.WithBase(time.Second),
//		backoff.WithCap(time.Minute),
//		backoff.WithJitter(0.2),
//	)
//
//	for attempt := 1; attempt <= maxAttempts; attempt++ {
//		if err := do(); err == nil {
//			break
//		}
//		time.Sleep(strategy.NextDelay(attempt))
//	}
//
// Exponential grows the delay as base * 2^(attempt-1), caps it, and applies
// symmetric multiplicative jitter so concurrent retriers spread out instead
// of thundering in lockstep.
package backoff
