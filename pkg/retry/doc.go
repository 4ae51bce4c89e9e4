// Package retry provides policies that decide whether a failed attempt
// should be retried.
//
// A Policy only makes the decision; the caller owns the retry loop and the
// delay between attempts (see pkg/backoff). This split keeps the policy a
// pure value and lets the loop interleave side effects between attempts,
// such as extending a message's visibility timeout.
//
// # Basic Usage
//
//	policy := retry.NewExponential(3, retry.RetryOn(ErrTransient))
//
//	var lastErr error
//	for attempt := 1; attempt <= policy.MaxAttempts(); attempt++ {
//		if lastErr = do(); lastErr == nil {
//			break
//		}
//		if !policy.ShouldRetry(attempt, lastErr) {
//			break
//		}
//	}
package retry
