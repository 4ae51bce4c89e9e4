package retry

import "errors"

// Policy decides whether a failed attempt should be retried.
// Attempt numbers are 1-based.
type Policy interface {
	// ShouldRetry reports whether another attempt should follow attempt n
	// that failed with err.
	ShouldRetry(attempt int, err error) bool

	// MaxAttempts returns the total attempt budget, at least 1.
	MaxAttempts() int
}

// NoRetry executes exactly one attempt.
type NoRetry struct{}

// ShouldRetry always returns false.
func (NoRetry) ShouldRetry(int, error) bool { return false }

// MaxAttempts returns 1.
func (NoRetry) MaxAttempts() int { return 1 }

// Exponential retries while attempts remain and the error matches one of
// the configured retryable targets. An empty target list retries on any
// error. The name refers to the backoff strategy it is conventionally
// paired with; the policy itself only bounds and classifies.
type Exponential struct {
	attempts int
	retryOn  []error
}

// ExponentialOption configures an Exponential policy.
type ExponentialOption func(*Exponential)

// RetryOn restricts retries to errors matching one of the targets via
// errors.Is. Without this option every error is retryable.
func RetryOn(targets ...error) ExponentialOption {
	return func(p *Exponential) {
		p.retryOn = targets
	}
}

// NewExponential creates a policy allowing up to maxAttempts attempts.
// Values below 1 are clamped to the default of 3.
func NewExponential(maxAttempts int, opts ...ExponentialOption) Exponential {
	p := Exponential{attempts: maxAttempts}
	if p.attempts < 1 {
		p.attempts = 3
	}

	for _, opt := range opts {
		opt(&p)
	}

	return p
}

// ShouldRetry reports whether attempt < MaxAttempts and err is retryable.
func (p Exponential) ShouldRetry(attempt int, err error) bool {
	if attempt >= p.attempts {
		return false
	}

	if len(p.retryOn) == 0 {
		return true
	}

	for _, target := range p.retryOn {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// MaxAttempts returns the attempt budget.
func (p Exponential) MaxAttempts() int { return p.attempts }
