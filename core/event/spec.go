package event

import (
	"context"
	"time"

	"github.com/dmitrymomot/eventbus/pkg/backoff"
	"github.com/dmitrymomot/eventbus/pkg/retry"
)

// DefaultTimeout is the per-attempt handler timeout used when none is
// configured.
const DefaultTimeout = 30 * time.Second

// HandlerSpec is the registration record for one handler: the callable
// plus its execution policy.
type HandlerSpec struct {
	Name          string
	Handler       Handler
	DependsOn     []string
	Timeout       time.Duration
	RetryPolicy   retry.Policy
	Backoff       backoff.Strategy
	FailurePolicy FailurePolicy
	Metadata      map[string]any
	Dependencies  []Resolver
}

// RouteOption customizes a handler registration.
type RouteOption func(*HandlerSpec)

// WithName sets an explicit handler name. Names are unique within an event
// type; without this option a deterministic name is derived from the
// handler function's identity.
func WithName(name string) RouteOption {
	return func(s *HandlerSpec) {
		if name != "" {
			s.Name = name
		}
	}
}

// WithDependsOn declares handlers that must reach a terminal state before
// this one runs.
func WithDependsOn(names ...string) RouteOption {
	return func(s *HandlerSpec) {
		s.DependsOn = append(s.DependsOn, names...)
	}
}

// WithTimeout sets the per-attempt wall-clock timeout.
func WithTimeout(timeout time.Duration) RouteOption {
	return func(s *HandlerSpec) {
		if timeout > 0 {
			s.Timeout = timeout
		}
	}
}

// WithRetryPolicy sets the retry policy for this handler.
func WithRetryPolicy(policy retry.Policy) RouteOption {
	return func(s *HandlerSpec) {
		if policy != nil {
			s.RetryPolicy = policy
		}
	}
}

// WithBackoff sets the delay strategy between retries.
func WithBackoff(strategy backoff.Strategy) RouteOption {
	return func(s *HandlerSpec) {
		if strategy != nil {
			s.Backoff = strategy
		}
	}
}

// WithFailurePolicy sets what happens to dependents when this handler
// fails after exhausting retries.
func WithFailurePolicy(policy FailurePolicy) RouteOption {
	return func(s *HandlerSpec) {
		if policy.Valid() {
			s.FailurePolicy = policy
		}
	}
}

// WithMetadata attaches opaque metadata carried into HandlerContext.
func WithMetadata(metadata map[string]any) RouteOption {
	return func(s *HandlerSpec) {
		s.Metadata = metadata
	}
}

// WithDependency declares a named resolver whose value is computed before
// each attempt and exposed via HandlerContext.Dep.
func WithDependency(name string, resolve func(ctx context.Context) (any, error)) RouteOption {
	return func(s *HandlerSpec) {
		if name == "" || resolve == nil {
			return
		}
		s.Dependencies = append(s.Dependencies, Resolver{Name: name, Resolve: resolve})
	}
}
