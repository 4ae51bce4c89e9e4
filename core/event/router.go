package event

import (
	"fmt"
	"io"
	"log/slog"
	"maps"
	"sync"

	"github.com/dmitrymomot/eventbus/core/logger"
	"github.com/dmitrymomot/eventbus/pkg/backoff"
	"github.com/dmitrymomot/eventbus/pkg/retry"
)

// Router is the registry of handlers per event type. Registration is
// expected during startup; dispatch-time reads take a snapshot copy, so
// the router is effectively read-only once consumers start.
type Router struct {
	mu       sync.RWMutex
	handlers map[string]map[string]HandlerSpec
	counter  int

	log *slog.Logger
}

// RouterOption configures a Router.
type RouterOption func(*Router)

// WithRouterLogger configures structured logging for registrations.
func WithRouterLogger(log *slog.Logger) RouterOption {
	return func(r *Router) {
		if log != nil {
			r.log = log
		}
	}
}

// NewRouter creates an empty handler registry.
func NewRouter(opts ...RouterOption) *Router {
	r := &Router{
		handlers: make(map[string]map[string]HandlerSpec),
		log:      slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// Route registers a handler for an event type. Registration is atomic:
// the spec is inserted, the event type's graph is validated, and the
// insert is reverted if validation fails, leaving the router unchanged.
func (r *Router) Route(eventType string, handler Handler, opts ...RouteOption) error {
	if handler == nil {
		return ErrNilHandler
	}

	spec := HandlerSpec{
		Handler:       handler,
		Timeout:       DefaultTimeout,
		RetryPolicy:   retry.NewExponential(3),
		Backoff:       backoff.NewExponential(),
		FailurePolicy: FailurePolicyAbort,
	}

	for _, opt := range opts {
		opt(&spec)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if spec.Name == "" {
		spec.Name = handlerFuncName(handler)
	}
	if spec.Name == "" {
		r.counter++
		spec.Name = fmt.Sprintf("handler_%d", r.counter)
	}

	specs, ok := r.handlers[eventType]
	if !ok {
		specs = make(map[string]HandlerSpec)
		r.handlers[eventType] = specs
	}

	if _, exists := specs[spec.Name]; exists {
		return fmt.Errorf("%w: %q for event type %q", ErrDuplicateHandler, spec.Name, eventType)
	}

	specs[spec.Name] = spec

	if err := validateGraph(specs); err != nil {
		delete(specs, spec.Name)
		return err
	}

	r.log.Info("handler routed",
		logger.EventType(eventType),
		logger.Handler(spec.Name),
		logger.Count("depends_on", len(spec.DependsOn)))

	return nil
}

// On returns a builder that registers handlers for the given event type.
// It mirrors Route for call sites that register several handlers with the
// same shared options:
//
//	on := router.On("checkout:complete")
//	if err := on(validate, event.WithName("validate")); err != nil { ... }
func (r *Router) On(eventType string, shared ...RouteOption) func(Handler, ...RouteOption) error {
	return func(handler Handler, opts ...RouteOption) error {
		return r.Route(eventType, handler, append(append([]RouteOption{}, shared...), opts...)...)
	}
}

// HandlersFor returns a snapshot of the handlers registered for an event
// type. The returned map is a copy; mutating it does not affect the router.
func (r *Router) HandlersFor(eventType string) map[string]HandlerSpec {
	r.mu.RLock()
	defer r.mu.RUnlock()

	specs, ok := r.handlers[eventType]
	if !ok {
		return map[string]HandlerSpec{}
	}

	return maps.Clone(specs)
}

// EventTypes returns the event types with at least one registered handler.
func (r *Router) EventTypes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]string, 0, len(r.handlers))
	for t := range r.handlers {
		types = append(types, t)
	}
	return types
}
