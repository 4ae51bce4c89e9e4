package event

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dmitrymomot/eventbus/core/logger"
)

// VisibilityExtender is implemented by transports that can extend a
// message's visibility timeout while a handler retries, so the remote
// queue does not redeliver the message mid-retry.
type VisibilityExtender interface {
	ChangeVisibility(ctx context.Context, ackHandle string, timeout time.Duration) error
}

// Dispatcher executes the handler DAG for one message with bounded
// concurrency, per-handler retries, dependency gating, and failure
// policies. A single Dispatcher is safe for concurrent dispatches.
type Dispatcher struct {
	router *Router
	store  StateStore

	concurrency         int
	defaultPolicy       FailurePolicy
	visibilityExtension time.Duration
	resumeFromStore     bool
	log                 *slog.Logger

	// Observability metrics
	messagesProcessed atomic.Int64
	messagesFailed    atomic.Int64
	handlersSucceeded atomic.Int64
	handlersFailed    atomic.Int64
}

// DispatcherStats provides observability metrics for monitoring and debugging.
type DispatcherStats struct {
	MessagesProcessed int64
	MessagesFailed    int64
	HandlersSucceeded int64
	HandlersFailed    int64
}

// NewDispatcher creates a dispatcher over the given router and state store.
func NewDispatcher(router *Router, store StateStore, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		router:              router,
		store:               store,
		concurrency:         10,
		defaultPolicy:       FailurePolicyAbort,
		visibilityExtension: 30 * time.Second,
		log:                 slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	for _, opt := range opts {
		opt(d)
	}

	return d
}

// Stats returns cumulative dispatch counters.
func (d *Dispatcher) Stats() DispatcherStats {
	return DispatcherStats{
		MessagesProcessed: d.messagesProcessed.Load(),
		MessagesFailed:    d.messagesFailed.Load(),
		HandlersSucceeded: d.handlersSucceeded.Load(),
		HandlersFailed:    d.handlersFailed.Load(),
	}
}

// Dispatch executes every handler registered for the event's type and
// reports whether the overall outcome permits acking the message. An event
// without a type, or with no registered handlers, counts as handled.
// Transport may be nil; when it implements visibility extension it is
// called before each retry sleep.
func (d *Dispatcher) Dispatch(ctx context.Context, messageID string, evt Event, ackHandle string, transport VisibilityExtender) (ok bool) {
	if evt.Type == "" {
		d.log.WarnContext(ctx, "event missing type, treating as handled",
			logger.MessageID(messageID))
		return true
	}

	specs := d.router.HandlersFor(evt.Type)
	if len(specs) == 0 {
		d.log.WarnContext(ctx, "no handlers registered for event type",
			logger.MessageID(messageID),
			logger.EventType(evt.Type))
		return true
	}

	// A panic here is a dispatcher bug, not a handler failure: record the
	// message as errored and refuse the ack.
	defer func() {
		if r := recover(); r != nil {
			d.log.ErrorContext(ctx, "dispatcher panicked",
				logger.MessageID(messageID),
				logger.EventType(evt.Type),
				logger.Key("panic", r))
			if err := d.store.SetOverallStatus(ctx, messageID, OverallError); err != nil {
				d.log.ErrorContext(ctx, "failed to persist overall status", logger.Error(err))
			}
			d.messagesFailed.Add(1)
			ok = false
		}
	}()

	names := make([]string, 0, len(specs))
	for name := range specs {
		names = append(names, name)
	}

	var prior *MessageState
	if d.resumeFromStore {
		if loaded, err := d.store.LoadMessageState(ctx, messageID); err == nil {
			prior = loaded
		} else if !errors.Is(err, ErrUnknownMessage) {
			d.log.ErrorContext(ctx, "failed to load prior message state",
				logger.MessageID(messageID), logger.Error(err))
		}
	}

	if err := d.store.InitMessage(ctx, messageID, names); err != nil {
		d.log.ErrorContext(ctx, "failed to init message state",
			logger.MessageID(messageID), logger.Error(err))
	}

	run := &graphRun{
		d:          d,
		specs:      specs,
		state:      NewMessageState(messageID, names),
		evt:        evt,
		ackHandle:  ackHandle,
		ext:        transport,
		dependents: buildDependentsMap(specs),
		completed:  make(map[string]bool),
		failed:     make(map[string]bool),
		scheduled:  make(map[string]bool),
	}

	if prior != nil {
		run.restore(ctx, prior)
	}

	success := run.execute(ctx)

	overall := OverallCompleted
	if !success {
		overall = OverallFailed
		d.messagesFailed.Add(1)
	} else {
		d.messagesProcessed.Add(1)
	}
	run.state.OverallStatus = overall

	if err := d.store.SetOverallStatus(ctx, messageID, overall); err != nil {
		d.log.ErrorContext(ctx, "failed to persist overall status",
			logger.MessageID(messageID), logger.Error(err))
	}

	return success
}

func buildDependentsMap(specs map[string]HandlerSpec) map[string][]string {
	dependents := make(map[string][]string)
	for name, spec := range specs {
		for _, dep := range spec.DependsOn {
			dependents[dep] = append(dependents[dep], name)
		}
	}
	return dependents
}

// graphRun is the per-message execution state of one dispatch.
type graphRun struct {
	d     *Dispatcher
	specs map[string]HandlerSpec
	evt   Event

	ackHandle string
	ext       VisibilityExtender

	// mu guards state: runner goroutines snapshot Results and update
	// attempt counters while the scheduler records terminal transitions.
	mu    sync.Mutex
	state *MessageState

	dependents map[string][]string
	completed  map[string]bool
	failed     map[string]bool
	scheduled  map[string]bool
}

type handlerDone struct {
	name     string
	result   any
	attempts int
	err      error
}

// restore seeds results from a prior partially-successful delivery so
// already-succeeded handlers are not re-run.
func (r *graphRun) restore(ctx context.Context, prior *MessageState) {
	for name, hs := range prior.HandlerStates {
		if hs.Status != StatusSucceeded {
			continue
		}
		if _, ok := r.specs[name]; !ok {
			continue
		}

		r.state.HandlerStates[name] = &HandlerState{
			Status:   StatusSucceeded,
			Attempts: hs.Attempts,
			Result:   hs.Result,
		}
		r.state.Results[name] = hs.Result
		r.completed[name] = true
		r.scheduled[name] = true

		// InitMessage reset the stored record; write the restored result
		// back so the store stays consistent with what actually ran.
		if err := r.d.store.SaveHandlerResult(ctx, r.state.MessageID, name, hs.Result, hs.Attempts, StatusSucceeded); err != nil {
			r.d.log.ErrorContext(ctx, "failed to re-persist restored handler result",
				logger.MessageID(r.state.MessageID), logger.Handler(name), logger.Error(err))
		}

		r.d.log.DebugContext(ctx, "handler restored from state store",
			logger.MessageID(r.state.MessageID), logger.Handler(name))
	}
}

// execute runs the DAG to quiescence and reports overall success.
func (r *graphRun) execute(ctx context.Context) bool {
	limit := r.d.concurrency
	if limit < 1 {
		limit = 1
	}
	sem := make(chan struct{}, limit)
	done := make(chan handlerDone)

	var ready []string
	for name := range r.specs {
		if !r.scheduled[name] && r.depsSatisfied(r.specs[name]) {
			ready = append(ready, name)
			r.scheduled[name] = true
		}
	}

	running := 0
	for len(ready) > 0 || running > 0 {
		for _, name := range ready {
			r.start(ctx, name, sem, done)
			running++
		}
		ready = ready[:0]

		if running == 0 {
			break
		}

		res := <-done
		running--

		if res.err != nil {
			r.fail(ctx, res)
		} else {
			r.complete(ctx, res)
		}

		for _, dep := range r.dependents[res.name] {
			if r.scheduled[dep] {
				continue
			}
			if r.depsSatisfied(r.specs[dep]) {
				ready = append(ready, dep)
				r.scheduled[dep] = true
			}
		}
	}

	return r.evaluate()
}

func (r *graphRun) start(ctx context.Context, name string, sem chan struct{}, done chan<- handlerDone) {
	spec := r.specs[name]

	go func() {
		sem <- struct{}{}
		defer func() { <-sem }()

		result, attempts, err := r.runWithRetries(ctx, spec)
		done <- handlerDone{name: name, result: result, attempts: attempts, err: err}
	}()
}

// runWithRetries executes one handler's retry loop. Attempts are
// sequential and 1-based; a retryable failure extends the message's
// visibility before sleeping the backoff delay.
func (r *graphRun) runWithRetries(ctx context.Context, spec HandlerSpec) (any, int, error) {
	var lastErr error
	attempts := 0

	for attempt := 1; attempt <= spec.RetryPolicy.MaxAttempts(); attempt++ {
		attempts = attempt

		r.mu.Lock()
		hs := r.state.HandlerStates[spec.Name]
		hs.Status = StatusRunning
		hs.Attempts = attempt
		depsResults := maps.Clone(r.state.Results)
		r.mu.Unlock()

		hctx := HandlerContext{
			Event:       r.evt,
			DepsResults: depsResults,
			Attempt:     attempt,
			MessageID:   r.state.MessageID,
			Metadata:    spec.Metadata,
		}

		deps, err := resolveDependencies(ctx, spec)
		if err == nil {
			hctx.deps = deps
			var result any
			if result, err = invokeWithTimeout(ctx, spec, hctx); err == nil {
				return result, attempt, nil
			}
		}
		lastErr = err

		r.d.log.WarnContext(ctx, "handler attempt failed",
			logger.MessageID(r.state.MessageID),
			logger.Handler(spec.Name),
			logger.Attempt(attempt),
			logger.Error(err))

		if !spec.RetryPolicy.ShouldRetry(attempt, err) {
			break
		}

		if r.ext != nil && r.ackHandle != "" {
			if verr := r.ext.ChangeVisibility(ctx, r.ackHandle, r.d.visibilityExtension); verr != nil {
				r.d.log.WarnContext(ctx, "failed to extend message visibility",
					logger.MessageID(r.state.MessageID),
					logger.Handler(spec.Name),
					logger.Error(verr))
			}
		}

		select {
		case <-time.After(spec.Backoff.NextDelay(attempt)):
		case <-ctx.Done():
			return nil, attempt, ctx.Err()
		}
	}

	if lastErr == nil {
		lastErr = errors.New("handler failed without specific error")
	}
	return nil, attempts, lastErr
}

// resolveDependencies invokes the spec's named resolvers for this attempt.
func resolveDependencies(ctx context.Context, spec HandlerSpec) (map[string]any, error) {
	if len(spec.Dependencies) == 0 {
		return nil, nil
	}

	deps := make(map[string]any, len(spec.Dependencies))
	for _, resolver := range spec.Dependencies {
		value, err := resolver.Resolve(ctx)
		if err != nil {
			return nil, fmt.Errorf("%w: %q: %v", ErrDependencyResolution, resolver.Name, err)
		}
		deps[resolver.Name] = value
	}
	return deps, nil
}

// invokeWithTimeout runs one attempt under the spec's per-attempt timeout.
// The timeout cancels the handler's context; a handler that ignores the
// context is abandoned to finish in the background while the attempt is
// recorded as timed out.
func invokeWithTimeout(ctx context.Context, spec HandlerSpec, hctx HandlerContext) (any, error) {
	timeout := spec.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type outcome struct {
		result any
		err    error
	}
	ch := make(chan outcome, 1)

	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				ch <- outcome{err: fmt.Errorf("handler panicked: %v", rec)}
			}
		}()

		result, err := spec.Handler(attemptCtx, hctx)
		ch <- outcome{result: result, err: err}
	}()

	select {
	case out := <-ch:
		return out.result, out.err
	case <-attemptCtx.Done():
		if errors.Is(attemptCtx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w after %s", ErrHandlerTimeout, timeout)
		}
		return nil, attemptCtx.Err()
	}
}

func (r *graphRun) complete(ctx context.Context, res handlerDone) {
	r.mu.Lock()
	hs := r.state.HandlerStates[res.name]
	hs.Status = StatusSucceeded
	hs.Attempts = res.attempts
	hs.Result = res.result
	r.state.Results[res.name] = res.result
	r.mu.Unlock()

	r.completed[res.name] = true
	r.d.handlersSucceeded.Add(1)

	if err := r.d.store.SaveHandlerResult(ctx, r.state.MessageID, res.name, res.result, res.attempts, StatusSucceeded); err != nil {
		r.d.log.ErrorContext(ctx, "failed to persist handler result",
			logger.MessageID(r.state.MessageID), logger.Handler(res.name), logger.Error(err))
	}
}

func (r *graphRun) fail(ctx context.Context, res handlerDone) {
	r.mu.Lock()
	hs := r.state.HandlerStates[res.name]
	hs.Status = StatusFailed
	hs.Attempts = res.attempts
	hs.LastError = serializeError(res.err)
	r.mu.Unlock()

	r.failed[res.name] = true
	r.d.handlersFailed.Add(1)

	if err := r.d.store.MarkHandlerFailed(ctx, r.state.MessageID, res.name, res.err); err != nil {
		r.d.log.ErrorContext(ctx, "failed to persist handler failure",
			logger.MessageID(r.state.MessageID), logger.Handler(res.name), logger.Error(err))
	}

	if r.policyOf(res.name) == FailurePolicyAbort {
		r.markDependentsSkipped(ctx, res.name)
	}
}

// markDependentsSkipped marks every still-pending transitive dependent of
// a failed abort-policy handler as skipped; they never run.
func (r *graphRun) markDependentsSkipped(ctx context.Context, failedName string) {
	queue := append([]string{}, r.dependents[failedName]...)
	for len(queue) > 0 {
		name := queue[0]
		queue = queue[1:]

		r.mu.Lock()
		hs := r.state.HandlerStates[name]
		pending := hs.Status == StatusPending
		if pending {
			hs.Status = StatusSkipped
		}
		r.mu.Unlock()

		if !pending {
			continue
		}

		r.scheduled[name] = true
		r.d.log.DebugContext(ctx, "handler skipped after dependency failure",
			logger.MessageID(r.state.MessageID),
			logger.Handler(name),
			logger.Key("failed_dependency", failedName))

		queue = append(queue, r.dependents[name]...)
	}
}

// depsSatisfied reports whether every declared dependency has reached a
// terminal state that permits this handler to run: succeeded, or failed
// under a non-abort policy.
func (r *graphRun) depsSatisfied(spec HandlerSpec) bool {
	for _, dep := range spec.DependsOn {
		if r.failed[dep] {
			if r.policyOf(dep) == FailurePolicyAbort {
				return false
			}
			continue
		}
		if !r.completed[dep] {
			return false
		}
	}
	return true
}

func (r *graphRun) policyOf(name string) FailurePolicy {
	policy := r.specs[name].FailurePolicy
	if !policy.Valid() {
		policy = r.d.defaultPolicy
	}
	return policy
}

// evaluate reports overall success: the message fails iff an abort-policy
// handler failed.
func (r *graphRun) evaluate() bool {
	for name := range r.failed {
		if r.policyOf(name) == FailurePolicyAbort {
			return false
		}
	}
	return true
}
