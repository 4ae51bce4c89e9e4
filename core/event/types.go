package event

import "context"

// HandlerStatus tracks a handler's lifecycle within one message dispatch.
type HandlerStatus string

const (
	StatusPending   HandlerStatus = "pending"
	StatusRunning   HandlerStatus = "running"
	StatusSucceeded HandlerStatus = "succeeded"
	StatusFailed    HandlerStatus = "failed"
	StatusSkipped   HandlerStatus = "skipped"
)

// Terminal reports whether the status is final for this dispatch.
func (s HandlerStatus) Terminal() bool {
	switch s {
	case StatusSucceeded, StatusFailed, StatusSkipped:
		return true
	}
	return false
}

// FailurePolicy governs what happens to a handler's dependents when it
// fails after exhausting its retries.
type FailurePolicy string

const (
	// FailurePolicyAbort skips all transitive dependents and fails the
	// message. This is the default.
	FailurePolicyAbort FailurePolicy = "abort"

	// FailurePolicyContinue still schedules dependents; the failure does
	// not by itself fail the message.
	FailurePolicyContinue FailurePolicy = "continue"

	// FailurePolicyCompensate schedules like continue. Reserved for
	// pairing with a user-supplied compensating handler.
	FailurePolicyCompensate FailurePolicy = "compensate"
)

// Valid reports whether the policy is one of the known values.
func (p FailurePolicy) Valid() bool {
	switch p {
	case FailurePolicyAbort, FailurePolicyContinue, FailurePolicyCompensate:
		return true
	}
	return false
}

// OverallStatus summarizes one message's dispatch outcome.
type OverallStatus string

const (
	OverallProcessing OverallStatus = "processing"
	OverallCompleted  OverallStatus = "completed"
	OverallFailed     OverallStatus = "failed"
	// OverallError marks a dispatcher-internal fault, as opposed to a
	// handler failure.
	OverallError OverallStatus = "error"
)

// Handler processes one event on behalf of one registered handler name.
// The returned value is cached in the message state and exposed to
// dependents via HandlerContext.DepsResults.
type Handler func(ctx context.Context, hctx HandlerContext) (any, error)

// Resolver produces an injected dependency value before each handler
// attempt. Resolvers are declared at registration and resolved fresh per
// attempt; a resolver error counts as an attempt failure.
type Resolver struct {
	Name    string
	Resolve func(ctx context.Context) (any, error)
}

// HandlerContext is the immutable per-attempt view a handler receives.
type HandlerContext struct {
	Event       Event
	DepsResults map[string]any
	Attempt     int
	MessageID   string
	Metadata    map[string]any

	deps map[string]any
}

// Dep returns the injected dependency resolved under name, or nil if the
// handler declared no such resolver.
func (c HandlerContext) Dep(name string) any {
	return c.deps[name]
}

// HandlerState is the mutable per-message record for one handler.
type HandlerState struct {
	Status    HandlerStatus `json:"status"`
	Attempts  int           `json:"attempts"`
	Result    any           `json:"result,omitempty"`
	LastError *HandlerError `json:"last_error,omitempty"`
}

// HandlerError is the serialized form of a handler failure kept in the
// state store.
type HandlerError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// Error implements the error interface.
func (e *HandlerError) Error() string {
	if e == nil {
		return ""
	}
	return e.Message
}

// MessageState aggregates the dispatch state of one message across all its
// handlers.
type MessageState struct {
	MessageID     string                   `json:"message_id"`
	HandlerStates map[string]*HandlerState `json:"handler_states"`
	Results       map[string]any           `json:"results"`
	OverallStatus OverallStatus            `json:"overall_status"`
}

// NewMessageState creates a state with every named handler pending.
func NewMessageState(messageID string, handlerNames []string) *MessageState {
	states := make(map[string]*HandlerState, len(handlerNames))
	for _, name := range handlerNames {
		states[name] = &HandlerState{Status: StatusPending}
	}
	return &MessageState{
		MessageID:     messageID,
		HandlerStates: states,
		Results:       make(map[string]any),
		OverallStatus: OverallProcessing,
	}
}
