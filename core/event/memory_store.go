package event

import (
	"context"
	"maps"
	"sync"
)

// MemoryStore is a process-local, non-durable StateStore for tests and
// single-instance deployments.
type MemoryStore struct {
	mu     sync.RWMutex
	states map[string]*MessageState
}

// NewMemoryStore creates an empty in-memory state store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		states: make(map[string]*MessageState),
	}
}

// InitMessage records a fresh message with every handler pending.
func (s *MemoryStore) InitMessage(_ context.Context, messageID string, handlerNames []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.states[messageID] = NewMessageState(messageID, handlerNames)
	return nil
}

// SaveHandlerResult records a handler's terminal result.
func (s *MemoryStore) SaveHandlerResult(_ context.Context, messageID, name string, result any, attempts int, status HandlerStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	state := s.ensureLocked(messageID)
	hs, ok := state.HandlerStates[name]
	if !ok {
		hs = &HandlerState{}
		state.HandlerStates[name] = hs
	}

	hs.Status = status
	hs.Attempts = attempts
	hs.Result = result
	hs.LastError = nil
	state.Results[name] = result
	return nil
}

// MarkHandlerFailed records a handler failure.
func (s *MemoryStore) MarkHandlerFailed(_ context.Context, messageID, name string, handlerErr error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	state := s.ensureLocked(messageID)
	hs, ok := state.HandlerStates[name]
	if !ok {
		hs = &HandlerState{}
		state.HandlerStates[name] = hs
	}

	hs.Status = StatusFailed
	hs.LastError = serializeError(handlerErr)
	return nil
}

// LoadMessageState returns a deep copy of the stored state.
func (s *MemoryStore) LoadMessageState(_ context.Context, messageID string) (*MessageState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	state, ok := s.states[messageID]
	if !ok {
		return nil, ErrUnknownMessage
	}

	return copyMessageState(state), nil
}

// SetOverallStatus records the message's final dispatch outcome.
func (s *MemoryStore) SetOverallStatus(_ context.Context, messageID string, status OverallStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.ensureLocked(messageID).OverallStatus = status
	return nil
}

// Close clears all stored state.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.states = make(map[string]*MessageState)
	return nil
}

func (s *MemoryStore) ensureLocked(messageID string) *MessageState {
	state, ok := s.states[messageID]
	if !ok {
		state = NewMessageState(messageID, nil)
		s.states[messageID] = state
	}
	return state
}

func copyMessageState(state *MessageState) *MessageState {
	cp := &MessageState{
		MessageID:     state.MessageID,
		HandlerStates: make(map[string]*HandlerState, len(state.HandlerStates)),
		Results:       maps.Clone(state.Results),
		OverallStatus: state.OverallStatus,
	}
	for name, hs := range state.HandlerStates {
		hsCopy := *hs
		if hs.LastError != nil {
			errCopy := *hs.LastError
			hsCopy.LastError = &errCopy
		}
		cp.HandlerStates[name] = &hsCopy
	}
	return cp
}
