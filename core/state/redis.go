package state

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/dmitrymomot/eventbus/core/event"
)

const keyPrefix = "message:"

// RedisStore persists message state in Redis hashes, one per message.
// Key format: "message:{message_id}" with fields "handler_states",
// "results" (JSON maps) and "overall_status".
type RedisStore struct {
	client redis.UniversalClient
	ttl    time.Duration
}

// RedisStoreOption configures a RedisStore.
type RedisStoreOption func(*RedisStore)

// WithTTL expires message keys after the given duration so processed
// messages clean themselves up. Zero disables expiry.
func WithTTL(ttl time.Duration) RedisStoreOption {
	return func(s *RedisStore) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// NewRedisStore creates a store over an existing Redis client.
func NewRedisStore(client redis.UniversalClient, opts ...RedisStoreOption) *RedisStore {
	s := &RedisStore{client: client}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

func messageKey(messageID string) string {
	return keyPrefix + messageID
}

// InitMessage records a fresh message with every handler pending.
func (s *RedisStore) InitMessage(ctx context.Context, messageID string, handlerNames []string) error {
	states := make(map[string]*event.HandlerState, len(handlerNames))
	for _, name := range handlerNames {
		states[name] = &event.HandlerState{Status: event.StatusPending}
	}

	statesJSON, err := json.Marshal(states)
	if err != nil {
		return fmt.Errorf("marshal handler states: %w", err)
	}

	key := messageKey(messageID)
	if err := s.client.HSet(ctx, key,
		"handler_states", string(statesJSON),
		"results", "{}",
		"overall_status", string(event.OverallProcessing),
	).Err(); err != nil {
		return fmt.Errorf("init message %s: %w", messageID, err)
	}

	if s.ttl > 0 {
		if err := s.client.Expire(ctx, key, s.ttl).Err(); err != nil {
			return fmt.Errorf("set ttl for message %s: %w", messageID, err)
		}
	}

	return nil
}

// SaveHandlerResult records a handler's terminal result and caches it for
// dependents.
func (s *RedisStore) SaveHandlerResult(ctx context.Context, messageID, name string, result any, attempts int, status event.HandlerStatus) error {
	key := messageKey(messageID)

	states, results, err := s.loadFields(ctx, key)
	if err != nil {
		return err
	}

	hs, ok := states[name]
	if !ok {
		hs = &event.HandlerState{}
		states[name] = hs
	}
	hs.Status = status
	hs.Attempts = attempts
	hs.Result = result
	hs.LastError = nil
	results[name] = result

	return s.saveFields(ctx, key, states, results)
}

// MarkHandlerFailed records a handler failure with its serialized error.
func (s *RedisStore) MarkHandlerFailed(ctx context.Context, messageID, name string, handlerErr error) error {
	key := messageKey(messageID)

	states, _, err := s.loadFields(ctx, key)
	if err != nil {
		return err
	}

	hs, ok := states[name]
	if !ok {
		hs = &event.HandlerState{}
		states[name] = hs
	}
	hs.Status = event.StatusFailed
	hs.LastError = &event.HandlerError{
		Type:    fmt.Sprintf("%T", handlerErr),
		Message: handlerErr.Error(),
	}

	statesJSON, err := json.Marshal(states)
	if err != nil {
		return fmt.Errorf("marshal handler states: %w", err)
	}

	if err := s.client.HSet(ctx, key, "handler_states", string(statesJSON)).Err(); err != nil {
		return fmt.Errorf("mark handler %s failed for message %s: %w", name, messageID, err)
	}
	return nil
}

// LoadMessageState returns the stored state, or event.ErrUnknownMessage.
func (s *RedisStore) LoadMessageState(ctx context.Context, messageID string) (*event.MessageState, error) {
	key := messageKey(messageID)

	data, err := s.client.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("load message %s: %w", messageID, err)
	}
	if len(data) == 0 {
		return nil, event.ErrUnknownMessage
	}

	state := &event.MessageState{
		MessageID:     messageID,
		HandlerStates: make(map[string]*event.HandlerState),
		Results:       make(map[string]any),
		OverallStatus: event.OverallProcessing,
	}

	if raw, ok := data["handler_states"]; ok && raw != "" {
		if err := json.Unmarshal([]byte(raw), &state.HandlerStates); err != nil {
			return nil, fmt.Errorf("decode handler states for %s: %w", messageID, err)
		}
	}
	if raw, ok := data["results"]; ok && raw != "" {
		if err := json.Unmarshal([]byte(raw), &state.Results); err != nil {
			return nil, fmt.Errorf("decode results for %s: %w", messageID, err)
		}
	}
	if raw, ok := data["overall_status"]; ok && raw != "" {
		state.OverallStatus = event.OverallStatus(raw)
	}

	return state, nil
}

// SetOverallStatus records the message's final dispatch outcome.
func (s *RedisStore) SetOverallStatus(ctx context.Context, messageID string, status event.OverallStatus) error {
	if err := s.client.HSet(ctx, messageKey(messageID), "overall_status", string(status)).Err(); err != nil {
		return fmt.Errorf("set overall status for message %s: %w", messageID, err)
	}
	return nil
}

// Close releases the underlying client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) loadFields(ctx context.Context, key string) (map[string]*event.HandlerState, map[string]any, error) {
	values, err := s.client.HMGet(ctx, key, "handler_states", "results").Result()
	if err != nil {
		return nil, nil, fmt.Errorf("load fields for %s: %w", key, err)
	}

	states := make(map[string]*event.HandlerState)
	results := make(map[string]any)

	if raw, ok := values[0].(string); ok && raw != "" {
		if err := json.Unmarshal([]byte(raw), &states); err != nil {
			return nil, nil, fmt.Errorf("decode handler states for %s: %w", key, err)
		}
	}
	if raw, ok := values[1].(string); ok && raw != "" {
		if err := json.Unmarshal([]byte(raw), &results); err != nil {
			return nil, nil, fmt.Errorf("decode results for %s: %w", key, err)
		}
	}

	return states, results, nil
}

func (s *RedisStore) saveFields(ctx context.Context, key string, states map[string]*event.HandlerState, results map[string]any) error {
	statesJSON, err := json.Marshal(states)
	if err != nil {
		return fmt.Errorf("marshal handler states: %w", err)
	}
	resultsJSON, err := json.Marshal(results)
	if err != nil {
		return fmt.Errorf("marshal results: %w", err)
	}

	if err := s.client.HSet(ctx, key,
		"handler_states", string(statesJSON),
		"results", string(resultsJSON),
	).Err(); err != nil {
		return fmt.Errorf("save fields for %s: %w", key, err)
	}
	return nil
}
