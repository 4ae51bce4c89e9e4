package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/dmitrymomot/eventbus/core/event"
	"github.com/dmitrymomot/eventbus/integration/database/pg"
)

// DB is the subset of pgxpool.Pool the store needs. Narrowing the
// dependency keeps the store testable without a live database.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const createTableSQL = `
CREATE TABLE IF NOT EXISTS event_message_states (
	message_id     TEXT PRIMARY KEY,
	handler_states JSONB NOT NULL DEFAULT '{}'::jsonb,
	results        JSONB NOT NULL DEFAULT '{}'::jsonb,
	overall_status TEXT  NOT NULL DEFAULT 'processing',
	updated_at     TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// PostgresStore persists message state in a single table with JSONB state
// columns. Writes are read-modify-write on the row; the primary key keeps
// them per-message atomic under READ COMMITTED because every statement
// touches one row.
type PostgresStore struct {
	db DB
}

// NewPostgresStore creates the store and ensures its table exists.
func NewPostgresStore(ctx context.Context, db DB) (*PostgresStore, error) {
	if db == nil {
		return nil, errors.New("postgres store: nil db")
	}

	if _, err := db.Exec(ctx, createTableSQL); err != nil {
		return nil, fmt.Errorf("postgres store: create table: %w", err)
	}

	return &PostgresStore{db: db}, nil
}

// conn returns the context's transaction when one was attached with
// pg.WithTx, so store writes join a caller-owned transaction.
func (s *PostgresStore) conn(ctx context.Context) DB {
	if tx, ok := pg.TxFromContext(ctx); ok {
		return tx
	}
	return s.db
}

// InitMessage records a fresh message with every handler pending,
// resetting any prior row for the same message.
func (s *PostgresStore) InitMessage(ctx context.Context, messageID string, handlerNames []string) error {
	states := make(map[string]*event.HandlerState, len(handlerNames))
	for _, name := range handlerNames {
		states[name] = &event.HandlerState{Status: event.StatusPending}
	}

	statesJSON, err := json.Marshal(states)
	if err != nil {
		return fmt.Errorf("marshal handler states: %w", err)
	}

	_, err = s.conn(ctx).Exec(ctx, `
		INSERT INTO event_message_states (message_id, handler_states, results, overall_status)
		VALUES ($1, $2, '{}'::jsonb, $3)
		ON CONFLICT (message_id) DO UPDATE SET
			handler_states = EXCLUDED.handler_states,
			results = EXCLUDED.results,
			overall_status = EXCLUDED.overall_status,
			updated_at = now()`,
		messageID, statesJSON, string(event.OverallProcessing))
	if err != nil {
		return fmt.Errorf("init message %s: %w", messageID, err)
	}
	return nil
}

// SaveHandlerResult records a handler's terminal result.
func (s *PostgresStore) SaveHandlerResult(ctx context.Context, messageID, name string, result any, attempts int, status event.HandlerStatus) error {
	hs := event.HandlerState{
		Status:   status,
		Attempts: attempts,
		Result:   result,
	}
	hsJSON, err := json.Marshal(hs)
	if err != nil {
		return fmt.Errorf("marshal handler state: %w", err)
	}
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}

	_, err = s.conn(ctx).Exec(ctx, `
		UPDATE event_message_states SET
			handler_states = jsonb_set(handler_states, ARRAY[$2], $3::jsonb),
			results = jsonb_set(results, ARRAY[$2], $4::jsonb),
			updated_at = now()
		WHERE message_id = $1`,
		messageID, name, hsJSON, resultJSON)
	if err != nil {
		return fmt.Errorf("save handler %s result for message %s: %w", name, messageID, err)
	}
	return nil
}

// MarkHandlerFailed records a handler failure with its serialized error.
func (s *PostgresStore) MarkHandlerFailed(ctx context.Context, messageID, name string, handlerErr error) error {
	hs := event.HandlerState{
		Status: event.StatusFailed,
		LastError: &event.HandlerError{
			Type:    fmt.Sprintf("%T", handlerErr),
			Message: handlerErr.Error(),
		},
	}
	hsJSON, err := json.Marshal(hs)
	if err != nil {
		return fmt.Errorf("marshal handler state: %w", err)
	}

	_, err = s.conn(ctx).Exec(ctx, `
		UPDATE event_message_states SET
			handler_states = jsonb_set(handler_states, ARRAY[$2], $3::jsonb),
			updated_at = now()
		WHERE message_id = $1`,
		messageID, name, hsJSON)
	if err != nil {
		return fmt.Errorf("mark handler %s failed for message %s: %w", name, messageID, err)
	}
	return nil
}

// LoadMessageState returns the stored state, or event.ErrUnknownMessage.
func (s *PostgresStore) LoadMessageState(ctx context.Context, messageID string) (*event.MessageState, error) {
	var (
		statesJSON  []byte
		resultsJSON []byte
		overall     string
	)

	row := s.conn(ctx).QueryRow(ctx, `
		SELECT handler_states, results, overall_status
		FROM event_message_states
		WHERE message_id = $1`, messageID)
	if err := row.Scan(&statesJSON, &resultsJSON, &overall); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, event.ErrUnknownMessage
		}
		return nil, fmt.Errorf("load message %s: %w", messageID, err)
	}

	state := &event.MessageState{
		MessageID:     messageID,
		HandlerStates: make(map[string]*event.HandlerState),
		Results:       make(map[string]any),
		OverallStatus: event.OverallStatus(overall),
	}
	if len(statesJSON) > 0 {
		if err := json.Unmarshal(statesJSON, &state.HandlerStates); err != nil {
			return nil, fmt.Errorf("decode handler states for %s: %w", messageID, err)
		}
	}
	if len(resultsJSON) > 0 {
		if err := json.Unmarshal(resultsJSON, &state.Results); err != nil {
			return nil, fmt.Errorf("decode results for %s: %w", messageID, err)
		}
	}

	return state, nil
}

// SetOverallStatus records the message's final dispatch outcome.
func (s *PostgresStore) SetOverallStatus(ctx context.Context, messageID string, status event.OverallStatus) error {
	_, err := s.conn(ctx).Exec(ctx, `
		UPDATE event_message_states SET overall_status = $2, updated_at = now()
		WHERE message_id = $1`,
		messageID, string(status))
	if err != nil {
		return fmt.Errorf("set overall status for message %s: %w", messageID, err)
	}
	return nil
}

// Close is a no-op: the pool is owned by the caller.
func (s *PostgresStore) Close() error { return nil }
