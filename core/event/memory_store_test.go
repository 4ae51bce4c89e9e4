package event_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/eventbus/core/event"
)

func TestMemoryStore_RoundTrip(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := event.NewMemoryStore()
	t.Cleanup(func() { _ = store.Close() })

	require.NoError(t, store.InitMessage(ctx, "m1", []string{"validate", "charge"}))

	state, err := store.LoadMessageState(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, "m1", state.MessageID)
	assert.Equal(t, event.OverallProcessing, state.OverallStatus)
	require.Len(t, state.HandlerStates, 2)
	assert.Equal(t, event.StatusPending, state.HandlerStates["validate"].Status)

	require.NoError(t, store.SaveHandlerResult(ctx, "m1", "validate", "ok", 1, event.StatusSucceeded))
	require.NoError(t, store.MarkHandlerFailed(ctx, "m1", "charge", errors.New("card declined")))
	require.NoError(t, store.SetOverallStatus(ctx, "m1", event.OverallFailed))

	state, err = store.LoadMessageState(ctx, "m1")
	require.NoError(t, err)

	validate := state.HandlerStates["validate"]
	assert.Equal(t, event.StatusSucceeded, validate.Status)
	assert.Equal(t, 1, validate.Attempts)
	assert.Equal(t, "ok", validate.Result)
	assert.Nil(t, validate.LastError)
	assert.Equal(t, "ok", state.Results["validate"])

	charge := state.HandlerStates["charge"]
	assert.Equal(t, event.StatusFailed, charge.Status)
	require.NotNil(t, charge.LastError)
	assert.Equal(t, "card declined", charge.LastError.Message)
	assert.NotEmpty(t, charge.LastError.Type)

	assert.Equal(t, event.OverallFailed, state.OverallStatus)
}

func TestMemoryStore_InitIsIdempotent(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := event.NewMemoryStore()

	require.NoError(t, store.InitMessage(ctx, "m1", []string{"a"}))
	require.NoError(t, store.SaveHandlerResult(ctx, "m1", "a", 42, 2, event.StatusSucceeded))

	// Re-initializing resets the record.
	require.NoError(t, store.InitMessage(ctx, "m1", []string{"a"}))

	state, err := store.LoadMessageState(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, event.StatusPending, state.HandlerStates["a"].Status)
	assert.Empty(t, state.Results)
}

func TestMemoryStore_UnknownMessage(t *testing.T) {
	t.Parallel()

	store := event.NewMemoryStore()
	_, err := store.LoadMessageState(context.Background(), "missing")
	assert.ErrorIs(t, err, event.ErrUnknownMessage)
}

func TestMemoryStore_LoadReturnsCopy(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := event.NewMemoryStore()
	require.NoError(t, store.InitMessage(ctx, "m1", []string{"a"}))

	state, err := store.LoadMessageState(ctx, "m1")
	require.NoError(t, err)
	state.HandlerStates["a"].Status = event.StatusFailed
	state.Results["a"] = "tampered"

	fresh, err := store.LoadMessageState(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, event.StatusPending, fresh.HandlerStates["a"].Status)
	assert.Empty(t, fresh.Results)
}
