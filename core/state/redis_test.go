package state_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/eventbus/core/event"
	"github.com/dmitrymomot/eventbus/core/state"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, redis.UniversalClient) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return mr, client
}

func TestRedisStore_RoundTrip(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	_, client := newTestRedis(t)
	store := state.NewRedisStore(client)

	require.NoError(t, store.InitMessage(ctx, "m1", []string{"validate", "charge"}))

	loaded, err := store.LoadMessageState(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, event.OverallProcessing, loaded.OverallStatus)
	require.Len(t, loaded.HandlerStates, 2)
	assert.Equal(t, event.StatusPending, loaded.HandlerStates["validate"].Status)

	require.NoError(t, store.SaveHandlerResult(ctx, "m1", "validate", "ok", 1, event.StatusSucceeded))
	require.NoError(t, store.MarkHandlerFailed(ctx, "m1", "charge", errors.New("card declined")))
	require.NoError(t, store.SetOverallStatus(ctx, "m1", event.OverallFailed))

	loaded, err = store.LoadMessageState(ctx, "m1")
	require.NoError(t, err)

	validate := loaded.HandlerStates["validate"]
	assert.Equal(t, event.StatusSucceeded, validate.Status)
	assert.Equal(t, 1, validate.Attempts)
	assert.Equal(t, "ok", validate.Result)
	assert.Equal(t, "ok", loaded.Results["validate"])

	charge := loaded.HandlerStates["charge"]
	assert.Equal(t, event.StatusFailed, charge.Status)
	require.NotNil(t, charge.LastError)
	assert.Equal(t, "card declined", charge.LastError.Message)

	assert.Equal(t, event.OverallFailed, loaded.OverallStatus)
}

func TestRedisStore_UnknownMessage(t *testing.T) {
	t.Parallel()

	_, client := newTestRedis(t)
	store := state.NewRedisStore(client)

	_, err := store.LoadMessageState(context.Background(), "missing")
	assert.ErrorIs(t, err, event.ErrUnknownMessage)
}

func TestRedisStore_TTL(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	mr, client := newTestRedis(t)
	store := state.NewRedisStore(client, state.WithTTL(time.Minute))

	require.NoError(t, store.InitMessage(ctx, "m1", []string{"a"}))
	assert.Greater(t, mr.TTL("message:m1"), time.Duration(0))

	// Past the TTL the key expires and the message becomes unknown.
	mr.FastForward(2 * time.Minute)
	_, err := store.LoadMessageState(ctx, "m1")
	assert.ErrorIs(t, err, event.ErrUnknownMessage)
}

func TestRedisStore_InitResetsExistingState(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	_, client := newTestRedis(t)
	store := state.NewRedisStore(client)

	require.NoError(t, store.InitMessage(ctx, "m1", []string{"a"}))
	require.NoError(t, store.SaveHandlerResult(ctx, "m1", "a", "done", 3, event.StatusSucceeded))
	require.NoError(t, store.InitMessage(ctx, "m1", []string{"a"}))

	loaded, err := store.LoadMessageState(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, event.StatusPending, loaded.HandlerStates["a"].Status)
	assert.Empty(t, loaded.Results)
}

func TestRedisStore_WorksAsDispatcherBackend(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	_, client := newTestRedis(t)
	store := state.NewRedisStore(client)

	router := event.NewRouter()
	require.NoError(t, router.Route("evt", func(ctx context.Context, hctx event.HandlerContext) (any, error) {
		return "done", nil
	}, event.WithName("h")))

	dispatcher := event.NewDispatcher(router, store)
	require.True(t, dispatcher.Dispatch(ctx, "m1", event.Event{Type: "evt"}, "rh", nil))

	loaded, err := store.LoadMessageState(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, event.OverallCompleted, loaded.OverallStatus)
	assert.Equal(t, "done", loaded.Results["h"])
}
