package event_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/eventbus/core/event"
)

func noopHandler(ctx context.Context, hctx event.HandlerContext) (any, error) {
	return nil, nil
}

func TestRouter_Route(t *testing.T) {
	t.Parallel()

	t.Run("registers handler with explicit name", func(t *testing.T) {
		t.Parallel()

		router := event.NewRouter()
		require.NoError(t, router.Route("order:created", noopHandler, event.WithName("audit")))

		specs := router.HandlersFor("order:created")
		require.Len(t, specs, 1)
		assert.Contains(t, specs, "audit")
	})

	t.Run("derives deterministic name from function identity", func(t *testing.T) {
		t.Parallel()

		router := event.NewRouter()
		require.NoError(t, router.Route("order:created", noopHandler))

		specs := router.HandlersFor("order:created")
		require.Len(t, specs, 1)
		for name := range specs {
			assert.Contains(t, name, "noopHandler")
		}
	})

	t.Run("rejects nil handler", func(t *testing.T) {
		t.Parallel()

		router := event.NewRouter()
		assert.ErrorIs(t, router.Route("order:created", nil), event.ErrNilHandler)
	})

	t.Run("rejects duplicate name within event type", func(t *testing.T) {
		t.Parallel()

		router := event.NewRouter()
		require.NoError(t, router.Route("order:created", noopHandler, event.WithName("audit")))

		err := router.Route("order:created", noopHandler, event.WithName("audit"))
		assert.ErrorIs(t, err, event.ErrDuplicateHandler)

		// Same name under another event type is fine.
		require.NoError(t, router.Route("order:deleted", noopHandler, event.WithName("audit")))
	})

	t.Run("rejects unknown dependency and rolls back", func(t *testing.T) {
		t.Parallel()

		router := event.NewRouter()
		err := router.Route("order:created", noopHandler,
			event.WithName("notify"),
			event.WithDependsOn("charge"))
		require.ErrorIs(t, err, event.ErrUnknownDependency)

		assert.Empty(t, router.HandlersFor("order:created"))
	})

	t.Run("rejects cycle and leaves router unchanged", func(t *testing.T) {
		t.Parallel()

		router := event.NewRouter()
		require.NoError(t, router.Route("order:created", noopHandler, event.WithName("a")))
		require.NoError(t, router.Route("order:created", noopHandler,
			event.WithName("b"),
			event.WithDependsOn("a")))

		before := router.HandlersFor("order:created")

		// A self-dependency is the one cycle reachable through Route,
		// since referenced dependencies must already exist.
		err := router.Route("order:created", noopHandler,
			event.WithName("c"),
			event.WithDependsOn("c"))
		require.ErrorIs(t, err, event.ErrCycleDetected)

		after := router.HandlersFor("order:created")
		require.Len(t, after, len(before))
		for name := range before {
			assert.Contains(t, after, name)
		}
	})

	t.Run("cycle error reports the path", func(t *testing.T) {
		t.Parallel()

		router := event.NewRouter()
		err := router.Route("evt", noopHandler, event.WithName("a"), event.WithDependsOn("a"))
		require.ErrorIs(t, err, event.ErrCycleDetected)
		assert.Contains(t, err.Error(), "a -> a")
	})
}

func TestRouter_HandlersForSnapshot(t *testing.T) {
	t.Parallel()

	router := event.NewRouter()
	require.NoError(t, router.Route("order:created", noopHandler, event.WithName("audit")))

	snapshot := router.HandlersFor("order:created")
	delete(snapshot, "audit")

	assert.Len(t, router.HandlersFor("order:created"), 1)
}

func TestRouter_On(t *testing.T) {
	t.Parallel()

	router := event.NewRouter()
	on := router.On("order:created")

	require.NoError(t, on(noopHandler, event.WithName("validate")))
	require.NoError(t, on(noopHandler, event.WithName("charge"), event.WithDependsOn("validate")))

	specs := router.HandlersFor("order:created")
	require.Len(t, specs, 2)
	assert.Equal(t, []string{"validate"}, specs["charge"].DependsOn)
}

func TestRouter_EventTypes(t *testing.T) {
	t.Parallel()

	router := event.NewRouter()
	require.NoError(t, router.Route("a", noopHandler, event.WithName("h1")))
	require.NoError(t, router.Route("b", noopHandler, event.WithName("h2")))

	types := router.EventTypes()
	assert.ElementsMatch(t, []string{"a", "b"}, types)
}
