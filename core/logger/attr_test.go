package logger_test

import (
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/eventbus/core/logger"
)

func TestError(t *testing.T) {
	t.Parallel()

	err := errors.New("boom")
	attr := logger.Error(err)
	require.Equal(t, "error", attr.Key)
	assert.Equal(t, err, attr.Value.Any())

	empty := logger.Error(nil)
	assert.True(t, empty.Equal(slog.Attr{}))
}

func TestErrors(t *testing.T) {
	t.Parallel()

	err1 := errors.New("first")
	err2 := errors.New("second")

	attr := logger.Errors(err1, nil, err2)
	require.Equal(t, "errors", attr.Key)
	require.Equal(t, slog.KindGroup, attr.Value.Kind())
	g := attr.Value.Group()
	require.Len(t, g, 2)
	assert.Equal(t, err1, g[0].Value.Any())
	assert.Equal(t, err2, g[1].Value.Any())

	empty := logger.Errors(nil)
	assert.True(t, empty.Equal(slog.Attr{}))
}

func TestGroup(t *testing.T) {
	t.Parallel()

	attr := logger.Group("msg", slog.String("id", "1"), slog.Int("n", 2))
	require.Equal(t, "msg", attr.Key)
	require.Equal(t, slog.KindGroup, attr.Value.Kind())
	require.Len(t, attr.Value.Group(), 2)
}

func TestDomainAttrs(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "message_id", logger.MessageID("m1").Key)
	assert.True(t, logger.MessageID("").Equal(slog.Attr{}))

	assert.Equal(t, "event_type", logger.EventType("order:created").Key)
	assert.True(t, logger.EventType("").Equal(slog.Attr{}))

	assert.Equal(t, "handler", logger.Handler("charge").Key)
	assert.True(t, logger.Handler("").Equal(slog.Attr{}))

	attr := logger.Attempt(2)
	assert.Equal(t, "attempt", attr.Key)
	assert.Equal(t, int64(2), attr.Value.Int64())

	assert.Equal(t, "consumer_id", logger.Consumer("c1").Key)
	assert.Equal(t, "source", logger.Source("sqs").Key)
}

func TestTimingAttrs(t *testing.T) {
	t.Parallel()

	attr := logger.Duration(time.Second)
	assert.Equal(t, "duration", attr.Key)
	assert.Equal(t, time.Second, attr.Value.Duration())

	elapsed := logger.Elapsed(time.Now().Add(-time.Millisecond))
	assert.Equal(t, "elapsed", elapsed.Key)
	assert.GreaterOrEqual(t, elapsed.Value.Duration(), time.Millisecond)
}

func TestGenericAttrs(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "component", logger.Component("dispatcher").Key)
	assert.Equal(t, int64(3), logger.Count("handlers", 3).Value.Int64())
	assert.True(t, logger.Key("k", nil).Equal(slog.Attr{}))
	assert.Equal(t, "v", logger.Key("k", "v").Value.Any())
}
