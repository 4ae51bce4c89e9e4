package consumer

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/dmitrymomot/eventbus/core/event"
	"github.com/dmitrymomot/eventbus/core/logger"
)

// WebsocketConsumer accepts events over a WebSocket endpoint: each
// received JSON frame is one message. Like the webhook consumer it
// implements http.Handler and is mounted on the caller's mux; the upgrade
// and per-connection read loops are owned here.
type WebsocketConsumer struct {
	cfg        WebsocketConfig
	dispatcher Dispatcher
	upgrader   websocket.Upgrader
	log        *slog.Logger

	mu     sync.Mutex
	conns  map[*websocket.Conn]struct{}
	closed bool

	framesProcessed atomic.Int64
	framesRejected  atomic.Int64
}

// WebsocketOption configures a WebsocketConsumer.
type WebsocketOption func(*WebsocketConsumer)

// WithWebsocketLogger configures structured logging.
func WithWebsocketLogger(log *slog.Logger) WebsocketOption {
	return func(c *WebsocketConsumer) {
		if log != nil {
			c.log = log
		}
	}
}

// WithOriginCheck overrides the upgrade origin check.
func WithOriginCheck(fn func(r *http.Request) bool) WebsocketOption {
	return func(c *WebsocketConsumer) {
		if fn != nil {
			c.upgrader.CheckOrigin = fn
		}
	}
}

// NewWebsocketConsumer creates a WebSocket push consumer.
func NewWebsocketConsumer(cfg WebsocketConfig, dispatcher Dispatcher, opts ...WebsocketOption) (*WebsocketConsumer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if dispatcher == nil {
		return nil, ErrNotSubscribed
	}

	c := &WebsocketConsumer{
		cfg:        cfg,
		dispatcher: dispatcher,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  cfg.ReadBufferSize,
			WriteBufferSize: cfg.WriteBufferSize,
		},
		log:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		conns: make(map[*websocket.Conn]struct{}),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c, nil
}

// Endpoint returns the path the consumer expects to be mounted at.
func (c *WebsocketConsumer) Endpoint() string { return c.cfg.Endpoint }

// Start is part of the Consumer interface; the HTTP server belongs to the
// caller.
func (c *WebsocketConsumer) Start(ctx context.Context) error {
	c.log.InfoContext(ctx, "websocket consumer ready", logger.Key("endpoint", c.cfg.Endpoint))
	return nil
}

// Stop closes every open connection and refuses new upgrades.
func (c *WebsocketConsumer) Stop() error {
	c.mu.Lock()
	c.closed = true
	conns := make([]*websocket.Conn, 0, len(c.conns))
	for conn := range c.conns {
		conns = append(conns, conn)
	}
	c.conns = make(map[*websocket.Conn]struct{})
	c.mu.Unlock()

	for _, conn := range conns {
		_ = conn.Close()
	}

	c.log.Info("websocket consumer stopped", logger.Count("closed_connections", len(conns)))
	return nil
}

// Ack is a no-op: frames have no queue to delete from.
func (c *WebsocketConsumer) Ack(ctx context.Context, msg event.Message) error {
	c.log.DebugContext(ctx, "websocket event acked", logger.MessageID(msg.ID))
	return nil
}

// Nack only logs: the sender owns retries.
func (c *WebsocketConsumer) Nack(ctx context.Context, msg event.Message, requeue bool) error {
	c.log.WarnContext(ctx, "websocket event nacked",
		logger.MessageID(msg.ID),
		logger.Key("requeue", requeue))
	return nil
}

// ServeHTTP upgrades the connection and reads frames until the client
// disconnects or the consumer stops. A malformed frame produces an error
// frame back to the client and the loop continues.
func (c *WebsocketConsumer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		http.Error(w, "consumer stopped", http.StatusServiceUnavailable)
		return
	}
	c.mu.Unlock()

	conn, err := c.upgrader.Upgrade(w, r, nil)
	if err != nil {
		c.log.WarnContext(r.Context(), "websocket upgrade failed", logger.Error(err))
		return
	}

	c.mu.Lock()
	c.conns[conn] = struct{}{}
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.conns, conn)
		c.mu.Unlock()
		_ = conn.Close()
	}()

	c.readLoop(r.Context(), conn)
}

func (c *WebsocketConsumer) readLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		_, frame, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.log.WarnContext(ctx, "websocket read failed", logger.Error(err))
			}
			return
		}

		msg, err := decodeWebhookMessage(frame)
		if err != nil {
			c.framesRejected.Add(1)
			c.log.WarnContext(ctx, "websocket frame rejected", logger.Error(err))
			_ = conn.WriteJSON(map[string]string{"status": "invalid", "error": err.Error()})
			continue
		}
		msg.Source = TypeWebsocket

		evt := event.EventFromMessage(msg)
		start := time.Now()

		if ok := c.dispatcher.Dispatch(ctx, msg.ID, evt, msg.AckHandle, nil); !ok {
			c.framesRejected.Add(1)
			_ = c.Nack(ctx, msg, false)
			_ = conn.WriteJSON(map[string]string{"status": "failed", "id": msg.ID})
			continue
		}

		c.framesProcessed.Add(1)
		_ = c.Ack(ctx, msg)
		c.log.DebugContext(ctx, "websocket frame processed",
			logger.MessageID(msg.ID),
			logger.EventType(evt.Type),
			logger.Elapsed(start))
		_ = conn.WriteJSON(map[string]string{"status": "ok", "id": msg.ID})
	}
}
