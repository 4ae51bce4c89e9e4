package consumer

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/eventbus/core/event"
	"github.com/dmitrymomot/eventbus/core/logger"
)

// SignatureHeader carries the hex-encoded HMAC-SHA256 of the raw request
// body when signature verification is enabled.
const SignatureHeader = "X-Webhook-Signature"

// WebhookConsumer accepts events over HTTP POST. It implements
// http.Handler; the caller mounts it on their own mux and owns the server
// lifecycle:
//
//	mux.Handle(cfg.Endpoint, hook)
//
// There is no durable queue behind a webhook: Ack is a no-op log, Nack
// logs a warning, and the event producer owns retries.
type WebhookConsumer struct {
	cfg        WebhookConfig
	dispatcher Dispatcher
	log        *slog.Logger

	eventsAccepted atomic.Int64
	eventsRejected atomic.Int64
}

// WebhookOption configures a WebhookConsumer.
type WebhookOption func(*WebhookConsumer)

// WithWebhookLogger configures structured logging for webhook operations.
func WithWebhookLogger(log *slog.Logger) WebhookOption {
	return func(c *WebhookConsumer) {
		if log != nil {
			c.log = log
		}
	}
}

// NewWebhookConsumer creates an HTTP push consumer.
func NewWebhookConsumer(cfg WebhookConfig, dispatcher Dispatcher, opts ...WebhookOption) (*WebhookConsumer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if dispatcher == nil {
		return nil, ErrNotSubscribed
	}

	c := &WebhookConsumer{
		cfg:        cfg,
		dispatcher: dispatcher,
		log:        slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c, nil
}

// Endpoint returns the path the consumer expects to be mounted at.
func (c *WebhookConsumer) Endpoint() string { return c.cfg.Endpoint }

// Start is part of the Consumer interface. The HTTP server belongs to the
// caller, so starting is a no-op beyond logging readiness.
func (c *WebhookConsumer) Start(ctx context.Context) error {
	c.log.InfoContext(ctx, "webhook consumer ready", logger.Key("endpoint", c.cfg.Endpoint))
	return nil
}

// Stop is part of the Consumer interface.
func (c *WebhookConsumer) Stop() error {
	c.log.Info("webhook consumer stopped")
	return nil
}

// Ack is a no-op: there is no queue to delete from.
func (c *WebhookConsumer) Ack(ctx context.Context, msg event.Message) error {
	c.log.DebugContext(ctx, "webhook event acked", logger.MessageID(msg.ID))
	return nil
}

// Nack only logs: the producer is responsible for retrying.
func (c *WebhookConsumer) Nack(ctx context.Context, msg event.Message, requeue bool) error {
	c.log.WarnContext(ctx, "webhook event nacked",
		logger.MessageID(msg.ID),
		logger.Key("requeue", requeue))
	return nil
}

// ServeHTTP decodes the request body into a Message and dispatches it
// synchronously. Parse and signature failures map to 4xx; a dispatch that
// refuses the ack maps to 422 so the producer knows to retry.
func (c *WebhookConsumer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, c.cfg.MaxBodyBytes))
	if err != nil {
		c.eventsRejected.Add(1)
		http.Error(w, "failed to read body", http.StatusBadRequest)
		return
	}

	if c.cfg.Secret != "" && !c.verifySignature(body, r.Header.Get(SignatureHeader)) {
		c.eventsRejected.Add(1)
		c.log.WarnContext(r.Context(), "webhook signature verification failed")
		http.Error(w, "invalid signature", http.StatusUnauthorized)
		return
	}

	msg, err := decodeWebhookMessage(body)
	if err != nil {
		c.eventsRejected.Add(1)
		c.log.WarnContext(r.Context(), "webhook payload rejected", logger.Error(err))
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	evt := event.EventFromMessage(msg)
	if ok := c.dispatcher.Dispatch(r.Context(), msg.ID, evt, msg.AckHandle, nil); !ok {
		c.eventsRejected.Add(1)
		_ = c.Nack(r.Context(), msg, false)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnprocessableEntity)
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "failed"})
		return
	}

	c.eventsAccepted.Add(1)
	_ = c.Ack(r.Context(), msg)

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (c *WebhookConsumer) verifySignature(body []byte, signature string) bool {
	if signature == "" {
		return false
	}

	mac := hmac.New(sha256.New, []byte(c.cfg.Secret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))

	return hmac.Equal([]byte(expected), []byte(signature))
}

// decodeWebhookMessage parses an inbound payload. A full Message envelope
// is honored; a bare event object is wrapped into one with a generated ID.
func decodeWebhookMessage(body []byte) (event.Message, error) {
	if !json.Valid(body) {
		return event.Message{}, ErrDeserializationFailed
	}

	var msg event.Message
	if err := json.Unmarshal(body, &msg); err != nil || len(msg.Body) == 0 {
		// Not an envelope; treat the whole payload as the event body.
		msg = event.Message{Body: event.EncodeBody(body)}
	}

	if msg.ID == "" {
		msg.ID = uuid.New().String()
	}
	msg.Source = TypeWebhook
	msg.ReceivedAt = time.Now()

	return msg, nil
}
