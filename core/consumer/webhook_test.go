package consumer_test

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/eventbus/core/consumer"
)

func TestWebhookConsumer_AcceptsEvent(t *testing.T) {
	t.Parallel()

	dispatcher := &recordingDispatcher{result: true}
	hook, err := consumer.NewWebhookConsumer(consumer.DefaultWebhookConfig(), dispatcher)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/events",
		strings.NewReader(`{"id":"m1","body":{"type":"order:created","n":1},"source":"webhook"}`))
	rec := httptest.NewRecorder()

	hook.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
	require.Equal(t, 1, dispatcher.callCount())
	assert.Equal(t, []string{"m1"}, dispatcher.calls)
}

func TestWebhookConsumer_WrapsBareEvent(t *testing.T) {
	t.Parallel()

	dispatcher := &recordingDispatcher{result: true}
	hook, err := consumer.NewWebhookConsumer(consumer.DefaultWebhookConfig(), dispatcher)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/events",
		strings.NewReader(`{"type":"order:created","n":1}`))
	rec := httptest.NewRecorder()

	hook.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, 1, dispatcher.callCount())
	// An envelope-less payload gets a generated message id.
	assert.NotEmpty(t, dispatcher.calls[0])
}

func TestWebhookConsumer_RejectsMalformedBody(t *testing.T) {
	t.Parallel()

	dispatcher := &recordingDispatcher{result: true}
	hook, err := consumer.NewWebhookConsumer(consumer.DefaultWebhookConfig(), dispatcher)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/events", strings.NewReader(`{not json`))
	rec := httptest.NewRecorder()

	hook.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Zero(t, dispatcher.callCount())
}

func TestWebhookConsumer_RejectsNonPost(t *testing.T) {
	t.Parallel()

	dispatcher := &recordingDispatcher{result: true}
	hook, err := consumer.NewWebhookConsumer(consumer.DefaultWebhookConfig(), dispatcher)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/events", nil)
	rec := httptest.NewRecorder()

	hook.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestWebhookConsumer_DispatchFailure(t *testing.T) {
	t.Parallel()

	dispatcher := &recordingDispatcher{result: false}
	hook, err := consumer.NewWebhookConsumer(consumer.DefaultWebhookConfig(), dispatcher)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/events",
		strings.NewReader(`{"type":"order:created"}`))
	rec := httptest.NewRecorder()

	hook.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.JSONEq(t, `{"status":"failed"}`, rec.Body.String())
}

func TestWebhookConsumer_SignatureVerification(t *testing.T) {
	t.Parallel()

	cfg := consumer.DefaultWebhookConfig()
	cfg.Secret = "shhh"

	dispatcher := &recordingDispatcher{result: true}
	hook, err := consumer.NewWebhookConsumer(cfg, dispatcher)
	require.NoError(t, err)

	body := `{"type":"order:created"}`

	t.Run("valid signature accepted", func(t *testing.T) {
		t.Parallel()

		mac := hmac.New(sha256.New, []byte("shhh"))
		mac.Write([]byte(body))

		req := httptest.NewRequest(http.MethodPost, "/events", strings.NewReader(body))
		req.Header.Set(consumer.SignatureHeader, hex.EncodeToString(mac.Sum(nil)))
		rec := httptest.NewRecorder()

		hook.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("missing signature rejected", func(t *testing.T) {
		t.Parallel()

		req := httptest.NewRequest(http.MethodPost, "/events", strings.NewReader(body))
		rec := httptest.NewRecorder()

		hook.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("wrong signature rejected", func(t *testing.T) {
		t.Parallel()

		req := httptest.NewRequest(http.MethodPost, "/events", strings.NewReader(body))
		req.Header.Set(consumer.SignatureHeader, "deadbeef")
		rec := httptest.NewRecorder()

		hook.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func TestNewWebhookConsumer_Validation(t *testing.T) {
	t.Parallel()

	_, err := consumer.NewWebhookConsumer(consumer.WebhookConfig{}, &recordingDispatcher{})
	assert.ErrorIs(t, err, consumer.ErrInvalidConfig)

	_, err = consumer.NewWebhookConsumer(consumer.DefaultWebhookConfig(), nil)
	assert.ErrorIs(t, err, consumer.ErrNotSubscribed)
}
