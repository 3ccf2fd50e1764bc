package notifier

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/good-yellow-bee/blazealert/internal/models"
)

func TestWebhookConfigValidation(t *testing.T) {
	adapter := NewWebhookAdapter(HTTPOptions{})

	valid := []string{
		`{"url":"https://example.com/hook"}`,
		`{"url":"http://10.0.0.5:8080/alerts","secret":"s3cret"}`,
	}
	for _, raw := range valid {
		_, err := adapter.ValidateConfig(json.RawMessage(raw))
		assert.NoError(t, err, raw)
	}

	invalid := []string{
		`{}`,
		`{"url":"ftp://example.com"}`,
		`{"url":"https://"}`,
		`{"url":"https://example.com","token":"x"}`,
	}
	for _, raw := range invalid {
		_, err := adapter.ValidateConfig(json.RawMessage(raw))
		assert.True(t, errors.Is(err, ErrInvalidConfig), raw)
	}
}

func TestWebhookAdapter_SendSigned(t *testing.T) {
	var body []byte
	var signature string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ = io.ReadAll(r.Body)
		signature = r.Header.Get(SignatureHeader)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	adapter := NewWebhookAdapter(HTTPOptions{Client: server.Client()})
	assert.Equal(t, models.ProviderWebhook, adapter.Provider())

	result := adapter.Send(context.Background(), &WebhookConfig{URL: server.URL, Secret: "s3cret"}, testPayload())
	require.True(t, result.Success, result.Error)

	assert.Len(t, signature, 64)
	assert.True(t, VerifySignature("s3cret", body, signature))
	assert.False(t, VerifySignature("other", body, signature))

	var got map[string]any
	require.NoError(t, json.Unmarshal(body, &got))
	assert.Equal(t, "alert-1", got["alertId"])
	assert.Equal(t, "error_rate", got["type"])
	assert.Equal(t, 7.25, got["actualValue"])
	assert.Equal(t, "2026-01-15T10:30:00Z", got["triggeredAt"])
	assert.Equal(t, "https://dash.example.com/alerts/alert-1", got["dashboardUrl"])
}

func TestWebhookAdapter_SendUnsigned(t *testing.T) {
	var hasSignature bool
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, hasSignature = r.Header[SignatureHeader]
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	adapter := NewWebhookAdapter(HTTPOptions{Client: server.Client()})
	result := adapter.SendTest(context.Background(), &WebhookConfig{URL: server.URL})
	require.True(t, result.Success, result.Error)
	assert.False(t, hasSignature)
}

func TestSign(t *testing.T) {
	// Known HMAC-SHA256 vector.
	assert.Equal(t,
		"f7bc83f430538424b13298e6aa6fb143ef4d59a14946175997479dbc2d1a3cd8",
		Sign("key", []byte("The quick brown fox jumps over the lazy dog")))
}
