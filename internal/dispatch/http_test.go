package dispatch

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/good-yellow-bee/blazealert/internal/models"
	"github.com/good-yellow-bee/blazealert/internal/notifier"
)

func TestNewHTTP_Validation(t *testing.T) {
	_, err := NewHTTP(HTTPConfig{Secret: "s"})
	assert.Error(t, err)
	_, err = NewHTTP(HTTPConfig{TriggerURL: "http://localhost"})
	assert.Error(t, err)
}

func TestHTTP_Dispatch(t *testing.T) {
	var got TriggerRequest
	var secret string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		secret = r.Header.Get(SecretHeader)
		assert.True(t, strings.HasPrefix(r.Header.Get("User-Agent"), "BlazeAlert/"))
		body, _ := io.ReadAll(r.Body)
		assert.True(t, notifier.VerifySignature("s3cret", body, r.Header.Get(notifier.SignatureHeader)))
		assert.NoError(t, json.Unmarshal(body, &got))
		assert.Contains(t, string(body), `"enqueuedAt":"2026-02-01T08:00:00Z"`)

		json.NewEncoder(w).Encode(TriggerResponse{Results: []TriggerResult{
			{NotifiedVia: []string{"slack", "email"}},
			{NotifiedVia: []string{}},
		}})
	}))
	defer server.Close()

	h, err := NewHTTP(HTTPConfig{TriggerURL: server.URL, Secret: "s3cret", Client: server.Client()})
	require.NoError(t, err)

	result, err := h.Dispatch(context.Background(), []*models.TriggerQueueItem{
		testItem("a1", "c1", "c2", "c3"),
		testItem("a2", "c4"),
	})
	require.NoError(t, err)

	assert.Equal(t, "s3cret", secret)
	require.Len(t, got.Alerts, 2)
	assert.Equal(t, "a1", got.Alerts[0].AlertID)

	assert.Equal(t, 2, result.Sent)
	assert.Equal(t, 2, result.Failed)
	assert.False(t, result.Success)
	require.Len(t, result.Items, 2)
	assert.Equal(t, []string{"slack", "email"}, result.Items[0].NotifiedVia)
	assert.Equal(t, []string{}, result.Items[1].NotifiedVia)
}

func TestHTTP_Non2xx(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte("upstream down"))
	}))
	defer server.Close()

	h, err := NewHTTP(HTTPConfig{TriggerURL: server.URL, Secret: "s", Client: server.Client()})
	require.NoError(t, err)

	result, err := h.Dispatch(context.Background(), []*models.TriggerQueueItem{
		testItem("a1", "c1", "c2"),
		testItem("a2", "c3"),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 502")
	require.NotNil(t, result)
	assert.False(t, result.Success)
	assert.Equal(t, 0, result.Sent)
	assert.Equal(t, 3, result.Failed)
	assert.Len(t, result.Items, 2)
}

func TestHTTP_EmptyBatch(t *testing.T) {
	h, err := NewHTTP(HTTPConfig{TriggerURL: "http://127.0.0.1:1", Secret: "s"})
	require.NoError(t, err)
	result, err := h.Dispatch(context.Background(), nil)
	require.NoError(t, err)
	assert.True(t, result.Success)
}
