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

func TestTeamsConfigValidation(t *testing.T) {
	tests := []struct {
		name    string
		url     string
		wantErr bool
	}{
		{"empty", "", true},
		{"http", "http://outlook.office.com/webhook/x", true},
		{"other host", "https://example.com/webhook/x", true},
		{"suffix without dot", "https://evilwebhook.office.com/x", true},
		{"legacy host", "https://outlook.office.com/webhook/abc", false},
		{"tenant host", "https://contoso.webhook.office.com/webhookb2/abc", false},
	}

	adapter := NewTeamsAdapter(HTTPOptions{})
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw, _ := json.Marshal(map[string]string{"webhook_url": tt.url})
			_, err := adapter.ValidateConfig(raw)
			if tt.wantErr {
				assert.True(t, errors.Is(err, ErrInvalidConfig))
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestTeamsAdapter_Send(t *testing.T) {
	var received map[string]any

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		assert.NoError(t, json.Unmarshal(body, &received))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	adapter := NewTeamsAdapter(HTTPOptions{Client: server.Client()})
	assert.Equal(t, models.ProviderTeams, adapter.Provider())

	result := adapter.Send(context.Background(), &TeamsConfig{WebhookURL: server.URL}, testPayload())
	require.True(t, result.Success, result.Error)

	assert.Equal(t, "message", received["type"])
	attachments := received["attachments"].([]any)
	require.Len(t, attachments, 1)
	attachment := attachments[0].(map[string]any)
	assert.Equal(t, "application/vnd.microsoft.card.adaptive", attachment["contentType"])

	content := attachment["content"].(map[string]any)
	assert.Equal(t, "AdaptiveCard", content["type"])
	body := content["body"].([]any)
	require.Len(t, body, 3)
	header := body[0].(map[string]any)
	assert.Equal(t, "attention", header["style"])
	actions := content["actions"].([]any)
	assert.Equal(t, "https://dash.example.com/alerts/alert-1", actions[0].(map[string]any)["url"])
}

func TestTeamsAdapter_HTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	adapter := NewTeamsAdapter(HTTPOptions{Client: server.Client()})
	result := adapter.Send(context.Background(), &TeamsConfig{WebhookURL: server.URL}, testPayload())
	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "teams API error: status 500")
}

func TestTeamsSeverityStyle(t *testing.T) {
	assert.Equal(t, "attention", teamsSeverityStyle(models.SeverityCritical))
	assert.Equal(t, "warning", teamsSeverityStyle(models.SeverityHigh))
	assert.Equal(t, "accent", teamsSeverityStyle(models.SeverityMedium))
	assert.Equal(t, "good", teamsSeverityStyle(models.SeverityLow))
	assert.Equal(t, "default", teamsSeverityStyle("other"))
}
