package notifier

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/good-yellow-bee/blazealert/internal/models"
)

// SignatureHeader carries the hex HMAC-SHA256 of the request body.
const SignatureHeader = "X-BlazeAlert-Signature"

// WebhookConfig holds generic webhook configuration.
type WebhookConfig struct {
	URL    string `json:"url"`
	Secret string `json:"secret,omitempty"` // Signs the body when set
}

// Validate validates the webhook configuration.
func (c *WebhookConfig) Validate() error {
	if c.URL == "" {
		return fmt.Errorf("URL is required")
	}
	u, err := url.Parse(c.URL)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("URL must use http or https")
	}
	if u.Host == "" {
		return fmt.Errorf("URL must have a host")
	}
	return nil
}

// WebhookAdapter posts the JSON payload to an arbitrary endpoint.
type WebhookAdapter struct {
	*httpPoster
}

// NewWebhookAdapter creates a new webhook adapter.
func NewWebhookAdapter(opts HTTPOptions) *WebhookAdapter {
	return &WebhookAdapter{httpPoster: newHTTPPoster("webhook", opts)}
}

// Provider returns "webhook".
func (w *WebhookAdapter) Provider() models.Provider {
	return models.ProviderWebhook
}

// ValidateConfig parses a webhook channel config.
func (w *WebhookAdapter) ValidateConfig(raw json.RawMessage) (ChannelConfig, error) {
	cfg := &WebhookConfig{}
	if err := decodeConfig(models.ProviderWebhook, raw, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Send posts the payload, signed when the channel has a secret.
func (w *WebhookAdapter) Send(ctx context.Context, cfg ChannelConfig, payload *Payload) SendResult {
	c, err := configAs[*WebhookConfig](models.ProviderWebhook, cfg)
	if err != nil {
		return sendFailed(models.ProviderWebhook, err)
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return sendFailed(models.ProviderWebhook, fmt.Errorf("failed to marshal payload: %w", err))
	}

	var headers map[string]string
	if c.Secret != "" {
		headers = map[string]string{SignatureHeader: Sign(c.Secret, body)}
	}

	if _, err := w.post(ctx, c.URL, body, headers); err != nil {
		return sendFailed(models.ProviderWebhook, err)
	}
	return sendOK(models.ProviderWebhook, "")
}

// SendTest sends a synthetic notification.
func (w *WebhookAdapter) SendTest(ctx context.Context, cfg ChannelConfig) SendResult {
	return w.Send(ctx, cfg, TestPayload())
}

// Sign returns the hex HMAC-SHA256 of body keyed by secret.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature reports whether signature matches body under secret.
func VerifySignature(secret string, body []byte, signature string) bool {
	return hmac.Equal([]byte(signature), []byte(Sign(secret, body)))
}
