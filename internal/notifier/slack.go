package notifier

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/good-yellow-bee/blazealert/internal/models"
)

const slackWebhookPrefix = "https://hooks.slack.com/"

// SlackConfig holds Slack webhook configuration.
type SlackConfig struct {
	WebhookURL string `json:"webhook_url"` // Slack incoming webhook URL
}

// Validate validates the Slack configuration.
func (c *SlackConfig) Validate() error {
	if c.WebhookURL == "" {
		return fmt.Errorf("webhook URL is required")
	}
	if !strings.HasPrefix(c.WebhookURL, slackWebhookPrefix) {
		return fmt.Errorf("webhook URL must start with %s", slackWebhookPrefix)
	}
	return nil
}

// SlackAdapter sends alerts to Slack via incoming webhooks.
type SlackAdapter struct {
	*httpPoster
}

// NewSlackAdapter creates a new Slack adapter.
func NewSlackAdapter(opts HTTPOptions) *SlackAdapter {
	return &SlackAdapter{httpPoster: newHTTPPoster("slack", opts)}
}

// Provider returns "slack".
func (s *SlackAdapter) Provider() models.Provider {
	return models.ProviderSlack
}

// ValidateConfig parses a Slack channel config.
func (s *SlackAdapter) ValidateConfig(raw json.RawMessage) (ChannelConfig, error) {
	cfg := &SlackConfig{}
	if err := decodeConfig(models.ProviderSlack, raw, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Send posts a Block Kit message.
func (s *SlackAdapter) Send(ctx context.Context, cfg ChannelConfig, payload *Payload) SendResult {
	c, err := configAs[*SlackConfig](models.ProviderSlack, cfg)
	if err != nil {
		return sendFailed(models.ProviderSlack, err)
	}

	jsonData, err := json.Marshal(s.buildPayload(payload))
	if err != nil {
		return sendFailed(models.ProviderSlack, fmt.Errorf("failed to marshal payload: %w", err))
	}

	if _, err := s.post(ctx, c.WebhookURL, jsonData, nil); err != nil {
		return sendFailed(models.ProviderSlack, err)
	}
	return sendOK(models.ProviderSlack, "")
}

// SendTest sends a synthetic notification.
func (s *SlackAdapter) SendTest(ctx context.Context, cfg ChannelConfig) SendResult {
	return s.Send(ctx, cfg, TestPayload())
}

// slackMessage represents the Slack webhook payload.
type slackMessage struct {
	Text   string       `json:"text"`
	Blocks []slackBlock `json:"blocks"`
}

// slackBlock represents a Slack Block Kit block.
type slackBlock struct {
	Type     string      `json:"type"`
	Text     *slackText  `json:"text,omitempty"`
	Fields   []slackText `json:"fields,omitempty"`
	Elements []slackText `json:"elements,omitempty"`
}

// slackText represents text in Slack Block Kit.
type slackText struct {
	Type  string `json:"type"`
	Text  string `json:"text"`
	Emoji bool   `json:"emoji,omitempty"`
}

// buildPayload builds the Slack Block Kit message payload.
func (s *SlackAdapter) buildPayload(p *Payload) slackMessage {
	emoji := severityEmoji(p.Severity)
	if p.Resolved() {
		emoji = "✅" // check mark
	}
	title := fmt.Sprintf("%s %s", emoji, p.Title())

	blocks := []slackBlock{
		{
			Type: "header",
			Text: &slackText{Type: "plain_text", Text: title, Emoji: true},
		},
		{
			Type: "section",
			Fields: []slackText{
				{Type: "mrkdwn", Text: fmt.Sprintf("*Project:*\n%s", p.ProjectName)},
				{Type: "mrkdwn", Text: fmt.Sprintf("*Severity:*\n%s", strings.ToUpper(string(p.Severity)))},
				{Type: "mrkdwn", Text: fmt.Sprintf("*State:*\n%s → %s", p.PreviousState, p.State)},
				{Type: "mrkdwn", Text: fmt.Sprintf("*Time:*\n%s", p.TriggeredAt.Format(timeLayout))},
			},
		},
		{
			Type: "section",
			Text: &slackText{Type: "mrkdwn", Text: p.Summary()},
		},
	}

	if p.DashboardURL != "" {
		blocks = append(blocks, slackBlock{
			Type: "context",
			Elements: []slackText{
				{Type: "mrkdwn", Text: fmt.Sprintf("<%s|Open dashboard>", p.DashboardURL)},
			},
		})
	}

	return slackMessage{Text: title, Blocks: blocks}
}

// severityEmoji returns an emoji for the severity level.
func severityEmoji(severity models.Severity) string {
	switch severity {
	case models.SeverityCritical:
		return "\U0001F534" // red circle
	case models.SeverityHigh:
		return "\U0001F7E0" // orange circle
	case models.SeverityMedium:
		return "\U0001F7E1" // yellow circle
	case models.SeverityLow:
		return "\U0001F7E2" // green circle
	default:
		return "⚪" // white circle
	}
}
