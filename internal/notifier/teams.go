package notifier

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/good-yellow-bee/blazealert/internal/models"
)

// TeamsConfig holds Microsoft Teams webhook configuration.
type TeamsConfig struct {
	WebhookURL string `json:"webhook_url"` // Teams incoming webhook URL
}

// Validate validates the Teams configuration.
func (c *TeamsConfig) Validate() error {
	if c.WebhookURL == "" {
		return fmt.Errorf("webhook URL is required")
	}
	u, err := url.Parse(c.WebhookURL)
	if err != nil {
		return fmt.Errorf("invalid webhook URL: %w", err)
	}
	if u.Scheme != "https" {
		return fmt.Errorf("webhook URL must use HTTPS")
	}
	host := strings.ToLower(u.Hostname())
	if host != "outlook.office.com" && !strings.HasSuffix(host, ".webhook.office.com") {
		return fmt.Errorf("webhook host %q is not a Teams webhook host", host)
	}
	return nil
}

// TeamsAdapter sends alerts to Microsoft Teams via webhook.
type TeamsAdapter struct {
	*httpPoster
}

// NewTeamsAdapter creates a new Teams adapter.
func NewTeamsAdapter(opts HTTPOptions) *TeamsAdapter {
	return &TeamsAdapter{httpPoster: newHTTPPoster("teams", opts)}
}

// Provider returns "teams".
func (t *TeamsAdapter) Provider() models.Provider {
	return models.ProviderTeams
}

// ValidateConfig parses a Teams channel config.
func (t *TeamsAdapter) ValidateConfig(raw json.RawMessage) (ChannelConfig, error) {
	cfg := &TeamsConfig{}
	if err := decodeConfig(models.ProviderTeams, raw, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Send posts an Adaptive Card message.
func (t *TeamsAdapter) Send(ctx context.Context, cfg ChannelConfig, payload *Payload) SendResult {
	c, err := configAs[*TeamsConfig](models.ProviderTeams, cfg)
	if err != nil {
		return sendFailed(models.ProviderTeams, err)
	}

	jsonData, err := json.Marshal(t.buildPayload(payload))
	if err != nil {
		return sendFailed(models.ProviderTeams, fmt.Errorf("failed to marshal payload: %w", err))
	}

	if _, err := t.post(ctx, c.WebhookURL, jsonData, nil); err != nil {
		return sendFailed(models.ProviderTeams, err)
	}
	return sendOK(models.ProviderTeams, "")
}

// SendTest sends a synthetic notification.
func (t *TeamsAdapter) SendTest(ctx context.Context, cfg ChannelConfig) SendResult {
	return t.Send(ctx, cfg, TestPayload())
}

// teamsMessage represents the Teams webhook payload with Adaptive Card.
type teamsMessage struct {
	Type        string            `json:"type"`
	Attachments []teamsAttachment `json:"attachments"`
}

// teamsAttachment represents an attachment in the Teams message.
type teamsAttachment struct {
	ContentType string       `json:"contentType"`
	ContentURL  *string      `json:"contentUrl"`
	Content     adaptiveCard `json:"content"`
}

// adaptiveCard represents a Microsoft Adaptive Card.
type adaptiveCard struct {
	Schema  string `json:"$schema"`
	Type    string `json:"type"`
	Version string `json:"version"`
	Body    []any  `json:"body"`
	Actions []any  `json:"actions,omitempty"`
}

// Adaptive Card element types
type textBlock struct {
	Type   string `json:"type"`
	Text   string `json:"text"`
	Size   string `json:"size,omitempty"`
	Weight string `json:"weight,omitempty"`
	Color  string `json:"color,omitempty"`
	Wrap   bool   `json:"wrap,omitempty"`
}

type factSet struct {
	Type  string `json:"type"`
	Facts []fact `json:"facts"`
}

type fact struct {
	Title string `json:"title"`
	Value string `json:"value"`
}

type container struct {
	Type  string `json:"type"`
	Style string `json:"style,omitempty"`
	Items []any  `json:"items"`
}

type openURLAction struct {
	Type  string `json:"type"`
	Title string `json:"title"`
	URL   string `json:"url"`
}

// buildPayload builds the Teams Adaptive Card message payload.
func (t *TeamsAdapter) buildPayload(p *Payload) teamsMessage {
	style := teamsSeverityStyle(p.Severity)
	if p.Resolved() {
		style = "good"
	}

	body := []any{
		container{
			Type:  "Container",
			Style: style,
			Items: []any{
				textBlock{
					Type:   "TextBlock",
					Text:   p.Title(),
					Size:   "Large",
					Weight: "Bolder",
					Wrap:   true,
				},
			},
		},
		factSet{
			Type: "FactSet",
			Facts: []fact{
				{Title: "Project", Value: p.ProjectName},
				{Title: "Severity", Value: strings.ToUpper(string(p.Severity))},
				{Title: "State", Value: fmt.Sprintf("%s → %s", p.PreviousState, p.State)},
				{Title: "Time", Value: p.TriggeredAt.Format(timeLayout)},
			},
		},
		textBlock{
			Type: "TextBlock",
			Text: p.Summary(),
			Wrap: true,
		},
	}

	card := adaptiveCard{
		Schema:  "http://adaptivecards.io/schemas/adaptive-card.json",
		Type:    "AdaptiveCard",
		Version: "1.4",
		Body:    body,
	}
	if p.DashboardURL != "" {
		card.Actions = []any{
			openURLAction{Type: "Action.OpenUrl", Title: "Open dashboard", URL: p.DashboardURL},
		}
	}

	return teamsMessage{
		Type: "message",
		Attachments: []teamsAttachment{
			{
				ContentType: "application/vnd.microsoft.card.adaptive",
				Content:     card,
			},
		},
	}
}

// teamsSeverityStyle returns an Adaptive Card container style for the severity level.
func teamsSeverityStyle(severity models.Severity) string {
	switch severity {
	case models.SeverityCritical:
		return "attention" // red
	case models.SeverityHigh:
		return "warning" // orange/yellow
	case models.SeverityMedium:
		return "accent" // blue
	case models.SeverityLow:
		return "good" // green
	default:
		return "default"
	}
}
