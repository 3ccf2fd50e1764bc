package notifier

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/good-yellow-bee/blazealert/internal/models"
)

// DefaultPagerDutyEventsURL is the Events API v2 enqueue endpoint.
const DefaultPagerDutyEventsURL = "https://events.pagerduty.com/v2/enqueue"

// PagerDutyConfig holds PagerDuty Events API v2 configuration.
type PagerDutyConfig struct {
	RoutingKey string `json:"routing_key"` // Integration key of the service
}

// Validate validates the PagerDuty configuration.
func (c *PagerDutyConfig) Validate() error {
	if c.RoutingKey == "" {
		return fmt.Errorf("routing key is required")
	}
	if len(c.RoutingKey) != 32 {
		return fmt.Errorf("routing key must be 32 characters")
	}
	return nil
}

// PagerDutyOptions configures the PagerDuty adapter.
type PagerDutyOptions struct {
	HTTP HTTPOptions
	// EventsURL overrides DefaultPagerDutyEventsURL (e.g. the EU endpoint).
	EventsURL string
}

// PagerDutyAdapter pages through the Events API v2. Firing alerts open an
// incident keyed by the alert id; RESOLVED closes it.
type PagerDutyAdapter struct {
	*httpPoster
	eventsURL string
}

// NewPagerDutyAdapter creates a new PagerDuty adapter.
func NewPagerDutyAdapter(opts PagerDutyOptions) *PagerDutyAdapter {
	eventsURL := opts.EventsURL
	if eventsURL == "" {
		eventsURL = DefaultPagerDutyEventsURL
	}
	return &PagerDutyAdapter{
		httpPoster: newHTTPPoster("pagerduty", opts.HTTP),
		eventsURL:  eventsURL,
	}
}

// Provider returns "pagerduty".
func (p *PagerDutyAdapter) Provider() models.Provider {
	return models.ProviderPagerDuty
}

// ValidateConfig parses a PagerDuty channel config.
func (p *PagerDutyAdapter) ValidateConfig(raw json.RawMessage) (ChannelConfig, error) {
	cfg := &PagerDutyConfig{}
	if err := decodeConfig(models.ProviderPagerDuty, raw, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Send enqueues a trigger or resolve event.
func (p *PagerDutyAdapter) Send(ctx context.Context, cfg ChannelConfig, payload *Payload) SendResult {
	c, err := configAs[*PagerDutyConfig](models.ProviderPagerDuty, cfg)
	if err != nil {
		return sendFailed(models.ProviderPagerDuty, err)
	}

	jsonData, err := json.Marshal(p.buildEvent(c.RoutingKey, payload))
	if err != nil {
		return sendFailed(models.ProviderPagerDuty, fmt.Errorf("failed to marshal event: %w", err))
	}

	respBody, err := p.post(ctx, p.eventsURL, jsonData, nil)
	if err != nil {
		return sendFailed(models.ProviderPagerDuty, err)
	}

	var resp pagerDutyResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return sendFailed(models.ProviderPagerDuty, fmt.Errorf("failed to decode response: %w", err))
	}
	if resp.Status != "" && resp.Status != "success" {
		return sendFailed(models.ProviderPagerDuty, fmt.Errorf("pagerduty rejected event: %s", resp.Message))
	}
	return sendOK(models.ProviderPagerDuty, resp.DedupKey)
}

// SendTest sends a synthetic notification.
func (p *PagerDutyAdapter) SendTest(ctx context.Context, cfg ChannelConfig) SendResult {
	return p.Send(ctx, cfg, TestPayload())
}

type pagerDutyEvent struct {
	RoutingKey  string            `json:"routing_key"`
	EventAction string            `json:"event_action"`
	DedupKey    string            `json:"dedup_key"`
	Payload     *pagerDutyPayload `json:"payload,omitempty"`
	Links       []pagerDutyLink   `json:"links,omitempty"`
}

type pagerDutyPayload struct {
	Summary       string         `json:"summary"`
	Source        string         `json:"source"`
	Severity      string         `json:"severity"`
	Timestamp     string         `json:"timestamp"`
	Component     string         `json:"component,omitempty"`
	Class         string         `json:"class,omitempty"`
	CustomDetails map[string]any `json:"custom_details,omitempty"`
}

type pagerDutyLink struct {
	Href string `json:"href"`
	Text string `json:"text"`
}

type pagerDutyResponse struct {
	Status   string `json:"status"`
	Message  string `json:"message"`
	DedupKey string `json:"dedup_key"`
}

func (p *PagerDutyAdapter) buildEvent(routingKey string, payload *Payload) pagerDutyEvent {
	event := pagerDutyEvent{
		RoutingKey: routingKey,
		DedupKey:   payload.AlertID,
	}

	if payload.Resolved() {
		event.EventAction = "resolve"
		return event
	}

	event.EventAction = "trigger"
	event.Payload = &pagerDutyPayload{
		Summary:   truncate(fmt.Sprintf("%s: %s", payload.Title(), payload.Summary()), 1024),
		Source:    payload.ProjectName,
		Severity:  pagerDutySeverity(payload.Severity),
		Timestamp: payload.TriggeredAt.Format("2006-01-02T15:04:05.000Z07:00"),
		Component: payload.ProjectID,
		Class:     string(payload.MetricType),
		CustomDetails: map[string]any{
			"alert_id":     payload.AlertID,
			"actual_value": payload.ActualValue,
			"threshold":    payload.Threshold,
			"operator":     string(payload.Operator),
			"state":        string(payload.State),
		},
	}
	if event.Payload.Source == "" {
		event.Payload.Source = "blazealert"
	}
	if payload.DashboardURL != "" {
		event.Links = []pagerDutyLink{{Href: payload.DashboardURL, Text: "Dashboard"}}
	}
	return event
}

// pagerDutySeverity maps alert severity to the Events API severities.
func pagerDutySeverity(severity models.Severity) string {
	switch severity {
	case models.SeverityCritical:
		return "critical"
	case models.SeverityHigh:
		return "error"
	case models.SeverityMedium:
		return "warning"
	default:
		return "info"
	}
}

// truncate truncates a string to max length with ellipsis.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return strings.TrimSpace(s[:max-3]) + "..."
}
