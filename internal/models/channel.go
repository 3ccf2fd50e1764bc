package models

import (
	"encoding/json"
	"time"
)

// Provider identifies a notification adapter.
type Provider string

const (
	ProviderEmail     Provider = "email"
	ProviderSlack     Provider = "slack"
	ProviderTeams     Provider = "teams"
	ProviderWebhook   Provider = "webhook"
	ProviderPagerDuty Provider = "pagerduty"
)

// NotificationChannel is a provider destination with its provider-specific config.
type NotificationChannel struct {
	ID        string          `json:"id"`
	ProjectID string          `json:"project_id"`
	Name      string          `json:"name"`
	Provider  Provider        `json:"provider"`
	Config    json.RawMessage `json:"config"`
	Enabled   bool            `json:"enabled"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}
