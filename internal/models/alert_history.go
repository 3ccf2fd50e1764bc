// Package models defines domain models for BlazeAlert.
package models

import "time"

// AlertHistoryEntry is an append-only audit record of one evaluation outcome
// or notification attempt.
type AlertHistoryEntry struct {
	ID            string     `json:"id"`
	AlertID       string     `json:"alert_id"`
	ProjectID     string     `json:"project_id"`
	Value         float64    `json:"value"`
	Threshold     float64    `json:"threshold"`
	State         AlertState `json:"state"`
	PreviousState AlertState `json:"previous_state"`
	Resolved      bool       `json:"resolved"`
	ResolvedAt    *time.Time `json:"resolved_at,omitempty"`
	// NotifiedVia lists the providers that accepted the notification.
	NotifiedVia  []string  `json:"notified_via"`
	SampleCount  int64     `json:"sample_count,omitempty"`
	EvaluationMs int64     `json:"evaluation_ms,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}
