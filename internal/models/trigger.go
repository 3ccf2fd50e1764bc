package models

import "time"

// TriggerQueueItem is an immutable request to notify an alert's channels
// about a state decision. JSON field names are part of the trigger endpoint
// wire format.
type TriggerQueueItem struct {
	ID            string     `json:"id"`
	AlertID       string     `json:"alertId"`
	AlertName     string     `json:"alertName"`
	ProjectID     string     `json:"projectId"`
	ProjectName   string     `json:"projectName"`
	Severity      Severity   `json:"severity"`
	MetricType    MetricType `json:"type"`
	Threshold     float64    `json:"threshold"`
	ActualValue   float64    `json:"actualValue"`
	SampleCount   int64      `json:"sampleCount"`
	Operator      Operator   `json:"operator"`
	PreviousState AlertState `json:"previousState"`
	NewState      AlertState `json:"newState"`
	EnqueuedAt    time.Time  `json:"enqueuedAt"`
	ChannelIDs    []string   `json:"channelIds"`
}
