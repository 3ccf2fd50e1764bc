package models

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// MetricType identifies the metric an alert watches.
type MetricType string

const (
	MetricErrorRate  MetricType = "error_rate"
	MetricLatencyP50 MetricType = "latency_p50"
	MetricLatencyP95 MetricType = "latency_p95"
	MetricLatencyP99 MetricType = "latency_p99"
)

// ParseMetricType converts a string to MetricType.
func ParseMetricType(s string) (MetricType, error) {
	switch normalizeEnum(s) {
	case "error_rate":
		return MetricErrorRate, nil
	case "latency_p50":
		return MetricLatencyP50, nil
	case "latency_p95":
		return MetricLatencyP95, nil
	case "latency_p99":
		return MetricLatencyP99, nil
	default:
		return "", fmt.Errorf("unknown metric type %q", s)
	}
}

// Operator is the comparison applied between the metric value and the threshold.
type Operator string

const (
	OperatorGreaterThan Operator = "greater_than"
	OperatorLessThan    Operator = "less_than"
)

// ParseOperator converts a string to Operator.
func ParseOperator(s string) (Operator, error) {
	switch normalizeEnum(s) {
	case "greater_than", "gt", ">":
		return OperatorGreaterThan, nil
	case "less_than", "lt", "<":
		return OperatorLessThan, nil
	default:
		return "", fmt.Errorf("unknown operator %q", s)
	}
}

// Severity represents alert severity level.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Severities lists every severity, most urgent first.
var Severities = []Severity{SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow}

// ParseSeverity converts a string to Severity.
func ParseSeverity(s string) (Severity, error) {
	switch normalizeEnum(s) {
	case "low":
		return SeverityLow, nil
	case "medium":
		return SeverityMedium, nil
	case "high":
		return SeverityHigh, nil
	case "critical":
		return SeverityCritical, nil
	default:
		return "", fmt.Errorf("unknown severity %q", s)
	}
}

// Valid reports whether s is one of the known severities.
func (s Severity) Valid() bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return true
	}
	return false
}

// AlertState is the lifecycle state of an alert.
type AlertState string

const (
	StateInactive AlertState = "INACTIVE"
	StatePending  AlertState = "PENDING"
	StateFiring   AlertState = "FIRING"
	StateResolved AlertState = "RESOLVED"
)

// Alert is a threshold rule on a project metric and its lifecycle state.
type Alert struct {
	ID         string     `json:"id"`
	ProjectID  string     `json:"project_id"`
	Name       string     `json:"name"`
	MetricType MetricType `json:"metric_type"`
	Threshold  float64    `json:"threshold"`
	Operator   Operator   `json:"operator"`
	WindowMins int        `json:"window_mins"`
	Severity   Severity   `json:"severity"`

	// PendingMins and CooldownMins override the severity defaults when set.
	PendingMins  *int `json:"pending_mins,omitempty"`
	CooldownMins *int `json:"cooldown_mins,omitempty"`

	State           AlertState `json:"state"`
	StateChangedAt  *time.Time `json:"state_changed_at,omitempty"`
	LastTriggeredAt *time.Time `json:"last_triggered_at,omitempty"`
	LastEvaluatedAt *time.Time `json:"last_evaluated_at,omitempty"`

	Enabled    bool      `json:"enabled"`
	ChannelIDs []string  `json:"channel_ids"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// AlertWithProject is an alert joined with the name of its project.
type AlertWithProject struct {
	*Alert
	ProjectName string `json:"project_name"`
}

// NewAlert creates an enabled, inactive Alert with initialized timestamps.
func NewAlert(projectID, name string, metric MetricType, severity Severity) *Alert {
	now := time.Now()
	return &Alert{
		ProjectID:  projectID,
		Name:       name,
		MetricType: metric,
		Operator:   OperatorGreaterThan,
		WindowMins: 5,
		Severity:   severity,
		State:      StateInactive,
		Enabled:    true,
		ChannelIDs: []string{},
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// Validate checks the rule and timing configuration of the alert.
func (a *Alert) Validate() error {
	if a.Name == "" {
		return fmt.Errorf("alert name is required")
	}
	if a.ProjectID == "" {
		return fmt.Errorf("project is required for alert %q", a.Name)
	}
	switch a.MetricType {
	case MetricErrorRate, MetricLatencyP50, MetricLatencyP95, MetricLatencyP99:
	default:
		return fmt.Errorf("alert %q: unknown metric type %q", a.Name, a.MetricType)
	}
	// Aliases are accepted by ParseOperator only; stored alerts carry the
	// canonical value that ConditionMet compares against.
	if a.Operator != OperatorGreaterThan && a.Operator != OperatorLessThan {
		return fmt.Errorf("alert %q: unknown operator %q", a.Name, a.Operator)
	}
	if !a.Severity.Valid() {
		return fmt.Errorf("alert %q: unknown severity %q", a.Name, a.Severity)
	}
	if math.IsNaN(a.Threshold) || math.IsInf(a.Threshold, 0) {
		return fmt.Errorf("threshold must be a finite number for alert %q", a.Name)
	}
	if a.Threshold < 0 {
		return fmt.Errorf("threshold must not be negative for alert %q", a.Name)
	}
	if a.WindowMins < 1 || a.WindowMins > 60 {
		return fmt.Errorf("window_mins must be between 1 and 60 for alert %q", a.Name)
	}
	if a.PendingMins != nil && (*a.PendingMins < 0 || *a.PendingMins > 30) {
		return fmt.Errorf("pending_mins must be between 0 and 30 for alert %q", a.Name)
	}
	if a.CooldownMins != nil && (*a.CooldownMins < 1 || *a.CooldownMins > 1440) {
		return fmt.Errorf("cooldown_mins must be between 1 and 1440 for alert %q", a.Name)
	}
	return nil
}

func normalizeEnum(s string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "-", "_")
}
