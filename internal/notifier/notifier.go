// Package notifier delivers alert notifications through provider adapters.
package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/good-yellow-bee/blazealert/internal/models"
)

var (
	// ErrInvalidConfig is returned when a channel config fails validation.
	ErrInvalidConfig = errors.New("invalid channel config")

	// ErrProviderNotRegistered is returned when no adapter handles a provider.
	ErrProviderNotRegistered = errors.New("provider not registered")
)

// ChannelConfig is a validated, provider-specific channel configuration.
type ChannelConfig interface {
	Validate() error
}

// Adapter delivers notifications to one provider.
type Adapter interface {
	// Provider returns the provider this adapter handles.
	Provider() models.Provider
	// ValidateConfig parses and validates a raw channel config.
	ValidateConfig(raw json.RawMessage) (ChannelConfig, error)
	// Send delivers the payload. Failures are reported in the result.
	Send(ctx context.Context, cfg ChannelConfig, payload *Payload) SendResult
	// SendTest sends a synthetic notification through Send.
	SendTest(ctx context.Context, cfg ChannelConfig) SendResult
}

// SendResult is the outcome of one delivery attempt to one channel.
type SendResult struct {
	Success   bool            `json:"success"`
	Provider  models.Provider `json:"provider"`
	Error     string          `json:"error,omitempty"`
	MessageID string          `json:"message_id,omitempty"`
}

func sendOK(provider models.Provider, messageID string) SendResult {
	return SendResult{Success: true, Provider: provider, MessageID: messageID}
}

func sendFailed(provider models.Provider, err error) SendResult {
	return SendResult{Provider: provider, Error: err.Error()}
}

// Payload is the notification content handed to adapters.
type Payload struct {
	AlertID       string            `json:"alertId"`
	AlertName     string            `json:"alertName"`
	ProjectID     string            `json:"projectId"`
	ProjectName   string            `json:"projectName"`
	Severity      models.Severity   `json:"severity"`
	MetricType    models.MetricType `json:"type"`
	Threshold     float64           `json:"threshold"`
	ActualValue   float64           `json:"actualValue"`
	Operator      models.Operator   `json:"operator"`
	State         models.AlertState `json:"state"`
	PreviousState models.AlertState `json:"previousState"`
	TriggeredAt   time.Time         `json:"triggeredAt"`
	DashboardURL  string            `json:"dashboardUrl,omitempty"`
	Test          bool              `json:"test,omitempty"`
}

// NewPayload builds the payload for a queued trigger item. Times are UTC.
func NewPayload(item *models.TriggerQueueItem, dashboardURL string) *Payload {
	return &Payload{
		AlertID:       item.AlertID,
		AlertName:     item.AlertName,
		ProjectID:     item.ProjectID,
		ProjectName:   item.ProjectName,
		Severity:      item.Severity,
		MetricType:    item.MetricType,
		Threshold:     item.Threshold,
		ActualValue:   item.ActualValue,
		Operator:      item.Operator,
		State:         item.NewState,
		PreviousState: item.PreviousState,
		TriggeredAt:   item.EnqueuedAt.UTC(),
		DashboardURL:  dashboardURL,
	}
}

// TestPayload returns the synthetic payload used by SendTest.
func TestPayload() *Payload {
	return &Payload{
		AlertID:       "test-alert",
		AlertName:     "Test notification",
		ProjectID:     "test-project",
		ProjectName:   "BlazeAlert",
		Severity:      models.SeverityLow,
		MetricType:    models.MetricErrorRate,
		Threshold:     5,
		ActualValue:   7.5,
		Operator:      models.OperatorGreaterThan,
		State:         models.StateFiring,
		PreviousState: models.StatePending,
		TriggeredAt:   time.Now().UTC(),
		Test:          true,
	}
}

// Resolved reports whether the payload announces a recovery.
func (p *Payload) Resolved() bool {
	return p.State == models.StateResolved
}

// Title is the one-line summary used by every provider.
func (p *Payload) Title() string {
	if p.Resolved() {
		return fmt.Sprintf("Resolved: %s", p.AlertName)
	}
	return fmt.Sprintf("BlazeAlert: %s", p.AlertName)
}

// Summary describes the observed value against the threshold.
func (p *Payload) Summary() string {
	return fmt.Sprintf("%s is %s (threshold %s %s)",
		metricLabel(p.MetricType), formatValue(p.MetricType, p.ActualValue),
		operatorSymbol(p.Operator), formatValue(p.MetricType, p.Threshold))
}

func metricLabel(m models.MetricType) string {
	switch m {
	case models.MetricErrorRate:
		return "Error rate"
	case models.MetricLatencyP50:
		return "Latency p50"
	case models.MetricLatencyP95:
		return "Latency p95"
	case models.MetricLatencyP99:
		return "Latency p99"
	default:
		return string(m)
	}
}

func formatValue(m models.MetricType, v float64) string {
	if m == models.MetricErrorRate {
		return fmt.Sprintf("%.2f%%", v)
	}
	return fmt.Sprintf("%.0fms", v)
}

func operatorSymbol(op models.Operator) string {
	if op == models.OperatorLessThan {
		return "<"
	}
	return ">"
}

// decodeConfig strictly decodes raw into cfg and validates it.
func decodeConfig(provider models.Provider, raw json.RawMessage, cfg ChannelConfig) error {
	if len(raw) == 0 {
		return fmt.Errorf("%w: %s: config is empty", ErrInvalidConfig, provider)
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(cfg); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidConfig, provider, err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidConfig, provider, err)
	}
	return nil
}

// configAs asserts cfg to the adapter's config type.
func configAs[T ChannelConfig](provider models.Provider, cfg ChannelConfig) (T, error) {
	c, ok := cfg.(T)
	if !ok {
		var zero T
		return zero, fmt.Errorf("%w: %s: unexpected config type %T", ErrInvalidConfig, provider, cfg)
	}
	return c, nil
}
