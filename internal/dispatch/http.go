package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/good-yellow-bee/blazealert/internal/models"
	"github.com/good-yellow-bee/blazealert/internal/notifier"
	"github.com/good-yellow-bee/blazealert/pkg/config"
)

// SecretHeader authenticates calls to the trigger endpoint.
const SecretHeader = "X-Internal-Secret"

// TriggerRequest is the body of a trigger endpoint call.
type TriggerRequest struct {
	Alerts []*models.TriggerQueueItem `json:"alerts"`
}

// TriggerResponse is the trigger endpoint answer; Results follow the
// order of TriggerRequest.Alerts.
type TriggerResponse struct {
	Results []TriggerResult `json:"results"`
	Sent    int             `json:"sent"`
	Failed  int             `json:"failed"`
	Errors  []string        `json:"errors,omitempty"`
}

// TriggerResult reports the providers that accepted one item.
type TriggerResult struct {
	AlertID     string   `json:"alertId,omitempty"`
	NotifiedVia []string `json:"notifiedVia"`
}

// HTTPConfig configures dispatch through a remote trigger endpoint.
type HTTPConfig struct {
	TriggerURL string
	Secret     string
	// Client overrides the default client (30s timeout).
	Client *http.Client
	Logger *zap.Logger
}

// HTTP posts whole batches to a trigger endpoint that performs delivery.
type HTTP struct {
	triggerURL string
	secret     string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewHTTP creates a remote dispatcher.
func NewHTTP(cfg HTTPConfig) (*HTTP, error) {
	if cfg.TriggerURL == "" {
		return nil, fmt.Errorf("trigger URL is required")
	}
	if cfg.Secret == "" {
		return nil, fmt.Errorf("trigger secret is required")
	}
	if cfg.Client == nil {
		cfg.Client = &http.Client{Timeout: 30 * time.Second}
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &HTTP{
		triggerURL: cfg.TriggerURL,
		secret:     cfg.Secret,
		httpClient: cfg.Client,
		logger:     cfg.Logger,
	}, nil
}

// Dispatch posts items as one batch. On a transport error or non-2xx
// answer every channel counts as failed and the error is returned along
// with the result.
func (h *HTTP) Dispatch(ctx context.Context, items []*models.TriggerQueueItem) (*DispatchResult, error) {
	if len(items) == 0 {
		return newResult(0), nil
	}

	body, err := json.Marshal(TriggerRequest{Alerts: utcItems(items)})
	if err != nil {
		err = fmt.Errorf("failed to marshal batch: %w", err)
		return failAll(items, err), err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.triggerURL, bytes.NewReader(body))
	if err != nil {
		err = fmt.Errorf("failed to create request: %w", err)
		return failAll(items, err), err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", config.UserAgent())
	req.Header.Set(SecretHeader, h.secret)
	req.Header.Set(notifier.SignatureHeader, notifier.Sign(h.secret, body))

	resp, err := h.httpClient.Do(req)
	if err != nil {
		err = fmt.Errorf("failed to send request: %w", err)
		return failAll(items, err), err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		err := fmt.Errorf("trigger endpoint error: status %d, body: %s", resp.StatusCode, string(respBody))
		return failAll(items, err), err
	}

	var tr TriggerResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&tr); err != nil {
		err = fmt.Errorf("failed to decode response: %w", err)
		return failAll(items, err), err
	}

	result := newResult(len(items))
	result.Errors = append(result.Errors, tr.Errors...)
	for i, item := range items {
		ir := ItemResult{ItemID: item.ID, AlertID: item.AlertID, NotifiedVia: []string{}}
		if i < len(tr.Results) && tr.Results[i].NotifiedVia != nil {
			ir.NotifiedVia = tr.Results[i].NotifiedVia
		}
		result.Sent += len(ir.NotifiedVia)
		result.Failed += max(len(item.ChannelIDs)-len(ir.NotifiedVia), 0)
		result.Items = append(result.Items, ir)
	}
	if len(tr.Results) != len(items) {
		h.logger.Warn("trigger endpoint result count mismatch",
			zap.Int("items", len(items)), zap.Int("results", len(tr.Results)))
	}
	return result.finish(), nil
}

// utcItems returns copies of items with UTC timestamps.
func utcItems(items []*models.TriggerQueueItem) []*models.TriggerQueueItem {
	out := make([]*models.TriggerQueueItem, len(items))
	for i, item := range items {
		c := *item
		c.EnqueuedAt = c.EnqueuedAt.UTC()
		out[i] = &c
	}
	return out
}

var _ Dispatcher = (*HTTP)(nil)
