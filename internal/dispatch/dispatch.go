// Package dispatch delivers queued trigger items to notification channels,
// either in-process or through a remote trigger endpoint.
package dispatch

import (
	"context"

	"github.com/good-yellow-bee/blazealert/internal/models"
)

// Dispatcher delivers a batch of trigger items. Dispatchers do not retry.
type Dispatcher interface {
	Dispatch(ctx context.Context, items []*models.TriggerQueueItem) (*DispatchResult, error)
}

// DispatchResult aggregates the channel outcomes of one batch.
type DispatchResult struct {
	Success bool         `json:"success"`
	Sent    int          `json:"sent"`
	Failed  int          `json:"failed"`
	Errors  []string     `json:"errors,omitempty"`
	Items   []ItemResult `json:"items"`
}

// ItemResult lists the providers that accepted one item, in channel order.
type ItemResult struct {
	ItemID      string   `json:"itemId,omitempty"`
	AlertID     string   `json:"alertId"`
	NotifiedVia []string `json:"notifiedVia"`
}

func newResult(n int) *DispatchResult {
	return &DispatchResult{Success: true, Errors: []string{}, Items: make([]ItemResult, 0, n)}
}

func (r *DispatchResult) finish() *DispatchResult {
	r.Success = r.Failed == 0
	return r
}

// failAll marks every channel of items as failed with err.
func failAll(items []*models.TriggerQueueItem, err error) *DispatchResult {
	result := newResult(len(items))
	for _, item := range items {
		result.Failed += len(item.ChannelIDs)
		result.Items = append(result.Items, ItemResult{ItemID: item.ID, AlertID: item.AlertID, NotifiedVia: []string{}})
	}
	result.Errors = append(result.Errors, err.Error())
	result.Success = false
	return result
}
