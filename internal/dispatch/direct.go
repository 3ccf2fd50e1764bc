package dispatch

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/good-yellow-bee/blazealert/internal/metrics"
	"github.com/good-yellow-bee/blazealert/internal/models"
	"github.com/good-yellow-bee/blazealert/internal/notifier"
	"github.com/good-yellow-bee/blazealert/internal/storage"
)

// DirectConfig configures in-process dispatch.
type DirectConfig struct {
	Channels     storage.ChannelSource
	Registry     *notifier.Registry
	DashboardURL string
	// MaxConcurrency bounds concurrent sends per item (default: 8).
	MaxConcurrency int
	Logger         *zap.Logger
}

// Direct resolves each item's channels and sends through the adapters.
// Items are processed in order; the channels of one item fan out.
type Direct struct {
	channels     storage.ChannelSource
	registry     *notifier.Registry
	dashboardURL string
	concurrency  int
	logger       *zap.Logger
}

// NewDirect creates an in-process dispatcher.
func NewDirect(cfg DirectConfig) *Direct {
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = 8
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Direct{
		channels:     cfg.Channels,
		registry:     cfg.Registry,
		dashboardURL: cfg.DashboardURL,
		concurrency:  cfg.MaxConcurrency,
		logger:       cfg.Logger,
	}
}

// Dispatch sends every item. Configuration and transport problems are
// channel failures in the result; the returned error is always nil.
func (d *Direct) Dispatch(ctx context.Context, items []*models.TriggerQueueItem) (*DispatchResult, error) {
	result := newResult(len(items))
	for _, item := range items {
		result.Items = append(result.Items, d.dispatchItem(ctx, item, result))
	}
	return result.finish(), nil
}

func (d *Direct) dispatchItem(ctx context.Context, item *models.TriggerQueueItem, result *DispatchResult) ItemResult {
	ir := ItemResult{ItemID: item.ID, AlertID: item.AlertID, NotifiedVia: []string{}}
	if len(item.ChannelIDs) == 0 {
		return ir
	}

	log := d.logger.With(zap.String("alert_id", item.AlertID), zap.String("state", string(item.NewState)))

	channels, err := d.channels.GetChannels(ctx, item.ChannelIDs)
	if err != nil {
		log.Error("failed to load channels", zap.Error(err))
		result.Failed += len(item.ChannelIDs)
		result.Errors = append(result.Errors, fmt.Sprintf("alert %s: load channels: %v", item.AlertID, err))
		return ir
	}

	if missing := len(item.ChannelIDs) - len(channels); missing > 0 {
		result.Failed += missing
		result.Errors = append(result.Errors, fmt.Sprintf("alert %s: %d channel(s) missing or disabled", item.AlertID, missing))
	}

	payload := notifier.NewPayload(item, d.dashboardURL)
	sends := make([]notifier.SendResult, len(channels))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.concurrency)
	for i, ch := range channels {
		i, ch := i, ch
		g.Go(func() error {
			sends[i] = d.send(gctx, ch, payload)
			return nil
		})
	}
	g.Wait()

	for i, res := range sends {
		ch := channels[i]
		if res.Success {
			result.Sent++
			ir.NotifiedVia = append(ir.NotifiedVia, string(res.Provider))
			metrics.DispatchSentTotal.WithLabelValues(string(ch.Provider)).Inc()
			continue
		}
		result.Failed++
		result.Errors = append(result.Errors, fmt.Sprintf("alert %s: channel %s (%s): %s", item.AlertID, ch.Name, ch.Provider, res.Error))
		metrics.DispatchFailedTotal.WithLabelValues(string(ch.Provider)).Inc()
		log.Warn("notification failed",
			zap.String("channel", ch.Name),
			zap.String("provider", string(ch.Provider)),
			zap.String("error", res.Error))
	}
	return ir
}

// send validates the channel config with its adapter and delivers payload.
func (d *Direct) send(ctx context.Context, ch *models.NotificationChannel, payload *notifier.Payload) notifier.SendResult {
	adapter, cfg, err := d.registry.ValidateChannel(ch)
	if err != nil {
		return notifier.SendResult{Provider: ch.Provider, Error: err.Error()}
	}

	start := time.Now()
	res := adapter.Send(ctx, cfg, payload)
	metrics.AdapterSendDuration.WithLabelValues(string(ch.Provider)).Observe(time.Since(start).Seconds())
	if res.Provider == "" {
		res.Provider = ch.Provider
	}
	return res
}

var _ Dispatcher = (*Direct)(nil)
