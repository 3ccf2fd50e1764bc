// Package engine wires evaluation and dispatch into scheduled tasks: one
// evaluate task and one flush task per severity.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/good-yellow-bee/blazealert/internal/alerting"
	"github.com/good-yellow-bee/blazealert/internal/dispatch"
	"github.com/good-yellow-bee/blazealert/internal/metrics"
	"github.com/good-yellow-bee/blazealert/internal/models"
	"github.com/good-yellow-bee/blazealert/internal/queue"
	"github.com/good-yellow-bee/blazealert/internal/scheduler"
	"github.com/good-yellow-bee/blazealert/internal/storage"
)

const (
	// DefaultBatchSize is the number of items a flush dispatches at most.
	DefaultBatchSize = 50

	pruneInterval = time.Hour
)

// HistoryPruner deletes history older than a cutoff.
type HistoryPruner interface {
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
}

// Options configures an Engine.
type Options struct {
	Store      storage.AlertStore
	Queue      queue.TriggerQueue
	Dispatcher dispatch.Dispatcher
	Timings    alerting.SeverityTimings
	BatchSize  int

	// Pruner and HistoryRetention enable an hourly history cleanup task.
	Pruner           HistoryPruner
	HistoryRetention time.Duration

	Logger *zap.Logger
	Now    func() time.Time
}

// Engine runs the evaluation and flush tasks of every severity.
type Engine struct {
	store      storage.AlertStore
	queue      queue.TriggerQueue
	dispatcher dispatch.Dispatcher
	evaluator  *alerting.Evaluator
	timings    alerting.SeverityTimings
	batchSize  int
	pruner     HistoryPruner
	retention  time.Duration
	logger     *zap.Logger
	now        func() time.Time

	mu    sync.Mutex
	sched *scheduler.Scheduler
}

// New creates an engine. Timings missing from opts use the built-in table.
func New(opts Options) (*Engine, error) {
	if opts.Store == nil {
		return nil, errors.New("alert store is required")
	}
	if opts.Queue == nil {
		return nil, errors.New("trigger queue is required")
	}
	if opts.Dispatcher == nil {
		return nil, errors.New("dispatcher is required")
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}

	timings := opts.Timings.Merge(alerting.DefaultSeverityTimings())
	if err := timings.Validate(); err != nil {
		return nil, fmt.Errorf("invalid severity timings: %w", err)
	}

	return &Engine{
		store:      opts.Store,
		queue:      opts.Queue,
		dispatcher: opts.Dispatcher,
		evaluator: alerting.NewEvaluator(alerting.EvaluatorOptions{
			Store:   opts.Store,
			Queue:   opts.Queue,
			Timings: timings,
			Logger:  opts.Logger.Named("evaluator"),
			Now:     opts.Now,
		}),
		timings:   timings,
		batchSize: opts.BatchSize,
		pruner:    opts.Pruner,
		retention: opts.HistoryRetention,
		logger:    opts.Logger,
		now:       opts.Now,
	}, nil
}

// EvaluateTask returns the scheduler task name evaluating sev.
func EvaluateTask(sev models.Severity) string { return "evaluate:" + string(sev) }

// FlushTask returns the scheduler task name flushing sev.
func FlushTask(sev models.Severity) string { return "flush:" + string(sev) }

// Start schedules every task. Task runs use ctx; Stop prevents new ticks.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.sched != nil {
		return errors.New("engine already started")
	}
	e.sched = scheduler.New(ctx, e.logger.Named("scheduler"))

	for _, sev := range models.Severities {
		t := e.timings[sev]
		if err := e.sched.Schedule(EvaluateTask(sev), t.EvalInterval, e.evaluateTask(sev)); err != nil {
			return err
		}
		if err := e.sched.Schedule(FlushTask(sev), t.FlushInterval, e.flushTask(sev)); err != nil {
			return err
		}
	}
	if e.pruner != nil && e.retention > 0 {
		if err := e.sched.Schedule("prune:history", pruneInterval, e.pruneHistory); err != nil {
			return err
		}
	}

	e.logger.Info("alert engine started", zap.Strings("tasks", e.sched.Names()))
	return nil
}

// Stop cancels every task and waits for in-flight runs.
func (e *Engine) Stop() {
	e.mu.Lock()
	sched := e.sched
	e.mu.Unlock()

	if sched == nil {
		return
	}
	sched.CancelAll()
	sched.Wait()
	e.logger.Info("alert engine stopped")
}

// Tasks returns the scheduled task names.
func (e *Engine) Tasks() []string {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.sched == nil {
		return nil
	}
	return e.sched.Names()
}

// Evaluator returns the engine's evaluator.
func (e *Engine) Evaluator() *alerting.Evaluator {
	return e.evaluator
}

func (e *Engine) evaluateTask(sev models.Severity) scheduler.Task {
	return func(ctx context.Context) error {
		_, err := e.evaluator.EvaluateSeverity(ctx, sev)
		return err
	}
}

func (e *Engine) flushTask(sev models.Severity) scheduler.Task {
	return func(ctx context.Context) error {
		_, err := e.Flush(ctx, sev)
		return err
	}
}

// Flush dispatches up to one batch of queued items of sev and records one
// history entry per item with the providers that accepted it. Items are
// not requeued when dispatch fails. It returns the number of items taken.
func (e *Engine) Flush(ctx context.Context, sev models.Severity) (int, error) {
	defer e.updateQueueDepth(ctx, sev)

	items, err := e.queue.Dequeue(ctx, sev, e.batchSize)
	if err != nil {
		return 0, fmt.Errorf("failed to dequeue %s items: %w", sev, err)
	}
	if len(items) == 0 {
		return 0, nil
	}

	result, dispatchErr := e.dispatcher.Dispatch(ctx, items)
	if dispatchErr != nil {
		e.logger.Error("dispatch failed",
			zap.String("severity", string(sev)),
			zap.Int("items", len(items)),
			zap.Error(dispatchErr))
	} else {
		e.logger.Info("notifications dispatched",
			zap.String("severity", string(sev)),
			zap.Int("items", len(items)),
			zap.Int("sent", result.Sent),
			zap.Int("failed", result.Failed))
	}
	if result != nil {
		for _, msg := range result.Errors {
			e.logger.Warn("notification error", zap.String("severity", string(sev)), zap.String("error", msg))
		}
	}

	via := notifiedVia(items, result)
	now := e.now()
	var historyErr error
	for i, item := range items {
		entry := historyEntry(item, via[i], now)
		if err := e.store.RecordHistory(ctx, entry); err != nil {
			e.logger.Error("failed to record history", zap.String("alert_id", item.AlertID), zap.Error(err))
			historyErr = errors.Join(historyErr, err)
		}
	}

	if dispatchErr != nil {
		return len(items), errors.Join(fmt.Errorf("dispatch %s batch: %w", sev, dispatchErr), historyErr)
	}
	return len(items), historyErr
}

func (e *Engine) updateQueueDepth(ctx context.Context, sev models.Severity) {
	n, err := e.queue.Size(ctx, sev)
	if err != nil {
		return
	}
	metrics.QueueDepth.WithLabelValues(string(sev)).Set(float64(n))
}

func (e *Engine) pruneHistory(ctx context.Context) error {
	cutoff := e.now().Add(-e.retention)
	n, err := e.pruner.DeleteBefore(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("prune history: %w", err)
	}
	if n > 0 {
		e.logger.Info("pruned alert history", zap.Int64("deleted", n), zap.Time("before", cutoff))
	}
	return nil
}

// notifiedVia maps each item to its accepted providers. Results are matched
// by item id, falling back to position.
func notifiedVia(items []*models.TriggerQueueItem, result *dispatch.DispatchResult) [][]string {
	out := make([][]string, len(items))
	if result == nil {
		return out
	}
	byID := make(map[string][]string, len(result.Items))
	for _, ir := range result.Items {
		if ir.ItemID != "" {
			byID[ir.ItemID] = ir.NotifiedVia
		}
	}
	for i, item := range items {
		if v, ok := byID[item.ID]; ok {
			out[i] = v
		} else if i < len(result.Items) {
			out[i] = result.Items[i].NotifiedVia
		}
	}
	return out
}

func historyEntry(item *models.TriggerQueueItem, via []string, now time.Time) *models.AlertHistoryEntry {
	if via == nil {
		via = []string{}
	}
	entry := &models.AlertHistoryEntry{
		AlertID:       item.AlertID,
		ProjectID:     item.ProjectID,
		Value:         item.ActualValue,
		Threshold:     item.Threshold,
		State:         item.NewState,
		PreviousState: item.PreviousState,
		NotifiedVia:   via,
		SampleCount:   item.SampleCount,
		CreatedAt:     now,
	}
	if item.NewState == models.StateResolved {
		resolvedAt := item.EnqueuedAt
		entry.Resolved = true
		entry.ResolvedAt = &resolvedAt
	}
	return entry
}
