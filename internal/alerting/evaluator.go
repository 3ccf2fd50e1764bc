package alerting

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/good-yellow-bee/blazealert/internal/metrics"
	"github.com/good-yellow-bee/blazealert/internal/models"
	"github.com/good-yellow-bee/blazealert/internal/queue"
	"github.com/good-yellow-bee/blazealert/internal/storage"
)

// DefaultLockTTL bounds how long an evaluator holds the lock of one alert.
const DefaultLockTTL = 30 * time.Second

// EvaluatorOptions configures an Evaluator.
type EvaluatorOptions struct {
	Store   storage.AlertStore
	Queue   queue.TriggerQueue
	Timings SeverityTimings
	// LockTTL is used when Queue implements queue.Locker (default: 30s).
	LockTTL time.Duration
	Logger  *zap.Logger
	// Now overrides the clock, for tests.
	Now func() time.Time
}

// EvaluatorStats tracks evaluator totals since start.
type EvaluatorStats struct {
	Evaluated     atomic.Int64
	Transitions   atomic.Int64
	Notifications atomic.Int64
	Errors        atomic.Int64
	LockSkipped   atomic.Int64
}

// Summary describes one evaluation pass over a severity.
type Summary struct {
	Severity      models.Severity
	Evaluated     int
	Transitions   int
	Notifications int
	Errors        int
	LockSkipped   int
	Duration      time.Duration
}

// Evaluator evaluates the alerts of one severity per call: it reads each
// alert's metric, advances its state, persists the decision and enqueues a
// trigger item when the decision notifies.
type Evaluator struct {
	store   storage.AlertStore
	queue   queue.TriggerQueue
	locker  queue.Locker
	timings SeverityTimings
	lockTTL time.Duration
	logger  *zap.Logger
	now     func() time.Time

	stats *EvaluatorStats
}

// NewEvaluator creates an evaluator. Missing timings fall back to the
// built-in table.
func NewEvaluator(opts EvaluatorOptions) *Evaluator {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.LockTTL <= 0 {
		opts.LockTTL = DefaultLockTTL
	}
	timings := opts.Timings.Merge(DefaultSeverityTimings())

	e := &Evaluator{
		store:   opts.Store,
		queue:   opts.Queue,
		timings: timings,
		lockTTL: opts.LockTTL,
		logger:  opts.Logger,
		now:     opts.Now,
		stats:   &EvaluatorStats{},
	}
	if l, ok := opts.Queue.(queue.Locker); ok {
		e.locker = l
	}
	return e
}

// Stats returns the evaluator statistics.
func (e *Evaluator) Stats() *EvaluatorStats {
	return e.stats
}

// outcome is what evaluating one alert did.
type outcome struct {
	transitioned bool
	notified     bool
	lockSkipped  bool
}

// EvaluateSeverity runs one pass over the enabled alerts of sev. A failure
// on one alert is logged and counted; the pass continues with the next.
// The returned error is set only when the alerts could not be listed.
func (e *Evaluator) EvaluateSeverity(ctx context.Context, sev models.Severity) (*Summary, error) {
	if !sev.Valid() {
		return nil, fmt.Errorf("%w: %q", queue.ErrUnknownSeverity, sev)
	}

	start := time.Now()
	sum := &Summary{Severity: sev}

	alerts, err := e.store.GetEligibleAlerts(ctx, sev)
	if err != nil {
		metrics.EvaluationErrorsTotal.WithLabelValues(string(sev), "list").Inc()
		return nil, fmt.Errorf("failed to list %s alerts: %w", sev, err)
	}

	for _, a := range alerts {
		if ctx.Err() != nil {
			break
		}

		out, stage, err := e.evaluateAlert(ctx, a)
		if err != nil {
			sum.Errors++
			e.stats.Errors.Add(1)
			metrics.EvaluationErrorsTotal.WithLabelValues(string(sev), stage).Inc()
			e.logger.Error("alert evaluation failed",
				zap.String("alert_id", a.ID),
				zap.String("alert", a.Name),
				zap.String("stage", stage),
				zap.Error(err))
			continue
		}
		if out.lockSkipped {
			sum.LockSkipped++
			e.stats.LockSkipped.Add(1)
			continue
		}

		sum.Evaluated++
		e.stats.Evaluated.Add(1)
		metrics.EvaluationsTotal.WithLabelValues(string(sev)).Inc()
		if out.transitioned {
			sum.Transitions++
			e.stats.Transitions.Add(1)
		}
		if out.notified {
			sum.Notifications++
			e.stats.Notifications.Add(1)
		}
	}

	sum.Duration = time.Since(start)
	metrics.EvaluationDuration.WithLabelValues(string(sev)).Observe(sum.Duration.Seconds())

	log := e.logger.Debug
	if sum.Transitions > 0 || sum.Errors > 0 {
		log = e.logger.Info
	}
	log("evaluation pass complete",
		zap.String("severity", string(sev)),
		zap.Int("alerts", len(alerts)),
		zap.Int("evaluated", sum.Evaluated),
		zap.Int("transitions", sum.Transitions),
		zap.Int("notifications", sum.Notifications),
		zap.Int("errors", sum.Errors),
		zap.Duration("duration", sum.Duration))

	return sum, nil
}

// evaluateAlert evaluates one alert. On error it also returns the stage
// that failed.
func (e *Evaluator) evaluateAlert(ctx context.Context, a *models.AlertWithProject) (outcome, string, error) {
	if e.locker != nil {
		ok, err := e.locker.AcquireLock(ctx, a.ID, e.lockTTL)
		if err != nil {
			return outcome{}, "lock", err
		}
		if !ok {
			return outcome{lockSkipped: true}, "", nil
		}
		defer func() {
			if err := e.locker.ReleaseLock(context.WithoutCancel(ctx), a.ID); err != nil {
				e.logger.Warn("failed to release alert lock", zap.String("alert_id", a.ID), zap.Error(err))
			}
		}()
	}

	started := time.Now()
	now := e.now()

	m, err := e.store.GetMetric(ctx, a.ProjectID, a.MetricType, a.WindowMins)
	if err != nil {
		return outcome{}, "metric", err
	}
	if m == nil {
		return outcome{}, "metric", errors.New("metric provider returned no result")
	}

	met := ConditionMet(a.Operator, m.Value, a.Threshold, m.SampleCount)
	res := Transition(TransitionInput{
		State:           a.State,
		ConditionMet:    met,
		StateChangedAt:  a.StateChangedAt,
		LastTriggeredAt: a.LastTriggeredAt,
		Now:             now,
		Timing:          ResolveTiming(a.Alert, e.timings),
	})

	err = e.store.UpdateAlertState(ctx, a.ID, res.Next, storage.StateUpdate{
		At:           now,
		StateChanged: res.StateChanged,
		Triggered:    res.Notify && res.Next == models.StateFiring,
	})
	if err != nil {
		return outcome{}, "update", err
	}

	out := outcome{transitioned: res.StateChanged, notified: res.Notify}
	if res.StateChanged {
		metrics.TransitionsTotal.WithLabelValues(string(a.State), string(res.Next)).Inc()
		e.logger.Info("alert state changed",
			zap.String("alert_id", a.ID),
			zap.String("alert", a.Name),
			zap.String("project", a.ProjectName),
			zap.String("from", string(a.State)),
			zap.String("to", string(res.Next)),
			zap.Float64("value", m.Value),
			zap.Float64("threshold", a.Threshold),
			zap.Int64("samples", m.SampleCount))
	}

	if res.Notify {
		item := &models.TriggerQueueItem{
			ID:            uuid.New().String(),
			AlertID:       a.ID,
			AlertName:     a.Name,
			ProjectID:     a.ProjectID,
			ProjectName:   a.ProjectName,
			Severity:      a.Severity,
			MetricType:    a.MetricType,
			Threshold:     a.Threshold,
			ActualValue:   m.Value,
			SampleCount:   m.SampleCount,
			Operator:      a.Operator,
			PreviousState: a.State,
			NewState:      res.Next,
			EnqueuedAt:    now,
			ChannelIDs:    append([]string{}, a.ChannelIDs...),
		}
		if err := e.queue.Enqueue(ctx, item); err != nil {
			return out, "enqueue", err
		}
		metrics.NotificationsTotal.WithLabelValues(string(a.Severity)).Inc()
		return out, "", nil
	}

	// Notifying decisions are recorded after dispatch, with the providers
	// that accepted them.
	if res.StateChanged {
		entry := &models.AlertHistoryEntry{
			AlertID:       a.ID,
			ProjectID:     a.ProjectID,
			Value:         m.Value,
			Threshold:     a.Threshold,
			State:         res.Next,
			PreviousState: a.State,
			NotifiedVia:   []string{},
			SampleCount:   m.SampleCount,
			EvaluationMs:  time.Since(started).Milliseconds(),
			CreatedAt:     now,
		}
		if err := e.store.RecordHistory(ctx, entry); err != nil {
			return out, "history", err
		}
	}
	return out, "", nil
}
