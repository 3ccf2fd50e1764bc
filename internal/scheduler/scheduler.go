// Package scheduler runs named periodic tasks. Each task runs immediately
// when scheduled and then once per interval; a tick that finds the previous
// run of the same task still in flight is skipped.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/good-yellow-bee/blazealert/internal/metrics"
)

// Task is one unit of periodic work.
type Task func(ctx context.Context) error

// TaskStats counts the ticks of one task.
type TaskStats struct {
	Runs    int64
	Skipped int64
	Failed  int64
}

type entry struct {
	name     string
	interval time.Duration
	task     Task
	sem      *semaphore.Weighted
	cancel   context.CancelFunc

	runs    atomic.Int64
	skipped atomic.Int64
	failed  atomic.Int64
}

// Scheduler owns a set of named periodic tasks.
type Scheduler struct {
	base   context.Context
	logger *zap.Logger

	mu    sync.Mutex
	tasks map[string]*entry
	wg    sync.WaitGroup
}

// New creates a scheduler. Task runs receive ctx; cancelling it aborts
// in-flight runs, while Cancel and CancelAll only stop new ticks.
func New(ctx context.Context, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		base:   ctx,
		logger: logger,
		tasks:  make(map[string]*entry),
	}
}

// Schedule registers task under name. Scheduling an existing name replaces
// the previous task; the two never run concurrently.
func (s *Scheduler) Schedule(name string, interval time.Duration, task Task) error {
	if name == "" {
		return errors.New("task name is required")
	}
	if interval <= 0 {
		return fmt.Errorf("task %s: interval must be positive", name)
	}
	if task == nil {
		return fmt.Errorf("task %s: nil task", name)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sem := semaphore.NewWeighted(1)
	if old, ok := s.tasks[name]; ok {
		old.cancel()
		sem = old.sem
	}

	loopCtx, cancel := context.WithCancel(s.base)
	e := &entry{name: name, interval: interval, task: task, sem: sem, cancel: cancel}
	s.tasks[name] = e

	s.wg.Add(1)
	go s.loop(loopCtx, e)

	s.logger.Debug("task scheduled", zap.String("task", name), zap.Duration("interval", interval))
	return nil
}

// Cancel stops new ticks of the named task. It reports whether the task
// existed.
func (s *Scheduler) Cancel(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.tasks[name]
	if !ok {
		return false
	}
	e.cancel()
	delete(s.tasks, name)
	return true
}

// CancelAll stops new ticks of every task. Safe to call more than once.
func (s *Scheduler) CancelAll() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for name, e := range s.tasks {
		e.cancel()
		delete(s.tasks, name)
	}
}

// Wait blocks until every loop has exited and every in-flight run has
// returned. Call it after CancelAll.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

// Names returns the scheduled task names, sorted.
func (s *Scheduler) Names() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	names := make([]string, 0, len(s.tasks))
	for name := range s.tasks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Stats returns tick counters of the named task.
func (s *Scheduler) Stats(name string) (TaskStats, bool) {
	s.mu.Lock()
	e, ok := s.tasks[name]
	s.mu.Unlock()
	if !ok {
		return TaskStats{}, false
	}
	return TaskStats{Runs: e.runs.Load(), Skipped: e.skipped.Load(), Failed: e.failed.Load()}, true
}

func (s *Scheduler) loop(ctx context.Context, e *entry) {
	defer s.wg.Done()

	s.tick(ctx, e)

	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx, e)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context, e *entry) {
	if ctx.Err() != nil {
		return
	}
	if !e.sem.TryAcquire(1) {
		e.skipped.Add(1)
		metrics.SchedulerTicksTotal.WithLabelValues(e.name, "skipped").Inc()
		s.logger.Debug("tick skipped, previous run in flight", zap.String("task", e.name))
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer e.sem.Release(1)
		s.run(e)
	}()
}

func (s *Scheduler) run(e *entry) {
	e.runs.Add(1)
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			e.failed.Add(1)
			metrics.SchedulerTicksTotal.WithLabelValues(e.name, "failed").Inc()
			s.logger.Error("task panicked", zap.String("task", e.name), zap.Any("panic", r))
		}
	}()

	if err := e.task(s.base); err != nil {
		e.failed.Add(1)
		metrics.SchedulerTicksTotal.WithLabelValues(e.name, "failed").Inc()
		s.logger.Error("task failed",
			zap.String("task", e.name),
			zap.Duration("duration", time.Since(start)),
			zap.Error(err))
		return
	}
	metrics.SchedulerTicksTotal.WithLabelValues(e.name, "ran").Inc()
}
