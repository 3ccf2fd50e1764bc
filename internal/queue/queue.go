// Package queue holds notification requests between evaluation and
// dispatch, partitioned by severity.
package queue

import (
	"context"
	"errors"
	"time"

	"github.com/good-yellow-bee/blazealert/internal/models"
)

// ErrUnknownSeverity is returned for items or requests naming a severity
// the queue has no partition for. It is a programming error and is never
// retried.
var ErrUnknownSeverity = errors.New("unknown severity")

// TriggerQueue is a FIFO queue of trigger items per severity.
type TriggerQueue interface {
	Enqueue(ctx context.Context, item *models.TriggerQueueItem) error
	// Dequeue removes and returns up to batchSize items in enqueue order.
	Dequeue(ctx context.Context, severity models.Severity, batchSize int) ([]*models.TriggerQueueItem, error)
	Size(ctx context.Context, severity models.Severity) (int, error)
}

// Locker is an optional capability of queue backends shared by several
// evaluator processes. The evaluator holds the lock of an alert while it
// evaluates it.
type Locker interface {
	// AcquireLock returns false when another holder owns the lock.
	AcquireLock(ctx context.Context, alertID string, ttl time.Duration) (bool, error)
	ReleaseLock(ctx context.Context, alertID string) error
}
