package queue

import (
	"context"
	"fmt"
	"sync"

	"github.com/good-yellow-bee/blazealert/internal/models"
)

// MemoryQueue is an in-process TriggerQueue. Items do not survive a
// restart. It does not implement Locker.
type MemoryQueue struct {
	mu    sync.Mutex
	items map[models.Severity][]*models.TriggerQueueItem
}

// NewMemoryQueue creates an empty queue with a partition per severity.
func NewMemoryQueue() *MemoryQueue {
	items := make(map[models.Severity][]*models.TriggerQueueItem, len(models.Severities))
	for _, sev := range models.Severities {
		items[sev] = nil
	}
	return &MemoryQueue{items: items}
}

// Enqueue appends item to the partition of its severity.
func (q *MemoryQueue) Enqueue(ctx context.Context, item *models.TriggerQueueItem) error {
	if item == nil {
		return fmt.Errorf("nil trigger item")
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	pending, ok := q.items[item.Severity]
	if !ok {
		return fmt.Errorf("enqueue %q: %w", item.Severity, ErrUnknownSeverity)
	}
	q.items[item.Severity] = append(pending, item)
	return nil
}

// Dequeue removes up to batchSize items from the front of a partition.
func (q *MemoryQueue) Dequeue(ctx context.Context, severity models.Severity, batchSize int) ([]*models.TriggerQueueItem, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	pending, ok := q.items[severity]
	if !ok {
		return nil, fmt.Errorf("dequeue %q: %w", severity, ErrUnknownSeverity)
	}
	if batchSize <= 0 || len(pending) == 0 {
		return nil, nil
	}

	n := min(batchSize, len(pending))
	batch := make([]*models.TriggerQueueItem, n)
	copy(batch, pending[:n])

	rest := pending[n:]
	if len(rest) == 0 {
		rest = nil
	}
	q.items[severity] = rest
	return batch, nil
}

// Size returns the number of queued items of a severity.
func (q *MemoryQueue) Size(ctx context.Context, severity models.Severity) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	pending, ok := q.items[severity]
	if !ok {
		return 0, fmt.Errorf("size %q: %w", severity, ErrUnknownSeverity)
	}
	return len(pending), nil
}

var _ TriggerQueue = (*MemoryQueue)(nil)
