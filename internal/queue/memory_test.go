package queue

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/good-yellow-bee/blazealert/internal/models"
)

func item(id string, sev models.Severity) *models.TriggerQueueItem {
	return &models.TriggerQueueItem{ID: id, AlertID: id, Severity: sev}
}

func ids(items []*models.TriggerQueueItem) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.ID
	}
	return out
}

func TestMemoryQueue_FIFO(t *testing.T) {
	q := NewMemoryQueue()
	ctx := context.Background()

	for _, id := range []string{"A", "B", "C"} {
		require.NoError(t, q.Enqueue(ctx, item(id, models.SeverityHigh)))
	}

	first, err := q.Dequeue(ctx, models.SeverityHigh, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B"}, ids(first))

	second, err := q.Dequeue(ctx, models.SeverityHigh, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"C"}, ids(second))

	empty, err := q.Dequeue(ctx, models.SeverityHigh, 2)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestMemoryQueue_PartitionsBySeverity(t *testing.T) {
	q := NewMemoryQueue()
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, item("crit", models.SeverityCritical)))
	require.NoError(t, q.Enqueue(ctx, item("low", models.SeverityLow)))

	n, err := q.Size(ctx, models.SeverityCritical)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := q.Dequeue(ctx, models.SeverityLow, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"low"}, ids(got))

	n, err = q.Size(ctx, models.SeverityCritical)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestMemoryQueue_UnknownSeverity(t *testing.T) {
	q := NewMemoryQueue()
	ctx := context.Background()

	err := q.Enqueue(ctx, item("x", models.Severity("urgent")))
	assert.True(t, errors.Is(err, ErrUnknownSeverity))

	_, err = q.Dequeue(ctx, models.Severity("urgent"), 1)
	assert.True(t, errors.Is(err, ErrUnknownSeverity))

	_, err = q.Size(ctx, "")
	assert.True(t, errors.Is(err, ErrUnknownSeverity))
}

func TestMemoryQueue_ZeroBatch(t *testing.T) {
	q := NewMemoryQueue()
	ctx := context.Background()
	require.NoError(t, q.Enqueue(ctx, item("A", models.SeverityMedium)))

	got, err := q.Dequeue(ctx, models.SeverityMedium, 0)
	require.NoError(t, err)
	assert.Empty(t, got)

	n, _ := q.Size(ctx, models.SeverityMedium)
	assert.Equal(t, 1, n)
}

func TestMemoryQueue_NotALocker(t *testing.T) {
	var q TriggerQueue = NewMemoryQueue()
	_, ok := q.(Locker)
	assert.False(t, ok)
}

func TestMemoryQueue_Concurrent(t *testing.T) {
	q := NewMemoryQueue()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = q.Enqueue(ctx, item("x", models.SeverityCritical))
		}()
	}
	wg.Wait()

	n, err := q.Size(ctx, models.SeverityCritical)
	require.NoError(t, err)
	assert.Equal(t, 50, n)
}
