package engine

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/good-yellow-bee/blazealert/internal/alerting"
	"github.com/good-yellow-bee/blazealert/internal/dispatch"
	"github.com/good-yellow-bee/blazealert/internal/models"
	"github.com/good-yellow-bee/blazealert/internal/notifier"
	"github.com/good-yellow-bee/blazealert/internal/queue"
	"github.com/good-yellow-bee/blazealert/internal/storage"
)

type stubMetrics struct {
	mu     sync.Mutex
	values []float64
}

func (m *stubMetrics) GetMetric(ctx context.Context, projectID string, metric models.MetricType, windowMins int) (*storage.MetricResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v := m.values[0]
	if len(m.values) > 1 {
		m.values = m.values[1:]
	}
	return &storage.MetricResult{Value: v, SampleCount: 42}, nil
}

type recordingDispatcher struct {
	mu      sync.Mutex
	batches [][]*models.TriggerQueueItem
	result  func(items []*models.TriggerQueueItem) (*dispatch.DispatchResult, error)
}

func (d *recordingDispatcher) Dispatch(ctx context.Context, items []*models.TriggerQueueItem) (*dispatch.DispatchResult, error) {
	d.mu.Lock()
	d.batches = append(d.batches, items)
	d.mu.Unlock()
	return d.result(items)
}

func acceptAll(items []*models.TriggerQueueItem) (*dispatch.DispatchResult, error) {
	res := &dispatch.DispatchResult{Success: true}
	for _, item := range items {
		res.Sent++
		res.Items = append(res.Items, dispatch.ItemResult{ItemID: item.ID, AlertID: item.AlertID, NotifiedVia: []string{"slack"}})
	}
	return res, nil
}

type fixture struct {
	sqlite *storage.SQLiteStorage
	store  *storage.DirectStore
	alert  *models.Alert
}

func newFixture(t *testing.T, metrics storage.MetricProvider, channelURL string) *fixture {
	t.Helper()
	ctx := context.Background()

	sqlite := storage.NewSQLiteStorage(filepath.Join(t.TempDir(), "engine.db"))
	require.NoError(t, sqlite.Open())
	t.Cleanup(func() { sqlite.Close() })
	require.NoError(t, sqlite.Migrate())

	p := &models.Project{ID: "checkout", Name: "Checkout"}
	require.NoError(t, sqlite.Projects().Upsert(ctx, p))

	cfg, _ := json.Marshal(map[string]string{"url": channelURL})
	ch := &models.NotificationChannel{ID: "hook", ProjectID: p.ID, Name: "hook", Provider: models.ProviderWebhook, Config: cfg, Enabled: true}
	require.NoError(t, sqlite.Channels().Upsert(ctx, ch))

	a := models.NewAlert(p.ID, "checkout errors", models.MetricErrorRate, models.SeverityCritical)
	a.ID = "checkout-errors"
	a.Threshold = 5
	a.ChannelIDs = []string{ch.ID}
	require.NoError(t, sqlite.Alerts().Upsert(ctx, a))

	return &fixture{sqlite: sqlite, store: storage.NewDirectStore(sqlite, metrics), alert: a}
}

func TestNew_Validation(t *testing.T) {
	_, err := New(Options{})
	assert.Error(t, err)

	negative := -1
	_, err = New(Options{
		Store:      &storage.DirectStore{},
		Queue:      queue.NewMemoryQueue(),
		Dispatcher: &recordingDispatcher{result: acceptAll},
		Timings: alerting.SeverityTimings{
			models.SeverityHigh: {CooldownMins: &negative},
		},
	})
	assert.Error(t, err)
}

// Evaluation through dispatch against a live webhook endpoint.
func TestEngine_EvaluateAndFlush(t *testing.T) {
	var hits atomic.Int32
	var received notifier.Payload
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		json.NewDecoder(r.Body).Decode(&received)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	ctx := context.Background()
	f := newFixture(t, &stubMetrics{values: []float64{9, 9, 1}}, server.URL)
	q := queue.NewMemoryQueue()
	registry := notifier.NewRegistry(notifier.NewWebhookAdapter(notifier.HTTPOptions{Client: server.Client()}))

	now := time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC)
	eng, err := New(Options{
		Store:      f.store,
		Queue:      q,
		Dispatcher: dispatch.NewDirect(dispatch.DirectConfig{Channels: f.store, Registry: registry}),
		Now:        func() time.Time { return now },
	})
	require.NoError(t, err)

	// INACTIVE -> PENDING
	_, err = eng.Evaluator().EvaluateSeverity(ctx, models.SeverityCritical)
	require.NoError(t, err)

	// PENDING -> FIRING after the one minute critical pending period.
	now = now.Add(time.Minute)
	sum, err := eng.Evaluator().EvaluateSeverity(ctx, models.SeverityCritical)
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Notifications)

	n, err := eng.Flush(ctx, models.SeverityCritical)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, int32(1), hits.Load())
	assert.Equal(t, "checkout-errors", received.AlertID)
	assert.Equal(t, models.StateFiring, received.State)

	// FIRING -> RESOLVED
	now = now.Add(time.Minute)
	_, err = eng.Evaluator().EvaluateSeverity(ctx, models.SeverityCritical)
	require.NoError(t, err)
	_, err = eng.Flush(ctx, models.SeverityCritical)
	require.NoError(t, err)
	assert.Equal(t, int32(2), hits.Load())
	assert.Equal(t, models.StateResolved, received.State)

	history, total, err := f.sqlite.AlertHistory().ListByAlert(ctx, f.alert.ID, 10, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)

	// Newest first.
	assert.Equal(t, models.StateResolved, history[0].State)
	assert.True(t, history[0].Resolved)
	require.NotNil(t, history[0].ResolvedAt)
	assert.Equal(t, []string{"webhook"}, history[0].NotifiedVia)

	assert.Equal(t, models.StateFiring, history[1].State)
	assert.Equal(t, []string{"webhook"}, history[1].NotifiedVia)
	assert.Equal(t, 9.0, history[1].Value)

	assert.Equal(t, models.StatePending, history[2].State)
	assert.Equal(t, []string{}, history[2].NotifiedVia)

	// Nothing left to flush.
	n, err = eng.Flush(ctx, models.SeverityCritical)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestEngine_FlushDispatchError(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, &stubMetrics{values: []float64{0}}, "http://127.0.0.1:1")
	q := queue.NewMemoryQueue()

	d := &recordingDispatcher{result: func(items []*models.TriggerQueueItem) (*dispatch.DispatchResult, error) {
		res := &dispatch.DispatchResult{Failed: len(items)}
		for _, item := range items {
			res.Items = append(res.Items, dispatch.ItemResult{ItemID: item.ID, AlertID: item.AlertID, NotifiedVia: []string{}})
		}
		return res, errors.New("trigger endpoint error: status 503")
	}}

	eng, err := New(Options{Store: f.store, Queue: q, Dispatcher: d, BatchSize: 2})
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		require.NoError(t, q.Enqueue(ctx, &models.TriggerQueueItem{
			ID: "item-" + string(rune('a'+i)), AlertID: f.alert.ID, ProjectID: "checkout",
			Severity: models.SeverityHigh, PreviousState: models.StatePending, NewState: models.StateFiring,
			ChannelIDs: []string{"hook"},
		}))
	}

	n, err := eng.Flush(ctx, models.SeverityHigh)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 503")
	assert.Equal(t, 2, n)

	size, _ := q.Size(ctx, models.SeverityHigh)
	assert.Equal(t, 1, size, "failed items are not requeued")

	_, total, err := f.sqlite.AlertHistory().ListByAlert(ctx, f.alert.ID, 10, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
}

func TestNotifiedVia_FallsBackToPosition(t *testing.T) {
	items := []*models.TriggerQueueItem{{ID: "x"}, {ID: "y"}}
	res := &dispatch.DispatchResult{Items: []dispatch.ItemResult{
		{NotifiedVia: []string{"email"}},
		{ItemID: "y", NotifiedVia: []string{"slack", "teams"}},
	}}
	got := notifiedVia(items, res)
	assert.Equal(t, [][]string{{"email"}, {"slack", "teams"}}, got)

	assert.Equal(t, [][]string{nil, nil}, notifiedVia(items, nil))
}

type countingPruner struct {
	calls  atomic.Int32
	before atomic.Int64
}

func (p *countingPruner) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	p.calls.Add(1)
	p.before.Store(before.UnixMilli())
	return 3, nil
}

func TestEngine_StartStop(t *testing.T) {
	f := newFixture(t, &stubMetrics{values: []float64{0}}, "http://127.0.0.1:1")
	now := time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC)
	pruner := &countingPruner{}

	eng, err := New(Options{
		Store:            f.store,
		Queue:            queue.NewMemoryQueue(),
		Dispatcher:       &recordingDispatcher{result: acceptAll},
		Pruner:           pruner,
		HistoryRetention: 24 * time.Hour,
		Now:              func() time.Time { return now },
	})
	require.NoError(t, err)

	require.NoError(t, eng.Start(context.Background()))
	assert.Error(t, eng.Start(context.Background()))

	assert.Equal(t, []string{
		"evaluate:critical", "evaluate:high", "evaluate:low", "evaluate:medium",
		"flush:critical", "flush:high", "flush:low", "flush:medium",
		"prune:history",
	}, eng.Tasks())

	// Every task runs once on start.
	require.Eventually(t, func() bool {
		return eng.Evaluator().Stats().Evaluated.Load() >= 1 && pruner.calls.Load() == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, now.Add(-24*time.Hour).UnixMilli(), pruner.before.Load())

	eng.Stop()
	eng.Stop()
}
