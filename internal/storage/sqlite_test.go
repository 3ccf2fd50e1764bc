package storage

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/good-yellow-bee/blazealert/internal/models"
)

func setupTestDB(t *testing.T) *SQLiteStorage {
	t.Helper()

	store := NewSQLiteStorage(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, store.Open())
	t.Cleanup(func() { store.Close() })
	require.NoError(t, store.Migrate())
	return store
}

func seedProject(t *testing.T, store *SQLiteStorage, name string) *models.Project {
	t.Helper()
	p := models.NewProject(name, "")
	require.NoError(t, store.Projects().Upsert(context.Background(), p))
	return p
}

func seedChannel(t *testing.T, store *SQLiteStorage, projectID, name string, enabled bool) *models.NotificationChannel {
	t.Helper()
	ch := &models.NotificationChannel{
		ProjectID: projectID,
		Name:      name,
		Provider:  models.ProviderWebhook,
		Config:    json.RawMessage(`{"url":"https://example.com/hook"}`),
		Enabled:   enabled,
	}
	require.NoError(t, store.Channels().Upsert(context.Background(), ch))
	return ch
}

func TestSQLiteStorage_Migrate(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	tables := []string{"projects", "alerts", "notification_channels", "alert_channels", "alert_history", "schema_migrations"}
	for _, table := range tables {
		var count int
		err := store.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table).Scan(&count)
		assert.NoError(t, err, "table %s should exist", table)
	}

	// Running again is a no-op.
	require.NoError(t, store.Migrate())
}

func TestSQLiteStorage_OpenRequiresPath(t *testing.T) {
	assert.Error(t, NewSQLiteStorage("").Open())
}

func TestProjectRepository_UpsertList(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	p := seedProject(t, store, "checkout")
	seedProject(t, store, "billing")

	got, err := store.Projects().GetByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "checkout", got.Name)

	p.Name = "checkout-v2"
	require.NoError(t, store.Projects().Upsert(ctx, p))

	list, err := store.Projects().List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "billing", list[0].Name)
	assert.Equal(t, "checkout-v2", list[1].Name)

	_, err = store.Projects().GetByID(ctx, "missing")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestAlertRepository_UpsertAndList(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	p := seedProject(t, store, "checkout")
	ch1 := seedChannel(t, store, p.ID, "ops", true)
	ch2 := seedChannel(t, store, p.ID, "muted", false)
	ch3 := seedChannel(t, store, p.ID, "oncall", true)

	pending := 0
	high := models.NewAlert(p.ID, "error rate", models.MetricErrorRate, models.SeverityHigh)
	high.Threshold = 5
	high.PendingMins = &pending
	high.ChannelIDs = []string{ch3.ID, ch2.ID, ch1.ID}
	require.NoError(t, store.Alerts().Upsert(ctx, high))
	require.NotEmpty(t, high.ID)

	low := models.NewAlert(p.ID, "p95", models.MetricLatencyP95, models.SeverityLow)
	low.Threshold = 800
	require.NoError(t, store.Alerts().Upsert(ctx, low))

	disabled := models.NewAlert(p.ID, "off", models.MetricLatencyP99, models.SeverityHigh)
	disabled.Enabled = false
	require.NoError(t, store.Alerts().Upsert(ctx, disabled))

	all, err := store.Alerts().ListEnabled(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	highs, err := store.Alerts().ListEnabled(ctx, models.SeverityHigh)
	require.NoError(t, err)
	require.Len(t, highs, 1)
	got := highs[0]
	assert.Equal(t, "checkout", got.ProjectName)
	assert.Equal(t, models.StateInactive, got.State)
	assert.Equal(t, 5.0, got.Threshold)
	require.NotNil(t, got.PendingMins)
	assert.Equal(t, 0, *got.PendingMins)
	assert.Nil(t, got.CooldownMins)
	assert.Nil(t, got.StateChangedAt)
	// Disabled channels are dropped, link order kept.
	assert.Equal(t, []string{ch3.ID, ch1.ID}, got.ChannelIDs)

	lows, err := store.Alerts().ListEnabled(ctx, models.SeverityLow)
	require.NoError(t, err)
	require.Len(t, lows, 1)
	assert.Equal(t, []string{}, lows[0].ChannelIDs)
}

func TestAlertRepository_UpsertPreservesState(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	p := seedProject(t, store, "checkout")
	a := models.NewAlert(p.ID, "error rate", models.MetricErrorRate, models.SeverityCritical)
	require.NoError(t, store.Alerts().Upsert(ctx, a))

	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, store.Alerts().UpdateState(ctx, a.ID, models.StateFiring, StateUpdate{
		At: at, StateChanged: true, Triggered: true,
	}))

	a.Threshold = 10
	a.State = models.StateInactive
	require.NoError(t, store.Alerts().Upsert(ctx, a))

	got, err := store.Alerts().GetByID(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, 10.0, got.Threshold)
	assert.Equal(t, models.StateFiring, got.State)
	require.NotNil(t, got.LastTriggeredAt)
	assert.True(t, got.LastTriggeredAt.Equal(at))
}

func TestAlertRepository_UpdateState(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	p := seedProject(t, store, "checkout")
	a := models.NewAlert(p.ID, "error rate", models.MetricErrorRate, models.SeverityHigh)
	require.NoError(t, store.Alerts().Upsert(ctx, a))

	t0 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	t1 := t0.Add(time.Minute)
	t2 := t1.Add(time.Minute)

	// Transition write.
	require.NoError(t, store.Alerts().UpdateState(ctx, a.ID, models.StatePending, StateUpdate{At: t0, StateChanged: true}))
	// Evaluation without change touches only last_evaluated_at.
	require.NoError(t, store.Alerts().UpdateState(ctx, a.ID, models.StatePending, StateUpdate{At: t1}))

	got, err := store.Alerts().GetByID(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatePending, got.State)
	assert.True(t, got.StateChangedAt.Equal(t0))
	assert.True(t, got.LastEvaluatedAt.Equal(t1))
	assert.Nil(t, got.LastTriggeredAt)

	// Notify-only write.
	require.NoError(t, store.Alerts().UpdateState(ctx, a.ID, models.StatePending, StateUpdate{At: t2, Triggered: true}))
	got, err = store.Alerts().GetByID(ctx, a.ID)
	require.NoError(t, err)
	assert.True(t, got.StateChangedAt.Equal(t0))
	assert.True(t, got.LastTriggeredAt.Equal(t2))

	err = store.Alerts().UpdateState(ctx, "missing", models.StateFiring, StateUpdate{At: t2})
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestAlertRepository_SetEnabled(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	p := seedProject(t, store, "checkout")
	a := models.NewAlert(p.ID, "error rate", models.MetricErrorRate, models.SeverityHigh)
	require.NoError(t, store.Alerts().Upsert(ctx, a))

	require.NoError(t, store.Alerts().SetEnabled(ctx, a.ID, false))
	list, err := store.Alerts().ListEnabled(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, list)

	assert.True(t, errors.Is(store.Alerts().SetEnabled(ctx, "missing", true), ErrNotFound))
}

func TestChannelRepository_GetMany(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	p := seedProject(t, store, "checkout")
	a := seedChannel(t, store, p.ID, "a", true)
	b := seedChannel(t, store, p.ID, "b", true)
	off := seedChannel(t, store, p.ID, "off", false)

	got, err := store.Channels().GetMany(ctx, []string{b.ID, "missing", off.ID, a.ID})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, b.ID, got[0].ID)
	assert.Equal(t, a.ID, got[1].ID)
	assert.JSONEq(t, `{"url":"https://example.com/hook"}`, string(got[0].Config))

	none, err := store.Channels().GetMany(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, none)

	byProject, err := store.Channels().ListByProject(ctx, p.ID)
	require.NoError(t, err)
	assert.Len(t, byProject, 3)

	_, err = store.Channels().GetByID(ctx, "missing")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestAlertHistoryRepository(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	resolvedAt := base.Add(3 * time.Minute)
	entries := []*models.AlertHistoryEntry{
		{AlertID: "a1", Value: 7, Threshold: 5, State: models.StateFiring, PreviousState: models.StatePending,
			NotifiedVia: []string{"slack", "email"}, SampleCount: 120, CreatedAt: base},
		{AlertID: "a1", Value: 2, Threshold: 5, State: models.StateResolved, PreviousState: models.StateFiring,
			Resolved: true, ResolvedAt: &resolvedAt, CreatedAt: base.Add(3 * time.Minute)},
		{AlertID: "a2", Value: 1, Threshold: 5, State: models.StatePending, PreviousState: models.StateInactive,
			CreatedAt: base.Add(time.Minute)},
	}
	for _, e := range entries {
		require.NoError(t, store.AlertHistory().Create(ctx, e))
	}

	list, total, err := store.AlertHistory().ListByAlert(ctx, "a1", 10, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	require.Len(t, list, 2)
	assert.Equal(t, models.StateResolved, list[0].State)
	assert.True(t, list[0].Resolved)
	require.NotNil(t, list[0].ResolvedAt)
	assert.True(t, list[0].ResolvedAt.Equal(resolvedAt))
	assert.Equal(t, []string{}, list[0].NotifiedVia)
	assert.Equal(t, []string{"slack", "email"}, list[1].NotifiedVia)
	assert.Equal(t, int64(120), list[1].SampleCount)

	deleted, err := store.AlertHistory().DeleteBefore(ctx, base.Add(2*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(2), deleted)
}

type fakeMetrics struct {
	result *MetricResult
	err    error
	calls  int
}

func (f *fakeMetrics) GetMetric(ctx context.Context, projectID string, metric models.MetricType, windowMins int) (*MetricResult, error) {
	f.calls++
	return f.result, f.err
}

func TestDirectStore(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	p := seedProject(t, store, "checkout")
	ch := seedChannel(t, store, p.ID, "ops", true)
	a := models.NewAlert(p.ID, "error rate", models.MetricErrorRate, models.SeverityHigh)
	a.ChannelIDs = []string{ch.ID}
	require.NoError(t, store.Alerts().Upsert(ctx, a))

	metrics := &fakeMetrics{result: &MetricResult{Value: 7, SampleCount: 10}}
	direct := NewDirectStore(store, metrics)

	alerts, err := direct.GetEligibleAlerts(ctx, models.SeverityHigh)
	require.NoError(t, err)
	require.Len(t, alerts, 1)

	m, err := direct.GetMetric(ctx, p.ID, models.MetricErrorRate, 5)
	require.NoError(t, err)
	assert.Equal(t, 7.0, m.Value)
	assert.Equal(t, 1, metrics.calls)

	require.NoError(t, direct.UpdateAlertState(ctx, a.ID, models.StatePending, StateUpdate{At: time.Now(), StateChanged: true}))
	require.NoError(t, direct.RecordHistory(ctx, &models.AlertHistoryEntry{
		AlertID: a.ID, State: models.StatePending, PreviousState: models.StateInactive,
	}))

	channels, err := direct.GetChannels(ctx, alerts[0].ChannelIDs)
	require.NoError(t, err)
	require.Len(t, channels, 1)
	assert.Equal(t, "ops", channels[0].Name)

	_, err = NewDirectStore(store, nil).GetMetric(ctx, p.ID, models.MetricErrorRate, 5)
	assert.Error(t, err)
}
