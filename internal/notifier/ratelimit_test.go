package notifier

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRateLimiterDisabled(t *testing.T) {
	r := newRateLimiter(RateLimitConfig{})
	assert.Nil(t, r)
	for i := 0; i < 100; i++ {
		assert.True(t, r.allow())
	}
	assert.False(t, r.stats().Enabled)
}

func TestRateLimiterBurst(t *testing.T) {
	r := newRateLimiter(RateLimitConfig{PerMinute: 1, Burst: 3})
	require.NotNil(t, r)

	for i := 0; i < 3; i++ {
		assert.True(t, r.allow(), "send %d within burst", i)
	}
	assert.False(t, r.allow())
	assert.False(t, r.allow())

	stats := r.stats()
	assert.True(t, stats.Enabled)
	assert.Equal(t, 1, stats.PerMinute)
	assert.Equal(t, 3, stats.Burst)
	assert.Equal(t, int64(2), stats.Dropped)
	assert.Less(t, stats.Available, 1.0)
}

func TestRateLimiterDefaultBurst(t *testing.T) {
	r := newRateLimiter(RateLimitConfig{PerMinute: 5})
	assert.Equal(t, 5, r.stats().Burst)
}

func TestAdapterRateLimited(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	adapter := NewWebhookAdapter(HTTPOptions{
		Client:    server.Client(),
		RateLimit: RateLimitConfig{PerMinute: 1, Burst: 2},
	})

	var limited RateLimited = adapter
	cfg := &WebhookConfig{URL: server.URL}

	assert.True(t, adapter.Send(context.Background(), cfg, testPayload()).Success)
	assert.True(t, adapter.Send(context.Background(), cfg, testPayload()).Success)

	result := adapter.Send(context.Background(), cfg, testPayload())
	assert.False(t, result.Success)
	assert.Equal(t, ErrRateLimited.Error(), result.Error)

	assert.Equal(t, int32(2), hits.Load())
	assert.Equal(t, int64(1), limited.RateLimitStatus().Dropped)
}
