package notifier

import (
	"errors"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

// ErrRateLimited is returned when a notification is dropped due to rate limiting.
var ErrRateLimited = errors.New("notification rate limited")

// RateLimitConfig holds the token bucket settings of one adapter.
type RateLimitConfig struct {
	PerMinute int `yaml:"per_minute"` // Sustained notifications per minute (0 disables)
	Burst     int `yaml:"burst"`      // Bucket size (default: PerMinute)
}

// RateLimited is implemented by adapters that throttle sends.
type RateLimited interface {
	RateLimitStatus() RateLimitStats
}

// RateLimitStats contains rate limiter statistics.
type RateLimitStats struct {
	Enabled   bool    // Whether rate limiting is enabled
	PerMinute int     // Sustained rate
	Burst     int     // Bucket size
	Available float64 // Tokens currently available
	Dropped   int64   // Total notifications dropped
}

// rateLimiter drops sends once the token bucket is empty.
type rateLimiter struct {
	cfg     RateLimitConfig
	limiter *rate.Limiter
	dropped atomic.Int64
}

// newRateLimiter returns nil when cfg disables limiting.
func newRateLimiter(cfg RateLimitConfig) *rateLimiter {
	if cfg.PerMinute <= 0 {
		return nil
	}
	if cfg.Burst <= 0 {
		cfg.Burst = cfg.PerMinute
	}
	every := rate.Every(time.Minute / time.Duration(cfg.PerMinute))
	return &rateLimiter{cfg: cfg, limiter: rate.NewLimiter(every, cfg.Burst)}
}

func (r *rateLimiter) allow() bool {
	if r == nil {
		return true
	}
	if r.limiter.Allow() {
		return true
	}
	r.dropped.Add(1)
	return false
}

func (r *rateLimiter) stats() RateLimitStats {
	if r == nil {
		return RateLimitStats{}
	}
	return RateLimitStats{
		Enabled:   true,
		PerMinute: r.cfg.PerMinute,
		Burst:     r.cfg.Burst,
		Available: r.limiter.Tokens(),
		Dropped:   r.dropped.Load(),
	}
}
