package alerting

import (
	"fmt"
	"time"

	"github.com/good-yellow-bee/blazealert/internal/models"
)

// SeverityTiming holds the default timing for one severity level. A nil
// PendingMins or CooldownMins is unset; an explicit zero is kept.
type SeverityTiming struct {
	PendingMins   *int          `yaml:"pending_mins"`
	CooldownMins  *int          `yaml:"cooldown_mins"`
	EvalInterval  time.Duration `yaml:"eval_interval"`
	FlushInterval time.Duration `yaml:"flush_interval"`
}

// Pending returns the pending window in minutes, 0 when unset.
func (st SeverityTiming) Pending() int { return derefMins(st.PendingMins) }

// Cooldown returns the cooldown window in minutes, 0 when unset.
func (st SeverityTiming) Cooldown() int { return derefMins(st.CooldownMins) }

// SeverityTimings maps each severity to its timing defaults.
type SeverityTimings map[models.Severity]SeverityTiming

// DefaultSeverityTimings returns the built-in timing table.
func DefaultSeverityTimings() SeverityTimings {
	return SeverityTimings{
		models.SeverityCritical: {PendingMins: mins(1), CooldownMins: mins(5), EvalInterval: 10 * time.Second, FlushInterval: 10 * time.Second},
		models.SeverityHigh:     {PendingMins: mins(2), CooldownMins: mins(30), EvalInterval: 30 * time.Second, FlushInterval: 30 * time.Second},
		models.SeverityMedium:   {PendingMins: mins(3), CooldownMins: mins(120), EvalInterval: time.Minute, FlushInterval: time.Minute},
		models.SeverityLow:      {PendingMins: mins(5), CooldownMins: mins(720), EvalInterval: 5 * time.Minute, FlushInterval: 5 * time.Minute},
	}
}

// Merge returns a copy of t where every unset field of an entry is taken
// from base. Unset means a nil minute count or a zero interval.
func (t SeverityTimings) Merge(base SeverityTimings) SeverityTimings {
	out := make(SeverityTimings, len(base))
	for sev, b := range base {
		o, ok := t[sev]
		if !ok {
			o = SeverityTiming{}
		}
		if o.PendingMins == nil && b.PendingMins != nil {
			o.PendingMins = mins(*b.PendingMins)
		}
		if o.CooldownMins == nil && b.CooldownMins != nil {
			o.CooldownMins = mins(*b.CooldownMins)
		}
		if o.EvalInterval == 0 {
			o.EvalInterval = b.EvalInterval
		}
		if o.FlushInterval == 0 {
			o.FlushInterval = b.FlushInterval
		}
		out[sev] = o
	}
	return out
}

// Validate checks that every severity has a usable timing entry.
func (t SeverityTimings) Validate() error {
	for _, sev := range models.Severities {
		st, ok := t[sev]
		if !ok {
			return fmt.Errorf("missing timing for severity %q", sev)
		}
		if st.PendingMins == nil || st.CooldownMins == nil {
			return fmt.Errorf("pending_mins and cooldown_mins are required for severity %q", sev)
		}
		if *st.PendingMins < 0 {
			return fmt.Errorf("pending_mins must not be negative for severity %q", sev)
		}
		if *st.CooldownMins < 1 {
			return fmt.Errorf("cooldown_mins must be positive for severity %q", sev)
		}
		if st.EvalInterval <= 0 || st.FlushInterval <= 0 {
			return fmt.Errorf("intervals must be positive for severity %q", sev)
		}
	}
	return nil
}

func mins(n int) *int { return &n }

func derefMins(p *int) int {
	if p == nil {
		return 0
	}
	return *p
}

// Timing is the effective pending and cooldown duration of one alert.
type Timing struct {
	Pending  time.Duration
	Cooldown time.Duration
}

// ResolveTiming applies per-alert overrides on top of the severity defaults.
func ResolveTiming(alert *models.Alert, timings SeverityTimings) Timing {
	def := timings[alert.Severity]

	pending := def.Pending()
	if alert.PendingMins != nil {
		pending = *alert.PendingMins
	}
	cooldown := def.Cooldown()
	if alert.CooldownMins != nil {
		cooldown = *alert.CooldownMins
	}

	return Timing{
		Pending:  time.Duration(pending) * time.Minute,
		Cooldown: time.Duration(cooldown) * time.Minute,
	}
}
