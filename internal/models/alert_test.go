package models

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAlert_Validate(t *testing.T) {
	valid := func() *Alert {
		a := NewAlert("p1", "checkout errors", MetricErrorRate, SeverityHigh)
		a.Threshold = 5
		return a
	}
	require.NoError(t, valid().Validate())

	tests := []struct {
		name   string
		mutate func(a *Alert)
	}{
		{"missing name", func(a *Alert) { a.Name = "" }},
		{"missing project", func(a *Alert) { a.ProjectID = "" }},
		{"unknown metric", func(a *Alert) { a.MetricType = "throughput" }},
		{"metric alias", func(a *Alert) { a.MetricType = "Error-Rate" }},
		{"operator alias gt", func(a *Alert) { a.Operator = "gt" }},
		{"operator symbol", func(a *Alert) { a.Operator = ">" }},
		{"unknown severity", func(a *Alert) { a.Severity = "urgent" }},
		{"negative threshold", func(a *Alert) { a.Threshold = -1 }},
		{"NaN threshold", func(a *Alert) { a.Threshold = math.NaN() }},
		{"infinite threshold", func(a *Alert) { a.Threshold = math.Inf(1) }},
		{"window too large", func(a *Alert) { a.WindowMins = 61 }},
		{"window zero", func(a *Alert) { a.WindowMins = 0 }},
		{"pending too large", func(a *Alert) { v := 31; a.PendingMins = &v }},
		{"cooldown zero", func(a *Alert) { v := 0; a.CooldownMins = &v }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := valid()
			tt.mutate(a)
			assert.Error(t, a.Validate())
		})
	}
}

func TestParseOperator_Aliases(t *testing.T) {
	for in, want := range map[string]Operator{
		"gt":           OperatorGreaterThan,
		">":            OperatorGreaterThan,
		"Greater-Than": OperatorGreaterThan,
		"lt":           OperatorLessThan,
		"<":            OperatorLessThan,
	} {
		got, err := ParseOperator(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseOperator("between")
	assert.Error(t, err)
}
