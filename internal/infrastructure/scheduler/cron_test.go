package scheduler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCronExpression(t *testing.T) {
	tests := []struct {
		name    string
		expr    string
		wantErr bool
	}{
		{name: "every 5 minutes", expr: "*/5 * * * *"},
		{name: "nightly at 04:00", expr: "0 4 * * *"},
		{name: "sunday midnight", expr: "0 0 * * 0"},
		{name: "list of hours", expr: "0 4,12,20 * * *"},
		{name: "range of weekdays", expr: "30 9 * * 1-5"},
		{name: "too few fields", expr: "* * * *", wantErr: true},
		{name: "minute out of range", expr: "61 * * * *", wantErr: true},
		{name: "garbage field", expr: "x * * * *", wantErr: true},
		{name: "zero step", expr: "*/0 * * * *", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseCronExpression(tt.expr)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestCronExpression_Next(t *testing.T) {
	// Tuesday 2026-09-01 10:17 UTC.
	after := time.Date(2026, 9, 1, 10, 17, 0, 0, time.UTC)

	tests := []struct {
		expr string
		want time.Time
	}{
		{"*/5 * * * *", time.Date(2026, 9, 1, 10, 20, 0, 0, time.UTC)},
		{"0 * * * *", time.Date(2026, 9, 1, 11, 0, 0, 0, time.UTC)},
		{"0 4 * * *", time.Date(2026, 9, 2, 4, 0, 0, 0, time.UTC)},
		{"0 0 * * 0", time.Date(2026, 9, 6, 0, 0, 0, 0, time.UTC)},
	}

	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			expr, err := ParseCronExpression(tt.expr)
			require.NoError(t, err)
			assert.Equal(t, tt.want, expr.Next(after))
		})
	}
}

func TestCronExpression_IsASchedule(t *testing.T) {
	// The parsed expression plugs into Scheduler.Register directly.
	var schedule Schedule = MustParseCronExpression(EveryDay4AM)
	assert.Equal(t, "0 4 * * *", schedule.String())

	next := schedule.Next(time.Date(2026, 9, 1, 5, 0, 0, 0, time.UTC))
	assert.Equal(t, time.Date(2026, 9, 2, 4, 0, 0, 0, time.UTC), next)
}
