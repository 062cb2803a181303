package calendar

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWeekdayFallback(t *testing.T) {
	tests := []struct {
		name    string
		day     time.Time
		trading bool
	}{
		{"monday", time.Date(2026, 8, 31, 10, 0, 0, 0, time.UTC), true},
		{"friday", time.Date(2026, 9, 4, 10, 0, 0, 0, time.UTC), true},
		{"saturday", time.Date(2026, 9, 5, 10, 0, 0, 0, time.UTC), false},
		{"sunday", time.Date(2026, 9, 6, 10, 0, 0, 0, time.UTC), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Weekday{}.IsTradingDay(context.Background(), tt.day)
			require.NoError(t, err)
			assert.Equal(t, tt.trading, got)
		})
	}
}

func TestCalendarWeekendSkipsLookup(t *testing.T) {
	// Weekends resolve before the holiday-table query, so a calendar
	// with no database connection must still answer.
	cal := New(nil, nil)

	saturday := time.Date(2026, 9, 5, 10, 0, 0, 0, time.UTC)

	got, err := cal.IsTradingDay(context.Background(), saturday)
	require.NoError(t, err)
	assert.False(t, got)

	// Second call is served from the per-day cache.
	got, err = cal.IsTradingDay(context.Background(), saturday)
	require.NoError(t, err)
	assert.False(t, got)
}
