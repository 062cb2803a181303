package monitor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/vigil/internal/instrument"
	"github.com/wonny/vigil/internal/runlog"
	"github.com/wonny/vigil/pkg/logger"
)

// fakeCalendar is a canned trading-day source.
type fakeCalendar struct {
	trading bool
	err     error
	calls   int
}

func (c *fakeCalendar) IsTradingDay(_ context.Context, _ time.Time) (bool, error) {
	c.calls++
	return c.trading, c.err
}

func newGate(cal *fakeCalendar) *ScheduleGate {
	return NewScheduleGate(cal, "09:30-11:30,13:00-15:00", logger.NewNop())
}

// tuesday returns a Tuesday at the given clock time.
func tuesday(hour, minute int) time.Time {
	return time.Date(2026, 9, 1, hour, minute, 0, 0, time.Local)
}

func TestScheduleGate_Bypass(t *testing.T) {
	inst := &instrument.Instrument{Enabled: false, TradingDaysOnly: true}

	res := newGate(&fakeCalendar{trading: false}).ShouldRun(context.Background(), inst, tuesday(3, 0), true)

	assert.True(t, res.Proceed, "bypass overrides every check")
}

func TestScheduleGate_MonitoringDisabled(t *testing.T) {
	inst := &instrument.Instrument{Enabled: false}

	res := newGate(&fakeCalendar{trading: true}).ShouldRun(context.Background(), inst, tuesday(10, 0), false)

	assert.False(t, res.Proceed)
	assert.Equal(t, runlog.SkipMonitoringDisabled, res.Reason)
}

func TestScheduleGate_NotTradeDay(t *testing.T) {
	inst := &instrument.Instrument{Enabled: true, TradingDaysOnly: true}

	res := newGate(&fakeCalendar{trading: false}).ShouldRun(context.Background(), inst, tuesday(10, 0), false)

	assert.False(t, res.Proceed)
	assert.Equal(t, runlog.SkipNotTradeDay, res.Reason)
}

func TestScheduleGate_CalendarFailureFallsBackToWeekday(t *testing.T) {
	inst := &instrument.Instrument{Enabled: true, TradingDaysOnly: true}
	cal := &fakeCalendar{err: errors.New("calendar down")}

	// Tuesday inside the session: weekday approximation lets it run
	res := newGate(cal).ShouldRun(context.Background(), inst, tuesday(10, 0), false)
	assert.True(t, res.Proceed)

	// Saturday: weekday approximation skips
	saturday := time.Date(2026, 9, 5, 10, 0, 0, 0, time.Local)
	res = newGate(cal).ShouldRun(context.Background(), inst, saturday, false)
	assert.False(t, res.Proceed)
	assert.Equal(t, runlog.SkipNotTradeDay, res.Reason)
}

func TestScheduleGate_Windows(t *testing.T) {
	tests := []struct {
		name     string
		schedule string
		at       time.Time
		proceed  bool
	}{
		{"inside morning session", "09:30-11:30,13:00-15:00", tuesday(10, 15), true},
		{"lunch break", "09:30-11:30,13:00-15:00", tuesday(12, 0), false},
		{"inside afternoon session", "09:30-11:30,13:00-15:00", tuesday(14, 59), true},
		{"boundary inclusive", "09:30-11:30", tuesday(11, 30), true},
		{"after close", "09:30-11:30,13:00-15:00", tuesday(15, 1), false},
		{"empty schedule uses default sessions", "", tuesday(10, 0), true},
		{"empty schedule outside default", "", tuesday(20, 0), false},
		{"unparsable schedule uses default", "whenever", tuesday(10, 0), true},
		{"single window", "21:00-23:00", tuesday(22, 0), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inst := &instrument.Instrument{Enabled: true, Schedule: tt.schedule}
			res := newGate(&fakeCalendar{trading: true}).ShouldRun(context.Background(), inst, tt.at, false)

			assert.Equal(t, tt.proceed, res.Proceed)
			if !tt.proceed {
				assert.Equal(t, runlog.SkipOutsideSchedule, res.Reason)
			}
		})
	}
}

func TestParseWindows(t *testing.T) {
	windows, err := ParseWindows("09:30-11:30, 13:00-15:00")
	require.NoError(t, err)
	require.Len(t, windows, 2)
	assert.Equal(t, Window{Start: 570, End: 690}, windows[0])
	assert.Equal(t, Window{Start: 780, End: 900}, windows[1])

	_, err = ParseWindows("25:00-26:00")
	assert.Error(t, err)

	_, err = ParseWindows("15:00-09:00")
	assert.Error(t, err)

	windows, err = ParseWindows("")
	require.NoError(t, err)
	assert.Empty(t, windows)
}
