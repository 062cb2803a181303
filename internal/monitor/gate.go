package monitor

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/wonny/vigil/internal/calendar"
	"github.com/wonny/vigil/internal/instrument"
	"github.com/wonny/vigil/internal/runlog"
	"github.com/wonny/vigil/pkg/logger"
)

// GateResult says whether a run proceeds, and why not. A skip is a
// normal outcome, never an error.
type GateResult struct {
	Proceed bool
	Reason  runlog.SkipReason
}

// Window is a [start,end] time-of-day range in minutes since midnight,
// inclusive on both ends.
type Window struct {
	Start int
	End   int
}

// Contains reports whether the minute-of-day m falls inside the window.
func (w Window) Contains(m int) bool {
	return m >= w.Start && m <= w.End
}

// ScheduleGate decides whether a scheduled tick should execute at all:
// monitoring enabled, trading-day check, time-window check. Manual
// runs bypass everything.
// ⭐ SSOT: 실행 게이트 판정은 여기서만
type ScheduleGate struct {
	calendar       calendar.Source
	defaultWindows []Window
	logger         *logger.Logger
}

// NewScheduleGate creates a gate. defaultSchedule is the window list
// applied when an instrument has none; it must parse, otherwise the
// built-in two-session fallback is used.
func NewScheduleGate(cal calendar.Source, defaultSchedule string, log *logger.Logger) *ScheduleGate {
	windows, err := ParseWindows(defaultSchedule)
	if err != nil || len(windows) == 0 {
		windows = builtinWindows()
	}

	return &ScheduleGate{
		calendar:       cal,
		defaultWindows: windows,
		logger:         log,
	}
}

// builtinWindows is the fixed two-window trading-session default.
func builtinWindows() []Window {
	return []Window{
		{Start: 9*60 + 30, End: 11*60 + 30}, // 09:30-11:30
		{Start: 13 * 60, End: 15 * 60},      // 13:00-15:00
	}
}

// ShouldRun evaluates the gate for one instrument at wall-clock now.
func (g *ScheduleGate) ShouldRun(ctx context.Context, inst *instrument.Instrument, now time.Time, bypass bool) GateResult {
	if bypass {
		return GateResult{Proceed: true}
	}

	if !inst.Enabled {
		return GateResult{Reason: runlog.SkipMonitoringDisabled}
	}

	if inst.TradingDaysOnly && !g.isTradingDay(ctx, now) {
		return GateResult{Reason: runlog.SkipNotTradeDay}
	}

	windows, err := ParseWindows(inst.Schedule)
	if err != nil || len(windows) == 0 {
		windows = g.defaultWindows
	}

	minute := now.Hour()*60 + now.Minute()
	for _, w := range windows {
		if w.Contains(minute) {
			return GateResult{Proceed: true}
		}
	}

	return GateResult{Reason: runlog.SkipOutsideSchedule}
}

// isTradingDay consults the calendar, approximating with weekdays
// when the lookup fails.
func (g *ScheduleGate) isTradingDay(ctx context.Context, now time.Time) bool {
	trading, err := g.calendar.IsTradingDay(ctx, now)
	if err != nil {
		g.logger.WithError(err).Warn("Trading calendar lookup failed, falling back to weekday check")
		trading, _ = calendar.Weekday{}.IsTradingDay(ctx, now)
	}
	return trading
}

// ParseWindows parses a "HH:MM-HH:MM,HH:MM-HH:MM" schedule string.
func ParseWindows(schedule string) ([]Window, error) {
	schedule = strings.TrimSpace(schedule)
	if schedule == "" {
		return nil, nil
	}

	var windows []Window
	for _, part := range strings.Split(schedule, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		bounds := strings.SplitN(part, "-", 2)
		if len(bounds) != 2 {
			return nil, fmt.Errorf("invalid window %q", part)
		}

		start, err := parseMinute(bounds[0])
		if err != nil {
			return nil, fmt.Errorf("invalid window %q: %w", part, err)
		}
		end, err := parseMinute(bounds[1])
		if err != nil {
			return nil, fmt.Errorf("invalid window %q: %w", part, err)
		}
		if end < start {
			return nil, fmt.Errorf("invalid window %q: end before start", part)
		}

		windows = append(windows, Window{Start: start, End: end})
	}

	return windows, nil
}

func parseMinute(s string) (int, error) {
	t, err := time.Parse("15:04", strings.TrimSpace(s))
	if err != nil {
		return 0, err
	}
	return t.Hour()*60 + t.Minute(), nil
}
