package recorder

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"
)

// HourMinute is a time-of-day, UTC, with no date component.
type HourMinute struct {
	Hour   int
	Minute int
}

// ParseTime parses "HH:MM" into an HourMinute, rejecting any value outside
// 00:00-23:59. Mirrors original_source's schedule.rs parse_time.
func ParseTime(s string) (HourMinute, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 2 {
		return HourMinute{}, fmt.Errorf("recorder: invalid time format %q, expected HH:MM", s)
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil {
		return HourMinute{}, fmt.Errorf("recorder: invalid hour in %q", s)
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil {
		return HourMinute{}, fmt.Errorf("recorder: invalid minute in %q", s)
	}
	if hour >= 24 || minute >= 60 || hour < 0 || minute < 0 {
		return HourMinute{}, fmt.Errorf("recorder: time %q out of range", s)
	}
	return HourMinute{Hour: hour, Minute: minute}, nil
}

func timeLt(a, b HourMinute) bool {
	return a.Hour < b.Hour || (a.Hour == b.Hour && a.Minute < b.Minute)
}

func timeLe(a, b HourMinute) bool {
	return a.Hour < b.Hour || (a.Hour == b.Hour && a.Minute <= b.Minute)
}

// IsInActiveWindow reports whether current falls within [start, end),
// handling both same-day windows (start <= end) and windows that wrap
// past midnight (start > end, e.g. 14:00 to 07:00).
func IsInActiveWindow(current, start, end HourMinute) bool {
	if timeLe(start, end) {
		return timeLe(start, current) && timeLt(current, end)
	}
	return timeLe(start, current) || timeLt(current, end)
}

func nowHM(now time.Time) HourMinute {
	u := now.UTC()
	return HourMinute{Hour: u.Hour(), Minute: u.Minute()}
}

// IsInActiveWindowNow reports whether the current UTC time falls within
// [start, end).
func IsInActiveWindowNow(start, end HourMinute) bool {
	return IsInActiveWindow(nowHM(time.Now()), start, end)
}

// secondsUntilEnd returns how many seconds remain until end, treating end
// as "tomorrow" if it has already passed today.
func secondsUntilEnd(current, end HourMinute) int64 {
	currentMins := current.Hour*60 + current.Minute
	endMins := end.Hour*60 + end.Minute
	var minutesUntil int
	if currentMins < endMins {
		minutesUntil = endMins - currentMins
	} else {
		minutesUntil = (24*60 - currentMins) + endMins
	}
	return int64(minutesUntil) * 60
}

// GetWindowDurationSecs returns the number of seconds remaining until end,
// measured from the current UTC time.
func GetWindowDurationSecs(end HourMinute) int64 {
	return secondsUntilEnd(nowHM(time.Now()), end)
}

// scheduleSamplePeriod is how often WaitForActiveWindow polls the clock.
const scheduleSamplePeriod = 500 * time.Millisecond

// WaitForActiveWindow blocks until the current UTC time falls within
// [start, end), or ctx is canceled. Logs once, on first entry, rather than
// on every poll tick.
func WaitForActiveWindow(ctx context.Context, start, end HourMinute, name string) error {
	logged := false
	ticker := time.NewTicker(scheduleSamplePeriod)
	defer ticker.Stop()
	for {
		if IsInActiveWindowNow(start, end) {
			return nil
		}
		if !logged {
			slog.Info("waiting for recording window", "show", name,
				"start", fmt.Sprintf("%02d:%02d", start.Hour, start.Minute),
				"end", fmt.Sprintf("%02d:%02d", end.Hour, end.Minute))
			logged = true
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
