// Package timeutil provides calendar-day utilities for streak accounting.
// Streaks are counted in calendar days of a configured timezone, so every
// day-boundary computation must go through one of these helpers.
// No external dependencies - uses only standard library.
package timeutil

import (
	"time"
)

// DefaultZone is the fallback timezone when the configured one cannot be
// loaded. UTC keeps day boundaries stable across deployments.
var DefaultZone = time.UTC

// LoadZone loads a timezone by IANA name, falling back to DefaultZone.
func LoadZone(name string) *time.Location {
	if name == "" {
		return DefaultZone
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return DefaultZone
	}
	return loc
}

// StartOfDay returns local midnight of t in the given location.
func StartOfDay(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = DefaultZone
	}
	local := t.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
}

// EndOfDay returns the last nanosecond of t's day in the given location.
func EndOfDay(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = DefaultZone
	}
	local := t.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 23, 59, 59, 999999999, loc)
}

// IsSameDay checks if two times fall on the same calendar day in loc.
func IsSameDay(t1, t2 time.Time, loc *time.Location) bool {
	return DaysBetween(t1, t2, loc) == 0
}

// IsNextDay checks if t2 is exactly the calendar day after t1 in loc.
func IsNextDay(t1, t2 time.Time, loc *time.Location) bool {
	return DaysBetween(t1, t2, loc) == 1
}

// DayOf rebuilds a stored day marker as local midnight in loc. Day markers
// keep their calendar day in their own location: a DATE scanned from the
// store comes back as midnight UTC, StartOfDay output is midnight in loc.
// Converting the instant instead of the components would shift the marker
// to the previous day for any zone west of UTC.
func DayOf(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = DefaultZone
	}
	year, month, day := t.Date()
	return time.Date(year, month, day, 0, 0, 0, 0, loc)
}

// DaysBetween returns the signed number of calendar days from t1 to t2 in
// loc. Positive when t2 is a later day, negative when t2 is an earlier day.
// The sign matters: a negative diff means an out-of-order event and must not
// be folded into the positive case.
func DaysBetween(t1, t2 time.Time, loc *time.Location) int {
	if loc == nil {
		loc = DefaultZone
	}
	return dayNumber(t2.In(loc)) - dayNumber(t1.In(loc))
}

// dayNumber counts calendar days since the Unix epoch for t's Y/M/D
// components. Counting components instead of dividing instant differences
// keeps the diff exact across DST transitions, where a local day is 23 or
// 25 hours long.
func dayNumber(t time.Time) int {
	year, month, day := t.Date()
	return int(time.Date(year, month, day, 0, 0, 0, 0, time.UTC).Unix() / 86400)
}

// Common date/time formats.
const (
	// FormatDate is the standard date format (YYYY-MM-DD).
	FormatDate = "2006-01-02"
	// FormatDateTime is the standard datetime format.
	FormatDateTime = "2006-01-02 15:04"
	// FormatDateTimeSeconds includes seconds.
	FormatDateTimeSeconds = "2006-01-02 15:04:05"
)

// FormatDateStr formats a time as a date string (YYYY-MM-DD) in loc.
func FormatDateStr(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = DefaultZone
	}
	return t.In(loc).Format(FormatDate)
}

// ParseDate parses a date string (YYYY-MM-DD) in loc.
func ParseDate(value string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = DefaultZone
	}
	return time.ParseInLocation(FormatDate, value, loc)
}

// Day-window helpers for signal evaluation (early bird / night owl awards).

// HourIn returns the hour of day (0-23) of t in loc.
func HourIn(t time.Time, loc *time.Location) int {
	if loc == nil {
		loc = DefaultZone
	}
	return t.In(loc).Hour()
}

// IsEarlyMorning checks if t falls in the 05:00-07:00 window.
func IsEarlyMorning(t time.Time, loc *time.Location) bool {
	hour := HourIn(t, loc)
	return hour >= 5 && hour < 7
}

// IsLateNight checks if t falls in the 00:00-05:00 window.
func IsLateNight(t time.Time, loc *time.Location) bool {
	hour := HourIn(t, loc)
	return hour >= 0 && hour < 5
}
