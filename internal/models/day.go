package models

import (
	"fmt"
	"time"
)

// DayLayout is the canonical day key format.
const DayLayout = "2006-01-02"

// DayKey returns the day key of t in loc. A nil loc uses t's own location.
func DayKey(t time.Time, loc *time.Location) string {
	if loc != nil {
		t = t.In(loc)
	}
	return t.Format(DayLayout)
}

// ParseDay parses a day key as midnight in loc.
func ParseDay(day string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.Local
	}
	t, err := time.ParseInLocation(DayLayout, day, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid day %q: %w", day, err)
	}
	return t, nil
}

// ValidDay reports whether day is a well-formed day key.
func ValidDay(day string) bool {
	t, err := time.Parse(DayLayout, day)
	return err == nil && t.Format(DayLayout) == day
}

// StartOfDay returns local midnight of the day containing t.
func StartOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// DaysInRange lists every day key from start to end inclusive. It returns nil
// when either key is malformed or end precedes start.
func DaysInRange(start, end string) []string {
	s, err := time.Parse(DayLayout, start)
	if err != nil {
		return nil
	}
	e, err := time.Parse(DayLayout, end)
	if err != nil || e.Before(s) {
		return nil
	}

	var days []string
	for d := s; !d.After(e); d = d.AddDate(0, 0, 1) {
		days = append(days, d.Format(DayLayout))
	}
	return days
}
