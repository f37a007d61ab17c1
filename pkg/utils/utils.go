package utils

import (
	"fmt"
	"unicode/utf8"
)

// FormatRoundedUnit renders seconds in its largest whole unit: "45s", "3m", "2h".
func FormatRoundedUnit(seconds int64) string {
	if seconds < 0 {
		seconds = -seconds
	}
	if seconds < 60 {
		return fmt.Sprintf("%ds", seconds)
	}
	if seconds > 3600 {
		return fmt.Sprintf("%dh", int64(seconds/3600))
	}
	return fmt.Sprintf("%dm", int64(seconds/60))
}

// FormatDuration renders seconds as "2h 5m", or "5m" under an hour.
// Fractions of a minute are dropped.
func FormatDuration(seconds float64) string {
	if seconds < 0 {
		seconds = -seconds
	}
	total := int64(seconds)
	hours := total / 3600
	minutes := (total % 3600) / 60
	if hours > 0 {
		return fmt.Sprintf("%dh %dm", hours, minutes)
	}
	return fmt.Sprintf("%dm", minutes)
}

// Truncate shortens s to at most maxLen characters, ending in "..." when cut.
func Truncate(s string, maxLen int) string {
	if maxLen < 0 {
		maxLen = 0
	}
	if utf8.RuneCountInString(s) <= maxLen {
		return s
	}
	runes := []rune(s)
	if maxLen <= 3 {
		return string(runes[:maxLen])
	}
	return string(runes[:maxLen-3]) + "..."
}
