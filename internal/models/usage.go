package models

import (
	"time"
)

// UsageEntry is the durable accumulator for one application on one day.
type UsageEntry struct {
	Day       string    `gorm:"primaryKey;size:10" json:"day"` // YYYY-MM-DD
	AppName   string    `gorm:"primaryKey" json:"app_name"`
	Seconds   float64   `gorm:"not null;default:0" json:"seconds"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// CategoryAssignment maps an application to a display category.
type CategoryAssignment struct {
	AppName   string    `gorm:"primaryKey" json:"app_name"`
	Category  string    `gorm:"not null;index" json:"category"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// DayUsage maps an application (or category) name to accumulated seconds.
type DayUsage map[string]float64

// Total returns the sum of all seconds in the day.
func (d DayUsage) Total() float64 {
	var total float64
	for _, s := range d {
		total += s
	}
	return total
}

// UsageTable maps a day key to its usage.
type UsageTable map[string]DayUsage

// Add credits seconds to (day, name), creating the day if absent.
func (t UsageTable) Add(day, name string, seconds float64) {
	usage, ok := t[day]
	if !ok {
		usage = make(DayUsage)
		t[day] = usage
	}
	usage[name] += seconds
}

// Total returns the sum over every day and name.
func (t UsageTable) Total() float64 {
	var total float64
	for _, d := range t {
		total += d.Total()
	}
	return total
}

// Clone returns a deep copy.
func (t UsageTable) Clone() UsageTable {
	out := make(UsageTable, len(t))
	for day, usage := range t {
		cp := make(DayUsage, len(usage))
		for name, s := range usage {
			cp[name] = s
		}
		out[day] = cp
	}
	return out
}

// NoFocusedWindow is the name recorded when no application has focus or the
// focus probe fails.
const NoFocusedWindow = "No focused window"
