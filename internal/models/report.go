package models

import "time"

type AppSummary struct {
	AppName      string  `json:"app_name"`
	Category     string  `json:"category"`
	TotalSeconds float64 `json:"total_seconds"`
	TotalMinutes float64 `json:"total_minutes"`
	TotalHours   float64 `json:"total_hours"`
	Percentage   float64 `json:"percentage,omitempty"`
}

type CategorySummary struct {
	Category     string  `json:"category"`
	Color        string  `json:"color,omitempty"`
	TotalSeconds float64 `json:"total_seconds"`
	Percentage   float64 `json:"percentage,omitempty"`
}

type ReportPeriod struct {
	Start string `json:"start"` // inclusive day key
	End   string `json:"end"`   // inclusive day key
	Type  string `json:"type"`  // "day", "week", "month", "range"
}

type Report struct {
	Period       ReportPeriod      `json:"period"`
	Apps         []AppSummary      `json:"apps"`
	Categories   []CategorySummary `json:"categories"`
	Days         []DayTotal        `json:"days"`
	TotalSeconds float64           `json:"total_seconds"`
	TotalMinutes float64           `json:"total_minutes"`
	TotalHours   float64           `json:"total_hours"`
	GeneratedAt  time.Time         `json:"generated_at"`
}

// DayTotal is one bar of the stacked per-day chart: category seconds for a day.
type DayTotal struct {
	Day          string   `json:"day"`
	Weekday      string   `json:"weekday"`
	Categories   DayUsage `json:"categories"`
	TotalSeconds float64  `json:"total_seconds"`
}
