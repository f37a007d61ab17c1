package models

import (
	"reflect"
	"testing"
	"time"
)

func TestDayKey(t *testing.T) {
	loc := time.FixedZone("UTC+2", 2*3600)
	ts := time.Date(2024, 3, 9, 23, 30, 0, 0, time.UTC)

	if got := DayKey(ts, nil); got != "2024-03-09" {
		t.Errorf("DayKey(nil loc) = %s, want 2024-03-09", got)
	}
	if got := DayKey(ts, loc); got != "2024-03-10" {
		t.Errorf("DayKey(UTC+2) = %s, want 2024-03-10", got)
	}
}

func TestValidDay(t *testing.T) {
	tests := []struct {
		day  string
		want bool
	}{
		{"2024-01-31", true},
		{"2024-02-30", false},
		{"2024-1-5", false},
		{"", false},
		{"yesterday", false},
	}

	for _, tt := range tests {
		t.Run(tt.day, func(t *testing.T) {
			if got := ValidDay(tt.day); got != tt.want {
				t.Errorf("ValidDay(%q) = %v, want %v", tt.day, got, tt.want)
			}
		})
	}
}

func TestDaysInRange(t *testing.T) {
	tests := []struct {
		name       string
		start, end string
		want       []string
	}{
		{
			name:  "single day",
			start: "2024-05-01", end: "2024-05-01",
			want: []string{"2024-05-01"},
		},
		{
			name:  "across month",
			start: "2024-04-29", end: "2024-05-02",
			want: []string{"2024-04-29", "2024-04-30", "2024-05-01", "2024-05-02"},
		},
		{
			name:  "reversed",
			start: "2024-05-02", end: "2024-05-01",
			want: nil,
		},
		{
			name:  "malformed",
			start: "bogus", end: "2024-05-01",
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DaysInRange(tt.start, tt.end)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("DaysInRange(%s, %s) = %v, want %v", tt.start, tt.end, got, tt.want)
			}
		})
	}
}

func TestUsageTable(t *testing.T) {
	table := make(UsageTable)
	table.Add("2024-05-01", "Editor", 120)
	table.Add("2024-05-01", "Editor", 30)
	table.Add("2024-05-02", "Browser", 10)

	if got := table["2024-05-01"]["Editor"]; got != 150 {
		t.Errorf("Editor = %v, want 150", got)
	}
	if got := table.Total(); got != 160 {
		t.Errorf("Total() = %v, want 160", got)
	}

	clone := table.Clone()
	clone.Add("2024-05-01", "Editor", 1)
	if table["2024-05-01"]["Editor"] != 150 {
		t.Error("Clone() shares state with the original")
	}
}
