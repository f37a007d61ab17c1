// Package reporter summarizes ledger queries into day, week and month
// reports.
package reporter

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"screentime/internal/config"
	"screentime/internal/models"
	"screentime/pkg/utils"
)

// Source is the read side of the usage ledger.
type Source interface {
	Query(start, end string) models.UsageTable
}

// Categories resolves an application's category and a category's color.
type Categories interface {
	Classify(app string) string
	Color(category string) string
}

// Reporter handles report generation
type Reporter struct {
	source     Source
	categories Categories
	loc        *time.Location
	weekStart  time.Weekday
	threshold  float64
	now        func() time.Time
}

// New creates a new reporter
func New(source Source, categories Categories, cfg config.ReportConfig, loc *time.Location) *Reporter {
	if loc == nil {
		loc = time.Local
	}
	weekStart := time.Monday
	if cfg.WeekStart == "sunday" {
		weekStart = time.Sunday
	}
	return &Reporter{
		source:     source,
		categories: categories,
		loc:        loc,
		weekStart:  weekStart,
		threshold:  cfg.DetailThreshold,
		now:        time.Now,
	}
}

// SetClock replaces the clock used to resolve named periods.
func (r *Reporter) SetClock(now func() time.Time) {
	r.now = now
}

// Week returns the first and last day keys of the week containing now,
// shifted by offset whole weeks.
func Week(now time.Time, offset int, weekStart time.Weekday) (string, string) {
	day := models.StartOfDay(now)
	back := (int(day.Weekday()) - int(weekStart) + 7) % 7
	start := day.AddDate(0, 0, -back+7*offset)
	end := start.AddDate(0, 0, 6)
	return start.Format(models.DayLayout), end.Format(models.DayLayout)
}

// Period resolves a named period relative to today. offset moves by whole
// days, weeks or months.
func (r *Reporter) Period(periodType string, offset int) (models.ReportPeriod, error) {
	now := r.now().In(r.loc)
	today := models.StartOfDay(now)

	switch periodType {
	case "day", "today":
		day := today.AddDate(0, 0, offset).Format(models.DayLayout)
		return models.ReportPeriod{Start: day, End: day, Type: "day"}, nil

	case "week":
		start, end := Week(now, offset, r.weekStart)
		return models.ReportPeriod{Start: start, End: end, Type: "week"}, nil

	case "month":
		first := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, r.loc).AddDate(0, offset, 0)
		last := first.AddDate(0, 1, -1)
		return models.ReportPeriod{
			Start: first.Format(models.DayLayout),
			End:   last.Format(models.DayLayout),
			Type:  "month",
		}, nil
	}
	return models.ReportPeriod{}, fmt.Errorf("invalid period type: %s (valid: day, week, month)", periodType)
}

// GenerateReport generates a report for the named period
func (r *Reporter) GenerateReport(periodType string, offset int) (*models.Report, error) {
	period, err := r.Period(periodType, offset)
	if err != nil {
		return nil, err
	}
	return r.build(period), nil
}

// GenerateRange generates a report for an explicit inclusive day range
func (r *Reporter) GenerateRange(start, end string) (*models.Report, error) {
	if !models.ValidDay(start) || !models.ValidDay(end) {
		return nil, fmt.Errorf("invalid range %q to %q: days must be YYYY-MM-DD", start, end)
	}
	if start > end {
		return nil, fmt.Errorf("invalid range: %s is after %s", start, end)
	}
	return r.build(models.ReportPeriod{Start: start, End: end, Type: "range"}), nil
}

func (r *Reporter) build(period models.ReportPeriod) *models.Report {
	usage := r.source.Query(period.Start, period.End)

	apps := make(map[string]float64)
	cats := make(map[string]float64)
	var days []models.DayTotal

	for _, day := range models.DaysInRange(period.Start, period.End) {
		dt := models.DayTotal{Day: day, Categories: make(models.DayUsage)}
		if t, err := time.Parse(models.DayLayout, day); err == nil {
			dt.Weekday = t.Weekday().String()
		}
		for app, seconds := range usage[day] {
			category := r.categories.Classify(app)
			apps[app] += seconds
			cats[category] += seconds
			dt.Categories[category] += seconds
			dt.TotalSeconds += seconds
		}
		days = append(days, dt)
	}

	report := &models.Report{
		Period:      period,
		Days:        days,
		GeneratedAt: r.now(),
	}

	for app, seconds := range apps {
		report.TotalSeconds += seconds
		report.Apps = append(report.Apps, r.appSummary(app, seconds))
	}
	for category, seconds := range cats {
		report.Categories = append(report.Categories, models.CategorySummary{
			Category:     category,
			Color:        r.categories.Color(category),
			TotalSeconds: seconds,
		})
	}

	if report.TotalSeconds > 0 {
		for i := range report.Apps {
			report.Apps[i].Percentage = report.Apps[i].TotalSeconds / report.TotalSeconds * 100.0
		}
		for i := range report.Categories {
			report.Categories[i].Percentage = report.Categories[i].TotalSeconds / report.TotalSeconds * 100.0
		}
	}
	report.TotalMinutes = report.TotalSeconds / 60.0
	report.TotalHours = report.TotalSeconds / 3600.0

	sortApps(report.Apps)
	sort.Slice(report.Categories, func(i, j int) bool {
		a, b := report.Categories[i], report.Categories[j]
		if a.TotalSeconds != b.TotalSeconds {
			return a.TotalSeconds > b.TotalSeconds
		}
		return a.Category < b.Category
	})
	return report
}

func (r *Reporter) appSummary(app string, seconds float64) models.AppSummary {
	return models.AppSummary{
		AppName:      app,
		Category:     r.categories.Classify(app),
		TotalSeconds: seconds,
		TotalMinutes: seconds / 60.0,
		TotalHours:   seconds / 3600.0,
	}
}

func sortApps(apps []models.AppSummary) {
	sort.Slice(apps, func(i, j int) bool {
		if apps[i].TotalSeconds != apps[j].TotalSeconds {
			return apps[i].TotalSeconds > apps[j].TotalSeconds
		}
		return apps[i].AppName < apps[j].AppName
	})
}

// DayDetail lists the applications used on day, dropping those whose share
// of the day's total is below the configured threshold.
func (r *Reporter) DayDetail(day string) ([]models.AppSummary, error) {
	if !models.ValidDay(day) {
		return nil, fmt.Errorf("invalid day %q: must be YYYY-MM-DD", day)
	}
	return filterDetail(r.source.Query(day, day)[day], r.threshold, r.appSummary), nil
}

func filterDetail(usage models.DayUsage, threshold float64, summarize func(string, float64) models.AppSummary) []models.AppSummary {
	total := usage.Total()
	if total <= 0 {
		return nil
	}

	var out []models.AppSummary
	for app, seconds := range usage {
		share := seconds / total
		if share < threshold {
			continue
		}
		s := summarize(app, seconds)
		s.Percentage = share * 100.0
		out = append(out, s)
	}
	sortApps(out)
	return out
}

// FormatReportText formats the report as human-readable text
func FormatReportText(report *models.Report) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Activity Report - %s\n", report.Period.Type)
	fmt.Fprintf(&b, "Period: %s to %s\n", report.Period.Start, report.Period.End)
	fmt.Fprintf(&b, "Total Time: %s\n\n", utils.FormatDuration(report.TotalSeconds))

	if len(report.Apps) == 0 {
		b.WriteString("No activity recorded for this period.\n")
		return b.String()
	}

	fmt.Fprintf(&b, "%-30s %-16s %10s %9s\n", "Application", "Category", "Time", "Percent")
	b.WriteString(strings.Repeat("-", 68) + "\n")
	for _, app := range report.Apps {
		fmt.Fprintf(&b, "%-30s %-16s %10s %8.1f%%\n",
			utils.Truncate(app.AppName, 30),
			utils.Truncate(app.Category, 16),
			utils.FormatDuration(app.TotalSeconds),
			app.Percentage)
	}

	b.WriteString("\nBy category:\n")
	for _, c := range report.Categories {
		fmt.Fprintf(&b, "  %-28s %10s %8.1f%%\n", utils.Truncate(c.Category, 28), utils.FormatDuration(c.TotalSeconds), c.Percentage)
	}

	if len(report.Days) > 1 {
		b.WriteString("\nBy day:\n")
		for _, d := range report.Days {
			fmt.Fprintf(&b, "  %s %-9s %10s\n", d.Day, d.Weekday, utils.FormatDuration(d.TotalSeconds))
		}
	}
	return b.String()
}

// FormatReportJSON formats the report as JSON
func FormatReportJSON(report *models.Report) (string, error) {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal JSON: %w", err)
	}
	return string(data), nil
}

