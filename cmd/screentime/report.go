package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"screentime/internal/models"
	"screentime/internal/reporter"
	"screentime/internal/session"
	"screentime/pkg/utils"
)

var (
	reportOffset int
	reportStart  string
	reportEnd    string
	reportJSON   bool
	reportDetail string
)

var reportCmd = &cobra.Command{
	Use:   "report [day|week|month]",
	Short: "Generate a usage report",
	Example: `  screentime report
  screentime report week --offset -1
  screentime report --start 2024-03-01 --end 2024-03-15 --json
  screentime report --detail 2024-03-10`,
	Args:      cobra.MaximumNArgs(1),
	ValidArgs: []string{"day", "week", "month"},
	RunE:      runReport,
}

func init() {
	reportCmd.Flags().IntVar(&reportOffset, "offset", 0, "Shift the period by whole days, weeks or months (-1 is the previous one)")
	reportCmd.Flags().StringVar(&reportStart, "start", "", "First day of an explicit range (YYYY-MM-DD)")
	reportCmd.Flags().StringVar(&reportEnd, "end", "", "Last day of an explicit range (YYYY-MM-DD, defaults to --start)")
	reportCmd.Flags().BoolVar(&reportJSON, "json", false, "Output JSON")
	reportCmd.Flags().StringVar(&reportDetail, "detail", "", "Show the per-application breakdown of one day (YYYY-MM-DD)")
	rootCmd.AddCommand(reportCmd)
}

func runReport(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx := context.Background()
	sess, err := session.Open(ctx, cfg, zerolog.Nop())
	if err != nil {
		return err
	}
	defer sess.Close(ctx)

	loc, err := cfg.Location()
	if err != nil {
		return err
	}
	rep := reporter.New(sess.Ledger, sess.Classifier, cfg.Report, loc)

	if reportDetail != "" {
		apps, err := rep.DayDetail(reportDetail)
		if err != nil {
			return err
		}
		printDayDetail(reportDetail, apps)
		return nil
	}

	var report *models.Report
	if reportStart != "" {
		end := reportEnd
		if end == "" {
			end = reportStart
		}
		report, err = rep.GenerateRange(reportStart, end)
	} else {
		periodType := "day"
		if len(args) > 0 {
			periodType = args[0]
		}
		report, err = rep.GenerateReport(periodType, reportOffset)
	}
	if err != nil {
		return err
	}

	if reportJSON {
		out, err := reporter.FormatReportJSON(report)
		if err != nil {
			return err
		}
		fmt.Println(out)
		return nil
	}

	printReport(report)
	return nil
}

func printReport(report *models.Report) {
	cyan := color.New(color.FgCyan, color.Bold)
	green := color.New(color.FgGreen, color.Bold)
	yellow := color.New(color.FgYellow, color.Bold)

	cyan.Printf("Activity Report - %s\n", report.Period.Type)
	fmt.Printf("Period: %s to %s\n", report.Period.Start, report.Period.End)
	green.Printf("Total Time: %s\n\n", utils.FormatDuration(report.TotalSeconds))

	if len(report.Apps) == 0 {
		fmt.Println("No activity recorded for this period.")
		return
	}

	yellow.Printf("%-30s %-16s %10s %9s\n", "Application", "Category", "Time", "Percent")
	fmt.Println(strings.Repeat("-", 68))
	for _, app := range report.Apps {
		fmt.Printf("%-30s %-16s %10s %8.1f%%\n",
			utils.Truncate(app.AppName, 30), utils.Truncate(app.Category, 16),
			utils.FormatDuration(app.TotalSeconds), app.Percentage)
	}

	fmt.Println()
	yellow.Println("By category:")
	for _, c := range report.Categories {
		fmt.Printf("  %-28s %10s %8.1f%%  %s\n",
			utils.Truncate(c.Category, 28), utils.FormatDuration(c.TotalSeconds), c.Percentage, c.Color)
	}

	if len(report.Days) > 1 {
		fmt.Println()
		yellow.Println("By day:")
		for _, d := range report.Days {
			fmt.Printf("  %s %-9s %10s\n", d.Day, d.Weekday, utils.FormatDuration(d.TotalSeconds))
		}
	}
}

func printDayDetail(day string, apps []models.AppSummary) {
	color.New(color.FgCyan, color.Bold).Printf("Usage on %s\n", day)
	if len(apps) == 0 {
		fmt.Println("No activity recorded for this day.")
		return
	}
	for _, app := range apps {
		fmt.Printf("  %-30s %10s %6.1f%%\n", utils.Truncate(app.AppName, 30), utils.FormatDuration(app.TotalSeconds), app.Percentage)
	}
}

