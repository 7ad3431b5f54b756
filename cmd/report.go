package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"

	"github.com/spf13/cobra"

	"github.com/Tiliavir/boring-time-tracker/internal/timecalc"
	"github.com/Tiliavir/boring-time-tracker/internal/tracking"
)

var (
	reportRange   dateRange
	reportFormat  string
	reportRunning bool
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Show aggregated time report",
	Args:  cobra.NoArgs,
	RunE:  runReport,
}

func init() {
	addRangeFlags(reportCmd, &reportRange)
	reportCmd.Flags().StringVar(&reportFormat, "format", "md", "Output format: md, csv, json")
	reportCmd.Flags().BoolVar(&reportRunning, "include-running", false, "Count a running timer up to now")
}

type projectTotal struct {
	Project         string `json:"project"`
	DurationMinutes int64  `json:"duration_minutes"`
}

type reportJSON struct {
	Period       string         `json:"period"`
	Projects     []projectTotal `json:"projects"`
	TotalMinutes int64          `json:"total_minutes"`
}

func runReport(cmd *cobra.Command, args []string) error {
	switch reportFormat {
	case "md", "csv", "json":
	default:
		return usageErrorf("unknown --format %q: want md, csv or json", reportFormat)
	}

	ctx := cmd.Context()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	records, label, err := a.selectRecords(ctx, reportRange, true)
	if err != nil {
		return err
	}
	if reportRunning {
		records = timecalc.WithProvisionalDuration(records, now())
	}

	return writeReport(cmd.OutOrStdout(), reportFormat, label, tracking.Summarize(records))
}

func writeReport(w io.Writer, format, label string, sum tracking.Summary) error {
	order := make([]string, 0, len(sum.ByProject))
	for p := range sum.ByProject {
		order = append(order, p)
	}
	sort.Strings(order)

	switch format {
	case "csv":
		fmt.Fprintln(w, "project,duration_minutes")
		for _, p := range order {
			fmt.Fprintf(w, "%s,%d\n", csvEscape(p), sum.ByProject[p]/60)
		}
	case "json":
		doc := reportJSON{Period: label, Projects: []projectTotal{}, TotalMinutes: sum.Total / 60}
		for _, p := range order {
			doc.Projects = append(doc.Projects, projectTotal{Project: p, DurationMinutes: sum.ByProject[p] / 60})
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(doc); err != nil {
			return runtimeError(fmt.Errorf("encoding JSON: %w", err))
		}
	default: // md
		fmt.Fprintln(w, headingStyle.Render(label))
		fmt.Fprintln(w, "--------------------------------")
		for _, p := range order {
			fmt.Fprintf(w, "%-20s%s\n", p, timecalc.FormatDuration(sum.ByProject[p]))
		}
		fmt.Fprintln(w, "--------------------------------")
		fmt.Fprintf(w, "%-20s%s\n", "Total", totalStyle.Render(timecalc.FormatDuration(sum.Total)))
	}
	return nil
}
