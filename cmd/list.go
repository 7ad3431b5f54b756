package cmd

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/Tiliavir/boring-time-tracker/internal/model"
	"github.com/Tiliavir/boring-time-tracker/internal/timecalc"
)

var listRange dateRange

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List time entries",
	Args:  cobra.NoArgs,
	RunE:  runList,
}

func init() {
	addRangeFlags(listCmd, &listRange)
	listCmd.Flags().BoolVar(&listRange.today, "today", false, "Show today's entries (default)")
}

func addRangeFlags(c *cobra.Command, r *dateRange) {
	c.Flags().StringVar(&r.from, "from", "", "First calendar day (YYYY-MM-DD)")
	c.Flags().StringVar(&r.to, "to", "", "Last calendar day (YYYY-MM-DD)")
	c.Flags().BoolVar(&r.week, "week", false, "This week's entries")
	c.Flags().StringVar(&r.project, "project", "", "Only this project")
	c.Flags().StringVar(&r.tags, "tags", "", "Only entries carrying all of these comma-separated tags")
}

func runList(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	records, _, err := a.selectRecords(ctx, listRange, false)
	if err != nil {
		return err
	}

	printList(cmd.OutOrStdout(), chronological(records), a.tz)
	return nil
}

// chronological returns records oldest first.
func chronological(records []model.TimeRecord) []model.TimeRecord {
	out := make([]model.TimeRecord, len(records))
	for i, r := range records {
		out[len(records)-1-i] = r
	}
	return out
}

// printList groups records by local date and prints them.
func printList(w io.Writer, records []model.TimeRecord, tz string) {
	if len(records) == 0 {
		fmt.Fprintln(w, "No entries found.")
		return
	}

	var currentDay string
	for _, r := range records {
		day := localTime(r.StartTime, tz, model.DateLayout)
		if day != currentDay {
			fmt.Fprintln(w, headingStyle.Render(day))
			currentDay = day
		}

		startStr := localTime(r.StartTime, tz, "15:04")
		endStr := runningStyle.Render("ongoing")
		durStr := ""
		if r.EndTime != nil {
			endStr = localTime(*r.EndTime, tz, "15:04")
		}
		if r.Duration != nil {
			durStr = fmt.Sprintf(" (%s)", timecalc.FormatDuration(*r.Duration))
		}

		desc := ""
		if d := r.DescriptionText(); d != "" {
			desc = "  " + strings.SplitN(d, "\n", 2)[0]
		}
		tags := ""
		if len(r.Tags) > 0 {
			tags = mutedStyle.Render("  #" + strings.Join(r.Tags, " #"))
		}

		fmt.Fprintf(w, "%s–%s  %s%s%s%s  %s\n", startStr, endStr, r.ProjectID, desc, durStr, tags,
			mutedStyle.Render(r.ID))
	}
}

// localTime formats t in tz.
func localTime(t time.Time, tz, layout string) string {
	loc, _ := timecalc.LoadZone(tz)
	return t.In(loc).Format(layout)
}

func localClock(t time.Time, tz string) string {
	return localTime(t, tz, "15:04:05")
}
