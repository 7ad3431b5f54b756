package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Tiliavir/boring-time-tracker/internal/model"
	"github.com/Tiliavir/boring-time-tracker/internal/timecalc"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show current timer status",
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	active, err := a.tracker.Active(ctx, a.owner)
	if err != nil {
		return classify(err)
	}
	today := a.today()
	records, err := a.tracker.List(ctx, a.owner, model.NewFilter(
		model.WithDateRange(today, today),
		model.WithTimezone(a.tz),
	))
	if err != nil {
		return classify(err)
	}
	records = timecalc.WithProvisionalDuration(records, now())
	total := timecalc.AggregateTotalSeconds(records)

	if active == nil {
		fmt.Fprintln(out, "No active timer.")
		fmt.Fprintf(out, "Today: %s logged.\n", totalStyle.Render(timecalc.FormatDuration(total)))
		return nil
	}

	running := timecalc.WithProvisionalDuration([]model.TimeRecord{*active}, now())[0]
	fmt.Fprintln(out, runningStyle.Render("Running:"))
	fmt.Fprintf(out, "  Project: %s\n", active.ProjectID)
	if d := active.DescriptionText(); d != "" {
		fmt.Fprintf(out, "  Description: %s\n", d)
	}
	if len(active.Tags) > 0 {
		fmt.Fprintf(out, "  Tags: %v\n", active.Tags)
	}
	fmt.Fprintf(out, "  Since: %s\n", localTime(active.StartTime, a.tz, "15:04"))
	fmt.Fprintf(out, "  Elapsed: %s\n", timecalc.FormatDurationHHMMSS(*running.Duration))
	fmt.Fprintf(out, "Today: %s logged, including the running timer.\n", totalStyle.Render(timecalc.FormatDuration(total)))
	return nil
}
