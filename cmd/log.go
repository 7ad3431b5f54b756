package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/Tiliavir/boring-time-tracker/internal/timecalc"
	"github.com/Tiliavir/boring-time-tracker/internal/tracking"
)

var (
	logStart       string
	logEnd         string
	logDescription string
	logTags        string
)

var logCmd = &cobra.Command{
	Use:   "log <project>",
	Short: "Record time after the fact",
	Long: `Record a time entry with explicit bounds. Times are HH:MM (today),
"YYYY-MM-DD HH:MM" or RFC 3339; local forms use the configured timezone.
Without --end the entry is left running.`,
	Args: cobra.ExactArgs(1),
	RunE: runLog,
}

func init() {
	logCmd.Flags().StringVar(&logStart, "start", "", "Start time (required)")
	logCmd.Flags().StringVar(&logEnd, "end", "", "End time")
	logCmd.Flags().StringVar(&logDescription, "description", "", "What you worked on")
	logCmd.Flags().StringVar(&logTags, "tags", "", "Comma-separated tags")
	_ = logCmd.MarkFlagRequired("start")
}

func runLog(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	start, err := parseClock(logStart, a.tz)
	if err != nil {
		return err
	}
	var end *time.Time
	if logEnd != "" {
		e, err := parseClock(logEnd, a.tz)
		if err != nil {
			return err
		}
		end = &e
	}

	rec, err := a.tracker.CreateManual(ctx, tracking.ManualParams{
		OwnerID:     a.owner,
		ProjectID:   args[0],
		Description: optionalString(logDescription),
		Start:       start,
		End:         end,
		Tags:        parseTags(logTags),
	})
	if err != nil {
		return classify(err)
	}

	out := cmd.OutOrStdout()
	if rec.Duration != nil {
		fmt.Fprintf(out, "Logged %s for project %q on %s\n",
			timecalc.FormatDuration(*rec.Duration), rec.ProjectID, localTime(rec.StartTime, a.tz, "2006-01-02"))
	} else {
		fmt.Fprintf(out, "Started timer for project %q at %s\n", rec.ProjectID, localClock(rec.StartTime, a.tz))
	}
	fmt.Fprintln(out, mutedStyle.Render("id "+rec.ID))
	return nil
}
