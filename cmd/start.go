package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Tiliavir/boring-time-tracker/internal/model"
	"github.com/Tiliavir/boring-time-tracker/internal/timecalc"
	"github.com/Tiliavir/boring-time-tracker/internal/tracking"
)

var (
	startDescription string
	startTags        string
	startSwitch      bool
)

var startCmd = &cobra.Command{
	Use:   "start <project>",
	Short: "Start a new time entry",
	Args:  cobra.ExactArgs(1),
	RunE:  runStart,
}

func init() {
	startCmd.Flags().StringVar(&startDescription, "description", "", "What you are working on")
	startCmd.Flags().StringVar(&startTags, "tags", "", "Comma-separated tags")
	startCmd.Flags().BoolVar(&startSwitch, "switch", false, "Stop the running timer first instead of failing")
}

func runStart(cmd *cobra.Command, args []string) error {
	project := args[0]
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	if startSwitch {
		stopped, err := a.tracker.StopActive(ctx, a.owner)
		switch {
		case err == nil:
			fmt.Fprintf(cmd.ErrOrStderr(), "Warning: stopped active timer for project %q (%s)\n",
				stopped.ProjectID, timecalc.FormatDuration(*stopped.Duration))
		case errors.Is(err, tracking.ErrNoActiveEntry):
		default:
			return classify(err)
		}
	}

	rec, err := a.tracker.Start(ctx, tracking.StartParams{
		OwnerID:     a.owner,
		ProjectID:   project,
		Description: optionalString(startDescription),
		Tags:        parseTags(startTags),
		Source:      model.SourceTimer,
	})
	if err != nil {
		var conflict *tracking.ConflictError
		if errors.As(err, &conflict) {
			fmt.Fprintf(cmd.ErrOrStderr(), "Timer for project %q is running since %s. Use --switch to stop it.\n",
				conflict.Record.ProjectID, localClock(conflict.Record.StartTime, a.tz))
		}
		return classify(err)
	}

	fmt.Fprintf(out, "Started timer for project %q at %s\n", project, localClock(rec.StartTime, a.tz))
	fmt.Fprintln(out, mutedStyle.Render("id "+rec.ID))
	return nil
}
