package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Tiliavir/boring-time-tracker/internal/model"
	"github.com/Tiliavir/boring-time-tracker/internal/timecalc"
)

var (
	editProject     string
	editDescription string
	editStart       string
	editEnd         string
	editTags        string
)

var editCmd = &cobra.Command{
	Use:   "edit <id>",
	Short: "Change fields of a time entry",
	Args:  cobra.ExactArgs(1),
	RunE:  runEdit,
}

func init() {
	editCmd.Flags().StringVar(&editProject, "project", "", "New project")
	editCmd.Flags().StringVar(&editDescription, "description", "", "New description")
	editCmd.Flags().StringVar(&editStart, "start", "", "New start time")
	editCmd.Flags().StringVar(&editEnd, "end", "", "New end time; ends a running entry")
	editCmd.Flags().StringVar(&editTags, "tags", "", "Replace tags (comma-separated)")
}

func runEdit(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	flags := cmd.Flags()

	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	var patch model.Patch
	if flags.Changed("project") {
		patch.ProjectID = &editProject
	}
	if flags.Changed("description") {
		patch.Description = &editDescription
	}
	if flags.Changed("start") {
		t, err := parseClock(editStart, a.tz)
		if err != nil {
			return err
		}
		patch.StartTime = &t
	}
	if flags.Changed("end") {
		t, err := parseClock(editEnd, a.tz)
		if err != nil {
			return err
		}
		patch.EndTime = &t
	}
	if flags.Changed("tags") {
		tags := parseTags(editTags)
		if tags == nil {
			tags = []string{}
		}
		patch.Tags = &tags
	}
	if patch.Empty() {
		return usageErrorf("nothing to change: pass at least one of --project, --description, --start, --end, --tags")
	}

	rec, err := a.tracker.Update(ctx, a.owner, args[0], patch)
	if err != nil {
		return classify(err)
	}

	dur := "running"
	if rec.Duration != nil {
		dur = timecalc.FormatDuration(*rec.Duration)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Updated %s: project %q, %s\n", rec.ID, rec.ProjectID, dur)
	return nil
}
