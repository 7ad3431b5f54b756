package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Tiliavir/boring-time-tracker/internal/model"
)

var (
	stopID      string
	stopComment string
)

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the currently running timer",
	Args:  cobra.NoArgs,
	RunE:  runStop,
}

func init() {
	stopCmd.Flags().StringVar(&stopID, "id", "", "Stop this entry instead of the active one")
	stopCmd.Flags().StringVar(&stopComment, "comment", "", "Append a line to the entry's description")
}

func runStop(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	var rec model.TimeRecord
	if stopID != "" {
		rec, err = a.tracker.Stop(ctx, a.owner, stopID)
	} else {
		rec, err = a.tracker.StopActive(ctx, a.owner)
	}
	if err != nil {
		return classify(err)
	}

	if stopComment != "" {
		desc := stopComment
		if rec.Description != nil && *rec.Description != "" {
			desc = *rec.Description + "\n" + stopComment
		}
		if rec, err = a.tracker.Update(ctx, a.owner, rec.ID, model.Patch{Description: &desc}); err != nil {
			return classify(err)
		}
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Stopped timer for project %q. Elapsed: %s\n",
		rec.ProjectID, formatElapsed(*rec.Duration))
	return nil
}

func formatElapsed(seconds int64) string {
	h := seconds / 3600
	m := (seconds % 3600) / 60
	s := seconds % 60
	if h > 0 {
		return fmt.Sprintf("%dh %dm %ds", h, m, s)
	}
	if m > 0 {
		return fmt.Sprintf("%dm %ds", m, s)
	}
	return fmt.Sprintf("%ds", s)
}
