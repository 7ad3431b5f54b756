package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/Tiliavir/boring-time-tracker/internal/model"
	"github.com/Tiliavir/boring-time-tracker/internal/msgraph"
	"github.com/Tiliavir/boring-time-tracker/internal/timecalc"
)

var (
	outlookSyncFrom    string
	outlookSyncTo      string
	outlookSyncDate    string
	outlookSyncDryRun  bool
	outlookSyncProject string
	outlookSyncTZ      string
)

var outlookCmd = &cobra.Command{
	Use:   "outlook",
	Short: "Outlook calendar integration",
}

var outlookSyncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Import Outlook calendar events as time entries",
	Args:  cobra.NoArgs,
	RunE:  runOutlookSync,
}

var outlookLogoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Forget the stored Microsoft token",
	Args:  cobra.NoArgs,
	RunE:  runOutlookLogout,
}

func init() {
	outlookSyncCmd.Flags().StringVar(&outlookSyncFrom, "from", "", "Start date (YYYY-MM-DD); required when --to is specified")
	outlookSyncCmd.Flags().StringVar(&outlookSyncTo, "to", "", "End date (YYYY-MM-DD); defaults to today")
	outlookSyncCmd.Flags().StringVar(&outlookSyncDate, "date", "", "Sync a specific date (YYYY-MM-DD); default today")
	outlookSyncCmd.Flags().BoolVar(&outlookSyncDryRun, "dry-run", false, "Print planned operations without writing")
	outlookSyncCmd.Flags().StringVar(&outlookSyncProject, "project", "", "Project for imported events (default: outlook.default_project)")
	outlookSyncCmd.Flags().StringVar(&outlookSyncTZ, "timezone", "", "IANA timezone for event times (default: outlook.timezone)")
	outlookCmd.AddCommand(outlookSyncCmd, outlookLogoutCmd)
}

// syncWindow resolves the sync flags into calendar dates.
func syncWindow(today string) (from, to string, err error) {
	switch {
	case outlookSyncDate != "":
		from, to = outlookSyncDate, outlookSyncDate
	case outlookSyncFrom != "" || outlookSyncTo != "":
		if outlookSyncFrom == "" {
			return "", "", usageErrorf("--from is required when --to is specified")
		}
		from, to = outlookSyncFrom, outlookSyncTo
		if to == "" {
			to = today
		}
	default:
		from, to = today, today
	}
	for _, d := range []string{from, to} {
		if err := model.ValidateDate(d); err != nil {
			return "", "", err
		}
	}
	if to < from {
		return "", "", usageErrorf("--to %s is before --from %s", to, from)
	}
	return from, to, nil
}

func runOutlookSync(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	timezone := outlookSyncTZ
	if timezone == "" {
		timezone = cfg.Outlook.Timezone
	}
	if timezone == "" {
		timezone = cfg.Tracker.Timezone
	}
	project := outlookSyncProject
	if project == "" {
		project = cfg.Outlook.DefaultProject
	}

	loc, _ := timecalc.LoadZone(timezone)
	fromDate, toDate, err := syncWindow(now().In(loc).Format(model.DateLayout))
	if err != nil {
		return err
	}
	start, err := timecalc.ResolveDayBoundary(fromDate, timezone, timecalc.EdgeStart)
	if err != nil {
		return err
	}
	end, err := timecalc.ResolveDayBoundary(toDate, timezone, timecalc.EdgeEnd)
	if err != nil {
		return err
	}

	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	tokens, closePrefs, err := openPrefs(ctx)
	if err != nil {
		return err
	}
	defer closePrefs()

	dryTag := ""
	if outlookSyncDryRun {
		dryTag = " [dry-run]"
	}
	fmt.Fprintf(out, "Syncing Outlook events (%s → %s)%s...\n\n", fromDate, toDate, dryTag)

	auth := msgraph.NewAuthenticator(
		msgraph.OAuth2Config(cfg.Outlook.TenantID, cfg.Outlook.ClientID), tokens, out)
	httpClient, err := auth.HTTPClient(ctx)
	if err != nil {
		return runtimeError(fmt.Errorf("authentication failed: %w", err))
	}

	client := msgraph.NewClient(httpClient)
	// calendarView's end is exclusive.
	events, err := client.GetCalendarView(ctx, start.Instant, end.Instant.Add(time.Millisecond), timezone)
	if err != nil {
		return runtimeError(fmt.Errorf("failed to fetch calendar events: %w", err))
	}

	result, err := msgraph.SyncEvents(ctx, a.tracker, events, msgraph.SyncOptions{
		OwnerID:  a.owner,
		Project:  project,
		Timezone: timezone,
		DryRun:   outlookSyncDryRun,
		Out:      out,
	})
	if err != nil {
		return classify(fmt.Errorf("sync error: %w", err))
	}

	fmt.Fprintln(out)
	fmt.Fprintln(out, headingStyle.Render("Summary:"))
	fmt.Fprintf(out, "  %d imported\n", result.Imported)
	fmt.Fprintf(out, "  %d skipped\n", result.Skipped)
	fmt.Fprintf(out, "  %d updated\n", result.Updated)
	if result.Errors > 0 {
		fmt.Fprintf(out, "  %d errors\n", result.Errors)
		return runtimeError(fmt.Errorf("%d events could not be imported", result.Errors))
	}
	return nil
}

func runOutlookLogout(cmd *cobra.Command, args []string) error {
	tokens, closePrefs, err := openPrefs(cmd.Context())
	if err != nil {
		return err
	}
	defer closePrefs()

	auth := msgraph.NewAuthenticator(
		msgraph.OAuth2Config(cfg.Outlook.TenantID, cfg.Outlook.ClientID), tokens, cmd.OutOrStdout())
	if err := auth.Logout(cmd.Context()); err != nil {
		return runtimeError(err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), "Signed out of Microsoft Graph.")
	return nil
}
