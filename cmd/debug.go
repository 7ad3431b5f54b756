package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Tiliavir/boring-time-tracker/internal/timecalc"
)

var debugCmd = &cobra.Command{
	Use:    "debug",
	Short:  "Diagnostics",
	Hidden: true,
}

var debugMetricsCmd = &cobra.Command{
	Use:   "metrics",
	Short: "Print internal counters of this process",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		printMetrics(cmd.OutOrStdout())
		return nil
	},
}

var debugBoundaryCmd = &cobra.Command{
	Use:   "boundary <YYYY-MM-DD>",
	Short: "Show the UTC instants a calendar day resolves to",
	Args:  cobra.ExactArgs(1),
	RunE:  runDebugBoundary,
}

func init() {
	debugCmd.AddCommand(debugMetricsCmd, debugBoundaryCmd)
}

func runDebugBoundary(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	for _, edge := range []timecalc.Edge{timecalc.EdgeStart, timecalc.EdgeEnd} {
		b, err := timecalc.ResolveDayBoundary(args[0], cfg.Tracker.Timezone, edge)
		if err != nil {
			return err
		}
		note := ""
		if b.FellBack {
			note = mutedStyle.Render("  (unknown timezone, UTC used)")
		}
		fmt.Fprintf(out, "%-5s %s  %s%s\n", edge, b, b.Timezone, note)
	}
	return nil
}
