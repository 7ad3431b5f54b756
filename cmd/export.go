package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/Tiliavir/boring-time-tracker/internal/model"
)

var (
	exportRange  dateRange
	exportFormat string
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export time entries to stdout",
	Args:  cobra.NoArgs,
	RunE:  runExport,
}

func init() {
	addRangeFlags(exportCmd, &exportRange)
	exportCmd.Flags().StringVar(&exportFormat, "format", "csv", "Output format: csv, json, md, yaml")
}

func runExport(cmd *cobra.Command, args []string) error {
	switch exportFormat {
	case "csv", "json", "md", "yaml":
	default:
		return usageErrorf("unknown --format %q: want csv, json, md or yaml", exportFormat)
	}

	ctx := cmd.Context()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	records, _, err := a.selectRecords(ctx, exportRange, true)
	if err != nil {
		return err
	}
	records = chronological(records)

	out := cmd.OutOrStdout()
	switch exportFormat {
	case "json":
		data, err := json.MarshalIndent(records, "", "  ")
		if err != nil {
			return runtimeError(fmt.Errorf("encoding JSON: %w", err))
		}
		fmt.Fprintln(out, string(data))
	case "yaml":
		enc := yaml.NewEncoder(out)
		enc.SetIndent(2)
		if err := enc.Encode(records); err != nil {
			return runtimeError(fmt.Errorf("encoding YAML: %w", err))
		}
		if err := enc.Close(); err != nil {
			return runtimeError(fmt.Errorf("encoding YAML: %w", err))
		}
	case "md":
		printList(out, records, a.tz)
	default:
		printCSV(out, records, a.tz)
	}
	return nil
}

func printCSV(w io.Writer, records []model.TimeRecord, tz string) {
	fmt.Fprintln(w, "id,date,project,description,tags,start,end,duration_minutes,source")
	for _, r := range records {
		endStr := ""
		if r.EndTime != nil {
			endStr = r.EndTime.UTC().Format(time.RFC3339)
		}
		durMin := int64(0)
		if r.Duration != nil {
			durMin = *r.Duration / 60
		}
		fmt.Fprintf(w, "%s,%s,%s,%s,%s,%s,%s,%d,%s\n",
			csvEscape(r.ID),
			csvEscape(localTime(r.StartTime, tz, model.DateLayout)),
			csvEscape(r.ProjectID),
			csvEscape(r.DescriptionText()),
			csvEscape(strings.Join(r.Tags, ";")),
			csvEscape(r.StartTime.UTC().Format(time.RFC3339)),
			csvEscape(endStr),
			durMin,
			csvEscape(r.Source),
		)
	}
}

// csvEscape wraps a field in quotes if it contains a comma, quote, or newline.
func csvEscape(s string) string {
	if !strings.ContainsAny(s, ",\"\n\r") {
		return s
	}
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}
