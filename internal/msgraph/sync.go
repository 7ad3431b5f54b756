package msgraph

import (
	"context"
	"fmt"
	"io"
	"slices"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Tiliavir/boring-time-tracker/internal/model"
	"github.com/Tiliavir/boring-time-tracker/internal/timecalc"
	"github.com/Tiliavir/boring-time-tracker/internal/tracking"
)

// OutlookTag marks imported records.
const OutlookTag = "outlook"

// SyncResult holds counters for a sync operation.
type SyncResult struct {
	Imported int
	Skipped  int
	Updated  int
	Errors   int
}

// SyncOptions configures a sync run.
type SyncOptions struct {
	OwnerID  string
	Project  string
	Timezone string
	DryRun   bool
	// Out receives one progress line per event; nil discards them.
	Out io.Writer
}

// parseGraphTime parses a Graph API dateTime string in the given timezone.
// Graph returns times like "2026-02-27T09:00:00.0000000" without a zone suffix
// when a Prefer: outlook.timezone header is set.
func parseGraphTime(dt, tz string) (time.Time, error) {
	// Try RFC3339 first (includes timezone offset).
	if t, err := time.Parse(time.RFC3339Nano, dt); err == nil {
		return t, nil
	}

	loc, _ := timecalc.LoadZone(tz)

	// Graph returns fractional seconds: "2026-02-27T09:00:00.0000000"
	for _, layout := range []string{
		"2006-01-02T15:04:05.0000000",
		"2006-01-02T15:04:05",
	} {
		if t, err := time.ParseInLocation(layout, dt, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("cannot parse graph time %q", dt)
}

// buildDescription combines subject, bodyPreview and location.
func buildDescription(event CalendarEvent) *string {
	parts := []string{}
	for _, p := range []string{event.Subject, event.BodyPreview, event.Location.DisplayName} {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	if len(parts) == 0 {
		return nil
	}
	s := strings.Join(parts, "\n")
	return &s
}

// skipReason names why an event is not imported, or returns "".
func skipReason(event CalendarEvent) string {
	switch {
	case event.IsCancelled:
		return "cancelled"
	case event.IsAllDay:
		return "all-day"
	case event.Sensitivity == "private":
		return "private"
	case event.ShowAs == "free":
		return "shown as free"
	case event.Start.DateTime == "" || event.End.DateTime == "":
		return "no start or end"
	}
	return ""
}

// MapEventToRecord converts a Graph CalendarEvent into a TimeRecord. The
// record has no ID or owner yet.
func MapEventToRecord(event CalendarEvent, timezone, project string) (model.TimeRecord, error) {
	startTime, err := parseGraphTime(event.Start.DateTime, timezone)
	if err != nil {
		return model.TimeRecord{}, fmt.Errorf("parsing start time: %w", err)
	}
	endTime, err := parseGraphTime(event.End.DateTime, timezone)
	if err != nil {
		return model.TimeRecord{}, fmt.Errorf("parsing end time: %w", err)
	}
	startTime, endTime = startTime.UTC(), endTime.UTC()

	dur := timecalc.ComputeDuration(startTime, endTime)
	if dur < 0 {
		return model.TimeRecord{}, fmt.Errorf("event ends before it starts")
	}

	return model.TimeRecord{
		ExternalID:  event.ID,
		ProjectID:   project,
		Description: buildDescription(event),
		Tags:        []string{OutlookTag},
		StartTime:   startTime,
		EndTime:     &endTime,
		Duration:    &dur,
		Source:      model.SourceOutlook,
	}, nil
}

func unchanged(existing, incoming model.TimeRecord) bool {
	return existing.DescriptionText() == incoming.DescriptionText() &&
		existing.StartTime.Equal(incoming.StartTime) &&
		existing.EndTime != nil && existing.EndTime.Equal(*incoming.EndTime)
}

// SyncEvents imports events through tr. Events already imported (matched by
// external id) are skipped when unchanged and updated otherwise; records
// entered by hand are never touched.
func SyncEvents(ctx context.Context, tr *tracking.Tracker, events []CalendarEvent, opts SyncOptions) (SyncResult, error) {
	var result SyncResult
	out := opts.Out
	if out == nil {
		out = io.Discard
	}

	for _, event := range events {
		if reason := skipReason(event); reason != "" {
			logrus.WithFields(logrus.Fields{"event": event.ID, "reason": reason}).Debug("skipping calendar event")
			continue
		}
		if err := ctx.Err(); err != nil {
			return result, err
		}

		rec, err := MapEventToRecord(event, opts.Timezone, opts.Project)
		if err != nil {
			fmt.Fprintf(out, "  ! Error mapping event %q: %v\n", event.Subject, err)
			result.Errors++
			continue
		}
		dur := fmt.Sprintf(" (%s)", timecalc.FormatDuration(*rec.Duration))

		found, err := tr.FindByExternalID(ctx, opts.OwnerID, event.ID)
		if err != nil {
			// Storage failures affect every event; stop here.
			return result, err
		}

		if found != nil {
			if unchanged(*found, rec) {
				fmt.Fprintf(out, "  – Skipped:  %s (already exists)\n", event.Subject)
				result.Skipped++
				continue
			}
			if !opts.DryRun {
				tags := found.Tags
				if !slices.Contains(tags, OutlookTag) {
					tags = append(slices.Clone(tags), OutlookTag)
				}
				_, err := tr.Update(ctx, opts.OwnerID, found.ID, model.Patch{
					Description: rec.Description,
					StartTime:   &rec.StartTime,
					EndTime:     rec.EndTime,
					Tags:        &tags,
				})
				if err != nil {
					fmt.Fprintf(out, "  ! Error updating %q: %v\n", event.Subject, err)
					result.Errors++
					continue
				}
			}
			fmt.Fprintf(out, "  ↑ Updated:  %s%s\n", event.Subject, dur)
			result.Updated++
			continue
		}

		if !opts.DryRun {
			_, err := tr.CreateManual(ctx, tracking.ManualParams{
				OwnerID:     opts.OwnerID,
				ProjectID:   rec.ProjectID,
				Description: rec.Description,
				Start:       rec.StartTime,
				End:         rec.EndTime,
				Tags:        rec.Tags,
				Source:      rec.Source,
				ExternalID:  rec.ExternalID,
			})
			if err != nil {
				fmt.Fprintf(out, "  ! Error saving %q: %v\n", event.Subject, err)
				result.Errors++
				continue
			}
		}
		fmt.Fprintf(out, "  ✓ Imported: %s%s\n", event.Subject, dur)
		result.Imported++
	}

	return result, nil
}
