package timecalc

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Tiliavir/boring-time-tracker/internal/metrics"
	"github.com/Tiliavir/boring-time-tracker/internal/model"
)

// InstantLayout renders instants as ISO-8601 UTC with millisecond precision,
// e.g. 2024-03-15T00:00:00.000Z.
const InstantLayout = "2006-01-02T15:04:05.000Z07:00"

// wallLayout is the wall-clock rendering used to measure a zone's offset.
const wallLayout = "2006-01-02T15:04:05"

// Edge selects which end of a calendar day a boundary refers to.
type Edge int

const (
	// EdgeStart is 00:00:00.000 of the day.
	EdgeStart Edge = iota
	// EdgeEnd is 23:59:59.999 of the day.
	EdgeEnd
)

func (e Edge) String() string {
	if e == EdgeEnd {
		return "end"
	}
	return "start"
}

// Boundary is a resolved day edge.
type Boundary struct {
	Instant  time.Time
	Timezone string
	// FellBack is set when Timezone was unknown and UTC was used instead.
	FellBack bool
}

// String renders the boundary as an ISO-8601 UTC instant.
func (b Boundary) String() string {
	return FormatInstant(b.Instant)
}

// FormatInstant renders t as an ISO-8601 UTC instant with milliseconds.
func FormatInstant(t time.Time) string {
	return t.UTC().Format(InstantLayout)
}

// LoadZone resolves an IANA name. Unknown names resolve to UTC with
// fellBack set; the empty name is UTC without a fallback.
func LoadZone(name string) (loc *time.Location, fellBack bool) {
	if name == "" {
		return time.UTC, false
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"timezone": name,
			"error":    err,
		}).Warn("unknown timezone, falling back to UTC")
		metrics.RecordTimezoneFallback()
		return time.UTC, true
	}
	return loc, false
}

// OffsetMinutes returns UTC wall time minus loc wall time at ref, in whole
// minutes. Zones behind UTC yield positive values: America/New_York in
// January is +300.
func OffsetMinutes(loc *time.Location, ref time.Time) int {
	utcWall, _ := time.Parse(wallLayout, ref.UTC().Format(wallLayout))
	tzWall, _ := time.Parse(wallLayout, ref.In(loc).Format(wallLayout))
	return int(utcWall.Sub(tzWall) / time.Minute)
}

// ResolveDayBoundary converts a calendar date in timezone into the instant
// at the start or end of that day.
//
// The zone offset is sampled once at noon UTC of the date and applied to
// both edges. On a day with a DST transition the edge on the far side of
// the transition is off by the DST delta.
func ResolveDayBoundary(calendarDate, timezone string, edge Edge) (Boundary, error) {
	day, err := time.Parse(model.DateLayout, calendarDate)
	if err != nil {
		return Boundary{}, fmt.Errorf("%w %q: want YYYY-MM-DD", model.ErrInvalidDate, calendarDate)
	}

	loc, fellBack := LoadZone(timezone)
	ref := day.Add(12 * time.Hour)
	offset := OffsetMinutes(loc, ref)

	edgeTime := day
	if edge == EdgeEnd {
		edgeTime = day.Add(24*time.Hour - time.Millisecond)
	}

	resolved := timezone
	if fellBack || resolved == "" {
		resolved = model.DefaultTimezone
	}
	return Boundary{
		Instant:  edgeTime.Add(time.Duration(offset) * time.Minute),
		Timezone: resolved,
		FellBack: fellBack,
	}, nil
}

// FilterBounds resolves the filter's calendar dates into inclusive instant
// bounds. A malformed date drops that bound and logs a warning.
func FilterBounds(f model.DateRangeFilter) (from, to *time.Time) {
	if f.StartDate != "" {
		if b, err := ResolveDayBoundary(f.StartDate, f.Timezone, EdgeStart); err != nil {
			logrus.WithError(err).Warn("ignoring start date in filter")
		} else {
			from = &b.Instant
		}
	}
	if f.EndDate != "" {
		if b, err := ResolveDayBoundary(f.EndDate, f.Timezone, EdgeEnd); err != nil {
			logrus.WithError(err).Warn("ignoring end date in filter")
		} else {
			to = &b.Instant
		}
	}
	return from, to
}
