package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/Tiliavir/boring-time-tracker/internal/model"
	"github.com/Tiliavir/boring-time-tracker/internal/timecalc"
)

// dateRange holds the --from/--to/--today/--week flags shared by the
// reading commands.
type dateRange struct {
	from, to    string
	today, week bool
	project     string
	tags        string
}

// filter builds the record filter. Without any date flag the range is
// today, or the current week when defaultWeek is set.
func (r dateRange) filter(tz string, defaultWeek bool) (model.DateRangeFilter, string, error) {
	for _, d := range []string{r.from, r.to} {
		if d == "" {
			continue
		}
		if err := model.ValidateDate(d); err != nil {
			return model.DateRangeFilter{}, "", err
		}
	}

	loc, _ := timecalc.LoadZone(tz)
	local := now().In(loc)
	opts := []model.FilterOption{model.WithTimezone(tz)}
	var label string

	switch {
	case r.from != "" || r.to != "":
		opts = append(opts, model.WithDateRange(r.from, r.to))
		label = strings.TrimSpace(fmt.Sprintf("%s – %s", orDots(r.from), orDots(r.to)))
	case r.today:
		d := local.Format(model.DateLayout)
		opts = append(opts, model.WithDateRange(d, d))
		label = d
	case r.week || defaultWeek:
		from, to := timecalc.WeekDates(local)
		opts = append(opts, model.WithDateRange(from, to))
		label = "Week " + timecalc.ISOWeekLabel(local)
	default:
		d := local.Format(model.DateLayout)
		opts = append(opts, model.WithDateRange(d, d))
		label = d
	}

	if r.project != "" {
		opts = append(opts, model.WithProject(r.project))
	}
	if tags := parseTags(r.tags); len(tags) > 0 {
		opts = append(opts, model.WithTags(tags...))
	}
	return model.NewFilter(opts...), label, nil
}

// currentWeek reports whether the range resolves to the current ISO week.
func (r dateRange) currentWeek(defaultWeek bool) bool {
	return r.from == "" && r.to == "" && !r.today && (r.week || defaultWeek)
}

func orDots(d string) string {
	if d == "" {
		return "…"
	}
	return d
}

// parseTags splits a comma-separated tag list, dropping blanks.
func parseTags(s string) []string {
	var tags []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			tags = append(tags, p)
		}
	}
	return tags
}

var clockLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
}

// parseClock reads a point in time given as RFC 3339, as a local date and
// time, or as a bare HH:MM meaning today. Local forms use tz.
func parseClock(s, tz string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	loc, _ := timecalc.LoadZone(tz)
	for _, layout := range clockLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	if hm, err := time.Parse("15:04", s); err == nil {
		y, m, d := now().In(loc).Date()
		return time.Date(y, m, d, hm.Hour(), hm.Minute(), 0, 0, loc), nil
	}
	return time.Time{}, usageErrorf("invalid time %q: want HH:MM, YYYY-MM-DD HH:MM or RFC 3339", s)
}

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
