package timecalc

import (
	"fmt"
	"time"

	"github.com/Tiliavir/boring-time-tracker/internal/model"
)

// FormatDuration renders seconds for humans: "1h 40m", "45m" or "30s".
// Seconds are dropped once the value reaches a minute.
func FormatDuration(seconds int64) string {
	h, m, s := splitSeconds(seconds)
	switch {
	case h > 0:
		return fmt.Sprintf("%dh %dm", h, m)
	case m > 0:
		return fmt.Sprintf("%dm", m)
	default:
		return fmt.Sprintf("%ds", s)
	}
}

// FormatDurationHHMMSS renders seconds as a clock reading, e.g. "01:02:03".
func FormatDurationHHMMSS(seconds int64) string {
	h, m, s := splitSeconds(seconds)
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

func splitSeconds(seconds int64) (h, m, s int64) {
	return seconds / 3600, seconds % 3600 / 60, seconds % 60
}

// WeekDates returns the calendar dates of the Monday and Sunday of the ISO
// week containing t, read in t's location.
func WeekDates(t time.Time) (monday, sunday string) {
	y, mo, d := t.Date()
	// Shift so that Monday is 0 and Sunday is 6.
	offset := (int(t.Weekday()) + 6) % 7
	start := time.Date(y, mo, d-offset, 0, 0, 0, 0, time.UTC)
	return start.Format(model.DateLayout), start.AddDate(0, 0, 6).Format(model.DateLayout)
}

// ISOWeekLabel returns a label like "2026-W09".
func ISOWeekLabel(t time.Time) string {
	year, week := t.ISOWeek()
	return fmt.Sprintf("%d-W%02d", year, week)
}
