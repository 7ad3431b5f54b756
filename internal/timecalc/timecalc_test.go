package timecalc_test

import (
	"testing"
	"time"

	"github.com/Tiliavir/boring-time-tracker/internal/timecalc"
)

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		seconds int64
		want    string
	}{
		{0, "0s"},
		{45, "45s"},
		{60, "1m"},
		{90, "1m"},
		{3600, "1h 0m"},
		{3661, "1h 1m"},
		{5400, "1h 30m"},
		{90000, "25h 0m"},
	}
	for _, tt := range tests {
		got := timecalc.FormatDuration(tt.seconds)
		if got != tt.want {
			t.Errorf("FormatDuration(%d) = %q, want %q", tt.seconds, got, tt.want)
		}
	}
}

func TestFormatDurationHHMMSS(t *testing.T) {
	tests := []struct {
		seconds int64
		want    string
	}{
		{0, "00:00:00"},
		{61, "00:01:01"},
		{3661, "01:01:01"},
		{360000, "100:00:00"},
	}
	for _, tt := range tests {
		got := timecalc.FormatDurationHHMMSS(tt.seconds)
		if got != tt.want {
			t.Errorf("FormatDurationHHMMSS(%d) = %q, want %q", tt.seconds, got, tt.want)
		}
	}
}

func TestWeekDates(t *testing.T) {
	tests := []struct {
		name     string
		ref      time.Time
		from, to string
	}{
		// 2026-02-27 is a Friday (week 9).
		{"friday", time.Date(2026, 2, 27, 10, 0, 0, 0, time.UTC), "2026-02-23", "2026-03-01"},
		{"monday", time.Date(2026, 2, 23, 0, 0, 0, 0, time.UTC), "2026-02-23", "2026-03-01"},
		// Sunday belongs to the week that started the previous Monday.
		{"sunday", time.Date(2026, 3, 1, 22, 0, 0, 0, time.UTC), "2026-02-23", "2026-03-01"},
		{"year boundary", time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC), "2024-12-30", "2025-01-05"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			from, to := timecalc.WeekDates(tt.ref)
			if from != tt.from || to != tt.to {
				t.Errorf("WeekDates = %s..%s, want %s..%s", from, to, tt.from, tt.to)
			}
		})
	}
}

func TestWeekDatesUsesLocation(t *testing.T) {
	// Monday 01:00 in Tokyo is still Sunday in UTC.
	tokyo := time.FixedZone("JST", 9*3600)
	ref := time.Date(2026, 3, 2, 1, 0, 0, 0, tokyo)
	from, _ := timecalc.WeekDates(ref)
	if from != "2026-03-02" {
		t.Errorf("WeekDates in JST starts %s, want 2026-03-02", from)
	}
	if from, _ := timecalc.WeekDates(ref.UTC()); from != "2026-02-23" {
		t.Errorf("WeekDates in UTC starts %s, want 2026-02-23", from)
	}
}

func TestISOWeekLabel(t *testing.T) {
	tests := []struct {
		ref  time.Time
		want string
	}{
		{time.Date(2026, 2, 27, 10, 0, 0, 0, time.UTC), "2026-W09"},
		{time.Date(2027, 1, 1, 10, 0, 0, 0, time.UTC), "2026-W53"},
	}
	for _, tt := range tests {
		if got := timecalc.ISOWeekLabel(tt.ref); got != tt.want {
			t.Errorf("ISOWeekLabel(%v) = %q, want %q", tt.ref, got, tt.want)
		}
	}
}
