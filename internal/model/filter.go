package model

import (
	"errors"
	"fmt"
	"time"
)

// DateLayout is the calendar-date layout used by filters and the CLI.
const DateLayout = "2006-01-02"

// DefaultTimezone is used when a filter names no timezone.
const DefaultTimezone = "UTC"

// ErrInvalidDate is returned for calendar dates that are not YYYY-MM-DD.
var ErrInvalidDate = errors.New("invalid calendar date")

// DateRangeFilter selects TimeRecords. StartDate and EndDate are calendar
// days in Timezone, not UTC instants. Empty fields impose no constraint.
type DateRangeFilter struct {
	StartDate string
	EndDate   string
	ProjectID string
	Tags      []string
	Timezone  string
}

// FilterOption configures a DateRangeFilter.
type FilterOption func(*DateRangeFilter)

// NewFilter builds a DateRangeFilter from options.
func NewFilter(opts ...FilterOption) DateRangeFilter {
	var f DateRangeFilter
	for _, opt := range opts {
		opt(&f)
	}
	return f
}

// WithStartDate keeps records starting on or after the start of day d.
func WithStartDate(d string) FilterOption {
	return func(f *DateRangeFilter) { f.StartDate = d }
}

// WithEndDate keeps records starting on or before the end of day d.
func WithEndDate(d string) FilterOption {
	return func(f *DateRangeFilter) { f.EndDate = d }
}

// WithDateRange sets both calendar bounds.
func WithDateRange(from, to string) FilterOption {
	return func(f *DateRangeFilter) {
		f.StartDate = from
		f.EndDate = to
	}
}

// WithProject keeps records of a single project.
func WithProject(id string) FilterOption {
	return func(f *DateRangeFilter) { f.ProjectID = id }
}

// WithTags keeps records carrying all of the given tags.
func WithTags(tags ...string) FilterOption {
	return func(f *DateRangeFilter) { f.Tags = append([]string(nil), tags...) }
}

// WithTimezone sets the IANA zone the calendar dates are interpreted in.
func WithTimezone(tz string) FilterOption {
	return func(f *DateRangeFilter) { f.Timezone = tz }
}

// Zone returns the filter's timezone, defaulting to UTC.
func (f DateRangeFilter) Zone() string {
	if f.Timezone == "" {
		return DefaultTimezone
	}
	return f.Timezone
}

// Validate reports malformed calendar dates.
func (f DateRangeFilter) Validate() error {
	for _, d := range []string{f.StartDate, f.EndDate} {
		if d == "" {
			continue
		}
		if err := ValidateDate(d); err != nil {
			return err
		}
	}
	return nil
}

// ValidateDate checks that d is a YYYY-MM-DD calendar date.
func ValidateDate(d string) error {
	if _, err := time.Parse(DateLayout, d); err != nil {
		return fmt.Errorf("%w %q: want YYYY-MM-DD", ErrInvalidDate, d)
	}
	return nil
}
