package timecalc

import (
	"sort"
	"time"

	"github.com/Tiliavir/boring-time-tracker/internal/model"
)

// ComputeDuration returns floor((end - start) / 1s). It is negative when end
// precedes start; callers must not persist such a value.
func ComputeDuration(start, end time.Time) int64 {
	d := end.Sub(start)
	secs := int64(d / time.Second)
	if d%time.Second < 0 {
		secs--
	}
	return secs
}

// FilterRecords returns the records matching every constraint of f, most
// recent start first. The input slice is left untouched.
func FilterRecords(records []model.TimeRecord, f model.DateRangeFilter) []model.TimeRecord {
	from, to := FilterBounds(f)
	sel := model.Selection{From: from, To: to, ProjectID: f.ProjectID, Tags: f.Tags}

	out := make([]model.TimeRecord, 0, len(records))
	for _, r := range records {
		if sel.Matches(r) {
			out = append(out, r)
		}
	}
	SortByStartDesc(out)
	return out
}

// SortByStartDesc orders records most recent first, keeping the relative
// order of equal start times.
func SortByStartDesc(records []model.TimeRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].StartTime.After(records[j].StartTime)
	})
}

// AggregateTotalSeconds sums the Duration of each record. Records without a
// duration, including running ones, count as zero.
func AggregateTotalSeconds(records []model.TimeRecord) int64 {
	var total int64
	for _, r := range records {
		if r.Duration != nil {
			total += *r.Duration
		}
	}
	return total
}

// WithProvisionalDuration returns copies of records in which running
// records carry their elapsed time up to now as Duration.
func WithProvisionalDuration(records []model.TimeRecord, now time.Time) []model.TimeRecord {
	out := make([]model.TimeRecord, len(records))
	for i, r := range records {
		c := r.Clone()
		if c.Running() {
			d := ComputeDuration(c.StartTime, now)
			if d < 0 {
				d = 0
			}
			c.Duration = &d
		}
		out[i] = c
	}
	return out
}

// TotalsByProject sums durations per project id.
func TotalsByProject(records []model.TimeRecord) map[string]int64 {
	totals := map[string]int64{}
	for _, r := range records {
		if r.Duration == nil {
			continue
		}
		totals[r.ProjectID] += *r.Duration
	}
	return totals
}
