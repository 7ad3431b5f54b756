package timecalc_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tiliavir/boring-time-tracker/internal/model"
	"github.com/Tiliavir/boring-time-tracker/internal/timecalc"
)

func mustInstant(t *testing.T, s string) time.Time {
	t.Helper()
	ts, err := time.Parse(time.RFC3339Nano, s)
	require.NoError(t, err)
	return ts
}

func record(t *testing.T, id, project, start string, tags ...string) model.TimeRecord {
	return model.TimeRecord{
		ID:        id,
		OwnerID:   "u1",
		ProjectID: project,
		StartTime: mustInstant(t, start),
		Tags:      tags,
	}
}

func ids(records []model.TimeRecord) []string {
	out := make([]string, len(records))
	for i, r := range records {
		out[i] = r.ID
	}
	return out
}

func TestFilterRecordsSingleDay(t *testing.T) {
	records := []model.TimeRecord{
		record(t, "noon", "p1", "2024-01-01T12:00:00Z"),
		record(t, "late-previous-day", "p1", "2023-12-31T23:00:00Z"),
	}
	got := timecalc.FilterRecords(records, model.NewFilter(model.WithDateRange("2024-01-01", "2024-01-01")))
	assert.Equal(t, []string{"noon"}, ids(got))
}

func TestFilterRecordsTimezone(t *testing.T) {
	// 2024-01-11T03:00Z is still the 10th in New York.
	records := []model.TimeRecord{
		record(t, "ny-evening", "p1", "2024-01-11T03:00:00Z"),
		record(t, "ny-early-morning", "p1", "2024-01-10T04:30:00Z"),
		record(t, "ny-morning", "p1", "2024-01-10T14:00:00Z"),
	}
	got := timecalc.FilterRecords(records, model.NewFilter(
		model.WithDateRange("2024-01-10", "2024-01-10"),
		model.WithTimezone("America/New_York"),
	))
	assert.Equal(t, []string{"ny-evening", "ny-morning"}, ids(got))
}

func TestFilterRecordsConjunctive(t *testing.T) {
	records := []model.TimeRecord{
		record(t, "a", "p1", "2024-02-01T09:00:00Z", "billable", "client"),
		record(t, "b", "p2", "2024-02-01T10:00:00Z", "billable", "client"),
		record(t, "c", "p1", "2024-02-02T09:00:00Z", "billable"),
		record(t, "d", "p1", "2024-02-05T09:00:00Z", "billable", "client"),
	}
	got := timecalc.FilterRecords(records, model.NewFilter(
		model.WithDateRange("2024-02-01", "2024-02-03"),
		model.WithProject("p1"),
		model.WithTags("client", "billable"),
	))
	assert.Equal(t, []string{"a"}, ids(got))
}

func TestFilterRecordsOrderingAndNoMutation(t *testing.T) {
	records := []model.TimeRecord{
		record(t, "oldest", "p1", "2024-02-01T09:00:00Z"),
		record(t, "tie-1", "p1", "2024-02-03T09:00:00Z"),
		record(t, "newest", "p1", "2024-02-04T09:00:00Z"),
		record(t, "tie-2", "p1", "2024-02-03T09:00:00Z"),
	}
	got := timecalc.FilterRecords(records, model.DateRangeFilter{})

	assert.Equal(t, []string{"newest", "tie-1", "tie-2", "oldest"}, ids(got))
	assert.Equal(t, []string{"oldest", "tie-1", "newest", "tie-2"}, ids(records), "input reordered")
}

func TestFilterRecordsIgnoresMalformedDate(t *testing.T) {
	records := []model.TimeRecord{
		record(t, "a", "p1", "2024-02-01T09:00:00Z"),
		record(t, "b", "p1", "2024-03-01T09:00:00Z"),
	}
	got := timecalc.FilterRecords(records, model.NewFilter(
		model.WithStartDate("garbage"),
		model.WithEndDate("2024-02-15"),
	))
	assert.Equal(t, []string{"a"}, ids(got))
}

func TestComputeDuration(t *testing.T) {
	tests := []struct {
		start, end string
		want       int64
	}{
		{"2024-01-01T00:00:00Z", "2024-01-01T01:30:00Z", 5400},
		{"2024-01-01T00:00:00Z", "2024-01-01T00:00:00Z", 0},
		{"2024-01-01T00:00:00Z", "2024-01-01T00:00:00.999Z", 0},
		{"2024-01-01T00:00:00.500Z", "2024-01-01T00:00:02Z", 1},
		{"2024-01-01T00:00:02Z", "2024-01-01T00:00:00.500Z", -2},
	}
	for _, tt := range tests {
		got := timecalc.ComputeDuration(mustInstant(t, tt.start), mustInstant(t, tt.end))
		if got != tt.want {
			t.Errorf("ComputeDuration(%s, %s) = %d, want %d", tt.start, tt.end, got, tt.want)
		}
	}
}

func TestAggregateTotalSeconds(t *testing.T) {
	d1, d2 := int64(3600), int64(1800)
	records := []model.TimeRecord{
		{ID: "a", Duration: &d1},
		{ID: "running"},
		{ID: "b", Duration: &d2},
	}
	assert.Equal(t, int64(5400), timecalc.AggregateTotalSeconds(records))
	assert.Equal(t, int64(0), timecalc.AggregateTotalSeconds(nil))
}

func TestWithProvisionalDuration(t *testing.T) {
	d := int64(60)
	end := mustInstant(t, "2024-01-01T08:01:00Z")
	records := []model.TimeRecord{
		{ID: "stopped", StartTime: mustInstant(t, "2024-01-01T08:00:00Z"), EndTime: &end, Duration: &d},
		{ID: "running", StartTime: mustInstant(t, "2024-01-01T09:00:00Z")},
	}
	now := mustInstant(t, "2024-01-01T09:15:30Z")

	got := timecalc.WithProvisionalDuration(records, now)

	require.NotNil(t, got[1].Duration)
	assert.Equal(t, int64(930), *got[1].Duration)
	assert.Equal(t, int64(990), timecalc.AggregateTotalSeconds(got))
	assert.Nil(t, records[1].Duration, "input mutated")
}

func TestTotalsByProject(t *testing.T) {
	a, b, c := int64(100), int64(200), int64(50)
	records := []model.TimeRecord{
		{ProjectID: "p1", Duration: &a},
		{ProjectID: "p2", Duration: &b},
		{ProjectID: "p1", Duration: &c},
		{ProjectID: "p3"},
	}
	assert.Equal(t, map[string]int64{"p1": 150, "p2": 200}, timecalc.TotalsByProject(records))
}
