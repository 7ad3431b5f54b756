package tracking_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/prometheus/client_golang/prometheus/testutil"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tiliavir/boring-time-tracker/internal/metrics"
	"github.com/Tiliavir/boring-time-tracker/internal/model"
	"github.com/Tiliavir/boring-time-tracker/internal/storage"
	"github.com/Tiliavir/boring-time-tracker/internal/tracking"
	"github.com/Tiliavir/boring-time-tracker/internal/weekcache"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func mustTime(t *testing.T, s string) time.Time {
	t.Helper()
	ts, err := time.Parse(time.RFC3339, s)
	require.NoError(t, err)
	return ts
}

func ptr[T any](v T) *T { return &v }

type fixture struct {
	tracker *tracking.Tracker
	store   storage.RecordStore
	clock   *fakeClock
	weeks   *weekcache.Cache
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	store := storage.NewFileStore(t.TempDir())
	clock := &fakeClock{now: mustTime(t, "2024-03-12T09:00:00Z")}
	weeks := weekcache.New(0, time.Hour)
	logger, _ := logtest.NewNullLogger()
	n := 0
	tr := tracking.New(store,
		tracking.WithClock(clock),
		tracking.WithLogger(logger),
		tracking.WithWeekCache(weeks),
		tracking.WithIDGenerator(func() string {
			n++
			return fmt.Sprintf("rec-%d", n)
		}),
	)
	return fixture{tracker: tr, store: store, clock: clock, weeks: weeks}
}

func TestStartStop(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	started, err := f.tracker.Start(ctx, tracking.StartParams{
		OwnerID:     "u1",
		ProjectID:   "ECM",
		Description: ptr("review"),
		Tags:        []string{"billable", "billable", ""},
	})
	require.NoError(t, err)
	assert.True(t, started.Running())
	assert.Equal(t, model.SourceTimer, started.Source)
	assert.Equal(t, []string{"billable"}, started.Tags)
	assert.Nil(t, started.Duration)

	f.clock.Advance(90*time.Minute + 400*time.Millisecond)
	stopped, err := f.tracker.Stop(ctx, "u1", started.ID)
	require.NoError(t, err)
	require.NotNil(t, stopped.EndTime)
	require.NotNil(t, stopped.Duration)
	assert.Equal(t, int64(5400), *stopped.Duration)

	stored, err := f.store.Get(ctx, started.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(5400), *stored.Duration)
}

func TestStartWhileRunningIsRejected(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	before := testutil.ToFloat64(metrics.TrackingConflicts.WithLabelValues("already_running"))

	first, err := f.tracker.Start(ctx, tracking.StartParams{OwnerID: "u1", ProjectID: "A"})
	require.NoError(t, err)

	_, err = f.tracker.Start(ctx, tracking.StartParams{OwnerID: "u1", ProjectID: "B"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, tracking.ErrAlreadyRunning))
	var conflict *tracking.ConflictError
	require.True(t, errors.As(err, &conflict))
	assert.Equal(t, first.ID, conflict.Record.ID)
	assert.Equal(t, before+1, testutil.ToFloat64(metrics.TrackingConflicts.WithLabelValues("already_running")))

	running, err := f.store.Select(ctx, storage.Query{OwnerID: "u1", RunningOnly: true})
	require.NoError(t, err)
	assert.Len(t, running, 1)

	_, err = f.tracker.Start(ctx, tracking.StartParams{OwnerID: "u2", ProjectID: "B"})
	assert.NoError(t, err, "owners are independent")
}

func TestConcurrentStartsLeaveOneRunning(t *testing.T) {
	ctx := context.Background()
	store := storage.NewFileStore(t.TempDir())
	logger, _ := logtest.NewNullLogger()
	tr := tracking.New(store, tracking.WithLogger(logger))

	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded := 0
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := tr.Start(ctx, tracking.StartParams{OwnerID: "u1", ProjectID: fmt.Sprintf("p%d", i)})
			if err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
				return
			}
			assert.True(t, errors.Is(err, tracking.ErrAlreadyRunning), "err = %v", err)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, succeeded)
	running, err := store.Select(ctx, storage.Query{OwnerID: "u1", RunningOnly: true})
	require.NoError(t, err)
	assert.Len(t, running, 1)
}

// blindStore hides running records from Select, as if another process
// started a timer between the check and the insert.
type blindStore struct {
	storage.RecordStore
}

func (b blindStore) Select(ctx context.Context, q storage.Query) ([]model.TimeRecord, error) {
	if q.RunningOnly {
		return nil, nil
	}
	return b.RecordStore.Select(ctx, q)
}

func TestStoreConflictMapsToAlreadyRunning(t *testing.T) {
	ctx := context.Background()
	inner := storage.NewFileStore(t.TempDir())
	logger, _ := logtest.NewNullLogger()
	tr := tracking.New(blindStore{inner}, tracking.WithLogger(logger))

	_, err := tr.Start(ctx, tracking.StartParams{OwnerID: "u1", ProjectID: "A"})
	require.NoError(t, err)

	_, err = tr.Start(ctx, tracking.StartParams{OwnerID: "u1", ProjectID: "B"})
	assert.True(t, errors.Is(err, tracking.ErrAlreadyRunning), "err = %v", err)
	assert.True(t, tracking.UserError(err))
}

func TestStartRequiresProject(t *testing.T) {
	_, err := newFixture(t).tracker.Start(context.Background(), tracking.StartParams{OwnerID: "u1"})
	assert.True(t, errors.Is(err, tracking.ErrProjectRequired))
}

func TestStopTwice(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	r, err := f.tracker.Start(ctx, tracking.StartParams{OwnerID: "u1", ProjectID: "A"})
	require.NoError(t, err)
	f.clock.Advance(time.Hour)
	first, err := f.tracker.Stop(ctx, "u1", r.ID)
	require.NoError(t, err)

	f.clock.Advance(time.Hour)
	_, err = f.tracker.Stop(ctx, "u1", r.ID)
	assert.True(t, errors.Is(err, tracking.ErrAlreadyStopped))
	assert.EqualError(t, errors.Unwrap(err), "time entry already stopped")

	stored, err := f.store.Get(ctx, r.ID)
	require.NoError(t, err)
	assert.True(t, first.EndTime.Equal(*stored.EndTime), "end time changed by second stop")
	assert.Equal(t, int64(3600), *stored.Duration)
}

func TestStopErrors(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.tracker.Stop(ctx, "u1", "missing")
	assert.True(t, errors.Is(err, tracking.ErrEntryNotFound))

	_, err = f.tracker.StopActive(ctx, "u1")
	assert.True(t, errors.Is(err, tracking.ErrNoActiveEntry))

	r, err := f.tracker.Start(ctx, tracking.StartParams{OwnerID: "u1", ProjectID: "A"})
	require.NoError(t, err)
	_, err = f.tracker.Stop(ctx, "intruder", r.ID)
	assert.True(t, errors.Is(err, tracking.ErrNotOwner))

	f.clock.Advance(-time.Minute)
	_, err = f.tracker.Stop(ctx, "u1", r.ID)
	assert.True(t, errors.Is(err, tracking.ErrInvalidInterval))

	stored, err := f.store.Get(ctx, r.ID)
	require.NoError(t, err)
	assert.True(t, stored.Running(), "rejected stop must not persist")
}

func TestStopActive(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	r, err := f.tracker.Start(ctx, tracking.StartParams{OwnerID: "u1", ProjectID: "A"})
	require.NoError(t, err)

	active, err := f.tracker.Active(ctx, "u1")
	require.NoError(t, err)
	require.NotNil(t, active)
	assert.Equal(t, r.ID, active.ID)

	f.clock.Advance(30 * time.Second)
	stopped, err := f.tracker.StopActive(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(30), *stopped.Duration)

	active, err = f.tracker.Active(ctx, "u1")
	require.NoError(t, err)
	assert.Nil(t, active)
}

func TestCreateManual(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	r, err := f.tracker.CreateManual(ctx, tracking.ManualParams{
		OwnerID:   "u1",
		ProjectID: "A",
		Start:     mustTime(t, "2024-03-11T08:00:00Z"),
		End:       ptr(mustTime(t, "2024-03-11T10:15:00Z")),
	})
	require.NoError(t, err)
	assert.Equal(t, int64(8100), *r.Duration)
	assert.Equal(t, model.SourceManual, r.Source)

	_, err = f.tracker.CreateManual(ctx, tracking.ManualParams{
		OwnerID:   "u1",
		ProjectID: "A",
		Start:     mustTime(t, "2024-03-11T10:00:00Z"),
		End:       ptr(mustTime(t, "2024-03-11T09:00:00Z")),
	})
	assert.True(t, errors.Is(err, tracking.ErrInvalidInterval))

	_, err = f.tracker.CreateManual(ctx, tracking.ManualParams{
		OwnerID: "u1", ProjectID: "A", Start: mustTime(t, "2024-03-12T08:00:00Z"),
	})
	require.NoError(t, err, "open-ended manual entry")
	_, err = f.tracker.CreateManual(ctx, tracking.ManualParams{
		OwnerID: "u1", ProjectID: "B", Start: mustTime(t, "2024-03-12T08:30:00Z"),
	})
	assert.True(t, errors.Is(err, tracking.ErrAlreadyRunning))
}

func TestUpdateRecomputesDuration(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	r, err := f.tracker.CreateManual(ctx, tracking.ManualParams{
		OwnerID:   "u1",
		ProjectID: "A",
		Start:     mustTime(t, "2024-03-11T08:00:00Z"),
		End:       ptr(mustTime(t, "2024-03-11T09:00:00Z")),
	})
	require.NoError(t, err)

	updated, err := f.tracker.Update(ctx, "u1", r.ID, model.Patch{
		StartTime: ptr(mustTime(t, "2024-03-11T07:30:00Z")),
		EndTime:   ptr(mustTime(t, "2024-03-11T09:45:00Z")),
	})
	require.NoError(t, err)
	assert.Equal(t, int64(8100), *updated.Duration)

	updated, err = f.tracker.Update(ctx, "u1", r.ID, model.Patch{Description: ptr("notes")})
	require.NoError(t, err)
	assert.Equal(t, int64(8100), *updated.Duration)
	assert.Equal(t, "notes", updated.DescriptionText())

	_, err = f.tracker.Update(ctx, "u1", r.ID, model.Patch{EndTime: ptr(mustTime(t, "2024-03-11T07:00:00Z"))})
	assert.True(t, errors.Is(err, tracking.ErrInvalidInterval))

	_, err = f.tracker.Update(ctx, "u1", r.ID, model.Patch{ProjectID: ptr("")})
	assert.True(t, errors.Is(err, tracking.ErrProjectRequired))

	_, err = f.tracker.Update(ctx, "u2", r.ID, model.Patch{Description: ptr("x")})
	assert.True(t, errors.Is(err, tracking.ErrNotOwner))
}

func TestUpdateEndsRunningRecord(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	r, err := f.tracker.Start(ctx, tracking.StartParams{OwnerID: "u1", ProjectID: "A"})
	require.NoError(t, err)

	updated, err := f.tracker.Update(ctx, "u1", r.ID, model.Patch{
		EndTime: ptr(r.StartTime.Add(25 * time.Minute)),
	})
	require.NoError(t, err)
	assert.False(t, updated.Running())
	assert.Equal(t, int64(1500), *updated.Duration)
}

func TestDelete(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	r, err := f.tracker.Start(ctx, tracking.StartParams{OwnerID: "u1", ProjectID: "A"})
	require.NoError(t, err)

	assert.True(t, errors.Is(f.tracker.Delete(ctx, "u2", r.ID), tracking.ErrNotOwner))
	require.NoError(t, f.tracker.Delete(ctx, "u1", r.ID))
	_, err = f.tracker.Get(ctx, "u1", r.ID)
	assert.True(t, errors.Is(err, tracking.ErrEntryNotFound))
	assert.True(t, errors.Is(f.tracker.Delete(ctx, "u1", r.ID), tracking.ErrEntryNotFound))
}

func seed(t *testing.T, f fixture, owner, project, start, end string, tags ...string) model.TimeRecord {
	t.Helper()
	r, err := f.tracker.CreateManual(context.Background(), tracking.ManualParams{
		OwnerID:   owner,
		ProjectID: project,
		Start:     mustTime(t, start),
		End:       ptr(mustTime(t, end)),
		Tags:      tags,
	})
	require.NoError(t, err)
	return r
}

func ids(records []model.TimeRecord) []string {
	out := make([]string, len(records))
	for i, r := range records {
		out[i] = r.ID
	}
	return out
}

func TestListInTimezone(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	evening := seed(t, f, "u1", "A", "2024-01-11T03:00:00Z", "2024-01-11T04:00:00Z")
	seed(t, f, "u1", "A", "2024-01-10T04:30:00Z", "2024-01-10T04:45:00Z")
	morning := seed(t, f, "u1", "A", "2024-01-10T14:00:00Z", "2024-01-10T15:00:00Z", "billable")
	seed(t, f, "u2", "A", "2024-01-10T14:00:00Z", "2024-01-10T15:00:00Z")

	got, err := f.tracker.List(ctx, "u1", model.NewFilter(
		model.WithDateRange("2024-01-10", "2024-01-10"),
		model.WithTimezone("America/New_York"),
	))
	require.NoError(t, err)
	assert.Equal(t, []string{evening.ID, morning.ID}, ids(got))

	got, err = f.tracker.List(ctx, "u1", model.NewFilter(
		model.WithDateRange("2024-01-10", "2024-01-10"),
		model.WithTimezone("America/New_York"),
		model.WithTags("billable"),
	))
	require.NoError(t, err)
	assert.Equal(t, []string{morning.ID}, ids(got))
}

func TestSummary(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	seed(t, f, "u1", "A", "2024-03-11T08:00:00Z", "2024-03-11T09:00:00Z")
	seed(t, f, "u1", "B", "2024-03-11T10:00:00Z", "2024-03-11T10:30:00Z")
	seed(t, f, "u1", "A", "2024-03-12T08:00:00Z", "2024-03-12T08:15:00Z")
	_, err := f.tracker.Start(ctx, tracking.StartParams{OwnerID: "u1", ProjectID: "C"})
	require.NoError(t, err)

	s, err := f.tracker.Summary(ctx, "u1", model.NewFilter(model.WithDateRange("2024-03-11", "2024-03-12")))
	require.NoError(t, err)
	assert.Equal(t, int64(3600+1800+900), s.Total, "running record counts as zero")
	assert.Equal(t, map[string]int64{"A": 4500, "B": 1800}, s.ByProject)
	assert.Len(t, s.Records, 4)
}

func TestWeekCacheInvalidation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	first := seed(t, f, "u1", "A", "2024-03-11T08:00:00Z", "2024-03-11T09:00:00Z")
	seed(t, f, "u1", "A", "2024-03-04T08:00:00Z", "2024-03-04T09:00:00Z")

	ref := mustTime(t, "2024-03-13T12:00:00Z")
	week, err := f.tracker.Week(ctx, "u1", ref, "UTC")
	require.NoError(t, err)
	assert.Equal(t, []string{first.ID}, ids(week))
	assert.Equal(t, 1, f.weeks.Len())

	// A write that bypasses the tracker is not seen until the cache is
	// invalidated.
	end := mustTime(t, "2024-03-12T09:00:00Z")
	d := int64(3600)
	_, err = f.store.Insert(ctx, model.TimeRecord{
		ID: "external", OwnerID: "u1", ProjectID: "A", Tags: []string{},
		StartTime: mustTime(t, "2024-03-12T08:00:00Z"), EndTime: &end, Duration: &d,
	})
	require.NoError(t, err)
	week, err = f.tracker.Week(ctx, "u1", ref, "UTC")
	require.NoError(t, err)
	assert.Len(t, week, 1)

	third := seed(t, f, "u1", "B", "2024-03-13T08:00:00Z", "2024-03-13T09:00:00Z")
	week, err = f.tracker.Week(ctx, "u1", ref, "UTC")
	require.NoError(t, err)
	assert.Equal(t, []string{third.ID, "external", first.ID}, ids(week))
}

func TestWeekHonoursTimezone(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	// Sunday evening in Los Angeles is already Monday in UTC.
	r := seed(t, f, "u1", "A", "2024-03-11T03:00:00Z", "2024-03-11T04:00:00Z")

	utcWeek, err := f.tracker.Week(ctx, "u1", mustTime(t, "2024-03-13T12:00:00Z"), "UTC")
	require.NoError(t, err)
	assert.Equal(t, []string{r.ID}, ids(utcWeek))

	laWeek, err := f.tracker.Week(ctx, "u1", mustTime(t, "2024-03-13T12:00:00Z"), "America/Los_Angeles")
	require.NoError(t, err)
	assert.Empty(t, laWeek)
}
