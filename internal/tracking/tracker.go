// Package tracking implements the time-record lifecycle on top of a
// storage.RecordStore: starting and stopping timers, manual entries, edits
// and the queries the CLI reports from.
package tracking

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/Tiliavir/boring-time-tracker/internal/metrics"
	"github.com/Tiliavir/boring-time-tracker/internal/model"
	"github.com/Tiliavir/boring-time-tracker/internal/storage"
	"github.com/Tiliavir/boring-time-tracker/internal/timecalc"
	"github.com/Tiliavir/boring-time-tracker/internal/weekcache"
)

// Clock supplies the current time.
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function to Clock.
type ClockFunc func() time.Time

func (f ClockFunc) Now() time.Time { return f() }

// Option configures a Tracker.
type Option func(*Tracker)

func WithClock(c Clock) Option {
	return func(t *Tracker) { t.clock = c }
}

func WithLogger(l logrus.FieldLogger) Option {
	return func(t *Tracker) { t.log = l }
}

// WithWeekCache serves Week from c. Every mutation invalidates the owner's
// cached weeks.
func WithWeekCache(c *weekcache.Cache) Option {
	return func(t *Tracker) { t.weeks = c }
}

// WithIDGenerator replaces uuid.NewString for new record ids.
func WithIDGenerator(f func() string) Option {
	return func(t *Tracker) { t.newID = f }
}

// Tracker serializes mutations so the single-running-record check and the
// insert happen atomically within the process.
type Tracker struct {
	store storage.RecordStore
	clock Clock
	log   logrus.FieldLogger
	weeks *weekcache.Cache
	newID func() string

	mu sync.Mutex
}

// New returns a Tracker over store.
func New(store storage.RecordStore, opts ...Option) *Tracker {
	t := &Tracker{
		store: store,
		clock: ClockFunc(time.Now),
		log:   logrus.StandardLogger(),
		newID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// StartParams describes a timer to start.
type StartParams struct {
	OwnerID     string
	ProjectID   string
	Description *string
	Tags        []string
	// Source defaults to model.SourceTimer.
	Source string
}

// Start opens a running record for the owner. It fails with a
// *ConflictError wrapping ErrAlreadyRunning if one is already running.
func (t *Tracker) Start(ctx context.Context, p StartParams) (model.TimeRecord, error) {
	if p.ProjectID == "" {
		return model.TimeRecord{}, ErrProjectRequired
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.ensureIdle(ctx, p.OwnerID); err != nil {
		return model.TimeRecord{}, err
	}

	now := t.clock.Now().UTC()
	r := model.TimeRecord{
		ID:          t.newID(),
		OwnerID:     p.OwnerID,
		ProjectID:   p.ProjectID,
		Description: p.Description,
		StartTime:   now,
		CreatedAt:   now,
		Tags:        normalizeTags(p.Tags),
		Source:      p.Source,
	}
	if r.Source == "" {
		r.Source = model.SourceTimer
	}
	created, err := t.insert(ctx, r)
	if err != nil {
		return model.TimeRecord{}, err
	}
	t.log.WithFields(logrus.Fields{
		"id":      created.ID,
		"owner":   created.OwnerID,
		"project": created.ProjectID,
	}).Debug("time entry started")
	return created, nil
}

// Stop ends the running record id, setting EndTime to now and Duration
// accordingly.
func (t *Tracker) Stop(ctx context.Context, ownerID, id string) (model.TimeRecord, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	r, err := t.getOwned(ctx, ownerID, id)
	if err != nil {
		return model.TimeRecord{}, err
	}
	return t.stopLocked(ctx, r)
}

// StopActive stops the owner's running record.
func (t *Tracker) StopActive(ctx context.Context, ownerID string) (model.TimeRecord, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	active, err := t.active(ctx, ownerID)
	if err != nil {
		return model.TimeRecord{}, err
	}
	if active == nil {
		return model.TimeRecord{}, ErrNoActiveEntry
	}
	return t.stopLocked(ctx, *active)
}

func (t *Tracker) stopLocked(ctx context.Context, r model.TimeRecord) (model.TimeRecord, error) {
	if !r.Running() {
		metrics.RecordConflict("already_stopped")
		return model.TimeRecord{}, &ConflictError{Err: ErrAlreadyStopped, Record: r}
	}
	end := t.clock.Now().UTC()
	d := timecalc.ComputeDuration(r.StartTime, end)
	if d < 0 {
		return model.TimeRecord{}, fmt.Errorf("%w: stop at %s before start at %s",
			ErrInvalidInterval, timecalc.FormatInstant(end), timecalc.FormatInstant(r.StartTime))
	}
	r.EndTime = &end
	r.Duration = &d

	stopped, err := t.replace(ctx, r)
	if err != nil {
		return model.TimeRecord{}, err
	}
	t.log.WithFields(logrus.Fields{
		"id":       stopped.ID,
		"owner":    stopped.OwnerID,
		"duration": d,
	}).Debug("time entry stopped")
	return stopped, nil
}

// Active returns the owner's running record, or nil.
func (t *Tracker) Active(ctx context.Context, ownerID string) (*model.TimeRecord, error) {
	return t.active(ctx, ownerID)
}

func (t *Tracker) active(ctx context.Context, ownerID string) (*model.TimeRecord, error) {
	records, err := t.store.Select(ctx, storage.Query{OwnerID: ownerID, RunningOnly: true, Limit: 1})
	if err != nil {
		return nil, fmt.Errorf("looking up active entry: %w", err)
	}
	if len(records) == 0 {
		return nil, nil
	}
	return &records[0], nil
}

func (t *Tracker) ensureIdle(ctx context.Context, ownerID string) error {
	active, err := t.active(ctx, ownerID)
	if err != nil {
		return err
	}
	if active != nil {
		metrics.RecordConflict("already_running")
		return &ConflictError{Err: ErrAlreadyRunning, Record: *active}
	}
	return nil
}

// ManualParams describes a record entered after the fact.
type ManualParams struct {
	OwnerID     string
	ProjectID   string
	Description *string
	Start       time.Time
	// End nil creates a running record.
	End        *time.Time
	Tags       []string
	Source     string
	ExternalID string
}

// CreateManual stores a record with explicit bounds.
func (t *Tracker) CreateManual(ctx context.Context, p ManualParams) (model.TimeRecord, error) {
	if p.ProjectID == "" {
		return model.TimeRecord{}, ErrProjectRequired
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	r := model.TimeRecord{
		ID:          t.newID(),
		OwnerID:     p.OwnerID,
		ProjectID:   p.ProjectID,
		Description: p.Description,
		StartTime:   p.Start.UTC(),
		CreatedAt:   t.clock.Now().UTC(),
		Tags:        normalizeTags(p.Tags),
		Source:      p.Source,
		ExternalID:  p.ExternalID,
	}
	if r.Source == "" {
		r.Source = model.SourceManual
	}
	if p.End != nil {
		end := p.End.UTC()
		r.EndTime = &end
		if err := withDuration(&r); err != nil {
			return model.TimeRecord{}, err
		}
	} else if err := t.ensureIdle(ctx, p.OwnerID); err != nil {
		return model.TimeRecord{}, err
	}
	return t.insert(ctx, r)
}

// Update merges patch into record id. Duration is recomputed whenever the
// merged record has an end time.
func (t *Tracker) Update(ctx context.Context, ownerID, id string, patch model.Patch) (model.TimeRecord, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	r, err := t.getOwned(ctx, ownerID, id)
	if err != nil {
		return model.TimeRecord{}, err
	}
	if patch.Empty() {
		return r, nil
	}
	merged := patch.Apply(r)
	merged.StartTime = merged.StartTime.UTC()
	if merged.ProjectID == "" {
		return model.TimeRecord{}, ErrProjectRequired
	}
	if merged.EndTime != nil {
		end := merged.EndTime.UTC()
		merged.EndTime = &end
		if err := withDuration(&merged); err != nil {
			return model.TimeRecord{}, err
		}
	}
	return t.replace(ctx, merged)
}

// Delete removes record id.
func (t *Tracker) Delete(ctx context.Context, ownerID, id string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, err := t.getOwned(ctx, ownerID, id); err != nil {
		return err
	}
	if err := t.store.Delete(ctx, id); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("%w: %s", ErrEntryNotFound, id)
		}
		return fmt.Errorf("deleting time entry: %w", err)
	}
	t.invalidate(ownerID)
	return nil
}

// Get returns record id.
func (t *Tracker) Get(ctx context.Context, ownerID, id string) (model.TimeRecord, error) {
	return t.getOwned(ctx, ownerID, id)
}

func (t *Tracker) getOwned(ctx context.Context, ownerID, id string) (model.TimeRecord, error) {
	r, err := t.store.Get(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return model.TimeRecord{}, fmt.Errorf("%w: %s", ErrEntryNotFound, id)
	}
	if err != nil {
		return model.TimeRecord{}, fmt.Errorf("loading time entry: %w", err)
	}
	if r.OwnerID != ownerID {
		return model.TimeRecord{}, fmt.Errorf("%w: %s", ErrNotOwner, id)
	}
	return r, nil
}

// List returns the owner's records matching f, most recent start first.
func (t *Tracker) List(ctx context.Context, ownerID string, f model.DateRangeFilter) ([]model.TimeRecord, error) {
	from, to := timecalc.FilterBounds(f)
	records, err := t.store.Select(ctx, storage.Query{
		OwnerID:   ownerID,
		ProjectID: f.ProjectID,
		Tags:      f.Tags,
		StartFrom: from,
		StartTo:   to,
	})
	if err != nil {
		return nil, fmt.Errorf("listing time entries: %w", err)
	}
	return records, nil
}

// FindByExternalID returns the owner's record imported from externalID, or
// nil.
func (t *Tracker) FindByExternalID(ctx context.Context, ownerID, externalID string) (*model.TimeRecord, error) {
	records, err := t.store.Select(ctx, storage.Query{OwnerID: ownerID, ExternalID: externalID, Limit: 1})
	if err != nil {
		return nil, fmt.Errorf("looking up external id %s: %w", externalID, err)
	}
	if len(records) == 0 {
		return nil, nil
	}
	return &records[0], nil
}

// Week returns the owner's records of the ISO week containing ref, with
// days interpreted in tz.
func (t *Tracker) Week(ctx context.Context, ownerID string, ref time.Time, tz string) ([]model.TimeRecord, error) {
	loc, _ := timecalc.LoadZone(tz)
	local := ref.In(loc)
	label := timecalc.ISOWeekLabel(local)

	if t.weeks != nil {
		if records, ok := t.weeks.Get(ownerID, label, tz); ok {
			return records, nil
		}
	}

	from, to := timecalc.WeekDates(local)
	records, err := t.List(ctx, ownerID, model.NewFilter(
		model.WithDateRange(from, to),
		model.WithTimezone(tz),
	))
	if err != nil {
		return nil, err
	}
	if t.weeks != nil {
		t.weeks.Put(ownerID, label, tz, records)
	}
	return records, nil
}

// Summary aggregates the records selected by a filter.
type Summary struct {
	Total     int64
	ByProject map[string]int64
	Records   []model.TimeRecord
}

// Summary lists and totals the owner's records matching f. Running records
// contribute zero.
func (t *Tracker) Summary(ctx context.Context, ownerID string, f model.DateRangeFilter) (Summary, error) {
	records, err := t.List(ctx, ownerID, f)
	if err != nil {
		return Summary{}, err
	}
	return Summarize(records), nil
}

// Summarize totals records overall and per project.
func Summarize(records []model.TimeRecord) Summary {
	return Summary{
		Total:     timecalc.AggregateTotalSeconds(records),
		ByProject: timecalc.TotalsByProject(records),
		Records:   records,
	}
}

func (t *Tracker) insert(ctx context.Context, r model.TimeRecord) (model.TimeRecord, error) {
	created, err := t.store.Insert(ctx, r)
	if err != nil {
		if errors.Is(err, storage.ErrConflict) && r.Running() {
			return model.TimeRecord{}, t.runningConflict(ctx, r.OwnerID, err)
		}
		return model.TimeRecord{}, fmt.Errorf("saving time entry: %w", err)
	}
	t.invalidate(r.OwnerID)
	return created, nil
}

func (t *Tracker) replace(ctx context.Context, r model.TimeRecord) (model.TimeRecord, error) {
	updated, err := t.store.Replace(ctx, r)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return model.TimeRecord{}, fmt.Errorf("%w: %s", ErrEntryNotFound, r.ID)
		}
		if errors.Is(err, storage.ErrConflict) && r.Running() {
			return model.TimeRecord{}, t.runningConflict(ctx, r.OwnerID, err)
		}
		return model.TimeRecord{}, fmt.Errorf("saving time entry: %w", err)
	}
	t.invalidate(r.OwnerID)
	return updated, nil
}

// runningConflict maps a store-level uniqueness violation, raised by a
// writer outside this process, to ErrAlreadyRunning.
func (t *Tracker) runningConflict(ctx context.Context, ownerID string, cause error) error {
	metrics.RecordConflict("already_running")
	t.log.WithError(cause).Debug("store rejected second running entry")
	active, err := t.active(ctx, ownerID)
	if err != nil || active == nil {
		return fmt.Errorf("%w: %v", ErrAlreadyRunning, cause)
	}
	return &ConflictError{Err: ErrAlreadyRunning, Record: *active}
}

func (t *Tracker) invalidate(ownerID string) {
	if t.weeks != nil {
		t.weeks.InvalidateOwner(ownerID)
	}
}

func withDuration(r *model.TimeRecord) error {
	d := timecalc.ComputeDuration(r.StartTime, *r.EndTime)
	if d < 0 {
		return fmt.Errorf("%w: end %s, start %s", ErrInvalidInterval,
			timecalc.FormatInstant(*r.EndTime), timecalc.FormatInstant(r.StartTime))
	}
	r.Duration = &d
	return nil
}

func normalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	seen := make(map[string]struct{}, len(tags))
	for _, tag := range tags {
		if tag == "" {
			continue
		}
		if _, dup := seen[tag]; dup {
			continue
		}
		seen[tag] = struct{}{}
		out = append(out, tag)
	}
	return out
}
