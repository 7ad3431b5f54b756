package storage_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tiliavir/boring-time-tracker/internal/model"
	"github.com/Tiliavir/boring-time-tracker/internal/storage"
)

func at(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		panic(err)
	}
	return t
}

func ptr[T any](v T) *T { return &v }

func stopped(id, owner, project, start, end string, tags ...string) model.TimeRecord {
	s, e := at(start), at(end)
	d := int64(e.Sub(s) / time.Second)
	if tags == nil {
		tags = []string{}
	}
	return model.TimeRecord{
		ID:        id,
		OwnerID:   owner,
		ProjectID: project,
		StartTime: s,
		EndTime:   &e,
		Duration:  &d,
		CreatedAt: s,
		Tags:      tags,
		Source:    model.SourceManual,
	}
}

func running(id, owner, project, start string) model.TimeRecord {
	s := at(start)
	return model.TimeRecord{
		ID:        id,
		OwnerID:   owner,
		ProjectID: project,
		StartTime: s,
		CreatedAt: s,
		Tags:      []string{},
		Source:    model.SourceTimer,
	}
}

// normalize makes records from different backends comparable.
func normalize(r model.TimeRecord) model.TimeRecord {
	r = r.Clone()
	r.StartTime = r.StartTime.UTC()
	r.CreatedAt = r.CreatedAt.UTC()
	if r.EndTime != nil {
		e := r.EndTime.UTC()
		r.EndTime = &e
	}
	if r.Tags == nil {
		r.Tags = []string{}
	}
	return r
}

func recordIDs(records []model.TimeRecord) []string {
	out := make([]string, len(records))
	for i, r := range records {
		out[i] = r.ID
	}
	return out
}

// runStoreContract exercises behavior every RecordStore backend shares.
func runStoreContract(t *testing.T, open func(t *testing.T) storage.RecordStore) {
	t.Run("insert and get", func(t *testing.T) {
		ctx := context.Background()
		s := open(t)

		r := stopped("r1", "u1", "p1", "2024-05-01T09:00:00Z", "2024-05-01T10:30:00Z", "billable", "client")
		r.Description = ptr("planning")
		r.ExternalID = "evt-1"

		_, err := s.Insert(ctx, r)
		require.NoError(t, err)

		got, err := s.Get(ctx, "r1")
		require.NoError(t, err)
		assert.Equal(t, normalize(r), normalize(got))
		require.NotNil(t, got.Duration)
		assert.Equal(t, int64(5400), *got.Duration)
	})

	t.Run("get missing", func(t *testing.T) {
		_, err := open(t).Get(context.Background(), "nope")
		assert.True(t, errors.Is(err, storage.ErrNotFound), "err = %v", err)
	})

	t.Run("single running record per owner", func(t *testing.T) {
		ctx := context.Background()
		s := open(t)

		_, err := s.Insert(ctx, running("a", "u1", "p1", "2024-05-01T09:00:00Z"))
		require.NoError(t, err)

		_, err = s.Insert(ctx, running("b", "u1", "p2", "2024-05-01T09:05:00Z"))
		assert.True(t, errors.Is(err, storage.ErrConflict), "err = %v", err)

		_, err = s.Insert(ctx, running("c", "u2", "p1", "2024-05-01T09:05:00Z"))
		assert.NoError(t, err, "other owners are independent")

		active, err := s.Select(ctx, storage.Query{OwnerID: "u1", RunningOnly: true})
		require.NoError(t, err)
		assert.Equal(t, []string{"a"}, recordIDs(active))
	})

	t.Run("duplicate id", func(t *testing.T) {
		ctx := context.Background()
		s := open(t)
		r := stopped("dup", "u1", "p1", "2024-05-01T09:00:00Z", "2024-05-01T10:00:00Z")
		_, err := s.Insert(ctx, r)
		require.NoError(t, err)
		_, err = s.Insert(ctx, r)
		assert.True(t, errors.Is(err, storage.ErrConflict), "err = %v", err)
	})

	t.Run("select filters and order", func(t *testing.T) {
		ctx := context.Background()
		s := open(t)
		for _, r := range []model.TimeRecord{
			stopped("a", "u1", "p1", "2024-05-01T09:00:00Z", "2024-05-01T10:00:00Z", "billable"),
			stopped("b", "u1", "p2", "2024-05-02T09:00:00Z", "2024-05-02T10:00:00Z", "billable", "client"),
			stopped("c", "u1", "p1", "2024-05-03T09:00:00Z", "2024-05-03T10:00:00Z", "client"),
			stopped("d", "u2", "p1", "2024-05-02T11:00:00Z", "2024-05-02T12:00:00Z", "billable"),
			running("e", "u1", "p1", "2024-05-04T09:00:00Z"),
		} {
			_, err := s.Insert(ctx, r)
			require.NoError(t, err)
		}

		tests := []struct {
			name string
			q    storage.Query
			want []string
		}{
			{"owner", storage.Query{OwnerID: "u1"}, []string{"e", "c", "b", "a"}},
			{"project", storage.Query{OwnerID: "u1", ProjectID: "p1"}, []string{"e", "c", "a"}},
			{"tags superset", storage.Query{Tags: []string{"billable"}}, []string{"d", "b", "a"}},
			{"two tags", storage.Query{Tags: []string{"client", "billable"}}, []string{"b"}},
			{"range", storage.Query{
				OwnerID:   "u1",
				StartFrom: ptr(at("2024-05-02T00:00:00Z")),
				StartTo:   ptr(at("2024-05-03T09:00:00Z")),
			}, []string{"c", "b"}},
			{"from only", storage.Query{OwnerID: "u1", StartFrom: ptr(at("2024-05-03T00:00:00Z"))}, []string{"e", "c"}},
			{"running", storage.Query{RunningOnly: true}, []string{"e"}},
			{"limit", storage.Query{OwnerID: "u1", Limit: 2}, []string{"e", "c"}},
			{"no match", storage.Query{OwnerID: "nobody"}, []string{}},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				got, err := s.Select(ctx, tt.q)
				require.NoError(t, err)
				assert.Equal(t, tt.want, recordIDs(got))
			})
		}
	})

	t.Run("select by external id", func(t *testing.T) {
		ctx := context.Background()
		s := open(t)
		r := stopped("imp", "u1", "Meetings", "2024-05-01T09:00:00Z", "2024-05-01T10:00:00Z", "outlook")
		r.ExternalID = "AAMkAG"
		_, err := s.Insert(ctx, r)
		require.NoError(t, err)

		got, err := s.Select(ctx, storage.Query{OwnerID: "u1", ExternalID: "AAMkAG"})
		require.NoError(t, err)
		assert.Equal(t, []string{"imp"}, recordIDs(got))
	})

	t.Run("replace", func(t *testing.T) {
		ctx := context.Background()
		s := open(t)
		r := running("r", "u1", "p1", "2024-05-01T09:00:00Z")
		_, err := s.Insert(ctx, r)
		require.NoError(t, err)

		// Stop it and move it to another day.
		r.StartTime = at("2024-05-02T08:00:00Z")
		r.EndTime = ptr(at("2024-05-02T09:00:00Z"))
		r.Duration = ptr(int64(3600))
		r.Tags = []string{"moved"}
		_, err = s.Replace(ctx, r)
		require.NoError(t, err)

		got, err := s.Get(ctx, "r")
		require.NoError(t, err)
		assert.Equal(t, normalize(r), normalize(got))

		all, err := s.Select(ctx, storage.Query{})
		require.NoError(t, err)
		assert.Equal(t, []string{"r"}, recordIDs(all), "record duplicated after move")

		_, err = s.Replace(ctx, running("ghost", "u1", "p1", "2024-05-01T09:00:00Z"))
		assert.True(t, errors.Is(err, storage.ErrNotFound), "err = %v", err)
	})

	t.Run("replace cannot create second running record", func(t *testing.T) {
		ctx := context.Background()
		s := open(t)
		_, err := s.Insert(ctx, running("live", "u1", "p1", "2024-05-01T09:00:00Z"))
		require.NoError(t, err)
		done := stopped("done", "u1", "p1", "2024-04-30T09:00:00Z", "2024-04-30T10:00:00Z")
		_, err = s.Insert(ctx, done)
		require.NoError(t, err)

		done.EndTime = nil
		done.Duration = nil
		_, err = s.Replace(ctx, done)
		assert.True(t, errors.Is(err, storage.ErrConflict), "err = %v", err)
	})

	t.Run("delete", func(t *testing.T) {
		ctx := context.Background()
		s := open(t)
		_, err := s.Insert(ctx, stopped("x", "u1", "p1", "2024-05-01T09:00:00Z", "2024-05-01T10:00:00Z"))
		require.NoError(t, err)

		require.NoError(t, s.Delete(ctx, "x"))
		_, err = s.Get(ctx, "x")
		assert.True(t, errors.Is(err, storage.ErrNotFound), "err = %v", err)

		err = s.Delete(ctx, "x")
		assert.True(t, errors.Is(err, storage.ErrNotFound), "err = %v", err)
	})
}
