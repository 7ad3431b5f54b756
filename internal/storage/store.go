package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Tiliavir/boring-time-tracker/internal/model"
)

var (
	// ErrNotFound is returned when no record has the requested id.
	ErrNotFound = errors.New("record not found")
	// ErrConflict is returned when a write would break a uniqueness rule:
	// a duplicate id, or a second running record for the same owner.
	ErrConflict = errors.New("record conflict")
)

// RecordStore persists TimeRecords. Select results are ordered by start
// time, most recent first.
type RecordStore interface {
	Insert(ctx context.Context, r model.TimeRecord) (model.TimeRecord, error)
	Get(ctx context.Context, id string) (model.TimeRecord, error)
	Select(ctx context.Context, q Query) ([]model.TimeRecord, error)
	Replace(ctx context.Context, r model.TimeRecord) (model.TimeRecord, error)
	Delete(ctx context.Context, id string) error
	Close() error
}

// Query holds equality and range predicates on indexed record fields.
// Zero-valued fields impose no constraint.
type Query struct {
	OwnerID    string
	ProjectID  string
	ExternalID string
	// StartFrom and StartTo bound StartTime inclusively.
	StartFrom *time.Time
	StartTo   *time.Time
	// Tags must all be present on a matching record.
	Tags        []string
	RunningOnly bool
	// Limit caps the result size when positive.
	Limit int
}

// Matches reports whether r satisfies every predicate of q.
func (q Query) Matches(r model.TimeRecord) bool {
	if q.OwnerID != "" && r.OwnerID != q.OwnerID {
		return false
	}
	if q.ExternalID != "" && r.ExternalID != q.ExternalID {
		return false
	}
	if q.RunningOnly && !r.Running() {
		return false
	}
	return q.Selection().Matches(r)
}

// Selection returns the date, project and tag predicates of q.
func (q Query) Selection() model.Selection {
	return model.Selection{From: q.StartFrom, To: q.StartTo, ProjectID: q.ProjectID, Tags: q.Tags}
}

// Drivers accepted by Open.
const (
	DriverJSON     = "json"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config selects and locates a RecordStore backend.
type Config struct {
	Driver      string
	Dir         string
	SQLitePath  string
	PostgresURL string
}

// Open returns the backend named by cfg.Driver.
func Open(ctx context.Context, cfg Config) (RecordStore, error) {
	switch cfg.Driver {
	case DriverJSON, "":
		if cfg.Dir == "" {
			return nil, errors.New("storage: json driver needs a data directory")
		}
		return NewFileStore(cfg.Dir), nil
	case DriverSQLite:
		if cfg.SQLitePath == "" {
			return nil, errors.New("storage: sqlite driver needs a database path")
		}
		return NewSQLiteStore(ctx, cfg.SQLitePath)
	case DriverPostgres:
		if cfg.PostgresURL == "" {
			return nil, errors.New("storage: postgres driver needs a connection URL")
		}
		return NewPostgresStore(ctx, cfg.PostgresURL)
	default:
		return nil, fmt.Errorf("storage: unknown driver %q (want json, sqlite or postgres)", cfg.Driver)
	}
}
