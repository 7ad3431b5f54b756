package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Tiliavir/boring-time-tracker/internal/model"
)

// uniqueViolation is the Postgres SQLSTATE for unique_violation.
const uniqueViolation = "23505"

var postgresMigrations = []string{
	`CREATE TABLE IF NOT EXISTS time_records (
		id TEXT PRIMARY KEY,
		owner_id TEXT NOT NULL,
		project_id TEXT NOT NULL,
		description TEXT,
		start_time TIMESTAMPTZ NOT NULL,
		end_time TIMESTAMPTZ,
		duration BIGINT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		tags TEXT[] NOT NULL DEFAULT '{}',
		source TEXT NOT NULL DEFAULT '',
		external_id TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE INDEX IF NOT EXISTS idx_time_records_owner_start ON time_records (owner_id, start_time DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_time_records_project ON time_records (project_id)`,
	`CREATE INDEX IF NOT EXISTS idx_time_records_tags ON time_records USING GIN (tags)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_time_records_one_running ON time_records (owner_id) WHERE end_time IS NULL`,
}

// PostgresStore provides Postgres-backed persistence for time records.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects to url and applies the schema.
func NewPostgresStore(ctx context.Context, url string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("failed to create postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}
	s := NewPostgresStoreFromPool(pool)
	if err := s.Migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// NewPostgresStoreFromPool wraps an existing pool. The caller owns the
// schema; see Migrate.
func NewPostgresStoreFromPool(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Pool exposes the underlying connection pool.
func (s *PostgresStore) Pool() *pgxpool.Pool {
	return s.pool
}

// Migrate creates the table and indexes if they are missing.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("failed to begin migration: %w", err)
	}
	defer tx.Rollback(ctx)

	for i, stmt := range postgresMigrations {
		if _, err := tx.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to execute migration statement %d: %w", i+1, err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit migration: %w", err)
	}
	return nil
}

// Insert stores a new record.
func (s *PostgresStore) Insert(ctx context.Context, r model.TimeRecord) (model.TimeRecord, error) {
	const query = `INSERT INTO time_records (` + recordColumns + `)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`

	_, err := s.pool.Exec(ctx, query, postgresArgs(r)...)
	if err != nil {
		return model.TimeRecord{}, mapPostgresError(err, r.ID)
	}
	return r.Clone(), nil
}

// Get returns the record with the given id.
func (s *PostgresStore) Get(ctx context.Context, id string) (model.TimeRecord, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+recordColumns+` FROM time_records WHERE id = $1`, id)
	r, err := scanPostgresRecord(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.TimeRecord{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return model.TimeRecord{}, fmt.Errorf("failed to get record %s: %w", id, err)
	}
	return r, nil
}

// Select returns the records matching q, most recent start first.
func (s *PostgresStore) Select(ctx context.Context, q Query) ([]model.TimeRecord, error) {
	var where []string
	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if q.OwnerID != "" {
		where = append(where, "owner_id = "+arg(q.OwnerID))
	}
	if q.ProjectID != "" {
		where = append(where, "project_id = "+arg(q.ProjectID))
	}
	if q.ExternalID != "" {
		where = append(where, "external_id = "+arg(q.ExternalID))
	}
	if q.StartFrom != nil {
		where = append(where, "start_time >= "+arg(q.StartFrom.UTC()))
	}
	if q.StartTo != nil {
		where = append(where, "start_time <= "+arg(q.StartTo.UTC()))
	}
	if q.RunningOnly {
		where = append(where, "end_time IS NULL")
	}
	if len(q.Tags) > 0 {
		where = append(where, "tags @> "+arg(q.Tags)+"::text[]")
	}

	query := `SELECT ` + recordColumns + ` FROM time_records`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY start_time DESC, created_at ASC, id ASC"
	if q.Limit > 0 {
		query += " LIMIT " + arg(q.Limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query records: %w", err)
	}
	defer rows.Close()

	var out []model.TimeRecord
	for rows.Next() {
		r, err := scanPostgresRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate records: %w", err)
	}
	return out, nil
}

// Replace overwrites every column of the record with r.ID.
func (s *PostgresStore) Replace(ctx context.Context, r model.TimeRecord) (model.TimeRecord, error) {
	const query = `UPDATE time_records SET
			owner_id=$2, project_id=$3, description=$4, start_time=$5, end_time=$6,
			duration=$7, created_at=$8, tags=$9, source=$10, external_id=$11
		WHERE id=$1`

	tag, err := s.pool.Exec(ctx, query, postgresArgs(r)...)
	if err != nil {
		return model.TimeRecord{}, mapPostgresError(err, r.ID)
	}
	if tag.RowsAffected() == 0 {
		return model.TimeRecord{}, fmt.Errorf("%w: %s", ErrNotFound, r.ID)
	}
	return r.Clone(), nil
}

// Delete removes the record with the given id.
func (s *PostgresStore) Delete(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM time_records WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete record %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

// Close releases the pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func postgresArgs(r model.TimeRecord) []any {
	tags := r.Tags
	if tags == nil {
		tags = []string{}
	}
	var end any
	if r.EndTime != nil {
		end = r.EndTime.UTC()
	}
	return []any{
		r.ID, r.OwnerID, r.ProjectID, r.Description,
		r.StartTime.UTC(), end, r.Duration,
		r.CreatedAt.UTC(), tags, r.Source, r.ExternalID,
	}
}

func scanPostgresRecord(row pgx.Row) (model.TimeRecord, error) {
	var r model.TimeRecord
	err := row.Scan(&r.ID, &r.OwnerID, &r.ProjectID, &r.Description, &r.StartTime, &r.EndTime,
		&r.Duration, &r.CreatedAt, &r.Tags, &r.Source, &r.ExternalID)
	if err != nil {
		return r, err
	}
	r.StartTime = r.StartTime.UTC()
	r.CreatedAt = r.CreatedAt.UTC()
	if r.EndTime != nil {
		e := r.EndTime.UTC()
		r.EndTime = &e
	}
	return r, nil
}

func mapPostgresError(err error, id string) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return fmt.Errorf("%w: record %s: %s", ErrConflict, id, pgErr.Message)
	}
	return fmt.Errorf("failed to write record %s: %w", id, err)
}
