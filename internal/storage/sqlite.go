package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/Tiliavir/boring-time-tracker/internal/model"
)

// SQLiteStore keeps records, and key/value items, in a single SQLite file.
type SQLiteStore struct {
	db *sql.DB
}

const recordColumns = `id, owner_id, project_id, description, start_time, end_time,
	duration, created_at, tags, source, external_id`

// NewSQLiteStore opens (creating if needed) the database at path and runs
// pending migrations.
func NewSQLiteStore(ctx context.Context, path string) (*SQLiteStore, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite works best with a single connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) migrate(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, createSchemaMigrationsTableSQL); err != nil {
		return fmt.Errorf("failed to create schema_migrations table: %w", err)
	}

	var currentVersion int
	if err := tx.QueryRowContext(ctx, getCurrentVersionSQL).Scan(&currentVersion); err != nil {
		return fmt.Errorf("failed to get current schema version: %w", err)
	}

	migrations := []struct {
		version int
		sql     []string
	}{
		{
			version: 1,
			sql: []string{
				createTimeRecordsTableSQL,
				createOwnerStartIndexSQL,
				createProjectIndexSQL,
				createOneRunningIndexSQL,
			},
		},
		{
			version: 2,
			sql: []string{
				createKVItemsTableSQL,
				createExternalIDIndexSQL,
			},
		},
	}

	for _, migration := range migrations {
		if currentVersion >= migration.version {
			continue
		}
		for _, statement := range migration.sql {
			if _, err := tx.ExecContext(ctx, statement); err != nil {
				return fmt.Errorf("failed to execute migration %d: %w", migration.version, err)
			}
		}
		if _, err := tx.ExecContext(ctx, insertMigrationSQL, migration.version); err != nil {
			return fmt.Errorf("failed to record migration %d: %w", migration.version, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit migration transaction: %w", err)
	}
	return nil
}

// SchemaVersion returns the highest applied migration.
func (s *SQLiteStore) SchemaVersion(ctx context.Context) (int, error) {
	var v int
	if err := s.db.QueryRowContext(ctx, getCurrentVersionSQL).Scan(&v); err != nil {
		return 0, fmt.Errorf("failed to get schema version: %w", err)
	}
	return v, nil
}

// Insert stores a new record.
func (s *SQLiteStore) Insert(ctx context.Context, r model.TimeRecord) (model.TimeRecord, error) {
	args, err := recordArgs(r)
	if err != nil {
		return model.TimeRecord{}, err
	}
	query := `INSERT INTO time_records (` + recordColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return model.TimeRecord{}, mapSQLiteError(err, r.ID)
	}
	return r.Clone(), nil
}

// Get returns the record with the given id.
func (s *SQLiteStore) Get(ctx context.Context, id string) (model.TimeRecord, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+recordColumns+` FROM time_records WHERE id = ?`, id)
	r, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.TimeRecord{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return r, err
}

// Select returns the records matching q, most recent start first.
func (s *SQLiteStore) Select(ctx context.Context, q Query) ([]model.TimeRecord, error) {
	var where []string
	var args []any
	if q.OwnerID != "" {
		where = append(where, "owner_id = ?")
		args = append(args, q.OwnerID)
	}
	if q.ProjectID != "" {
		where = append(where, "project_id = ?")
		args = append(args, q.ProjectID)
	}
	if q.ExternalID != "" {
		where = append(where, "external_id = ?")
		args = append(args, q.ExternalID)
	}
	if q.StartFrom != nil {
		where = append(where, "start_time >= ?")
		args = append(args, formatSQLiteTime(*q.StartFrom))
	}
	if q.StartTo != nil {
		where = append(where, "start_time <= ?")
		args = append(args, formatSQLiteTime(*q.StartTo))
	}
	if q.RunningOnly {
		where = append(where, "end_time IS NULL")
	}
	if len(q.Tags) > 0 {
		want, err := json.Marshal(q.Tags)
		if err != nil {
			return nil, fmt.Errorf("failed to encode tag filter: %w", err)
		}
		where = append(where, `NOT EXISTS (
			SELECT 1 FROM json_each(?) AS want
			WHERE want.value NOT IN (SELECT value FROM json_each(time_records.tags)))`)
		args = append(args, string(want))
	}

	query := `SELECT ` + recordColumns + ` FROM time_records`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY start_time DESC, created_at ASC, id ASC"
	if q.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, q.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query records: %w", err)
	}
	defer rows.Close()

	var out []model.TimeRecord
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate records: %w", err)
	}
	return out, nil
}

// Replace overwrites every column of the record with r.ID.
func (s *SQLiteStore) Replace(ctx context.Context, r model.TimeRecord) (model.TimeRecord, error) {
	args, err := recordArgs(r)
	if err != nil {
		return model.TimeRecord{}, err
	}
	query := `UPDATE time_records SET
			owner_id = ?, project_id = ?, description = ?, start_time = ?, end_time = ?,
			duration = ?, created_at = ?, tags = ?, source = ?, external_id = ?
		WHERE id = ?`
	result, err := s.db.ExecContext(ctx, query, append(args[1:], r.ID)...)
	if err != nil {
		return model.TimeRecord{}, mapSQLiteError(err, r.ID)
	}
	if err := checkRowsAffected(result, r.ID); err != nil {
		return model.TimeRecord{}, err
	}
	return r.Clone(), nil
}

// Delete removes the record with the given id.
func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM time_records WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete record: %w", err)
	}
	return checkRowsAffected(result, id)
}

// GetItem returns the raw value stored under key.
func (s *SQLiteStore) GetItem(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM kv_items WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read item %s: %w", key, err)
	}
	return value, true, nil
}

// SetItem stores value under key, replacing any previous value.
func (s *SQLiteStore) SetItem(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO kv_items (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, formatSQLiteTime(time.Now()))
	if err != nil {
		return fmt.Errorf("failed to write item %s: %w", key, err)
	}
	return nil
}

// RemoveItem deletes key. Removing an absent key is not an error.
func (s *SQLiteStore) RemoveItem(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM kv_items WHERE key = ?`, key); err != nil {
		return fmt.Errorf("failed to remove item %s: %w", key, err)
	}
	return nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func formatSQLiteTime(t time.Time) string {
	return t.UTC().Format(sqliteTimeLayout)
}

func parseSQLiteTime(s string) (time.Time, error) {
	t, err := time.Parse(sqliteTimeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse stored time %q: %w", s, err)
	}
	return t, nil
}

// recordArgs returns r's column values in recordColumns order.
func recordArgs(r model.TimeRecord) ([]any, error) {
	tags := r.Tags
	if tags == nil {
		tags = []string{}
	}
	tagsJSON, err := json.Marshal(tags)
	if err != nil {
		return nil, fmt.Errorf("failed to encode tags: %w", err)
	}

	var end, duration any
	if r.EndTime != nil {
		end = formatSQLiteTime(*r.EndTime)
	}
	if r.Duration != nil {
		duration = *r.Duration
	}
	var description any
	if r.Description != nil {
		description = *r.Description
	}
	return []any{
		r.ID, r.OwnerID, r.ProjectID, description,
		formatSQLiteTime(r.StartTime), end, duration,
		formatSQLiteTime(r.CreatedAt), string(tagsJSON), r.Source, r.ExternalID,
	}, nil
}

func scanRecord(scanner interface {
	Scan(dest ...any) error
}) (model.TimeRecord, error) {
	var (
		r                    model.TimeRecord
		description, end     sql.NullString
		duration             sql.NullInt64
		start, created, tags string
	)
	err := scanner.Scan(&r.ID, &r.OwnerID, &r.ProjectID, &description, &start, &end,
		&duration, &created, &tags, &r.Source, &r.ExternalID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return r, err
		}
		return r, fmt.Errorf("failed to scan record: %w", err)
	}

	if r.StartTime, err = parseSQLiteTime(start); err != nil {
		return r, err
	}
	if r.CreatedAt, err = parseSQLiteTime(created); err != nil {
		return r, err
	}
	if end.Valid {
		e, err := parseSQLiteTime(end.String)
		if err != nil {
			return r, err
		}
		r.EndTime = &e
	}
	if description.Valid {
		d := description.String
		r.Description = &d
	}
	if duration.Valid {
		d := duration.Int64
		r.Duration = &d
	}
	if err := json.Unmarshal([]byte(tags), &r.Tags); err != nil {
		return r, fmt.Errorf("failed to decode tags of %s: %w", r.ID, err)
	}
	return r, nil
}

func checkRowsAffected(result sql.Result, id string) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

// mapSQLiteError turns constraint violations into ErrConflict.
func mapSQLiteError(err error, id string) error {
	var se *sqlite.Error
	if errors.As(err, &se) && se.Code()&0xff == sqlite3.SQLITE_CONSTRAINT {
		return fmt.Errorf("%w: record %s: %v", ErrConflict, id, err)
	}
	return fmt.Errorf("failed to write record %s: %w", id, err)
}
