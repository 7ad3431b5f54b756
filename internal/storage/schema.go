package storage

// Schema definitions for the SQLite database

const (
	// Schema version for migrations
	CurrentSchemaVersion = 2

	// sqliteTimeLayout is fixed-width so stored UTC timestamps sort lexically.
	sqliteTimeLayout = "2006-01-02T15:04:05.000000000Z"

	createTimeRecordsTableSQL = `
		CREATE TABLE IF NOT EXISTS time_records (
			id TEXT PRIMARY KEY,
			owner_id TEXT NOT NULL,
			project_id TEXT NOT NULL,
			description TEXT,
			start_time TEXT NOT NULL,
			end_time TEXT,
			duration INTEGER,
			created_at TEXT NOT NULL,
			tags TEXT NOT NULL DEFAULT '[]',
			source TEXT NOT NULL DEFAULT '',
			external_id TEXT NOT NULL DEFAULT ''
		);
	`

	createSchemaMigrationsTableSQL = `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
	`

	createOwnerStartIndexSQL = `
		CREATE INDEX IF NOT EXISTS idx_time_records_owner_start ON time_records(owner_id, start_time);
	`

	createProjectIndexSQL = `
		CREATE INDEX IF NOT EXISTS idx_time_records_project ON time_records(project_id);
	`

	// At most one running record per owner.
	createOneRunningIndexSQL = `
		CREATE UNIQUE INDEX IF NOT EXISTS idx_time_records_one_running
			ON time_records(owner_id) WHERE end_time IS NULL;
	`

	createExternalIDIndexSQL = `
		CREATE INDEX IF NOT EXISTS idx_time_records_external_id
			ON time_records(external_id) WHERE external_id <> '';
	`

	createKVItemsTableSQL = `
		CREATE TABLE IF NOT EXISTS kv_items (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);
	`

	// Schema migration queries
	insertMigrationSQL = `
		INSERT INTO schema_migrations (version) VALUES (?);
	`

	getCurrentVersionSQL = `
		SELECT COALESCE(MAX(version), 0) FROM schema_migrations;
	`
)
