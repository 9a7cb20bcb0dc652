package store

// SchemaVersion is bumped on any incompatible schema change. RemoteStore
// refuses to talk to a peer recording a different version.
const SchemaVersion = 1

// TasksTableSQL creates the main tasks table. Timestamps are ISO-8601 UTC
// strings; list-valued columns hold compact JSON encodings.
const TasksTableSQL = `
CREATE TABLE IF NOT EXISTS tasks (
    id TEXT PRIMARY KEY,
    title TEXT NOT NULL,
    description TEXT,
    due TEXT,
    status TEXT NOT NULL,
    priority TEXT NOT NULL DEFAULT 'medium',
    project TEXT,
    tags_json TEXT,
    notes TEXT,
    dependencies_json TEXT,
    recurrence_rule TEXT,
    created_at TEXT NOT NULL,
    modified_at TEXT NOT NULL,
    completed_at TEXT,
    tasklist_id TEXT,
    position TEXT,
    is_recurring INTEGER NOT NULL DEFAULT 0,
    recurring_task_id TEXT,
    estimated_duration INTEGER,
    actual_duration INTEGER,
    fingerprint TEXT NOT NULL
);
`

// TaskListsTableSQL creates the task list metadata table.
const TaskListsTableSQL = `
CREATE TABLE IF NOT EXISTS task_lists (
    id TEXT PRIMARY KEY,
    title TEXT NOT NULL,
    updated TEXT,
    position TEXT,
    etag TEXT
);
`

// ListMappingTableSQL ties a human list title to the upstream list id.
const ListMappingTableSQL = `
CREATE TABLE IF NOT EXISTS list_mapping (
    title TEXT PRIMARY KEY,
    id TEXT NOT NULL
);
`

// RemoteDBsTableSQL persists the replicated remote database configs.
const RemoteDBsTableSQL = `
CREATE TABLE IF NOT EXISTS remote_dbs (
    id TEXT PRIMARY KEY,
    url TEXT NOT NULL,
    name TEXT,
    token TEXT,
    is_active INTEGER NOT NULL DEFAULT 1,
    auto_sync INTEGER NOT NULL DEFAULT 0,
    sync_frequency INTEGER NOT NULL DEFAULT 0,
    last_synced_at TEXT
);
`

// DeletionLogTableSQL is append-only: rows are inserted, never updated.
const DeletionLogTableSQL = `
CREATE TABLE IF NOT EXISTS deletion_log (
    seq INTEGER PRIMARY KEY AUTOINCREMENT,
    task_id TEXT NOT NULL,
    title TEXT NOT NULL,
    description TEXT,
    due TEXT,
    status TEXT NOT NULL,
    deleted_at TEXT NOT NULL,
    deleted_by TEXT NOT NULL,
    tasklist_id TEXT
);
`

// SchemaVersionTableSQL tracks applied schema versions for migrations.
const SchemaVersionTableSQL = `
CREATE TABLE IF NOT EXISTS schema_version (
    version INTEGER PRIMARY KEY,
    applied_at TEXT NOT NULL
);
`

// TasksIndexesSQL creates indexes for the common query paths: overdue scans
// on (status, due), per-list ordering, and fingerprint dedup lookups.
const TasksIndexesSQL = `
CREATE INDEX IF NOT EXISTS idx_tasks_status_due ON tasks(status, due);
CREATE INDEX IF NOT EXISTS idx_tasks_tasklist ON tasks(tasklist_id, position, created_at);
CREATE INDEX IF NOT EXISTS idx_tasks_modified ON tasks(modified_at);
CREATE INDEX IF NOT EXISTS idx_tasks_fingerprint ON tasks(fingerprint);
`

// DeletionLogIndexesSQL supports restore lookups by task id.
const DeletionLogIndexesSQL = `
CREATE INDEX IF NOT EXISTS idx_deletion_log_task ON deletion_log(task_id, seq);
`

// AllTableSchemas returns all table creation statements in order.
func AllTableSchemas() []string {
	return []string{
		SchemaVersionTableSQL,
		TasksTableSQL,
		TaskListsTableSQL,
		ListMappingTableSQL,
		RemoteDBsTableSQL,
		DeletionLogTableSQL,
	}
}

// AllIndexes returns all index creation statements.
func AllIndexes() []string {
	return []string{
		TasksIndexesSQL,
		DeletionLogIndexesSQL,
	}
}

// PragmaStatements returns pragma statements to execute on connection.
func PragmaStatements() []string {
	return []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
	}
}
