package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver
)

// Database wraps sql.DB with schema management helpers.
type Database struct {
	*sql.DB
	path string
}

// OpenDatabase opens (creating if necessary) the account database at path
// and brings the schema up to date.
func OpenDatabase(path string) (*Database, error) {
	if path == "" {
		return nil, fmt.Errorf("database path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	database := &Database{DB: db, path: path}
	if err := database.initializeSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return database, nil
}

// OpenScratch opens a throw-away in-memory database with the same schema.
// Used as the staging store for upstream snapshots; discarded at job end.
func OpenScratch() (*Database, error) {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to open scratch database: %w", err)
	}
	// An in-memory database exists per connection; the pool must not open
	// a second one.
	db.SetMaxOpenConns(1)

	database := &Database{DB: db, path: ":memory:"}
	if err := database.initializeSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize scratch schema: %w", err)
	}
	return database, nil
}

func (db *Database) initializeSchema() error {
	for _, pragma := range PragmaStatements() {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute pragma %q: %w", pragma, err)
		}
	}
	for _, schema := range AllTableSchemas() {
		if _, err := db.Exec(schema); err != nil {
			return fmt.Errorf("failed to create table: %w", err)
		}
	}
	for _, index := range AllIndexes() {
		if _, err := db.Exec(index); err != nil {
			return fmt.Errorf("failed to create index: %w", err)
		}
	}
	return db.recordSchemaVersion()
}

func (db *Database) recordSchemaVersion() error {
	var count int
	err := db.QueryRow("SELECT COUNT(*) FROM schema_version WHERE version = ?", SchemaVersion).Scan(&count)
	if err != nil {
		return fmt.Errorf("failed to check schema version: %w", err)
	}
	if count > 0 {
		return nil
	}
	_, err = db.Exec(
		"INSERT INTO schema_version (version, applied_at) VALUES (?, ?)",
		SchemaVersion,
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to insert schema version: %w", err)
	}
	return nil
}

// GetSchemaVersion returns the highest schema version recorded.
func (db *Database) GetSchemaVersion() (int, error) {
	var version int
	err := db.QueryRow("SELECT MAX(version) FROM schema_version").Scan(&version)
	if err != nil {
		return 0, fmt.Errorf("failed to get schema version: %w", err)
	}
	return version, nil
}

// Path returns the filesystem path of the database file.
func (db *Database) Path() string {
	return db.path
}

// Vacuum reclaims free pages.
func (db *Database) Vacuum() error {
	_, err := db.Exec("VACUUM")
	return err
}

// DatabaseStats holds basic statistics about an account database.
type DatabaseStats struct {
	TaskCount    int
	ListCount    int
	DeletionLog  int
	RemoteDBs    int
	DatabaseSize int64 // bytes; zero for in-memory databases
}

// GetStats collects row counts and the database file size.
func (db *Database) GetStats() (DatabaseStats, error) {
	stats := DatabaseStats{}

	if err := db.QueryRow("SELECT COUNT(*) FROM tasks").Scan(&stats.TaskCount); err != nil {
		return stats, fmt.Errorf("failed to count tasks: %w", err)
	}
	if err := db.QueryRow("SELECT COUNT(*) FROM task_lists").Scan(&stats.ListCount); err != nil {
		return stats, fmt.Errorf("failed to count lists: %w", err)
	}
	if err := db.QueryRow("SELECT COUNT(*) FROM deletion_log").Scan(&stats.DeletionLog); err != nil {
		return stats, fmt.Errorf("failed to count deletion log entries: %w", err)
	}
	if err := db.QueryRow("SELECT COUNT(*) FROM remote_dbs").Scan(&stats.RemoteDBs); err != nil {
		return stats, fmt.Errorf("failed to count remote dbs: %w", err)
	}

	if db.path != ":memory:" {
		if info, err := os.Stat(db.path); err == nil {
			stats.DatabaseSize = info.Size()
		}
	}
	return stats, nil
}

// String returns a human-readable representation of the statistics.
func (s DatabaseStats) String() string {
	sizeMB := float64(s.DatabaseSize) / (1024 * 1024)
	return fmt.Sprintf(
		"Tasks: %d | Lists: %d | Deletions: %d | Remotes: %d | Size: %.2f MB",
		s.TaskCount, s.ListCount, s.DeletionLog, s.RemoteDBs, sizeMB,
	)
}
