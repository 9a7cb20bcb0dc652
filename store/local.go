package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Store is the contract shared by the local database, replicated remote
// databases and the staging scratch store. The sync engine only ever talks
// to this interface.
type Store interface {
	LoadTasks(filter *TaskFilter) ([]Task, error)
	GetTask(id string) (*Task, error)
	SaveTask(task Task) error
	SaveTasks(tasks []Task) error
	DeleteTask(id, deletedBy string) error
	PurgeTask(id string) error
	LoadTaskLists() ([]TaskList, error)
	SaveTaskList(list TaskList) error
	LoadListMapping() (map[string]string, error)
	SaveListMapping(mapping map[string]string) error
	LoadRemoteDBs() ([]RemoteDBConfig, error)
	SaveRemoteDBs(configs []RemoteDBConfig) error
	TaskCount() (int, error)
}

// LocalStore is the account-scoped embedded store. One instance per account;
// nothing in it crosses account boundaries.
type LocalStore struct {
	db  *Database
	now func() time.Time
}

// NewLocalStore opens the account database at dbPath.
func NewLocalStore(dbPath string) (*LocalStore, error) {
	db, err := OpenDatabase(dbPath)
	if err != nil {
		return nil, &StoreError{Op: "open", Err: err}
	}
	return &LocalStore{db: db, now: func() time.Time { return time.Now().UTC() }}, nil
}

// NewScratchStore opens an in-memory store with the same schema. The engine
// materialises upstream snapshots here and discards it at job end.
func NewScratchStore() (*LocalStore, error) {
	db, err := OpenScratch()
	if err != nil {
		return nil, &StoreError{Op: "open", Err: err}
	}
	return &LocalStore{db: db, now: func() time.Time { return time.Now().UTC() }}, nil
}

// Close closes the underlying database.
func (s *LocalStore) Close() error {
	return s.db.Close()
}

// DB exposes the underlying database for stats and maintenance.
func (s *LocalStore) DB() *Database {
	return s.db
}

// LoadTasks returns tasks matching filter. Without an explicit order request
// tasks come back ordered by (list, position, created_at); ids are unique.
func (s *LocalStore) LoadTasks(filter *TaskFilter) ([]Task, error) {
	query := `
		SELECT id, title, description, due, status, priority, project,
		       tags_json, notes, dependencies_json, recurrence_rule,
		       created_at, modified_at, completed_at, tasklist_id, position,
		       is_recurring, recurring_task_id, estimated_duration, actual_duration
		FROM tasks
		WHERE 1=1
	`
	var args []interface{}
	query, args = applyTaskFilter(query, args, filter)
	query += " ORDER BY tasklist_id, position, created_at"

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, &StoreError{Op: "LoadTasks", Err: err}
	}
	defer rows.Close()

	tasks, err := scanTasks(rows)
	if err != nil {
		return nil, &StoreError{Op: "LoadTasks", Err: err}
	}
	return tasks, nil
}

func applyTaskFilter(query string, args []interface{}, filter *TaskFilter) (string, []interface{}) {
	if filter == nil {
		return query, args
	}
	if filter.Statuses != nil && len(*filter.Statuses) > 0 {
		placeholders := make([]string, len(*filter.Statuses))
		for i, status := range *filter.Statuses {
			placeholders[i] = "?"
			args = append(args, string(status))
		}
		query += fmt.Sprintf(" AND status IN (%s)", strings.Join(placeholders, ","))
	}
	if filter.TasklistID != "" {
		query += " AND tasklist_id = ?"
		args = append(args, filter.TasklistID)
	}
	if filter.ModifiedSince != nil {
		query += " AND modified_at >= ?"
		args = append(args, fmtTime(*filter.ModifiedSince))
	}
	return query, args
}

// GetTask returns the task with the given id, or ErrNotFound.
func (s *LocalStore) GetTask(id string) (*Task, error) {
	query := `
		SELECT id, title, description, due, status, priority, project,
		       tags_json, notes, dependencies_json, recurrence_rule,
		       created_at, modified_at, completed_at, tasklist_id, position,
		       is_recurring, recurring_task_id, estimated_duration, actual_duration
		FROM tasks WHERE id = ?
	`
	rows, err := s.db.Query(query, id)
	if err != nil {
		return nil, &StoreError{Op: "GetTask", TaskID: id, Err: err}
	}
	defer rows.Close()

	tasks, err := scanTasks(rows)
	if err != nil {
		return nil, &StoreError{Op: "GetTask", TaskID: id, Err: err}
	}
	if len(tasks) == 0 {
		return nil, ErrNotFound
	}
	return &tasks[0], nil
}

// FindTaskByFingerprint returns the non-deleted task whose content hash
// equals fp, or ErrNotFound.
func (s *LocalStore) FindTaskByFingerprint(fp string) (*Task, error) {
	var id string
	err := s.db.QueryRow(
		"SELECT id FROM tasks WHERE fingerprint = ? AND status != ? LIMIT 1",
		fp, string(StatusDeleted),
	).Scan(&id)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, &StoreError{Op: "FindTaskByFingerprint", Err: err}
	}
	return s.GetTask(id)
}

// FindTasksByTitle searches tasks by title, exact matches first.
func (s *LocalStore) FindTasksByTitle(listID, title string) ([]Task, error) {
	query := `
		SELECT id, title, description, due, status, priority, project,
		       tags_json, notes, dependencies_json, recurrence_rule,
		       created_at, modified_at, completed_at, tasklist_id, position,
		       is_recurring, recurring_task_id, estimated_duration, actual_duration
		FROM tasks
		WHERE LOWER(title) LIKE LOWER(?)
	`
	args := []interface{}{"%" + title + "%"}
	if listID != "" {
		query += " AND tasklist_id = ?"
		args = append(args, listID)
	}
	query += `
		ORDER BY CASE WHEN LOWER(title) = LOWER(?) THEN 0 ELSE 1 END, created_at DESC
	`
	args = append(args, title)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, &StoreError{Op: "FindTasksByTitle", Err: err}
	}
	defer rows.Close()

	tasks, err := scanTasks(rows)
	if err != nil {
		return nil, &StoreError{Op: "FindTasksByTitle", Err: err}
	}
	return tasks, nil
}

// SaveTask upserts one task by id in its own transaction.
//
// Semantics:
//   - a zero modified_at is stamped with now
//   - if a concurrent writer advanced modified_at past the caller's read,
//     the save fails with ConflictError
//   - a brand-new task whose fingerprint matches an existing live row is
//     collapsed onto that row instead of inserted (rapid double-submit)
func (s *LocalStore) SaveTask(task Task) error {
	tx, err := s.db.Begin()
	if err != nil {
		return &StoreError{Op: "SaveTask", TaskID: task.ID, Err: err}
	}
	defer tx.Rollback()

	if err := s.saveTaskTx(tx, &task); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return &StoreError{Op: "SaveTask", TaskID: task.ID, Err: err}
	}
	return nil
}

// SaveTasks applies a bulk upsert atomically: either all rows apply or none.
func (s *LocalStore) SaveTasks(tasks []Task) error {
	tx, err := s.db.Begin()
	if err != nil {
		return &StoreError{Op: "SaveTasks", Err: err}
	}
	defer tx.Rollback()

	for i := range tasks {
		if err := s.saveTaskTx(tx, &tasks[i]); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return &StoreError{Op: "SaveTasks", Err: err}
	}
	return nil
}

func (s *LocalStore) saveTaskTx(tx *sql.Tx, task *Task) error {
	now := s.now()
	if task.ID == "" {
		task.ID = uuid.NewString()
	}
	task.Normalize(now)
	if err := task.Validate(); err != nil {
		return err
	}

	if len(task.Dependencies) > 0 {
		deps, err := loadDependencyGraph(tx)
		if err != nil {
			return &StoreError{Op: "SaveTask", TaskID: task.ID, Err: err}
		}
		if err := CheckDependencies(*task, deps); err != nil {
			return err
		}
	}

	var current sql.NullString
	err := tx.QueryRow("SELECT modified_at FROM tasks WHERE id = ?", task.ID).Scan(&current)
	exists := err == nil
	if err != nil && err != sql.ErrNoRows {
		return &StoreError{Op: "SaveTask", TaskID: task.ID, Err: err}
	}

	if exists {
		cur, perr := parseTime(current.String)
		if perr != nil {
			return &StoreError{Op: "SaveTask", TaskID: task.ID, Err: perr}
		}
		// Caller's baseline is the modified_at it read. A zero baseline means
		// "stamp now"; a stale one means someone else wrote in between.
		if !task.ModifiedAt.IsZero() && cur.After(task.ModifiedAt) {
			return &ConflictError{TaskID: task.ID}
		}
	} else {
		// Collapse identical content submitted under a fresh id.
		fp := TaskFingerprint(*task)
		var existingID string
		err := tx.QueryRow(
			"SELECT id FROM tasks WHERE fingerprint = ? AND status != ? LIMIT 1",
			fp, string(StatusDeleted),
		).Scan(&existingID)
		if err == nil {
			task.ID = existingID
			exists = true
		} else if err != sql.ErrNoRows {
			return &StoreError{Op: "SaveTask", TaskID: task.ID, Err: err}
		}
	}

	if task.ModifiedAt.IsZero() {
		task.ModifiedAt = now
	}

	query := `
		INSERT INTO tasks (
			id, title, description, due, status, priority, project,
			tags_json, notes, dependencies_json, recurrence_rule,
			created_at, modified_at, completed_at, tasklist_id, position,
			is_recurring, recurring_task_id, estimated_duration, actual_duration,
			fingerprint
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			description = excluded.description,
			due = excluded.due,
			status = excluded.status,
			priority = excluded.priority,
			project = excluded.project,
			tags_json = excluded.tags_json,
			notes = excluded.notes,
			dependencies_json = excluded.dependencies_json,
			recurrence_rule = excluded.recurrence_rule,
			modified_at = excluded.modified_at,
			completed_at = excluded.completed_at,
			tasklist_id = excluded.tasklist_id,
			position = excluded.position,
			is_recurring = excluded.is_recurring,
			recurring_task_id = excluded.recurring_task_id,
			estimated_duration = excluded.estimated_duration,
			actual_duration = excluded.actual_duration,
			fingerprint = excluded.fingerprint
	`
	_, err = tx.Exec(query,
		task.ID,
		task.Title,
		nullString(task.Description),
		timePtrToNull(task.Due),
		string(task.Status),
		string(task.Priority),
		nullString(task.Project),
		stringsToJSON(task.Tags),
		nullString(task.Notes),
		stringsToJSON(task.Dependencies),
		nullString(task.RecurrenceRule),
		fmtTime(task.CreatedAt),
		fmtTime(task.ModifiedAt),
		timePtrToNull(task.CompletedAt),
		nullString(task.TasklistID),
		nullString(task.Position),
		boolToInt(task.IsRecurring),
		nullString(task.RecurringTaskID),
		intToNull(task.EstimatedDuration),
		intToNull(task.ActualDuration),
		TaskFingerprint(*task),
	)
	if err != nil {
		return &StoreError{Op: "SaveTask", TaskID: task.ID, Err: err}
	}
	return nil
}

// DeleteTask soft-deletes a task: the deletion log entry is appended in the
// same transaction, before the status flip, so the record survives a crash
// mid-deletion. Physical removal happens only after upstream confirms.
func (s *LocalStore) DeleteTask(id, deletedBy string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return &StoreError{Op: "DeleteTask", TaskID: id, Err: err}
	}
	defer tx.Rollback()

	task, err := getTaskTx(tx, id)
	if err == sql.ErrNoRows {
		return ErrNotFound
	}
	if err != nil {
		return &StoreError{Op: "DeleteTask", TaskID: id, Err: err}
	}
	if task.Status == StatusDeleted {
		return nil // already soft-deleted
	}

	now := s.now()
	_, err = tx.Exec(`
		INSERT INTO deletion_log (task_id, title, description, due, status, deleted_at, deleted_by, tasklist_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		task.ID,
		task.Title,
		nullString(task.Description),
		timePtrToNull(task.Due),
		string(task.Status),
		fmtTime(now),
		deletedBy,
		nullString(task.TasklistID),
	)
	if err != nil {
		return &StoreError{Op: "DeleteTask", TaskID: id, Err: err}
	}

	deleted := *task
	deleted.Status = StatusDeleted
	deleted.CompletedAt = nil
	_, err = tx.Exec(`
		UPDATE tasks
		SET status = ?, completed_at = NULL, modified_at = ?, fingerprint = ?
		WHERE id = ?
	`, string(StatusDeleted), fmtTime(now), TaskFingerprint(deleted), id)
	if err != nil {
		return &StoreError{Op: "DeleteTask", TaskID: id, Err: err}
	}
	if err := tx.Commit(); err != nil {
		return &StoreError{Op: "DeleteTask", TaskID: id, Err: err}
	}
	return nil
}

// RekeyTask moves a row to a new id in place, keeping every other column.
// Returns ErrNotFound when no row carries oldID.
func (s *LocalStore) RekeyTask(oldID, newID string) error {
	res, err := s.db.Exec("UPDATE tasks SET id = ? WHERE id = ?", newID, oldID)
	if err != nil {
		return &StoreError{Op: "RekeyTask", TaskID: oldID, Err: err}
	}
	n, err := res.RowsAffected()
	if err != nil {
		return &StoreError{Op: "RekeyTask", TaskID: oldID, Err: err}
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// PurgeTask physically removes a row. Called by the engine once the upstream
// delete has been confirmed; deleting a missing row is not an error.
func (s *LocalStore) PurgeTask(id string) error {
	_, err := s.db.Exec("DELETE FROM tasks WHERE id = ?", id)
	if err != nil {
		return &StoreError{Op: "PurgeTask", TaskID: id, Err: err}
	}
	return nil
}

// LoadTaskLists returns all task lists ordered by title.
func (s *LocalStore) LoadTaskLists() ([]TaskList, error) {
	rows, err := s.db.Query("SELECT id, title, updated, position, etag FROM task_lists ORDER BY title")
	if err != nil {
		return nil, &StoreError{Op: "LoadTaskLists", Err: err}
	}
	defer rows.Close()

	var lists []TaskList
	for rows.Next() {
		var list TaskList
		var updated, position, etag sql.NullString
		if err := rows.Scan(&list.ID, &list.Title, &updated, &position, &etag); err != nil {
			return nil, &StoreError{Op: "LoadTaskLists", Err: err}
		}
		if updated.Valid {
			if t, err := parseTime(updated.String); err == nil {
				list.Updated = t
			}
		}
		list.Position = position.String
		list.ETag = etag.String
		lists = append(lists, list)
	}
	if err := rows.Err(); err != nil {
		return nil, &StoreError{Op: "LoadTaskLists", Err: err}
	}
	return lists, nil
}

// SaveTaskList upserts list metadata; renames preserve the id.
func (s *LocalStore) SaveTaskList(list TaskList) error {
	_, err := s.db.Exec(`
		INSERT INTO task_lists (id, title, updated, position, etag)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			updated = excluded.updated,
			position = excluded.position,
			etag = excluded.etag
	`, list.ID, list.Title, fmtTime(list.Updated), nullString(list.Position), nullString(list.ETag))
	if err != nil {
		return &StoreError{Op: "SaveTaskList", Err: err}
	}
	return nil
}

// LoadListMapping returns the account's list_title -> list_id mapping.
func (s *LocalStore) LoadListMapping() (map[string]string, error) {
	rows, err := s.db.Query("SELECT title, id FROM list_mapping")
	if err != nil {
		return nil, &StoreError{Op: "LoadListMapping", Err: err}
	}
	defer rows.Close()

	mapping := make(map[string]string)
	for rows.Next() {
		var title, id string
		if err := rows.Scan(&title, &id); err != nil {
			return nil, &StoreError{Op: "LoadListMapping", Err: err}
		}
		mapping[title] = id
	}
	if err := rows.Err(); err != nil {
		return nil, &StoreError{Op: "LoadListMapping", Err: err}
	}
	return mapping, nil
}

// SaveListMapping replaces the persisted mapping atomically.
func (s *LocalStore) SaveListMapping(mapping map[string]string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return &StoreError{Op: "SaveListMapping", Err: err}
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM list_mapping"); err != nil {
		return &StoreError{Op: "SaveListMapping", Err: err}
	}
	for title, id := range mapping {
		if _, err := tx.Exec("INSERT INTO list_mapping (title, id) VALUES (?, ?)", title, id); err != nil {
			return &StoreError{Op: "SaveListMapping", Err: err}
		}
	}
	if err := tx.Commit(); err != nil {
		return &StoreError{Op: "SaveListMapping", Err: err}
	}
	return nil
}

// LoadRemoteDBs returns the configured remote databases.
func (s *LocalStore) LoadRemoteDBs() ([]RemoteDBConfig, error) {
	rows, err := s.db.Query(`
		SELECT id, url, name, token, is_active, auto_sync, sync_frequency, last_synced_at
		FROM remote_dbs ORDER BY name, url
	`)
	if err != nil {
		return nil, &StoreError{Op: "LoadRemoteDBs", Err: err}
	}
	defer rows.Close()

	var configs []RemoteDBConfig
	for rows.Next() {
		var cfg RemoteDBConfig
		var name, token, lastSynced sql.NullString
		var isActive, autoSync int
		if err := rows.Scan(&cfg.ID, &cfg.URL, &name, &token, &isActive, &autoSync, &cfg.SyncFrequencyMinutes, &lastSynced); err != nil {
			return nil, &StoreError{Op: "LoadRemoteDBs", Err: err}
		}
		cfg.Name = name.String
		cfg.Token = token.String
		cfg.IsActive = isActive == 1
		cfg.AutoSync = autoSync == 1
		if lastSynced.Valid {
			if t, err := parseTime(lastSynced.String); err == nil {
				cfg.LastSyncedAt = &t
			}
		}
		configs = append(configs, cfg)
	}
	if err := rows.Err(); err != nil {
		return nil, &StoreError{Op: "LoadRemoteDBs", Err: err}
	}
	return configs, nil
}

// SaveRemoteDBs replaces the persisted remote database configs atomically.
func (s *LocalStore) SaveRemoteDBs(configs []RemoteDBConfig) error {
	tx, err := s.db.Begin()
	if err != nil {
		return &StoreError{Op: "SaveRemoteDBs", Err: err}
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM remote_dbs"); err != nil {
		return &StoreError{Op: "SaveRemoteDBs", Err: err}
	}
	for _, cfg := range configs {
		if cfg.ID == "" {
			cfg.ID = uuid.NewString()
		}
		_, err := tx.Exec(`
			INSERT INTO remote_dbs (id, url, name, token, is_active, auto_sync, sync_frequency, last_synced_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`,
			cfg.ID, cfg.URL, nullString(cfg.Name), nullString(cfg.Token),
			boolToInt(cfg.IsActive), boolToInt(cfg.AutoSync),
			cfg.SyncFrequencyMinutes, timePtrToNull(cfg.LastSyncedAt),
		)
		if err != nil {
			return &StoreError{Op: "SaveRemoteDBs", Err: err}
		}
	}
	if err := tx.Commit(); err != nil {
		return &StoreError{Op: "SaveRemoteDBs", Err: err}
	}
	return nil
}

// TaskCount returns the number of task rows.
func (s *LocalStore) TaskCount() (int, error) {
	var count int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM tasks").Scan(&count); err != nil {
		return 0, &StoreError{Op: "TaskCount", Err: err}
	}
	return count, nil
}

// DeletionEntries returns deletion log entries, newest first, optionally
// filtered by task id.
func (s *LocalStore) DeletionEntries(taskID string) ([]DeletionEntry, error) {
	query := `
		SELECT seq, task_id, title, description, due, status, deleted_at, deleted_by, tasklist_id
		FROM deletion_log
	`
	var args []interface{}
	if taskID != "" {
		query += " WHERE task_id = ?"
		args = append(args, taskID)
	}
	query += " ORDER BY seq DESC"

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, &StoreError{Op: "DeletionEntries", Err: err}
	}
	defer rows.Close()

	var entries []DeletionEntry
	for rows.Next() {
		var e DeletionEntry
		var description, due, tasklistID sql.NullString
		var status, deletedAt string
		if err := rows.Scan(&e.Seq, &e.TaskID, &e.Title, &description, &due, &status, &deletedAt, &e.DeletedBy, &tasklistID); err != nil {
			return nil, &StoreError{Op: "DeletionEntries", Err: err}
		}
		e.Description = description.String
		e.Status = Status(status)
		e.TasklistID = tasklistID.String
		if due.Valid {
			if t, err := parseTime(due.String); err == nil {
				e.Due = &t
			}
		}
		if t, err := parseTime(deletedAt); err == nil {
			e.DeletedAt = t
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, &StoreError{Op: "DeletionEntries", Err: err}
	}
	return entries, nil
}

// RestoreTask rebuilds a task from its most recent deletion log entry and
// saves it. Pushing the restored task upstream is the caller's decision.
func (s *LocalStore) RestoreTask(taskID string) (*Task, error) {
	entries, err := s.DeletionEntries(taskID)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, ErrNotFound
	}
	e := entries[0] // newest first

	task := Task{
		ID:          e.TaskID,
		Title:       e.Title,
		Description: e.Description,
		Due:         e.Due,
		Status:      e.Status,
		TasklistID:  e.TasklistID,
	}
	if task.Status == StatusDeleted || !task.Status.Valid() {
		task.Status = StatusPending
	}
	if err := s.SaveTask(task); err != nil {
		return nil, err
	}
	restored, err := s.GetTask(task.ID)
	if err != nil {
		return nil, err
	}
	return restored, nil
}

// helpers

func getTaskTx(tx *sql.Tx, id string) (*Task, error) {
	row := tx.QueryRow(`
		SELECT id, title, description, due, status, priority, project,
		       tags_json, notes, dependencies_json, recurrence_rule,
		       created_at, modified_at, completed_at, tasklist_id, position,
		       is_recurring, recurring_task_id, estimated_duration, actual_duration
		FROM tasks WHERE id = ?
	`, id)
	return scanTaskRow(row)
}

func loadDependencyGraph(tx *sql.Tx) (map[string][]string, error) {
	rows, err := tx.Query("SELECT id, dependencies_json FROM tasks")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	graph := make(map[string][]string)
	for rows.Next() {
		var id string
		var depsJSON sql.NullString
		if err := rows.Scan(&id, &depsJSON); err != nil {
			return nil, err
		}
		graph[id] = jsonToStrings(depsJSON)
	}
	return graph, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanTaskRow(row rowScanner) (*Task, error) {
	var task Task
	var description, due, project, tagsJSON, notes, depsJSON sql.NullString
	var recurrence, completedAt, tasklistID, position, recurringID sql.NullString
	var createdAt, modifiedAt, status, priority string
	var isRecurring int
	var estimated, actual sql.NullInt64

	err := row.Scan(
		&task.ID, &task.Title, &description, &due, &status, &priority, &project,
		&tagsJSON, &notes, &depsJSON, &recurrence,
		&createdAt, &modifiedAt, &completedAt, &tasklistID, &position,
		&isRecurring, &recurringID, &estimated, &actual,
	)
	if err != nil {
		return nil, err
	}

	task.Description = description.String
	task.Status = Status(status)
	task.Priority = Priority(priority)
	task.Project = project.String
	task.Tags = jsonToStrings(tagsJSON)
	task.Notes = notes.String
	task.Dependencies = jsonToStrings(depsJSON)
	task.RecurrenceRule = recurrence.String
	task.TasklistID = tasklistID.String
	task.Position = position.String
	task.IsRecurring = isRecurring == 1
	task.RecurringTaskID = recurringID.String
	if estimated.Valid {
		task.EstimatedDuration = int(estimated.Int64)
	}
	if actual.Valid {
		task.ActualDuration = int(actual.Int64)
	}

	if due.Valid {
		if t, err := parseTime(due.String); err == nil {
			task.Due = &t
		}
	}
	if t, err := parseTime(createdAt); err == nil {
		task.CreatedAt = t
	}
	if t, err := parseTime(modifiedAt); err == nil {
		task.ModifiedAt = t
	}
	if completedAt.Valid {
		if t, err := parseTime(completedAt.String); err == nil {
			task.CompletedAt = &t
		}
	}
	return &task, nil
}

func scanTasks(rows *sql.Rows) ([]Task, error) {
	var tasks []Task
	for rows.Next() {
		task, err := scanTaskRow(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, *task)
	}
	return tasks, rows.Err()
}

// fmtTime emits the ISO-8601 UTC string form used throughout the schema.
func fmtTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func timePtrToNull(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: fmtTime(*t), Valid: true}
}

func intToNull(n int) sql.NullInt64 {
	if n == 0 {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(n), Valid: true}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func stringsToJSON(values []string) sql.NullString {
	if len(values) == 0 {
		return sql.NullString{}
	}
	data, err := json.Marshal(values)
	if err != nil {
		return sql.NullString{}
	}
	return sql.NullString{String: string(data), Valid: true}
}

func jsonToStrings(v sql.NullString) []string {
	if !v.Valid || v.String == "" {
		return nil
	}
	var values []string
	if err := json.Unmarshal([]byte(v.String), &values); err != nil {
		return nil
	}
	return values
}
