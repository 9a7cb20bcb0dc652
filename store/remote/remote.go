// Package remote implements the store contract over a libSQL/HTTP wire.
// The remote peer speaks the same SQL dialect and schema as the local
// store; statements travel as hrana pipeline requests over an
// authenticated HTTPS tunnel.
package remote

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"gtasksync/store"
)

const (
	pipelinePath = "/v2/pipeline"

	backoffBase = 1 * time.Second
	backoffCap  = 30 * time.Second
	maxAttempts = 5
)

// Config describes one remote database endpoint.
type Config struct {
	URL   string
	Token string

	// HTTPClient overrides the default client, mainly for tests.
	HTTPClient *http.Client

	// Sleep overrides the back-off sleeper, mainly for tests.
	Sleep func(time.Duration)
}

// RemoteStore implements store.Store against a libSQL/HTTP endpoint.
type RemoteStore struct {
	url    string
	token  string
	client *http.Client
	sleep  func(time.Duration)
	now    func() time.Time
}

// New builds a RemoteStore. No I/O happens until Connect or the first
// operation.
func New(cfg Config) (*RemoteStore, error) {
	if cfg.URL == "" {
		return nil, &store.ValidationError{Field: "url", Message: "remote database URL is required"}
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	sleep := cfg.Sleep
	if sleep == nil {
		sleep = time.Sleep
	}
	return &RemoteStore{
		url:    strings.TrimRight(cfg.URL, "/"),
		token:  cfg.Token,
		client: client,
		sleep:  sleep,
		now:    func() time.Time { return time.Now().UTC() },
	}, nil
}

// Connect creates the schema if missing and verifies the schema version.
// A version mismatch is fatal: the peer must be migrated, not retried.
func (r *RemoteStore) Connect() error {
	stmts := make([]stmt, 0, 12)
	for _, schema := range store.AllTableSchemas() {
		stmts = append(stmts, stmt{SQL: schema})
	}
	for _, index := range store.AllIndexes() {
		for _, line := range splitStatements(index) {
			stmts = append(stmts, stmt{SQL: line})
		}
	}
	if _, err := r.exec("Connect", stmts); err != nil {
		return err
	}

	res, err := r.queryOne("Connect", "SELECT COALESCE(MAX(version), 0) FROM schema_version", nil)
	if err != nil {
		return err
	}
	got := 0
	if len(res.Rows) > 0 && len(res.Rows[0]) > 0 {
		got = valueInt(res.Rows[0][0])
	}
	switch got {
	case store.SchemaVersion:
		return nil
	case 0:
		_, err := r.exec("Connect", []stmt{{
			SQL:  "INSERT INTO schema_version (version, applied_at) VALUES (?, ?)",
			Args: []arg{argInt(store.SchemaVersion), argText(fmtTime(r.now()))},
		}})
		return err
	default:
		return &store.SchemaMismatchError{Want: store.SchemaVersion, Got: got}
	}
}

// --- store.Store implementation ---

const taskColumns = `id, title, description, due, status, priority, project,
	tags_json, notes, dependencies_json, recurrence_rule,
	created_at, modified_at, completed_at, tasklist_id, position,
	is_recurring, recurring_task_id, estimated_duration, actual_duration`

// LoadTasks returns tasks matching filter in (list, position, created_at) order.
func (r *RemoteStore) LoadTasks(filter *store.TaskFilter) ([]store.Task, error) {
	sql := "SELECT " + taskColumns + " FROM tasks WHERE 1=1"
	var args []arg
	if filter != nil {
		if filter.Statuses != nil && len(*filter.Statuses) > 0 {
			placeholders := make([]string, len(*filter.Statuses))
			for i, status := range *filter.Statuses {
				placeholders[i] = "?"
				args = append(args, argText(string(status)))
			}
			sql += fmt.Sprintf(" AND status IN (%s)", strings.Join(placeholders, ","))
		}
		if filter.TasklistID != "" {
			sql += " AND tasklist_id = ?"
			args = append(args, argText(filter.TasklistID))
		}
		if filter.ModifiedSince != nil {
			sql += " AND modified_at >= ?"
			args = append(args, argText(fmtTime(*filter.ModifiedSince)))
		}
	}
	sql += " ORDER BY tasklist_id, position, created_at"

	res, err := r.queryOne("LoadTasks", sql, args)
	if err != nil {
		return nil, err
	}
	tasks := make([]store.Task, 0, len(res.Rows))
	for _, row := range res.Rows {
		tasks = append(tasks, taskFromRow(row))
	}
	return tasks, nil
}

// GetTask returns one task by id, or store.ErrNotFound.
func (r *RemoteStore) GetTask(id string) (*store.Task, error) {
	res, err := r.queryOne("GetTask", "SELECT "+taskColumns+" FROM tasks WHERE id = ?", []arg{argText(id)})
	if err != nil {
		return nil, err
	}
	if len(res.Rows) == 0 {
		return nil, store.ErrNotFound
	}
	task := taskFromRow(res.Rows[0])
	return &task, nil
}

// SaveTask upserts one task.
func (r *RemoteStore) SaveTask(task store.Task) error {
	return r.SaveTasks([]store.Task{task})
}

// SaveTasks upserts tasks in one remote transaction. The save semantics
// match the local store: a stored modified_at newer than the caller's
// baseline fails with ConflictError, and a fresh id whose content matches an
// existing live row collapses onto that row.
func (r *RemoteStore) SaveTasks(tasks []store.Task) error {
	if len(tasks) == 0 {
		return nil
	}
	now := r.now()
	prepared := make([]store.Task, 0, len(tasks))
	for i := range tasks {
		task := tasks[i]
		if task.ID == "" {
			task.ID = uuid.NewString()
		}
		task.Normalize(now)
		if err := task.Validate(); err != nil {
			return err
		}
		prepared = append(prepared, task)
	}

	probes := make([]stmt, 0, len(prepared)*2)
	for _, task := range prepared {
		probes = append(probes, stmt{
			SQL:  "SELECT modified_at FROM tasks WHERE id = ?",
			Args: []arg{argText(task.ID)},
		})
		probes = append(probes, stmt{
			SQL:  "SELECT id FROM tasks WHERE fingerprint = ? AND status != ? LIMIT 1",
			Args: []arg{argText(store.TaskFingerprint(task)), argText(string(store.StatusDeleted))},
		})
	}
	results, err := r.exec("SaveTasks", probes)
	if err != nil {
		return err
	}
	if len(results) != len(prepared)*2 {
		return &store.StoreError{Op: "SaveTasks", Err: fmt.Errorf("probe returned %d results, want %d", len(results), len(prepared)*2)}
	}

	stmts := make([]stmt, 0, len(prepared))
	for i := range prepared {
		task := &prepared[i]
		byID, byFP := results[i*2], results[i*2+1]
		if len(byID.Rows) > 0 {
			cur, perr := parseTime(valueText(byID.Rows[0][0]))
			if perr != nil {
				return &store.StoreError{Op: "SaveTasks", TaskID: task.ID, Err: perr}
			}
			if !task.ModifiedAt.IsZero() && cur.After(task.ModifiedAt) {
				return &store.ConflictError{TaskID: task.ID}
			}
		} else if len(byFP.Rows) > 0 {
			task.ID = valueText(byFP.Rows[0][0])
		}
		if task.ModifiedAt.IsZero() {
			task.ModifiedAt = now
		}
		stmts = append(stmts, upsertTaskStmt(*task))
	}
	_, err = r.exec("SaveTasks", wrapTx(stmts))
	return err
}

// DeleteTask soft-deletes: deletion log entry first, then the status flip,
// in one remote transaction.
func (r *RemoteStore) DeleteTask(id, deletedBy string) error {
	task, err := r.GetTask(id)
	if err != nil {
		return err
	}
	if task.Status == store.StatusDeleted {
		return nil
	}
	now := r.now()
	deleted := *task
	deleted.Status = store.StatusDeleted
	deleted.CompletedAt = nil

	stmts := []stmt{
		{
			SQL: `INSERT INTO deletion_log (task_id, title, description, due, status, deleted_at, deleted_by, tasklist_id)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			Args: []arg{
				argText(task.ID), argText(task.Title), argNullText(task.Description),
				argTimePtr(task.Due), argText(string(task.Status)), argText(fmtTime(now)),
				argText(deletedBy), argNullText(task.TasklistID),
			},
		},
		{
			SQL: "UPDATE tasks SET status = ?, completed_at = NULL, modified_at = ?, fingerprint = ? WHERE id = ?",
			Args: []arg{
				argText(string(store.StatusDeleted)), argText(fmtTime(now)),
				argText(store.TaskFingerprint(deleted)), argText(id),
			},
		},
	}
	_, err = r.exec("DeleteTask", wrapTx(stmts))
	return err
}

// PurgeTask physically removes a row; missing rows are not an error.
func (r *RemoteStore) PurgeTask(id string) error {
	_, err := r.exec("PurgeTask", []stmt{{SQL: "DELETE FROM tasks WHERE id = ?", Args: []arg{argText(id)}}})
	return err
}

// LoadTaskLists returns all task lists ordered by title.
func (r *RemoteStore) LoadTaskLists() ([]store.TaskList, error) {
	res, err := r.queryOne("LoadTaskLists", "SELECT id, title, updated, position, etag FROM task_lists ORDER BY title", nil)
	if err != nil {
		return nil, err
	}
	var lists []store.TaskList
	for _, row := range res.Rows {
		list := store.TaskList{
			ID:       valueText(row[0]),
			Title:    valueText(row[1]),
			Position: valueText(row[3]),
			ETag:     valueText(row[4]),
		}
		if t, err := parseTime(valueText(row[2])); err == nil {
			list.Updated = t
		}
		lists = append(lists, list)
	}
	return lists, nil
}

// SaveTaskList upserts list metadata.
func (r *RemoteStore) SaveTaskList(list store.TaskList) error {
	_, err := r.exec("SaveTaskList", []stmt{{
		SQL: `INSERT INTO task_lists (id, title, updated, position, etag) VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET title = excluded.title, updated = excluded.updated,
			position = excluded.position, etag = excluded.etag`,
		Args: []arg{
			argText(list.ID), argText(list.Title), argText(fmtTime(list.Updated)),
			argNullText(list.Position), argNullText(list.ETag),
		},
	}})
	return err
}

// LoadListMapping returns the title -> id mapping.
func (r *RemoteStore) LoadListMapping() (map[string]string, error) {
	res, err := r.queryOne("LoadListMapping", "SELECT title, id FROM list_mapping", nil)
	if err != nil {
		return nil, err
	}
	mapping := make(map[string]string, len(res.Rows))
	for _, row := range res.Rows {
		mapping[valueText(row[0])] = valueText(row[1])
	}
	return mapping, nil
}

// SaveListMapping replaces the mapping in one remote transaction.
func (r *RemoteStore) SaveListMapping(mapping map[string]string) error {
	stmts := []stmt{{SQL: "DELETE FROM list_mapping"}}
	for title, id := range mapping {
		stmts = append(stmts, stmt{
			SQL:  "INSERT INTO list_mapping (title, id) VALUES (?, ?)",
			Args: []arg{argText(title), argText(id)},
		})
	}
	_, err := r.exec("SaveListMapping", wrapTx(stmts))
	return err
}

// LoadRemoteDBs returns remote configs stored on the peer. A replicated
// database does not usually chain further remotes, but the contract is
// symmetric so replication flows need no special cases.
func (r *RemoteStore) LoadRemoteDBs() ([]store.RemoteDBConfig, error) {
	res, err := r.queryOne("LoadRemoteDBs",
		"SELECT id, url, name, token, is_active, auto_sync, sync_frequency, last_synced_at FROM remote_dbs ORDER BY name, url", nil)
	if err != nil {
		return nil, err
	}
	var configs []store.RemoteDBConfig
	for _, row := range res.Rows {
		cfg := store.RemoteDBConfig{
			ID:                   valueText(row[0]),
			URL:                  valueText(row[1]),
			Name:                 valueText(row[2]),
			Token:                valueText(row[3]),
			IsActive:             valueInt(row[4]) == 1,
			AutoSync:             valueInt(row[5]) == 1,
			SyncFrequencyMinutes: valueInt(row[6]),
		}
		if t, err := parseTime(valueText(row[7])); err == nil {
			cfg.LastSyncedAt = &t
		}
		configs = append(configs, cfg)
	}
	return configs, nil
}

// SaveRemoteDBs replaces the peer's remote configs atomically.
func (r *RemoteStore) SaveRemoteDBs(configs []store.RemoteDBConfig) error {
	stmts := []stmt{{SQL: "DELETE FROM remote_dbs"}}
	for _, cfg := range configs {
		if cfg.ID == "" {
			cfg.ID = uuid.NewString()
		}
		stmts = append(stmts, stmt{
			SQL: `INSERT INTO remote_dbs (id, url, name, token, is_active, auto_sync, sync_frequency, last_synced_at)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			Args: []arg{
				argText(cfg.ID), argText(cfg.URL), argNullText(cfg.Name), argNullText(cfg.Token),
				argInt(boolToInt(cfg.IsActive)), argInt(boolToInt(cfg.AutoSync)),
				argInt(cfg.SyncFrequencyMinutes), argTimePtr(cfg.LastSyncedAt),
			},
		})
	}
	_, err := r.exec("SaveRemoteDBs", wrapTx(stmts))
	return err
}

// TaskCount returns the number of task rows on the peer.
func (r *RemoteStore) TaskCount() (int, error) {
	res, err := r.queryOne("TaskCount", "SELECT COUNT(*) FROM tasks", nil)
	if err != nil {
		return 0, err
	}
	if len(res.Rows) == 0 || len(res.Rows[0]) == 0 {
		return 0, nil
	}
	return valueInt(res.Rows[0][0]), nil
}

// --- wire protocol ---

type stmt struct {
	SQL  string `json:"sql"`
	Args []arg  `json:"args,omitempty"`
}

type arg struct {
	Type  string `json:"type"`
	Value string `json:"value,omitempty"`
}

type pipelineRequest struct {
	Requests []pipelineEntry `json:"requests"`
}

type pipelineEntry struct {
	Type string `json:"type"`
	Stmt *stmt  `json:"stmt,omitempty"`
}

type pipelineResponse struct {
	Results []struct {
		Type     string `json:"type"`
		Error    *struct {
			Message string `json:"message"`
		} `json:"error,omitempty"`
		Response *struct {
			Type   string      `json:"type"`
			Result *execResult `json:"result,omitempty"`
		} `json:"response,omitempty"`
	} `json:"results"`
}

type execResult struct {
	Cols []struct {
		Name string `json:"name"`
	} `json:"cols"`
	Rows             [][]arg `json:"rows"`
	AffectedRowCount int     `json:"affected_row_count"`
}

// exec sends statements as one pipeline, retrying transient failures with
// exponential back-off: 1s, 2s, 4s, capped at 30s, at most 5 attempts.
// Auth failures are never retried.
func (r *RemoteStore) exec(op string, stmts []stmt) ([]execResult, error) {
	entries := make([]pipelineEntry, 0, len(stmts)+1)
	for i := range stmts {
		entries = append(entries, pipelineEntry{Type: "execute", Stmt: &stmts[i]})
	}
	entries = append(entries, pipelineEntry{Type: "close"})
	body, err := json.Marshal(pipelineRequest{Requests: entries})
	if err != nil {
		return nil, &store.StoreError{Op: op, Err: err}
	}

	var lastErr error
	delay := backoffBase
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		results, err := r.doPipeline(op, body)
		if err == nil {
			return results, nil
		}
		lastErr = err
		if !isTransient(err) {
			return nil, err
		}
		if attempt < maxAttempts {
			r.sleep(delay)
			delay *= 2
			if delay > backoffCap {
				delay = backoffCap
			}
		}
	}
	return nil, &store.TransientNetError{Op: op, Attempts: maxAttempts, Err: lastErr}
}

func (r *RemoteStore) doPipeline(op string, body []byte) ([]execResult, error) {
	req, err := http.NewRequest(http.MethodPost, r.url+pipelinePath, bytes.NewReader(body))
	if err != nil {
		return nil, &store.StoreError{Op: op, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	if r.token != "" {
		req.Header.Set("Authorization", "Bearer "+r.token)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, &transientError{err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, &store.AuthError{Op: op, Err: fmt.Errorf("remote returned status %d", resp.StatusCode)}
	case resp.StatusCode >= 500:
		data, _ := io.ReadAll(resp.Body)
		return nil, &transientError{err: fmt.Errorf("remote returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))}
	case resp.StatusCode != http.StatusOK:
		data, _ := io.ReadAll(resp.Body)
		return nil, &store.UpstreamError{Op: op, Code: resp.StatusCode, Body: strings.TrimSpace(string(data))}
	}

	var decoded pipelineResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, &store.StoreError{Op: op, Err: fmt.Errorf("failed to decode pipeline response: %w", err)}
	}

	results := make([]execResult, 0, len(decoded.Results))
	for _, res := range decoded.Results {
		if res.Type == "error" && res.Error != nil {
			return nil, &store.StoreError{Op: op, Err: fmt.Errorf("remote statement failed: %s", res.Error.Message)}
		}
		if res.Response != nil && res.Response.Result != nil {
			results = append(results, *res.Response.Result)
		}
	}
	return results, nil
}

func (r *RemoteStore) queryOne(op, sql string, args []arg) (*execResult, error) {
	results, err := r.exec(op, []stmt{{SQL: sql, Args: args}})
	if err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return &execResult{}, nil
	}
	return &results[0], nil
}

// transientError marks a failure worth retrying.
type transientError struct {
	err error
}

func (e *transientError) Error() string { return e.err.Error() }
func (e *transientError) Unwrap() error { return e.err }

func isTransient(err error) bool {
	_, ok := err.(*transientError)
	return ok
}

func wrapTx(stmts []stmt) []stmt {
	wrapped := make([]stmt, 0, len(stmts)+2)
	wrapped = append(wrapped, stmt{SQL: "BEGIN"})
	wrapped = append(wrapped, stmts...)
	wrapped = append(wrapped, stmt{SQL: "COMMIT"})
	return wrapped
}

func splitStatements(block string) []string {
	var out []string
	for _, line := range strings.Split(block, ";") {
		line = strings.TrimSpace(line)
		if line != "" {
			out = append(out, line)
		}
	}
	return out
}

// --- value conversion ---

func argText(s string) arg { return arg{Type: "text", Value: s} }

func argNullText(s string) arg {
	if s == "" {
		return arg{Type: "null"}
	}
	return arg{Type: "text", Value: s}
}

func argInt(n int) arg { return arg{Type: "integer", Value: strconv.Itoa(n)} }

func argNullInt(n int) arg {
	if n == 0 {
		return arg{Type: "null"}
	}
	return argInt(n)
}

func argTimePtr(t *time.Time) arg {
	if t == nil {
		return arg{Type: "null"}
	}
	return argText(fmtTime(*t))
}

func valueText(v arg) string {
	if v.Type == "null" {
		return ""
	}
	return v.Value
}

func valueInt(v arg) int {
	if v.Type == "null" {
		return 0
	}
	n, _ := strconv.Atoi(v.Value)
	return n
}

func upsertTaskStmt(task store.Task) stmt {
	return stmt{
		SQL: `INSERT INTO tasks (
			id, title, description, due, status, priority, project,
			tags_json, notes, dependencies_json, recurrence_rule,
			created_at, modified_at, completed_at, tasklist_id, position,
			is_recurring, recurring_task_id, estimated_duration, actual_duration, fingerprint
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title, description = excluded.description, due = excluded.due,
			status = excluded.status, priority = excluded.priority, project = excluded.project,
			tags_json = excluded.tags_json, notes = excluded.notes,
			dependencies_json = excluded.dependencies_json, recurrence_rule = excluded.recurrence_rule,
			modified_at = excluded.modified_at, completed_at = excluded.completed_at,
			tasklist_id = excluded.tasklist_id, position = excluded.position,
			is_recurring = excluded.is_recurring, recurring_task_id = excluded.recurring_task_id,
			estimated_duration = excluded.estimated_duration, actual_duration = excluded.actual_duration,
			fingerprint = excluded.fingerprint`,
		Args: []arg{
			argText(task.ID), argText(task.Title), argNullText(task.Description),
			argTimePtr(task.Due), argText(string(task.Status)), argText(string(task.Priority)),
			argNullText(task.Project), argNullText(joinJSON(task.Tags)), argNullText(task.Notes),
			argNullText(joinJSON(task.Dependencies)), argNullText(task.RecurrenceRule),
			argText(fmtTime(task.CreatedAt)), argText(fmtTime(task.ModifiedAt)),
			argTimePtr(task.CompletedAt), argNullText(task.TasklistID), argNullText(task.Position),
			argInt(boolToInt(task.IsRecurring)), argNullText(task.RecurringTaskID),
			argNullInt(task.EstimatedDuration), argNullInt(task.ActualDuration),
			argText(store.TaskFingerprint(task)),
		},
	}
}

func taskFromRow(row []arg) store.Task {
	task := store.Task{
		ID:          valueText(row[0]),
		Title:       valueText(row[1]),
		Description: valueText(row[2]),
		Status:      store.Status(valueText(row[4])),
		Priority:    store.Priority(valueText(row[5])),
		Project:     valueText(row[6]),
		Notes:       valueText(row[8]),

		RecurrenceRule:  valueText(row[10]),
		TasklistID:      valueText(row[14]),
		Position:        valueText(row[15]),
		IsRecurring:     valueInt(row[16]) == 1,
		RecurringTaskID: valueText(row[17]),

		EstimatedDuration: valueInt(row[18]),
		ActualDuration:    valueInt(row[19]),
	}
	task.Tags = splitJSON(valueText(row[7]))
	task.Dependencies = splitJSON(valueText(row[9]))
	if t, err := parseTime(valueText(row[3])); err == nil && valueText(row[3]) != "" {
		task.Due = &t
	}
	if t, err := parseTime(valueText(row[11])); err == nil {
		task.CreatedAt = t
	}
	if t, err := parseTime(valueText(row[12])); err == nil {
		task.ModifiedAt = t
	}
	if raw := valueText(row[13]); raw != "" {
		if t, err := parseTime(raw); err == nil {
			task.CompletedAt = &t
		}
	}
	return task
}

func joinJSON(values []string) string {
	if len(values) == 0 {
		return ""
	}
	data, err := json.Marshal(values)
	if err != nil {
		return ""
	}
	return string(data)
}

func splitJSON(s string) []string {
	if s == "" {
		return nil
	}
	var values []string
	if err := json.Unmarshal([]byte(s), &values); err != nil {
		return nil
	}
	return values
}

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

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
