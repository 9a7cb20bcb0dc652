package store

import (
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *LocalStore {
	t.Helper()
	s, err := NewLocalStore(filepath.Join(t.TempDir(), "tasks.db"))
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSaveTaskRoundTrip(t *testing.T) {
	s := newTestStore(t)

	due := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	task := Task{
		ID:           "task-1",
		Title:        "Write report",
		Description:  "quarterly numbers",
		Notes:        "ask finance for the sheet",
		Due:          &due,
		Status:       StatusInProgress,
		Priority:     PriorityHigh,
		Project:      "q1",
		Tags:         []string{"work", "writing"},
		TasklistID:   "list-1",
		Position:     "0001",
		RecurrenceRule: "FREQ=WEEKLY",
		IsRecurring:  true,
		EstimatedDuration: 90,
		ActualDuration:    45,
	}
	if err := s.SaveTask(task); err != nil {
		t.Fatalf("SaveTask failed: %v", err)
	}

	got, err := s.GetTask("task-1")
	if err != nil {
		t.Fatalf("GetTask failed: %v", err)
	}
	if got.Title != task.Title || got.Description != task.Description || got.Notes != task.Notes {
		t.Errorf("text fields did not round-trip: %+v", got)
	}
	if got.Status != StatusInProgress || got.Priority != PriorityHigh || got.Project != "q1" {
		t.Errorf("status/priority/project did not round-trip: %+v", got)
	}
	if got.Due == nil || !got.Due.Equal(due) {
		t.Errorf("due did not round-trip: %v", got.Due)
	}
	if len(got.Tags) != 2 || got.Tags[0] != "work" {
		t.Errorf("tags did not round-trip: %v", got.Tags)
	}
	if got.RecurrenceRule != "FREQ=WEEKLY" || !got.IsRecurring {
		t.Errorf("recurrence did not round-trip: %+v", got)
	}
	if got.EstimatedDuration != 90 || got.ActualDuration != 45 {
		t.Errorf("durations did not round-trip: %+v", got)
	}
	if got.ModifiedAt.IsZero() {
		t.Error("modified_at was not stamped")
	}
}

func TestSaveTaskGeneratesID(t *testing.T) {
	s := newTestStore(t)
	if err := s.SaveTask(Task{Title: "no id"}); err != nil {
		t.Fatalf("SaveTask failed: %v", err)
	}
	tasks, err := s.LoadTasks(nil)
	if err != nil {
		t.Fatalf("LoadTasks failed: %v", err)
	}
	if len(tasks) != 1 || tasks[0].ID == "" {
		t.Fatalf("expected one task with generated id, got %+v", tasks)
	}
}

func TestSaveTaskValidation(t *testing.T) {
	s := newTestStore(t)

	var verr *ValidationError
	if err := s.SaveTask(Task{ID: "x", Title: "   "}); !errors.As(err, &verr) {
		t.Errorf("expected ValidationError for empty title, got %v", err)
	}
	if err := s.SaveTask(Task{ID: "x", Title: "ok", Status: "bogus"}); !errors.As(err, &verr) {
		t.Errorf("expected ValidationError for bad status, got %v", err)
	}
}

func TestSaveTaskFingerprintDedup(t *testing.T) {
	s := newTestStore(t)

	if err := s.SaveTask(Task{ID: "orig", Title: "apple"}); err != nil {
		t.Fatalf("SaveTask failed: %v", err)
	}
	// Same content, fresh id: rapid double-submit collapses onto the
	// existing row.
	if err := s.SaveTask(Task{Title: "  Apple "}); err != nil {
		t.Fatalf("SaveTask duplicate failed: %v", err)
	}

	count, err := s.TaskCount()
	if err != nil {
		t.Fatalf("TaskCount failed: %v", err)
	}
	if count != 1 {
		t.Errorf("task count = %d, want 1 after dedup collapse", count)
	}
	if _, err := s.GetTask("orig"); err != nil {
		t.Errorf("original id should survive the collapse: %v", err)
	}
}

func TestSaveTaskOptimisticConcurrency(t *testing.T) {
	s := newTestStore(t)

	if err := s.SaveTask(Task{ID: "c1", Title: "draft"}); err != nil {
		t.Fatalf("SaveTask failed: %v", err)
	}
	current, err := s.GetTask("c1")
	if err != nil {
		t.Fatalf("GetTask failed: %v", err)
	}

	// A later writer commits first.
	newer := *current
	newer.Title = "draft v2"
	newer.ModifiedAt = current.ModifiedAt.Add(2 * time.Second)
	if err := s.SaveTask(newer); err != nil {
		t.Fatalf("SaveTask newer failed: %v", err)
	}

	// The stale writer still carries the old baseline.
	stale := *current
	stale.Title = "draft v1b"
	var conflict *ConflictError
	if err := s.SaveTask(stale); !errors.As(err, &conflict) {
		t.Fatalf("expected ConflictError, got %v", err)
	}
	if conflict.TaskID != "c1" {
		t.Errorf("conflict task id = %q, want c1", conflict.TaskID)
	}
}

func TestDeleteTaskWritesDeletionLogFirst(t *testing.T) {
	s := newTestStore(t)

	due := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	if err := s.SaveTask(Task{ID: "d1", Title: "doomed", Due: &due, TasklistID: "list-1"}); err != nil {
		t.Fatalf("SaveTask failed: %v", err)
	}
	if err := s.DeleteTask("d1", "user"); err != nil {
		t.Fatalf("DeleteTask failed: %v", err)
	}

	entries, err := s.DeletionEntries("d1")
	if err != nil {
		t.Fatalf("DeletionEntries failed: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("deletion log entries = %d, want 1", len(entries))
	}
	e := entries[0]
	if e.Title != "doomed" || e.DeletedBy != "user" || e.TasklistID != "list-1" {
		t.Errorf("deletion entry incomplete: %+v", e)
	}
	if e.Due == nil || !e.Due.Equal(due) {
		t.Errorf("deletion entry due = %v, want %v", e.Due, due)
	}

	// The row survives as a soft delete until upstream confirms.
	got, err := s.GetTask("d1")
	if err != nil {
		t.Fatalf("GetTask after delete failed: %v", err)
	}
	if got.Status != StatusDeleted {
		t.Errorf("status after delete = %s, want deleted", got.Status)
	}

	// Deleting again is a no-op, not a second log entry.
	if err := s.DeleteTask("d1", "user"); err != nil {
		t.Fatalf("second DeleteTask failed: %v", err)
	}
	entries, _ = s.DeletionEntries("d1")
	if len(entries) != 1 {
		t.Errorf("deletion log entries after repeat = %d, want 1", len(entries))
	}
}

func TestPurgeTask(t *testing.T) {
	s := newTestStore(t)
	if err := s.SaveTask(Task{ID: "p1", Title: "gone"}); err != nil {
		t.Fatalf("SaveTask failed: %v", err)
	}
	if err := s.PurgeTask("p1"); err != nil {
		t.Fatalf("PurgeTask failed: %v", err)
	}
	if _, err := s.GetTask("p1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound after purge, got %v", err)
	}
	// Purging a missing row is fine.
	if err := s.PurgeTask("p1"); err != nil {
		t.Errorf("second PurgeTask failed: %v", err)
	}
}

func TestRekeyTask(t *testing.T) {
	s := newTestStore(t)
	if err := s.SaveTask(Task{ID: "local-1", Title: "adopted", Notes: "keep me"}); err != nil {
		t.Fatalf("SaveTask failed: %v", err)
	}

	if err := s.RekeyTask("local-1", "g-1"); err != nil {
		t.Fatalf("RekeyTask failed: %v", err)
	}

	// The row moved: same content, exactly one row, new id only.
	got, err := s.GetTask("g-1")
	if err != nil {
		t.Fatalf("GetTask under new id failed: %v", err)
	}
	if got.Title != "adopted" || got.Notes != "keep me" {
		t.Errorf("rekeyed task = %+v", got)
	}
	if _, err := s.GetTask("local-1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("old id lookup = %v, want ErrNotFound", err)
	}
	count, _ := s.TaskCount()
	if count != 1 {
		t.Errorf("task count = %d, want 1", count)
	}

	if err := s.RekeyTask("ghost", "g-2"); !errors.Is(err, ErrNotFound) {
		t.Errorf("rekey of missing row = %v, want ErrNotFound", err)
	}
}

func TestRestoreTask(t *testing.T) {
	s := newTestStore(t)
	if err := s.SaveTask(Task{ID: "r1", Title: "phoenix", TasklistID: "list-1"}); err != nil {
		t.Fatalf("SaveTask failed: %v", err)
	}
	if err := s.DeleteTask("r1", "user"); err != nil {
		t.Fatalf("DeleteTask failed: %v", err)
	}
	if err := s.PurgeTask("r1"); err != nil {
		t.Fatalf("PurgeTask failed: %v", err)
	}

	restored, err := s.RestoreTask("r1")
	if err != nil {
		t.Fatalf("RestoreTask failed: %v", err)
	}
	if restored.Title != "phoenix" || restored.Status != StatusPending {
		t.Errorf("restored task = %+v", restored)
	}
}

func TestLoadTasksFilter(t *testing.T) {
	s := newTestStore(t)
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	seed := []Task{
		{ID: "a", Title: "a", Status: StatusPending, TasklistID: "l1", ModifiedAt: base},
		{ID: "b", Title: "b", Status: StatusCompleted, TasklistID: "l1", ModifiedAt: base.Add(time.Hour)},
		{ID: "c", Title: "c", Status: StatusPending, TasklistID: "l2", ModifiedAt: base.Add(2 * time.Hour)},
	}
	if err := s.SaveTasks(seed); err != nil {
		t.Fatalf("SaveTasks failed: %v", err)
	}

	statuses := []Status{StatusPending}
	got, err := s.LoadTasks(&TaskFilter{Statuses: &statuses})
	if err != nil {
		t.Fatalf("LoadTasks failed: %v", err)
	}
	if len(got) != 2 {
		t.Errorf("pending tasks = %d, want 2", len(got))
	}

	got, err = s.LoadTasks(&TaskFilter{TasklistID: "l2"})
	if err != nil {
		t.Fatalf("LoadTasks failed: %v", err)
	}
	if len(got) != 1 || got[0].ID != "c" {
		t.Errorf("list filter returned %+v", got)
	}

	since := base.Add(30 * time.Minute)
	got, err = s.LoadTasks(&TaskFilter{ModifiedSince: &since})
	if err != nil {
		t.Fatalf("LoadTasks failed: %v", err)
	}
	if len(got) != 2 {
		t.Errorf("modified-since tasks = %d, want 2", len(got))
	}
}

func TestDependencyCycleRejected(t *testing.T) {
	s := newTestStore(t)
	if err := s.SaveTask(Task{ID: "t1", Title: "one"}); err != nil {
		t.Fatalf("SaveTask failed: %v", err)
	}
	if err := s.SaveTask(Task{ID: "t2", Title: "two", Dependencies: []string{"t1"}}); err != nil {
		t.Fatalf("SaveTask with dependency failed: %v", err)
	}

	// Closing the loop t1 -> t2 -> t1 must fail.
	t1, err := s.GetTask("t1")
	if err != nil {
		t.Fatalf("GetTask failed: %v", err)
	}
	t1.Dependencies = []string{"t2"}
	var verr *ValidationError
	if err := s.SaveTask(*t1); !errors.As(err, &verr) {
		t.Errorf("expected ValidationError for cycle, got %v", err)
	}

	// Unknown dependency ids are rejected too.
	if err := s.SaveTask(Task{ID: "t3", Title: "three", Dependencies: []string{"ghost"}}); !errors.As(err, &verr) {
		t.Errorf("expected ValidationError for unknown dependency, got %v", err)
	}
}

func TestListMappingRoundTrip(t *testing.T) {
	s := newTestStore(t)
	mapping := map[string]string{"Inbox": "l1", "Work": "l2"}
	if err := s.SaveListMapping(mapping); err != nil {
		t.Fatalf("SaveListMapping failed: %v", err)
	}
	got, err := s.LoadListMapping()
	if err != nil {
		t.Fatalf("LoadListMapping failed: %v", err)
	}
	if len(got) != 2 || got["Inbox"] != "l1" || got["Work"] != "l2" {
		t.Errorf("mapping round-trip = %v", got)
	}
}

func TestRemoteDBConfigRoundTrip(t *testing.T) {
	s := newTestStore(t)
	last := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	configs := []RemoteDBConfig{
		{URL: "https://db.example.com", Name: "primary", Token: "secret", IsActive: true, AutoSync: true, SyncFrequencyMinutes: 15, LastSyncedAt: &last},
		{URL: "https://backup.example.com", Name: "backup", IsActive: false},
	}
	if err := s.SaveRemoteDBs(configs); err != nil {
		t.Fatalf("SaveRemoteDBs failed: %v", err)
	}
	got, err := s.LoadRemoteDBs()
	if err != nil {
		t.Fatalf("LoadRemoteDBs failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("remote configs = %d, want 2", len(got))
	}
	for _, cfg := range got {
		if cfg.ID == "" {
			t.Error("remote config id was not generated")
		}
	}
	var primary RemoteDBConfig
	for _, cfg := range got {
		if cfg.Name == "primary" {
			primary = cfg
		}
	}
	if !primary.IsActive || !primary.AutoSync || primary.SyncFrequencyMinutes != 15 {
		t.Errorf("primary config did not round-trip: %+v", primary)
	}
	if primary.LastSyncedAt == nil || !primary.LastSyncedAt.Equal(last) {
		t.Errorf("last_synced_at did not round-trip: %v", primary.LastSyncedAt)
	}
}

func TestScratchStore(t *testing.T) {
	s, err := NewScratchStore()
	if err != nil {
		t.Fatalf("NewScratchStore failed: %v", err)
	}
	defer s.Close()

	if err := s.SaveTask(Task{ID: "m1", Title: "in memory"}); err != nil {
		t.Fatalf("SaveTask failed: %v", err)
	}
	count, err := s.TaskCount()
	if err != nil {
		t.Fatalf("TaskCount failed: %v", err)
	}
	if count != 1 {
		t.Errorf("scratch task count = %d, want 1", count)
	}
}

func TestSchemaVersionRecorded(t *testing.T) {
	s := newTestStore(t)
	version, err := s.DB().GetSchemaVersion()
	if err != nil {
		t.Fatalf("GetSchemaVersion failed: %v", err)
	}
	if version != SchemaVersion {
		t.Errorf("schema version = %d, want %d", version, SchemaVersion)
	}
}
