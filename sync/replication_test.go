package sync

import (
	"context"
	"testing"
	"time"

	"gtasksync/store"
)

// newReplicationEngine wires an engine whose replica is a second scratch
// store. The replica speaks the same contract as a real remote peer.
func newReplicationEngine(t *testing.T, cfg store.RemoteDBConfig) (*Engine, *store.LocalStore, *store.LocalStore) {
	t.Helper()
	local, err := store.NewScratchStore()
	if err != nil {
		t.Fatalf("failed to open local store: %v", err)
	}
	t.Cleanup(func() { local.Close() })
	replica, err := store.NewScratchStore()
	if err != nil {
		t.Fatalf("failed to open replica store: %v", err)
	}
	t.Cleanup(func() { replica.Close() })

	if cfg.ID == "" {
		cfg.ID = "r1"
	}
	if err := local.SaveRemoteDBs([]store.RemoteDBConfig{cfg}); err != nil {
		t.Fatalf("SaveRemoteDBs failed: %v", err)
	}

	engine, err := NewEngine(Options{
		AccountID: "test",
		Local:     local,
		Remotes:   []RemoteTarget{{Config: cfg, Store: replica}},
	})
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}
	return engine, local, replica
}

func TestRemotePushMirrorsLocalState(t *testing.T) {
	engine, local, replica := newReplicationEngine(t, store.RemoteDBConfig{
		URL: "https://peer.example", Name: "peer", IsActive: true,
	})
	if err := local.SaveTask(store.Task{ID: "t1", Title: "replicate me"}); err != nil {
		t.Fatalf("seed failed: %v", err)
	}

	result, err := engine.RemotePush(context.Background(), nil)
	if err != nil {
		t.Fatalf("RemotePush failed: %v", err)
	}
	if result.Changed.Updated != 1 {
		t.Errorf("updated = %d, want 1", result.Changed.Updated)
	}

	got, err := replica.GetTask("t1")
	if err != nil {
		t.Fatalf("replica GetTask failed: %v", err)
	}
	if got.Title != "replicate me" {
		t.Errorf("replica title = %q", got.Title)
	}

	// The replication time was recorded on the config row.
	configs, err := local.LoadRemoteDBs()
	if err != nil {
		t.Fatalf("LoadRemoteDBs failed: %v", err)
	}
	if len(configs) != 1 || configs[0].LastSyncedAt == nil {
		t.Errorf("configs = %+v, want last_synced_at stamped", configs)
	}
}

func TestRemotePushSkipsUnchangedRows(t *testing.T) {
	engine, local, _ := newReplicationEngine(t, store.RemoteDBConfig{
		URL: "https://peer.example", IsActive: true,
	})
	if err := local.SaveTask(store.Task{ID: "t1", Title: "stable"}); err != nil {
		t.Fatalf("seed failed: %v", err)
	}

	if _, err := engine.RemotePush(context.Background(), nil); err != nil {
		t.Fatalf("first RemotePush failed: %v", err)
	}
	second, err := engine.RemotePush(context.Background(), nil)
	if err != nil {
		t.Fatalf("second RemotePush failed: %v", err)
	}
	if second.Changed.Updated != 0 {
		t.Errorf("second push updated = %d, want 0", second.Changed.Updated)
	}
}

func TestRemotePushLeavesNewerRemoteEdit(t *testing.T) {
	engine, local, replica := newReplicationEngine(t, store.RemoteDBConfig{
		URL: "https://peer.example", IsActive: true,
	})
	older := time.Now().UTC().Add(-time.Hour)
	if err := local.SaveTask(store.Task{ID: "shared", Title: "old title", ModifiedAt: older}); err != nil {
		t.Fatalf("seed failed: %v", err)
	}
	if err := replica.SaveTask(store.Task{ID: "shared", Title: "new title"}); err != nil {
		t.Fatalf("seed failed: %v", err)
	}

	result, err := engine.RemotePush(context.Background(), nil)
	if err != nil {
		t.Fatalf("RemotePush failed: %v", err)
	}
	if result.Changed.Updated != 0 {
		t.Errorf("updated = %d, want 0 (the replica's edit is newer)", result.Changed.Updated)
	}
	if len(result.Errors) != 0 {
		t.Errorf("errors = %v, want none", result.Errors)
	}
	got, err := replica.GetTask("shared")
	if err != nil {
		t.Fatalf("replica GetTask failed: %v", err)
	}
	if got.Title != "new title" {
		t.Errorf("replica title = %q, want its newer edit kept", got.Title)
	}
}

func TestRemotePullCreatesAndResolves(t *testing.T) {
	engine, local, replica := newReplicationEngine(t, store.RemoteDBConfig{
		URL: "https://peer.example", IsActive: true,
	})

	// New on the replica only.
	if err := replica.SaveTask(store.Task{ID: "r-only", Title: "from peer"}); err != nil {
		t.Fatalf("seed failed: %v", err)
	}
	// Diverged: the replica's edit is newer.
	older := time.Now().UTC().Add(-time.Hour)
	if err := local.SaveTask(store.Task{ID: "shared", Title: "old title", ModifiedAt: older}); err != nil {
		t.Fatalf("seed failed: %v", err)
	}
	if err := replica.SaveTask(store.Task{ID: "shared", Title: "new title"}); err != nil {
		t.Fatalf("seed failed: %v", err)
	}
	// Same content, different id: must not duplicate.
	if err := local.SaveTask(store.Task{ID: "l-dup", Title: "twin"}); err != nil {
		t.Fatalf("seed failed: %v", err)
	}
	if err := replica.SaveTask(store.Task{ID: "r-dup", Title: "twin"}); err != nil {
		t.Fatalf("seed failed: %v", err)
	}

	result, err := engine.RemotePull(context.Background(), nil)
	if err != nil {
		t.Fatalf("RemotePull failed: %v", err)
	}
	if result.Changed.Created != 1 {
		t.Errorf("created = %d, want 1 (the peer-only task)", result.Changed.Created)
	}
	if result.ConflictsResolved != 1 {
		t.Errorf("conflicts resolved = %d, want 1", result.ConflictsResolved)
	}

	shared, err := local.GetTask("shared")
	if err != nil {
		t.Fatalf("GetTask failed: %v", err)
	}
	if shared.Title != "new title" {
		t.Errorf("shared title = %q, want the newer edit", shared.Title)
	}
	if _, err := local.GetTask("r-dup"); err == nil {
		t.Error("duplicate content must not gain a second local row")
	}
	if _, err := local.GetTask("r-only"); err != nil {
		t.Errorf("peer-only task missing locally: %v", err)
	}
}

func TestReplicationSkipsInactiveTargets(t *testing.T) {
	engine, local, replica := newReplicationEngine(t, store.RemoteDBConfig{
		URL: "https://peer.example", IsActive: false,
	})
	if err := local.SaveTask(store.Task{ID: "t1", Title: "stays home"}); err != nil {
		t.Fatalf("seed failed: %v", err)
	}

	result, err := engine.RemotePush(context.Background(), nil)
	if err != nil {
		t.Fatalf("RemotePush failed: %v", err)
	}
	if result.Message != "no active remote databases" {
		t.Errorf("message = %q", result.Message)
	}
	if count, _ := replica.TaskCount(); count != 0 {
		t.Errorf("replica count = %d, want 0", count)
	}
}

func TestRemotePullWindowedByLastSync(t *testing.T) {
	lastSync := time.Now().UTC().Add(-time.Hour)
	engine, local, replica := newReplicationEngine(t, store.RemoteDBConfig{
		URL: "https://peer.example", IsActive: true, LastSyncedAt: &lastSync,
	})

	// Older than the window: must not travel.
	if err := replica.SaveTask(store.Task{
		ID: "stale", Title: "old news", ModifiedAt: lastSync.Add(-time.Hour),
	}); err != nil {
		t.Fatalf("seed failed: %v", err)
	}
	if err := replica.SaveTask(store.Task{ID: "fresh", Title: "new"}); err != nil {
		t.Fatalf("seed failed: %v", err)
	}

	result, err := engine.RemotePull(context.Background(), nil)
	if err != nil {
		t.Fatalf("RemotePull failed: %v", err)
	}
	if result.Changed.Created != 1 {
		t.Errorf("created = %d, want 1 (only rows modified since last sync)", result.Changed.Created)
	}
	if _, err := local.GetTask("stale"); err == nil {
		t.Error("out-of-window row should not replicate")
	}
}
