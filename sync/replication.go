package sync

import (
	"context"
	"fmt"

	"gtasksync/store"
)

// Replication flows keep the local store and the replicated remote databases
// convergent. The remote side speaks the same Store contract as the local
// one, so classification and resolution reuse the upstream machinery with
// OriginRemote versions.

// RemotePush copies local state out to every active remote database.
func (e *Engine) RemotePush(ctx context.Context, report ProgressFunc) (*SyncResult, error) {
	return e.replicate(ctx, report, true, false)
}

// RemotePull brings remote database changes into the local store.
func (e *Engine) RemotePull(ctx context.Context, report ProgressFunc) (*SyncResult, error) {
	return e.replicate(ctx, report, false, true)
}

// RemoteBoth pulls then pushes against every active remote database.
func (e *Engine) RemoteBoth(ctx context.Context, report ProgressFunc) (*SyncResult, error) {
	return e.replicate(ctx, report, true, true)
}

func (e *Engine) replicate(ctx context.Context, report ProgressFunc, push, pull bool) (*SyncResult, error) {
	start := e.now()
	result := &SyncResult{}
	prog := newProgressTracker(report)

	active := make([]RemoteTarget, 0, len(e.remotes))
	for _, target := range e.remotes {
		if target.Config.IsActive {
			active = append(active, target)
		}
	}
	if len(active) == 0 {
		result.Message = "no active remote databases"
		return e.finish(result, start, nil)
	}

	for i, target := range active {
		if err := ctx.Err(); err != nil {
			return e.finish(result, start, err)
		}
		name := target.Config.Name
		if name == "" {
			name = target.Config.URL
		}
		base := i * 100 / len(active)
		span := 100 / len(active)

		if pull {
			if err := e.pullRemote(ctx, target, result); err != nil {
				result.Errors = append(result.Errors, fmt.Sprintf("pull %s: %v", name, err))
				e.logger.Warn("remote pull from %s failed: %v", name, err)
				continue
			}
			prog.set(base+span/2, fmt.Sprintf("pulled from %s", name))
		}
		if push {
			if err := e.pushRemote(ctx, target, result); err != nil {
				result.Errors = append(result.Errors, fmt.Sprintf("push %s: %v", name, err))
				e.logger.Warn("remote push to %s failed: %v", name, err)
				continue
			}
		}
		prog.set(base+span, fmt.Sprintf("replicated %s", name))

		if err := e.stampRemoteSync(target.Config.ID); err != nil {
			e.logger.Warn("failed to record sync time for %s: %v", name, err)
		}
	}
	prog.set(100, "replication complete")
	return e.finish(result, start, nil)
}

// pullRemote classifies every remote row against the local store and applies
// the verdicts locally.
func (e *Engine) pullRemote(ctx context.Context, target RemoteTarget, result *SyncResult) error {
	remoteTasks, err := target.Store.LoadTasks(e.replicationFilter(target))
	if err != nil {
		return err
	}
	local, err := e.local.LoadTasks(nil)
	if err != nil {
		return err
	}
	byID := make(map[string]store.Task, len(local))
	byFP := make(map[string]store.Task, len(local))
	for _, t := range local {
		byID[t.ID] = t
		if t.Status != store.StatusDeleted {
			byFP[store.TaskFingerprint(t)] = t
		}
	}

	var batch []store.Task
	for _, rt := range remoteTasks {
		if err := ctx.Err(); err != nil {
			return err
		}
		if lt, ok := byID[rt.ID]; ok {
			if sameContent(lt, rt) {
				continue
			}
			res, rerr := e.resolver.Resolve([]Version{
				{Origin: OriginLocal, Task: lt},
				{Origin: OriginRemote, Task: rt},
			})
			if rerr != nil {
				return rerr
			}
			result.ConflictsResolved++
			for _, effect := range res.Effects {
				if effect == PatchLocal {
					batch = append(batch, res.Task)
					result.Changed.Updated++
				}
			}
		} else if _, dup := byFP[store.TaskFingerprint(rt)]; dup {
			continue // same content under a different id, local copy stands
		} else if rt.Status != store.StatusDeleted {
			batch = append(batch, rt)
			result.Changed.Created++
		}
	}
	if len(batch) == 0 {
		return nil
	}
	return e.local.SaveTasks(batch)
}

// pushRemote mirrors the local state onto one remote database.
func (e *Engine) pushRemote(ctx context.Context, target RemoteTarget, result *SyncResult) error {
	local, err := e.local.LoadTasks(nil)
	if err != nil {
		return err
	}
	remoteTasks, err := target.Store.LoadTasks(nil)
	if err != nil {
		return err
	}
	remoteByID := make(map[string]store.Task, len(remoteTasks))
	for _, t := range remoteTasks {
		remoteByID[t.ID] = t
	}

	var batch []store.Task
	for _, lt := range local {
		if err := ctx.Err(); err != nil {
			return err
		}
		if rt, ok := remoteByID[lt.ID]; ok {
			if sameContent(lt, rt) && rt.Status == lt.Status {
				continue
			}
			if rt.ModifiedAt.After(lt.ModifiedAt) {
				// The remote copy is newer; it travels on the next pull.
				continue
			}
		}
		batch = append(batch, lt)
	}
	if len(batch) == 0 {
		return nil
	}
	if err := target.Store.SaveTasks(batch); err != nil {
		return err
	}
	result.Changed.Updated += len(batch)
	return nil
}

// replicationFilter bounds a remote pull to the window since the last
// successful replication with that target.
func (e *Engine) replicationFilter(target RemoteTarget) *store.TaskFilter {
	if target.Config.LastSyncedAt == nil {
		return nil
	}
	since := target.Config.LastSyncedAt.UTC()
	return &store.TaskFilter{ModifiedSince: &since}
}

// stampRemoteSync records the replication time on the remote's config row.
func (e *Engine) stampRemoteSync(remoteID string) error {
	configs, err := e.local.LoadRemoteDBs()
	if err != nil {
		return err
	}
	now := e.now()
	changed := false
	for i := range configs {
		if configs[i].ID == remoteID {
			configs[i].LastSyncedAt = &now
			changed = true
		}
	}
	if !changed {
		return nil
	}
	return e.local.SaveRemoteDBs(configs)
}
