package sync

import (
	"context"
	"errors"
	"fmt"
	"sort"
	gosync "sync"
	"time"

	"golang.org/x/sync/errgroup"

	"gtasksync/gtasks"
	"gtasksync/internal/logging"
	"gtasksync/store"
)

// SyncResult summarises one completed (or partially completed) sync job.
type SyncResult struct {
	Success           bool          `json:"success"`
	Message           string        `json:"message"`
	Changed           ChangeCounts  `json:"changed"`
	ConflictsResolved int           `json:"conflicts_resolved"`
	Errors            []string      `json:"errors,omitempty"`
	Duration          time.Duration `json:"duration"`
}

// ChangeCounts breaks down what a sync touched.
type ChangeCounts struct {
	Created int `json:"created"`
	Updated int `json:"updated"`
	Deleted int `json:"deleted"`
}

// RemoteTarget pairs a replicated database config with its opened store.
type RemoteTarget struct {
	Config store.RemoteDBConfig
	Store  store.Store
}

// Options configures an Engine for one account.
type Options struct {
	AccountID     string
	Local         *store.LocalStore
	Google        gtasks.Service
	Strategy      Strategy
	PullRangeDays int // 0 = full pull
	Remotes       []RemoteTarget

	// NewScratch overrides the staging store factory; tests inject their own.
	NewScratch func() (*store.LocalStore, error)
}

// Engine orchestrates push/pull/bidirectional flows for one account. It is
// safe to run one Engine per account concurrently; two engines must never
// share a LocalStore.
type Engine struct {
	accountID  string
	local      *store.LocalStore
	google     gtasks.Service
	resolver   *Resolver
	pullRange  int
	remotes    []RemoteTarget
	newScratch func() (*store.LocalStore, error)
	logger     *logging.Logger
	now        func() time.Time
}

// NewEngine builds an engine from opts.
func NewEngine(opts Options) (*Engine, error) {
	if opts.Local == nil {
		return nil, &store.ValidationError{Field: "local", Message: "local store is required"}
	}
	strategy := opts.Strategy
	if strategy == "" {
		strategy = LatestWins
	}
	newScratch := opts.NewScratch
	if newScratch == nil {
		newScratch = store.NewScratchStore
	}
	return &Engine{
		accountID:  opts.AccountID,
		local:      opts.Local,
		google:     opts.Google,
		resolver:   NewResolver(strategy),
		pullRange:  opts.PullRangeDays,
		remotes:    opts.Remotes,
		newScratch: newScratch,
		logger:     logging.GetLogger(),
		now:        func() time.Time { return time.Now().UTC() },
	}, nil
}

// Run dispatches one job kind. This is the entry point the registry hands to
// a worker goroutine.
func (e *Engine) Run(ctx context.Context, kind JobKind, report ProgressFunc) (*SyncResult, error) {
	switch kind {
	case JobPull:
		return e.Pull(ctx, report)
	case JobPush:
		return e.Push(ctx, report)
	case JobBoth:
		return e.Bidirectional(ctx, report)
	case JobRemotePush:
		return e.RemotePush(ctx, report)
	case JobRemotePull:
		return e.RemotePull(ctx, report)
	case JobRemoteBoth:
		return e.RemoteBoth(ctx, report)
	default:
		return nil, &store.ValidationError{Field: "kind", Message: fmt.Sprintf("unknown sync kind %q", kind)}
	}
}

// Progress weights per phase. The callback fires when accounted work crosses
// a 5% boundary.
const (
	weightLists    = 10
	weightSnapshot = 30
	weightClassify = 20
	weightApply    = 40
)

// Pull brings Google changes into the local store.
func (e *Engine) Pull(ctx context.Context, report ProgressFunc) (*SyncResult, error) {
	start := e.now()
	result := &SyncResult{}
	prog := newProgressTracker(report)

	if e.google == nil {
		return result, &store.ValidationError{Field: "google", Message: "no upstream client configured"}
	}

	lists, err := e.ensureListMapping(ctx)
	if err != nil {
		return e.finish(result, start, err)
	}
	prog.set(weightLists, "task lists mapped")

	scratch, snapshot, err := e.snapshotGoogle(ctx, lists, prog)
	if err != nil {
		return e.finish(result, start, err)
	}
	defer scratch.Close()
	prog.set(weightLists+weightSnapshot, fmt.Sprintf("snapshot of %d upstream tasks staged", len(snapshot)))

	plan, err := e.classifyPull(ctx, snapshot, result, prog)
	if err != nil {
		return e.finish(result, start, err)
	}
	prog.set(weightLists+weightSnapshot+weightClassify, "changes classified")

	if err := e.apply(ctx, plan, result, prog); err != nil {
		return e.finish(result, start, err)
	}
	prog.set(100, "pull complete")
	return e.finish(result, start, nil)
}

// Push sends local changes upstream.
func (e *Engine) Push(ctx context.Context, report ProgressFunc) (*SyncResult, error) {
	start := e.now()
	result := &SyncResult{}
	prog := newProgressTracker(report)

	if e.google == nil {
		return result, &store.ValidationError{Field: "google", Message: "no upstream client configured"}
	}

	lists, err := e.ensureListMapping(ctx)
	if err != nil {
		return e.finish(result, start, err)
	}
	prog.set(weightLists, "task lists mapped")

	scratch, snapshot, err := e.snapshotGoogle(ctx, lists, prog)
	if err != nil {
		return e.finish(result, start, err)
	}
	defer scratch.Close()
	prog.set(weightLists+weightSnapshot, "upstream snapshot staged")

	plan, err := e.classifyPush(ctx, snapshot, result, prog)
	if err != nil {
		return e.finish(result, start, err)
	}
	prog.set(weightLists+weightSnapshot+weightClassify, "changes classified")

	if err := e.apply(ctx, plan, result, prog); err != nil {
		return e.finish(result, start, err)
	}
	prog.set(100, "push complete")
	return e.finish(result, start, nil)
}

// Bidirectional runs Pull, Push, then a second Pull to absorb the echoes of
// its own Push (Google stamps its own updated timestamps on writes).
func (e *Engine) Bidirectional(ctx context.Context, report ProgressFunc) (*SyncResult, error) {
	start := e.now()
	combined := &SyncResult{}
	phases := []struct {
		name string
		run  func(context.Context, ProgressFunc) (*SyncResult, error)
	}{
		{"pull", e.Pull},
		{"push", e.Push},
		{"pull", e.Pull},
	}

	prog := newProgressTracker(report)
	for i, phase := range phases {
		if err := ctx.Err(); err != nil {
			return e.finish(combined, start, err)
		}
		base := i * 100 / len(phases)
		span := 100 / len(phases)
		sub := func(pct int, msg string, status JobStatus) {
			prog.set(base+pct*span/100, fmt.Sprintf("%s: %s", phase.name, msg))
		}
		res, err := phase.run(ctx, sub)
		if res != nil {
			mergeResults(combined, res)
		}
		if err != nil {
			combined.Message = fmt.Sprintf("%s phase failed", phase.name)
			return e.finish(combined, start, err)
		}
	}
	prog.set(100, "bidirectional sync complete")
	return e.finish(combined, start, nil)
}

// ensureListMapping fetches upstream lists, creates local metadata for new
// ones, and persists the title -> id mapping. It returns the upstream lists.
func (e *Engine) ensureListMapping(ctx context.Context) ([]gtasks.TaskListResource, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	upstream, err := e.google.ListTasklists()
	if err != nil {
		return nil, err
	}

	mapping, err := e.local.LoadListMapping()
	if err != nil {
		return nil, err
	}
	changed := false
	for _, l := range upstream {
		if mapping[l.Title] != l.ID {
			mapping[l.Title] = l.ID
			changed = true
		}
		list := store.TaskList{ID: l.ID, Title: l.Title, ETag: l.ETag}
		if t, perr := time.Parse(time.RFC3339, l.Updated); perr == nil {
			list.Updated = t.UTC()
		}
		if err := e.local.SaveTaskList(list); err != nil {
			return nil, err
		}
	}
	if changed {
		if err := e.local.SaveListMapping(mapping); err != nil {
			return nil, err
		}
	}
	return upstream, nil
}

// snapshotGoogle materialises the upstream state into a throw-away scratch
// store. Lists are fetched concurrently; the snapshot keeps the hot local
// store uncontended during API I/O.
func (e *Engine) snapshotGoogle(ctx context.Context, lists []gtasks.TaskListResource, prog *progressTracker) (*store.LocalStore, []store.Task, error) {
	scratch, err := e.newScratch()
	if err != nil {
		return nil, nil, err
	}

	opts := gtasks.ListTasksOptions{
		IncludeCompleted: true,
		IncludeHidden:    true,
		IncludeDeleted:   true,
	}
	if e.pullRange > 0 {
		since := e.now().AddDate(0, 0, -e.pullRange)
		opts.UpdatedMin = &since
	}

	var (
		mu       gosync.Mutex
		fetched  []store.Task
		done     int
		listsLen = len(lists)
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for _, list := range lists {
		list := list
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			resources, err := e.google.ListTasks(list.ID, opts)
			if err != nil {
				return err
			}
			tasks := make([]store.Task, 0, len(resources))
			for _, res := range resources {
				if res.Title == "" && res.Notes == "" {
					continue // placeholder rows Google keeps for cleared tasks
				}
				tasks = append(tasks, gtasks.ToTask(res, list.ID, list.Title))
			}
			mu.Lock()
			fetched = append(fetched, tasks...)
			done++
			if listsLen > 0 {
				prog.set(weightLists+weightSnapshot*done/listsLen, fmt.Sprintf("snapshotting list %q", list.Title))
			}
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		scratch.Close()
		return nil, nil, err
	}

	// Dependency references outside the snapshot window cannot be satisfied
	// by the scratch schema; they stay intact on the local side.
	present := make(map[string]bool, len(fetched))
	for _, t := range fetched {
		present[t.ID] = true
	}
	staged := make([]store.Task, 0, len(fetched))
	for _, t := range fetched {
		deps := t.Dependencies[:0:0]
		for _, d := range t.Dependencies {
			if present[d] {
				deps = append(deps, d)
			}
		}
		t.Dependencies = deps
		staged = append(staged, t)
	}
	sort.Slice(staged, func(i, j int) bool { return len(staged[i].Dependencies) < len(staged[j].Dependencies) })

	if err := scratch.SaveTasks(staged); err != nil {
		scratch.Close()
		return nil, nil, err
	}
	snapshot, err := scratch.LoadTasks(nil)
	if err != nil {
		scratch.Close()
		return nil, nil, err
	}
	return scratch, snapshot, nil
}

// syncPlan is the computed set of writes one phase must apply.
type syncPlan struct {
	saveLocal    []store.Task
	purgeLocal   []string
	insertGoogle []store.Task           // tasks that need upstream ids
	patchGoogle  []store.Task           // ids are upstream ids
	deleteLocal  []string              // soft-delete then purge, upstream already gone
	deleteGoogle []googleRef           // purge locally after upstream confirms
	googleByID   map[string]store.Task // for conflict re-resolution
}

type googleRef struct {
	listID string
	taskID string
}

func newSyncPlan() *syncPlan {
	return &syncPlan{googleByID: make(map[string]store.Task)}
}

// classifyPull decides what each upstream task means for the local store.
func (e *Engine) classifyPull(ctx context.Context, snapshot []store.Task, result *SyncResult, prog *progressTracker) (*syncPlan, error) {
	local, err := e.local.LoadTasks(nil)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]store.Task, len(local))
	byFP := make(map[string]store.Task, len(local))
	for _, t := range local {
		byID[t.ID] = t
		if t.Status != store.StatusDeleted {
			byFP[store.TaskFingerprint(t)] = t
		}
	}

	plan := newSyncPlan()
	for i, g := range snapshot {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		plan.googleByID[g.ID] = g

		if lt, ok := byID[g.ID]; ok {
			if err := e.resolvePair(lt, g, plan, result); err != nil {
				return nil, err
			}
		} else if lt, ok := byFP[store.TaskFingerprint(g)]; ok {
			// Same content under a different id: the local row stands and its
			// id is the one used going forward. Nothing to insert.
			e.logger.Debug("upstream task %s duplicates local task %s", g.ID, lt.ID)
		} else if g.Status != store.StatusDeleted {
			plan.saveLocal = append(plan.saveLocal, g)
			result.Changed.Created++
		}

		if len(snapshot) > 0 {
			prog.set(weightLists+weightSnapshot+weightClassify*(i+1)/len(snapshot), "classifying upstream tasks")
		}
	}

	// Local soft-deletes propagate upstream only when the deletion is newer
	// than the upstream version; a newer upstream edit resurrects the task
	// via the resolver instead. The row is purged once upstream confirms.
	pendingDelete := make(map[string]bool, len(plan.deleteGoogle))
	for _, ref := range plan.deleteGoogle {
		pendingDelete[ref.taskID] = true
	}
	for _, lt := range local {
		if lt.Status != store.StatusDeleted || pendingDelete[lt.ID] {
			continue
		}
		g, upstream := plan.googleByID[lt.ID]
		if !upstream && e.pullRange > 0 {
			live, err := e.lookupUpstream(lt)
			if err != nil {
				return nil, err
			}
			if live != nil {
				g, upstream = *live, true
				plan.googleByID[g.ID] = g
			}
		}
		switch {
		case !upstream:
			plan.purgeLocal = append(plan.purgeLocal, lt.ID)
		case g.Status == store.StatusDeleted:
			plan.purgeLocal = append(plan.purgeLocal, lt.ID)
		case lt.ModifiedAt.After(g.ModifiedAt):
			plan.deleteGoogle = append(plan.deleteGoogle, googleRef{listID: lt.TasklistID, taskID: lt.ID})
		}
	}
	return plan, nil
}

// classifyPush decides what each local task means for the upstream service.
func (e *Engine) classifyPush(ctx context.Context, snapshot []store.Task, result *SyncResult, prog *progressTracker) (*syncPlan, error) {
	local, err := e.local.LoadTasks(nil)
	if err != nil {
		return nil, err
	}

	plan := newSyncPlan()
	gByID := make(map[string]store.Task, len(snapshot))
	gByFP := make(map[string]store.Task, len(snapshot))
	for _, g := range snapshot {
		gByID[g.ID] = g
		plan.googleByID[g.ID] = g
		if g.Status != store.StatusDeleted {
			gByFP[store.TaskFingerprint(g)] = g
		}
	}

	for i, lt := range local {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		switch {
		case lt.Status == store.StatusDeleted:
			g, upstream := gByID[lt.ID]
			if !upstream && e.pullRange > 0 {
				live, lerr := e.lookupUpstream(lt)
				if lerr != nil {
					return nil, lerr
				}
				if live != nil {
					g, upstream = *live, true
					plan.googleByID[g.ID] = g
				}
			}
			switch {
			case !upstream, g.Status == store.StatusDeleted:
				plan.purgeLocal = append(plan.purgeLocal, lt.ID)
			case lt.ModifiedAt.After(g.ModifiedAt):
				plan.deleteGoogle = append(plan.deleteGoogle, googleRef{listID: lt.TasklistID, taskID: lt.ID})
			default:
				// The upstream edit is newer; the resolver resurrects it.
				if err := e.resolvePair(lt, g, plan, result); err != nil {
					return nil, err
				}
			}
		default:
			if g, ok := gByID[lt.ID]; ok {
				if err := e.resolvePair(lt, g, plan, result); err != nil {
					return nil, err
				}
			} else if g, ok := gByFP[store.TaskFingerprint(lt)]; ok {
				// Already upstream under a different id; inserting again
				// would create a duplicate.
				e.logger.Debug("local task %s already upstream as %s", lt.ID, g.ID)
			} else if e.pullRange > 0 {
				live, lerr := e.lookupUpstream(lt)
				if lerr != nil {
					return nil, lerr
				}
				if live == nil {
					plan.insertGoogle = append(plan.insertGoogle, lt)
				} else {
					plan.googleByID[live.ID] = *live
					if err := e.resolvePair(lt, *live, plan, result); err != nil {
						return nil, err
					}
				}
			} else {
				plan.insertGoogle = append(plan.insertGoogle, lt)
			}
		}

		if len(local) > 0 {
			prog.set(weightLists+weightSnapshot+weightClassify*(i+1)/len(local), "classifying local tasks")
		}
	}
	return plan, nil
}

// resolvePair feeds one diverged local/upstream pair through the resolver and
// records the side effects in the plan.
func (e *Engine) resolvePair(local, google store.Task, plan *syncPlan, result *SyncResult) error {
	if sameContent(local, google) {
		return nil
	}
	res, err := e.resolver.Resolve([]Version{
		{Origin: OriginLocal, Task: local},
		{Origin: OriginGoogle, Task: google},
	})
	if err != nil {
		return err
	}
	result.ConflictsResolved++
	for _, effect := range res.Effects {
		switch effect {
		case PatchLocal:
			if res.Task.Status == store.StatusDeleted {
				// The upstream deletion won; route through DeleteTask so the
				// deletion log records it.
				plan.deleteLocal = append(plan.deleteLocal, local.ID)
				continue
			}
			plan.saveLocal = append(plan.saveLocal, res.Task)
			result.Changed.Updated++
		case PatchGoogle:
			if res.Task.Status == store.StatusDeleted {
				plan.deleteGoogle = append(plan.deleteGoogle, googleRef{listID: google.TasklistID, taskID: google.ID})
				continue
			}
			patched := res.Task
			patched.ID = google.ID
			patched.TasklistID = google.TasklistID
			plan.patchGoogle = append(plan.patchGoogle, patched)
		}
	}
	return nil
}

// apply commits the plan: local writes first in one transaction, then
// upstream calls. A transient upstream failure skips that task and the job
// reports partial success.
func (e *Engine) apply(ctx context.Context, plan *syncPlan, result *SyncResult, prog *progressTracker) error {
	base := weightLists + weightSnapshot + weightClassify
	total := len(plan.saveLocal) + len(plan.insertGoogle) + len(plan.patchGoogle) +
		len(plan.deleteGoogle) + len(plan.deleteLocal) + len(plan.purgeLocal)
	if total == 0 {
		prog.set(100, "nothing to apply")
		return nil
	}
	applied := 0
	step := func(msg string) {
		applied++
		prog.set(base+weightApply*applied/total, msg)
	}

	if err := e.applyLocal(plan); err != nil {
		return err
	}
	for range plan.saveLocal {
		step("applying local changes")
	}

	for _, id := range plan.deleteLocal {
		if err := e.local.DeleteTask(id, "sync"); err != nil && !errors.Is(err, store.ErrNotFound) {
			return err
		}
		if err := e.local.PurgeTask(id); err != nil {
			return err
		}
		result.Changed.Deleted++
		step("removing locally deleted rows")
	}

	for _, id := range plan.purgeLocal {
		if err := e.local.PurgeTask(id); err != nil {
			return err
		}
		result.Changed.Deleted++
		step("purging local rows")
	}

	// Upstream calls happen outside any local transaction. Transient failures
	// are collected, not fatal.
	for _, task := range plan.insertGoogle {
		if err := ctx.Err(); err != nil {
			return err
		}
		created, err := e.google.InsertTask(task.TasklistID, gtasks.FromTask(task))
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("insert %q: %v", task.Title, err))
			e.logger.Warn("upstream insert failed for %q: %v", task.Title, err)
			continue
		}
		if created.ID != task.ID {
			if err := e.rekeyTask(task.ID, created.ID); err != nil {
				return err
			}
		}
		result.Changed.Created++
		step("inserting upstream tasks")
	}

	for _, task := range plan.patchGoogle {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := e.google.PatchTask(task.TasklistID, task.ID, gtasks.PatchFields(task)); err != nil {
			if gtasks.IsNotFound(err) {
				// Row vanished upstream since the snapshot; re-insert next run.
				e.logger.Debug("patch target %s gone upstream", task.ID)
			} else {
				result.Errors = append(result.Errors, fmt.Sprintf("patch %s: %v", task.ID, err))
				e.logger.Warn("upstream patch failed for %s: %v", task.ID, err)
			}
			continue
		}
		result.Changed.Updated++
		step("patching upstream tasks")
	}

	for _, ref := range plan.deleteGoogle {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := e.google.DeleteTask(ref.listID, ref.taskID)
		if err != nil && !gtasks.IsNotFound(err) {
			result.Errors = append(result.Errors, fmt.Sprintf("delete %s: %v", ref.taskID, err))
			e.logger.Warn("upstream delete failed for %s: %v", ref.taskID, err)
			continue
		}
		// Deleting an already-gone task counts as success: the local purge
		// must still happen exactly once.
		if err := e.local.PurgeTask(ref.taskID); err != nil {
			return err
		}
		result.Changed.Deleted++
		step("deleting upstream tasks")
	}
	return nil
}

// applyLocal commits the plan's local writes in one transaction. An
// optimistic-lock conflict re-reads the offending row, re-resolves against
// the snapshot version and retries, up to three attempts per row.
func (e *Engine) applyLocal(plan *syncPlan) error {
	attempts := make(map[string]int)
	for {
		batch := make([]store.Task, len(plan.saveLocal))
		copy(batch, plan.saveLocal)
		err := e.local.SaveTasks(batch)
		if err == nil {
			break
		}
		var conflict *store.ConflictError
		if !errors.As(err, &conflict) {
			return err
		}
		attempts[conflict.TaskID]++
		if attempts[conflict.TaskID] >= 3 {
			return err
		}

		current, gerr := e.local.GetTask(conflict.TaskID)
		if gerr != nil {
			return err
		}
		google, ok := plan.googleByID[conflict.TaskID]
		if !ok {
			// No upstream counterpart: the concurrent local write wins.
			plan.saveLocal = removeTask(plan.saveLocal, conflict.TaskID)
			continue
		}
		res, rerr := e.resolver.Resolve([]Version{
			{Origin: OriginLocal, Task: *current},
			{Origin: OriginGoogle, Task: google},
		})
		if rerr != nil {
			return rerr
		}
		plan.saveLocal = replaceTask(plan.saveLocal, conflict.TaskID, res.Task)
	}
	return nil
}

// lookupUpstream fetches one task directly when a windowed snapshot cannot
// say whether it still exists upstream. Returns nil when the task is gone.
func (e *Engine) lookupUpstream(lt store.Task) (*store.Task, error) {
	res, err := e.google.GetTask(lt.TasklistID, lt.ID)
	if err != nil {
		if gtasks.IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	task := gtasks.ToTask(*res, lt.TasklistID, lt.ListTitle)
	return &task, nil
}

// rekeyTask moves a local row to the upstream-assigned id. Identifiers are
// never pushed upstream, so adoption always flows this direction.
func (e *Engine) rekeyTask(oldID, newID string) error {
	if err := e.local.RekeyTask(oldID, newID); err != nil && !errors.Is(err, store.ErrNotFound) {
		return err
	}
	return nil
}

func (e *Engine) finish(result *SyncResult, start time.Time, err error) (*SyncResult, error) {
	result.Duration = e.now().Sub(start)
	result.Success = err == nil
	if err != nil {
		if result.Message == "" {
			result.Message = err.Error()
		}
		return result, err
	}
	if result.Message == "" {
		result.Message = fmt.Sprintf("synced: %d created, %d updated, %d deleted, %d conflicts resolved",
			result.Changed.Created, result.Changed.Updated, result.Changed.Deleted, result.ConflictsResolved)
	}
	if len(result.Errors) > 0 {
		result.Message = fmt.Sprintf("%s (%d upstream calls failed)", result.Message, len(result.Errors))
	}
	return result, nil
}

func mergeResults(dst, src *SyncResult) {
	dst.Changed.Created += src.Changed.Created
	dst.Changed.Updated += src.Changed.Updated
	dst.Changed.Deleted += src.Changed.Deleted
	dst.ConflictsResolved += src.ConflictsResolved
	dst.Errors = append(dst.Errors, src.Errors...)
}

func removeTask(tasks []store.Task, id string) []store.Task {
	out := tasks[:0]
	for _, t := range tasks {
		if t.ID != id {
			out = append(out, t)
		}
	}
	return out
}

func replaceTask(tasks []store.Task, id string, replacement store.Task) []store.Task {
	for i := range tasks {
		if tasks[i].ID == id {
			tasks[i] = replacement
		}
	}
	return tasks
}

// progressTracker rate-limits callback invocations to 5% boundaries.
// Percentages never move backwards.
type progressTracker struct {
	report ProgressFunc
	mu     gosync.Mutex
	last   int
}

func newProgressTracker(report ProgressFunc) *progressTracker {
	return &progressTracker{report: report, last: -1}
}

func (p *progressTracker) set(pct int, message string) {
	if p.report == nil {
		return
	}
	p.mu.Lock()
	if pct <= p.last || (pct-p.last < 5 && pct != 100) {
		p.mu.Unlock()
		return
	}
	p.last = pct
	p.mu.Unlock()
	p.report(pct, message, JobRunning)
}
