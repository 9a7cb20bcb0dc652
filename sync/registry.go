package sync

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// JobKind names one sync operation.
type JobKind string

const (
	JobPush       JobKind = "push"
	JobPull       JobKind = "pull"
	JobBoth       JobKind = "both"
	JobRemotePush JobKind = "remote_push"
	JobRemotePull JobKind = "remote_pull"
	JobRemoteBoth JobKind = "remote_both"
)

// JobStatus is the lifecycle state of a job. completed, error, cancelled and
// timeout are terminal.
type JobStatus string

const (
	JobPending   JobStatus = "pending"
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobError     JobStatus = "error"
	JobCancelled JobStatus = "cancelled"
	JobTimeout   JobStatus = "timeout"
)

func (s JobStatus) Terminal() bool {
	switch s {
	case JobCompleted, JobError, JobCancelled, JobTimeout:
		return true
	}
	return false
}

// ErrBusy is returned when a sync is requested for an account that already
// has a running job.
var ErrBusy = errors.New("sync already running for account")

// ErrJobNotFound is returned when a job id is unknown to the registry.
var ErrJobNotFound = errors.New("sync job not found")

// ProgressFunc receives progress updates on the job's worker goroutine.
// It must return quickly.
type ProgressFunc func(percentage int, message string, status JobStatus)

// SyncJob is a snapshot of one job's state.
type SyncJob struct {
	ID         string
	AccountID  string
	Kind       JobKind
	Status     JobStatus
	Percentage int
	Message    string
	Result     *SyncResult
	Err        error
	StartedAt  time.Time
	FinishedAt time.Time
}

// JobRunner is the work a job executes. The engine implements it; the
// context carries cancellation.
type JobRunner func(ctx context.Context, report ProgressFunc) (*SyncResult, error)

type jobState struct {
	job      SyncJob
	cancel   context.CancelFunc
	done     chan struct{}
	callback ProgressFunc
}

// Registry tracks sync jobs across the process. At most one job runs per
// account at a time.
type Registry struct {
	mu        sync.Mutex
	jobs      map[string]*jobState
	byAccount map[string]string
	wg        sync.WaitGroup
	closed    bool
}

var (
	defaultRegistry     *Registry
	defaultRegistryOnce sync.Once
)

// DefaultRegistry returns the process-wide registry, creating it on first
// use.
func DefaultRegistry() *Registry {
	defaultRegistryOnce.Do(func() {
		defaultRegistry = NewRegistry()
	})
	return defaultRegistry
}

// NewRegistry builds an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		jobs:      make(map[string]*jobState),
		byAccount: make(map[string]string),
	}
}

// Start launches run on its own goroutine and returns the job id. It fails
// with ErrBusy while another job for the same account has not reached a
// terminal state.
func (r *Registry) Start(accountID string, kind JobKind, callback ProgressFunc, run JobRunner) (string, error) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return "", errors.New("sync registry is shut down")
	}
	if existingID, ok := r.byAccount[accountID]; ok {
		if existing := r.jobs[existingID]; existing != nil && !existing.job.Status.Terminal() {
			r.mu.Unlock()
			return "", fmt.Errorf("%w: %s (job %s)", ErrBusy, accountID, existingID)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	state := &jobState{
		job: SyncJob{
			ID:        uuid.NewString(),
			AccountID: accountID,
			Kind:      kind,
			Status:    JobRunning,
			StartedAt: time.Now().UTC(),
		},
		cancel:   cancel,
		done:     make(chan struct{}),
		callback: callback,
	}
	r.jobs[state.job.ID] = state
	r.byAccount[accountID] = state.job.ID
	r.wg.Add(1)
	r.mu.Unlock()

	go r.execute(ctx, state, run)
	return state.job.ID, nil
}

func (r *Registry) execute(ctx context.Context, state *jobState, run JobRunner) {
	defer r.wg.Done()
	defer close(state.done)

	report := func(percentage int, message string, status JobStatus) {
		r.report(state, percentage, message)
	}

	result, err := run(ctx, report)

	r.mu.Lock()
	switch {
	case err == nil:
		state.job.Status = JobCompleted
		state.job.Percentage = 100
		state.job.Result = result
		state.job.Message = "sync completed"
		if result != nil && result.Message != "" {
			state.job.Message = result.Message
		}
	case errors.Is(err, context.Canceled) || ctx.Err() == context.Canceled:
		state.job.Status = JobCancelled
		state.job.Err = err
		state.job.Message = "sync cancelled"
		state.job.Result = result
	default:
		state.job.Status = JobError
		state.job.Err = err
		state.job.Message = err.Error()
		state.job.Result = result
	}
	state.job.FinishedAt = time.Now().UTC()
	snapshot := state.job
	callback := state.callback
	r.mu.Unlock()

	if callback != nil {
		callback(snapshot.Percentage, snapshot.Message, snapshot.Status)
	}
}

// report applies a progress update. Percentage is write-once-increasing:
// updates that would move it backwards keep the previous value.
func (r *Registry) report(state *jobState, percentage int, message string) {
	r.mu.Lock()
	if state.job.Status.Terminal() {
		r.mu.Unlock()
		return
	}
	if percentage > state.job.Percentage {
		state.job.Percentage = percentage
	}
	if message != "" {
		state.job.Message = message
	}
	snapshot := state.job
	callback := state.callback
	r.mu.Unlock()

	if callback != nil {
		callback(snapshot.Percentage, snapshot.Message, snapshot.Status)
	}
}

// Progress returns a snapshot of the job.
func (r *Registry) Progress(jobID string) (SyncJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	state, ok := r.jobs[jobID]
	if !ok {
		return SyncJob{}, ErrJobNotFound
	}
	return state.job, nil
}

// Wait blocks until the job reaches a terminal state or timeout elapses.
// On timeout the returned snapshot carries status timeout but the job keeps
// running; cancelling it requires an explicit Cancel.
func (r *Registry) Wait(jobID string, timeout time.Duration) (SyncJob, error) {
	r.mu.Lock()
	state, ok := r.jobs[jobID]
	r.mu.Unlock()
	if !ok {
		return SyncJob{}, ErrJobNotFound
	}

	var timer <-chan time.Time
	if timeout > 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		timer = t.C
	}

	select {
	case <-state.done:
		return r.Progress(jobID)
	case <-timer:
		job, err := r.Progress(jobID)
		if err != nil {
			return SyncJob{}, err
		}
		if !job.Status.Terminal() {
			job.Status = JobTimeout
		}
		return job, nil
	}
}

// Cancel requests cooperative cancellation. It reports whether the job was
// still running when the request landed.
func (r *Registry) Cancel(jobID string) bool {
	r.mu.Lock()
	state, ok := r.jobs[jobID]
	if !ok || state.job.Status.Terminal() {
		r.mu.Unlock()
		return false
	}
	cancel := state.cancel
	r.mu.Unlock()

	cancel()
	return true
}

// Cleanup drops terminal jobs older than maxAge. A zero maxAge defaults to
// one hour.
func (r *Registry) Cleanup(maxAge time.Duration) int {
	if maxAge <= 0 {
		maxAge = time.Hour
	}
	cutoff := time.Now().UTC().Add(-maxAge)

	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for id, state := range r.jobs {
		if !state.job.Status.Terminal() || state.job.FinishedAt.After(cutoff) {
			continue
		}
		delete(r.jobs, id)
		if r.byAccount[state.job.AccountID] == id {
			delete(r.byAccount, state.job.AccountID)
		}
		removed++
	}
	return removed
}

// Jobs returns snapshots of all known jobs, running and terminal.
func (r *Registry) Jobs() []SyncJob {
	r.mu.Lock()
	defer r.mu.Unlock()
	jobs := make([]SyncJob, 0, len(r.jobs))
	for _, state := range r.jobs {
		jobs = append(jobs, state.job)
	}
	return jobs
}

// Shutdown stops accepting new jobs and waits for running ones. When the
// deadline passes before they finish, remaining jobs are cancelled and
// waited for.
func (r *Registry) Shutdown(deadline time.Duration) {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	var timer <-chan time.Time
	if deadline > 0 {
		t := time.NewTimer(deadline)
		defer t.Stop()
		timer = t.C
	}

	select {
	case <-done:
		return
	case <-timer:
	}

	r.mu.Lock()
	for _, state := range r.jobs {
		if !state.job.Status.Terminal() {
			state.cancel()
		}
	}
	r.mu.Unlock()
	<-done
}
