package sync

import (
	"context"
	"errors"
	gosync "sync"
	"testing"
	"time"
)

// blockingRunner runs until its release channel closes or the context is
// cancelled.
func blockingRunner(started chan<- struct{}, release <-chan struct{}) JobRunner {
	return func(ctx context.Context, report ProgressFunc) (*SyncResult, error) {
		if started != nil {
			close(started)
		}
		select {
		case <-release:
			return &SyncResult{Success: true, Message: "done"}, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func TestStartRejectsConcurrentJobForSameAccount(t *testing.T) {
	registry := NewRegistry()
	started := make(chan struct{})
	release := make(chan struct{})

	const workers = 2
	ids := make([]string, workers)
	errs := make([]error, workers)
	var wg gosync.WaitGroup
	var startedOnce gosync.Once
	for i := 0; i < workers; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			ids[i], errs[i] = registry.Start("acct", JobBoth, nil, func(ctx context.Context, report ProgressFunc) (*SyncResult, error) {
				startedOnce.Do(func() { close(started) })
				select {
				case <-release:
					return &SyncResult{Success: true}, nil
				case <-ctx.Done():
					return nil, ctx.Err()
				}
			})
		}()
	}
	wg.Wait()

	var winners, busy int
	var winnerID string
	for i := 0; i < workers; i++ {
		switch {
		case errs[i] == nil:
			winners++
			winnerID = ids[i]
		case errors.Is(errs[i], ErrBusy):
			busy++
		default:
			t.Errorf("unexpected error: %v", errs[i])
		}
	}
	if winners != 1 || busy != 1 {
		t.Fatalf("winners = %d, busy = %d, want exactly one of each", winners, busy)
	}

	<-started
	close(release)
	job, err := registry.Wait(winnerID, time.Second)
	if err != nil {
		t.Fatalf("Wait failed: %v", err)
	}
	if job.Status != JobCompleted {
		t.Errorf("status = %s, want completed", job.Status)
	}

	// A terminal job frees the account for the next run.
	if _, err := registry.Start("acct", JobBoth, nil, blockingRunner(nil, closedChan())); err != nil {
		t.Errorf("Start after completion failed: %v", err)
	}
}

func closedChan() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

func TestDifferentAccountsRunConcurrently(t *testing.T) {
	registry := NewRegistry()
	release := make(chan struct{})

	id1, err := registry.Start("a", JobPull, nil, blockingRunner(nil, release))
	if err != nil {
		t.Fatalf("Start a failed: %v", err)
	}
	id2, err := registry.Start("b", JobPull, nil, blockingRunner(nil, release))
	if err != nil {
		t.Fatalf("Start b failed: %v", err)
	}

	close(release)
	for _, id := range []string{id1, id2} {
		if job, err := registry.Wait(id, time.Second); err != nil || job.Status != JobCompleted {
			t.Errorf("job %s: status %s err %v", id, job.Status, err)
		}
	}
}

func TestProgressNeverMovesBackwards(t *testing.T) {
	registry := NewRegistry()
	var mu gosync.Mutex
	var seen []int

	id, err := registry.Start("acct", JobPull, func(pct int, message string, status JobStatus) {
		mu.Lock()
		seen = append(seen, pct)
		mu.Unlock()
	}, func(ctx context.Context, report ProgressFunc) (*SyncResult, error) {
		report(10, "a", JobRunning)
		report(40, "b", JobRunning)
		report(25, "out of order", JobRunning)
		report(90, "c", JobRunning)
		return &SyncResult{Success: true}, nil
	})
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if _, err := registry.Wait(id, time.Second); err != nil {
		t.Fatalf("Wait failed: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	for i := 1; i < len(seen); i++ {
		if seen[i] < seen[i-1] {
			t.Fatalf("percentage moved backwards: %v", seen)
		}
	}
	if seen[len(seen)-1] != 100 {
		t.Errorf("final percentage = %d, want 100", seen[len(seen)-1])
	}
}

func TestWaitTimeoutLeavesJobRunning(t *testing.T) {
	registry := NewRegistry()
	started := make(chan struct{})
	release := make(chan struct{})

	id, err := registry.Start("acct", JobPull, nil, blockingRunner(started, release))
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	<-started

	job, err := registry.Wait(id, 10*time.Millisecond)
	if err != nil {
		t.Fatalf("Wait failed: %v", err)
	}
	if job.Status != JobTimeout {
		t.Errorf("status = %s, want timeout", job.Status)
	}

	// The job was not cancelled by the timeout and can still complete.
	close(release)
	job, err = registry.Wait(id, time.Second)
	if err != nil {
		t.Fatalf("second Wait failed: %v", err)
	}
	if job.Status != JobCompleted {
		t.Errorf("status = %s, want completed after release", job.Status)
	}
}

func TestCancelStopsRunningJob(t *testing.T) {
	registry := NewRegistry()
	started := make(chan struct{})

	id, err := registry.Start("acct", JobPull, nil, blockingRunner(started, nil))
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	<-started

	if !registry.Cancel(id) {
		t.Fatal("Cancel returned false for a running job")
	}
	job, err := registry.Wait(id, time.Second)
	if err != nil {
		t.Fatalf("Wait failed: %v", err)
	}
	if job.Status != JobCancelled {
		t.Errorf("status = %s, want cancelled", job.Status)
	}

	// Cancelling a finished job is a no-op.
	if registry.Cancel(id) {
		t.Error("Cancel returned true for a terminal job")
	}
}

func TestRunnerErrorMarksJobFailed(t *testing.T) {
	registry := NewRegistry()
	boom := errors.New("upstream exploded")

	id, err := registry.Start("acct", JobPush, nil, func(ctx context.Context, report ProgressFunc) (*SyncResult, error) {
		return &SyncResult{Message: "partial"}, boom
	})
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	job, err := registry.Wait(id, time.Second)
	if err != nil {
		t.Fatalf("Wait failed: %v", err)
	}
	if job.Status != JobError {
		t.Errorf("status = %s, want error", job.Status)
	}
	if !errors.Is(job.Err, boom) {
		t.Errorf("job error = %v, want %v", job.Err, boom)
	}
	if job.Result == nil || job.Result.Message != "partial" {
		t.Errorf("partial result not kept: %+v", job.Result)
	}
}

func TestCleanupDropsOldTerminalJobs(t *testing.T) {
	registry := NewRegistry()

	id, err := registry.Start("acct", JobPull, nil, func(ctx context.Context, report ProgressFunc) (*SyncResult, error) {
		return &SyncResult{Success: true}, nil
	})
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if _, err := registry.Wait(id, time.Second); err != nil {
		t.Fatalf("Wait failed: %v", err)
	}

	// Still within the retention window.
	if removed := registry.Cleanup(time.Hour); removed != 0 {
		t.Errorf("removed = %d, want 0 for a fresh job", removed)
	}

	// Age the job past the cutoff.
	registry.mu.Lock()
	state := registry.jobs[id]
	state.job.FinishedAt = time.Now().UTC().Add(-2 * time.Hour)
	registry.mu.Unlock()

	if removed := registry.Cleanup(time.Hour); removed != 1 {
		t.Errorf("removed = %d, want 1", removed)
	}
	if _, err := registry.Progress(id); !errors.Is(err, ErrJobNotFound) {
		t.Errorf("Progress after cleanup = %v, want ErrJobNotFound", err)
	}
	// The account slot was released too.
	if _, err := registry.Start("acct", JobPull, nil, blockingRunner(nil, closedChan())); err != nil {
		t.Errorf("Start after cleanup failed: %v", err)
	}
}

func TestCleanupKeepsRunningJobs(t *testing.T) {
	registry := NewRegistry()
	started := make(chan struct{})
	release := make(chan struct{})
	defer close(release)

	id, err := registry.Start("acct", JobPull, nil, blockingRunner(started, release))
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	<-started

	if removed := registry.Cleanup(time.Nanosecond); removed != 0 {
		t.Errorf("removed = %d, want 0 while running", removed)
	}
	if _, err := registry.Progress(id); err != nil {
		t.Errorf("running job vanished: %v", err)
	}
}

func TestShutdownCancelsStragglers(t *testing.T) {
	registry := NewRegistry()
	started := make(chan struct{})

	id, err := registry.Start("acct", JobPull, nil, blockingRunner(started, nil))
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	<-started

	registry.Shutdown(10 * time.Millisecond)

	job, err := registry.Progress(id)
	if err != nil {
		t.Fatalf("Progress failed: %v", err)
	}
	if job.Status != JobCancelled {
		t.Errorf("status = %s, want cancelled after shutdown deadline", job.Status)
	}

	// No new jobs after shutdown.
	if _, err := registry.Start("acct", JobPull, nil, blockingRunner(nil, closedChan())); err == nil {
		t.Error("Start after Shutdown should fail")
	}
}

func TestJobsListsKnownJobs(t *testing.T) {
	registry := NewRegistry()
	release := make(chan struct{})

	if _, err := registry.Start("a", JobPull, nil, blockingRunner(nil, release)); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if _, err := registry.Start("b", JobPush, nil, blockingRunner(nil, release)); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	close(release)

	jobs := registry.Jobs()
	if len(jobs) != 2 {
		t.Errorf("jobs = %d, want 2", len(jobs))
	}
}
