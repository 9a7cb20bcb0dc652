package main

import (
	"context"
	"log"
	"time"

	"github.com/spf13/cobra"

	"gtasksync/sync"
)

// newBackgroundSyncCmd creates a hidden command that runs a push in the
// background. It is spawned as a separate process after an auto_save write
// so the foreground command can exit immediately.
func newBackgroundSyncCmd() *cobra.Command {
	return &cobra.Command{
		Use:    "_internal_background_sync",
		Hidden: true,
		Short:  "Internal command for background sync (do not call directly)",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp()
			if err != nil {
				log.Printf("[BackgroundSync] setup failed: %v", err)
				return nil // silent fail, operations stay queued locally
			}
			defer app.Close()

			if !app.Config.AutoSave {
				return nil
			}

			// Give the parent process a moment to exit.
			time.Sleep(100 * time.Millisecond)

			engine, err := app.engine(cmd.Context(), sync.JobPush)
			if err != nil {
				log.Printf("[BackgroundSync] engine setup failed: %v", err)
				return nil
			}

			registry := sync.DefaultRegistry()
			jobID, err := registry.Start(app.Account.ID, sync.JobPush, nil,
				func(ctx context.Context, report sync.ProgressFunc) (*sync.SyncResult, error) {
					return engine.Push(ctx, report)
				})
			if err != nil {
				// A running foreground sync owns the account; the next one
				// will pick up the pending changes.
				return nil
			}

			job, err := registry.Wait(jobID, 10*time.Second)
			if err != nil {
				return nil
			}
			if job.Status == sync.JobTimeout {
				registry.Cancel(jobID)
			} else if job.Status == sync.JobError {
				log.Printf("[BackgroundSync] push error: %v", job.Err)
			}
			return nil
		},
	}
}
