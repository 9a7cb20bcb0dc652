package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"gtasksync/sync"
)

func newSyncCmd() *cobra.Command {
	var (
		flagKind    string
		flagTimeout time.Duration
		flagQuiet   bool
	)

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Run a sync job for the active account",
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := parseJobKind(flagKind)
			if err != nil {
				return err
			}

			app, err := newApp()
			if err != nil {
				return err
			}
			defer app.Close()

			engine, err := app.engine(cmd.Context(), kind)
			if err != nil {
				return err
			}

			registry := sync.DefaultRegistry()
			var callback sync.ProgressFunc
			if !flagQuiet {
				callback = func(pct int, message string, status sync.JobStatus) {
					fmt.Printf("\r[%3d%%] %-60s", pct, message)
					if status.Terminal() {
						fmt.Println()
					}
				}
			}

			jobID, err := registry.Start(app.Account.ID, kind, callback,
				func(ctx context.Context, report sync.ProgressFunc) (*sync.SyncResult, error) {
					return engine.Run(ctx, kind, report)
				})
			if err != nil {
				return err
			}

			job, err := registry.Wait(jobID, flagTimeout)
			if err != nil {
				return err
			}
			switch job.Status {
			case sync.JobCompleted:
				if job.Result != nil {
					fmt.Println(job.Result.Message)
					for _, msg := range job.Result.Errors {
						fmt.Printf("  warning: %s\n", msg)
					}
				}
				return nil
			case sync.JobTimeout:
				registry.Cancel(jobID)
				final, _ := registry.Wait(jobID, 10*time.Second)
				return fmt.Errorf("sync timed out after %s (status now %s)", flagTimeout, final.Status)
			default:
				if job.Err != nil {
					return job.Err
				}
				return fmt.Errorf("sync finished with status %s", job.Status)
			}
		},
	}

	cmd.Flags().StringVar(&flagKind, "kind", string(sync.JobBoth), "sync kind: push, pull, both, remote_push, remote_pull, remote_both")
	cmd.Flags().DurationVar(&flagTimeout, "timeout", 10*time.Minute, "give up waiting after this long (the job keeps running)")
	cmd.Flags().BoolVarP(&flagQuiet, "quiet", "q", false, "suppress progress output")
	return cmd
}
