package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"gtasksync/internal/logging"
	"gtasksync/store"
	"gtasksync/sync"
)

// Exit codes.
const (
	exitOK      = 0
	exitGeneric = 1
	exitAuth    = 2
	exitNetwork = 3
	exitBusy    = 4
)

var (
	flagAccount string
	flagVerbose bool
)

func main() {
	root := &cobra.Command{
		Use:           "gtasksync",
		Short:         "Synchronization core for Google Tasks accounts",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logging.GetLogger().SetVerbose(flagVerbose)
		},
	}
	root.PersistentFlags().StringVar(&flagAccount, "account", "", "account id (default: resolved from env/config)")
	root.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "enable debug logging")

	root.AddCommand(newSyncCmd())
	root.AddCommand(newRemotesCmd())
	root.AddCommand(newAccountsCmd())
	root.AddCommand(newBackgroundSyncCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitCodeFor(err))
	}
	os.Exit(exitOK)
}

// exitCodeFor maps an error to the documented exit codes: 2 for auth
// failures, 3 for network failures, 4 when the account is busy, 1 otherwise.
func exitCodeFor(err error) int {
	if err == nil {
		return exitOK
	}
	if errors.Is(err, sync.ErrBusy) {
		return exitBusy
	}
	var authErr *store.AuthError
	if errors.As(err, &authErr) {
		return exitAuth
	}
	var upstreamErr *store.UpstreamError
	if errors.As(err, &upstreamErr) && upstreamErr.IsUnauthorized() {
		return exitAuth
	}
	var netErr *store.TransientNetError
	if errors.As(err, &netErr) {
		return exitNetwork
	}
	return exitGeneric
}
