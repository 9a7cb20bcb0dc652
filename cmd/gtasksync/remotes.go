package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"gtasksync/store"
	"gtasksync/store/remote"
)

func newRemotesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "remotes",
		Short: "Manage replicated remote databases of the active account",
	}
	cmd.AddCommand(newRemotesAddCmd(), newRemotesListCmd(), newRemotesRemoveCmd())
	return cmd
}

func newRemotesAddCmd() *cobra.Command {
	var (
		flagName     string
		flagAutoSync bool
		flagFreq     int
		flagNoVerify bool
	)

	cmd := &cobra.Command{
		Use:   "add <url>",
		Short: "Register a remote database",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			url := strings.TrimSpace(args[0])

			app, err := newApp()
			if err != nil {
				return err
			}
			defer app.Close()

			token, err := promptSecret(fmt.Sprintf("Bearer token for %s (empty for none): ", url))
			if err != nil {
				return err
			}

			cfg := store.RemoteDBConfig{
				URL:                  url,
				Name:                 flagName,
				Token:                token,
				IsActive:             true,
				AutoSync:             flagAutoSync,
				SyncFrequencyMinutes: flagFreq,
			}

			if !flagNoVerify {
				rs, err := remote.New(remote.Config{URL: url, Token: token})
				if err != nil {
					return err
				}
				if err := rs.Connect(); err != nil {
					return fmt.Errorf("remote verification failed: %w", err)
				}
			}

			configs, err := app.Local.LoadRemoteDBs()
			if err != nil {
				return err
			}
			for _, existing := range configs {
				if existing.URL == url {
					return fmt.Errorf("remote %s is already registered", url)
				}
			}
			configs = append(configs, cfg)
			if err := app.Local.SaveRemoteDBs(configs); err != nil {
				return err
			}
			fmt.Printf("Registered remote %s\n", url)
			return nil
		},
	}

	cmd.Flags().StringVar(&flagName, "name", "", "human-readable name")
	cmd.Flags().BoolVar(&flagAutoSync, "auto-sync", false, "include in scheduled replication")
	cmd.Flags().IntVar(&flagFreq, "frequency", 0, "replication frequency in minutes (0 = manual)")
	cmd.Flags().BoolVar(&flagNoVerify, "no-verify", false, "skip connecting to the remote before saving")
	return cmd
}

func newRemotesListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List registered remote databases",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp()
			if err != nil {
				return err
			}
			defer app.Close()

			configs, err := app.Local.LoadRemoteDBs()
			if err != nil {
				return err
			}
			if len(configs) == 0 {
				fmt.Println("No remote databases registered.")
				return nil
			}
			for _, cfg := range configs {
				state := "inactive"
				if cfg.IsActive {
					state = "active"
				}
				last := "never"
				if cfg.LastSyncedAt != nil {
					last = cfg.LastSyncedAt.Format("2006-01-02 15:04:05")
				}
				name := cfg.Name
				if name == "" {
					name = "-"
				}
				fmt.Printf("%-20s %-40s %-8s last synced: %s\n", name, cfg.URL, state, last)
			}
			return nil
		},
	}
}

func newRemotesRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <url-or-name>",
		Short: "Remove a registered remote database",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key := strings.TrimSpace(args[0])

			app, err := newApp()
			if err != nil {
				return err
			}
			defer app.Close()

			configs, err := app.Local.LoadRemoteDBs()
			if err != nil {
				return err
			}
			kept := configs[:0]
			removed := 0
			for _, cfg := range configs {
				if cfg.URL == key || (cfg.Name != "" && cfg.Name == key) {
					removed++
					continue
				}
				kept = append(kept, cfg)
			}
			if removed == 0 {
				return fmt.Errorf("no remote matches %q", key)
			}
			if err := app.Local.SaveRemoteDBs(kept); err != nil {
				return err
			}
			fmt.Printf("Removed %d remote(s)\n", removed)
			return nil
		},
	}
}

// promptSecret reads a secret without echoing when stdin is a terminal.
func promptSecret(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		data, err := term.ReadPassword(fd)
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return "", fmt.Errorf("failed to read secret: %w", err)
		}
		return strings.TrimSpace(string(data)), nil
	}
	var line string
	if _, err := fmt.Fscanln(os.Stdin, &line); err != nil && err.Error() != "unexpected newline" {
		return "", nil
	}
	return strings.TrimSpace(line), nil
}
