package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"gtasksync/internal/account"
	"gtasksync/internal/config"
)

func newAccountsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "accounts",
		Short: "Manage configured accounts",
	}
	cmd.AddCommand(newAccountsListCmd(), newAccountsAddCmd(), newAccountsRemoveCmd(), newAccountsDefaultCmd())
	return cmd
}

func accountManager() (*account.Manager, *config.Store, error) {
	cfgStore, err := config.NewDefaultStore()
	if err != nil {
		return nil, nil, err
	}
	return account.NewManager(cfgStore), cfgStore, nil
}

func newAccountsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List accounts",
		RunE: func(cmd *cobra.Command, args []string) error {
			manager, cfgStore, err := accountManager()
			if err != nil {
				return err
			}
			accounts, err := manager.List()
			if err != nil {
				return err
			}
			if len(accounts) == 0 {
				fmt.Println("No accounts configured.")
				return nil
			}
			global, err := cfgStore.LoadGlobal()
			if err != nil {
				return err
			}
			for _, acct := range accounts {
				marker := " "
				if acct.ID == global.DefaultAccount {
					marker = "*"
				}
				fmt.Printf("%s %s\n", marker, acct.ID)
			}
			return nil
		},
	}
}

func newAccountsAddCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "add <id>",
		Short: "Create an account directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			manager, _, err := accountManager()
			if err != nil {
				return err
			}
			acct, err := manager.Create(args[0])
			if err != nil {
				return err
			}
			fmt.Printf("Created account %s at %s\n", acct.ID, acct.Dir)
			fmt.Printf("Place the downloaded client credentials at %s\n", acct.CredentialsPath())
			return nil
		},
	}
}

func newAccountsRemoveCmd() *cobra.Command {
	var flagYes bool
	cmd := &cobra.Command{
		Use:   "remove <id>",
		Short: "Delete an account and all its local data",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !flagYes {
				return fmt.Errorf("removing an account deletes its local database; re-run with --yes to confirm")
			}
			manager, _, err := accountManager()
			if err != nil {
				return err
			}
			if err := manager.Remove(args[0]); err != nil {
				return err
			}
			fmt.Printf("Removed account %s\n", args[0])
			return nil
		},
	}
	cmd.Flags().BoolVar(&flagYes, "yes", false, "confirm deletion")
	return cmd
}

func newAccountsDefaultCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "default <id>",
		Short: "Set the default account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			manager, cfgStore, err := accountManager()
			if err != nil {
				return err
			}
			if _, err := manager.Get(args[0]); err != nil {
				return err
			}
			global, err := cfgStore.LoadGlobal()
			if err != nil {
				return err
			}
			global.DefaultAccount = args[0]
			if err := cfgStore.SaveGlobal(global); err != nil {
				return err
			}
			fmt.Printf("Default account set to %s\n", args[0])
			return nil
		},
	}
}
