package main

import (
	"context"
	"fmt"
	"path/filepath"

	"gtasksync/gtasks"
	"gtasksync/internal/account"
	"gtasksync/internal/config"
	"gtasksync/internal/credentials"
	"gtasksync/internal/logging"
	"gtasksync/store"
	"gtasksync/store/remote"
	"gtasksync/sync"
)

// App wires the per-account components the commands need. Each command
// builds one, uses it, and closes it.
type App struct {
	Account  account.Account
	Config   config.Resolved
	Local    *store.LocalStore
	Accounts *account.Manager
	CfgStore *config.Store

	logger *logging.Logger
}

// newApp resolves the active account and opens its local store.
func newApp() (*App, error) {
	cfgStore, err := config.NewDefaultStore()
	if err != nil {
		return nil, err
	}
	manager := account.NewManager(cfgStore)
	acct, err := manager.Resolve(flagAccount)
	if err != nil {
		return nil, err
	}
	resolved, err := cfgStore.Resolve(acct.ID)
	if err != nil {
		return nil, err
	}
	local, err := store.NewLocalStore(acct.DatabasePath())
	if err != nil {
		return nil, err
	}
	logger := logging.GetLogger()
	if err := logger.LogToFile(filepath.Join(acct.LogDir(), "sync.log")); err != nil {
		logger.Warn("cannot open sync log for %s: %v", acct.ID, err)
	}
	return &App{
		Account:  acct,
		Config:   resolved,
		Local:    local,
		Accounts: manager,
		CfgStore: cfgStore,
		logger:   logger,
	}, nil
}

// Close releases the app's resources.
func (a *App) Close() error {
	return a.Local.Close()
}

// googleService builds the upstream client from the account's credentials.
func (a *App) googleService(ctx context.Context) (gtasks.Service, error) {
	resolver := credentials.NewResolver()
	ts, err := resolver.TokenSource(ctx, a.Account.ID, a.Account.CredentialsPath(), a.Account.TokenPath())
	if err != nil {
		return nil, err
	}
	return gtasks.NewClient(ts), nil
}

// remoteTargets opens every configured remote database. Inactive remotes are
// returned unopened so the engine can skip them; a remote that fails to
// connect is reported but does not block the rest.
func (a *App) remoteTargets() ([]sync.RemoteTarget, error) {
	configs, err := a.Local.LoadRemoteDBs()
	if err != nil {
		return nil, err
	}
	var targets []sync.RemoteTarget
	for _, cfg := range configs {
		if !cfg.IsActive {
			targets = append(targets, sync.RemoteTarget{Config: cfg})
			continue
		}
		token := cfg.Token
		if envToken := credentials.RemoteTokenFromEnv(a.Account.ID, cfg.Name); envToken != "" {
			token = envToken
		}
		rs, err := remote.New(remote.Config{URL: cfg.URL, Token: token})
		if err != nil {
			return nil, err
		}
		if err := rs.Connect(); err != nil {
			a.logger.Warn("remote %s unreachable: %v", cfg.URL, err)
			cfg.IsActive = false
			targets = append(targets, sync.RemoteTarget{Config: cfg})
			continue
		}
		targets = append(targets, sync.RemoteTarget{Config: cfg, Store: rs})
	}
	return targets, nil
}

// engine assembles the sync engine for the resolved account. Kinds that do
// not touch Google run without upstream credentials.
func (a *App) engine(ctx context.Context, kind sync.JobKind) (*sync.Engine, error) {
	strategy, err := sync.ParseStrategy(a.Config.ConflictStrategy)
	if err != nil {
		return nil, err
	}
	opts := sync.Options{
		AccountID:     a.Account.ID,
		Local:         a.Local,
		Strategy:      strategy,
		PullRangeDays: a.Config.PullRangeDays,
	}

	switch kind {
	case sync.JobRemotePush, sync.JobRemotePull, sync.JobRemoteBoth:
		targets, err := a.remoteTargets()
		if err != nil {
			return nil, err
		}
		opts.Remotes = targets
	default:
		google, err := a.googleService(ctx)
		if err != nil {
			return nil, err
		}
		opts.Google = google
	}
	return sync.NewEngine(opts)
}

// parseJobKind validates a --kind flag value.
func parseJobKind(s string) (sync.JobKind, error) {
	switch sync.JobKind(s) {
	case sync.JobPush, sync.JobPull, sync.JobBoth,
		sync.JobRemotePush, sync.JobRemotePull, sync.JobRemoteBoth:
		return sync.JobKind(s), nil
	default:
		return "", fmt.Errorf("unknown sync kind %q (valid: push, pull, both, remote_push, remote_pull, remote_both)", s)
	}
}
