package account

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"

	"gtasksync/internal/config"
)

// EnvAccount selects the active account, overriding the global config but
// not an explicit --account flag.
const EnvAccount = "GTASKSYNC_ACCOUNT"

const accountDirPerm = 0755

// Account is one configured account directory under the config root.
type Account struct {
	ID  string
	Dir string
}

// DatabasePath is the account's local store file.
func (a Account) DatabasePath() string {
	return filepath.Join(a.Dir, "tasks.db")
}

// CredentialsPath holds the opaque upstream credentials.
func (a Account) CredentialsPath() string {
	return filepath.Join(a.Dir, "credentials.json")
}

// TokenPath holds the serialized refresh token.
func (a Account) TokenPath() string {
	return filepath.Join(a.Dir, "token.json")
}

// LogDir is where the account's sync logs go.
func (a Account) LogDir() string {
	return filepath.Join(a.Dir, "logs")
}

// Manager enumerates and resolves accounts under one config root.
type Manager struct {
	root string
	cfg  *config.Store
}

// NewManager builds a manager over the given config store.
func NewManager(cfg *config.Store) *Manager {
	return &Manager{root: cfg.Root(), cfg: cfg}
}

var validAccountID = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._@-]*$`)

// List returns all account directories under the root, sorted by id. A
// directory counts as an account when its name is a valid account id and it
// is not a hidden or internal directory.
func (m *Manager) List() ([]Account, error) {
	entries, err := os.ReadDir(m.root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}

	var accounts []Account
	for _, entry := range entries {
		if !entry.IsDir() || !validAccountID.MatchString(entry.Name()) {
			continue
		}
		accounts = append(accounts, Account{
			ID:  entry.Name(),
			Dir: filepath.Join(m.root, entry.Name()),
		})
	}
	sort.Slice(accounts, func(i, j int) bool { return accounts[i].ID < accounts[j].ID })
	return accounts, nil
}

// Get returns the account with the given id, or an error when its directory
// does not exist.
func (m *Manager) Get(id string) (Account, error) {
	if !validAccountID.MatchString(id) {
		return Account{}, fmt.Errorf("invalid account id %q", id)
	}
	dir := filepath.Join(m.root, id)
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return Account{}, fmt.Errorf("account %q does not exist (run: gtasksync accounts add %s)", id, id)
	}
	return Account{ID: id, Dir: dir}, nil
}

// Create makes the account directory skeleton. Creating an existing account
// is not an error.
func (m *Manager) Create(id string) (Account, error) {
	if !validAccountID.MatchString(id) {
		return Account{}, fmt.Errorf("invalid account id %q", id)
	}
	acct := Account{ID: id, Dir: filepath.Join(m.root, id)}
	if err := os.MkdirAll(acct.LogDir(), accountDirPerm); err != nil {
		return Account{}, fmt.Errorf("failed to create account dir: %w", err)
	}
	return acct, nil
}

// Remove deletes the account directory and everything in it.
func (m *Manager) Remove(id string) error {
	acct, err := m.Get(id)
	if err != nil {
		return err
	}
	return os.RemoveAll(acct.Dir)
}

// Resolve picks the active account: the explicit flag value wins, then the
// GTASKSYNC_ACCOUNT environment variable, then default_account from the
// global config, and finally the sole existing account when there is exactly
// one.
func (m *Manager) Resolve(flagValue string) (Account, error) {
	if flagValue != "" {
		return m.Get(flagValue)
	}
	if env := os.Getenv(EnvAccount); env != "" {
		return m.Get(env)
	}
	global, err := m.cfg.LoadGlobal()
	if err != nil {
		return Account{}, err
	}
	if global.DefaultAccount != "" {
		return m.Get(global.DefaultAccount)
	}

	accounts, err := m.List()
	if err != nil {
		return Account{}, err
	}
	switch len(accounts) {
	case 0:
		return Account{}, fmt.Errorf("no accounts configured (run: gtasksync accounts add <id>)")
	case 1:
		return accounts[0], nil
	default:
		ids := make([]string, len(accounts))
		for i, a := range accounts {
			ids[i] = a.ID
		}
		return Account{}, fmt.Errorf("multiple accounts configured (%v); pick one with --account or %s", ids, EnvAccount)
	}
}
