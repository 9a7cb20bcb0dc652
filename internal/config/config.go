package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

const (
	configDirName  = "gtasksync"
	configFileName = "config.yaml"

	configDirPerm  = 0755
	configFilePerm = 0644

	// EnvConfigDir overrides the config root, mainly for tests.
	EnvConfigDir = "GTASKSYNC_CONFIG_DIR"
)

// SyncSettings holds the sync-related keys. Pointer fields distinguish
// "unset" from zero values so layered merging works.
type SyncSettings struct {
	// PullRangeDays bounds incremental pulls; nil means full pull.
	PullRangeDays *int `yaml:"pull_range_days,omitempty"`
	// AutoSave triggers a single-task sync after each mutating operation.
	AutoSave *bool `yaml:"auto_save,omitempty"`
	// ConflictStrategy is one of local_wins, remote_wins, latest_wins, merge.
	ConflictStrategy string `yaml:"conflict_strategy,omitempty" validate:"omitempty,oneof=local_wins remote_wins latest_wins merge"`
}

// Settings is one layer of configuration: defaults, the global file, or an
// account file.
type Settings struct {
	DefaultTasklist string       `yaml:"default_tasklist,omitempty"`
	DefaultAccount  string       `yaml:"default_account,omitempty"`
	Sync            SyncSettings `yaml:"sync,omitempty"`

	// Accounts holds per-account overrides keyed by account id. Only
	// meaningful in the global file.
	Accounts map[string]Settings `yaml:"accounts,omitempty"`
}

// Resolved is the effective configuration for one account after merging
// defaults, the global file, global per-account overrides and the account
// file, in that order.
type Resolved struct {
	DefaultTasklist  string
	PullRangeDays    int // 0 = full pull
	AutoSave         bool
	ConflictStrategy string
}

func defaults() Resolved {
	return Resolved{
		DefaultTasklist:  "My Tasks",
		PullRangeDays:    0,
		AutoSave:         false,
		ConflictStrategy: "latest_wins",
	}
}

var validate = validator.New()

// Root returns the configuration root directory, creating it when absent.
// A .env file at the root is loaded into the environment on first access.
func Root() (string, error) {
	root := os.Getenv(EnvConfigDir)
	if root == "" {
		base, err := os.UserConfigDir()
		if err != nil {
			return "", fmt.Errorf("cannot locate user config dir: %w", err)
		}
		root = filepath.Join(base, configDirName)
	}
	if err := os.MkdirAll(root, configDirPerm); err != nil {
		return "", fmt.Errorf("cannot create config dir %s: %w", root, err)
	}
	// Optional .env for local development; missing file is fine.
	_ = godotenv.Load(filepath.Join(root, ".env"))
	return root, nil
}

// merge overlays layer onto base. Empty/nil fields of layer keep base values.
func merge(base Resolved, layer Settings) Resolved {
	out := base
	if layer.DefaultTasklist != "" {
		out.DefaultTasklist = layer.DefaultTasklist
	}
	if layer.Sync.PullRangeDays != nil {
		out.PullRangeDays = *layer.Sync.PullRangeDays
	}
	if layer.Sync.AutoSave != nil {
		out.AutoSave = *layer.Sync.AutoSave
	}
	if layer.Sync.ConflictStrategy != "" {
		out.ConflictStrategy = layer.Sync.ConflictStrategy
	}
	return out
}

// Validate checks one settings layer against the documented key constraints.
func (s Settings) Validate() error {
	if err := validate.Struct(s); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if s.Sync.PullRangeDays != nil && *s.Sync.PullRangeDays < 0 {
		return fmt.Errorf("invalid configuration: sync.pull_range_days must not be negative")
	}
	for id, acct := range s.Accounts {
		if err := acct.Validate(); err != nil {
			return fmt.Errorf("account %q: %w", id, err)
		}
	}
	return nil
}
