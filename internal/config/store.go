package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Store reads and writes layered YAML configuration under one root
// directory: <root>/config.yaml plus <root>/<account>/config.yaml.
type Store struct {
	root string
}

// NewStore opens a config store rooted at root.
func NewStore(root string) *Store {
	return &Store{root: root}
}

// NewDefaultStore opens the store at the user's config root.
func NewDefaultStore() (*Store, error) {
	root, err := Root()
	if err != nil {
		return nil, err
	}
	return NewStore(root), nil
}

// Root returns the store's root directory.
func (s *Store) Root() string {
	return s.root
}

func (s *Store) globalPath() string {
	return filepath.Join(s.root, configFileName)
}

func (s *Store) accountPath(accountID string) string {
	return filepath.Join(s.root, accountID, configFileName)
}

// LoadGlobal reads the global settings file. A missing file yields empty
// settings, not an error.
func (s *Store) LoadGlobal() (Settings, error) {
	return s.load(s.globalPath())
}

// LoadAccount reads one account's settings file.
func (s *Store) LoadAccount(accountID string) (Settings, error) {
	return s.load(s.accountPath(accountID))
}

func (s *Store) load(path string) (Settings, error) {
	var settings Settings
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return settings, nil
	}
	if err != nil {
		return settings, fmt.Errorf("failed to read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &settings); err != nil {
		return settings, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	if err := settings.Validate(); err != nil {
		return settings, fmt.Errorf("%s: %w", path, err)
	}
	return settings, nil
}

// Resolve computes the effective configuration for accountID by merging
// defaults, the global file, the global per-account override block and the
// account file, in that order.
func (s *Store) Resolve(accountID string) (Resolved, error) {
	resolved := defaults()

	global, err := s.LoadGlobal()
	if err != nil {
		return resolved, err
	}
	resolved = merge(resolved, global)
	if accountID == "" {
		return resolved, nil
	}

	if override, ok := global.Accounts[accountID]; ok {
		resolved = merge(resolved, override)
	}
	account, err := s.LoadAccount(accountID)
	if err != nil {
		return resolved, err
	}
	return merge(resolved, account), nil
}

// SaveGlobal writes the global settings file atomically.
func (s *Store) SaveGlobal(settings Settings) error {
	return s.save(s.globalPath(), settings)
}

// SaveAccount writes one account's settings file atomically.
func (s *Store) SaveAccount(accountID string, settings Settings) error {
	if accountID == "" {
		return fmt.Errorf("account id is required")
	}
	return s.save(s.accountPath(accountID), settings)
}

// save writes settings via temp file + rename under a per-file advisory
// lock, so concurrent writers never interleave and readers never observe a
// half-written file.
func (s *Store) save(path string, settings Settings) error {
	if err := settings.Validate(); err != nil {
		return err
	}
	data, err := yaml.Marshal(settings)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), configDirPerm); err != nil {
		return fmt.Errorf("failed to create config dir: %w", err)
	}

	unlock, err := acquireLock(path + ".lock")
	if err != nil {
		return err
	}
	defer unlock()

	tmp, err := os.CreateTemp(filepath.Dir(path), ".config-*.yaml")
	if err != nil {
		return fmt.Errorf("failed to create temp config: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write temp config: %w", err)
	}
	if err := tmp.Chmod(configFilePerm); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to set config permissions: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp config: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("failed to replace config: %w", err)
	}
	return nil
}

const (
	lockRetryInterval = 25 * time.Millisecond
	lockTimeout       = 5 * time.Second
)

// acquireLock takes a per-file advisory lock by exclusively creating a lock
// file. A lock older than the timeout is considered stale and broken.
func acquireLock(lockPath string) (func(), error) {
	deadline := time.Now().Add(lockTimeout)
	for {
		f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
		if err == nil {
			fmt.Fprintf(f, "%d\n", os.Getpid())
			f.Close()
			return func() { os.Remove(lockPath) }, nil
		}
		if !errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("failed to acquire config lock: %w", err)
		}
		if info, serr := os.Stat(lockPath); serr == nil && time.Since(info.ModTime()) > lockTimeout {
			os.Remove(lockPath) // stale lock from a crashed writer
			continue
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("timed out waiting for config lock %s", lockPath)
		}
		time.Sleep(lockRetryInterval)
	}
}
