package credentials

import (
	"fmt"

	"github.com/zalando/go-keyring"
)

// keyringServicePrefix is the prefix for all gtasksync keyring entries.
const keyringServicePrefix = "gtasksync"

func serviceName(accountID string) string {
	return fmt.Sprintf("%s-%s", keyringServicePrefix, accountID)
}

// SetToken stores a serialized token in the OS keyring.
func SetToken(accountID, token string) error {
	if accountID == "" {
		return fmt.Errorf("account id cannot be empty")
	}
	if token == "" {
		return fmt.Errorf("token cannot be empty")
	}
	if err := keyring.Set(serviceName(accountID), "token", token); err != nil {
		return fmt.Errorf("failed to store token in keyring: %w", err)
	}
	return nil
}

// TokenFromKeyring retrieves a serialized token from the OS keyring.
// Returns an empty string when no entry exists.
func TokenFromKeyring(accountID string) (string, error) {
	if accountID == "" {
		return "", fmt.Errorf("account id cannot be empty")
	}
	token, err := keyring.Get(serviceName(accountID), "token")
	if err == keyring.ErrNotFound {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read token from keyring: %w", err)
	}
	return token, nil
}

// DeleteToken removes an account's keyring entry. Deleting a missing entry
// is not an error.
func DeleteToken(accountID string) error {
	if accountID == "" {
		return fmt.Errorf("account id cannot be empty")
	}
	err := keyring.Delete(serviceName(accountID), "token")
	if err != nil && err != keyring.ErrNotFound {
		return fmt.Errorf("failed to delete token from keyring: %w", err)
	}
	return nil
}

// KeyringAvailable reports whether the OS keyring can be used.
func KeyringAvailable() bool {
	probe := serviceName("availability-probe")
	if err := keyring.Set(probe, "probe", "1"); err != nil {
		return false
	}
	_ = keyring.Delete(probe, "probe")
	return true
}
