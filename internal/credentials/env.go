package credentials

import (
	"os"
	"strings"
)

// normalizeAccountID converts an account id to the form used in environment
// variable names. Example: "work-gmail" becomes "WORK_GMAIL".
func normalizeAccountID(accountID string) string {
	normalized := strings.ToUpper(accountID)
	for _, ch := range []string{"-", ".", "@"} {
		normalized = strings.ReplaceAll(normalized, ch, "_")
	}
	return normalized
}

// envVarName returns the environment variable name for an account field.
func envVarName(accountID, field string) string {
	return "GTASKSYNC_" + normalizeAccountID(accountID) + "_" + strings.ToUpper(field)
}

// TokenFromEnv retrieves a serialized token from the environment.
// Looks for: GTASKSYNC_{ACCOUNT_ID}_TOKEN
func TokenFromEnv(accountID string) string {
	if accountID == "" {
		return ""
	}
	return os.Getenv(envVarName(accountID, "TOKEN"))
}

// RemoteTokenFromEnv retrieves a remote database bearer token from the
// environment. Looks for: GTASKSYNC_{ACCOUNT_ID}_REMOTE_{NAME}_TOKEN
func RemoteTokenFromEnv(accountID, remoteName string) string {
	if accountID == "" || remoteName == "" {
		return ""
	}
	return os.Getenv(envVarName(accountID, "REMOTE_"+normalizeAccountID(remoteName)+"_TOKEN"))
}
