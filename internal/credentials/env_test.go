package credentials

import "testing"

func TestEnvVarName(t *testing.T) {
	tests := []struct {
		accountID string
		field     string
		want      string
	}{
		{"work", "TOKEN", "GTASKSYNC_WORK_TOKEN"},
		{"work-gmail", "TOKEN", "GTASKSYNC_WORK_GMAIL_TOKEN"},
		{"me@example.com", "TOKEN", "GTASKSYNC_ME_EXAMPLE_COM_TOKEN"},
	}
	for _, tt := range tests {
		if got := envVarName(tt.accountID, tt.field); got != tt.want {
			t.Errorf("envVarName(%q, %q) = %q, want %q", tt.accountID, tt.field, got, tt.want)
		}
	}
}

func TestTokenFromEnv(t *testing.T) {
	t.Setenv("GTASKSYNC_WORK_TOKEN", "env-token")

	if got := TokenFromEnv("work"); got != "env-token" {
		t.Errorf("TokenFromEnv = %q", got)
	}
	if got := TokenFromEnv("other"); got != "" {
		t.Errorf("unset account token = %q, want empty", got)
	}
	if got := TokenFromEnv(""); got != "" {
		t.Errorf("empty account id token = %q, want empty", got)
	}
}

func TestRemoteTokenFromEnv(t *testing.T) {
	t.Setenv("GTASKSYNC_WORK_REMOTE_BACKUP_DB_TOKEN", "remote-token")

	if got := RemoteTokenFromEnv("work", "backup-db"); got != "remote-token" {
		t.Errorf("RemoteTokenFromEnv = %q", got)
	}
	if got := RemoteTokenFromEnv("work", ""); got != "" {
		t.Errorf("empty remote name token = %q, want empty", got)
	}
}
