package creds

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// BaseDir returns ~/.telecord.
func BaseDir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".telecord")
}

// AccountsDir returns the directory holding per-account records.
func AccountsDir(base string) string {
	return filepath.Join(base, "accounts")
}

// ConfigPath returns the global config file path.
func ConfigPath(base string) string {
	return filepath.Join(base, "config.toml")
}

// LogPath returns the daemon log file path.
func LogPath(base string) string {
	return filepath.Join(base, "logs", "telecordd.log")
}

// RecordPath returns the credential record path for an account id.
// The id is phone-number-like; everything but digits is stripped before
// it is used as a path component.
func RecordPath(base, accountID string) (string, error) {
	key, err := SanitizeAccountID(accountID)
	if err != nil {
		return "", err
	}
	return filepath.Join(AccountsDir(base), key+"_creds.toml"), nil
}

// MTProtoSessionPath returns where the Telegram client keeps its wire
// session for an account.
func MTProtoSessionPath(base, accountID string) (string, error) {
	key, err := SanitizeAccountID(accountID)
	if err != nil {
		return "", err
	}
	return filepath.Join(AccountsDir(base), key+".session"), nil
}

// SanitizeAccountID strips non-digit characters from a phone-number-like
// account id ("+1 (555) 000-1111" -> "15550001111").
func SanitizeAccountID(accountID string) (string, error) {
	var b strings.Builder
	for _, r := range accountID {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return "", fmt.Errorf("account id %q contains no digits", accountID)
	}
	return b.String(), nil
}
