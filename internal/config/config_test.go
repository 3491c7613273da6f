package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestSaveAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")

	cfg := &Config{DefaultAccount: "+1 (555) 000-1111", MessageLimit: 25}
	if err := Save(path, cfg); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if loaded.DefaultAccount != cfg.DefaultAccount {
		t.Errorf("DefaultAccount = %q, want %q", loaded.DefaultAccount, cfg.DefaultAccount)
	}
	if loaded.MessageLimit != 25 {
		t.Errorf("MessageLimit = %d, want 25", loaded.MessageLimit)
	}
}

func TestLoadMissingAppliesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope", "config.toml"))
	if err != nil {
		t.Fatalf("Load() error = %v, want nil for missing file", err)
	}
	if cfg.MessageLimit != DefaultMessageLimit {
		t.Errorf("MessageLimit = %d, want %d", cfg.MessageLimit, DefaultMessageLimit)
	}
}

func TestLoadZeroLimitAppliesDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := Save(path, &Config{DefaultAccount: "x"}); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.MessageLimit != DefaultMessageLimit {
		t.Errorf("MessageLimit = %d, want %d", cfg.MessageLimit, DefaultMessageLimit)
	}
}

func TestSavePermissions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")

	if err := Save(path, &Config{DefaultAccount: "main"}); err != nil {
		t.Fatal(err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("file permission = %o, want 0600", perm)
	}
}
